package heartbeat

// State is the loop's leadership state.
type State int

const (
	// Acquiring polls the lease without running jobs.
	Acquiring State = iota
	// Leading holds the lease and executes due jobs each tick.
	Leading
	// StandingDown is the transient state after the lease was lost.
	StandingDown
	// Stopped is terminal.
	Stopped
)

// String returns the state name used in logs and the status endpoint.
func (s State) String() string {
	switch s {
	case Acquiring:
		return "ACQUIRING"
	case Leading:
		return "LEADING"
	case StandingDown:
		return "STANDING_DOWN"
	case Stopped:
		return "STOPPED"
	default:
		return "UNKNOWN"
	}
}
