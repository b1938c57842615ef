package heartbeat

import "time"

// Status is a point-in-time view of the loop for the HTTP surface.
type Status struct {
	State          string     `json:"state"`
	Holder         string     `json:"holder"`
	Leader         bool       `json:"leader"`
	LockEnabled    bool       `json:"lock_enabled"`
	CadenceSeconds float64    `json:"cadence_seconds"`
	MarketActive   bool       `json:"market_active"`
	Ticks          int64      `json:"ticks"`
	LastTick       *time.Time `json:"last_tick,omitempty"`
	LeaderSince    *time.Time `json:"leader_since,omitempty"`
}

// Status returns a snapshot of the loop state.
func (l *Loop) Status() Status {
	l.mu.RLock()
	defer l.mu.RUnlock()

	s := Status{
		State:          l.state.String(),
		Holder:         l.lock.Holder(),
		Leader:         l.state == Leading,
		LockEnabled:    l.lock.Enabled(),
		CadenceSeconds: l.cadence.Seconds(),
		MarketActive:   l.marketActive,
		Ticks:          l.ticks,
	}
	if !l.lastTick.IsZero() {
		t := l.lastTick
		s.LastTick = &t
	}
	if s.Leader && !l.leaderSince.IsZero() {
		t := l.leaderSince
		s.LeaderSince = &t
	}
	return s
}
