// Package mode resolves, once per process, whether the heartbeat loop or the
// legacy per-feature supervisors own periodic work.
package mode

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnknownMode is returned by Parse for values other than HEARTBEAT or LEGACY.
var ErrUnknownMode = errors.New("unknown scheduler mode")

// Mode selects which scheduling path is active for the whole process.
type Mode int

const (
	// Heartbeat runs every job from the single leader-elected loop.
	Heartbeat Mode = iota
	// Legacy runs each feature from its own supervisor; the loop refuses to start.
	Legacy
)

// String returns the configuration spelling of the mode.
func (m Mode) String() string {
	switch m {
	case Heartbeat:
		return "HEARTBEAT"
	case Legacy:
		return "LEGACY"
	default:
		return "UNKNOWN"
	}
}

// Parse converts a configuration value into a Mode. Empty means Heartbeat.
func Parse(value string) (Mode, error) {
	switch strings.ToUpper(strings.TrimSpace(value)) {
	case "", "HEARTBEAT":
		return Heartbeat, nil
	case "LEGACY":
		return Legacy, nil
	default:
		return Heartbeat, fmt.Errorf("%w: %q", ErrUnknownMode, value)
	}
}

// Result is what a legacy entry point reports back to its caller.
type Result struct {
	Feature string
	Skipped bool
	Reason  string
}

// Arbiter holds the process-wide mode. It has no setter: the value is fixed at
// construction and there is no per-feature override.
type Arbiter struct {
	mode Mode
}

// NewArbiter creates an arbiter fixed to the given mode.
func NewArbiter(m Mode) *Arbiter {
	return &Arbiter{mode: m}
}

// CurrentMode returns the resolved mode.
func (a *Arbiter) CurrentMode() Mode {
	return a.mode
}

// HeartbeatActive reports whether the heartbeat loop owns periodic work.
func (a *Arbiter) HeartbeatActive() bool {
	return a.mode == Heartbeat
}

// Guard is called first by every legacy entry point. A skipped result means
// the caller must return it without side effects.
func (a *Arbiter) Guard(feature string) Result {
	if a.mode == Heartbeat {
		return Result{
			Feature: feature,
			Skipped: true,
			Reason:  "heartbeat mode active",
		}
	}
	return Result{Feature: feature}
}
