package work

import (
	"context"
	"time"

	"github.com/aristath/heartbeat/internal/events"
)

// Job is a periodic task run by the heartbeat loop.
type Job interface {
	// Name is unique within a registry.
	Name() string

	// Interval is the nominal time between runs. Must be positive.
	Interval() time.Duration

	// Run executes one pass. Errors and panics are isolated by the loop.
	Run(ctx context.Context, tick *Tick) error
}

// Scheduler lets a job replace the default due rule.
type Scheduler interface {
	ShouldRun(now, lastRun time.Time) bool
}

// ShouldRun applies the job's own rule when it implements Scheduler, otherwise
// the default: never run, or at least one interval elapsed.
func ShouldRun(job Job, now, lastRun time.Time) bool {
	if s, ok := job.(Scheduler); ok {
		return s.ShouldRun(now, lastRun)
	}
	if lastRun.IsZero() {
		return true
	}
	return now.Sub(lastRun) >= job.Interval()
}

// Tick is the per-iteration context handed to every job. It is created fresh for
// each tick and must not be retained.
type Tick struct {
	// Number counts ticks executed while leading, starting at 1.
	Number int64

	// Time is the tick's clock reading; all due checks of the tick use it.
	Time time.Time

	// Cadence is the wait chosen after this tick.
	Cadence time.Duration

	// MarketActive is the gate's answer for this tick.
	MarketActive bool

	// Holder is the lease holder id of this process.
	Holder string

	// Broadcast is the shared event bus.
	Broadcast *events.Bus
}

// JobType adapts a function to the Job contract.
type JobType struct {
	// ID is the unique job name (e.g., "prices:sync", "markets:broadcast").
	ID string

	// Every is the time between runs.
	Every time.Duration

	// Execute performs the work for one tick.
	Execute func(ctx context.Context, tick *Tick) error
}

// Name returns the job ID.
func (jt *JobType) Name() string {
	return jt.ID
}

// Interval returns the configured period.
func (jt *JobType) Interval() time.Duration {
	return jt.Every
}

// Run calls Execute. A JobType without Execute is a no-op.
func (jt *JobType) Run(ctx context.Context, tick *Tick) error {
	if jt.Execute == nil {
		return nil
	}
	return jt.Execute(ctx, tick)
}
