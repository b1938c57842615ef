package work

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

var (
	// ErrDuplicateJob is returned when a job name is already registered.
	ErrDuplicateJob = errors.New("duplicate job")

	// ErrInvalidInterval is returned for a non-positive interval.
	ErrInvalidInterval = errors.New("job interval must be positive")

	// ErrInvalidName is returned for an empty job name.
	ErrInvalidName = errors.New("job name must not be empty")

	// ErrUnknownJob is returned when a name is not registered.
	ErrUnknownJob = errors.New("unknown job")
)

// Registry holds the registered jobs in registration order and their last-run
// clocks. Only the heartbeat loop mutates it while running; the lock covers the
// HTTP surface reading it concurrently.
type Registry struct {
	jobs       []Job
	byName     map[string]Job
	completion *CompletionTracker
	resets     map[string]bool // reset and not yet run
	clock      clockwork.Clock
	mu         sync.RWMutex
}

// NewRegistry creates a job registry. A nil clock uses the real clock.
func NewRegistry(clock clockwork.Clock) *Registry {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Registry{
		jobs:       make([]Job, 0),
		byName:     make(map[string]Job),
		completion: NewCompletionTracker(),
		resets:     make(map[string]bool),
		clock:      clock,
	}
}

// Register adds a job and seeds its last-run clock with the current time.
func (r *Registry) Register(job Job) error {
	name := job.Name()
	if name == "" {
		return ErrInvalidName
	}
	if job.Interval() <= 0 {
		return fmt.Errorf("%w: %s has interval %s", ErrInvalidInterval, name, job.Interval())
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byName[name]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateJob, name)
	}

	r.jobs = append(r.jobs, job)
	r.byName[name] = job
	r.completion.MarkCompletedAt(name, r.clock.Now())
	return nil
}

// MustRegister registers every job and panics on the first error.
func (r *Registry) MustRegister(jobs ...Job) {
	for _, job := range jobs {
		if err := r.Register(job); err != nil {
			panic(err)
		}
	}
}

// DueJobs returns the jobs due at now, in registration order.
func (r *Registry) DueJobs(now time.Time) []Job {
	r.mu.RLock()
	defer r.mu.RUnlock()

	due := make([]Job, 0, len(r.jobs))
	for _, job := range r.jobs {
		lastRun, ok := r.completion.GetCompletion(job.Name())
		if !ok {
			due = append(due, job)
			continue
		}
		if ShouldRun(job, now, lastRun) {
			due = append(due, job)
		}
	}
	return due
}

// MarkRan records that the named job ran at now.
func (r *Registry) MarkRan(name string, now time.Time) {
	r.mu.Lock()
	delete(r.resets, name)
	r.mu.Unlock()

	r.completion.MarkCompletedAt(name, now)
}

// LastRun returns the job's last-run clock.
func (r *Registry) LastRun(name string) (time.Time, bool) {
	return r.completion.GetCompletion(name)
}

// Reset clears the job's clock so it runs on the next tick. The reset holds
// until the job runs, including across a Restore.
func (r *Registry) Reset(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byName[name]; !exists {
		return fmt.Errorf("%w: %s", ErrUnknownJob, name)
	}
	r.resets[name] = true
	r.completion.Clear(name)
	return nil
}

// Get returns a job by name, or nil if not found.
func (r *Registry) Get(name string) Job {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.byName[name]
}

// Jobs returns the registered jobs in registration order.
func (r *Registry) Jobs() []Job {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]Job, len(r.jobs))
	copy(result, r.jobs)
	return result
}

// Count returns the number of registered jobs.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.jobs)
}

// Snapshot returns the last-run clocks of all registered jobs.
func (r *Registry) Snapshot() map[string]time.Time {
	return r.completion.Snapshot()
}

// Restore merges persisted last-run clocks. Unknown names and jobs reset since
// their last run are ignored, and no clock moves backwards. Returns the number
// of entries applied.
func (r *Registry) Restore(lastRuns map[string]time.Time) int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	applied := 0
	for name, at := range lastRuns {
		if _, exists := r.byName[name]; !exists || r.resets[name] {
			continue
		}
		if r.completion.Advance(name, at) {
			applied++
		}
	}
	return applied
}
