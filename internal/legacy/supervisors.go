// Package legacy keeps the pre-heartbeat entry points: one cron schedule per
// feature, no lease. They only do something in LEGACY mode.
package legacy

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aristath/heartbeat/internal/events"
	"github.com/aristath/heartbeat/internal/mode"
	"github.com/aristath/heartbeat/internal/work"
	"github.com/aristath/heartbeat/pkg/logger"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// Supervisors schedules each job on its own cron entry.
type Supervisors struct {
	cron    *cron.Cron
	arbiter *mode.Arbiter
	bus     *events.Bus
	holder  string
	log     zerolog.Logger

	mu      sync.Mutex
	entries map[string]cron.EntryID
	started bool
}

// New creates the legacy supervisors. bus may be nil.
func New(arbiter *mode.Arbiter, bus *events.Bus, holder string, log zerolog.Logger) *Supervisors {
	return &Supervisors{
		cron:    cron.New(),
		arbiter: arbiter,
		bus:     bus,
		holder:  holder,
		log:     logger.Component(log, "legacy_supervisors"),
		entries: make(map[string]cron.EntryID),
	}
}

// Start is the legacy entry point of one feature. Under HEARTBEAT it returns a
// skipped result and schedules nothing.
func (s *Supervisors) Start(job work.Job) (mode.Result, error) {
	result := s.arbiter.Guard(job.Name())
	if result.Skipped {
		s.log.Debug().Str("job", job.Name()).Str("reason", result.Reason).Msg("Legacy supervisor skipped")
		return result, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.entries[job.Name()]; exists {
		return result, fmt.Errorf("%w: %s", work.ErrDuplicateJob, job.Name())
	}

	schedule := "@every " + job.Interval().String()
	var ticks int64
	id, err := s.cron.AddFunc(schedule, func() {
		s.run(job, atomic.AddInt64(&ticks, 1))
	})
	if err != nil {
		return result, fmt.Errorf("failed to schedule %s: %w", job.Name(), err)
	}
	s.entries[job.Name()] = id

	s.log.Info().
		Str("schedule", schedule).
		Str("job", job.Name()).
		Msg("Job registered")

	return result, nil
}

// StartAll calls Start for every job, stopping at the first error.
func (s *Supervisors) StartAll(jobs []work.Job) ([]mode.Result, error) {
	results := make([]mode.Result, 0, len(jobs))
	for _, job := range jobs {
		result, err := s.Start(job)
		if err != nil {
			return results, err
		}
		results = append(results, result)
	}
	return results, nil
}

func (s *Supervisors) run(job work.Job, number int64) {
	tick := &work.Tick{
		Number:       number,
		Time:         time.Now(),
		Cadence:      job.Interval(),
		MarketActive: true,
		Holder:       s.holder,
		Broadcast:    s.bus,
	}

	defer func() {
		if r := recover(); r != nil {
			s.log.Error().Str("job", job.Name()).Interface("panic", r).Msg("Job panicked")
		}
	}()

	s.log.Debug().Str("job", job.Name()).Msg("Running job")
	if err := job.Run(context.Background(), tick); err != nil {
		s.log.Error().
			Err(err).
			Str("job", job.Name()).
			Time("tick_time", tick.Time).
			Msg("Job failed")
		return
	}
	s.log.Debug().Str("job", job.Name()).Msg("Job completed")
}

// Entries returns the number of scheduled jobs.
func (s *Supervisors) Entries() int {
	return len(s.cron.Entries())
}

// Run starts the cron scheduler. It is a no-op when nothing was scheduled.
func (s *Supervisors) Run() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.entries) == 0 || s.started {
		return
	}
	s.cron.Start()
	s.started = true
	s.log.Info().Int("jobs", len(s.entries)).Msg("Legacy supervisors started")
}

// Stop stops the scheduler and waits for running jobs.
func (s *Supervisors) Stop() {
	s.mu.Lock()
	started := s.started
	s.started = false
	s.mu.Unlock()

	if !started {
		return
	}
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.log.Info().Msg("Legacy supervisors stopped")
}
