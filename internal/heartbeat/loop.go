// Package heartbeat drives all periodic work of a deployment from one loop.
//
// Exactly one process leads at a time: the loop takes a lease before running
// anything, renews it every tick (and while waiting between ticks), and goes
// back to acquiring as soon as a renewal fails. While leading it asks the
// market gate for the cadence, runs every due job in registration order and
// isolates each job's failure from the rest of the tick.
package heartbeat

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/aristath/heartbeat/internal/events"
	"github.com/aristath/heartbeat/internal/lease"
	"github.com/aristath/heartbeat/internal/mode"
	"github.com/aristath/heartbeat/internal/work"
	"github.com/aristath/heartbeat/pkg/logger"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
)

var (
	// ErrLegacyMode is returned by Run when the deployment runs the legacy
	// supervisors instead.
	ErrLegacyMode = errors.New("heartbeat loop refuses to start in LEGACY mode")

	// ErrStartupTimeout is returned by Run when leadership was never obtained
	// within Config.StartupTimeout.
	ErrStartupTimeout = errors.New("leadership not acquired within startup timeout")

	// ErrJobPanicked wraps a recovered panic from a job.
	ErrJobPanicked = errors.New("job panicked")
)

const (
	moduleName     = "heartbeat"
	releaseTimeout = 5 * time.Second

	defaultFastCadence    = time.Second
	defaultSlowCadence    = 60 * time.Second
	defaultAcquireBackoff = 2 * time.Second
)

// MarketGate decides the cadence. It must never block.
type MarketGate interface {
	AnyMarketActive(now time.Time) bool
}

// Config holds the loop timings. Zero values fall back to defaults.
type Config struct {
	FastCadence    time.Duration
	SlowCadence    time.Duration
	RenewInterval  time.Duration // default: lease TTL / 3
	AcquireBackoff time.Duration
	JobTimeout     time.Duration // 0 = jobs bound their own I/O
	StartupTimeout time.Duration // 0 = wait forever
}

// JobError is a job failure as reported by the loop.
type JobError struct {
	Job  string
	Tick int64
	Err  error
}

func (e *JobError) Error() string {
	return fmt.Sprintf("job %s failed on tick %d: %v", e.Job, e.Tick, e.Err)
}

func (e *JobError) Unwrap() error {
	return e.Err
}

// Loop is the heartbeat scheduler. Step and Run must be called from a single
// goroutine; Status is safe from any goroutine.
type Loop struct {
	cfg      Config
	registry *work.Registry
	lock     *lease.Lock
	gate     MarketGate
	arbiter  *mode.Arbiter
	events   *events.Manager
	clock    clockwork.Clock
	log      zerolog.Logger

	mu           sync.RWMutex
	state        State
	cadence      time.Duration
	marketActive bool
	ticks        int64
	lastTick     time.Time
	leaderSince  time.Time
}

// New creates a loop in the Acquiring state. gate and em may be nil: without a
// gate markets are considered active.
func New(
	cfg Config,
	registry *work.Registry,
	lock *lease.Lock,
	gate MarketGate,
	arbiter *mode.Arbiter,
	em *events.Manager,
	clock clockwork.Clock,
	log zerolog.Logger,
) *Loop {
	if cfg.FastCadence <= 0 {
		cfg.FastCadence = defaultFastCadence
	}
	if cfg.SlowCadence <= 0 {
		cfg.SlowCadence = defaultSlowCadence
	}
	if cfg.AcquireBackoff <= 0 {
		cfg.AcquireBackoff = defaultAcquireBackoff
	}
	if cfg.RenewInterval <= 0 {
		cfg.RenewInterval = lock.TTL() / 3
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}

	return &Loop{
		cfg:      cfg,
		registry: registry,
		lock:     lock,
		gate:     gate,
		arbiter:  arbiter,
		events:   em,
		clock:    clock,
		log:      logger.Component(log, "heartbeat").With().Str("holder", lock.Holder()).Logger(),
		state:    Acquiring,
	}
}

// Run drives the loop until ctx is cancelled, then releases the lease if held.
// A cancelled context is a clean shutdown and returns nil.
func (l *Loop) Run(ctx context.Context) error {
	if l.arbiter != nil && !l.arbiter.HeartbeatActive() {
		l.log.Error().Str("mode", l.arbiter.CurrentMode().String()).Msg("Heartbeat loop not started")
		return ErrLegacyMode
	}

	l.log.Info().
		Bool("lock_enabled", l.lock.Enabled()).
		Dur("fast_cadence", l.cfg.FastCadence).
		Dur("slow_cadence", l.cfg.SlowCadence).
		Int("jobs", l.registry.Count()).
		Msg("Heartbeat loop starting")

	var deadline time.Time
	if l.lock.Enabled() && l.cfg.StartupTimeout > 0 {
		deadline = l.clock.Now().Add(l.cfg.StartupTimeout)
	}
	everLed := false

	for {
		if ctx.Err() != nil {
			l.stop()
			return nil
		}

		wait := l.Step(ctx)
		if l.State() == Leading {
			everLed = true
		}

		if !everLed && !deadline.IsZero() {
			remaining := deadline.Sub(l.clock.Now())
			if remaining <= 0 {
				l.log.Error().Dur("startup_timeout", l.cfg.StartupTimeout).Msg("Could not acquire leadership")
				l.stop()
				return fmt.Errorf("%w (%s)", ErrStartupTimeout, l.cfg.StartupTimeout)
			}
			if wait > remaining {
				wait = remaining
			}
		}

		if err := l.wait(ctx, wait); err != nil {
			l.stop()
			return nil
		}
	}
}

// Step performs one iteration of the state machine and returns how long to
// wait before the next one. After a tick the wait runs to one cadence past the
// tick start; a tick that overran its cadence returns zero.
func (l *Loop) Step(ctx context.Context) time.Duration {
	switch l.State() {
	case Stopped:
		return 0
	case Leading:
		if err := l.lock.Renew(ctx); err != nil {
			l.standDown(err)
			if !l.acquire(ctx) {
				return l.cfg.AcquireBackoff
			}
		}
	default:
		if !l.acquire(ctx) {
			return l.cfg.AcquireBackoff
		}
	}

	return l.tick(ctx)
}

func (l *Loop) acquire(ctx context.Context) bool {
	l.setState(Acquiring)

	ok, err := l.lock.TryAcquire(ctx)
	if err != nil {
		l.log.Warn().Err(err).Msg("Lease acquisition failed")
		return false
	}
	if !ok {
		l.log.Debug().Str("key", l.lock.Key()).Msg("Lease held by another process")
		return false
	}

	restored := 0
	lastRuns, err := l.lock.LoadLastRuns(ctx)
	if err != nil {
		l.log.Warn().Err(err).Msg("Failed to load persisted job clocks, starting from registration times")
	} else {
		restored = l.registry.Restore(lastRuns)
	}

	l.mu.Lock()
	l.state = Leading
	l.leaderSince = l.clock.Now()
	l.mu.Unlock()

	l.log.Info().Int("restored_jobs", restored).Msg("Leadership acquired")
	l.emit(events.LeadershipAcquired, map[string]interface{}{
		"holder":        l.lock.Holder(),
		"restored_jobs": restored,
	})
	return true
}

func (l *Loop) standDown(cause error) {
	l.setState(StandingDown)

	l.log.Warn().Err(cause).Msg("Leadership lost, standing down")
	l.emitError(events.LeadershipLost, cause, map[string]interface{}{
		"holder": l.lock.Holder(),
	})

	l.setState(Acquiring)
}

func (l *Loop) tick(ctx context.Context) time.Duration {
	now := l.clock.Now()

	active := true
	if l.gate != nil {
		active = l.gate.AnyMarketActive(now)
	}
	cadence := l.cfg.SlowCadence
	if active {
		cadence = l.cfg.FastCadence
	}

	l.mu.Lock()
	l.ticks++
	number := l.ticks
	previous := l.cadence
	l.cadence = cadence
	l.marketActive = active
	l.lastTick = now
	l.mu.Unlock()

	if previous != 0 && previous != cadence {
		l.log.Info().
			Dur("from", previous).
			Dur("to", cadence).
			Bool("market_active", active).
			Msg("Cadence changed")
		l.emit(events.CadenceChanged, map[string]interface{}{
			"from_seconds":  previous.Seconds(),
			"to_seconds":    cadence.Seconds(),
			"market_active": active,
		})
	}

	tick := &work.Tick{
		Number:       number,
		Time:         now,
		Cadence:      cadence,
		MarketActive: active,
		Holder:       l.lock.Holder(),
	}
	if l.events != nil {
		tick.Broadcast = l.events.Bus()
	}

	due := l.registry.DueJobs(now)
	ran := 0
	for _, job := range due {
		if ctx.Err() != nil {
			l.log.Debug().Int("skipped", len(due)-ran).Msg("Shutdown requested, leaving remaining jobs")
			break
		}
		l.runJob(ctx, job, tick)
		ran++
	}
	if ran > 0 {
		l.persist(ctx)
	}

	l.emit(events.HeartbeatTick, map[string]interface{}{
		"tick":          number,
		"jobs_run":      ran,
		"cadence":       cadence.Seconds(),
		"market_active": active,
	})

	elapsed := l.clock.Since(now)
	if elapsed >= cadence {
		l.log.Warn().
			Int64("tick", number).
			Dur("elapsed", elapsed).
			Dur("cadence", cadence).
			Msg("Tick overran its cadence")
		return 0
	}
	return cadence - elapsed
}

func (l *Loop) runJob(ctx context.Context, job work.Job, tick *work.Tick) {
	name := job.Name()

	jobCtx := ctx
	if l.cfg.JobTimeout > 0 {
		var cancel context.CancelFunc
		jobCtx, cancel = context.WithTimeout(ctx, l.cfg.JobTimeout)
		defer cancel()
	}

	l.emit(events.JobStarted, map[string]interface{}{
		"job":  name,
		"tick": tick.Number,
	})

	started := l.clock.Now()
	err := safeRun(jobCtx, job, tick)
	elapsed := l.clock.Since(started)

	// Failed runs count as runs: the job retries on its normal cadence.
	l.registry.MarkRan(name, tick.Time)

	if l.cfg.JobTimeout > 0 && elapsed > l.cfg.JobTimeout {
		l.log.Warn().
			Str("job", name).
			Dur("elapsed", elapsed).
			Dur("timeout", l.cfg.JobTimeout).
			Msg("Job overran its timeout")
	}

	if err != nil {
		jobErr := &JobError{Job: name, Tick: tick.Number, Err: err}
		l.log.Error().
			Err(err).
			Str("job", name).
			Int64("tick", tick.Number).
			Time("tick_time", tick.Time).
			Msg("Job failed")
		l.emitError(events.JobFailed, jobErr, map[string]interface{}{
			"job":       name,
			"tick":      tick.Number,
			"tick_time": tick.Time.Format(time.RFC3339Nano),
		})
		return
	}

	l.log.Debug().Str("job", name).Dur("elapsed", elapsed).Msg("Job completed")
	l.emit(events.JobCompleted, map[string]interface{}{
		"job":         name,
		"tick":        tick.Number,
		"duration_ms": elapsed.Milliseconds(),
	})
}

func safeRun(ctx context.Context, job work.Job, tick *work.Tick) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v\n%s", ErrJobPanicked, r, debug.Stack())
		}
	}()
	return job.Run(ctx, tick)
}

func (l *Loop) persist(ctx context.Context) {
	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), releaseTimeout)
	defer cancel()

	if err := l.lock.SaveLastRuns(saveCtx, l.registry.Snapshot()); err != nil {
		l.log.Warn().Err(err).Msg("Failed to persist job clocks")
	}
}

// wait sleeps for d, renewing the lease every RenewInterval while leading.
// A failed renewal ends the wait early in the Acquiring state.
func (l *Loop) wait(ctx context.Context, d time.Duration) error {
	deadline := l.clock.Now().Add(d)
	for {
		remaining := deadline.Sub(l.clock.Now())
		if remaining <= 0 {
			return nil
		}

		renewing := l.lock.Enabled() && l.State() == Leading
		chunk := remaining
		if renewing && chunk > l.cfg.RenewInterval {
			chunk = l.cfg.RenewInterval
		}

		timer := l.clock.NewTimer(chunk)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.Chan():
		}

		if renewing && deadline.After(l.clock.Now()) {
			if err := l.lock.Renew(ctx); err != nil {
				l.standDown(err)
				return nil
			}
		}
	}
}

func (l *Loop) stop() {
	if l.State() == Leading {
		ctx, cancel := context.WithTimeout(context.Background(), releaseTimeout)
		defer cancel()

		if err := l.lock.Release(ctx); err != nil {
			l.log.Warn().Err(err).Msg("Failed to release lease")
		} else {
			l.log.Info().Msg("Lease released")
		}
		l.emit(events.LeadershipLost, map[string]interface{}{
			"holder": l.lock.Holder(),
			"reason": "shutdown",
		})
	}

	l.setState(Stopped)
	l.log.Info().Msg("Heartbeat loop stopped")
}

// State returns the current state.
func (l *Loop) State() State {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.state
}

func (l *Loop) setState(s State) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.state = s
}

func (l *Loop) emit(eventType events.EventType, data map[string]interface{}) {
	if l.events != nil {
		l.events.Emit(eventType, moduleName, data)
	}
}

func (l *Loop) emitError(eventType events.EventType, err error, data map[string]interface{}) {
	if l.events != nil {
		l.events.EmitError(eventType, moduleName, err, data)
	}
}
