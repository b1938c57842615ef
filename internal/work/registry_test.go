package work

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2026, 3, 2, 14, 30, 0, 0, time.UTC)

func newJob(name string, every time.Duration) *JobType {
	return &JobType{ID: name, Every: every}
}

func names(jobs []Job) []string {
	out := make([]string, 0, len(jobs))
	for _, j := range jobs {
		out = append(out, j.Name())
	}
	return out
}

func TestNewRegistry(t *testing.T) {
	r := NewRegistry(nil)

	assert.NotNil(t, r)
	assert.Equal(t, 0, r.Count())
}

func TestRegistry_Register(t *testing.T) {
	clock := clockwork.NewFakeClockAt(t0)
	r := NewRegistry(clock)

	require.NoError(t, r.Register(newJob("prices", time.Second)))

	assert.Equal(t, 1, r.Count())
	assert.NotNil(t, r.Get("prices"))
	assert.Nil(t, r.Get("unknown"))

	lastRun, ok := r.LastRun("prices")
	require.True(t, ok)
	assert.Equal(t, t0, lastRun, "registration seeds the clock")
}

func TestRegistry_RegisterErrors(t *testing.T) {
	r := NewRegistry(clockwork.NewFakeClockAt(t0))
	require.NoError(t, r.Register(newJob("prices", time.Second)))

	t.Run("duplicate name", func(t *testing.T) {
		err := r.Register(newJob("prices", time.Minute))
		assert.True(t, errors.Is(err, ErrDuplicateJob))
	})

	t.Run("zero interval", func(t *testing.T) {
		err := r.Register(newJob("balances", 0))
		assert.True(t, errors.Is(err, ErrInvalidInterval))
	})

	t.Run("negative interval", func(t *testing.T) {
		err := r.Register(newJob("balances", -time.Second))
		assert.True(t, errors.Is(err, ErrInvalidInterval))
	})

	t.Run("empty name", func(t *testing.T) {
		err := r.Register(newJob("", time.Second))
		assert.True(t, errors.Is(err, ErrInvalidName))
	})

	assert.Equal(t, 1, r.Count())
}

func TestRegistry_MustRegisterPanicsOnDuplicate(t *testing.T) {
	r := NewRegistry(nil)

	assert.Panics(t, func() {
		r.MustRegister(newJob("a", time.Second), newJob("a", time.Second))
	})
}

func TestRegistry_DueJobs(t *testing.T) {
	clock := clockwork.NewFakeClockAt(t0)
	r := NewRegistry(clock)
	r.MustRegister(
		newJob("slow", 10*time.Second),
		newJob("fast", time.Second),
		newJob("medium", 5*time.Second),
	)

	t.Run("nothing due at registration time", func(t *testing.T) {
		assert.Empty(t, r.DueJobs(t0))
	})

	t.Run("first run one interval after registration", func(t *testing.T) {
		assert.Equal(t, []string{"fast"}, names(r.DueJobs(t0.Add(time.Second))))
		assert.Equal(t, []string{"fast", "medium"}, names(r.DueJobs(t0.Add(5*time.Second))))
	})

	t.Run("registration order is kept", func(t *testing.T) {
		assert.Equal(t, []string{"slow", "fast", "medium"}, names(r.DueJobs(t0.Add(10*time.Second))))
	})
}

func TestRegistry_MarkRan(t *testing.T) {
	r := NewRegistry(clockwork.NewFakeClockAt(t0))
	r.MustRegister(newJob("prices", 2*time.Second))

	tick := t0.Add(2 * time.Second)
	require.Len(t, r.DueJobs(tick), 1)

	r.MarkRan("prices", tick)

	assert.Empty(t, r.DueJobs(tick.Add(time.Second)))
	assert.Len(t, r.DueJobs(tick.Add(2*time.Second)), 1)
}

func TestRegistry_Reset(t *testing.T) {
	r := NewRegistry(clockwork.NewFakeClockAt(t0))
	r.MustRegister(newJob("daily", 24*time.Hour))

	require.NoError(t, r.Reset("daily"))

	_, ok := r.LastRun("daily")
	assert.False(t, ok)
	assert.Equal(t, []string{"daily"}, names(r.DueJobs(t0)), "absent entry is always due")

	err := r.Reset("missing")
	assert.True(t, errors.Is(err, ErrUnknownJob))
}

func TestRegistry_SnapshotRestore(t *testing.T) {
	r := NewRegistry(clockwork.NewFakeClockAt(t0))
	r.MustRegister(newJob("prices", time.Minute), newJob("balances", time.Hour))

	applied := r.Restore(map[string]time.Time{
		"prices":   t0.Add(30 * time.Second),
		"balances": t0.Add(-time.Hour),
		"retired":  t0.Add(time.Hour),
	})

	assert.Equal(t, 1, applied)

	snap := r.Snapshot()
	assert.Equal(t, t0.Add(30*time.Second), snap["prices"])
	assert.Equal(t, t0, snap["balances"], "restore never moves a clock backwards")
	_, known := snap["retired"]
	assert.False(t, known)
}

func TestRegistry_RestoreKeepsPendingReset(t *testing.T) {
	r := NewRegistry(clockwork.NewFakeClockAt(t0))
	r.MustRegister(newJob("prices", time.Minute), newJob("balances", time.Minute))
	require.NoError(t, r.Reset("prices"))

	// A handover restores clocks persisted by the previous leader
	applied := r.Restore(map[string]time.Time{
		"prices":   t0.Add(-10 * time.Second),
		"balances": t0.Add(10 * time.Second),
	})

	assert.Equal(t, 1, applied)
	assert.Equal(t, []string{"prices"}, names(r.DueJobs(t0)), "reset survives the restore")
	_, ok := r.LastRun("prices")
	assert.False(t, ok)
}

func TestRegistry_RestoreAppliesOnceResetJobHasRun(t *testing.T) {
	r := NewRegistry(clockwork.NewFakeClockAt(t0))
	r.MustRegister(newJob("prices", time.Minute))
	require.NoError(t, r.Reset("prices"))
	r.MarkRan("prices", t0)

	applied := r.Restore(map[string]time.Time{"prices": t0.Add(20 * time.Second)})

	assert.Equal(t, 1, applied)
	last, ok := r.LastRun("prices")
	require.True(t, ok)
	assert.Equal(t, t0.Add(20*time.Second), last)
}

func TestRegistry_ConcurrentReads(t *testing.T) {
	r := NewRegistry(nil)
	r.MustRegister(newJob("prices", time.Second), newJob("balances", time.Minute))

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				_ = r.Views()
				_ = r.DueJobs(time.Now())
				r.MarkRan("prices", time.Now())
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 2, r.Count())
	assert.Equal(t, []string{"prices", "balances"}, names(r.Jobs()))
}
