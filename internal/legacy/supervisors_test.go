package legacy

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aristath/heartbeat/internal/mode"
	"github.com/aristath/heartbeat/internal/work"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func countingJob(name string, every time.Duration, runs *int32) *work.JobType {
	return &work.JobType{
		ID:    name,
		Every: every,
		Execute: func(context.Context, *work.Tick) error {
			atomic.AddInt32(runs, 1)
			return nil
		},
	}
}

func TestSupervisors_SkippedUnderHeartbeat(t *testing.T) {
	var runs int32
	s := New(mode.NewArbiter(mode.Heartbeat), nil, "test", zerolog.Nop())

	results, err := s.StartAll([]work.Job{
		countingJob("prices", time.Second, &runs),
		countingJob("rebalance", time.Minute, &runs),
	})
	require.NoError(t, err)

	require.Len(t, results, 2)
	for _, r := range results {
		assert.True(t, r.Skipped)
		assert.Equal(t, "heartbeat mode active", r.Reason)
	}
	assert.Equal(t, 0, s.Entries())

	s.Run()
	s.Stop()
	assert.Equal(t, int32(0), atomic.LoadInt32(&runs))
}

func TestSupervisors_SchedulesUnderLegacy(t *testing.T) {
	var runs int32
	s := New(mode.NewArbiter(mode.Legacy), nil, "test", zerolog.Nop())

	result, err := s.Start(countingJob("prices", time.Second, &runs))
	require.NoError(t, err)
	assert.False(t, result.Skipped)
	assert.Equal(t, "prices", result.Feature)
	assert.Equal(t, 1, s.Entries())

	s.Run()
	defer s.Stop()

	require.Eventually(t, func() bool {
		return atomic.LoadInt32(&runs) > 0
	}, 5*time.Second, 50*time.Millisecond)
}

func TestSupervisors_DuplicateStart(t *testing.T) {
	var runs int32
	s := New(mode.NewArbiter(mode.Legacy), nil, "test", zerolog.Nop())

	_, err := s.Start(countingJob("prices", time.Second, &runs))
	require.NoError(t, err)

	_, err = s.Start(countingJob("prices", time.Second, &runs))
	assert.ErrorIs(t, err, work.ErrDuplicateJob)
	assert.Equal(t, 1, s.Entries())
}

func TestSupervisors_PanicDoesNotEscape(t *testing.T) {
	s := New(mode.NewArbiter(mode.Legacy), nil, "test", zerolog.Nop())
	job := &work.JobType{
		ID:    "boom",
		Every: time.Second,
		Execute: func(context.Context, *work.Tick) error {
			panic("boom")
		},
	}

	assert.NotPanics(t, func() { s.run(job, 1) })
}
