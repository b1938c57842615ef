package work

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type alwaysDue struct {
	JobType
}

func (a *alwaysDue) ShouldRun(now, lastRun time.Time) bool {
	return true
}

func TestShouldRun_Default(t *testing.T) {
	base := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	job := &JobType{ID: "prices", Every: 10 * time.Second}

	tests := []struct {
		name    string
		now     time.Time
		lastRun time.Time
		want    bool
	}{
		{"never run", base, time.Time{}, true},
		{"interval not elapsed", base.Add(9 * time.Second), base, false},
		{"interval exactly elapsed", base.Add(10 * time.Second), base, true},
		{"interval exceeded", base.Add(time.Minute), base, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ShouldRun(job, tt.now, tt.lastRun))
		})
	}
}

func TestShouldRun_SchedulerOverride(t *testing.T) {
	base := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	job := &alwaysDue{JobType{ID: "eager", Every: time.Hour}}

	assert.True(t, ShouldRun(job, base.Add(time.Second), base))
}

func TestJobType_Run(t *testing.T) {
	t.Run("calls execute with the tick", func(t *testing.T) {
		var got *Tick
		job := &JobType{
			ID:    "vwap",
			Every: time.Second,
			Execute: func(ctx context.Context, tick *Tick) error {
				got = tick
				return errors.New("failed")
			},
		}
		tick := &Tick{Number: 3}

		err := job.Run(context.Background(), tick)

		assert.EqualError(t, err, "failed")
		require.NotNil(t, got)
		assert.Equal(t, int64(3), got.Number)
		assert.Equal(t, "vwap", job.Name())
		assert.Equal(t, time.Second, job.Interval())
	})

	t.Run("nil execute is a no-op", func(t *testing.T) {
		job := &JobType{ID: "noop", Every: time.Second}
		assert.NoError(t, job.Run(context.Background(), &Tick{}))
	})
}
