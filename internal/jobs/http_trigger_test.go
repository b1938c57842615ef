package jobs

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/aristath/heartbeat/internal/work"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleTick() *work.Tick {
	return &work.Tick{
		Number:       42,
		Time:         time.Date(2026, 3, 2, 14, 30, 0, 0, time.UTC),
		Cadence:      time.Second,
		MarketActive: true,
		Holder:       "host-1-abcd1234",
	}
}

func TestHTTPTrigger_PostsEnvelope(t *testing.T) {
	var got TickEnvelope
	var contentType, holder string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		contentType = r.Header.Get("Content-Type")
		holder = r.Header.Get("X-Heartbeat-Holder")
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	job := NewHTTPTrigger("prices:sync", srv.URL, time.Second, 0, zerolog.Nop())
	require.NoError(t, job.Run(context.Background(), sampleTick()))

	assert.Equal(t, "application/json", contentType)
	assert.Equal(t, "host-1-abcd1234", holder)
	assert.Equal(t, "prices:sync", got.Job)
	assert.Equal(t, int64(42), got.Tick)
	assert.True(t, got.Time.Equal(sampleTick().Time))
	assert.Equal(t, 1.0, got.CadenceSeconds)
	assert.True(t, got.MarketActive)
}

func TestHTTPTrigger_Non2xxIsAnError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down for maintenance", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	job := NewHTTPTrigger("prices:sync", srv.URL, time.Second, 0, zerolog.Nop())
	err := job.Run(context.Background(), sampleTick())

	assert.ErrorIs(t, err, ErrUnexpectedStatus)
	assert.Contains(t, err.Error(), "503")
}

func TestHTTPTrigger_Timeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	job := NewHTTPTrigger("slow", srv.URL, time.Second, 50*time.Millisecond, zerolog.Nop())

	start := time.Now()
	err := job.Run(context.Background(), sampleTick())

	assert.Error(t, err)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestHTTPTrigger_Metadata(t *testing.T) {
	job := NewHTTPTrigger("prices:sync", "http://localhost", 5*time.Second, 0, zerolog.Nop())

	assert.Equal(t, "prices:sync", job.Name())
	assert.Equal(t, 5*time.Second, job.Interval())
	assert.Equal(t, defaultTriggerTimeout, job.client.Timeout)
}
