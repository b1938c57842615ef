package work

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRouter(r *Registry) chi.Router {
	router := chi.NewRouter()
	NewHandlers(r).RegisterRoutes(router)
	return router
}

func TestHandlers_ListJobs(t *testing.T) {
	registry := NewRegistry(clockwork.NewFakeClockAt(t0))
	registry.MustRegister(newJob("prices", time.Second), newJob("balances", time.Minute))
	require.NoError(t, registry.Reset("balances"))

	req := httptest.NewRequest(http.MethodGet, "/api/heartbeat/jobs/", nil)
	rec := httptest.NewRecorder()
	newTestRouter(registry).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var response []JobView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &response))
	require.Len(t, response, 2)

	assert.Equal(t, "prices", response[0].Name)
	assert.Equal(t, 1.0, response[0].IntervalSeconds)
	require.NotNil(t, response[0].LastRun)
	assert.True(t, response[0].LastRun.Equal(t0))
	assert.True(t, response[0].NextRun.Equal(t0.Add(time.Second)))

	assert.Equal(t, "balances", response[1].Name)
	assert.Nil(t, response[1].LastRun)
	assert.Nil(t, response[1].NextRun)
}

func TestHandlers_ResetJob(t *testing.T) {
	registry := NewRegistry(clockwork.NewFakeClockAt(t0))
	registry.MustRegister(newJob("prices", time.Hour))
	router := newTestRouter(registry)

	t.Run("known job", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/heartbeat/jobs/prices/reset", nil)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)

		var response map[string]string
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &response))
		assert.Equal(t, "reset", response["status"])
		assert.Equal(t, "prices", response["job"])

		_, ok := registry.LastRun("prices")
		assert.False(t, ok)
	})

	t.Run("unknown job", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/heartbeat/jobs/missing/reset", nil)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}
