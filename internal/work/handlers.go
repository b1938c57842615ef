package work

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
)

// Handlers provides HTTP handlers for the job registry
type Handlers struct {
	registry *Registry
}

// NewHandlers creates new HTTP handlers for the job registry
func NewHandlers(registry *Registry) *Handlers {
	return &Handlers{
		registry: registry,
	}
}

// RegisterRoutes registers HTTP routes for job inspection
func (h *Handlers) RegisterRoutes(r chi.Router) {
	r.Route("/api/heartbeat/jobs", func(r chi.Router) {
		r.Get("/", h.ListJobs)
		r.Post("/{name}/reset", h.ResetJob)
	})
}

// JobView is the JSON shape of one registered job.
type JobView struct {
	Name            string     `json:"name"`
	IntervalSeconds float64    `json:"interval_seconds"`
	LastRun         *time.Time `json:"last_run,omitempty"`
	NextRun         *time.Time `json:"next_run,omitempty"`
}

// Views returns the registered jobs with their clocks, in registration order.
func (r *Registry) Views() []JobView {
	jobs := r.Jobs()

	views := make([]JobView, 0, len(jobs))
	for _, job := range jobs {
		view := JobView{
			Name:            job.Name(),
			IntervalSeconds: job.Interval().Seconds(),
		}
		if lastRun, ok := r.LastRun(job.Name()); ok {
			next := lastRun.Add(job.Interval())
			view.LastRun = &lastRun
			view.NextRun = &next
		}
		views = append(views, view)
	}
	return views
}

// ListJobs returns all registered jobs
func (h *Handlers) ListJobs(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(h.registry.Views())
}

// ResetJob clears a job's clock so the loop runs it on its next tick. The job
// is not executed here.
func (h *Handlers) ResetJob(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	if err := h.registry.Reset(name); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, ErrUnknownJob) {
			status = http.StatusNotFound
		}
		http.Error(w, err.Error(), status)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"status": "reset",
		"job":    name,
	})
}
