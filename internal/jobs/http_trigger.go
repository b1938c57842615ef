// Package jobs holds the job adapters shipped with the runner. Business logic
// lives in collaborators; these jobs only reach out to them.
package jobs

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/aristath/heartbeat/internal/work"
	"github.com/rs/zerolog"
)

const defaultTriggerTimeout = 10 * time.Second

// ErrUnexpectedStatus is returned when a collaborator answers outside 2xx.
var ErrUnexpectedStatus = errors.New("unexpected status code")

// TickEnvelope is the JSON body posted to collaborators.
type TickEnvelope struct {
	Job            string    `json:"job"`
	Tick           int64     `json:"tick"`
	Time           time.Time `json:"time"`
	CadenceSeconds float64   `json:"cadence_seconds"`
	MarketActive   bool      `json:"market_active"`
	Holder         string    `json:"holder"`
}

// HTTPTrigger posts the tick to a collaborator endpoint.
type HTTPTrigger struct {
	name     string
	interval time.Duration
	url      string
	client   *http.Client
	log      zerolog.Logger
}

// NewHTTPTrigger creates an HTTP trigger job. A zero timeout uses 10s.
func NewHTTPTrigger(name, url string, interval, timeout time.Duration, log zerolog.Logger) *HTTPTrigger {
	if timeout <= 0 {
		timeout = defaultTriggerTimeout
	}
	return &HTTPTrigger{
		name:     name,
		interval: interval,
		url:      url,
		client:   &http.Client{Timeout: timeout},
		log:      log.With().Str("job", name).Logger(),
	}
}

// Name implements work.Job.
func (j *HTTPTrigger) Name() string {
	return j.name
}

// Interval implements work.Job.
func (j *HTTPTrigger) Interval() time.Duration {
	return j.interval
}

// Run implements work.Job.
func (j *HTTPTrigger) Run(ctx context.Context, tick *work.Tick) error {
	body, err := json.Marshal(TickEnvelope{
		Job:            j.name,
		Tick:           tick.Number,
		Time:           tick.Time,
		CadenceSeconds: tick.Cadence.Seconds(),
		MarketActive:   tick.MarketActive,
		Holder:         tick.Holder,
	})
	if err != nil {
		return fmt.Errorf("failed to encode tick: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, j.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Heartbeat-Holder", tick.Holder)

	resp, err := j.client.Do(req)
	if err != nil {
		return fmt.Errorf("request to %s failed: %w", j.url, err)
	}
	defer resp.Body.Close()

	// Drain so the connection can be reused
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%w: %s returned %d", ErrUnexpectedStatus, j.url, resp.StatusCode)
	}

	j.log.Debug().Int("status", resp.StatusCode).Int64("tick", tick.Number).Msg("Trigger delivered")
	return nil
}
