package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"runtime"
	"sort"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/aristath/heartbeat/internal/clients/marketstatus"
	"github.com/aristath/heartbeat/internal/events"
	"github.com/aristath/heartbeat/internal/heartbeat"
	"github.com/aristath/heartbeat/internal/lease"
	"github.com/aristath/heartbeat/internal/work"
)

// StatusResponse is the body of GET /api/heartbeat/status.
type StatusResponse struct {
	Mode   string            `json:"mode"`
	Loop   *heartbeat.Status `json:"loop,omitempty"`
	Lease  *lease.Record     `json:"lease"`
	Jobs   []work.JobView    `json:"jobs"`
	Market MarketStatus      `json:"market"`
	Events map[string]int    `json:"event_subscribers,omitempty"`
	System SystemStatus      `json:"system"`
}

// MarketStatus reports which market source is answering and, with a live
// feed, its connection and cached exchanges.
type MarketStatus struct {
	Source        string                `json:"source"`
	FeedConnected *bool                 `json:"feed_connected,omitempty"`
	Markets       []marketstatus.Status `json:"markets,omitempty"`
}

// SystemStatus is host load as seen by this process.
type SystemStatus struct {
	CPUPercent    float64 `json:"cpu_percent"`
	MemoryPercent float64 `json:"memory_percent"`
	Goroutines    int     `json:"goroutines"`
}

const healthCheckTimeout = 2 * time.Second

// handleHealth handles health check requests
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	response := map[string]interface{}{
		"status":  "healthy",
		"service": "heartbeat",
	}
	if s.cfg.Mode != nil {
		response["mode"] = s.cfg.Mode.CurrentMode().String()
	}

	code := http.StatusOK
	if s.cfg.LeaseDB != nil {
		ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
		defer cancel()

		db := map[string]interface{}{"path": s.cfg.LeaseDB.Path(), "status": "ok"}
		if err := s.cfg.LeaseDB.QuickCheck(ctx); err != nil {
			s.log.Warn().Err(err).Msg("Lease database health check failed")
			db["status"] = "unreachable"
			response["status"] = "degraded"
			code = http.StatusServiceUnavailable
		}
		response["lease_db"] = db
	}

	s.writeJSON(w, code, response)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	response := StatusResponse{
		Jobs: []work.JobView{},
	}
	if s.cfg.Mode != nil {
		response.Mode = s.cfg.Mode.CurrentMode().String()
	}
	if s.cfg.Loop != nil {
		status := s.cfg.Loop.Status()
		response.Loop = &status
	}
	if s.cfg.Registry != nil {
		response.Jobs = s.cfg.Registry.Views()
	}
	if s.cfg.Gate != nil {
		response.Market.Source = s.cfg.Gate.Source()
	}
	if s.cfg.Feed != nil {
		connected := s.cfg.Feed.IsConnected()
		response.Market.FeedConnected = &connected
		response.Market.Markets = sortedStatuses(s.cfg.Feed.Statuses())
	}
	if s.cfg.Bus != nil {
		response.Events = make(map[string]int, len(events.AllTypes))
		for _, eventType := range events.AllTypes {
			response.Events[string(eventType)] = s.cfg.Bus.SubscriberCount(eventType)
		}
	}

	if s.cfg.Lock != nil && s.cfg.Lock.Enabled() {
		record, err := s.cfg.Lock.Current(r.Context())
		switch {
		case err == nil:
			response.Lease = record
		case errors.Is(err, lease.ErrNotFound):
		default:
			s.log.Warn().Err(err).Msg("Failed to read lease record")
		}
	}

	cpuPercent, memPercent := s.systemStats()
	response.System = SystemStatus{
		CPUPercent:    cpuPercent,
		MemoryPercent: memPercent,
		Goroutines:    runtime.NumGoroutine(),
	}

	s.writeJSON(w, http.StatusOK, response)
}

func sortedStatuses(byCode map[string]marketstatus.Status) []marketstatus.Status {
	statuses := make([]marketstatus.Status, 0, len(byCode))
	for _, status := range byCode {
		statuses = append(statuses, status)
	}
	sort.Slice(statuses, func(i, j int) bool { return statuses[i].Code < statuses[j].Code })
	return statuses
}

// getSystemStats samples CPU over 100ms so the endpoint stays responsive.
func (s *Server) getSystemStats() (float64, float64) {
	cpuPercent, err := cpu.Percent(100*time.Millisecond, false)
	if err != nil {
		s.log.Warn().Err(err).Msg("Failed to get CPU percentage")
		cpuPercent = []float64{0}
	}

	memStat, err := mem.VirtualMemory()
	if err != nil {
		s.log.Warn().Err(err).Msg("Failed to get memory statistics")
		return 0, 0
	}

	cpuAvg := 0.0
	if len(cpuPercent) > 0 {
		cpuAvg = cpuPercent[0]
	}

	return cpuAvg, memStat.UsedPercent
}

// writeJSON writes a JSON response
func (s *Server) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}
