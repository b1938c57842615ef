// Package server provides the HTTP surface of the heartbeat: health, loop
// status, job clocks and the live event stream.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"github.com/aristath/heartbeat/internal/clients/marketstatus"
	"github.com/aristath/heartbeat/internal/events"
	"github.com/aristath/heartbeat/internal/heartbeat"
	"github.com/aristath/heartbeat/internal/lease"
	"github.com/aristath/heartbeat/internal/market"
	"github.com/aristath/heartbeat/internal/mode"
	"github.com/aristath/heartbeat/internal/work"
	"github.com/aristath/heartbeat/pkg/logger"
)

// LoopStatus is the part of the heartbeat loop the server reads.
type LoopStatus interface {
	Status() heartbeat.Status
}

// MarketFeed is the live market status feed, when one is configured.
type MarketFeed interface {
	IsConnected() bool
	Statuses() map[string]marketstatus.Status
}

// StoreCheck is a storage handle /health pings.
type StoreCheck interface {
	QuickCheck(ctx context.Context) error
	Path() string
}

// Config holds server configuration
type Config struct {
	Log      zerolog.Logger
	Port     int
	DevMode  bool
	Mode     *mode.Arbiter
	Loop     LoopStatus // nil in LEGACY mode
	Lock     *lease.Lock
	Registry *work.Registry
	Gate     *market.Gate
	Feed     MarketFeed // nil without MARKET_STATUS_WS_URL
	LeaseDB  StoreCheck // nil unless the SQLite backend is used
	Bus      *events.Bus
}

// Server represents the HTTP server
type Server struct {
	router *chi.Mux
	server *http.Server
	log    zerolog.Logger
	cfg    Config

	systemStats func() (float64, float64)
}

// New creates a new HTTP server
func New(cfg Config) *Server {
	s := &Server{
		router: chi.NewRouter(),
		log:    logger.Component(cfg.Log, "server"),
		cfg:    cfg,
	}
	s.systemStats = s.getSystemStats

	s.setupMiddleware(cfg.DevMode)
	s.setupRoutes()

	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return s
}

// setupMiddleware configures middleware
func (s *Server) setupMiddleware(devMode bool) {
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.loggingMiddleware)

	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	if !devMode {
		s.router.Use(middleware.Compress(5, "application/json"))
	}
}

// setupRoutes configures all routes
func (s *Server) setupRoutes() {
	s.router.Get("/health", s.handleHealth)

	s.router.Get("/api/heartbeat/status", s.handleStatus)
	if s.cfg.Bus != nil {
		s.router.Get("/api/heartbeat/events", NewEventsStreamHandler(s.cfg.Bus, s.log).ServeHTTP)
	}

	if s.cfg.Registry != nil {
		work.NewHandlers(s.cfg.Registry).RegisterRoutes(s.router)
	}
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start starts the HTTP server. It returns nil after Shutdown.
func (s *Server) Start() error {
	s.log.Info().Int("port", s.cfg.Port).Msg("Starting HTTP server")
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("Shutting down HTTP server")
	return s.server.Shutdown(ctx)
}

// loggingMiddleware logs HTTP requests
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		s.log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Int("bytes", ww.BytesWritten()).
			Dur("duration_ms", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("HTTP request")
	})
}
