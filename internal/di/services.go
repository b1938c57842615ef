package di

import (
	"github.com/rs/zerolog"

	"github.com/aristath/heartbeat/internal/clients/marketstatus"
	"github.com/aristath/heartbeat/internal/events"
	"github.com/aristath/heartbeat/internal/heartbeat"
	"github.com/aristath/heartbeat/internal/lease"
	"github.com/aristath/heartbeat/internal/legacy"
	"github.com/aristath/heartbeat/internal/market"
	"github.com/aristath/heartbeat/internal/mode"
	"github.com/aristath/heartbeat/internal/work"
)

// InitializeServices creates the bus, market sources, lock, registry, loop and
// legacy supervisors. The lease store must already be open.
func InitializeServices(container *Container, holderID string, log zerolog.Logger) {
	cfg := container.Config

	container.EventBus = events.NewBus()
	container.EventManager = events.NewManager(container.EventBus, log)
	container.Arbiter = mode.NewArbiter(cfg.Mode)

	// Market sources: live feed first, calendar as fallback
	container.Calendar = market.NewCalendar(market.DefaultExchanges())
	sources := make([]market.Source, 0, 2)
	if cfg.MarketStatusWSURL != "" {
		container.MarketFeed = marketstatus.New(marketstatus.Config{
			URL:   cfg.MarketStatusWSURL,
			Clock: container.Clock,
		}, container.EventBus, log)
		sources = append(sources, container.MarketFeed)
	}
	sources = append(sources, container.Calendar)
	container.Gate = market.NewGate(log, sources...)

	if container.LeaseStore != nil {
		container.Lock = lease.NewLock(container.LeaseStore, cfg.Lock.Key, holderID, cfg.Lock.TTL)
	} else {
		container.Lock = lease.Disabled(holderID)
	}

	container.Registry = work.NewRegistry(container.Clock)

	container.Loop = heartbeat.New(heartbeat.Config{
		FastCadence:    cfg.FastCadence,
		SlowCadence:    cfg.SlowCadence,
		RenewInterval:  cfg.Lock.RenewInterval,
		AcquireBackoff: cfg.Lock.AcquireBackoff,
		JobTimeout:     cfg.JobTimeout,
		StartupTimeout: cfg.StartupTimeout,
	}, container.Registry, container.Lock, container.Gate, container.Arbiter, container.EventManager, container.Clock, log)

	container.Supervisors = legacy.New(container.Arbiter, container.EventBus, holderID, log)
}
