package di

import (
	"fmt"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"github.com/aristath/heartbeat/internal/config"
)

// Wire initializes all dependencies and returns a fully configured container.
// Order of operations:
// 1. Open the lease store
// 2. Create services (bus, market gate, lock, registry, loop)
// 3. Register jobs
// A nil clock uses the real clock.
func Wire(cfg *config.Config, holderID string, clock clockwork.Clock, log zerolog.Logger) (*Container, error) {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	container := &Container{
		Config: cfg,
		Clock:  clock,
	}

	if err := InitializeLeaseStore(container, log); err != nil {
		return nil, fmt.Errorf("failed to initialize lease store: %w", err)
	}

	InitializeServices(container, holderID, log)

	if err := RegisterJobs(container, log); err != nil {
		container.Close()
		return nil, fmt.Errorf("failed to register jobs: %w", err)
	}

	log.Info().
		Str("mode", cfg.Mode.String()).
		Str("holder", holderID).
		Msg("Dependency injection wiring completed successfully")

	return container, nil
}
