package di

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/heartbeat/internal/config"
	"github.com/aristath/heartbeat/internal/database"
	"github.com/aristath/heartbeat/internal/lease"
)

const mongoConnectTimeout = 10 * time.Second

// InitializeLeaseStore opens the lease backend selected by the configuration.
// With the lock disabled no store is opened.
func InitializeLeaseStore(container *Container, log zerolog.Logger) error {
	cfg := container.Config
	if !cfg.Lock.Enabled {
		log.Warn().Msg("Leader lock disabled, this process will always lead")
		return nil
	}

	switch cfg.Lock.Backend {
	case config.BackendSQLite:
		if err := cfg.EnsureDataDir(); err != nil {
			return err
		}
		db, err := database.New(database.Config{
			Path:    cfg.LeaseDBPath(),
			Profile: database.ProfileLease,
			Name:    "lease",
		})
		if err != nil {
			return fmt.Errorf("failed to open lease database: %w", err)
		}
		if err := db.Migrate(); err != nil {
			db.Close()
			return fmt.Errorf("failed to migrate lease database: %w", err)
		}
		container.LeaseDB = db
		container.LeaseStore = lease.NewSQLiteStore(db.Conn(), container.Clock)

	case config.BackendMongo:
		ctx, cancel := context.WithTimeout(context.Background(), mongoConnectTimeout)
		defer cancel()
		store, err := lease.ConnectMongo(ctx, cfg.MongoURI, cfg.MongoDatabase, container.Clock)
		if err != nil {
			return fmt.Errorf("failed to connect lease store: %w", err)
		}
		container.LeaseStore = store

	case config.BackendMemory:
		log.Warn().Msg("In-memory lease store only excludes loops within this process")
		container.LeaseStore = lease.NewMemoryStore(container.Clock)

	default:
		return &config.ConfigurationError{
			Field: "HEARTBEAT_LOCK_BACKEND",
			Err:   fmt.Errorf("unknown backend %q", cfg.Lock.Backend),
		}
	}

	log.Info().Str("backend", cfg.Lock.Backend).Msg("Lease store ready")
	return nil
}
