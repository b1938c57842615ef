/**
 * Package di provides dependency injection wiring and initialization.
 *
 * The Container holds every long-lived component of a heartbeat deployment.
 * It is created by Wire() and handed to the command that runs it.
 */
package di

import (
	"github.com/jonboulle/clockwork"

	"github.com/aristath/heartbeat/internal/clients/marketstatus"
	"github.com/aristath/heartbeat/internal/config"
	"github.com/aristath/heartbeat/internal/database"
	"github.com/aristath/heartbeat/internal/events"
	"github.com/aristath/heartbeat/internal/heartbeat"
	"github.com/aristath/heartbeat/internal/lease"
	"github.com/aristath/heartbeat/internal/legacy"
	"github.com/aristath/heartbeat/internal/market"
	"github.com/aristath/heartbeat/internal/mode"
	"github.com/aristath/heartbeat/internal/work"
)

// Container holds all dependencies for the application.
type Container struct {
	Config *config.Config
	Clock  clockwork.Clock

	// Storage (LeaseDB is nil unless the SQLite backend is used)
	LeaseDB    *database.DB
	LeaseStore lease.Store
	Lock       *lease.Lock

	// Events
	EventBus     *events.Bus
	EventManager *events.Manager

	// Market state
	MarketFeed *marketstatus.Client // nil when MARKET_STATUS_WS_URL is unset
	Calendar   *market.Calendar
	Gate       *market.Gate

	// Scheduling
	Arbiter     *mode.Arbiter
	Registry    *work.Registry
	Jobs        []work.Job
	Loop        *heartbeat.Loop
	Supervisors *legacy.Supervisors
}

// Close releases storage handles.
func (c *Container) Close() error {
	var firstErr error
	if c.LeaseStore != nil {
		if err := c.LeaseStore.Close(); err != nil {
			firstErr = err
		}
	}
	if c.LeaseDB != nil {
		if err := c.LeaseDB.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
