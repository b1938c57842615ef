package events

import (
	"encoding/json"
	"time"

	"github.com/rs/zerolog"
)

// Manager handles event emission and logging
type Manager struct {
	bus *Bus
	log zerolog.Logger
}

// NewManager creates a new event manager
func NewManager(bus *Bus, log zerolog.Logger) *Manager {
	return &Manager{
		bus: bus,
		log: log.With().Str("service", "events").Logger(),
	}
}

// Bus returns the underlying bus.
func (m *Manager) Bus() *Bus {
	return m.bus
}

// Emit emits an event to the bus and logs it at debug level
func (m *Manager) Emit(eventType EventType, module string, data map[string]interface{}) {
	m.bus.Emit(eventType, module, data)

	logEvent := m.log.Debug()
	if !logEvent.Enabled() {
		return
	}

	event := Event{
		Type:      eventType,
		Timestamp: time.Now(),
		Data:      data,
		Module:    module,
	}
	eventJSON, err := json.Marshal(event)
	if err != nil {
		m.log.Warn().Err(err).Str("event_type", string(eventType)).Msg("Failed to encode event for log")
		return
	}

	logEvent.
		Str("event_type", string(eventType)).
		Str("module", module).
		RawJSON("event", eventJSON).
		Msg("Event emitted")
}

// EmitError emits a failure event carrying the error text
func (m *Manager) EmitError(eventType EventType, module string, err error, context map[string]interface{}) {
	data := map[string]interface{}{
		"error": err.Error(),
	}
	for k, v := range context {
		data[k] = v
	}
	m.Emit(eventType, module, data)
}
