// Package events provides the in-process event bus shared by the heartbeat loop
// and its jobs.
package events

import "time"

// EventType represents different event types
type EventType string

const (
	HeartbeatTick        EventType = "HEARTBEAT_TICK"
	JobStarted           EventType = "JOB_STARTED"
	JobCompleted         EventType = "JOB_COMPLETED"
	JobFailed            EventType = "JOB_FAILED"
	LeadershipAcquired   EventType = "LEADERSHIP_ACQUIRED"
	LeadershipLost       EventType = "LEADERSHIP_LOST"
	CadenceChanged       EventType = "CADENCE_CHANGED"
	MarketsStatusChanged EventType = "MARKETS_STATUS_CHANGED"
)

// AllTypes lists every event type the heartbeat emits.
var AllTypes = []EventType{
	HeartbeatTick,
	JobStarted,
	JobCompleted,
	JobFailed,
	LeadershipAcquired,
	LeadershipLost,
	CadenceChanged,
	MarketsStatusChanged,
}

// Event represents a system event
type Event struct {
	Type      EventType              `json:"type"`
	Timestamp time.Time              `json:"timestamp"`
	Data      map[string]interface{} `json:"data"`
	Module    string                 `json:"module"`
}
