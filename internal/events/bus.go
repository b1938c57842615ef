package events

import (
	"sync"
	"time"
)

// Handler receives events published on the bus.
type Handler func(event *Event)

// Bus fans events out to subscribers synchronously. Handlers must not block;
// slow consumers buffer on their own side (see the SSE stream).
type Bus struct {
	handlers map[EventType][]subscription
	nextID   int
	now      func() time.Time
	mu       sync.RWMutex
}

type subscription struct {
	id      int
	handler Handler
}

// NewBus creates an empty event bus.
func NewBus() *Bus {
	return &Bus{
		handlers: make(map[EventType][]subscription),
		now:      time.Now,
	}
}

// Subscribe registers a handler for an event type and returns a function that
// removes it again.
func (b *Bus) Subscribe(eventType EventType, handler Handler) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	id := b.nextID
	b.handlers[eventType] = append(b.handlers[eventType], subscription{id: id, handler: handler})

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()

		subs := b.handlers[eventType]
		for i, s := range subs {
			if s.id == id {
				b.handlers[eventType] = append(subs[:i:i], subs[i+1:]...)
				return
			}
		}
	}
}

// Emit publishes an event to all handlers of its type.
func (b *Bus) Emit(eventType EventType, module string, data map[string]interface{}) {
	event := &Event{
		Type:      eventType,
		Timestamp: b.now(),
		Data:      data,
		Module:    module,
	}

	b.mu.RLock()
	subs := make([]subscription, len(b.handlers[eventType]))
	copy(subs, b.handlers[eventType])
	b.mu.RUnlock()

	for _, s := range subs {
		s.handler(event)
	}
}

// SubscriberCount returns the number of handlers for an event type.
func (b *Bus) SubscriberCount(eventType EventType) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.handlers[eventType])
}
