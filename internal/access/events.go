package access

import (
	"sync"
	"time"

	"github.com/medicore/hms-access/pkg/types"
)

// EventType names an access-control event published on the bus.
type EventType string

const (
	EventOverrideActivated   EventType = "override_activated"
	EventOverrideDeactivated EventType = "override_deactivated"
	EventOverrideExpired     EventType = "override_expired"
	EventSessionEnded        EventType = "session_ended"
)

// Event is a typed notification of an override lifecycle transition or a
// session teardown. UI-facing consumers (countdown banners, navigation)
// subscribe instead of polling the controller.
type Event struct {
	Type  EventType
	State types.OverrideState
	Actor string
	At    time.Time
}

// Bus is a small in-process pub/sub for access-control events. Publish
// never blocks: a subscriber that falls behind misses events rather than
// stalling the controller.
type Bus struct {
	mu   sync.RWMutex
	next int
	subs map[int]chan Event
}

// NewBus creates an event bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[int]chan Event)}
}

// Subscribe registers a subscriber and returns its channel together with
// an unsubscribe function.
func (b *Bus) Subscribe() (<-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.next
	b.next++
	ch := make(chan Event, 8)
	b.subs[id] = ch

	return ch, func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if sub, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(sub)
		}
	}
}

// SessionEnded publishes the session teardown signal. Implements the
// session store's event sink so banners and navigation reset without
// polling.
func (b *Bus) SessionEnded(userID string) {
	b.Publish(Event{Type: EventSessionEnded, Actor: userID, At: time.Now()})
}

// Publish delivers an event to every subscriber without blocking.
func (b *Bus) Publish(event Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, ch := range b.subs {
		select {
		case ch <- event:
		default:
		}
	}
}
