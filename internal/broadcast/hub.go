// Package broadcast fans control-process events out to every open
// presentation window.
package broadcast

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"
)

const (
	EventAuth         = "auth"
	EventNotification = "notification"
)

// Event is a named message delivered to every subscriber.
type Event struct {
	Name    string `json:"event"`
	Payload any    `json:"payload"`
}

// AuthPayload accompanies EventAuth.
type AuthPayload struct {
	IsAuthenticated bool `json:"isAuthenticated"`
}

// NotificationPayload accompanies EventNotification.
type NotificationPayload struct {
	Level   string `json:"level"`
	Message string `json:"message"`
}

// AuthEvent builds the event sent on login, logout and rejected credentials.
func AuthEvent(authenticated bool) Event {
	return Event{Name: EventAuth, Payload: AuthPayload{IsAuthenticated: authenticated}}
}

// NotificationEvent builds a user-facing notification.
func NotificationEvent(level, message string) Event {
	return Event{Name: EventNotification, Payload: NotificationPayload{Level: level, Message: message}}
}

// Hub delivers events to subscribers. Delivery never blocks the sender: a
// subscriber whose buffer is full misses the event.
type Hub struct {
	buffer int

	mu          sync.RWMutex
	next        int
	subscribers map[int]chan Event
}

// NewHub creates a hub whose subscriptions buffer up to buffer events.
func NewHub(buffer int) *Hub {
	if buffer < 1 {
		buffer = 1
	}
	return &Hub{
		buffer:      buffer,
		subscribers: map[int]chan Event{},
	}
}

// Subscribe registers a window. The returned function unsubscribes and closes
// the channel; it is safe to call more than once.
func (h *Hub) Subscribe() (<-chan Event, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	id := h.next
	h.next++
	ch := make(chan Event, h.buffer)
	h.subscribers[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			delete(h.subscribers, id)
			close(ch)
		})
	}
}

// Broadcast sends ev to every subscriber and returns how many received it.
func (h *Hub) Broadcast(ctx context.Context, ev Event) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	delivered := 0
	for id, ch := range h.subscribers {
		select {
		case ch <- ev:
			delivered++
		default:
			log.Ctx(ctx).Warn().
				Int("subscriber", id).
				Str("event", ev.Name).
				Msg("broadcast: subscriber buffer full, event dropped")
		}
	}

	log.Ctx(ctx).Debug().
		Str("event", ev.Name).
		Int("delivered", delivered).
		Msg("broadcast: sent")

	return delivered
}

// Notify broadcasts a notification event. It lets the hub serve as the
// user-facing error reporter.
func (h *Hub) Notify(ctx context.Context, level, message string) {
	h.Broadcast(ctx, NotificationEvent(level, message))
}

// Subscribers returns the number of open subscriptions.
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers)
}
