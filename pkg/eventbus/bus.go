// Package eventbus is the in-process seam between adapters: synchronous
// typed publish/subscribe with error-isolated delivery. Adapters never call
// one another directly; reactive behavior (pause-on-blocking-feedback,
// first-execution-activates, changelog-archives) rides on this bus.
package eventbus

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Event is the envelope delivered to handlers.
type Event struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Source    string    `json:"source"`
	Payload   any       `json:"payload"`
}

// Handler consumes one event. A returned error is logged, never propagated
// to the publisher; handlers needing durability persist via their own
// adapter calls.
type Handler func(ctx context.Context, evt Event) error

// Subscription is the opaque handle returned by Subscribe.
type Subscription struct {
	ID   string
	Type string
}

type entry struct {
	sub     Subscription
	handler Handler
}

// Bus is a synchronous in-process event bus. Within one Publish, handlers
// run in subscription registration order on the publisher's goroutine; no
// back-pressure, persistence, or retry.
type Bus struct {
	mu      sync.RWMutex
	entries []entry
	logger  *slog.Logger
}

// New creates an empty bus.
func New(logger *slog.Logger) *Bus {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bus{logger: logger}
}

// NewEvent stamps an event envelope with id and timestamp.
func NewEvent(evtType, source string, payload any) Event {
	return Event{
		ID:        uuid.NewString(),
		Type:      evtType,
		Timestamp: time.Now().UTC(),
		Source:    source,
		Payload:   payload,
	}
}

// Subscribe registers a handler for one event type (or Wildcard for all).
func (b *Bus) Subscribe(evtType string, handler Handler) Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()
	sub := Subscription{ID: uuid.NewString(), Type: evtType}
	b.entries = append(b.entries, entry{sub: sub, handler: handler})
	return sub
}

// Unsubscribe cancels a subscription by handle id.
func (b *Bus) Unsubscribe(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	kept := b.entries[:0]
	for _, e := range b.entries {
		if e.sub.ID != id {
			kept = append(kept, e)
		}
	}
	b.entries = kept
}

// ClearSubscriptions drops every subscription. Test teardown only.
func (b *Bus) ClearSubscriptions() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.entries = nil
}

// Publish dispatches evt synchronously to every matching subscription. A
// panicking or failing handler is logged and isolated; it never prevents
// delivery to the remaining handlers.
func (b *Bus) Publish(ctx context.Context, evt Event) {
	b.mu.RLock()
	matched := make([]entry, 0, len(b.entries))
	for _, e := range b.entries {
		if e.sub.Type == evt.Type || e.sub.Type == Wildcard {
			matched = append(matched, e)
		}
	}
	b.mu.RUnlock()

	for _, e := range matched {
		b.deliver(ctx, e, evt)
	}
}

func (b *Bus) deliver(ctx context.Context, e entry, evt Event) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("event handler panicked",
				"event", evt.Type, "subscription", e.sub.ID, "panic", r)
		}
	}()
	if err := e.handler(ctx, evt); err != nil {
		b.logger.Error("event handler failed",
			"event", evt.Type, "subscription", e.sub.ID, "error", err)
	}
}
