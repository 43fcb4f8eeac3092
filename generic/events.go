/*
events.go - Post-commit event fan-out

PURPOSE:
  Side effects that follow a successful write (publishing to Kafka, audit
  logging, future loyalty or notification hooks) subscribe here instead of
  being called inline. The ledger depends only on the bus, never on the
  collaborators behind it.

DELIVERY:
  Publish runs subscribers synchronously, in subscription order, after the
  write has committed. A failing subscriber is reported to the error hook
  and never affects the write or the other subscribers.
*/
package generic

import (
	"context"
	"sync"
)

// Event is anything published on the bus.
type Event interface {
	EventName() string
}

// EntryAppended is published after an entry has been committed.
type EntryAppended struct {
	Entry Entry
}

func (EntryAppended) EventName() string { return "ledger.entry_appended" }

// Subscriber handles one event. Returned errors go to the bus error hook.
type Subscriber func(ctx context.Context, event Event) error

// EventBus is an in-process publish/subscribe hub.
type EventBus struct {
	mu          sync.RWMutex
	subscribers []Subscriber
	onError     func(event Event, err error)
}

func NewEventBus() *EventBus {
	return &EventBus{}
}

// Subscribe registers a subscriber for all events.
func (b *EventBus) Subscribe(s Subscriber) {
	if s == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers = append(b.subscribers, s)
}

// OnError sets the hook receiving subscriber failures.
func (b *EventBus) OnError(fn func(event Event, err error)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.onError = fn
}

// Publish delivers event to every subscriber.
func (b *EventBus) Publish(ctx context.Context, event Event) {
	b.mu.RLock()
	subs := append([]Subscriber(nil), b.subscribers...)
	onError := b.onError
	b.mu.RUnlock()

	for _, s := range subs {
		if err := s(ctx, event); err != nil && onError != nil {
			onError(event, err)
		}
	}
}
