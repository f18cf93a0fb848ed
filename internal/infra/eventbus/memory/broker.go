// Package memory provides an in-memory event bus. It offers a lightweight,
// non-persistent broker for tests and single-process deployments where
// Kafka is not configured.
package memory

import (
	"context"
	"errors"
	"slices"
	"sync"

	"github.com/equinor/flotilla-sub005/internal/domain/events"
)

var (
	_ events.DomainEventPublisher  = (*Broker)(nil)
	_ events.DomainEventSubscriber = (*Broker)(nil)
)

type subscription struct {
	id      uint64
	types   []events.EventType
	handler events.HandlerFunc
}

func (s subscription) wants(t events.EventType) bool {
	return len(s.types) == 0 || slices.Contains(s.types, t)
}

// Broker delivers published events synchronously to every subscriber whose
// type filter matches. Payloads are passed by value without serialization.
type Broker struct {
	mu     sync.RWMutex
	nextID uint64
	subs   []subscription
}

// NewBroker creates a broker with no subscribers.
func NewBroker() *Broker { return &Broker{} }

// Subscribe registers handler until ctx is done. An empty eventTypes
// receives every event.
func (b *Broker) Subscribe(ctx context.Context, eventTypes []events.EventType, handler events.HandlerFunc) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if handler == nil {
		return errors.New("handler cannot be nil")
	}

	b.mu.Lock()
	b.nextID++
	id := b.nextID
	b.subs = append(b.subs, subscription{id: id, types: slices.Clone(eventTypes), handler: handler})
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.mu.Lock()
		defer b.mu.Unlock()
		b.subs = slices.DeleteFunc(b.subs, func(s subscription) bool { return s.id == id })
	}()

	return nil
}

// PublishDomainEvent applies opts to the event and hands it to the matching
// subscribers in registration order, stopping at the first error.
func (b *Broker) PublishDomainEvent(ctx context.Context, evt events.DomainEvent, opts ...events.PublishOption) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	params := events.ApplyOptions(evt, opts)
	evt.Key, evt.Headers = params.Key, params.Headers

	// Copy so handlers run without the lock and may subscribe themselves.
	b.mu.RLock()
	subs := slices.Clone(b.subs)
	b.mu.RUnlock()

	for _, s := range subs {
		if !s.wants(evt.Type) {
			continue
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := s.handler(ctx, evt); err != nil {
			return err
		}
	}
	return nil
}

// SubscriberCount reports the number of live subscriptions.
func (b *Broker) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
