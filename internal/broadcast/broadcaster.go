package broadcast

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/pscheid92/worldsync/internal/adapter/metrics"
	"github.com/pscheid92/worldsync/internal/domain"
	"github.com/pscheid92/worldsync/internal/protocol"
)

// ErrBroadcasterClosed is returned when registering after Close.
var ErrBroadcasterClosed = errors.New("broadcaster closed")

// Broadcaster maintains the live subscriber set and fans messages out to it.
type Broadcaster struct {
	// publishMutex serializes fan-out so all subscribers see one order.
	publishMutex sync.Mutex

	mu          sync.RWMutex
	subscribers map[uuid.UUID]*Subscriber
	closed      bool

	metrics *metrics.BroadcastMetrics
}

// NewBroadcaster creates a broadcaster with no subscribers. m may be nil.
func NewBroadcaster(m *metrics.BroadcastMetrics) *Broadcaster {
	return &Broadcaster{
		subscribers: make(map[uuid.UUID]*Subscriber),
		metrics:     m,
	}
}

// Register adds sub to the live set.
func (b *Broadcaster) Register(sub *Subscriber) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.registerLocked(sub)
}

// Subscribe creates a subscriber seeded with the current state of source
// and registers it. The snapshot is taken under the registry lock, so no
// message published concurrently falls between the seed and registration.
func (b *Broadcaster) Subscribe(source domain.Snapshotter) (*Subscriber, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, ErrBroadcasterClosed
	}

	seed, err := protocol.SeedMessages(source.Snapshot())
	if err != nil {
		slog.Warn("Seeding subscriber skipped entities", "error", err)
	}

	sub := NewSubscriber(seed)
	if err := b.registerLocked(sub); err != nil {
		return nil, err
	}
	return sub, nil
}

func (b *Broadcaster) registerLocked(sub *Subscriber) error {
	if b.closed {
		return ErrBroadcasterClosed
	}
	b.subscribers[sub.ID()] = sub

	if b.metrics != nil {
		b.metrics.Subscribers.Set(float64(len(b.subscribers)))
	}
	slog.Debug("Subscriber registered", "subscriber_id", sub.ID().String(), "total_subscribers", len(b.subscribers))
	return nil
}

// Unregister removes sub from the live set. It reports whether sub was
// registered; removing an unknown subscriber is a no-op.
func (b *Broadcaster) Unregister(sub *Subscriber) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, exists := b.subscribers[sub.ID()]; !exists {
		return false
	}
	delete(b.subscribers, sub.ID())

	if b.metrics != nil {
		b.metrics.Subscribers.Set(float64(len(b.subscribers)))
	}
	slog.Debug("Subscriber unregistered", "subscriber_id", sub.ID().String(), "remaining_subscribers", len(b.subscribers))
	return true
}

// Publish enqueues message into every registered mailbox. It never blocks
// on a consumer.
func (b *Broadcaster) Publish(message []byte) {
	b.publishMutex.Lock()
	defer b.publishMutex.Unlock()

	b.mu.RLock()
	defer b.mu.RUnlock()

	delivered := 0
	for _, sub := range b.subscribers {
		depth := sub.Put(message)
		if depth == 0 {
			continue
		}
		delivered++
		if b.metrics != nil {
			b.metrics.MailboxDepth.Observe(float64(depth))
		}
	}

	if b.metrics != nil {
		b.metrics.MessagesPublished.Inc()
		b.metrics.Deliveries.Add(float64(delivered))
	}
}

// NotifyEntity publishes the resolved state of an entity as {entity: props}.
func (b *Broadcaster) NotifyEntity(entity string, props domain.Properties) {
	message, err := protocol.EncodeEntity(entity, props)
	if err != nil {
		slog.Error("Failed to encode entity notification", "entity", entity, "error", err)
		return
	}
	b.Publish(message)
}

// Count returns the number of registered subscribers.
func (b *Broadcaster) Count() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}

// Close closes every registered mailbox and rejects further registrations.
// Sessions observe the closed mailbox and tear themselves down.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true

	slog.Info("Broadcaster shutting down", "subscribers", len(b.subscribers))
	for id, sub := range b.subscribers {
		sub.Close()
		delete(b.subscribers, id)
	}
	if b.metrics != nil {
		b.metrics.Subscribers.Set(0)
	}
}

// Check is a readiness probe: it fails once the broadcaster is closed.
func (b *Broadcaster) Check(_ context.Context) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return ErrBroadcasterClosed
	}
	return nil
}
