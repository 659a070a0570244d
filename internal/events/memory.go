package events

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"confhub/internal/metrics"

	"go.uber.org/zap"
)

// ErrBusClosed is returned when publishing on a closed bus
var ErrBusClosed = errors.New("event bus is closed")

// Subscription receives events from a bus until closed
type Subscription struct {
	C <-chan ConfigChanged

	// Lagged receives a signal after the subscription missed an event.
	// Signals coalesce while one is pending.
	Lagged <-chan struct{}

	ch      chan ConfigChanged
	lagged  chan struct{}
	id      uint64
	bus     *MemoryBus
	dropped atomic.Int64
	once    sync.Once
}

// Dropped returns the number of events dropped because the buffer was full
func (s *Subscription) Dropped() int64 {
	return s.dropped.Load()
}

// Close unregisters the subscription and closes its channel
func (s *Subscription) Close() {
	s.once.Do(func() {
		s.bus.unsubscribe(s.id)
	})
}

// MemoryBus is an in-process fan-out bus
type MemoryBus struct {
	mu     sync.RWMutex
	subs   map[uint64]*Subscription
	nextID uint64
	closed bool
	logger *zap.Logger
}

// NewMemoryBus creates a new in-process bus
func NewMemoryBus(logger *zap.Logger) *MemoryBus {
	return &MemoryBus{
		subs:   make(map[uint64]*Subscription),
		logger: logger,
	}
}

// Publish delivers the event to every subscriber. A subscriber whose
// buffer is full misses the event.
func (b *MemoryBus) Publish(_ context.Context, event ConfigChanged) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return ErrBusClosed
	}

	source := "local"
	if !event.IsLocal() {
		source = "remote"
	}
	metrics.EventsPublished.WithLabelValues(source).Inc()

	for _, sub := range b.subs {
		select {
		case sub.ch <- event:
		default:
			sub.dropped.Add(1)
			select {
			case sub.lagged <- struct{}{}:
			default:
			}
			metrics.EventsDropped.Inc()
			b.logger.Warn("Dropped change event for slow subscriber",
				zap.Uint64("subscription", sub.id),
				zap.String("config", event.Name),
				zap.Int64("version", event.Version))
		}
	}
	return nil
}

// Subscribe registers a subscriber with a buffered channel
func (b *MemoryBus) Subscribe(buffer int) *Subscription {
	if buffer <= 0 {
		buffer = 1
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	ch := make(chan ConfigChanged, buffer)
	lagged := make(chan struct{}, 1)
	sub := &Subscription{C: ch, Lagged: lagged, ch: ch, lagged: lagged, id: b.nextID, bus: b}
	if b.closed {
		close(ch)
		return sub
	}
	b.subs[sub.id] = sub
	return sub
}

// Len returns the number of active subscriptions
func (b *MemoryBus) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Close closes every subscription and rejects further publishes
func (b *MemoryBus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true
	for id, sub := range b.subs {
		close(sub.ch)
		delete(b.subs, id)
	}
}

func (b *MemoryBus) unsubscribe(id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if sub, ok := b.subs[id]; ok {
		close(sub.ch)
		delete(b.subs, id)
	}
}
