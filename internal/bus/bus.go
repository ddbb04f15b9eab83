// Package bus implements the engine's bounded, drop-oldest event queue.
package bus

import (
	"log/slog"
	"sync"

	"github.com/kurek775/saladin/internal/domain"
)

// DefaultCapacity is the queue size before the oldest event gets dropped to
// make room for a new one.
const DefaultCapacity = 1000

// Bus is a bounded single-consumer FIFO of events. Publish never blocks: when
// the queue is full the oldest event is dropped to make room.
type Bus struct {
	mu       sync.Mutex
	notEmpty chan struct{}
	items    []domain.Event
	capacity int
	logger   *slog.Logger
}

// New creates a Bus with the given capacity. A non-positive capacity falls
// back to DefaultCapacity.
func New(capacity int, logger *slog.Logger) *Bus {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Bus{
		notEmpty: make(chan struct{}, 1),
		capacity: capacity,
		logger:   logger,
	}
}

// Publish enqueues an event without blocking. If the queue is already at
// capacity, the oldest queued event is dropped and a warning logged before
// the new event is appended.
func (b *Bus) Publish(evt domain.Event) {
	b.mu.Lock()
	if len(b.items) >= b.capacity {
		b.items = b.items[1:]
		b.logger.Warn("event bus full, dropped oldest event", "capacity", b.capacity)
	}
	b.items = append(b.items, evt)
	b.mu.Unlock()

	select {
	case b.notEmpty <- struct{}{}:
	default:
	}
}

// Subscribe blocks until an event is available, then returns it. There is a
// single logical consumer: the broadcast fabric's dispatch loop.
func (b *Bus) Subscribe() domain.Event {
	for {
		b.mu.Lock()
		if len(b.items) > 0 {
			evt := b.items[0]
			b.items = b.items[1:]
			b.mu.Unlock()
			return evt
		}
		b.mu.Unlock()
		<-b.notEmpty
	}
}

// Len reports how many events are currently queued (for diagnostics/tests).
func (b *Bus) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.items)
}
