// Package broadcast fans events pulled from the event bus out to every live
// WebSocket subscriber, dropping connections that fail to receive.
package broadcast

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/kurek775/saladin/internal/bus"
	"github.com/kurek775/saladin/internal/domain"
)

// Subscriber is anything the fabric can push a serialized event to. The
// WebSocket handler satisfies this with a thin wrapper over *websocket.Conn.
type Subscriber interface {
	Send(payload []byte) error
}

// Fabric pulls events off a Bus one at a time and pushes them to every
// registered Subscriber. A subscriber whose Send fails is dropped.
type Fabric struct {
	bus    *bus.Bus
	logger *slog.Logger

	mu          sync.Mutex
	subscribers map[Subscriber]struct{}

	maxErrors    int
	errorDelay   time.Duration
}

// New builds a Fabric over the given Bus. maxErrors and errorDelay configure
// the consumer's never-die backoff: after maxErrors consecutive delivery
// failures it sleeps errorDelay and resets the counter, rather than
// terminating the consumer loop.
func New(b *bus.Bus, maxErrors int, errorDelay time.Duration, logger *slog.Logger) *Fabric {
	if maxErrors <= 0 {
		maxErrors = 5
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Fabric{
		bus:         b,
		logger:      logger,
		subscribers: make(map[Subscriber]struct{}),
		maxErrors:   maxErrors,
		errorDelay:  errorDelay,
	}
}

// Subscribe registers a new subscriber.
func (f *Fabric) Subscribe(s Subscriber) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subscribers[s] = struct{}{}
	f.logger.Info("websocket client connected", "total", len(f.subscribers))
}

// Unsubscribe removes a subscriber, e.g. on disconnect.
func (f *Fabric) Unsubscribe(s Subscriber) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.subscribers, s)
	f.logger.Info("websocket client disconnected", "total", len(f.subscribers))
}

// ActiveCount returns the number of live subscribers.
func (f *Fabric) ActiveCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subscribers)
}

// Run drives the dispatch loop until ctx is cancelled. It is meant to run as
// a single long-lived goroutine for the process lifetime.
func (f *Fabric) Run(ctx context.Context) {
	consecutiveErrors := 0
	done := make(chan domain.Event)

	go func() {
		for {
			select {
			case <-ctx.Done():
				close(done)
				return
			default:
			}
			done <- f.bus.Subscribe()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-done:
			if !ok {
				return
			}
			if err := f.deliver(evt); err != nil {
				consecutiveErrors++
				f.logger.Warn("broadcast delivery error", "error", err, "consecutive", consecutiveErrors)
				if consecutiveErrors >= f.maxErrors {
					f.logger.Error("broadcast fabric hit max consecutive errors, backing off", "delay", f.errorDelay)
					time.Sleep(f.errorDelay)
					consecutiveErrors = 0
				}
			} else {
				consecutiveErrors = 0
			}
		}
	}
}

// deliver serializes evt and attempts delivery to every live subscriber,
// dropping any whose Send fails.
func (f *Fabric) deliver(evt domain.Event) error {
	payload, err := json.Marshal(evt)
	if err != nil {
		return err
	}

	f.mu.Lock()
	targets := make([]Subscriber, 0, len(f.subscribers))
	for s := range f.subscribers {
		targets = append(targets, s)
	}
	f.mu.Unlock()

	var stale []Subscriber
	for _, s := range targets {
		if sendErr := s.Send(payload); sendErr != nil {
			stale = append(stale, s)
		}
	}

	if len(stale) > 0 {
		f.mu.Lock()
		for _, s := range stale {
			delete(f.subscribers, s)
		}
		f.mu.Unlock()
	}

	return nil
}
