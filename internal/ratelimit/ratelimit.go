// Package ratelimit throttles LLM provider calls with a leaky bucket per
// (provider, key) pair, so a burst of worker fan-out against one API key
// never exceeds the configured requests-per-minute budget.
package ratelimit

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sync"

	"golang.org/x/time/rate"
)

// Registry holds one bucket per (provider, key-hash). Buckets are created
// lazily on first use.
type Registry struct {
	mu      sync.Mutex
	buckets map[string]*rate.Limiter
	rpm     int
}

// NewRegistry builds a Registry whose buckets refill at rpm/60 tokens per
// second with a burst capacity of max(5, rpm/10), matching the engine's
// per-provider-per-key throttle.
func NewRegistry(rpm int) *Registry {
	if rpm <= 0 {
		rpm = 60
	}
	return &Registry{
		buckets: make(map[string]*rate.Limiter),
		rpm:     rpm,
	}
}

func (r *Registry) bucketKey(provider, apiKey string) string {
	hash := "default"
	if apiKey != "" {
		sum := sha256.Sum256([]byte(apiKey))
		hash = hex.EncodeToString(sum[:])[:8]
	}
	return provider + ":" + hash
}

func (r *Registry) bucket(provider, apiKey string) *rate.Limiter {
	key := r.bucketKey(provider, apiKey)

	r.mu.Lock()
	defer r.mu.Unlock()

	if b, ok := r.buckets[key]; ok {
		return b
	}

	burst := r.rpm / 10
	if burst < 5 {
		burst = 5
	}
	ratePerSecond := rate.Limit(float64(r.rpm) / 60.0)
	b := rate.NewLimiter(ratePerSecond, burst)
	r.buckets[key] = b
	return b
}

// Acquire blocks until a token is available for (provider, apiKey), or until
// ctx is cancelled. Every LLM call goes through this before dispatch.
func (r *Registry) Acquire(ctx context.Context, provider, apiKey string) error {
	return r.bucket(provider, apiKey).Wait(ctx)
}
