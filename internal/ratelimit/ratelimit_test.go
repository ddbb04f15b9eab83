package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_Acquire_AllowsBurstThenThrottles(t *testing.T) {
	r := NewRegistry(60) // burst = max(5, 60/10) = 6
	ctx := context.Background()

	for i := 0; i < 6; i++ {
		require.NoError(t, r.Acquire(ctx, "openai", "key-a"))
	}

	start := time.Now()
	require.NoError(t, r.Acquire(ctx, "openai", "key-a"))
	assert.Greater(t, time.Since(start), 500*time.Millisecond)
}

func TestRegistry_Acquire_SeparatesBucketsByProviderAndKey(t *testing.T) {
	r := NewRegistry(60)
	ctx := context.Background()

	for i := 0; i < 6; i++ {
		require.NoError(t, r.Acquire(ctx, "openai", "key-a"))
	}

	// A distinct provider/key pair has its own untouched bucket.
	start := time.Now()
	require.NoError(t, r.Acquire(ctx, "anthropic", "key-b"))
	assert.Less(t, time.Since(start), 100*time.Millisecond)
}

func TestRegistry_Acquire_RespectsContextCancellation(t *testing.T) {
	r := NewRegistry(60)
	for i := 0; i < 6; i++ {
		require.NoError(t, r.Acquire(context.Background(), "openai", "key-a"))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	err := r.Acquire(ctx, "openai", "key-a")
	assert.Error(t, err)
}

func TestNewRegistry_NonPositiveRPMFallsBackToDefault(t *testing.T) {
	r := NewRegistry(0)
	assert.Equal(t, 60, r.rpm)
}
