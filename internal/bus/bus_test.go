package bus

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kurek775/saladin/internal/domain"
)

func TestBus_PublishSubscribe_FIFO(t *testing.T) {
	b := New(16, nil)

	b.Publish(domain.NewEvent(domain.EventLog, map[string]any{"n": 1}))
	b.Publish(domain.NewEvent(domain.EventLog, map[string]any{"n": 2}))

	first := b.Subscribe()
	second := b.Subscribe()

	assert.Equal(t, 1, first.Data["n"])
	assert.Equal(t, 2, second.Data["n"])
}

func TestBus_Publish_DropsOldestWhenFull(t *testing.T) {
	b := New(2, nil)

	b.Publish(domain.NewEvent(domain.EventLog, map[string]any{"n": 1}))
	b.Publish(domain.NewEvent(domain.EventLog, map[string]any{"n": 2}))
	b.Publish(domain.NewEvent(domain.EventLog, map[string]any{"n": 3}))

	require.Equal(t, 2, b.Len())

	first := b.Subscribe()
	second := b.Subscribe()
	assert.Equal(t, 2, first.Data["n"])
	assert.Equal(t, 3, second.Data["n"])
}

func TestBus_Subscribe_BlocksUntilPublish(t *testing.T) {
	b := New(4, nil)
	done := make(chan domain.Event, 1)

	go func() {
		done <- b.Subscribe()
	}()

	b.Publish(domain.NewEvent(domain.EventLog, map[string]any{"n": 42}))

	evt := <-done
	assert.Equal(t, 42, evt.Data["n"])
}

func TestBus_New_NonPositiveCapacityFallsBackToDefault(t *testing.T) {
	b := New(0, nil)
	assert.Equal(t, DefaultCapacity, b.capacity)
}
