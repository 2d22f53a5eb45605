package health

import (
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMonitor_UpdateAndGet(t *testing.T) {
	m := NewMonitor()

	m.Update("nats", Status{Component: "wrong", Status: "healthy"})

	got, ok := m.Get("nats")
	require.True(t, ok)
	assert.Equal(t, "nats", got.Component)
	assert.False(t, got.Timestamp.IsZero())

	_, ok = m.Get("missing")
	assert.False(t, ok)
}

func TestMonitor_RegisterEvaluatesOnRead(t *testing.T) {
	m := NewMonitor()

	var calls atomic.Int32
	var healthy atomic.Bool
	m.Register("listener", func() Status {
		calls.Add(1)
		if healthy.Load() {
			return NewHealthy("", "ok")
		}
		return NewUnhealthy("", "down")
	})

	got, ok := m.Get("listener")
	require.True(t, ok)
	assert.True(t, got.IsUnhealthy())
	assert.Equal(t, "listener", got.Component)

	healthy.Store(true)
	got, _ = m.Get("listener")
	assert.True(t, got.IsHealthy())
	assert.Equal(t, int32(2), calls.Load())
}

func TestMonitor_RegisterReplacesUpdate(t *testing.T) {
	m := NewMonitor()

	m.Update("listener", NewUnhealthy("", "pushed"))
	m.Register("listener", func() Status { return NewHealthy("", "checked") })

	assert.Equal(t, []string{"listener"}, m.Components())
	got, _ := m.Get("listener")
	assert.Equal(t, "checked", got.Message)
}

func TestMonitor_Remove(t *testing.T) {
	m := NewMonitor()
	m.Update("a", NewHealthy("", ""))
	m.Register("b", func() Status { return NewHealthy("", "") })

	m.Remove("a")
	m.Remove("b")
	assert.Empty(t, m.Components())
}

func TestMonitor_AggregateHealth(t *testing.T) {
	m := NewMonitor()
	m.Register("listener", func() Status { return NewHealthy("", "") })
	m.Update("nats", NewDegraded("", "reconnecting"))

	agg := m.AggregateHealth("cqstream")
	assert.Equal(t, "cqstream", agg.Component)
	assert.True(t, agg.IsDegraded())
	assert.Len(t, agg.SubStatuses, 2)

	m.Update("api", NewUnhealthy("", "down"))
	assert.True(t, m.AggregateHealth("cqstream").IsUnhealthy())
}

func TestMonitor_ConcurrentAccess(t *testing.T) {
	m := NewMonitor()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			name := fmt.Sprintf("c%d", i%5)
			if i%2 == 0 {
				m.Update(name, NewHealthy("", ""))
			} else {
				m.Register(name, func() Status { return NewHealthy("", "") })
			}
			_ = m.AggregateHealth("system")
		}(i)
	}
	wg.Wait()

	assert.Len(t, m.Components(), 5)
	assert.True(t, m.AggregateHealth("system").IsHealthy())
}
