// Package observability renders daemon counters in the Prometheus text
// exposition format.
package observability

import (
	"sync"
	"sync/atomic"

	"github.com/hmibridge/hmibridge/internal/eventbus"
)

// EventCounter counts published events grouped by topic.
type EventCounter struct {
	counts sync.Map // map[eventbus.Topic]*atomic.Uint64
}

// NewEventCounter creates a counter to register with Bus.AddObserver.
func NewEventCounter() *EventCounter {
	return &EventCounter{}
}

// OnPublish implements eventbus.Observer.
func (c *EventCounter) OnPublish(env eventbus.Envelope) {
	if env.Topic == "" {
		return
	}
	c.counterFor(env.Topic).Add(1)
}

// Snapshot returns a copy of the current counts.
func (c *EventCounter) Snapshot() map[eventbus.Topic]uint64 {
	out := make(map[eventbus.Topic]uint64)
	c.counts.Range(func(key, value any) bool {
		out[key.(eventbus.Topic)] = value.(*atomic.Uint64).Load()
		return true
	})
	return out
}

func (c *EventCounter) counterFor(topic eventbus.Topic) *atomic.Uint64 {
	if counter, ok := c.counts.Load(topic); ok {
		return counter.(*atomic.Uint64)
	}
	actual, _ := c.counts.LoadOrStore(topic, &atomic.Uint64{})
	return actual.(*atomic.Uint64)
}
