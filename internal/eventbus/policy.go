package eventbus

import (
	"context"
	"sync"
)

// Priority classifies how much a topic can tolerate losing events.
type Priority int

const (
	PriorityLow Priority = iota
	PriorityNormal
	PriorityCritical
)

// DeliveryStrategy determines behaviour when a subscriber's channel is full.
type DeliveryStrategy string

const (
	// StrategyDropOldest evicts the oldest queued event to make room.
	StrategyDropOldest DeliveryStrategy = "drop-oldest"
	// StrategyDropNewest discards the incoming event.
	StrategyDropNewest DeliveryStrategy = "drop-newest"
	// StrategySpill parks events in a bounded FIFO drained by a goroutine.
	StrategySpill DeliveryStrategy = "spill"
)

// DeliveryPolicy controls how a topic handles backpressure.
type DeliveryPolicy struct {
	Strategy DeliveryStrategy
	Priority Priority
	MaxSpill int // 0 means defaultMaxSpill
}

const defaultMaxSpill = 256

var defaultPolicy = DeliveryPolicy{Strategy: StrategyDropOldest, Priority: PriorityNormal}

// Lifecycle-type notifications must not be lost; state changes downstream
// depend on seeing every one. Tuner readings are superseded quickly.
var defaultPolicies = map[Topic]DeliveryPolicy{
	TopicPedalboardLoaded:     {Strategy: StrategySpill, Priority: PriorityCritical},
	TopicPedalboardCleared:    {Strategy: StrategySpill, Priority: PriorityCritical},
	TopicFileParameterChanged: {Strategy: StrategySpill, Priority: PriorityCritical},
	TopicPeersLifecycle:       {Strategy: StrategySpill, Priority: PriorityCritical},

	TopicTunerReading: {Strategy: StrategyDropOldest, Priority: PriorityLow},
}

func policyFor(topic Topic, overrides map[Topic]DeliveryPolicy) DeliveryPolicy {
	if p, ok := overrides[topic]; ok {
		return p
	}
	if p, ok := defaultPolicies[topic]; ok {
		return p
	}
	return defaultPolicy
}

// spillQueue is a bounded FIFO sitting in front of a subscription channel.
type spillQueue struct {
	mu     sync.Mutex
	items  []Envelope
	max    int
	notify chan struct{}
	done   chan struct{}
}

func newSpillQueue(max int) *spillQueue {
	if max <= 0 {
		max = defaultMaxSpill
	}
	return &spillQueue{
		max:    max,
		notify: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
}

// push appends env and reports false when the queue is already full.
func (q *spillQueue) push(env Envelope) bool {
	q.mu.Lock()
	if len(q.items) >= q.max {
		q.mu.Unlock()
		return false
	}
	q.items = append(q.items, env)
	q.mu.Unlock()

	select {
	case q.notify <- struct{}{}:
	default:
	}
	return true
}

func (q *spillQueue) pop() (Envelope, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return Envelope{}, false
	}
	env := q.items[0]
	q.items[0] = Envelope{}
	q.items = q.items[1:]
	return env, true
}

func (q *spillQueue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// drain forwards queued events to out until ctx is cancelled.
func (q *spillQueue) drain(ctx context.Context, out chan<- Envelope) {
	defer close(q.done)
	for {
		env, ok := q.pop()
		if !ok {
			select {
			case <-q.notify:
				continue
			case <-ctx.Done():
				return
			}
		}
		select {
		case out <- env:
		case <-ctx.Done():
			return
		}
	}
}
