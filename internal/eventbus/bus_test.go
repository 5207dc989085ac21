package eventbus_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/hmibridge/hmibridge/internal/eventbus"
)

func TestBusPublishDeliver(t *testing.T) {
	bus := eventbus.New()
	defer bus.Shutdown()
	sub := bus.Subscribe(eventbus.TopicPedalboardLoaded)
	defer sub.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	bus.Publish(ctx, eventbus.Envelope{
		Topic:   eventbus.TopicPedalboardLoaded,
		Source:  eventbus.SourceDispatcher,
		Payload: eventbus.PedalboardLoadedEvent{Index: 3, Identifier: "some/uri"},
	})

	select {
	case env := <-sub.C():
		msg, ok := env.Payload.(eventbus.PedalboardLoadedEvent)
		if !ok {
			t.Fatalf("expected PedalboardLoadedEvent payload, got %T", env.Payload)
		}
		if msg.Index != 3 || msg.Identifier != "some/uri" {
			t.Fatalf("unexpected payload: %+v", msg)
		}
		if env.Timestamp.IsZero() {
			t.Fatal("expected timestamp to be filled in")
		}
	case <-ctx.Done():
		t.Fatal("timed out waiting for event")
	}

	if got := bus.Metrics().PublishTotal; got != 1 {
		t.Fatalf("expected PublishTotal 1, got %d", got)
	}
}

func TestBusDropOldest(t *testing.T) {
	bus := eventbus.New()
	defer bus.Shutdown()
	sub := bus.Subscribe(eventbus.TopicTunerReading, eventbus.WithSubscriptionBuffer(1))
	defer sub.Close()

	ctx := context.Background()
	for _, freq := range []float64{440, 441} {
		bus.Publish(ctx, eventbus.Envelope{
			Topic:   eventbus.TopicTunerReading,
			Payload: eventbus.TunerReadingEvent{Frequency: freq, Note: "A4"},
		})
	}

	select {
	case env := <-sub.C():
		reading := env.Payload.(eventbus.TunerReadingEvent)
		if reading.Frequency != 441 {
			t.Fatalf("expected newest reading to survive, got %v", reading.Frequency)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}

	if sub.Dropped() != 1 {
		t.Fatalf("expected 1 dropped event, got %d", sub.Dropped())
	}
	if bus.Metrics().DroppedTotal != 1 {
		t.Fatalf("expected DroppedTotal 1, got %d", bus.Metrics().DroppedTotal)
	}
}

func TestBusDropNewestPolicy(t *testing.T) {
	bus := eventbus.New(eventbus.WithTopicPolicy(eventbus.TopicMenuItemChanged, eventbus.DeliveryPolicy{
		Strategy: eventbus.StrategyDropNewest,
	}))
	defer bus.Shutdown()
	sub := bus.Subscribe(eventbus.TopicMenuItemChanged, eventbus.WithSubscriptionBuffer(1))
	defer sub.Close()

	ctx := context.Background()
	for id := 1; id <= 2; id++ {
		bus.Publish(ctx, eventbus.Envelope{
			Topic:   eventbus.TopicMenuItemChanged,
			Payload: eventbus.MenuItemChangedEvent{MenuID: id},
		})
	}

	env := <-sub.C()
	if got := env.Payload.(eventbus.MenuItemChangedEvent).MenuID; got != 1 {
		t.Fatalf("expected first event to be kept, got menu %d", got)
	}
	if sub.Dropped() != 1 {
		t.Fatalf("expected 1 dropped event, got %d", sub.Dropped())
	}
}

func TestBusSpillKeepsOrder(t *testing.T) {
	bus := eventbus.New()
	defer bus.Shutdown()
	sub := bus.Subscribe(eventbus.TopicPedalboardLoaded, eventbus.WithSubscriptionBuffer(1))
	defer sub.Close()

	ctx := context.Background()
	const n = 20
	for i := 0; i < n; i++ {
		bus.Publish(ctx, eventbus.Envelope{
			Topic:   eventbus.TopicPedalboardLoaded,
			Payload: eventbus.PedalboardLoadedEvent{Index: i},
		})
	}

	for i := 0; i < n; i++ {
		select {
		case env := <-sub.C():
			if got := env.Payload.(eventbus.PedalboardLoadedEvent).Index; got != i {
				t.Fatalf("event %d arrived out of order as %d", i, got)
			}
		case <-time.After(time.Second):
			t.Fatalf("timed out waiting for event %d", i)
		}
	}
	if sub.Dropped() != 0 {
		t.Fatalf("expected no drops, got %d", sub.Dropped())
	}
}

func TestSubscriptionClosesWithContext(t *testing.T) {
	bus := eventbus.New()
	defer bus.Shutdown()

	ctx, cancel := context.WithCancel(context.Background())
	sub := bus.Subscribe(eventbus.TopicSnapshotsList, eventbus.WithContext(ctx))
	cancel()

	select {
	case _, ok := <-sub.C():
		if ok {
			t.Fatal("expected closed channel")
		}
	case <-time.After(time.Second):
		t.Fatal("subscription was not closed after context cancellation")
	}
}

func TestNilBusIsInert(t *testing.T) {
	var bus *eventbus.Bus
	bus.Publish(context.Background(), eventbus.Envelope{Topic: eventbus.TopicPedalboardCleared})
	bus.Shutdown()

	sub := bus.Subscribe(eventbus.TopicPedalboardCleared)
	if _, ok := <-sub.C(); ok {
		t.Fatal("expected closed channel from nil bus")
	}
	sub.Close()

	if m := bus.Metrics(); m.PublishTotal != 0 {
		t.Fatalf("unexpected metrics %+v", m)
	}
}

type countingObserver struct {
	mu     sync.Mutex
	topics []eventbus.Topic
}

func (o *countingObserver) OnPublish(env eventbus.Envelope) {
	o.mu.Lock()
	o.topics = append(o.topics, env.Topic)
	o.mu.Unlock()
}

func TestBusObserversSeeEveryPublish(t *testing.T) {
	bus := eventbus.New()
	defer bus.Shutdown()
	obs := &countingObserver{}
	bus.AddObserver(obs)
	bus.AddObserver(nil)

	bus.Publish(context.Background(), eventbus.Envelope{Topic: eventbus.TopicTunerReading})
	bus.Publish(context.Background(), eventbus.Envelope{Topic: eventbus.TopicPeersLifecycle})

	obs.mu.Lock()
	defer obs.mu.Unlock()
	if len(obs.topics) != 2 || obs.topics[0] != eventbus.TopicTunerReading || obs.topics[1] != eventbus.TopicPeersLifecycle {
		t.Fatalf("observed topics = %v", obs.topics)
	}
}
