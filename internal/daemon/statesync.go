package daemon

import (
	"context"
	"log"

	"github.com/hmibridge/hmibridge/internal/eventbus"
	"github.com/hmibridge/hmibridge/internal/pedalboard"
)

// stateSync keeps a pedalboard tracker in step with the host's pedalboard
// notifications.
type stateSync struct {
	bus       *eventbus.Bus
	tracker   *pedalboard.Tracker
	lifecycle eventbus.ServiceLifecycle
}

func newStateSync(bus *eventbus.Bus, tracker *pedalboard.Tracker) *stateSync {
	return &stateSync{bus: bus, tracker: tracker}
}

func (s *stateSync) Start(ctx context.Context) error {
	s.lifecycle.Start(ctx)

	loaded := eventbus.SubscribeTo(s.bus, eventbus.Pedalboard.Loaded, eventbus.WithSubscriptionName("statesync_loaded"))
	cleared := eventbus.SubscribeTo(s.bus, eventbus.Pedalboard.Cleared, eventbus.WithSubscriptionName("statesync_cleared"))
	files := eventbus.SubscribeTo(s.bus, eventbus.Device.FileParameter, eventbus.WithSubscriptionName("statesync_files"))
	s.lifecycle.AddSubscriptions(loaded, cleared, files)

	s.lifecycle.Go(func(ctx context.Context) {
		eventbus.Consume(ctx, loaded, nil, func(ev eventbus.PedalboardLoadedEvent) { s.onLoaded(ctx, ev) })
	})
	s.lifecycle.Go(func(ctx context.Context) {
		eventbus.Consume(ctx, cleared, nil, func(eventbus.PedalboardClearedEvent) { s.tracker.Cleared() })
	})
	s.lifecycle.Go(func(ctx context.Context) {
		eventbus.Consume(ctx, files, nil, s.onFileParameter)
	})
	return nil
}

func (s *stateSync) Shutdown(ctx context.Context) error {
	return s.lifecycle.Shutdown(ctx)
}

func (s *stateSync) onLoaded(ctx context.Context, ev eventbus.PedalboardLoadedEvent) {
	pb, err := s.tracker.Loaded(ctx, ev.Index, ev.Identifier)
	if err != nil {
		log.Printf("[StateSync] pedalboard %d (%q) not resolved: %v", ev.Index, ev.Identifier, err)
		s.tracker.Cleared()
		return
	}
	pedals, _ := pb.Pedals(ctx)
	log.Printf("[StateSync] pedalboard %d loaded: %s (%d pedals)", ev.Index, pb.Name, len(pedals))
}

func (s *stateSync) onFileParameter(ev eventbus.FileParameterChangedEvent) {
	if !s.tracker.ApplyFilePath(ev.Instance, ev.ParamURI, ev.Path) {
		log.Printf("[StateSync] file parameter %s on %s ignored: no matching pedal", ev.ParamURI, ev.Instance)
	}
}
