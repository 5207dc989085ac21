package daemon

import (
	"context"
	"sync/atomic"

	"github.com/hmibridge/hmibridge/internal/pedalboard"
	"github.com/hmibridge/hmibridge/internal/plugins"
)

// relay forwards to whichever bridge server, plugin cache and tracker are
// current, so restarted services are picked up without rewiring their
// consumers. Calls made while a service is missing are dropped.
type relay struct {
	bridge  atomic.Pointer[bridgeBroadcaster]
	cache   atomic.Pointer[plugins.Cache]
	tracker atomic.Pointer[pedalboard.Tracker]
}

type bridgeBroadcaster interface {
	Broadcast(frame string) int
}

func (r *relay) setBridge(b bridgeBroadcaster) {
	r.bridge.Store(&b)
}

// Broadcast implements bridge.Broadcaster.
func (r *relay) Broadcast(frame string) int {
	b := r.bridge.Load()
	if b == nil {
		return 0
	}
	return (*b).Broadcast(frame)
}

// Get implements pedalboard.Resolver.
func (r *relay) Get(ctx context.Context, uri string) (*plugins.PluginDescription, bool) {
	cache := r.cache.Load()
	if cache == nil {
		return nil, false
	}
	return cache.Get(ctx, uri)
}

// ApplyControlValue implements bridge.StateSink.
func (r *relay) ApplyControlValue(position int, symbol string, value float64) bool {
	tracker := r.tracker.Load()
	return tracker != nil && tracker.ApplyControlValue(position, symbol, value)
}

// ApplyFilePath implements bridge.StateSink.
func (r *relay) ApplyFilePath(instance, paramURI, path string) bool {
	tracker := r.tracker.Load()
	return tracker != nil && tracker.ApplyFilePath(instance, paramURI, path)
}

func (r *relay) currentTracker() *pedalboard.Tracker {
	return r.tracker.Load()
}
