package daemon

import (
	"context"
	"os"
	"sync"
	"time"

	"github.com/hmibridge/hmibridge/internal/bridge"
	"github.com/hmibridge/hmibridge/internal/eventbus"
	"github.com/hmibridge/hmibridge/internal/observability"
	"github.com/hmibridge/hmibridge/internal/plugins"
	"github.com/hmibridge/hmibridge/internal/version"
)

// RuntimeInfo stores runtime metadata exposed to clients.
type RuntimeInfo struct {
	mu        sync.RWMutex
	startTime time.Time
}

// SetStartTime records the daemon start time.
func (r *RuntimeInfo) SetStartTime(t time.Time) {
	r.mu.Lock()
	r.startTime = t
	r.mu.Unlock()
}

// StartTime returns the daemon start time.
func (r *RuntimeInfo) StartTime() time.Time {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.startTime
}

// PedalboardStatus describes the pedalboard the host has loaded.
type PedalboardStatus struct {
	Index  int    `json:"index"`
	Name   string `json:"name"`
	Path   string `json:"path"`
	Pedals int    `json:"pedals"`
}

// Status is the daemon snapshot served on the event feed.
type Status struct {
	Instance    string            `json:"instance"`
	Version     string            `json:"version"`
	PID         int               `json:"pid"`
	StartedAt   time.Time         `json:"started_at"`
	Uptime      string            `json:"uptime"`
	Services    map[string]bool   `json:"services"`
	Peers       []bridge.PeerInfo `json:"peers"`
	FeedClients int               `json:"feed_clients"`
	Bus         eventbus.Metrics  `json:"bus"`
	Plugins     plugins.Stats     `json:"plugins"`
	Pedalboard  *PedalboardStatus `json:"pedalboard,omitempty"`
}

// Status returns a snapshot of the running daemon.
func (d *Daemon) Status() Status {
	started := d.runtimeInfo.StartTime()
	st := Status{
		Instance:  d.store.InstanceName(),
		Version:   version.String(),
		PID:       os.Getpid(),
		StartedAt: started,
		Services:  make(map[string]bool),
		Peers:     []bridge.PeerInfo{},
		Bus:       d.bus.Metrics(),
	}
	if !started.IsZero() {
		st.Uptime = time.Since(started).Truncate(time.Second).String()
	}
	for _, name := range []string{ServicePlugins, ServiceStateSync, ServiceBridge, ServiceEventFeed} {
		st.Services[name] = d.serviceHost.Running(name)
	}
	if srv := d.bridgeServer.Load(); srv != nil {
		st.Peers = srv.Peers()
	}
	if feed := d.feed.Load(); feed != nil {
		st.FeedClients = feed.ClientCount()
	}
	st.Plugins = d.pluginStats()
	if tracker := d.relay.currentTracker(); tracker != nil {
		if pb, index := tracker.Current(); pb != nil {
			ps := &PedalboardStatus{Index: index, Name: pb.Name, Path: pb.Path}
			// Pedals is already resolved by the tracker, so this does not parse again.
			if pedals, err := pb.Pedals(context.Background()); err == nil {
				ps.Pedals = len(pedals)
			}
			st.Pedalboard = ps
		}
	}
	return st
}

func (d *Daemon) pluginStats() plugins.Stats {
	if cache := d.cache.Load(); cache != nil {
		return cache.Stats()
	}
	return plugins.Stats{}
}

func (d *Daemon) bridgeSnapshot() observability.BridgeSnapshot {
	var snap observability.BridgeSnapshot
	if srv := d.bridgeServer.Load(); srv != nil {
		snap.HostPeers = len(srv.Peers())
	}
	if feed := d.feed.Load(); feed != nil {
		snap.FeedClients = feed.ClientCount()
	}
	if tracker := d.relay.currentTracker(); tracker != nil {
		if pb, _ := tracker.Current(); pb != nil {
			snap.PedalboardLoaded = true
			if pedals, err := pb.Pedals(context.Background()); err == nil {
				snap.Pedals = len(pedals)
			}
		}
	}
	return snap
}
