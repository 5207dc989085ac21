package daemon

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"os"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hmibridge/hmibridge/internal/bridge"
	"github.com/hmibridge/hmibridge/internal/config"
	configstore "github.com/hmibridge/hmibridge/internal/config/store"
	"github.com/hmibridge/hmibridge/internal/eventbus"
	"github.com/hmibridge/hmibridge/internal/eventfeed"
	"github.com/hmibridge/hmibridge/internal/observability"
	"github.com/hmibridge/hmibridge/internal/pedalboard"
	"github.com/hmibridge/hmibridge/internal/plugins"
	"github.com/hmibridge/hmibridge/internal/procutil"
	daemonruntime "github.com/hmibridge/hmibridge/internal/runtime"
)

// Service names registered with the runtime host, in start order.
const (
	ServicePlugins   = "plugins"
	ServiceStateSync = "statesync"
	ServiceBridge    = "bridge"
	ServiceEventFeed = "eventfeed"
)

const (
	// serviceOpTimeout bounds service restarts and the final shutdown.
	serviceOpTimeout = 5 * time.Second

	// storeQueryTimeout bounds settings lookups during daemon operation.
	storeQueryTimeout = 5 * time.Second

	defaultSettingsInterval = time.Second
)

// Options groups dependencies required to construct a Daemon.
type Options struct {
	Store *configstore.Store
	// SettingsInterval is the settings polling period. Zero means one second.
	SettingsInterval time.Duration
}

// Daemon owns the bus and every long-running service of one instance.
type Daemon struct {
	store         *configstore.Store
	instancePaths config.InstancePaths
	bus           *eventbus.Bus
	serviceHost   *daemonruntime.ServiceHost
	relay         *relay
	commands      *bridge.Commands
	runtimeInfo   *RuntimeInfo
	metrics       *observability.PrometheusExporter
	interval      time.Duration

	bridgeServer atomic.Pointer[bridge.Server]
	feed         atomic.Pointer[eventfeed.Server]
	cache        atomic.Pointer[plugins.Cache]

	settingsMu sync.Mutex
	settings   configstore.BridgeSettings

	ctx      context.Context
	cancel   context.CancelFunc
	ready    chan struct{}
	done     chan struct{}
	doneOnce sync.Once

	errMu  sync.Mutex
	runErr error

	configMu     sync.Mutex
	configCancel func()
}

// New creates a daemon bound to the provided settings store. Services are
// built when Start runs.
func New(opts Options) (*Daemon, error) {
	if opts.Store == nil {
		return nil, errors.New("daemon: configuration store is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), storeQueryTimeout)
	defer cancel()
	settings, err := opts.Store.LoadBridgeSettings(ctx)
	if err != nil {
		return nil, fmt.Errorf("daemon: load settings: %w", err)
	}
	if err := settings.Validate(); err != nil {
		return nil, fmt.Errorf("daemon: %w", err)
	}

	interval := opts.SettingsInterval
	if interval <= 0 {
		interval = defaultSettingsInterval
	}

	d := &Daemon{
		store:         opts.Store,
		instancePaths: config.GetInstancePaths(opts.Store.InstanceName()),
		bus:           eventbus.New(),
		serviceHost:   daemonruntime.NewServiceHost(),
		relay:         &relay{},
		runtimeInfo:   &RuntimeInfo{},
		interval:      interval,
		settings:      settings,
		ready:         make(chan struct{}),
		done:          make(chan struct{}),
	}
	d.commands = bridge.NewCommands(d.relay, d.relay)

	eventCounter := observability.NewEventCounter()
	d.bus.AddObserver(eventCounter)
	d.metrics = observability.NewPrometheusExporter(d.bus, eventCounter)
	d.metrics.WithPluginStats(d.pluginStats)
	d.metrics.WithBridge(d.bridgeSnapshot)

	factories := []struct {
		name    string
		factory daemonruntime.ServiceFactory
	}{
		{ServicePlugins, d.newPluginCache},
		{ServiceStateSync, d.newStateSync},
		{ServiceBridge, d.newBridgeServer},
		{ServiceEventFeed, d.newEventFeed},
	}
	for _, f := range factories {
		if err := d.serviceHost.Register(f.name, f.factory); err != nil {
			return nil, err
		}
	}
	return d, nil
}

func (d *Daemon) currentSettings() configstore.BridgeSettings {
	d.settingsMu.Lock()
	defer d.settingsMu.Unlock()
	return d.settings
}

func (d *Daemon) newPluginCache(context.Context) (daemonruntime.Service, error) {
	s := d.currentSettings()
	roots := make([]string, 0, len(s.BundleRoots))
	for _, root := range s.BundleRoots {
		roots = append(roots, config.ExpandPath(root))
	}
	diskPath := d.instancePaths.PluginCache
	if s.PluginCache != "" {
		diskPath = config.ExpandPath(s.PluginCache)
	}

	cache := plugins.NewCache(plugins.Options{Roots: roots, Store: plugins.NewDiskStore(diskPath)})
	d.cache.Store(cache)
	d.relay.cache.Store(cache)
	return cache, nil
}

func (d *Daemon) newStateSync(context.Context) (daemonruntime.Service, error) {
	s := d.currentSettings()
	library := pedalboard.NewLibrary(config.ExpandPath(s.PedalboardsDir), d.relay)
	tracker := pedalboard.NewTracker(library)
	d.relay.tracker.Store(tracker)
	return newStateSync(d.bus, tracker), nil
}

func (d *Daemon) newBridgeServer(context.Context) (daemonruntime.Service, error) {
	s := d.currentSettings()
	srv := bridge.NewServer(bridge.Options{
		Addr:          s.ListenAddr,
		MaxFrameBytes: s.MaxFrameBytes,
		WriteTimeout:  s.WriteTimeout,
		Bus:           d.bus,
	})
	d.bridgeServer.Store(srv)
	d.relay.setBridge(srv)
	return srv, nil
}

func (d *Daemon) newEventFeed(context.Context) (daemonruntime.Service, error) {
	s := d.currentSettings()
	feed := eventfeed.New(eventfeed.Options{
		Addr:     s.EventFeedAddr,
		Bus:      d.bus,
		Commands: d.commands,
		Status:   func() any { return d.Status() },
		Metrics:  d.metrics.Export,
	})
	d.feed.Store(feed)
	return feed, nil
}

// Start starts the services and blocks until Shutdown is called or a
// service fails.
func (d *Daemon) Start() error {
	if err := daemonruntime.WritePIDFile(d.instancePaths.PIDFile, os.Getpid()); err != nil {
		return fmt.Errorf("daemon: write pid file: %w", err)
	}
	defer daemonruntime.RemovePIDFile(d.instancePaths.PIDFile)

	d.runtimeInfo.SetStartTime(time.Now())
	d.ctx, d.cancel = context.WithCancel(context.Background())

	if err := d.serviceHost.Start(d.ctx); err != nil {
		d.cancel()
		d.bus.Shutdown()
		return fmt.Errorf("daemon: start services: %w", err)
	}
	d.watchHostErrors()
	if err := d.startSettingsWatcher(); err != nil {
		log.Printf("[Daemon] settings watcher error: %v", err)
	}
	close(d.ready)
	log.Printf("[Daemon] instance %s running (pid %d)", d.store.InstanceName(), os.Getpid())

	<-d.done

	d.cancel()

	stopCtx, cancel := context.WithTimeout(context.Background(), serviceOpTimeout)
	if err := d.serviceHost.Stop(stopCtx); err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintf(os.Stderr, "daemon: service shutdown error: %v\n", err)
		d.setRunError(err)
	}
	cancel()

	d.bus.Shutdown()
	log.Printf("[Daemon] stopped")
	return d.getRunError()
}

// Ready is closed once every service has started.
func (d *Daemon) Ready() <-chan struct{} {
	return d.ready
}

// Shutdown signals the daemon to stop. It is safe to call more than once.
func (d *Daemon) Shutdown() error {
	d.doneOnce.Do(func() { close(d.done) })
	d.configMu.Lock()
	cancelConfig := d.configCancel
	d.configCancel = nil
	d.configMu.Unlock()
	if cancelConfig != nil {
		cancelConfig()
	}
	return nil
}

func (d *Daemon) watchHostErrors() {
	go func() {
		for {
			select {
			case <-d.ctx.Done():
				return
			case err := <-d.serviceHost.Errors():
				if err == nil {
					continue
				}
				d.setRunError(err)
				fmt.Fprintf(os.Stderr, "%v\n", err)
				d.Shutdown()
			}
		}
	}()
}

func (d *Daemon) startSettingsWatcher() error {
	cancel, err := d.serviceHost.WatchSettings(d.store, d.interval, d.handleSettingsEvent)
	if err != nil {
		return err
	}
	d.configMu.Lock()
	d.configCancel = cancel
	d.configMu.Unlock()
	return nil
}

func (d *Daemon) handleSettingsEvent(event configstore.ChangeEvent) {
	if err := event.Settings.Validate(); err != nil {
		log.Printf("[Daemon] ignoring settings change: %v", err)
		return
	}

	d.settingsMu.Lock()
	prev := d.settings
	d.settings = event.Settings
	d.settingsMu.Unlock()

	for _, name := range servicesToRestart(prev, event.Settings) {
		d.restartService(name)
	}
}

// servicesToRestart lists, in start order, the services whose settings
// differ between prev and next.
func servicesToRestart(prev, next configstore.BridgeSettings) []string {
	var names []string
	if !slices.Equal(prev.BundleRoots, next.BundleRoots) || prev.PluginCache != next.PluginCache {
		names = append(names, ServicePlugins)
	}
	if prev.PedalboardsDir != next.PedalboardsDir {
		names = append(names, ServiceStateSync)
	}
	if prev.ListenAddr != next.ListenAddr || prev.MaxFrameBytes != next.MaxFrameBytes || prev.WriteTimeout != next.WriteTimeout {
		names = append(names, ServiceBridge)
	}
	if prev.EventFeedAddr != next.EventFeedAddr {
		names = append(names, ServiceEventFeed)
	}
	return names
}

func (d *Daemon) restartService(name string) {
	d.configMu.Lock()
	defer d.configMu.Unlock()

	if d.ctx.Err() != nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), serviceOpTimeout)
	defer cancel()

	if err := d.serviceHost.Restart(ctx, name); err != nil {
		log.Printf("[Daemon] restart %s failed: %v", name, err)
		return
	}
	log.Printf("[Daemon] %s restarted after settings change", name)
}

func (d *Daemon) setRunError(err error) {
	if err == nil {
		return
	}

	d.errMu.Lock()
	defer d.errMu.Unlock()
	if d.runErr == nil {
		d.runErr = err
	}
}

func (d *Daemon) getRunError() error {
	d.errMu.Lock()
	defer d.errMu.Unlock()
	return d.runErr
}

// Bus returns the daemon event bus.
func (d *Daemon) Bus() *eventbus.Bus {
	return d.bus
}

// Commands returns the outbound command API.
func (d *Daemon) Commands() *bridge.Commands {
	return d.commands
}

// ServiceHost returns the runtime service host.
func (d *Daemon) ServiceHost() *daemonruntime.ServiceHost {
	return d.serviceHost
}

// BridgeAddr returns the bound host listener address, or nil.
func (d *Daemon) BridgeAddr() net.Addr {
	if srv := d.bridgeServer.Load(); srv != nil {
		return srv.Addr()
	}
	return nil
}

// FeedAddr returns the bound event feed address, or nil when disabled.
func (d *Daemon) FeedAddr() net.Addr {
	if feed := d.feed.Load(); feed != nil {
		return feed.Addr()
	}
	return nil
}

// IsRunning reports whether a live daemon holds the pid file of instance.
// A stale pid file is removed.
func IsRunning(instance string) bool {
	pid, err := RunningPID(instance)
	return err == nil && pid > 0
}

// RunningPID returns the pid of the daemon serving instance, or 0.
func RunningPID(instance string) (int, error) {
	pidFile := config.GetInstancePaths(instance).PIDFile
	pid, err := daemonruntime.ReadPIDFile(pidFile)
	if err != nil {
		daemonruntime.RemovePIDFile(pidFile)
		return 0, err
	}
	if pid == 0 {
		return 0, nil
	}
	if !procutil.IsProcessAlive(pid) {
		daemonruntime.RemovePIDFile(pidFile)
		return 0, nil
	}
	return pid, nil
}

// Stop asks the daemon serving instance to terminate and waits up to
// timeout for it to exit.
func Stop(instance string, timeout time.Duration) error {
	pid, err := RunningPID(instance)
	if err != nil {
		return fmt.Errorf("daemon: %w", err)
	}
	if pid == 0 {
		return fmt.Errorf("daemon: instance %s is not running", instance)
	}
	if err := procutil.WaitTerminated(pid, timeout); err != nil {
		return fmt.Errorf("daemon: stop pid %d: %w", pid, err)
	}
	return nil
}
