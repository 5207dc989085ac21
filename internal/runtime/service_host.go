package runtime

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	configstore "github.com/hmibridge/hmibridge/internal/config/store"
)

const defaultShutdownTimeout = 5 * time.Second

// ServiceFactory constructs a service instance. It is invoked on every start
// or restart so a restarted service picks up fresh settings.
type ServiceFactory func(ctx context.Context) (Service, error)

// ServiceHost starts services in registration order and stops them in
// reverse order.
type ServiceHost struct {
	mu        sync.Mutex
	regs      []*registration
	started   bool
	errors    chan error
	cancel    context.CancelFunc
	parentCtx context.Context
}

// Option configures a service registration.
type Option func(*registration)

type registration struct {
	name            string
	factory         ServiceFactory
	service         Service
	shutdownTimeout time.Duration
	watching        bool
}

// WithShutdownTimeout customises the shutdown timeout for a service.
func WithShutdownTimeout(timeout time.Duration) Option {
	return func(reg *registration) {
		reg.shutdownTimeout = timeout
	}
}

// NewServiceHost creates an empty host.
func NewServiceHost() *ServiceHost {
	return &ServiceHost{errors: make(chan error, 1)}
}

// Register adds a service factory under name. Registration is closed once
// the host has started.
func (h *ServiceHost) Register(name string, factory ServiceFactory, opts ...Option) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.started {
		return fmt.Errorf("runtime: cannot register service %q after start", name)
	}
	if h.lookupLocked(name) != nil {
		return fmt.Errorf("runtime: service %q already registered", name)
	}

	reg := &registration{name: name, factory: factory, shutdownTimeout: defaultShutdownTimeout}
	for _, opt := range opts {
		opt(reg)
	}
	h.regs = append(h.regs, reg)
	return nil
}

// Start creates and starts every service. When one fails, the services
// already running are shut down again and the error is returned.
func (h *ServiceHost) Start(ctx context.Context) error {
	h.mu.Lock()
	if h.started {
		h.mu.Unlock()
		return fmt.Errorf("runtime: service host already started")
	}
	h.started = true
	h.parentCtx, h.cancel = context.WithCancel(ctx)
	regs := append([]*registration(nil), h.regs...)
	h.mu.Unlock()

	for i, reg := range regs {
		if err := h.launch(reg); err != nil {
			h.rollback(regs[:i])
			h.mu.Lock()
			h.started = false
			h.cancel()
			h.mu.Unlock()
			return err
		}
	}
	return nil
}

func (h *ServiceHost) launch(reg *registration) error {
	svc, err := reg.factory(h.parentCtx)
	if err != nil {
		return fmt.Errorf("runtime: create service %q: %w", reg.name, err)
	}
	if err := svc.Start(h.parentCtx); err != nil {
		return fmt.Errorf("runtime: start service %q: %w", reg.name, err)
	}
	reg.service = svc
	h.forwardErrors(reg)
	log.Printf("[Runtime] service %s started", reg.name)
	return nil
}

func (h *ServiceHost) halt(ctx context.Context, reg *registration) error {
	if reg.service == nil {
		return nil
	}
	timeout := reg.shutdownTimeout
	if timeout <= 0 {
		timeout = defaultShutdownTimeout
	}
	stopCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	err := reg.service.Shutdown(stopCtx)
	reg.service = nil
	reg.watching = false
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("runtime: shutdown service %q: %w", reg.name, err)
	}
	return nil
}

// Stop shuts every running service down in reverse registration order and
// returns the last shutdown error.
func (h *ServiceHost) Stop(ctx context.Context) error {
	h.mu.Lock()
	if !h.started {
		h.mu.Unlock()
		return nil
	}
	h.started = false
	cancel := h.cancel
	h.cancel = nil
	regs := append([]*registration(nil), h.regs...)
	h.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	var stopErr error
	for i := len(regs) - 1; i >= 0; i-- {
		if err := h.halt(ctx, regs[i]); err != nil {
			log.Printf("[Runtime] %v", err)
			stopErr = err
		}
	}
	return stopErr
}

// Restart rebuilds the named service from its factory.
func (h *ServiceHost) Restart(ctx context.Context, name string) error {
	h.mu.Lock()
	if !h.started {
		h.mu.Unlock()
		return fmt.Errorf("runtime: host not started")
	}
	reg := h.lookupLocked(name)
	h.mu.Unlock()

	if reg == nil {
		return fmt.Errorf("runtime: service %q not registered", name)
	}
	if err := h.halt(ctx, reg); err != nil {
		return err
	}
	return h.launch(reg)
}

// Running reports whether the named service is currently started.
func (h *ServiceHost) Running(name string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	reg := h.lookupLocked(name)
	return reg != nil && reg.service != nil
}

// Errors returns a channel receiving asynchronous service failures.
func (h *ServiceHost) Errors() <-chan error {
	return h.errors
}

// WatchSettings polls the settings store while the host runs and invokes
// handler for every change. The returned function stops the watcher.
func (h *ServiceHost) WatchSettings(store *configstore.Store, interval time.Duration, handler func(configstore.ChangeEvent)) (func(), error) {
	h.mu.Lock()
	if !h.started {
		h.mu.Unlock()
		return nil, fmt.Errorf("runtime: cannot watch settings before host is started")
	}
	parentCtx := h.parentCtx
	h.mu.Unlock()

	watchCtx, cancel := context.WithCancel(parentCtx)
	events, err := store.Watch(watchCtx, interval)
	if err != nil {
		cancel()
		return nil, err
	}

	go func() {
		for ev := range events {
			if handler != nil {
				handler(ev)
			}
		}
	}()

	return cancel, nil
}

func (h *ServiceHost) lookupLocked(name string) *registration {
	for _, reg := range h.regs {
		if reg.name == name {
			return reg
		}
	}
	return nil
}

func (h *ServiceHost) forwardErrors(reg *registration) {
	observable, ok := reg.service.(interface{ Errors() <-chan error })
	if !ok || reg.watching {
		return
	}
	ch := observable.Errors()
	if ch == nil {
		return
	}
	reg.watching = true

	go func(name string) {
		for err := range ch {
			if err == nil {
				continue
			}
			select {
			case h.errors <- fmt.Errorf("%s service error: %w", name, err):
			default:
			}
		}
	}(reg.name)
}

func (h *ServiceHost) rollback(started []*registration) {
	ctx, cancel := context.WithTimeout(context.Background(), defaultShutdownTimeout)
	defer cancel()
	for i := len(started) - 1; i >= 0; i-- {
		h.halt(ctx, started[i]) // errors are irrelevant during rollback
	}
}
