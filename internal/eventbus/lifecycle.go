package eventbus

import (
	"context"
	"sync"
)

// Consume forwards typed payloads from sub to handler until ctx is done or
// the subscription closes.
func Consume[T any](ctx context.Context, sub *TypedSubscription[T], wg *sync.WaitGroup, handler func(T)) {
	ConsumeEnvelope(ctx, sub, wg, func(env TypedEnvelope[T]) {
		handler(env.Payload)
	})
}

// ConsumeEnvelope is Consume with access to the full envelope.
func ConsumeEnvelope[T any](ctx context.Context, sub *TypedSubscription[T], wg *sync.WaitGroup, handler func(TypedEnvelope[T])) {
	if wg != nil {
		defer wg.Done()
	}
	if sub == nil {
		return
	}
	for {
		select {
		case <-ctx.Done():
			return
		case env, ok := <-sub.C():
			if !ok {
				return
			}
			handler(env)
		}
	}
}

// Closer is anything that can be closed on shutdown.
type Closer interface {
	Close()
}

// ServiceLifecycle bundles the context, subscriptions and workers of a
// bus-driven service.
type ServiceLifecycle struct {
	ctx    context.Context
	cancel context.CancelFunc

	mu   sync.Mutex
	subs []Closer
	wg   sync.WaitGroup
}

// Start derives the service context from ctx.
func (l *ServiceLifecycle) Start(ctx context.Context) {
	l.ctx, l.cancel = context.WithCancel(ctx)
}

// Context returns the active service context.
func (l *ServiceLifecycle) Context() context.Context {
	return l.ctx
}

// AddSubscriptions registers subscriptions to close on Stop.
func (l *ServiceLifecycle) AddSubscriptions(subs ...Closer) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, s := range subs {
		if s != nil {
			l.subs = append(l.subs, s)
		}
	}
}

// Go runs worker under the lifecycle wait group.
func (l *ServiceLifecycle) Go(worker func(ctx context.Context)) {
	if worker == nil {
		return
	}
	l.wg.Add(1)
	go func(ctx context.Context) {
		defer l.wg.Done()
		worker(ctx)
	}(l.ctx)
}

// Stop cancels the context and closes tracked subscriptions.
func (l *ServiceLifecycle) Stop() {
	if l.cancel != nil {
		l.cancel()
	}
	l.mu.Lock()
	subs := l.subs
	l.subs = nil
	l.mu.Unlock()
	for _, s := range subs {
		s.Close()
	}
}

// Shutdown stops the lifecycle and waits for workers or ctx.
func (l *ServiceLifecycle) Shutdown(ctx context.Context) error {
	l.Stop()
	return WaitForWorkers(ctx, &l.wg)
}

// WaitForWorkers waits for wg or returns ctx.Err().
func WaitForWorkers(ctx context.Context, wg *sync.WaitGroup) error {
	if wg == nil {
		return nil
	}
	done := make(chan struct{})
	go func() {
		defer close(done)
		wg.Wait()
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
