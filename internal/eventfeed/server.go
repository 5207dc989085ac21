package eventfeed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/hmibridge/hmibridge/internal/bridge"
	"github.com/hmibridge/hmibridge/internal/eventbus"
)

// Options configures the feed server.
type Options struct {
	// Addr is the HTTP listen address. Empty disables the feed.
	Addr     string
	Bus      *eventbus.Bus
	Commands *bridge.Commands
	// Status, when set, is served on GET /status and in the hello message.
	Status func() any
	// Metrics, when set, is served on GET /metrics in the Prometheus text
	// format.
	Metrics func() []byte
	// AllowOrigin validates the Origin header of upgrade requests. Requests
	// without an Origin are always accepted.
	AllowOrigin func(origin string) bool
}

// Server publishes every bus topic to websocket clients on GET /events.
type Server struct {
	opts     Options
	hub      *hub
	upgrader websocket.Upgrader

	lifecycle eventbus.ServiceLifecycle

	mu       sync.Mutex
	http     *http.Server
	listener net.Listener
	serveWG  sync.WaitGroup
}

// New builds a feed server; Start binds it.
func New(opts Options) *Server {
	s := &Server{opts: opts, hub: newHub()}
	s.upgrader = websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" {
				return true
			}
			if opts.AllowOrigin != nil {
				return opts.AllowOrigin(origin)
			}
			return false
		},
	}
	return s
}

// Handler returns the HTTP routes of the feed.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /events", s.handleEvents)
	mux.HandleFunc("GET /status", s.handleStatus)
	mux.HandleFunc("GET /metrics", s.handleMetrics)
	return mux
}

// Start subscribes to the bus and begins serving. With an empty address the
// feed stays disabled and Start returns nil.
func (s *Server) Start(ctx context.Context) error {
	if s.opts.Addr == "" {
		log.Printf("[EventFeed] disabled (no address configured)")
		return nil
	}

	listener, err := net.Listen("tcp", s.opts.Addr)
	if err != nil {
		return fmt.Errorf("eventfeed: listen %s: %w", s.opts.Addr, err)
	}

	s.lifecycle.Start(ctx)
	for _, topic := range eventbus.AllTopics() {
		sub := s.opts.Bus.Subscribe(topic, eventbus.WithSubscriptionName("eventfeed"))
		s.lifecycle.AddSubscriptions(sub)
		s.lifecycle.Go(func(ctx context.Context) { s.forward(ctx, sub) })
	}

	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.mu.Lock()
	s.http = srv
	s.listener = listener
	s.mu.Unlock()

	s.serveWG.Add(1)
	go func() {
		defer s.serveWG.Done()
		if err := srv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("[EventFeed] serve: %v", err)
		}
	}()

	log.Printf("[EventFeed] serving on http://%s/events", listener.Addr())
	return nil
}

// Addr returns the bound address, or nil when the feed is not running.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// ClientCount reports the number of connected feed clients.
func (s *Server) ClientCount() int {
	return s.hub.count()
}

// Shutdown stops the HTTP server, disconnects clients and waits for the
// forwarding workers.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	srv := s.http
	s.http = nil
	s.listener = nil
	s.mu.Unlock()

	if srv == nil {
		return nil
	}

	err := srv.Shutdown(ctx)
	s.hub.closeAll()
	if lerr := s.lifecycle.Shutdown(ctx); err == nil {
		err = lerr
	}
	if werr := eventbus.WaitForWorkers(ctx, &s.serveWG); err == nil {
		err = werr
	}
	return err
}

func (s *Server) forward(ctx context.Context, sub *eventbus.Subscription) {
	for {
		select {
		case <-ctx.Done():
			return
		case env, ok := <-sub.C():
			if !ok {
				return
			}
			payload, err := encode(Message{Type: string(env.Topic), Data: env.Payload, Timestamp: env.Timestamp})
			if err != nil {
				log.Printf("[EventFeed] encode %s: %v", env.Topic, err)
				continue
			}
			if dropped := s.hub.broadcast(payload); dropped > 0 {
				log.Printf("[EventFeed] %d slow client(s) missed %s", dropped, env.Topic)
			}
		}
	}
}

func (s *Server) status() any {
	if s.opts.Status == nil {
		return nil
	}
	return s.opts.Status()
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(s.status()); err != nil {
		log.Printf("[EventFeed] write status: %v", err)
	}
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	if s.opts.Metrics == nil {
		http.Error(w, "metrics not available", http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "text/plain; version=0.0.4")
	if _, err := w.Write(s.opts.Metrics()); err != nil {
		log.Printf("[EventFeed] write metrics: %v", err)
	}
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[EventFeed] upgrade error: %v", err)
		return
	}

	c := &client{
		id:     uuid.NewString(),
		conn:   conn,
		send:   make(chan []byte, sendBuffer),
		server: s,
	}
	s.hub.register(c)
	log.Printf("[EventFeed] client %s connected from %s", c.id, r.RemoteAddr)

	c.reply(Message{Type: TypeHello, Data: Hello{ClientID: c.id, Status: s.status()}})

	go c.writePump()
	go c.readPump()
}

func (s *Server) handleCommand(c *client, msg Message) {
	if s.opts.Commands == nil {
		c.sendError(msg.Action, "commands are not available")
		return
	}
	delivered, err := execute(s.opts.Commands, msg.Action, msg.Args)
	if err != nil {
		log.Printf("[EventFeed] command %q from %s rejected: %v", msg.Action, c.id, err)
		c.sendError(msg.Action, err.Error())
		return
	}
	c.reply(Message{Type: TypeCommandResult, Action: msg.Action, Data: CommandResult{Delivered: delivered}})
}
