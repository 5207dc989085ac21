package bridge

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"sort"
	"sync"
	"time"

	"github.com/hmibridge/hmibridge/internal/eventbus"
	"github.com/hmibridge/hmibridge/internal/protocol"
)

// DefaultWriteTimeout bounds a single frame write to a peer.
const DefaultWriteTimeout = 5 * time.Second

// Options configures a Server.
type Options struct {
	Addr          string
	MaxFrameBytes int
	WriteTimeout  time.Duration
	Bus           *eventbus.Bus
}

// PeerInfo describes a connected host.
type PeerInfo struct {
	ID     string `json:"id"`
	Remote string `json:"remote"`
}

// Server accepts host connections and keeps the broadcast peer set.
type Server struct {
	addr         string
	maxFrame     int
	writeTimeout time.Duration
	bus          *eventbus.Bus
	dispatcher   *Dispatcher

	mu       sync.RWMutex
	listener net.Listener
	peers    map[string]*Session
	wg       sync.WaitGroup
	cancel   context.CancelFunc
}

// NewServer builds a server; Start binds the listener.
func NewServer(opts Options) *Server {
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = DefaultWriteTimeout
	}
	if opts.MaxFrameBytes <= 0 {
		opts.MaxFrameBytes = protocol.DefaultMaxFrameBytes
	}
	return &Server{
		addr:         opts.Addr,
		maxFrame:     opts.MaxFrameBytes,
		writeTimeout: opts.WriteTimeout,
		bus:          opts.Bus,
		dispatcher:   NewDispatcher(opts.Bus),
		peers:        make(map[string]*Session),
	}
}

// Dispatcher returns the dispatcher used for inbound frames.
func (s *Server) Dispatcher() *Dispatcher { return s.dispatcher }

// Start binds the listening endpoint and begins accepting connections. A
// bind failure is returned immediately and is fatal to the caller.
func (s *Server) Start(ctx context.Context) error {
	if s.addr == "" {
		return fmt.Errorf("bridge: listen address is empty")
	}
	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("bridge: listen %s: %w", s.addr, err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	s.listener = listener
	s.cancel = cancel
	s.mu.Unlock()

	log.Printf("[Bridge] listening on %s", listener.Addr())

	s.wg.Add(1)
	go s.acceptLoop(runCtx, listener)
	return nil
}

// Addr returns the bound address, or nil before Start.
func (s *Server) Addr() net.Addr {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Shutdown stops accepting, disconnects every peer and waits for their
// goroutines or ctx.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	listener := s.listener
	s.listener = nil
	cancel := s.cancel
	peers := make([]*Session, 0, len(s.peers))
	for _, p := range s.peers {
		peers = append(peers, p)
	}
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if listener != nil {
		listener.Close()
	}
	for _, p := range peers {
		p.Close()
	}

	return eventbus.WaitForWorkers(ctx, &s.wg)
}

func (s *Server) acceptLoop(ctx context.Context, listener net.Listener) {
	defer s.wg.Done()

	for {
		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return
			}
			log.Printf("[Bridge] accept failed: %v", err)
			continue
		}

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.ServeConn(ctx, conn)
		}()
	}
}

// ServeConn runs a session over conn until it ends. The connection is
// closed on return.
func (s *Server) ServeConn(ctx context.Context, conn net.Conn) {
	sess := newSession(conn, s.maxFrame, s.writeTimeout)
	s.addPeer(ctx, sess)

	err := sess.serve(ctx, s.dispatcher)
	reason := "closed"
	if err != nil {
		reason = err.Error()
		log.Printf("[Bridge] peer %s (%s) dropped: %v", sess.ID, sess.Remote, err)
	}
	s.removePeer(ctx, sess, reason)
}

func (s *Server) addPeer(ctx context.Context, sess *Session) {
	s.mu.Lock()
	s.peers[sess.ID] = sess
	count := len(s.peers)
	s.mu.Unlock()

	log.Printf("[Bridge] peer %s connected from %s", sess.ID, sess.Remote)
	if count > 1 {
		log.Printf("[Bridge] %d peers connected; only one host is expected", count)
	}
	eventbus.Publish(ctx, s.bus, eventbus.Peers.Lifecycle, eventbus.SourceBridge, eventbus.PeerLifecycleEvent{
		PeerID: sess.ID,
		Remote: sess.Remote,
		State:  eventbus.PeerConnected,
	})
}

func (s *Server) removePeer(ctx context.Context, sess *Session, reason string) {
	s.mu.Lock()
	_, present := s.peers[sess.ID]
	delete(s.peers, sess.ID)
	s.mu.Unlock()

	sess.Close()
	if !present {
		return
	}
	// The serve context may already be cancelled during shutdown.
	eventbus.Publish(context.WithoutCancel(ctx), s.bus, eventbus.Peers.Lifecycle, eventbus.SourceBridge, eventbus.PeerLifecycleEvent{
		PeerID: sess.ID,
		Remote: sess.Remote,
		State:  eventbus.PeerDisconnected,
		Reason: reason,
	})
}

// Broadcast writes frame to every connected peer without waiting for
// acknowledgements and returns how many peers accepted it. Peers that fail
// the write are disconnected.
func (s *Server) Broadcast(frame string) int {
	s.mu.RLock()
	peers := make([]*Session, 0, len(s.peers))
	for _, p := range s.peers {
		peers = append(peers, p)
	}
	s.mu.RUnlock()

	delivered := 0
	for _, p := range peers {
		if err := p.Write(frame); err != nil {
			log.Printf("[Bridge] broadcast to %s failed: %v", p.ID, err)
			p.Close()
			continue
		}
		delivered++
	}
	if len(peers) == 0 {
		log.Printf("[Bridge] no peer connected, dropped %q", trimFrame(frame))
	}
	return delivered
}

// Peers lists connected hosts ordered by id.
func (s *Server) Peers() []PeerInfo {
	s.mu.RLock()
	out := make([]PeerInfo, 0, len(s.peers))
	for _, p := range s.peers {
		out = append(out, PeerInfo{ID: p.ID, Remote: p.Remote})
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func trimFrame(frame string) string {
	if n := len(frame); n > 0 && frame[n-1] == protocol.Sentinel {
		return frame[:n-1]
	}
	return frame
}
