package bridge

import (
	"bufio"
	"context"
	"errors"
	"io"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/hmibridge/hmibridge/internal/eventbus"
	"github.com/hmibridge/hmibridge/internal/protocol"
)

// readFrames reads n sentinel-terminated frames from conn.
func readFrames(t *testing.T, conn net.Conn, n int) []string {
	t.Helper()
	if err := conn.SetReadDeadline(time.Now().Add(2 * time.Second)); err != nil {
		t.Fatalf("set deadline: %v", err)
	}
	r := bufio.NewReader(conn)
	frames := make([]string, 0, n)
	for len(frames) < n {
		raw, err := r.ReadString(protocol.Sentinel)
		if err != nil {
			t.Fatalf("read frame %d: %v", len(frames), err)
		}
		frames = append(frames, raw)
	}
	return frames
}

func TestServeConnAcknowledgesInOrder(t *testing.T) {
	bus := eventbus.New()
	defer bus.Shutdown()
	loaded := eventbus.SubscribeTo(bus, eventbus.Pedalboard.Loaded)
	defer loaded.Close()

	srv := NewServer(Options{Bus: bus})
	client, server := net.Pipe()
	defer client.Close()

	done := make(chan struct{})
	go func() {
		defer close(done)
		srv.ServeConn(context.Background(), server)
	}()

	// The first frame arrives split across two writes; the empty frame is
	// skipped without an ack.
	go func() {
		io.WriteString(client, "pi")
		io.WriteString(client, "ng\x00\x00pedalboard-load 3 some/uri\x00bogus\x00pedalboard-load abc\x00")
	}()

	acks := readFrames(t, client, 4)
	want := []string{ackOK, ackOK, ackErr, ackErr}
	for i := range want {
		if acks[i] != want[i] {
			t.Fatalf("ack %d = %q, want %q", i, acks[i], want[i])
		}
	}

	env := expectEvent(t, loaded)
	if env.Payload.Index != 3 || env.Payload.Identifier != "some/uri" {
		t.Fatalf("loaded = %+v", env.Payload)
	}
	expectNoEvent(t, loaded)

	if peers := srv.Peers(); len(peers) != 1 || peers[0].ID != env.CorrelationID {
		t.Fatalf("peers = %+v, correlation %q", peers, env.CorrelationID)
	}

	client.Close()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("ServeConn did not return after client close")
	}
	if peers := srv.Peers(); len(peers) != 0 {
		t.Fatalf("peer not removed: %+v", peers)
	}
}

func TestServeConnOversizedFrameDropsPeer(t *testing.T) {
	bus := eventbus.New()
	defer bus.Shutdown()
	lifecycle := eventbus.SubscribeTo(bus, eventbus.Peers.Lifecycle)
	defer lifecycle.Close()

	srv := NewServer(Options{Bus: bus, MaxFrameBytes: 16})
	client, server := net.Pipe()
	defer client.Close()

	done := make(chan struct{})
	go func() {
		defer close(done)
		srv.ServeConn(context.Background(), server)
	}()

	if got := expectEvent(t, lifecycle).Payload.State; got != eventbus.PeerConnected {
		t.Fatalf("state = %q", got)
	}

	go io.WriteString(client, strings.Repeat("x", 64))

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("oversized frame did not tear down the session")
	}

	ev := expectEvent(t, lifecycle).Payload
	if ev.State != eventbus.PeerDisconnected || !strings.Contains(ev.Reason, "exceeds") {
		t.Fatalf("disconnect event = %+v", ev)
	}

	client.SetReadDeadline(time.Now().Add(time.Second))
	if _, err := client.Read(make([]byte, 1)); err == nil {
		t.Fatal("expected closed connection")
	}
}

func TestServerBroadcastAndShutdown(t *testing.T) {
	bus := eventbus.New()
	defer bus.Shutdown()
	lifecycle := eventbus.SubscribeTo(bus, eventbus.Peers.Lifecycle)
	defer lifecycle.Close()

	srv := NewServer(Options{Addr: "127.0.0.1:0", Bus: bus})
	if got := srv.Broadcast(protocol.EncodeTuner(true)); got != 0 {
		t.Fatalf("broadcast with no peers = %d", got)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := srv.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}

	conn, err := net.Dial("tcp", srv.Addr().String())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	if got := expectEvent(t, lifecycle).Payload.State; got != eventbus.PeerConnected {
		t.Fatalf("state = %q", got)
	}

	if got := srv.Broadcast(protocol.EncodeTuner(true)); got != 1 {
		t.Fatalf("broadcast delivered to %d peers", got)
	}
	cmds := NewCommands(srv, nil)
	if got := cmds.SetTempo(120); got != 1 {
		t.Fatalf("SetTempo delivered to %d peers", got)
	}

	frames := readFrames(t, conn, 2)
	if frames[0] != "tuner-on\x00" || frames[1] != "menu-item-set 9 120.0\x00" {
		t.Fatalf("frames = %q", frames)
	}

	shutdownCtx, done := context.WithTimeout(context.Background(), 2*time.Second)
	defer done()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}

	conn.SetReadDeadline(time.Now().Add(time.Second))
	if _, err := conn.Read(make([]byte, 1)); err == nil {
		t.Fatal("expected connection closed by shutdown")
	}
	if got := expectEvent(t, lifecycle).Payload.State; got != eventbus.PeerDisconnected {
		t.Fatalf("state = %q", got)
	}
}

func TestServerStartBindFailure(t *testing.T) {
	occupied, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer occupied.Close()

	srv := NewServer(Options{Addr: occupied.Addr().String()})
	if err := srv.Start(context.Background()); err == nil {
		srv.Shutdown(context.Background())
		t.Fatal("expected bind failure")
	}

	var opErr *net.OpError
	err = NewServer(Options{Addr: occupied.Addr().String()}).Start(context.Background())
	if !errors.As(err, &opErr) {
		t.Fatalf("expected wrapped *net.OpError, got %v", err)
	}

	if err := NewServer(Options{}).Start(context.Background()); err == nil {
		t.Fatal("expected error for empty address")
	}
}
