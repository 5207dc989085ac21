package bridge

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hmibridge/hmibridge/internal/protocol"
)

const readChunkSize = 4096

// Session is one host connection. Only its serve goroutine touches the
// frame reader; writes from acks and broadcasts are serialised by writeMu.
type Session struct {
	ID     string
	Remote string

	conn         net.Conn
	reader       *protocol.FrameReader
	writeTimeout time.Duration

	writeMu   sync.Mutex
	closeOnce sync.Once
}

func newSession(conn net.Conn, maxFrame int, writeTimeout time.Duration) *Session {
	remote := ""
	if addr := conn.RemoteAddr(); addr != nil {
		remote = addr.String()
	}
	return &Session{
		ID:           uuid.NewString(),
		Remote:       remote,
		conn:         conn,
		reader:       protocol.NewFrameReader(maxFrame),
		writeTimeout: writeTimeout,
	}
}

// Write sends one encoded frame, bounded by the write timeout.
func (s *Session) Write(frame string) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if s.writeTimeout > 0 {
		if err := s.conn.SetWriteDeadline(time.Now().Add(s.writeTimeout)); err != nil {
			return fmt.Errorf("bridge: set write deadline: %w", err)
		}
	}
	if _, err := io.WriteString(s.conn, frame); err != nil {
		return fmt.Errorf("bridge: write to %s: %w", s.ID, err)
	}
	return nil
}

// Close tears down the connection. It is safe to call more than once.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.conn.Close()
	})
}

// serve reads frames until the peer disconnects, ctx is cancelled or the
// peer overflows the frame buffer. Each frame is acknowledged before the
// next one is dispatched. A clean disconnect returns nil.
func (s *Session) serve(ctx context.Context, d *Dispatcher) error {
	stop := context.AfterFunc(ctx, s.Close)
	defer stop()

	buf := make([]byte, readChunkSize)
	for {
		n, readErr := s.conn.Read(buf)
		if n > 0 {
			frames, err := s.reader.Feed(buf[:n])
			for _, frame := range frames {
				if werr := s.Write(d.Dispatch(ctx, s.ID, frame)); werr != nil {
					return werr
				}
			}
			if err != nil {
				return err
			}
		}
		if readErr != nil {
			if errors.Is(readErr, io.EOF) || errors.Is(readErr, net.ErrClosed) || ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("bridge: read from %s: %w", s.ID, readErr)
		}
	}
}
