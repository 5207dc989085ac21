package protocol

import (
	"bytes"
	"errors"
	"strings"
)

// Sentinel terminates every frame on the wire.
const Sentinel byte = 0

// DefaultMaxFrameBytes bounds the un-terminated data a single peer may buffer.
const DefaultMaxFrameBytes = 64 * 1024

// ErrFrameTooLarge is returned by FrameReader.Feed when a peer keeps sending
// data without a sentinel beyond the configured limit.
var ErrFrameTooLarge = errors.New("protocol: frame exceeds buffer limit")

// FrameReader turns a byte stream into frames. It is owned by a single
// connection goroutine and is not safe for concurrent use.
type FrameReader struct {
	buf []byte
	max int
}

// NewFrameReader creates a reader that refuses to buffer more than max bytes
// of un-terminated data. A non-positive max selects DefaultMaxFrameBytes.
func NewFrameReader(max int) *FrameReader {
	if max <= 0 {
		max = DefaultMaxFrameBytes
	}
	return &FrameReader{max: max}
}

// Feed appends chunk and returns every complete, non-empty frame in arrival
// order. Frames are trimmed of surrounding whitespace.
func (r *FrameReader) Feed(chunk []byte) ([]string, error) {
	r.buf = append(r.buf, chunk...)

	var frames []string
	for {
		idx := bytes.IndexByte(r.buf, Sentinel)
		if idx < 0 {
			break
		}
		text := strings.TrimSpace(string(r.buf[:idx]))
		r.buf = r.buf[idx+1:]
		if text == "" {
			continue
		}
		frames = append(frames, text)
	}

	if len(r.buf) == 0 {
		// release the backing array once everything is consumed
		r.buf = nil
	} else if len(r.buf) > r.max {
		r.buf = nil
		return frames, ErrFrameTooLarge
	}
	return frames, nil
}

// Buffered reports the number of bytes waiting for a sentinel.
func (r *FrameReader) Buffered() int {
	return len(r.buf)
}

// Reset discards any partially received frame.
func (r *FrameReader) Reset() {
	r.buf = nil
}
