// Copyright 2026 The Warden Authors
// SPDX-License-Identifier: Apache-2.0

package wire

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"net"
	"sync"
	"time"

	"github.com/warden-fleet/warden/lib/codec"
)

// DefaultMaxFrameLength bounds a single message on the wire. 64 MiB
// comfortably fits the largest legal message (one transfer chunk plus
// envelope overhead) while keeping the worst-case buffering per
// connection finite. Raising this is a configuration decision, not a
// protocol change.
const DefaultMaxFrameLength = 64 << 20

// frameHeaderSize is the length prefix: a 4-byte big-endian uint32.
const frameHeaderSize = 4

// ErrFrameTooLarge is returned by Receive when the peer announces a
// frame larger than the configured bound, and by Send when the
// encoded message would exceed it. The connection is unusable after
// a Receive returns this error — the oversized frame body is still
// in the stream.
var ErrFrameTooLarge = errors.New("frame exceeds maximum length")

// Conn presents a byte stream (normally a *tls.Conn) as a sequence of
// typed messages. Send and Receive may be called from different
// goroutines; concurrent Sends are serialized, concurrent Receives
// are not supported (the protocol has a single reader per side).
type Conn struct {
	conn           net.Conn
	maxFrameLength uint32

	// sendMu keeps a frame's header and body contiguous on the wire
	// when multiple goroutines send on one connection.
	sendMu sync.Mutex
}

// NewConn wraps conn with framing. maxFrameLength <= 0 selects
// DefaultMaxFrameLength; anything beyond what the 4-byte header can
// express is capped there.
func NewConn(conn net.Conn, maxFrameLength int) *Conn {
	if maxFrameLength <= 0 {
		maxFrameLength = DefaultMaxFrameLength
	}
	if uint64(maxFrameLength) > math.MaxUint32 {
		maxFrameLength = math.MaxUint32
	}
	return &Conn{conn: conn, maxFrameLength: uint32(maxFrameLength)}
}

// Send encodes v as CBOR and writes it as one frame. The context
// deadline, if any, bounds the write.
func (c *Conn) Send(ctx context.Context, v any) error {
	payload, err := codec.Marshal(v)
	if err != nil {
		return fmt.Errorf("encoding message: %w", err)
	}
	if !c.payloadFits(len(payload)) {
		return fmt.Errorf("%w: message is %d bytes, maximum %d",
			ErrFrameTooLarge, len(payload), c.maxFrameLength)
	}

	// Header and payload go out in a single Write so a frame is never
	// interleaved with another sender's frame.
	frame := make([]byte, frameHeaderSize+len(payload))
	binary.BigEndian.PutUint32(frame, uint32(len(payload)))
	copy(frame[frameHeaderSize:], payload)

	c.sendMu.Lock()
	defer c.sendMu.Unlock()

	c.applyDeadline(ctx, c.conn.SetWriteDeadline)
	if _, err := c.conn.Write(frame); err != nil {
		return fmt.Errorf("writing frame: %w", err)
	}
	return nil
}

// Receive reads one frame and decodes it into v. It blocks until a
// full frame arrives, the context deadline passes, or the connection
// closes. A clean close before any header byte is io.EOF; a close
// mid-frame is io.ErrUnexpectedEOF. A decode failure or an oversized
// frame leaves the stream unsynchronized — the caller must tear the
// connection down.
func (c *Conn) Receive(ctx context.Context, v any) error {
	c.applyDeadline(ctx, c.conn.SetReadDeadline)

	var header [frameHeaderSize]byte
	if _, err := io.ReadFull(c.conn, header[:]); err != nil {
		if err == io.EOF {
			return io.EOF
		}
		return fmt.Errorf("reading frame header: %w", err)
	}

	length := binary.BigEndian.Uint32(header[:])
	if length > c.maxFrameLength {
		return fmt.Errorf("%w: peer announced %d bytes, maximum %d",
			ErrFrameTooLarge, length, c.maxFrameLength)
	}

	payload := make([]byte, length)
	if _, err := io.ReadFull(c.conn, payload); err != nil {
		return fmt.Errorf("reading frame body: %w", err)
	}

	if err := codec.Unmarshal(payload, v); err != nil {
		return fmt.Errorf("decoding message: %w", err)
	}
	return nil
}

// payloadFits reports whether a payload of n bytes is within the
// frame bound. The comparison widens both sides so a payload past
// 4 GiB cannot wrap the 32-bit header length and slip through.
func (c *Conn) payloadFits(n int) bool {
	return uint64(n) <= uint64(c.maxFrameLength)
}

// applyDeadline maps the context deadline onto a connection deadline
// setter. Without a deadline the previous one is cleared, so a call
// with a deadline does not poison later calls without one.
func (c *Conn) applyDeadline(ctx context.Context, set func(time.Time) error) {
	if deadline, ok := ctx.Deadline(); ok {
		set(deadline)
		return
	}
	set(time.Time{})
}

// LocalAddr returns the local socket address.
func (c *Conn) LocalAddr() net.Addr { return c.conn.LocalAddr() }

// RemoteAddr returns the peer's socket address.
func (c *Conn) RemoteAddr() net.Addr { return c.conn.RemoteAddr() }

// Close closes the underlying connection. Any blocked Send or
// Receive returns with an error.
func (c *Conn) Close() error { return c.conn.Close() }
