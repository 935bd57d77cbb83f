// Package netproto implements the RPC & Channel Layer shared by every
// component: length-prefixed framing, the request/response envelope,
// the untyped client and its mailbox registry, the generic typed
// façade, and the server runtime that mirrors it from the accept side.
package netproto

import (
	"encoding/binary"
	"fmt"
	"io"
	"sync"
)

// ErrEndOfStream is returned by FramedConn.ReadFrame when the peer
// closed the connection at a frame boundary.
var ErrEndOfStream = io.EOF

// frameHeaderLen is the width of the big-endian length prefix (C1).
const frameHeaderLen = 8

// FramedConn reads and writes length-prefixed frames over a bidirectional
// byte stream. Wire framing: an 8-byte big-endian unsigned length,
// followed by that many bytes of payload. No partial frame is ever
// delivered to the caller.
type FramedConn struct {
	rw           io.ReadWriteCloser
	maxFrameSize uint64

	readMu  sync.Mutex
	writeMu sync.Mutex
}

// NewFramedConn wraps rw with length-prefixed framing, rejecting any
// frame whose declared length exceeds maxFrameSize.
func NewFramedConn(rw io.ReadWriteCloser, maxFrameSize uint64) *FramedConn {
	return &FramedConn{rw: rw, maxFrameSize: maxFrameSize}
}

// ReadFrame blocks until one full frame is available, returning its
// payload. A short read exactly at a frame boundary is reported as
// ErrEndOfStream; a short read mid-frame is a protocol error.
func (f *FramedConn) ReadFrame() ([]byte, error) {
	f.readMu.Lock()
	defer f.readMu.Unlock()

	var header [frameHeaderLen]byte
	if _, err := io.ReadFull(f.rw, header[:]); err != nil {
		if err == io.EOF {
			return nil, ErrEndOfStream
		}
		return nil, fmt.Errorf("netproto: read frame header: %w", err)
	}

	length := binary.BigEndian.Uint64(header[:])
	if length > f.maxFrameSize {
		return nil, fmt.Errorf("netproto: frame of %d bytes exceeds cap of %d bytes", length, f.maxFrameSize)
	}

	payload := make([]byte, length)
	if _, err := io.ReadFull(f.rw, payload); err != nil {
		return nil, fmt.Errorf("netproto: read frame payload: %w", err)
	}
	return payload, nil
}

// WriteFrame writes one length-prefixed frame. Concurrent WriteFrame
// calls are serialized so that frames are never interleaved.
func (f *FramedConn) WriteFrame(payload []byte) error {
	if uint64(len(payload)) > f.maxFrameSize {
		return fmt.Errorf("netproto: outgoing frame of %d bytes exceeds cap of %d bytes", len(payload), f.maxFrameSize)
	}

	f.writeMu.Lock()
	defer f.writeMu.Unlock()

	var header [frameHeaderLen]byte
	binary.BigEndian.PutUint64(header[:], uint64(len(payload)))

	if _, err := f.rw.Write(header[:]); err != nil {
		return fmt.Errorf("netproto: write frame header: %w", err)
	}
	if len(payload) > 0 {
		if _, err := f.rw.Write(payload); err != nil {
			return fmt.Errorf("netproto: write frame payload: %w", err)
		}
	}
	return nil
}

// Close closes the underlying stream.
func (f *FramedConn) Close() error {
	return f.rw.Close()
}
