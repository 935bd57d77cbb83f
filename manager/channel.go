package manager

import (
	"sync"
	"sync/atomic"
)

// RawChannel is a full-duplex byte stream tunneled through the manager
// (C7). It is addressed by a channel id scoped to one connection; data
// frames in either direction carry that id. Multiple channels per
// connection are independent; closing one never affects the others.
type RawChannel struct {
	id     uint64
	connID uint64

	toClient chan []byte // frames read from the remote connection, for the client
	toRemote chan []byte // frames from the client, to write to the remote connection

	closeOnce sync.Once
	closed    atomic.Bool
	done      chan struct{}
}

func newRawChannel(id, connID uint64) *RawChannel {
	return &RawChannel{
		id:       id,
		connID:   connID,
		toClient: make(chan []byte, 16),
		toRemote: make(chan []byte, 16),
		done:     make(chan struct{}),
	}
}

// ID returns the channel id used on ChannelData/ChannelClosed frames.
func (c *RawChannel) ID() uint64 { return c.id }

// FromClient delivers one frame the client sent for this channel, to be
// written to the remote connection's side of the tunnel. Unknown channel
// ids are dropped by the caller before reaching here (spec §4.6).
func (c *RawChannel) FromClient(frame []byte) {
	select {
	case c.toRemote <- frame:
	case <-c.done:
	}
}

// ToClient returns the channel over which frames bound for the client
// are delivered, consumed by the connection's per-channel pump.
func (c *RawChannel) ToClient() <-chan []byte { return c.toClient }

// ToRemote returns the channel over which frames bound for the remote
// connection are delivered.
func (c *RawChannel) ToRemote() <-chan []byte { return c.toRemote }

// deliverFromRemote pushes one frame read off the remote connection,
// destined for the client.
func (c *RawChannel) deliverFromRemote(frame []byte) {
	select {
	case c.toClient <- frame:
	case <-c.done:
	}
}

// Close is idempotent; either side may call it.
func (c *RawChannel) Close() {
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		close(c.done)
	})
}

// IsClosed reports whether Close has been called.
func (c *RawChannel) IsClosed() bool { return c.closed.Load() }

// openChannel registers a channel under a manager-wide id (allocated by
// the caller's global counter, since ChannelData/CloseChannel frames
// carry only a channel id with no accompanying connection id).
func (conn *connection) openChannel(id uint64) *RawChannel {
	conn.channelsMu.Lock()
	defer conn.channelsMu.Unlock()

	ch := newRawChannel(id, conn.info.ID)
	conn.channels[id] = ch
	return ch
}

func (conn *connection) getChannel(id uint64) (*RawChannel, bool) {
	conn.channelsMu.Lock()
	defer conn.channelsMu.Unlock()
	ch, ok := conn.channels[id]
	return ch, ok
}

func (conn *connection) closeChannel(id uint64) {
	conn.channelsMu.Lock()
	ch, ok := conn.channels[id]
	delete(conn.channels, id)
	conn.channelsMu.Unlock()
	if ok {
		ch.Close()
	}
}

func (conn *connection) closeAllChannels() {
	conn.channelsMu.Lock()
	channels := conn.channels
	conn.channels = make(map[uint64]*RawChannel)
	conn.channelsMu.Unlock()
	for _, ch := range channels {
		ch.Close()
	}
}
