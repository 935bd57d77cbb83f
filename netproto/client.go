package netproto

import (
	"context"
	"encoding/hex"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/smnsjas/go-distant/config"
)

// TerminalFunc reports whether a response payload is domain-terminal
// (e.g. Connected, Launched, Error, Killed, Capabilities): after such a
// response is delivered, the mailbox that received it is closed and
// removed from the registry (C3 invariant 2).
type TerminalFunc func(Variant) bool

type sinkKind int

const (
	sinkOneshot sinkKind = iota
	sinkMulti
)

// sink is the registry's entry: either enum arm {Oneshot(...), Multi(...)}
// as described in spec §9's design note, modeled here as a tagged struct
// to avoid dynamic dispatch on the hot path.
type sink struct {
	kind sinkKind
	once chan *Response // buffered 1, used when kind == sinkOneshot
	box  *Mailbox        // used when kind == sinkMulti
}

// UntypedClient sends frames and routes incoming responses by origin_id
// to per-request mailboxes (multi-response) or one-shot slots (C3). It
// drives one reader task and one writer task per connection.
type UntypedClient struct {
	conn     *FramedConn
	codec    *Codec
	respReg  *Registry
	cfg      config.MailboxConfig
	terminal TerminalFunc
	logger   *slog.Logger

	outbound chan outboundFrame

	mu    sync.Mutex
	sinks map[string]*sink

	closeOnce sync.Once
	closed    chan struct{}
	closeErr  error

	wg sync.WaitGroup
}

type outboundFrame struct {
	payload []byte
	errCh   chan error
}

// NewUntypedClient wires a reader and writer goroutine over conn.
// respReg resolves the tagged-union Payload of incoming Responses.
func NewUntypedClient(conn *FramedConn, codec *Codec, respReg *Registry, terminal TerminalFunc, cfg config.MailboxConfig, logger *slog.Logger) *UntypedClient {
	if logger == nil {
		logger = slog.Default()
	}
	c := &UntypedClient{
		conn:     conn,
		codec:    codec,
		respReg:  respReg,
		cfg:      cfg,
		terminal: terminal,
		logger:   logger,
		outbound: make(chan outboundFrame, cfg.OutboundQueueSize),
		sinks:    make(map[string]*sink),
		closed:   make(chan struct{}),
	}
	c.wg.Add(2)
	go c.writeLoop()
	go c.readLoop()
	return c
}

func newRequestID() string {
	id := uuid.New()
	return hex.EncodeToString(id[:8])
}

// Send writes req and blocks until exactly one reply arrives, or ctx is
// done, or the configured SendTimeout elapses.
func (c *UntypedClient) Send(ctx context.Context, payload Variant) (*Response, error) {
	id := newRequestID()
	s := &sink{kind: sinkOneshot, once: make(chan *Response, 1)}

	if err := c.register(id, s); err != nil {
		return nil, err
	}
	defer c.unregister(id)

	if err := c.enqueue(ctx, Request{ID: id, Payload: payload}); err != nil {
		return nil, err
	}

	if c.cfg.SendTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.SendTimeout)
		defer cancel()
	}

	select {
	case resp, ok := <-s.once:
		if !ok {
			return nil, fmt.Errorf("netproto: client closed: %w", c.closeErrSnapshot())
		}
		return resp, nil
	case <-c.closed:
		return nil, fmt.Errorf("netproto: client closed: %w", c.closeErrSnapshot())
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Mail writes req and returns a Mailbox yielding every reply until a
// terminal variant arrives or the mailbox is dropped. Used for
// multi-response flows such as auth proxying.
func (c *UntypedClient) Mail(ctx context.Context, payload Variant) (*Mailbox, error) {
	id := newRequestID()
	box := newMailbox(id, c.cfg.MailboxBufferSize)
	s := &sink{kind: sinkMulti, box: box}

	if err := c.register(id, s); err != nil {
		return nil, err
	}

	if err := c.enqueue(ctx, Request{ID: id, Payload: payload}); err != nil {
		c.unregister(id)
		return nil, err
	}
	return box, nil
}

// Fire enqueues req without awaiting any reply of its own. It is used to
// post a follow-up message (e.g. an auth reply) that belongs to an
// already-open mailbox keyed by a different id (the manager routes the
// eventual response back to that mailbox by its own correlation rule).
func (c *UntypedClient) Fire(ctx context.Context, payload Variant) error {
	id := newRequestID()
	return c.enqueue(ctx, Request{ID: id, Payload: payload})
}

func (c *UntypedClient) register(id string, s *sink) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	select {
	case <-c.closed:
		return fmt.Errorf("netproto: client closed: %w", c.closeErr)
	default:
	}
	c.sinks[id] = s
	return nil
}

func (c *UntypedClient) unregister(id string) {
	c.mu.Lock()
	delete(c.sinks, id)
	c.mu.Unlock()
}

func (c *UntypedClient) enqueue(ctx context.Context, req Request) error {
	payload, err := c.codec.EncodeRequest(req)
	if err != nil {
		return err
	}
	frame := outboundFrame{payload: payload, errCh: make(chan error, 1)}
	select {
	case c.outbound <- frame:
	case <-c.closed:
		return fmt.Errorf("netproto: client closed: %w", c.closeErrSnapshot())
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-frame.errCh:
		return err
	case <-c.closed:
		return fmt.Errorf("netproto: client closed: %w", c.closeErrSnapshot())
	}
}

func (c *UntypedClient) writeLoop() {
	defer c.wg.Done()
	for {
		select {
		case frame := <-c.outbound:
			err := c.conn.WriteFrame(frame.payload)
			frame.errCh <- err
			if err != nil {
				c.shutdown(err)
				return
			}
		case <-c.closed:
			return
		}
	}
}

func (c *UntypedClient) readLoop() {
	defer c.wg.Done()
	for {
		raw, err := c.conn.ReadFrame()
		if err != nil {
			c.shutdown(err)
			return
		}

		resp, err := c.codec.DecodeResponse(raw, c.respReg)
		if err != nil {
			c.logger.Warn("netproto: dropping undecodable frame", "error", err)
			continue
		}

		c.dispatch(&resp)
	}
}

func (c *UntypedClient) dispatch(resp *Response) {
	c.mu.Lock()
	s, ok := c.sinks[resp.OriginID]
	terminal := ok && c.terminal != nil && c.terminal(resp.Payload)
	if ok && (s.kind == sinkOneshot || terminal) {
		delete(c.sinks, resp.OriginID)
	}
	c.mu.Unlock()

	if !ok {
		c.logger.Warn("netproto: no mailbox for response, dropping", "origin_id", resp.OriginID)
		return
	}

	switch s.kind {
	case sinkOneshot:
		s.once <- resp
		close(s.once)
	case sinkMulti:
		s.box.deliver(resp)
		if terminal {
			s.box.closeNormally()
		}
	}
}

func (c *UntypedClient) shutdown(err error) {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closeErr = err
		sinks := c.sinks
		c.sinks = make(map[string]*sink)
		c.mu.Unlock()
		close(c.closed)

		for _, s := range sinks {
			switch s.kind {
			case sinkOneshot:
				close(s.once)
			case sinkMulti:
				s.box.closeWithError(err)
			}
		}
	})
}

func (c *UntypedClient) closeErrSnapshot() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closeErr == nil {
		return fmt.Errorf("connection closed")
	}
	return c.closeErr
}

// Close tears down the reader/writer goroutines and the transport.
func (c *UntypedClient) Close() error {
	c.shutdown(fmt.Errorf("client closed by caller"))
	err := c.conn.Close()
	c.wg.Wait()
	return err
}

// WaitClosed blocks until the client has shut down, returning the cause.
func (c *UntypedClient) WaitClosed() error {
	<-c.closed
	return c.closeErrSnapshot()
}
