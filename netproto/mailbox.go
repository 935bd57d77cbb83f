package netproto

import (
	"context"
	"sync"
)

// Mailbox is a live sink bound to one outstanding request id. It
// delivers a finite or indefinite sequence of responses until the
// request is considered terminal by the domain, or the underlying
// transport fails. Exactly one Mailbox exists per live request id on a
// given UntypedClient (C3 invariant).
type Mailbox struct {
	id string
	ch chan *Response

	mu     sync.Mutex
	closed bool
	err    error
}

func newMailbox(id string, buffer int) *Mailbox {
	return &Mailbox{id: id, ch: make(chan *Response, buffer)}
}

// Next blocks until a response arrives, the mailbox is closed, or ctx is
// done. ok is false once the mailbox is closed and drained; err is set
// only when closure was caused by a transport failure.
func (m *Mailbox) Next(ctx context.Context) (resp *Response, ok bool, err error) {
	select {
	case r, open := <-m.ch:
		if !open {
			m.mu.Lock()
			err = m.err
			m.mu.Unlock()
			return nil, false, err
		}
		return r, true, nil
	case <-ctx.Done():
		return nil, false, ctx.Err()
	}
}

// ID returns the request id this mailbox is bound to.
func (m *Mailbox) ID() string { return m.id }

// deliver pushes a response into the mailbox. It blocks if the consumer
// is slow: per spec §4.3, the reader task never drops responses in
// favor of a slow consumer, it stalls instead.
func (m *Mailbox) deliver(r *Response) {
	m.ch <- r
}

// closeNormally closes the mailbox after its final delivered item, with
// no error (the domain-terminal variant already carried the outcome).
func (m *Mailbox) closeNormally() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	m.closed = true
	close(m.ch)
}

// closeWithError closes the mailbox because the transport failed;
// subsequent Next calls report err.
func (m *Mailbox) closeWithError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	m.closed = true
	m.err = err
	close(m.ch)
}
