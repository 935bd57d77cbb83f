package netproto

import (
	"context"
	"fmt"
)

// TypedClient is a generic wrapper binding a request type Req and a
// response type Resp to the UntypedClient (C4). Req and Resp must each
// implement Variant; type assertions translate between the untyped wire
// representation and the caller's concrete types.
type TypedClient[Req Variant, Resp Variant] struct {
	untyped *UntypedClient
}

// NewTypedClient returns a façade over untyped scoped to Req/Resp.
func NewTypedClient[Req Variant, Resp Variant](untyped *UntypedClient) *TypedClient[Req, Resp] {
	return &TypedClient[Req, Resp]{untyped: untyped}
}

// Send performs a one-shot request/response round trip.
func (t *TypedClient[Req, Resp]) Send(ctx context.Context, req Req) (Resp, error) {
	var zero Resp
	resp, err := t.untyped.Send(ctx, req)
	if err != nil {
		return zero, err
	}
	typed, ok := resp.Payload.(Resp)
	if !ok {
		return zero, fmt.Errorf("netproto: unexpected response variant %q", resp.Payload.VariantType())
	}
	return typed, nil
}

// TypedMailbox is a Mailbox whose Next result is already asserted to Resp.
type TypedMailbox[Resp Variant] struct {
	box *Mailbox
}

// Next blocks for the next reply, type-asserting it to Resp.
func (m *TypedMailbox[Resp]) Next(ctx context.Context) (resp Resp, ok bool, err error) {
	raw, ok, err := m.box.Next(ctx)
	if err != nil || !ok {
		return resp, ok, err
	}
	typed, assertOK := raw.Payload.(Resp)
	if !assertOK {
		return resp, true, fmt.Errorf("netproto: unexpected response variant %q", raw.Payload.VariantType())
	}
	return typed, true, nil
}

// Mail opens a multi-response mailbox.
func (t *TypedClient[Req, Resp]) Mail(ctx context.Context, req Req) (*TypedMailbox[Resp], error) {
	box, err := t.untyped.Mail(ctx, req)
	if err != nil {
		return nil, err
	}
	return &TypedMailbox[Resp]{box: box}, nil
}

// Fire enqueues req without awaiting a reply of its own.
func (t *TypedClient[Req, Resp]) Fire(ctx context.Context, req Req) error {
	return t.untyped.Fire(ctx, req)
}

// Untyped exposes the underlying UntypedClient, e.g. for Close.
func (t *TypedClient[Req, Resp]) Untyped() *UntypedClient { return t.untyped }
