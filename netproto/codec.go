package netproto

import (
	"fmt"

	"github.com/hashicorp/go-msgpack/v2/codec"
)

// Codec serializes envelopes with a self-describing binary format that
// preserves field names and tagged unions. MessagePack with named
// fields (via the hashicorp codec, the same library boxcast-serf's RPC
// client uses for its request/response framing) fits C2's requirement
// exactly.
type Codec struct {
	handle *codec.MsgpackHandle
}

// NewCodec returns a Codec configured for named-field, map-based
// encoding (not positional array encoding), so the wire form stays
// self-describing across schema versions within a major protocol
// version.
func NewCodec() *Codec {
	h := &codec.MsgpackHandle{}
	h.StructToArray = false
	return &Codec{handle: h}
}

func (c *Codec) marshal(v any) ([]byte, error) {
	var buf []byte
	enc := codec.NewEncoderBytes(&buf, c.handle)
	if err := enc.Encode(v); err != nil {
		return nil, fmt.Errorf("netproto: encode: %w", err)
	}
	return buf, nil
}

func (c *Codec) unmarshal(data []byte, v any) error {
	dec := codec.NewDecoderBytes(data, c.handle)
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("netproto: decode: %w", err)
	}
	return nil
}

// EncodeRequest serializes a Request into a frame payload.
func (c *Codec) EncodeRequest(req Request) ([]byte, error) {
	payload, err := c.marshal(req.Payload)
	if err != nil {
		return nil, err
	}
	return c.marshal(wireEnvelope{ID: req.ID, Type: req.Payload.VariantType(), Payload: payload})
}

// DecodeRequest deserializes a frame payload into a Request, resolving
// its tagged-union Payload via reg.
func (c *Codec) DecodeRequest(data []byte, reg *Registry) (Request, error) {
	var wire wireEnvelope
	if err := c.unmarshal(data, &wire); err != nil {
		return Request{}, err
	}
	variant, err := reg.newVariant(wire.Type)
	if err != nil {
		return Request{}, err
	}
	if err := c.unmarshal(wire.Payload, variant); err != nil {
		return Request{}, fmt.Errorf("netproto: decode payload of type %q: %w", wire.Type, err)
	}
	return Request{ID: wire.ID, Payload: variant}, nil
}

// EncodeResponse serializes a Response into a frame payload.
func (c *Codec) EncodeResponse(resp Response) ([]byte, error) {
	payload, err := c.marshal(resp.Payload)
	if err != nil {
		return nil, err
	}
	return c.marshal(wireEnvelope{ID: resp.ID, OriginID: resp.OriginID, Type: resp.Payload.VariantType(), Payload: payload})
}

// DecodeResponse deserializes a frame payload into a Response, resolving
// its tagged-union Payload via reg.
func (c *Codec) DecodeResponse(data []byte, reg *Registry) (Response, error) {
	var wire wireEnvelope
	if err := c.unmarshal(data, &wire); err != nil {
		return Response{}, err
	}
	variant, err := reg.newVariant(wire.Type)
	if err != nil {
		return Response{}, err
	}
	if err := c.unmarshal(wire.Payload, variant); err != nil {
		return Response{}, fmt.Errorf("netproto: decode payload of type %q: %w", wire.Type, err)
	}
	return Response{ID: wire.ID, OriginID: wire.OriginID, Payload: variant}, nil
}
