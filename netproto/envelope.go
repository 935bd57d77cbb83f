package netproto

import "fmt"

// Variant is implemented by every payload type carried inside a Request
// or Response envelope. VariantType returns the wire tag used to
// discriminate the tagged union (the envelope's "type" field).
type Variant interface {
	VariantType() string
}

// Request is the client-to-server envelope: { id, payload }.
type Request struct {
	ID      string
	Payload Variant
}

// Response is the server-to-client envelope: { id, origin_id, payload }.
// OriginID carries the id of the request this response correlates to.
type Response struct {
	ID       string
	OriginID string
	Payload  Variant
}

// wireEnvelope is the on-the-wire shape encoded by the codec: the
// payload is encoded separately so its type tag can be read before the
// payload itself is decoded into a concrete Go type.
type wireEnvelope struct {
	ID       string
	OriginID string `codec:"origin_id,omitempty"`
	Type     string
	Payload  []byte
}

// Registry maps a wire type tag to a factory producing a fresh, empty
// Variant to decode into. One Registry exists per envelope family (e.g.
// ManagerRequest vs. ManagerResponse) since tags are scoped to a family.
type Registry struct {
	factories map[string]func() Variant
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]func() Variant)}
}

// Register associates a wire tag with a factory. Registering the same
// tag twice overwrites the earlier factory.
func (r *Registry) Register(tag string, factory func() Variant) {
	r.factories[tag] = factory
}

func (r *Registry) newVariant(tag string) (Variant, error) {
	factory, ok := r.factories[tag]
	if !ok {
		return nil, fmt.Errorf("netproto: unknown variant type %q", tag)
	}
	return factory(), nil
}
