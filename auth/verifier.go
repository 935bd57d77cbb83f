package auth

import (
	"context"
	"fmt"

	"github.com/smnsjas/go-distant/kind"
	"github.com/smnsjas/go-distant/netproto"
)

// asMessage type-asserts a decoded Variant to *Message, the only shape a
// Verifier or AuthHandler ever exchanges.
func asMessage(v netproto.Variant) (*Message, error) {
	m, ok := v.(*Message)
	if !ok {
		return nil, fmt.Errorf("auth: unexpected variant %q", v.VariantType())
	}
	return m, nil
}

// NoneVerifier accepts every connection without any challenge, the
// "none" verifier named in spec §4.4.
type NoneVerifier struct{}

func (NoneVerifier) Verify(ctx context.Context, send func(netproto.Variant) error, recv func(context.Context) (netproto.Variant, error)) error {
	return send(&Message{Type: TypeFinished})
}

// StaticKeyVerifier accepts a connection only if the client answers a
// single challenge with the configured key, the "static_key(K)"
// verifier named in spec §4.4.
type StaticKeyVerifier struct {
	Key string
}

func (v StaticKeyVerifier) Verify(ctx context.Context, send func(netproto.Variant) error, recv func(context.Context) (netproto.Variant, error)) error {
	if err := send(&Message{Type: TypeInitialization, Methods: []string{"static_key"}}); err != nil {
		return err
	}

	raw, err := recv(ctx)
	if err != nil {
		return fmt.Errorf("auth: awaiting start_method: %w", err)
	}
	start, err := asMessage(raw)
	if err != nil || start.Type != TypeStartMethod || start.Method != "static_key" {
		return v.fail(send, "expected start_method(static_key)")
	}

	if err := send(&Message{Type: TypeChallenge, Questions: []Question{{Label: "key", Text: "enter the static key"}}}); err != nil {
		return err
	}

	raw, err = recv(ctx)
	if err != nil {
		return fmt.Errorf("auth: awaiting challenge answer: %w", err)
	}
	answer, err := asMessage(raw)
	if err != nil || answer.Type != TypeChallenge || len(answer.Answers) != 1 {
		return v.fail(send, "malformed challenge answer")
	}

	if answer.Answers[0] != v.Key {
		return v.fail(send, "key mismatch")
	}

	return send(&Message{Type: TypeFinished})
}

func (v StaticKeyVerifier) fail(send func(netproto.Variant) error, reason string) error {
	_ = send(&Message{Type: TypeError, Kind: Fatal, Text: reason})
	return kind.New(kind.PermissionDenied, "auth: %s", reason)
}

// MethodsVerifier offers a list of named methods and delegates the
// per-method exchange to a caller-supplied step function, the
// "methods(list)" verifier named in spec §4.4.
type MethodsVerifier struct {
	Methods []string
	// Step runs one method's full exchange (start_method through
	// finished/error) once the client has chosen it.
	Step func(ctx context.Context, method string, send func(netproto.Variant) error, recv func(context.Context) (netproto.Variant, error)) error
}

func (v MethodsVerifier) Verify(ctx context.Context, send func(netproto.Variant) error, recv func(context.Context) (netproto.Variant, error)) error {
	if err := send(&Message{Type: TypeInitialization, Methods: v.Methods}); err != nil {
		return err
	}

	raw, err := recv(ctx)
	if err != nil {
		return fmt.Errorf("auth: awaiting start_method: %w", err)
	}
	start, err := asMessage(raw)
	if err != nil || start.Type != TypeStartMethod {
		_ = send(&Message{Type: TypeError, Kind: Fatal, Text: "expected start_method"})
		return kind.New(kind.PermissionDenied, "auth: expected start_method")
	}

	return v.Step(ctx, start.Method, send, recv)
}
