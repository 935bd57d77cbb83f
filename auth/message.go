// Package auth implements the auth protocol (C9): the message schema
// and state sequence for initialization/start/challenge/verify/info/
// error/finished, plus the server-side Verifier and client-side
// AuthHandler contracts spec §4.4 and §4.8 name.
package auth

import "github.com/smnsjas/go-distant/netproto"

// MessageType discriminates the AuthMessage tagged union (spec §3).
type MessageType string

const (
	TypeInitialization MessageType = "initialization"
	TypeStartMethod    MessageType = "start_method"
	TypeChallenge      MessageType = "challenge"
	TypeVerification   MessageType = "verification"
	TypeInfo           MessageType = "info"
	TypeError          MessageType = "error"
	TypeFinished       MessageType = "finished"
)

// Question is one challenge prompt: a label (e.g. "Password") and the
// full prompt text shown to the user.
type Question struct {
	Label string
	Text  string
}

// ErrorKind classifies an Error message as terminal or recoverable.
type ErrorKind string

const (
	Fatal    ErrorKind = "fatal"
	Nonfatal ErrorKind = "nonfatal"
)

// Message is the flattened AuthMessage tagged union. Only the fields
// relevant to Type are populated; it is used both as a direct top-level
// wire Variant during a Server's handshake (C5 step 1) and embedded,
// unchanged, as the `msg` field of ManagerRequest::Authenticate /
// ManagerResponse::Authenticate (C6) when the manager proxies it
// verbatim between a remote server and the originating client.
type Message struct {
	Type MessageType

	// Initialization
	Methods []string `codec:"methods,omitempty"`

	// StartMethod
	Method string `codec:"method,omitempty"`

	// Challenge (request) / Challenge (reply)
	Questions []Question `codec:"questions,omitempty"`
	Answers   []string   `codec:"answers,omitempty"`

	// Verification (request) / Verification (reply)
	VerificationKind string `codec:"verification_kind,omitempty"`
	Valid            bool   `codec:"valid,omitempty"`

	// Info / Verification / Error share a free-text field.
	Text string `codec:"text,omitempty"`

	// Error
	Kind ErrorKind `codec:"kind,omitempty"`
}

// VariantType implements netproto.Variant.
func (Message) VariantType() string { return "auth_message" }

// Registry returns a netproto.Registry pre-populated for decoding
// Message values off the wire during a direct handshake.
func Registry() *netproto.Registry {
	reg := netproto.NewRegistry()
	reg.Register("auth_message", func() netproto.Variant { return &Message{} })
	return reg
}
