package auth

import (
	"context"

	"github.com/smnsjas/go-distant/kind"
)

// Handler is the client-side object that answers initialization,
// challenge, and verification prompts (spec §4.8, GLOSSARY "AuthHandler").
// A client must reply to Initialization, Challenge, and Verification
// in-order; Info, StartMethod, Finished are informational only.
type Handler interface {
	// OnInitialization chooses one of the offered methods.
	OnInitialization(ctx context.Context, methods []string) (chosenMethod string, err error)

	// OnChallenge answers each question in order.
	OnChallenge(ctx context.Context, questions []Question) (answers []string, err error)

	// OnVerification answers a yes/no verification prompt (e.g. "trust
	// this host key?").
	OnVerification(ctx context.Context, kindText, text string) (valid bool, err error)

	// OnInfo is called for purely informational messages.
	OnInfo(ctx context.Context, text string)

	// OnError is called when the session fails; fatal indicates the
	// session cannot continue.
	OnError(ctx context.Context, k ErrorKind, text string)
}

// DummyHandler answers every prompt affirmatively with empty answers,
// mirroring the original implementation's DummyAuthHandler test double.
// Suitable only for the none/no-op verifiers.
type DummyHandler struct{}

func (DummyHandler) OnInitialization(context.Context, []string) (string, error) { return "", nil }
func (DummyHandler) OnChallenge(context.Context, []Question) ([]string, error)  { return nil, nil }
func (DummyHandler) OnVerification(context.Context, string, string) (bool, error) {
	return true, nil
}
func (DummyHandler) OnInfo(context.Context, string)           {}
func (DummyHandler) OnError(context.Context, ErrorKind, string) {}

// StaticKeyHandler answers a StaticKeyVerifier's single challenge with a
// fixed key.
type StaticKeyHandler struct {
	Key string
}

func (StaticKeyHandler) OnInitialization(ctx context.Context, methods []string) (string, error) {
	for _, m := range methods {
		if m == "static_key" {
			return m, nil
		}
	}
	return "", nil
}

func (h StaticKeyHandler) OnChallenge(ctx context.Context, questions []Question) ([]string, error) {
	answers := make([]string, len(questions))
	for i := range questions {
		answers[i] = h.Key
	}
	return answers, nil
}

func (StaticKeyHandler) OnVerification(context.Context, string, string) (bool, error) {
	return true, nil
}
func (StaticKeyHandler) OnInfo(context.Context, string)             {}
func (StaticKeyHandler) OnError(context.Context, ErrorKind, string) {}

// RunHandler drives handler against the direct (non-proxied) handshake
// started by a Verifier on the other end: send writes the client's
// reply, recv awaits the server's next message. It returns nil once
// Finished arrives, or an error derived from a fatal Error message.
func RunHandler(ctx context.Context, handler Handler, send func(*Message) error, recv func(context.Context) (*Message, error)) error {
	for {
		msg, err := recv(ctx)
		if err != nil {
			return err
		}

		switch msg.Type {
		case TypeInitialization:
			method, err := handler.OnInitialization(ctx, msg.Methods)
			if err != nil {
				return err
			}
			if err := send(&Message{Type: TypeStartMethod, Method: method}); err != nil {
				return err
			}
		case TypeStartMethod:
			// Informational; server announcing the method it started.
		case TypeChallenge:
			answers, err := handler.OnChallenge(ctx, msg.Questions)
			if err != nil {
				return err
			}
			if err := send(&Message{Type: TypeChallenge, Answers: answers}); err != nil {
				return err
			}
		case TypeVerification:
			valid, err := handler.OnVerification(ctx, msg.VerificationKind, msg.Text)
			if err != nil {
				return err
			}
			if err := send(&Message{Type: TypeVerification, Valid: valid}); err != nil {
				return err
			}
		case TypeInfo:
			handler.OnInfo(ctx, msg.Text)
		case TypeError:
			handler.OnError(ctx, msg.Kind, msg.Text)
			if msg.Kind == Fatal {
				return kind.New(kind.PermissionDenied, "%s", msg.Text)
			}
		case TypeFinished:
			return nil
		}
	}
}
