package manager

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/smnsjas/go-distant/auth"
	"github.com/smnsjas/go-distant/config"
	"github.com/smnsjas/go-distant/kind"
	"github.com/smnsjas/go-distant/netproto"
)

// ManagerClient is the typed façade a CLI or library consumer drives
// against the manager's control socket (spec §4.5), directly grounded
// on distant-net/src/manager/client.rs's ManagerClient inherent methods.
// Its non-streaming calls (Capabilities, Info, List, Kill) run through a
// CircuitBreaker and the teacher's exponential-backoff retry policy
// (client/breaker.go, client/retry.go); Launch and Connect do not,
// since the control socket can transiently drop the same way a PSRP
// runspace connection can.
type ManagerClient struct {
	untyped *netproto.UntypedClient
	logger  *slog.Logger
	breaker *netproto.CircuitBreaker
	retry   config.RetryPolicy
}

// NewManagerClient wraps conn (already connected to a manager's control
// socket) in a ManagerClient. The manager's control socket itself
// trusts the transport (Unix socket permissions, or similar) and skips
// its own handshake; auth only happens while proxying Launch/Connect to
// a remote distant server, driven by the handler passed to those calls.
func NewManagerClient(conn *netproto.FramedConn, cfg config.ClientConfig, logger *slog.Logger) *ManagerClient {
	codec := netproto.NewCodec()
	untyped := netproto.NewUntypedClient(conn, codec, ResponseRegistry(), IsTerminal, cfg.Mailbox, logger)
	return &ManagerClient{
		untyped: untyped,
		logger:  logger,
		breaker: netproto.NewCircuitBreaker(cfg.CircuitBreaker),
		retry:   cfg.Retry,
	}
}

// Close releases the underlying connection.
func (c *ManagerClient) Close() error { return c.untyped.Close() }

// Reconnect rebuilds the client's transport by calling dial, retrying
// with exponential backoff per policy, direct port of the teacher's
// client/reconnect.go backoff loop, collapsed from its background
// disconnect-polling goroutine to an on-demand call: callers invoke
// Reconnect themselves after observing a Send/Mail failure, rather than
// the manager's control socket exposing a "connection state" to poll.
func (c *ManagerClient) Reconnect(ctx context.Context, policy config.ReconnectPolicy, mailboxCfg config.MailboxConfig, dial func(context.Context) (*netproto.FramedConn, error)) error {
	maxAttempts := policy.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		conn, err := dial(ctx)
		if err == nil {
			_ = c.untyped.Close()
			c.untyped = netproto.NewUntypedClient(conn, netproto.NewCodec(), ResponseRegistry(), IsTerminal, mailboxCfg, c.logger)
			return nil
		}
		lastErr = err
		if attempt == maxAttempts {
			break
		}

		delay := policy.InitialDelay
		if delay <= 0 {
			delay = time.Second
		}
		backoff := time.Duration(float64(delay) * math.Pow(2, float64(attempt-1)))
		if policy.MaxDelay > 0 && backoff > policy.MaxDelay {
			backoff = policy.MaxDelay
		}
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return fmt.Errorf("manager: reconnect failed after %d attempts: %w", maxAttempts, lastErr)
}

// send runs a non-streaming request through the circuit breaker and
// retry policy; Launch/Connect skip it since they are never safely
// retryable mid-handshake (spec §4.5: retrying a partially authenticated
// Launch would duplicate the remote side's auth state machine).
func (c *ManagerClient) send(ctx context.Context, req netproto.Variant) (*netproto.Response, error) {
	var resp *netproto.Response
	err := c.breaker.Execute(func() error {
		return netproto.RetryWithPolicy(ctx, c.retry, func() error {
			r, sendErr := c.untyped.Send(ctx, req)
			if sendErr != nil {
				return sendErr
			}
			resp = r
			return nil
		})
	})
	return resp, err
}

func asError(resp netproto.Variant) (netproto.Variant, error) {
	if e, ok := resp.(*ErrorResponse); ok {
		return nil, kind.New(kind.ParseKind(e.Kind), "%s", e.Description)
	}
	return resp, nil
}

// Capabilities retrieves the capability set the manager itself
// advertises; remote connections are not queried.
func (c *ManagerClient) Capabilities(ctx context.Context) (Capabilities, error) {
	resp, err := c.send(ctx, &CapabilitiesRequest{})
	if err != nil {
		return nil, err
	}
	payload, err := asError(resp.Payload)
	if err != nil {
		return nil, err
	}
	v, ok := payload.(*CapabilitiesResponse)
	if !ok {
		return nil, unexpectedResponse(payload)
	}
	return CapabilitiesFromList(v.Supported), nil
}

// Info retrieves the registered destination and options for id.
func (c *ManagerClient) Info(ctx context.Context, id uint64) (ConnectionInfo, error) {
	resp, err := c.send(ctx, &InfoRequest{ID: id})
	if err != nil {
		return ConnectionInfo{}, err
	}
	payload, err := asError(resp.Payload)
	if err != nil {
		return ConnectionInfo{}, err
	}
	v, ok := payload.(*InfoResponse)
	if !ok {
		return ConnectionInfo{}, unexpectedResponse(payload)
	}
	dest, err := ParseDestination(v.Destination)
	if err != nil {
		return ConnectionInfo{}, err
	}
	opts, err := ParseMap(v.Options)
	if err != nil {
		return ConnectionInfo{}, err
	}
	return ConnectionInfo{ID: v.ID, Destination: dest, Options: opts}, nil
}

// List retrieves every connection the manager currently tracks.
func (c *ManagerClient) List(ctx context.Context) (*ConnectionList, error) {
	resp, err := c.send(ctx, &ListRequest{})
	if err != nil {
		return nil, err
	}
	payload, err := asError(resp.Payload)
	if err != nil {
		return nil, err
	}
	v, ok := payload.(*ListResponse)
	if !ok {
		return nil, unexpectedResponse(payload)
	}
	out := NewConnectionList()
	for _, e := range v.Entries {
		dest, err := ParseDestination(e.Destination)
		if err != nil {
			return nil, err
		}
		out.add(e.ID, dest)
	}
	return out, nil
}

// Kill terminates the given connection.
func (c *ManagerClient) Kill(ctx context.Context, id uint64) error {
	resp, err := c.send(ctx, &KillRequest{ID: id})
	if err != nil {
		return err
	}
	payload, err := asError(resp.Payload)
	if err != nil {
		return err
	}
	if _, ok := payload.(*KilledResponse); !ok {
		return unexpectedResponse(payload)
	}
	return nil
}

// Launch asks the manager to stand up a fresh remote distant server for
// destination, driving handler through whatever auth challenges the
// remote requires, and returns the destination actually reached.
func (c *ManagerClient) Launch(ctx context.Context, destination Destination, options Map, handler auth.Handler) (Destination, error) {
	mailbox, err := c.untyped.Mail(ctx, &LaunchRequest{Destination: destination.String(), Options: options.String()})
	if err != nil {
		return Destination{}, err
	}
	var launched Destination
	err = c.driveAuth(ctx, mailbox, handler, func(payload netproto.Variant) (bool, error) {
		switch v := payload.(type) {
		case *LaunchedResponse:
			d, err := ParseDestination(v.Destination)
			if err != nil {
				return true, err
			}
			launched = d
			return true, nil
		default:
			return false, nil
		}
	})
	return launched, err
}

// Connect asks the manager to reach an already-running remote distant
// server, returning the assigned connection id.
func (c *ManagerClient) Connect(ctx context.Context, destination Destination, options Map, handler auth.Handler) (uint64, error) {
	mailbox, err := c.untyped.Mail(ctx, &ConnectRequest{Destination: destination.String(), Options: options.String()})
	if err != nil {
		return 0, err
	}
	var connID uint64
	err = c.driveAuth(ctx, mailbox, handler, func(payload netproto.Variant) (bool, error) {
		switch v := payload.(type) {
		case *ConnectedResponse:
			connID = v.ID
			return true, nil
		default:
			return false, nil
		}
	})
	return connID, err
}

// driveAuth pumps mailbox, forwarding every Authenticate message to
// handler and firing its reply back, until onTerminal reports the
// request is complete or an error/unexpected response ends it early.
func (c *ManagerClient) driveAuth(ctx context.Context, mailbox *netproto.Mailbox, handler auth.Handler, onTerminal func(netproto.Variant) (bool, error)) error {
	for {
		resp, ok, err := mailbox.Next(ctx)
		if err != nil {
			return err
		}
		if !ok {
			return kind.New(kind.UnexpectedEOF, "missing connection confirmation")
		}

		switch v := resp.Payload.(type) {
		case *AuthenticateMessage:
			if err := c.handleAuthenticate(ctx, v, handler); err != nil {
				return err
			}
		case *ErrorResponse:
			return kind.New(kind.ParseKind(v.Kind), "%s", v.Description)
		default:
			done, err := onTerminal(resp.Payload)
			if err != nil {
				return err
			}
			if done {
				return nil
			}
			return unexpectedResponse(resp.Payload)
		}
	}
}

func (c *ManagerClient) handleAuthenticate(ctx context.Context, am *AuthenticateMessage, handler auth.Handler) error {
	msg := am.Msg
	switch msg.Type {
	case auth.TypeInitialization:
		method, err := handler.OnInitialization(ctx, msg.Methods)
		if err != nil {
			return err
		}
		return c.untyped.Fire(ctx, &AuthenticateMessage{AuthID: am.AuthID, Msg: auth.Message{Type: auth.TypeStartMethod, Method: method}})

	case auth.TypeStartMethod:
		return nil // informational only, no reply expected

	case auth.TypeChallenge:
		answers, err := handler.OnChallenge(ctx, msg.Questions)
		if err != nil {
			return err
		}
		return c.untyped.Fire(ctx, &AuthenticateMessage{AuthID: am.AuthID, Msg: auth.Message{Type: auth.TypeChallenge, Answers: answers}})

	case auth.TypeVerification:
		valid, err := handler.OnVerification(ctx, msg.VerificationKind, msg.Text)
		if err != nil {
			return err
		}
		return c.untyped.Fire(ctx, &AuthenticateMessage{AuthID: am.AuthID, Msg: auth.Message{Type: auth.TypeVerification, Valid: valid}})

	case auth.TypeInfo:
		handler.OnInfo(ctx, msg.Text)
		return nil

	case auth.TypeError:
		handler.OnError(ctx, msg.Kind, msg.Text)
		if msg.Kind == auth.Fatal {
			return kind.New(kind.PermissionDenied, "%s", msg.Text)
		}
		return nil

	case auth.TypeFinished:
		return nil

	default:
		return kind.New(kind.InvalidData, "unrecognized auth message type %q", msg.Type)
	}
}

func unexpectedResponse(v netproto.Variant) error {
	return kind.New(kind.InvalidData, "got unexpected response: %s", variantTag(v))
}

func variantTag(v netproto.Variant) string {
	if v == nil {
		return "<nil>"
	}
	return fmt.Sprintf("%T:%s", v, v.VariantType())
}
