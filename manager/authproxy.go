package manager

import (
	"context"
	"fmt"
	"net"
	"sync"

	"github.com/smnsjas/go-distant/auth"
	"github.com/smnsjas/go-distant/kind"
	"github.com/smnsjas/go-distant/netproto"
)

// authSession tracks one in-flight Launch/Connect's auth proxy (spec
// §4.5's state machine S0..S5), keyed by an auth session id the manager
// assigns and embeds in every AuthenticateMessage it forwards. Inbound
// Authenticate requests from the originating client are routed here by
// that id.
type authSession struct {
	incoming chan *auth.Message
}

func (m *Manager) registerAuthSession(id uint64, sess *authSession) {
	m.authMu.Lock()
	defer m.authMu.Unlock()
	m.authSessions[id] = sess
}

func (m *Manager) unregisterAuthSession(id uint64) {
	m.authMu.Lock()
	defer m.authMu.Unlock()
	delete(m.authSessions, id)
}

// routeAuthReply delivers a client's Authenticate reply to the in-flight
// proxy session it belongs to. Unknown auth ids are dropped and logged,
// mirroring the reader policy for unknown origin ids in C3.
func (m *Manager) routeAuthReply(authID uint64, msg auth.Message) {
	m.authMu.Lock()
	sess, ok := m.authSessions[authID]
	m.authMu.Unlock()

	if !ok {
		m.logger.Warn("manager: dropping authenticate reply for unknown session", "auth_id", authID)
		return
	}
	select {
	case sess.incoming <- &msg:
	default:
		m.logger.Warn("manager: authenticate reply dropped, session busy", "auth_id", authID)
	}
}

// proxyAuthAndFinish drives the S0..S5 state machine against a freshly
// dialed remote connection, forwarding every auth message verbatim to
// the originating client and back, then completes the Launch or Connect
// request. The manager never interprets challenge content (spec §4.5).
func (m *Manager) proxyAuthAndFinish(ctx context.Context, sc *netproto.Ctx, conn net.Conn, dest Destination, opts Map, isLaunch bool) {
	framed := netproto.NewFramedConn(conn, m.cfg.Frame.MaxFrameSize)

	authID := m.nextAuthID.Add(1)
	sess := &authSession{incoming: make(chan *auth.Message, 4)}
	m.registerAuthSession(authID, sess)
	defer m.unregisterAuthSession(authID)

	if err := m.runAuthProxy(ctx, sc, framed, authID, sess); err != nil {
		m.security.logAuth(SubtypeAuthFailure, OutcomeFailure, SeverityWarning, 0, dest.String(), map[string]any{"error": err.Error()})
		_ = sc.Reply(&ErrorResponse{Kind: kind.KindOf(err).String(), Description: err.Error()})
		_ = framed.Close()
		return
	}

	m.security.logAuth(SubtypeAuthSuccess, OutcomeSuccess, SeverityInfo, 0, dest.String(), nil)

	c := m.registry.insert(dest, opts, framed)
	if isLaunch {
		m.security.logConnection(SubtypeConnLaunched, OutcomeSuccess, SeverityInfo, c.info.ID, dest.String(), nil)
		_ = sc.Reply(&LaunchedResponse{Destination: dest.String()})
	} else {
		m.security.logConnection(SubtypeConnConnected, OutcomeSuccess, SeverityInfo, c.info.ID, dest.String(), nil)
		_ = sc.Reply(&ConnectedResponse{ID: c.info.ID})
	}
}

// runAuthProxy implements the state diagram in spec §4.5: S0 Initiating
// through S5 AwaitingResult, forwarding Initialization/Challenge/
// Verification round trips to the client and forwarding StartMethod/Info
// one-way. A fatal Error surfaces PermissionDenied; transport loss
// surfaces UnexpectedEof.
func (m *Manager) runAuthProxy(ctx context.Context, sc *netproto.Ctx, framed *netproto.FramedConn, authID uint64, sess *authSession) error {
	codec := netproto.NewCodec()
	authReg := auth.Registry()

	writeToRemote := func(msg *auth.Message) error {
		payload, err := codec.EncodeRequest(netproto.Request{ID: newSessionRequestID(), Payload: msg})
		if err != nil {
			return err
		}
		return framed.WriteFrame(payload)
	}

	for {
		raw, err := framed.ReadFrame()
		if err != nil {
			return kind.Wrap(err, kind.UnexpectedEOF, "auth proxy: remote connection lost")
		}

		resp, err := codec.DecodeResponse(raw, authReg)
		if err != nil {
			return kind.Wrap(err, kind.InvalidData, "auth proxy: undecodable auth message")
		}
		msg, ok := resp.Payload.(*auth.Message)
		if !ok {
			return kind.New(kind.InvalidData, "auth proxy: unexpected variant %q", resp.Payload.VariantType())
		}

		switch msg.Type {
		case auth.TypeFinished:
			return nil

		case auth.TypeError:
			if msg.Kind == auth.Fatal {
				return kind.New(kind.PermissionDenied, "%s", msg.Text)
			}
			// Nonfatal: forward as information and keep going.
			if err := sc.Reply(&AuthenticateMessage{AuthID: authID, Msg: *msg}); err != nil {
				return err
			}

		case auth.TypeInitialization, auth.TypeChallenge, auth.TypeVerification:
			if err := sc.Reply(&AuthenticateMessage{AuthID: authID, Msg: *msg}); err != nil {
				return err
			}
			reply, err := m.awaitClientReply(ctx, sess)
			if err != nil {
				return err
			}
			if err := writeToRemote(reply); err != nil {
				return kind.Wrap(err, kind.UnexpectedEOF, "auth proxy: write to remote failed")
			}

		default: // StartMethod, Info: forward only
			if err := sc.Reply(&AuthenticateMessage{AuthID: authID, Msg: *msg}); err != nil {
				return err
			}
		}
	}
}

func (m *Manager) awaitClientReply(ctx context.Context, sess *authSession) (*auth.Message, error) {
	select {
	case msg := <-sess.incoming:
		return msg, nil
	case <-ctx.Done():
		return nil, kind.Wrap(ctx.Err(), kind.Interrupted, "auth proxy: cancelled")
	}
}

var sessionIDMu sync.Mutex
var sessionIDCounter uint64

// newSessionRequestID generates request ids for the manager's internal
// auth-proxy-to-remote traffic, distinct from client-facing RequestIds.
func newSessionRequestID() string {
	sessionIDMu.Lock()
	sessionIDCounter++
	id := sessionIDCounter
	sessionIDMu.Unlock()
	return fmt.Sprintf("authproxy-%d", id)
}
