package netproto

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"

	"github.com/smnsjas/go-distant/config"
)

// Verifier drives the auth handshake for one freshly accepted
// connection (C5 step 1). It writes auth messages via send and awaits
// client replies via recv; it returns nil on success or a non-nil error
// (conventionally a *kind.Error with Kind PermissionDenied) on failure.
// NoneVerifier and StaticKeyVerifier in package auth are the two
// concrete implementations named by spec §4.4; package auth also
// provides MethodsVerifier.
type Verifier interface {
	Verify(ctx context.Context, send func(Variant) error, recv func(ctx context.Context) (Variant, error)) error
}

// Ctx is handed to Handler.OnRequest for one inbound Request. Reply may
// be called more than once per request to stream multiple responses;
// origin_id is stamped automatically.
type Ctx struct {
	ConnectionID uint64
	Request      Request
	LocalData    any

	reply func(Variant) error
}

// Reply sends one Response correlated to this request. Handlers may
// call it repeatedly for streaming verbs.
func (c *Ctx) Reply(payload Variant) error { return c.reply(payload) }

// Handler is the user-supplied request dispatcher (C5 step 2/3).
type Handler interface {
	// OnAccept returns the fresh LocalData value for a newly accepted
	// connection, stored in every Ctx for that connection's lifetime.
	OnAccept(connID uint64) any

	// OnRequest handles one decoded Request. It may send zero or more
	// replies via ctx.Reply before returning; the caller does not wait
	// for it to return before dispatching the connection's next request
	// (ordering guarantee: replies within one request id stay FIFO,
	// across request ids there is no ordering guarantee).
	OnRequest(ctx context.Context, sc *Ctx)

	// OnDisconnect runs once per connection, after the connection's
	// request loop exits for any reason (EOF, error, or server
	// shutdown). Implementations use it to tear down connection-scoped
	// resources (e.g. killing spawned processes).
	OnDisconnect(connID uint64, localData any)
}

// ServerRef is an opaque handle onto a running server: spec §6 "Server
// references".
type ServerRef interface {
	IsFinished() bool
	Shutdown()
}

type baseServerRef struct {
	cancel   context.CancelFunc
	listener net.Listener
	wg       *sync.WaitGroup
	finished atomic.Bool
}

func (r *baseServerRef) IsFinished() bool { return r.finished.Load() }

func (r *baseServerRef) Shutdown() {
	r.cancel()
	_ = r.listener.Close()
	r.wg.Wait()
	r.finished.Store(true)
}

// UnixSocketServerRef additionally exposes the bound socket path.
type UnixSocketServerRef struct {
	baseServerRef
	path string
}

func (r *UnixSocketServerRef) Path() string { return r.path }

// WindowsPipeServerRef additionally exposes the bound pipe address.
type WindowsPipeServerRef struct {
	baseServerRef
	addr string
}

func (r *WindowsPipeServerRef) Addr() string { return r.addr }

// TCPServerRef additionally exposes the bound network address.
type TCPServerRef struct {
	baseServerRef
	addr string
}

func (r *TCPServerRef) Addr() string { return r.addr }

// Server accepts connections, performs the auth handshake, and
// dispatches decoded requests to a Handler, streaming responses back
// (C5).
type Server struct {
	handler  Handler
	verifier Verifier
	codec    *Codec
	reqReg   *Registry
	cfg      config.ServerConfig
	logger   *slog.Logger

	nextConnID atomic.Uint64
}

// NewServer builds a Server. reqReg resolves inbound Request payloads;
// verifier may be nil to skip the handshake entirely; auth.NoneVerifier{}
// still runs a handshake that accepts every client.
func NewServer(handler Handler, verifier Verifier, codec *Codec, reqReg *Registry, cfg config.ServerConfig, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{handler: handler, verifier: verifier, codec: codec, reqReg: reqReg, cfg: cfg, logger: logger}
}

// serveListener runs the accept loop against ln until ctx is canceled or
// ln is closed, spawning one goroutine per accepted connection.
func (s *Server) serveListener(ctx context.Context, ln net.Listener, wg *sync.WaitGroup) {
	defer wg.Done()
	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return
			default:
				s.logger.Warn("netproto: accept failed", "error", err)
				return
			}
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.serveConn(ctx, conn)
		}()
	}
}

func (s *Server) serveConn(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	connID := s.nextConnID.Add(1)
	localData := s.handler.OnAccept(connID)

	var inFlight sync.WaitGroup
	defer func() {
		inFlight.Wait()
		s.handler.OnDisconnect(connID, localData)
	}()

	framed := NewFramedConn(conn, s.cfg.Frame.MaxFrameSize)

	if s.verifier != nil {
		send := func(v Variant) error {
			payload, err := s.codec.EncodeResponse(Response{ID: newRequestID(), Payload: v})
			if err != nil {
				return err
			}
			return framed.WriteFrame(payload)
		}
		recv := func(ctx context.Context) (Variant, error) {
			raw, err := framed.ReadFrame()
			if err != nil {
				return nil, err
			}
			req, err := s.codec.DecodeRequest(raw, s.reqReg)
			if err != nil {
				return nil, err
			}
			return req.Payload, nil
		}
		if err := s.verifier.Verify(ctx, send, recv); err != nil {
			s.logger.Warn("netproto: auth handshake failed", "conn_id", connID, "error", err)
			return
		}
	}

	for {
		raw, err := framed.ReadFrame()
		if err != nil {
			return
		}

		req, err := s.codec.DecodeRequest(raw, s.reqReg)
		if err != nil {
			s.logger.Warn("netproto: dropping undecodable request", "conn_id", connID, "error", err)
			continue
		}

		sc := &Ctx{
			ConnectionID: connID,
			Request:      req,
			LocalData:    localData,
			reply: func(payload Variant) error {
				out, err := s.codec.EncodeResponse(Response{ID: newRequestID(), OriginID: req.ID, Payload: payload})
				if err != nil {
					return err
				}
				return framed.WriteFrame(out)
			},
		}

		// OnRequest runs off the read loop so a handler blocked awaiting a
		// later request on this same connection (the auth proxy's
		// Initialization/Challenge/Verification round trips, C6) doesn't
		// starve the very read that would unblock it. Ctx.Reply is safe to
		// call concurrently with other in-flight requests' replies:
		// FramedConn.WriteFrame serializes its own writes.
		inFlight.Add(1)
		go func() {
			defer inFlight.Done()
			s.handler.OnRequest(ctx, sc)
		}()
	}
}

// ServeTCP binds addr and starts serving; the returned ref's Addr()
// reports the bound address (useful when addr requests an ephemeral
// port via ":0").
func (s *Server) ServeTCP(ctx context.Context, addr string) (*TCPServerRef, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("netproto: listen tcp: %w", err)
	}
	base := s.serveOnRef(ctx, ln)
	return &TCPServerRef{baseServerRef: base, addr: ln.Addr().String()}, nil
}

// ServeUnix binds a Unix-domain socket at path and starts serving.
func (s *Server) ServeUnix(ctx context.Context, path string) (*UnixSocketServerRef, error) {
	ln, err := net.Listen("unix", path)
	if err != nil {
		return nil, fmt.Errorf("netproto: listen unix: %w", err)
	}
	base := s.serveOnRef(ctx, ln)
	return &UnixSocketServerRef{baseServerRef: base, path: path}, nil
}

// Serve starts serving on an already-bound listener (used for the
// Windows named-pipe and in-memory transports, whose listeners are
// constructed by package transport) and returns the base ref; callers
// that need Addr()/Path() use ServeTCP/ServeUnix instead, or wrap the
// base ref themselves as WindowsPipeServerRef does.
func (s *Server) Serve(ctx context.Context, ln net.Listener) ServerRef {
	base := s.serveOnRef(ctx, ln)
	return &base
}

func (s *Server) serveOnRef(ctx context.Context, ln net.Listener) baseServerRef {
	ctx, cancel := context.WithCancel(ctx)
	wg := &sync.WaitGroup{}
	wg.Add(1)
	go s.serveListener(ctx, ln, wg)
	return baseServerRef{cancel: cancel, listener: ln, wg: wg}
}

// ServeWindowsPipe starts serving on an already-bound named-pipe
// listener (constructed by package transport via go-winio).
func (s *Server) ServeWindowsPipe(ctx context.Context, ln net.Listener, addr string) *WindowsPipeServerRef {
	base := s.serveOnRef(ctx, ln)
	return &WindowsPipeServerRef{baseServerRef: base, addr: addr}
}
