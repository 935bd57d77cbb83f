// Package manager implements the Manager service (C6) and the Channel
// multiplex (C7): the connection registry and auth proxy that sits
// between clients and the remote distant servers they launch or
// connect to, directly grounded on original_source/distant-net's
// manager module and its client.rs test suite.
package manager

import (
	"context"
	"io"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"

	"github.com/smnsjas/go-distant/config"
	"github.com/smnsjas/go-distant/kind"
	"github.com/smnsjas/go-distant/netproto"
)

// RemoteDialer reaches a remote distant server for a destination: either
// standing one up fresh (Launch) or dialing one already running
// (Connect). The default implementation, wired in cmd/distant-manager,
// is backed by distantapi over an SSH-established connection.
type RemoteDialer interface {
	Launch(ctx context.Context, dest Destination, opts Map) (net.Conn, Destination, error)
	Connect(ctx context.Context, dest Destination, opts Map) (net.Conn, error)
}

// Manager implements netproto.Handler, dispatching every ManagerRequest
// variant against the connection registry, the channel multiplex, and
// the auth proxy.
type Manager struct {
	registry *registry
	security *securityLogger
	logger   *slog.Logger
	dialer   RemoteDialer
	cfg      config.ServerConfig

	authMu       sync.Mutex
	authSessions map[uint64]*authSession
	nextAuthID   atomic.Uint64

	chanMu        sync.Mutex
	channelConn   map[uint64]uint64 // channel id -> connection id
	nextChannelID atomic.Uint64
}

// NewManager builds a Manager. dialer supplies the Launch/Connect
// mechanics; cfg governs frame sizing for both the client-facing socket
// and the manager's own raw connections to remote servers.
func NewManager(dialer RemoteDialer, cfg config.ServerConfig, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		registry:     newRegistry(),
		security:     newSecurityLogger(logger),
		logger:       logger,
		dialer:       dialer,
		cfg:          cfg,
		authSessions: make(map[uint64]*authSession),
		channelConn:  make(map[uint64]uint64),
	}
}

// OnAccept implements netproto.Handler; the manager keeps no per-client
// local state, so it returns nil.
func (m *Manager) OnAccept(connID uint64) any { return nil }

// OnDisconnect implements netproto.Handler. It does not tear down the
// connections a client launched or connected to: those outlive the
// client socket until explicitly Killed, matching the original's
// detach-on-disconnect manager semantics.
func (m *Manager) OnDisconnect(connID uint64, localData any) {}

// OnRequest implements netproto.Handler, dispatching on the decoded
// ManagerRequest variant (spec §4.5's verb table).
func (m *Manager) OnRequest(ctx context.Context, sc *netproto.Ctx) {
	switch req := sc.Request.Payload.(type) {
	case *CapabilitiesRequest:
		m.handleCapabilities(sc)
	case *LaunchRequest:
		m.handleLaunch(ctx, sc, req)
	case *ConnectRequest:
		m.handleConnect(ctx, sc, req)
	case *InfoRequest:
		m.handleInfo(sc, req)
	case *ListRequest:
		m.handleList(sc)
	case *KillRequest:
		m.handleKill(sc, req)
	case *OpenChannelRequest:
		m.handleOpenChannel(ctx, sc, req)
	case *ChannelDataMessage:
		m.handleChannelData(req)
	case *CloseChannelRequest:
		m.handleCloseChannel(req)
	case *AuthenticateMessage:
		m.routeAuthReply(req.AuthID, req.Msg)
	default:
		_ = sc.Reply(&ErrorResponse{Kind: kind.Unsupported.String(), Description: "unrecognized request"})
	}
}

func (m *Manager) handleCapabilities(sc *netproto.Ctx) {
	_ = sc.Reply(&CapabilitiesResponse{Supported: AllCapabilities().List()})
}

func (m *Manager) handleLaunch(ctx context.Context, sc *netproto.Ctx, req *LaunchRequest) {
	dest, opts, err := parseDestAndOptions(req.Destination, req.Options)
	if err != nil {
		_ = sc.Reply(&ErrorResponse{Kind: kind.InvalidData.String(), Description: err.Error()})
		return
	}
	conn, finalDest, err := m.dialer.Launch(ctx, dest, opts)
	if err != nil {
		_ = sc.Reply(&ErrorResponse{Kind: kind.KindOf(err).String(), Description: err.Error()})
		return
	}
	m.proxyAuthAndFinish(ctx, sc, conn, finalDest, opts, true)
}

func (m *Manager) handleConnect(ctx context.Context, sc *netproto.Ctx, req *ConnectRequest) {
	dest, opts, err := parseDestAndOptions(req.Destination, req.Options)
	if err != nil {
		_ = sc.Reply(&ErrorResponse{Kind: kind.InvalidData.String(), Description: err.Error()})
		return
	}
	conn, err := m.dialer.Connect(ctx, dest, opts)
	if err != nil {
		_ = sc.Reply(&ErrorResponse{Kind: kind.KindOf(err).String(), Description: err.Error()})
		return
	}
	m.proxyAuthAndFinish(ctx, sc, conn, dest, opts, false)
}

func parseDestAndOptions(destStr, optStr string) (Destination, Map, error) {
	dest, err := ParseDestination(destStr)
	if err != nil {
		return Destination{}, Map{}, err
	}
	opts, err := ParseMap(optStr)
	if err != nil {
		return Destination{}, Map{}, err
	}
	return dest, opts, nil
}

func (m *Manager) handleInfo(sc *netproto.Ctx, req *InfoRequest) {
	c, ok := m.registry.get(req.ID)
	if !ok {
		_ = sc.Reply(errResponse(errNotFound(req.ID)))
		return
	}
	_ = sc.Reply(&InfoResponse{ID: c.info.ID, Destination: c.info.Destination.String(), Options: c.info.Options.String()})
}

func (m *Manager) handleList(sc *netproto.Ctx) {
	list := m.registry.list()
	entries := make([]ListEntry, 0, list.Len())
	for _, e := range list.Entries() {
		entries = append(entries, ListEntry{ID: e.ID, Destination: e.Destination.String()})
	}
	_ = sc.Reply(&ListResponse{Entries: entries})
}

func (m *Manager) handleKill(sc *netproto.Ctx, req *KillRequest) {
	c, ok := m.registry.remove(req.ID)
	if !ok {
		_ = sc.Reply(errResponse(errNotFound(req.ID)))
		return
	}
	c.closeAllChannels()
	_ = c.remote.Close()
	m.security.logConnection(SubtypeConnKilled, OutcomeSuccess, SeverityInfo, req.ID, c.info.Destination.String(), nil)
	_ = sc.Reply(&KilledResponse{})
}

func (m *Manager) handleOpenChannel(ctx context.Context, sc *netproto.Ctx, req *OpenChannelRequest) {
	c, ok := m.registry.get(req.ID)
	if !ok {
		_ = sc.Reply(errResponse(errNotFound(req.ID)))
		return
	}

	chanID := m.nextChannelID.Add(1)
	ch := c.openChannel(chanID)

	m.chanMu.Lock()
	m.channelConn[chanID] = req.ID
	m.chanMu.Unlock()

	m.security.logChannel(SubtypeChannelOpened, req.ID, chanID)

	go m.pumpToClient(ctx, sc, c, ch)
	go m.pumpToRemote(c, ch)

	_ = sc.Reply(&ChannelOpenedResponse{ChannelID: chanID})
}

// pumpToClient forwards frames read off the remote connection into the
// tunneled channel, then on to the client as ChannelData frames, until
// the channel closes or the remote connection errors. The manager never
// interprets tunneled bytes; it only repeats frame boundaries (spec
// §4.6: the raw channel carries opaque frames, not a decoded protocol).
func (m *Manager) pumpToClient(ctx context.Context, sc *netproto.Ctx, c *connection, ch *RawChannel) {
	for {
		frame, err := c.remote.ReadFrame()
		if err != nil {
			if err != io.EOF && err != netproto.ErrEndOfStream {
				m.logger.Warn("manager: channel remote read failed", "channel_id", ch.ID(), "error", err)
			}
			_ = sc.Reply(&ChannelClosedResponse{ChannelID: ch.ID()})
			m.closeChannelByID(ch.ID())
			return
		}
		if sendErr := sc.Reply(&ChannelDataMessage{ChannelID: ch.ID(), Frame: frame}); sendErr != nil {
			ch.Close()
			return
		}
		select {
		case <-ch.done:
			return
		default:
		}
	}
}

// pumpToRemote writes frames the client sent for this channel out to
// the remote connection.
func (m *Manager) pumpToRemote(c *connection, ch *RawChannel) {
	for {
		select {
		case frame, ok := <-ch.ToRemote():
			if !ok {
				return
			}
			if err := c.remote.WriteFrame(frame); err != nil {
				m.logger.Warn("manager: channel remote write failed", "channel_id", ch.ID(), "error", err)
				m.closeChannelByID(ch.ID())
				return
			}
		case <-ch.done:
			return
		}
	}
}

func (m *Manager) handleChannelData(msg *ChannelDataMessage) {
	_, _, ch, ok := m.lookupChannel(msg.ChannelID)
	if !ok {
		m.logger.Warn("manager: channel_data for unknown channel", "channel_id", msg.ChannelID)
		return
	}
	ch.FromClient(msg.Frame)
}

func (m *Manager) handleCloseChannel(req *CloseChannelRequest) {
	m.closeChannelByID(req.ChannelID)
}

func (m *Manager) closeChannelByID(chanID uint64) {
	m.chanMu.Lock()
	connID, ok := m.channelConn[chanID]
	delete(m.channelConn, chanID)
	m.chanMu.Unlock()
	if !ok {
		return
	}
	if c, ok := m.registry.get(connID); ok {
		c.closeChannel(chanID)
		m.security.logChannel(SubtypeChannelClosed, connID, chanID)
	}
}

func (m *Manager) lookupChannel(chanID uint64) (connID uint64, c *connection, ch *RawChannel, ok bool) {
	m.chanMu.Lock()
	connID, ok = m.channelConn[chanID]
	m.chanMu.Unlock()
	if !ok {
		return 0, nil, nil, false
	}
	c, ok = m.registry.get(connID)
	if !ok {
		return 0, nil, nil, false
	}
	ch, ok = c.getChannel(chanID)
	return connID, c, ch, ok
}

func errResponse(e *kind.Error) *ErrorResponse {
	return &ErrorResponse{Kind: e.Kind.String(), Description: e.Error()}
}
