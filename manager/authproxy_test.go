package manager

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/smnsjas/go-distant/auth"
	"github.com/smnsjas/go-distant/config"
)

func newTestManager() *Manager {
	return NewManager(nil, config.DefaultServerConfig(), nil)
}

func TestRouteAuthReplyDeliversToRegisteredSession(t *testing.T) {
	m := newTestManager()
	sess := &authSession{incoming: make(chan *auth.Message, 4)}
	m.registerAuthSession(1, sess)
	defer m.unregisterAuthSession(1)

	m.routeAuthReply(1, auth.Message{Type: auth.TypeChallenge})

	select {
	case msg := <-sess.incoming:
		require.Equal(t, auth.TypeChallenge, msg.Type)
	default:
		t.Fatal("expected the reply to be delivered to the registered session")
	}
}

func TestRouteAuthReplyDropsUnknownSessionWithoutPanicking(t *testing.T) {
	m := newTestManager()
	require.NotPanics(t, func() {
		m.routeAuthReply(999, auth.Message{Type: auth.TypeChallenge})
	})
}

// TestRouteAuthReplyNeverBlocksOnAFullSession is the property that lets
// netproto.Server's now-concurrent OnRequest dispatch (C6's deadlock
// fix) stay safe: even if a session's buffer is full, routing a reply
// into it must drop rather than block the caller.
func TestRouteAuthReplyNeverBlocksOnAFullSession(t *testing.T) {
	m := newTestManager()
	sess := &authSession{incoming: make(chan *auth.Message, 1)}
	m.registerAuthSession(2, sess)
	defer m.unregisterAuthSession(2)

	m.routeAuthReply(2, auth.Message{Type: auth.TypeChallenge}) // fills the buffer

	done := make(chan struct{})
	go func() {
		m.routeAuthReply(2, auth.Message{Type: auth.TypeChallenge}) // must drop, not block
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("routeAuthReply blocked on a full session channel")
	}
}

func TestAwaitClientReplyUnblocksOnRoutedMessage(t *testing.T) {
	m := newTestManager()
	sess := &authSession{incoming: make(chan *auth.Message, 4)}
	m.registerAuthSession(3, sess)
	defer m.unregisterAuthSession(3)

	go m.routeAuthReply(3, auth.Message{Type: auth.TypeVerification})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	msg, err := m.awaitClientReply(ctx, sess)
	require.NoError(t, err)
	require.Equal(t, auth.TypeVerification, msg.Type)
}

func TestAwaitClientReplyReturnsErrorOnCancellation(t *testing.T) {
	m := newTestManager()
	sess := &authSession{incoming: make(chan *auth.Message, 1)}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := m.awaitClientReply(ctx, sess)
	require.Error(t, err)
}
