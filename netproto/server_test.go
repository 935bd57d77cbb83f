package netproto

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/smnsjas/go-distant/config"
)

type blockRequest struct{}

func (blockRequest) VariantType() string { return "block" }

type unblockRequest struct{}

func (unblockRequest) VariantType() string { return "unblock" }

type okResponse struct{}

func (okResponse) VariantType() string { return "ok" }

// blockingHandler reproduces the shape that deadlocked the Manager's
// auth proxy before OnRequest was dispatched off the connection's read
// loop (C6): handling a blockRequest blocks on a channel that only a
// later unblockRequest on the very same connection ever feeds.
type blockingHandler struct {
	unblock chan struct{}
}

func (h *blockingHandler) OnAccept(connID uint64) any         { return nil }
func (h *blockingHandler) OnDisconnect(connID uint64, _ any) {}

func (h *blockingHandler) OnRequest(ctx context.Context, sc *Ctx) {
	switch sc.Request.Payload.(type) {
	case *blockRequest:
		select {
		case <-h.unblock:
			_ = sc.Reply(&okResponse{})
		case <-ctx.Done():
		}
	case *unblockRequest:
		close(h.unblock)
		_ = sc.Reply(&okResponse{})
	}
}

// TestServerDispatchesRequestsOffTheReadLoop is the S3-style regression
// that would have caught the Manager auth-proxy deadlock: a handler
// call blocked awaiting a later request on the same connection must
// not prevent the read loop from delivering that later request.
func TestServerDispatchesRequestsOffTheReadLoop(t *testing.T) {
	reqReg := NewRegistry()
	reqReg.Register("block", func() Variant { return &blockRequest{} })
	reqReg.Register("unblock", func() Variant { return &unblockRequest{} })

	respReg := NewRegistry()
	respReg.Register("ok", func() Variant { return &okResponse{} })

	handler := &blockingHandler{unblock: make(chan struct{})}
	srv := NewServer(handler, nil, NewCodec(), reqReg, config.DefaultServerConfig(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ref, err := srv.ServeTCP(ctx, "127.0.0.1:0")
	require.NoError(t, err)
	defer ref.Shutdown()

	conn, err := net.Dial("tcp", ref.Addr())
	require.NoError(t, err)
	defer conn.Close()

	framed := NewFramedConn(conn, config.DefaultFrameConfig().MaxFrameSize)
	client := NewUntypedClient(framed, NewCodec(), respReg, func(Variant) bool { return true }, config.DefaultMailboxConfig(), nil)
	defer client.Close()

	blockDone := make(chan error, 1)
	go func() {
		_, sendErr := client.Send(ctx, &blockRequest{})
		blockDone <- sendErr
	}()

	// Give the blockRequest a head start so it is genuinely in flight
	// (handler goroutine parked on h.unblock) before the unblock request
	// follows on the same connection.
	select {
	case err := <-blockDone:
		t.Fatalf("blockRequest completed before unblockRequest was sent: %v", err)
	case <-time.After(100 * time.Millisecond):
	}

	_, err = client.Send(ctx, &unblockRequest{})
	require.NoError(t, err)

	select {
	case err := <-blockDone:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("blockRequest never completed: the read loop is still serialized with OnRequest dispatch")
	}
}
