//go:build windows

package transport

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/Microsoft/go-winio"
)

// DialPipe connects to a Windows named pipe (e.g. `\\.\pipe\distant-mgr`).
func DialPipe(ctx context.Context, name string) (net.Conn, error) {
	timeout := 30 * time.Second
	if deadline, ok := ctx.Deadline(); ok {
		timeout = time.Until(deadline)
	}
	conn, err := winio.DialPipeContext(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("transport: dial pipe %s (timeout %s): %w", name, timeout, err)
	}
	return conn, nil
}

// ListenPipe binds a Windows named pipe listener.
func ListenPipe(name string) (net.Listener, error) {
	ln, err := winio.ListenPipe(name, nil)
	if err != nil {
		return nil, fmt.Errorf("transport: listen pipe %s: %w", name, err)
	}
	return ln, nil
}
