// Package transport supplies the bidirectional byte-stream bindings
// named (but left abstract) by spec §1: TCP, Unix-domain socket,
// Windows named pipe, and an in-memory pair for tests. Each binding
// returns a net.Conn / net.Listener pair so package netproto's
// FramedConn and Server can wrap them uniformly.
package transport

import (
	"context"
	"fmt"
	"net"
)

// DialTCP connects to a TCP address (host:port).
func DialTCP(ctx context.Context, addr string) (net.Conn, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("transport: dial tcp %s: %w", addr, err)
	}
	return conn, nil
}

// ListenTCP binds a TCP listener. Passing ":0" binds an ephemeral port;
// read back the bound address via the listener's Addr().
func ListenTCP(addr string) (net.Listener, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("transport: listen tcp %s: %w", addr, err)
	}
	return ln, nil
}

// DialUnix connects to a Unix-domain socket at path.
func DialUnix(ctx context.Context, path string) (net.Conn, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "unix", path)
	if err != nil {
		return nil, fmt.Errorf("transport: dial unix %s: %w", path, err)
	}
	return conn, nil
}

// ListenUnix binds a Unix-domain socket listener at path.
func ListenUnix(path string) (net.Listener, error) {
	ln, err := net.Listen("unix", path)
	if err != nil {
		return nil, fmt.Errorf("transport: listen unix %s: %w", path, err)
	}
	return ln, nil
}
