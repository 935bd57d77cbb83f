package netproto

import (
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFramedConnRoundTrip(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	cf := NewFramedConn(client, 1024)
	sf := NewFramedConn(server, 1024)

	payloads := [][]byte{
		[]byte("hello"),
		{},
		[]byte("a slightly longer payload to exercise more than one byte"),
	}

	for _, p := range payloads {
		errCh := make(chan error, 1)
		go func(p []byte) { errCh <- cf.WriteFrame(p) }(p)

		got, err := sf.ReadFrame()
		require.NoError(t, err)
		require.NoError(t, <-errCh)
		assert.Equal(t, p, got)
	}
}

func TestFramedConnRejectsOversizedFrame(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	cf := NewFramedConn(client, 4)
	err := cf.WriteFrame([]byte("way too long"))
	assert.Error(t, err)
}

func TestFramedConnReadReportsEndOfStreamOnCleanClose(t *testing.T) {
	client, server := net.Pipe()
	sf := NewFramedConn(server, 1024)

	go client.Close()

	_, err := sf.ReadFrame()
	assert.ErrorIs(t, err, ErrEndOfStream)
}
