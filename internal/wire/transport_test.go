package wire

import (
	"net"
	"testing"

	"github.com/stretchr/testify/require"
)

// TestTCPConnectionSendRecv exercises the framing Send/Recv adds over a
// raw stream pair, using net.Pipe as a stand-in for a TCP socket.
func TestTCPConnectionSendRecv(t *testing.T) {
	server, client := net.Pipe()
	defer server.Close()
	defer client.Close()

	sc := NewTCPConnection(server)
	cc := NewTCPConnection(client)

	msg := []byte("hello, knights")
	errCh := make(chan error, 1)
	go func() { errCh <- sc.Send(msg) }()

	got, err := cc.Recv()
	require.NoError(t, err)
	require.NoError(t, <-errCh)
	require.Equal(t, msg, got)
}

func TestTCPConnectionOversizedFrameRejected(t *testing.T) {
	server, client := net.Pipe()
	defer server.Close()
	defer client.Close()

	sc := NewTCPConnection(server)
	err := sc.Send(make([]byte, maxFrameLen+1))
	require.Error(t, err)
}
