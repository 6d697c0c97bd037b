package protocol

import (
	"bufio"
	"context"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"labware-service/internal/model"
)

// startEchoServer accepts one client and answers every line with "ACK <line>"
func startEchoServer(t *testing.T) (string, string, chan net.Conn) {
	t.Helper()
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { listener.Close() })

	accepted := make(chan net.Conn, 1)
	go func() {
		conn, err := listener.Accept()
		if err != nil {
			return
		}
		accepted <- conn
		reader := bufio.NewReader(conn)
		for {
			line, err := reader.ReadString('\n')
			if err != nil {
				return
			}
			_, _ = conn.Write([]byte("ACK " + strings.TrimSpace(line) + "\r\n"))
		}
	}()

	host, port, err := net.SplitHostPort(listener.Addr().String())
	require.NoError(t, err)
	return host, port, accepted
}

func newTestSocketConnection(t *testing.T, overrides Params) *SocketConnection {
	t.Helper()
	params := MergeParams(DefaultParams(model.ConnectionModeTCPIP), Params{
		"command_delay":      0,
		"receive_timeout":    0.01,
		"receiving_interval": 0.005,
	})
	cfg, err := DecodeConfig(MergeParams(params, overrides))
	require.NoError(t, err)

	conn, err := NewSocketConnection(cfg, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func TestSocketConnectionRoundTrip(t *testing.T) {
	host, port, _ := startEchoServer(t)
	conn := newTestSocketConnection(t, Params{"address": host, "port": port})
	ctx := context.Background()

	require.NoError(t, conn.Open(ctx))
	require.NoError(t, conn.Transmit(ctx, Message{Text: "STATUS\r\n"}))

	reply, err := conn.Receive(ctx, DefaultReceiveRetries)
	require.NoError(t, err)
	assert.Equal(t, "ACK STATUS\r\n", reply.Body)
	assert.Equal(t, model.ConnectionModeTCPIP, conn.Mode())
}

func TestSocketConnectionPeerDisconnect(t *testing.T) {
	host, port, accepted := startEchoServer(t)
	conn := newTestSocketConnection(t, Params{"address": host, "port": port})
	ctx := context.Background()
	require.NoError(t, conn.Open(ctx))

	server := <-accepted
	require.NoError(t, server.Close())

	assert.Eventually(t, func() bool { return !conn.IsOpen() }, 2*time.Second, 10*time.Millisecond)

	_, err := conn.Receive(ctx, 0)
	assert.ErrorIs(t, err, ErrConnection)
}

func TestSocketConnectionRefused(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	host, port, _ := net.SplitHostPort(listener.Addr().String())
	listener.Close()

	conn := newTestSocketConnection(t, Params{"address": host, "port": port})
	err = conn.Open(context.Background())
	assert.ErrorIs(t, err, ErrConnection)
	assert.False(t, conn.IsOpen())
}

func TestSocketConnectionUnknownProtocol(t *testing.T) {
	conn := newTestSocketConnection(t, Params{"address": "127.0.0.1", "port": "1", "protocol": "SCTP"})
	err := conn.Open(context.Background())
	assert.ErrorIs(t, err, ErrConnectionProtocol)
}

func TestSocketConnectionMissingAddress(t *testing.T) {
	conn := newTestSocketConnection(t, nil)
	err := conn.Open(context.Background())
	require.ErrorIs(t, err, ErrConnection)
	assert.Contains(t, err.Error(), "address, port")
}

func TestSocketConnectionUDP(t *testing.T) {
	server, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { server.Close() })

	go func() {
		buf := make([]byte, 256)
		for {
			n, addr, err := server.ReadFrom(buf)
			if err != nil {
				return
			}
			_, _ = server.WriteTo(append([]byte("ECHO "), buf[:n]...), addr)
		}
	}()

	host, port, _ := net.SplitHostPort(server.LocalAddr().String())
	conn := newTestSocketConnection(t, Params{"address": host, "port": port, "protocol": "udp"})
	ctx := context.Background()
	require.NoError(t, conn.Open(ctx))

	require.NoError(t, conn.Transmit(ctx, Message{Text: "PING"}))
	reply, err := conn.Receive(ctx, DefaultReceiveRetries)
	require.NoError(t, err)
	assert.Equal(t, "ECHO PING", reply.Body)
}
