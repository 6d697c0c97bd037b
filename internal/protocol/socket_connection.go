// internal/protocol/socket_connection.go
package protocol

import (
	"context"
	"errors"
	"io"
	"net"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"labware-service/internal/model"
)

// SocketConnection talks to a device over a raw TCP or UDP socket
type SocketConnection struct {
	*streamConnection
	network string
}

// NewSocketConnection creates a socket connection; the socket is dialed by Open
func NewSocketConnection(cfg Config, logger *zap.Logger) (*SocketConnection, error) {
	network := strings.ToLower(cfg.Protocol)
	logger = logger.With(
		zap.String("protocol", network),
		zap.String("address", net.JoinHostPort(cfg.Address, cfg.Port)),
	)

	sc := &SocketConnection{network: network}
	opts := streamOptions{
		receiveWindow: cfg.ReceiveTimeout * 50,
		joinTimeout:   max(cfg.ReceivingInterval, cfg.ReceiveTimeout) * 5,
	}
	stream, err := newStreamConnection(model.ConnectionModeTCPIP, cfg, logger, opts, sc.dial)
	if err != nil {
		return nil, err
	}
	sc.streamConnection = stream
	return sc, nil
}

func (sc *SocketConnection) dial(ctx context.Context) (streamPort, error) {
	cfg := sc.cfg
	if sc.network != "tcp" && sc.network != "udp" {
		return nil, protocolError("unknown transport protocol %q, expected TCP or UDP", cfg.Protocol)
	}
	if err := cfg.require("address", "port"); err != nil {
		return nil, err
	}

	address := net.JoinHostPort(cfg.Address, cfg.Port)
	sc.logger.Info("Opening socket connection", zap.Duration("connect_timeout", cfg.TransmitTimeout))

	dialer := &net.Dialer{Timeout: cfg.TransmitTimeout}
	conn, err := dialer.DialContext(ctx, sc.network, address)
	if err != nil {
		var netErr net.Error
		if (errors.As(err, &netErr) && netErr.Timeout()) || errors.Is(err, context.DeadlineExceeded) {
			return nil, wrapConnectionError(ErrConnectionTimeout, err, "remote host %s doesn't respond", address)
		}
		return nil, wrapConnectionError(ErrConnection, err, "can't open %s socket for %s", strings.ToUpper(sc.network), address)
	}

	sc.logger.Info("Socket connection opened successfully")
	return &socketHandle{
		conn:         conn,
		readTimeout:  pollTimeout(cfg.ReceiveTimeout),
		writeTimeout: cfg.TransmitTimeout,
		datagram:     sc.network == "udp",
		logger:       sc.logger,
	}, nil
}

type socketHandle struct {
	conn         net.Conn
	readTimeout  time.Duration
	writeTimeout time.Duration
	datagram     bool
	logger       *zap.Logger
}

// readChunk blocks for at most the receive timeout; a timeout ends a burst
func (h *socketHandle) readChunk(buf []byte) (int, error) {
	if err := h.conn.SetReadDeadline(time.Now().Add(h.readTimeout)); err != nil {
		return 0, err
	}
	n, err := h.conn.Read(buf)
	if err == nil {
		return n, nil
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return n, nil
	}
	if h.datagram && errors.Is(err, syscall.ECONNREFUSED) {
		// ICMP port unreachable from a previous datagram
		h.logger.Warn("Datagram rejected by remote host", zap.Error(err))
		return n, nil
	}
	if isDisconnect(err) {
		return n, wrapConnectionError(ErrConnection, err, "device disconnected")
	}
	h.logger.Warn("Socket read failed", zap.Error(err))
	return n, nil
}

func (h *socketHandle) write(data []byte) error {
	if h.writeTimeout > 0 {
		if err := h.conn.SetWriteDeadline(time.Now().Add(h.writeTimeout)); err != nil {
			return err
		}
	}
	for len(data) > 0 {
		n, err := h.conn.Write(data)
		if err != nil {
			return err
		}
		data = data[n:]
	}
	return nil
}

func (h *socketHandle) close() error {
	return h.conn.Close()
}

func isDisconnect(err error) bool {
	return errors.Is(err, io.EOF) ||
		errors.Is(err, net.ErrClosed) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNABORTED) ||
		errors.Is(err, syscall.EPIPE)
}
