// internal/protocol/serial_connection.go
package protocol

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"go.bug.st/serial"
	"go.uber.org/zap"

	"labware-service/internal/model"
)

// SerialPort is the part of go.bug.st/serial.Port the connection relies on
type SerialPort interface {
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)
	ResetInputBuffer() error
	ResetOutputBuffer() error
	SetReadTimeout(t time.Duration) error
	SetDTR(dtr bool) error
	SetRTS(rts bool) error
	Close() error
}

// openSerialPort is swapped out in tests
var openSerialPort = func(name string, mode *serial.Mode) (SerialPort, error) {
	port, err := serial.Open(name, mode)
	if err != nil {
		return nil, err
	}
	return port, nil
}

// SerialConnection talks to a device over a serial port with a background
// listener draining the port into the reply buffer
type SerialConnection struct {
	*streamConnection
}

// NewSerialConnection creates a serial connection; the port is opened by Open
func NewSerialConnection(cfg Config, logger *zap.Logger) (*SerialConnection, error) {
	logger = logger.With(
		zap.String("protocol", "serial"),
		zap.String("port", cfg.Port),
	)

	sc := &SerialConnection{}
	opts := streamOptions{
		capBurst:      true,
		receiveWindow: cfg.ReceiveTimeout * 10,
		joinTimeout:   cfg.ReceivingInterval * 5,
	}
	stream, err := newStreamConnection(model.ConnectionModeSerial, cfg, logger, opts, sc.openPort)
	if err != nil {
		return nil, err
	}
	sc.streamConnection = stream
	return sc, nil
}

func (sc *SerialConnection) openPort(ctx context.Context) (streamPort, error) {
	cfg := sc.cfg
	if err := cfg.require("port"); err != nil {
		return nil, err
	}

	mode, err := serialMode(cfg)
	if err != nil {
		return nil, err
	}

	sc.logger.Info("Opening serial port",
		zap.Int("baud_rate", mode.BaudRate),
		zap.Int("data_bits", mode.DataBits),
		zap.String("parity", cfg.Parity),
		zap.Float64("stop_bits", cfg.StopBits),
	)

	port, err := openSerialPort(cfg.Port, mode)
	if err != nil {
		return nil, wrapConnectionError(ErrConnection, err, "can't open serial port %s", cfg.Port)
	}

	if err := port.SetReadTimeout(pollTimeout(cfg.ReceivingInterval)); err != nil {
		port.Close()
		return nil, wrapConnectionError(ErrConnection, err, "failed to set read timeout on %s", cfg.Port)
	}
	if cfg.DsrDtr {
		if err := port.SetDTR(true); err != nil {
			sc.logger.Warn("Failed to raise DTR", zap.Error(err))
		}
	}
	if cfg.RtsCts {
		if err := port.SetRTS(true); err != nil {
			sc.logger.Warn("Failed to raise RTS", zap.Error(err))
		}
	}
	if cfg.XonXoff {
		sc.logger.Warn("Software flow control is not supported by the serial driver, ignoring xonxoff")
	}

	sc.logger.Info("Serial port opened successfully")
	return &serialHandle{port: port}, nil
}

// serialMode maps connection options onto a go.bug.st/serial mode
func serialMode(cfg Config) (*serial.Mode, error) {
	mode := &serial.Mode{
		BaudRate: cfg.BaudRate,
		DataBits: cfg.ByteSize,
	}
	if mode.DataBits < 5 || mode.DataBits > 8 {
		return nil, connectionError("invalid bytesize %d", cfg.ByteSize)
	}

	switch strings.ToLower(cfg.Parity) {
	case "", "none", "n":
		mode.Parity = serial.NoParity
	case "odd", "o":
		mode.Parity = serial.OddParity
	case "even", "e":
		mode.Parity = serial.EvenParity
	case "mark", "m":
		mode.Parity = serial.MarkParity
	case "space", "s":
		mode.Parity = serial.SpaceParity
	default:
		return nil, connectionError("invalid parity %q", cfg.Parity)
	}

	switch cfg.StopBits {
	case 0, 1:
		mode.StopBits = serial.OneStopBit
	case 1.5:
		mode.StopBits = serial.OnePointFiveStopBits
	case 2:
		mode.StopBits = serial.TwoStopBits
	default:
		return nil, connectionError("invalid stopbits %v", cfg.StopBits)
	}

	return mode, nil
}

// pollTimeout keeps the listener's read from degenerating into a busy loop
func pollTimeout(interval time.Duration) time.Duration {
	if interval < time.Millisecond {
		return 10 * time.Millisecond
	}
	return interval
}

type serialHandle struct {
	port SerialPort
}

func (h *serialHandle) readChunk(buf []byte) (int, error) {
	return h.port.Read(buf)
}

// write drops stale bytes in both directions before sending
func (h *serialHandle) write(data []byte) error {
	if err := h.port.ResetInputBuffer(); err != nil {
		return fmt.Errorf("failed to reset input buffer: %w", err)
	}
	if err := h.port.ResetOutputBuffer(); err != nil {
		return fmt.Errorf("failed to reset output buffer: %w", err)
	}
	for len(data) > 0 {
		n, err := h.port.Write(data)
		if err != nil {
			return err
		}
		if n == 0 {
			return io.ErrShortWrite
		}
		data = data[n:]
	}
	return nil
}

func (h *serialHandle) close() error {
	_ = h.port.ResetInputBuffer()
	_ = h.port.ResetOutputBuffer()
	return h.port.Close()
}
