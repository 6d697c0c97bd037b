// internal/protocol/stream.go
package protocol

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"labware-service/internal/model"
)

var errAborted = errors.New("listener stopped")

// streamPort is the OS handle behind a listener-driven connection
type streamPort interface {
	// readChunk returns 0, nil when nothing arrived within the poll window
	readChunk(buf []byte) (int, error)
	write(data []byte) error
	close() error
}

// streamOptions carries the per-transport differences of the listener model
type streamOptions struct {
	// capBurst stops a burst once the buffer outgrows receive_buffer_size
	capBurst bool
	// receiveWindow is how long Receive waits per attempt
	receiveWindow time.Duration
	// joinTimeout bounds how long Close waits for the listener
	joinTimeout time.Duration
}

// streamConnection implements the listener model shared by serial, socket
// and USB transports. The handle lock serializes every read and write.
type streamConnection struct {
	mode   model.ConnectionMode
	cfg    Config
	codec  *Codec
	logger *zap.Logger
	opts   streamOptions
	openFn func(ctx context.Context) (streamPort, error)

	handleMu sync.Mutex

	stateMu  sync.RWMutex
	port     streamPort
	open     bool
	fatalErr error
	stop     chan struct{}
	done     chan struct{}

	pacer  *commandPacer
	buffer *replyBuffer
	stats  *connectionStats
}

func newStreamConnection(mode model.ConnectionMode, cfg Config, logger *zap.Logger, opts streamOptions,
	openFn func(ctx context.Context) (streamPort, error)) (*streamConnection, error) {
	codec, err := NewCodec(cfg.Encoding)
	if err != nil {
		return nil, err
	}
	if cfg.ReceiveBufferSize <= 0 {
		return nil, connectionError("receive_buffer_size must be positive, got %d", cfg.ReceiveBufferSize)
	}

	stats := &connectionStats{}
	return &streamConnection{
		mode:   mode,
		cfg:    cfg,
		codec:  codec,
		logger: logger,
		opts:   opts,
		openFn: openFn,
		pacer:  &commandPacer{delay: cfg.CommandDelay, logger: logger},
		buffer: newReplyBuffer(logger, stats),
		stats:  stats,
	}, nil
}

// Open creates the OS handle and starts the listener
func (s *streamConnection) Open(ctx context.Context) error {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()

	if s.open {
		s.logger.Warn("Connection is already open")
		return nil
	}
	if s.port != nil {
		// Left over from a lost connection
		_ = s.port.close()
		s.port = nil
	}

	port, err := s.openFn(ctx)
	if err != nil {
		s.logger.Error("Failed to open connection", zap.Error(err))
		return err
	}

	s.port = port
	s.open = true
	s.fatalErr = nil
	s.stop = make(chan struct{})
	s.done = make(chan struct{})
	s.buffer.reset()
	s.pacer.reset()
	s.stats.touch()

	go s.listen(port, s.stop, s.done)

	s.logger.Info("Connection opened")
	return nil
}

// Close stops the listener, waits for it for a bounded time and releases the handle
func (s *streamConnection) Close() error {
	s.stateMu.Lock()
	if s.port == nil {
		s.stateMu.Unlock()
		s.logger.Warn("Trying to close a connection that is not open")
		return nil
	}
	port, stop, done := s.port, s.stop, s.done
	s.port = nil
	s.open = false
	s.stateMu.Unlock()

	close(stop)
	joined := true
	select {
	case <-done:
	case <-time.After(s.opts.joinTimeout):
		joined = false
		s.logger.Warn("Connection listener did not exit in time, releasing handle anyway",
			zap.Duration("join_timeout", s.opts.joinTimeout),
		)
	}

	var err error
	if joined {
		s.handleMu.Lock()
		err = port.close()
		s.handleMu.Unlock()
	} else {
		err = port.close()
	}
	if err != nil {
		s.logger.Error("Failed to release connection handle", zap.Error(err))
		return wrapConnectionError(ErrConnection, err, "failed to close connection")
	}

	s.logger.Info("Connection closed")
	return nil
}

// IsOpen reports the tracked state; a listener that hit a fatal read error
// marks the connection closed
func (s *streamConnection) IsOpen() bool {
	s.stateMu.RLock()
	defer s.stateMu.RUnlock()
	return s.open
}

// Transmit encodes and writes a message, honoring the command delay
func (s *streamConnection) Transmit(ctx context.Context, msg Message) error {
	s.stateMu.RLock()
	port, open, fatal := s.port, s.open, s.fatalErr
	s.stateMu.RUnlock()

	if !open {
		if fatal != nil {
			return wrapConnectionError(ErrConnection, fatal, "connection to the device lost")
		}
		return connectionError("no connection to the device")
	}

	data, err := s.codec.Encode(msg.Text)
	if err != nil {
		return err
	}

	if s.buffer.isReady() {
		s.logger.Warn("Previous reply has not been read", zap.String("reply", s.buffer.peek()))
	}

	err = s.pacer.do(ctx, func() error {
		s.handleMu.Lock()
		defer s.handleMu.Unlock()
		return port.write(data)
	})
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		s.logger.Error("Write failed", zap.Error(err))
		return wrapConnectionError(ErrConnection, err, "failed to send command")
	}

	s.stats.transmits.Add(1)
	s.stats.bytesWritten.Add(int64(len(data)))
	s.stats.touch()
	s.logger.Debug("Sent command", zap.ByteString("command", data))
	return nil
}

// Receive waits for the listener to publish a burst and returns it as a
// chunked reply
func (s *streamConnection) Receive(ctx context.Context, retries int) (*model.Reply, error) {
	s.stateMu.RLock()
	open, fatal, done := s.open, s.fatalErr, s.done
	s.stateMu.RUnlock()

	if !open && !s.buffer.isReady() {
		if fatal != nil {
			return nil, wrapConnectionError(ErrConnection, fatal, "connection to the device lost")
		}
		return nil, connectionError("no connection to the device")
	}

	if !s.buffer.isReady() {
		s.logger.Debug("Waiting for incoming data to become ready")
	}
	body, err := s.buffer.await(ctx, s.opts.receiveWindow, retries, done)
	if err != nil {
		if errors.Is(err, errAborted) {
			s.stateMu.RLock()
			fatal = s.fatalErr
			s.stateMu.RUnlock()
			if fatal != nil {
				return nil, wrapConnectionError(ErrConnection, fatal, "connection to the device lost")
			}
			return nil, connectionError("connection closed while waiting for reply")
		}
		return nil, err
	}

	s.stats.replies.Add(1)
	return &model.Reply{Body: body, ContentType: model.ContentTypeChunked}, nil
}

// ResetBuffer drops any buffered reply and clears the ready flag
func (s *streamConnection) ResetBuffer() {
	s.buffer.reset()
}

func (s *streamConnection) Mode() model.ConnectionMode {
	return s.mode
}

func (s *streamConnection) Config() Config {
	return s.cfg
}

func (s *streamConnection) Stats() model.ConnectionStats {
	return s.stats.snapshot(s.IsOpen())
}

// listen polls the handle until stop is closed or a fatal read error occurs
func (s *streamConnection) listen(port streamPort, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	s.logger.Info("Starting connection listener")
	chunk := make([]byte, s.cfg.ReceiveBufferSize)

	for {
		select {
		case <-stop:
			s.logger.Info("Connection listener exiting")
			return
		default:
		}

		if err := s.poll(port, chunk); err != nil {
			select {
			case <-stop:
				// Handle closed underneath us during shutdown
				s.logger.Info("Connection listener exiting")
				return
			default:
			}
			s.logger.Error("Device disconnected", zap.Error(err))
			s.stateMu.Lock()
			s.open = false
			s.fatalErr = err
			s.stateMu.Unlock()
			return
		}

		select {
		case <-stop:
			s.logger.Info("Connection listener exiting")
			return
		case <-time.After(s.cfg.ReceivingInterval):
		}
	}
}

// poll reads one burst if data is waiting
func (s *streamConnection) poll(port streamPort, chunk []byte) error {
	n, err := s.read(port, chunk)
	if err != nil {
		return err
	}
	if n == 0 {
		return nil
	}

	s.buffer.begin()
	defer func() {
		if s.buffer.size() > 0 {
			s.buffer.publish()
		}
	}()

	for n > 0 {
		s.stats.bytesRead.Add(int64(n))
		text, err := s.codec.Decode(chunk[:n])
		if err != nil {
			s.logger.Error("Can't decode device reply", zap.Error(err), zap.Binary("chunk", chunk[:n]))
			return nil
		}
		s.buffer.append(text)

		if s.opts.capBurst && s.buffer.size() > s.cfg.ReceiveBufferSize {
			break
		}
		if n, err = s.read(port, chunk); err != nil {
			return err
		}
	}
	s.stats.touch()
	return nil
}

func (s *streamConnection) read(port streamPort, chunk []byte) (int, error) {
	s.handleMu.Lock()
	defer s.handleMu.Unlock()
	return port.readChunk(chunk)
}
