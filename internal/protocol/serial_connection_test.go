package protocol

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.bug.st/serial"
	"go.uber.org/zap"

	"labware-service/internal/model"
)

// fakeSerialPort answers every write through respond and hands the reply
// back to the listener in chunks
type fakeSerialPort struct {
	mu          sync.Mutex
	incoming    chan []byte
	pending     []byte
	readTimeout time.Duration
	writes      []string
	writeTimes  []time.Time
	respond     func(cmd string) []string
	closed      bool
	readErr     error
}

func newFakeSerialPort(respond func(cmd string) []string) *fakeSerialPort {
	return &fakeSerialPort{
		incoming:    make(chan []byte, 64),
		readTimeout: 10 * time.Millisecond,
		respond:     respond,
	}
}

func (p *fakeSerialPort) Read(buf []byte) (int, error) {
	p.mu.Lock()
	if p.readErr != nil {
		err := p.readErr
		p.mu.Unlock()
		return 0, err
	}
	if len(p.pending) > 0 {
		n := copy(buf, p.pending)
		p.pending = p.pending[n:]
		p.mu.Unlock()
		return n, nil
	}
	timeout := p.readTimeout
	p.mu.Unlock()

	select {
	case data := <-p.incoming:
		n := copy(buf, data)
		p.mu.Lock()
		p.pending = append(p.pending, data[n:]...)
		p.mu.Unlock()
		return n, nil
	case <-time.After(timeout):
		return 0, nil
	}
}

func (p *fakeSerialPort) Write(data []byte) (int, error) {
	p.mu.Lock()
	p.writes = append(p.writes, string(data))
	p.writeTimes = append(p.writeTimes, time.Now())
	respond := p.respond
	p.mu.Unlock()

	if respond != nil {
		for _, chunk := range respond(string(data)) {
			p.incoming <- []byte(chunk)
		}
	}
	return len(data), nil
}

func (p *fakeSerialPort) ResetInputBuffer() error  { return nil }
func (p *fakeSerialPort) ResetOutputBuffer() error { return nil }
func (p *fakeSerialPort) SetDTR(bool) error        { return nil }
func (p *fakeSerialPort) SetRTS(bool) error        { return nil }

func (p *fakeSerialPort) SetReadTimeout(t time.Duration) error {
	p.mu.Lock()
	p.readTimeout = t
	p.mu.Unlock()
	return nil
}

func (p *fakeSerialPort) Close() error {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	return nil
}

func (p *fakeSerialPort) written() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.writes...)
}

func (p *fakeSerialPort) push(data string) {
	p.incoming <- []byte(data)
}

func (p *fakeSerialPort) fail(err error) {
	p.mu.Lock()
	p.readErr = err
	p.mu.Unlock()
}

func useFakeSerialPort(t *testing.T, port *fakeSerialPort) *serial.Mode {
	t.Helper()
	var opened serial.Mode
	original := openSerialPort
	openSerialPort = func(name string, mode *serial.Mode) (SerialPort, error) {
		opened = *mode
		return port, nil
	}
	t.Cleanup(func() { openSerialPort = original })
	return &opened
}

func newTestSerialConnection(t *testing.T, overrides Params) *SerialConnection {
	t.Helper()
	params := MergeParams(DefaultParams(model.ConnectionModeSerial), Params{
		"port":               "/dev/ttyFAKE0",
		"command_delay":      0,
		"receive_timeout":    0.02,
		"receiving_interval": 0.005,
	})
	cfg, err := DecodeConfig(MergeParams(params, overrides))
	require.NoError(t, err)

	conn, err := NewSerialConnection(cfg, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func TestSerialConnectionRoundTrip(t *testing.T) {
	port := newFakeSerialPort(func(cmd string) []string {
		if cmd == "IN_PV_1 \r \n" {
			return []string{"22.", "5 1\r\n"}
		}
		return nil
	})
	mode := useFakeSerialPort(t, port)

	conn := newTestSerialConnection(t, Params{"parity": "even", "bytesize": 7})
	ctx := context.Background()

	require.NoError(t, conn.Open(ctx))
	assert.True(t, conn.IsOpen())
	assert.Equal(t, serial.EvenParity, mode.Parity)
	assert.Equal(t, 7, mode.DataBits)

	require.NoError(t, conn.Transmit(ctx, Message{Text: "IN_PV_1 \r \n"}))
	reply, err := conn.Receive(ctx, DefaultReceiveRetries)
	require.NoError(t, err)

	assert.Equal(t, "22.5 1\r\n", reply.Body)
	assert.Equal(t, model.ContentTypeChunked, reply.ContentType)
	assert.Equal(t, []string{"IN_PV_1 \r \n"}, port.written())

	stats := conn.Stats()
	assert.EqualValues(t, 1, stats.Transmits)
	assert.EqualValues(t, 1, stats.Replies)
	assert.EqualValues(t, len("22.5 1\r\n"), stats.BytesRead)
	assert.True(t, stats.IsOpen)
}

func TestSerialConnectionReceiveTimeout(t *testing.T) {
	port := newFakeSerialPort(nil)
	useFakeSerialPort(t, port)

	conn := newTestSerialConnection(t, nil)
	ctx := context.Background()
	require.NoError(t, conn.Open(ctx))
	require.NoError(t, conn.Transmit(ctx, Message{Text: "IN_PV_1"}))

	window := conn.opts.receiveWindow
	start := time.Now()
	_, err := conn.Receive(ctx, 3)

	require.ErrorIs(t, err, ErrConnectionTimeout)
	assert.GreaterOrEqual(t, time.Since(start), 4*window)
	assert.EqualValues(t, 1, conn.Stats().Timeouts)
}

func TestSerialConnectionStaleReply(t *testing.T) {
	port := newFakeSerialPort(nil)
	useFakeSerialPort(t, port)

	conn := newTestSerialConnection(t, nil)
	ctx := context.Background()
	require.NoError(t, conn.Open(ctx))

	port.push("old")
	assert.Eventually(t, conn.buffer.isReady, time.Second, 5*time.Millisecond)

	port.push("new")
	assert.Eventually(t, func() bool {
		return conn.Stats().StaleReplies == 1 && conn.buffer.peek() == "new"
	}, time.Second, 5*time.Millisecond)

	reply, err := conn.Receive(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, "new", reply.Body)
}

func TestSerialConnectionCommandDelay(t *testing.T) {
	port := newFakeSerialPort(nil)
	useFakeSerialPort(t, port)

	delay := 50 * time.Millisecond
	conn := newTestSerialConnection(t, Params{"command_delay": delay.Seconds()})
	ctx := context.Background()
	require.NoError(t, conn.Open(ctx))

	for i := 0; i < 3; i++ {
		require.NoError(t, conn.Transmit(ctx, Message{Text: "STATUS"}))
	}

	port.mu.Lock()
	times := append([]time.Time(nil), port.writeTimes...)
	port.mu.Unlock()

	require.Len(t, times, 3)
	for i := 1; i < len(times); i++ {
		assert.GreaterOrEqual(t, times[i].Sub(times[i-1]), delay)
	}
}

func TestSerialConnectionCloseIdempotent(t *testing.T) {
	port := newFakeSerialPort(nil)
	useFakeSerialPort(t, port)

	conn := newTestSerialConnection(t, nil)
	ctx := context.Background()

	// closing a never-opened connection is a warning, not an error
	assert.NoError(t, conn.Close())

	require.NoError(t, conn.Open(ctx))
	require.NoError(t, conn.Close())
	assert.False(t, conn.IsOpen())
	assert.NoError(t, conn.Close())

	// reopen after close
	require.NoError(t, conn.Open(ctx))
	assert.True(t, conn.IsOpen())
}

func TestSerialConnectionNotOpen(t *testing.T) {
	useFakeSerialPort(t, newFakeSerialPort(nil))
	conn := newTestSerialConnection(t, nil)

	err := conn.Transmit(context.Background(), Message{Text: "STATUS"})
	assert.ErrorIs(t, err, ErrConnection)

	_, err = conn.Receive(context.Background(), 0)
	assert.ErrorIs(t, err, ErrConnection)
}

func TestSerialConnectionLostDevice(t *testing.T) {
	port := newFakeSerialPort(nil)
	useFakeSerialPort(t, port)

	conn := newTestSerialConnection(t, nil)
	ctx := context.Background()
	require.NoError(t, conn.Open(ctx))

	port.fail(errors.New("device reports readiness to read but returned no data"))
	assert.Eventually(t, func() bool { return !conn.IsOpen() }, time.Second, 5*time.Millisecond)

	err := conn.Transmit(ctx, Message{Text: "STATUS"})
	assert.ErrorIs(t, err, ErrConnection)
	assert.Contains(t, err.Error(), "lost")
}

func TestSerialConnectionEncodingFailure(t *testing.T) {
	useFakeSerialPort(t, newFakeSerialPort(nil))
	conn := newTestSerialConnection(t, Params{"encoding": "ascii"})
	ctx := context.Background()
	require.NoError(t, conn.Open(ctx))

	err := conn.Transmit(ctx, Message{Text: "SET °"})
	assert.ErrorIs(t, err, ErrConnectionProtocol)
}

func TestSerialModeValidation(t *testing.T) {
	_, err := serialMode(Config{ByteSize: 9, StopBits: 1})
	assert.ErrorIs(t, err, ErrConnection)

	_, err = serialMode(Config{ByteSize: 8, Parity: "weird"})
	assert.ErrorIs(t, err, ErrConnection)

	_, err = serialMode(Config{ByteSize: 8, StopBits: 3})
	assert.ErrorIs(t, err, ErrConnection)

	mode, err := serialMode(Config{BaudRate: 19200, ByteSize: 8, Parity: "O", StopBits: 2})
	require.NoError(t, err)
	assert.Equal(t, serial.OddParity, mode.Parity)
	assert.Equal(t, serial.TwoStopBits, mode.StopBits)
}
