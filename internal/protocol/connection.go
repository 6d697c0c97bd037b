// internal/protocol/connection.go
package protocol

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"labware-service/internal/model"
)

// Connection is a physical or logical channel to a single device
type Connection interface {
	// Lifecycle
	Open(ctx context.Context) error
	Close() error
	IsOpen() bool

	// Data exchange
	Transmit(ctx context.Context, msg Message) error
	Receive(ctx context.Context, retries int) (*model.Reply, error)
	ResetBuffer()

	// Introspection
	Mode() model.ConnectionMode
	Config() Config
	Stats() model.ConnectionStats
}

// DefaultReceiveRetries is the retry count used when callers have no preference
const DefaultReceiveRetries = 3

// Message is one outgoing command. Stream transports send Text;
// HTTP sends Data to Endpoint with Method.
type Message struct {
	Text     string `json:"text,omitempty"`
	Method   string `json:"method,omitempty"`
	Endpoint string `json:"endpoint,omitempty"`
	Data     string `json:"data,omitempty"`
}

// String renders the message for logs
func (m Message) String() string {
	if m.Method != "" {
		return m.Method + " " + m.Endpoint + " " + m.Data
	}
	return m.Text
}

// commandPacer enforces the minimum delay between two consecutive writes
type commandPacer struct {
	mu     sync.Mutex
	delay  time.Duration
	last   time.Time
	logger *zap.Logger
}

// do waits out the remaining delay and runs write while holding the pacer,
// so concurrent callers are spaced as well
func (p *commandPacer) do(ctx context.Context, write func() error) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if wait := p.delay - time.Since(p.last); wait > 0 && !p.last.IsZero() {
		p.logger.Debug("Command rate too high, delaying next command", zap.Duration("delay", wait))
		timer := time.NewTimer(wait)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		}
	}

	err := write()
	p.last = time.Now()
	return err
}

func (p *commandPacer) reset() {
	p.mu.Lock()
	p.last = time.Time{}
	p.mu.Unlock()
}

// connectionStats holds the counters behind model.ConnectionStats
type connectionStats struct {
	bytesWritten atomic.Int64
	bytesRead    atomic.Int64
	transmits    atomic.Int64
	replies      atomic.Int64
	stale        atomic.Int64
	timeouts     atomic.Int64
	lastActivity atomic.Int64
}

func (s *connectionStats) touch() {
	s.lastActivity.Store(time.Now().UnixNano())
}

func (s *connectionStats) snapshot(open bool) model.ConnectionStats {
	stats := model.ConnectionStats{
		BytesWritten: s.bytesWritten.Load(),
		BytesRead:    s.bytesRead.Load(),
		Transmits:    s.transmits.Load(),
		Replies:      s.replies.Load(),
		StaleReplies: s.stale.Load(),
		Timeouts:     s.timeouts.Load(),
		IsOpen:       open,
	}
	if last := s.lastActivity.Load(); last > 0 {
		stats.LastActivity = time.Unix(0, last)
	}
	return stats
}
