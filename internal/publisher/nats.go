// internal/publisher/nats.go
package publisher

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"labware-service/internal/config"
	"labware-service/internal/model"
)

// Conn is the subset of *nats.Conn the publisher needs
type Conn interface {
	Publish(subject string, data []byte) error
	IsConnected() bool
	Drain() error
}

// Publisher forwards background task results to NATS subjects
// <prefix>.<device>.<command>
type Publisher struct {
	conn      Conn
	prefix    string
	logger    *zap.Logger
	published atomic.Int64
	failed    atomic.Int64
}

// Connect dials the configured server and returns a publisher on it
func Connect(cfg config.NATSConfig, logger *zap.Logger) (*Publisher, error) {
	logger = logger.With(zap.String("component", "nats"), zap.String("url", cfg.URL))

	opts := []nats.Option{
		nats.Name(cfg.Name),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn("NATS disconnected", zap.Error(err))
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			logger.Info("NATS reconnected")
		}),
		nats.ClosedHandler(func(_ *nats.Conn) {
			logger.Info("NATS connection closed")
		}),
	}

	conn, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("can't connect to NATS at %s: %w", cfg.URL, err)
	}
	logger.Info("Connected to NATS")
	return New(conn, cfg.SubjectPrefix, logger), nil
}

// New wraps an established connection
func New(conn Conn, prefix string, logger *zap.Logger) *Publisher {
	return &Publisher{
		conn:   conn,
		prefix: strings.Trim(prefix, "."),
		logger: logger,
	}
}

// Subject builds the subject a result of device/command is published on
func (p *Publisher) Subject(device, command string) string {
	parts := []string{token(device), token(command)}
	if p.prefix != "" {
		parts = append([]string{p.prefix}, parts...)
	}
	return strings.Join(parts, ".")
}

// Publish sends one task result. Failures are logged, the task goes on.
func (p *Publisher) Publish(result model.TaskResult) {
	if !p.conn.IsConnected() {
		p.failed.Add(1)
		p.logger.Debug("NATS not connected, dropping task result", zap.String("device", result.Device))
		return
	}

	data, err := json.Marshal(result)
	if err != nil {
		p.failed.Add(1)
		p.logger.Error("Failed to encode task result", zap.String("device", result.Device), zap.Error(err))
		return
	}

	subject := p.Subject(result.Device, result.Command)
	if err := p.conn.Publish(subject, data); err != nil {
		p.failed.Add(1)
		p.logger.Error("Failed to publish task result", zap.String("subject", subject), zap.Error(err))
		return
	}
	p.published.Add(1)
}

// Stats returns the number of published and failed results
func (p *Publisher) Stats() (published, failed int64) {
	return p.published.Load(), p.failed.Load()
}

// Close drains pending messages and closes the connection
func (p *Publisher) Close() error {
	return p.conn.Drain()
}

// token makes a name safe for use as a single subject token
func token(s string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '.', ' ', '*', '>', '\t':
			return '_'
		}
		return r
	}, s)
}
