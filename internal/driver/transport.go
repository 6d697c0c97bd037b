// internal/driver/transport.go
package driver

import (
	"context"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"labware-service/internal/model"
	"labware-service/internal/protocol"
	"labware-service/pkg/driver"
)

// DefaultMaxReplySize bounds reply reassembly, in characters
const DefaultMaxReplySize = 4096

// Transport carries a formatted message to the device and returns the raw
// reply, or nil when the command expects none
type Transport interface {
	Exchange(ctx context.Context, cmd *driver.Command, msg protocol.Message) (*model.Reply, error)
}

// LiveTransport talks to the device over a Connection
type LiveTransport struct {
	conn         protocol.Connection
	terminator   string
	maxReplySize int
	retries      int
	logger       *zap.Logger
}

// NewLiveTransport wraps conn. A zero maxReplySize or retries picks the default.
func NewLiveTransport(conn protocol.Connection, terminator string, maxReplySize, retries int, logger *zap.Logger) *LiveTransport {
	if maxReplySize <= 0 {
		maxReplySize = DefaultMaxReplySize
	}
	if retries <= 0 {
		retries = protocol.DefaultReceiveRetries
	}
	return &LiveTransport{
		conn:         conn,
		terminator:   terminator,
		maxReplySize: maxReplySize,
		retries:      retries,
		logger:       logger,
	}
}

func (t *LiveTransport) Exchange(ctx context.Context, cmd *driver.Command, msg protocol.Message) (*model.Reply, error) {
	if err := t.conn.Transmit(ctx, msg); err != nil {
		return nil, err
	}
	if !cmd.ExpectsReply() {
		return nil, nil
	}
	return t.receive(ctx, cmd)
}

// receive reads one reply and, for stream transports, keeps appending
// chunks until the reply terminator shows up
func (t *LiveTransport) receive(ctx context.Context, cmd *driver.Command) (*model.Reply, error) {
	reply, err := t.conn.Receive(ctx, t.retries)
	if err != nil {
		return nil, err
	}

	if reply.ContentType == model.ContentTypeChunked {
		if t.terminator == "" {
			t.logger.Warn("No reply terminator set, using the reply as is", zap.String("command", cmd.Name))
		} else {
			for !strings.HasSuffix(reply.Body, t.terminator) {
				if utf8.RuneCountInString(reply.Body) > t.maxReplySize {
					return nil, driver.ReplyError("%s: reply exceeded %d characters without terminator %q",
						cmd.Name, t.maxReplySize, t.terminator)
				}
				chunk, err := t.conn.Receive(ctx, t.retries)
				if err != nil {
					return nil, err
				}
				t.logger.Debug("Appending reply chunk", zap.String("command", cmd.Name), zap.String("chunk", chunk.Body))
				reply.Append(chunk)
			}
		}
	}

	if reply.Body == "" {
		t.logger.Warn("Empty reply from device", zap.String("command", cmd.Name))
	}
	return reply, nil
}

// SimulatedTransport never touches a connection. Canned replies are keyed
// by wire command name and go through the normal reply processing.
type SimulatedTransport struct {
	replies map[string]string
	logger  *zap.Logger
}

// NewSimulatedTransport creates a transport answering from replies
func NewSimulatedTransport(replies map[string]string, logger *zap.Logger) *SimulatedTransport {
	if replies == nil {
		replies = make(map[string]string)
	}
	return &SimulatedTransport{replies: replies, logger: logger}
}

func (t *SimulatedTransport) Exchange(ctx context.Context, cmd *driver.Command, msg protocol.Message) (*model.Reply, error) {
	t.logger.Info("SIM :: Pretending to send message", zap.String("message", msg.String()))
	if !cmd.ExpectsReply() {
		return nil, nil
	}
	body, ok := t.replies[cmd.Name]
	if !ok {
		return nil, nil
	}
	if cmd.IsHTTP() {
		return model.NewReply(body, model.ContentTypeJSON), nil
	}
	return model.NewReply(body, model.ContentTypeText), nil
}

// Value makes up a result for a command without a canned reply: the sent
// value cast to the reply type, or the zero value of that type
func (t *SimulatedTransport) Value(cmd *driver.Command, value interface{}) interface{} {
	if cmd.Reply == nil || cmd.Reply.Type == "" {
		return value
	}
	if value != nil {
		if cast, err := cmd.Reply.Type.Cast(value); err == nil {
			return cast
		}
	}
	return zeroValue(cmd.Reply.Type)
}

func zeroValue(kind driver.Kind) interface{} {
	cast, err := kind.Cast("0")
	if err != nil {
		return nil
	}
	if kind == driver.KindString {
		return ""
	}
	return cast
}
