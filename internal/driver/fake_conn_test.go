package driver

import (
	"context"
	"fmt"
	"sync"

	"labware-service/internal/model"
	"labware-service/internal/protocol"
)

// fakeConn is a scripted protocol.Connection
type fakeConn struct {
	mu      sync.Mutex
	mode    model.ConnectionMode
	open    bool
	openErr error
	sent    []protocol.Message
	replies []*model.Reply
	// onTransmit, when set, queues replies in response to a message
	onTransmit func(msg protocol.Message) []*model.Reply
}

func newFakeConn(mode model.ConnectionMode) *fakeConn {
	return &fakeConn{mode: mode}
}

func (f *fakeConn) queue(replies ...*model.Reply) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.replies = append(f.replies, replies...)
}

func (f *fakeConn) transmitted() []protocol.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]protocol.Message(nil), f.sent...)
}

func (f *fakeConn) Open(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.openErr != nil {
		return f.openErr
	}
	f.open = true
	return nil
}

func (f *fakeConn) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.open = false
	return nil
}

func (f *fakeConn) IsOpen() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.open
}

func (f *fakeConn) Transmit(ctx context.Context, msg protocol.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, msg)
	if f.onTransmit != nil {
		f.replies = append(f.replies, f.onTransmit(msg)...)
	}
	return nil
}

func (f *fakeConn) Receive(ctx context.Context, retries int) (*model.Reply, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.replies) == 0 {
		return nil, fmt.Errorf("%w: no reply after %d retries", protocol.ErrConnectionTimeout, retries)
	}
	r := f.replies[0]
	f.replies = f.replies[1:]
	return r, nil
}

func (f *fakeConn) ResetBuffer() {}

func (f *fakeConn) Mode() model.ConnectionMode { return f.mode }

func (f *fakeConn) Config() protocol.Config { return protocol.Config{} }

func (f *fakeConn) Stats() model.ConnectionStats {
	return model.ConnectionStats{IsOpen: f.IsOpen()}
}

func chunked(body string) *model.Reply {
	return model.NewReply(body, model.ContentTypeChunked)
}
