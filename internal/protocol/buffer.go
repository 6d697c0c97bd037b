// internal/protocol/buffer.go
package protocol

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// replyBuffer is the one-slot receive buffer shared by a listener goroutine
// (producer) and the caller of Receive (consumer)
type replyBuffer struct {
	mu     sync.Mutex
	data   string
	ready  bool
	signal chan struct{}
	logger *zap.Logger
	stats  *connectionStats
}

func newReplyBuffer(logger *zap.Logger, stats *connectionStats) *replyBuffer {
	return &replyBuffer{
		signal: make(chan struct{}, 1),
		logger: logger,
		stats:  stats,
	}
}

// begin starts a new burst. An unconsumed reply is discarded with a warning.
func (b *replyBuffer) begin() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.ready {
		b.logger.Warn("Discarding unconsumed device reply", zap.String("reply", b.data))
		b.stats.stale.Add(1)
		b.ready = false
		b.drain()
	}
	b.data = ""
}

func (b *replyBuffer) append(text string) {
	b.mu.Lock()
	b.data += text
	b.mu.Unlock()
}

func (b *replyBuffer) size() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.data)
}

// publish raises the data-ready signal
func (b *replyBuffer) publish() {
	b.mu.Lock()
	b.ready = true
	b.mu.Unlock()

	select {
	case b.signal <- struct{}{}:
	default:
	}
}

func (b *replyBuffer) isReady() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.ready
}

func (b *replyBuffer) peek() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.data
}

// take returns the buffered reply and clears the ready flag
func (b *replyBuffer) take() (string, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.ready {
		return "", false
	}
	b.ready = false
	b.drain()
	return b.data, true
}

func (b *replyBuffer) reset() {
	b.mu.Lock()
	b.data = ""
	b.ready = false
	b.drain()
	b.mu.Unlock()
}

// drain empties the signal channel; callers hold mu
func (b *replyBuffer) drain() {
	select {
	case <-b.signal:
	default:
	}
}

// await blocks until a reply is ready. It waits one window, then up to
// retries more, before failing with ErrConnectionTimeout. A close of abort
// ends the wait early with errAborted.
func (b *replyBuffer) await(ctx context.Context, window time.Duration, retries int, abort <-chan struct{}) (string, error) {
	if data, ok := b.take(); ok {
		return data, nil
	}

	for attempt := 0; attempt <= retries; attempt++ {
		if attempt > 0 {
			b.logger.Debug("No reply yet, waiting again", zap.Int("attempt", attempt), zap.Int("retries", retries))
		}
		data, ok, err := b.waitWindow(ctx, window, abort)
		if err != nil {
			return "", err
		}
		if ok {
			return data, nil
		}
	}

	b.stats.timeouts.Add(1)
	return "", timeoutError("no reply received from the device after %d attempts of %s", retries+1, window)
}

func (b *replyBuffer) waitWindow(ctx context.Context, window time.Duration, abort <-chan struct{}) (string, bool, error) {
	timer := time.NewTimer(window)
	defer timer.Stop()

	for {
		select {
		case <-b.signal:
			if data, ok := b.take(); ok {
				return data, true, nil
			}
		case <-timer.C:
			data, ok := b.take()
			return data, ok, nil
		case <-abort:
			if data, ok := b.take(); ok {
				return data, true, nil
			}
			return "", false, errAborted
		case <-ctx.Done():
			return "", false, ctx.Err()
		}
	}
}
