// internal/repository/recorder.go
package repository

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"labware-service/internal/model"
)

// RecorderQueueSize bounds the records waiting to be written
const RecorderQueueSize = 256

// Recorder writes observed commands to a journal off the command path
type Recorder struct {
	repo    JournalRepository
	queue   chan model.CommandRecord
	logger  *zap.Logger
	dropped atomic.Int64

	mu     sync.RWMutex
	closed bool
	done   chan struct{}
}

// NewRecorder starts the writer goroutine
func NewRecorder(repo JournalRepository, logger *zap.Logger) *Recorder {
	r := &Recorder{
		repo:   repo,
		queue:  make(chan model.CommandRecord, RecorderQueueSize),
		logger: logger.With(zap.String("component", "journal")),
		done:   make(chan struct{}),
	}
	go r.run()
	return r
}

// ObserveCommand queues a record; it never blocks the caller
func (r *Recorder) ObserveCommand(rec model.CommandRecord) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		return
	}

	select {
	case r.queue <- rec:
	default:
		r.dropped.Add(1)
		r.logger.Warn("Journal queue is full, dropping record",
			zap.String("device", rec.Device),
			zap.String("command", rec.Command),
		)
	}
}

func (r *Recorder) run() {
	defer close(r.done)
	for rec := range r.queue {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := r.repo.Record(ctx, &rec); err != nil {
			r.logger.Error("Failed to journal command", zap.String("device", rec.Device), zap.Error(err))
		}
		cancel()
	}
}

// Dropped returns how many records were lost to a full queue
func (r *Recorder) Dropped() int64 {
	return r.dropped.Load()
}

// Close flushes queued records and stops the writer
func (r *Recorder) Close(timeout time.Duration) bool {
	r.mu.Lock()
	if !r.closed {
		r.closed = true
		close(r.queue)
	}
	r.mu.Unlock()

	select {
	case <-r.done:
		return true
	case <-time.After(timeout):
		return false
	}
}
