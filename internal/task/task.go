// internal/task/task.go
package task

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"labware-service/internal/model"
)

// QueueSize is the capacity of a task's result queue
const QueueSize = 100

// Func is the body of a periodic task. A nil value is not queued.
type Func func(ctx context.Context) (interface{}, error)

// Sink receives every queued result in addition to the task's own queue
type Sink interface {
	Publish(result model.TaskResult)
}

// Info is a snapshot of a running task
type Info struct {
	ID        uuid.UUID     `json:"id"`
	Device    string        `json:"device"`
	Name      string        `json:"name"`
	Interval  time.Duration `json:"interval"`
	Running   bool          `json:"running"`
	Runs      int64         `json:"runs"`
	Errors    int64         `json:"errors"`
	Dropped   int64         `json:"dropped"`
	Queued    int           `json:"queued"`
	StartedAt time.Time     `json:"started_at"`
}

// Task runs a function on a fixed interval until stopped
type Task struct {
	id       uuid.UUID
	device   string
	name     string
	interval time.Duration
	fn       Func
	sink     Sink
	logger   *zap.Logger

	results chan model.TaskResult

	stopOnce sync.Once
	cancel   context.CancelFunc
	stop     chan struct{}
	done     chan struct{}

	running   atomic.Bool
	runs      atomic.Int64
	errors    atomic.Int64
	dropped   atomic.Int64
	startedAt time.Time
}

// New creates a stopped task. sink may be nil.
func New(device, name string, interval time.Duration, fn Func, sink Sink, logger *zap.Logger) *Task {
	id := uuid.New()
	return &Task{
		id:       id,
		device:   device,
		name:     name,
		interval: interval,
		fn:       fn,
		sink:     sink,
		logger: logger.With(
			zap.String("task_id", id.String()),
			zap.String("task", name),
		),
		results: make(chan model.TaskResult, QueueSize),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
}

// ID returns the task handle
func (t *Task) ID() uuid.UUID { return t.id }

// Name returns the task name
func (t *Task) Name() string { return t.name }

// Interval returns the spacing between invocation starts
func (t *Task) Interval() time.Duration { return t.interval }

// Start launches the loop. The first invocation happens immediately.
func (t *Task) Start(ctx context.Context) {
	runCtx, cancel := context.WithCancel(ctx)
	t.cancel = cancel
	t.startedAt = time.Now()
	t.running.Store(true)

	t.logger.Info("Task started", zap.Duration("interval", t.interval))
	go t.run(runCtx)
}

func (t *Task) run(ctx context.Context) {
	defer close(t.done)
	defer t.running.Store(false)

	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	for {
		t.invoke(ctx)

		select {
		case <-t.stop:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (t *Task) invoke(ctx context.Context) {
	t.runs.Add(1)
	value, err := t.fn(ctx)
	if err != nil {
		t.errors.Add(1)
		t.logger.Error("Task run failed", zap.Error(err))
		return
	}
	if value == nil {
		return
	}

	result := model.TaskResult{
		TaskID:    t.id,
		Device:    t.device,
		Command:   t.name,
		Value:     value,
		Timestamp: time.Now(),
	}
	select {
	case t.results <- result:
	default:
		t.dropped.Add(1)
		t.logger.Warn("Task result queue is full, dropping result", zap.Any("value", value))
		return
	}
	if t.sink != nil {
		t.sink.Publish(result)
	}
}

// Stop requests the loop to exit. It does not wait.
func (t *Task) Stop() {
	t.stopOnce.Do(func() {
		close(t.stop)
		if t.cancel != nil {
			t.cancel()
		}
	})
}

// Wait blocks until the loop has exited or timeout elapses
func (t *Task) Wait(timeout time.Duration) bool {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-t.done:
		return true
	case <-timer.C:
		return false
	}
}

// Results exposes the result queue
func (t *Task) Results() <-chan model.TaskResult {
	return t.results
}

// Drain empties the result queue and returns what was in it, oldest first
func (t *Task) Drain() []model.TaskResult {
	var out []model.TaskResult
	for {
		select {
		case r := <-t.results:
			out = append(out, r)
		default:
			return out
		}
	}
}

// Info returns a snapshot of the task counters
func (t *Task) Info() Info {
	return Info{
		ID:        t.id,
		Device:    t.device,
		Name:      t.name,
		Interval:  t.interval,
		Running:   t.running.Load(),
		Runs:      t.runs.Load(),
		Errors:    t.errors.Load(),
		Dropped:   t.dropped.Load(),
		Queued:    len(t.results),
		StartedAt: t.startedAt,
	}
}
