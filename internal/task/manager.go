// internal/task/manager.go
package task

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	"github.com/puzpuzpuz/xsync/v3"
	"go.uber.org/zap"
)

var (
	ErrTaskNotFound  = errors.New("task not found")
	ErrAmbiguousTask = errors.New("more than one task is running, specify which one to stop")
)

// Manager owns the background tasks of one device
type Manager struct {
	device string
	tasks  *xsync.MapOf[uuid.UUID, *Task]
	sink   Sink
	logger *zap.Logger
}

// NewManager creates a task manager. sink may be nil.
func NewManager(device string, sink Sink, logger *zap.Logger) *Manager {
	return &Manager{
		device: device,
		tasks:  xsync.NewMapOf[uuid.UUID, *Task](),
		sink:   sink,
		logger: logger.With(zap.String("component", "tasks")),
	}
}

// Start launches fn every interval and returns its handle
func (m *Manager) Start(ctx context.Context, interval time.Duration, name string, fn Func) (uuid.UUID, error) {
	if interval <= 0 {
		return uuid.Nil, fmt.Errorf("task %s: interval must be positive, got %s", name, interval)
	}
	if fn == nil {
		return uuid.Nil, fmt.Errorf("task %s: nil function", name)
	}

	t := New(m.device, name, interval, fn, m.sink, m.logger)
	// tasks outlive the request that started them; a task is only
	// visible to Stop once it is fully started
	t.Start(context.WithoutCancel(ctx))
	m.tasks.Store(t.ID(), t)
	return t.ID(), nil
}

// Get returns a task by handle
func (m *Manager) Get(id uuid.UUID) (*Task, bool) {
	return m.tasks.Load(id)
}

// Stop stops a task and forgets it. uuid.Nil stops the only running task.
func (m *Manager) Stop(id uuid.UUID) error {
	if id == uuid.Nil {
		switch m.tasks.Size() {
		case 0:
			m.logger.Error("No tasks to stop")
			return ErrTaskNotFound
		case 1:
			m.tasks.Range(func(key uuid.UUID, _ *Task) bool {
				id = key
				return false
			})
		default:
			m.logger.Error("Can't stop task, more than one is running", zap.Int("tasks", m.tasks.Size()))
			return ErrAmbiguousTask
		}
	}

	t, ok := m.tasks.LoadAndDelete(id)
	if !ok {
		m.logger.Error("Task not found", zap.String("task_id", id.String()))
		return fmt.Errorf("%w: %s", ErrTaskNotFound, id)
	}
	t.Stop()
	if !t.Wait(t.Interval()) {
		m.logger.Warn("Task did not stop in time", zap.String("task_id", id.String()))
	}
	m.logger.Info("Task stopped", zap.String("task_id", id.String()), zap.String("task", t.Name()))
	return nil
}

// StopAll stops every task, joining each for at most one interval
func (m *Manager) StopAll() error {
	var tasks []*Task
	m.tasks.Range(func(id uuid.UUID, t *Task) bool {
		tasks = append(tasks, t)
		m.tasks.Delete(id)
		return true
	})

	for _, t := range tasks {
		t.Stop()
	}

	var result *multierror.Error
	for _, t := range tasks {
		if !t.Wait(t.Interval()) {
			result = multierror.Append(result, fmt.Errorf("task %s (%s) did not stop within %s", t.ID(), t.Name(), t.Interval()))
		}
	}
	if len(tasks) > 0 {
		m.logger.Info("All tasks stopped", zap.Int("count", len(tasks)))
	}
	return result.ErrorOrNil()
}

// List returns task snapshots ordered by start time
func (m *Manager) List() []Info {
	infos := make([]Info, 0, m.tasks.Size())
	m.tasks.Range(func(_ uuid.UUID, t *Task) bool {
		infos = append(infos, t.Info())
		return true
	})
	sort.Slice(infos, func(i, j int) bool {
		return infos[i].StartedAt.Before(infos[j].StartedAt)
	})
	return infos
}

// Count returns the number of tasks
func (m *Manager) Count() int {
	return m.tasks.Size()
}
