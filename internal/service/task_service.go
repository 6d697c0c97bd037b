// internal/service/task_service.go
package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"labware-service/internal/model"
	"labware-service/internal/task"
	"labware-service/internal/utils"
)

// StartTaskRequest describes a polling task started through the API
type StartTaskRequest struct {
	Command string `json:"command" binding:"required"`
	// Interval is a Go duration string such as "2s"
	Interval string      `json:"interval" binding:"required" example:"2s"`
	Value    interface{} `json:"value,omitempty"`
}

// TaskService starts and stops polling tasks on devices
type TaskService struct {
	devices *DeviceService
	events  EventPublisher
	logger  *utils.ServiceLogger
}

// NewTaskService creates a task service. events may be nil.
func NewTaskService(devices *DeviceService, events EventPublisher, logger *zap.Logger) *TaskService {
	return &TaskService{
		devices: devices,
		events:  events,
		logger:  utils.NewServiceLogger(logger, "task-service"),
	}
}

// Start launches a task polling a table command on the device
func (ts *TaskService) Start(ctx context.Context, device string, req StartTaskRequest) (task.Info, error) {
	inst, err := ts.devices.GetDevice(device)
	if err != nil {
		return task.Info{}, err
	}
	interval, err := time.ParseDuration(req.Interval)
	if err != nil || interval <= 0 {
		return task.Info{}, fmt.Errorf("%w: interval %q", ErrInvalidRequest, req.Interval)
	}
	base := inst.Base()
	key := strings.ToUpper(req.Command)

	id, err := base.StartCommandTask(ctx, interval, key, req.Value)
	if err != nil {
		return task.Info{}, err
	}
	t, ok := base.Tasks().Get(id)
	if !ok {
		return task.Info{}, fmt.Errorf("%w: %s", task.ErrTaskNotFound, id)
	}

	ts.logger.Info("Task started",
		zap.String("device", device),
		zap.String("task_id", id.String()),
		zap.String("command", key),
		zap.Duration("interval", interval),
	)
	ts.emit(model.EventTaskStarted, device, model.JSONObject{
		"task_id":  id.String(),
		"command":  key,
		"interval": interval.String(),
	})
	return t.Info(), nil
}

// Stop stops a task. uuid.Nil stops the only running task.
func (ts *TaskService) Stop(device string, id uuid.UUID) error {
	inst, err := ts.devices.GetDevice(device)
	if err != nil {
		return err
	}
	if err := inst.Base().Tasks().Stop(id); err != nil {
		return err
	}
	ts.emit(model.EventTaskStopped, device, model.JSONObject{"task_id": id.String()})
	return nil
}

// List returns the tasks running on a device
func (ts *TaskService) List(device string) ([]task.Info, error) {
	inst, err := ts.devices.GetDevice(device)
	if err != nil {
		return nil, err
	}
	return inst.Base().Tasks().List(), nil
}

// Results drains the queued results of a task
func (ts *TaskService) Results(device string, id uuid.UUID) ([]model.TaskResult, error) {
	inst, err := ts.devices.GetDevice(device)
	if err != nil {
		return nil, err
	}
	t, ok := inst.Base().Tasks().Get(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", task.ErrTaskNotFound, id)
	}
	results := t.Drain()
	if results == nil {
		results = []model.TaskResult{}
	}
	return results, nil
}

func (ts *TaskService) emit(eventType model.EventType, device string, data model.JSONObject) {
	if ts.events != nil {
		ts.events.Publish(model.NewDeviceEvent(eventType, device, data))
	}
}
