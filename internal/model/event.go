// internal/model/event.go
package model

import (
	"time"

	"github.com/google/uuid"
)

// EventType represents the type of event
type EventType string

const (
	EventDeviceConnected    EventType = "DEVICE_CONNECTED"
	EventDeviceDisconnected EventType = "DEVICE_DISCONNECTED"
	EventDeviceError        EventType = "DEVICE_ERROR"
	EventCommandCompleted   EventType = "COMMAND_COMPLETED"
	EventCommandFailed      EventType = "COMMAND_FAILED"
	EventTaskStarted        EventType = "TASK_STARTED"
	EventTaskStopped        EventType = "TASK_STOPPED"
	EventTaskResult         EventType = "TASK_RESULT"
	EventSimulationChanged  EventType = "SIMULATION_CHANGED"
)

// DeviceEvent represents an event in the system
type DeviceEvent struct {
	ID        uuid.UUID  `json:"id"`
	EventType EventType  `json:"event_type"`
	Device    string     `json:"device"`
	Data      JSONObject `json:"data"`
	Timestamp time.Time  `json:"timestamp"`
	Severity  string     `json:"severity"` // INFO, WARNING, ERROR
}

// NewDeviceEvent stamps a new event for a device
func NewDeviceEvent(eventType EventType, device string, data JSONObject) DeviceEvent {
	severity := "INFO"
	switch eventType {
	case EventDeviceError, EventCommandFailed:
		severity = "ERROR"
	}
	return DeviceEvent{
		ID:        uuid.New(),
		EventType: eventType,
		Device:    device,
		Data:      data,
		Timestamp: time.Now(),
		Severity:  severity,
	}
}

// TaskResult is a single value produced by a background task
type TaskResult struct {
	TaskID    uuid.UUID   `json:"task_id"`
	Device    string      `json:"device"`
	Command   string      `json:"command"`
	Value     interface{} `json:"value"`
	Timestamp time.Time   `json:"timestamp"`
}
