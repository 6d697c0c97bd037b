// internal/service/result_sink.go
package service

import (
	"labware-service/internal/model"
	"labware-service/internal/task"
)

// ResultFanout forwards every task result to a set of sinks and turns it
// into a TASK_RESULT event
type ResultFanout struct {
	sinks  []task.Sink
	events EventPublisher
}

// NewResultFanout creates a fanout. Nil sinks are skipped.
func NewResultFanout(events EventPublisher, sinks ...task.Sink) *ResultFanout {
	f := &ResultFanout{events: events}
	for _, s := range sinks {
		if s != nil {
			f.sinks = append(f.sinks, s)
		}
	}
	return f
}

// Publish implements task.Sink
func (f *ResultFanout) Publish(result model.TaskResult) {
	for _, s := range f.sinks {
		s.Publish(result)
	}
	if f.events != nil {
		f.events.Publish(model.NewDeviceEvent(model.EventTaskResult, result.Device, model.JSONObject{
			"task_id": result.TaskID.String(),
			"command": result.Command,
			"value":   result.Value,
		}))
	}
}
