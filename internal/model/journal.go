// internal/model/journal.go
package model

import (
	"time"

	"github.com/google/uuid"
)

// CommandStatus is the outcome of a journaled command
type CommandStatus string

const (
	CommandStatusSuccess   CommandStatus = "SUCCESS"
	CommandStatusRejected  CommandStatus = "REJECTED"
	CommandStatusFailed    CommandStatus = "FAILED"
	CommandStatusTimeout   CommandStatus = "TIMEOUT"
	CommandStatusSimulated CommandStatus = "SIMULATED"
)

// CommandRecord is one journaled command execution
type CommandRecord struct {
	ID           uuid.UUID     `json:"id" db:"id"`
	Device       string        `json:"device" db:"device"`
	Command      string        `json:"command" db:"command"`
	Value        *string       `json:"value,omitempty" db:"value"`
	Reply        *string       `json:"reply,omitempty" db:"reply"`
	Status       CommandStatus `json:"status" db:"status"`
	ErrorMessage *string       `json:"error_message,omitempty" db:"error_message"`
	DurationMs   int           `json:"duration_ms" db:"duration_ms"`
	CreatedAt    time.Time     `json:"created_at" db:"created_at"`
}

// IsFailure reports whether the command did not complete
func (r *CommandRecord) IsFailure() bool {
	return r.Status == CommandStatusFailed ||
		r.Status == CommandStatusRejected ||
		r.Status == CommandStatusTimeout
}
