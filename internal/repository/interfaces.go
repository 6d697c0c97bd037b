// internal/repository/interfaces.go
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"labware-service/internal/model"
)

// ErrNotFound is returned when a journal entry does not exist
var ErrNotFound = errors.New("journal entry not found")

// JournalRepository stores executed device commands
type JournalRepository interface {
	Record(ctx context.Context, rec *model.CommandRecord) error
	GetByID(ctx context.Context, id uuid.UUID) (*model.CommandRecord, error)
	List(ctx context.Context, filter *JournalFilter) ([]*model.CommandRecord, int, error)
	DeleteOlderThan(ctx context.Context, olderThan time.Time) (int64, error)
}

// JournalFilter represents journal listing filters
type JournalFilter struct {
	Device    *string              `json:"device,omitempty"`
	Command   *string              `json:"command,omitempty"`
	Status    *model.CommandStatus `json:"status,omitempty"`
	StartDate *time.Time           `json:"start_date,omitempty"`
	EndDate   *time.Time           `json:"end_date,omitempty"`
	Limit     int                  `json:"limit"`
	Offset    int                  `json:"offset"`
}

// Matches reports whether rec passes the filter
func (f *JournalFilter) Matches(rec *model.CommandRecord) bool {
	if f == nil {
		return true
	}
	if f.Device != nil && rec.Device != *f.Device {
		return false
	}
	if f.Command != nil && rec.Command != *f.Command {
		return false
	}
	if f.Status != nil && rec.Status != *f.Status {
		return false
	}
	if f.StartDate != nil && rec.CreatedAt.Before(*f.StartDate) {
		return false
	}
	if f.EndDate != nil && rec.CreatedAt.After(*f.EndDate) {
		return false
	}
	return true
}

func (f *JournalFilter) limit() int {
	if f == nil || f.Limit <= 0 {
		return 50
	}
	if f.Limit > 1000 {
		return 1000
	}
	return f.Limit
}

func (f *JournalFilter) offset() int {
	if f == nil || f.Offset < 0 {
		return 0
	}
	return f.Offset
}
