// internal/repository/memory_journal.go
package repository

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"labware-service/internal/model"
)

// memoryJournal keeps the most recent records in a ring
type memoryJournal struct {
	mu      sync.RWMutex
	records []*model.CommandRecord
	next    int
	full    bool
}

// NewMemoryJournal creates a journal holding at most capacity records
func NewMemoryJournal(capacity int) JournalRepository {
	if capacity <= 0 {
		capacity = 1000
	}
	return &memoryJournal{records: make([]*model.CommandRecord, capacity)}
}

func (m *memoryJournal) Record(ctx context.Context, rec *model.CommandRecord) error {
	stored := *rec
	m.mu.Lock()
	defer m.mu.Unlock()

	m.records[m.next] = &stored
	m.next = (m.next + 1) % len(m.records)
	if m.next == 0 {
		m.full = true
	}
	return nil
}

// newest returns the stored records, newest first
func (m *memoryJournal) newest() []*model.CommandRecord {
	n := m.next
	if m.full {
		n = len(m.records)
	}
	out := make([]*model.CommandRecord, 0, n)
	for i := 1; i <= n; i++ {
		idx := (m.next - i + len(m.records)) % len(m.records)
		out = append(out, m.records[idx])
	}
	return out
}

func (m *memoryJournal) GetByID(ctx context.Context, id uuid.UUID) (*model.CommandRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, rec := range m.newest() {
		if rec.ID == id {
			found := *rec
			return &found, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
}

func (m *memoryJournal) List(ctx context.Context, filter *JournalFilter) ([]*model.CommandRecord, int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var matched []*model.CommandRecord
	for _, rec := range m.newest() {
		if filter.Matches(rec) {
			matched = append(matched, rec)
		}
	}

	total := len(matched)
	start := filter.offset()
	if start > total {
		start = total
	}
	end := start + filter.limit()
	if end > total {
		end = total
	}

	page := make([]*model.CommandRecord, 0, end-start)
	for _, rec := range matched[start:end] {
		c := *rec
		page = append(page, &c)
	}
	return page, total, nil
}

// DeleteOlderThan compacts the ring, keeping order
func (m *memoryJournal) DeleteOlderThan(ctx context.Context, olderThan time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	kept := m.newest()
	var deleted int64
	fresh := make([]*model.CommandRecord, len(m.records))
	n := 0
	for i := len(kept) - 1; i >= 0; i-- {
		if kept[i].CreatedAt.Before(olderThan) {
			deleted++
			continue
		}
		fresh[n] = kept[i]
		n++
	}
	m.records = fresh
	m.next = n % len(fresh)
	m.full = n == len(fresh)
	return deleted, nil
}
