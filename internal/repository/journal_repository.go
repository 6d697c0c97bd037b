// internal/repository/journal_repository.go
package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"labware-service/internal/database"
	"labware-service/internal/model"
)

// journalRepository implements JournalRepository on Postgres
type journalRepository struct {
	db     *database.DB
	logger *zap.Logger
}

// NewJournalRepository creates a new Postgres journal repository
func NewJournalRepository(db *database.DB, logger *zap.Logger) JournalRepository {
	return &journalRepository{
		db:     db,
		logger: logger,
	}
}

// Record inserts one command record
func (r *journalRepository) Record(ctx context.Context, rec *model.CommandRecord) error {
	query := `
		INSERT INTO command_journal (
			id, device, command, value, reply, status,
			error_message, duration_ms, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	_, err := r.db.ExecContext(ctx, query,
		rec.ID, rec.Device, rec.Command, rec.Value, rec.Reply, rec.Status,
		rec.ErrorMessage, rec.DurationMs, rec.CreatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to record command", zap.Error(err))
		return fmt.Errorf("failed to record command: %w", err)
	}

	return nil
}

// GetByID retrieves a record by ID
func (r *journalRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.CommandRecord, error) {
	query := `
		SELECT id, device, command, value, reply, status,
			   error_message, duration_ms, created_at
		FROM command_journal WHERE id = $1
	`

	rec := &model.CommandRecord{}
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&rec.ID, &rec.Device, &rec.Command, &rec.Value, &rec.Reply, &rec.Status,
		&rec.ErrorMessage, &rec.DurationMs, &rec.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return nil, fmt.Errorf("failed to get journal entry: %w", err)
	}

	return rec, nil
}

// List returns a page of records, newest first, and the total match count
func (r *journalRepository) List(ctx context.Context, filter *JournalFilter) ([]*model.CommandRecord, int, error) {
	whereConditions := []string{}
	args := []interface{}{}
	argIndex := 1

	if filter != nil {
		if filter.Device != nil {
			whereConditions = append(whereConditions, fmt.Sprintf("device = $%d", argIndex))
			args = append(args, *filter.Device)
			argIndex++
		}
		if filter.Command != nil {
			whereConditions = append(whereConditions, fmt.Sprintf("command = $%d", argIndex))
			args = append(args, *filter.Command)
			argIndex++
		}
		if filter.Status != nil {
			whereConditions = append(whereConditions, fmt.Sprintf("status = $%d", argIndex))
			args = append(args, *filter.Status)
			argIndex++
		}
		if filter.StartDate != nil {
			whereConditions = append(whereConditions, fmt.Sprintf("created_at >= $%d", argIndex))
			args = append(args, *filter.StartDate)
			argIndex++
		}
		if filter.EndDate != nil {
			whereConditions = append(whereConditions, fmt.Sprintf("created_at <= $%d", argIndex))
			args = append(args, *filter.EndDate)
			argIndex++
		}
	}

	whereClause := ""
	if len(whereConditions) > 0 {
		whereClause = "WHERE " + strings.Join(whereConditions, " AND ")
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM command_journal %s", whereClause)
	var total int
	if err := r.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count journal entries: %w", err)
	}

	query := fmt.Sprintf(`
		SELECT id, device, command, value, reply, status,
			   error_message, duration_ms, created_at
		FROM command_journal %s
		ORDER BY created_at DESC
		LIMIT $%d OFFSET $%d
	`, whereClause, argIndex, argIndex+1)
	args = append(args, filter.limit(), filter.offset())

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list journal entries: %w", err)
	}
	defer rows.Close()

	var records []*model.CommandRecord
	for rows.Next() {
		rec := &model.CommandRecord{}
		if err := rows.Scan(
			&rec.ID, &rec.Device, &rec.Command, &rec.Value, &rec.Reply, &rec.Status,
			&rec.ErrorMessage, &rec.DurationMs, &rec.CreatedAt,
		); err != nil {
			return nil, 0, fmt.Errorf("failed to scan journal entry: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("failed to iterate journal entries: %w", err)
	}

	return records, total, nil
}

// DeleteOlderThan prunes the journal
func (r *journalRepository) DeleteOlderThan(ctx context.Context, olderThan time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM command_journal WHERE created_at < $1`, olderThan)
	if err != nil {
		return 0, fmt.Errorf("failed to prune journal: %w", err)
	}

	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	r.logger.Info("Pruned command journal", zap.Int64("deleted", deleted), zap.Time("older_than", olderThan))
	return deleted, nil
}
