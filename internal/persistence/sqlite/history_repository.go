package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/MarkLark86/superdesk-planning/internal/persistence"
)

// HistoryRepository appends audit entries to events_history.
type HistoryRepository struct {
	pool   *ConnectionPool
	mapper *ErrorMapper
	retry  *RetryHelper
	now    func() time.Time
}

// NewHistoryRepository creates a new SQLite history repository
func NewHistoryRepository(pool *ConnectionPool) *HistoryRepository {
	return &HistoryRepository{
		pool:   pool,
		mapper: NewErrorMapper(),
		retry:  NewRetryHelper(DefaultRetryConfig()),
		now:    time.Now,
	}
}

// AppendHistory writes all entries in one transaction.
func (r *HistoryRepository) AppendHistory(ctx context.Context, entries []persistence.HistoryEntry) error {
	if len(entries) == 0 {
		return nil
	}
	const query = `INSERT INTO events_history (event_id, operation, user_id, update_doc, created_at) VALUES (?, ?, ?, ?, ?)`

	return r.retry.WithRetry(ctx, func() error {
		return r.pool.WithTransaction(ctx, func(tx *sql.Tx) error {
			for _, entry := range entries {
				createdAt := entry.CreatedAt
				if createdAt.IsZero() {
					createdAt = r.now()
				}
				update := entry.Update
				if update == "" {
					update = "{}"
				}
				if _, err := tx.ExecContext(ctx, query, entry.EventID, entry.Operation, entry.UserID, update, formatTime(createdAt)); err != nil {
					return fmt.Errorf("append history for %s: %w", entry.EventID, err)
				}
			}
			return nil
		})
	})
}

// ListHistory returns the entries of an event oldest first.
func (r *HistoryRepository) ListHistory(ctx context.Context, eventID string) ([]persistence.HistoryEntry, error) {
	const query = `SELECT id, event_id, operation, user_id, update_doc, created_at FROM events_history WHERE event_id = ? ORDER BY id ASC`

	rows, err := r.pool.DB().QueryContext(ctx, query, eventID)
	if err != nil {
		return nil, r.mapper.MapError(err)
	}
	defer rows.Close()

	var entries []persistence.HistoryEntry
	for rows.Next() {
		var (
			entry     persistence.HistoryEntry
			createdAt string
		)
		if err := rows.Scan(&entry.ID, &entry.EventID, &entry.Operation, &entry.UserID, &entry.Update, &createdAt); err != nil {
			return nil, r.mapper.MapError(err)
		}
		if entry.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, fmt.Errorf("parse created_at: %w", err)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, r.mapper.MapError(err)
	}
	return entries, nil
}
