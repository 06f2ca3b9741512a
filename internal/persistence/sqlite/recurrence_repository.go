package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/MarkLark86/superdesk-planning/internal/persistence"
)

// RecurrenceRepository implements persistence.RecurrenceRepository for SQLite.
type RecurrenceRepository struct {
	pool   *ConnectionPool
	mapper *ErrorMapper
	retry  *RetryHelper
	now    func() time.Time
}

// NewRecurrenceRepository creates a new SQLite recurrence rule repository
func NewRecurrenceRepository(pool *ConnectionPool) *RecurrenceRepository {
	return &RecurrenceRepository{
		pool:   pool,
		mapper: NewErrorMapper(),
		retry:  NewRetryHelper(DefaultRetryConfig()),
		now:    time.Now,
	}
}

// UpsertRecurrence stores the rule of a recurrence group, replacing any
// previous rule but keeping its creation time.
func (r *RecurrenceRepository) UpsertRecurrence(ctx context.Context, rule persistence.RecurrenceRule) error {
	return r.retry.WithRetry(ctx, func() error {
		return r.upsert(ctx, r.pool.DB(), rule)
	})
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (r *RecurrenceRepository) upsert(ctx context.Context, db execer, rule persistence.RecurrenceRule) error {
	if rule.RecurrenceID == "" {
		return fmt.Errorf("%w: %w: recurrence_id is required", persistence.ErrInvalidRecurrence, persistence.ErrConstraintViolation)
	}
	now := r.now()
	if rule.CreatedAt.IsZero() {
		rule.CreatedAt = now
	}
	if rule.UpdatedAt.IsZero() {
		rule.UpdatedAt = now
	}
	interval := rule.Interval
	if interval <= 0 {
		interval = 1
	}

	const query = `
		INSERT INTO recurrence_rules
			(recurrence_id, frequency, interval_value, byday, end_repeat_mode, count_value, until_time, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(recurrence_id) DO UPDATE SET
			frequency = excluded.frequency,
			interval_value = excluded.interval_value,
			byday = excluded.byday,
			end_repeat_mode = excluded.end_repeat_mode,
			count_value = excluded.count_value,
			until_time = excluded.until_time,
			updated_at = excluded.updated_at`

	_, err := db.ExecContext(ctx, query,
		rule.RecurrenceID, rule.Frequency, interval, rule.ByDay, rule.EndRepeatMode,
		rule.Count, nullableTime(rule.Until), formatTime(rule.CreatedAt), formatTime(rule.UpdatedAt))
	if err == nil {
		return nil
	}
	mapped := r.mapper.MapError(err)
	if errors.Is(mapped, persistence.ErrConstraintViolation) {
		return fmt.Errorf("recurrence %s: %w: %w", rule.RecurrenceID, persistence.ErrInvalidRecurrence, mapped)
	}
	return mapped
}

// GetRecurrence returns the rule stored for a recurrence group.
func (r *RecurrenceRepository) GetRecurrence(ctx context.Context, recurrenceID string) (persistence.RecurrenceRule, error) {
	const query = `
		SELECT recurrence_id, frequency, interval_value, byday, end_repeat_mode, count_value, until_time, created_at, updated_at
		FROM recurrence_rules WHERE recurrence_id = ?`

	var (
		rule                 persistence.RecurrenceRule
		until                sql.NullString
		createdAt, updatedAt string
	)
	err := r.pool.DB().QueryRowContext(ctx, query, recurrenceID).Scan(
		&rule.RecurrenceID, &rule.Frequency, &rule.Interval, &rule.ByDay, &rule.EndRepeatMode,
		&rule.Count, &until, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return persistence.RecurrenceRule{}, fmt.Errorf("recurrence %s: %w", recurrenceID, persistence.ErrNotFound)
		}
		return persistence.RecurrenceRule{}, r.mapper.MapError(err)
	}

	if rule.Until, err = parseNullableTime(until); err != nil {
		return persistence.RecurrenceRule{}, fmt.Errorf("parse until_time: %w", err)
	}
	if rule.CreatedAt, err = parseTime(createdAt); err != nil {
		return persistence.RecurrenceRule{}, fmt.Errorf("parse created_at: %w", err)
	}
	if rule.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return persistence.RecurrenceRule{}, fmt.Errorf("parse updated_at: %w", err)
	}
	return rule, nil
}

// DeleteRecurrence removes the rule of a recurrence group.
func (r *RecurrenceRepository) DeleteRecurrence(ctx context.Context, recurrenceID string) error {
	result, err := r.pool.DB().ExecContext(ctx, `DELETE FROM recurrence_rules WHERE recurrence_id = ?`, recurrenceID)
	if err != nil {
		return r.mapper.MapError(err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return r.mapper.MapError(err)
	}
	if affected == 0 {
		return fmt.Errorf("recurrence %s: %w", recurrenceID, persistence.ErrNotFound)
	}
	return nil
}
