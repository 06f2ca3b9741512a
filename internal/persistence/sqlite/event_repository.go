package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/MarkLark86/superdesk-planning/internal/persistence"
)

const eventColumns = `id, guid, name, slugline, description, start_time, end_time, timezone,
	recurrence_id, previous_recurrence_id, rescheduled_from, state, pub_status, expiry,
	planning_schedule, lock_user, lock_session, lock_action, lock_time,
	original_creator, version_creator, extra, created_at, updated_at`

// eventFilterColumns lists the columns ListEventsByField may filter on.
var eventFilterColumns = map[string]string{
	"recurrence_id":          "recurrence_id",
	"previous_recurrence_id": "previous_recurrence_id",
	"rescheduled_from":       "rescheduled_from",
}

// EventRepository implements persistence.EventRepository for SQLite.
type EventRepository struct {
	pool   *ConnectionPool
	mapper *ErrorMapper
	retry  *RetryHelper
	now    func() time.Time
}

// NewEventRepository creates a new SQLite event repository
func NewEventRepository(pool *ConnectionPool) *EventRepository {
	return &EventRepository{
		pool:   pool,
		mapper: NewErrorMapper(),
		retry:  NewRetryHelper(DefaultRetryConfig()),
		now:    time.Now,
	}
}

// CreateEvents inserts all events in one transaction.
func (r *EventRepository) CreateEvents(ctx context.Context, events []persistence.Event) error {
	if len(events) == 0 {
		return nil
	}
	return r.retry.WithRetry(ctx, func() error {
		return r.pool.WithTransaction(ctx, func(tx *sql.Tx) error {
			for _, event := range events {
				if err := r.insert(ctx, tx, event); err != nil {
					return fmt.Errorf("insert event %s: %w", event.ID, err)
				}
			}
			return nil
		})
	})
}

func (r *EventRepository) insert(ctx context.Context, tx *sql.Tx, event persistence.Event) error {
	now := r.now()
	if event.CreatedAt.IsZero() {
		event.CreatedAt = now
	}
	if event.UpdatedAt.IsZero() {
		event.UpdatedAt = event.CreatedAt
	}
	args, err := eventArgs(event)
	if err != nil {
		return err
	}
	query := `INSERT INTO events (` + eventColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return r.mapper.MapError(err)
	}
	return nil
}

// GetEvent retrieves an event by ID
func (r *EventRepository) GetEvent(ctx context.Context, id string) (persistence.Event, error) {
	row := r.pool.DB().QueryRowContext(ctx, `SELECT `+eventColumns+` FROM events WHERE id = ?`, id)
	event, err := scanEvent(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return persistence.Event{}, fmt.Errorf("event %s: %w", id, persistence.ErrNotFound)
		}
		return persistence.Event{}, r.mapper.MapError(err)
	}
	return event, nil
}

// ListEventsByField returns the events whose field equals value ordered by
// start time. Only the recurrence linkage columns can be queried.
func (r *EventRepository) ListEventsByField(ctx context.Context, field, value string) ([]persistence.Event, error) {
	column, ok := eventFilterColumns[field]
	if !ok {
		return nil, fmt.Errorf("%w: cannot filter events by %q", persistence.ErrConstraintViolation, field)
	}

	rows, err := r.pool.DB().QueryContext(ctx,
		`SELECT `+eventColumns+` FROM events WHERE `+column+` = ? ORDER BY start_time ASC, id ASC`, value)
	if err != nil {
		return nil, r.mapper.MapError(err)
	}
	defer rows.Close()

	var events []persistence.Event
	for rows.Next() {
		event, err := scanEvent(rows)
		if err != nil {
			return nil, r.mapper.MapError(err)
		}
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, r.mapper.MapError(err)
	}
	return events, nil
}

// PatchEvent loads the event, applies mutate and writes the result back in a
// single transaction. The ID and creation time are never changed.
func (r *EventRepository) PatchEvent(ctx context.Context, id string, mutate persistence.EventMutation) (persistence.Event, error) {
	var updated persistence.Event
	err := r.retry.WithRetry(ctx, func() error {
		return r.pool.WithTransaction(ctx, func(tx *sql.Tx) error {
			next, err := r.patch(ctx, tx, id, mutate)
			if err != nil {
				return err
			}
			updated = next
			return nil
		})
	})
	if err != nil {
		return persistence.Event{}, r.mapper.MapError(err)
	}
	return updated, nil
}

func (r *EventRepository) patch(ctx context.Context, tx *sql.Tx, id string, mutate persistence.EventMutation) (persistence.Event, error) {
	row := tx.QueryRowContext(ctx, `SELECT `+eventColumns+` FROM events WHERE id = ?`, id)
	current, err := scanEvent(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return persistence.Event{}, fmt.Errorf("event %s: %w", id, persistence.ErrNotFound)
		}
		return persistence.Event{}, err
	}

	next, err := mutate(current)
	if err != nil {
		return persistence.Event{}, err
	}
	next.ID = current.ID
	next.CreatedAt = current.CreatedAt
	if next.UpdatedAt.IsZero() || !next.UpdatedAt.After(current.UpdatedAt) {
		next.UpdatedAt = r.now()
	}

	args, err := eventArgs(next)
	if err != nil {
		return persistence.Event{}, err
	}
	// Drop id and created_at from the front and pin id at the end.
	query := `UPDATE events SET guid = ?, name = ?, slugline = ?, description = ?,
		start_time = ?, end_time = ?, timezone = ?, recurrence_id = ?, previous_recurrence_id = ?,
		rescheduled_from = ?, state = ?, pub_status = ?, expiry = ?, planning_schedule = ?,
		lock_user = ?, lock_session = ?, lock_action = ?, lock_time = ?,
		original_creator = ?, version_creator = ?, extra = ?, updated_at = ?
		WHERE id = ?`
	setArgs := append(append([]any{}, args[1:22]...), args[23], current.ID)
	if _, err := tx.ExecContext(ctx, query, setArgs...); err != nil {
		return persistence.Event{}, r.mapper.MapError(err)
	}
	return next, nil
}

func eventArgs(event persistence.Event) ([]any, error) {
	schedule := make([]string, 0, len(event.PlanningSchedule))
	for _, t := range event.PlanningSchedule {
		schedule = append(schedule, formatTime(t))
	}
	scheduleJSON, err := json.Marshal(schedule)
	if err != nil {
		return nil, fmt.Errorf("encode planning schedule: %w", err)
	}
	extra := event.Extra
	if extra == nil {
		extra = map[string]string{}
	}
	extraJSON, err := json.Marshal(extra)
	if err != nil {
		return nil, fmt.Errorf("encode extra: %w", err)
	}

	return []any{
		event.ID,
		event.GUID,
		event.Name,
		event.Slugline,
		event.Description,
		formatTime(event.Start),
		formatTime(event.End),
		event.Timezone,
		nullableString(event.RecurrenceID),
		nullableString(event.PreviousRecurrenceID),
		nullableString(event.RescheduledFrom),
		event.State,
		event.PubStatus,
		nullableTime(event.Expiry),
		string(scheduleJSON),
		nullableString(event.LockUser),
		nullableString(event.LockSession),
		nullableString(event.LockAction),
		nullableTime(event.LockTime),
		event.OriginalCreator,
		event.VersionCreator,
		string(extraJSON),
		formatTime(event.CreatedAt),
		formatTime(event.UpdatedAt),
	}, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEvent(row rowScanner) (persistence.Event, error) {
	var (
		event                                     persistence.Event
		start, end, createdAt, updatedAt          string
		recurrenceID, previousID, rescheduledFrom sql.NullString
		expiry, lockTime                          sql.NullString
		lockUser, lockSession, lockAction         sql.NullString
		scheduleJSON, extraJSON                   string
	)
	err := row.Scan(
		&event.ID, &event.GUID, &event.Name, &event.Slugline, &event.Description,
		&start, &end, &event.Timezone,
		&recurrenceID, &previousID, &rescheduledFrom, &event.State, &event.PubStatus, &expiry,
		&scheduleJSON, &lockUser, &lockSession, &lockAction, &lockTime,
		&event.OriginalCreator, &event.VersionCreator, &extraJSON, &createdAt, &updatedAt,
	)
	if err != nil {
		return persistence.Event{}, err
	}

	if event.Start, err = parseTime(start); err != nil {
		return persistence.Event{}, fmt.Errorf("parse start_time: %w", err)
	}
	if event.End, err = parseTime(end); err != nil {
		return persistence.Event{}, fmt.Errorf("parse end_time: %w", err)
	}
	if event.CreatedAt, err = parseTime(createdAt); err != nil {
		return persistence.Event{}, fmt.Errorf("parse created_at: %w", err)
	}
	if event.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return persistence.Event{}, fmt.Errorf("parse updated_at: %w", err)
	}
	if event.Expiry, err = parseNullableTime(expiry); err != nil {
		return persistence.Event{}, fmt.Errorf("parse expiry: %w", err)
	}
	if event.LockTime, err = parseNullableTime(lockTime); err != nil {
		return persistence.Event{}, fmt.Errorf("parse lock_time: %w", err)
	}

	event.RecurrenceID = stringPtr(recurrenceID)
	event.PreviousRecurrenceID = stringPtr(previousID)
	event.RescheduledFrom = stringPtr(rescheduledFrom)
	event.LockUser = stringPtr(lockUser)
	event.LockSession = stringPtr(lockSession)
	event.LockAction = stringPtr(lockAction)

	var schedule []string
	if err := json.Unmarshal([]byte(scheduleJSON), &schedule); err != nil {
		return persistence.Event{}, fmt.Errorf("decode planning_schedule: %w", err)
	}
	for _, value := range schedule {
		t, err := parseTime(value)
		if err != nil {
			return persistence.Event{}, fmt.Errorf("decode planning_schedule: %w", err)
		}
		event.PlanningSchedule = append(event.PlanningSchedule, t)
	}
	if err := json.Unmarshal([]byte(extraJSON), &event.Extra); err != nil {
		return persistence.Event{}, fmt.Errorf("decode extra: %w", err)
	}
	if len(event.Extra) == 0 {
		event.Extra = nil
	}
	return event, nil
}
