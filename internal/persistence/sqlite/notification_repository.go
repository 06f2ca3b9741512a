package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/MarkLark86/superdesk-planning/internal/persistence"
)

// NotificationRepository is the SQLite outbox for push notifications.
type NotificationRepository struct {
	pool   *ConnectionPool
	mapper *ErrorMapper
	retry  *RetryHelper
	now    func() time.Time
}

// NewNotificationRepository creates a new SQLite notification outbox
func NewNotificationRepository(pool *ConnectionPool) *NotificationRepository {
	return &NotificationRepository{
		pool:   pool,
		mapper: NewErrorMapper(),
		retry:  NewRetryHelper(DefaultRetryConfig()),
		now:    time.Now,
	}
}

// EnqueueNotification stores a pending notification and returns its ID.
func (r *NotificationRepository) EnqueueNotification(ctx context.Context, notification persistence.Notification) (int64, error) {
	if notification.EventType == "" {
		return 0, fmt.Errorf("%w: event_type is required", persistence.ErrConstraintViolation)
	}
	extra := notification.Extra
	if extra == nil {
		extra = map[string]string{}
	}
	extraJSON, err := json.Marshal(extra)
	if err != nil {
		return 0, fmt.Errorf("encode extra: %w", err)
	}
	createdAt := notification.CreatedAt
	if createdAt.IsZero() {
		createdAt = r.now()
	}

	const query = `INSERT INTO notifications (event_type, subject_id, actor_id, extra, created_at) VALUES (?, ?, ?, ?, ?)`
	var id int64
	err = r.retry.WithRetry(ctx, func() error {
		result, err := r.pool.DB().ExecContext(ctx, query,
			notification.EventType, notification.SubjectID, notification.ActorID, string(extraJSON), formatTime(createdAt))
		if err != nil {
			return err
		}
		id, err = result.LastInsertId()
		return err
	})
	if err != nil {
		return 0, err
	}
	return id, nil
}

// ListPendingNotifications returns undelivered notifications in enqueue order.
func (r *NotificationRepository) ListPendingNotifications(ctx context.Context, limit int) ([]persistence.Notification, error) {
	if limit <= 0 {
		limit = 100
	}
	const query = `
		SELECT id, event_type, subject_id, actor_id, extra, created_at
		FROM notifications WHERE delivered_at IS NULL ORDER BY id ASC LIMIT ?`

	rows, err := r.pool.DB().QueryContext(ctx, query, limit)
	if err != nil {
		return nil, r.mapper.MapError(err)
	}
	defer rows.Close()

	var notifications []persistence.Notification
	for rows.Next() {
		var (
			n                    persistence.Notification
			extraJSON, createdAt string
		)
		if err := rows.Scan(&n.ID, &n.EventType, &n.SubjectID, &n.ActorID, &extraJSON, &createdAt); err != nil {
			return nil, r.mapper.MapError(err)
		}
		if err := json.Unmarshal([]byte(extraJSON), &n.Extra); err != nil {
			return nil, fmt.Errorf("decode extra: %w", err)
		}
		if n.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, fmt.Errorf("parse created_at: %w", err)
		}
		notifications = append(notifications, n)
	}
	if err := rows.Err(); err != nil {
		return nil, r.mapper.MapError(err)
	}
	return notifications, nil
}

// MarkNotificationsDelivered stamps the given notifications as delivered.
func (r *NotificationRepository) MarkNotificationsDelivered(ctx context.Context, ids []int64, deliveredAt time.Time) error {
	if len(ids) == 0 {
		return nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]any, 0, len(ids)+1)
	args = append(args, formatTime(deliveredAt))
	for _, id := range ids {
		args = append(args, id)
	}
	query := `UPDATE notifications SET delivered_at = ? WHERE delivered_at IS NULL AND id IN (` + placeholders + `)`

	return r.retry.WithRetry(ctx, func() error {
		return r.pool.WithTransaction(ctx, func(tx *sql.Tx) error {
			_, err := tx.ExecContext(ctx, query, args...)
			return err
		})
	})
}
