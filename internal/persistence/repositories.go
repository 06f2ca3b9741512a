package persistence

import (
	"context"
	"time"
)

// EventMutation rewrites an event inside a patch transaction.
type EventMutation func(Event) (Event, error)

// EventRepository stores event instances.
type EventRepository interface {
	CreateEvents(ctx context.Context, events []Event) error
	GetEvent(ctx context.Context, id string) (Event, error)
	// ListEventsByField returns events whose column equals value, ordered by start.
	ListEventsByField(ctx context.Context, field, value string) ([]Event, error)
	PatchEvent(ctx context.Context, id string, mutate EventMutation) (Event, error)
}

// RecurrenceRepository stores one rule per recurrence group.
type RecurrenceRepository interface {
	UpsertRecurrence(ctx context.Context, rule RecurrenceRule) error
	GetRecurrence(ctx context.Context, recurrenceID string) (RecurrenceRule, error)
	DeleteRecurrence(ctx context.Context, recurrenceID string) error
}

// HistoryRepository appends and lists audit entries.
type HistoryRepository interface {
	AppendHistory(ctx context.Context, entries []HistoryEntry) error
	ListHistory(ctx context.Context, eventID string) ([]HistoryEntry, error)
}

// NotificationRepository is the outbox of messages for push delivery.
type NotificationRepository interface {
	EnqueueNotification(ctx context.Context, notification Notification) (int64, error)
	ListPendingNotifications(ctx context.Context, limit int) ([]Notification, error)
	MarkNotificationsDelivered(ctx context.Context, ids []int64, deliveredAt time.Time) error
}

// EventPatch rewrites one existing event as part of a SeriesWrite.
type EventPatch struct {
	ID     string
	Mutate EventMutation
}

// SeriesWrite is everything one series creation or conversion persists.
type SeriesWrite struct {
	Rules   []RecurrenceRule
	Patches []EventPatch
	Events  []Event
}

// SeriesRepository persists a SeriesWrite atomically: either every rule,
// patch and event is stored or none is.
type SeriesRepository interface {
	WriteSeries(ctx context.Context, write SeriesWrite) error
}
