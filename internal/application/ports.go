package application

import "context"

// EventStore captures the persistence interactions needed by the event service.
type EventStore interface {
	GetEvent(ctx context.Context, id string) (Event, error)
	// FindEventsByField returns matching events ordered by start time.
	FindEventsByField(ctx context.Context, field EventField, value string) ([]Event, error)
	CreateEvents(ctx context.Context, events []Event) ([]string, error)
	PatchEvent(ctx context.Context, id string, changes EventChanges) (Event, error)
	// CreateSeries stores rules, patches and new events atomically and
	// returns the ids of the created events.
	CreateSeries(ctx context.Context, write SeriesWrite) ([]string, error)
}

// Notifier delivers one message per user visible change. Delivery is at
// least once; callers dedupe per logical action.
type Notifier interface {
	Publish(ctx context.Context, eventType, subjectID, actorID string, extra map[string]string) error
}

// HistoryRecorder appends to the event audit trail.
type HistoryRecorder interface {
	OnCreated(ctx context.Context, events []Event) error
	OnUpdated(ctx context.Context, changes EventChanges, original Event) error
	OnRescheduled(ctx context.Context, changes EventChanges, original Event) error
}

// Authorizer decides whether a principal may edit an event.
type Authorizer interface {
	CanEdit(ctx context.Context, event Event, principal Principal) bool
}

// Notification types published by the event service.
const (
	NotifyEventCreated          = "events:created"
	NotifyEventCreatedRecurring = "events:created:recurring"
	NotifyEventUpdated          = "events:updated"
	NotifyEventUpdatedRecurring = "events:updated:recurring"
)
