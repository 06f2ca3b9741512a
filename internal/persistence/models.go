package persistence

import "time"

// Event is one row of the events table.
type Event struct {
	ID                   string
	GUID                 string
	Name                 string
	Slugline             string
	Description          string
	Start                time.Time
	End                  time.Time
	Timezone             string
	RecurrenceID         *string
	PreviousRecurrenceID *string
	RescheduledFrom      *string
	State                string
	PubStatus            string
	Expiry               *time.Time
	PlanningSchedule     []time.Time
	LockUser             *string
	LockSession          *string
	LockAction           *string
	LockTime             *time.Time
	OriginalCreator      string
	VersionCreator       string
	Extra                map[string]string
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// RecurrenceRule is the rule a recurrence group was expanded from.
type RecurrenceRule struct {
	RecurrenceID  string
	Frequency     string
	Interval      int
	ByDay         string
	EndRepeatMode string
	Count         int
	Until         *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// HistoryEntry is one append-only audit record for an event.
type HistoryEntry struct {
	ID        int64
	EventID   string
	Operation string
	UserID    string
	Update    string // JSON document describing the change
	CreatedAt time.Time
}

// Notification is a message waiting in the outbox.
type Notification struct {
	ID          int64
	EventType   string
	SubjectID   string
	ActorID     string
	Extra       map[string]string
	CreatedAt   time.Time
	DeliveredAt *time.Time
}
