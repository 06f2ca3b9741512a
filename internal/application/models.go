package application

import (
	"maps"
	"slices"
	"time"

	"github.com/MarkLark86/superdesk-planning/internal/recurrence"
)

// PrivilegeEventManagement is the privilege required to create or edit events.
const PrivilegeEventManagement = "planning_event_management"

// Principal represents the authenticated user invoking a service method.
type Principal struct {
	UserID     string
	SessionID  string
	IsAdmin    bool
	Privileges []string
}

// HasPrivilege reports whether the principal was granted the named privilege.
func (p Principal) HasPrivilege(name string) bool {
	return slices.Contains(p.Privileges, name)
}

// WorkflowState is the editorial status of an event. Only draft and
// rescheduled carry meaning for recurrence handling; the rest pass through.
type WorkflowState string

const (
	StateDraft       WorkflowState = "draft"
	StateIngested    WorkflowState = "ingested"
	StateScheduled   WorkflowState = "scheduled"
	StateRescheduled WorkflowState = "rescheduled"
	StatePostponed   WorkflowState = "postponed"
	StateCancelled   WorkflowState = "cancelled"
	StateSpiked      WorkflowState = "spiked"
	StateKilled      WorkflowState = "killed"
)

// UpdateScope selects which members of a recurrence group an update touches.
type UpdateScope string

const (
	ScopeSingle UpdateScope = "single"
	ScopeFuture UpdateScope = "future"
	ScopeAll    UpdateScope = "all"
)

// ParseUpdateScope maps caller input to an UpdateScope. Empty input means single.
func ParseUpdateScope(value string) (UpdateScope, error) {
	switch UpdateScope(value) {
	case "", ScopeSingle:
		return ScopeSingle, nil
	case ScopeFuture:
		return ScopeFuture, nil
	case ScopeAll:
		return ScopeAll, nil
	}
	vErr := &ValidationError{}
	vErr.add("update_method", "must be one of single, future, all")
	return "", vErr
}

// EventField names the columns events can be looked up by.
type EventField string

const (
	FieldRecurrenceID         EventField = "recurrence_id"
	FieldPreviousRecurrenceID EventField = "previous_recurrence_id"
)

// EventDates holds the schedule of an event. RecurringRule is only present on
// templates that have not been expanded yet.
type EventDates struct {
	Start         time.Time        `json:"start"`
	End           time.Time        `json:"end"`
	Timezone      string           `json:"tz,omitempty"`
	RecurringRule *recurrence.Rule `json:"recurring_rule,omitempty"`
}

// Clone returns a deep copy of the dates.
func (d EventDates) Clone() EventDates {
	if d.RecurringRule != nil {
		rule := d.RecurringRule.Clone()
		d.RecurringRule = &rule
	}
	return d
}

// Duration is the span between start and end.
func (d EventDates) Duration() time.Duration {
	return d.End.Sub(d.Start)
}

// ScheduleEntry is the downstream schedule marker derived from the event start.
type ScheduleEntry struct {
	Scheduled time.Time `json:"scheduled"`
}

// EventLock records which actor currently holds an event for editing.
type EventLock struct {
	User    string     `json:"lock_user,omitempty"`
	Session string     `json:"lock_session,omitempty"`
	Action  string     `json:"lock_action,omitempty"`
	Time    *time.Time `json:"lock_time,omitempty"`
}

// Locked reports whether any actor holds the lock.
func (l EventLock) Locked() bool {
	return l.User != ""
}

// Event is one concrete calendar item, standalone or a member of a recurrence group.
type Event struct {
	ID                   string            `json:"_id"`
	GUID                 string            `json:"guid"`
	Name                 string            `json:"name"`
	Slugline             string            `json:"slugline,omitempty"`
	Description          string            `json:"definition_short,omitempty"`
	Dates                EventDates        `json:"dates"`
	RecurrenceID         string            `json:"recurrence_id,omitempty"`
	PreviousRecurrenceID string            `json:"previous_recurrence_id,omitempty"`
	RescheduledFrom      string            `json:"reschedule_from,omitempty"`
	State                WorkflowState     `json:"state"`
	PubStatus            string            `json:"pubstatus,omitempty"`
	Expiry               *time.Time        `json:"expiry,omitempty"`
	PlanningSchedule     []ScheduleEntry   `json:"_planning_schedule,omitempty"`
	Lock                 EventLock         `json:"lock"`
	OriginalCreator      string            `json:"original_creator,omitempty"`
	VersionCreator       string            `json:"version_creator,omitempty"`
	Extra                map[string]string `json:"extra,omitempty"`
	CreatedAt            time.Time         `json:"_created"`
	UpdatedAt            time.Time         `json:"_updated"`
}

// IsRecurring reports whether the event belongs to a recurrence group.
func (e Event) IsRecurring() bool {
	return e.RecurrenceID != ""
}

// Clone returns a deep copy of the event.
func (e Event) Clone() Event {
	e.Dates = e.Dates.Clone()
	if e.Expiry != nil {
		expiry := *e.Expiry
		e.Expiry = &expiry
	}
	if e.Lock.Time != nil {
		lockTime := *e.Lock.Time
		e.Lock.Time = &lockTime
	}
	e.PlanningSchedule = slices.Clone(e.PlanningSchedule)
	e.Extra = maps.Clone(e.Extra)
	return e
}

// refreshDerived recomputes the fields that mirror the event dates.
// Expiry only follows the end date when the event already carries one.
func (e *Event) refreshDerived() {
	if e.Dates.Start.IsZero() {
		e.PlanningSchedule = nil
	} else {
		e.PlanningSchedule = []ScheduleEntry{{Scheduled: e.Dates.Start}}
	}
	if e.Expiry != nil {
		end := e.Dates.End
		e.Expiry = &end
	}
}

// EventChanges is a partial update. Nil fields are left untouched.
type EventChanges struct {
	Name                 *string        `json:"name,omitempty"`
	Slugline             *string        `json:"slugline,omitempty"`
	Description          *string        `json:"definition_short,omitempty"`
	Dates                *EventDates    `json:"dates,omitempty"`
	State                *WorkflowState `json:"state,omitempty"`
	RecurrenceID         *string        `json:"recurrence_id,omitempty"`
	PreviousRecurrenceID *string        `json:"previous_recurrence_id,omitempty"`
	ClearLock            bool           `json:"clear_lock,omitempty"`
	// Extra is merged key by key; an empty value removes the key.
	Extra          map[string]string `json:"extra,omitempty"`
	VersionCreator string            `json:"version_creator,omitempty"`
}

// HasRule reports whether the changes introduce a recurrence rule.
func (c EventChanges) HasRule() bool {
	return c.Dates != nil && c.Dates.RecurringRule != nil
}

// withoutDates drops the date fields so a change can fan out across siblings.
func (c EventChanges) withoutDates() EventChanges {
	c.Dates = nil
	return c
}

// Clone returns a deep copy of the changes.
func (c EventChanges) Clone() EventChanges {
	if c.Dates != nil {
		dates := c.Dates.Clone()
		c.Dates = &dates
	}
	c.Extra = maps.Clone(c.Extra)
	return c
}

// Apply merges changes into a copy of the event and refreshes derived fields.
func (e Event) Apply(c EventChanges) Event {
	out := e.Clone()
	if c.Name != nil {
		out.Name = *c.Name
	}
	if c.Slugline != nil {
		out.Slugline = *c.Slugline
	}
	if c.Description != nil {
		out.Description = *c.Description
	}
	if c.Dates != nil {
		out.Dates = c.Dates.Clone()
		out.refreshDerived()
	}
	if c.State != nil {
		out.State = *c.State
	}
	if c.RecurrenceID != nil {
		out.RecurrenceID = *c.RecurrenceID
	}
	if c.PreviousRecurrenceID != nil {
		out.PreviousRecurrenceID = *c.PreviousRecurrenceID
	}
	if c.ClearLock {
		out.Lock = EventLock{}
	}
	for key, value := range c.Extra {
		if out.Extra == nil {
			out.Extra = make(map[string]string)
		}
		if value == "" {
			delete(out.Extra, key)
			continue
		}
		out.Extra[key] = value
	}
	if c.VersionCreator != "" {
		out.VersionCreator = c.VersionCreator
	}
	return out
}

// CreateEventsParams wraps the data required to create events.
type CreateEventsParams struct {
	Principal Principal
	Events    []Event
}

// UpdateEventParams wraps the data required to update an event.
type UpdateEventParams struct {
	Principal Principal
	EventID   string
	Changes   EventChanges
	Scope     UpdateScope
}

// UpdateResult lists the events an update touched.
type UpdateResult struct {
	Affected     []string
	RecurrenceID string
}

// GroupRule pairs a recurrence group with the rule it was expanded from.
type GroupRule struct {
	RecurrenceID string
	Rule         recurrence.Rule
}

// EventPatch is a change to an existing event written as part of a series.
type EventPatch struct {
	ID      string
	Changes EventChanges
}

// SeriesWrite is everything one recurring create or conversion stores.
type SeriesWrite struct {
	Rules   []GroupRule
	Patches []EventPatch
	Events  []Event
}
