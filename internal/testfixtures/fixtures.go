package testfixtures

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/MarkLark86/superdesk-planning/internal/application"
	"github.com/MarkLark86/superdesk-planning/internal/persistence"
	"github.com/MarkLark86/superdesk-planning/internal/recurrence"
)

var (
	eventCounter uint64
	ruleCounter  uint64
)

var referenceTime = time.Date(2024, time.January, 2, 15, 4, 5, 0, time.UTC)

// ReferenceTime returns the canonical baseline timestamp used by fixtures.
func ReferenceTime() time.Time {
	return referenceTime
}

// ----------------------------- Event fixtures -----------------------------

// EventFixture represents a deterministic event that can be materialised for
// application or persistence tests.
type EventFixture struct {
	ID                   string
	Name                 string
	Slugline             string
	Start                time.Time
	End                  time.Time
	Timezone             string
	RecurrenceID         string
	PreviousRecurrenceID string
	RescheduledFrom      string
	State                application.WorkflowState
	LockUser             string
	Creator              string
	Rule                 *recurrence.Rule
	CreatedAt            time.Time
}

// EventOption configures the generated event fixture.
type EventOption func(*EventFixture)

// NewEventFixture returns a deterministic one hour event starting a day after
// ReferenceTime, with optional overrides.
func NewEventFixture(opts ...EventOption) EventFixture {
	idx := atomic.AddUint64(&eventCounter, 1)
	id := fmt.Sprintf("event-%03d", idx)
	start := referenceTime.Add(24 * time.Hour).Truncate(time.Hour)
	fixture := EventFixture{
		ID:        id,
		Name:      fmt.Sprintf("Event %03d", idx),
		Slugline:  fmt.Sprintf("slug-%03d", idx),
		Start:     start,
		End:       start.Add(time.Hour),
		State:     application.StateDraft,
		Creator:   "editor",
		CreatedAt: referenceTime,
	}
	for _, opt := range opts {
		opt(&fixture)
	}
	return fixture
}

// WithEventID overrides the generated event ID.
func WithEventID(id string) EventOption {
	return func(f *EventFixture) {
		f.ID = id
	}
}

// WithEventName overrides the generated name.
func WithEventName(name string) EventOption {
	return func(f *EventFixture) {
		f.Name = name
	}
}

// WithEventTimes sets the start and end instants.
func WithEventTimes(start, end time.Time) EventOption {
	return func(f *EventFixture) {
		f.Start = start
		f.End = end
	}
}

// WithEventTimezone sets the IANA timezone of the event dates.
func WithEventTimezone(tz string) EventOption {
	return func(f *EventFixture) {
		f.Timezone = tz
	}
}

// WithRecurrenceID places the event in a recurrence group.
func WithRecurrenceID(id string) EventOption {
	return func(f *EventFixture) {
		f.RecurrenceID = id
	}
}

// WithPreviousRecurrenceID records the group the event was split from.
func WithPreviousRecurrenceID(id string) EventOption {
	return func(f *EventFixture) {
		f.PreviousRecurrenceID = id
	}
}

// WithEventState overrides the workflow state.
func WithEventState(state application.WorkflowState) EventOption {
	return func(f *EventFixture) {
		f.State = state
	}
}

// WithEventLock marks the event as locked by user.
func WithEventLock(user string) EventOption {
	return func(f *EventFixture) {
		f.LockUser = user
	}
}

// WithEventCreator overrides the original creator.
func WithEventCreator(user string) EventOption {
	return func(f *EventFixture) {
		f.Creator = user
	}
}

// WithEventRule attaches a recurrence rule, turning the fixture into a template.
func WithEventRule(rule recurrence.Rule) EventOption {
	return func(f *EventFixture) {
		f.Rule = &rule
	}
}

// Application returns the fixture as an application.Event value.
func (f EventFixture) Application() application.Event {
	event := application.Event{
		ID:                   f.ID,
		GUID:                 f.ID,
		Name:                 f.Name,
		Slugline:             f.Slugline,
		RecurrenceID:         f.RecurrenceID,
		PreviousRecurrenceID: f.PreviousRecurrenceID,
		RescheduledFrom:      f.RescheduledFrom,
		State:                f.State,
		OriginalCreator:      f.Creator,
		VersionCreator:       f.Creator,
		CreatedAt:            f.CreatedAt,
		UpdatedAt:            f.CreatedAt,
		Dates: application.EventDates{
			Start:    f.Start,
			End:      f.End,
			Timezone: f.Timezone,
		},
		PlanningSchedule: []application.ScheduleEntry{{Scheduled: f.Start}},
	}
	if f.Rule != nil {
		rule := f.Rule.Clone()
		event.Dates.RecurringRule = &rule
	}
	if f.LockUser != "" {
		lockTime := f.CreatedAt
		event.Lock = application.EventLock{User: f.LockUser, Session: f.LockUser + "-session", Action: "edit", Time: &lockTime}
	}
	return event
}

// Persistence returns the fixture as a persistence.Event value.
func (f EventFixture) Persistence() persistence.Event {
	event := persistence.Event{
		ID:               f.ID,
		GUID:             f.ID,
		Name:             f.Name,
		Slugline:         f.Slugline,
		Start:            f.Start,
		End:              f.End,
		Timezone:         f.Timezone,
		State:            string(f.State),
		PlanningSchedule: []time.Time{f.Start},
		OriginalCreator:  f.Creator,
		VersionCreator:   f.Creator,
		CreatedAt:        f.CreatedAt,
		UpdatedAt:        f.CreatedAt,
	}
	event.RecurrenceID = optional(f.RecurrenceID)
	event.PreviousRecurrenceID = optional(f.PreviousRecurrenceID)
	event.RescheduledFrom = optional(f.RescheduledFrom)
	if f.LockUser != "" {
		lockTime := f.CreatedAt
		event.LockUser = optional(f.LockUser)
		event.LockSession = optional(f.LockUser + "-session")
		event.LockAction = optional("edit")
		event.LockTime = &lockTime
	}
	return event
}

// NewSeriesFixtures returns count events of one recurrence group spaced a day
// apart starting at start.
func NewSeriesFixtures(recurrenceID string, start time.Time, count int, opts ...EventOption) []EventFixture {
	fixtures := make([]EventFixture, 0, count)
	for i := 0; i < count; i++ {
		day := start.AddDate(0, 0, i)
		options := append([]EventOption{
			WithRecurrenceID(recurrenceID),
			WithEventTimes(day, day.Add(time.Hour)),
		}, opts...)
		fixtures = append(fixtures, NewEventFixture(options...))
	}
	return fixtures
}

// ----------------------------- Rule fixtures ------------------------------

// RuleFixture represents a recurrence rule stored for a group.
type RuleFixture struct {
	RecurrenceID string
	Rule         recurrence.Rule
}

// RuleOption configures the generated rule fixture.
type RuleOption func(*RuleFixture)

// NewRuleFixture returns a daily rule ending after three occurrences.
func NewRuleFixture(opts ...RuleOption) RuleFixture {
	idx := atomic.AddUint64(&ruleCounter, 1)
	fixture := RuleFixture{
		RecurrenceID: fmt.Sprintf("rec-%03d", idx),
		Rule: recurrence.Rule{
			Frequency:     recurrence.FrequencyDaily,
			Interval:      recurrence.Every(1),
			EndRepeatMode: recurrence.EndRepeatCount,
			Count:         3,
		},
	}
	for _, opt := range opts {
		opt(&fixture)
	}
	return fixture
}

// WithRuleRecurrenceID overrides the group identifier.
func WithRuleRecurrenceID(id string) RuleOption {
	return func(f *RuleFixture) {
		f.RecurrenceID = id
	}
}

// WithRule replaces the rule.
func WithRule(rule recurrence.Rule) RuleOption {
	return func(f *RuleFixture) {
		f.Rule = rule
	}
}

// Persistence returns the fixture as a persistence.RecurrenceRule value.
func (f RuleFixture) Persistence() persistence.RecurrenceRule {
	return persistence.RecurrenceRule{
		RecurrenceID:  f.RecurrenceID,
		Frequency:     string(f.Rule.Frequency),
		Interval:      f.Rule.EffectiveInterval(),
		ByDay:         f.Rule.ByDay,
		EndRepeatMode: string(f.Rule.EndRepeatMode),
		Count:         f.Rule.Count,
		Until:         f.Rule.Until,
		CreatedAt:     referenceTime,
		UpdatedAt:     referenceTime,
	}
}

func optional(value string) *string {
	if value == "" {
		return nil
	}
	return &value
}
