package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"maps"
	"time"

	"github.com/MarkLark86/superdesk-planning/internal/application"
	"github.com/MarkLark86/superdesk-planning/internal/persistence"
)

// History operations written to the audit trail.
const (
	historyOpCreate     = "create"
	historyOpEdited     = "edited"
	historyOpReschedule = "reschedule"
)

type eventStoreAdapter struct {
	repo   persistence.EventRepository
	series persistence.SeriesRepository
	now    func() time.Time
}

func newEventStoreAdapter(repo persistence.EventRepository, series persistence.SeriesRepository, now func() time.Time) *eventStoreAdapter {
	return &eventStoreAdapter{repo: repo, series: series, now: now}
}

func (a *eventStoreAdapter) GetEvent(ctx context.Context, id string) (application.Event, error) {
	model, err := a.repo.GetEvent(ctx, id)
	if err != nil {
		return application.Event{}, err
	}
	return toApplicationEvent(model), nil
}

func (a *eventStoreAdapter) FindEventsByField(ctx context.Context, field application.EventField, value string) ([]application.Event, error) {
	models, err := a.repo.ListEventsByField(ctx, string(field), value)
	if err != nil {
		return nil, err
	}
	events := make([]application.Event, 0, len(models))
	for _, model := range models {
		events = append(events, toApplicationEvent(model))
	}
	return events, nil
}

func (a *eventStoreAdapter) CreateEvents(ctx context.Context, events []application.Event) ([]string, error) {
	models := make([]persistence.Event, 0, len(events))
	ids := make([]string, 0, len(events))
	for _, event := range events {
		models = append(models, toPersistenceEvent(event))
		ids = append(ids, event.ID)
	}
	if err := a.repo.CreateEvents(ctx, models); err != nil {
		return nil, err
	}
	return ids, nil
}

func (a *eventStoreAdapter) PatchEvent(ctx context.Context, id string, changes application.EventChanges) (application.Event, error) {
	model, err := a.repo.PatchEvent(ctx, id, applyChanges(changes))
	if err != nil {
		return application.Event{}, err
	}
	return toApplicationEvent(model), nil
}

func (a *eventStoreAdapter) CreateSeries(ctx context.Context, write application.SeriesWrite) ([]string, error) {
	now := a.now().UTC()
	model := persistence.SeriesWrite{
		Rules:   make([]persistence.RecurrenceRule, 0, len(write.Rules)),
		Patches: make([]persistence.EventPatch, 0, len(write.Patches)),
		Events:  make([]persistence.Event, 0, len(write.Events)),
	}
	for _, group := range write.Rules {
		model.Rules = append(model.Rules, toPersistenceRule(group, now))
	}
	for _, patch := range write.Patches {
		model.Patches = append(model.Patches, persistence.EventPatch{ID: patch.ID, Mutate: applyChanges(patch.Changes)})
	}
	ids := make([]string, 0, len(write.Events))
	for _, event := range write.Events {
		model.Events = append(model.Events, toPersistenceEvent(event))
		ids = append(ids, event.ID)
	}
	if err := a.series.WriteSeries(ctx, model); err != nil {
		return nil, err
	}
	return ids, nil
}

func applyChanges(changes application.EventChanges) persistence.EventMutation {
	return func(current persistence.Event) (persistence.Event, error) {
		return toPersistenceEvent(toApplicationEvent(current).Apply(changes)), nil
	}
}

func toPersistenceRule(group application.GroupRule, now time.Time) persistence.RecurrenceRule {
	rule := group.Rule
	return persistence.RecurrenceRule{
		RecurrenceID:  group.RecurrenceID,
		Frequency:     string(rule.Frequency),
		Interval:      rule.EffectiveInterval(),
		ByDay:         rule.ByDay,
		EndRepeatMode: string(rule.EndRepeatMode),
		Count:         rule.Count,
		Until:         cloneTime(rule.Until),
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

type historyRecorderAdapter struct {
	repo persistence.HistoryRepository
	now  func() time.Time
}

func newHistoryRecorderAdapter(repo persistence.HistoryRepository, now func() time.Time) *historyRecorderAdapter {
	return &historyRecorderAdapter{repo: repo, now: now}
}

func (a *historyRecorderAdapter) OnCreated(ctx context.Context, events []application.Event) error {
	now := a.now().UTC()
	entries := make([]persistence.HistoryEntry, 0, len(events))
	for _, event := range events {
		doc, err := json.Marshal(event)
		if err != nil {
			return fmt.Errorf("encode history for %s: %w", event.ID, err)
		}
		entries = append(entries, persistence.HistoryEntry{
			EventID:   event.ID,
			Operation: historyOpCreate,
			UserID:    event.OriginalCreator,
			Update:    string(doc),
			CreatedAt: now,
		})
	}
	return a.repo.AppendHistory(ctx, entries)
}

func (a *historyRecorderAdapter) OnUpdated(ctx context.Context, changes application.EventChanges, original application.Event) error {
	return a.append(ctx, historyOpEdited, changes, original)
}

func (a *historyRecorderAdapter) OnRescheduled(ctx context.Context, changes application.EventChanges, original application.Event) error {
	return a.append(ctx, historyOpReschedule, changes, original)
}

func (a *historyRecorderAdapter) append(ctx context.Context, operation string, changes application.EventChanges, original application.Event) error {
	doc, err := json.Marshal(changes)
	if err != nil {
		return fmt.Errorf("encode history for %s: %w", original.ID, err)
	}
	return a.repo.AppendHistory(ctx, []persistence.HistoryEntry{{
		EventID:   original.ID,
		Operation: operation,
		UserID:    changes.VersionCreator,
		Update:    string(doc),
		CreatedAt: a.now().UTC(),
	}})
}

// outboxNotifier queues notifications for the push service instead of
// delivering them in-process.
type outboxNotifier struct {
	repo   persistence.NotificationRepository
	now    func() time.Time
	logger *slog.Logger
}

func newOutboxNotifier(repo persistence.NotificationRepository, now func() time.Time, logger *slog.Logger) *outboxNotifier {
	return &outboxNotifier{repo: repo, now: now, logger: logger}
}

func (n *outboxNotifier) Publish(ctx context.Context, eventType, subjectID, actorID string, extra map[string]string) error {
	id, err := n.repo.EnqueueNotification(ctx, persistence.Notification{
		EventType: eventType,
		SubjectID: subjectID,
		ActorID:   actorID,
		Extra:     maps.Clone(extra),
		CreatedAt: n.now().UTC(),
	})
	if err != nil {
		return err
	}
	n.logger.InfoContext(ctx, "notification queued",
		"notification_id", id,
		"event_type", eventType,
		"subject_id", subjectID,
		"actor_id", actorID,
	)
	return nil
}

func toApplicationEvent(model persistence.Event) application.Event {
	event := application.Event{
		ID:          model.ID,
		GUID:        model.GUID,
		Name:        model.Name,
		Slugline:    model.Slugline,
		Description: model.Description,
		Dates: application.EventDates{
			Start:    model.Start,
			End:      model.End,
			Timezone: model.Timezone,
		},
		RecurrenceID:         derefString(model.RecurrenceID),
		PreviousRecurrenceID: derefString(model.PreviousRecurrenceID),
		RescheduledFrom:      derefString(model.RescheduledFrom),
		State:                application.WorkflowState(model.State),
		PubStatus:            model.PubStatus,
		Expiry:               cloneTime(model.Expiry),
		Lock: application.EventLock{
			User:    derefString(model.LockUser),
			Session: derefString(model.LockSession),
			Action:  derefString(model.LockAction),
			Time:    cloneTime(model.LockTime),
		},
		OriginalCreator: model.OriginalCreator,
		VersionCreator:  model.VersionCreator,
		Extra:           maps.Clone(model.Extra),
		CreatedAt:       model.CreatedAt,
		UpdatedAt:       model.UpdatedAt,
	}
	for _, scheduled := range model.PlanningSchedule {
		event.PlanningSchedule = append(event.PlanningSchedule, application.ScheduleEntry{Scheduled: scheduled})
	}
	return event
}

func toPersistenceEvent(event application.Event) persistence.Event {
	model := persistence.Event{
		ID:                   event.ID,
		GUID:                 event.GUID,
		Name:                 event.Name,
		Slugline:             event.Slugline,
		Description:          event.Description,
		Start:                event.Dates.Start,
		End:                  event.Dates.End,
		Timezone:             event.Dates.Timezone,
		RecurrenceID:         optionalString(event.RecurrenceID),
		PreviousRecurrenceID: optionalString(event.PreviousRecurrenceID),
		RescheduledFrom:      optionalString(event.RescheduledFrom),
		State:                string(event.State),
		PubStatus:            event.PubStatus,
		Expiry:               cloneTime(event.Expiry),
		LockUser:             optionalString(event.Lock.User),
		LockSession:          optionalString(event.Lock.Session),
		LockAction:           optionalString(event.Lock.Action),
		LockTime:             cloneTime(event.Lock.Time),
		OriginalCreator:      event.OriginalCreator,
		VersionCreator:       event.VersionCreator,
		Extra:                maps.Clone(event.Extra),
		CreatedAt:            event.CreatedAt,
		UpdatedAt:            event.UpdatedAt,
	}
	for _, entry := range event.PlanningSchedule {
		model.PlanningSchedule = append(model.PlanningSchedule, entry.Scheduled)
	}
	return model
}

func optionalString(value string) *string {
	if value == "" {
		return nil
	}
	return &value
}

func derefString(value *string) string {
	if value == nil {
		return ""
	}
	return *value
}

func cloneTime(value *time.Time) *time.Time {
	if value == nil {
		return nil
	}
	v := *value
	return &v
}
