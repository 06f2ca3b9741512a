package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/MarkLark86/superdesk-planning/internal/persistence"
	"github.com/MarkLark86/superdesk-planning/internal/recurrence"
	"github.com/MarkLark86/superdesk-planning/internal/scheduler"
)

const (
	eventServiceName = "event_service"
	tracerName       = "github.com/MarkLark86/superdesk-planning/internal/application"
)

// EventServiceDeps lists the collaborators of an EventService.
// Store is required; every other field has a usable default.
type EventServiceDeps struct {
	Store       EventStore
	Expander    *SeriesExpander
	Notifier    Notifier
	History     HistoryRecorder
	Authorizer  Authorizer
	IDGenerator func() string
	Now         func() time.Time
	Location    *time.Location
	Logger      *slog.Logger
	Tracer      trace.Tracer
}

// EventService creates events and propagates edits across recurrence groups.
type EventService struct {
	store       EventStore
	expander    *SeriesExpander
	notifier    Notifier
	history     HistoryRecorder
	authorizer  Authorizer
	idGenerator func() string
	now         func() time.Time
	location    *time.Location
	logger      *slog.Logger
	tracer      trace.Tracer
	groups      *groupLocks
}

// NewEventService wires dependencies for event operations.
func NewEventService(deps EventServiceDeps) *EventService {
	if deps.IDGenerator == nil {
		deps.IDGenerator = func() string { return "" }
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Location == nil {
		deps.Location = time.UTC
	}
	if deps.Expander == nil {
		deps.Expander = NewSeriesExpander(nil, deps.IDGenerator, deps.Location)
	}
	if deps.Authorizer == nil {
		deps.Authorizer = PrivilegeAuthorizer{}
	}
	if deps.Tracer == nil {
		deps.Tracer = otel.Tracer(tracerName)
	}
	return &EventService{
		store:       deps.Store,
		expander:    deps.Expander,
		notifier:    deps.Notifier,
		history:     deps.History,
		authorizer:  deps.Authorizer,
		idGenerator: deps.IDGenerator,
		now:         deps.Now,
		location:    deps.Location,
		logger:      defaultLogger(deps.Logger),
		tracer:      deps.Tracer,
		groups:      newGroupLocks(),
	}
}

// CreateEvents persists new events. Templates carrying a recurrence rule are
// expanded and only their instances are stored, in the same write as the
// rules they came from.
func (s *EventService) CreateEvents(ctx context.Context, params CreateEventsParams) (_ []Event, err error) {
	if s == nil {
		return nil, fmt.Errorf("EventService is nil")
	}
	if s.store == nil {
		return nil, fmt.Errorf("event store not configured")
	}

	ctx, span := s.tracer.Start(ctx, "EventService.CreateEvents",
		trace.WithAttributes(attribute.Int("events.requested", len(params.Events))))
	defer func() { endSpan(span, err) }()

	principal := params.Principal
	logger := serviceLogger(ctx, s.logger, eventServiceName, "create_events", "actor_id", principal.UserID)
	defer func() {
		if err != nil {
			logger.Warn("create events failed", "error_kind", ErrorKind(err), "error", err)
		}
	}()

	vErr := &ValidationError{}
	if len(params.Events) == 0 {
		vErr.add("events", "at least one event is required")
	}
	for i, event := range params.Events {
		validateDates(fmt.Sprintf("events[%d].dates", i), event.Dates, vErr)
	}
	if vErr.HasErrors() {
		return nil, vErr
	}

	now := s.now()
	var (
		toCreate []Event
		rules    []GroupRule
	)
	for _, input := range params.Events {
		event := input.Clone()
		if !s.authorizer.CanEdit(ctx, event, principal) {
			return nil, ErrUnauthorized
		}

		if event.ID == "" {
			event.ID = event.GUID
		}
		if event.ID == "" {
			event.ID = s.idGenerator()
		}
		event.GUID = event.ID
		if event.OriginalCreator == "" {
			event.OriginalCreator = principal.UserID
		}
		if event.State == "" {
			event.State = StateDraft
		}
		event.Lock = EventLock{}
		event.CreatedAt = now
		event.UpdatedAt = now
		event.refreshDerived()

		if event.Dates.RecurringRule == nil {
			toCreate = append(toCreate, event)
			continue
		}

		instances, err := s.expander.Expand(event)
		if err != nil {
			return nil, err
		}
		if len(instances) == 0 {
			return nil, &recurrence.RuleError{Field: "recurring_rule", Message: "rule produces no occurrences"}
		}
		for i := range instances {
			instances[i].CreatedAt = now
			instances[i].UpdatedAt = now
		}
		rules = append(rules, GroupRule{
			RecurrenceID: instances[0].RecurrenceID,
			Rule:         recurrence.NormalizeEndMode(*event.Dates.RecurringRule),
		})
		toCreate = append(toCreate, instances...)
	}

	if len(rules) == 0 {
		_, err = s.store.CreateEvents(ctx, toCreate)
	} else {
		_, err = s.store.CreateSeries(ctx, SeriesWrite{Rules: rules, Events: toCreate})
	}
	if err != nil {
		return nil, mapEventRepoError(err)
	}

	s.recordCreated(ctx, logger, toCreate)
	s.notifyCreated(ctx, logger, toCreate)

	span.SetAttributes(attribute.Int("events.created", len(toCreate)))
	logger.Info("events created", "count", len(toCreate), "recurrence_groups", len(rules))
	return toCreate, nil
}

// UpdateEvent applies changes to one event and, depending on scope, to its
// recurrence siblings. Exactly one notification is published per call.
func (s *EventService) UpdateEvent(ctx context.Context, params UpdateEventParams) (_ UpdateResult, err error) {
	if s == nil {
		return UpdateResult{}, fmt.Errorf("EventService is nil")
	}
	if s.store == nil {
		return UpdateResult{}, fmt.Errorf("event store not configured")
	}

	scope := params.Scope
	if scope == "" {
		scope = ScopeSingle
	}

	ctx, span := s.tracer.Start(ctx, "EventService.UpdateEvent", trace.WithAttributes(
		attribute.String("event.id", params.EventID),
		attribute.String("update.scope", string(scope)),
	))
	defer func() { endSpan(span, err) }()

	principal := params.Principal
	logger := serviceLogger(ctx, s.logger, eventServiceName, "update_event",
		"event_id", params.EventID, "scope", string(scope), "actor_id", principal.UserID)
	defer func() {
		if err != nil {
			logger.Warn("update event failed", "error_kind", ErrorKind(err), "error", err)
		}
	}()

	if _, err := ParseUpdateScope(string(scope)); err != nil {
		return UpdateResult{}, err
	}

	original, err := s.store.GetEvent(ctx, params.EventID)
	if err != nil {
		return UpdateResult{}, mapEventRepoError(err)
	}
	if original.Lock.Locked() && original.Lock.User != principal.UserID {
		return UpdateResult{}, ErrLockConflict
	}
	if !s.authorizer.CanEdit(ctx, original, principal) {
		return UpdateResult{}, ErrUnauthorized
	}

	changes := params.Changes.Clone()
	changes.VersionCreator = principal.UserID

	var result UpdateResult
	switch {
	case !original.IsRecurring() || scope == ScopeSingle:
		if changes.HasRule() {
			result, err = s.convertToRecurring(ctx, logger, original, changes)
		} else {
			result, err = s.updateSingle(ctx, logger, original, changes)
		}
	default:
		result, err = s.updateRecurring(ctx, logger, original, changes, scope)
	}
	if err != nil {
		return result, err
	}

	span.SetAttributes(attribute.Int("events.affected", len(result.Affected)))
	logger.Info("event updated", "affected", len(result.Affected), "recurrence_id", result.RecurrenceID)
	return result, nil
}

func (s *EventService) updateSingle(ctx context.Context, logger *slog.Logger, original Event, changes EventChanges) (UpdateResult, error) {
	if changes.Dates != nil {
		vErr := &ValidationError{}
		validateDates("dates", *changes.Dates, vErr)
		if vErr.HasErrors() {
			return UpdateResult{}, vErr
		}
	}

	updated, err := s.applyMetadataOnly(ctx, original.ID, changes)
	if err != nil {
		return UpdateResult{}, err
	}

	s.recordUpdated(ctx, logger, changes, original)
	s.publish(ctx, logger, NotifyEventUpdated, original.ID, changes.VersionCreator, nil)
	return UpdateResult{Affected: []string{updated.ID}, RecurrenceID: updated.RecurrenceID}, nil
}

// convertToRecurring turns a single event into the first member of a new
// recurrence group. When the new rule does not land on the event's own date
// the event is rescheduled out, keeping its original date, and every
// generated instance is created.
func (s *EventService) convertToRecurring(ctx context.Context, logger *slog.Logger, original Event, changes EventChanges) (UpdateResult, error) {
	if changes.Dates.Start.IsZero() && changes.Dates.End.IsZero() {
		changes.Dates.Start = original.Dates.Start
		changes.Dates.End = original.Dates.End
	}
	vErr := &ValidationError{}
	validateDates("dates", *changes.Dates, vErr)
	if vErr.HasErrors() {
		return UpdateResult{}, vErr
	}

	previousGroup := original.RecurrenceID
	unlock := s.groups.lock(previousGroup)
	defer unlock()

	recurrenceID := s.idGenerator()
	template := original.Apply(changes)
	template.RecurrenceID = recurrenceID
	template.PreviousRecurrenceID = previousGroup
	template.State = StateDraft

	generated, err := s.expander.Expand(template)
	if err != nil {
		return UpdateResult{}, err
	}
	if len(generated) == 0 {
		return UpdateResult{}, &recurrence.RuleError{Field: "recurring_rule", Message: "rule produces no occurrences"}
	}
	first := generated[0]

	var (
		patch       EventChanges
		siblings    []Event
		rescheduled bool
	)
	if sameDate(first.Dates.Start, original.Dates.Start, s.eventLocation(original)) {
		dates := changes.Dates.Clone()
		dates.Start = first.Dates.Start
		dates.End = first.Dates.End
		dates.RecurringRule = nil

		patch = changes
		patch.Dates = &dates
		patch.RecurrenceID = &recurrenceID
		if previousGroup != "" {
			patch.PreviousRecurrenceID = &previousGroup
		}
		siblings = generated[1:]
	} else {
		state := StateRescheduled
		if changes.State != nil {
			state = *changes.State
		}
		patch = changes.withoutDates()
		patch.State = &state

		generated[0].RescheduledFrom = original.ID
		siblings = generated
		rescheduled = true
	}
	patch.ClearLock = true

	affected := []string{original.ID}
	_, err = s.store.CreateSeries(ctx, SeriesWrite{
		Rules: []GroupRule{{
			RecurrenceID: recurrenceID,
			Rule:         recurrence.NormalizeEndMode(*changes.Dates.RecurringRule),
		}},
		Patches: []EventPatch{{ID: original.ID, Changes: patch}},
		Events:  siblings,
	})
	if err != nil {
		return UpdateResult{}, mapEventRepoError(err)
	}
	for _, sibling := range siblings {
		affected = append(affected, sibling.ID)
	}

	if rescheduled {
		moved := first.Dates.Clone()
		entry := patch
		entry.Dates = &moved
		s.recordRescheduled(ctx, logger, entry, original)
		logger.Info("event rescheduled out of new series", "rescheduled_to", first.Dates.Start)
	} else {
		s.recordUpdated(ctx, logger, patch, original)
	}
	s.recordCreated(ctx, logger, siblings)
	s.publish(ctx, logger, NotifyEventUpdatedRecurring, original.ID, changes.VersionCreator,
		map[string]string{"recurrence_id": recurrenceID})
	return UpdateResult{Affected: affected, RecurrenceID: recurrenceID}, nil
}

// updateRecurring fans metadata changes out over the selected part of the
// recurrence group, oldest first. Dates never propagate.
func (s *EventService) updateRecurring(ctx context.Context, logger *slog.Logger, original Event, changes EventChanges, scope UpdateScope) (UpdateResult, error) {
	recurrenceID := original.RecurrenceID
	unlock := s.groups.lock(recurrenceID)
	defer unlock()

	changes = changes.withoutDates()

	siblings, err := s.store.FindEventsByField(ctx, FieldRecurrenceID, recurrenceID)
	if err != nil {
		return UpdateResult{}, mapEventRepoError(err)
	}

	byID := make(map[string]Event, len(siblings)+1)
	occurrences := make([]scheduler.Occurrence, 0, len(siblings)+1)
	for _, sibling := range siblings {
		byID[sibling.ID] = sibling
		occurrences = append(occurrences, toOccurrence(sibling))
	}
	if _, ok := byID[original.ID]; !ok {
		byID[original.ID] = original
		occurrences = append(occurrences, toOccurrence(original))
	}

	timeline := scheduler.PartitionTimeline(occurrences, toOccurrence(original), s.now(), s.eventLocation(original))
	targets := timeline.Future
	if scope == ScopeAll {
		targets = timeline.All()
	}
	logger.Debug("resolved recurrence timeline",
		"historic", len(timeline.Historic), "past", len(timeline.Past), "future", len(timeline.Future))

	updated := make([]string, 0, len(targets))
	for i, target := range targets {
		if _, err := s.applyMetadataOnly(ctx, target.ID, changes); err != nil {
			pending := make([]string, 0, len(targets)-i)
			for _, rest := range targets[i:] {
				pending = append(pending, rest.ID)
			}
			if len(updated) > 0 {
				s.publish(ctx, logger, NotifyEventUpdatedRecurring, original.ID, changes.VersionCreator,
					map[string]string{"recurrence_id": recurrenceID})
			}
			return UpdateResult{Affected: updated, RecurrenceID: recurrenceID},
				&PartialUpdateError{Updated: updated, Pending: pending, Err: err}
		}
		s.recordUpdated(ctx, logger, changes, byID[target.ID])
		updated = append(updated, target.ID)
	}

	s.publish(ctx, logger, NotifyEventUpdatedRecurring, original.ID, changes.VersionCreator,
		map[string]string{"recurrence_id": recurrenceID})
	return UpdateResult{Affected: updated, RecurrenceID: recurrenceID}, nil
}

// applyMetadataOnly patches exactly one event. It never resolves scope and
// never publishes notifications.
func (s *EventService) applyMetadataOnly(ctx context.Context, id string, changes EventChanges) (Event, error) {
	updated, err := s.store.PatchEvent(ctx, id, changes)
	if err != nil {
		return Event{}, mapEventRepoError(err)
	}
	return updated, nil
}

func (s *EventService) notifyCreated(ctx context.Context, logger *slog.Logger, events []Event) {
	sent := make(map[string]struct{})
	for _, event := range events {
		if event.PreviousRecurrenceID != "" {
			continue
		}
		eventType, subject := NotifyEventCreated, event.ID
		if event.RecurrenceID != "" {
			eventType, subject = NotifyEventCreatedRecurring, event.RecurrenceID
		}
		if _, dup := sent[subject]; dup {
			continue
		}
		sent[subject] = struct{}{}
		s.publish(ctx, logger, eventType, subject, event.OriginalCreator, nil)
	}
}

func (s *EventService) publish(ctx context.Context, logger *slog.Logger, eventType, subjectID, actorID string, extra map[string]string) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Publish(ctx, eventType, subjectID, actorID, extra); err != nil {
		logger.Warn("publish notification failed", "event_type", eventType, "subject_id", subjectID, "error", err)
	}
}

func (s *EventService) recordCreated(ctx context.Context, logger *slog.Logger, events []Event) {
	if s.history == nil || len(events) == 0 {
		return
	}
	if err := s.history.OnCreated(ctx, events); err != nil {
		logger.Warn("record history failed", "history_op", "create", "error", err)
	}
}

func (s *EventService) recordUpdated(ctx context.Context, logger *slog.Logger, changes EventChanges, original Event) {
	if s.history == nil {
		return
	}
	if err := s.history.OnUpdated(ctx, changes, original); err != nil {
		logger.Warn("record history failed", "history_op", "edited", "event_id", original.ID, "error", err)
	}
}

func (s *EventService) recordRescheduled(ctx context.Context, logger *slog.Logger, changes EventChanges, original Event) {
	if s.history == nil {
		return
	}
	if err := s.history.OnRescheduled(ctx, changes, original); err != nil {
		logger.Warn("record history failed", "history_op", "reschedule", "event_id", original.ID, "error", err)
	}
}

func (s *EventService) eventLocation(event Event) *time.Location {
	if event.Dates.Timezone != "" {
		if loc, err := time.LoadLocation(event.Dates.Timezone); err == nil {
			return loc
		}
	}
	return s.location
}

func sameDate(a, b time.Time, loc *time.Location) bool {
	ay, am, ad := a.In(loc).Date()
	by, bm, bd := b.In(loc).Date()
	return ay == by && am == bm && ad == bd
}

func toOccurrence(event Event) scheduler.Occurrence {
	return scheduler.Occurrence{ID: event.ID, Start: event.Dates.Start, End: event.Dates.End}
}

func validateDates(field string, dates EventDates, vErr *ValidationError) {
	if dates.Start.IsZero() {
		vErr.add(field+".start", "start is required")
	}
	if dates.End.IsZero() {
		vErr.add(field+".end", "end is required")
	}
	if !dates.Start.IsZero() && !dates.End.IsZero() && dates.End.Before(dates.Start) {
		vErr.add(field, "end must not be before start")
	}
	if dates.Timezone != "" {
		if _, err := time.LoadLocation(dates.Timezone); err != nil {
			vErr.add(field+".tz", "unknown timezone")
		}
	}
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

func mapEventRepoError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrNotFound) || errors.Is(err, persistence.ErrNotFound) {
		return fmt.Errorf("%w: %v", ErrNotFound, err)
	}
	if errors.Is(err, persistence.ErrDuplicate) {
		return ErrAlreadyExists
	}
	if errors.Is(err, persistence.ErrInvalidRecurrence) {
		return &recurrence.RuleError{Field: "recurring_rule", Message: "rejected by storage: " + err.Error()}
	}
	if errors.Is(err, persistence.ErrConstraintViolation) {
		vErr := &ValidationError{}
		vErr.add("event", "rejected by storage constraint")
		return vErr
	}
	if errors.Is(err, persistence.ErrForeignKeyViolation) {
		vErr := &ValidationError{}
		vErr.add("recurrence_id", "related records are missing")
		return vErr
	}
	return err
}
