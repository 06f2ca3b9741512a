package application

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/MarkLark86/superdesk-planning/internal/persistence"
	"github.com/MarkLark86/superdesk-planning/internal/recurrence"
)

type memoryStore struct {
	mu         sync.Mutex
	events     map[string]Event
	rules      []savedRule
	failOn     map[string]error
	failSeries error
	patched    []string
	now        func() time.Time
}

func newMemoryStore(events ...Event) *memoryStore {
	store := &memoryStore{events: make(map[string]Event), failOn: make(map[string]error)}
	for _, event := range events {
		store.events[event.ID] = event.Clone()
	}
	return store
}

func (m *memoryStore) GetEvent(ctx context.Context, id string) (Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	event, ok := m.events[id]
	if !ok {
		return Event{}, fmt.Errorf("event %s: %w", id, ErrNotFound)
	}
	return event.Clone(), nil
}

func (m *memoryStore) FindEventsByField(ctx context.Context, field EventField, value string) ([]Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Event
	for _, event := range m.events {
		var got string
		switch field {
		case FieldRecurrenceID:
			got = event.RecurrenceID
		case FieldPreviousRecurrenceID:
			got = event.PreviousRecurrenceID
		default:
			return nil, fmt.Errorf("unsupported field %s", field)
		}
		if got == value {
			out = append(out, event.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Dates.Start.Equal(out[j].Dates.Start) {
			return out[i].ID < out[j].ID
		}
		return out[i].Dates.Start.Before(out[j].Dates.Start)
	})
	return out, nil
}

func (m *memoryStore) CreateEvents(ctx context.Context, events []Event) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, event := range events {
		if _, exists := m.events[event.ID]; exists {
			return nil, ErrAlreadyExists
		}
	}
	ids := make([]string, 0, len(events))
	for _, event := range events {
		m.events[event.ID] = event.Clone()
		ids = append(ids, event.ID)
	}
	return ids, nil
}

func (m *memoryStore) PatchEvent(ctx context.Context, id string, changes EventChanges) (Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failOn[id]; err != nil {
		return Event{}, err
	}
	event, ok := m.events[id]
	if !ok {
		return Event{}, fmt.Errorf("event %s: %w", id, ErrNotFound)
	}
	updated := event.Apply(changes)
	if m.now != nil {
		updated.UpdatedAt = m.now()
	}
	m.events[id] = updated
	m.patched = append(m.patched, id)
	return updated.Clone(), nil
}

// CreateSeries applies the whole write or nothing. Rules are checked the way
// the recurrence_rules table constrains them.
func (m *memoryStore) CreateSeries(ctx context.Context, write SeriesWrite) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failSeries != nil {
		return nil, m.failSeries
	}
	for _, group := range write.Rules {
		if err := checkStoredRule(group); err != nil {
			return nil, err
		}
	}

	staged := make(map[string]Event, len(write.Patches)+len(write.Events))
	for _, patch := range write.Patches {
		if err := m.failOn[patch.ID]; err != nil {
			return nil, err
		}
		event, ok := m.events[patch.ID]
		if !ok {
			return nil, fmt.Errorf("event %s: %w", patch.ID, ErrNotFound)
		}
		updated := event.Apply(patch.Changes)
		if m.now != nil {
			updated.UpdatedAt = m.now()
		}
		staged[patch.ID] = updated
	}
	ids := make([]string, 0, len(write.Events))
	for _, event := range write.Events {
		if _, exists := m.events[event.ID]; exists {
			return nil, ErrAlreadyExists
		}
		staged[event.ID] = event.Clone()
		ids = append(ids, event.ID)
	}

	for id, event := range staged {
		m.events[id] = event
	}
	for _, patch := range write.Patches {
		m.patched = append(m.patched, patch.ID)
	}
	for _, group := range write.Rules {
		m.rules = append(m.rules, savedRule{recurrenceID: group.RecurrenceID, rule: group.Rule})
	}
	return ids, nil
}

func checkStoredRule(group GroupRule) error {
	rule := group.Rule
	switch {
	case group.RecurrenceID == "":
		return fmt.Errorf("recurrence_id is required: %w", persistence.ErrInvalidRecurrence)
	case !rule.Frequency.Valid():
		return fmt.Errorf("frequency %q: %w", rule.Frequency, persistence.ErrInvalidRecurrence)
	case rule.EffectiveInterval() < 1:
		return fmt.Errorf("interval %d: %w", rule.EffectiveInterval(), persistence.ErrInvalidRecurrence)
	case rule.EndRepeatMode != recurrence.EndRepeatCount && rule.EndRepeatMode != recurrence.EndRepeatUntil:
		return fmt.Errorf("end_repeat_mode %q: %w", rule.EndRepeatMode, persistence.ErrInvalidRecurrence)
	}
	return nil
}

func (m *memoryStore) savedRules() []savedRule {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]savedRule(nil), m.rules...)
}

func (m *memoryStore) get(id string) Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.events[id].Clone()
}

func (m *memoryStore) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.events)
}

type savedRule struct {
	recurrenceID string
	rule         recurrence.Rule
}

type publishedMessage struct {
	eventType string
	subjectID string
	actorID   string
	extra     map[string]string
}

type notifierStub struct {
	mu       sync.Mutex
	messages []publishedMessage
	err      error
}

func (n *notifierStub) Publish(ctx context.Context, eventType, subjectID, actorID string, extra map[string]string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.messages = append(n.messages, publishedMessage{eventType: eventType, subjectID: subjectID, actorID: actorID, extra: extra})
	return n.err
}

type historyCall struct {
	op      string
	eventID string
	changes EventChanges
}

type historyStub struct {
	calls []historyCall
	err   error
}

func (h *historyStub) OnCreated(ctx context.Context, events []Event) error {
	for _, event := range events {
		h.calls = append(h.calls, historyCall{op: "create", eventID: event.ID})
	}
	return h.err
}

func (h *historyStub) OnUpdated(ctx context.Context, changes EventChanges, original Event) error {
	h.calls = append(h.calls, historyCall{op: "edited", eventID: original.ID, changes: changes})
	return h.err
}

func (h *historyStub) OnRescheduled(ctx context.Context, changes EventChanges, original Event) error {
	h.calls = append(h.calls, historyCall{op: "reschedule", eventID: original.ID, changes: changes})
	return h.err
}

func (h *historyStub) ops(op string) []string {
	var ids []string
	for _, call := range h.calls {
		if call.op == op {
			ids = append(ids, call.eventID)
		}
	}
	return ids
}

func sequentialIDs(prefix string) func() string {
	var (
		mu sync.Mutex
		n  int
	)
	return func() string {
		mu.Lock()
		defer mu.Unlock()
		n++
		return fmt.Sprintf("%s-%d", prefix, n)
	}
}

func editor(userID string) Principal {
	return Principal{UserID: userID, Privileges: []string{PrivilegeEventManagement}}
}

func strRef(s string) *string {
	return &s
}
