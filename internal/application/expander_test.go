package application

import (
	"errors"
	"testing"
	"time"

	"github.com/MarkLark86/superdesk-planning/internal/recurrence"
)

func TestSeriesExpander_Expand(t *testing.T) {
	t.Parallel()

	expiry := at(6, 10)
	lockTime := at(1, 0)
	template := Event{
		ID:              "template",
		Name:            "Weekly review",
		RecurrenceID:    "rec-A",
		RescheduledFrom: "older",
		PubStatus:       "usable",
		Expiry:          &expiry,
		Lock:            EventLock{User: "alice", Time: &lockTime},
		Extra:           map[string]string{"desk": "sport"},
		Dates: EventDates{
			Start:         at(6, 9),
			End:           at(6, 10),
			RecurringRule: &recurrence.Rule{Frequency: recurrence.FrequencyWeekly, Interval: recurrence.Every(2), ByDay: "MO", EndRepeatMode: recurrence.EndRepeatCount, Count: 3},
		},
	}

	expander := NewSeriesExpander(nil, sequentialIDs("x"), time.UTC)
	instances, err := expander.Expand(template)
	if err != nil {
		t.Fatalf("Expand returned error: %v", err)
	}

	wantStarts := []time.Time{at(6, 9), at(20, 9), time.Date(2024, time.June, 3, 9, 0, 0, 0, time.UTC)}
	if len(instances) != len(wantStarts) {
		t.Fatalf("expected %d instances, got %d", len(wantStarts), len(instances))
	}
	for i, instance := range instances {
		if !instance.Dates.Start.Equal(wantStarts[i]) || !instance.Dates.End.Equal(wantStarts[i].Add(time.Hour)) {
			t.Errorf("instance %d: got %v - %v", i, instance.Dates.Start, instance.Dates.End)
		}
		if instance.RecurrenceID != "rec-A" {
			t.Errorf("instance %d: expected template group to be reused, got %q", i, instance.RecurrenceID)
		}
		if instance.ID == "template" || instance.ID != instance.GUID {
			t.Errorf("instance %d: unexpected identity %q/%q", i, instance.ID, instance.GUID)
		}
		if instance.Lock.Locked() || instance.PubStatus != "" || instance.RescheduledFrom != "" || instance.Dates.RecurringRule != nil {
			t.Errorf("instance %d: template-only fields leaked: %+v", i, instance)
		}
		if instance.State != StateDraft {
			t.Errorf("instance %d: expected draft, got %s", i, instance.State)
		}
		if instance.Expiry == nil || !instance.Expiry.Equal(instance.Dates.End) {
			t.Errorf("instance %d: expiry should follow end, got %v", i, instance.Expiry)
		}
		if len(instance.PlanningSchedule) != 1 || !instance.PlanningSchedule[0].Scheduled.Equal(instance.Dates.Start) {
			t.Errorf("instance %d: unexpected schedule %v", i, instance.PlanningSchedule)
		}
	}

	instances[0].Extra["desk"] = "news"
	if template.Extra["desk"] != "sport" || instances[1].Extra["desk"] != "sport" {
		t.Fatalf("instances must not share maps with the template or each other")
	}
}

func TestSeriesExpander_MintsGroupID(t *testing.T) {
	t.Parallel()

	template := Event{Dates: EventDates{Start: at(6, 9), End: at(6, 10), RecurringRule: countRule(recurrence.FrequencyDaily, "", 2)}}
	instances, err := NewSeriesExpander(nil, sequentialIDs("x"), nil).Expand(template)
	if err != nil {
		t.Fatalf("Expand returned error: %v", err)
	}
	if instances[0].RecurrenceID != "x-1" || instances[1].RecurrenceID != "x-1" {
		t.Fatalf("expected one minted group id, got %q and %q", instances[0].RecurrenceID, instances[1].RecurrenceID)
	}
}

func TestSeriesExpander_UsesEventTimezone(t *testing.T) {
	t.Parallel()

	// 09:00 in New York, across the March DST switch.
	ny, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Skipf("timezone data unavailable: %v", err)
	}
	start := time.Date(2024, time.March, 8, 9, 0, 0, 0, ny)
	template := Event{Dates: EventDates{
		Start:         start.UTC(),
		End:           start.Add(time.Hour).UTC(),
		Timezone:      "America/New_York",
		RecurringRule: countRule(recurrence.FrequencyDaily, "", 3),
	}}

	instances, err := NewSeriesExpander(nil, sequentialIDs("x"), time.UTC).Expand(template)
	if err != nil {
		t.Fatalf("Expand returned error: %v", err)
	}
	for i, instance := range instances {
		local := instance.Dates.Start.In(ny)
		if local.Hour() != 9 {
			t.Errorf("instance %d: expected 09:00 local, got %v", i, local)
		}
	}
}

func TestSeriesExpander_Ceiling(t *testing.T) {
	t.Parallel()

	template := Event{Dates: EventDates{Start: at(6, 9), End: at(6, 10), RecurringRule: countRule(recurrence.FrequencyDaily, "", 10)}}
	expander := NewSeriesExpander(recurrence.NewEngine(3), sequentialIDs("x"), time.UTC)

	instances, err := expander.Expand(template)
	if err != nil {
		t.Fatalf("Expand returned error: %v", err)
	}
	if len(instances) != 3 {
		t.Fatalf("expected truncation to 3, got %d", len(instances))
	}

	if _, err := expander.ExpandStrict(template); !errors.Is(err, ErrRegenerationLimit) {
		t.Fatalf("expected ErrRegenerationLimit for count rule, got %v", err)
	}

	until := at(31, 0)
	untilTemplate := template
	untilTemplate.Dates.RecurringRule = &recurrence.Rule{Frequency: recurrence.FrequencyDaily, EndRepeatMode: recurrence.EndRepeatUntil, Until: &until}
	if _, err := expander.ExpandStrict(untilTemplate); !errors.Is(err, ErrRegenerationLimit) {
		t.Fatalf("expected ErrRegenerationLimit for until rule, got %v", err)
	}

	small := template
	small.Dates.RecurringRule = countRule(recurrence.FrequencyDaily, "", 3)
	if got, err := expander.ExpandStrict(small); err != nil || len(got) != 3 {
		t.Fatalf("expected 3 instances at the limit, got %d (%v)", len(got), err)
	}
}

func TestSeriesExpander_Errors(t *testing.T) {
	t.Parallel()

	expander := NewSeriesExpander(nil, sequentialIDs("x"), time.UTC)
	tests := map[string]Event{
		"no rule":    {Dates: EventDates{Start: at(6, 9), End: at(6, 10)}},
		"bad tz":     {Dates: EventDates{Start: at(6, 9), End: at(6, 10), Timezone: "Atlantis/Capital", RecurringRule: countRule(recurrence.FrequencyDaily, "", 2)}},
		"bad byday":  {Dates: EventDates{Start: at(6, 9), End: at(6, 10), RecurringRule: countRule(recurrence.FrequencyWeekly, "XX", 2)}},
		"bad freq":   {Dates: EventDates{Start: at(6, 9), End: at(6, 10), RecurringRule: countRule("HOURLY", "", 2)}},
		"zero start": {Dates: EventDates{RecurringRule: countRule(recurrence.FrequencyDaily, "", 2)}},
	}
	for name, template := range tests {
		t.Run(name, func(t *testing.T) {
			if _, err := expander.Expand(template); !errors.Is(err, ErrInvalidRule) {
				t.Fatalf("expected ErrInvalidRule, got %v", err)
			}
		})
	}
}
