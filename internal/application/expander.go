package application

import (
	"fmt"
	"time"

	"github.com/MarkLark86/superdesk-planning/internal/recurrence"
)

// SeriesExpander turns a rule-bearing template event into concrete instances.
// It only builds values; persisting them is the caller's job.
type SeriesExpander struct {
	engine      *recurrence.Engine
	idGenerator func() string
	location    *time.Location
}

// NewSeriesExpander wires the expander. A nil engine uses the default
// ceiling and a nil location falls back to UTC for events without a timezone.
func NewSeriesExpander(engine *recurrence.Engine, idGenerator func() string, location *time.Location) *SeriesExpander {
	if engine == nil {
		engine = recurrence.NewEngine(0)
	}
	if idGenerator == nil {
		idGenerator = func() string { return "" }
	}
	if location == nil {
		location = time.UTC
	}
	return &SeriesExpander{engine: engine, idGenerator: idGenerator, location: location}
}

// MaxOccurrences reports the ceiling applied to every expansion.
func (x *SeriesExpander) MaxOccurrences() int {
	return x.engine.MaxOccurrences()
}

// Expand returns the chronologically ordered instances generated from the
// template's rule. Output beyond the ceiling is dropped silently.
func (x *SeriesExpander) Expand(template Event) ([]Event, error) {
	return x.expand(template, x.engine)
}

// ExpandStrict behaves like Expand but fails with ErrRegenerationLimit
// instead of truncating.
func (x *SeriesExpander) ExpandStrict(template Event) ([]Event, error) {
	limit := x.engine.MaxOccurrences()
	if rule := template.Dates.RecurringRule; rule != nil {
		normalized := recurrence.NormalizeEndMode(*rule)
		if normalized.Count > limit {
			return nil, fmt.Errorf("%w: rule asks for %d, limit is %d", ErrRegenerationLimit, normalized.Count, limit)
		}
	}

	instances, err := x.expand(template, recurrence.NewEngine(limit+1))
	if err != nil {
		return nil, err
	}
	if len(instances) > limit {
		return nil, fmt.Errorf("%w: limit is %d", ErrRegenerationLimit, limit)
	}
	return instances, nil
}

func (x *SeriesExpander) expand(template Event, engine *recurrence.Engine) ([]Event, error) {
	if template.Dates.RecurringRule == nil {
		return nil, &recurrence.RuleError{Field: "recurring_rule", Message: "template has no recurrence rule"}
	}
	rule := recurrence.NormalizeEndMode(*template.Dates.RecurringRule)

	loc, err := x.resolveLocation(template.Dates.Timezone)
	if err != nil {
		return nil, err
	}

	recurrenceID := template.RecurrenceID
	if recurrenceID == "" {
		recurrenceID = x.idGenerator()
	}
	duration := template.Dates.Duration()

	seq, err := engine.Generate(template.Dates.Start, rule, recurrence.GenerateOptions{Timezone: loc})
	if err != nil {
		return nil, err
	}

	instances := make([]Event, 0)
	for occurrence := range seq {
		instance := template.Clone()
		instance.ID = x.idGenerator()
		instance.GUID = instance.ID
		instance.Lock = EventLock{}
		instance.PubStatus = ""
		instance.RescheduledFrom = ""
		instance.CreatedAt = time.Time{}
		instance.UpdatedAt = time.Time{}
		if instance.State == "" {
			instance.State = StateDraft
		}
		instance.RecurrenceID = recurrenceID
		instance.Dates.RecurringRule = nil
		instance.Dates.Start = occurrence
		instance.Dates.End = occurrence.Add(duration)
		instance.refreshDerived()
		instances = append(instances, instance)
	}
	return instances, nil
}

func (x *SeriesExpander) resolveLocation(name string) (*time.Location, error) {
	if name == "" {
		return x.location, nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, &recurrence.RuleError{Field: "tz", Message: fmt.Sprintf("unknown timezone %q", name)}
	}
	return loc, nil
}
