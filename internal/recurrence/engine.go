package recurrence

import (
	"iter"
	"time"

	"github.com/teambition/rrule-go"
)

// DefaultMaxOccurrences bounds expansion when no ceiling is configured.
const DefaultMaxOccurrences = 200

var frequencies = map[Frequency]rrule.Frequency{
	FrequencyDaily:   rrule.DAILY,
	FrequencyWeekly:  rrule.WEEKLY,
	FrequencyMonthly: rrule.MONTHLY,
	FrequencyYearly:  rrule.YEARLY,
}

// GenerateOptions tunes a single Generate call.
type GenerateOptions struct {
	// Timezone, when set, makes rule math run on that zone's wall clock.
	// Results are returned in UTC.
	Timezone *time.Location
	// DateOnly truncates every occurrence to midnight of its date.
	DateOnly bool
	// MaxCount lowers the engine ceiling for this call. Zero keeps the ceiling.
	MaxCount int
}

// Engine expands recurrence rules into occurrence start times.
type Engine struct {
	maxOccurrences int
}

// NewEngine constructs an Engine that never yields more than maxOccurrences
// dates per call. A non-positive value falls back to DefaultMaxOccurrences.
func NewEngine(maxOccurrences int) *Engine {
	if maxOccurrences <= 0 {
		maxOccurrences = DefaultMaxOccurrences
	}
	return &Engine{maxOccurrences: maxOccurrences}
}

// MaxOccurrences reports the engine ceiling.
func (e *Engine) MaxOccurrences() int {
	if e == nil || e.maxOccurrences <= 0 {
		return DefaultMaxOccurrences
	}
	return e.maxOccurrences
}

// Generate validates rule and returns a finite, chronologically ordered
// sequence of occurrence starts beginning at start.
//
// The engine enforces the following semantics:
//   - DAILY rules ignore any by-day selector.
//   - With a timezone the start and until bound are read as wall clock in
//     that zone so "every day at 09:00" survives DST transitions.
//   - At most min(opts.MaxCount, engine ceiling) dates are produced.
//   - Every range over the sequence starts from the first occurrence again.
func (e *Engine) Generate(start time.Time, rule Rule, opts GenerateOptions) (iter.Seq[time.Time], error) {
	if start.IsZero() {
		return nil, ruleError("start", "start time is required")
	}
	if err := rule.Validate(); err != nil {
		return nil, err
	}

	option := rrule.ROption{
		Freq:     frequencies[rule.Frequency],
		Dtstart:  start,
		Interval: rule.EffectiveInterval(),
		Count:    rule.Count,
	}
	if opts.Timezone != nil {
		option.Dtstart = start.In(opts.Timezone)
	}
	if rule.Until != nil {
		until := *rule.Until
		if opts.Timezone != nil {
			until = until.In(opts.Timezone)
		}
		option.Until = until
	}
	if rule.Frequency != FrequencyDaily {
		days, err := ParseByDay(rule.ByDay)
		if err != nil {
			return nil, err
		}
		option.Byweekday = days
	}

	limit := e.MaxOccurrences()
	if opts.MaxCount > 0 && opts.MaxCount < limit {
		limit = opts.MaxCount
	}

	if _, err := rrule.NewRRule(option); err != nil {
		return nil, ruleError("", "%v", err)
	}

	return func(yield func(time.Time) bool) {
		r, err := rrule.NewRRule(option)
		if err != nil {
			return
		}
		next := r.Iterator()
		for produced := 0; produced < limit; produced++ {
			occurrence, ok := next()
			if !ok {
				return
			}
			if opts.Timezone != nil {
				occurrence = occurrence.UTC()
			}
			if opts.DateOnly {
				y, m, d := occurrence.Date()
				occurrence = time.Date(y, m, d, 0, 0, 0, 0, occurrence.Location())
			}
			if !yield(occurrence) {
				return
			}
		}
	}, nil
}

// Dates materializes Generate into a slice.
func (e *Engine) Dates(start time.Time, rule Rule, opts GenerateOptions) ([]time.Time, error) {
	seq, err := e.Generate(start, rule, opts)
	if err != nil {
		return nil, err
	}
	dates := make([]time.Time, 0)
	for occurrence := range seq {
		dates = append(dates, occurrence)
	}
	return dates, nil
}
