package recurrence

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Frequency is the period a recurrence rule repeats on.
type Frequency string

const (
	FrequencyDaily   Frequency = "DAILY"
	FrequencyWeekly  Frequency = "WEEKLY"
	FrequencyMonthly Frequency = "MONTHLY"
	FrequencyYearly  Frequency = "YEARLY"
)

// Valid reports whether f is one of the supported frequencies.
func (f Frequency) Valid() bool {
	switch f {
	case FrequencyDaily, FrequencyWeekly, FrequencyMonthly, FrequencyYearly:
		return true
	default:
		return false
	}
}

// EndRepeatMode selects which stop condition of a rule is active.
type EndRepeatMode string

const (
	EndRepeatCount EndRepeatMode = "count"
	EndRepeatUntil EndRepeatMode = "until"
)

// Rule describes how an event repeats.
//
// Exactly one of Count or Until is meaningful, as chosen by EndRepeatMode.
// NormalizeEndMode clears the other one before the rule is persisted.
// A nil Interval means the field was not supplied and defaults to 1.
type Rule struct {
	Frequency     Frequency     `json:"frequency"`
	Interval      *int          `json:"interval,omitempty"`
	ByDay         string        `json:"byday,omitempty"`
	EndRepeatMode EndRepeatMode `json:"end_repeat_mode,omitempty"`
	Count         int           `json:"count,omitempty"`
	Until         *time.Time    `json:"until,omitempty"`
}

// ErrInvalidRule is the sentinel matched by every rule validation failure.
var ErrInvalidRule = errors.New("recurrence: invalid rule")

// RuleError reports which part of a rule could not be used.
type RuleError struct {
	Field   string
	Message string
}

func (e *RuleError) Error() string {
	if e.Field == "" {
		return "recurrence: invalid rule: " + e.Message
	}
	return fmt.Sprintf("recurrence: invalid rule: %s: %s", e.Field, e.Message)
}

// Is lets errors.Is(err, ErrInvalidRule) match any RuleError.
func (e *RuleError) Is(target error) bool {
	return target == ErrInvalidRule
}

func ruleError(field, format string, args ...any) error {
	return &RuleError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// Every returns an interval value for use in a Rule literal.
func Every(n int) *int {
	return &n
}

// NormalizeEndMode returns a copy of rule with the inactive stop condition
// cleared. A rule without an explicit mode takes it from whichever of Count
// or Until is set.
func NormalizeEndMode(rule Rule) Rule {
	if rule.EndRepeatMode == "" {
		switch {
		case rule.Count != 0:
			rule.EndRepeatMode = EndRepeatCount
		case rule.Until != nil && !rule.Until.IsZero():
			rule.EndRepeatMode = EndRepeatUntil
		}
	}
	switch rule.EndRepeatMode {
	case EndRepeatCount:
		rule.Until = nil
	case EndRepeatUntil:
		rule.Count = 0
	}
	return rule
}

// Clone returns a deep copy of the rule.
func (r Rule) Clone() Rule {
	if r.Until != nil {
		until := *r.Until
		r.Until = &until
	}
	if r.Interval != nil {
		r.Interval = Every(*r.Interval)
	}
	return r
}

// Validate checks the parts of a rule that do not depend on a start time.
func (r Rule) Validate() error {
	if !r.Frequency.Valid() {
		return ruleError("frequency", "unsupported frequency %q", string(r.Frequency))
	}
	if r.Interval != nil && *r.Interval <= 0 {
		return ruleError("interval", "must be positive, got %d", *r.Interval)
	}
	switch r.EndRepeatMode {
	case "", EndRepeatCount, EndRepeatUntil:
	default:
		return ruleError("end_repeat_mode", "unsupported mode %q", string(r.EndRepeatMode))
	}

	hasCount := r.Count != 0
	hasUntil := r.Until != nil && !r.Until.IsZero()
	switch {
	case hasCount && hasUntil:
		return ruleError("end_repeat_mode", "count and until are both set")
	case !hasCount && !hasUntil:
		return ruleError("end_repeat_mode", "one of count or until is required")
	case r.Count < 0:
		return ruleError("count", "must be positive, got %d", r.Count)
	}

	if r.Frequency != FrequencyDaily {
		if _, err := ParseByDay(r.ByDay); err != nil {
			return err
		}
	}
	return nil
}

// EffectiveInterval is the interval with the default of 1 applied.
func (r Rule) EffectiveInterval() int {
	if r.Interval == nil {
		return 1
	}
	return *r.Interval
}

// String renders the rule in a compact RRULE-like form for logs.
func (r Rule) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "FREQ=%s;INTERVAL=%d", r.Frequency, r.EffectiveInterval())
	if r.ByDay != "" && r.Frequency != FrequencyDaily {
		fmt.Fprintf(&b, ";BYDAY=%s", strings.Join(strings.Fields(strings.ToUpper(r.ByDay)), ","))
	}
	if r.Count > 0 {
		fmt.Fprintf(&b, ";COUNT=%d", r.Count)
	}
	if r.Until != nil {
		fmt.Fprintf(&b, ";UNTIL=%s", r.Until.UTC().Format("20060102T150405Z"))
	}
	return b.String()
}
