package recurrence

import (
	"errors"
	"testing"
	"time"
)

func TestNormalizeEndMode(t *testing.T) {
	t.Parallel()

	until := time.Date(2024, time.June, 1, 0, 0, 0, 0, time.UTC)

	t.Run("count mode clears until", func(t *testing.T) {
		t.Parallel()

		rule := NormalizeEndMode(Rule{Frequency: FrequencyDaily, EndRepeatMode: EndRepeatCount, Count: 3, Until: &until})
		if rule.Until != nil {
			t.Fatalf("expected until cleared, got %v", rule.Until)
		}
		if rule.Count != 3 {
			t.Fatalf("expected count 3, got %d", rule.Count)
		}
		if err := rule.Validate(); err != nil {
			t.Fatalf("expected normalized rule to validate, got %v", err)
		}
	})

	t.Run("until mode clears count", func(t *testing.T) {
		t.Parallel()

		rule := NormalizeEndMode(Rule{Frequency: FrequencyDaily, EndRepeatMode: EndRepeatUntil, Count: 3, Until: &until})
		if rule.Count != 0 {
			t.Fatalf("expected count cleared, got %d", rule.Count)
		}
		if rule.Until == nil || !rule.Until.Equal(until) {
			t.Fatalf("expected until kept, got %v", rule.Until)
		}
	})

	t.Run("infers mode from count", func(t *testing.T) {
		t.Parallel()

		rule := NormalizeEndMode(Rule{Frequency: FrequencyWeekly, Count: 3})
		if rule.EndRepeatMode != EndRepeatCount {
			t.Fatalf("expected count mode, got %q", rule.EndRepeatMode)
		}
	})

	t.Run("infers mode from until", func(t *testing.T) {
		t.Parallel()

		rule := NormalizeEndMode(Rule{Frequency: FrequencyWeekly, Until: &until})
		if rule.EndRepeatMode != EndRepeatUntil {
			t.Fatalf("expected until mode, got %q", rule.EndRepeatMode)
		}
		if rule.Until == nil || !rule.Until.Equal(until) {
			t.Fatalf("expected until kept, got %v", rule.Until)
		}
	})

	t.Run("leaves ambiguous rule for validation", func(t *testing.T) {
		t.Parallel()

		rule := NormalizeEndMode(Rule{Frequency: FrequencyDaily})
		if rule.EndRepeatMode != "" {
			t.Fatalf("expected no mode, got %q", rule.EndRepeatMode)
		}
		if err := rule.Validate(); !errors.Is(err, ErrInvalidRule) {
			t.Fatalf("expected ErrInvalidRule, got %v", err)
		}
	})

	t.Run("idempotent", func(t *testing.T) {
		t.Parallel()

		once := NormalizeEndMode(Rule{Frequency: FrequencyWeekly, EndRepeatMode: EndRepeatUntil, Count: 9, Until: &until})
		twice := NormalizeEndMode(once)
		if twice.Count != once.Count || twice.Until != once.Until {
			t.Fatalf("expected %+v, got %+v", once, twice)
		}
	})

	t.Run("does not mutate input", func(t *testing.T) {
		t.Parallel()

		in := Rule{Frequency: FrequencyDaily, EndRepeatMode: EndRepeatCount, Count: 3, Until: &until}
		_ = NormalizeEndMode(in)
		if in.Until == nil {
			t.Fatal("expected input rule untouched")
		}
	})
}

func TestParseByDay(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		input   string
		want    int
		wantErr bool
	}{
		{name: "empty", input: "", want: 0},
		{name: "weekday set", input: "MO WE FR", want: 3},
		{name: "lower case", input: "mo tu", want: 2},
		{name: "duplicates collapse", input: "MO MO", want: 1},
		{name: "ordinal", input: "1FR", want: 1},
		{name: "negative ordinal", input: "-2MO", want: 1},
		{name: "explicit plus ordinal", input: "+3TH", want: 1},
		{name: "ordinal out of range", input: "6FR", wantErr: true},
		{name: "unknown token", input: "MON", wantErr: true},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			got, err := ParseByDay(tc.input)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("expected error for %q", tc.input)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if len(got) != tc.want {
				t.Fatalf("expected %d weekdays, got %d", tc.want, len(got))
			}
		})
	}
}

func TestRuleString(t *testing.T) {
	t.Parallel()

	rule := Rule{Frequency: FrequencyWeekly, Interval: Every(2), ByDay: "mo we", Count: 4}
	if got, want := rule.String(), "FREQ=WEEKLY;INTERVAL=2;BYDAY=MO,WE;COUNT=4"; got != want {
		t.Fatalf("expected %q, got %q", want, got)
	}

	if got, want := (Rule{Frequency: FrequencyDaily, Count: 2}).String(), "FREQ=DAILY;INTERVAL=1;COUNT=2"; got != want {
		t.Fatalf("expected %q, got %q", want, got)
	}
}

func TestRuleValidate_Interval(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		interval *int
		wantErr  bool
	}{
		{name: "omitted", interval: nil},
		{name: "one", interval: Every(1)},
		{name: "three", interval: Every(3)},
		{name: "explicit zero", interval: Every(0), wantErr: true},
		{name: "negative", interval: Every(-2), wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			err := Rule{Frequency: FrequencyDaily, Interval: tt.interval, Count: 2}.Validate()
			if tt.wantErr {
				var ruleErr *RuleError
				if !errors.As(err, &ruleErr) || ruleErr.Field != "interval" {
					t.Fatalf("expected interval RuleError, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}
