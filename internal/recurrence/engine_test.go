package recurrence

import (
	"errors"
	"testing"
	"time"
	_ "time/tzdata"
)

func mustDates(t *testing.T, engine *Engine, start time.Time, rule Rule, opts GenerateOptions) []time.Time {
	t.Helper()
	dates, err := engine.Dates(start, rule, opts)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return dates
}

func assertDates(t *testing.T, got []time.Time, want ...time.Time) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("expected %d dates, got %d: %v", len(want), len(got), got)
	}
	for i := range want {
		if !got[i].Equal(want[i]) {
			t.Fatalf("date %d: expected %s, got %s", i, want[i], got[i])
		}
	}
}

func TestEngine_Generate(t *testing.T) {
	t.Parallel()

	engine := NewEngine(0)
	monday := time.Date(2024, time.March, 4, 9, 0, 0, 0, time.UTC)

	t.Run("daily ignores by-day filter", func(t *testing.T) {
		t.Parallel()

		wednesday := time.Date(2024, time.March, 6, 9, 0, 0, 0, time.UTC)
		got := mustDates(t, engine, wednesday, Rule{Frequency: FrequencyDaily, ByDay: "MO", Count: 5}, GenerateOptions{})
		assertDates(t, got,
			wednesday,
			wednesday.AddDate(0, 0, 1),
			wednesday.AddDate(0, 0, 2),
			wednesday.AddDate(0, 0, 3),
			wednesday.AddDate(0, 0, 4),
		)
	})

	t.Run("daily ignores unknown by-day tokens", func(t *testing.T) {
		t.Parallel()

		got := mustDates(t, engine, monday, Rule{Frequency: FrequencyDaily, ByDay: "XX", Count: 2}, GenerateOptions{})
		if len(got) != 2 {
			t.Fatalf("expected 2 dates, got %d", len(got))
		}
	})

	t.Run("weekly honours weekday set", func(t *testing.T) {
		t.Parallel()

		got := mustDates(t, engine, monday, Rule{Frequency: FrequencyWeekly, ByDay: "MO WE FR", Count: 4}, GenerateOptions{})
		assertDates(t, got,
			monday,
			monday.AddDate(0, 0, 2),
			monday.AddDate(0, 0, 4),
			monday.AddDate(0, 0, 7),
		)
	})

	t.Run("weekly without by-day repeats on start weekday with interval", func(t *testing.T) {
		t.Parallel()

		got := mustDates(t, engine, monday, Rule{Frequency: FrequencyWeekly, Interval: Every(2), Count: 3}, GenerateOptions{})
		assertDates(t, got, monday, monday.AddDate(0, 0, 14), monday.AddDate(0, 0, 28))
	})

	t.Run("monthly first friday", func(t *testing.T) {
		t.Parallel()

		start := time.Date(2024, time.January, 1, 9, 0, 0, 0, time.UTC)
		got := mustDates(t, engine, start, Rule{Frequency: FrequencyMonthly, ByDay: "1FR", Count: 3}, GenerateOptions{})
		assertDates(t, got,
			time.Date(2024, time.January, 5, 9, 0, 0, 0, time.UTC),
			time.Date(2024, time.February, 2, 9, 0, 0, 0, time.UTC),
			time.Date(2024, time.March, 1, 9, 0, 0, 0, time.UTC),
		)
		for _, d := range got {
			if d.Weekday() != time.Friday || d.Day() > 7 {
				t.Fatalf("expected a first friday, got %s", d)
			}
		}
	})

	t.Run("monthly second to last monday", func(t *testing.T) {
		t.Parallel()

		start := time.Date(2024, time.January, 1, 9, 0, 0, 0, time.UTC)
		got := mustDates(t, engine, start, Rule{Frequency: FrequencyMonthly, ByDay: "-2MO", Count: 3}, GenerateOptions{})
		assertDates(t, got,
			time.Date(2024, time.January, 22, 9, 0, 0, 0, time.UTC),
			time.Date(2024, time.February, 19, 9, 0, 0, 0, time.UTC),
			time.Date(2024, time.March, 18, 9, 0, 0, 0, time.UTC),
		)
	})

	t.Run("until is inclusive", func(t *testing.T) {
		t.Parallel()

		until := monday.AddDate(0, 0, 4)
		got := mustDates(t, engine, monday, Rule{Frequency: FrequencyDaily, EndRepeatMode: EndRepeatUntil, Until: &until}, GenerateOptions{})
		if len(got) != 5 {
			t.Fatalf("expected 5 dates, got %d", len(got))
		}
		if !got[4].Equal(until) {
			t.Fatalf("expected last date %s, got %s", until, got[4])
		}
	})

	t.Run("truncates to engine ceiling", func(t *testing.T) {
		t.Parallel()

		small := NewEngine(10)
		got := mustDates(t, small, monday, Rule{Frequency: FrequencyDaily, Count: 50}, GenerateOptions{})
		if len(got) != 10 {
			t.Fatalf("expected 10 dates, got %d", len(got))
		}
	})

	t.Run("per call max count lowers ceiling", func(t *testing.T) {
		t.Parallel()

		got := mustDates(t, engine, monday, Rule{Frequency: FrequencyDaily, Count: 50}, GenerateOptions{MaxCount: 7})
		if len(got) != 7 {
			t.Fatalf("expected 7 dates, got %d", len(got))
		}
	})

	t.Run("timezone keeps wall clock across dst", func(t *testing.T) {
		t.Parallel()

		loc, err := time.LoadLocation("America/New_York")
		if err != nil {
			t.Fatalf("load location: %v", err)
		}
		start := time.Date(2024, time.March, 8, 14, 0, 0, 0, time.UTC)
		got := mustDates(t, engine, start, Rule{Frequency: FrequencyDaily, Count: 3}, GenerateOptions{Timezone: loc})
		assertDates(t, got,
			time.Date(2024, time.March, 8, 14, 0, 0, 0, time.UTC),
			time.Date(2024, time.March, 9, 14, 0, 0, 0, time.UTC),
			time.Date(2024, time.March, 10, 13, 0, 0, 0, time.UTC),
		)
		for _, d := range got {
			if d.Location() != time.UTC {
				t.Fatalf("expected UTC result, got %s", d.Location())
			}
			if d.In(loc).Hour() != 9 {
				t.Fatalf("expected 09:00 local, got %s", d.In(loc))
			}
		}
	})

	t.Run("date only truncates to midnight", func(t *testing.T) {
		t.Parallel()

		got := mustDates(t, engine, monday, Rule{Frequency: FrequencyDaily, Count: 2}, GenerateOptions{DateOnly: true})
		assertDates(t, got,
			time.Date(2024, time.March, 4, 0, 0, 0, 0, time.UTC),
			time.Date(2024, time.March, 5, 0, 0, 0, 0, time.UTC),
		)
	})

	t.Run("sequence restarts on every range", func(t *testing.T) {
		t.Parallel()

		seq, err := engine.Generate(monday, Rule{Frequency: FrequencyWeekly, Count: 3}, GenerateOptions{})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		var first, second []time.Time
		for d := range seq {
			first = append(first, d)
		}
		for d := range seq {
			second = append(second, d)
		}
		assertDates(t, second, first...)
	})

	t.Run("stops early when consumer breaks", func(t *testing.T) {
		t.Parallel()

		seq, err := engine.Generate(monday, Rule{Frequency: FrequencyDaily, Count: 100}, GenerateOptions{})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		seen := 0
		for range seq {
			seen++
			if seen == 3 {
				break
			}
		}
		if seen != 3 {
			t.Fatalf("expected 3 dates, got %d", seen)
		}
	})
}

func TestEngine_GenerateStrictlyIncreasingAndBounded(t *testing.T) {
	t.Parallel()

	engine := NewEngine(25)
	start := time.Date(2023, time.December, 31, 18, 30, 0, 0, time.UTC)
	rules := []Rule{
		{Frequency: FrequencyDaily, Interval: Every(3), Count: 40},
		{Frequency: FrequencyWeekly, ByDay: "TU TH SA", Count: 40},
		{Frequency: FrequencyMonthly, ByDay: "-1SU", Count: 40},
		{Frequency: FrequencyYearly, Count: 40},
	}

	for _, rule := range rules {
		rule := rule
		t.Run(rule.String(), func(t *testing.T) {
			t.Parallel()

			got := mustDates(t, engine, start, rule, GenerateOptions{})
			if len(got) > engine.MaxOccurrences() {
				t.Fatalf("expected at most %d dates, got %d", engine.MaxOccurrences(), len(got))
			}
			for i := 1; i < len(got); i++ {
				if !got[i].After(got[i-1]) {
					t.Fatalf("dates not strictly increasing at %d: %s then %s", i, got[i-1], got[i])
				}
			}
		})
	}
}

func TestEngine_GenerateRejectsInvalidRules(t *testing.T) {
	t.Parallel()

	engine := NewEngine(0)
	start := time.Date(2024, time.March, 4, 9, 0, 0, 0, time.UTC)
	until := start.AddDate(0, 1, 0)

	tests := []struct {
		name  string
		start time.Time
		rule  Rule
		field string
	}{
		{name: "missing start", rule: Rule{Frequency: FrequencyDaily, Count: 2}, field: "start"},
		{name: "negative interval", start: start, rule: Rule{Frequency: FrequencyDaily, Interval: Every(-1), Count: 2}, field: "interval"},
		{name: "zero interval", start: start, rule: Rule{Frequency: FrequencyDaily, Interval: Every(0), Count: 2}, field: "interval"},
		{name: "unknown frequency", start: start, rule: Rule{Frequency: "HOURLY", Count: 2}, field: "frequency"},
		{name: "unknown weekday", start: start, rule: Rule{Frequency: FrequencyWeekly, ByDay: "MO XX", Count: 2}, field: "byday"},
		{name: "count and until", start: start, rule: Rule{Frequency: FrequencyDaily, Count: 2, Until: &until}, field: "end_repeat_mode"},
		{name: "neither count nor until", start: start, rule: Rule{Frequency: FrequencyDaily}, field: "end_repeat_mode"},
		{name: "negative count", start: start, rule: Rule{Frequency: FrequencyDaily, Count: -3}, field: "count"},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			_, err := engine.Generate(tc.start, tc.rule, GenerateOptions{})
			if !errors.Is(err, ErrInvalidRule) {
				t.Fatalf("expected ErrInvalidRule, got %v", err)
			}
			var ruleErr *RuleError
			if !errors.As(err, &ruleErr) {
				t.Fatalf("expected *RuleError, got %T", err)
			}
			if ruleErr.Field != tc.field {
				t.Fatalf("expected field %q, got %q", tc.field, ruleErr.Field)
			}
		})
	}
}
