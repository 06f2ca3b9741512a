package recurrence

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/teambition/rrule-go"
)

var ordinalByDay = regexp.MustCompile(`^([+-]?[1-5])(MO|TU|WE|TH|FR|SA|SU)$`)

var weekdayTokens = map[string]rrule.Weekday{
	"MO": rrule.MO,
	"TU": rrule.TU,
	"WE": rrule.WE,
	"TH": rrule.TH,
	"FR": rrule.FR,
	"SA": rrule.SA,
	"SU": rrule.SU,
}

// ParseByDay converts a by-day selector into rrule weekday constraints.
//
// Two forms are accepted. A single ordinal token such as "1FR" or "-2MO"
// selects the Nth (or Nth from last) weekday of the period. Otherwise the
// value is a whitespace separated set of weekday tokens such as "MO WE FR".
// An empty selector yields no constraint.
func ParseByDay(byDay string) ([]rrule.Weekday, error) {
	value := strings.ToUpper(strings.TrimSpace(byDay))
	if value == "" {
		return nil, nil
	}

	if m := ordinalByDay.FindStringSubmatch(value); m != nil {
		n, err := strconv.Atoi(m[1])
		if err != nil {
			return nil, ruleError("byday", "invalid ordinal %q", m[1])
		}
		day := weekdayTokens[m[2]]
		return []rrule.Weekday{day.Nth(n)}, nil
	}

	tokens := strings.Fields(value)
	days := make([]rrule.Weekday, 0, len(tokens))
	seen := make(map[string]struct{}, len(tokens))
	for _, token := range tokens {
		day, ok := weekdayTokens[token]
		if !ok {
			return nil, ruleError("byday", "unrecognized weekday token %q", token)
		}
		if _, dup := seen[token]; dup {
			continue
		}
		seen[token] = struct{}{}
		days = append(days, day)
	}
	return days, nil
}
