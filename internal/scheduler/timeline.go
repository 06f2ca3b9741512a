package scheduler

import (
	"sort"
	"time"
)

// Occurrence is the dated view of one member of a recurrence group.
type Occurrence struct {
	ID    string
	Start time.Time
	End   time.Time
}

// Timeline splits a recurrence group around one selected occurrence.
//
// Future holds the selected occurrence and every later sibling. Historic holds
// the earlier siblings that finished before the current day began. Past holds
// the remaining earlier siblings. The buckets are disjoint and each is ordered
// by start time.
type Timeline struct {
	Historic []Occurrence
	Past     []Occurrence
	Future   []Occurrence
}

// All returns the union of the three buckets in chronological order.
func (t Timeline) All() []Occurrence {
	all := make([]Occurrence, 0, len(t.Historic)+len(t.Past)+len(t.Future))
	all = append(all, t.Historic...)
	all = append(all, t.Past...)
	all = append(all, t.Future...)
	sortOccurrences(all)
	return all
}

// PartitionTimeline assigns every sibling to exactly one bucket relative to
// selected and now. The day boundary is local midnight of now in loc.
func PartitionTimeline(siblings []Occurrence, selected Occurrence, now time.Time, loc *time.Location) Timeline {
	if loc == nil {
		loc = time.UTC
	}
	local := now.In(loc)
	dayStart := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)

	var timeline Timeline
	seen := make(map[string]struct{}, len(siblings))
	for _, occ := range siblings {
		if _, dup := seen[occ.ID]; dup {
			continue
		}
		seen[occ.ID] = struct{}{}

		switch {
		case occ.ID == selected.ID || !occ.Start.Before(selected.Start):
			timeline.Future = append(timeline.Future, occ)
		case occ.End.Before(dayStart):
			timeline.Historic = append(timeline.Historic, occ)
		default:
			timeline.Past = append(timeline.Past, occ)
		}
	}

	sortOccurrences(timeline.Historic)
	sortOccurrences(timeline.Past)
	sortOccurrences(timeline.Future)
	return timeline
}

func sortOccurrences(occurrences []Occurrence) {
	sort.SliceStable(occurrences, func(i, j int) bool {
		if occurrences[i].Start.Equal(occurrences[j].Start) {
			return occurrences[i].ID < occurrences[j].ID
		}
		return occurrences[i].Start.Before(occurrences[j].Start)
	})
}
