// Package layout decides which events of a day cell render inline and which
// collapse behind a "+N more" indicator.
package layout

import (
	"cmp"
	"slices"
	"time"

	"teamcal/internal/model"
)

// DayBucket is the ordered set of events intersecting one civil date.
type DayBucket struct {
	Date   time.Time
	Events []model.VisualEvent
}

// Days returns n consecutive civil dates (midnight in loc) starting at the
// date of from.
func Days(from time.Time, n int, loc *time.Location) []time.Time {
	from = from.In(loc)
	first := time.Date(from.Year(), from.Month(), from.Day(), 0, 0, 0, 0, loc)
	out := make([]time.Time, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, first.AddDate(0, 0, i))
	}
	return out
}

// civil maps a date onto a zone-free key.
func civil(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// span returns the first and last civil dates an event occupies. All-day
// events use their own zone with an exclusive end; timed events use loc.
func span(ev model.VisualEvent, loc *time.Location) (time.Time, time.Time) {
	if ev.AllDay {
		first := civil(ev.Start)
		endDay := civil(ev.End)
		endMidnight := time.Date(ev.End.Year(), ev.End.Month(), ev.End.Day(), 0, 0, 0, 0, ev.End.Location())
		if !ev.End.Equal(endMidnight) {
			endDay = endDay.AddDate(0, 0, 1)
		}
		last := endDay.AddDate(0, 0, -1)
		if last.Before(first) {
			last = first
		}
		return first, last
	}
	first := civil(ev.Start.In(loc))
	if !ev.End.After(ev.Start) {
		return first, first
	}
	return first, civil(ev.End.Add(-time.Nanosecond).In(loc))
}

// Buckets assigns every event to each visible day it intersects and orders
// each bucket with Compare.
func Buckets(events []model.VisualEvent, days []time.Time, loc *time.Location) []DayBucket {
	buckets := make([]DayBucket, len(days))
	index := make(map[time.Time]int, len(days))
	for i, d := range days {
		buckets[i].Date = d
		index[civil(d.In(loc))] = i
	}
	if len(days) == 0 {
		return buckets
	}
	rangeFirst := civil(days[0].In(loc))
	rangeLast := civil(days[len(days)-1].In(loc))

	for _, ev := range events {
		first, last := span(ev, loc)
		if last.Before(rangeFirst) || first.After(rangeLast) {
			continue
		}
		if first.Before(rangeFirst) {
			first = rangeFirst
		}
		if last.After(rangeLast) {
			last = rangeLast
		}
		for d := first; !d.After(last); d = d.AddDate(0, 0, 1) {
			if i, ok := index[d]; ok {
				buckets[i].Events = append(buckets[i].Events, ev)
			}
		}
	}

	for i := range buckets {
		slices.SortStableFunc(buckets[i].Events, Compare)
	}
	return buckets
}

// Compare orders events within a day: all-day and holiday events first, then
// start ascending, then owner key, then id.
func Compare(a, b model.VisualEvent) int {
	af, bf := a.SortsFirst(), b.SortsFirst()
	if af != bf {
		if af {
			return -1
		}
		return 1
	}
	if c := a.Start.Compare(b.Start); c != 0 {
		return c
	}
	if c := cmp.Compare(a.OwnerKey, b.OwnerKey); c != 0 {
		return c
	}
	return cmp.Compare(a.ID, b.ID)
}
