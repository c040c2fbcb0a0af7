package ics

import (
	"errors"
	"time"

	"github.com/teambition/rrule-go"

	appLog "teamcal/internal/log"
	"teamcal/internal/model"
)

const defaultMaxOccurrencesPerEvent = 5000

// ExpandConfig controls how recurrence expansion is performed.
type ExpandConfig struct {
	// DisplayLocation is the zone every occurrence is converted to.
	DisplayLocation *time.Location

	// RangeStart and RangeEnd bound the occurrences kept. Events
	// overlapping the window are kept even if they start before it.
	RangeStart time.Time
	RangeEnd   time.Time

	// MaxOccurrencesPerEvent caps runaway rules. Zero means 5000.
	MaxOccurrencesPerEvent int
}

// ExpandResult holds the expanded source events.
type ExpandResult struct {
	Events []model.SourceEvent
	// Truncated lists UIDs that hit MaxOccurrencesPerEvent.
	Truncated []string
}

// Expand turns parsed VEVENTs into concrete occurrences within the window:
// single events, RRULE series with EXDATE removal, RECURRENCE-ID overrides
// and all-day events. Cancelled instances are dropped.
func Expand(events []ParsedEvent, cfg ExpandConfig) (ExpandResult, error) {
	var result ExpandResult

	if cfg.RangeEnd.Before(cfg.RangeStart) {
		return result, errors.New("expand: RangeEnd is before RangeStart")
	}
	if cfg.DisplayLocation == nil {
		cfg.DisplayLocation = time.Local
	}
	if cfg.MaxOccurrencesPerEvent <= 0 {
		cfg.MaxOccurrencesPerEvent = defaultMaxOccurrencesPerEvent
	}

	var order []string
	baseByUID := make(map[string][]ParsedEvent)
	overridesByUID := make(map[string][]ParsedEvent)
	for _, ev := range events {
		if ev.IsOverride && ev.Recurrence != nil {
			overridesByUID[ev.UID] = append(overridesByUID[ev.UID], ev)
			continue
		}
		if _, ok := baseByUID[ev.UID]; !ok {
			order = append(order, ev.UID)
		}
		baseByUID[ev.UID] = append(baseByUID[ev.UID], ev)
	}

	for _, uid := range order {
		ov := overridesByUID[uid]
		truncated := false
		for _, ev := range baseByUID[uid] {
			var occ []model.SourceEvent
			hitCap := false
			if ev.RawRRule == "" {
				occ = expandSingle(ev, ov, cfg)
			} else {
				occ, hitCap = expandRecurring(ev, ov, cfg)
			}
			truncated = truncated || hitCap
			result.Events = append(result.Events, occ...)
		}
		if truncated {
			result.Truncated = append(result.Truncated, uid)
			appLog.Warn("expand: truncated occurrences", "uid", uid, "cap", cfg.MaxOccurrencesPerEvent)
		}
	}
	return result, nil
}

func expandSingle(ev ParsedEvent, overrides []ParsedEvent, cfg ExpandConfig) []model.SourceEvent {
	if o, ok := findOverride(overrides, ev.Start); ok {
		ev = o
	}
	if ev.Cancelled || !overlaps(ev.Start, ev.End, cfg.RangeStart, cfg.RangeEnd) {
		return nil
	}
	return []model.SourceEvent{toSource(ev, ev.UID, ev.Start, ev.End, cfg.DisplayLocation)}
}

func expandRecurring(ev ParsedEvent, overrides []ParsedEvent, cfg ExpandConfig) ([]model.SourceEvent, bool) {
	if ev.Cancelled {
		return nil, false
	}
	r, err := rrule.StrToRRule(ev.RawRRule)
	if err != nil {
		appLog.Warn("expand: bad RRULE", "uid", ev.UID, "rrule", ev.RawRRule, "err", err)
		return nil, false
	}
	r.DTStart(ev.Start)

	var set rrule.Set
	set.RRule(r)
	for _, ex := range ev.ExDates {
		set.ExDate(ex.In(ev.Start.Location()))
	}

	dur := ev.End.Sub(ev.Start)
	from := cfg.RangeStart.Add(-dur).In(ev.Start.Location())
	to := cfg.RangeEnd.In(ev.Start.Location())
	starts := set.Between(from, to, true)

	hitCap := false
	if len(starts) > cfg.MaxOccurrencesPerEvent {
		starts = starts[:cfg.MaxOccurrencesPerEvent]
		hitCap = true
	}

	out := make([]model.SourceEvent, 0, len(starts))
	for _, s := range starts {
		inst := ev
		inst.Start, inst.End = s, s.Add(dur)
		if ev.AllDay {
			day := time.Date(s.Year(), s.Month(), s.Day(), 0, 0, 0, 0, s.Location())
			days := int(dur.Round(24*time.Hour) / (24 * time.Hour))
			if days < 1 {
				days = 1
			}
			inst.Start, inst.End = day, day.AddDate(0, 0, days)
		}
		if o, ok := findOverride(overrides, inst.Start); ok {
			inst = o
		}
		if inst.Cancelled || !overlaps(inst.Start, inst.End, cfg.RangeStart, cfg.RangeEnd) {
			continue
		}
		id := ev.UID + "/" + s.UTC().Format("20060102T150405Z")
		out = append(out, toSource(inst, id, inst.Start, inst.End, cfg.DisplayLocation))
	}
	return out, hitCap
}

// findOverride returns the override whose RECURRENCE-ID equals start.
func findOverride(overrides []ParsedEvent, start time.Time) (ParsedEvent, bool) {
	for _, ov := range overrides {
		if ov.Recurrence != nil && ov.Recurrence.Equal(start) {
			return ov, true
		}
	}
	return ParsedEvent{}, false
}

// toSource converts an occurrence into a personal SourceEvent. All-day
// occurrences keep their civil dates; timed ones move to displayLoc.
func toSource(ev ParsedEvent, id string, start, end time.Time, displayLoc *time.Location) model.SourceEvent {
	if ev.AllDay {
		start = civilIn(start, displayLoc)
		end = civilIn(end, displayLoc)
	} else {
		start, end = start.In(displayLoc), end.In(displayLoc)
	}
	return model.SourceEvent{
		ID:         id,
		Subject:    ev.Summary,
		Start:      model.DateTimeOf(start),
		End:        model.DateTimeOf(end),
		Location:   ev.Location,
		ShowAs:     ev.ShowAs,
		IsAllDay:   ev.AllDay,
		OwnerEmail: ev.Source.Owner,
		OwnerName:  ev.Source.Name,
		Kind:       model.KindPersonal,
	}
}

func civilIn(t time.Time, loc *time.Location) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
}

// overlaps treats zero-length events at the window start as inside.
func overlaps(aStart, aEnd, bStart, bEnd time.Time) bool {
	if !aEnd.After(aStart) {
		return !aStart.Before(bStart) && aStart.Before(bEnd)
	}
	return aStart.Before(bEnd) && aEnd.After(bStart)
}
