// Package normalize turns heterogeneous source records (personal events,
// holidays, on-call shifts) into model.VisualEvent values.
package normalize

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"teamcal/internal/color"
	appLog "teamcal/internal/log"
	"teamcal/internal/model"
)

var (
	// ErrInvalidTime is returned when a record has no parseable start/end or
	// ends before it starts.
	ErrInvalidTime = errors.New("normalize: invalid event time")
)

// Fixed palettes.
const (
	HolidayBackground = "#fde2e2"
	HolidayBorder     = "#f5a3a3"
	HolidayText       = "#9b1c1c"

	// PastText is the translucent gray used for every past event.
	PastText = "rgba(55, 65, 81, 0.55)"

	pastBackgroundRatio = 0.88
	pastBorderRatio     = 0.92
)

// DefaultZone is used when a record declares no zone or an unknown one.
var DefaultZone = "Asia/Taipei"

// Normalize converts one source record. ownerColor is the effective base color
// of the record's identity group (ignored for holidays).
func Normalize(src model.SourceEvent, ownerColor string, now time.Time) (model.VisualEvent, error) {
	start, startDateOnly, err := ParseDateTime(src.Start)
	if err != nil {
		return model.VisualEvent{}, fmt.Errorf("%w: start %q: %v", ErrInvalidTime, src.Start.Value, err)
	}
	end, _, err := ParseDateTime(src.End)
	if err != nil {
		return model.VisualEvent{}, fmt.Errorf("%w: end %q: %v", ErrInvalidTime, src.End.Value, err)
	}
	if end.Before(start) {
		return model.VisualEvent{}, fmt.Errorf("%w: end %s before start %s", ErrInvalidTime, end, start)
	}

	cat := categoryOf(src)
	ev := model.VisualEvent{
		ID:       EventID(cat, ownerKey(src), src.ID),
		Title:    title(src),
		Start:    start,
		End:      end,
		AllDay:   src.IsAllDay || startDateOnly,
		OwnerKey: ownerKey(src),
		Category: cat,
		Location: src.Location,
		IsPast:   end.Before(now),
	}
	ev.Colors = colorsFor(cat, ownerColor, ev.IsPast)
	return ev, nil
}

func categoryOf(src model.SourceEvent) model.Category {
	switch src.Kind {
	case model.KindHoliday:
		return model.Holiday{Region: "TW"}
	case model.KindOnCall:
		return model.OnCall{Email: src.OwnerEmail, DisplayName: src.OwnerName}
	default:
		return model.Personal{Email: src.OwnerEmail, DisplayName: src.OwnerName, ShowAs: model.ParseShowAs(string(src.ShowAs))}
	}
}

func ownerKey(src model.SourceEvent) string {
	switch src.Kind {
	case model.KindHoliday:
		return model.HolidayOwnerKey
	case model.KindOnCall:
		return model.OnCallOwnerKey
	default:
		return strings.ToLower(src.OwnerEmail)
	}
}

func title(src model.SourceEvent) string {
	if strings.TrimSpace(src.Subject) == "" {
		return "(無標題)"
	}
	return src.Subject
}

// EventID joins the category tag, owner key and source id. Each part is
// escaped so no two distinct triples map to the same id.
func EventID(cat model.Category, owner, sourceID string) string {
	return url.PathEscape(model.CategoryName(cat)) + "|" + url.PathEscape(owner) + "|" + url.PathEscape(sourceID)
}

func colorsFor(cat model.Category, ownerColor string, past bool) model.Colors {
	switch cat.(type) {
	case model.Holiday:
		if past {
			return model.Colors{
				Background: color.Lighten(HolidayBackground, 0.5),
				Border:     color.Lighten(HolidayBorder, 0.5),
				Text:       PastText,
			}
		}
		return model.Colors{Background: HolidayBackground, Border: HolidayBorder, Text: HolidayText}
	case model.Personal, model.OnCall:
		base := color.Normalize(ownerColor, model.DefaultOwnerColor)
		if past {
			return model.Colors{
				Background: color.Lighten(base, pastBackgroundRatio),
				Border:     color.Lighten(base, pastBorderRatio),
				Text:       PastText,
			}
		}
		return model.Colors{Background: base, Border: base, Text: color.TextColorFor(base, true)}
	default:
		return model.Colors{Background: model.DefaultOwnerColor, Border: model.DefaultOwnerColor, Text: color.Light}
	}
}

var (
	locMu    sync.Mutex
	locCache = map[string]*time.Location{}
)

func location(name string) *time.Location {
	if name == "" {
		name = DefaultZone
	}
	locMu.Lock()
	defer locMu.Unlock()
	if loc, ok := locCache[name]; ok {
		return loc
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		appLog.Warn("normalize: unknown time zone, using default", "zone", name, "default", DefaultZone)
		loc, err = time.LoadLocation(DefaultZone)
		if err != nil {
			loc = time.UTC
		}
	}
	locCache[name] = loc
	return loc
}

// ParseDateTime parses a provider timestamp. The bool result reports a
// date-only value, which is midnight in the declared zone.
func ParseDateTime(dt model.DateTime) (time.Time, bool, error) {
	v := strings.TrimSpace(dt.Value)
	if v == "" {
		return time.Time{}, false, errors.New("empty value")
	}
	if t, err := time.Parse(time.RFC3339Nano, v); err == nil {
		return t.In(location(dt.TimeZone)), false, nil
	}
	loc := location(dt.TimeZone)
	// Graph-style values carry up to seven fractional digits and no offset.
	for _, layout := range []string{"2006-01-02T15:04:05.999999999", "2006-01-02T15:04:05", "2006-01-02T15:04"} {
		if t, err := time.ParseInLocation(layout, v, loc); err == nil {
			return t, false, nil
		}
	}
	t, err := time.ParseInLocation("2006-01-02", v, loc)
	if err != nil {
		return time.Time{}, false, err
	}
	return t, true, nil
}
