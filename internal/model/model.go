package model

import "time"

// DefaultOwnerColor is used for owners that have neither a configured nor an
// assigned palette color.
const DefaultOwnerColor = "#3174ad"

// Owner keys for the non-person identity groups.
const (
	HolidayOwnerKey = "holiday"
	OnCallOwnerKey  = "oncall"
)

// ShowAs is the free/busy status reported by the calendar provider.
type ShowAs string

const (
	ShowAsFree             ShowAs = "free"
	ShowAsTentative        ShowAs = "tentative"
	ShowAsBusy             ShowAs = "busy"
	ShowAsOOF              ShowAs = "oof"
	ShowAsWorkingElsewhere ShowAs = "workingElsewhere"
	ShowAsUnknown          ShowAs = "unknown"
)

// ParseShowAs maps a provider string onto ShowAs, falling back to unknown.
func ParseShowAs(s string) ShowAs {
	switch ShowAs(s) {
	case ShowAsFree, ShowAsTentative, ShowAsBusy, ShowAsOOF, ShowAsWorkingElsewhere:
		return ShowAs(s)
	case "":
		return ShowAsBusy
	default:
		return ShowAsUnknown
	}
}

// Kind tells the normalizer which category a source record belongs to.
type Kind int

const (
	KindPersonal Kind = iota
	KindHoliday
	KindOnCall
)

func (k Kind) String() string {
	switch k {
	case KindPersonal:
		return "personal"
	case KindHoliday:
		return "holiday"
	case KindOnCall:
		return "oncall"
	default:
		return "unknown"
	}
}

// DateTime is a provider timestamp as delivered: a wall-clock string and the
// IANA zone it was declared in. Value may be RFC3339, a zone-less
// "2006-01-02T15:04:05" or a civil date "2006-01-02".
type DateTime struct {
	Value    string `json:"dateTime"`
	TimeZone string `json:"timeZone"`
}

// DateTimeOf renders t as a DateTime in t's own location.
func DateTimeOf(t time.Time) DateTime {
	return DateTime{Value: t.Format("2006-01-02T15:04:05"), TimeZone: t.Location().String()}
}

// SourceEvent is a raw record from the data layer, before normalization.
type SourceEvent struct {
	ID         string   `json:"id"`
	Subject    string   `json:"subject"`
	Start      DateTime `json:"start"`
	End        DateTime `json:"end"`
	Location   string   `json:"location,omitempty"`
	ShowAs     ShowAs   `json:"showAs"`
	IsAllDay   bool     `json:"isAllDay"`
	OwnerEmail string   `json:"userEmail"`
	OwnerName  string   `json:"userName"`
	Kind       Kind     `json:"-"`
}

// Owner is a person whose calendar is aggregated.
type Owner struct {
	Email       string `json:"email"`
	DisplayName string `json:"displayName"`
	Color       string `json:"color"`
}

// Colors are the derived chip colors for a VisualEvent.
type Colors struct {
	Background string `json:"background"`
	Border     string `json:"border"`
	Text       string `json:"text"`
}

// VisualEvent is the normalized rendering unit. It is derived on every
// rebuild and never retained across rebuilds.
type VisualEvent struct {
	ID       string    `json:"id"`
	Title    string    `json:"title"`
	Start    time.Time `json:"start"`
	End      time.Time `json:"end"`
	AllDay   bool      `json:"allDay"`
	OwnerKey string    `json:"ownerKey"`
	Category Category  `json:"-"`
	Location string    `json:"location,omitempty"`

	// IsPast is computed once at normalization time.
	IsPast     bool   `json:"isPast"`
	IsSelected bool   `json:"isSelected"`
	Colors     Colors `json:"colors"`
}

// Interactive reports whether the event may open a detail popover.
func (e VisualEvent) Interactive() bool {
	return IsInteractive(e.Category)
}

// SortsFirst reports whether the event belongs to the all-day band of a day
// cell (all-day events and holidays).
func (e VisualEvent) SortsFirst() bool {
	if e.AllDay {
		return true
	}
	_, ok := e.Category.(Holiday)
	return ok
}
