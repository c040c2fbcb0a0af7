// Package view owns the active time window and view mode, and turns
// normalized events into a resolved grid for the rendering surfaces.
package view

import (
	"fmt"
	"strings"
	"time"

	"teamcal/internal/layout"
	"teamcal/internal/model"
	"teamcal/internal/popover"
)

// Mode is the active view granularity.
type Mode int

const (
	Month Mode = iota
	Week
	Day
	Agenda
)

// AgendaDays is the length of the agenda window.
const AgendaDays = 30

func (m Mode) String() string {
	switch m {
	case Month:
		return "month"
	case Week:
		return "week"
	case Day:
		return "day"
	case Agenda:
		return "agenda"
	default:
		return "unknown"
	}
}

// ParseMode accepts month, week, day and agenda.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "month":
		return Month, nil
	case "week":
		return Week, nil
	case "day":
		return Day, nil
	case "agenda":
		return Agenda, nil
	default:
		return Month, fmt.Errorf("view: unknown mode %q", s)
	}
}

// Range is the visible window [Start, End).
type Range struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Days is the number of civil days in the range.
func (r Range) Days() int {
	n := 0
	for d := r.Start; d.Before(r.End); d = d.AddDate(0, 0, 1) {
		n++
	}
	return n
}

// Policy gives the fixed inline budgets of the non-month views. An agenda
// budget of zero or less never overflows.
type Policy struct {
	Week   int `yaml:"week" json:"week" koanf:"week"`
	Day    int `yaml:"day" json:"day" koanf:"day"`
	Agenda int `yaml:"agenda" json:"agenda" koanf:"agenda"`
}

// DefaultPolicy keeps agenda unbounded.
func DefaultPolicy() Policy {
	return Policy{Week: 5, Day: 12, Agenda: 0}
}

// Options configure a Controller.
type Options struct {
	Location  *time.Location
	WeekStart time.Weekday
	Policy    Policy
	Metrics   layout.Metrics
	// InitialHeight is assumed until the surface reports a measurement.
	InitialHeight float64
}

// Controller holds the anchor date and mode and notifies listeners when
// the visible range changes.
type Controller struct {
	loc       *time.Location
	weekStart time.Weekday
	policy    Policy
	mode      Mode
	anchor    time.Time
	tracker   *layout.Tracker

	onRangeChange []func(Range, time.Time)
	onEventSelect []func(model.VisualEvent, popover.Rect)
}

// NewController starts in month view at anchor.
func NewController(anchor time.Time, opts Options) *Controller {
	loc := opts.Location
	if loc == nil {
		loc = time.Local
	}
	if opts.Policy == (Policy{}) {
		opts.Policy = DefaultPolicy()
	}
	if opts.Metrics == (layout.Metrics{}) {
		opts.Metrics = layout.DefaultMetrics()
	}
	c := &Controller{
		loc:       loc,
		weekStart: opts.WeekStart,
		policy:    opts.Policy,
		mode:      Month,
		anchor:    anchor.In(loc),
	}
	c.tracker = layout.NewTracker(opts.Metrics, opts.InitialHeight, layout.RowsForSpan(c.Range().Days()))
	return c
}

// OnDateRangeChange registers fn for every visible-range change.
func (c *Controller) OnDateRangeChange(fn func(r Range, anchor time.Time)) {
	c.onRangeChange = append(c.onRangeChange, fn)
}

// OnEventSelect registers fn for activated non-holiday events.
func (c *Controller) OnEventSelect(fn func(ev model.VisualEvent, rect popover.Rect)) {
	c.onEventSelect = append(c.onEventSelect, fn)
}

func (c *Controller) Mode() Mode { return c.mode }

func (c *Controller) Anchor() time.Time { return c.anchor }

func (c *Controller) Location() *time.Location { return c.loc }

// Tracker exposes the month budget tracker so surfaces can report resizes.
func (c *Controller) Tracker() *layout.Tracker { return c.tracker }

// SetView switches mode. Requesting the active mode does nothing.
func (c *Controller) SetView(m Mode) {
	if m == c.mode {
		return
	}
	c.mode = m
	c.changed()
}

// JumpTo moves the anchor to date without changing the mode.
func (c *Controller) JumpTo(date time.Time) {
	c.anchor = date.In(c.loc)
	c.changed()
}

// Today moves the anchor to now.
func (c *Controller) Today(now time.Time) {
	c.JumpTo(now)
}

// Next advances by one unit of the active mode.
func (c *Controller) Next() { c.step(1) }

// Prev goes back by one unit of the active mode.
func (c *Controller) Prev() { c.step(-1) }

func (c *Controller) step(dir int) {
	switch c.mode {
	case Month:
		// Stay on day 1 so that Jan 31 + 1 month lands in February.
		first := time.Date(c.anchor.Year(), c.anchor.Month(), 1, c.anchor.Hour(), c.anchor.Minute(), 0, 0, c.loc)
		c.anchor = first.AddDate(0, dir, 0)
	case Week:
		c.anchor = c.anchor.AddDate(0, 0, 7*dir)
	case Day:
		c.anchor = c.anchor.AddDate(0, 0, dir)
	case Agenda:
		c.anchor = c.anchor.AddDate(0, 0, AgendaDays*dir)
	}
	c.changed()
}

func (c *Controller) changed() {
	r := c.Range()
	if c.mode == Month {
		c.tracker.SetRows(layout.RowsForSpan(r.Days()))
	}
	for _, fn := range c.onRangeChange {
		fn(r, c.anchor)
	}
}

// Range is the visible window for the current mode and anchor.
func (c *Controller) Range() Range {
	day := time.Date(c.anchor.Year(), c.anchor.Month(), c.anchor.Day(), 0, 0, 0, 0, c.loc)
	switch c.mode {
	case Week:
		start := c.startOfWeek(day)
		return Range{Start: start, End: start.AddDate(0, 0, 7)}
	case Day:
		return Range{Start: day, End: day.AddDate(0, 0, 1)}
	case Agenda:
		return Range{Start: day, End: day.AddDate(0, 0, AgendaDays)}
	default:
		first := time.Date(day.Year(), day.Month(), 1, 0, 0, 0, 0, c.loc)
		last := first.AddDate(0, 1, -1)
		start := c.startOfWeek(first)
		end := c.startOfWeek(last).AddDate(0, 0, 7)
		return Range{Start: start, End: end}
	}
}

func (c *Controller) startOfWeek(day time.Time) time.Time {
	offset := (int(day.Weekday()) - int(c.weekStart) + 7) % 7
	return day.AddDate(0, 0, -offset)
}

// Budget is the inline budget of the active mode.
func (c *Controller) Budget() int {
	switch c.mode {
	case Week:
		return atLeastOne(c.policy.Week)
	case Day:
		return atLeastOne(c.policy.Day)
	case Agenda:
		if c.policy.Agenda <= 0 {
			return layout.Unlimited
		}
		return c.policy.Agenda
	default:
		return c.tracker.Budget()
	}
}

func atLeastOne(n int) int {
	if n < 1 {
		return 1
	}
	return n
}

// Select fires the event-select callbacks for interactive events and marks
// the event selected. Holidays report false.
func (c *Controller) Select(ev model.VisualEvent, rect popover.Rect) bool {
	if !ev.Interactive() {
		return false
	}
	ev.IsSelected = true
	for _, fn := range c.onEventSelect {
		fn(ev, rect)
	}
	return true
}
