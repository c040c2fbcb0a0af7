package view

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"teamcal/internal/layout"
	"teamcal/internal/model"
	"teamcal/internal/popover"
)

func newController(anchor time.Time) *Controller {
	return NewController(anchor, Options{Location: time.UTC, WeekStart: time.Monday, InitialHeight: 752})
}

func TestRange_MonthSpansWholeWeeks(t *testing.T) {
	tests := []struct {
		name string
		date time.Time
		days int
	}{
		// Feb 2027 starts on a Monday and has 28 days.
		{name: "four rows", date: time.Date(2027, 2, 10, 0, 0, 0, 0, time.UTC), days: 28},
		{name: "five rows", date: time.Date(2026, 10, 19, 0, 0, 0, 0, time.UTC), days: 35},
		// Aug 2026 starts on a Saturday and has 31 days.
		{name: "six rows", date: time.Date(2026, 8, 5, 0, 0, 0, 0, time.UTC), days: 42},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newController(tt.date)
			r := c.Range()
			assert.Equal(t, tt.days, r.Days())
			assert.Equal(t, time.Monday, r.Start.Weekday())
			assert.Equal(t, layout.RowsForSpan(tt.days), c.Tracker().Rows())
		})
	}
}

func TestRange_SundayWeekStart(t *testing.T) {
	c := NewController(time.Date(2026, 10, 21, 0, 0, 0, 0, time.UTC), Options{Location: time.UTC, WeekStart: time.Sunday})
	c.SetView(Week)
	r := c.Range()
	assert.Equal(t, time.Date(2026, 10, 18, 0, 0, 0, 0, time.UTC), r.Start)
	assert.Equal(t, 7, r.Days())
}

func TestNavigation_FiresRangeChange(t *testing.T) {
	c := newController(time.Date(2026, 1, 31, 10, 0, 0, 0, time.UTC))

	var ranges []Range
	var anchors []time.Time
	c.OnDateRangeChange(func(r Range, a time.Time) {
		ranges = append(ranges, r)
		anchors = append(anchors, a)
	})

	c.Next()
	require.Len(t, ranges, 1)
	assert.Equal(t, time.February, anchors[0].Month())

	c.Prev()
	c.Prev()
	assert.Equal(t, time.December, c.Anchor().Month())
	assert.Equal(t, 2025, c.Anchor().Year())

	c.SetView(Day)
	c.Next()
	assert.Equal(t, 2, c.Anchor().Day())
	assert.Len(t, ranges, 5)

	c.Today(time.Date(2026, 10, 19, 8, 0, 0, 0, time.UTC))
	assert.Equal(t, Day, c.Mode())
	assert.Equal(t, time.Date(2026, 10, 19, 0, 0, 0, 0, time.UTC), c.Range().Start)
}

func TestSetView_Idempotent(t *testing.T) {
	c := newController(time.Date(2026, 10, 19, 0, 0, 0, 0, time.UTC))
	calls := 0
	c.OnDateRangeChange(func(Range, time.Time) { calls++ })

	c.SetView(Month)
	assert.Equal(t, 0, calls)
	c.SetView(Week)
	c.SetView(Week)
	assert.Equal(t, 1, calls)
}

func TestJumpTo_KeepsMode(t *testing.T) {
	c := newController(time.Date(2026, 10, 19, 0, 0, 0, 0, time.UTC))
	c.SetView(Agenda)
	c.JumpTo(time.Date(2027, 3, 1, 0, 0, 0, 0, time.UTC))
	assert.Equal(t, Agenda, c.Mode())
	assert.Equal(t, AgendaDays, c.Range().Days())
}

func TestMonthRowsUpdateBudget(t *testing.T) {
	// Oct 2026: 5 rows. Aug 2026: 6 rows.
	c := newController(time.Date(2026, 10, 19, 0, 0, 0, 0, time.UTC))
	assert.Equal(t, 4, c.Budget())

	c.JumpTo(time.Date(2026, 8, 5, 0, 0, 0, 0, time.UTC))
	assert.Equal(t, 6, c.Tracker().Rows())
	assert.Equal(t, 3, c.Budget())
}

func TestSelect(t *testing.T) {
	c := newController(time.Date(2026, 10, 19, 0, 0, 0, 0, time.UTC))
	var got []model.VisualEvent
	c.OnEventSelect(func(ev model.VisualEvent, _ popover.Rect) { got = append(got, ev) })

	assert.False(t, c.Select(model.VisualEvent{ID: "h", Category: model.Holiday{}}, popover.Rect{}))
	assert.True(t, c.Select(model.VisualEvent{ID: "p", Category: model.Personal{}}, popover.Rect{}))
	require.Len(t, got, 1)
	assert.True(t, got[0].IsSelected)
}

func TestParseMode(t *testing.T) {
	m, err := ParseMode("Agenda")
	require.NoError(t, err)
	assert.Equal(t, Agenda, m)
	_, err = ParseMode("year")
	assert.Error(t, err)
}
