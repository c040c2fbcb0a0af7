package view

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"teamcal/internal/model"
)

func dayEvents(day time.Time, n int) []model.VisualEvent {
	var out []model.VisualEvent
	for i := 0; i < n; i++ {
		s := day.Add(time.Duration(8+i) * time.Hour)
		out = append(out, model.VisualEvent{
			ID: fmt.Sprintf("e%d", i), OwnerKey: "a@example.com",
			Start: s, End: s.Add(time.Hour), Category: model.Personal{},
		})
	}
	return out
}

func TestBuild_MonthBudgetSplitsCells(t *testing.T) {
	day := time.Date(2026, 10, 19, 0, 0, 0, 0, time.UTC)
	c := newController(day)
	c.Tracker().Observe(752)

	g := c.Build(dayEvents(day, 6), "e1")

	require.Len(t, g.Cells, 35)
	assert.Equal(t, 5, g.Rows)
	assert.Equal(t, 4, g.Budget)
	require.Len(t, g.Weeks(), 5)

	var cell = g.Cells[0]
	for _, cl := range g.Cells {
		if cl.Date.Equal(day) {
			cell = cl
		}
	}
	assert.Len(t, cell.Inline, 4)
	assert.Equal(t, "+2 more", cell.MoreLabel())
	assert.True(t, cell.Inline[1].IsSelected)
	assert.False(t, cell.Inline[0].IsSelected)
}

func TestBuild_AgendaSkipsEmptyDays(t *testing.T) {
	day := time.Date(2026, 10, 19, 0, 0, 0, 0, time.UTC)
	c := newController(day)
	c.SetView(Agenda)

	events := append(dayEvents(day, 3), dayEvents(day.AddDate(0, 0, 3), 20)...)
	g := c.Build(events, "")

	require.Len(t, g.Cells, 2)
	assert.Empty(t, g.Cells[1].Overflow)
	assert.Len(t, g.Cells[1].Inline, 20)
}

func TestBuild_DayViewFixedBudget(t *testing.T) {
	day := time.Date(2026, 10, 19, 0, 0, 0, 0, time.UTC)
	c := NewController(day, Options{Location: time.UTC, Policy: Policy{Week: 3, Day: 2, Agenda: 10}})
	c.SetView(Day)

	g := c.Build(dayEvents(day, 5), "")
	require.Len(t, g.Cells, 1)
	assert.Len(t, g.Cells[0].Inline, 2)
	assert.Equal(t, "+3 more", g.Cells[0].MoreLabel())
}

func TestBudget_AgendaZeroOrLessIsUnlimited(t *testing.T) {
	day := time.Date(2026, 10, 19, 0, 0, 0, 0, time.UTC)
	for _, agenda := range []int{0, -3} {
		c := NewController(day, Options{Location: time.UTC, Policy: Policy{Week: 3, Day: 2, Agenda: agenda}})
		c.SetView(Agenda)
		g := c.Build(dayEvents(day, 12), "")
		require.NotEmpty(t, g.Cells)
		assert.Len(t, g.Cells[0].Inline, 12, "agenda=%d", agenda)
		assert.False(t, g.Cells[0].HasOverflow())
	}

	c := NewController(day, Options{Location: time.UTC, Policy: Policy{Week: 3, Day: 2, Agenda: 10}})
	c.SetView(Agenda)
	assert.Equal(t, 10, c.Budget())
	assert.Equal(t, 0, DefaultPolicy().Agenda)
}
