package tui

import (
	"context"
	"fmt"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"teamcal/internal/config"
	"teamcal/internal/layout"
	"teamcal/internal/model"
	"teamcal/internal/normalize"
	"teamcal/internal/popover"
	"teamcal/internal/refresh"
)

type fakeSource struct {
	owners []model.Owner
	events []model.SourceEvent
	syncs  int
}

func (f *fakeSource) Snapshot() refresh.Snapshot { return refresh.Snapshot{Owners: f.owners} }

func (f *fakeSource) Events(time.Time, time.Time, []string) []model.SourceEvent { return f.events }

func (f *fakeSource) Sync(context.Context) error {
	f.syncs++
	return nil
}

var now = time.Date(2026, 10, 19, 2, 0, 0, 0, time.UTC)

func newModel(t *testing.T) (*Model, *fakeSource) {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Owners = []config.OwnerConfig{{Email: "alice@example.com", Name: "Alice"}}
	cfg.Normalize()
	loc := cfg.Location()

	src := &fakeSource{owners: []model.Owner{{Email: "alice@example.com", DisplayName: "Alice", Color: "#3174ad"}}}
	for i := 0; i < 7; i++ {
		start := time.Date(2026, 10, 19, 8+i, 0, 0, 0, loc)
		src.events = append(src.events, model.SourceEvent{
			ID:         fmt.Sprintf("m%d", i+1),
			Subject:    fmt.Sprintf("Meeting %d", i+1),
			Start:      model.DateTimeOf(start),
			End:        model.DateTimeOf(start.Add(time.Hour)),
			OwnerEmail: "alice@example.com",
			OwnerName:  "Alice",
			Kind:       model.KindPersonal,
		})
	}
	src.events = append(src.events, model.SourceEvent{
		ID:         "holiday-2026-10-10",
		Subject:    "國慶日",
		Start:      model.DateTime{Value: "2026-10-10", TimeZone: "Asia/Taipei"},
		End:        model.DateTime{Value: "2026-10-11", TimeZone: "Asia/Taipei"},
		IsAllDay:   true,
		OwnerEmail: model.HolidayOwnerKey,
		Kind:       model.KindHoliday,
	})

	m := New(cfg, src, WithClock(func() time.Time { return now }))
	m.Update(tea.WindowSizeMsg{Width: 140, Height: 40})
	return m, src
}

func keyPress(m *Model, s string) tea.Cmd {
	var msg tea.KeyMsg
	switch s {
	case "enter":
		msg = tea.KeyMsg{Type: tea.KeyEnter}
	case "esc":
		msg = tea.KeyMsg{Type: tea.KeyEsc}
	default:
		msg = tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
	}
	_, cmd := m.Update(msg)
	return cmd
}

func TestMetrics_BudgetInLines(t *testing.T) {
	assert.Equal(t, 5, layout.MonthBudget(40, 5, Metrics()))
	assert.Equal(t, 1, layout.MonthBudget(10, 6, Metrics()))
}

func TestView_MonthGrid(t *testing.T) {
	m, _ := newModel(t)

	assert.Equal(t, 5, m.grid.Budget)
	out := m.View()
	assert.Contains(t, out, "October 2026")
	assert.Contains(t, out, "Mon")
	assert.Contains(t, out, "08:00 Meeting 1")
	assert.Contains(t, out, "12:00 Meeting 5")
	assert.Contains(t, out, "+2 more")
	assert.NotContains(t, out, "Meeting 7")
	assert.Equal(t, time.Date(2026, 10, 19, 0, 0, 0, 0, m.ctrl.Location()), m.currentCell().Date)
}

func TestOverflowThenDetail(t *testing.T) {
	m, _ := newModel(t)

	keyPress(m, "o")
	p := m.pop.Current()
	require.NotNil(t, p)
	assert.Equal(t, popover.KindOverflow, p.Kind)
	assert.True(t, p.Settled)
	assert.Contains(t, m.View(), "2 14:00 Meeting 7")

	cmd := keyPress(m, "2")
	require.NotNil(t, cmd, "the detail popover waits for a frame")
	d := m.pop.Current()
	require.NotNil(t, d)
	assert.Equal(t, popover.KindDetail, d.Kind)
	assert.Equal(t, "Meeting 7", d.State.Event.Title)
	assert.False(t, d.Settled)
	require.NotNil(t, d.State.PreviousPosition)
	assert.Equal(t, p.Position.Position, d.Position.Position)

	m.Update(frameMsg{})
	assert.True(t, d.Settled)
	assert.Equal(t, d.Target, d.Position)
	assert.Contains(t, m.View(), "Alice · busy")

	keyPress(m, "esc")
	assert.Nil(t, m.pop.Current())
}

func TestHolidayHasNoDetail(t *testing.T) {
	m, _ := newModel(t)

	keyPress(m, "k")
	keyPress(m, "h")
	keyPress(m, "h")
	require.Equal(t, 10, m.currentCell().Date.Day())

	keyPress(m, "enter")
	assert.Equal(t, 0, m.chip)
	keyPress(m, "enter")
	assert.Nil(t, m.pop.Current())
	assert.Contains(t, m.status, "has no details")
}

func TestClickOutsideClosesPopover(t *testing.T) {
	m, _ := newModel(t)
	keyPress(m, "o")
	require.NotNil(t, m.pop.Current())

	m.Update(tea.MouseMsg{X: 139, Y: 0, Action: tea.MouseActionPress, Button: tea.MouseButtonLeft})
	assert.Nil(t, m.pop.Current())
}

func TestNavigation(t *testing.T) {
	m, _ := newModel(t)

	keyPress(m, "n")
	assert.Contains(t, m.View(), "November 2026")
	assert.Equal(t, 1, m.currentCell().Date.Day())

	keyPress(m, "t")
	keyPress(m, "w")
	assert.Len(t, m.grid.Cells, 7)
	out := m.View()
	assert.Contains(t, out, "19 Oct - 25 Oct 2026")
	assert.Contains(t, out, "+2 more")

	keyPress(m, "a")
	assert.Contains(t, m.View(), "Mon 19 Oct")
}

func TestSyncKey(t *testing.T) {
	m, src := newModel(t)
	cmd := keyPress(m, "r")
	require.NotNil(t, cmd)
	m.Update(cmd())
	assert.Equal(t, 1, src.syncs)
	assert.Equal(t, "synced", m.status)
}

func TestRenderChip_PastEventHasForeground(t *testing.T) {
	prev := lipgloss.ColorProfile()
	lipgloss.SetColorProfile(termenv.TrueColor)
	t.Cleanup(func() { lipgloss.SetColorProfile(prev) })

	m, _ := newModel(t)
	cell := m.currentCell()
	require.NotEmpty(t, cell.Inline)
	past := cell.Inline[0]
	require.True(t, past.IsPast, "08:00 Taipei has ended at 10:00")
	assert.Equal(t, normalize.PastText, past.Colors.Text)

	out := m.renderChip(past, 20, false)
	assert.Contains(t, out, "38;2;", "text color")
	assert.Contains(t, out, "48;2;", "background color")
}

func TestSync_ClosesPopoverOpenedBeforeIt(t *testing.T) {
	m, _ := newModel(t)

	keyPress(m, "o")
	require.NotNil(t, m.pop.Current())
	cmd := keyPress(m, "r")
	require.NotNil(t, cmd)
	m.Update(cmd())
	assert.Nil(t, m.pop.Current())

	cmd = keyPress(m, "r")
	require.NotNil(t, cmd)
	keyPress(m, "o")
	opened := m.pop.Current()
	require.NotNil(t, opened)
	m.Update(cmd())
	assert.Same(t, opened, m.pop.Current(), "a popover opened during the sync stays")
}

func TestOverlay(t *testing.T) {
	assert.Equal(t, "abcdef\nghXYkl", overlay("abcdef\nghijkl", "XY", 2, 1))
	assert.Equal(t, "ab  XY", overlay("ab", "XY", 4, 0))
	assert.Equal(t, "abc", overlay("abc", "XY", 0, 5))
}
