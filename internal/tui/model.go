// Package tui is a terminal surface for the team calendar. It drives the
// same view controller and popover manager as the web UI, with terminal
// lines and columns as the unit of measure.
package tui

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"

	"teamcal/internal/config"
	"teamcal/internal/layout"
	appLog "teamcal/internal/log"
	"teamcal/internal/model"
	"teamcal/internal/normalize"
	"teamcal/internal/popover"
	"teamcal/internal/prefs"
	"teamcal/internal/refresh"
	"teamcal/internal/view"
)

// Source provides the events to display. *refresh.Service satisfies it.
type Source interface {
	Snapshot() refresh.Snapshot
	Events(from, to time.Time, users []string) []model.SourceEvent
}

// Syncer is implemented by sources that can refresh on demand.
type Syncer interface {
	Sync(ctx context.Context) error
}

// Screen lines outside the grid: title, weekday labels, status, help.
const (
	chromeLines = 4
	gridTop     = 2
)

// Metrics is the month budget geometry in terminal lines.
func Metrics() layout.Metrics {
	return layout.Metrics{
		ChromeOffset:  chromeLines,
		RowMin:        3,
		RowMax:        1000,
		DayHeader:     1,
		MoreIndicator: 1,
		ChipHeight:    1,
	}
}

// PopoverOptions is the popover geometry in terminal cells.
func PopoverOptions() popover.Options {
	return popover.Options{Gap: 1, Padding: 1, DefaultSize: popover.Size{Width: 32, Height: 8}}
}

type frameMsg struct{}

// syncDoneMsg carries the id of the popover that was open when the sync
// started; its content predates the new snapshot.
type syncDoneMsg struct {
	err       error
	popoverID string
}

func nextFrame() tea.Msg { return frameMsg{} }

// Model is the bubbletea model.
type Model struct {
	cfg      *config.Config
	source   Source
	settings prefs.Settings
	now      func() time.Time

	ctrl     *view.Controller
	pop      *popover.Manager
	bus      *popover.Bus
	frames   *popover.FrameQueue
	measurer popover.StaticMeasurer

	keys   keyMap
	help   help.Model
	styles styles

	width, height int
	grid          view.Grid
	dropped       int
	// cursor is the focused cell; chip the focused inline chip in it, or -1.
	cursor     int
	chip       int
	selectedID string
	status     string
}

// Option configures a Model.
type Option func(*Model)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(m *Model) { m.now = now }
}

// WithSettings applies stored display preferences.
func WithSettings(s prefs.Settings) Option {
	return func(m *Model) { m.settings = s }
}

// New builds a Model anchored on today in month view.
func New(cfg *config.Config, source Source, opts ...Option) *Model {
	m := &Model{
		cfg:      cfg,
		source:   source,
		settings: prefs.Defaults(),
		now:      time.Now,
		bus:      popover.NewBus(),
		frames:   popover.NewFrameQueue(),
		measurer: popover.StaticMeasurer{},
		keys:     defaultKeyMap(),
		help:     help.New(),
		styles:   defaultStyles(),
		chip:     -1,
	}
	for _, opt := range opts {
		opt(m)
	}

	m.ctrl = view.NewController(m.now(), view.Options{
		Location:      cfg.Location(),
		WeekStart:     cfg.Weekday(),
		Policy:        cfg.View,
		Metrics:       Metrics(),
		InitialHeight: 24,
	})
	m.pop = popover.NewManager(m.bus, m.frames, m.measurer, PopoverOptions(), func(ev model.VisualEvent, box popover.Rect) {
		m.ctrl.Select(ev, box)
	})
	m.ctrl.OnDateRangeChange(func(view.Range, time.Time) {
		m.pop.Close()
		m.rebuild()
		m.focusAnchor()
	})
	m.ctrl.OnEventSelect(func(ev model.VisualEvent, anchor popover.Rect) {
		m.selectedID = ev.ID
		m.rebuild()
		m.openDetail(ev, anchor)
	})

	m.rebuild()
	m.focusAnchor()
	return m
}

// Run starts the terminal program and blocks until the user quits or ctx is
// cancelled.
func Run(ctx context.Context, cfg *config.Config, source Source, opts ...Option) error {
	p := tea.NewProgram(New(cfg, source, opts...),
		tea.WithAltScreen(),
		tea.WithMouseCellMotion(),
		tea.WithContext(ctx),
	)
	_, err := p.Run()
	return err
}

func (m *Model) Init() tea.Cmd { return nil }

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.help.Width = msg.Width
		m.ctrl.Tracker().Observe(float64(msg.Height))
		m.rebuild()
		m.pop.Reposition(m.viewport())
	case frameMsg:
		m.frames.Flush()
	case syncDoneMsg:
		if msg.err != nil {
			m.status = "sync: " + msg.err.Error()
		} else {
			m.status = "synced"
		}
		m.pop.CloseID(msg.popoverID)
		m.rebuild()
	case tea.MouseMsg:
		if msg.Action == tea.MouseActionPress && msg.Button == tea.MouseButtonLeft {
			m.click(msg.X, msg.Y)
		}
	case tea.KeyMsg:
		cmd = m.handleKey(msg)
	}
	if m.frames.Pending() > 0 {
		cmd = tea.Batch(cmd, nextFrame)
	}
	return m, cmd
}

func (m *Model) handleKey(msg tea.KeyMsg) tea.Cmd {
	if p := m.pop.Current(); p != nil {
		switch {
		case key.Matches(msg, m.keys.Close):
			m.bus.Dispatch(popover.Event{Kind: popover.KeyDown, Key: "Escape"})
			return nil
		case p.Kind == popover.KindOverflow && len(msg.Runes) == 1 && msg.Runes[0] >= '1' && msg.Runes[0] <= '9':
			if _, ok := m.pop.Select(int(msg.Runes[0] - '1')); !ok {
				m.status = "not selectable"
			}
			return nil
		}
	}

	switch {
	case key.Matches(msg, m.keys.Quit):
		return tea.Quit
	case key.Matches(msg, m.keys.Close):
		m.chip = -1
	case key.Matches(msg, m.keys.Left):
		m.move(-1, -1)
	case key.Matches(msg, m.keys.Right):
		m.move(1, 1)
	case key.Matches(msg, m.keys.Up):
		m.move(-7, -1)
	case key.Matches(msg, m.keys.Down):
		m.move(7, 1)
	case key.Matches(msg, m.keys.NextChip):
		m.nextChip()
	case key.Matches(msg, m.keys.Open):
		m.open()
	case key.Matches(msg, m.keys.More):
		m.openOverflow()
	case key.Matches(msg, m.keys.Next):
		m.ctrl.Next()
	case key.Matches(msg, m.keys.Prev):
		m.ctrl.Prev()
	case key.Matches(msg, m.keys.Today):
		m.ctrl.Today(m.now())
	case key.Matches(msg, m.keys.Month):
		m.ctrl.SetView(view.Month)
	case key.Matches(msg, m.keys.Week):
		m.ctrl.SetView(view.Week)
	case key.Matches(msg, m.keys.Day):
		m.ctrl.SetView(view.Day)
	case key.Matches(msg, m.keys.Agenda):
		m.ctrl.SetView(view.Agenda)
	case key.Matches(msg, m.keys.Sync):
		return m.syncCmd()
	}
	return nil
}

func (m *Model) syncCmd() tea.Cmd {
	s, ok := m.source.(Syncer)
	if !ok {
		m.status = "sync not available"
		return nil
	}
	m.status = "syncing…"
	var openID string
	if p := m.pop.Current(); p != nil {
		openID = p.ID
	}
	return func() tea.Msg {
		return syncDoneMsg{err: s.Sync(context.Background()), popoverID: openID}
	}
}

// rebuild normalizes the source events of the visible range and resolves
// the grid.
func (m *Model) rebuild() {
	r := m.ctrl.Range()
	snap := m.source.Snapshot()
	opts := m.settings.NormalizeOptions(snap.Owners, m.cfg.OnCallColor, m.now())
	res := normalize.Batch(m.source.Events(r.Start, r.End, nil), opts)
	m.dropped = res.Dropped
	if res.Dropped > 0 {
		appLog.Debug("tui: dropped events", "count", res.Dropped)
	}
	m.grid = m.ctrl.Build(res.Events, m.selectedID)
	m.cursor = clamp(m.cursor, 0, len(m.grid.Cells)-1)
	if m.chip >= len(m.currentCell().Inline) {
		m.chip = -1
	}
}

// focusAnchor puts the cursor on the anchor date when it is visible.
func (m *Model) focusAnchor() {
	a := m.ctrl.Anchor()
	day := time.Date(a.Year(), a.Month(), a.Day(), 0, 0, 0, 0, m.ctrl.Location())
	m.cursor, m.chip = 0, -1
	for i, c := range m.grid.Cells {
		if c.Date.Equal(day) {
			m.cursor = i
			return
		}
	}
}

func (m *Model) currentCell() layout.Cell {
	if m.cursor < 0 || m.cursor >= len(m.grid.Cells) {
		return layout.Cell{}
	}
	return m.grid.Cells[m.cursor]
}

func (m *Model) gridMode() bool {
	return m.ctrl.Mode() == view.Month || m.ctrl.Mode() == view.Week
}

// move shifts the cursor by gridStep cells in month and week view and by
// listStep sections in the list views.
func (m *Model) move(gridStep, listStep int) {
	m.pop.Close()
	step := listStep
	if m.gridMode() {
		step = gridStep
	}
	m.cursor = clamp(m.cursor+step, 0, len(m.grid.Cells)-1)
	m.chip = -1
}

func (m *Model) nextChip() {
	n := len(m.currentCell().Inline)
	if n == 0 {
		m.chip = -1
		return
	}
	m.chip++
	if m.chip >= n {
		m.chip = -1
	}
}

// open activates the focused chip, or focuses the first chip, or opens the
// overflow popover of an empty-looking cell.
func (m *Model) open() {
	cell := m.currentCell()
	switch {
	case m.chip >= 0 && m.chip < len(cell.Inline):
		ev := cell.Inline[m.chip]
		if !m.ctrl.Select(ev, m.chipRect(m.cursor, m.chip)) {
			m.status = fmt.Sprintf("%s has no details", ev.Title)
		}
	case len(cell.Inline) > 0:
		m.chip = 0
	case cell.HasOverflow():
		m.openOverflow()
	}
}

func (m *Model) openOverflow() {
	cell := m.currentCell()
	if !cell.HasOverflow() {
		m.status = "nothing more on this day"
		return
	}
	m.setContentSize(m.overflowContent(cell.Date, cell.Overflow))
	m.pop.OpenOverflow(cell.Date, cell.Overflow, m.moreRect(m.cursor), fmt.Sprintf("more:%d", m.cursor), m.viewport())
}

func (m *Model) openDetail(ev model.VisualEvent, anchor popover.Rect) {
	m.setContentSize(m.detailContent(ev))
	m.pop.OpenDetail(ev, anchor, "chip:"+ev.ID, m.viewport())
}

// setContentSize records the size of the popover about to open so that the
// manager measures it.
func (m *Model) setContentSize(content string) {
	w, h := blockSize(content)
	m.measurer[m.pop.ContentTarget] = popover.Size{Width: float64(w), Height: float64(h)}
}

func (m *Model) viewport() popover.Size {
	return popover.Size{Width: float64(m.width), Height: float64(m.height)}
}

// click routes a press to the popover's document listeners, then focuses
// the cell under the pointer when no popover stays open.
func (m *Model) click(x, y int) {
	target := ""
	if i, ok := m.cellAt(x, y); ok {
		target = fmt.Sprintf("more:%d", i)
	}
	m.bus.Dispatch(popover.Event{Kind: popover.PointerDown, X: float64(x), Y: float64(y), Target: target})
	if m.pop.Current() != nil {
		return
	}
	if i, ok := m.cellAt(x, y); ok {
		m.cursor, m.chip = i, -1
	}
}

func clamp(v, lo, hi int) int {
	if hi < lo {
		return lo
	}
	return max(lo, min(v, hi))
}
