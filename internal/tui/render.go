package tui

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"

	"teamcal/internal/color"
	"teamcal/internal/model"
	"teamcal/internal/popover"
	"teamcal/internal/view"
)

type styles struct {
	title   lipgloss.Style
	muted   lipgloss.Style
	today   lipgloss.Style
	cursor  lipgloss.Style
	outside lipgloss.Style
	more    lipgloss.Style
	box     lipgloss.Style
	heading lipgloss.Style
}

func defaultStyles() styles {
	return styles{
		title:   lipgloss.NewStyle().Bold(true),
		muted:   lipgloss.NewStyle().Foreground(lipgloss.Color("245")),
		today:   lipgloss.NewStyle().Bold(true).Underline(true),
		cursor:  lipgloss.NewStyle().Reverse(true),
		outside: lipgloss.NewStyle().Faint(true),
		more:    lipgloss.NewStyle().Foreground(lipgloss.Color("245")).Italic(true),
		box:     lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1),
		heading: lipgloss.NewStyle().Bold(true),
	}
}

// View renders the screen: title, sub header, body, status and help.
func (m *Model) View() string {
	if m.width <= 0 || m.height <= 0 {
		return ""
	}
	var body string
	if m.gridMode() {
		body = m.renderGrid()
	} else {
		body = m.renderList()
	}
	screen := strings.Join([]string{
		m.renderTitle(),
		m.renderSubheader(),
		fitLines(body, m.bodyHeight()),
		m.renderStatus(),
		m.help.ShortHelpView(m.keys.ShortHelp()),
	}, "\n")

	if p := m.pop.Current(); p != nil {
		x := int(math.Round(p.Position.Left))
		y := int(math.Round(p.Position.Top))
		screen = overlay(screen, m.renderPopover(p), x, y)
	}
	return screen
}

func (m *Model) bodyHeight() int {
	return max(m.height-chromeLines, 1)
}

func (m *Model) cellWidth() int {
	return max(m.width/7, 4)
}

func (m *Model) rowHeight() int {
	rows := max(m.grid.Rows, 1)
	if m.ctrl.Mode() == view.Week {
		return m.bodyHeight()
	}
	return max(m.bodyHeight()/rows, int(Metrics().RowMin))
}

func (m *Model) renderTitle() string {
	a := m.grid.Anchor
	var title string
	switch m.ctrl.Mode() {
	case view.Month:
		title = a.Format("January 2006")
	case view.Day:
		title = a.Format("Monday, 2 January 2006")
	default:
		last := m.grid.Range.End.AddDate(0, 0, -1)
		title = m.grid.Range.Start.Format("2 Jan") + " - " + last.Format("2 Jan 2006")
	}
	info := m.styles.muted.Render(fmt.Sprintf("  %s", m.ctrl.Mode()))
	return ansi.Truncate(m.styles.title.Render(title)+info, m.width, "")
}

func (m *Model) renderSubheader() string {
	if !m.gridMode() {
		return ""
	}
	cw := m.cellWidth()
	var b strings.Builder
	for i := 0; i < 7 && i < len(m.grid.Cells); i++ {
		name := m.grid.Cells[i].Date.Weekday().String()[:3]
		b.WriteString(m.styles.muted.Width(cw).Render(name))
	}
	return b.String()
}

func (m *Model) renderStatus() string {
	if m.status != "" {
		return ansi.Truncate(m.status, m.width, "…")
	}
	chips := 0
	for _, c := range m.grid.Cells {
		chips += c.Total()
	}
	s := fmt.Sprintf("%d chips · budget %d", chips, m.grid.Budget)
	if m.dropped > 0 {
		s += fmt.Sprintf(" · %d dropped", m.dropped)
	}
	return m.styles.muted.Render(ansi.Truncate(s, m.width, "…"))
}

func (m *Model) renderGrid() string {
	cw, rh := m.cellWidth(), m.rowHeight()
	var rows []string
	for w, week := range m.grid.Weeks() {
		cells := make([]string, 0, len(week))
		for j := range week {
			cells = append(cells, m.renderCell(w*7+j, cw, rh))
		}
		rows = append(rows, lipgloss.JoinHorizontal(lipgloss.Top, cells...))
	}
	return lipgloss.JoinVertical(lipgloss.Left, rows...)
}

func (m *Model) renderCell(i, cw, rh int) string {
	cell := m.grid.Cells[i]
	lines := make([]string, 0, rh)
	lines = append(lines, m.dayLabel(i, fmt.Sprintf("%d", cell.Date.Day())))
	for c, ev := range cell.Inline {
		lines = append(lines, m.renderChip(ev, cw-1, i == m.cursor && c == m.chip))
	}
	if more := cell.MoreLabel(); more != "" {
		lines = append(lines, m.styles.more.Render(ansi.Truncate(more, cw-1, "…")))
	}
	if len(lines) > rh {
		lines = lines[:rh]
	}
	return lipgloss.NewStyle().Width(cw).Height(rh).Render(strings.Join(lines, "\n"))
}

func (m *Model) dayLabel(i int, label string) string {
	cell := m.grid.Cells[i]
	today := civil(m.now().In(m.ctrl.Location()))
	st := lipgloss.NewStyle()
	switch {
	case i == m.cursor:
		st = m.styles.cursor
	case cell.Date.Equal(today):
		st = m.styles.today
	case m.ctrl.Mode() == view.Month && cell.Date.Month() != m.grid.Anchor.Month():
		st = m.styles.outside
	}
	return st.Render(label)
}

func (m *Model) renderChip(ev model.VisualEvent, width int, focused bool) string {
	// Terminals have no alpha, so translucent text is composited onto the
	// chip background first.
	st := lipgloss.NewStyle().
		Background(lipgloss.Color(color.Flatten(ev.Colors.Background, ""))).
		Foreground(lipgloss.Color(color.Flatten(ev.Colors.Text, ev.Colors.Background))).
		Width(width)
	if focused {
		st = st.Reverse(true)
	}
	return st.Render(ansi.Truncate(chipText(ev), width, "…"))
}

func chipText(ev model.VisualEvent) string {
	if ev.AllDay {
		return ev.Title
	}
	return ev.Start.Format("15:04") + " " + ev.Title
}

// sectionHeight is the number of lines a day takes in the list views.
func (m *Model) sectionHeight(i int) int {
	c := m.grid.Cells[i]
	h := 1 + len(c.Inline)
	if c.HasOverflow() {
		h++
	}
	return h
}

// listLayout scrolls the list so the cursor section is visible and returns
// the top line of every visible section.
func (m *Model) listLayout() map[int]int {
	avail := m.bodyHeight()
	start := 0
	for start < m.cursor {
		used := 0
		for i := start; i <= m.cursor; i++ {
			used += m.sectionHeight(i)
		}
		if used <= avail {
			break
		}
		start++
	}
	tops := make(map[int]int)
	y := gridTop
	for i := start; i < len(m.grid.Cells) && y < gridTop+avail; i++ {
		tops[i] = y
		y += m.sectionHeight(i)
	}
	return tops
}

func (m *Model) renderList() string {
	if len(m.grid.Cells) == 0 {
		return m.styles.muted.Render("No events")
	}
	tops := m.listLayout()
	var lines []string
	for i := range m.grid.Cells {
		if _, ok := tops[i]; !ok {
			continue
		}
		cell := m.grid.Cells[i]
		lines = append(lines, m.dayLabel(i, cell.Date.Format("Mon 2 Jan")))
		for c, ev := range cell.Inline {
			lines = append(lines, "  "+m.renderChip(ev, m.width-2, i == m.cursor && c == m.chip))
		}
		if more := cell.MoreLabel(); more != "" {
			lines = append(lines, "  "+m.styles.more.Render(more))
		}
	}
	return strings.Join(lines, "\n")
}

// cellRect is the screen box of a day cell in terminal cells.
func (m *Model) cellRect(i int) popover.Rect {
	if m.gridMode() {
		cw, rh := m.cellWidth(), m.rowHeight()
		col, row := i%7, i/7
		return popover.Rect{
			Left:   float64(col * cw),
			Top:    float64(gridTop + row*rh),
			Right:  float64((col + 1) * cw),
			Bottom: float64(gridTop + (row+1)*rh),
		}
	}
	top, ok := m.listLayout()[i]
	if !ok {
		top = gridTop
	}
	return popover.Rect{Left: 0, Top: float64(top), Right: float64(m.width), Bottom: float64(top + m.sectionHeight(i))}
}

func (m *Model) chipRect(i, chip int) popover.Rect {
	r := m.cellRect(i)
	return popover.Rect{Left: r.Left, Top: r.Top + 1 + float64(chip), Right: r.Right, Bottom: r.Top + 2 + float64(chip)}
}

func (m *Model) moreRect(i int) popover.Rect {
	n := 0
	if i >= 0 && i < len(m.grid.Cells) {
		n = len(m.grid.Cells[i].Inline)
	}
	return m.chipRect(i, n)
}

// cellAt maps a screen position to a cell index.
func (m *Model) cellAt(x, y int) (int, bool) {
	if m.gridMode() {
		cw, rh := m.cellWidth(), m.rowHeight()
		if y < gridTop || x < 0 || x >= 7*cw {
			return 0, false
		}
		i := ((y-gridTop)/rh)*7 + x/cw
		if i >= len(m.grid.Cells) {
			return 0, false
		}
		return i, true
	}
	for i, top := range m.listLayout() {
		if y >= top && y < top+m.sectionHeight(i) {
			return i, true
		}
	}
	return 0, false
}

func (m *Model) renderPopover(p *popover.Popover) string {
	var content string
	if p.Kind == popover.KindDetail && p.State.Event != nil {
		content = m.detailContent(*p.State.Event)
	} else {
		content = m.overflowContent(p.State.AnchorDate, p.State.OverflowEvents)
	}
	return clip(content, int(p.Position.Width), int(p.Position.Height))
}

func (m *Model) overflowContent(date time.Time, events []model.VisualEvent) string {
	lines := []string{m.styles.heading.Render(date.Format("Mon 2 Jan"))}
	for i, ev := range events {
		lines = append(lines, ansi.Truncate(fmt.Sprintf("%d %s", i+1, chipText(ev)), 36, "…"))
	}
	return m.styles.box.Render(strings.Join(lines, "\n"))
}

func (m *Model) detailContent(ev model.VisualEvent) string {
	lines := []string{
		m.styles.heading.Render(ansi.Truncate(ev.Title, 40, "…")),
		timeRange(ev),
	}
	switch c := ev.Category.(type) {
	case model.Personal:
		lines = append(lines, c.DisplayName+" · "+string(c.ShowAs))
	case model.OnCall:
		lines = append(lines, "on call: "+c.DisplayName)
	}
	if ev.Location != "" {
		lines = append(lines, ansi.Truncate(ev.Location, 40, "…"))
	}
	return m.styles.box.Render(strings.Join(lines, "\n"))
}

func timeRange(ev model.VisualEvent) string {
	if ev.AllDay {
		last := ev.End.AddDate(0, 0, -1)
		if !last.After(ev.Start) {
			return ev.Start.Format("Mon 2 Jan") + ", all day"
		}
		return ev.Start.Format("Mon 2 Jan") + " - " + last.Format("Mon 2 Jan")
	}
	return ev.Start.Format("Mon 2 Jan 15:04") + "-" + ev.End.Format("15:04")
}

func civil(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

func blockSize(s string) (int, int) {
	return lipgloss.Width(s), lipgloss.Height(s)
}

// fitLines pads or cuts s to exactly n lines.
func fitLines(s string, n int) string {
	lines := strings.Split(s, "\n")
	if len(lines) > n {
		lines = lines[:n]
	}
	for len(lines) < n {
		lines = append(lines, "")
	}
	return strings.Join(lines, "\n")
}

// clip cuts a block to w columns and h lines.
func clip(s string, w, h int) string {
	lines := strings.Split(s, "\n")
	if h > 0 && len(lines) > h {
		lines = lines[:h]
	}
	if w > 0 {
		for i, l := range lines {
			lines[i] = ansi.Truncate(l, w, "")
		}
	}
	return strings.Join(lines, "\n")
}

// overlay draws box over base with its top left corner at (x, y).
func overlay(base, box string, x, y int) string {
	lines := strings.Split(base, "\n")
	for i, bl := range strings.Split(box, "\n") {
		row := y + i
		if row < 0 || row >= len(lines) {
			continue
		}
		line := lines[row]
		w := ansi.StringWidth(line)
		if w < x {
			line += strings.Repeat(" ", x-w)
			w = x
		}
		bw := ansi.StringWidth(bl)
		lines[row] = ansi.Cut(line, 0, x) + bl + ansi.Cut(line, x+bw, w)
	}
	return strings.Join(lines, "\n")
}
