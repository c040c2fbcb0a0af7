package web

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"net/http"
	"time"

	"teamcal/internal/layout"
	appLog "teamcal/internal/log"
	"teamcal/internal/model"
	"teamcal/internal/prefs"
	"teamcal/internal/view"
)

// The /calendar page is rendered server side so that headless capture only
// has to wait for data-ready.
//
//go:embed templates/calendar.html
var templateFS embed.FS

var calendarTmpl = template.Must(template.New("calendar.html").Funcs(template.FuncMap{
	"chipStyle": chipStyle,
	"dayNum":    func(t time.Time) int { return t.Day() },
	"isToday":   func(t, today time.Time) bool { return t.Equal(today) },
	"clock":     func(t time.Time) string { return t.Format("15:04") },
}).ParseFS(templateFS, "templates/calendar.html"))

// pageData feeds templates/calendar.html.
type pageData struct {
	Title    string
	Theme    prefs.Theme
	Mode     string
	Weekdays []string
	Weeks    [][]layout.Cell
	Cells    []layout.Cell
	Today    time.Time
	Synced   string
}

func chipStyle(ev model.VisualEvent) template.CSS {
	// Colors are normalized hex strings, safe to inline.
	return template.CSS(fmt.Sprintf("background:%s;border-left:3px solid %s;color:%s",
		ev.Colors.Background, ev.Colors.Border, ev.Colors.Text))
}

func (s *Server) weekdayNames() []string {
	names := make([]string, 0, 7)
	for i := 0; i < 7; i++ {
		names = append(names, time.Weekday((int(s.cfg.Weekday()) + i) % 7).String()[:3])
	}
	return names
}

// handleCalendar renders the grid as HTML.
//
// GET /calendar?view=month&date=2026-10-19&height=800
func (s *Server) handleCalendar(w http.ResponseWriter, r *http.Request) {
	gq, err := s.parseGridQuery(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	grid, _ := s.buildGrid(gq)

	loc := s.cfg.Location()
	data := pageData{
		Title:    titleFor(grid),
		Theme:    s.settings().Theme,
		Mode:     grid.Mode,
		Weekdays: s.weekdayNames(),
		Cells:    grid.Cells,
		Today:    civilDay(s.now().In(loc)),
	}
	if grid.Mode == view.Month.String() || grid.Mode == view.Week.String() {
		data.Weeks = grid.Weeks()
	}
	if st := s.refresh.Status(); st.LastSync != nil {
		data.Synced = st.LastSync.In(loc).Format("2006-01-02 15:04")
	}

	var buf bytes.Buffer
	if err := calendarTmpl.Execute(&buf, data); err != nil {
		appLog.Error("calendar page: render failed", err)
		http.Error(w, "failed to render calendar", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}

func titleFor(g view.Grid) string {
	switch g.Mode {
	case view.Month.String():
		return g.Anchor.Format("January 2006")
	case view.Day.String():
		return g.Anchor.Format("Mon, 2 January 2006")
	default:
		last := g.Range.End.AddDate(0, 0, -1)
		return g.Range.Start.Format("2 Jan") + " - " + last.Format("2 Jan 2006")
	}
}
