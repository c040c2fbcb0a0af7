package web

import (
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"strings"
	"time"

	"teamcal/internal/color"
	appLog "teamcal/internal/log"
	"teamcal/internal/model"
	"teamcal/internal/normalize"
	"teamcal/internal/popover"
	"teamcal/internal/prefs"
	"teamcal/internal/view"
)

const (
	gridCacheTTL = 30 * time.Second
	// gridCacheMax bounds the number of cached /api/grid responses.
	gridCacheMax = 32
)

// gridCacheEntry holds a cached /api/grid response and its origin.
type gridCacheEntry struct {
	resp      gridResponse
	syncedAt  time.Time
	updatedAt time.Time
}

// userDTO is one row of /api/users.
type userDTO struct {
	Email       string `json:"email"`
	DisplayName string `json:"displayName"`
	Color       string `json:"color"`
	Selected    bool   `json:"selected"`
}

type usersResponse struct {
	Users       []userDTO `json:"users"`
	OnCallColor string    `json:"oncallColor,omitempty"`
}

// sourceEventDTO adds the kind to a raw record.
type sourceEventDTO struct {
	model.SourceEvent
	Kind string `json:"kind"`
}

type eventsResponse struct {
	Events          []sourceEventDTO `json:"events"`
	RangeStart      time.Time        `json:"range_start"`
	RangeEnd        time.Time        `json:"range_end"`
	DisplayTimeZone string           `json:"display_timezone"`
}

// eventDTO is a JSON-friendly view of a VisualEvent.
type eventDTO struct {
	model.VisualEvent
	Category    string `json:"category"`
	Interactive bool   `json:"interactive"`
}

type cellDTO struct {
	Date     string     `json:"date"`
	Inline   []eventDTO `json:"inline"`
	Overflow []eventDTO `json:"overflow"`
	More     string     `json:"more,omitempty"`
}

type gridResponse struct {
	Mode            string     `json:"mode"`
	Anchor          string     `json:"anchor"`
	Range           view.Range `json:"range"`
	Rows            int        `json:"rows"`
	Budget          int        `json:"budget"`
	Cells           []cellDTO  `json:"cells"`
	DisplayTimeZone string     `json:"display_timezone"`
	WeekStart       string     `json:"week_start"`
	Dropped         int        `json:"dropped"`
}

type placeRequest struct {
	Anchor   popover.Rect `json:"anchor"`
	Content  popover.Size `json:"content"`
	Viewport popover.Size `json:"viewport"`
}

func (s *Server) handleUsers(w http.ResponseWriter, _ *http.Request) {
	p := s.settings()
	selected := make(map[string]bool, len(p.SelectedOwners))
	for _, e := range p.SelectedOwners {
		selected[strings.ToLower(e)] = true
	}

	owners := s.refresh.Snapshot().Owners
	out := usersResponse{Users: make([]userDTO, 0, len(owners)), OnCallColor: s.cfg.OnCallColor}
	for _, o := range owners {
		c := o.Color
		if override, ok := p.OverrideFor(o.Email); ok && color.Valid(override) {
			c = override
		}
		out.Users = append(out.Users, userDTO{
			Email:       o.Email,
			DisplayName: o.DisplayName,
			Color:       c,
			Selected:    p.SelectedOwners == nil || selected[strings.ToLower(o.Email)],
		})
	}
	writeJSON(w, http.StatusOK, out)
}

// handleEvents returns the raw records of the snapshot within a window.
//
// GET /api/calendars/events?start=2026-10-01&end=2026-11-01&users=a@x,b@x
//   - start, end: RFC3339 or YYYY-MM-DD; default is today plus `days` days
//   - users:      comma separated owner emails; empty means everyone
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	loc := s.cfg.Location()
	today := civilDay(s.now().In(loc))

	start, err := parseTimeParam(q.Get("start"), today, loc)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid start")
		return
	}
	days := parseIntDefault(q.Get("days"), s.cfg.SyncDaysAhead)
	if days <= 0 {
		days = s.cfg.SyncDaysAhead
	}
	end, err := parseTimeParam(q.Get("end"), start.AddDate(0, 0, days), loc)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid end")
		return
	}
	if !end.After(start) {
		writeError(w, http.StatusBadRequest, "end must be after start")
		return
	}

	var users []string
	if raw := q.Get("users"); raw != "" {
		users = strings.Split(raw, ",")
	}

	src := s.refresh.Events(start, end, users)
	resp := eventsResponse{
		Events:          make([]sourceEventDTO, 0, len(src)),
		RangeStart:      start,
		RangeEnd:        end,
		DisplayTimeZone: loc.String(),
	}
	for _, ev := range src {
		resp.Events = append(resp.Events, sourceEventDTO{SourceEvent: ev, Kind: ev.Kind.String()})
	}
	writeJSON(w, http.StatusOK, resp)
}

// gridQuery is the parsed query of /api/grid and /calendar.
type gridQuery struct {
	mode     view.Mode
	date     time.Time
	height   float64
	selected string
}

// cacheKey identifies the response a query produces. Unknown parameters do
// not take part, and a missing date resolves to today's date.
func (q gridQuery) cacheKey(loc *time.Location) string {
	return fmt.Sprintf("%s|%s|%d|%s", q.mode, q.date.In(loc).Format(time.DateOnly), int(math.Round(q.height)), q.selected)
}

func (s *Server) parseGridQuery(r *http.Request) (gridQuery, error) {
	q := r.URL.Query()
	loc := s.cfg.Location()

	mode, err := view.ParseMode(q.Get("view"))
	if err != nil {
		return gridQuery{}, err
	}
	date, err := parseTimeParam(q.Get("date"), s.now().In(loc), loc)
	if err != nil {
		return gridQuery{}, fmt.Errorf("invalid date %q", q.Get("date"))
	}
	return gridQuery{
		mode:     mode,
		date:     date,
		height:   parseFloatDefault(q.Get("height"), float64(s.cfg.Snapshot.Height)),
		selected: q.Get("selected"),
	}, nil
}

// buildGrid normalizes the snapshot for the query's range and resolves it.
func (s *Server) buildGrid(gq gridQuery) (view.Grid, int) {
	c := view.NewController(gq.date, view.Options{
		Location:      s.cfg.Location(),
		WeekStart:     s.cfg.Weekday(),
		Policy:        s.cfg.View,
		Metrics:       s.cfg.Layout,
		InitialHeight: gq.height,
	})
	c.SetView(gq.mode)
	rng := c.Range()

	snap := s.refresh.Snapshot()
	opts := s.settings().NormalizeOptions(snap.Owners, s.cfg.OnCallColor, s.now())
	res := normalize.Batch(s.refresh.Events(rng.Start, rng.End, nil), opts)
	s.metrics.RecordNormalized(len(res.Events), res.Dropped)

	return c.Build(res.Events, gq.selected), res.Dropped
}

// handleGrid returns the resolved grid for a view.
//
// GET /api/grid?view=month&date=2026-10-19&height=752&selected=<event id>
func (s *Server) handleGrid(w http.ResponseWriter, r *http.Request) {
	gq, err := s.parseGridQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	key := gq.cacheKey(s.cfg.Location())
	syncedAt := s.refresh.Snapshot().SyncedAt
	now := time.Now()

	s.gridMu.RLock()
	ec, ok := s.gridCache[key]
	s.gridMu.RUnlock()
	if ok && ec.fresh(syncedAt, now) {
		writeJSON(w, http.StatusOK, ec.resp)
		return
	}

	grid, dropped := s.buildGrid(gq)
	resp := s.gridResponse(grid, dropped)
	s.storeGrid(key, gridCacheEntry{resp: resp, syncedAt: syncedAt, updatedAt: now})

	writeJSON(w, http.StatusOK, resp)
}

func (e gridCacheEntry) fresh(syncedAt, now time.Time) bool {
	return e.syncedAt.Equal(syncedAt) && now.Sub(e.updatedAt) < gridCacheTTL
}

// storeGrid inserts an entry after dropping stale ones; when the cache is
// still full the oldest entry goes.
func (s *Server) storeGrid(key string, e gridCacheEntry) {
	s.gridMu.Lock()
	defer s.gridMu.Unlock()

	for k, old := range s.gridCache {
		if !old.fresh(e.syncedAt, e.updatedAt) {
			delete(s.gridCache, k)
		}
	}
	for len(s.gridCache) >= gridCacheMax {
		var oldestKey string
		var oldest time.Time
		for k, old := range s.gridCache {
			if oldestKey == "" || old.updatedAt.Before(oldest) {
				oldestKey, oldest = k, old.updatedAt
			}
		}
		delete(s.gridCache, oldestKey)
	}
	s.gridCache[key] = e
}

func (s *Server) invalidateGrid() {
	s.gridMu.Lock()
	clear(s.gridCache)
	s.gridMu.Unlock()
}

func (s *Server) gridResponse(g view.Grid, dropped int) gridResponse {
	resp := gridResponse{
		Mode:            g.Mode,
		Anchor:          g.Anchor.Format(time.DateOnly),
		Range:           g.Range,
		Rows:            g.Rows,
		Budget:          g.Budget,
		Cells:           make([]cellDTO, 0, len(g.Cells)),
		DisplayTimeZone: s.cfg.Location().String(),
		WeekStart:       s.cfg.WeekStart,
		Dropped:         dropped,
	}
	for _, c := range g.Cells {
		resp.Cells = append(resp.Cells, cellDTO{
			Date:     c.Date.Format(time.DateOnly),
			Inline:   toEventDTOs(c.Inline),
			Overflow: toEventDTOs(c.Overflow),
			More:     c.MoreLabel(),
		})
	}
	return resp
}

func toEventDTOs(events []model.VisualEvent) []eventDTO {
	out := make([]eventDTO, 0, len(events))
	for _, ev := range events {
		out = append(out, eventDTO{
			VisualEvent: ev,
			Category:    model.CategoryName(ev.Category),
			Interactive: ev.Interactive(),
		})
	}
	return out
}

// handlePopoverPlace computes a popover box for a browser that measured its
// anchor and content.
func (s *Server) handlePopoverPlace(w http.ResponseWriter, r *http.Request) {
	var req placeRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 16<<10)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid placement body")
		return
	}
	writeJSON(w, http.StatusOK, popover.Place(req.Anchor, req.Content, req.Viewport, s.cfg.Popover))
}

func validatePrefs(p prefs.Settings) error {
	switch p.Theme {
	case prefs.ThemeLight, prefs.ThemeDark, prefs.ThemeSystem:
	default:
		return fmt.Errorf("unknown theme %q", p.Theme)
	}
	for owner, c := range p.ColorOverrides {
		if !color.Valid(c) {
			return fmt.Errorf("invalid color %q for %s", c, owner)
		}
	}
	return nil
}

// parseTimeParam accepts RFC3339 or a civil date in loc. Empty yields def.
func parseTimeParam(v string, def time.Time, loc *time.Location) (time.Time, error) {
	if v == "" {
		return def, nil
	}
	if t, err := time.ParseInLocation(time.DateOnly, v, loc); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		appLog.Debug("api: unparseable time parameter", "value", v)
		return time.Time{}, err
	}
	return t.In(loc), nil
}

func civilDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
