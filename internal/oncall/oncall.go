// Package oncall reads the on-call rota file and turns assignments into
// all-day source events.
package oncall

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	appLog "teamcal/internal/log"
	"teamcal/internal/model"
)

// Assignment is one rota row: a person on call for an inclusive date span.
type Assignment struct {
	UserEmail string `json:"userEmail"`
	Start     string `json:"start"`
	End       string `json:"end"`
}

// Schedule maps "YYYY-MM" month keys to that month's assignments.
type Schedule map[string][]Assignment

// Store loads the rota file and re-reads it only when its mtime changes.
type Store struct {
	path string

	mu       sync.Mutex
	schedule Schedule
	mtime    time.Time
	loaded   bool
}

// NewStore creates a Store for path. An empty path yields no events.
func NewStore(path string) *Store {
	return &Store{path: path}
}

// Schedule returns the current rota. A missing file is an empty rota; a
// malformed file is logged and treated as empty until it changes again.
func (s *Store) Schedule() Schedule {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.path == "" {
		return Schedule{}
	}
	info, err := os.Stat(s.path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			appLog.Warn("oncall: stat failed", "path", s.path, "err", err)
		} else if s.loaded || s.schedule == nil {
			appLog.Warn("oncall: rota file not found", "path", s.path)
		}
		s.schedule, s.loaded = Schedule{}, false
		return s.schedule
	}
	if s.loaded && info.ModTime().Equal(s.mtime) {
		return s.schedule
	}

	sched, err := readSchedule(s.path)
	s.mtime, s.loaded = info.ModTime(), true
	if err != nil {
		appLog.Error("oncall: load failed", err, "path", s.path)
		s.schedule = Schedule{}
		return s.schedule
	}
	appLog.Info("oncall: rota loaded", "months", len(sched))
	s.schedule = sched
	return s.schedule
}

func readSchedule(path string) (Schedule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var sched Schedule
	if err := json.Unmarshal(data, &sched); err != nil {
		return nil, fmt.Errorf("rota must map months to assignment lists: %w", err)
	}
	if sched == nil {
		sched = Schedule{}
	}
	return sched, nil
}

// Events converts every month of the rota into all-day source events in
// loc. names resolves an email to a display name; unknown emails use the
// local part.
func (s *Store) Events(loc *time.Location, names map[string]string) []model.SourceEvent {
	sched := s.Schedule()
	months := make([]string, 0, len(sched))
	for k := range sched {
		months = append(months, k)
	}
	slices.Sort(months)

	var out []model.SourceEvent
	for _, month := range months {
		out = append(out, Build(month, sched[month], loc, names)...)
	}
	return out
}

// Build converts one month's assignments. Rows missing an email or dates,
// with unparseable dates, or ending before they start are skipped.
func Build(month string, rows []Assignment, loc *time.Location, names map[string]string) []model.SourceEvent {
	out := make([]model.SourceEvent, 0, len(rows))
	for i, a := range rows {
		email := strings.TrimSpace(a.UserEmail)
		if email == "" {
			appLog.Warn("oncall: skipping row without userEmail", "month", month, "index", i)
			continue
		}
		if a.Start == "" || a.End == "" {
			appLog.Warn("oncall: skipping row without dates", "month", month, "index", i)
			continue
		}
		start, err1 := time.ParseInLocation(time.DateOnly, a.Start, loc)
		end, err2 := time.ParseInLocation(time.DateOnly, a.End, loc)
		if err1 != nil || err2 != nil {
			appLog.Warn("oncall: skipping row with bad dates (want YYYY-MM-DD)", "month", month, "index", i)
			continue
		}
		if end.Before(start) {
			appLog.Warn("oncall: skipping row ending before it starts", "month", month, "index", i)
			continue
		}

		name := names[strings.ToLower(email)]
		if name == "" {
			name, _, _ = strings.Cut(email, "@")
		}
		out = append(out, model.SourceEvent{
			ID:         fmt.Sprintf("oncall-%s-%d-%s", month, i, email),
			Subject:    "值班｜" + name,
			Start:      model.DateTimeOf(start),
			End:        model.DateTimeOf(end.AddDate(0, 0, 1)),
			ShowAs:     model.ShowAsBusy,
			IsAllDay:   true,
			OwnerEmail: email,
			OwnerName:  name,
			Kind:       model.KindOnCall,
		})
	}
	return out
}
