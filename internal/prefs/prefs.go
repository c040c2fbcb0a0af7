// Package prefs persists the viewer's display preferences in SQLite. Each
// preference is one row holding a JSON value, so a corrupt row only resets
// that preference.
package prefs

import (
	"database/sql"
	"encoding/json"
	"errors"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	appLog "teamcal/internal/log"
	"teamcal/internal/model"
	"teamcal/internal/normalize"
)

// Theme is the color scheme of the web UI.
type Theme string

const (
	ThemeLight  Theme = "light"
	ThemeDark   Theme = "dark"
	ThemeSystem Theme = "system"
)

// Settings are the display preferences.
type Settings struct {
	// SelectedOwners limits the view to these owner emails. Nil shows all.
	SelectedOwners []string          `json:"selectedOwners"`
	ColorOverrides map[string]string `json:"colorOverrides"`
	Theme          Theme             `json:"theme"`
	SidebarOpen    bool              `json:"sidebarOpen"`
	ShowHolidays   bool              `json:"showHolidays"`
	ShowOnCall     bool              `json:"showOnCall"`
}

// Defaults shows everyone, holidays and on-call with the sidebar open.
func Defaults() Settings {
	return Settings{
		ColorOverrides: map[string]string{},
		Theme:          ThemeSystem,
		SidebarOpen:    true,
		ShowHolidays:   true,
		ShowOnCall:     true,
	}
}

// Row keys.
const (
	keySelectedOwners = "selected_owners"
	keyColorOverrides = "color_overrides"
	keyTheme          = "theme"
	keySidebarOpen    = "sidebar_open"
	keyShowHolidays   = "show_holidays"
	keyShowOnCall     = "show_oncall"
)

// NormalizeOptions turns the preferences into batch options.
func (s Settings) NormalizeOptions(owners []model.Owner, onCallColor string, now time.Time) normalize.Options {
	var selected map[string]bool
	if s.SelectedOwners != nil {
		selected = make(map[string]bool, len(s.SelectedOwners))
		for _, e := range s.SelectedOwners {
			selected[strings.ToLower(e)] = true
		}
	}
	overrides := make(map[string]string, len(s.ColorOverrides))
	for k, v := range s.ColorOverrides {
		overrides[strings.ToLower(k)] = v
	}
	return normalize.Options{
		Owners:         owners,
		Selected:       selected,
		ColorOverrides: overrides,
		ShowHolidays:   s.ShowHolidays,
		ShowOnCall:     s.ShowOnCall,
		OnCallColor:    onCallColor,
		Now:            now,
	}
}

// OverrideFor returns the color override for an owner email, ignoring case.
func (s Settings) OverrideFor(email string) (string, bool) {
	if c, ok := s.ColorOverrides[email]; ok {
		return c, true
	}
	for k, c := range s.ColorOverrides {
		if strings.EqualFold(k, email) {
			return c, true
		}
	}
	return "", false
}

// Store keeps the current settings in memory; the database is read once in
// Open and written on every change.
type Store struct {
	db *sql.DB

	mu       sync.RWMutex
	settings Settings
}

// Open opens (or creates) the database at dbPath and loads the settings.
func Open(dbPath string) (*Store, error) {
	if dbPath == "" {
		return nil, errors.New("prefs: db path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", sqliteDSN(dbPath))
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)

	s := &Store{db: db}
	if err := s.ensureSchema(); err != nil {
		db.Close()
		return nil, err
	}
	settings, err := s.load()
	if err != nil {
		db.Close()
		return nil, err
	}
	s.settings = settings
	return s, nil
}

// Close closes the database.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) ensureSchema() error {
	const ddl = `
CREATE TABLE IF NOT EXISTS preferences (
	key TEXT PRIMARY KEY,
	value TEXT NOT NULL,
	updated_at TEXT NOT NULL
);`
	_, err := s.db.Exec(ddl)
	return err
}

func (s *Store) load() (Settings, error) {
	out := Defaults()
	rows, err := s.db.Query(`SELECT key, value FROM preferences;`)
	if err != nil {
		return out, err
	}
	defer rows.Close()

	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return out, err
		}
		if err := decode(&out, key, value); err != nil {
			appLog.Warn("prefs: discarding malformed value", "key", key, "err", err)
		}
	}
	return out, rows.Err()
}

// decode applies one row. On error the field keeps its default.
func decode(s *Settings, key, value string) error {
	raw := []byte(value)
	switch key {
	case keySelectedOwners:
		var v []string
		if err := json.Unmarshal(raw, &v); err != nil {
			return err
		}
		s.SelectedOwners = v
	case keyColorOverrides:
		var v map[string]string
		if err := json.Unmarshal(raw, &v); err != nil {
			return err
		}
		if v == nil {
			v = map[string]string{}
		}
		s.ColorOverrides = v
	case keyTheme:
		var v Theme
		if err := json.Unmarshal(raw, &v); err != nil {
			return err
		}
		switch v {
		case ThemeLight, ThemeDark, ThemeSystem:
			s.Theme = v
		default:
			return errors.New("unknown theme " + string(v))
		}
	case keySidebarOpen:
		return json.Unmarshal(raw, &s.SidebarOpen)
	case keyShowHolidays:
		return json.Unmarshal(raw, &s.ShowHolidays)
	case keyShowOnCall:
		return json.Unmarshal(raw, &s.ShowOnCall)
	}
	return nil
}

// Get returns a copy of the current settings.
func (s *Store) Get() Settings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return clone(s.settings)
}

// Put replaces the settings and persists every value in one transaction.
// The in-memory copy only changes if the write succeeds.
func (s *Store) Put(next Settings) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.putLocked(next)
}

func (s *Store) putLocked(next Settings) error {
	if next.ColorOverrides == nil {
		next.ColorOverrides = map[string]string{}
	}
	switch next.Theme {
	case ThemeLight, ThemeDark, ThemeSystem:
	default:
		next.Theme = ThemeSystem
	}

	values := map[string]any{
		keySelectedOwners: next.SelectedOwners,
		keyColorOverrides: next.ColorOverrides,
		keyTheme:          next.Theme,
		keySidebarOpen:    next.SidebarOpen,
		keyShowHolidays:   next.ShowHolidays,
		keyShowOnCall:     next.ShowOnCall,
	}

	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	now := time.Now().UTC().Format(time.RFC3339)
	for key, v := range values {
		data, err := json.Marshal(v)
		if err != nil {
			tx.Rollback()
			return err
		}
		if _, err := tx.Exec(`INSERT INTO preferences (key, value, updated_at) VALUES (?, ?, ?)
ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at;`, key, string(data), now); err != nil {
			tx.Rollback()
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	s.settings = clone(next)
	return nil
}

// Update applies fn to a copy of the settings and persists the result while
// holding the store lock, so concurrent updates never lose each other's
// changes. An error from fn leaves the settings untouched.
func (s *Store) Update(fn func(*Settings) error) (Settings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := clone(s.settings)
	if err := fn(&next); err != nil {
		return Settings{}, err
	}
	if err := s.putLocked(next); err != nil {
		return Settings{}, err
	}
	return clone(s.settings), nil
}

func clone(s Settings) Settings {
	out := s
	if s.SelectedOwners != nil {
		out.SelectedOwners = append([]string{}, s.SelectedOwners...)
	}
	out.ColorOverrides = make(map[string]string, len(s.ColorOverrides))
	for k, v := range s.ColorOverrides {
		out.ColorOverrides[k] = v
	}
	return out
}

func sqliteDSN(path string) string {
	if strings.HasPrefix(path, "file:") {
		return path
	}
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	u := url.URL{Scheme: "file", Path: path}
	q := u.Query()
	q.Set("mode", "rwc")
	q.Set("_pragma", "busy_timeout(5000)")
	u.RawQuery = q.Encode()
	return u.String()
}
