package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"

	"teamcal/internal/color"
	"teamcal/internal/layout"
	"teamcal/internal/popover"
	"teamcal/internal/view"
)

// OwnerConfig describes one team member whose calendar is aggregated.
type OwnerConfig struct {
	// Email is the owner key. It must be unique.
	Email string `yaml:"email" json:"email" koanf:"email"`
	// Name is the display name shown in the sidebar and on-call titles.
	Name string `yaml:"name" json:"name" koanf:"name"`
	// Color is the base chip color. Empty picks the next palette entry.
	Color string `yaml:"color" json:"color" koanf:"color"`
	// ICSURL is the owner's calendar subscription. Empty means no personal
	// events are fetched for this owner.
	ICSURL string `yaml:"ics_url" json:"ics_url" koanf:"ics_url"`
}

// BasicAuthConfig holds HTTP Basic Auth credentials for the Web UI/API.
type BasicAuthConfig struct {
	Username string `yaml:"username" json:"username" koanf:"username"`
	Password string `yaml:"password" json:"password" koanf:"password"`
}

// SnapshotConfig controls the headless PNG capture of /calendar.
type SnapshotConfig struct {
	Width      int    `yaml:"width" json:"width" koanf:"width"`
	Height     int    `yaml:"height" json:"height" koanf:"height"`
	OutputPath string `yaml:"output_path" json:"output_path" koanf:"output_path"`
	TimeoutSec int    `yaml:"timeout_sec" json:"timeout_sec" koanf:"timeout_sec"`
}

// Config is the top-level application configuration.
type Config struct {
	// Listen is the HTTP listen address for the Web UI and API.
	Listen string `yaml:"listen" json:"listen" koanf:"listen"`

	// Timezone is the IANA zone calendar days are computed in.
	Timezone string `yaml:"timezone" json:"timezone" koanf:"timezone"`

	// WeekStart is "monday" or "sunday".
	WeekStart string `yaml:"week_start" json:"week_start" koanf:"week_start"`

	// RefreshCron is a standard five-field cron schedule for the periodic sync.
	RefreshCron string `yaml:"refresh" json:"refresh" koanf:"refresh"`

	// SyncDaysBack and SyncDaysAhead bound the window fetched on every sync.
	SyncDaysBack  int `yaml:"sync_days_back" json:"sync_days_back" koanf:"sync_days_back"`
	SyncDaysAhead int `yaml:"sync_days_ahead" json:"sync_days_ahead" koanf:"sync_days_ahead"`

	Owners []OwnerConfig `yaml:"owners" json:"owners" koanf:"owners"`

	// OnCallPath points at the JSON rota file. Empty disables on-call events.
	OnCallPath string `yaml:"oncall_path" json:"oncall_path" koanf:"oncall_path"`
	// OnCallColor, when set, colors every on-call chip instead of the
	// person's own color.
	OnCallColor string `yaml:"oncall_color" json:"oncall_color" koanf:"oncall_color"`

	// HolidaysPath optionally replaces the built-in holiday table.
	HolidaysPath string `yaml:"holidays_path" json:"holidays_path" koanf:"holidays_path"`

	// PrefsDB is the SQLite file that stores display preferences.
	PrefsDB string `yaml:"prefs_db" json:"prefs_db" koanf:"prefs_db"`

	// CacheDir stores ICS bodies and their validators between runs.
	CacheDir string `yaml:"cache_dir" json:"cache_dir" koanf:"cache_dir"`

	// BasicAuth, if non-nil, enables HTTP Basic Authentication on all
	// endpoints except /health.
	BasicAuth *BasicAuthConfig `yaml:"basic_auth,omitempty" json:"basic_auth,omitempty" koanf:"basic_auth"`

	// APIKey, if set, is required in the X-API-Key header on /api routes.
	APIKey string `yaml:"api_key,omitempty" json:"-" koanf:"api_key"`

	Layout   layout.Metrics  `yaml:"layout" json:"layout" koanf:"layout"`
	Popover  popover.Options `yaml:"popover" json:"popover" koanf:"popover"`
	View     view.Policy     `yaml:"view" json:"view" koanf:"view"`
	Snapshot SnapshotConfig  `yaml:"snapshot" json:"snapshot" koanf:"snapshot"`

	LogLevel string `yaml:"log_level" json:"log_level" koanf:"log_level"`
}

const (
	defaultListen   = "127.0.0.1:8080"
	defaultTimezone = "Asia/Taipei"
	defaultCron     = "*/15 * * * *"
)

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	return &Config{
		Listen:        defaultListen,
		Timezone:      defaultTimezone,
		WeekStart:     "monday",
		RefreshCron:   defaultCron,
		SyncDaysBack:  31,
		SyncDaysAhead: 62,
		Owners:        []OwnerConfig{},
		PrefsDB:       "/var/lib/teamcal/prefs.db",
		CacheDir:      "/var/lib/teamcal/cache",
		Layout:        layout.DefaultMetrics(),
		Popover:       popover.DefaultOptions(),
		View:          view.DefaultPolicy(),
		Snapshot: SnapshotConfig{
			Width:      1280,
			Height:     800,
			OutputPath: "/var/lib/teamcal/preview.png",
			TimeoutSec: 30,
		},
		LogLevel: "info",
	}
}

// Normalize fills in missing/zero values with defaults so that
// partially-filled configs still behave correctly.
func (c *Config) Normalize() {
	d := DefaultConfig()
	if c.Listen == "" {
		c.Listen = d.Listen
	}
	if c.Timezone == "" {
		c.Timezone = d.Timezone
	}
	c.WeekStart = strings.ToLower(strings.TrimSpace(c.WeekStart))
	if c.WeekStart != "monday" && c.WeekStart != "sunday" {
		c.WeekStart = "monday"
	}
	if c.RefreshCron == "" {
		c.RefreshCron = d.RefreshCron
	}
	if c.SyncDaysBack < 0 {
		c.SyncDaysBack = 0
	}
	if c.SyncDaysAhead <= 0 {
		c.SyncDaysAhead = d.SyncDaysAhead
	}
	if c.Owners == nil {
		c.Owners = []OwnerConfig{}
	}
	for i := range c.Owners {
		o := &c.Owners[i]
		o.Email = strings.ToLower(strings.TrimSpace(o.Email))
		if o.Name == "" {
			o.Name = o.Email
		}
		o.Color = color.Normalize(o.Color, color.PaletteAt(i))
	}
	if c.OnCallColor != "" && !color.Valid(c.OnCallColor) {
		c.OnCallColor = ""
	}
	c.Layout.Normalize()
	if !(c.Popover.Gap >= 0) {
		c.Popover.Gap = d.Popover.Gap
	}
	if !(c.Popover.Padding >= 0) {
		c.Popover.Padding = d.Popover.Padding
	}
	if !(c.Popover.DefaultSize.Width > 0) || !(c.Popover.DefaultSize.Height > 0) {
		c.Popover.DefaultSize = d.Popover.DefaultSize
	}
	if c.View.Week < 1 {
		c.View.Week = d.View.Week
	}
	if c.View.Day < 1 {
		c.View.Day = d.View.Day
	}
	if c.View.Agenda < 0 {
		c.View.Agenda = 0
	}
	if c.Snapshot.Width <= 0 {
		c.Snapshot.Width = d.Snapshot.Width
	}
	if c.Snapshot.Height <= 0 {
		c.Snapshot.Height = d.Snapshot.Height
	}
	if c.Snapshot.TimeoutSec <= 0 {
		c.Snapshot.TimeoutSec = d.Snapshot.TimeoutSec
	}
	if c.LogLevel == "" {
		c.LogLevel = d.LogLevel
	}
}

// Validate reports settings that Normalize cannot repair.
func (c *Config) Validate() error {
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return fmt.Errorf("%w: timezone %q: %v", ErrInvalidConfig, c.Timezone, err)
	}
	if _, err := cron.ParseStandard(c.RefreshCron); err != nil {
		return fmt.Errorf("%w: refresh %q: %v", ErrInvalidConfig, c.RefreshCron, err)
	}
	seen := make(map[string]bool, len(c.Owners))
	for i, o := range c.Owners {
		if o.Email == "" {
			return fmt.Errorf("%w: owners[%d]: email is empty", ErrInvalidConfig, i)
		}
		if seen[o.Email] {
			return fmt.Errorf("%w: owners[%d]: duplicate email %q", ErrInvalidConfig, i, o.Email)
		}
		seen[o.Email] = true
	}
	if c.BasicAuth != nil && c.BasicAuth.Username == "" {
		return fmt.Errorf("%w: basic_auth.username is empty", ErrInvalidConfig)
	}
	return nil
}

// Location resolves Timezone. Validate guarantees it loads.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
}

// Weekday is the first day of the week.
func (c *Config) Weekday() time.Weekday {
	if c.WeekStart == "sunday" {
		return time.Sunday
	}
	return time.Monday
}

// SyncWindow is the [from, to) range fetched by a sync at now.
func (c *Config) SyncWindow(now time.Time) (time.Time, time.Time) {
	n := now.In(c.Location())
	day := time.Date(n.Year(), n.Month(), n.Day(), 0, 0, 0, 0, n.Location())
	return day.AddDate(0, 0, -c.SyncDaysBack), day.AddDate(0, 0, c.SyncDaysAhead+1)
}

// Owner returns the owner with the given email.
func (c *Config) Owner(email string) (OwnerConfig, bool) {
	email = strings.ToLower(email)
	for _, o := range c.Owners {
		if o.Email == email {
			return o, true
		}
	}
	return OwnerConfig{}, false
}

// Save writes the given configuration to the specified path.
//
// The parent directory is created with 0700 and the file is replaced
// atomically via a temp file + rename, ending with 0600 permissions.
func Save(path string, cfg *Config) error {
	if path == "" {
		return ErrEmptyPath
	}
	if cfg == nil {
		return ErrNilConfig
	}

	cfg.Normalize()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".teamcal-config-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}

// Save delegates to the package-level Save.
func (c *Config) Save(path string) error {
	return Save(path, c)
}

func exists(path string) (bool, error) {
	_, err := os.Stat(path)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return false, err
}
