package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/smartystreets/goconvey/convey"
)

func TestConfigNormalizeAndSave(t *testing.T) {
	convey.Convey("Given a sparse config", t, func() {
		cfg := &Config{WeekStart: "Friday", SyncDaysAhead: -1}
		cfg.Normalize()

		convey.Convey("Then unusable values fall back to defaults", func() {
			convey.So(cfg.WeekStart, convey.ShouldEqual, "monday")
			convey.So(cfg.Weekday(), convey.ShouldEqual, time.Monday)
			convey.So(cfg.SyncDaysAhead, convey.ShouldEqual, 62)
			convey.So(cfg.Layout.RowMin, convey.ShouldEqual, 96)
			convey.So(cfg.Popover.DefaultSize.Width, convey.ShouldEqual, 320)
			convey.So(cfg.View.Week, convey.ShouldEqual, 5)
			convey.So(cfg.Validate(), convey.ShouldBeNil)
		})

		convey.Convey("When it is saved and reloaded", func() {
			path := filepath.Join(t.TempDir(), "config.yaml")
			cfg.Owners = []OwnerConfig{{Email: "a@example.com", ICSURL: "https://example.com/a.ics"}}
			convey.So(cfg.Save(path), convey.ShouldBeNil)

			loaded, err := Load(path)
			convey.So(err, convey.ShouldBeNil)
			convey.So(loaded.Owners, convey.ShouldHaveLength, 1)
			convey.So(loaded.Owners[0].ICSURL, convey.ShouldEqual, "https://example.com/a.ics")
			convey.So(loaded.Owners[0].Color, convey.ShouldEqual, "#3174ad")
			convey.So(loaded.View.Agenda, convey.ShouldEqual, 0)

			raw, err := os.ReadFile(path)
			convey.So(err, convey.ShouldBeNil)
			convey.So(string(raw), convey.ShouldNotContainSubstring, "9223372036854775807")
		})
	})

	convey.Convey("Given a sync window", t, func() {
		cfg := DefaultConfig()
		cfg.SyncDaysBack, cfg.SyncDaysAhead = 2, 3
		now := time.Date(2026, 10, 19, 23, 30, 0, 0, time.UTC) // Oct 20 07:30 in Taipei
		from, to := cfg.SyncWindow(now)

		convey.So(from.Format("2006-01-02"), convey.ShouldEqual, "2026-10-18")
		convey.So(to.Format("2006-01-02"), convey.ShouldEqual, "2026-10-24")
	})

	convey.Convey("Save rejects a nil config and an empty path", t, func() {
		convey.So(Save("x.yaml", nil), convey.ShouldEqual, ErrNilConfig)
		convey.So(Save("", DefaultConfig()), convey.ShouldEqual, ErrEmptyPath)
	})
}
