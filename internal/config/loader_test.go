package config_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/smartystreets/goconvey/convey"

	"teamcal/internal/config"
)

func writeConfig(t *testing.T, body string) string {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func clearConfigEnvVars() {
	for _, k := range []string{
		"TEAMCAL_LISTEN",
		"TEAMCAL_TIMEZONE",
		"TEAMCAL_LOG_LEVEL",
		"TEAMCAL_BASIC_AUTH__USERNAME",
		"TEAMCAL_BASIC_AUTH__PASSWORD",
		"TEAMCAL_LAYOUT__CHIP_HEIGHT",
	} {
		_ = os.Unsetenv(k)
	}
}

func TestConfigLoader(t *testing.T) {
	convey.Convey("Given a config loader", t, func() {
		clearConfigEnvVars()

		convey.Convey("When the file does not exist", func() {
			path := filepath.Join(t.TempDir(), "nested", "config.yaml")
			cfg, err := config.Load(path)

			convey.Convey("Then defaults are returned and written with 0600", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Listen, convey.ShouldEqual, "127.0.0.1:8080")
				convey.So(cfg.Timezone, convey.ShouldEqual, "Asia/Taipei")
				convey.So(cfg.Layout.ChipHeight, convey.ShouldEqual, 22)

				info, statErr := os.Stat(path)
				convey.So(statErr, convey.ShouldBeNil)
				convey.So(info.Mode().Perm(), convey.ShouldEqual, os.FileMode(0o600))
			})
		})

		convey.Convey("When loading a partial YAML file", func() {
			path := writeConfig(t, `
listen: ":9090"
week_start: Sunday
owners:
  - email: Alice@Example.com
    name: Alice
  - email: bob@example.com
    color: "#123456"
  - email: carol@example.com
    color: "not-a-color"
layout:
  chip_height: 30
`)
			cfg, err := config.Load(path)

			convey.Convey("Then file values merge with defaults", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Listen, convey.ShouldEqual, ":9090")
				convey.So(cfg.WeekStart, convey.ShouldEqual, "sunday")
				convey.So(cfg.RefreshCron, convey.ShouldEqual, "*/15 * * * *")
				convey.So(cfg.Layout.ChipHeight, convey.ShouldEqual, 30)
				convey.So(cfg.Layout.DayHeader, convey.ShouldEqual, 24)
				convey.So(cfg.Popover.Gap, convey.ShouldEqual, 8)
			})

			convey.Convey("Then owners are normalized and colored from the palette", func() {
				convey.So(cfg.Owners, convey.ShouldHaveLength, 3)
				convey.So(cfg.Owners[0].Email, convey.ShouldEqual, "alice@example.com")
				convey.So(cfg.Owners[0].Color, convey.ShouldEqual, "#3174ad")
				convey.So(cfg.Owners[1].Name, convey.ShouldEqual, "bob@example.com")
				convey.So(cfg.Owners[1].Color, convey.ShouldEqual, "#123456")
				convey.So(cfg.Owners[2].Color, convey.ShouldEqual, "#0b6a0b")

				o, ok := cfg.Owner("ALICE@example.com")
				convey.So(ok, convey.ShouldBeTrue)
				convey.So(o.Name, convey.ShouldEqual, "Alice")
			})
		})

		convey.Convey("When environment variables are set", func() {
			path := writeConfig(t, "listen: \":9090\"\nlog_level: warn\n")
			_ = os.Setenv("TEAMCAL_LISTEN", ":7000")
			_ = os.Setenv("TEAMCAL_BASIC_AUTH__USERNAME", "admin")
			_ = os.Setenv("TEAMCAL_BASIC_AUTH__PASSWORD", "secret")
			_ = os.Setenv("TEAMCAL_LAYOUT__CHIP_HEIGHT", "18")
			defer clearConfigEnvVars()

			cfg, err := config.Load(path)

			convey.Convey("Then they override the file", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Listen, convey.ShouldEqual, ":7000")
				convey.So(cfg.LogLevel, convey.ShouldEqual, "warn")
				convey.So(cfg.BasicAuth, convey.ShouldNotBeNil)
				convey.So(cfg.BasicAuth.Username, convey.ShouldEqual, "admin")
				convey.So(cfg.BasicAuth.Password, convey.ShouldEqual, "secret")
				convey.So(cfg.Layout.ChipHeight, convey.ShouldEqual, 18)
			})
		})

		convey.Convey("When the YAML is malformed", func() {
			path := writeConfig(t, "invalid: yaml: content: [")
			cfg, err := config.Load(path)

			convey.Convey("Then a load error is returned", func() {
				convey.So(cfg, convey.ShouldBeNil)
				convey.So(errors.Is(err, config.ErrLoadConfig), convey.ShouldBeTrue)
			})
		})

		convey.Convey("When the timezone is unknown", func() {
			path := writeConfig(t, "timezone: Mars/Olympus\n")
			cfg, err := config.Load(path)

			convey.Convey("Then validation fails", func() {
				convey.So(cfg, convey.ShouldBeNil)
				convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
			})
		})

		convey.Convey("When two owners share an email", func() {
			path := writeConfig(t, "owners:\n  - email: a@x.com\n  - email: A@x.com\n")
			_, err := config.Load(path)

			convey.Convey("Then validation fails", func() {
				convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
				convey.So(err.Error(), convey.ShouldContainSubstring, "duplicate email")
			})
		})

		convey.Convey("When the refresh schedule is not a cron expression", func() {
			path := writeConfig(t, "refresh: every minute\n")
			_, err := config.Load(path)

			convey.Convey("Then validation fails", func() {
				convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
			})
		})

		convey.Convey("When the path is empty", func() {
			_, err := config.Load("")
			convey.So(errors.Is(err, config.ErrEmptyPath), convey.ShouldBeTrue)
		})
	})
}
