package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"teamcal/internal/config"
	"teamcal/internal/ics"
	appLog "teamcal/internal/log"
	"teamcal/internal/metrics"
	"teamcal/internal/refresh"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "0.1.0-dev"

// rootFlags holds flags shared by every subcommand.
type rootFlags struct {
	configPath string
	listen     string
	logLevel   string
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	flags := &rootFlags{}
	root := &cobra.Command{
		Use:   "teamcal",
		Short: "Team calendar aggregator",
		Long: `teamcal merges the calendars of a team, the on-call rota and public
holidays into one month, week, day or agenda grid.

It can run as:
  - an HTTP server with the /calendar page and JSON API (serve)
  - a terminal calendar (tui)
  - a one-shot PNG renderer (snapshot)`,
		SilenceUsage: true,
		Version:      version,
	}
	root.SetVersionTemplate(`{{printf "teamcal version %s\n" .Version}}`)

	root.PersistentFlags().StringVar(&flags.configPath, "config", "/etc/teamcal/config.yaml", "Path to config file")
	root.PersistentFlags().StringVar(&flags.listen, "listen", "", "HTTP listen address (overrides config if set)")
	root.PersistentFlags().StringVar(&flags.logLevel, "log-level", "", "Log level (overrides config if set)")

	root.AddCommand(
		newServeCmd(flags),
		newTUICmd(flags),
		newSnapshotCmd(flags),
		newVersionCmd(),
	)
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "teamcal version %s\n", version)
		},
	}
}

// loadConfig reads the config file and applies flag overrides.
func loadConfig(flags *rootFlags) (*config.Config, error) {
	conf, err := config.Load(flags.configPath)
	if err != nil {
		appLog.Error("failed to load config", err, "config_path", flags.configPath)
		return nil, err
	}

	// CLI --listen overrides config file listen if provided.
	if flags.listen != "" {
		conf.Listen = flags.listen
	}
	if flags.logLevel != "" {
		conf.LogLevel = flags.logLevel
	}
	level, err := appLog.ParseLevel(conf.LogLevel)
	if err != nil {
		return nil, err
	}
	appLog.SetLevel(level)

	appLog.Info("effective config",
		"listen", conf.Listen,
		"timezone", conf.Timezone,
		"week_start", conf.WeekStart,
		"refresh", conf.RefreshCron,
		"owners", len(conf.Owners),
		"oncall_path", conf.OnCallPath,
		"prefs_db", conf.PrefsDB,
	)
	return conf, nil
}

// newRefresh wires the ICS fetcher into a refresh service.
func newRefresh(conf *config.Config, m *metrics.Manager) *refresh.Service {
	fetcher := ics.NewFetcher(conf.CacheDir, &http.Client{Timeout: 30 * time.Second})
	return refresh.New(conf, fetcher, refresh.WithMetrics(m))
}

// signalContext is cancelled on SIGINT/SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case sig := <-sigCh:
			appLog.Info("signal received, shutting down", "signal", sig.String())
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigCh)
	}()
	return ctx, cancel
}
