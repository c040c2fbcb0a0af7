package main

import (
	"context"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	appLog "teamcal/internal/log"
	"teamcal/internal/prefs"
	"teamcal/internal/tui"
)

func newTUICmd(flags *rootFlags) *cobra.Command {
	var logFile string
	cmd := &cobra.Command{
		Use:   "tui",
		Short: "Browse the team calendar in the terminal",
		RunE: func(cmd *cobra.Command, _ []string) error {
			conf, err := loadConfig(flags)
			if err != nil {
				return err
			}

			// Log lines would tear the alternate screen.
			var out io.Writer = io.Discard
			if logFile != "" {
				f, err := os.OpenFile(logFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
				if err != nil {
					return err
				}
				defer f.Close()
				out = f
			}
			appLog.SetOutput(out)

			ctx, cancel := signalContext()
			defer cancel()

			svc := newRefresh(conf, nil)
			syncCtx, syncCancel := context.WithTimeout(ctx, 30*time.Second)
			if err := svc.Sync(syncCtx); err != nil {
				appLog.Warn("initial sync finished with errors", "err", err)
			}
			syncCancel()

			var opts []tui.Option
			if store, err := prefs.Open(conf.PrefsDB); err == nil {
				opts = append(opts, tui.WithSettings(store.Get()))
				store.Close()
			} else {
				appLog.Warn("preference store unavailable; using defaults", "err", err)
			}
			return tui.Run(ctx, conf, svc, opts...)
		},
	}
	cmd.Flags().StringVar(&logFile, "log-file", "", "Write logs to this file while the UI runs")
	return cmd
}
