package main

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"strconv"

	"github.com/spf13/cobra"

	"teamcal/internal/capture"
	appLog "teamcal/internal/log"
	"teamcal/internal/prefs"
	"teamcal/internal/web"
)

func newSnapshotCmd(flags *rootFlags) *cobra.Command {
	var viewName, date, output string
	cmd := &cobra.Command{
		Use:   "snapshot",
		Short: "Sync once and capture the /calendar page as PNG",
		RunE: func(cmd *cobra.Command, _ []string) error {
			conf, err := loadConfig(flags)
			if err != nil {
				return err
			}
			if output != "" {
				conf.Snapshot.OutputPath = output
			}
			ctx, cancel := signalContext()
			defer cancel()

			svc := newRefresh(conf, nil)
			if err := svc.Sync(ctx); err != nil {
				appLog.Warn("sync finished with errors; capturing what is available", "err", err)
			}

			store, err := prefs.Open(conf.PrefsDB)
			if err != nil {
				appLog.Warn("preference store unavailable; using defaults", "err", err)
				store = nil
			} else {
				defer store.Close()
			}

			// The page is served on an ephemeral loopback port only for the
			// headless browser, so auth is off.
			local := *conf
			local.BasicAuth = nil
			local.APIKey = ""

			ln, err := net.Listen("tcp", "127.0.0.1:0")
			if err != nil {
				return err
			}
			srvCtx, stop := context.WithCancel(ctx)
			defer stop()
			done := make(chan error, 1)
			go func() { done <- web.NewServer(&local, svc, store).Serve(srvCtx, ln) }()

			q := url.Values{}
			q.Set("height", strconv.Itoa(conf.Snapshot.Height))
			if viewName != "" {
				q.Set("view", viewName)
			}
			if date != "" {
				q.Set("date", date)
			}
			pageURL := fmt.Sprintf("http://%s/calendar?%s", ln.Addr().String(), q.Encode())

			res, err := capture.CaptureCalendarPNG(ctx, capture.OptionsFromConfig(conf, pageURL))
			stop()
			if serveErr := <-done; serveErr != nil {
				appLog.Warn("snapshot server stopped with error", "err", serveErr)
			}
			if err != nil {
				return err
			}

			kv := []any{"path", res.Path}
			if res.Measured {
				kv = append(kv, "calendar_width", res.Calendar.Width, "calendar_height", res.Calendar.Height)
			}
			appLog.Info("snapshot written", kv...)
			fmt.Fprintln(cmd.OutOrStdout(), res.Path)
			return nil
		},
	}
	cmd.Flags().StringVar(&viewName, "view", "", "month, week, day or agenda")
	cmd.Flags().StringVar(&date, "date", "", "Anchor date (YYYY-MM-DD), default today")
	cmd.Flags().StringVarP(&output, "output", "o", "", "PNG path (overrides snapshot.output_path)")
	return cmd
}
