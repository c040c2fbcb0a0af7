package main

import (
	"errors"

	"github.com/spf13/cobra"

	appLog "teamcal/internal/log"
	"teamcal/internal/metrics"
	"teamcal/internal/prefs"
	"teamcal/internal/refresh"
	"teamcal/internal/web"
)

func newServeCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server and the scheduled refresh",
		RunE: func(cmd *cobra.Command, _ []string) error {
			conf, err := loadConfig(flags)
			if err != nil {
				return err
			}
			ctx, cancel := signalContext()
			defer cancel()

			m := metrics.NewManager()
			svc := newRefresh(conf, m)

			store, err := prefs.Open(conf.PrefsDB)
			if err != nil {
				appLog.Error("failed to open preference store; serving defaults", err, "path", conf.PrefsDB)
				store = nil
			} else {
				defer store.Close()
			}

			// The first sync runs in the background so the server answers
			// /health right away.
			go func() {
				if err := svc.Sync(ctx); err != nil && !errors.Is(err, refresh.ErrSyncInProgress) {
					appLog.Warn("initial sync finished with errors", "err", err)
				}
			}()
			if err := svc.Start(ctx); err != nil {
				return err
			}
			defer svc.Stop()

			srv := web.NewServer(conf, svc, store, web.WithMetrics(m))
			err = srv.Run(ctx)
			appLog.Info("teamcal exiting")
			return err
		},
	}
}
