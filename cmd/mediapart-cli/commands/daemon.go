package commands

import (
	"log/slog"

	"mediapart-bills/internal/components/chrono"
	"mediapart-bills/pkg/serviceutil"

	"github.com/spf13/cobra"
)

var syncNow *bool

func init() {
	syncNow = daemonCmd.Flags().Bool("now", false, "Sync once immediately on start.")
	rootCmd.AddCommand(daemonCmd)
}

var daemonCmd = &cobra.Command{
	Use:   "daemon [--now]",
	Short: "Syncs on the schedule of the config until interrupted.",
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()

		cfg, err := readConfig()
		if err != nil {
			serviceutil.Fatal("failed to read config", err)
		}
		store, closeDb, err := openStore(ctx, cfg)
		if err != nil {
			serviceutil.Fatal("failed to open db", err)
		}
		defer closeDb()

		// runs never overlap, a tick that comes while syncing is dropped
		busy := make(chan struct{}, 1)
		job := func() {
			select {
			case busy <- struct{}{}:
			default:
				slog.Warn("previous sync still running, skipping")
				return
			}
			defer func() { <-busy }()

			run, err := syncOnce(ctx, cfg, store)
			if err != nil {
				slog.Error("sync failed", "run", run.Id, "err", err)
				return
			}
			slog.Info("sync finished", "run", run.Id, "saved", run.Saved, "skipped", run.Skipped)
		}

		cron := chrono.NewStandardCron(tel, chrono.NewStandardImpl())
		defer cron.Stop()
		err = cron.Cron(cfg.Schedule, job)
		if err != nil {
			serviceutil.Fatal("invalid schedule", err)
		}
		if *syncNow {
			go job()
		}

		slog.Info("waiting for schedule", "schedule", cfg.Schedule)
		<-ctx.Done()
	},
}
