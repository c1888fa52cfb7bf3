package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"mediapart-bills/internal/billstore"
	"mediapart-bills/internal/components/chrono"
	"mediapart-bills/internal/scrapers/mediapart"
	"mediapart-bills/pkg/serviceutil"

	"github.com/spf13/cobra"
)

const report_sync_line = "sync.line-failure"

var savePage *string

func init() {
	savePage = syncCmd.Flags().String("save-page", "", "Write the html of the bills page to this file.")
	rootCmd.AddCommand(syncCmd)
}

// syncOnce logs in, collects the bills and stores the new ones. The run is
// recorded even when it fails.
func syncOnce(ctx context.Context, cfg Config, store billstore.Store) (billstore.RunSummary, error) {
	time := chrono.NewStandardImpl()
	run := billstore.RunSummary{
		Id:        billstore.NewRunId(),
		Vendor:    mediapart.Vendor,
		StartedAt: time.Now(),
	}

	err := func() error {
		urls, err := cfg.urls()
		if err != nil {
			return fmt.Errorf("base urls: %w", err)
		}
		konnector, err := mediapart.NewKonnector(mediapart.ClientOptions{
			Urls:              urls,
			Output:            httpDumps,
			RequestsPerSecond: cfg.RequestsPerSecond,
		}, time, tel)
		if err != nil {
			return err
		}

		result, page, err := konnector.Fetch(ctx, cfg.Login, cfg.Password)
		if *savePage != "" && page != nil {
			if err := os.WriteFile(*savePage, page, 0666); err != nil {
				slog.Warn("could not save bills page", "err", err)
			}
		}
		if err != nil {
			return err
		}
		run.Era = result.Era
		run.Failures = len(result.Failures)
		for _, failure := range result.Failures {
			tel.ReportWarning(report_sync_line, failure)
		}

		summary, err := store.SaveBills(
			ctx,
			run.Id,
			cfg.FolderPath,
			result.Records,
			billstore.SaveOptions{
				Keys:        mediapart.DedupKeys,
				Identifiers: mediapart.Identifiers,
			},
			konnector.Client,
		)
		run.Saved = summary.Saved
		run.Skipped = summary.Skipped
		return err
	}()
	run.Err = err

	_, recordErr := store.RecordRun(ctx, run)
	return run, errors.Join(err, recordErr)
}

var syncCmd = &cobra.Command{
	Use:   "sync [--save-page <file.html>]",
	Short: "Logs in, downloads the new bills and stores them.",
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := readConfig()
		if err != nil {
			serviceutil.Fatal("failed to read config", err)
		}
		store, closeDb, err := openStore(cmd.Context(), cfg)
		if err != nil {
			serviceutil.Fatal("failed to open db", err)
		}
		defer closeDb()

		run, err := syncOnce(cmd.Context(), cfg, store)
		slog.Info(
			"sync finished",
			"run", run.Id,
			"era", run.Era,
			"saved", run.Saved,
			"skipped", run.Skipped,
			"failures", run.Failures,
		)
		if err != nil {
			closeDb()
			serviceutil.Fatal("sync failed", err)
		}
	},
}
