package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"mediapart-bills/internal/components/telemetry"

	"github.com/spf13/cobra"
)

var (
	configName *string
	dumpHttp   *string
	verbose    *bool
)

// set up in PersistentPreRun
var (
	tel       telemetry.API = telemetry.SlogAPI{}
	telSetup  telemetry.Telemetry
	httpDumps telemetry.MessageOutput
)

func init() {
	configName = rootCmd.PersistentFlags().String("config", "config.json5", "The config file to read.")
	dumpHttp = rootCmd.PersistentFlags().String("dump-http", "", "A directory to write every http exchange to.")
	verbose = rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Enable debug logging.")
}

var rootCmd = &cobra.Command{
	Use:   "mediapart-cli",
	Short: "mediapart-cli collects the bills of a Mediapart subscription.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		telemetry.InitSlog(*verbose)

		setup, err := telemetry.SetupFromEnv(cmd.Context(), "mediapart-cli")
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			slog.Warn("could not setup telemetry", "err", err)
		}
		telSetup = setup

		otelApi, err := telemetry.NewOtelAPI(telemetry.SlogAPI{})
		if err != nil {
			return fmt.Errorf("init telemetry: %w", err)
		}
		tel = otelApi

		if *dumpHttp != "" {
			output, err := telemetry.NewFilesystemOutput(*dumpHttp)
			if err != nil {
				return fmt.Errorf("init http dumps: %w", err)
			}
			httpDumps = output
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		err := telSetup.Shutdown(context.WithoutCancel(cmd.Context()))
		if err != nil {
			slog.Warn("could not shutdown telemetry", "err", err)
		}
	},
}

func ExecuteContext(ctx context.Context) {
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
