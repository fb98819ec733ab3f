package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/oshokin/onec-updater/internal/config"
	"github.com/oshokin/onec-updater/internal/logger"
	"github.com/oshokin/onec-updater/internal/service/updater"
	"github.com/oshokin/onec-updater/internal/version"
)

var (
	// configPath to the settings file (JSON or YAML).
	configPath string

	// logLevel overrides the default info level.
	logLevel string

	skipPlatform       bool
	skipConfigurations bool

	// rootCmd downloads platform and configuration updates.
	rootCmd = &cobra.Command{
		Use:   "onec-updater",
		Short: "Download 1C platform and configuration updates",
		Long: "Checks the update service for a newer 1C platform and for newer releases of every configured " +
			"configuration, then downloads the archives into the template directory tree.",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			level, ok := logger.ParseLogLevel(logLevel)
			if !ok {
				return fmt.Errorf("unknown log level %q", logLevel)
			}

			logger.SetLevel(level)

			return nil
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return updater.Run(cmd.Context(), &updater.Options{
				ConfigPath:         configPath,
				SkipPlatform:       skipPlatform,
				SkipConfigurations: skipConfigurations,
			})
		},
	}
)

// Execute runs the onec-updater CLI and exits with non-zero status on error.
func Execute() {
	// Setup graceful shutdown handling.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	version.AttachCobraVersionCommand(rootCmd)

	err := rootCmd.ExecuteContext(ctx)
	if err != nil {
		logger.ErrorKV(ctx, "Execution failed", "error", err)
	}

	//nolint:errcheck // Sync on stdout fails on some platforms and there is nothing to do about it.
	logger.Logger().Sync()

	if err != nil {
		stop()
		os.Exit(1) //nolint:gocritic // stop is called explicitly above.
	}
}

//nolint:gochecknoinits // Required by Cobra CLI framework architecture.
func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", config.DefaultSettingsFilename,
		"path to settings file (JSON or YAML)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level: debug, info, warn, error")

	rootCmd.Flags().BoolVar(&skipPlatform, "skip-platform", false, "do not check for platform updates")
	rootCmd.Flags().BoolVar(&skipConfigurations, "skip-configurations", false, "do not check for configuration updates")

	rootCmd.AddCommand(initCmd, historyCmd)
}
