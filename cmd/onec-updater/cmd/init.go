package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/oshokin/onec-updater/internal/config"
	"github.com/oshokin/onec-updater/internal/logger"
)

var errSettingsExist = errors.New("settings file already exists, use --force to overwrite it")

var (
	// force allows init to overwrite an existing settings file.
	force bool

	// initCmd writes sample settings.
	initCmd = &cobra.Command{
		Use:   "init [path]",
		Short: "Write a sample settings file",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := configPath
			if len(args) > 0 {
				path = args[0]
			}

			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s: %w", path, errSettingsExist)
			}

			if err := config.Save(path, config.Sample()); err != nil {
				return err
			}

			logger.InfoKV(cmd.Context(), "Sample settings written", "path", path)

			return nil
		},
	}
)

//nolint:gochecknoinits // Required by Cobra CLI framework architecture.
func init() {
	initCmd.Flags().BoolVarP(&force, "force", "f", false, "overwrite an existing settings file")
}
