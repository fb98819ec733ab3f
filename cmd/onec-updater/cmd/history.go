package cmd

import (
	"github.com/spf13/cobra"

	"github.com/oshokin/onec-updater/internal/service/history"
)

var (
	// limit caps the number of printed journal records.
	limit int

	// historyCmd prints the download journal.
	historyCmd = &cobra.Command{
		Use:   "history",
		Short: "Show recently downloaded archives",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return history.Run(cmd.Context(), &history.Options{
				ConfigPath: configPath,
				Limit:      limit,
				Output:     cmd.OutOrStdout(),
			})
		},
	}
)

//nolint:gochecknoinits // Required by Cobra CLI framework architecture.
func init() {
	historyCmd.Flags().IntVarP(&limit, "limit", "n", history.DefaultLimit, "number of records to show, 0 for all")
}
