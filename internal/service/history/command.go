package history

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/oshokin/onec-updater/internal/config"
	"github.com/oshokin/onec-updater/internal/logger"
	"github.com/oshokin/onec-updater/internal/repository/history"
)

// DefaultLimit is the number of records printed when no limit is given.
const DefaultLimit = 20

var errJournalDisabled = errors.New("historyPath is empty, the download journal is disabled")

// Options are inputs accepted by the history entry point.
type Options struct {
	// ConfigPath is the optional path to the settings file.
	ConfigPath string
	// Limit caps the number of printed records; zero or less prints all of them.
	Limit int
	// Output receives the table. Defaults to stdout.
	Output io.Writer
}

// Run prints the most recent downloads from the journal, newest first.
func Run(ctx context.Context, opts *Options) error {
	ctx = logger.WithName(ctx, "history")

	if opts == nil {
		opts = &Options{Limit: DefaultLimit}
	}

	settings, err := config.Load(opts.ConfigPath)
	if err != nil {
		return err
	}

	if settings.HistoryPath == "" {
		return errJournalDisabled
	}

	journal, err := history.OpenSQLite(ctx, settings.HistoryPath)
	if err != nil {
		return err
	}

	defer func() {
		if closeErr := journal.Close(); closeErr != nil {
			logger.WarnKV(ctx, "Unable to close download journal", "error", closeErr)
		}
	}()

	records, err := journal.List(ctx, opts.Limit)
	if err != nil {
		return err
	}

	output := opts.Output
	if output == nil {
		output = os.Stdout
	}

	return render(output, records)
}

// render writes records as an aligned table.
func render(w io.Writer, records []history.Record) error {
	if len(records) == 0 {
		_, err := fmt.Fprintln(w, "No downloads recorded yet.")
		return err
	}

	table := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)

	_, _ = fmt.Fprintln(table, "DOWNLOADED\tKIND\tPRODUCT\tVERSION\tSIZE\tPATH")

	for i := range records {
		r := &records[i]

		_, _ = fmt.Fprintf(table, "%s\t%s\t%s\t%s\t%d\t%s\n",
			r.DownloadedAt.Local().Format(time.DateTime), r.Kind, r.Product, r.Version, r.Size, r.Path)
	}

	return table.Flush()
}
