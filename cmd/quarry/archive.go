package main

import (
	"context"
	"fmt"
	"time"

	"github.com/FranksOps/quarry/internal/config"
	"github.com/FranksOps/quarry/internal/report"
	"github.com/FranksOps/quarry/internal/serp"
	"github.com/FranksOps/quarry/internal/storage"
	"github.com/FranksOps/quarry/internal/storage/jsonbackend"
	"github.com/FranksOps/quarry/internal/storage/postgres"
	"github.com/FranksOps/quarry/internal/storage/sqlite"
	"github.com/FranksOps/quarry/internal/tabular"
	"github.com/spf13/cobra"
)

// openArchive opens the configured archive backend. An empty backend means
// archiving is off and returns a nil Backend.
func openArchive(ctx context.Context, backend, dsn string) (storage.Backend, error) {
	switch backend {
	case "":
		return nil, nil
	case "sqlite":
		return sqlite.New(dsn)
	case "postgres":
		return postgres.New(ctx, dsn)
	case "json":
		return jsonbackend.New(dsn)
	default:
		return nil, fmt.Errorf("unknown archive backend %q", backend)
	}
}

type archiveFlags struct {
	run    string
	query  string
	since  time.Duration
	limit  int
	offset int
}

func newArchiveCmd(opts *options) *cobra.Command {
	var flags archiveFlags
	cmd := &cobra.Command{
		Use:   "archive",
		Short: "Export archived search results",
		Long: `archive reads records saved by earlier runs from ArchiveBackend, newest
first, and writes them as a results table to stdout. A summary of the
selection goes to stderr.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runArchive(cmd.Context(), opts, flags)
		},
	}
	cmd.Flags().StringVar(&flags.run, "run", "", "only records of this run ID")
	cmd.Flags().StringVar(&flags.query, "query", "", "only records of this normalized query")
	cmd.Flags().DurationVar(&flags.since, "since", 0, "only records archived within this duration, e.g. 24h")
	cmd.Flags().IntVar(&flags.limit, "limit", 0, "maximum number of records (0 means all)")
	cmd.Flags().IntVar(&flags.offset, "offset", 0, "number of records to skip")
	return cmd
}

func runArchive(ctx context.Context, opts *options, flags archiveFlags) error {
	cfg, logger, closeLog, err := setup(opts, (*config.Config).ValidateArchive)
	if err != nil {
		return err
	}
	defer closeLog()

	if flags.limit < 0 || flags.offset < 0 {
		return fail(exitConfig, fmt.Errorf("%w: --limit and --offset must not be negative", config.ErrInvalid))
	}

	b, err := openArchive(ctx, cfg.ArchiveBackend, cfg.ArchiveDSN)
	if err != nil {
		return fail(exitConfig, err)
	}
	defer b.Close()

	filter := storage.Filter{
		RunID:  flags.run,
		Query:  flags.query,
		Limit:  flags.limit,
		Offset: flags.offset,
	}
	if flags.since > 0 {
		since := time.Now().Add(-flags.since).UTC()
		filter.Since = &since
	}

	records, err := b.Query(ctx, filter)
	if err != nil {
		return fail(exitRuntime, err)
	}
	logger.Info("archived records selected", "backend", cfg.ArchiveBackend, "records", len(records))

	results := make([]serp.Result, 0, len(records))
	withLanguage := false
	for _, r := range records {
		results = append(results, r.Result())
		if r.Language != "" {
			withLanguage = true
		}
	}
	if _, err := tabular.EncodeResults(opts.stdout, cfg.Comma(), results, withLanguage, logger); err != nil {
		return fail(exitRuntime, err)
	}

	format, _ := report.ParseFormat(cfg.ReportFormat)
	if err := report.Write(opts.stderr, format, report.FromRecords(records)); err != nil {
		return fail(exitRuntime, err)
	}
	return nil
}
