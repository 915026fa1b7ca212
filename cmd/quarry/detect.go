package main

import (
	"path/filepath"
	"slices"

	"github.com/FranksOps/quarry/internal/config"
	"github.com/FranksOps/quarry/internal/langdetect"
	"github.com/FranksOps/quarry/internal/pipeline"
	"github.com/FranksOps/quarry/internal/report"
	"github.com/FranksOps/quarry/internal/serp"
	"github.com/FranksOps/quarry/internal/tabular"
	"github.com/spf13/cobra"
)

func newDetectCmd(opts *options) *cobra.Command {
	var keep []string
	cmd := &cobra.Command{
		Use:   "detect",
		Short: "Detect the snippet languages of an existing results table",
		Long: `detect reads InputFile as a results table (query, rank, url, title and
snippet columns), assigns a language to every snippet and writes the table,
with a language column, to the output directory under the same name.
With --keep, only rows in the listed languages are written.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runDetect(opts, keep)
		},
	}
	cmd.Flags().StringSliceVar(&keep, "keep", nil, "language codes to keep, e.g. en,de (default all)")
	return cmd
}

func runDetect(opts *options, keep []string) error {
	cfg, logger, closeLog, err := setup(opts, (*config.Config).Validate)
	if err != nil {
		return err
	}
	defer closeLog()

	if !cfg.DetectLanguages {
		logger.Info("language detection disabled, nothing to do")
		return nil
	}

	results, err := tabular.ReadResults(cfg.InputFile, cfg.Comma())
	if err != nil {
		return fail(exitInput, err)
	}
	logger.Info("search results read", "path", cfg.InputFile, "rows", len(results))

	pipeline.Classify(langdetect.NewCached(langdetect.Whatlang{}, 0), results, logger)
	if len(keep) > 0 {
		n := len(results)
		results = keepLanguages(results, keep)
		logger.Info("rows filtered by language", "keep", keep, "dropped", n-len(results))
	}

	w := tabular.Writer{Dir: cfg.OutputDirectory, Delimiter: cfg.Comma(), Logger: logger}
	summary := report.FromResults(results)
	if summary.ResultsFile, _, err = w.WriteResults(filepath.Base(cfg.InputFile), results, true); err != nil {
		return fail(exitRuntime, err)
	}

	format, _ := report.ParseFormat(cfg.ReportFormat)
	if err := report.Write(opts.stdout, format, summary); err != nil {
		return fail(exitRuntime, err)
	}
	return nil
}

// keepLanguages returns the results whose language is one of langs.
func keepLanguages(results []serp.Result, langs []string) []serp.Result {
	out := results[:0]
	for _, r := range results {
		if slices.Contains(langs, r.Language) {
			out = append(out, r)
		}
	}
	return out
}
