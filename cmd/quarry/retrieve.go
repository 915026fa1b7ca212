package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/FranksOps/quarry/internal/config"
	"github.com/FranksOps/quarry/internal/fingerprint"
	"github.com/FranksOps/quarry/internal/langdetect"
	"github.com/FranksOps/quarry/internal/metrics"
	"github.com/FranksOps/quarry/internal/pipeline"
	"github.com/FranksOps/quarry/internal/query"
	"github.com/FranksOps/quarry/internal/report"
	"github.com/FranksOps/quarry/internal/retry"
	"github.com/FranksOps/quarry/internal/scraper"
	"github.com/FranksOps/quarry/internal/serp"
	"github.com/FranksOps/quarry/internal/tabular"
	"github.com/FranksOps/quarry/pkg/proxy"
	"github.com/FranksOps/quarry/pkg/ratelimit"
	"github.com/FranksOps/quarry/pkg/useragent"
)

func runRetrieve(ctx context.Context, opts *options) error {
	cfg, logger, closeLog, err := setup(opts, (*config.Config).Validate)
	if err != nil {
		return err
	}
	defer closeLog()

	if cfg.MetricsPort > 0 {
		srv := metrics.Start(cfg.MetricsPort, logger)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Stop(shutdownCtx)
		}()
	}

	raws, err := tabular.ReadQueries(cfg.InputFile, cfg.Comma())
	if err != nil {
		return fail(exitInput, err)
	}
	logger.Info("search queries read", "path", cfg.InputFile, "rows", len(raws))

	uas := useragent.NewPool(cfg.UserAgents)
	client, fetcher, err := newClient(cfg, uas, logger)
	if err != nil {
		return fail(exitConfig, err)
	}

	if cfg.RespectRobots {
		auditor := scraper.NewRobotsTxtAuditor(fetcher, logger)
		allowed, err := auditor.IsAllowed(ctx, client.SearchURL("robots"), uas.Get())
		if err != nil {
			return fail(exitRuntime, fmt.Errorf("robots.txt check: %w", err))
		}
		if !allowed {
			return fail(exitRuntime, fmt.Errorf("robots.txt disallows %s", cfg.Endpoint))
		}
	}

	archive, err := openArchive(ctx, cfg.ArchiveBackend, cfg.ArchiveDSN)
	if err != nil {
		return fail(exitConfig, err)
	}
	if archive != nil {
		defer archive.Close()
	}

	p := &pipeline.Pipeline{
		Provider: client,
		Policy: retry.Policy{
			Limit:       retryLimit(cfg.RetryLimit),
			WaitOnError: cfg.WaitOnError,
			Throttle:    ratelimit.NewLimiter(cfg.MinWait, cfg.MaxWait),
			Logger:      logger,
		},
		Options: query.Options{
			ExactMatches:            cfg.ExactMatches,
			RemoveSpecialCharacters: cfg.RemoveSpecialCharacters,
			Transliterate:           cfg.Transliterate,
		},
		MaxResults:    cfg.MaxResults,
		ProgressEvery: cfg.ProgressEvery,
		Concurrency:   cfg.Concurrency,
		Archive:       archive,
		Logger:        logger,
	}
	if cfg.DetectLanguages {
		p.Classifier = langdetect.NewCached(langdetect.Whatlang{}, 0)
	}

	res, err := p.Run(ctx, raws)
	switch {
	case errors.Is(err, pipeline.ErrFatalNetwork):
		return fail(exitNetwork, err)
	case err != nil:
		return fail(exitRuntime, err)
	}

	w := tabular.Writer{Dir: cfg.OutputDirectory, Delimiter: cfg.Comma(), Logger: logger}
	name := filepath.Base(cfg.InputFile)

	summary := report.FromStats(res.Stats)
	if summary.ResultsFile, _, err = w.WriteResults(name, res.Results, cfg.DetectLanguages); err != nil {
		return fail(exitRuntime, err)
	}
	if summary.FailedFile, _, err = w.WriteFailed(name, res.Failed); err != nil {
		return fail(exitRuntime, err)
	}

	format, _ := report.ParseFormat(cfg.ReportFormat)
	if err := report.Write(opts.stdout, format, summary); err != nil {
		return fail(exitRuntime, err)
	}
	logger.Info("finished")
	return nil
}

// newClient wires the fetch stack (UA rotation, proxies, TLS profile) under
// a DuckDuckGo client.
func newClient(cfg *config.Config, uas *useragent.Pool, logger *slog.Logger) (*serp.Client, *scraper.Fetcher, error) {
	profile, err := fingerprint.ParseProfile(cfg.TLSProfile)
	if err != nil {
		return nil, nil, err
	}

	var proxies *proxy.Pool
	if cfg.ProxyFile != "" {
		proxies = proxy.NewPool(proxy.Config{})
		if err := proxies.LoadFile(cfg.ProxyFile); err != nil {
			return nil, nil, fmt.Errorf("load proxies: %w", err)
		}
		logger.Info("proxies loaded", "path", cfg.ProxyFile, "count", proxies.Len())
	}

	fetcher, err := scraper.NewFetcher(scraper.FetchConfig{
		Timeout:     cfg.Timeout,
		ProxyPool:   proxies,
		UAPool:      uas,
		Fingerprint: profile,
	})
	if err != nil {
		return nil, nil, err
	}

	client, err := serp.NewClient(serp.Config{
		Endpoint:       cfg.Endpoint,
		RequireSnippet: cfg.RequireSnippet,
		Fetcher:        fetcher,
		Logger:         logger,
	})
	if err != nil {
		return nil, nil, err
	}
	return client, fetcher, nil
}

// retryLimit maps the configured limit to retry.Policy, where zero means
// the default.
func retryLimit(n int) int {
	if n == 0 {
		return -1
	}
	return n
}
