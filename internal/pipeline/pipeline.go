// Package pipeline runs a batch of raw queries through normalization,
// deduplication, retrieval with retries and optional language
// classification.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/FranksOps/quarry/internal/langdetect"
	"github.com/FranksOps/quarry/internal/metrics"
	"github.com/FranksOps/quarry/internal/query"
	"github.com/FranksOps/quarry/internal/retry"
	"github.com/FranksOps/quarry/internal/serp"
	"github.com/FranksOps/quarry/internal/storage"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// ErrFatalNetwork aborts a run when the network is down.
var ErrFatalNetwork = errors.New("fatal network error")

const (
	DefaultMaxResults    = 25
	DefaultProgressEvery = 10
)

// Progress is reported as queries are dispatched.
type Progress struct {
	// Index is the 0-based position of the query about to be processed.
	Index   int
	Total   int
	Query   string
	Percent float64
}

// Pipeline is configured once and may Run several batches.
type Pipeline struct {
	Provider serp.SERPProvider
	Policy   retry.Policy
	// Classifier, when set, assigns a language to every snippet.
	Classifier langdetect.Classifier
	Options    query.Options
	MaxResults int
	// ProgressEvery reports progress on the first query and every Nth one.
	ProgressEvery int
	// Concurrency bounds how many queries are in flight. Values below 2 mean
	// strictly sequential processing.
	Concurrency int
	// OnProgress is called from worker goroutines when Concurrency > 1.
	OnProgress func(Progress)
	// Archive, when set, receives every record of every successful query.
	// Archive failures are logged and do not affect the run.
	Archive storage.Backend
	Logger  *slog.Logger
}

// Stats summarises a run.
type Stats struct {
	RunID      string         `json:"run_id"`
	Started    time.Time      `json:"started"`
	Finished   time.Time      `json:"finished"`
	Read       int            `json:"read"`
	Accepted   int            `json:"accepted"`
	Empty      int            `json:"empty"`
	Duplicates int            `json:"duplicates"`
	NoResults  int            `json:"no_results"`
	Failed     int            `json:"failed"`
	Records    int            `json:"records"`
	Attempts   int            `json:"attempts"`
	Languages  map[string]int `json:"languages,omitempty"`
}

// RunResult is the outcome of a completed run.
type RunResult struct {
	// Results in query order, then rank order.
	Results []serp.Result
	// Failed holds the normalized strings of queries whose retries were
	// exhausted, in input order.
	Failed []string
	// Queries are the accepted (non-empty, distinct) queries.
	Queries []*query.Query
	Stats   Stats
}

func (p *Pipeline) logger() *slog.Logger {
	if p.Logger == nil {
		return slog.Default()
	}
	return p.Logger
}

// Run processes raws. It returns an error wrapping ErrFatalNetwork when the
// network goes down, or the context error when ctx is cancelled; in both
// cases no partial result is returned.
func (p *Pipeline) Run(ctx context.Context, raws []string) (*RunResult, error) {
	if p.Provider == nil {
		return nil, errors.New("pipeline: provider is nil")
	}
	logger := p.logger()

	stats := Stats{
		RunID:     uuid.NewString(),
		Started:   time.Now().UTC(),
		Read:      len(raws),
		Languages: make(map[string]int),
	}
	queries := p.accept(raws, &stats)
	logger.Info("queries imported", "run", stats.RunID, "read", stats.Read, "accepted", len(queries))

	outcomes := make([]retry.Outcome, len(queries))
	every := p.ProgressEvery
	if every <= 0 {
		every = DefaultProgressEvery
	}
	workers := p.Concurrency
	if workers < 1 {
		workers = 1
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, q := range queries {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			// The slot may free up only after a fatal error cancelled gctx.
			if err := gctx.Err(); err != nil {
				return err
			}
			if i%every == 0 {
				p.progress(Progress{
					Index:   i,
					Total:   len(queries),
					Query:   q.Normalized,
					Percent: 100 * float64(i) / float64(len(queries)),
				})
			}
			var err error
			outcomes[i], err = p.process(gctx, q, stats.RunID)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	res := &RunResult{Queries: queries}
	for i, q := range queries {
		out := outcomes[i]
		stats.Attempts += out.Attempts
		switch {
		case q.Failed:
			stats.Failed++
			res.Failed = append(res.Failed, q.Normalized)
		case len(out.Results) == 0:
			stats.NoResults++
		default:
			res.Results = append(res.Results, out.Results...)
		}
	}
	for _, r := range res.Results {
		if r.Language != "" {
			stats.Languages[r.Language]++
		}
	}
	stats.Accepted = len(queries)
	stats.Records = len(res.Results)
	stats.Finished = time.Now().UTC()
	res.Stats = stats

	logger.Info("run finished",
		"run", stats.RunID,
		"records", stats.Records,
		"failed", stats.Failed,
		"no_results", stats.NoResults,
		"duration", stats.Finished.Sub(stats.Started),
	)
	return res, nil
}

// accept normalizes raws and drops empty and duplicate queries.
func (p *Pipeline) accept(raws []string, stats *Stats) []*query.Query {
	logger := p.logger()
	seen := make(map[string]struct{}, len(raws))
	queries := make([]*query.Query, 0, len(raws))

	for _, raw := range raws {
		q := query.New(raw, p.Options)
		if q.Empty {
			stats.Empty++
			metrics.RecordQuery("empty", 0)
			logger.Info("empty query skipped", "raw", raw)
			continue
		}
		if _, dup := seen[q.Normalized]; dup {
			stats.Duplicates++
			metrics.RecordQuery("duplicate", 0)
			logger.Info("duplicate query skipped", "query", q.Normalized)
			continue
		}
		seen[q.Normalized] = struct{}{}
		queries = append(queries, q)
	}
	return queries
}

// process resolves one query. Each query gets its own provider session,
// reused across its retries.
func (p *Pipeline) process(ctx context.Context, q *query.Query, runID string) (retry.Outcome, error) {
	if err := ctx.Err(); err != nil {
		return retry.Outcome{}, err
	}
	logger := p.logger()

	provider := p.Provider
	if s, ok := provider.(serp.Sessioner); ok {
		session, err := s.NewSession()
		if err != nil {
			return retry.Outcome{}, fmt.Errorf("query %q: %w", q.Normalized, err)
		}
		provider = session
	}

	limit := p.MaxResults
	if limit <= 0 {
		limit = DefaultMaxResults
	}

	out := p.Policy.Run(ctx, q, provider, limit)
	switch out.State {
	case retry.FatalAbort:
		if serp.KindOf(out.Err) == serp.KindFatal {
			return out, fmt.Errorf("%w: query %q: %w", ErrFatalNetwork, q.Normalized, out.Err)
		}
		return out, out.Err
	case retry.SkippedQuery:
		metrics.RecordQuery("failed", 0)
		return out, nil
	}

	if len(out.Results) == 0 {
		q.Empty = true
		metrics.RecordQuery("no_results", 0)
		logger.Info("no results", "query", q.Normalized)
		return out, nil
	}

	if p.Classifier != nil {
		Classify(p.Classifier, out.Results, logger)
	}
	metrics.RecordQuery("ok", len(out.Results))
	logger.Debug("query done", "query", q.Normalized, "results", len(out.Results), "attempts", out.Attempts)

	if p.Archive != nil {
		p.archive(ctx, runID, out.Results)
	}
	return out, nil
}

func (p *Pipeline) archive(ctx context.Context, runID string, results []serp.Result) {
	now := time.Now()
	records := make([]*storage.Record, 0, len(results))
	for _, r := range results {
		records = append(records, storage.NewRecord(runID, r, now))
	}
	if err := storage.SaveAll(ctx, p.Archive, records); err != nil {
		p.logger().Error("archiving results failed", "query", results[0].Query, "err", err)
	}
}

func (p *Pipeline) progress(pr Progress) {
	p.logger().Info("retrieving search results",
		"query", pr.Query,
		"index", pr.Index+1,
		"total", pr.Total,
		"progress", fmt.Sprintf("%.0f%%", pr.Percent),
	)
	if p.OnProgress != nil {
		p.OnProgress(pr)
	}
}

// Classify sets the language of every result from its snippet. Results the
// classifier rejects get serp.LanguageError.
func Classify(c langdetect.Classifier, results []serp.Result, logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}
	for i := range results {
		lang, err := c.Detect(results[i].Snippet)
		if err != nil {
			logger.Debug("language detection failed", "query", results[i].Query, "rank", results[i].Rank, "err", err)
			lang = serp.LanguageError
		}
		results[i].Language = lang
	}
}
