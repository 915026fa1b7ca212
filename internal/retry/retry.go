// Package retry drives the per-query recovery state machine around a
// SERPProvider.
package retry

import (
	"context"
	"log/slog"
	"time"

	"github.com/FranksOps/quarry/internal/metrics"
	"github.com/FranksOps/quarry/internal/query"
	"github.com/FranksOps/quarry/internal/serp"
	"github.com/FranksOps/quarry/pkg/ratelimit"
)

// DefaultLimit is the number of retries after the first attempt.
const DefaultLimit = 3

// State is the terminal (or current) state of a query's attempts.
type State int

const (
	Attempting State = iota
	Succeeded
	RetryScheduled
	SkippedQuery
	FatalAbort
)

func (s State) String() string {
	switch s {
	case Attempting:
		return "attempting"
	case Succeeded:
		return "succeeded"
	case RetryScheduled:
		return "retry_scheduled"
	case SkippedQuery:
		return "skipped"
	case FatalAbort:
		return "fatal"
	default:
		return "unknown"
	}
}

// Policy configures retries. The zero value retries DefaultLimit times
// without any waiting.
type Policy struct {
	// Limit is the number of retries; zero means DefaultLimit and a
	// negative value disables retries.
	Limit int
	// WaitOnError is slept before each retry.
	WaitOnError time.Duration
	// Throttle is waited on before every attempt. It may be shared between
	// goroutines.
	Throttle *ratelimit.Limiter
	Logger   *slog.Logger
}

// Outcome is what Run ended with.
type Outcome struct {
	State    State
	Results  []serp.Result
	Attempts int
	// Err is the last attempt's error. Nil when State is Succeeded.
	Err error
}

func (p Policy) limit() int {
	switch {
	case p.Limit == 0:
		return DefaultLimit
	case p.Limit < 0:
		return 0
	default:
		return p.Limit
	}
}

// Run searches for q until it succeeds, the retries are exhausted or a fatal
// error occurs. Records of failed attempts are never returned. On exhaustion
// q is marked failed.
func (p Policy) Run(ctx context.Context, q *query.Query, provider serp.SERPProvider, max int) Outcome {
	logger := p.Logger
	if logger == nil {
		logger = slog.Default()
	}
	limit := p.limit()

	out := Outcome{State: Attempting}
	for depth := 0; ; depth++ {
		if p.Throttle != nil {
			if err := p.Throttle.Wait(ctx); err != nil {
				return abort(out, err)
			}
		} else if err := ctx.Err(); err != nil {
			return abort(out, err)
		}

		out.Attempts++
		results, err := provider.Search(ctx, q.Normalized, max)
		if err == nil {
			metrics.RecordAttempt("success", "")
			out.State = Succeeded
			out.Results = results
			out.Err = nil
			return out
		}
		out.Err = err

		if ctx.Err() != nil {
			metrics.RecordAttempt("cancelled", serp.KindOf(err).String())
			return abort(out, ctx.Err())
		}

		kind := serp.KindOf(err)
		if kind == serp.KindFatal {
			metrics.RecordAttempt("fatal", kind.String())
			logger.Error("network is down, aborting", "query", q.Normalized, "err", err)
			out.State = FatalAbort
			return out
		}

		if depth >= limit {
			metrics.RecordAttempt("exhausted", kind.String())
			if q.MarkFailed() {
				logger.Warn("giving up on query", "query", q.Normalized, "attempts", out.Attempts, "err", err)
			}
			out.State = SkippedQuery
			return out
		}

		metrics.RecordAttempt("retry", kind.String())
		out.State = RetryScheduled
		logger.Info("attempt failed, retrying",
			"query", q.Normalized,
			"attempt", out.Attempts,
			"kind", kind.String(),
			"wait", p.WaitOnError,
			"err", err,
		)
		if err := ratelimit.Sleep(ctx, p.WaitOnError); err != nil {
			return abort(out, err)
		}
		out.State = Attempting
	}
}

func abort(out Outcome, err error) Outcome {
	out.State = FatalAbort
	out.Results = nil
	out.Err = err
	return out
}
