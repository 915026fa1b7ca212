package retry

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/FranksOps/quarry/internal/query"
	"github.com/FranksOps/quarry/internal/serp"
	"github.com/FranksOps/quarry/pkg/ratelimit"
)

// scripted replays one response per call and repeats the last one.
type scripted struct {
	mu      sync.Mutex
	calls   int
	queries []string
	steps   []step
}

type step struct {
	results []serp.Result
	err     error
}

func (s *scripted) Search(_ context.Context, q string, limit int) ([]serp.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queries = append(s.queries, q)
	i := s.calls
	if i >= len(s.steps) {
		i = len(s.steps) - 1
	}
	s.calls++
	return s.steps[i].results, s.steps[i].err
}

func records(q string, n int) []serp.Result {
	out := make([]serp.Result, n)
	for i := range out {
		out[i] = serp.Result{Query: q, Rank: i + 1, URL: "https://example.com", Title: "t"}
	}
	return out
}

func TestRun_SucceedsFirstAttempt(t *testing.T) {
	q := query.New("go", query.Options{})
	p := &scripted{steps: []step{{results: records("go", 2)}}}

	out := Policy{}.Run(context.Background(), q, p, 10)
	if out.State != Succeeded || out.Attempts != 1 || len(out.Results) != 2 {
		t.Errorf("unexpected outcome %+v", out)
	}
	if p.queries[0] != "go" {
		t.Errorf("expected normalized query to be searched, got %q", p.queries[0])
	}
}

func TestRun_RetriesThenSucceeds(t *testing.T) {
	q := query.New("go", query.Options{})
	p := &scripted{steps: []step{
		{err: &serp.FetchError{Kind: serp.KindEmptyEntry, Rank: 3}},
		{err: &serp.FetchError{Kind: serp.KindBadResponse, StatusCode: 503}},
		{results: records("go", 1)},
	}}

	out := Policy{WaitOnError: time.Millisecond}.Run(context.Background(), q, p, 10)
	if out.State != Succeeded || out.Attempts != 3 || out.Err != nil {
		t.Errorf("unexpected outcome %+v", out)
	}
	if q.Failed {
		t.Errorf("query should not be marked failed")
	}
}

func TestRun_ExhaustsAfterLimitPlusOne(t *testing.T) {
	for _, limit := range []int{1, 3, 5} {
		q := query.New("go", query.Options{})
		p := &scripted{steps: []step{{err: errors.New("connection reset")}}}

		out := Policy{Limit: limit}.Run(context.Background(), q, p, 10)
		if out.State != SkippedQuery {
			t.Errorf("limit %d: expected skipped, got %v", limit, out.State)
		}
		if out.Attempts != limit+1 || p.calls != limit+1 {
			t.Errorf("limit %d: expected %d attempts, got %d", limit, limit+1, out.Attempts)
		}
		if len(out.Results) != 0 {
			t.Errorf("limit %d: expected zero records, got %d", limit, len(out.Results))
		}
		if !q.Failed {
			t.Errorf("limit %d: expected query marked failed", limit)
		}
	}
}

func TestRun_DefaultLimit(t *testing.T) {
	q := query.New("go", query.Options{})
	p := &scripted{steps: []step{{err: &serp.FetchError{Kind: serp.KindTransient}}}}

	out := Policy{}.Run(context.Background(), q, p, 10)
	if out.Attempts != DefaultLimit+1 {
		t.Errorf("expected %d attempts, got %d", DefaultLimit+1, out.Attempts)
	}
}

func TestRun_NegativeLimitDisablesRetries(t *testing.T) {
	q := query.New("go", query.Options{})
	p := &scripted{steps: []step{{err: &serp.FetchError{Kind: serp.KindTransient}}}}

	out := Policy{Limit: -1}.Run(context.Background(), q, p, 10)
	if out.Attempts != 1 || out.State != SkippedQuery {
		t.Errorf("unexpected outcome %+v", out)
	}
}

func TestRun_FailedQueryStaysFailedOnce(t *testing.T) {
	q := query.New("go", query.Options{})
	p := &scripted{steps: []step{{err: &serp.FetchError{Kind: serp.KindTransient}}}}
	policy := Policy{Limit: 1}

	policy.Run(context.Background(), q, p, 10)
	out := policy.Run(context.Background(), q, p, 10)
	if out.State != SkippedQuery || !q.Failed {
		t.Errorf("unexpected outcome %+v", out)
	}
	if q.MarkFailed() {
		t.Errorf("query should already be failed")
	}
}

func TestRun_FatalStopsImmediately(t *testing.T) {
	q := query.New("go", query.Options{})
	p := &scripted{steps: []step{{err: &serp.FetchError{Kind: serp.KindFatal}}}}

	out := Policy{WaitOnError: time.Hour}.Run(context.Background(), q, p, 10)
	if out.State != FatalAbort || out.Attempts != 1 {
		t.Errorf("unexpected outcome %+v", out)
	}
	if serp.KindOf(out.Err) != serp.KindFatal {
		t.Errorf("expected fatal error, got %v", out.Err)
	}
	if q.Failed {
		t.Errorf("fatal abort should not mark the query failed")
	}
}

func TestRun_CancelledDuringBackoff(t *testing.T) {
	q := query.New("go", query.Options{})
	p := &scripted{steps: []step{{err: &serp.FetchError{Kind: serp.KindTransient}}}}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	start := time.Now()
	out := Policy{WaitOnError: time.Hour}.Run(ctx, q, p, 10)
	if out.State != FatalAbort || !errors.Is(out.Err, context.DeadlineExceeded) {
		t.Errorf("unexpected outcome %+v", out)
	}
	if time.Since(start) > time.Second {
		t.Errorf("backoff did not honour cancellation")
	}
}

func TestRun_ThrottlesEveryAttempt(t *testing.T) {
	q := query.New("go", query.Options{})
	p := &scripted{steps: []step{{err: &serp.FetchError{Kind: serp.KindTransient}}}}
	throttle := ratelimit.NewLimiter(10*time.Millisecond, 10*time.Millisecond)

	start := time.Now()
	out := Policy{Limit: 2, Throttle: throttle}.Run(context.Background(), q, p, 10)
	if out.Attempts != 3 {
		t.Fatalf("expected 3 attempts, got %d", out.Attempts)
	}
	if elapsed := time.Since(start); elapsed < 30*time.Millisecond {
		t.Errorf("expected at least 3 throttle waits, took %v", elapsed)
	}
}

func TestState_String(t *testing.T) {
	if Succeeded.String() != "succeeded" || SkippedQuery.String() != "skipped" || State(42).String() != "unknown" {
		t.Errorf("unexpected state names")
	}
}
