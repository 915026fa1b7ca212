package metrics

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	FetchRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quarry_fetch_requests_total",
			Help: "Total number of search result page requests",
		},
		[]string{"status", "blocked"},
	)

	FetchDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "quarry_fetch_duration_seconds",
			Help:    "Duration of search result page requests in seconds",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		},
	)

	FetchBytesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "quarry_fetch_bytes_total",
			Help: "Total bytes downloaded from the search engine",
		},
	)

	AttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quarry_attempts_total",
			Help: "Retrieval attempts by outcome and error kind",
		},
		[]string{"outcome", "kind"},
	)

	QueriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quarry_queries_total",
			Help: "Queries by final disposition",
		},
		[]string{"disposition"},
	)

	ResultsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "quarry_results_total",
			Help: "Result records collected across all queries",
		},
	)

	ProxyFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quarry_proxy_failures_total",
			Help: "Total number of proxy failures during fetches",
		},
		[]string{"proxy_url"},
	)
)

// RecordFetch accounts for one HTTP round trip. A zero status means the
// request failed before a response arrived.
func RecordFetch(status int, blocked bool, d time.Duration, bytes int) {
	statusStr := "error"
	if status > 0 {
		statusStr = strconv.Itoa(status)
	}
	FetchRequestsTotal.WithLabelValues(statusStr, strconv.FormatBool(blocked)).Inc()
	FetchDuration.Observe(d.Seconds())
	FetchBytesTotal.Add(float64(bytes))
}

// RecordAttempt accounts for one retry-policy step.
func RecordAttempt(outcome, kind string) {
	AttemptsTotal.WithLabelValues(outcome, kind).Inc()
}

// RecordQuery accounts for a query's final disposition and its record count.
func RecordQuery(disposition string, records int) {
	QueriesTotal.WithLabelValues(disposition).Inc()
	if records > 0 {
		ResultsTotal.Add(float64(records))
	}
}

// Handler serves the default registry in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Server encapsulates an HTTP server for Prometheus metrics.
type Server struct {
	srv *http.Server
}

// Start begins listening on port and exposes /metrics.
func Start(port int, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler())

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", "port", port, "err", err)
		}
	}()

	return &Server{srv: srv}
}

// Stop gracefully shuts down the metrics server.
func (s *Server) Stop(ctx context.Context) error {
	if s == nil || s.srv == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return s.srv.Shutdown(ctx)
}
