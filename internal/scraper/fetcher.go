package scraper

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/FranksOps/quarry/internal/bypass"
	"github.com/FranksOps/quarry/internal/fingerprint"
	"github.com/FranksOps/quarry/internal/metrics"
	"github.com/FranksOps/quarry/pkg/httpclient"
	"github.com/FranksOps/quarry/pkg/proxy"
	"github.com/FranksOps/quarry/pkg/useragent"
)

type contextKey string

const proxyKey contextKey = "proxy_url"

// maxBodyBytes bounds how much of a response is read into memory.
const maxBodyBytes = 8 << 20

// Page is a fetched HTTP response.
type Page struct {
	URL        string
	StatusCode int
	Headers    http.Header
	Body       []byte
	Duration   time.Duration
	FetchedAt  time.Time
	// Blocked is set when a bot-protection detector recognised the page.
	Blocked   bool
	BlockedBy string
}

// OK reports whether the status code is 2xx.
func (p *Page) OK() bool {
	return p.StatusCode >= 200 && p.StatusCode < 300
}

// FetchConfig configures a Fetcher.
type FetchConfig struct {
	Timeout time.Duration
	// MaxRedirects defaults to 10; a negative value disables redirects.
	MaxRedirects   int
	ProxyPool      *proxy.Pool
	UAPool         *useragent.Pool
	Fingerprint    fingerprint.Profile
	AcceptLanguage string
	Detectors      []bypass.Detector
}

// Fetcher issues GET requests with the configured identity. Each Fetcher
// owns one cookie jar; Session derives a new Fetcher that shares the
// transport but starts with empty cookies.
type Fetcher struct {
	config FetchConfig
	client *httpclient.Client
}

// NewFetcher initializes a new Fetcher with the given configuration.
func NewFetcher(cfg FetchConfig) (*Fetcher, error) {
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.MaxRedirects == 0 {
		cfg.MaxRedirects = 10
	}
	if cfg.UAPool == nil {
		cfg.UAPool = useragent.NewPool(nil)
	}
	if cfg.Fingerprint == "" {
		cfg.Fingerprint = fingerprint.ProfileGo
	}
	if cfg.AcceptLanguage == "" {
		cfg.AcceptLanguage = "en"
	}
	if cfg.Detectors == nil {
		cfg.Detectors = bypass.DefaultDetectors()
	}

	// The proxy is chosen per request and travels in the request context, so
	// one transport (and its connection pool) serves every session.
	proxyFunc := func(req *http.Request) (*url.URL, error) {
		if u, ok := req.Context().Value(proxyKey).(*url.URL); ok && u != nil {
			return u, nil
		}
		return http.ProxyFromEnvironment(req)
	}

	transport, err := fingerprint.Transport(cfg.Fingerprint, proxyFunc)
	if err != nil {
		return nil, fmt.Errorf("setup transport: %w", err)
	}

	client, err := httpclient.New(httpclient.Config{
		Timeout:      cfg.Timeout,
		MaxRedirects: cfg.MaxRedirects,
		UseCookieJar: true,
		Transport:    transport,
	})
	if err != nil {
		return nil, fmt.Errorf("create client: %w", err)
	}

	return &Fetcher{config: cfg, client: client}, nil
}

// Session returns a Fetcher with its own cookie jar.
func (f *Fetcher) Session() (*Fetcher, error) {
	client, err := f.client.Session()
	if err != nil {
		return nil, fmt.Errorf("new session: %w", err)
	}
	return &Fetcher{config: f.config, client: client}, nil
}

// Fetch GETs targetURL. Transport failures are returned as errors with the
// underlying cause wrapped; any HTTP response, whatever its status, yields a
// Page.
func (f *Fetcher) Fetch(ctx context.Context, targetURL string) (*Page, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, targetURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	var activeProxy *url.URL
	if f.config.ProxyPool != nil {
		if activeProxy = f.config.ProxyPool.Next(); activeProxy != nil {
			req = req.WithContext(context.WithValue(req.Context(), proxyKey, activeProxy))
		}
	}

	req.Header.Set("User-Agent", f.config.UAPool.Get())
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", f.config.AcceptLanguage)

	start := time.Now()
	resp, err := f.client.Do(req.Context(), req)
	if err != nil {
		if activeProxy != nil {
			_ = f.config.ProxyPool.MarkFailure(activeProxy)
			metrics.ProxyFailures.WithLabelValues(activeProxy.String()).Inc()
		}
		metrics.RecordFetch(0, false, time.Since(start), 0)
		return nil, fmt.Errorf("request %s: %w", targetURL, err)
	}
	defer resp.Body.Close()

	if activeProxy != nil {
		_ = f.config.ProxyPool.MarkSuccess(activeProxy)
	}

	page := &Page{
		URL:        targetURL,
		StatusCode: resp.StatusCode,
		Headers:    resp.Header,
		FetchedAt:  start.UTC(),
	}

	page.Body, err = io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	page.Duration = time.Since(start)
	if err != nil {
		metrics.RecordFetch(resp.StatusCode, false, page.Duration, len(page.Body))
		return page, fmt.Errorf("read body of %s: %w", targetURL, err)
	}

	page.Blocked, page.BlockedBy = bypass.Analyze(&bypass.Page{
		StatusCode: page.StatusCode,
		Headers:    page.Headers,
		Body:       page.Body,
	}, f.config.Detectors)

	metrics.RecordFetch(page.StatusCode, page.Blocked, page.Duration, len(page.Body))
	return page, nil
}
