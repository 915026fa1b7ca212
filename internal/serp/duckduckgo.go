package serp

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"strings"

	"github.com/FranksOps/quarry/internal/scraper"
	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html/charset"
)

// DefaultEndpoint is DuckDuckGo's JavaScript-free result page.
const DefaultEndpoint = "https://duckduckgo.com/html/"

const (
	entrySelector   = "div.results > div.result > div.result__body"
	linkSelector    = "h2.result__title > a.result__a"
	snippetSelector = ".result__snippet"
)

// Config configures a DuckDuckGo client.
type Config struct {
	// Endpoint defaults to DefaultEndpoint.
	Endpoint string
	// RequireSnippet treats an entry without snippet as invalid.
	RequireSnippet bool
	Fetcher        *scraper.Fetcher
	Logger         *slog.Logger
}

// Client scrapes DuckDuckGo's HTML result page. A Client's fetcher holds one
// cookie jar; use NewSession to get an isolated client per query.
type Client struct {
	endpoint       *url.URL
	requireSnippet bool
	fetcher        *scraper.Fetcher
	logger         *slog.Logger
}

var _ SERPProvider = (*Client)(nil)
var _ Sessioner = (*Client)(nil)

// NewClient validates cfg and returns a Client.
func NewClient(cfg Config) (*Client, error) {
	if cfg.Fetcher == nil {
		return nil, errors.New("serp: fetcher is required")
	}
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultEndpoint
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	endpoint, err := url.Parse(cfg.Endpoint)
	if err != nil {
		return nil, fmt.Errorf("serp: parse endpoint: %w", err)
	}
	if endpoint.Scheme != "http" && endpoint.Scheme != "https" {
		return nil, fmt.Errorf("serp: endpoint must be http(s), got %q", cfg.Endpoint)
	}

	return &Client{
		endpoint:       endpoint,
		requireSnippet: cfg.RequireSnippet,
		fetcher:        cfg.Fetcher,
		logger:         cfg.Logger,
	}, nil
}

// NewSession returns a client with a fresh cookie jar.
func (c *Client) NewSession() (SERPProvider, error) {
	f, err := c.fetcher.Session()
	if err != nil {
		return nil, err
	}
	clone := *c
	clone.fetcher = f
	return &clone, nil
}

// SearchURL returns the request URI for a normalized query.
func (c *Client) SearchURL(query string) string {
	u := *c.endpoint
	q := u.Query()
	q.Set("q", query)
	u.RawQuery = q.Encode()
	return u.String()
}

// Search performs exactly one request for query and parses up to limit
// results. A limit of zero or less means no cap.
func (c *Client) Search(ctx context.Context, query string, limit int) ([]Result, error) {
	page, err := c.fetcher.Fetch(ctx, c.SearchURL(query))
	if err != nil {
		if page != nil {
			return nil, &FetchError{Kind: KindTransient, StatusCode: page.StatusCode, Err: err}
		}
		return nil, classifyNetError(err)
	}

	if !page.OK() {
		return nil, &FetchError{Kind: KindBadResponse, StatusCode: page.StatusCode}
	}
	if page.Blocked {
		return nil, &FetchError{
			Kind:       KindBadResponse,
			StatusCode: page.StatusCode,
			Err:        fmt.Errorf("blocked by %s", page.BlockedBy),
		}
	}

	body, err := charset.NewReader(bytes.NewReader(page.Body), page.Headers.Get("Content-Type"))
	if err != nil {
		c.logger.Debug("unknown charset, reading body as utf-8", "query", query, "err", err)
		body = bytes.NewReader(page.Body)
	}

	results, err := parseResults(body, query, limit, c.requireSnippet)
	if err != nil {
		return nil, err
	}

	c.logger.Debug("parsed result list", "query", query, "results", len(results))
	return results, nil
}

// parseResults walks the result entries in page order. Ranks count every
// visited entry; the first invalid one aborts the whole page.
func parseResults(r io.Reader, query string, limit int, requireSnippet bool) ([]Result, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, &FetchError{Kind: KindTransient, Err: fmt.Errorf("parse html: %w", err)}
	}

	results := []Result{}
	var invalid *FetchError
	rank := 0

	doc.Find(entrySelector).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		rank++

		link := s.Find(linkSelector).First()
		href, _ := link.Attr("href")
		res := Result{
			Query:   query,
			Rank:    rank,
			URL:     resolveLink(href),
			Title:   collapse(link.Text()),
			Snippet: collapse(s.Find(snippetSelector).First().Text()),
		}

		if res.URL == "" || res.Title == "" || (requireSnippet && res.Snippet == "") {
			invalid = &FetchError{Kind: KindEmptyEntry, Rank: rank}
			return false
		}

		results = append(results, res)
		return limit <= 0 || len(results) < limit
	})

	if invalid != nil {
		return nil, invalid
	}
	return results, nil
}

// resolveLink unwraps DuckDuckGo's click-tracking redirect
// (//duckduckgo.com/l/?uddg=<target>) to the destination URL.
func resolveLink(href string) string {
	href = strings.TrimSpace(href)
	if !strings.Contains(href, "/l/?") {
		return href
	}
	u, err := url.Parse(href)
	if err != nil {
		return href
	}
	if target := u.Query().Get("uddg"); target != "" {
		return target
	}
	return href
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
