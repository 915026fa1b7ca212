package serp

import (
	"context"
	"strconv"
)

// LanguageError is stored in Result.Language when classification failed.
const LanguageError = "error"

// Result is one entry of a search engine result page.
type Result struct {
	// Query is the normalized query string that produced the entry.
	Query string `json:"query"`
	// Rank is the 1-based position on the page.
	Rank    int    `json:"rank"`
	URL     string `json:"url"`
	Title   string `json:"title"`
	Snippet string `json:"snippet"`
	// Language is empty unless classification was requested.
	Language string `json:"language,omitempty"`
}

// Columns returns the table header for results, with the language column
// only when withLanguage is set.
func Columns(withLanguage bool) []string {
	if withLanguage {
		return []string{"query", "rank", "language", "url", "title", "snippet"}
	}
	return []string{"query", "rank", "url", "title", "snippet"}
}

// Row renders r in Columns(withLanguage) order.
func (r Result) Row(withLanguage bool) []string {
	rank := strconv.Itoa(r.Rank)
	if withLanguage {
		return []string{r.Query, rank, r.Language, r.URL, r.Title, r.Snippet}
	}
	return []string{r.Query, rank, r.URL, r.Title, r.Snippet}
}

// SERPProvider abstracts a search engine that returns ranked results for a
// normalized query. limit caps the number of results returned. Failures are
// reported as *FetchError so callers can decide whether to retry.
type SERPProvider interface {
	Search(ctx context.Context, query string, limit int) ([]Result, error)
}

// Sessioner is implemented by providers that keep per-query HTTP state.
// NewSession returns a provider to be used for every attempt of one query.
type Sessioner interface {
	NewSession() (SERPProvider, error)
}
