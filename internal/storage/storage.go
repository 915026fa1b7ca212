// Package storage archives search records across runs.
package storage

import (
	"context"
	"sort"
	"time"

	"github.com/FranksOps/quarry/internal/serp"
	"github.com/google/uuid"
)

// Record is one archived search result.
type Record struct {
	ID        string    `json:"id"`
	RunID     string    `json:"run_id"`
	Query     string    `json:"query"`
	Rank      int       `json:"rank"`
	Language  string    `json:"language,omitempty"`
	URL       string    `json:"url"`
	Title     string    `json:"title"`
	Snippet   string    `json:"snippet"`
	CreatedAt time.Time `json:"created_at"`
}

// NewRecord tags r with runID and a fresh record ID.
func NewRecord(runID string, r serp.Result, at time.Time) *Record {
	return &Record{
		ID:        uuid.NewString(),
		RunID:     runID,
		Query:     r.Query,
		Rank:      r.Rank,
		Language:  r.Language,
		URL:       r.URL,
		Title:     r.Title,
		Snippet:   r.Snippet,
		CreatedAt: at.UTC(),
	}
}

// Result converts the record back to a search result.
func (r *Record) Result() serp.Result {
	return serp.Result{
		Query:    r.Query,
		Rank:     r.Rank,
		URL:      r.URL,
		Title:    r.Title,
		Snippet:  r.Snippet,
		Language: r.Language,
	}
}

// Filter selects archived records. Zero fields match everything.
type Filter struct {
	RunID  string
	Query  string
	Since  *time.Time
	Limit  int
	Offset int
}

// Match reports whether r passes the field filters of f.
func (f Filter) Match(r *Record) bool {
	if f.RunID != "" && r.RunID != f.RunID {
		return false
	}
	if f.Query != "" && r.Query != f.Query {
		return false
	}
	if f.Since != nil && r.CreatedAt.Before(*f.Since) {
		return false
	}
	return true
}

// Backend stores and queries records. Query returns newest records first
// and, within one query's batch, ascending rank.
type Backend interface {
	Save(ctx context.Context, record *Record) error
	Query(ctx context.Context, filter Filter) ([]*Record, error)
	Close() error
}

// Apply filters, orders and pages records in memory, for backends without a
// query engine.
func Apply(records []*Record, f Filter) []*Record {
	out := make([]*Record, 0, len(records))
	for _, r := range records {
		if f.Match(r) {
			out = append(out, r)
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].Rank < out[j].Rank
	})

	if f.Offset > 0 {
		if f.Offset >= len(out) {
			return []*Record{}
		}
		out = out[f.Offset:]
	}
	if f.Limit > 0 && f.Limit < len(out) {
		out = out[:f.Limit]
	}
	return out
}

// SaveAll saves records in order and stops at the first error.
func SaveAll(ctx context.Context, b Backend, records []*Record) error {
	for _, r := range records {
		if err := b.Save(ctx, r); err != nil {
			return err
		}
	}
	return nil
}
