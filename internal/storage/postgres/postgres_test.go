package postgres

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/FranksOps/quarry/internal/serp"
	"github.com/FranksOps/quarry/internal/storage"
	"github.com/google/uuid"
)

func TestPostgresBackend(t *testing.T) {
	// Only run this test if QUARRY_TEST_PG_DSN is set
	dsn := os.Getenv("QUARRY_TEST_PG_DSN")
	if dsn == "" {
		t.Skip("Skipping Postgres backend test: QUARRY_TEST_PG_DSN not set")
	}

	ctx := context.Background()
	b, err := New(ctx, dsn)
	if err != nil {
		t.Fatalf("Failed to create Postgres backend: %v", err)
	}
	defer b.Close()

	// A fresh run ID keeps repeated runs against the same database apart.
	runID := uuid.NewString()
	now := time.Now().UTC()

	first := storage.NewRecord(runID, serp.Result{Query: "pg", Rank: 1, URL: "https://example.com/1", Title: "One", Snippet: "first", Language: "en"}, now)
	second := storage.NewRecord(runID, serp.Result{Query: "pg", Rank: 2, URL: "https://example.com/2", Title: "Two", Snippet: "second"}, now)

	if err := storage.SaveAll(ctx, b, []*storage.Record{second, first}); err != nil {
		t.Fatalf("Failed to save records: %v", err)
	}

	results, err := b.Query(ctx, storage.Filter{RunID: runID})
	if err != nil {
		t.Fatalf("Failed to query records: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("Expected 2 records, got %d", len(results))
	}
	if results[0].ID != first.ID || results[1].ID != second.ID {
		t.Errorf("Expected rank order within a run, got %s, %s", results[0].ID, results[1].ID)
	}

	got := results[0]
	if got.Query != first.Query || got.URL != first.URL || got.Title != first.Title ||
		got.Snippet != first.Snippet || got.Language != first.Language {
		t.Errorf("round trip mismatch: got %+v, want %+v", got, first)
	}
	// Postgres keeps microseconds.
	if got.CreatedAt.Unix() != first.CreatedAt.Unix() {
		t.Errorf("Expected CreatedAt %v, got %v", first.CreatedAt, got.CreatedAt)
	}

	past := now.Add(-time.Hour)
	limited, err := b.Query(ctx, storage.Filter{RunID: runID, Since: &past, Limit: 1, Offset: 1})
	if err != nil {
		t.Fatalf("Failed to query with paging: %v", err)
	}
	if len(limited) != 1 || limited[0].ID != second.ID {
		t.Errorf("Expected the second record, got %v", limited)
	}
}
