package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"newsbrief/internal/core"
	"newsbrief/internal/dedup"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Failed to open store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func testArticle(id, rawURL, title string, published time.Time) core.Article {
	return core.Article{
		ID:            id,
		URL:           rawURL,
		NormalizedURL: dedup.NormalizeURL(rawURL),
		Title:         title,
		SourceName:    "test-source",
		Category:      "technology",
		Priority:      1,
		PublishedAt:   published,
		FetchedAt:     published,
		Summary:       "summary for " + id,
	}
}

func testDedupOptions() dedup.Options {
	return dedup.Options{
		SimilarityThreshold: 0.6,
		Window:              48 * time.Hour,
		Now:                 time.Date(2025, 6, 10, 12, 0, 0, 0, time.UTC),
	}
}

func TestAppendAndDrain(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	published := time.Date(2025, 6, 9, 8, 0, 0, 0, time.UTC)

	inserted, err := s.Append(ctx, []core.Article{
		testArticle("a", "https://a.com/x", "Kafka 4.0 released", published),
		testArticle("b", "https://b.com/y", "Postgres 17 incremental backup", published),
	}, testDedupOptions())
	if err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	if inserted != 2 {
		t.Errorf("Expected 2 inserted, got %d", inserted)
	}

	drained, err := s.DrainAll(ctx)
	if err != nil {
		t.Fatalf("DrainAll failed: %v", err)
	}
	if len(drained) != 2 {
		t.Errorf("Expected 2 drained articles, got %d", len(drained))
	}
	for _, a := range drained {
		if a.Summary == "" || a.NormalizedURL == "" {
			t.Errorf("Drained article %s lost fields: %+v", a.ID, a)
		}
		if !a.PublishedAt.Equal(published) {
			t.Errorf("Article %s published_at roundtrip: got %v want %v", a.ID, a.PublishedAt, published)
		}
	}

	// Buffer is now empty: a second drain returns nothing.
	again, err := s.DrainAll(ctx)
	if err != nil {
		t.Fatalf("Second DrainAll failed: %v", err)
	}
	if len(again) != 0 {
		t.Errorf("Expected empty second drain, got %d articles", len(again))
	}
}

func TestAppendDedupsAgainstBuffer(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	published := time.Date(2025, 6, 9, 8, 0, 0, 0, time.UTC)

	if _, err := s.Append(ctx, []core.Article{
		testArticle("a", "https://a.com/x", "Kafka 4.0 released with KRaft default", published),
	}, testDedupOptions()); err != nil {
		t.Fatalf("First append failed: %v", err)
	}

	// A near-duplicate from another source arriving in a later run must be
	// absorbed by the buffered story.
	inserted, err := s.Append(ctx, []core.Article{
		testArticle("b", "https://b.com/y", "Kafka 4.0 released, KRaft now default", published.Add(time.Hour)),
		testArticle("c", "https://c.com/z", "Unrelated quarterly earnings beat", published),
	}, testDedupOptions())
	if err != nil {
		t.Fatalf("Second append failed: %v", err)
	}
	if inserted != 1 {
		t.Errorf("Expected only the novel article inserted, got %d", inserted)
	}

	drained, err := s.DrainAll(ctx)
	if err != nil {
		t.Fatalf("DrainAll failed: %v", err)
	}
	if len(drained) != 2 {
		t.Errorf("Expected 2 distinct stories in buffer, got %d", len(drained))
	}
}

func TestDrainAtomicity(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	published := time.Date(2025, 6, 9, 8, 0, 0, 0, time.UTC)

	if _, err := s.Append(ctx, []core.Article{
		testArticle("a", "https://a.com/x", "Story one", published),
	}, testDedupOptions()); err != nil {
		t.Fatalf("Append failed: %v", err)
	}

	first, err := s.DrainAll(ctx)
	if err != nil {
		t.Fatalf("First drain failed: %v", err)
	}
	if len(first) != 1 || first[0].ID != "a" {
		t.Fatalf("Unexpected first drain: %+v", first)
	}

	// An append landing after the drain snapshot belongs to the next cycle.
	if _, err := s.Append(ctx, []core.Article{
		testArticle("b", "https://b.com/y", "Story two", published),
	}, testDedupOptions()); err != nil {
		t.Fatalf("Post-drain append failed: %v", err)
	}

	second, err := s.DrainAll(ctx)
	if err != nil {
		t.Fatalf("Second drain failed: %v", err)
	}
	if len(second) != 1 || second[0].ID != "b" {
		t.Errorf("Expected the post-drain article in the next drain, got %+v", second)
	}
}

func TestDrainConflictFailsClosed(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.AcquireRunLock(ctx, "drain"); err != nil {
		t.Fatalf("AcquireRunLock failed: %v", err)
	}

	_, err := s.DrainAll(ctx)
	if !errors.Is(err, core.ErrPersistenceConflict) {
		t.Errorf("Expected ErrPersistenceConflict for overlapping drain, got %v", err)
	}

	if err := s.ReleaseRunLock(ctx, "drain"); err != nil {
		t.Fatalf("ReleaseRunLock failed: %v", err)
	}
	if _, err := s.DrainAll(ctx); err != nil {
		t.Errorf("Drain after release should succeed, got %v", err)
	}
}

func TestRunLockReacquire(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.AcquireRunLock(ctx, "drain"); err != nil {
		t.Fatalf("First acquire failed: %v", err)
	}
	if err := s.AcquireRunLock(ctx, "drain"); !errors.Is(err, core.ErrPersistenceConflict) {
		t.Errorf("Expected conflict on re-acquire, got %v", err)
	}
	if err := s.ReleaseRunLock(ctx, "drain"); err != nil {
		t.Fatalf("Release failed: %v", err)
	}
	if err := s.AcquireRunLock(ctx, "drain"); err != nil {
		t.Errorf("Acquire after release failed: %v", err)
	}
}

func TestSeenPapers(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	seen, err := s.SeenPaperIDs(ctx)
	if err != nil {
		t.Fatalf("SeenPaperIDs failed: %v", err)
	}
	if len(seen) != 0 {
		t.Errorf("Expected empty history, got %d entries", len(seen))
	}

	if err := s.MarkPaperSeen(ctx, "2301.00001", "Attention Is All You Need"); err != nil {
		t.Fatalf("MarkPaperSeen failed: %v", err)
	}

	seen, err = s.SeenPaperIDs(ctx)
	if err != nil {
		t.Fatalf("SeenPaperIDs failed: %v", err)
	}
	if !seen["2301.00001"] {
		t.Error("Expected marked paper in history")
	}

	// Entries inside the window survive pruning.
	pruned, err := s.PrunePapers(ctx, 30*24*time.Hour)
	if err != nil {
		t.Fatalf("PrunePapers failed: %v", err)
	}
	if pruned != 0 {
		t.Errorf("Expected no entries pruned inside the window, got %d", pruned)
	}

	// A negative window puts the cutoff in the future and prunes everything.
	pruned, err = s.PrunePapers(ctx, -time.Minute)
	if err != nil {
		t.Fatalf("PrunePapers failed: %v", err)
	}
	if pruned != 1 {
		t.Errorf("Expected 1 entry pruned with elapsed window, got %d", pruned)
	}
}

func TestAppendCountsOnlyNewRows(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	published := time.Date(2025, 6, 9, 8, 0, 0, 0, time.UTC)
	article := testArticle("a", "https://a.com/x", "Story one", published)

	if _, err := s.Append(ctx, []core.Article{article}, testDedupOptions()); err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	if _, err := s.DrainAll(ctx); err != nil {
		t.Fatalf("DrainAll failed: %v", err)
	}

	// The consumed row still occupies the ID. The re-appearing story is
	// ignored by the insert and must not be counted as new.
	inserted, err := s.Append(ctx, []core.Article{article}, testDedupOptions())
	if err != nil {
		t.Fatalf("Second append failed: %v", err)
	}
	if inserted != 0 {
		t.Errorf("Expected 0 inserted against a consumed row, got %d", inserted)
	}

	// After expiry the same story inserts cleanly.
	if _, err := s.Expire(ctx, 7*24*time.Hour); err != nil {
		t.Fatalf("Expire failed: %v", err)
	}
	inserted, err = s.Append(ctx, []core.Article{article}, testDedupOptions())
	if err != nil {
		t.Fatalf("Third append failed: %v", err)
	}
	if inserted != 1 {
		t.Errorf("Expected 1 inserted after expiry, got %d", inserted)
	}
}

func TestExpire(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	published := time.Date(2025, 6, 9, 8, 0, 0, 0, time.UTC)

	if _, err := s.Append(ctx, []core.Article{
		testArticle("a", "https://a.com/x", "Story one", published),
	}, testDedupOptions()); err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	if _, err := s.DrainAll(ctx); err != nil {
		t.Fatalf("DrainAll failed: %v", err)
	}

	// Consumed rows are removed regardless of age.
	removed, err := s.Expire(ctx, 7*24*time.Hour)
	if err != nil {
		t.Fatalf("Expire failed: %v", err)
	}
	if removed != 1 {
		t.Errorf("Expected 1 consumed row expired, got %d", removed)
	}
}
