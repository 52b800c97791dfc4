// Package store persists the article buffer and the seen-paper history in a
// local SQLite database. It is the only durable state in the system.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"newsbrief/internal/core"
	"newsbrief/internal/dedup"
	"newsbrief/internal/logger"
)

// runLockTTL bounds how long a crashed run can hold the drain lock before a
// later run may break it.
const runLockTTL = 2 * time.Hour

// Store is the SQLite-backed buffer and history store.
type Store struct {
	db   *sql.DB
	path string
}

// Open creates or opens the store under the given data directory.
func Open(dataDir string) (*Store, error) {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, "newsbrief.db")
	db, err := sql.Open("sqlite3", dbPath+"?_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	s := &Store{db: db, path: dbPath}
	if err := s.initialize(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	return s, nil
}

func (s *Store) initialize() error {
	articlesTable := `
	CREATE TABLE IF NOT EXISTS articles (
		id TEXT PRIMARY KEY,
		url TEXT NOT NULL,
		normalized_url TEXT NOT NULL,
		title TEXT,
		source_name TEXT,
		category TEXT,
		priority INTEGER,
		published_at TEXT,
		fetched_at TEXT,
		summary TEXT,
		consumed INTEGER NOT NULL DEFAULT 0,
		inserted_at TEXT NOT NULL
	);`

	seenPapersTable := `
	CREATE TABLE IF NOT EXISTS seen_papers (
		arxiv_id TEXT PRIMARY KEY,
		title TEXT,
		seen_at TEXT NOT NULL
	);`

	runLocksTable := `
	CREATE TABLE IF NOT EXISTS run_locks (
		name TEXT PRIMARY KEY,
		acquired_at TEXT NOT NULL
	);`

	for _, table := range []string{articlesTable, seenPapersTable, runLocksTable} {
		if _, err := s.db.Exec(table); err != nil {
			return fmt.Errorf("failed to create table: %w", err)
		}
	}
	return nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Append merges canonical articles into the buffer. Dedup is re-run against
// the currently unconsumed set, so a story buffered in an earlier run absorbs
// a near-duplicate arriving later. Returns the number of newly buffered
// articles.
func (s *Store) Append(ctx context.Context, incoming []core.Article, opts dedup.Options) (int, error) {
	if len(incoming) == 0 {
		return 0, nil
	}

	buffered, err := s.unconsumed(ctx)
	if err != nil {
		return 0, err
	}

	bufferedIDs := make(map[string]bool, len(buffered))
	for _, a := range buffered {
		bufferedIDs[a.ID] = true
	}

	combined := make([]core.Article, 0, len(buffered)+len(incoming))
	combined = append(combined, buffered...)
	combined = append(combined, incoming...)
	clusters := dedup.Cluster(combined, opts)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin append transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	inserted := 0
	now := time.Now().UTC()
	for _, cluster := range clusters {
		if clusterHasBuffered(cluster, bufferedIDs) {
			continue
		}
		a := cluster.Canonical
		res, err := tx.ExecContext(ctx, `
			INSERT OR IGNORE INTO articles
			(id, url, normalized_url, title, source_name, category, priority, published_at, fetched_at, summary, consumed, inserted_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 0, ?)`,
			a.ID, a.URL, a.NormalizedURL, a.Title, a.SourceName, a.Category, a.Priority,
			encodeTime(a.PublishedAt), encodeTime(a.FetchedAt), a.Summary, now.Format(time.RFC3339))
		if err != nil {
			return 0, fmt.Errorf("failed to insert article %s: %w", a.ID, err)
		}
		// INSERT OR IGNORE skips rows whose ID collides with a consumed row
		// still awaiting expiry; those are not new.
		if n, err := res.RowsAffected(); err == nil && n > 0 {
			inserted++
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit append: %w", err)
	}
	return inserted, nil
}

func clusterHasBuffered(cluster core.DedupCluster, bufferedIDs map[string]bool) bool {
	for _, m := range cluster.Members {
		if bufferedIDs[m.ID] {
			return true
		}
	}
	return false
}

// DrainAll atomically returns the full unconsumed set and marks it consumed.
// Partial consumption is not supported: a digest run takes the whole buffer or
// nothing. Articles appended after the drain snapshot stay unconsumed and are
// picked up by the next cycle. A concurrent drain fails closed with
// ErrPersistenceConflict via the run lock.
func (s *Store) DrainAll(ctx context.Context) ([]core.Article, error) {
	if err := s.AcquireRunLock(ctx, "drain"); err != nil {
		return nil, err
	}
	defer func() {
		if err := s.ReleaseRunLock(context.Background(), "drain"); err != nil {
			logger.Warn("Failed to release drain lock", "error", err.Error())
		}
	}()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin drain transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	rows, err := tx.QueryContext(ctx, selectArticleColumns+` WHERE consumed = 0 ORDER BY inserted_at, id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query unconsumed articles: %w", err)
	}
	articles, err := scanArticles(rows)
	if err != nil {
		return nil, err
	}

	for _, a := range articles {
		if _, err := tx.ExecContext(ctx, `UPDATE articles SET consumed = 1 WHERE id = ?`, a.ID); err != nil {
			return nil, fmt.Errorf("failed to mark article %s consumed: %w", a.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit drain: %w", err)
	}
	return articles, nil
}

// Expire removes unconsumed articles older than maxAge and consumed articles
// unconditionally. Returns the number of rows removed.
func (s *Store) Expire(ctx context.Context, maxAge time.Duration) (int, error) {
	cutoff := time.Now().UTC().Add(-maxAge).Format(time.RFC3339)
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM articles WHERE consumed = 1 OR inserted_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to expire articles: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// UnconsumedCount returns the number of articles waiting in the buffer.
func (s *Store) UnconsumedCount(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM articles WHERE consumed = 0`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count unconsumed articles: %w", err)
	}
	return count, nil
}

// Unconsumed returns the current buffer contents without consuming them.
// Dry runs use this to preview what a drain would hand to the pipeline.
func (s *Store) Unconsumed(ctx context.Context) ([]core.Article, error) {
	return s.unconsumed(ctx)
}

func (s *Store) unconsumed(ctx context.Context) ([]core.Article, error) {
	rows, err := s.db.QueryContext(ctx, selectArticleColumns+` WHERE consumed = 0 ORDER BY inserted_at, id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query unconsumed articles: %w", err)
	}
	return scanArticles(rows)
}

const selectArticleColumns = `
	SELECT id, url, normalized_url, title, source_name, category, priority, published_at, fetched_at, summary
	FROM articles`

func scanArticles(rows *sql.Rows) ([]core.Article, error) {
	defer rows.Close()

	var articles []core.Article
	for rows.Next() {
		var a core.Article
		var published, fetched string
		if err := rows.Scan(&a.ID, &a.URL, &a.NormalizedURL, &a.Title, &a.SourceName,
			&a.Category, &a.Priority, &published, &fetched, &a.Summary); err != nil {
			return nil, fmt.Errorf("failed to scan article row: %w", err)
		}
		a.PublishedAt = decodeTime(published)
		a.FetchedAt = decodeTime(fetched)
		articles = append(articles, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate article rows: %w", err)
	}
	return articles, nil
}

// AcquireRunLock takes the named exclusive lock. A held lock younger than the
// TTL yields ErrPersistenceConflict; a stale lock from a crashed run is
// broken.
func (s *Store) AcquireRunLock(ctx context.Context, name string) error {
	now := time.Now().UTC()
	cutoff := now.Add(-runLockTTL).Format(time.RFC3339)

	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM run_locks WHERE name = ? AND acquired_at < ?`, name, cutoff); err != nil {
		return fmt.Errorf("failed to clear stale lock: %w", err)
	}

	res, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO run_locks (name, acquired_at) VALUES (?, ?)`,
		name, now.Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("failed to acquire lock %s: %w", name, err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("%w: lock %q is held", core.ErrPersistenceConflict, name)
	}
	return nil
}

// ReleaseRunLock releases the named lock.
func (s *Store) ReleaseRunLock(ctx context.Context, name string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM run_locks WHERE name = ?`, name); err != nil {
		return fmt.Errorf("failed to release lock %s: %w", name, err)
	}
	return nil
}

// MarkPaperSeen records a paper as featured. Called only after a confirmed
// publish, so a failed run can retry the same paper.
func (s *Store) MarkPaperSeen(ctx context.Context, arxivID, title string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO seen_papers (arxiv_id, title, seen_at) VALUES (?, ?, ?)`,
		arxivID, title, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("failed to mark paper seen: %w", err)
	}
	return nil
}

// SeenPaperIDs returns the identifiers of all previously featured papers.
func (s *Store) SeenPaperIDs(ctx context.Context) (map[string]bool, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT arxiv_id FROM seen_papers`)
	if err != nil {
		return nil, fmt.Errorf("failed to query seen papers: %w", err)
	}
	defer rows.Close()

	seen := make(map[string]bool)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan seen paper row: %w", err)
		}
		seen[id] = true
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate seen paper rows: %w", err)
	}
	return seen, nil
}

// PrunePapers removes history entries older than the window so a paper can be
// featured again eventually.
func (s *Store) PrunePapers(ctx context.Context, window time.Duration) (int, error) {
	cutoff := time.Now().UTC().Add(-window).Format(time.RFC3339)
	res, err := s.db.ExecContext(ctx, `DELETE FROM seen_papers WHERE seen_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to prune seen papers: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

func encodeTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func decodeTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}
	}
	return t.UTC()
}
