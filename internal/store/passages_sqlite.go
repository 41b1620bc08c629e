package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite" // pure Go SQLite driver, no CGO
)

// SQLitePassageStore persists passage content and metadata. It is the
// system of record that search results are hydrated from.
type SQLitePassageStore struct {
	mu     sync.RWMutex
	db     *sql.DB
	closed bool
}

var _ PassageStore = (*SQLitePassageStore)(nil)

// NewSQLitePassageStore opens (or creates) a passage store at path. An
// empty path creates an in-memory store for tests.
func NewSQLitePassageStore(path string) (*SQLitePassageStore, error) {
	dsn := ":memory:"
	if path != "" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create store directory: %w", err)
		}
		dsn = path
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open passage store: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA temp_store = MEMORY",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("set pragma: %w", err)
		}
	}

	store := &SQLitePassageStore{db: db}
	if err := store.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize passage schema: %w", err)
	}
	return store, nil
}

func (s *SQLitePassageStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS passages (
		id            TEXT PRIMARY KEY,
		title         TEXT NOT NULL DEFAULT '',
		body          TEXT NOT NULL,
		url_or_ref    TEXT NOT NULL DEFAULT '',
		taxonomy_path TEXT NOT NULL DEFAULT '',
		token_count   INTEGER NOT NULL DEFAULT 0,
		indexed_at    INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_passages_taxonomy ON passages(taxonomy_path);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Save upserts passages in a single transaction. Re-saving an ID
// replaces the previous row, which makes ingestion idempotent.
func (s *SQLitePassageStore) Save(ctx context.Context, passages []*Passage) error {
	if len(passages) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("passage store is closed")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO passages
			(id, title, body, url_or_ref, taxonomy_path, token_count, indexed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	now := time.Now().Unix()
	for _, p := range passages {
		indexedAt := now
		if !p.IndexedAt.IsZero() {
			indexedAt = p.IndexedAt.Unix()
		}
		if _, err := stmt.ExecContext(ctx,
			p.ID, p.Title, p.Body, p.URLOrRef, p.TaxonomyPath, p.TokenCount, indexedAt); err != nil {
			return fmt.Errorf("save passage %s: %w", p.ID, err)
		}
	}

	return tx.Commit()
}

// Get returns the passages for the given IDs. Unknown IDs are skipped;
// the result preserves the order of ids.
func (s *SQLitePassageStore) Get(ctx context.Context, ids []string) ([]*Passage, error) {
	if len(ids) == 0 {
		return []*Passage{}, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, fmt.Errorf("passage store is closed")
	}

	placeholders := make([]string, len(ids))
	args := make([]any, len(ids))
	for i, id := range ids {
		placeholders[i] = "?"
		args[i] = id
	}

	q := fmt.Sprintf(`
		SELECT id, title, body, url_or_ref, taxonomy_path, token_count, indexed_at
		FROM passages WHERE id IN (%s)`, strings.Join(placeholders, ","))
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query passages: %w", err)
	}
	defer rows.Close()

	byID := make(map[string]*Passage, len(ids))
	for rows.Next() {
		var p Passage
		var indexedAt int64
		if err := rows.Scan(&p.ID, &p.Title, &p.Body, &p.URLOrRef,
			&p.TaxonomyPath, &p.TokenCount, &indexedAt); err != nil {
			return nil, fmt.Errorf("scan passage: %w", err)
		}
		p.IndexedAt = time.Unix(indexedAt, 0)
		byID[p.ID] = &p
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	out := make([]*Passage, 0, len(byID))
	for _, id := range ids {
		if p, ok := byID[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

// Count returns the number of stored passages.
func (s *SQLitePassageStore) Count(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return 0, fmt.Errorf("passage store is closed")
	}

	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM passages`).Scan(&count)
	return count, err
}

// Stats summarizes the stored corpus for the status command.
func (s *SQLitePassageStore) Stats(ctx context.Context) (*PassageStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, fmt.Errorf("passage store is closed")
	}

	stats := &PassageStats{TaxonomyCounts: make(map[string]int)}

	var lastIndexed int64
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*), COALESCE(SUM(token_count), 0), COALESCE(MAX(indexed_at), 0)
		FROM passages`).Scan(&stats.PassageCount, &stats.TotalTokens, &lastIndexed)
	if err != nil {
		return nil, fmt.Errorf("read passage stats: %w", err)
	}
	if lastIndexed > 0 {
		stats.LastIndexedAt = time.Unix(lastIndexed, 0)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT taxonomy_path, COUNT(*) FROM passages GROUP BY taxonomy_path`)
	if err != nil {
		return nil, fmt.Errorf("read taxonomy stats: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var path string
		var count int
		if err := rows.Scan(&path, &count); err != nil {
			return nil, err
		}
		stats.TaxonomyCounts[path] = count
	}
	return stats, rows.Err()
}

// Delete removes passages by ID.
func (s *SQLitePassageStore) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("passage store is closed")
	}

	placeholders := make([]string, len(ids))
	args := make([]any, len(ids))
	for i, id := range ids {
		placeholders[i] = "?"
		args[i] = id
	}

	_, err := s.db.ExecContext(ctx,
		fmt.Sprintf("DELETE FROM passages WHERE id IN (%s)", strings.Join(placeholders, ",")), args...)
	return err
}

// Close releases the database handle.
func (s *SQLitePassageStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}
