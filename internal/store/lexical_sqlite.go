package store

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	_ "modernc.org/sqlite" // pure Go SQLite driver, no CGO
)

// SQLiteLexicalIndex is the default lexical backend. It keeps an
// inverted index (term postings plus per-document statistics) in
// SQLite and computes BM25 in Go, so the saturation constant K1 and
// the length-normalization constant B come from configuration instead
// of being fixed by the storage engine.
type SQLiteLexicalIndex struct {
	mu        sync.RWMutex
	db        *sql.DB
	config    LexicalConfig
	stopWords map[string]struct{}
	closed    bool
}

var _ LexicalIndex = (*SQLiteLexicalIndex)(nil)

// NewSQLiteLexicalIndex opens (or creates) a lexical index at path. An
// empty path creates an in-memory index for tests.
func NewSQLiteLexicalIndex(path string, cfg LexicalConfig) (*SQLiteLexicalIndex, error) {
	if cfg.K1 <= 0 {
		cfg.K1 = DefaultLexicalConfig().K1
	}
	if cfg.B < 0 || cfg.B > 1 {
		cfg.B = DefaultLexicalConfig().B
	}
	if cfg.StopWords == nil {
		cfg.StopWords = DefaultStopWords
	}

	dsn := ":memory:"
	if path != "" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create index directory: %w", err)
		}
		dsn = path
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open lexical index: %w", err)
	}

	// Single writer avoids SQLite lock contention; reads share the
	// same connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	// modernc.org/sqlite ignores some DSN parameters, so pragmas are
	// applied as statements.
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

	idx := &SQLiteLexicalIndex{
		db:        db,
		config:    cfg,
		stopWords: BuildStopWordMap(cfg.StopWords),
	}
	if err := idx.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize lexical schema: %w", err)
	}
	return idx, nil
}

func (s *SQLiteLexicalIndex) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS lex_docs (
		doc_id        TEXT PRIMARY KEY,
		taxonomy_path TEXT NOT NULL DEFAULT '',
		length        INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS lex_postings (
		term   TEXT NOT NULL,
		doc_id TEXT NOT NULL,
		tf     INTEGER NOT NULL,
		PRIMARY KEY (term, doc_id)
	) WITHOUT ROWID;

	CREATE INDEX IF NOT EXISTS idx_postings_doc ON lex_postings(doc_id);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Index upserts passages into the inverted index. Title and body are
// tokenized together; re-indexing an existing ID replaces its postings.
func (s *SQLiteLexicalIndex) Index(ctx context.Context, passages []*Passage) error {
	if len(passages) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("lexical index is closed")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	delPostings, err := tx.PrepareContext(ctx, `DELETE FROM lex_postings WHERE doc_id = ?`)
	if err != nil {
		return err
	}
	defer delPostings.Close()

	insDoc, err := tx.PrepareContext(ctx,
		`INSERT OR REPLACE INTO lex_docs(doc_id, taxonomy_path, length) VALUES (?, ?, ?)`)
	if err != nil {
		return err
	}
	defer insDoc.Close()

	insPosting, err := tx.PrepareContext(ctx,
		`INSERT INTO lex_postings(term, doc_id, tf) VALUES (?, ?, ?)`)
	if err != nil {
		return err
	}
	defer insPosting.Close()

	for _, p := range passages {
		tokens := TokenizeWithConfig(p.Title+" "+p.Body, s.config, s.stopWords)

		freqs := make(map[string]int, len(tokens))
		for _, tok := range tokens {
			freqs[tok]++
		}

		if _, err := delPostings.ExecContext(ctx, p.ID); err != nil {
			return fmt.Errorf("replace postings for %s: %w", p.ID, err)
		}
		if _, err := insDoc.ExecContext(ctx, p.ID, p.TaxonomyPath, len(tokens)); err != nil {
			return fmt.Errorf("index document %s: %w", p.ID, err)
		}
		for term, tf := range freqs {
			if _, err := insPosting.ExecContext(ctx, term, p.ID, tf); err != nil {
				return fmt.Errorf("index term %q for %s: %w", term, p.ID, err)
			}
		}
	}

	return tx.Commit()
}

// Search scores documents matching the query terms with BM25 and
// returns the top candidates ordered by descending score, ties broken
// by passage ID ascending.
func (s *SQLiteLexicalIndex) Search(ctx context.Context, query string, scope []string, limit int) ([]*Candidate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, fmt.Errorf("lexical index is closed")
	}
	if limit <= 0 {
		return []*Candidate{}, nil
	}

	terms := dedupeTerms(TokenizeWithConfig(query, s.config, s.stopWords))
	if len(terms) == 0 {
		return []*Candidate{}, nil
	}

	var docCount int
	var avgLen float64
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COALESCE(AVG(length), 0) FROM lex_docs`).Scan(&docCount, &avgLen)
	if err != nil {
		return nil, fmt.Errorf("read corpus stats: %w", err)
	}
	if docCount == 0 {
		return []*Candidate{}, nil
	}
	if avgLen <= 0 {
		avgLen = 1
	}

	df, err := s.documentFrequencies(ctx, terms)
	if err != nil {
		return nil, err
	}

	args := make([]any, 0, len(terms)+2*len(scope))
	placeholders := make([]string, len(terms))
	for i, t := range terms {
		placeholders[i] = "?"
		args = append(args, t)
	}
	q := fmt.Sprintf(`
		SELECT p.term, p.doc_id, p.tf, d.length, d.taxonomy_path
		FROM lex_postings p
		JOIN lex_docs d ON d.doc_id = p.doc_id
		WHERE p.term IN (%s)`, strings.Join(placeholders, ","))
	if clause, scopeArgs := scopeSQL("d.taxonomy_path", scope); clause != "" {
		q += " AND " + clause
		args = append(args, scopeArgs...)
	}

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query postings: %w", err)
	}
	defer rows.Close()

	type docAcc struct {
		score float64
		path  string
	}
	scores := make(map[string]*docAcc)

	k1, b := s.config.K1, s.config.B
	for rows.Next() {
		var term, docID, path string
		var tf, docLen int
		if err := rows.Scan(&term, &docID, &tf, &docLen, &path); err != nil {
			return nil, fmt.Errorf("scan posting: %w", err)
		}

		idf := math.Log(1 + (float64(docCount)-float64(df[term])+0.5)/(float64(df[term])+0.5))
		norm := k1 * (1 - b + b*float64(docLen)/avgLen)
		contribution := idf * float64(tf) * (k1 + 1) / (float64(tf) + norm)

		acc, ok := scores[docID]
		if !ok {
			acc = &docAcc{path: path}
			scores[docID] = acc
		}
		acc.score += contribution
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	results := make([]*Candidate, 0, len(scores))
	for id, acc := range scores {
		results = append(results, &Candidate{
			PassageID:    id,
			Score:        acc.score,
			Source:       SourceLexical,
			TaxonomyPath: acc.path,
		})
	}
	SortCandidates(results)
	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// documentFrequencies returns the number of documents containing each
// term.
func (s *SQLiteLexicalIndex) documentFrequencies(ctx context.Context, terms []string) (map[string]int, error) {
	placeholders := make([]string, len(terms))
	args := make([]any, len(terms))
	for i, t := range terms {
		placeholders[i] = "?"
		args[i] = t
	}

	q := fmt.Sprintf(`SELECT term, COUNT(*) FROM lex_postings WHERE term IN (%s) GROUP BY term`,
		strings.Join(placeholders, ","))
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query document frequencies: %w", err)
	}
	defer rows.Close()

	df := make(map[string]int, len(terms))
	for rows.Next() {
		var term string
		var count int
		if err := rows.Scan(&term, &count); err != nil {
			return nil, err
		}
		df[term] = count
	}
	return df, rows.Err()
}

// Delete removes passages from the index.
func (s *SQLiteLexicalIndex) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("lexical index is closed")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	placeholders := make([]string, len(ids))
	args := make([]any, len(ids))
	for i, id := range ids {
		placeholders[i] = "?"
		args[i] = id
	}
	inClause := strings.Join(placeholders, ",")

	if _, err := tx.ExecContext(ctx,
		fmt.Sprintf("DELETE FROM lex_postings WHERE doc_id IN (%s)", inClause), args...); err != nil {
		return fmt.Errorf("delete postings: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		fmt.Sprintf("DELETE FROM lex_docs WHERE doc_id IN (%s)", inClause), args...); err != nil {
		return fmt.Errorf("delete documents: %w", err)
	}

	return tx.Commit()
}

// Count returns the number of indexed passages.
func (s *SQLiteLexicalIndex) Count(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return 0, fmt.Errorf("lexical index is closed")
	}

	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM lex_docs`).Scan(&count)
	return count, err
}

// Close releases the database handle.
func (s *SQLiteLexicalIndex) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}

// dedupeTerms removes duplicate terms while preserving order.
func dedupeTerms(terms []string) []string {
	seen := make(map[string]struct{}, len(terms))
	out := terms[:0]
	for _, t := range terms {
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}

// scopeSQL builds an ancestor-or-self taxonomy filter clause for the
// given column. Scoping to "science" admits "science" itself and every
// dotted descendant such as "science.biology.cells".
func scopeSQL(column string, scope []string) (string, []any) {
	if len(scope) == 0 {
		return "", nil
	}
	clauses := make([]string, 0, len(scope))
	args := make([]any, 0, 2*len(scope))
	for _, s := range scope {
		clauses = append(clauses, fmt.Sprintf("(%s = ? OR %s LIKE ?)", column, column))
		args = append(args, s, s+".%")
	}
	return "(" + strings.Join(clauses, " OR ") + ")", args
}

// SortCandidates orders candidates by descending score with ties
// broken by passage ID ascending, the determinism contract every
// backend shares.
func SortCandidates(candidates []*Candidate) {
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].Score != candidates[j].Score {
			return candidates[i].Score > candidates[j].Score
		}
		return candidates[i].PassageID < candidates[j].PassageID
	})
}
