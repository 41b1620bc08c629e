package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
	pgxvector "github.com/pgvector/pgvector-go/pgx"
)

// PgVectorIndex is a remote vector backend on PostgreSQL with the
// pgvector extension. Durability comes from the database, so Save and
// Load are no-ops.
type PgVectorIndex struct {
	mu       sync.RWMutex
	pool     *pgxpool.Pool
	config   VectorConfig
	efSearch int
	closed   bool
}

var _ VectorIndex = (*PgVectorIndex)(nil)

// NewPgVectorIndex connects to PostgreSQL and ensures the embeddings
// table and ANN index exist.
func NewPgVectorIndex(ctx context.Context, dsn string, cfg VectorConfig) (*PgVectorIndex, error) {
	if cfg.Dimensions <= 0 {
		return nil, fmt.Errorf("vector index requires positive dimensions, got %d", cfg.Dimensions)
	}
	defaults := DefaultVectorConfig(cfg.Dimensions)
	if cfg.Metric == "" {
		cfg.Metric = defaults.Metric
	}
	if cfg.M == 0 {
		cfg.M = defaults.M
	}
	if cfg.EfConstruction == 0 {
		cfg.EfConstruction = defaults.EfConstruction
	}
	if cfg.EfSearch == 0 {
		cfg.EfSearch = defaults.EfSearch
	}

	poolConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	poolConfig.MaxConns = 10
	poolConfig.MinConns = 2
	poolConfig.MaxConnLifetime = 1 * time.Hour
	poolConfig.MaxConnIdleTime = 30 * time.Minute
	poolConfig.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgxvector.RegisterTypes(ctx, conn)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("create postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	idx := &PgVectorIndex{pool: pool, config: cfg, efSearch: cfg.EfSearch}
	if err := idx.initSchema(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("initialize pgvector schema: %w", err)
	}
	return idx, nil
}

func (p *PgVectorIndex) initSchema(ctx context.Context) error {
	statements := []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS passage_embeddings (
			id            TEXT PRIMARY KEY,
			taxonomy_path TEXT NOT NULL DEFAULT '',
			embedding     vector(%d) NOT NULL
		)`, p.config.Dimensions),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_passage_embeddings_ann
			ON passage_embeddings USING hnsw (embedding %s)
			WITH (m = %d, ef_construction = %d)`,
			p.operatorClass(), p.config.M, p.config.EfConstruction),
	}
	for _, stmt := range statements {
		if _, err := p.pool.Exec(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

func (p *PgVectorIndex) operatorClass() string {
	if p.config.Metric == "l2" {
		return "vector_l2_ops"
	}
	return "vector_cosine_ops"
}

func (p *PgVectorIndex) distanceOp() string {
	if p.config.Metric == "l2" {
		return "<->"
	}
	return "<=>"
}

// Add upserts embeddings in one batch round trip.
func (p *PgVectorIndex) Add(ctx context.Context, ids []string, paths []string, vectors [][]float32) error {
	if len(ids) == 0 {
		return nil
	}
	if len(ids) != len(vectors) || len(ids) != len(paths) {
		return fmt.Errorf("ids, paths and vectors length mismatch: %d, %d, %d",
			len(ids), len(paths), len(vectors))
	}

	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return fmt.Errorf("vector index is closed")
	}

	for _, v := range vectors {
		if len(v) != p.config.Dimensions {
			return ErrDimensionMismatch{Expected: p.config.Dimensions, Got: len(v)}
		}
	}

	batch := &pgx.Batch{}
	for i, id := range ids {
		batch.Queue(`
			INSERT INTO passage_embeddings (id, taxonomy_path, embedding)
			VALUES ($1, $2, $3)
			ON CONFLICT (id) DO UPDATE
				SET taxonomy_path = EXCLUDED.taxonomy_path,
				    embedding = EXCLUDED.embedding`,
			id, paths[i], pgvector.NewVector(vectors[i]))
	}

	results := p.pool.SendBatch(ctx, batch)
	defer results.Close()
	for range ids {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("upsert embedding: %w", err)
		}
	}
	return nil
}

// Search runs the ANN query server-side with the scope filter pushed
// into SQL.
func (p *PgVectorIndex) Search(ctx context.Context, embedding []float32, scope []string, limit int) ([]*Candidate, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return nil, fmt.Errorf("vector index is closed")
	}
	if len(embedding) != p.config.Dimensions {
		return nil, ErrDimensionMismatch{Expected: p.config.Dimensions, Got: len(embedding)}
	}
	if limit <= 0 {
		return []*Candidate{}, nil
	}

	conn, err := p.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	// ef_search is a session setting, applied per connection.
	if _, err := conn.Exec(ctx, fmt.Sprintf("SET hnsw.ef_search = %d", p.efSearch)); err != nil {
		return nil, fmt.Errorf("set ef_search: %w", err)
	}

	op := p.distanceOp()
	args := []any{pgvector.NewVector(embedding)}
	q := fmt.Sprintf(`
		SELECT id, taxonomy_path, embedding %s $1 AS distance
		FROM passage_embeddings`, op)
	if len(scope) > 0 {
		clauses := ""
		for i, s := range scope {
			if i > 0 {
				clauses += " OR "
			}
			clauses += fmt.Sprintf("(taxonomy_path = $%d OR taxonomy_path LIKE $%d)",
				len(args)+1, len(args)+2)
			args = append(args, s, s+".%")
		}
		q += " WHERE " + clauses
	}
	q += fmt.Sprintf(" ORDER BY embedding %s $1 LIMIT %d", op, limit)

	rows, err := conn.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("pgvector search: %w", err)
	}
	defer rows.Close()

	candidates := make([]*Candidate, 0, limit)
	for rows.Next() {
		var id, path string
		var distance float64
		if err := rows.Scan(&id, &path, &distance); err != nil {
			return nil, fmt.Errorf("scan embedding row: %w", err)
		}
		candidates = append(candidates, &Candidate{
			PassageID:    id,
			Score:        distanceToScore(float32(distance), p.config.Metric),
			Source:       SourceVector,
			TaxonomyPath: path,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	SortCandidates(candidates)
	return candidates, nil
}

// Delete removes embeddings by passage ID.
func (p *PgVectorIndex) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return fmt.Errorf("vector index is closed")
	}

	_, err := p.pool.Exec(ctx, `DELETE FROM passage_embeddings WHERE id = ANY($1)`, ids)
	return err
}

// SetEfSearch adjusts the query-time accuracy/speed knob.
func (p *PgVectorIndex) SetEfSearch(ef int) {
	if ef <= 0 {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.efSearch = ef
}

// Count returns the number of stored embeddings.
func (p *PgVectorIndex) Count() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return 0
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var count int
	if err := p.pool.QueryRow(ctx, `SELECT COUNT(*) FROM passage_embeddings`).Scan(&count); err != nil {
		return 0
	}
	return count
}

// Save is a no-op; PostgreSQL is durable on its own.
func (p *PgVectorIndex) Save(path string) error { return nil }

// Load is a no-op; the table is the source of truth.
func (p *PgVectorIndex) Load(path string) error { return nil }

// Close releases the connection pool.
func (p *PgVectorIndex) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	p.pool.Close()
	return nil
}
