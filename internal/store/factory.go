package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/loreleaf/loreleaf/internal/config"
)

// Index file names under the index directory.
const (
	passagesDBFile = "passages.db"
	lexicalDBFile  = "lexical.db"
	bleveDir       = "lexical.bleve"
	hnswFile       = "vectors.hnsw"
)

// Stores bundles the three storage surfaces the pipeline needs.
type Stores struct {
	Passages PassageStore
	Lexical  LexicalIndex
	Vector   VectorIndex

	indexDir string
}

// Open opens the passage store and the configured lexical and vector
// backends under indexDir. dimensions is the embedding width for the
// vector index; pass 0 to reuse the width of a previously saved local
// index.
func Open(ctx context.Context, cfg *config.Config, indexDir string, dimensions int) (*Stores, error) {
	if err := os.MkdirAll(indexDir, 0o755); err != nil {
		return nil, fmt.Errorf("create index directory: %w", err)
	}

	passages, err := NewSQLitePassageStore(filepath.Join(indexDir, passagesDBFile))
	if err != nil {
		return nil, err
	}

	lexical, err := OpenLexical(cfg, indexDir)
	if err != nil {
		_ = passages.Close()
		return nil, err
	}

	vector, err := OpenVector(ctx, cfg, indexDir, dimensions)
	if err != nil {
		_ = passages.Close()
		_ = lexical.Close()
		return nil, err
	}

	return &Stores{
		Passages: passages,
		Lexical:  lexical,
		Vector:   vector,
		indexDir: indexDir,
	}, nil
}

// OpenLexical opens the configured lexical backend.
func OpenLexical(cfg *config.Config, indexDir string) (LexicalIndex, error) {
	switch strings.ToLower(cfg.Index.LexicalBackend) {
	case "", "sqlite":
		lexCfg := DefaultLexicalConfig()
		lexCfg.K1 = cfg.Index.BM25K1
		lexCfg.B = cfg.Index.BM25B
		return NewSQLiteLexicalIndex(filepath.Join(indexDir, lexicalDBFile), lexCfg)
	case "bleve":
		return NewBleveLexicalIndex(filepath.Join(indexDir, bleveDir))
	case "meilisearch":
		return NewMeiliLexicalIndex(
			cfg.Index.Meilisearch.URL,
			cfg.Index.Meilisearch.APIKey,
			cfg.Index.Meilisearch.Index)
	default:
		return nil, fmt.Errorf("unknown lexical backend %q", cfg.Index.LexicalBackend)
	}
}

// OpenVector opens the configured vector backend. For the local HNSW
// backend a previously saved index is loaded when present.
func OpenVector(ctx context.Context, cfg *config.Config, indexDir string, dimensions int) (VectorIndex, error) {
	switch strings.ToLower(cfg.Index.VectorBackend) {
	case "", "hnsw":
		indexPath := filepath.Join(indexDir, hnswFile)
		if dimensions <= 0 {
			saved, err := ReadHNSWIndexDimensions(indexPath)
			if err != nil {
				return nil, err
			}
			dimensions = saved
		}
		if dimensions <= 0 {
			return nil, fmt.Errorf("vector index dimensions unknown; run an ingest first or set embedding.dimensions")
		}

		vecCfg := DefaultVectorConfig(dimensions)
		vecCfg.EfSearch = cfg.Index.EfSearch
		idx, err := NewHNSWIndex(vecCfg)
		if err != nil {
			return nil, err
		}
		if _, statErr := os.Stat(indexPath); statErr == nil {
			if err := idx.Load(indexPath); err != nil {
				_ = idx.Close()
				return nil, fmt.Errorf("load vector index: %w", err)
			}
			idx.SetEfSearch(cfg.Index.EfSearch)
		}
		return idx, nil
	case "pgvector":
		if dimensions <= 0 {
			return nil, fmt.Errorf("embedding.dimensions is required for the pgvector backend")
		}
		vecCfg := DefaultVectorConfig(dimensions)
		vecCfg.EfSearch = cfg.Index.EfSearch
		return NewPgVectorIndex(ctx, cfg.Index.Postgres.DSN, vecCfg)
	default:
		return nil, fmt.Errorf("unknown vector backend %q", cfg.Index.VectorBackend)
	}
}

// VectorIndexPath returns the local HNSW persistence path under the
// index directory.
func (s *Stores) VectorIndexPath() string {
	return filepath.Join(s.indexDir, hnswFile)
}

// Close closes all stores, returning the first error.
func (s *Stores) Close() error {
	var first error
	for _, c := range []interface{ Close() error }{s.Vector, s.Lexical, s.Passages} {
		if c == nil {
			continue
		}
		if err := c.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
