// Package store provides the passage metadata store and the lexical and
// vector index backends behind the retrieval core. Backends are selected
// by configuration and hidden behind narrow interfaces; the search
// pipeline never depends on which backend is wired.
package store

import (
	"context"
	"fmt"
	"time"
)

// SourceKind identifies which scorer produced a candidate.
type SourceKind string

const (
	SourceLexical SourceKind = "lexical"
	SourceVector  SourceKind = "vector"
)

// Passage is the stored unit of retrievable text. The retrieval core
// holds read-only, request-scoped references; the passage store owns
// the content.
type Passage struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	Body         string    `json:"body"`
	URLOrRef     string    `json:"url_or_ref"`
	TaxonomyPath string    `json:"taxonomy_path"` // dotted, e.g. "science.biology.cells"
	TokenCount   int       `json:"token_count,omitempty"`
	IndexedAt    time.Time `json:"indexed_at,omitempty"`
}

// Candidate is a retrieval hit prior to fusion. Score is on the
// producing scorer's own scale; normalization happens at fusion.
type Candidate struct {
	PassageID    string
	Score        float64
	Source       SourceKind
	TaxonomyPath string
}

// LexicalIndex scores passages against query text using BM25-style
// term statistics. Results are ordered by descending raw score with
// ties broken by passage ID ascending, truncated to limit.
//
// An empty scope means no restriction. A non-empty scope keeps only
// passages whose taxonomy path matches a scope entry on an
// ancestor-or-self basis.
type LexicalIndex interface {
	Index(ctx context.Context, passages []*Passage) error
	Search(ctx context.Context, query string, scope []string, limit int) ([]*Candidate, error)
	Delete(ctx context.Context, ids []string) error
	Count(ctx context.Context) (int, error)
	Close() error
}

// VectorIndex stores passage embeddings and retrieves approximate
// nearest neighbors. Distances are normalized to descending similarity
// before return, so callers see one score convention across backends.
type VectorIndex interface {
	Add(ctx context.Context, ids []string, paths []string, vectors [][]float32) error
	Search(ctx context.Context, embedding []float32, scope []string, limit int) ([]*Candidate, error)
	Delete(ctx context.Context, ids []string) error

	// SetEfSearch adjusts the query-time accuracy/speed knob. Backends
	// without an equivalent ignore it.
	SetEfSearch(ef int)

	Count() int

	// Save/Load persist in-process indexes. Remote backends are durable
	// on their own and implement these as no-ops.
	Save(path string) error
	Load(path string) error
	Close() error
}

// PassageStore persists passage metadata and serves batch lookups for
// response assembly and reranker document fetch.
type PassageStore interface {
	Save(ctx context.Context, passages []*Passage) error
	Get(ctx context.Context, ids []string) ([]*Passage, error)
	Count(ctx context.Context) (int, error)
	Stats(ctx context.Context) (*PassageStats, error)
	Delete(ctx context.Context, ids []string) error
	Close() error
}

// PassageStats summarizes the passage store for `loreleaf status`.
type PassageStats struct {
	PassageCount   int
	TotalTokens    int64
	TaxonomyCounts map[string]int
	LastIndexedAt  time.Time
}

// LexicalConfig tunes BM25 scoring. K1 and B are configuration, not
// constants baked into the scorer.
type LexicalConfig struct {
	// K1 is the term-frequency saturation constant (typical 1.2-2.0).
	K1 float64

	// B is the document-length normalization constant (typical 0.5-0.8).
	B float64

	// StopWords are dropped during tokenization.
	StopWords []string

	// MinTokenLength is the minimum token length kept (default 2).
	MinTokenLength int
}

// DefaultLexicalConfig returns the default BM25 parameters.
func DefaultLexicalConfig() LexicalConfig {
	return LexicalConfig{
		K1:             1.5,
		B:              0.75,
		StopWords:      DefaultStopWords,
		MinTokenLength: 2,
	}
}

// DefaultStopWords are common English function words excluded from the
// lexical index.
var DefaultStopWords = []string{
	"the", "a", "an", "of", "to", "in", "on", "at", "and", "or",
	"is", "are", "was", "were", "be", "been", "it", "its", "this",
	"that", "with", "as", "by", "for", "from", "not", "but",
}

// VectorConfig tunes the ANN index.
type VectorConfig struct {
	// Dimensions is the embedding width.
	Dimensions int

	// Metric is the distance metric: "cos" (cosine) or "l2"
	// (euclidean).
	Metric string

	// M is the HNSW max connections per layer.
	M int

	// EfConstruction is the HNSW build-time search width.
	EfConstruction int

	// EfSearch is the HNSW query-time search width; the accuracy/speed
	// tradeoff knob.
	EfSearch int
}

// DefaultVectorConfig returns HNSW defaults for the given embedding
// width.
func DefaultVectorConfig(dimensions int) VectorConfig {
	return VectorConfig{
		Dimensions:     dimensions,
		Metric:         "cos",
		M:              16,
		EfConstruction: 128,
		EfSearch:       64,
	}
}

// ErrDimensionMismatch indicates an embedding width mismatch between
// the index and a query or inserted vector.
type ErrDimensionMismatch struct {
	Expected int
	Got      int
}

func (e ErrDimensionMismatch) Error() string {
	return fmt.Sprintf("dimension mismatch: index expects %d, got %d", e.Expected, e.Got)
}
