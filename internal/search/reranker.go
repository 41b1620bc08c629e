package search

import (
	"context"
)

// RerankResult is a single pairwise-scored document.
type RerankResult struct {
	// Index is the position in the input documents slice.
	Index int

	// Score is the calibrated relevance score for (query, document).
	Score float64
}

// Reranker scores query/document pairs with a cross-encoder style
// model and reorders by relevance. Rerank scores reorder only; they
// are never mixed back into fusion scores.
type Reranker interface {
	// Rerank returns results sorted by score descending, truncated to
	// topK when topK > 0.
	Rerank(ctx context.Context, query string, documents []string, topK int) ([]RerankResult, error)

	// Available reports whether the reranker is healthy enough to
	// receive traffic.
	Available(ctx context.Context) bool

	Close() error
}

// NoopReranker preserves the incoming order. Wired when the rerank
// stage is disabled by configuration.
type NoopReranker struct{}

var _ Reranker = (*NoopReranker)(nil)

func (n *NoopReranker) Rerank(_ context.Context, _ string, documents []string, topK int) ([]RerankResult, error) {
	results := make([]RerankResult, len(documents))
	for i := range documents {
		results[i] = RerankResult{Index: i, Score: 1.0 - float64(i)*0.01}
	}
	if topK > 0 && topK < len(results) {
		results = results[:topK]
	}
	return results, nil
}

func (n *NoopReranker) Available(_ context.Context) bool { return true }

func (n *NoopReranker) Close() error { return nil }
