// Package search implements the hybrid retrieval pipeline: concurrent
// lexical and vector scoring, taxonomy filtering, weighted score
// fusion, and optional pairwise reranking with graceful fallback.
package search

import "strings"

// Mode reports which retrieval paths actually contributed to a
// response. Degradation is visible here instead of as an error.
type Mode string

const (
	ModeLexicalOnly    Mode = "lexical_only"
	ModeVectorOnly     Mode = "vector_only"
	ModeHybrid         Mode = "hybrid"
	ModeHybridReranked Mode = "hybrid_reranked"
)

// Request is the immutable per-search input. Toggles are pointers so
// an omitted JSON field keeps its default of true.
type Request struct {
	Query         string   `json:"query"`
	TopK          int      `json:"top_k,omitempty"`
	TaxonomyScope []string `json:"taxonomy_scope,omitempty"`
	UseVector     *bool    `json:"use_vector,omitempty"`
	UseReranker   *bool    `json:"use_reranker,omitempty"`

	// Alpha overrides the configured fusion weight for this request.
	// Internal knob; not part of the wire shape.
	Alpha *float64 `json:"-"`
}

// VectorEnabled resolves the use_vector toggle (default true).
func (r *Request) VectorEnabled() bool {
	return r.UseVector == nil || *r.UseVector
}

// RerankerEnabled resolves the use_reranker toggle (default true).
func (r *Request) RerankerEnabled() bool {
	return r.UseReranker == nil || *r.UseReranker
}

// HitSource is per-hit provenance for display.
type HitSource struct {
	Title    string `json:"title"`
	URLOrRef string `json:"url_or_ref"`
}

// Hit is one ranked result.
type Hit struct {
	PassageID    string    `json:"passage_id"`
	Score        float64   `json:"score"`
	TaxonomyPath []string  `json:"taxonomy_path"`
	Source       HitSource `json:"source"`
}

// Response is the final, immutable search result.
type Response struct {
	Hits            []*Hit  `json:"hits"`
	Mode            Mode    `json:"mode"`
	LatencyMS       float64 `json:"latency_ms"`
	RequestID       string  `json:"request_id"`
	TotalCandidates int     `json:"total_candidates"`
}

// FusedResult is a candidate after normalization and combination.
// LexScore and VecScore are the min-max normalized per-source
// components; Combined is the weighted sum in [0, 1].
type FusedResult struct {
	PassageID    string
	LexScore     float64
	VecScore     float64
	Combined     float64
	InBoth       bool
	TaxonomyPath string
}

// splitTaxonomyPath converts the stored dotted path into the response
// segment list. An empty path yields an empty list, not [""].
func splitTaxonomyPath(path string) []string {
	if path == "" {
		return []string{}
	}
	return strings.Split(path, ".")
}
