package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"time"

	"github.com/sony/gobreaker/v2"

	apperrors "github.com/loreleaf/loreleaf/internal/errors"
)

// HTTPRerankerConfig configures the external reranker client.
type HTTPRerankerConfig struct {
	// URL is the service base URL; pairs are posted to {URL}/rerank.
	URL string

	// Model is the model identifier forwarded to the service.
	Model string

	// BatchSize is query/document pairs per request.
	BatchSize int

	// Timeout bounds a single HTTP call.
	Timeout time.Duration
}

// HTTPReranker scores query/document pairs against an external model
// service. A circuit breaker stops traffic to a flapping service so
// searches fall back to the fused ranking immediately instead of
// burning their rerank budget.
type HTTPReranker struct {
	config  HTTPRerankerConfig
	client  *http.Client
	breaker *gobreaker.CircuitBreaker[[]RerankResult]
}

var _ Reranker = (*HTTPReranker)(nil)

type rerankRequest struct {
	Model     string   `json:"model,omitempty"`
	Query     string   `json:"query"`
	Documents []string `json:"documents"`
	TopK      int      `json:"top_k,omitempty"`
}

type rerankResponse struct {
	Results []struct {
		Index int     `json:"index"`
		Score float64 `json:"score"`
	} `json:"results"`
}

// NewHTTPReranker creates a reranker client.
func NewHTTPReranker(cfg HTTPRerankerConfig) (*HTTPReranker, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("reranker URL is required")
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 16
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}

	settings := gobreaker.Settings{
		Name:        "reranker",
		MaxRequests: 1,
		Timeout:     15 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
	}

	return &HTTPReranker{
		config:  cfg,
		client:  &http.Client{Timeout: cfg.Timeout},
		breaker: gobreaker.NewCircuitBreaker[[]RerankResult](settings),
	}, nil
}

// Rerank scores documents in batches and returns them ordered by
// score descending, ties broken by input index.
func (r *HTTPReranker) Rerank(ctx context.Context, query string, documents []string, topK int) ([]RerankResult, error) {
	if len(documents) == 0 {
		return []RerankResult{}, nil
	}

	results, err := r.breaker.Execute(func() ([]RerankResult, error) {
		return r.rerankAll(ctx, query, documents)
	})
	if err != nil {
		return nil, apperrors.RerankerUnavailable(err)
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].Index < results[j].Index
	})
	if topK > 0 && topK < len(results) {
		results = results[:topK]
	}
	return results, nil
}

// rerankAll scores every document, batch by batch. Indexes in the
// returned results refer to positions in the full documents slice.
func (r *HTTPReranker) rerankAll(ctx context.Context, query string, documents []string) ([]RerankResult, error) {
	all := make([]RerankResult, 0, len(documents))
	for offset := 0; offset < len(documents); offset += r.config.BatchSize {
		end := offset + r.config.BatchSize
		if end > len(documents) {
			end = len(documents)
		}

		batch, err := r.rerankBatch(ctx, query, documents[offset:end])
		if err != nil {
			return nil, err
		}
		for _, res := range batch {
			all = append(all, RerankResult{Index: offset + res.Index, Score: res.Score})
		}
	}
	return all, nil
}

func (r *HTTPReranker) rerankBatch(ctx context.Context, query string, documents []string) ([]RerankResult, error) {
	payload, err := json.Marshal(rerankRequest{
		Model:     r.config.Model,
		Query:     query,
		Documents: documents,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal rerank request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		r.config.URL+"/rerank", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create rerank request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("rerank call: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read rerank response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("rerank service returned %d: %s", resp.StatusCode, truncateBody(body))
	}

	var parsed rerankResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("parse rerank response: %w", err)
	}

	results := make([]RerankResult, 0, len(parsed.Results))
	for _, res := range parsed.Results {
		if res.Index < 0 || res.Index >= len(documents) {
			return nil, fmt.Errorf("rerank response index %d out of range", res.Index)
		}
		results = append(results, RerankResult{Index: res.Index, Score: res.Score})
	}
	if len(results) != len(documents) {
		return nil, fmt.Errorf("rerank response has %d results for %d documents", len(results), len(documents))
	}
	return results, nil
}

// Available reflects breaker state; an open breaker means the service
// is considered down.
func (r *HTTPReranker) Available(_ context.Context) bool {
	return r.breaker.State() != gobreaker.StateOpen
}

// Close releases idle connections.
func (r *HTTPReranker) Close() error {
	r.client.CloseIdleConnections()
	return nil
}

func truncateBody(body []byte) string {
	const max = 200
	if len(body) > max {
		return string(body[:max]) + "..."
	}
	return string(body)
}
