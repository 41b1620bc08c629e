package search

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNoopReranker_PreservesOrder(t *testing.T) {
	r := &NoopReranker{}
	results, err := r.Rerank(context.Background(), "q", []string{"d0", "d1", "d2"}, 2)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, 0, results[0].Index)
	assert.Equal(t, 1, results[1].Index)
	assert.Greater(t, results[0].Score, results[1].Score)
}

// rerankService scores documents by a fixed map, so tests control the
// ordering precisely.
func rerankService(t *testing.T, scores map[string]float64, calls *atomic.Int64) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/rerank", r.URL.Path)
		if calls != nil {
			calls.Add(1)
		}

		var req rerankRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		var resp rerankResponse
		for i, doc := range req.Documents {
			resp.Results = append(resp.Results, struct {
				Index int     `json:"index"`
				Score float64 `json:"score"`
			}{Index: i, Score: scores[doc]})
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}))
}

func TestHTTPReranker_ScoresAndSorts(t *testing.T) {
	srv := rerankService(t, map[string]float64{"low": 0.1, "mid": 0.5, "high": 0.9}, nil)
	defer srv.Close()

	r, err := NewHTTPReranker(HTTPRerankerConfig{URL: srv.URL, BatchSize: 16})
	require.NoError(t, err)
	defer r.Close()

	results, err := r.Rerank(context.Background(), "q", []string{"low", "high", "mid"}, 0)
	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.Equal(t, 1, results[0].Index) // "high"
	assert.Equal(t, 2, results[1].Index) // "mid"
	assert.Equal(t, 0, results[2].Index) // "low"
}

func TestHTTPReranker_Batches(t *testing.T) {
	var calls atomic.Int64
	srv := rerankService(t, map[string]float64{}, &calls)
	defer srv.Close()

	r, err := NewHTTPReranker(HTTPRerankerConfig{URL: srv.URL, BatchSize: 2})
	require.NoError(t, err)
	defer r.Close()

	docs := []string{"a", "b", "c", "d", "e"}
	results, err := r.Rerank(context.Background(), "q", docs, 0)
	require.NoError(t, err)
	assert.Len(t, results, 5)
	assert.Equal(t, int64(3), calls.Load())

	// Indexes refer to the full input slice, not batch positions.
	seen := make(map[int]bool)
	for _, res := range results {
		seen[res.Index] = true
	}
	assert.Len(t, seen, 5)
}

func TestHTTPReranker_BreakerOpensOnFailures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	r, err := NewHTTPReranker(HTTPRerankerConfig{URL: srv.URL, BatchSize: 4})
	require.NoError(t, err)
	defer r.Close()

	assert.True(t, r.Available(context.Background()))
	for i := 0; i < 3; i++ {
		_, err := r.Rerank(context.Background(), "q", []string{"a"}, 0)
		require.Error(t, err)
	}
	assert.False(t, r.Available(context.Background()))
}

func TestHTTPReranker_RejectsBadResponses(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"results":[{"index":7,"score":0.5}]}`))
	}))
	defer srv.Close()

	r, err := NewHTTPReranker(HTTPRerankerConfig{URL: srv.URL})
	require.NoError(t, err)
	defer r.Close()

	_, err = r.Rerank(context.Background(), "q", []string{"only"}, 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "reranker unavailable")
}
