package embed

import (
	"bytes"
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	apperrors "github.com/loreleaf/loreleaf/internal/errors"
)

// Connection defaults for the embedding service client.
const (
	defaultPoolSize      = 8
	defaultHealthTimeout = 5 * time.Second
)

// HTTPConfig configures the HTTP embedding service client.
type HTTPConfig struct {
	// URL is the service base URL, e.g. http://localhost:11434.
	URL string

	// Model is the embedding model identifier sent with each request.
	Model string

	// Dimensions is the expected embedding width. 0 auto-detects from
	// the first embedding returned by the service.
	Dimensions int

	// BatchSize caps texts per request.
	BatchSize int

	// PoolSize is the HTTP connection pool size.
	PoolSize int

	// SkipHealthCheck skips the construction-time probe. Used in tests
	// and by callers that tolerate a cold service.
	SkipHealthCheck bool
}

// HTTPEmbedder generates embeddings via an HTTP embedding service
// speaking the /api/embed protocol.
type HTTPEmbedder struct {
	client    *http.Client
	transport *http.Transport
	config    HTTPConfig

	mu     sync.RWMutex
	closed bool
	dims   int
}

var _ Embedder = (*HTTPEmbedder)(nil)

// embedRequest is the wire request. Input is a string for single texts
// and a []string for batches.
type embedRequest struct {
	Model string `json:"model"`
	Input any    `json:"input"`
}

// embedResponse is the wire response.
type embedResponse struct {
	Model      string      `json:"model,omitempty"`
	Embeddings [][]float64 `json:"embeddings"`
}

// NewHTTPEmbedder creates an embedding service client. Unless skipped,
// it probes the service once, which also detects the embedding width.
func NewHTTPEmbedder(ctx context.Context, cfg HTTPConfig) (*HTTPEmbedder, error) {
	if cfg.URL == "" {
		return nil, apperrors.New(apperrors.ErrCodeConfigInvalid, "embedding service URL is empty", nil)
	}
	cfg.URL = strings.TrimRight(cfg.URL, "/")
	if cfg.BatchSize < MinBatchSize {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.BatchSize > MaxBatchSize {
		cfg.BatchSize = MaxBatchSize
	}
	if cfg.PoolSize <= 0 {
		cfg.PoolSize = defaultPoolSize
	}

	// Short idle timeout: search processes are long-lived but bursty,
	// idle connections are cheap to rebuild.
	transport := &http.Transport{
		MaxIdleConns:        cfg.PoolSize,
		MaxIdleConnsPerHost: cfg.PoolSize,
		MaxConnsPerHost:     cfg.PoolSize * 2,
		IdleConnTimeout:     10 * time.Second,
	}

	// No client timeout. Deadlines come from the per-request context so
	// the scorer budget governs every call.
	e := &HTTPEmbedder{
		client:    &http.Client{Transport: transport},
		transport: transport,
		config:    cfg,
		dims:      cfg.Dimensions,
	}

	if !cfg.SkipHealthCheck {
		probeCtx, cancel := context.WithTimeout(ctx, defaultHealthTimeout)
		defer cancel()

		dims, err := e.detectDimensions(probeCtx)
		if err != nil {
			transport.CloseIdleConnections()
			return nil, apperrors.New(apperrors.ErrCodeEmbedderUnavailable,
				fmt.Sprintf("embedding service probe failed at %s", cfg.URL), err)
		}
		if e.dims != 0 && e.dims != dims {
			transport.CloseIdleConnections()
			return nil, apperrors.New(apperrors.ErrCodeDimensionMismatch,
				fmt.Sprintf("configured %d dimensions but service returned %d", e.dims, dims), nil)
		}
		e.dims = dims
	}

	if e.dims == 0 {
		e.dims = DefaultDimensions
	}

	return e, nil
}

// detectDimensions embeds a probe text and returns the vector width.
func (e *HTTPEmbedder) detectDimensions(ctx context.Context) (int, error) {
	vecs, err := e.doEmbed(ctx, []string{"dimension probe"})
	if err != nil {
		return 0, err
	}
	if len(vecs) == 0 || len(vecs[0]) == 0 {
		return 0, apperrors.New(apperrors.ErrCodeServiceProtocol, "service returned an empty embedding", nil)
	}
	return len(vecs[0]), nil
}

// Embed generates the embedding for a single text.
func (e *HTTPEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := e.checkOpen(); err != nil {
		return nil, err
	}

	if strings.TrimSpace(text) == "" {
		return make([]float32, e.Dimensions()), nil
	}

	vecs, err := e.embedWithRetry(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vecs) == 0 {
		return nil, apperrors.New(apperrors.ErrCodeServiceProtocol, "service returned no embeddings", nil)
	}
	return vecs[0], nil
}

// EmbedBatch generates embeddings for multiple texts. Empty texts map
// to zero vectors without a service call.
func (e *HTTPEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if err := e.checkOpen(); err != nil {
		return nil, err
	}
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	type indexedText struct {
		idx  int
		text string
	}
	var nonEmpty []indexedText
	results := make([][]float32, len(texts))

	for i, text := range texts {
		if strings.TrimSpace(text) == "" {
			results[i] = make([]float32, e.Dimensions())
		} else {
			nonEmpty = append(nonEmpty, indexedText{i, text})
		}
	}

	for start := 0; start < len(nonEmpty); start += e.config.BatchSize {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		end := min(start+e.config.BatchSize, len(nonEmpty))
		batch := nonEmpty[start:end]
		batchTexts := make([]string, len(batch))
		for i, it := range batch {
			batchTexts[i] = it.text
		}

		vecs, err := e.embedWithRetry(ctx, batchTexts)
		if err != nil {
			return nil, err
		}
		if len(vecs) != len(batch) {
			return nil, apperrors.New(apperrors.ErrCodeServiceProtocol,
				fmt.Sprintf("service returned %d embeddings for %d texts", len(vecs), len(batch)), nil)
		}
		for i, vec := range vecs {
			results[batch[i].idx] = vec
		}
	}

	return results, nil
}

// embedWithRetry calls the service with exactly one fast retry for
// transient failures, then classifies the error for the caller.
func (e *HTTPEmbedder) embedWithRetry(ctx context.Context, texts []string) ([][]float32, error) {
	vecs, err := apperrors.RetryWithResult(ctx, apperrors.EmbedRetryConfig(), func() ([][]float32, error) {
		return e.doEmbed(ctx, texts)
	})
	if err == nil {
		return vecs, nil
	}

	slog.Debug("embedding failed",
		slog.String("model", e.config.Model),
		slog.Int("texts", len(texts)),
		slog.String("error", err.Error()))

	if stderrors.Is(err, context.DeadlineExceeded) {
		return nil, apperrors.New(apperrors.ErrCodeEmbedderTimeout, "embedding service timed out", err)
	}
	if stderrors.Is(err, context.Canceled) {
		return nil, err
	}
	return nil, apperrors.New(apperrors.ErrCodeEmbedderUnavailable, "embedding service unavailable", err)
}

// doEmbed performs a single /api/embed request.
func (e *HTTPEmbedder) doEmbed(ctx context.Context, texts []string) ([][]float32, error) {
	var input any
	if len(texts) == 1 {
		input = texts[0]
	} else {
		input = texts
	}

	body, err := json.Marshal(embedRequest{Model: e.config.Model, Input: input})
	if err != nil {
		return nil, fmt.Errorf("marshal embed request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.config.URL+"/api/embed", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("embed request failed with status %d: %s", resp.StatusCode, string(respBody))
	}

	var result embedResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode embed response: %w", err)
	}

	embeddings := make([][]float32, len(result.Embeddings))
	for i, emb := range result.Embeddings {
		vec := make([]float32, len(emb))
		for j, v := range emb {
			vec[j] = float32(v)
		}
		embeddings[i] = normalizeVector(vec)
	}
	return embeddings, nil
}

func (e *HTTPEmbedder) checkOpen() error {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.closed {
		return apperrors.New(apperrors.ErrCodeEmbedderUnavailable, "embedder is closed", nil)
	}
	return nil
}

// Dimensions returns the embedding dimension.
func (e *HTTPEmbedder) Dimensions() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.dims
}

// ModelName returns the model identifier.
func (e *HTTPEmbedder) ModelName() string {
	return e.config.Model
}

// Available probes the service with a trivial embed call.
func (e *HTTPEmbedder) Available(ctx context.Context) bool {
	if err := e.checkOpen(); err != nil {
		return false
	}
	probeCtx, cancel := context.WithTimeout(ctx, defaultHealthTimeout)
	defer cancel()
	_, err := e.doEmbed(probeCtx, []string{"ping"})
	return err == nil
}

// Close releases connection pool resources.
func (e *HTTPEmbedder) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil
	}
	e.closed = true
	e.transport.CloseIdleConnections()
	return nil
}
