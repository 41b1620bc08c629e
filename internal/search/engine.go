package search

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/loreleaf/loreleaf/internal/config"
	"github.com/loreleaf/loreleaf/internal/embed"
	apperrors "github.com/loreleaf/loreleaf/internal/errors"
	"github.com/loreleaf/loreleaf/internal/store"
	"github.com/loreleaf/loreleaf/internal/taxonomy"
	"github.com/loreleaf/loreleaf/internal/telemetry"
)

// Deps are the long-lived resources injected into the engine. The
// engine holds no mutable per-request state of its own.
type Deps struct {
	Lexical  store.LexicalIndex
	Vector   store.VectorIndex
	Passages store.PassageStore
	Embedder embed.Embedder
	Reranker Reranker
	Config   *config.Config
	Metrics  *telemetry.Metrics
	Logger   *slog.Logger
}

// Engine orchestrates a search request: concurrent scorer fan-out
// under independent timeouts, taxonomy filtering, weighted fusion,
// optional reranking, and response assembly. Scorer failures degrade
// the response mode; the only fatal outcome is both paths failing.
type Engine struct {
	lexical  store.LexicalIndex
	vector   store.VectorIndex
	passages store.PassageStore
	embedder embed.Embedder
	reranker Reranker
	metrics  *telemetry.Metrics
	logger   *slog.Logger

	mu     sync.RWMutex
	config *config.Config
}

// NewEngine wires an engine from its dependencies.
func NewEngine(deps Deps) (*Engine, error) {
	if deps.Lexical == nil {
		return nil, fmt.Errorf("engine requires a lexical index")
	}
	if deps.Passages == nil {
		return nil, fmt.Errorf("engine requires a passage store")
	}
	if deps.Config == nil {
		return nil, fmt.Errorf("engine requires configuration")
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	reranker := deps.Reranker
	if reranker == nil {
		reranker = &NoopReranker{}
	}

	return &Engine{
		lexical:  deps.Lexical,
		vector:   deps.Vector,
		passages: deps.Passages,
		embedder: deps.Embedder,
		reranker: reranker,
		config:   deps.Config,
		metrics:  deps.Metrics,
		logger:   logger,
	}, nil
}

// UpdateConfig swaps the engine's tunables after a hot reload. Index
// handles are unaffected; only per-request parameters change. Requests
// already in flight keep the snapshot they started with.
func (e *Engine) UpdateConfig(cfg *config.Config) {
	if cfg == nil {
		return
	}
	e.mu.Lock()
	e.config = cfg
	e.mu.Unlock()
	if e.vector != nil {
		e.vector.SetEfSearch(cfg.Index.EfSearch)
	}
}

// snapshot returns the config a single request should run against.
func (e *Engine) snapshot() *config.Config {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.config
}

// Fusion exposes the current fusion tunables, so callers can compute
// the effective alpha a request would fuse with.
func (e *Engine) Fusion() config.FusionConfig {
	return e.snapshot().Fusion
}

// scorerOutcome captures one retrieval path's result for degradation
// accounting.
type scorerOutcome struct {
	candidates []*store.Candidate
	err        error
	attempted  bool
}

// Search runs the full pipeline for one request.
func (e *Engine) Search(ctx context.Context, req *Request) (*Response, error) {
	start := time.Now()
	requestID := uuid.NewString()
	cfg := e.snapshot()

	topK, err := validate(cfg, req)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, cfg.TotalBudget())
	defer cancel()

	lex, vec := e.runScorers(ctx, cfg, req)

	if err := e.checkPaths(lex, vec); err != nil {
		return nil, err
	}
	e.recordDegradations(requestID, req.Query, lex, vec)

	// Post-hoc scope filter. Backends already filter server-side;
	// applying it again here keeps the invariant independent of
	// backend capability, and filtering is idempotent.
	lexFiltered := taxonomy.Filter(lex.candidates, req.TaxonomyScope)
	vecFiltered := taxonomy.Filter(vec.candidates, req.TaxonomyScope)

	fusionStart := time.Now()
	alpha := alphaFor(cfg.Fusion, req.Query, req.Alpha)
	fused := Fuse(lexFiltered, vecFiltered, alpha)
	e.metrics.RecordStage(telemetry.StageFusion, time.Since(fusionStart))

	mode := resolveMode(len(lexFiltered) > 0, len(vecFiltered) > 0, lex, vec)

	ranked, reranked := e.maybeRerank(ctx, cfg, requestID, req, topK, fused)
	if reranked && mode == ModeHybrid {
		mode = ModeHybridReranked
	}

	if len(ranked) > topK {
		ranked = ranked[:topK]
	}

	hits, err := e.assemble(ctx, ranked)
	if err != nil {
		return nil, apperrors.StorageError("fetch passages for response", err)
	}

	latency := time.Since(start)
	e.metrics.RecordSearch(string(mode), latency)

	return &Response{
		Hits:            hits,
		Mode:            mode,
		LatencyMS:       float64(latency.Microseconds()) / 1000.0,
		RequestID:       requestID,
		TotalCandidates: len(fused),
	}, nil
}

// validate checks the request bounds and returns the effective top_k.
func validate(cfg *config.Config, req *Request) (int, error) {
	if req == nil {
		return 0, apperrors.New(apperrors.ErrCodeInvalidRequest, "request is required", nil)
	}
	query := strings.TrimSpace(req.Query)
	if query == "" {
		return 0, apperrors.New(apperrors.ErrCodeQueryEmpty, "query must not be empty", nil)
	}
	if len(req.Query) > cfg.Search.MaxQueryChars {
		return 0, apperrors.New(apperrors.ErrCodeQueryTooLong,
			fmt.Sprintf("query exceeds %d characters", cfg.Search.MaxQueryChars), nil)
	}

	topK := req.TopK
	if topK == 0 {
		topK = cfg.Search.DefaultTopK
	}
	if topK < 1 || topK > cfg.Search.MaxTopK {
		return 0, apperrors.New(apperrors.ErrCodeTopKOutOfRange,
			fmt.Sprintf("top_k must be between 1 and %d", cfg.Search.MaxTopK), nil)
	}

	for _, scope := range req.TaxonomyScope {
		if err := taxonomy.ValidatePath(scope); err != nil {
			return 0, apperrors.New(apperrors.ErrCodeInvalidScope, "invalid taxonomy scope", err)
		}
	}
	return topK, nil
}

// runScorers fans out to both retrieval paths, each under its own
// timeout. Scorer errors are captured, never propagated through the
// group; late completions are cancelled with their contexts.
func (e *Engine) runScorers(ctx context.Context, cfg *config.Config, req *Request) (lex, vec scorerOutcome) {
	limit := cfg.Search.CandidateLimit
	scorerBudget := cfg.ScorerBudget()

	g, gctx := errgroup.WithContext(ctx)

	lex.attempted = true
	g.Go(func() error {
		lctx, lcancel := context.WithTimeout(gctx, scorerBudget)
		defer lcancel()

		stageStart := time.Now()
		candidates, err := e.lexical.Search(lctx, req.Query, req.TaxonomyScope, limit)
		e.metrics.RecordStage(telemetry.StageLexical, time.Since(stageStart))
		if err != nil {
			lex.err = classifyScorerErr("lexical", lctx, err)
			return nil
		}
		lex.candidates = candidates
		return nil
	})

	if req.VectorEnabled() && e.vector != nil && e.embedder != nil {
		vec.attempted = true
		g.Go(func() error {
			vctx, vcancel := context.WithTimeout(gctx, scorerBudget)
			defer vcancel()

			// The embedder performs one fast retry internally; a
			// failure here marks the whole vector path unavailable
			// without touching the ANN index.
			embedStart := time.Now()
			embedding, err := e.embedder.Embed(vctx, req.Query)
			e.metrics.RecordStage(telemetry.StageEmbed, time.Since(embedStart))
			if err != nil {
				vec.err = classifyScorerErr("vector", vctx, err)
				return nil
			}

			stageStart := time.Now()
			candidates, err := e.vector.Search(vctx, embedding, req.TaxonomyScope, limit)
			e.metrics.RecordStage(telemetry.StageVector, time.Since(stageStart))
			if err != nil {
				vec.err = classifyScorerErr("vector", vctx, err)
				return nil
			}
			vec.candidates = candidates
			return nil
		})
	}

	_ = g.Wait()
	return lex, vec
}

// checkPaths enforces the single fatal condition: every attempted
// scorer path failed.
func (e *Engine) checkPaths(lex, vec scorerOutcome) error {
	lexFailed := lex.attempted && lex.err != nil
	vecFailed := vec.attempted && vec.err != nil

	if lexFailed && !vec.attempted {
		return apperrors.AllPathsFailed(lex.err)
	}
	if lexFailed && vecFailed {
		return apperrors.AllPathsFailed(errors.Join(lex.err, vec.err))
	}
	return nil
}

// recordDegradations logs and counts non-fatal scorer failures.
func (e *Engine) recordDegradations(requestID, query string, lex, vec scorerOutcome) {
	for stage, outcome := range map[string]scorerOutcome{
		telemetry.StageLexical: lex,
		telemetry.StageVector:  vec,
	} {
		if !outcome.attempted || outcome.err == nil {
			continue
		}
		reason := telemetry.ReasonUnavailable
		if apperrors.GetCode(outcome.err) == apperrors.ErrCodeScorerTimeout {
			reason = telemetry.ReasonTimeout
		}
		e.metrics.RecordDegradation(stage, reason)
		e.logger.Warn("search degraded",
			slog.String("request_id", requestID),
			slog.String("stage", stage),
			slog.String("reason", reason),
			slog.String("query", query),
			slog.String("error", outcome.err.Error()))
	}
}

// maybeRerank sends the fused top window to the reranker when the
// stage is eligible. On any failure the fused ranking stands and the
// fallback is logged, never surfaced as an error. Returns the ranking
// to use and whether reranking was applied.
func (e *Engine) maybeRerank(ctx context.Context, cfg *config.Config, requestID string, req *Request, topK int, fused []*FusedResult) ([]*FusedResult, bool) {
	if !req.RerankerEnabled() || !cfg.Rerank.Enabled {
		return fused, false
	}
	if len(fused) < 2 {
		return fused, false
	}
	if !e.reranker.Available(ctx) {
		e.metrics.RecordDegradation(telemetry.StageRerank, telemetry.ReasonUnavailable)
		e.logger.Warn("rerank fallback",
			slog.String("request_id", requestID),
			slog.String("reason", "circuit open"))
		return fused, false
	}

	// The window must cover the whole returned page: otherwise hits
	// past the window would carry fusion-scale scores next to
	// rerank-scale ones.
	window := cfg.Rerank.Window
	if window < topK {
		window = topK
	}
	if window > len(fused) {
		window = len(fused)
	}

	docs, err := e.rerankDocuments(ctx, fused[:window])
	if err != nil {
		e.metrics.RecordDegradation(telemetry.StageRerank, telemetry.ReasonUnavailable)
		e.logger.Warn("rerank fallback",
			slog.String("request_id", requestID),
			slog.String("error", err.Error()))
		return fused, false
	}

	rctx, cancel := context.WithTimeout(ctx, cfg.RerankBudget())
	defer cancel()

	stageStart := time.Now()
	results, err := e.reranker.Rerank(rctx, req.Query, docs, 0)
	e.metrics.RecordStage(telemetry.StageRerank, time.Since(stageStart))
	if err != nil {
		reason := telemetry.ReasonUnavailable
		if errors.Is(err, context.DeadlineExceeded) || rctx.Err() != nil {
			reason = telemetry.ReasonTimeout
		}
		e.metrics.RecordDegradation(telemetry.StageRerank, reason)
		e.logger.Warn("rerank fallback",
			slog.String("request_id", requestID),
			slog.String("reason", reason),
			slog.String("error", err.Error()))
		return fused, false
	}

	// Reorder the window by rerank score; positions beyond the window
	// keep their fused order. Rerank scores replace the combined score
	// for display but never feed back into fusion.
	reordered := make([]*FusedResult, 0, len(fused))
	for _, res := range results {
		f := fused[res.Index]
		clone := *f
		clone.Combined = res.Score
		reordered = append(reordered, &clone)
	}
	reordered = append(reordered, fused[window:]...)
	return reordered, true
}

// rerankDocuments fetches the window's passage bodies in one batch.
func (e *Engine) rerankDocuments(ctx context.Context, window []*FusedResult) ([]string, error) {
	ids := make([]string, len(window))
	for i, f := range window {
		ids[i] = f.PassageID
	}
	passages, err := e.passages.Get(ctx, ids)
	if err != nil {
		return nil, err
	}
	if len(passages) != len(window) {
		return nil, fmt.Errorf("passage store returned %d of %d window documents", len(passages), len(window))
	}

	docs := make([]string, len(passages))
	for i, p := range passages {
		docs[i] = p.Body
	}
	return docs, nil
}

// assemble hydrates the final ranking into response hits.
func (e *Engine) assemble(ctx context.Context, ranked []*FusedResult) ([]*Hit, error) {
	if len(ranked) == 0 {
		return []*Hit{}, nil
	}

	ids := make([]string, len(ranked))
	for i, f := range ranked {
		ids[i] = f.PassageID
	}
	passages, err := e.passages.Get(ctx, ids)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]*store.Passage, len(passages))
	for _, p := range passages {
		byID[p.ID] = p
	}

	hits := make([]*Hit, 0, len(ranked))
	for _, f := range ranked {
		p, ok := byID[f.PassageID]
		if !ok {
			// Index and store briefly disagree during re-ingest.
			continue
		}
		hits = append(hits, &Hit{
			PassageID:    f.PassageID,
			Score:        f.Combined,
			TaxonomyPath: splitTaxonomyPath(p.TaxonomyPath),
			Source: HitSource{
				Title:    p.Title,
				URLOrRef: p.URLOrRef,
			},
		})
	}
	return hits, nil
}

// Ready reports whether the backing stores answer queries. Used by
// readiness probes.
func (e *Engine) Ready(ctx context.Context) error {
	if _, err := e.lexical.Count(ctx); err != nil {
		return fmt.Errorf("lexical index: %w", err)
	}
	if _, err := e.passages.Stats(ctx); err != nil {
		return fmt.Errorf("passage store: %w", err)
	}
	return nil
}

// Close releases the engine's injected resources.
func (e *Engine) Close() error {
	var errs []error
	if e.reranker != nil {
		if err := e.reranker.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if e.embedder != nil {
		if err := e.embedder.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// classifyScorerErr maps a raw scorer failure to the degradation
// taxonomy: budget exceeded vs. backend unreachable.
func classifyScorerErr(scorer string, ctx context.Context, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return apperrors.ScorerTimeout(scorer, err)
	}
	return apperrors.ScorerUnavailable(scorer, err)
}

// resolveMode names the paths that actually contributed candidates.
// When both attempted paths succeeded but neither produced candidates
// the response is an empty hybrid result.
func resolveMode(hasLex, hasVec bool, lex, vec scorerOutcome) Mode {
	switch {
	case hasLex && hasVec:
		return ModeHybrid
	case hasLex:
		return ModeLexicalOnly
	case hasVec:
		return ModeVectorOnly
	}

	lexOK := lex.attempted && lex.err == nil
	vecOK := vec.attempted && vec.err == nil
	switch {
	case lexOK && vecOK:
		return ModeHybrid
	case vecOK:
		return ModeVectorOnly
	default:
		return ModeLexicalOnly
	}
}
