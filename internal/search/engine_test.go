package search

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loreleaf/loreleaf/internal/config"
	"github.com/loreleaf/loreleaf/internal/embed"
	apperrors "github.com/loreleaf/loreleaf/internal/errors"
	"github.com/loreleaf/loreleaf/internal/store"
)

var testCorpus = []*store.Passage{
	{ID: "bio-1", Title: "Photosynthesis", Body: "Photosynthesis converts light energy into chemical energy in plants", TaxonomyPath: "science.biology", URLOrRef: "doc://bio-1"},
	{ID: "bio-2", Title: "Chloroplasts", Body: "Chloroplasts are the organelles where photosynthesis happens", TaxonomyPath: "science.biology", URLOrRef: "doc://bio-2"},
	{ID: "bio-3", Title: "Cellular respiration", Body: "Respiration releases the energy stored by photosynthesis", TaxonomyPath: "science.biology", URLOrRef: "doc://bio-3"},
	{ID: "chem-1", Title: "Light reactions", Body: "Light dependent reactions of photosynthesis split water molecules", TaxonomyPath: "science.chemistry", URLOrRef: "doc://chem-1"},
	{ID: "fin-1", Title: "Interest rates", Body: "Central banks set interest rates to steer inflation", TaxonomyPath: "finance.markets", URLOrRef: "doc://fin-1"},
	{ID: "fin-2", Title: "Bond yields", Body: "Bond yields move inversely to bond prices", TaxonomyPath: "finance.markets", URLOrRef: "doc://fin-2"},
}

// orderedReranker scores documents by a fixed preference so tests can
// observe reordering.
type orderedReranker struct {
	fail      bool
	available bool
	prefer    string // substring that gets the top score
}

func (r *orderedReranker) Rerank(_ context.Context, _ string, documents []string, topK int) ([]RerankResult, error) {
	if r.fail {
		return nil, apperrors.RerankerUnavailable(errors.New("service down"))
	}
	results := make([]RerankResult, len(documents))
	for i, doc := range documents {
		score := 0.5 - float64(i)*0.001
		if r.prefer != "" && containsFold(doc, r.prefer) {
			score = 0.99
		}
		results[i] = RerankResult{Index: i, Score: score}
	}
	// Sort by score descending, index ascending.
	for i := range results {
		for j := i + 1; j < len(results); j++ {
			if results[j].Score > results[i].Score {
				results[i], results[j] = results[j], results[i]
			}
		}
	}
	if topK > 0 && topK < len(results) {
		results = results[:topK]
	}
	return results, nil
}

func (r *orderedReranker) Available(_ context.Context) bool { return r.available }
func (r *orderedReranker) Close() error                     { return nil }

func containsFold(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}

type failingLexical struct{}

func (f *failingLexical) Index(context.Context, []*store.Passage) error { return nil }
func (f *failingLexical) Search(context.Context, string, []string, int) ([]*store.Candidate, error) {
	return nil, errors.New("index unreachable")
}
func (f *failingLexical) Delete(context.Context, []string) error { return nil }
func (f *failingLexical) Count(context.Context) (int, error)     { return 0, nil }
func (f *failingLexical) Close() error                           { return nil }

type failingEmbedder struct{ embed.StaticEmbedder }

func (f *failingEmbedder) Embed(context.Context, string) ([]float32, error) {
	return nil, apperrors.New(apperrors.ErrCodeEmbedderUnavailable, "embedding service unreachable", nil)
}

func newTestConfig() *config.Config {
	cfg := config.NewConfig()
	cfg.Fusion.Mode = "fixed"
	cfg.Fusion.Alpha = 0.5
	cfg.Rerank.Window = 10
	return cfg
}

// newTestEngine builds an engine over in-memory backends with the test
// corpus indexed on both paths.
func newTestEngine(t *testing.T, mutate func(*Deps)) *Engine {
	t.Helper()
	ctx := context.Background()

	lexical, err := store.NewSQLiteLexicalIndex("", store.DefaultLexicalConfig())
	require.NoError(t, err)
	t.Cleanup(func() { _ = lexical.Close() })

	embedder := embed.NewStaticEmbedder()
	vector, err := store.NewHNSWIndex(store.DefaultVectorConfig(embedder.Dimensions()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = vector.Close() })

	passages, err := store.NewSQLitePassageStore("")
	require.NoError(t, err)
	t.Cleanup(func() { _ = passages.Close() })

	require.NoError(t, passages.Save(ctx, testCorpus))
	require.NoError(t, lexical.Index(ctx, testCorpus))

	ids := make([]string, len(testCorpus))
	paths := make([]string, len(testCorpus))
	vectors := make([][]float32, len(testCorpus))
	for i, p := range testCorpus {
		ids[i] = p.ID
		paths[i] = p.TaxonomyPath
		vec, err := embedder.Embed(ctx, p.Title+" "+p.Body)
		require.NoError(t, err)
		vectors[i] = vec
	}
	require.NoError(t, vector.Add(ctx, ids, paths, vectors))

	deps := Deps{
		Lexical:  lexical,
		Vector:   vector,
		Passages: passages,
		Embedder: embedder,
		Reranker: &orderedReranker{available: true},
		Config:   newTestConfig(),
	}
	if mutate != nil {
		mutate(&deps)
	}

	engine, err := NewEngine(deps)
	require.NoError(t, err)
	return engine
}

func hitIDs(resp *Response) []string {
	ids := make([]string, len(resp.Hits))
	for i, h := range resp.Hits {
		ids[i] = h.PassageID
	}
	return ids
}

func TestEngine_HybridReranked(t *testing.T) {
	e := newTestEngine(t, nil)

	resp, err := e.Search(context.Background(), &Request{Query: "photosynthesis", TopK: 5})
	require.NoError(t, err)

	assert.Equal(t, ModeHybridReranked, resp.Mode)
	assert.NotEmpty(t, resp.Hits)
	assert.LessOrEqual(t, len(resp.Hits), 5)
	assert.NotEmpty(t, resp.RequestID)
	assert.Greater(t, resp.TotalCandidates, 0)
	assert.GreaterOrEqual(t, resp.LatencyMS, 0.0)

	// Scores monotonically non-increasing.
	for i := 1; i < len(resp.Hits); i++ {
		assert.GreaterOrEqual(t, resp.Hits[i-1].Score, resp.Hits[i].Score)
	}

	// Provenance is populated from the passage store.
	assert.NotEmpty(t, resp.Hits[0].Source.Title)
	assert.NotEmpty(t, resp.Hits[0].Source.URLOrRef)
	assert.NotEmpty(t, resp.Hits[0].TaxonomyPath)
}

func TestEngine_VectorDisabled(t *testing.T) {
	e := newTestEngine(t, nil)

	off := false
	resp, err := e.Search(context.Background(), &Request{
		Query: "photosynthesis", TopK: 5, UseVector: &off,
	})
	require.NoError(t, err)
	assert.Equal(t, ModeLexicalOnly, resp.Mode)

	// Identifier set matches the lexical scorer's own top results.
	raw, err := e.lexical.Search(context.Background(), "photosynthesis", nil, 5)
	require.NoError(t, err)
	rawIDs := make(map[string]bool)
	for _, c := range raw {
		rawIDs[c.PassageID] = true
	}
	for _, id := range hitIDs(resp) {
		assert.True(t, rawIDs[id], "hit %s not in raw lexical results", id)
	}
}

func TestEngine_EmbedderDownDegradesToLexical(t *testing.T) {
	e := newTestEngine(t, func(d *Deps) {
		d.Embedder = &failingEmbedder{}
	})

	resp, err := e.Search(context.Background(), &Request{Query: "photosynthesis", TopK: 5})
	require.NoError(t, err)
	assert.Equal(t, ModeLexicalOnly, resp.Mode)
	assert.NotEmpty(t, resp.Hits)
}

func TestEngine_RerankerDownFallsBackToFused(t *testing.T) {
	failing := newTestEngine(t, func(d *Deps) {
		d.Reranker = &orderedReranker{fail: true, available: true}
	})
	disabled := newTestEngine(t, func(d *Deps) {
		d.Config = newTestConfig()
		d.Config.Rerank.Enabled = false
	})

	req := &Request{Query: "photosynthesis", TopK: 5}
	failResp, err := failing.Search(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, ModeHybrid, failResp.Mode)

	offResp, err := disabled.Search(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, ModeHybrid, offResp.Mode)

	// Fallback is a reordering of the same set, never a different set.
	assert.ElementsMatch(t, hitIDs(failResp), hitIDs(offResp))
}

func TestEngine_RerankReordersWindow(t *testing.T) {
	plain := newTestEngine(t, func(d *Deps) {
		d.Config = newTestConfig()
		d.Config.Rerank.Enabled = false
	})
	reranked := newTestEngine(t, func(d *Deps) {
		d.Reranker = &orderedReranker{available: true, prefer: "respiration"}
	})

	req := &Request{Query: "photosynthesis energy", TopK: 4}
	plainResp, err := plain.Search(context.Background(), req)
	require.NoError(t, err)
	rerankedResp, err := reranked.Search(context.Background(), req)
	require.NoError(t, err)

	require.NotEmpty(t, rerankedResp.Hits)
	assert.Equal(t, ModeHybridReranked, rerankedResp.Mode)
	assert.Equal(t, "bio-3", rerankedResp.Hits[0].PassageID)
	assert.ElementsMatch(t, hitIDs(plainResp), hitIDs(rerankedResp))
}

func TestEngine_ScopeExcludes(t *testing.T) {
	e := newTestEngine(t, nil)

	resp, err := e.Search(context.Background(), &Request{
		Query:         "photosynthesis",
		TopK:          10,
		TaxonomyScope: []string{"science.biology"},
	})
	require.NoError(t, err)

	// chem-1 matches the query but sits outside the scope.
	for _, h := range resp.Hits {
		assert.NotEqual(t, "chem-1", h.PassageID)
		require.NotEmpty(t, h.TaxonomyPath)
		assert.Equal(t, "science", h.TaxonomyPath[0])
	}
}

func TestEngine_AllPathsFailed(t *testing.T) {
	e := newTestEngine(t, func(d *Deps) {
		d.Lexical = &failingLexical{}
		d.Embedder = &failingEmbedder{}
	})

	_, err := e.Search(context.Background(), &Request{Query: "photosynthesis"})
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeAllPathsFailed, apperrors.GetCode(err))
}

func TestEngine_LexicalDownVectorOnly(t *testing.T) {
	e := newTestEngine(t, func(d *Deps) {
		d.Lexical = &failingLexical{}
	})

	resp, err := e.Search(context.Background(), &Request{Query: "photosynthesis", TopK: 5})
	require.NoError(t, err)
	assert.Equal(t, ModeVectorOnly, resp.Mode)
	assert.NotEmpty(t, resp.Hits)
}

func TestEngine_Validation(t *testing.T) {
	e := newTestEngine(t, nil)
	ctx := context.Background()

	_, err := e.Search(ctx, &Request{Query: "   "})
	assert.Equal(t, apperrors.ErrCodeQueryEmpty, apperrors.GetCode(err))

	long := make([]byte, 1001)
	for i := range long {
		long[i] = 'x'
	}
	_, err = e.Search(ctx, &Request{Query: string(long)})
	assert.Equal(t, apperrors.ErrCodeQueryTooLong, apperrors.GetCode(err))

	_, err = e.Search(ctx, &Request{Query: "ok", TopK: 101})
	assert.Equal(t, apperrors.ErrCodeTopKOutOfRange, apperrors.GetCode(err))

	_, err = e.Search(ctx, &Request{Query: "ok", TopK: -1})
	assert.Equal(t, apperrors.ErrCodeTopKOutOfRange, apperrors.GetCode(err))

	_, err = e.Search(ctx, &Request{Query: "ok", TaxonomyScope: []string{"bad..path"}})
	assert.Equal(t, apperrors.ErrCodeInvalidScope, apperrors.GetCode(err))
}

func TestEngine_DefaultTopK(t *testing.T) {
	e := newTestEngine(t, nil)

	resp, err := e.Search(context.Background(), &Request{Query: "energy"})
	require.NoError(t, err)
	assert.LessOrEqual(t, len(resp.Hits), e.snapshot().Search.DefaultTopK)
}

func TestEngine_RerankScoresWholePage(t *testing.T) {
	// A window narrower than the requested page would leave the tail
	// hits on the fusion score scale. The effective window widens to
	// cover the page, so every returned score comes from the reranker
	// and the ordering is monotone.
	e := newTestEngine(t, func(d *Deps) {
		d.Config = newTestConfig()
		d.Config.Rerank.Window = 2
	})

	resp, err := e.Search(context.Background(), &Request{Query: "photosynthesis energy", TopK: 5})
	require.NoError(t, err)
	require.Equal(t, ModeHybridReranked, resp.Mode)
	require.Greater(t, len(resp.Hits), 2)
	for i := 1; i < len(resp.Hits); i++ {
		assert.GreaterOrEqual(t, resp.Hits[i-1].Score, resp.Hits[i].Score)
	}
}

func TestEngine_ConcurrentReload(t *testing.T) {
	e := newTestEngine(t, nil)

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				resp, err := e.Search(context.Background(), &Request{Query: "photosynthesis", TopK: 3})
				assert.NoError(t, err)
				assert.NotEmpty(t, resp.Hits)
			}
		}()
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		for j := 0; j < 20; j++ {
			cfg := newTestConfig()
			cfg.Search.DefaultTopK = 5 + j%3
			e.UpdateConfig(cfg)
		}
	}()
	wg.Wait()
}

func TestEngine_Deterministic(t *testing.T) {
	e := newTestEngine(t, func(d *Deps) {
		d.Config = newTestConfig()
		d.Config.Rerank.Enabled = false
	})

	req := &Request{Query: "photosynthesis energy", TopK: 6}
	first, err := e.Search(context.Background(), req)
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		again, err := e.Search(context.Background(), req)
		require.NoError(t, err)
		assert.Equal(t, hitIDs(first), hitIDs(again))
		assert.Equal(t, first.Mode, again.Mode)
	}
}

// slowVector delays every search past any reasonable scorer budget.
type slowVector struct {
	store.VectorIndex
	delay time.Duration
}

func (s *slowVector) Search(ctx context.Context, embedding []float32, scope []string, limit int) ([]*store.Candidate, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(s.delay):
	}
	return s.VectorIndex.Search(ctx, embedding, scope, limit)
}

func TestEngine_SlowVectorTimesOut(t *testing.T) {
	e := newTestEngine(t, func(d *Deps) {
		d.Vector = &slowVector{VectorIndex: d.Vector, delay: 2 * time.Second}
		d.Config = newTestConfig()
		d.Config.Search.TotalBudget = "80ms"
	})

	start := time.Now()
	resp, err := e.Search(context.Background(), &Request{Query: "photosynthesis", TopK: 5})
	elapsed := time.Since(start)

	require.NoError(t, err)
	assert.Equal(t, ModeLexicalOnly, resp.Mode)
	assert.NotEmpty(t, resp.Hits)
	// The stuck path is cut off at its budget, not awaited.
	assert.Less(t, elapsed, time.Second)
}

func BenchmarkEngine_Search(b *testing.B) {
	ctx := context.Background()

	lexical, err := store.NewSQLiteLexicalIndex("", store.DefaultLexicalConfig())
	if err != nil {
		b.Fatal(err)
	}
	defer lexical.Close()

	embedder := embed.NewStaticEmbedder()
	vector, err := store.NewHNSWIndex(store.DefaultVectorConfig(embedder.Dimensions()))
	if err != nil {
		b.Fatal(err)
	}
	defer vector.Close()

	passages, err := store.NewSQLitePassageStore("")
	if err != nil {
		b.Fatal(err)
	}
	defer passages.Close()

	topics := []string{"photosynthesis", "respiration", "inflation", "bond yields", "momentum", "erosion"}
	const n = 10000
	corpus := make([]*store.Passage, n)
	ids := make([]string, n)
	paths := make([]string, n)
	vectors := make([][]float32, n)
	for i := 0; i < n; i++ {
		topic := topics[i%len(topics)]
		corpus[i] = &store.Passage{
			ID:           fmt.Sprintf("bench-%05d", i),
			Title:        topic,
			Body:         fmt.Sprintf("Passage %d discusses %s in detail alongside %s", i, topic, topics[(i+1)%len(topics)]),
			TaxonomyPath: "bench",
		}
		ids[i] = corpus[i].ID
		paths[i] = corpus[i].TaxonomyPath
		vec, err := embedder.Embed(ctx, corpus[i].Title+" "+corpus[i].Body)
		if err != nil {
			b.Fatal(err)
		}
		vectors[i] = vec
	}
	if err := passages.Save(ctx, corpus); err != nil {
		b.Fatal(err)
	}
	if err := lexical.Index(ctx, corpus); err != nil {
		b.Fatal(err)
	}
	if err := vector.Add(ctx, ids, paths, vectors); err != nil {
		b.Fatal(err)
	}

	cfg := newTestConfig()
	cfg.Rerank.Enabled = false
	engine, err := NewEngine(Deps{
		Lexical:  lexical,
		Vector:   vector,
		Passages: passages,
		Embedder: embedder,
		Config:   cfg,
	})
	if err != nil {
		b.Fatal(err)
	}

	budget := cfg.TotalBudget()
	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		i := 0
		for pb.Next() {
			req := &Request{Query: topics[i%len(topics)], TopK: 10}
			start := time.Now()
			if _, err := engine.Search(ctx, req); err != nil {
				b.Fatal(err)
			}
			if d := time.Since(start); d > budget {
				b.Logf("search exceeded budget: %s > %s", d, budget)
			}
			i++
		}
	})
}
