package ingest

import (
	"context"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loreleaf/loreleaf/internal/embed"
	apperrors "github.com/loreleaf/loreleaf/internal/errors"
	"github.com/loreleaf/loreleaf/internal/store"
)

func newTestStores(t *testing.T) (store.PassageStore, store.LexicalIndex, store.VectorIndex, embed.Embedder) {
	t.Helper()

	passages, err := store.NewSQLitePassageStore("")
	require.NoError(t, err)
	t.Cleanup(func() { _ = passages.Close() })

	lexical, err := store.NewSQLiteLexicalIndex("", store.DefaultLexicalConfig())
	require.NoError(t, err)
	t.Cleanup(func() { _ = lexical.Close() })

	embedder := embed.NewStaticEmbedder()
	vector, err := store.NewHNSWIndex(store.DefaultVectorConfig(embedder.Dimensions()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = vector.Close() })

	return passages, lexical, vector, embedder
}

func testPassages(n int) []*store.Passage {
	passages := make([]*store.Passage, n)
	topics := []string{"tides follow the moon", "currents carry heat", "glaciers carve valleys", "volcanoes build islands"}
	for i := range passages {
		passages[i] = &store.Passage{
			ID:           string(rune('a' + i%26)) + "-passage",
			Title:        "Passage",
			Body:         topics[i%len(topics)],
			TaxonomyPath: "science.earth",
		}
	}
	// Distinct IDs.
	for i := range passages {
		passages[i].ID = passages[i].ID + "-" + string(rune('0'+i/26)) + string(rune('0'+i%10))
	}
	return passages
}

func TestIngester_IngestAndSearch(t *testing.T) {
	passages, lexical, vector, embedder := newTestStores(t)
	ing, err := New(passages, lexical, vector, embedder, nil)
	require.NoError(t, err)
	ctx := context.Background()

	corpus := []*store.Passage{
		{ID: "p1", Title: "Tides", Body: "Ocean tides follow the gravitational pull of the moon", TaxonomyPath: "science.earth"},
		{ID: "p2", Title: "Inflation", Body: "Inflation erodes purchasing power", TaxonomyPath: "finance"},
	}
	stats, err := ing.Ingest(ctx, corpus, Options{})
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Ingested)
	assert.Equal(t, 2, stats.Embedded)

	// Both scorers serve the new passages.
	hits, err := lexical.Search(ctx, "tides moon", nil, 10)
	require.NoError(t, err)
	require.NotEmpty(t, hits)
	assert.Equal(t, "p1", hits[0].PassageID)

	vec, err := embedder.Embed(ctx, "ocean tides")
	require.NoError(t, err)
	vhits, err := vector.Search(ctx, vec, nil, 10)
	require.NoError(t, err)
	assert.NotEmpty(t, vhits)

	stored, err := passages.Get(ctx, []string{"p1"})
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, "Tides", stored[0].Title)
}

func TestIngester_Idempotent(t *testing.T) {
	passages, lexical, vector, embedder := newTestStores(t)
	ing, err := New(passages, lexical, vector, embedder, nil)
	require.NoError(t, err)
	ctx := context.Background()

	corpus := testPassages(6)
	_, err = ing.Ingest(ctx, corpus, Options{})
	require.NoError(t, err)
	_, err = ing.Ingest(ctx, corpus, Options{})
	require.NoError(t, err)

	count, err := lexical.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 6, count)
	assert.Equal(t, 6, vector.Count())
}

func TestIngester_Progress(t *testing.T) {
	passages, lexical, vector, embedder := newTestStores(t)
	ing, err := New(passages, lexical, vector, embedder, nil)
	require.NoError(t, err)

	var mu sync.Mutex
	var lastDone, total int
	_, err = ing.Ingest(context.Background(), testPassages(10), Options{
		BatchSize: 3,
		OnProgress: func(done, t int) {
			mu.Lock()
			defer mu.Unlock()
			if done > lastDone {
				lastDone = done
			}
			total = t
		},
	})
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 10, lastDone)
	assert.Equal(t, 10, total)
}

func TestIngester_LexicalOnlyWithoutVector(t *testing.T) {
	passages, lexical, _, _ := newTestStores(t)
	ing, err := New(passages, lexical, nil, nil, nil)
	require.NoError(t, err)

	stats, err := ing.Ingest(context.Background(), testPassages(3), Options{})
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Ingested)
	assert.Zero(t, stats.Embedded)
}

func TestIngester_Delete(t *testing.T) {
	passages, lexical, vector, embedder := newTestStores(t)
	ing, err := New(passages, lexical, vector, embedder, nil)
	require.NoError(t, err)
	ctx := context.Background()

	corpus := testPassages(4)
	_, err = ing.Ingest(ctx, corpus, Options{})
	require.NoError(t, err)

	require.NoError(t, ing.Delete(ctx, []string{corpus[0].ID, corpus[1].ID}))

	count, err := lexical.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	got, err := passages.Get(ctx, []string{corpus[0].ID})
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestIngester_SavesVectorIndex(t *testing.T) {
	passages, lexical, vector, embedder := newTestStores(t)
	ing, err := New(passages, lexical, vector, embedder, nil)
	require.NoError(t, err)

	savePath := filepath.Join(t.TempDir(), "vectors.hnsw")
	_, err = ing.Ingest(context.Background(), testPassages(3), Options{VectorSavePath: savePath})
	require.NoError(t, err)

	dims, err := store.ReadHNSWIndexDimensions(savePath)
	require.NoError(t, err)
	assert.Equal(t, embedder.Dimensions(), dims)
}

func TestAcquireLock(t *testing.T) {
	dir := t.TempDir()

	lock, err := AcquireLock(dir)
	require.NoError(t, err)
	t.Cleanup(func() { _ = lock.Unlock() })

	// A second claim on the same directory fails fast.
	_, err = AcquireLock(dir)
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeIndexLocked, apperrors.GetCode(err))
}
