package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
	"golang.org/x/sync/errgroup"

	"github.com/loreleaf/loreleaf/internal/embed"
	apperrors "github.com/loreleaf/loreleaf/internal/errors"
	"github.com/loreleaf/loreleaf/internal/store"
)

const (
	defaultBatchSize = 32
	defaultWorkers   = 4

	lockFile = ".ingest.lock"
)

// Options tunes one ingest run.
type Options struct {
	// BatchSize is texts per embedding request.
	BatchSize int

	// Workers is the number of concurrent embedding batches.
	Workers int

	// VectorSavePath persists the in-process vector index after a
	// successful run. Empty skips the save (remote backends).
	VectorSavePath string

	// OnProgress is called after each embedded batch.
	OnProgress func(done, total int)
}

// Stats summarizes a completed run.
type Stats struct {
	Ingested int
	Embedded int
	Duration time.Duration
}

// Ingester upserts passages into all stores. Vector may be nil for
// lexical-only setups.
type Ingester struct {
	passages store.PassageStore
	lexical  store.LexicalIndex
	vector   store.VectorIndex
	embedder embed.Embedder
	logger   *slog.Logger
}

// New wires an ingester.
func New(passages store.PassageStore, lexical store.LexicalIndex, vector store.VectorIndex, embedder embed.Embedder, logger *slog.Logger) (*Ingester, error) {
	if passages == nil {
		return nil, fmt.Errorf("ingester requires a passage store")
	}
	if lexical == nil {
		return nil, fmt.Errorf("ingester requires a lexical index")
	}
	if vector != nil && embedder == nil {
		return nil, fmt.Errorf("a vector index requires an embedder")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Ingester{
		passages: passages,
		lexical:  lexical,
		vector:   vector,
		embedder: embedder,
		logger:   logger,
	}, nil
}

// AcquireLock claims the index directory for writing. A held lock
// means another process is ingesting; fail fast instead of corrupting.
func AcquireLock(indexDir string) (*flock.Flock, error) {
	lock := flock.New(filepath.Join(indexDir, lockFile))
	acquired, err := lock.TryLock()
	if err != nil {
		return nil, apperrors.New(apperrors.ErrCodeIndexLocked, "acquiring index lock", err)
	}
	if !acquired {
		return nil, apperrors.New(apperrors.ErrCodeIndexLocked,
			fmt.Sprintf("index at %s is locked by another process", indexDir), nil)
	}
	return lock, nil
}

// Ingest upserts the passages: metadata and lexical postings first,
// then embeddings in concurrent batches. Re-running with the same
// input is idempotent.
func (ing *Ingester) Ingest(ctx context.Context, passages []*store.Passage, opts Options) (*Stats, error) {
	start := time.Now()
	if len(passages) == 0 {
		return &Stats{Duration: time.Since(start)}, nil
	}

	batchSize := opts.BatchSize
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	workers := opts.Workers
	if workers <= 0 {
		workers = defaultWorkers
	}

	if err := ing.passages.Save(ctx, passages); err != nil {
		return nil, fmt.Errorf("saving passages: %w", err)
	}
	if err := ing.lexical.Index(ctx, passages); err != nil {
		return nil, fmt.Errorf("indexing passages: %w", err)
	}

	stats := &Stats{Ingested: len(passages)}
	if ing.vector == nil {
		stats.Duration = time.Since(start)
		return stats, nil
	}

	vectors, err := ing.embedAll(ctx, passages, batchSize, workers, opts.OnProgress)
	if err != nil {
		return nil, err
	}

	ids := make([]string, len(passages))
	paths := make([]string, len(passages))
	for i, p := range passages {
		ids[i] = p.ID
		paths[i] = p.TaxonomyPath
	}
	if err := ing.vector.Add(ctx, ids, paths, vectors); err != nil {
		return nil, fmt.Errorf("adding vectors: %w", err)
	}
	stats.Embedded = len(vectors)

	if opts.VectorSavePath != "" {
		if err := ing.vector.Save(opts.VectorSavePath); err != nil {
			return nil, fmt.Errorf("saving vector index: %w", err)
		}
	}

	stats.Duration = time.Since(start)
	ing.logger.Info("ingest complete",
		slog.Int("passages", stats.Ingested),
		slog.Int("embedded", stats.Embedded),
		slog.Duration("took", stats.Duration))
	return stats, nil
}

// embedAll embeds title+body for every passage, batches fanned out
// across workers, results kept in input order.
func (ing *Ingester) embedAll(ctx context.Context, passages []*store.Passage, batchSize, workers int, onProgress func(done, total int)) ([][]float32, error) {
	vectors := make([][]float32, len(passages))
	total := len(passages)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	progress := make(chan int, workers)
	progressDone := make(chan struct{})
	go func() {
		defer close(progressDone)
		done := 0
		for n := range progress {
			done += n
			if onProgress != nil {
				onProgress(done, total)
			}
		}
	}()

	for startIdx := 0; startIdx < len(passages); startIdx += batchSize {
		endIdx := min(startIdx+batchSize, len(passages))
		batch := passages[startIdx:endIdx]
		offset := startIdx

		g.Go(func() error {
			texts := make([]string, len(batch))
			for i, p := range batch {
				texts[i] = embeddingText(p)
			}
			vecs, err := ing.embedder.EmbedBatch(gctx, texts)
			if err != nil {
				return fmt.Errorf("embedding batch at %d: %w", offset, err)
			}
			copy(vectors[offset:], vecs)
			progress <- len(batch)
			return nil
		})
	}

	err := g.Wait()
	close(progress)
	<-progressDone
	if err != nil {
		return nil, err
	}
	return vectors, nil
}

// embeddingText is the canonical text embedded per passage. Ingest and
// any future re-embed path must agree on this.
func embeddingText(p *store.Passage) string {
	if p.Title == "" {
		return p.Body
	}
	return p.Title + " " + p.Body
}

// Delete removes passages from every store.
func (ing *Ingester) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	if err := ing.lexical.Delete(ctx, ids); err != nil {
		return fmt.Errorf("deleting from lexical index: %w", err)
	}
	if ing.vector != nil {
		if err := ing.vector.Delete(ctx, ids); err != nil {
			return fmt.Errorf("deleting from vector index: %w", err)
		}
	}
	if err := ing.passages.Delete(ctx, ids); err != nil {
		return fmt.Errorf("deleting passages: %w", err)
	}
	return nil
}
