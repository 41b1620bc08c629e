package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/search/query"
)

// BleveLexicalIndex is an alternative lexical backend built on Bleve.
// It trades the tunable K1/B of the SQLite backend for Bleve's mature
// analysis chain; scoring uses the engine's own BM25 parameters.
//
// Taxonomy scoping is indexed as an ancestor-expanded keyword field:
// "science.biology.cells" is stored as the terms "science",
// "science.biology" and "science.biology.cells", so an ancestor-or-self
// scope check becomes an exact term match.
type BleveLexicalIndex struct {
	mu     sync.RWMutex
	index  bleve.Index
	path   string
	closed bool
}

var _ LexicalIndex = (*BleveLexicalIndex)(nil)

type bleveDocument struct {
	Content  string   `json:"content"`
	Taxonomy []string `json:"taxonomy"`
	Path     string   `json:"path"`
}

// NewBleveLexicalIndex opens (or creates) a Bleve index at path. An
// empty path creates an in-memory index for tests.
func NewBleveLexicalIndex(path string) (*BleveLexicalIndex, error) {
	indexMapping := bleve.NewIndexMapping()

	docMapping := bleve.NewDocumentMapping()
	docMapping.AddFieldMappingsAt("content", bleve.NewTextFieldMapping())

	taxonomyField := bleve.NewKeywordFieldMapping()
	docMapping.AddFieldMappingsAt("taxonomy", taxonomyField)

	pathField := bleve.NewKeywordFieldMapping()
	pathField.Store = true
	docMapping.AddFieldMappingsAt("path", pathField)

	indexMapping.DefaultMapping = docMapping

	var idx bleve.Index
	var err error
	if path == "" {
		idx, err = bleve.NewMemOnly(indexMapping)
	} else {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create index directory: %w", err)
		}
		idx, err = bleve.Open(path)
		if err == bleve.ErrorIndexPathDoesNotExist {
			idx, err = bleve.New(path, indexMapping)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("open bleve index: %w", err)
	}

	return &BleveLexicalIndex{index: idx, path: path}, nil
}

// Index upserts passages in a single batch.
func (b *BleveLexicalIndex) Index(ctx context.Context, passages []*Passage) error {
	if len(passages) == 0 {
		return nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return fmt.Errorf("lexical index is closed")
	}

	batch := b.index.NewBatch()
	for _, p := range passages {
		doc := bleveDocument{
			Content:  p.Title + " " + p.Body,
			Taxonomy: expandAncestors(p.TaxonomyPath),
			Path:     p.TaxonomyPath,
		}
		if err := batch.Index(p.ID, doc); err != nil {
			return fmt.Errorf("index passage %s: %w", p.ID, err)
		}
	}
	return b.index.Batch(batch)
}

// Search scores passages against the query, restricted to scope.
func (b *BleveLexicalIndex) Search(ctx context.Context, queryStr string, scope []string, limit int) ([]*Candidate, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return nil, fmt.Errorf("lexical index is closed")
	}
	if limit <= 0 || strings.TrimSpace(queryStr) == "" {
		return []*Candidate{}, nil
	}

	matchQuery := bleve.NewMatchQuery(queryStr)
	matchQuery.SetField("content")

	var q query.Query = matchQuery
	if len(scope) > 0 {
		scopeQueries := make([]query.Query, 0, len(scope))
		for _, s := range scope {
			tq := bleve.NewTermQuery(s)
			tq.SetField("taxonomy")
			scopeQueries = append(scopeQueries, tq)
		}
		q = bleve.NewConjunctionQuery(matchQuery, bleve.NewDisjunctionQuery(scopeQueries...))
	}

	req := bleve.NewSearchRequest(q)
	req.Size = limit
	req.Fields = []string{"path"}

	result, err := b.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("bleve search: %w", err)
	}

	candidates := make([]*Candidate, 0, len(result.Hits))
	for _, hit := range result.Hits {
		path, _ := hit.Fields["path"].(string)
		candidates = append(candidates, &Candidate{
			PassageID:    hit.ID,
			Score:        hit.Score,
			Source:       SourceLexical,
			TaxonomyPath: path,
		})
	}
	SortCandidates(candidates)
	return candidates, nil
}

// Delete removes passages from the index.
func (b *BleveLexicalIndex) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return fmt.Errorf("lexical index is closed")
	}

	batch := b.index.NewBatch()
	for _, id := range ids {
		batch.Delete(id)
	}
	return b.index.Batch(batch)
}

// Count returns the number of indexed passages.
func (b *BleveLexicalIndex) Count(ctx context.Context) (int, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return 0, fmt.Errorf("lexical index is closed")
	}

	count, err := b.index.DocCount()
	return int(count), err
}

// Close closes the index.
func (b *BleveLexicalIndex) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	return b.index.Close()
}

// expandAncestors returns every prefix of a dotted taxonomy path,
// including the path itself. An empty path yields no terms.
func expandAncestors(path string) []string {
	if path == "" {
		return nil
	}
	parts := strings.Split(path, ".")
	out := make([]string, 0, len(parts))
	for i := range parts {
		out = append(out, strings.Join(parts[:i+1], "."))
	}
	return out
}
