package store

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/meilisearch/meilisearch-go"
)

const meiliTaskTimeout = 15 * time.Second

// MeiliLexicalIndex is a remote lexical backend for deployments that
// already run Meilisearch. Taxonomy paths are stored ancestor-expanded
// in a filterable array attribute, so scoping is a server-side filter.
type MeiliLexicalIndex struct {
	mu     sync.RWMutex
	client meilisearch.ServiceManager
	index  meilisearch.IndexManager
	closed bool
}

var _ LexicalIndex = (*MeiliLexicalIndex)(nil)

type meiliDocument struct {
	ID       string   `json:"id"`
	Title    string   `json:"title"`
	Body     string   `json:"body"`
	Taxonomy []string `json:"taxonomy"`
	Path     string   `json:"path"`
}

// meiliHit is the subset of a search hit the candidate list needs.
// The ranking score is present when ShowRankingScore is set.
type meiliHit struct {
	ID           string  `json:"id"`
	Path         string  `json:"path"`
	RankingScore float64 `json:"_rankingScore"`
}

// NewMeiliLexicalIndex connects to a Meilisearch host and ensures the
// index exists with the taxonomy attribute filterable.
func NewMeiliLexicalIndex(host, apiKey, indexName string) (*MeiliLexicalIndex, error) {
	if host == "" {
		return nil, fmt.Errorf("meilisearch host is required")
	}
	if indexName == "" {
		indexName = "passages"
	}

	client := meilisearch.New(host, meilisearch.WithAPIKey(apiKey))
	index := client.Index(indexName)

	filterable := []interface{}{"taxonomy"}
	task, err := index.UpdateFilterableAttributes(&filterable)
	if err != nil {
		return nil, fmt.Errorf("set filterable attributes: %w", err)
	}

	m := &MeiliLexicalIndex{client: client, index: index}
	if err := m.waitForTask(context.Background(), task); err != nil {
		return nil, fmt.Errorf("wait for settings task: %w", err)
	}
	return m, nil
}

// waitForTask polls a Meilisearch task to completion under a bounded
// deadline.
func (m *MeiliLexicalIndex) waitForTask(ctx context.Context, task *meilisearch.TaskInfo) error {
	ctx, cancel := context.WithTimeout(ctx, meiliTaskTimeout)
	defer cancel()
	_, err := m.index.WaitForTaskWithContext(ctx, task.TaskUID, 0)
	return err
}

// Index upserts passages and waits for the indexing task so that
// subsequent searches see the documents.
func (m *MeiliLexicalIndex) Index(ctx context.Context, passages []*Passage) error {
	if len(passages) == 0 {
		return nil
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return fmt.Errorf("lexical index is closed")
	}

	docs := make([]meiliDocument, 0, len(passages))
	for _, p := range passages {
		docs = append(docs, meiliDocument{
			ID:       p.ID,
			Title:    p.Title,
			Body:     p.Body,
			Taxonomy: expandAncestors(p.TaxonomyPath),
			Path:     p.TaxonomyPath,
		})
	}

	task, err := m.index.AddDocumentsWithContext(ctx, docs, nil)
	if err != nil {
		return fmt.Errorf("add documents: %w", err)
	}
	if err := m.waitForTask(ctx, task); err != nil {
		return fmt.Errorf("wait for indexing task: %w", err)
	}
	return nil
}

// Search queries the remote index with an optional taxonomy filter.
func (m *MeiliLexicalIndex) Search(ctx context.Context, query string, scope []string, limit int) ([]*Candidate, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, fmt.Errorf("lexical index is closed")
	}
	if limit <= 0 || strings.TrimSpace(query) == "" {
		return []*Candidate{}, nil
	}

	req := &meilisearch.SearchRequest{
		Query:            query,
		Limit:            int64(limit),
		ShowRankingScore: true,
	}
	if filter := meiliScopeFilter(scope); filter != "" {
		req.Filter = filter
	}

	result, err := m.index.SearchWithContext(ctx, query, req)
	if err != nil {
		return nil, fmt.Errorf("meilisearch search: %w", err)
	}

	candidates := make([]*Candidate, 0, len(result.Hits))
	for _, hit := range result.Hits {
		var h meiliHit
		if err := hit.DecodeInto(&h); err != nil || h.ID == "" {
			continue
		}
		candidates = append(candidates, &Candidate{
			PassageID:    h.ID,
			Score:        h.RankingScore,
			Source:       SourceLexical,
			TaxonomyPath: h.Path,
		})
	}
	SortCandidates(candidates)
	return candidates, nil
}

// Delete removes passages from the remote index.
func (m *MeiliLexicalIndex) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return fmt.Errorf("lexical index is closed")
	}

	task, err := m.index.DeleteDocumentsWithContext(ctx, ids, nil)
	if err != nil {
		return fmt.Errorf("delete documents: %w", err)
	}
	if err := m.waitForTask(ctx, task); err != nil {
		return fmt.Errorf("wait for delete task: %w", err)
	}
	return nil
}

// Count returns the number of indexed passages.
func (m *MeiliLexicalIndex) Count(ctx context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return 0, fmt.Errorf("lexical index is closed")
	}

	stats, err := m.index.GetStatsWithContext(ctx)
	if err != nil {
		return 0, fmt.Errorf("index stats: %w", err)
	}
	return int(stats.NumberOfDocuments), nil
}

// Close marks the index closed. The HTTP client holds no resources
// that need releasing.
func (m *MeiliLexicalIndex) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// meiliScopeFilter builds a taxonomy IN filter from scope entries.
// Values are quoted with embedded quotes and backslashes escaped.
func meiliScopeFilter(scope []string) string {
	if len(scope) == 0 {
		return ""
	}
	quoted := make([]string, 0, len(scope))
	for _, s := range scope {
		escaped := strings.ReplaceAll(s, `\`, `\\`)
		escaped = strings.ReplaceAll(escaped, `"`, `\"`)
		quoted = append(quoted, `"`+escaped+`"`)
	}
	return "taxonomy IN [" + strings.Join(quoted, ", ") + "]"
}
