package store

import (
	"bufio"
	"context"
	"encoding/gob"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sync"

	"github.com/coder/hnsw"
)

// HNSWIndex is the default vector backend: an in-process HNSW graph
// over passage embeddings with no CGO dependency. String passage IDs
// are mapped to uint64 graph keys; deletions are lazy (mappings are
// dropped, nodes stay in the graph) because removing the last graph
// node corrupts traversal in coder/hnsw.
type HNSWIndex struct {
	mu     sync.RWMutex
	graph  *hnsw.Graph[uint64]
	config VectorConfig

	idMap   map[string]uint64
	keyMap  map[uint64]string
	paths   map[uint64]string // graph key -> taxonomy path, for scope filtering
	nextKey uint64

	closed bool
}

var _ VectorIndex = (*HNSWIndex)(nil)

// hnswMetadata is the gob sidecar persisted next to the graph file.
type hnswMetadata struct {
	IDMap   map[string]uint64
	Paths   map[uint64]string
	NextKey uint64
	Config  VectorConfig
}

// NewHNSWIndex creates an empty HNSW vector index.
func NewHNSWIndex(cfg VectorConfig) (*HNSWIndex, error) {
	if cfg.Dimensions <= 0 {
		return nil, fmt.Errorf("vector index requires positive dimensions, got %d", cfg.Dimensions)
	}
	defaults := DefaultVectorConfig(cfg.Dimensions)
	if cfg.Metric == "" {
		cfg.Metric = defaults.Metric
	}
	if cfg.M == 0 {
		cfg.M = defaults.M
	}
	if cfg.EfSearch == 0 {
		cfg.EfSearch = defaults.EfSearch
	}

	graph := hnsw.NewGraph[uint64]()
	switch cfg.Metric {
	case "l2":
		graph.Distance = hnsw.EuclideanDistance
	default:
		graph.Distance = hnsw.CosineDistance
	}
	graph.M = cfg.M
	graph.EfSearch = cfg.EfSearch
	graph.Ml = 0.25

	return &HNSWIndex{
		graph:  graph,
		config: cfg,
		idMap:  make(map[string]uint64),
		keyMap: make(map[uint64]string),
		paths:  make(map[uint64]string),
	}, nil
}

// Add inserts embeddings with their passage IDs and taxonomy paths.
// Existing IDs are replaced.
func (s *HNSWIndex) Add(ctx context.Context, ids []string, paths []string, vectors [][]float32) error {
	if len(ids) == 0 {
		return nil
	}
	if len(ids) != len(vectors) || len(ids) != len(paths) {
		return fmt.Errorf("ids, paths and vectors length mismatch: %d, %d, %d",
			len(ids), len(paths), len(vectors))
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("vector index is closed")
	}

	for _, v := range vectors {
		if len(v) != s.config.Dimensions {
			return ErrDimensionMismatch{Expected: s.config.Dimensions, Got: len(v)}
		}
	}

	for i, id := range ids {
		if existingKey, exists := s.idMap[id]; exists {
			delete(s.keyMap, existingKey)
			delete(s.paths, existingKey)
			delete(s.idMap, id)
		}

		key := s.nextKey
		s.nextKey++

		vec := make([]float32, len(vectors[i]))
		copy(vec, vectors[i])
		if s.config.Metric == "cos" {
			normalizeVectorInPlace(vec)
		}

		s.graph.Add(hnsw.MakeNode(key, vec))
		s.idMap[id] = key
		s.keyMap[key] = id
		s.paths[key] = paths[i]
	}

	return nil
}

// Search returns the approximate nearest neighbors within scope,
// ordered by descending similarity then passage ID. When a scope is
// set the graph is oversampled so filtering does not starve the
// result set.
func (s *HNSWIndex) Search(ctx context.Context, embedding []float32, scope []string, limit int) ([]*Candidate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, fmt.Errorf("vector index is closed")
	}
	if len(embedding) != s.config.Dimensions {
		return nil, ErrDimensionMismatch{Expected: s.config.Dimensions, Got: len(embedding)}
	}
	if limit <= 0 || s.graph.Len() == 0 {
		return []*Candidate{}, nil
	}

	query := make([]float32, len(embedding))
	copy(query, embedding)
	if s.config.Metric == "cos" {
		normalizeVectorInPlace(query)
	}

	k := limit
	if len(scope) > 0 {
		// Oversample to survive scope filtering plus lazy-deleted
		// orphans.
		k = limit * 4
	}
	if orphans := s.graph.Len() - len(s.idMap); orphans > 0 {
		k += orphans
	}
	if k > s.graph.Len() {
		k = s.graph.Len()
	}

	nodes := s.graph.Search(query, k)

	results := make([]*Candidate, 0, limit)
	for _, node := range nodes {
		id, exists := s.keyMap[node.Key]
		if !exists {
			continue // lazy-deleted orphan
		}
		path := s.paths[node.Key]
		if !pathInScope(path, scope) {
			continue
		}

		distance := s.graph.Distance(query, node.Value)
		results = append(results, &Candidate{
			PassageID:    id,
			Score:        distanceToScore(distance, s.config.Metric),
			Source:       SourceVector,
			TaxonomyPath: path,
		})
		if len(results) == limit {
			break
		}
	}

	SortCandidates(results)
	return results, nil
}

// Delete removes embeddings by passage ID. Graph nodes are orphaned
// rather than removed.
func (s *HNSWIndex) Delete(ctx context.Context, ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("vector index is closed")
	}

	for _, id := range ids {
		if key, exists := s.idMap[id]; exists {
			delete(s.keyMap, key)
			delete(s.paths, key)
			delete(s.idMap, id)
		}
	}
	return nil
}

// SetEfSearch adjusts the query-time accuracy/speed knob.
func (s *HNSWIndex) SetEfSearch(ef int) {
	if ef <= 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.config.EfSearch = ef
	s.graph.EfSearch = ef
}

// Count returns the number of live embeddings.
func (s *HNSWIndex) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return 0
	}
	return len(s.idMap)
}

// Save persists the graph and ID mappings atomically (temp file plus
// rename).
func (s *HNSWIndex) Save(path string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return fmt.Errorf("vector index is closed")
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create index directory: %w", err)
	}

	tmpPath := path + ".tmp"
	file, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("create index file: %w", err)
	}
	if err := s.graph.Export(file); err != nil {
		_ = file.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("export graph: %w", err)
	}
	if err := file.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("close index file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("rename index file: %w", err)
	}

	return s.saveMetadata(path + ".meta")
}

func (s *HNSWIndex) saveMetadata(path string) error {
	tmpPath := path + ".tmp"
	file, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("create metadata file: %w", err)
	}

	meta := hnswMetadata{
		IDMap:   s.idMap,
		Paths:   s.paths,
		NextKey: s.nextKey,
		Config:  s.config,
	}
	if err := gob.NewEncoder(file).Encode(meta); err != nil {
		_ = file.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("encode metadata: %w", err)
	}
	if err := file.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("close metadata file: %w", err)
	}
	return os.Rename(tmpPath, path)
}

// Load restores a previously saved index.
func (s *HNSWIndex) Load(path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("vector index is closed")
	}

	if err := s.loadMetadata(path + ".meta"); err != nil {
		return fmt.Errorf("load metadata: %w", err)
	}

	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open index file: %w", err)
	}
	defer file.Close()

	// coder/hnsw Import requires an io.ByteReader.
	if err := s.graph.Import(bufio.NewReader(file)); err != nil {
		return fmt.Errorf("import graph: %w", err)
	}
	return nil
}

func (s *HNSWIndex) loadMetadata(path string) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open metadata file: %w", err)
	}
	defer file.Close()

	var meta hnswMetadata
	if err := gob.NewDecoder(file).Decode(&meta); err != nil {
		return fmt.Errorf("decode metadata: %w", err)
	}

	s.idMap = meta.IDMap
	s.paths = meta.Paths
	s.nextKey = meta.NextKey
	s.config = meta.Config
	if s.paths == nil {
		s.paths = make(map[uint64]string)
	}
	s.keyMap = make(map[uint64]string, len(s.idMap))
	for id, key := range s.idMap {
		s.keyMap[key] = id
	}
	return nil
}

// Close releases the graph.
func (s *HNSWIndex) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.graph = nil
	return nil
}

// ReadHNSWIndexDimensions reads the embedding width from a saved
// index's metadata. Returns 0 when no metadata exists (fresh start).
func ReadHNSWIndexDimensions(indexPath string) (int, error) {
	file, err := os.Open(indexPath + ".meta")
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("open metadata file: %w", err)
	}
	defer file.Close()

	var meta hnswMetadata
	if err := gob.NewDecoder(file).Decode(&meta); err != nil {
		return 0, fmt.Errorf("decode metadata: %w", err)
	}
	return meta.Config.Dimensions, nil
}

// pathInScope reports whether path matches any scope entry on an
// ancestor-or-self basis. An empty scope matches everything.
func pathInScope(path string, scope []string) bool {
	if len(scope) == 0 {
		return true
	}
	for _, s := range scope {
		if path == s {
			return true
		}
		if len(path) > len(s) && path[:len(s)] == s && path[len(s)] == '.' {
			return true
		}
	}
	return false
}

// normalizeVectorInPlace scales a vector to unit length.
func normalizeVectorInPlace(v []float32) {
	var sumSquares float64
	for _, val := range v {
		sumSquares += float64(val) * float64(val)
	}
	if sumSquares == 0 {
		return
	}
	norm := float32(1 / math.Sqrt(sumSquares))
	for i := range v {
		v[i] *= norm
	}
}

// distanceToScore converts a distance to a descending similarity in
// [0, 1]. Cosine distance ranges over [0, 2]; euclidean uses a
// reciprocal mapping.
func distanceToScore(distance float32, metric string) float64 {
	switch metric {
	case "l2":
		return 1 / (1 + float64(distance))
	default:
		return 1 - float64(distance)/2
	}
}
