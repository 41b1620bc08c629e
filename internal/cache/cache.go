// Package cache provides the query result cache. A cache hit serves a
// full search response without touching the scorers.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/loreleaf/loreleaf/internal/config"
	"github.com/loreleaf/loreleaf/internal/search"
)

// DefaultSize bounds the in-memory cache when no size is configured.
const DefaultSize = 512

// QueryCache stores search responses keyed by normalized request.
// Implementations are best-effort: a failing backend degrades to
// misses, never to errors.
type QueryCache interface {
	Get(ctx context.Context, key string) (*search.Response, bool)
	Set(ctx context.Context, key string, resp *search.Response)
	Close() error
}

// Key derives the cache key from everything that changes a response:
// the normalized query, scope, top_k, path toggles, and the effective
// fusion weight.
func Key(req *search.Request, alpha float64) string {
	scope := make([]string, len(req.TaxonomyScope))
	copy(scope, req.TaxonomyScope)
	sort.Strings(scope)

	var b strings.Builder
	b.WriteString(strings.ToLower(strings.TrimSpace(req.Query)))
	b.WriteByte('\x00')
	b.WriteString(strings.Join(scope, ","))
	fmt.Fprintf(&b, "\x00%d\x00%t\x00%t\x00%.4f",
		req.TopK, req.VectorEnabled(), req.RerankerEnabled(), alpha)

	sum := sha256.Sum256([]byte(b.String()))
	return "loreleaf:query:" + hex.EncodeToString(sum[:])
}

// Open builds the cache the configuration asks for. Returns nil when
// caching is disabled.
func Open(ctx context.Context, cfg *config.Config) (QueryCache, error) {
	if !cfg.Cache.Enabled {
		return nil, nil
	}
	switch cfg.Cache.Backend {
	case "redis":
		return NewRedisCache(ctx, cfg.Cache.Redis, cfg.CacheTTL())
	case "memory", "":
		return NewMemoryCache(cfg.Cache.Size, cfg.CacheTTL()), nil
	default:
		return nil, fmt.Errorf("unknown cache backend %q", cfg.Cache.Backend)
	}
}

// ttlOrDefault guards against zero TTLs from hand-edited configs.
func ttlOrDefault(ttl time.Duration) time.Duration {
	if ttl <= 0 {
		return 5 * time.Minute
	}
	return ttl
}
