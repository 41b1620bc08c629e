package cache

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/loreleaf/loreleaf/internal/search"
)

// MemoryCache is the in-process backend, an expiring LRU.
type MemoryCache struct {
	lru *expirable.LRU[string, *search.Response]
}

var _ QueryCache = (*MemoryCache)(nil)

func NewMemoryCache(size int, ttl time.Duration) *MemoryCache {
	if size <= 0 {
		size = DefaultSize
	}
	return &MemoryCache{
		lru: expirable.NewLRU[string, *search.Response](size, nil, ttlOrDefault(ttl)),
	}
}

func (c *MemoryCache) Get(_ context.Context, key string) (*search.Response, bool) {
	return c.lru.Get(key)
}

func (c *MemoryCache) Set(_ context.Context, key string, resp *search.Response) {
	c.lru.Add(key, resp)
}

func (c *MemoryCache) Close() error {
	c.lru.Purge()
	return nil
}
