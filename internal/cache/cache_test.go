package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loreleaf/loreleaf/internal/config"
	"github.com/loreleaf/loreleaf/internal/search"
)

func TestKey_NormalizesRequests(t *testing.T) {
	// Given two requests differing only in whitespace, case, and scope order
	a := &search.Request{Query: "  Photosynthesis ", TopK: 10, TaxonomyScope: []string{"b", "a"}}
	b := &search.Request{Query: "photosynthesis", TopK: 10, TaxonomyScope: []string{"a", "b"}}

	// Then they share a key
	assert.Equal(t, Key(a, 0.5), Key(b, 0.5))
}

func TestKey_DistinguishesParameters(t *testing.T) {
	base := &search.Request{Query: "photosynthesis", TopK: 10}
	baseKey := Key(base, 0.5)

	off := false
	variants := []*search.Request{
		{Query: "respiration", TopK: 10},
		{Query: "photosynthesis", TopK: 5},
		{Query: "photosynthesis", TopK: 10, TaxonomyScope: []string{"science"}},
		{Query: "photosynthesis", TopK: 10, UseVector: &off},
		{Query: "photosynthesis", TopK: 10, UseReranker: &off},
	}
	for _, v := range variants {
		assert.NotEqual(t, baseKey, Key(v, 0.5))
	}
	assert.NotEqual(t, baseKey, Key(base, 0.7))
}

func TestMemoryCache_GetSet(t *testing.T) {
	c := NewMemoryCache(10, time.Minute)
	t.Cleanup(func() { _ = c.Close() })
	ctx := context.Background()

	_, ok := c.Get(ctx, "missing")
	assert.False(t, ok)

	resp := &search.Response{Mode: search.ModeHybrid, RequestID: "req-1"}
	c.Set(ctx, "k1", resp)

	got, ok := c.Get(ctx, "k1")
	require.True(t, ok)
	assert.Equal(t, "req-1", got.RequestID)
	assert.Equal(t, search.ModeHybrid, got.Mode)
}

func TestMemoryCache_Expires(t *testing.T) {
	c := NewMemoryCache(10, 20*time.Millisecond)
	t.Cleanup(func() { _ = c.Close() })
	ctx := context.Background()

	c.Set(ctx, "k1", &search.Response{RequestID: "req-1"})
	time.Sleep(60 * time.Millisecond)

	_, ok := c.Get(ctx, "k1")
	assert.False(t, ok)
}

func TestMemoryCache_EvictsAtCapacity(t *testing.T) {
	c := NewMemoryCache(2, time.Minute)
	t.Cleanup(func() { _ = c.Close() })
	ctx := context.Background()

	c.Set(ctx, "k1", &search.Response{RequestID: "1"})
	c.Set(ctx, "k2", &search.Response{RequestID: "2"})
	c.Set(ctx, "k3", &search.Response{RequestID: "3"})

	_, ok1 := c.Get(ctx, "k1")
	_, ok3 := c.Get(ctx, "k3")
	assert.False(t, ok1)
	assert.True(t, ok3)
}

func TestOpen(t *testing.T) {
	ctx := context.Background()

	t.Run("disabled returns nil", func(t *testing.T) {
		cfg := config.NewConfig()
		cfg.Cache.Enabled = false
		c, err := Open(ctx, cfg)
		require.NoError(t, err)
		assert.Nil(t, c)
	})

	t.Run("memory backend", func(t *testing.T) {
		cfg := config.NewConfig()
		cfg.Cache.Enabled = true
		cfg.Cache.Backend = "memory"
		c, err := Open(ctx, cfg)
		require.NoError(t, err)
		require.NotNil(t, c)
		assert.IsType(t, &MemoryCache{}, c)
		_ = c.Close()
	})

	t.Run("unknown backend", func(t *testing.T) {
		cfg := config.NewConfig()
		cfg.Cache.Enabled = true
		cfg.Cache.Backend = "memcached"
		_, err := Open(ctx, cfg)
		assert.Error(t, err)
	})
}
