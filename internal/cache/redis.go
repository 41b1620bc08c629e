package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/loreleaf/loreleaf/internal/config"
	"github.com/loreleaf/loreleaf/internal/search"
)

const redisDialTimeout = 3 * time.Second

// RedisCache is the shared backend for multi-process deployments.
// Responses are stored as JSON with a server-side TTL.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
}

var _ QueryCache = (*RedisCache)(nil)

// NewRedisCache connects and pings once, so a misconfigured address
// fails at startup rather than as silent misses.
func NewRedisCache(ctx context.Context, cfg config.RedisConfig, ttl time.Duration) (*RedisCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, redisDialTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping %s: %w", cfg.Addr, err)
	}

	return &RedisCache{client: client, ttl: ttlOrDefault(ttl)}, nil
}

func (c *RedisCache) Get(ctx context.Context, key string) (*search.Response, bool) {
	data, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if err != redis.Nil {
			slog.Debug("redis cache get failed", slog.String("error", err.Error()))
		}
		return nil, false
	}

	var resp search.Response
	if err := json.Unmarshal(data, &resp); err != nil {
		// A format change between versions leaves stale entries behind.
		_ = c.client.Del(ctx, key).Err()
		return nil, false
	}
	return &resp, true
}

func (c *RedisCache) Set(ctx context.Context, key string, resp *search.Response) {
	data, err := json.Marshal(resp)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, key, data, c.ttl).Err(); err != nil {
		slog.Debug("redis cache set failed", slog.String("error", err.Error()))
	}
}

func (c *RedisCache) Close() error {
	return c.client.Close()
}
