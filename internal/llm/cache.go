package llm

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/redis/go-redis/v9"
)

// ResponseCache stores generated answers by request key.
type ResponseCache interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
}

// CacheKey derives a stable key from the model and every request field that
// affects the answer.
func CacheKey(model string, req Request) string {
	req.Model = modelOr(req, model)
	data, _ := json.Marshal(req)
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

type cachedGenerator struct {
	next   TextGenerator
	cache  ResponseCache
	logger *slog.Logger
}

// WithCache serves repeated requests from cache. Cache failures are logged
// and fall through to the wrapped generator; generation errors are never cached.
func WithCache(next TextGenerator, cache ResponseCache, logger *slog.Logger) TextGenerator {
	if logger == nil {
		logger = slog.Default()
	}
	return &cachedGenerator{next: next, cache: cache, logger: logger}
}

func (c *cachedGenerator) Generate(ctx context.Context, req Request) (string, error) {
	key := CacheKey(c.next.GetModel(), req)

	if out, ok, err := c.cache.Get(ctx, key); err != nil {
		c.logger.Warn("response cache lookup failed", "error", err)
	} else if ok {
		return out, nil
	}

	out, err := c.next.Generate(ctx, req)
	if err != nil {
		return "", err
	}
	if err := c.cache.Set(ctx, key, out); err != nil {
		c.logger.Warn("response cache store failed", "error", err)
	}
	return out, nil
}

func (c *cachedGenerator) GetModel() string {
	return c.next.GetModel()
}

// MemoryCache is an in-process LRU ResponseCache.
type MemoryCache struct {
	lru *lru.Cache[string, string]
}

// NewMemoryCache creates an LRU cache holding up to size answers.
func NewMemoryCache(size int) (*MemoryCache, error) {
	if size <= 0 {
		size = 1024
	}
	c, err := lru.New[string, string](size)
	if err != nil {
		return nil, fmt.Errorf("create lru cache: %w", err)
	}
	return &MemoryCache{lru: c}, nil
}

func (m *MemoryCache) Get(_ context.Context, key string) (string, bool, error) {
	v, ok := m.lru.Get(key)
	return v, ok, nil
}

func (m *MemoryCache) Set(_ context.Context, key, value string) error {
	m.lru.Add(key, value)
	return nil
}

// Len returns the number of cached answers.
func (m *MemoryCache) Len() int {
	return m.lru.Len()
}

// RedisCache is a ResponseCache shared between processes through Redis.
type RedisCache struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisCache connects to the Redis server at url (redis://...) and verifies
// the connection. A zero ttl keeps entries forever.
func NewRedisCache(ctx context.Context, url, prefix string, ttl time.Duration) (*RedisCache, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	if prefix == "" {
		prefix = "cyberrag:llm:"
	}
	return &RedisCache{client: client, prefix: prefix, ttl: ttl}, nil
}

func (r *RedisCache) Get(ctx context.Context, key string) (string, bool, error) {
	v, err := r.client.Get(ctx, r.prefix+key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}

func (r *RedisCache) Set(ctx context.Context, key, value string) error {
	return r.client.Set(ctx, r.prefix+key, value, r.ttl).Err()
}

// Close releases the Redis connection pool.
func (r *RedisCache) Close() error {
	return r.client.Close()
}
