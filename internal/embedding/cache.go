package embedding

import (
	"context"
	"fmt"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"
)

// CachedEncoder wraps an Encoder with an LRU cache keyed by model and text.
// Only texts missing from the cache reach the wrapped encoder, in one batch.
type CachedEncoder struct {
	base  Encoder
	cache *lru.Cache[string, []float32]

	hits   atomic.Uint64
	misses atomic.Uint64
}

// CacheStats reports cache effectiveness.
type CacheStats struct {
	Size   int    `json:"size"`
	Hits   uint64 `json:"hits"`
	Misses uint64 `json:"misses"`
}

// NewCachedEncoder caches up to size embeddings (10000 when size <= 0).
func NewCachedEncoder(base Encoder, size int) (*CachedEncoder, error) {
	if size <= 0 {
		size = 10000
	}
	cache, err := lru.New[string, []float32](size)
	if err != nil {
		return nil, fmt.Errorf("create embedding cache: %w", err)
	}
	return &CachedEncoder{base: base, cache: cache}, nil
}

func (c *CachedEncoder) Encode(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	var missing []string
	var missingIdx []int

	for i, text := range texts {
		if vec, ok := c.cache.Get(c.key(text)); ok {
			out[i] = vec
			c.hits.Add(1)
			continue
		}
		missing = append(missing, text)
		missingIdx = append(missingIdx, i)
	}
	if len(missing) == 0 {
		return out, nil
	}

	c.misses.Add(uint64(len(missing)))
	vecs, err := c.base.Encode(ctx, missing)
	if err != nil {
		return nil, err
	}
	if len(vecs) != len(missing) {
		return nil, fmt.Errorf("encoder returned %d vectors for %d texts", len(vecs), len(missing))
	}
	for j, vec := range vecs {
		out[missingIdx[j]] = vec
		c.cache.Add(c.key(missing[j]), vec)
	}
	return out, nil
}

func (c *CachedEncoder) Model() string {
	return c.base.Model()
}

// Stats returns the current cache counters.
func (c *CachedEncoder) Stats() CacheStats {
	return CacheStats{
		Size:   c.cache.Len(),
		Hits:   c.hits.Load(),
		Misses: c.misses.Load(),
	}
}

func (c *CachedEncoder) key(text string) string {
	return c.base.Model() + "\x00" + text
}
