package embedding

import (
	"context"

	"github.com/memsearch/memsearch/internal/embedcache"
)

// CachedProvider wraps a Provider with the shared embedcache.Cache, keyed
// on SHA-256(provider‖model‖text). Cache-miss computation is
// deduplicated by the cache's own singleflight group, so a stampede of
// identical queries triggers exactly one upstream Embed call.
type CachedProvider struct {
	inner Provider
	cache *embedcache.Cache
	name  string
	model string
}

// NewCachedProvider builds a CachedProvider. providerName/model identify
// this provider in the cache key so switching providers never collides
// with a stale entry from a different model.
func NewCachedProvider(inner Provider, cache *embedcache.Cache, providerName, model string) *CachedProvider {
	return &CachedProvider{inner: inner, cache: cache, name: providerName, model: model}
}

func (c *CachedProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	key := embedcache.Key(c.name, c.model, text)
	return c.cache.GetOrCompute(ctx, key, func(ctx context.Context) ([]float32, error) {
		return c.inner.Embed(ctx, text)
	})
}

// EmbedBatch checks the cache per-text (maximizing reuse across partially
// overlapping batches) and only calls the inner provider's batch endpoint
// for the texts that missed.
func (c *CachedProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}
	results := make([][]float32, len(texts))
	missIdx := make([]int, 0, len(texts))
	missTexts := make([]string, 0, len(texts))
	keys := make([]string, len(texts))

	for i, t := range texts {
		keys[i] = embedcache.Key(c.name, c.model, t)
		if vec, ok := c.cache.Peek(keys[i]); ok {
			results[i] = vec
			continue
		}
		missIdx = append(missIdx, i)
		missTexts = append(missTexts, t)
	}
	if len(missTexts) == 0 {
		return results, nil
	}

	computed, err := c.inner.EmbedBatch(ctx, missTexts)
	if err != nil {
		return nil, err
	}
	for j, idx := range missIdx {
		results[idx] = computed[j]
		_ = c.cache.Put(keys[idx], computed[j])
	}
	return results, nil
}

func (c *CachedProvider) Dimensions() int { return c.inner.Dimensions() }
func (c *CachedProvider) MaxTokens() int  { return c.inner.MaxTokens() }
