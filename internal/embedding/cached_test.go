package embedding

import (
	"context"
	"sync/atomic"
	"testing"

	"github.com/memsearch/memsearch/internal/embedcache"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingProvider struct {
	calls atomic.Int64
	dims  int
}

func (p *countingProvider) Embed(_ context.Context, text string) ([]float32, error) {
	p.calls.Add(1)
	v := make([]float32, p.dims)
	v[0] = float32(len(text))
	return v, nil
}

func (p *countingProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, err := p.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (p *countingProvider) Dimensions() int { return p.dims }
func (p *countingProvider) MaxTokens() int  { return 0 }

func TestCachedProvider_Embed_CachesRepeatedText(t *testing.T) {
	inner := &countingProvider{dims: 4}
	cache, err := embedcache.New(10)
	require.NoError(t, err)
	p := NewCachedProvider(inner, cache, "test", "model-a")

	ctx := context.Background()
	v1, err := p.Embed(ctx, "repeated text")
	require.NoError(t, err)
	v2, err := p.Embed(ctx, "repeated text")
	require.NoError(t, err)

	assert.Equal(t, v1, v2)
	assert.EqualValues(t, 1, inner.calls.Load())
}

func TestCachedProvider_EmbedBatch_OnlyComputesMisses(t *testing.T) {
	inner := &countingProvider{dims: 4}
	cache, err := embedcache.New(10)
	require.NoError(t, err)
	p := NewCachedProvider(inner, cache, "test", "model-a")

	ctx := context.Background()
	_, err = p.Embed(ctx, "already cached")
	require.NoError(t, err)
	inner.calls.Store(0)

	vecs, err := p.EmbedBatch(ctx, []string{"already cached", "new text"})
	require.NoError(t, err)
	require.Len(t, vecs, 2)
	assert.EqualValues(t, 1, inner.calls.Load())
}

func TestCachedProvider_DifferentModelsDoNotCollide(t *testing.T) {
	inner := &countingProvider{dims: 4}
	cache, err := embedcache.New(10)
	require.NoError(t, err)
	pA := NewCachedProvider(inner, cache, "test", "model-a")
	pB := NewCachedProvider(inner, cache, "test", "model-b")

	ctx := context.Background()
	_, err = pA.Embed(ctx, "shared text")
	require.NoError(t, err)
	_, err = pB.Embed(ctx, "shared text")
	require.NoError(t, err)

	assert.EqualValues(t, 2, inner.calls.Load())
}
