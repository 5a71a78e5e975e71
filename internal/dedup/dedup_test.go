package dedup

import (
	"context"
	"testing"
	"time"

	"github.com/memsearch/memsearch/internal/memory"
	"github.com/memsearch/memsearch/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func unit(id, owner, content string, emb []float32) *memory.Unit {
	now := time.Now().UTC()
	return &memory.Unit{
		ID: id, OwnerKey: owner, Content: content,
		ContentHash: memory.ComputeContentHash(content),
		Type:        memory.TypeFact,
		CreatedAt:   now, UpdatedAt: now,
		Embedding: emb,
		Topics:    []string{},
		Entities:  []string{},
		Metadata:  map[string]string{},
	}
}

func TestDetector_ExactMatch(t *testing.T) {
	s := store.NewMemStore(3)
	ctx := context.Background()
	require.NoError(t, s.Upsert(ctx, unit("a", "owner-1", "The capital of France is Paris.", []float32{1, 0, 0})))

	d := New(s)
	candidate := unit("new", "owner-1", "The capital of France is Paris.", []float32{1, 0, 0})
	out, err := d.Check(ctx, candidate)
	require.NoError(t, err)
	assert.Equal(t, MatchExact, out.Kind)
	assert.Equal(t, "a", out.Existing.ID)
}

func TestDetector_NearMatch(t *testing.T) {
	s := store.NewMemStore(3)
	ctx := context.Background()
	require.NoError(t, s.Upsert(ctx, unit("a", "owner-1", "alpha content", []float32{1, 0, 0})))

	d := New(s, WithNearThreshold(0.9))
	candidate := unit("new", "owner-1", "different text entirely", []float32{0.95, 0.05, 0})
	out, err := d.Check(ctx, candidate)
	require.NoError(t, err)
	assert.Equal(t, MatchNear, out.Kind)
}

func TestDetector_NoMatch(t *testing.T) {
	s := store.NewMemStore(3)
	ctx := context.Background()
	require.NoError(t, s.Upsert(ctx, unit("a", "owner-1", "alpha content", []float32{1, 0, 0})))

	d := New(s)
	candidate := unit("new", "owner-1", "totally unrelated", []float32{0, 1, 0})
	out, err := d.Check(ctx, candidate)
	require.NoError(t, err)
	assert.Equal(t, MatchNone, out.Kind)
}

func TestDetector_DifferentOwnerNeverMatches(t *testing.T) {
	s := store.NewMemStore(3)
	ctx := context.Background()
	require.NoError(t, s.Upsert(ctx, unit("a", "owner-1", "The capital of France is Paris.", []float32{1, 0, 0})))

	d := New(s)
	candidate := unit("new", "owner-2", "The capital of France is Paris.", []float32{1, 0, 0})
	out, err := d.Check(ctx, candidate)
	require.NoError(t, err)
	assert.Equal(t, MatchNone, out.Kind)
}

func TestMerge_SumsAccessCountsAndMaxImportance(t *testing.T) {
	existing := unit("a", "owner-1", "original", nil)
	existing.AccessCount = 3
	existing.Importance = 0.2
	incoming := unit("b", "owner-1", "incoming", nil)
	incoming.AccessCount = 5
	incoming.Importance = 0.8

	merged, _ := Merge(existing, incoming, KeepOldest)
	assert.Equal(t, "a", merged.ID)
	assert.Equal(t, int64(8), merged.AccessCount)
	assert.Equal(t, float32(0.8), merged.Importance)
}

func TestMerge_KeepOldestPreservesExistingContent(t *testing.T) {
	existing := unit("a", "owner-1", "original", nil)
	incoming := unit("b", "owner-1", "incoming", nil)

	merged, changed := Merge(existing, incoming, KeepOldest)
	assert.Equal(t, "original", merged.Content)
	assert.False(t, changed)
}

func TestMerge_KeepNewestUsesIncomingWhenNewer(t *testing.T) {
	existing := unit("a", "owner-1", "original", nil)
	existing.CreatedAt = time.Now().Add(-time.Hour)
	incoming := unit("b", "owner-1", "incoming", nil)
	incoming.CreatedAt = time.Now()

	merged, changed := Merge(existing, incoming, KeepNewest)
	assert.Equal(t, "incoming", merged.Content)
	assert.True(t, changed)
}

func TestMerge_CombineContentJoinsBoth(t *testing.T) {
	existing := unit("a", "owner-1", "first half", nil)
	incoming := unit("b", "owner-1", "second half", nil)

	merged, changed := Merge(existing, incoming, CombineContent)
	assert.Equal(t, "first half\nsecond half", merged.Content)
	assert.True(t, changed)
}

func TestMerge_UnionsTopicsAndEntities(t *testing.T) {
	existing := unit("a", "owner-1", "x", nil)
	existing.Topics = []string{"go", "testing"}
	incoming := unit("b", "owner-1", "y", nil)
	incoming.Topics = []string{"testing", "memory"}

	merged, _ := Merge(existing, incoming, KeepOldest)
	assert.ElementsMatch(t, []string{"go", "testing", "memory"}, merged.Topics)
}

func TestDetector_ExactMatch_WithoutEmbedding_NotBoundedByCandidatePool(t *testing.T) {
	// Given: an owner with many lexically overlapping memories that would
	// out-rank the duplicate in any term-frequency top-k, and a candidate
	// that has no embedding yet
	s := store.NewMemStore(0)
	ctx := context.Background()
	require.NoError(t, s.Upsert(ctx, unit("dup", "owner-1", "deploy checklist", nil)))
	for i := 0; i < 10; i++ {
		filler := unit(string(rune('a'+i)), "owner-1",
			"deploy checklist deploy checklist deploy checklist with extra detail", nil)
		require.NoError(t, s.Upsert(ctx, filler))
	}

	d := New(s, WithCandidatePool(5))
	candidate := unit("new", "owner-1", "deploy checklist", nil)

	// When: checking for duplicates
	out, err := d.Check(ctx, candidate)

	// Then: the exact-hash duplicate is found by direct lookup, not a
	// ranked scan that could push it below the pool cutoff
	require.NoError(t, err)
	assert.Equal(t, MatchExact, out.Kind)
	assert.Equal(t, "dup", out.Existing.ID)
}

func TestDetector_SoftDeletedUnitIsNotADuplicate(t *testing.T) {
	s := store.NewMemStore(0)
	ctx := context.Background()
	require.NoError(t, s.Upsert(ctx, unit("a", "owner-1", "remember this", nil)))
	require.NoError(t, s.Delete(ctx, "a", false))

	d := New(s)
	out, err := d.Check(ctx, unit("new", "owner-1", "remember this", nil))
	require.NoError(t, err)
	assert.Equal(t, MatchNone, out.Kind)
}
