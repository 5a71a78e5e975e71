package hybrid

import (
	"context"
	"testing"
	"time"

	"github.com/memsearch/memsearch/internal/bm25"
	"github.com/memsearch/memsearch/internal/memory"
	"github.com/memsearch/memsearch/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seed(t *testing.T, s *store.MemStore, idx *bm25.Index, id, owner, content string, emb []float32) {
	t.Helper()
	now := time.Now().UTC()
	u := &memory.Unit{
		ID: id, OwnerKey: owner, Content: content,
		ContentHash: memory.ComputeContentHash(content),
		Type:        memory.TypeFact,
		CreatedAt:   now, UpdatedAt: now,
		Embedding: emb,
		Topics:    []string{},
		Entities:  []string{},
		Metadata:  map[string]string{},
	}
	require.NoError(t, s.Upsert(context.Background(), u))
	idx.Add(id, content)
}

// S2: hybrid fusion ranks the BM25-favored unit first even though the dense
// scores among the three candidates are close.
func TestEngine_Search_HybridBeatsDenseAlone(t *testing.T) {
	s := store.NewMemStore(3)
	idx := bm25.New()

	seed(t, s, idx, "react", "owner-1", "React Node Mongo stack", []float32{0.9, 0.1, 0})
	seed(t, s, idx, "django", "owner-1", "Python Django Postgres stack", []float32{0.88, 0.12, 0})
	seed(t, s, idx, "goapp", "owner-1", "Go Kafka Redis stack", []float32{0.87, 0.13, 0})

	engine := New(s, idx)
	opts := DefaultOptions()
	opts.OwnerKey = "owner-1"
	opts.Limit = 3

	results, err := engine.Search(context.Background(), "node stack", []float32{0.9, 0.1, 0}, opts)
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, "react", results[0].Unit.ID)
}

func TestEngine_Search_RespectsLimit(t *testing.T) {
	s := store.NewMemStore(3)
	idx := bm25.New()
	for i := 0; i < 5; i++ {
		seed(t, s, idx, string(rune('a'+i)), "owner-1", "shared content here", []float32{1, 0, 0})
	}

	engine := New(s, idx)
	opts := DefaultOptions()
	opts.OwnerKey = "owner-1"
	opts.Limit = 2

	results, err := engine.Search(context.Background(), "shared content", []float32{1, 0, 0}, opts)
	require.NoError(t, err)
	assert.LessOrEqual(t, len(results), 2)
}

func TestEngine_Search_SparseOnlyWhenNoQueryVector(t *testing.T) {
	s := store.NewMemStore(0)
	idx := bm25.New()
	seed(t, s, idx, "a", "owner-1", "kafka streaming pipeline", nil)

	engine := New(s, idx)
	opts := DefaultOptions()
	opts.OwnerKey = "owner-1"

	results, err := engine.Search(context.Background(), "kafka", nil, opts)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, memory.SourceSparse, results[0].Source)
}

func TestEngine_Search_MMRIncludesDiverseCandidate(t *testing.T) {
	s := store.NewMemStore(3)
	idx := bm25.New()
	seed(t, s, idx, "a", "owner-1", "alpha topic text", []float32{1, 0, 0})
	seed(t, s, idx, "b", "owner-1", "alpha topic text variant", []float32{0.99, 0.01, 0})
	seed(t, s, idx, "c", "owner-1", "alpha topic text again", []float32{0.98, 0.02, 0})
	seed(t, s, idx, "distinct", "owner-1", "completely unrelated subject", []float32{0, 1, 0})

	engine := New(s, idx)
	opts := DefaultOptions()
	opts.OwnerKey = "owner-1"
	opts.Limit = 2
	opts.UseMMR = true
	opts.MMRLambda = 0.3

	results, err := engine.Search(context.Background(), "alpha topic", []float32{1, 0, 0}, opts)
	require.NoError(t, err)
	require.Len(t, results, 2)

	var ids []string
	for _, r := range results {
		ids = append(ids, r.Unit.ID)
	}
	assert.Contains(t, ids, "distinct")
}

func TestEngine_Search_MinFusedScoreFiltersLowValue(t *testing.T) {
	s := store.NewMemStore(3)
	idx := bm25.New()
	seed(t, s, idx, "a", "owner-1", "relevant content", []float32{1, 0, 0})

	engine := New(s, idx)
	opts := DefaultOptions()
	opts.OwnerKey = "owner-1"
	opts.MinFusedScore = 1.0 // higher than any achievable fused score

	results, err := engine.Search(context.Background(), "relevant content", []float32{1, 0, 0}, opts)
	require.NoError(t, err)
	assert.Empty(t, results)
}
