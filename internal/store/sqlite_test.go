package store

import (
	"context"
	"testing"
	"time"

	"github.com/memsearch/memsearch/internal/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSQLiteStore(t *testing.T, dim int) *SQLiteStore {
	t.Helper()
	s, err := Open("", Options{Dimension: dim})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func sampleUnit(id, owner, content string, dim int) *memory.Unit {
	now := time.Now().UTC()
	var emb []float32
	if dim > 0 {
		emb = make([]float32, dim)
		emb[0] = 1
	}
	return &memory.Unit{
		ID: id, OwnerKey: owner, Content: content,
		ContentHash: memory.ComputeContentHash(content),
		Type:        memory.TypeFact,
		Importance:  0.5,
		CreatedAt:   now, UpdatedAt: now,
		Embedding: emb,
		Topics:    []string{"general"},
		Entities:  []string{},
		Metadata:  map[string]string{},
	}
}

func TestSQLiteStore_UpsertGetRoundTrip(t *testing.T) {
	s := newTestSQLiteStore(t, 4)
	ctx := context.Background()

	u := sampleUnit("id-1", "owner-1", "The capital of France is Paris.", 4)
	require.NoError(t, s.Upsert(ctx, u))

	got, err := s.Get(ctx, "id-1")
	require.NoError(t, err)
	assert.Equal(t, u.Content, got.Content)
	assert.Equal(t, u.ContentHash, got.ContentHash)
	assert.Equal(t, u.Embedding, got.Embedding)
}

func TestSQLiteStore_DimensionMismatchIsFatal(t *testing.T) {
	s := newTestSQLiteStore(t, 4)
	ctx := context.Background()

	u := sampleUnit("id-1", "owner-1", "bad dims", 2)
	err := s.Upsert(ctx, u)
	require.Error(t, err)

	_, getErr := s.Get(ctx, "id-1")
	assert.Error(t, getErr)
}

func TestSQLiteStore_SoftDeleteHiddenByDefault(t *testing.T) {
	s := newTestSQLiteStore(t, 0)
	ctx := context.Background()

	u := sampleUnit("id-1", "owner-1", "remember this", 0)
	require.NoError(t, s.Upsert(ctx, u))
	require.NoError(t, s.Delete(ctx, "id-1", false))

	_, err := s.Get(ctx, "id-1")
	assert.Error(t, err)

	hits, err := s.SearchFTS(ctx, "remember", memory.Filter{OwnerKey: "owner-1"}, 10)
	require.NoError(t, err)
	assert.Empty(t, hits)

	hits, err = s.SearchFTS(ctx, "remember", memory.Filter{OwnerKey: "owner-1", IncludeDeleted: true}, 10)
	require.NoError(t, err)
	assert.Len(t, hits, 1)
}

func TestSQLiteStore_HardDeleteThenGetIsNotFound(t *testing.T) {
	s := newTestSQLiteStore(t, 0)
	ctx := context.Background()

	u := sampleUnit("id-1", "owner-1", "ephemeral", 0)
	require.NoError(t, s.Upsert(ctx, u))
	require.NoError(t, s.Delete(ctx, "id-1", true))

	_, err := s.Get(ctx, "id-1")
	assert.Error(t, err)

	n, err := s.CountForOwner(ctx, "owner-1")
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestSQLiteStore_SearchVector_RanksByCosine(t *testing.T) {
	s := newTestSQLiteStore(t, 3)
	ctx := context.Background()

	a := sampleUnit("a", "owner-1", "alpha", 3)
	a.Embedding = []float32{1, 0, 0}
	b := sampleUnit("b", "owner-1", "beta", 3)
	b.Embedding = []float32{0, 1, 0}
	require.NoError(t, s.Upsert(ctx, a))
	require.NoError(t, s.Upsert(ctx, b))

	hits, err := s.SearchVector(ctx, []float32{1, 0, 0}, memory.Filter{OwnerKey: "owner-1"}, 10, -1)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, "a", hits[0].Unit.ID)
	assert.InDelta(t, 1.0, hits[0].Score, 1e-5)
}

func TestSQLiteStore_SearchFTS_FiltersByOwner(t *testing.T) {
	s := newTestSQLiteStore(t, 0)
	ctx := context.Background()

	require.NoError(t, s.Upsert(ctx, sampleUnit("a", "owner-1", "kafka streaming pipeline", 0)))
	require.NoError(t, s.Upsert(ctx, sampleUnit("b", "owner-2", "kafka streaming pipeline", 0)))

	hits, err := s.SearchFTS(ctx, "kafka", memory.Filter{OwnerKey: "owner-1"}, 10)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "a", hits[0].Unit.ID)
}

func TestSQLiteStore_CountForOwner(t *testing.T) {
	s := newTestSQLiteStore(t, 0)
	ctx := context.Background()

	require.NoError(t, s.Upsert(ctx, sampleUnit("a", "owner-1", "one", 0)))
	require.NoError(t, s.Upsert(ctx, sampleUnit("b", "owner-1", "two", 0)))
	require.NoError(t, s.Upsert(ctx, sampleUnit("c", "owner-2", "three", 0)))

	n, err := s.CountForOwner(ctx, "owner-1")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestSQLiteStore_List_NewestFirst(t *testing.T) {
	s := newTestSQLiteStore(t, 0)
	ctx := context.Background()

	older := sampleUnit("a", "owner-1", "older memory", 0)
	older.CreatedAt = older.CreatedAt.Add(-time.Hour)
	older.UpdatedAt = older.CreatedAt
	require.NoError(t, s.Upsert(ctx, older))
	require.NoError(t, s.Upsert(ctx, sampleUnit("b", "owner-1", "newer memory", 0)))
	require.NoError(t, s.Upsert(ctx, sampleUnit("c", "owner-2", "other owner", 0)))

	units, err := s.List(ctx, memory.Filter{OwnerKey: "owner-1"}, 0)
	require.NoError(t, err)
	require.Len(t, units, 2)
	assert.Equal(t, "b", units[0].ID)
	assert.Equal(t, "a", units[1].ID)

	limited, err := s.List(ctx, memory.Filter{OwnerKey: "owner-1"}, 1)
	require.NoError(t, err)
	require.Len(t, limited, 1)
	assert.Equal(t, "b", limited[0].ID)
}

func TestSQLiteStore_List_IncludesSoftDeletedOnRequest(t *testing.T) {
	s := newTestSQLiteStore(t, 0)
	ctx := context.Background()

	require.NoError(t, s.Upsert(ctx, sampleUnit("a", "owner-1", "kept", 0)))
	require.NoError(t, s.Upsert(ctx, sampleUnit("b", "owner-1", "hidden", 0)))
	require.NoError(t, s.Delete(ctx, "b", false))

	visible, err := s.List(ctx, memory.Filter{OwnerKey: "owner-1"}, 0)
	require.NoError(t, err)
	require.Len(t, visible, 1)
	assert.Equal(t, "a", visible[0].ID)

	all, err := s.List(ctx, memory.Filter{OwnerKey: "owner-1", IncludeDeleted: true}, 0)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestSQLiteStore_GetByContentHash(t *testing.T) {
	s := newTestSQLiteStore(t, 0)
	ctx := context.Background()

	u := sampleUnit("a", "owner-1", "exact content", 0)
	require.NoError(t, s.Upsert(ctx, u))

	got, err := s.GetByContentHash(ctx, "owner-1", u.ContentHash)
	require.NoError(t, err)
	assert.Equal(t, "a", got.ID)

	// Wrong owner, unknown hash, and soft-deleted rows all miss.
	_, err = s.GetByContentHash(ctx, "owner-2", u.ContentHash)
	require.Error(t, err)
	_, err = s.GetByContentHash(ctx, "owner-1", "deadbeef")
	require.Error(t, err)
	require.NoError(t, s.Delete(ctx, "a", false))
	_, err = s.GetByContentHash(ctx, "owner-1", u.ContentHash)
	require.Error(t, err)
}
