// Package store defines the MemoryStore contract and its reference
// backends: an in-process map (for tests), a local embedded SQLite backend
// with an FTS5 shadow table and a packed float32 vector column, an
// HNSW-backed approximate variant for large collections, and a remote gRPC
// vector-database client (internal/store/remote).
//
// MemoryStore exclusively owns the persistent row, the dense vector slot,
// and backs the inverted index postings for every memory.Unit — callers
// such as HybridSearch hold only ids into it.
package store

import (
	"context"

	"github.com/memsearch/memsearch/internal/memory"
)

// VectorHit pairs a unit with its cosine similarity to a query vector.
type VectorHit struct {
	Unit  *memory.Unit
	Score float32
}

// FTSHit pairs a unit with a normalized full-text score in (0, 1].
type FTSHit struct {
	Unit  *memory.Unit
	Score float32
}

// MemoryStore is the persistence contract the search core depends on.
// Implementations must provide write-ahead durability and keep concurrent
// readers on a consistent snapshot during writer transactions:
// a given unit id's writes are fully serialized.
type MemoryStore interface {
	// Upsert inserts or replaces unit atomically, including its FTS shadow
	// entry. Batch variants are all-or-nothing.
	Upsert(ctx context.Context, unit *memory.Unit) error
	UpsertBatch(ctx context.Context, units []*memory.Unit) error

	// Get returns NotFound if id is absent, hard-deleted, or soft-deleted.
	Get(ctx context.Context, id string) (*memory.Unit, error)
	GetMany(ctx context.Context, ids []string) ([]*memory.Unit, error)

	// GetByContentHash returns the live unit for owner whose content hash
	// equals hash, or NotFound. Exact-duplicate detection depends on this
	// being a direct lookup, not a ranked scan.
	GetByContentHash(ctx context.Context, owner, hash string) (*memory.Unit, error)

	// Update atomically replaces content, embedding, and hash for an
	// existing unit; other mutable fields on the passed unit are written
	// as-is (importance, topics, metadata, ...).
	Update(ctx context.Context, unit *memory.Unit) error

	// Delete removes unit id. hard=false marks is_deleted and keeps the row
	// materialized; hard=true removes the row and all index entries.
	Delete(ctx context.Context, id string, hard bool) error

	// CountForOwner counts an owner's live units; soft-deleted units are
	// not counted.
	CountForOwner(ctx context.Context, owner string) (int, error)

	// List enumerates units matching filter without ranking, ordered by
	// created_at descending (id ascending on ties), truncated to limit.
	// limit <= 0 means no truncation.
	List(ctx context.Context, filter memory.Filter, limit int) ([]*memory.Unit, error)

	// SearchVector returns units matching filter ranked by descending cosine
	// similarity to queryVec, truncated to limit, excluding scores below
	// minScore. Soft-deleted units are excluded unless filter.IncludeDeleted.
	SearchVector(ctx context.Context, queryVec []float32, filter memory.Filter, limit int, minScore float32) ([]VectorHit, error)

	// SearchFTS returns units matching filter ranked by descending
	// normalized full-text score, truncated to limit.
	SearchFTS(ctx context.Context, query string, filter memory.Filter, limit int) ([]FTSHit, error)

	// Dimension returns the collection's configured embedding dimension,
	// fixed at creation time. 0 means the dimension is not enforced.
	Dimension() int

	Close() error
}
