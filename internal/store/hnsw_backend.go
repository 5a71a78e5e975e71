package store

import (
	"context"
	"sort"
	"sync"

	"github.com/coder/hnsw"

	"github.com/memsearch/memsearch/internal/memerr"
	"github.com/memsearch/memsearch/internal/memory"
	"github.com/memsearch/memsearch/internal/vectormath"
)

// HNSWStore is an alternate MemoryStore for large collections: row bodies
// live in a guarded map (like MemStore) but vector search is delegated to
// an approximate coder/hnsw graph instead of a brute-force cosine scan, so
// SearchVector trades exactness for sublinear lookup as the collection
// grows. Metadata filtering still happens by hydrating candidates from the
// graph's neighbor list and checking memory.Filter.Matches.
//
// coder/hnsw graphs are keyed by a fixed integer, not our string memory
// ids, and deleting the last node in the graph is known to corrupt it; both
// are worked around below the same way the reference vector store in this
// codebase's lineage does it: an idMap/keyMap pair and lazy (mapping-only)
// deletion that leaves an orphaned node behind instead of calling
// graph.Delete.
type HNSWStore struct {
	mu        sync.RWMutex
	dimension int
	rows      map[string]*memory.Unit
	graph     *hnsw.Graph[uint64]
	idMap     map[string]uint64
	keyMap    map[uint64]string
	nextKey   uint64
}

var _ MemoryStore = (*HNSWStore)(nil)

// NewHNSWStore creates an empty HNSW-backed store for the given dimension.
func NewHNSWStore(dimension int) *HNSWStore {
	g := hnsw.NewGraph[uint64]()
	g.Distance = hnsw.CosineDistance
	return &HNSWStore{
		dimension: dimension,
		rows:      make(map[string]*memory.Unit),
		graph:     g,
		idMap:     make(map[string]uint64),
		keyMap:    make(map[uint64]string),
	}
}

func (s *HNSWStore) Dimension() int { return s.dimension }

func (s *HNSWStore) validate(unit *memory.Unit) error {
	if unit.ID == "" {
		return memerr.Invalid("unit id is required")
	}
	if s.dimension > 0 && unit.Embedding != nil && len(unit.Embedding) != s.dimension {
		return memerr.ShapeErr("embedding has %d dims, collection requires %d", len(unit.Embedding), s.dimension)
	}
	return nil
}

// indexLocked assigns unit.Embedding a fresh graph node and orphans any
// prior node for the same id. Caller must hold s.mu for writing.
func (s *HNSWStore) indexLocked(unit *memory.Unit) {
	if unit.Embedding == nil {
		return
	}
	if oldKey, exists := s.idMap[unit.ID]; exists {
		delete(s.keyMap, oldKey)
		delete(s.idMap, unit.ID)
	}
	key := s.nextKey
	s.nextKey++
	vec := vectormath.Normalize(unit.Embedding)
	s.graph.Add(hnsw.MakeNode(key, vec))
	s.idMap[unit.ID] = key
	s.keyMap[key] = unit.ID
}

func (s *HNSWStore) Upsert(ctx context.Context, unit *memory.Unit) error {
	if err := ctx.Err(); err != nil {
		return memerr.CancelledErr()
	}
	if err := s.validate(unit); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows[unit.ID] = clone(unit)
	s.indexLocked(unit)
	return nil
}

func (s *HNSWStore) UpsertBatch(ctx context.Context, units []*memory.Unit) error {
	for _, u := range units {
		if err := s.validate(u); err != nil {
			return err
		}
	}
	for _, u := range units {
		if err := s.Upsert(ctx, u); err != nil {
			return err
		}
	}
	return nil
}

func (s *HNSWStore) Get(ctx context.Context, id string) (*memory.Unit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.rows[id]
	if !ok || u.IsDeleted {
		return nil, memerr.NotFoundErr("memory %q not found", id)
	}
	return clone(u), nil
}

func (s *HNSWStore) GetMany(ctx context.Context, ids []string) ([]*memory.Unit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*memory.Unit, 0, len(ids))
	for _, id := range ids {
		if u, ok := s.rows[id]; ok && !u.IsDeleted {
			out = append(out, clone(u))
		}
	}
	return out, nil
}

func (s *HNSWStore) GetByContentHash(ctx context.Context, owner, hash string) (*memory.Unit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, u := range s.rows {
		if u.OwnerKey == owner && u.ContentHash == hash && !u.IsDeleted {
			return clone(u), nil
		}
	}
	return nil, memerr.NotFoundErr("no memory for owner %q with hash %s", owner, hash)
}

func (s *HNSWStore) Update(ctx context.Context, unit *memory.Unit) error {
	s.mu.Lock()
	if _, ok := s.rows[unit.ID]; !ok {
		s.mu.Unlock()
		return memerr.NotFoundErr("memory %q not found", unit.ID)
	}
	s.mu.Unlock()
	return s.Upsert(ctx, unit)
}

func (s *HNSWStore) Delete(ctx context.Context, id string, hard bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.rows[id]
	if !ok {
		return memerr.NotFoundErr("memory %q not found", id)
	}
	if hard {
		delete(s.rows, id)
		if key, exists := s.idMap[id]; exists {
			delete(s.keyMap, key)
			delete(s.idMap, id)
		}
		return nil
	}
	u.IsDeleted = true
	return nil
}

func (s *HNSWStore) CountForOwner(ctx context.Context, owner string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	count := 0
	for _, u := range s.rows {
		if u.OwnerKey == owner && !u.IsDeleted {
			count++
		}
	}
	return count, nil
}

func (s *HNSWStore) List(ctx context.Context, filter memory.Filter, limit int) ([]*memory.Unit, error) {
	if err := ctx.Err(); err != nil {
		return nil, memerr.CancelledErr()
	}
	s.mu.RLock()
	out := make([]*memory.Unit, 0, len(s.rows))
	for _, u := range s.rows {
		if filter.Matches(u) {
			out = append(out, clone(u))
		}
	}
	s.mu.RUnlock()

	sortUnitsNewestFirst(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *HNSWStore) SearchVector(ctx context.Context, queryVec []float32, filter memory.Filter, limit int, minScore float32) ([]VectorHit, error) {
	if err := ctx.Err(); err != nil {
		return nil, memerr.CancelledErr()
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.graph.Len() == 0 {
		return []VectorHit{}, nil
	}

	// Overfetch from the ANN graph since post-filtering by owner/session/
	// type/time, orphaned nodes, and soft-deletes can all eliminate
	// neighbors: fetch 4x limit (at least limit+20), capped at the graph
	// size. A selective filter can still leave fewer than limit hits.
	k := limit * 4
	if k < limit+20 {
		k = limit + 20
	}
	if k > s.graph.Len() {
		k = s.graph.Len()
	}

	normQuery := vectormath.Normalize(queryVec)
	nodes := s.graph.Search(normQuery, k)

	hits := make([]VectorHit, 0, len(nodes))
	for _, n := range nodes {
		id, ok := s.keyMap[n.Key]
		if !ok {
			continue // orphaned node from a since-overwritten or deleted id
		}
		u, ok := s.rows[id]
		if !ok || !filter.Matches(u) || u.Embedding == nil {
			continue
		}
		sim, err := vectormath.Cosine(u.Embedding, queryVec)
		if err != nil {
			return nil, err
		}
		if sim < minScore {
			continue
		}
		hits = append(hits, VectorHit{Unit: clone(u), Score: sim})
	}
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].Unit.ID < hits[j].Unit.ID
	})
	if limit > 0 && len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

func (s *HNSWStore) SearchFTS(ctx context.Context, query string, filter memory.Filter, limit int) ([]FTSHit, error) {
	if err := ctx.Err(); err != nil {
		return nil, memerr.CancelledErr()
	}
	terms := tokenizeForScan(query)
	if len(terms) == 0 {
		return []FTSHit{}, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	hits := make([]FTSHit, 0)
	for _, u := range s.rows {
		if !filter.Matches(u) {
			continue
		}
		raw := matchCount(u, terms)
		if raw == 0 {
			continue
		}
		hits = append(hits, FTSHit{Unit: clone(u), Score: 1 / (1 + 1/float32(raw))})
	}
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].Unit.ID < hits[j].Unit.ID
	})
	if limit > 0 && len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

func (s *HNSWStore) Close() error { return nil }
