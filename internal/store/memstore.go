package store

import (
	"context"
	"sort"
	"sync"

	"github.com/memsearch/memsearch/internal/memerr"
	"github.com/memsearch/memsearch/internal/memory"
	"github.com/memsearch/memsearch/internal/vectormath"
)

// MemStore is an in-process MemoryStore backed by a guarded map. It is the
// reference backend used by unit and property tests: no disk I/O, full
// exact-cosine vector scan, full linear FTS-style scan (substring match over
// content+topics+entities, since there is no FTS5 engine to delegate to).
type MemStore struct {
	mu        sync.RWMutex
	dimension int
	rows      map[string]*memory.Unit
}

var _ MemoryStore = (*MemStore)(nil)

// NewMemStore creates an empty in-process store fixed at the given
// embedding dimension (0 means embeddings are not validated).
func NewMemStore(dimension int) *MemStore {
	return &MemStore{
		dimension: dimension,
		rows:      make(map[string]*memory.Unit),
	}
}

func (s *MemStore) Dimension() int { return s.dimension }

func (s *MemStore) validate(unit *memory.Unit) error {
	if unit.ID == "" {
		return memerr.Invalid("unit id is required")
	}
	if s.dimension > 0 && unit.Embedding != nil && len(unit.Embedding) != s.dimension {
		return memerr.ShapeErr("embedding has %d dims, collection requires %d", len(unit.Embedding), s.dimension)
	}
	return nil
}

func clone(u *memory.Unit) *memory.Unit {
	cp := *u
	if u.Embedding != nil {
		cp.Embedding = append([]float32(nil), u.Embedding...)
	}
	cp.Topics = append([]string(nil), u.Topics...)
	cp.Entities = append([]string(nil), u.Entities...)
	if u.Metadata != nil {
		cp.Metadata = make(map[string]string, len(u.Metadata))
		for k, v := range u.Metadata {
			cp.Metadata[k] = v
		}
	}
	return &cp
}

func (s *MemStore) Upsert(ctx context.Context, unit *memory.Unit) error {
	if err := ctx.Err(); err != nil {
		return memerr.CancelledErr()
	}
	if err := s.validate(unit); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows[unit.ID] = clone(unit)
	return nil
}

func (s *MemStore) UpsertBatch(ctx context.Context, units []*memory.Unit) error {
	if err := ctx.Err(); err != nil {
		return memerr.CancelledErr()
	}
	for _, u := range units {
		if err := s.validate(u); err != nil {
			return err // all-or-nothing: nothing has been written yet
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range units {
		s.rows[u.ID] = clone(u)
	}
	return nil
}

func (s *MemStore) Get(ctx context.Context, id string) (*memory.Unit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.rows[id]
	if !ok || u.IsDeleted {
		return nil, memerr.NotFoundErr("memory %q not found", id)
	}
	return clone(u), nil
}

func (s *MemStore) GetMany(ctx context.Context, ids []string) ([]*memory.Unit, error) {
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

func (s *MemStore) GetByContentHash(ctx context.Context, owner, hash string) (*memory.Unit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, u := range s.rows {
		if u.OwnerKey == owner && u.ContentHash == hash && !u.IsDeleted {
			return clone(u), nil
		}
	}
	return nil, memerr.NotFoundErr("no memory for owner %q with hash %s", owner, hash)
}

func (s *MemStore) Update(ctx context.Context, unit *memory.Unit) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rows[unit.ID]; !ok {
		return memerr.NotFoundErr("memory %q not found", unit.ID)
	}
	if err := s.validate(unit); err != nil {
		return err
	}
	s.rows[unit.ID] = clone(unit)
	return nil
}

func (s *MemStore) Delete(ctx context.Context, id string, hard bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.rows[id]
	if !ok {
		return memerr.NotFoundErr("memory %q not found", id)
	}
	if hard {
		delete(s.rows, id)
		return nil
	}
	u.IsDeleted = true
	return nil
}

func (s *MemStore) CountForOwner(ctx context.Context, owner string) (int, error) {
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

func (s *MemStore) List(ctx context.Context, filter memory.Filter, limit int) ([]*memory.Unit, error) {
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

func (s *MemStore) SearchVector(ctx context.Context, queryVec []float32, filter memory.Filter, limit int, minScore float32) ([]VectorHit, error) {
	if err := ctx.Err(); err != nil {
		return nil, memerr.CancelledErr()
	}
	s.mu.RLock()
	candidates := make([]*memory.Unit, 0, len(s.rows))
	for _, u := range s.rows {
		if filter.Matches(u) {
			candidates = append(candidates, clone(u))
		}
	}
	s.mu.RUnlock()

	hits := make([]VectorHit, 0, len(candidates))
	for _, u := range candidates {
		if u.Embedding == nil {
			continue
		}
		sim, err := vectormath.Cosine(u.Embedding, queryVec)
		if err != nil {
			return nil, err
		}
		if sim < minScore {
			continue
		}
		hits = append(hits, VectorHit{Unit: u, Score: sim})
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

func (s *MemStore) SearchFTS(ctx context.Context, query string, filter memory.Filter, limit int) ([]FTSHit, error) {
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

func (s *MemStore) Close() error { return nil }
