// Package hybrid implements HybridSearch: Reciprocal Rank Fusion of
// a dense vector scan and a sparse BM25 lookup, with an optional MMR
// diversity pass.
package hybrid

import (
	"context"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/memsearch/memsearch/internal/bm25"
	"github.com/memsearch/memsearch/internal/memerr"
	"github.com/memsearch/memsearch/internal/memory"
	"github.com/memsearch/memsearch/internal/mmr"
	"github.com/memsearch/memsearch/internal/store"
)

// Options controls one Search call. Embedding is resolved by the caller
// (MemoryService) and passed in as QueryVector;
// Engine itself never talks to an EmbeddingProvider.
type Options struct {
	OwnerKey       string
	SessionKey     string
	Types          []memory.Type
	CreatedAfter   time.Time
	CreatedBefore  time.Time
	IncludeDeleted bool

	Limit         int
	DenseWeight   float64
	SparseWeight  float64
	RRFK          int
	MinFusedScore float64
	UseMMR        bool
	MMRLambda     float64
}

// DefaultOptions mirrors the config defaults.
func DefaultOptions() Options {
	return Options{
		Limit:        10,
		DenseWeight:  0.6,
		SparseWeight: 0.4,
		RRFK:         60,
		MMRLambda:    0.5,
	}
}

func (o Options) filter() memory.Filter {
	return memory.Filter{
		OwnerKey:       o.OwnerKey,
		SessionKey:     o.SessionKey,
		Types:          o.Types,
		CreatedAfter:   o.CreatedAfter,
		CreatedBefore:  o.CreatedBefore,
		IncludeDeleted: o.IncludeDeleted,
	}
}

// Engine runs HybridSearch against a MemoryStore and an in-process BM25
// index that the service layer keeps in lockstep with store writes.
type Engine struct {
	store store.MemoryStore
	bm25  *bm25.Index
}

// New builds an Engine.
func New(s store.MemoryStore, idx *bm25.Index) *Engine {
	return &Engine{store: s, bm25: idx}
}

type fused struct {
	unit   *memory.Unit
	score  float64
	dense  bool
	sparse bool
}

// Search runs the full hybrid pipeline and returns up to opts.Limit tagged
// results. queryVector may be nil when the caller has no embedding (the
// search then degenerates to sparse-only).
func (e *Engine) Search(ctx context.Context, queryText string, queryVector []float32, opts Options) ([]memory.SearchResult, error) {
	if opts.Limit <= 0 {
		return nil, memerr.Invalid("limit must be positive")
	}
	filter := opts.filter()
	overfetch := opts.Limit * 3

	var vecHits []store.VectorHit
	var sparseHits []bm25.Result

	if queryVector != nil {
		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			hits, err := e.store.SearchVector(gctx, queryVector, filter, overfetch, -1)
			if err != nil {
				return memerr.StorageErr(err, "hybrid search vector scan")
			}
			vecHits = hits
			return nil
		})
		g.Go(func() error {
			sparseHits = e.bm25.Search(queryText, overfetch)
			return nil
		})
		if err := g.Wait(); err != nil {
			return nil, err
		}
	} else {
		sparseHits = e.bm25.Search(queryText, overfetch)
	}

	candidates := make(map[string]*fused, len(vecHits)+len(sparseHits))

	for rank, h := range vecHits {
		contribution := opts.DenseWeight / float64(opts.RRFK+rank+1+1)
		candidates[h.Unit.ID] = &fused{unit: h.Unit, score: contribution, dense: true}
	}

	sparseOnlyIDs := make([]string, 0)
	for rank, r := range sparseHits {
		contribution := opts.SparseWeight / float64(opts.RRFK+rank+1+1)
		if c, ok := candidates[r.ID]; ok {
			c.score += contribution
			c.sparse = true
			continue
		}
		sparseOnlyIDs = append(sparseOnlyIDs, r.ID)
		candidates[r.ID] = &fused{score: contribution, sparse: true}
	}

	fallbackDenseOnly := false
	if len(sparseOnlyIDs) > 0 {
		units, err := e.store.GetMany(ctx, sparseOnlyIDs)
		if err != nil {
			// BM25-side failures are recoverable: drop the sparse-only ids
			// and annotate the response as dense-only.
			fallbackDenseOnly = true
			for _, id := range sparseOnlyIDs {
				delete(candidates, id)
			}
		} else {
			byID := make(map[string]*memory.Unit, len(units))
			for _, u := range units {
				byID[u.ID] = u
			}
			for _, id := range sparseOnlyIDs {
				if u, ok := byID[id]; ok {
					candidates[id].unit = u
				} else {
					delete(candidates, id) // hydrate miss: drop
				}
			}
		}
	}

	list := make([]*fused, 0, len(candidates))
	for _, c := range candidates {
		if c.unit == nil {
			continue // no embedding and no content: nothing to rank on
		}
		if c.score < opts.MinFusedScore {
			continue
		}
		list = append(list, c)
	}
	sort.Slice(list, func(i, j int) bool {
		if list[i].score != list[j].score {
			return list[i].score > list[j].score
		}
		return list[i].unit.ID < list[j].unit.ID
	})

	var selected []*fused
	if opts.UseMMR && len(list) > 0 {
		mmrCandidates := make([]mmr.Candidate, len(list))
		for i, c := range list {
			mmrCandidates[i] = mmr.Candidate{Unit: c.unit, Score: c.score}
		}
		chosen := mmr.Select(mmrCandidates, opts.MMRLambda, opts.Limit)
		byID := make(map[string]*fused, len(list))
		for _, c := range list {
			byID[c.unit.ID] = c
		}
		selected = make([]*fused, 0, len(chosen))
		for _, ch := range chosen {
			selected = append(selected, byID[ch.Unit.ID])
		}
	} else {
		if len(list) > opts.Limit {
			list = list[:opts.Limit]
		}
		selected = list
	}

	results := make([]memory.SearchResult, 0, len(selected))
	for _, c := range selected {
		source := memory.SourceHybrid
		switch {
		case c.dense && !c.sparse:
			source = memory.SourceDense
		case c.sparse && !c.dense:
			source = memory.SourceSparse
		}
		if fallbackDenseOnly {
			source = memory.SourceDense
		}
		results = append(results, memory.SearchResult{
			Unit:   c.unit,
			Score:  float32(c.score),
			Fused:  c.score,
			Source: source,
		})
	}
	return results, nil
}
