// Package dedup implements the two-stage duplicate/near-duplicate check
// and merge strategies.
package dedup

import (
	"context"

	"github.com/memsearch/memsearch/internal/memerr"
	"github.com/memsearch/memsearch/internal/memory"
	"github.com/memsearch/memsearch/internal/store"
)

// MatchKind classifies what a duplicate check found.
type MatchKind string

const (
	MatchNone  MatchKind = "NONE"
	MatchExact MatchKind = "EXACT"
	MatchNear  MatchKind = "NEAR"
)

// Recommendation is what the caller should do about a match. The detector
// itself is policy-free; MemoryService maps (MatchKind, configured policy)
// to one of these before acting.
type Recommendation string

const (
	RecommendSkip           Recommendation = "SKIP"
	RecommendUpdateExisting Recommendation = "UPDATE_EXISTING"
	RecommendMerge          Recommendation = "MERGE"
	RecommendStoreAnyway    Recommendation = "STORE_ANYWAY"
)

// Outcome is the result of a duplicate check.
type Outcome struct {
	Kind     MatchKind
	Existing *memory.Unit // nil when Kind == MatchNone
	Score    float32      // cosine similarity for MatchNear; 1 for MatchExact
}

// Detector checks candidate units against an owner's existing memories.
type Detector struct {
	store         store.MemoryStore
	nearThreshold float32
	candidatePool int
}

// Option configures a Detector.
type Option func(*Detector)

// WithNearThreshold overrides the default 0.92 near-duplicate cosine cutoff.
func WithNearThreshold(t float32) Option {
	return func(d *Detector) { d.nearThreshold = t }
}

// WithCandidatePool overrides how many nearest neighbors Stage B inspects.
func WithCandidatePool(n int) Option {
	return func(d *Detector) { d.candidatePool = n }
}

// New builds a Detector backed by s, defaulting to a 0.92 near-duplicate
// cosine threshold and a candidate pool of 5.
func New(s store.MemoryStore, opts ...Option) *Detector {
	d := &Detector{store: s, nearThreshold: 0.92, candidatePool: 5}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Check runs both stages against candidate (which need not yet have an id).
// Stage A is a direct content-hash lookup, so an exact duplicate is found
// regardless of how an embedding- or term-ranked scan would order it.
// Stage B, only reached when Stage A misses and candidate has an embedding,
// looks for a near-duplicate among the candidate's nearest neighbors for
// the same owner.
func (d *Detector) Check(ctx context.Context, candidate *memory.Unit) (Outcome, error) {
	if err := ctx.Err(); err != nil {
		return Outcome{}, memerr.CancelledErr()
	}
	if candidate.OwnerKey == "" {
		return Outcome{}, memerr.Invalid("owner key is required for duplicate check")
	}

	existing, err := d.store.GetByContentHash(ctx, candidate.OwnerKey, candidate.ContentHash)
	if err == nil {
		return Outcome{Kind: MatchExact, Existing: existing, Score: 1}, nil
	}
	if memerr.KindOf(err) != memerr.NotFound {
		return Outcome{}, memerr.StorageErr(err, "duplicate check hash lookup")
	}

	if candidate.Embedding == nil {
		return Outcome{Kind: MatchNone}, nil
	}

	filter := memory.Filter{OwnerKey: candidate.OwnerKey}
	hits, err := d.store.SearchVector(ctx, candidate.Embedding, filter, d.candidatePool, -1)
	if err != nil {
		return Outcome{}, memerr.StorageErr(err, "duplicate check vector scan")
	}
	for _, h := range hits {
		if h.Score >= d.nearThreshold {
			return Outcome{Kind: MatchNear, Existing: h.Unit, Score: h.Score}, nil
		}
	}
	return Outcome{Kind: MatchNone}, nil
}
