// Package service implements MemoryService: the orchestrator that
// wires embedding, duplicate detection, storage, the BM25 shadow index,
// hybrid search, scoring, and context optimization into the public
// store/recall/get/list/update/delete surface.
package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/memsearch/memsearch/internal/accessqueue"
	"github.com/memsearch/memsearch/internal/bm25"
	"github.com/memsearch/memsearch/internal/dedup"
	"github.com/memsearch/memsearch/internal/hybrid"
	"github.com/memsearch/memsearch/internal/memerr"
	"github.com/memsearch/memsearch/internal/memory"
	"github.com/memsearch/memsearch/internal/optimizer"
	"github.com/memsearch/memsearch/internal/scoring"
	"github.com/memsearch/memsearch/internal/store"
)

// EmbeddingProvider is the subset of embedding.Provider the service needs.
// Declared locally rather than importing internal/embedding, which has no
// reason to depend on this package's collaborators.
type EmbeddingProvider interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// DuplicatePolicy controls what Store does when the duplicate detector
// finds a match: Skip returns the existing unit's id without
// writing; UpdateExisting overwrites the existing unit's content/embedding
// in place; Merge applies a configured merge Strategy; StoreAnyway ignores
// the match and writes a new row.
type DuplicatePolicy string

const (
	PolicySkip           DuplicatePolicy = "SKIP"
	PolicyUpdateExisting DuplicatePolicy = "UPDATE_EXISTING"
	PolicyMerge          DuplicatePolicy = "MERGE"
	PolicyStoreAnyway    DuplicatePolicy = "STORE_ANYWAY"
)

// Config bundles every tunable the orchestrator needs beyond its injected
// collaborators.
type Config struct {
	DuplicatePolicy DuplicatePolicy
	MergeStrategy   dedup.Strategy
	ScoringWeights  scoring.Weights
	SearchDefaults  hybrid.Options
	AccessQueueSize int
}

// DefaultConfig mirrors the config-file defaults.
func DefaultConfig() Config {
	return Config{
		DuplicatePolicy: PolicySkip,
		MergeStrategy:   dedup.CombineContent,
		ScoringWeights:  scoring.DefaultWeights(),
		SearchDefaults:  hybrid.DefaultOptions(),
		AccessQueueSize: 256,
	}
}

// Service is MemoryService.
type Service struct {
	store    store.MemoryStore
	embedder EmbeddingProvider
	bm25     *bm25.Index
	dedup    *dedup.Detector
	hybrid   *hybrid.Engine
	scorer   *scoring.Service
	cfg      Config
	log      *slog.Logger
	access   *accessqueue.Queue
	now      func() time.Time
}

// Option configures a Service at construction time.
type Option func(*Service)

// WithLogger overrides the nil-safe default slog.Default().
func WithLogger(log *slog.Logger) Option {
	return func(s *Service) { s.log = log }
}

// WithClock overrides time.Now, for deterministic recency scoring in tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// New builds a Service. bgCtx bounds the lifetime of the background
// access-counter queue; callers should cancel it (or call Close) at
// shutdown to drain deterministically.
func New(bgCtx context.Context, st store.MemoryStore, embedder EmbeddingProvider, idx *bm25.Index, cfg Config, opts ...Option) *Service {
	s := &Service{
		store:    st,
		embedder: embedder,
		bm25:     idx,
		dedup:    dedup.New(st),
		hybrid:   hybrid.New(st, idx),
		scorer:   scoring.New(cfg.ScoringWeights),
		cfg:      cfg,
		log:      slog.Default(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.access = accessqueue.New(bgCtx, cfg.AccessQueueSize, s.applyAccessBump, s.log)
	return s
}

// Close drains the background access-counter queue deterministically.
func (s *Service) Close() error {
	s.access.Stop()
	return nil
}

// StoreRequest is the input to Store.
type StoreRequest struct {
	OwnerKey   string
	SessionKey string
	Content    string
	Type       memory.Type
	Importance float32
	Topics     []string
	Entities   []string
	Metadata   map[string]string
}

// StoreResult is Store's outcome: either a freshly written Unit, or (when
// the duplicate policy is Skip/Merge/UpdateExisting and a match was found)
// the surviving existing unit plus a flag callers can use to distinguish
// "new row" from "matched existing."
type StoreResult struct {
	Unit      *memory.Unit
	Matched   bool
	MatchKind dedup.MatchKind
}

// Store validates, hashes, embeds, duplicate-checks, then writes the
// unit. The row write and the BM25 add happen in that order, with BM25
// updated only after the store commit succeeds: a crash between the
// two leaves only the BM25 index stale, reconciled by replaying BM25 from
// the row table on startup.
func (s *Service) Store(ctx context.Context, req StoreRequest) (StoreResult, error) {
	if err := ctx.Err(); err != nil {
		return StoreResult{}, memerr.CancelledErr()
	}
	if req.OwnerKey == "" {
		return StoreResult{}, memerr.Invalid("owner key is required")
	}
	if req.Content == "" {
		return StoreResult{}, memerr.Invalid("content must not be empty")
	}
	typ := req.Type
	if typ == "" {
		typ = memory.TypeSemantic
	}
	if !memory.ValidType(typ) {
		return StoreResult{}, memerr.Invalid("unknown memory type %q", typ)
	}

	embedding, err := s.embedder.Embed(ctx, req.Content)
	if err != nil {
		return StoreResult{}, s.classifyUpstream(err)
	}
	if d := s.store.Dimension(); d > 0 && len(embedding) != d {
		return StoreResult{}, memerr.ShapeErr("embedding provider returned %d dims, collection requires %d", len(embedding), d)
	}

	now := s.now()
	candidate := &memory.Unit{
		ID:          uuid.NewString(),
		OwnerKey:    req.OwnerKey,
		SessionKey:  req.SessionKey,
		Content:     req.Content,
		Embedding:   embedding,
		CreatedAt:   now,
		UpdatedAt:   now,
		Importance:  memory.ClampImportance(req.Importance),
		Type:        typ,
		ContentHash: memory.ComputeContentHash(req.Content),
		Topics:      req.Topics,
		Entities:    req.Entities,
		Metadata:    req.Metadata,
	}

	outcome, err := s.dedup.Check(ctx, candidate)
	if err != nil {
		return StoreResult{}, err
	}

	if outcome.Kind != dedup.MatchNone {
		result, handled, err := s.handleDuplicate(ctx, candidate, outcome)
		if err != nil {
			return StoreResult{}, err
		}
		if handled {
			return result, nil
		}
	}

	if err := s.store.Upsert(ctx, candidate); err != nil {
		return StoreResult{}, memerr.StorageErr(err, "store unit")
	}
	s.bm25.Add(candidate.ID, candidate.Content)

	return StoreResult{Unit: candidate}, nil
}

// handleDuplicate applies cfg.DuplicatePolicy to a Check outcome. The
// second return value is false when the policy is StoreAnyway, meaning the
// caller should fall through to a normal write.
func (s *Service) handleDuplicate(ctx context.Context, candidate *memory.Unit, outcome dedup.Outcome) (StoreResult, bool, error) {
	switch s.cfg.DuplicatePolicy {
	case PolicyStoreAnyway:
		return StoreResult{}, false, nil

	case PolicySkip:
		return StoreResult{Unit: outcome.Existing, Matched: true, MatchKind: outcome.Kind}, true, nil

	case PolicyUpdateExisting:
		updated := *outcome.Existing
		updated.Content = candidate.Content
		updated.Embedding = candidate.Embedding
		updated.ContentHash = candidate.ContentHash
		updated.UpdatedAt = s.now()
		if err := s.store.Update(ctx, &updated); err != nil {
			return StoreResult{}, false, memerr.StorageErr(err, "update existing duplicate")
		}
		s.bm25.Add(updated.ID, updated.Content)
		return StoreResult{Unit: &updated, Matched: true, MatchKind: outcome.Kind}, true, nil

	case PolicyMerge:
		merged, contentChanged := dedup.Merge(outcome.Existing, candidate, s.cfg.MergeStrategy)
		merged.UpdatedAt = s.now()
		if contentChanged {
			embedding, err := s.embedder.Embed(ctx, merged.Content)
			if err != nil {
				return StoreResult{}, false, s.classifyUpstream(err)
			}
			merged.Embedding = embedding
			merged.ContentHash = memory.ComputeContentHash(merged.Content)
		}
		if err := s.store.Update(ctx, merged); err != nil {
			return StoreResult{}, false, memerr.StorageErr(err, "merge duplicate")
		}
		if contentChanged {
			s.bm25.Add(merged.ID, merged.Content)
		}
		return StoreResult{Unit: merged, Matched: true, MatchKind: outcome.Kind}, true, nil

	default:
		return StoreResult{}, false, memerr.InternalErr("unknown duplicate policy %q", s.cfg.DuplicatePolicy)
	}
}

// classifyUpstream maps an embedding-provider failure's memerr.Kind through
// unchanged, or wraps it as Upstream if it arrived as a plain error.
func (s *Service) classifyUpstream(err error) error {
	if memerr.KindOf(err) != "" {
		return err
	}
	return memerr.UpstreamErr(err, "embedding provider call failed")
}

// RecallRequest is the input to Recall.
type RecallRequest struct {
	Query          string
	OwnerKey       string
	SessionKey     string
	Types          []memory.Type
	CreatedAfter   time.Time
	CreatedBefore  time.Time
	IncludeDeleted bool
	Limit          int
	UseMMR         bool
	MMRLambda      float64
	Explain        bool
}

// Recall resolves the query embedding, runs HybridSearch with a 2x
// overfetch, blends the fused score with the scoring service's combined
// score, sorts, truncates, and fires-and-forgets access-counter bumps for
// every returned unit.
func (s *Service) Recall(ctx context.Context, req RecallRequest) ([]memory.SearchResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, memerr.CancelledErr()
	}
	if req.Query == "" {
		return nil, memerr.Invalid("query must not be empty")
	}
	limit := req.Limit
	if limit <= 0 {
		limit = s.cfg.SearchDefaults.Limit
	}

	queryVector, err := s.embedder.Embed(ctx, req.Query)
	if err != nil {
		return nil, s.classifyUpstream(err)
	}

	opts := s.cfg.SearchDefaults
	opts.OwnerKey = req.OwnerKey
	opts.SessionKey = req.SessionKey
	opts.Types = req.Types
	opts.CreatedAfter = req.CreatedAfter
	opts.CreatedBefore = req.CreatedBefore
	opts.IncludeDeleted = req.IncludeDeleted
	opts.Limit = limit * 2
	opts.UseMMR = req.UseMMR
	if req.MMRLambda > 0 {
		opts.MMRLambda = req.MMRLambda
	}

	hits, err := s.hybrid.Search(ctx, req.Query, queryVector, opts)
	if err != nil {
		return nil, err
	}

	now := s.now()
	for i := range hits {
		breakdown := s.scorer.Score(now, hits[i].Unit, queryVector)
		breakdown.Dense = hits[i].Score
		breakdown.Fused = hits[i].Fused
		blended := float32((hits[i].Fused + float64(breakdown.Combined)) / 2)
		hits[i].Score = blended
		if req.Explain {
			hits[i].Explain = &breakdown
		}
	}

	sortByScoreDesc(hits)
	if len(hits) > limit {
		hits = hits[:limit]
	}

	for _, h := range hits {
		s.access.Enqueue(accessqueue.Bump{ID: h.Unit.ID})
	}

	return hits, nil
}

func sortByScoreDesc(hits []memory.SearchResult) {
	for i := 1; i < len(hits); i++ {
		for j := i; j > 0 && (hits[j].Score > hits[j-1].Score ||
			(hits[j].Score == hits[j-1].Score && hits[j].Unit.ID < hits[j-1].Unit.ID)); j-- {
			hits[j], hits[j-1] = hits[j-1], hits[j]
		}
	}
}

// applyAccessBump is the accessqueue.Apply callback: re-read, bump, write.
// At-least-once delivery is safe because AccessCount is monotone.
func (s *Service) applyAccessBump(ctx context.Context, b accessqueue.Bump) error {
	unit, err := s.store.Get(ctx, b.ID)
	if err != nil {
		return err
	}
	unit.AccessCount++
	unit.LastAccessedAt = s.now()
	return s.store.Update(ctx, unit)
}

// Get returns a single unit by id. NotFound propagates from the store.
func (s *Service) Get(ctx context.Context, id string) (*memory.Unit, error) {
	return s.store.Get(ctx, id)
}

// List returns every live unit for an owner matching filter, newest first,
// without ranking — a thin passthrough for callers that want raw
// enumeration (e.g. the CLI's `list` subcommand) rather than query-driven
// recall.
func (s *Service) List(ctx context.Context, filter memory.Filter, limit int) ([]*memory.Unit, error) {
	if filter.OwnerKey == "" {
		return nil, memerr.Invalid("owner key is required")
	}
	return s.store.List(ctx, filter, limit)
}

// ReindexBM25 replays the in-process BM25 index from the row table,
// reconciling it with durable state at startup. Soft-deleted units are
// indexed too: they stay lexically searchable and Filter.IncludeDeleted
// decides their visibility at recall time.
func (s *Service) ReindexBM25(ctx context.Context) error {
	units, err := s.store.List(ctx, memory.Filter{IncludeDeleted: true}, 0)
	if err != nil {
		return memerr.StorageErr(err, "replay bm25 from row table")
	}
	for _, u := range units {
		s.bm25.Add(u.ID, u.Content)
	}
	return nil
}

// UpdateContent re-embeds, recomputes the hash, then updates the row and
// the BM25 index — the latter deliberately after the
// durable commit, so a crash between the two steps leaves only the
// BM25 index stale, reconciled by replaying BM25 from the row table on
// startup.
func (s *Service) UpdateContent(ctx context.Context, id, content string) (*memory.Unit, error) {
	if content == "" {
		return nil, memerr.Invalid("content must not be empty")
	}
	existing, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	embedding, err := s.embedder.Embed(ctx, content)
	if err != nil {
		return nil, s.classifyUpstream(err)
	}
	if d := s.store.Dimension(); d > 0 && len(embedding) != d {
		return nil, memerr.ShapeErr("embedding provider returned %d dims, collection requires %d", len(embedding), d)
	}

	existing.Content = content
	existing.Embedding = embedding
	existing.ContentHash = memory.ComputeContentHash(content)
	existing.UpdatedAt = s.now()

	if err := s.store.Update(ctx, existing); err != nil {
		return nil, memerr.StorageErr(err, "update content")
	}
	s.bm25.Add(existing.ID, existing.Content)
	return existing, nil
}

// UpdateImportance is a narrower mutation than UpdateContent that never
// re-embeds or touches BM25.
func (s *Service) UpdateImportance(ctx context.Context, id string, importance float32) (*memory.Unit, error) {
	existing, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	existing.Importance = memory.ClampImportance(importance)
	existing.UpdatedAt = s.now()
	if err := s.store.Update(ctx, existing); err != nil {
		return nil, memerr.StorageErr(err, "update importance")
	}
	return existing, nil
}

// Delete hard removes the row and every index entry; soft marks is_deleted
// and keeps the BM25 entry, since soft-deleted units remain materialized
// and lexically indexed — it's Filter.IncludeDeleted that hides them from
// default recall, not BM25 membership.
func (s *Service) Delete(ctx context.Context, id string, hard bool) error {
	if err := s.store.Delete(ctx, id, hard); err != nil {
		return err
	}
	if hard {
		s.bm25.Remove(id)
	}
	return nil
}

// CountForOwner passes through to the store.
func (s *Service) CountForOwner(ctx context.Context, owner string) (int, error) {
	return s.store.CountForOwner(ctx, owner)
}

// Optimize runs the context optimizer over a Recall result set, fitting
// it to a token budget for a downstream LLM context window.
func (s *Service) Optimize(candidates []memory.SearchResult, opts optimizer.Options) ([]*memory.Unit, optimizer.Report) {
	in := make([]optimizer.Candidate, len(candidates))
	for i, c := range candidates {
		in[i] = optimizer.Candidate{Unit: c.Unit, Score: float64(c.Score)}
	}
	return optimizer.Optimize(in, opts)
}
