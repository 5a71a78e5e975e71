// Package memory defines the domain model shared by every component of the
// retrieval core: MemoryUnit, Session, and MemorySearchResult, plus the
// structural filter used by every store scan.
package memory

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// Type is the closed enumeration of memory kinds.
type Type string

const (
	TypeEpisodic   Type = "EPISODIC"
	TypeSemantic   Type = "SEMANTIC"
	TypeProcedural Type = "PROCEDURAL"
	TypeFact       Type = "FACT"
)

// ValidType reports whether t is one of the four recognized types.
func ValidType(t Type) bool {
	switch t {
	case TypeEpisodic, TypeSemantic, TypeProcedural, TypeFact:
		return true
	default:
		return false
	}
}

// Unit is a single stored memory. Its invariants are enforced by
// the store and service layers that construct and mutate it, not by the
// struct itself.
type Unit struct {
	ID             string
	OwnerKey       string
	SessionKey     string // empty means no session
	Content        string
	Embedding      []float32 // nil when absent
	CreatedAt      time.Time
	UpdatedAt      time.Time
	LastAccessedAt time.Time // zero value means absent
	Importance     float32
	AccessCount    int64
	Type           Type
	ContentHash    string
	Topics         []string
	Entities       []string
	Metadata       map[string]string
	IsDeleted      bool
}

// HasSession reports whether the unit belongs to a conversation session.
func (u *Unit) HasSession() bool {
	return u.SessionKey != ""
}

// HasLastAccess reports whether LastAccessedAt (I5) has been set.
func (u *Unit) HasLastAccess() bool {
	return !u.LastAccessedAt.IsZero()
}

// ComputeContentHash computes the hex SHA-256 of content, the pure function
// required by invariant I2.
func ComputeContentHash(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}

// ClampImportance enforces invariant I6: importance is clamped to [0,1] on write.
func ClampImportance(v float32) float32 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// Session groups memories by conversation boundary. The retrieval core only
// ever treats Session.ID as an opaque filter key.
type Session struct {
	ID           string
	OwnerKey     string
	TurnCount    int
	LastActivity time.Time
}

// Source tags how a MemorySearchResult was surfaced by HybridSearch.
type Source string

const (
	SourceDense  Source = "DENSE"
	SourceSparse Source = "SPARSE"
	SourceHybrid Source = "HYBRID"
)

// ScoreBreakdown exposes the per-component contributions behind a combined
// score, attached to a SearchResult only when the caller asks for it.
type ScoreBreakdown struct {
	Dense      float32
	Sparse     float32
	Recency    float32
	Importance float32
	Frequency  float32
	Relevance  float32
	Combined   float32
	Fused      float64
}

// SearchResult pairs a Unit with a score. Immutable after construction: no
// method mutates Unit or Score.
type SearchResult struct {
	Unit    *Unit
	Score   float32
	Fused   float64
	Source  Source
	Explain *ScoreBreakdown
}

// Filter constrains a store scan by the structural predicates every
// MemoryStore backend must support: owner (required in multi-tenant mode),
// optional session, a set of allowed types, a creation time window, and
// whether soft-deleted units are included.
type Filter struct {
	OwnerKey       string
	SessionKey     string // empty = no session filter
	Types          []Type // empty = all types
	CreatedAfter   time.Time
	CreatedBefore  time.Time
	IncludeDeleted bool
}

// Matches reports whether u satisfies every predicate in f.
func (f Filter) Matches(u *Unit) bool {
	if f.OwnerKey != "" && u.OwnerKey != f.OwnerKey {
		return false
	}
	if f.SessionKey != "" && u.SessionKey != f.SessionKey {
		return false
	}
	if len(f.Types) > 0 && !containsType(f.Types, u.Type) {
		return false
	}
	if !f.CreatedAfter.IsZero() && u.CreatedAt.Before(f.CreatedAfter) {
		return false
	}
	if !f.CreatedBefore.IsZero() && u.CreatedAt.After(f.CreatedBefore) {
		return false
	}
	if u.IsDeleted && !f.IncludeDeleted {
		return false
	}
	return true
}

func containsType(types []Type, t Type) bool {
	for _, candidate := range types {
		if candidate == t {
			return true
		}
	}
	return false
}
