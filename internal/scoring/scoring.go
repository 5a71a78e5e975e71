// Package scoring implements the combined recency x importance x relevance
// x access-frequency scoring model.
package scoring

import (
	"math"
	"time"

	"github.com/memsearch/memsearch/internal/memory"
	"github.com/memsearch/memsearch/internal/vectormath"
)

// Weights holds the config-driven scoring weights and decay parameters.
type Weights struct {
	Alpha       float32 // recency weight
	Beta        float32 // importance weight
	Gamma       float32 // relevance weight
	Delta       float32 // access-frequency weight
	Decay       float32 // per-hour recency decay, in (0,1)
	ExpectedMax float32 // access count saturation point for F(m)

	// PerTypeDecay overrides Decay for specific memory types: episodic
	// memories fade fastest, procedural and semantic ones slowest. A type
	// absent from the map falls back to Decay.
	PerTypeDecay map[memory.Type]float32
}

// DefaultPerTypeDecay mirrors the per-type half-life tiers: episodic
// memories (specific events) decay fastest, semantic and procedural
// knowledge decays slowest, facts sit in between.
func DefaultPerTypeDecay() map[memory.Type]float32 {
	return map[memory.Type]float32{
		memory.TypeEpisodic:   0.990,
		memory.TypeFact:       0.995,
		memory.TypeSemantic:   0.998,
		memory.TypeProcedural: 0.999,
	}
}

// decayFor resolves the recency decay constant for u's type, falling back
// to the global Decay when no per-type override is configured.
func (w Weights) decayFor(u *memory.Unit) float32 {
	if d, ok := w.PerTypeDecay[u.Type]; ok {
		return d
	}
	return w.Decay
}

// DefaultWeights mirrors the config-file defaults.
func DefaultWeights() Weights {
	return Weights{
		Alpha:       0.3,
		Beta:        0.3,
		Gamma:       0.3,
		Delta:       0.1,
		Decay:       0.995,
		ExpectedMax: 100,
	}
}

// Service computes the combined score for a memory unit against an
// optional query embedding. It is pure and stateless; callers supply `now`
// so that recency is deterministic under test.
type Service struct {
	weights Weights
}

// New builds a Service with the given weights.
func New(weights Weights) *Service {
	return &Service{weights: weights}
}

// Recency returns decay^Δh where Δh is hours since last_accessed_at (or
// created_at when absent), floored at zero.
func Recency(decay float32, now time.Time, u *memory.Unit) float32 {
	ref := u.CreatedAt
	if u.HasLastAccess() {
		ref = u.LastAccessedAt
	}
	deltaHours := now.Sub(ref).Hours()
	if deltaHours < 0 {
		deltaHours = 0
	}
	return float32(math.Pow(float64(decay), deltaHours))
}

// AccessFrequency returns log(1+access_count)/log(1+expected_max), clamped
// to [0,1].
func AccessFrequency(expectedMax float32, u *memory.Unit) float32 {
	if expectedMax <= 0 {
		return 0
	}
	v := float32(math.Log(1+float64(u.AccessCount)) / math.Log(1+float64(expectedMax)))
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// Relevance returns cosine(m.embedding, q), or 0 if either is absent.
func Relevance(u *memory.Unit, query []float32) float32 {
	if u.Embedding == nil || query == nil {
		return 0
	}
	sim, err := vectormath.Cosine(u.Embedding, query)
	if err != nil {
		return 0
	}
	return sim
}

// Importance returns the unit's importance clamped to [0,1].
func Importance(u *memory.Unit) float32 {
	return memory.ClampImportance(u.Importance)
}

// Score computes every sub-score plus the weighted combination S(m,q) =
// alpha*R + beta*I + gamma*V + delta*F, returned as a full breakdown so
// callers can explain a ranking.
func (s *Service) Score(now time.Time, u *memory.Unit, query []float32) memory.ScoreBreakdown {
	w := s.weights
	r := Recency(w.decayFor(u), now, u)
	i := Importance(u)
	v := Relevance(u, query)
	f := AccessFrequency(w.ExpectedMax, u)
	combined := w.Alpha*r + w.Beta*i + w.Gamma*v + w.Delta*f
	return memory.ScoreBreakdown{
		Recency:    r,
		Importance: i,
		Relevance:  v,
		Frequency:  f,
		Combined:   combined,
	}
}
