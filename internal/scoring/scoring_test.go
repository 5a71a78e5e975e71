package scoring

import (
	"testing"
	"time"

	"github.com/memsearch/memsearch/internal/memory"
	"github.com/stretchr/testify/assert"
)

func unitAt(createdHoursAgo, lastAccessHoursAgo float64, importance float32, accessCount int64, emb []float32) *memory.Unit {
	now := time.Now().UTC()
	u := &memory.Unit{
		CreatedAt:   now.Add(-time.Duration(createdHoursAgo * float64(time.Hour))),
		Importance:  importance,
		AccessCount: accessCount,
		Embedding:   emb,
	}
	if lastAccessHoursAgo >= 0 {
		u.LastAccessedAt = now.Add(-time.Duration(lastAccessHoursAgo * float64(time.Hour)))
	}
	return u
}

func TestRecency_DecaysWithElapsedHours(t *testing.T) {
	now := time.Now().UTC()
	fresh := unitAt(0, 0, 0, 0, nil)
	stale := unitAt(720, 720, 0, 0, nil)

	rFresh := Recency(0.995, now, fresh)
	rStale := Recency(0.995, now, stale)

	assert.Greater(t, rFresh, rStale)
	assert.LessOrEqual(t, rFresh, float32(1.0))
	assert.Greater(t, rStale, float32(0))
}

func TestRecency_PrefersLastAccessedOverCreatedAt(t *testing.T) {
	now := time.Now().UTC()
	u := unitAt(1000, 1, 0, 0, nil) // created long ago but accessed recently
	r := Recency(0.995, now, u)
	assert.Greater(t, r, float32(0.9))
}

func TestAccessFrequency_ClampedAndMonotone(t *testing.T) {
	zero := AccessFrequency(100, &memory.Unit{AccessCount: 0})
	assert.Equal(t, float32(0), zero)

	low := AccessFrequency(100, &memory.Unit{AccessCount: 5})
	high := AccessFrequency(100, &memory.Unit{AccessCount: 1000})
	assert.Greater(t, high, low)
	assert.LessOrEqual(t, high, float32(1))
}

func TestRelevance_ZeroWhenEitherMissing(t *testing.T) {
	assert.Equal(t, float32(0), Relevance(&memory.Unit{Embedding: nil}, []float32{1, 0}))
	assert.Equal(t, float32(0), Relevance(&memory.Unit{Embedding: []float32{1, 0}}, nil))
}

func TestRelevance_PerfectMatchIsOne(t *testing.T) {
	u := &memory.Unit{Embedding: []float32{1, 0, 0}}
	assert.InDelta(t, 1.0, Relevance(u, []float32{1, 0, 0}), 1e-5)
}

func TestImportance_Clamped(t *testing.T) {
	assert.Equal(t, float32(0), Importance(&memory.Unit{Importance: -5}))
	assert.Equal(t, float32(1), Importance(&memory.Unit{Importance: 5}))
	assert.Equal(t, float32(0.5), Importance(&memory.Unit{Importance: 0.5}))
}

func TestService_Score_MonotoneInEachFactor(t *testing.T) {
	s := New(DefaultWeights())
	now := time.Now().UTC()

	base := unitAt(1, 1, 0.2, 1, []float32{0.5, 0.5, 0})
	moreImportant := unitAt(1, 1, 0.9, 1, []float32{0.5, 0.5, 0})

	baseScore := s.Score(now, base, []float32{1, 0, 0})
	importantScore := s.Score(now, moreImportant, []float32{1, 0, 0})

	assert.Greater(t, importantScore.Combined, baseScore.Combined)
}

func TestService_Score_RecencyDrivesGap(t *testing.T) {
	s := New(DefaultWeights())
	now := time.Now().UTC()

	fresh := unitAt(0, 0, 0.3, 0, nil)
	stale := unitAt(720, 720, 0.3, 0, nil)

	freshScore := s.Score(now, fresh, nil)
	staleScore := s.Score(now, stale, nil)

	// S6: gap should be close to alpha * (1 - decay^720) ~= 0.3 * 0.972.
	expectedGap := float32(0.3 * 0.972)
	assert.InDelta(t, expectedGap, freshScore.Combined-staleScore.Combined, 0.01)
}

func TestService_Score_PerTypeDecayOverridesGlobalDecay(t *testing.T) {
	w := DefaultWeights()
	w.PerTypeDecay = DefaultPerTypeDecay()
	s := New(w)
	now := time.Now().UTC()

	episodic := unitAt(200, 200, 0.3, 0, nil)
	episodic.Type = memory.TypeEpisodic
	procedural := unitAt(200, 200, 0.3, 0, nil)
	procedural.Type = memory.TypeProcedural

	episodicScore := s.Score(now, episodic, nil)
	proceduralScore := s.Score(now, procedural, nil)

	// Episodic's faster per-type decay (0.990) should fade harder than
	// procedural's near-flat decay (0.999) over the same elapsed time.
	assert.Less(t, episodicScore.Recency, proceduralScore.Recency)
}

func TestService_Score_UnconfiguredTypeFallsBackToGlobalDecay(t *testing.T) {
	w := DefaultWeights()
	w.PerTypeDecay = map[memory.Type]float32{memory.TypeEpisodic: 0.5}
	s := New(w)
	now := time.Now().UTC()

	u := unitAt(10, 10, 0, 0, nil)
	u.Type = memory.TypeSemantic // absent from the override map

	got := s.Score(now, u, nil)
	want := Recency(w.Decay, now, u)
	assert.InDelta(t, want, got.Recency, 1e-6)
}
