package mmr

import (
	"testing"

	"github.com/memsearch/memsearch/internal/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func cand(id string, score float64, emb []float32) Candidate {
	return Candidate{Unit: &memory.Unit{ID: id, Embedding: emb}, Score: score}
}

// S5: five near-identical units plus one distinct one; with MMR the
// distinct unit should make it into a k=3 selection even though it scores
// lowest on raw relevance, because it has no similarity overlap with the
// others.
func TestSelect_DiversityPullsInDistinctCandidate(t *testing.T) {
	candidates := []Candidate{
		cand("a", 0.95, []float32{1, 0, 0}),
		cand("b", 0.94, []float32{0.99, 0.01, 0}),
		cand("c", 0.93, []float32{0.98, 0.02, 0}),
		cand("d", 0.92, []float32{0.97, 0.03, 0}),
		cand("e", 0.91, []float32{0.96, 0.04, 0}),
		cand("distinct", 0.60, []float32{0, 1, 0}),
	}

	selected := Select(candidates, 0.3, 3)
	require.Len(t, selected, 3)

	var ids []string
	for _, s := range selected {
		ids = append(ids, s.Unit.ID)
	}
	assert.Contains(t, ids, "distinct")
	assert.Equal(t, "a", ids[0], "first pick is always the top-scoring candidate")
}

func TestSelect_WithoutDiversityWeightKeepsTopScores(t *testing.T) {
	candidates := []Candidate{
		cand("a", 0.95, []float32{1, 0, 0}),
		cand("b", 0.94, []float32{0.99, 0.01, 0}),
		cand("distinct", 0.60, []float32{0, 1, 0}),
	}

	selected := Select(candidates, 1.0, 2) // lambda=1 ignores diversity entirely
	require.Len(t, selected, 2)
	assert.Equal(t, "a", selected[0].Unit.ID)
	assert.Equal(t, "b", selected[1].Unit.ID)
}

func TestSelect_LimitExceedsCandidates(t *testing.T) {
	candidates := []Candidate{cand("a", 1, []float32{1, 0}), cand("b", 0.5, []float32{0, 1})}
	selected := Select(candidates, 0.5, 10)
	assert.Len(t, selected, 2)
}

func TestSelect_EmptyInput(t *testing.T) {
	assert.Nil(t, Select(nil, 0.5, 3))
	assert.Nil(t, Select([]Candidate{cand("a", 1, nil)}, 0.5, 0))
}
