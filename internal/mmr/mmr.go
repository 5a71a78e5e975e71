// Package mmr implements Maximal Marginal Relevance reranking, shared by
// HybridSearch and ContextOptimizer.
package mmr

import (
	"github.com/memsearch/memsearch/internal/memory"
	"github.com/memsearch/memsearch/internal/vectormath"
)

// Candidate is one item MMR can select, carrying the unit, its fused/base
// relevance score, and (when available) its embedding for diversity
// comparisons.
type Candidate struct {
	Unit  *memory.Unit
	Score float64
}

// Select runs MMR with parameter lambda over candidates (assumed already
// sorted by Score descending) and returns up to limit selections. At each
// step it picks the candidate maximizing
//
//	lambda*score - (1-lambda)*max_sim_to_selected
//
// where max_sim_to_selected is the highest cosine similarity to any
// already-selected embedding (0 when the candidate or every selected item
// so far lacks an embedding). The first pick is always the highest-scoring
// candidate, so the top-ranked result is always kept.
func Select(candidates []Candidate, lambda float64, limit int) []Candidate {
	if limit <= 0 || len(candidates) == 0 {
		return nil
	}
	remaining := append([]Candidate(nil), candidates...)
	selected := make([]Candidate, 0, limit)

	selected = append(selected, remaining[0])
	remaining = remaining[1:]

	for len(selected) < limit && len(remaining) > 0 {
		bestIdx := -1
		var bestValue float64
		for i, c := range remaining {
			maxSim := maxSimilarity(c.Unit, selected)
			value := lambda*c.Score - (1-lambda)*maxSim
			if bestIdx == -1 || value > bestValue || (value == bestValue && c.Unit.ID < remaining[bestIdx].Unit.ID) {
				bestIdx = i
				bestValue = value
			}
		}
		selected = append(selected, remaining[bestIdx])
		remaining = append(remaining[:bestIdx], remaining[bestIdx+1:]...)
	}
	return selected
}

func maxSimilarity(u *memory.Unit, selected []Candidate) float64 {
	if u.Embedding == nil {
		return 0
	}
	var max float64
	for _, s := range selected {
		if s.Unit.Embedding == nil {
			continue
		}
		sim, err := vectormath.Cosine(u.Embedding, s.Unit.Embedding)
		if err != nil {
			continue
		}
		if float64(sim) > max {
			max = float64(sim)
		}
	}
	return max
}
