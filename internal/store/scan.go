package store

import (
	"sort"
	"strings"

	"github.com/memsearch/memsearch/internal/memory"
	"github.com/memsearch/memsearch/internal/tokenizer"
)

// sortUnitsNewestFirst orders units by created_at descending, id ascending
// on ties, the enumeration order List guarantees.
func sortUnitsNewestFirst(units []*memory.Unit) {
	sort.Slice(units, func(i, j int) bool {
		if !units[i].CreatedAt.Equal(units[j].CreatedAt) {
			return units[i].CreatedAt.After(units[j].CreatedAt)
		}
		return units[i].ID < units[j].ID
	})
}

// tokenizeForScan tokenizes query with the shared tokenizer so the
// in-process backend's lexical fallback uses the same term normalization as
// BM25Index.
func tokenizeForScan(query string) []string {
	return tokenizer.Tokenize(query)
}

// matchCount returns how many of terms occur in unit's content, topics, or
// entities combined — a crude but deterministic raw score standing in for a
// real FTS5 BM25 rank in the in-process backend.
func matchCount(u *memory.Unit, terms []string) int {
	haystack := strings.ToLower(u.Content + " " + strings.Join(u.Topics, " ") + " " + strings.Join(u.Entities, " "))
	count := 0
	for _, term := range terms {
		count += strings.Count(haystack, term)
	}
	return count
}
