package dedup

import (
	"sort"

	"github.com/memsearch/memsearch/internal/memory"
)

// Strategy picks which attributes survive a merge between an existing unit
// and an incoming candidate.
type Strategy string

const (
	KeepOldest            Strategy = "KEEP_OLDEST"
	KeepNewest            Strategy = "KEEP_NEWEST"
	KeepMostAccessed      Strategy = "KEEP_MOST_ACCESSED"
	KeepHighestImportance Strategy = "KEEP_HIGHEST_IMPORTANCE"
	CombineContent        Strategy = "COMBINE_CONTENT"
)

// Merge combines existing and incoming into one surviving unit:
// the surviving unit's id is always existing's id, access counts sum, the
// maximum importance wins, topics/entities/metadata union, and content is
// chosen (or combined) per strategy. ContentChanged reports whether the
// caller must recompute content-hash and re-embed.
func Merge(existing, incoming *memory.Unit, strategy Strategy) (merged *memory.Unit, contentChanged bool) {
	out := *existing
	out.ID = existing.ID
	out.AccessCount = existing.AccessCount + incoming.AccessCount
	if incoming.Importance > existing.Importance {
		out.Importance = incoming.Importance
	} else {
		out.Importance = existing.Importance
	}
	out.Topics = unionStrings(existing.Topics, incoming.Topics)
	out.Entities = unionStrings(existing.Entities, incoming.Entities)
	out.Metadata = unionMetadata(existing.Metadata, incoming.Metadata)

	switch strategy {
	case KeepNewest:
		if incoming.CreatedAt.After(existing.CreatedAt) {
			out.Content = incoming.Content
		}
	case KeepMostAccessed:
		if incoming.AccessCount > existing.AccessCount {
			out.Content = incoming.Content
		}
	case KeepHighestImportance:
		if incoming.Importance > existing.Importance {
			out.Content = incoming.Content
		}
	case CombineContent:
		if incoming.Content != existing.Content {
			out.Content = existing.Content + "\n" + incoming.Content
		}
	case KeepOldest:
		// out.Content already holds existing.Content.
	}

	return &out, out.Content != existing.Content
}

func unionStrings(a, b []string) []string {
	seen := make(map[string]bool, len(a)+len(b))
	out := make([]string, 0, len(a)+len(b))
	for _, s := range append(append([]string{}, a...), b...) {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	sort.Strings(out)
	return out
}

func unionMetadata(a, b map[string]string) map[string]string {
	out := make(map[string]string, len(a)+len(b))
	for k, v := range a {
		out[k] = v
	}
	for k, v := range b {
		out[k] = v // incoming wins on key collision
	}
	return out
}
