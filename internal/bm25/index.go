// Package bm25 implements an in-memory inverted index over memory content,
// scored with Okapi BM25. It holds only ids and postings — never MemoryUnit
// bodies — consistent with the ownership rule that MemoryStore is the sole
// owner of persistent data (see internal/store).
package bm25

import (
	"math"
	"sort"
	"sync"

	"github.com/memsearch/memsearch/internal/tokenizer"
)

// Okapi BM25 parameters.
const (
	k1 = 1.2
	b  = 0.75
)

// posting is a single (doc, term-frequency) pair in a term's posting list.
type posting struct {
	id string
	tf int
}

// Index is a thread-safe in-memory BM25 inverted index, keyed by the same
// opaque string ids MemoryStore assigns. Writers must hold the exclusive
// lock (Add/Remove); Search only needs the read lock, so multiple searches
// can run concurrently with each other.
type Index struct {
	mu sync.RWMutex

	postings map[string][]posting // term -> postings, sorted by id
	docLen   map[string]int       // id -> token count
	content  map[string]bool      // id -> present (for remove/exists checks)

	totalLen int // sum of all doc lengths, for avgDocLen
}

// New creates an empty BM25 index.
func New() *Index {
	return &Index{
		postings: make(map[string][]posting),
		docLen:   make(map[string]int),
		content:  make(map[string]bool),
	}
}

// Add tokenizes content and (re)indexes it under id. If id is already
// present its old postings are removed first, so Add is idempotent for a
// given (id, content) pair and safe to call on content updates.
func (idx *Index) Add(id string, content string) {
	tokens := tokenizer.Tokenize(content)

	idx.mu.Lock()
	defer idx.mu.Unlock()

	idx.removeLocked(id)

	tf := make(map[string]int, len(tokens))
	for _, t := range tokens {
		tf[t]++
	}
	for term, count := range tf {
		idx.postings[term] = insertSorted(idx.postings[term], posting{id: id, tf: count})
	}
	idx.docLen[id] = len(tokens)
	idx.content[id] = true
	idx.totalLen += len(tokens)
}

// Remove deletes all postings and the length entry for id. A no-op if id
// was never indexed.
func (idx *Index) Remove(id string) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.removeLocked(id)
}

func (idx *Index) removeLocked(id string) {
	if !idx.content[id] {
		return
	}
	for term, list := range idx.postings {
		filtered := list[:0]
		for _, p := range list {
			if p.id != id {
				filtered = append(filtered, p)
			}
		}
		if len(filtered) == 0 {
			delete(idx.postings, term)
		} else {
			idx.postings[term] = filtered
		}
	}
	idx.totalLen -= idx.docLen[id]
	delete(idx.docLen, id)
	delete(idx.content, id)
}

// Result is a single scored hit from Search.
type Result struct {
	ID    string
	Score float64
}

// Search tokenizes query (duplicate tokens collapse into one term), scores
// every document that shares at least one term with Okapi BM25, and returns
// the top-k by score descending, ties broken by ascending id for
// determinism. An empty query or empty index returns an empty (non-nil)
// slice — this is never a fatal condition.
func (idx *Index) Search(query string, k int) []Result {
	terms := uniqueTerms(tokenizer.Tokenize(query))

	idx.mu.RLock()
	defer idx.mu.RUnlock()

	if len(terms) == 0 || len(idx.content) == 0 {
		return []Result{}
	}

	n := float64(len(idx.content))
	avgDocLen := float64(idx.totalLen) / n

	scores := make(map[string]float64)
	for _, term := range terms {
		list := idx.postings[term]
		if len(list) == 0 {
			continue
		}
		df := float64(len(list))
		idf := math.Log((n-df+0.5)/(df+0.5) + 1)
		for _, p := range list {
			dl := float64(idx.docLen[p.id])
			tf := float64(p.tf)
			denom := tf + k1*(1-b+b*dl/avgDocLen)
			scores[p.id] += idf * (tf * (k1 + 1) / denom)
		}
	}

	results := make([]Result, 0, len(scores))
	for id, score := range scores {
		results = append(results, Result{ID: id, Score: score})
	}
	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].ID < results[j].ID
	})

	if k > 0 && len(results) > k {
		results = results[:k]
	}
	return results
}

// Len reports the number of currently indexed documents.
func (idx *Index) Len() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.content)
}

func insertSorted(list []posting, p posting) []posting {
	i := sort.Search(len(list), func(i int) bool { return list[i].id >= p.id })
	list = append(list, posting{})
	copy(list[i+1:], list[i:])
	list[i] = p
	return list
}

func uniqueTerms(tokens []string) []string {
	seen := make(map[string]struct{}, len(tokens))
	out := make([]string, 0, len(tokens))
	for _, t := range tokens {
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}
