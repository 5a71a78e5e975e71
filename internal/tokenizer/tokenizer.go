// Package tokenizer implements the deterministic term extraction shared by
// BM25Index and the store backends' lexical scan fallback: lowercase, split on non-letter/digit
// boundaries, drop short tokens, and remove a fixed English stop-word set.
// There is no language detection; behavior is identical for every input.
package tokenizer

import "unicode"

// MinTokenLength is the shortest token kept after splitting; shorter runs
// (single letters, bare digits) carry too little lexical signal for BM25.
const MinTokenLength = 2

// stopWords is a fixed English stop-word set, checked after folding to lower
// case so the set itself only needs to hold the canonical lowercase forms.
var stopWords = buildStopWords()

func buildStopWords() map[string]struct{} {
	words := []string{
		"a", "an", "and", "are", "as", "at", "be", "been", "being", "but",
		"by", "can", "could", "did", "do", "does", "doing", "for", "from",
		"had", "has", "have", "having", "he", "her", "here", "hers",
		"him", "his", "how", "i", "if", "in", "into", "is", "it", "its",
		"just", "me", "more", "most", "my", "no", "nor", "not", "of", "on",
		"or", "our", "ours", "out", "over", "own", "same", "she", "should",
		"so", "some", "such", "than", "that", "the", "their", "theirs",
		"them", "then", "there", "these", "they", "this", "those", "through",
		"to", "too", "under", "until", "up", "very", "was", "we", "were",
		"what", "when", "where", "which", "while", "who", "whom", "why",
		"will", "with", "would", "you", "your", "yours",
	}
	m := make(map[string]struct{}, len(words))
	for _, w := range words {
		m[w] = struct{}{}
	}
	return m
}

// Tokenize splits text into lowercase terms: split on runs of non-letter,
// non-digit runes; Unicode-fold case; drop tokens shorter than
// MinTokenLength; drop stop words. Deterministic and side-effect free.
func Tokenize(text string) []string {
	tokens := make([]string, 0, len(text)/5+1)

	var current []rune
	flush := func() {
		if len(current) == 0 {
			return
		}
		tok := foldLower(current)
		current = current[:0]
		if len([]rune(tok)) < MinTokenLength {
			return
		}
		if _, stop := stopWords[tok]; stop {
			return
		}
		tokens = append(tokens, tok)
	}

	for _, r := range text {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			current = append(current, r)
			continue
		}
		flush()
	}
	flush()

	return tokens
}

// foldLower lowercases runes using Unicode case folding rules.
func foldLower(rs []rune) string {
	out := make([]rune, len(rs))
	for i, r := range rs {
		out[i] = unicode.ToLower(r)
	}
	return string(out)
}

// IsStopWord reports whether word (already lowercased) is in the stop set.
// Exposed for callers that want to branch on leading interrogatives before
// tokenization strips them.
func IsStopWord(word string) bool {
	_, ok := stopWords[word]
	return ok
}
