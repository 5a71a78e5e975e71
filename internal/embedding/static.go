package embedding

import (
	"context"
	"hash/fnv"
	"math"
	"regexp"
	"strings"
	"unicode"
)

// StaticProvider generates deterministic hash-based embeddings. It needs no
// network and no model weights, so it never fails and never suspends —
// useful as the reference provider for tests and for a fully offline
// deployment where EmbeddingProvider is otherwise unavailable.
type StaticProvider struct {
	dims int
}

// NewStaticProvider builds a StaticProvider at the given dimension (0
// defaults to 768, matching a typical sentence-embedding model's width so
// collections can be swapped to a real provider without re-dimensioning).
func NewStaticProvider(dims int) *StaticProvider {
	if dims <= 0 {
		dims = 768
	}
	return &StaticProvider{dims: dims}
}

const (
	tokenWeight = 0.7
	ngramWeight = 0.3
	ngramSize   = 3
)

var tokenRegex = regexp.MustCompile(`[a-zA-Z0-9]+`)

var stopWords = map[string]bool{
	"the": true, "a": true, "an": true, "is": true, "are": true, "was": true,
	"were": true, "be": true, "been": true, "to": true, "of": true, "in": true,
	"on": true, "at": true, "for": true, "with": true, "and": true, "or": true,
	"this": true, "that": true, "it": true, "as": true,
}

func (p *StaticProvider) Embed(_ context.Context, text string) ([]float32, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return make([]float32, p.dims), nil
	}
	return normalizeLocal(p.generateVector(trimmed)), nil
}

func (p *StaticProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, err := p.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (p *StaticProvider) Dimensions() int { return p.dims }
func (p *StaticProvider) MaxTokens() int  { return 0 }

func (p *StaticProvider) generateVector(text string) []float32 {
	vector := make([]float32, p.dims)

	for _, tok := range tokenize(text) {
		if stopWords[tok] {
			continue
		}
		vector[hashToIndex(tok, p.dims)] += tokenWeight
	}

	normalized := normalizeForNgrams(text)
	for _, ng := range extractNgrams(normalized, ngramSize) {
		vector[hashToIndex(ng, p.dims)] += ngramWeight
	}

	return vector
}

func tokenize(text string) []string {
	var tokens []string
	for _, word := range tokenRegex.FindAllString(text, -1) {
		for _, t := range splitCamelCase(word) {
			lower := strings.ToLower(t)
			if lower != "" {
				tokens = append(tokens, lower)
			}
		}
	}
	return tokens
}

func splitCamelCase(s string) []string {
	if s == "" {
		return []string{}
	}
	var result []string
	var current strings.Builder
	runes := []rune(s)
	for i, r := range runes {
		if i > 0 && unicode.IsUpper(r) {
			prevLower := unicode.IsLower(runes[i-1])
			nextLower := i+1 < len(runes) && unicode.IsLower(runes[i+1])
			if prevLower || nextLower {
				if current.Len() > 0 {
					result = append(result, current.String())
					current.Reset()
				}
			}
		}
		current.WriteRune(r)
	}
	if current.Len() > 0 {
		result = append(result, current.String())
	}
	return result
}

func normalizeForNgrams(text string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(text) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func extractNgrams(text string, n int) []string {
	if len(text) < n {
		return []string{}
	}
	out := make([]string, 0, len(text)-n+1)
	for i := 0; i <= len(text)-n; i++ {
		out = append(out, text[i:i+n])
	}
	return out
}

func hashToIndex(s string, size int) int {
	h := fnv.New64()
	_, _ = h.Write([]byte(s))
	return int(h.Sum64() % uint64(size))
}

func normalizeLocal(v []float32) []float32 {
	var sumSquares float64
	for _, x := range v {
		sumSquares += float64(x) * float64(x)
	}
	if sumSquares == 0 {
		return v
	}
	scale := 1.0 / math.Sqrt(sumSquares)
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(float64(x) * scale)
	}
	return out
}
