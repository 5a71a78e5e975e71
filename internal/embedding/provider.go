// Package embedding resolves natural-language text to fixed-dimension
// vectors. Model inference itself is an external collaborator — this
// package supplies the client-side contract plus two concrete providers: a
// hash-based deterministic provider (tests, offline demos) and an HTTP
// provider for a local Ollama-compatible embedding server, each wrapped
// with retry/circuit-breaker resilience and concurrency caps.
package embedding

import (
	"context"

	"github.com/memsearch/memsearch/internal/memerr"
)

// Provider is the embedding-provider contract: embed a single text or a
// batch, reporting the vector dimension and (optionally) a max input token
// count. Implementations need not normalize — callers normalize for
// cosine, since providers may return unnormalized vectors.
type Provider interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
	MaxTokens() int
}

// Config bundles the tunables of an embedding-provider client.
type Config struct {
	Provider   string // "ollama" | "static"
	Endpoint   string
	Model      string
	Dimensions int
	BatchSize  int
	TimeoutS   int
	MaxFanOut  int // concurrent in-flight batch requests; 1 for local single-inference backends
}

// DefaultConfig mirrors the config-file defaults.
func DefaultConfig() Config {
	return Config{
		Provider:   "static",
		Model:      "static-768",
		Dimensions: 768,
		BatchSize:  32,
		TimeoutS:   60,
		MaxFanOut:  1,
	}
}

// validateBatch enforces the backpressure rule: oversized batches are
// rejected with InvalidArgument rather than silently split across cache
// keys (splitting would change which cache key each text lands under).
func validateBatch(texts []string, batchSize int) error {
	if batchSize <= 0 {
		return nil
	}
	if len(texts) > batchSize {
		return memerr.Invalid("batch of %d texts exceeds configured batch size %d", len(texts), batchSize)
	}
	return nil
}

// chunk splits texts into groups of at most size, preserving order, for
// upstreams with a smaller native batch limit; no provider in this package
// calls it. Chunking does NOT change which cache key a given text hashes
// to; embedcache keys purely
// on (provider, model, text).
func chunk(texts []string, size int) [][]string {
	if size <= 0 || len(texts) <= size {
		return [][]string{texts}
	}
	var out [][]string
	for i := 0; i < len(texts); i += size {
		end := i + size
		if end > len(texts) {
			end = len(texts)
		}
		out = append(out, texts[i:end])
	}
	return out
}
