// Package vectormath provides pure, stateless vector arithmetic used by
// relevance scoring and duplicate detection: cosine similarity, dot product,
// L2 norm/distance, averaging, and normalization. All functions are safe for
// concurrent use since they never mutate their inputs (except the explicit
// *InPlace variant).
package vectormath

import (
	"math"

	"github.com/memsearch/memsearch/internal/memerr"
)

// Cosine returns the cosine similarity of a and b in [-1, 1].
// Per contract, it returns 0 when either vector is zero-length or has zero
// norm, rather than dividing by zero. A length mismatch is a Shape error;
// callers are expected to guard against mismatched dimensions upstream, but
// this makes the failure explicit rather than silently wrong.
func Cosine(a, b []float32) (float32, error) {
	if len(a) != len(b) {
		return 0, memerr.ShapeErr("cosine: length mismatch %d vs %d", len(a), len(b))
	}
	if len(a) == 0 {
		return 0, nil
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0, nil
	}

	sim := dot / (math.Sqrt(normA) * math.Sqrt(normB))
	// Clamp for float round-off beyond [-1, 1].
	if sim > 1 {
		sim = 1
	} else if sim < -1 {
		sim = -1
	}
	return float32(sim), nil
}

// Dot returns the dot product of a and b. Mismatched lengths yield a Shape error.
func Dot(a, b []float32) (float32, error) {
	if len(a) != len(b) {
		return 0, memerr.ShapeErr("dot: length mismatch %d vs %d", len(a), len(b))
	}
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return float32(sum), nil
}

// L2Norm returns the Euclidean norm (magnitude) of v.
func L2Norm(v []float32) float32 {
	var sumSquares float64
	for _, x := range v {
		sumSquares += float64(x) * float64(x)
	}
	return float32(math.Sqrt(sumSquares))
}

// L2Distance returns the Euclidean distance between a and b.
func L2Distance(a, b []float32) (float32, error) {
	if len(a) != len(b) {
		return 0, memerr.ShapeErr("l2_distance: length mismatch %d vs %d", len(a), len(b))
	}
	var sumSquares float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sumSquares += d * d
	}
	return float32(math.Sqrt(sumSquares)), nil
}

// Average returns the element-wise mean of vs. All vectors must share the
// same length; an empty input returns a nil vector.
func Average(vs [][]float32) ([]float32, error) {
	if len(vs) == 0 {
		return nil, nil
	}
	dim := len(vs[0])
	sum := make([]float64, dim)
	for _, v := range vs {
		if len(v) != dim {
			return nil, memerr.ShapeErr("average: length mismatch %d vs %d", len(v), dim)
		}
		for i, x := range v {
			sum[i] += float64(x)
		}
	}
	out := make([]float32, dim)
	n := float64(len(vs))
	for i, s := range sum {
		out[i] = float32(s / n)
	}
	return out, nil
}

// Normalize returns a unit-length copy of v. A zero vector is returned
// unchanged (copied) rather than producing NaNs.
func Normalize(v []float32) []float32 {
	out := make([]float32, len(v))
	copy(out, v)
	NormalizeInPlace(out)
	return out
}

// NormalizeInPlace scales v to unit length in place. No-op on a zero vector.
func NormalizeInPlace(v []float32) {
	norm := L2Norm(v)
	if norm == 0 {
		return
	}
	for i := range v {
		v[i] = v[i] / norm
	}
}
