package vectormath

import (
	"math"
	"testing"

	"github.com/memsearch/memsearch/internal/memerr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// cosine(v, v) must land in [1-1e-5, 1] after normalization.
func TestCosine_SelfSimilarityIsApproximatelyOne(t *testing.T) {
	v := []float32{0.3, -1.2, 4.5, 0.0, 7.1}
	sim, err := Cosine(v, v)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, float64(sim), 1-1e-5)
	assert.LessOrEqual(t, float64(sim), 1.0)
}

func TestCosine_OrthogonalVectorsAreZero(t *testing.T) {
	sim, err := Cosine([]float32{1, 0}, []float32{0, 1})
	require.NoError(t, err)
	assert.InDelta(t, 0, sim, 1e-6)
}

func TestCosine_OppositeVectorsAreMinusOne(t *testing.T) {
	sim, err := Cosine([]float32{1, 0}, []float32{-1, 0})
	require.NoError(t, err)
	assert.InDelta(t, -1, sim, 1e-6)
}

func TestCosine_ZeroVectorReturnsZeroNotNaN(t *testing.T) {
	sim, err := Cosine([]float32{0, 0, 0}, []float32{1, 2, 3})
	require.NoError(t, err)
	assert.Equal(t, float32(0), sim)
	assert.False(t, math.IsNaN(float64(sim)))
}

func TestCosine_EmptyVectorsReturnZero(t *testing.T) {
	sim, err := Cosine(nil, nil)
	require.NoError(t, err)
	assert.Equal(t, float32(0), sim)
}

func TestCosine_LengthMismatchIsShapeError(t *testing.T) {
	_, err := Cosine([]float32{1, 2}, []float32{1, 2, 3})
	require.Error(t, err)
	assert.Equal(t, memerr.Shape, memerr.KindOf(err))
}

func TestDot(t *testing.T) {
	d, err := Dot([]float32{1, 2, 3}, []float32{4, 5, 6})
	require.NoError(t, err)
	assert.Equal(t, float32(32), d)
}

func TestDot_LengthMismatch(t *testing.T) {
	_, err := Dot([]float32{1}, []float32{1, 2})
	require.Error(t, err)
	assert.Equal(t, memerr.Shape, memerr.KindOf(err))
}

func TestL2Norm(t *testing.T) {
	assert.InDelta(t, 5.0, L2Norm([]float32{3, 4}), 1e-6)
	assert.Equal(t, float32(0), L2Norm(nil))
}

func TestL2Distance(t *testing.T) {
	d, err := L2Distance([]float32{0, 0}, []float32{3, 4})
	require.NoError(t, err)
	assert.InDelta(t, 5.0, d, 1e-6)
}

func TestL2Distance_LengthMismatch(t *testing.T) {
	_, err := L2Distance([]float32{1}, []float32{1, 2})
	require.Error(t, err)
	assert.Equal(t, memerr.Shape, memerr.KindOf(err))
}

func TestAverage(t *testing.T) {
	avg, err := Average([][]float32{{1, 1}, {3, 3}})
	require.NoError(t, err)
	assert.Equal(t, []float32{2, 2}, avg)
}

func TestAverage_EmptyInputReturnsNil(t *testing.T) {
	avg, err := Average(nil)
	require.NoError(t, err)
	assert.Nil(t, avg)
}

func TestAverage_LengthMismatch(t *testing.T) {
	_, err := Average([][]float32{{1, 2}, {1, 2, 3}})
	require.Error(t, err)
	assert.Equal(t, memerr.Shape, memerr.KindOf(err))
}

func TestNormalize_ProducesUnitLength(t *testing.T) {
	n := Normalize([]float32{3, 4})
	assert.InDelta(t, 1.0, L2Norm(n), 1e-6)
	assert.InDelta(t, 0.6, n[0], 1e-6)
	assert.InDelta(t, 0.8, n[1], 1e-6)
}

func TestNormalize_ZeroVectorIsUnchanged(t *testing.T) {
	n := Normalize([]float32{0, 0, 0})
	assert.Equal(t, []float32{0, 0, 0}, n)
}

func TestNormalize_DoesNotMutateInput(t *testing.T) {
	v := []float32{3, 4}
	_ = Normalize(v)
	assert.Equal(t, []float32{3, 4}, v)
}

func TestNormalizeInPlace(t *testing.T) {
	v := []float32{3, 4}
	NormalizeInPlace(v)
	assert.InDelta(t, 1.0, L2Norm(v), 1e-6)
}
