package mathutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMean(t *testing.T) {
	t.Parallel()

	assert.InDelta(t, 2.0, Mean([]float64{1, 2, 3}), 1e-9)
	assert.Zero(t, Mean(nil))
}

func TestMedian(t *testing.T) {
	t.Parallel()

	assert.InDelta(t, 2, Median([]float64{3, 1, 2}), 1e-9)
	assert.InDelta(t, 2, Median([]float64{1, 2, 3, 4}), 1e-9)
	assert.Zero(t, Median(nil))
}

func TestPercentile(t *testing.T) {
	t.Parallel()

	values := []float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}

	assert.InDelta(t, 9, Percentile(values, 90), 1e-9)
	assert.InDelta(t, 1, Percentile(values, 0), 1e-9)
	assert.InDelta(t, 10, Percentile(values, 100), 1e-9)
}

func TestStdDev(t *testing.T) {
	t.Parallel()

	assert.Zero(t, StdDev([]float64{5}))
	assert.InDelta(t, 2.0, StdDev([]float64{2, 4, 4, 4, 5, 5, 7, 9}), 1e-9)
}

func TestLinearSlope(t *testing.T) {
	t.Parallel()

	assert.InDelta(t, 2.0, LinearSlope([]float64{0, 2, 4, 6}), 1e-9)
	assert.InDelta(t, -1.0, LinearSlope([]float64{3, 2, 1}), 1e-9)
	assert.Zero(t, LinearSlope([]float64{7}))
}

func TestWeightedMean(t *testing.T) {
	t.Parallel()

	// Heavier weight on the first value pulls the mean toward it.
	got := WeightedMean([]float64{10, 20}, []float64{3, 1})
	assert.InDelta(t, 12.5, got, 1e-9)

	assert.Zero(t, WeightedMean([]float64{1}, []float64{1, 2}))
	assert.Zero(t, WeightedMean(nil, nil))
}

func TestClamp01(t *testing.T) {
	t.Parallel()

	assert.Zero(t, Clamp01(-0.5))
	assert.InDelta(t, 0.5, Clamp01(0.5), 1e-9)
	assert.InDelta(t, 1.0, Clamp01(1.5), 1e-9)
}
