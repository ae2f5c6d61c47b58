// Package mathutil provides small statistical helpers used by the report
// metric computations.
package mathutil

import (
	"math"
	"sort"
)

// Mean calculates the arithmetic mean of values. Empty input yields 0.
func Mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}

	sum := 0.0
	for _, v := range values {
		sum += v
	}

	return sum / float64(len(values))
}

// Median calculates the median of values. Empty input yields 0.
func Median(values []float64) float64 {
	return Percentile(values, 50)
}

// Percentile calculates the p-th percentile (0-100) of values using
// nearest-rank on a sorted copy. Empty input yields 0.
func Percentile(values []float64, p float64) float64 {
	if len(values) == 0 {
		return 0
	}

	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	if p <= 0 {
		return sorted[0]
	}

	if p >= 100 {
		return sorted[len(sorted)-1]
	}

	rank := int(math.Ceil(p/100*float64(len(sorted)))) - 1
	if rank < 0 {
		rank = 0
	}

	return sorted[rank]
}

// StdDev calculates the population standard deviation of values.
// Fewer than two samples yield 0.
func StdDev(values []float64) float64 {
	if len(values) < 2 {
		return 0
	}

	mean := Mean(values)

	sumSq := 0.0
	for _, v := range values {
		d := v - mean
		sumSq += d * d
	}

	return math.Sqrt(sumSq / float64(len(values)))
}

// LinearSlope fits a least-squares line through (0, values[0]),
// (1, values[1]), ... and returns its slope. Fewer than two samples yield 0.
func LinearSlope(values []float64) float64 {
	n := float64(len(values))
	if n < 2 {
		return 0
	}

	var sumX, sumY, sumXY, sumXX float64

	for i, y := range values {
		x := float64(i)
		sumX += x
		sumY += y
		sumXY += x * y
		sumXX += x * x
	}

	denom := n*sumXX - sumX*sumX
	if denom == 0 {
		return 0
	}

	return (n*sumXY - sumX*sumY) / denom
}

// WeightedMean calculates the mean of values with the given weights.
// Lengths must match; mismatched or empty input yields 0.
func WeightedMean(values, weights []float64) float64 {
	if len(values) == 0 || len(values) != len(weights) {
		return 0
	}

	var sum, weightSum float64

	for i, v := range values {
		sum += v * weights[i]
		weightSum += weights[i]
	}

	if weightSum == 0 {
		return 0
	}

	return sum / weightSum
}

// Clamp01 clamps v to the [0, 1] interval.
func Clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}

	if v > 1 {
		return 1
	}

	return v
}
