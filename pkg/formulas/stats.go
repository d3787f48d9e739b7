// Package formulas collects the small numeric helpers shared by the signal
// pipeline and the statistics engine.
package formulas

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

// Mean calculates the arithmetic mean of a slice of float64 values.
func Mean(data []float64) float64 {
	if len(data) == 0 {
		return 0
	}
	return stat.Mean(data, nil)
}

// StdDev calculates the population standard deviation of data. Return
// series are treated as the full population, matching how the risk limits
// are calibrated.
func StdDev(data []float64) float64 {
	if len(data) == 0 {
		return 0
	}
	return math.Sqrt(stat.PopVariance(data, nil))
}

// InterpolateLinear maps x from [xMin, xMax] onto [yMin, yMax], clamping x
// into the source range first.
func InterpolateLinear(x, xMin, xMax, yMin, yMax float64) float64 {
	x = math.Max(xMin, math.Min(xMax, x))
	return (yMax-yMin)*(x-xMin)/(xMax-xMin) + yMin
}

// Percentile picks the value at probability p from an already sorted slice
// using nearest-rank indexing.
func Percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return math.NaN()
	}
	return sorted[int(p*float64(len(sorted)-1))]
}
