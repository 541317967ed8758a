// Package stats holds the small amount of descriptive statistics the app
// shows next to attribution results.
package stats

import (
	"math"
	"sort"
)

// Description summarises a numeric column.
type Description struct {
	Count  int
	Mean   float64
	Std    float64
	Min    float64
	Median float64
	Max    float64
}

// Describe computes count, mean, sample standard deviation, min, median and
// max. An empty input yields a zero Description.
func Describe(values []float64) Description {
	n := len(values)
	if n == 0 {
		return Description{}
	}

	sorted := make([]float64, n)
	copy(sorted, values)
	sort.Float64s(sorted)

	sum := 0.0
	for _, v := range sorted {
		sum += v
	}
	mean := sum / float64(n)

	std := 0.0
	if n > 1 {
		ss := 0.0
		for _, v := range sorted {
			ss += (v - mean) * (v - mean)
		}
		std = math.Sqrt(ss / float64(n-1))
	}

	median := sorted[n/2]
	if n%2 == 0 {
		median = (sorted[n/2-1] + sorted[n/2]) / 2
	}

	return Description{
		Count:  n,
		Mean:   mean,
		Std:    std,
		Min:    sorted[0],
		Median: median,
		Max:    sorted[n-1],
	}
}
