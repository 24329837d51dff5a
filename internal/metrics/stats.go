package metrics

import (
	"math"
	"sort"
)

// sum returns the total of the values
func sum(values []float64) float64 {
	total := 0.0
	for _, v := range values {
		total += v
	}
	return total
}

// mean returns the arithmetic mean; 0 for an empty slice
func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	return sum(values) / float64(len(values))
}

// median returns the middle value, interpolating for even counts
func median(values []float64) float64 {
	n := len(values)
	if n == 0 {
		return 0
	}
	sorted := sortedCopy(values)
	mid := n / 2
	if n%2 == 1 {
		return sorted[mid]
	}
	return (sorted[mid-1] + sorted[mid]) / 2
}

// minOf returns the smallest value
func minOf(values []float64) float64 {
	lowest := values[0]
	for _, v := range values[1:] {
		if v < lowest {
			lowest = v
		}
	}
	return lowest
}

// maxOf returns the largest value
func maxOf(values []float64) float64 {
	highest := values[0]
	for _, v := range values[1:] {
		if v > highest {
			highest = v
		}
	}
	return highest
}

// stdDev returns the population standard deviation
func stdDev(values []float64) float64 {
	n := len(values)
	if n == 0 {
		return 0
	}
	avg := mean(values)
	variance := 0.0
	for _, v := range values {
		diff := v - avg
		variance += diff * diff
	}
	return math.Sqrt(variance / float64(n))
}

// quantile returns the p-quantile (0 < p < 1) using exclusive interpolation:
// the cut point sits at h = p*(n+1) in the sorted series, interpolating
// linearly between neighbors and clamping to the extremes.
func quantile(values []float64, p float64) float64 {
	n := len(values)
	if n == 0 {
		return 0
	}
	if n == 1 {
		return values[0]
	}
	sorted := sortedCopy(values)
	h := p * float64(n+1)
	j := int(math.Floor(h))
	if j < 1 {
		return sorted[0]
	}
	if j >= n {
		return sorted[n-1]
	}
	g := h - float64(j)
	return sorted[j-1] + g*(sorted[j]-sorted[j-1])
}

func sortedCopy(values []float64) []float64 {
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)
	return sorted
}
