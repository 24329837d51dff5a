package metrics

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMedian(t *testing.T) {
	assert.Equal(t, 0.0, median(nil))
	assert.Equal(t, 3.0, median([]float64{3}))
	assert.Equal(t, 2.0, median([]float64{3, 1, 2}))
	assert.Equal(t, 2.5, median([]float64{4, 1, 3, 2}))
}

func TestQuantile(t *testing.T) {
	// Exclusive interpolation: h = p*(n+1).
	values := []float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}
	// p95 of 10 points: h = 10.45 -> clamped to the maximum.
	assert.Equal(t, 10.0, quantile(values, 0.95))
	// p50 of 10 points: h = 5.5 -> midway between 5 and 6.
	assert.Equal(t, 5.5, quantile(values, 0.5))

	// A longer series interpolates inside the tail.
	long := make([]float64, 100)
	for i := range long {
		long[i] = float64(i + 1)
	}
	// h = 0.95*101 = 95.95 -> 95 + 0.95*(96-95).
	assert.InDelta(t, 95.95, quantile(long, 0.95), 1e-9)

	assert.Equal(t, 7.0, quantile([]float64{7}, 0.95))
	assert.Equal(t, 0.0, quantile(nil, 0.95))
}

func TestStdDev(t *testing.T) {
	assert.Equal(t, 0.0, stdDev([]float64{5, 5, 5}))
	assert.InDelta(t, 2.0, stdDev([]float64{2, 4, 4, 4, 5, 5, 7, 9}), 1e-9)
}
