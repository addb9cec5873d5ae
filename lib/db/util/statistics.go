// This file implements summary statistics and a document size histogram.
//
// The database façade feeds the size of every written document into a
// SizeHistogram and reports its summary in GetInfo, the flat backend
// summarizes its file sizes with NewStats.
package util

import (
	"math"
	"sort"
	"sync"
)

// ----------------------------------------------------------------------------
// Helper functions
// ----------------------------------------------------------------------------

type Stats struct {
	StdDeviation float64 `json:"std_deviation"`
	Min          float64 `json:"min"`
	Max          float64 `json:"max"`
	Mean         float64 `json:"mean"`
	MinMaxRatio  float64 `json:"min_max_ratio"`
}

// NewStats computes the standard deviation, minimum, and maximum values
// from an array of float64 values.
func NewStats(values []float64) Stats {
	if len(values) == 0 {
		return Stats{}
	}

	// initialize min and max with the first value
	min := values[0]
	max := values[0]

	// calculate sum for mean
	var sum float64
	for _, v := range values {
		sum += v

		// update min and max while iterating
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
	}

	// calculate mean
	mean := sum / float64(len(values))

	// calculate sum of squared differences from mean
	var sumSquaredDiffs float64
	for _, v := range values {
		diff := v - mean
		sumSquaredDiffs += diff * diff
	}

	// calculate standard deviation (population formula)
	stdDev := math.Sqrt(sumSquaredDiffs / float64(len(values)))

	// calculate min/max ratio
	var minMaxRatio float64 = 1.0
	if max > 0 {
		minMaxRatio = min / max
	}

	return Stats{
		StdDeviation: stdDev,
		Min:          min,
		Max:          max,
		Mean:         mean,
		MinMaxRatio:  minMaxRatio,
	}
}

type DistributionStats struct {
	Stats
	DistributionQuality float64 `json:"distribution_quality"`
}

// NewDistributionStats rates how evenly values (e.g. objects per namespace)
// are spread. A quality of 1 means all values are equal.
func NewDistributionStats(values []float64) DistributionStats {
	stats := NewStats(values)

	// calculate coefficient of variation
	var cv float64
	if stats.Mean > 0 {
		cv = stats.StdDeviation / stats.Mean
	}

	// distribution quality combines CV and min/max ratio
	// -> lower CV and higher min/max ratio indicate better distribution
	distributionQuality := (1.0-math.Min(1.0, cv))*0.5 + stats.MinMaxRatio*0.5

	return DistributionStats{
		Stats:               stats,
		DistributionQuality: distributionQuality,
	}
}

// ----------------------------------------------------------------------------
// SizeHistogram
// ----------------------------------------------------------------------------

// sizeBoundaries are the upper bounds of the histogram buckets. Documents
// are small JSON objects, the buckets grow by a factor of 4 from 32 bytes
// to 16 MB. Larger documents land in an overflow bucket.
var sizeBoundaries = []int{
	32, 128, 512, 2 << 10, 8 << 10, 32 << 10, 128 << 10, 512 << 10,
	2 << 20, 8 << 20, 16 << 20,
}

// SizeHistogram tracks the size distribution of written documents.
//
// Thread-safe: all methods are safe for concurrent use
type SizeHistogram struct {
	mutex   sync.RWMutex
	buckets []int64 // len(sizeBoundaries)+1, the last one is the overflow
	count   int64
	sum     int64
	min     int
	max     int
}

// SizeSummary is a point in time view of a SizeHistogram
type SizeSummary struct {
	Count   int64 `json:"count"`
	Average int   `json:"average_bytes"`
	Min     int   `json:"min_bytes"`
	Max     int   `json:"max_bytes"`
	Median  int   `json:"median_bytes"`
	P95     int   `json:"p95_bytes"`
}

func NewSizeHistogram() *SizeHistogram {
	return &SizeHistogram{buckets: make([]int64, len(sizeBoundaries)+1)}
}

// AddSample records the size of one document
func (h *SizeHistogram) AddSample(size int) {
	if size < 0 {
		size = 0
	}
	// first bucket whose bound is >= size, len(sizeBoundaries) if none
	idx := sort.SearchInts(sizeBoundaries, size)

	h.mutex.Lock()
	defer h.mutex.Unlock()

	if h.count == 0 || size < h.min {
		h.min = size
	}
	if size > h.max {
		h.max = size
	}
	h.buckets[idx]++
	h.count++
	h.sum += int64(size)
}

// GetCount returns the number of samples
func (h *SizeHistogram) GetCount() int64 {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return h.count
}

// AverageSize returns the exact mean of all samples
func (h *SizeHistogram) AverageSize() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	if h.count == 0 {
		return 0
	}
	return int(h.sum / h.count)
}

// MedianEstimate is GetPercentileEstimate(50)
func (h *SizeHistogram) MedianEstimate() int {
	return h.GetPercentileEstimate(50)
}

// GetPercentileEstimate estimates the given percentile (0-100). The estimate
// is the middle of the bucket the percentile falls into, clamped to the
// observed min and max.
func (h *SizeHistogram) GetPercentileEstimate(percentile int) int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return h.percentileLocked(percentile)
}

// Summary returns count, mean, extremes and the median and p95 estimates
// under one lock
func (h *SizeHistogram) Summary() SizeSummary {
	h.mutex.RLock()
	defer h.mutex.RUnlock()

	s := SizeSummary{Count: h.count, Min: h.min, Max: h.max}
	if h.count > 0 {
		s.Average = int(h.sum / h.count)
	}
	s.Median = h.percentileLocked(50)
	s.P95 = h.percentileLocked(95)
	return s
}

func (h *SizeHistogram) percentileLocked(percentile int) int {
	if h.count == 0 || percentile < 0 || percentile > 100 {
		return 0
	}

	target := int64(math.Ceil(float64(h.count) * float64(percentile) / 100.0))
	target = max(target, 1)

	var cumulative int64
	for i, n := range h.buckets {
		cumulative += n
		if cumulative < target {
			continue
		}

		var estimate int
		switch {
		case i == 0:
			estimate = sizeBoundaries[0] / 2
		case i < len(sizeBoundaries):
			estimate = (sizeBoundaries[i-1] + sizeBoundaries[i]) / 2
		default:
			estimate = h.max
		}
		return min(max(estimate, h.min), h.max)
	}
	return h.max
}
