package failover

import "sort"

// FpsSummary is a snapshot of the statistics over every recorded sample.
type FpsSummary struct {
	Count      int     `json:"count"`
	MinFps     float64 `json:"minFps"`
	MaxFps     float64 `json:"maxFps"`
	MedianFps  float64 `json:"medianFps"`
	P95Fps     float64 `json:"p95Fps"`
	AverageFps float64 `json:"averageFps"`
}

// FpsAccumulator records a stream of frame-rate samples in insertion order.
// Not safe for concurrent use; callers serialize per frame.
type FpsAccumulator struct {
	samples []float64
}

func NewFpsAccumulator() *FpsAccumulator {
	return &FpsAccumulator{}
}

// Record appends one sample.
func (a *FpsAccumulator) Record(fps float64) {
	a.samples = append(a.samples, fps)
}

// Count returns the number of recorded samples.
func (a *FpsAccumulator) Count() int { return len(a.samples) }

// Reset discards all samples.
func (a *FpsAccumulator) Reset() {
	a.samples = nil
}

// Summary derives the statistics, or nil when no samples exist. Median and
// p95 are computed over a sorted copy; the live sample order is untouched.
func (a *FpsAccumulator) Summary() *FpsSummary {
	n := len(a.samples)
	if n == 0 {
		return nil
	}
	min, max, sum := a.samples[0], a.samples[0], 0.0
	for _, v := range a.samples {
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
		sum += v
	}
	sorted := append([]float64(nil), a.samples...)
	sort.Float64s(sorted)
	return &FpsSummary{
		Count:      n,
		MinFps:     min,
		MaxFps:     max,
		MedianFps:  percentile(sorted, 50),
		P95Fps:     percentile(sorted, 95),
		AverageFps: sum / float64(n),
	}
}

// percentile picks the nearest-rank value from an ascending slice.
func percentile(sorted []float64, pct float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(float64(len(sorted)-1) * pct / 100.0)
	if idx < 0 {
		idx = 0
	}
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}
