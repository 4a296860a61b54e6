// Package metrics implements the Metrics Engine: bounded per-container
// time series, rolling performance stats, trend analysis via linear
// regression, threshold-based alerts, and recommendations, plus a
// Prometheus exporter for ambient observability. Grounded on
// original_source's metrics.rs (TimeSeries/MetricsCollector) and
// warren's pkg/metrics (Prometheus registration, periodic Collector
// sweep idiom).
package metrics

import (
	"math"
	"time"
)

// DefaultMaxSamples and DefaultRetention mirror metrics.rs's
// TimeSeries::new(1000, 24) call sites in register_container.
const (
	DefaultMaxSamples = 1000
	DefaultRetention  = 24 * time.Hour
)

// Sample is one observation in a TimeSeries.
type Sample struct {
	Timestamp time.Time
	Value     float64
	Metadata  map[string]string
}

// TimeSeries is a bounded ring of samples: whichever of max-sample-count
// or retention-duration is tighter wins, matching metrics.rs's
// add_sample (trim by count, then by age).
type TimeSeries struct {
	MaxSamples int
	Retention  time.Duration
	samples    []Sample
}

// NewTimeSeries creates a series bounded by maxSamples and retention
// (<=0 uses the package defaults).
func NewTimeSeries(maxSamples int, retention time.Duration) *TimeSeries {
	if maxSamples <= 0 {
		maxSamples = DefaultMaxSamples
	}
	if retention <= 0 {
		retention = DefaultRetention
	}
	return &TimeSeries{MaxSamples: maxSamples, Retention: retention}
}

// Add appends a sample, then trims by count and then by age.
func (ts *TimeSeries) Add(value float64, metadata map[string]string) {
	ts.samples = append(ts.samples, Sample{Timestamp: time.Now(), Value: value, Metadata: metadata})
	if len(ts.samples) > ts.MaxSamples {
		ts.samples = ts.samples[len(ts.samples)-ts.MaxSamples:]
	}
	ts.cleanupOld()
}

func (ts *TimeSeries) cleanupOld() {
	cutoff := time.Now().Add(-ts.Retention)
	i := 0
	for i < len(ts.samples) && ts.samples[i].Timestamp.Before(cutoff) {
		i++
	}
	if i > 0 {
		ts.samples = ts.samples[i:]
	}
}

// Samples returns a copy of the current retained samples, oldest first.
func (ts *TimeSeries) Samples() []Sample {
	out := make([]Sample, len(ts.samples))
	copy(out, ts.samples)
	return out
}

// Average returns the mean value over the last window, or 0 if there
// are no samples in that window.
func (ts *TimeSeries) Average(window time.Duration) float64 {
	cutoff := time.Now().Add(-window)
	sum, n := 0.0, 0
	for _, s := range ts.samples {
		if s.Timestamp.After(cutoff) {
			sum += s.Value
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

// DetectAnomalies flags samples more than thresholdMultiplier standard
// deviations above the 60-minute mean, matching metrics.rs's
// detect_anomalies. Returns nil if fewer than 10 samples are retained.
func (ts *TimeSeries) DetectAnomalies(thresholdMultiplier float64) []Sample {
	if len(ts.samples) < 10 {
		return nil
	}
	mean := ts.Average(60 * time.Minute)

	var variance float64
	for _, s := range ts.samples {
		d := s.Value - mean
		variance += d * d
	}
	variance /= float64(len(ts.samples))
	stddev := math.Sqrt(variance)

	threshold := mean + thresholdMultiplier*stddev
	var anomalies []Sample
	for _, s := range ts.samples {
		if s.Value > threshold {
			anomalies = append(anomalies, s)
		}
	}
	return anomalies
}
