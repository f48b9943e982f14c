package mcbench

import (
	"math"
	"sort"
	"sync"

	"gonum.org/v1/gonum/stat"
)

// CalibrationTracker checks whether an integrator's self-reported
// uncertainty matches its actual error over repeated runs.
//
// Each trial contributes a pull z = (mean - answer) / stddev. For a
// well-calibrated integrator z is roughly standard normal:
//   - ~68% of trials inside 1σ
//   - ~95% inside 2σ
//   - ~99.7% inside 3σ
//
// A median |z| well above 1 means the reported errors are too small
// (overconfident); well below 1 means they are too pessimistic.
//
// Example:
//
//	tracker := NewCalibrationTracker(100)
//	for i := 0; i < 100; i++ {
//	    report, _ := harness.EvaluateStochastic(ctx, problem)
//	    tracker.RecordReport(report)
//	}
//	if tracker.IsOverconfident(3) {
//	    // reported stddev understates the real error
//	}
type CalibrationTracker struct {
	mu         sync.RWMutex
	pulls      []float64 // Ring buffer of signed pulls
	maxSamples int
	writeIndex int
	count      int64 // Total pulls recorded (monotonic)
	skipped    int64 // Reports without a usable stddev
}

// NewCalibrationTracker keeps the most recent maxSamples pulls.
func NewCalibrationTracker(maxSamples int) *CalibrationTracker {
	if maxSamples <= 0 {
		maxSamples = 1000
	}
	return &CalibrationTracker{
		pulls:      make([]float64, maxSamples),
		maxSamples: maxSamples,
	}
}

// Record adds one trial. Trials with stddev <= 0 or non-finite values are
// counted as skipped.
func (t *CalibrationTracker) Record(mean, stddev, answer float64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	z := (mean - answer) / stddev
	if stddev <= 0 || math.IsNaN(z) || math.IsInf(z, 0) {
		t.skipped++
		return
	}

	t.pulls[t.writeIndex] = z
	t.writeIndex = (t.writeIndex + 1) % t.maxSamples
	t.count++
}

// RecordReport adds a successful stochastic report. Failed reports are skipped.
func (t *CalibrationTracker) RecordReport(r Report) {
	if r.Failed() {
		t.mu.Lock()
		t.skipped++
		t.mu.Unlock()
		return
	}
	t.Record(r.Mean, r.ReportedError, r.Answer)
}

// snapshot returns the live pulls. Caller holds the lock.
func (t *CalibrationTracker) snapshot() []float64 {
	n := t.count
	if n > int64(t.maxSamples) {
		n = int64(t.maxSamples)
	}
	out := make([]float64, n)
	copy(out, t.pulls[:n])
	return out
}

// CalibrationStats summarizes recorded pulls.
type CalibrationStats struct {
	Trials  int64
	Skipped int64

	MeanPull   float64 // ~0 when unbiased
	StddevPull float64 // ~1 when calibrated

	MedianRatio float64 // median |z|, ~0.674 for a standard normal
	P95Ratio    float64 // 95th percentile |z|, ~1.96 for a standard normal

	WithinOneSigma   float64
	WithinTwoSigma   float64
	WithinThreeSigma float64
}

// Stats returns a statistical snapshot. Fields are zero with no trials.
func (t *CalibrationTracker) Stats() CalibrationStats {
	t.mu.RLock()
	pulls := t.snapshot()
	s := CalibrationStats{Trials: t.count, Skipped: t.skipped}
	t.mu.RUnlock()

	if len(pulls) == 0 {
		return s
	}

	s.MeanPull = stat.Mean(pulls, nil)
	if len(pulls) > 1 {
		s.StddevPull = stat.StdDev(pulls, nil)
	}

	ratios := make([]float64, len(pulls))
	var in1, in2, in3 int
	for i, z := range pulls {
		a := math.Abs(z)
		ratios[i] = a
		if a <= 1 {
			in1++
		}
		if a <= 2 {
			in2++
		}
		if a <= 3 {
			in3++
		}
	}
	sort.Float64s(ratios)
	s.MedianRatio = stat.Quantile(0.5, stat.Empirical, ratios, nil)
	s.P95Ratio = stat.Quantile(0.95, stat.Empirical, ratios, nil)

	n := float64(len(pulls))
	s.WithinOneSigma = float64(in1) / n
	s.WithinTwoSigma = float64(in2) / n
	s.WithinThreeSigma = float64(in3) / n
	return s
}

// IsOverconfident reports whether the median |z| exceeds threshold times
// the standard-normal median (0.674).
func (t *CalibrationTracker) IsOverconfident(threshold float64) bool {
	s := t.Stats()
	if s.Trials == 0 {
		return false
	}
	return s.MedianRatio > threshold*normalMedianAbs
}

// normalMedianAbs is the median of |Z| for Z ~ N(0,1).
const normalMedianAbs = 0.6744897501960817
