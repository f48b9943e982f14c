package mcbench

import (
	"math"
	"testing"
)

// AssertionConfig contains thresholds for accuracy properties.
type AssertionConfig struct {
	// Largest acceptable |mean - answer| / stddev for a stochastic report
	MaxErrorRatio float64

	// Largest acceptable |mean - answer| / |answer| for a deterministic report
	MaxRelativeError float64

	// Calibration thresholds for repeated runs
	MinWithinTwoSigma float64
	MaxMedianRatio    float64
}

// DefaultAssertionConfig returns conservative thresholds.
func DefaultAssertionConfig() AssertionConfig {
	return AssertionConfig{
		MaxErrorRatio:     5,    // a 5σ miss means the error bar is wrong
		MaxRelativeError:  1e-4, // quadrature oracle target
		MinWithinTwoSigma: 0.80, // ~95% expected, allow small samples
		MaxMedianRatio:    2.0,  // ~0.67 expected
	}
}

// AssertStoppingRule verifies stddev <= max(|rel*mean|, abs, floor).
func AssertStoppingRule(t *testing.T, est SampledEstimate, tol Tolerance, floor float64) {
	t.Helper()

	threshold := math.Max(math.Abs(tol.Relative*est.Mean), math.Max(tol.Absolute, floor))
	if est.Stddev > threshold {
		t.Errorf("Stopping rule violated: stddev = %g > threshold %g (mean %g, rel %g)",
			est.Stddev, threshold, est.Mean, tol.Relative)
		return
	}

	t.Logf("✓ Stopping rule: stddev = %g <= %g", est.Stddev, threshold)
}

// AssertCalibrated verifies a successful report's true error is within
// MaxErrorRatio of its reported error.
func AssertCalibrated(t *testing.T, r Report, cfg AssertionConfig) {
	t.Helper()

	if r.Failed() {
		t.Fatalf("%s on %s failed: %s", r.Method, r.Scenario, r.Err)
	}

	if r.ErrorRatio > cfg.MaxErrorRatio {
		t.Errorf("Overconfident error estimate: ratio = %.3f (max: %.3f)\n"+
			"Result %v +/- %v, answer %v.",
			r.ErrorRatio, cfg.MaxErrorRatio, r.Mean, r.ReportedError, r.Answer)
	}

	t.Logf("✓ Calibrated: (true error)/(estimated error) = %.3f", r.ErrorRatio)
}

// AssertRelativeAccuracy verifies |mean - answer| <= MaxRelativeError*|answer|.
func AssertRelativeAccuracy(t *testing.T, r Report, cfg AssertionConfig) {
	t.Helper()

	if r.Failed() {
		t.Fatalf("%s on %s failed: %s", r.Method, r.Scenario, r.Err)
	}

	limit := cfg.MaxRelativeError * math.Abs(r.Answer)
	if r.TrueError > limit {
		t.Errorf("Result outside relative tolerance: |%v - %v| = %g (max: %g)",
			r.Mean, r.Answer, r.TrueError, limit)
	}

	t.Logf("✓ Relative accuracy: true error %g <= %g", r.TrueError, limit)
}

// AssertWellCalibrated verifies the pull distribution of repeated runs.
func AssertWellCalibrated(t *testing.T, tracker *CalibrationTracker, cfg AssertionConfig) {
	t.Helper()

	s := tracker.Stats()
	if s.Trials == 0 {
		t.Fatal("No calibration trials recorded")
	}

	if s.WithinTwoSigma < cfg.MinWithinTwoSigma {
		t.Errorf("Too few trials inside 2σ: %.2f (min: %.2f)", s.WithinTwoSigma, cfg.MinWithinTwoSigma)
	}
	if s.MedianRatio > cfg.MaxMedianRatio {
		t.Errorf("Median |z| too large: %.3f (max: %.3f)", s.MedianRatio, cfg.MaxMedianRatio)
	}

	t.Logf("✓ Calibration over %d trials: 1σ %.2f, 2σ %.2f, 3σ %.2f, median |z| %.3f",
		s.Trials, s.WithinOneSigma, s.WithinTwoSigma, s.WithinThreeSigma, s.MedianRatio)
}
