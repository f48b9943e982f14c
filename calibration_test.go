package mcbench

import (
	"math"
	"sync"
	"testing"
)

func TestCalibrationTracker_Empty(t *testing.T) {
	tracker := NewCalibrationTracker(10)

	s := tracker.Stats()
	if s.Trials != 0 || s.MedianRatio != 0 {
		t.Errorf("Expected zero stats, got %+v", s)
	}
	if tracker.IsOverconfident(3) {
		t.Error("Empty tracker reported as overconfident")
	}
}

func TestCalibrationTracker_Pulls(t *testing.T) {
	tracker := NewCalibrationTracker(10)

	// z = -1, 0.5, 2.5, -0.5
	tracker.Record(0.9, 0.1, 1)
	tracker.Record(1.05, 0.1, 1)
	tracker.Record(1.25, 0.1, 1)
	tracker.Record(0.95, 0.1, 1)

	s := tracker.Stats()
	if s.Trials != 4 {
		t.Fatalf("Expected 4 trials, got %d", s.Trials)
	}
	if math.Abs(s.MeanPull-0.375) > 1e-9 {
		t.Errorf("Expected mean pull 0.375, got %g", s.MeanPull)
	}
	if s.WithinOneSigma != 0.75 {
		t.Errorf("Expected 0.75 within 1σ, got %g", s.WithinOneSigma)
	}
	if s.WithinTwoSigma != 0.75 {
		t.Errorf("Expected 0.75 within 2σ, got %g", s.WithinTwoSigma)
	}
	if s.WithinThreeSigma != 1 {
		t.Errorf("Expected all within 3σ, got %g", s.WithinThreeSigma)
	}
}

func TestCalibrationTracker_Skipped(t *testing.T) {
	tracker := NewCalibrationTracker(10)

	tracker.Record(1, 0, 1)
	tracker.Record(1, -1, 1)
	tracker.Record(math.NaN(), 0.1, 1)
	tracker.RecordReport(Report{Err: "did not converge"})

	s := tracker.Stats()
	if s.Trials != 0 || s.Skipped != 4 {
		t.Errorf("Expected 0 trials and 4 skipped, got %d and %d", s.Trials, s.Skipped)
	}
}

func TestCalibrationTracker_Overconfident(t *testing.T) {
	tracker := NewCalibrationTracker(100)

	// True error ten times the reported one.
	for i := 0; i < 50; i++ {
		tracker.Record(1.01, 0.001, 1)
	}
	if !tracker.IsOverconfident(3) {
		t.Errorf("Expected overconfident, median |z| = %g", tracker.Stats().MedianRatio)
	}
}

func TestCalibrationTracker_RingBuffer(t *testing.T) {
	tracker := NewCalibrationTracker(5)

	for i := 0; i < 5; i++ {
		tracker.Record(2, 0.1, 1) // z = 10
	}
	for i := 0; i < 5; i++ {
		tracker.Record(1, 0.1, 1) // z = 0
	}

	s := tracker.Stats()
	if s.Trials != 10 {
		t.Errorf("Expected monotonic trial count 10, got %d", s.Trials)
	}
	if s.MeanPull != 0 {
		t.Errorf("Old pulls should be evicted, mean pull %g", s.MeanPull)
	}
}

func TestCalibrationTracker_Concurrent(t *testing.T) {
	tracker := NewCalibrationTracker(1000)

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				tracker.Record(1.01, 0.01, 1)
				_ = tracker.Stats()
			}
		}()
	}
	wg.Wait()

	if got := tracker.Stats().Trials; got != 800 {
		t.Errorf("Expected 800 trials, got %d", got)
	}
}

func TestAssertWellCalibrated(t *testing.T) {
	tracker := NewCalibrationTracker(100)

	// Pulls spread like a standard normal sample.
	for _, z := range []float64{-1.5, -0.8, -0.4, -0.1, 0.2, 0.5, 0.9, 1.3, -0.2, 0.7} {
		tracker.Record(1+z*0.01, 0.01, 1)
	}
	AssertWellCalibrated(t, tracker, DefaultAssertionConfig())
}
