package mcbench

import (
	"errors"
	"io"
	"log/slog"
	"math"
	"sync"
)

// sqrtNIntegrator reports a fixed mean with stddev sigma/sqrt(N), the
// error scaling of plain Monte Carlo.
type sqrtNIntegrator struct {
	mean  float64
	sigma float64

	mu      sync.Mutex
	budgets []int
}

func (s *sqrtNIntegrator) Integrate(_ Integrand, iterations, evaluations int) (SampledEstimate, error) {
	s.mu.Lock()
	s.budgets = append(s.budgets, evaluations)
	s.mu.Unlock()
	n := float64(iterations) * float64(evaluations)
	return SampledEstimate{Mean: s.mean, Stddev: s.sigma / math.Sqrt(n)}, nil
}

func (s *sqrtNIntegrator) calls() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]int(nil), s.budgets...)
}

// fixedIntegrator returns the same estimate regardless of budget.
type fixedIntegrator struct {
	est SampledEstimate
	err error
}

func (f fixedIntegrator) Integrate(Integrand, int, int) (SampledEstimate, error) {
	return f.est, f.err
}

// countingFactory wraps an integrator and counts how often the controller
// asked for a new one.
type countingFactory struct {
	mu    sync.Mutex
	made  int
	build func() StochasticIntegrator
}

func (c *countingFactory) factory(Volume) (StochasticIntegrator, error) {
	c.mu.Lock()
	c.made++
	c.mu.Unlock()
	return c.build(), nil
}

func (c *countingFactory) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.made
}

// stubOracle returns a fixed value or error.
type stubOracle struct {
	value  float64
	errEst float64
	err    error
	calls  int
}

func (o *stubOracle) Integrate(_ Integrand, _ []float64, _ float64) (float64, float64, error) {
	o.calls++
	return o.value, o.errEst, o.err
}

var errStub = errors.New("stub failure")

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func cube3(t interface{ Fatalf(string, ...any) }) Volume {
	v, err := UnitCube(3)
	if err != nil {
		t.Fatalf("UnitCube(3): %v", err)
	}
	return v
}

var constant3 = Scalar3(func(x, y, z float64) float64 { return 1 })
