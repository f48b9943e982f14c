package mcbench

import (
	"fmt"
	"math"
)

// Integrand maps a point of N-dimensional space to a real value.
// Implementations must be pure: the stochastic engine calls Eval
// concurrently from several workers.
type Integrand interface {
	// Dim returns the number of arguments, or 0 if unknown.
	Dim() int
	// Eval evaluates the function at x. It must not retain or modify x.
	Eval(x []float64) float64
}

type funcIntegrand struct {
	dim int
	f   func(x []float64) float64
}

func (fi funcIntegrand) Dim() int                 { return fi.dim }
func (fi funcIntegrand) Eval(x []float64) float64 { return fi.f(x) }

// Func adapts a vector function of the given arity.
func Func(dim int, f func(x []float64) float64) Integrand {
	return funcIntegrand{dim: dim, f: f}
}

// Scalar3 adapts a function of three scalar arguments.
func Scalar3(f func(x, y, z float64) float64) Integrand {
	return funcIntegrand{dim: 3, f: func(x []float64) float64 {
		return f(x[0], x[1], x[2])
	}}
}

// SampledEstimate is one round's statistical estimate of an integral.
type SampledEstimate struct {
	Mean   float64
	Stddev float64
}

// RelativeError returns |Stddev/Mean|, +Inf for a zero mean.
func (e SampledEstimate) RelativeError() float64 {
	if e.Mean == 0 {
		return math.Inf(1)
	}
	return math.Abs(e.Stddev / e.Mean)
}

// Satisfies reports whether Stddev <= threshold.
func (e SampledEstimate) Satisfies(threshold float64) bool {
	return e.Stddev <= threshold
}

func (e SampledEstimate) finite() bool {
	return !math.IsNaN(e.Mean) && !math.IsInf(e.Mean, 0) &&
		!math.IsNaN(e.Stddev) && !math.IsInf(e.Stddev, 0) && e.Stddev >= 0
}

// String formats the estimate as "mean +/- stddev".
func (e SampledEstimate) String() string {
	return fmt.Sprintf("%v +/- %v", e.Mean, e.Stddev)
}

// Tolerance is the caller's accuracy target for one run.
type Tolerance struct {
	Relative float64
	Absolute float64
}

// Validate rejects non-positive relative or negative absolute tolerances.
func (t Tolerance) Validate() error {
	if math.IsNaN(t.Relative) || math.IsInf(t.Relative, 0) || t.Relative <= 0 {
		return fmt.Errorf("%w: relative tolerance must be > 0, got %g", ErrInvalidTolerance, t.Relative)
	}
	if math.IsNaN(t.Absolute) || math.IsInf(t.Absolute, 0) || t.Absolute < 0 {
		return fmt.Errorf("%w: absolute tolerance must be >= 0, got %g", ErrInvalidTolerance, t.Absolute)
	}
	return nil
}

// StochasticIntegrator produces a SampledEstimate for a fixed evaluation
// budget. Calling it again with a larger budget refines the answer; any
// adaptive state persists across calls on the same instance.
type StochasticIntegrator interface {
	Integrate(f Integrand, iterations, evaluations int) (SampledEstimate, error)
}

// IntegratorFactory builds a fresh integrator bound to a volume. The
// controller calls it once per run so no adaptive state leaks between runs.
type IntegratorFactory func(vol Volume) (StochasticIntegrator, error)

// DeterministicOracle integrates f over the flattened bounds
// [lo0, hi0, lo1, hi1, ...] with non-stochastic quadrature.
type DeterministicOracle interface {
	Integrate(f Integrand, bounds []float64, relTol float64) (value, errEstimate float64, err error)
}
