// Package quadrature is a deterministic reference integrator: a tensor
// product of one-dimensional Gauss–Legendre rules from gonum, nested once
// per dimension. The order doubles until two successive estimates agree to
// the requested relative tolerance; their difference is the error estimate.
//
// Cost is order^dim evaluations, so this is only practical in a handful of
// dimensions. It serves as a cross-check for the stochastic path, not as a
// general-purpose integrator.
package quadrature

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/integrate/quad"

	"github.com/alexshd/mcbench"
)

// Config bounds the order doubling.
type Config struct {
	InitialOrder   int     // Points per dimension on the first pass (default: 8)
	MaxOrder       int     // Largest order tried before giving up (default: 256)
	MaxEvaluations int64   // Cap on order^dim for a single pass (default: 50,000,000)
	AbsoluteFloor  float64 // Absolute agreement accepted for tiny integrals (default: 1e-12)
}

// DefaultConfig returns the settings the CLI uses.
func DefaultConfig() Config {
	return Config{
		InitialOrder:   8,
		MaxOrder:       256,
		MaxEvaluations: 50_000_000,
		AbsoluteFloor:  1e-12,
	}
}

// Oracle implements mcbench.DeterministicOracle.
type Oracle struct {
	cfg Config
}

// New returns an oracle, filling zero fields from DefaultConfig.
func New(cfg Config) *Oracle {
	d := DefaultConfig()
	if cfg.MaxOrder <= 0 {
		cfg.MaxOrder = max(d.MaxOrder, cfg.InitialOrder)
	}
	if cfg.InitialOrder <= 0 {
		cfg.InitialOrder = d.InitialOrder
	}
	// An explicit MaxOrder is a hard limit; start no higher than it.
	cfg.InitialOrder = min(cfg.InitialOrder, cfg.MaxOrder)
	if cfg.MaxEvaluations <= 0 {
		cfg.MaxEvaluations = d.MaxEvaluations
	}
	if cfg.AbsoluteFloor <= 0 {
		cfg.AbsoluteFloor = d.AbsoluteFloor
	}
	return &Oracle{cfg: cfg}
}

// Integrate integrates f over the flattened bounds [lo0, hi0, lo1, hi1, ...].
func (o *Oracle) Integrate(f mcbench.Integrand, bounds []float64, relTol float64) (float64, float64, error) {
	vol, err := mcbench.ParseFlat(bounds)
	if err != nil {
		return 0, 0, err
	}
	if d := f.Dim(); d > 0 && d != vol.Dim() {
		return 0, 0, fmt.Errorf("%w: integrand takes %d arguments, bounds describe %d dimensions",
			mcbench.ErrInvalidVolume, d, vol.Dim())
	}
	if math.IsNaN(relTol) || relTol <= 0 {
		return 0, 0, fmt.Errorf("%w: relative tolerance must be > 0, got %g", mcbench.ErrInvalidTolerance, relTol)
	}

	n := o.cfg.InitialOrder
	if cost := math.Pow(float64(n), float64(vol.Dim())); cost > float64(o.cfg.MaxEvaluations) {
		return 0, 0, fmt.Errorf("%w: initial order %d needs %.0f evaluations, max %d",
			mcbench.ErrQuadratureFailure, n, cost, o.cfg.MaxEvaluations)
	}
	prev, err := o.product(f, vol, n)
	if err != nil {
		return 0, 0, err
	}

	for {
		n *= 2
		if n > o.cfg.MaxOrder {
			return prev, math.NaN(), fmt.Errorf("%w: order %d exceeds max order %d",
				mcbench.ErrQuadratureFailure, n, o.cfg.MaxOrder)
		}
		if cost := math.Pow(float64(n), float64(vol.Dim())); cost > float64(o.cfg.MaxEvaluations) {
			return prev, math.NaN(), fmt.Errorf("%w: order %d needs %.0f evaluations, max %d",
				mcbench.ErrQuadratureFailure, n, cost, o.cfg.MaxEvaluations)
		}

		cur, err := o.product(f, vol, n)
		if err != nil {
			return 0, 0, err
		}

		diff := math.Abs(cur - prev)
		if diff <= math.Max(relTol*math.Abs(cur), o.cfg.AbsoluteFloor) {
			return cur, diff, nil
		}
		prev = cur
	}
}

// product evaluates the n-point Gauss–Legendre tensor rule. Nodes and
// weights come from gonum once per dimension; the tensor sum is nested.
func (o *Oracle) product(f mcbench.Integrand, vol mcbench.Volume, n int) (v float64, err error) {
	defer func() {
		if r := recover(); r != nil {
			v, err = 0, fmt.Errorf("%w: %w: %v", mcbench.ErrQuadratureFailure, mcbench.ErrIntegrandPanic, r)
		}
	}()

	dim := vol.Dim()
	nodes := make([][]float64, dim)
	weights := make([][]float64, dim)
	for d := 0; d < dim; d++ {
		b := vol.Bound(d)
		nodes[d] = make([]float64, n)
		weights[d] = make([]float64, n)
		quad.Legendre{}.FixedLocations(nodes[d], weights[d], b.Lower, b.Upper)
	}

	x := make([]float64, dim)
	var sum func(d int) float64
	sum = func(d int) float64 {
		total := 0.0
		for i, t := range nodes[d] {
			x[d] = t
			if d == dim-1 {
				total += weights[d][i] * f.Eval(x)
			} else {
				total += weights[d][i] * sum(d+1)
			}
		}
		return total
	}

	v = sum(0)
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("%w: integrand is not finite at order %d", mcbench.ErrQuadratureFailure, n)
	}
	return v, nil
}
