// Package vegas is an importance-sampling Monte Carlo integrator in the
// style of Lepage's VEGAS algorithm.
//
// Each dimension carries a piecewise-linear map from [0,1) onto its bound,
// defined by Increments grid edges. Uniform random points are pushed
// through the map, so sampling density follows the grid. After every
// iteration the grid is moved toward increments where |f| contributes most
// to the variance, with Alpha damping the move.
//
// The grid persists across Integrate calls on the same Integrator: a later
// call with a larger budget starts from the adapted grid. Use a fresh
// Integrator per problem.
//
// Within an iteration the evaluation budget is split across Workers
// goroutines. Each worker draws from its own PCG stream derived from Seed,
// so results are reproducible for a fixed Seed and Workers.
package vegas

import (
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"runtime"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/alexshd/mcbench"
)

// ErrNonFinite is returned when the integrand yields NaN or ±Inf.
var ErrNonFinite = errors.New("vegas: integrand returned a non-finite value")

// ErrBudget is returned for iteration counts or budgets that cannot produce
// a variance estimate.
var ErrBudget = errors.New("vegas: invalid iteration count or evaluation budget")

// Config controls grid resolution, adaptation speed and parallelism.
type Config struct {
	Increments int     // Grid increments per dimension (default: 100)
	Alpha      float64 // Grid damping in [0, 2]; 0 freezes the grid (default: 0.5)
	Workers    int     // Parallel workers per iteration (default: GOMAXPROCS)
	Seed       uint64  // Base seed for the per-worker PCG streams
}

// DefaultConfig returns the settings the CLI uses.
func DefaultConfig() Config {
	return Config{
		Increments: 100,
		Alpha:      0.5,
		Workers:    runtime.GOMAXPROCS(0),
		Seed:       1,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.Increments <= 0 {
		c.Increments = d.Increments
	}
	if c.Workers <= 0 {
		c.Workers = d.Workers
	}
	return c
}

// Integrator is a VEGAS integrator bound to one volume. It is not safe for
// concurrent Integrate calls; the integrand itself is evaluated concurrently.
type Integrator struct {
	vol  mcbench.Volume
	cfg  Config
	grid [][]float64 // per dimension, Increments+1 edges in [0,1]

	calls       uint64
	evaluations int64
	chi2        float64
}

// New returns an integrator with a uniform grid over vol.
func New(vol mcbench.Volume, cfg Config) (*Integrator, error) {
	if vol.Dim() == 0 {
		return nil, fmt.Errorf("%w: empty volume", mcbench.ErrInvalidVolume)
	}
	cfg = cfg.withDefaults()
	if math.IsNaN(cfg.Alpha) || cfg.Alpha < 0 || cfg.Alpha > 2 {
		return nil, fmt.Errorf("vegas: alpha must be in [0, 2], got %g", cfg.Alpha)
	}

	grid := make([][]float64, vol.Dim())
	for d := range grid {
		edges := make([]float64, cfg.Increments+1)
		floats.Span(edges, 0, 1)
		grid[d] = edges
	}

	return &Integrator{vol: vol, cfg: cfg, grid: grid}, nil
}

// Factory returns an IntegratorFactory producing fresh integrators.
func Factory(cfg Config) mcbench.IntegratorFactory {
	return func(vol mcbench.Volume) (mcbench.StochasticIntegrator, error) {
		return New(vol, cfg)
	}
}

// Evaluations returns the cumulative number of integrand evaluations.
func (v *Integrator) Evaluations() int64 {
	return v.evaluations
}

// Chi2PerDoF returns the χ²/dof of the iterations combined by the last call.
// Values well above 1 mean the iterations disagree beyond their errors.
func (v *Integrator) Chi2PerDoF() float64 {
	return v.chi2
}

// Grid returns a copy of the grid edges of dimension d.
func (v *Integrator) Grid(d int) []float64 {
	out := make([]float64, len(v.grid[d]))
	copy(out, v.grid[d])
	return out
}

// Integrate runs iterations passes of evaluations points each, adapting
// the grid after every pass, and returns the inverse-variance weighted
// average of the passes.
func (v *Integrator) Integrate(f mcbench.Integrand, iterations, evaluations int) (mcbench.SampledEstimate, error) {
	if iterations < 1 || evaluations < 2 {
		return mcbench.SampledEstimate{}, fmt.Errorf("%w: iterations=%d evaluations=%d",
			ErrBudget, iterations, evaluations)
	}
	if d := f.Dim(); d > 0 && d != v.vol.Dim() {
		return mcbench.SampledEstimate{}, fmt.Errorf("%w: integrand takes %d arguments, volume has %d dimensions",
			mcbench.ErrInvalidVolume, d, v.vol.Dim())
	}

	v.calls++
	means := make([]float64, 0, iterations)
	variances := make([]float64, 0, iterations)

	for it := 0; it < iterations; it++ {
		acc, err := v.iterate(f, it, evaluations)
		v.evaluations += acc.n
		if err != nil {
			return mcbench.SampledEstimate{}, err
		}

		means = append(means, acc.mean)
		variances = append(variances, acc.variance())

		if v.cfg.Alpha > 0 {
			for d := range v.grid {
				v.refine(d, acc.d[d])
			}
		}
	}

	est, chi2 := combine(means, variances)
	v.chi2 = chi2
	return est, nil
}

// accumulator holds one worker's (or the merged) running moments for an
// iteration. mean and m2 follow Welford's update so a large offset with a
// small spread does not cancel to zero variance.
type accumulator struct {
	n    int64
	mean float64
	m2   float64     // Σ(wf - mean)²
	d    [][]float64 // per dimension, per increment Σ(wf)²
}

func newAccumulator(dim, ninc int) *accumulator {
	d := make([][]float64, dim)
	for i := range d {
		d[i] = make([]float64, ninc)
	}
	return &accumulator{d: d}
}

func (a *accumulator) add(wf float64) {
	a.n++
	delta := wf - a.mean
	a.mean += delta / float64(a.n)
	a.m2 += delta * (wf - a.mean)
}

// merge combines b into a with the pairwise update of Chan et al.
func (a *accumulator) merge(b *accumulator) {
	if b.n > 0 {
		n := a.n + b.n
		delta := b.mean - a.mean
		a.mean += delta * float64(b.n) / float64(n)
		a.m2 += b.m2 + delta*delta*float64(a.n)*float64(b.n)/float64(n)
		a.n = n
	}
	for i := range a.d {
		floats.Add(a.d[i], b.d[i])
	}
}

// variance returns the variance of the iteration mean.
func (a *accumulator) variance() float64 {
	if a.n < 2 {
		return 0
	}
	n := float64(a.n)
	return a.m2 / (n - 1) / n
}

// iterate evaluates one pass, splitting the budget across workers.
func (v *Integrator) iterate(f mcbench.Integrand, it, evaluations int) (*accumulator, error) {
	dim := v.vol.Dim()
	ninc := v.cfg.Increments

	workers := v.cfg.Workers
	if workers > evaluations {
		workers = evaluations
	}
	parts := make([]*accumulator, workers)

	var g errgroup.Group
	for w := 0; w < workers; w++ {
		count := evaluations / workers
		if w < evaluations%workers {
			count++
		}
		stream := v.calls<<32 | uint64(it)<<16 | uint64(w)
		parts[w] = newAccumulator(dim, ninc)

		g.Go(func() (err error) {
			defer func() {
				if r := recover(); r != nil {
					err = fmt.Errorf("%w: %v", mcbench.ErrIntegrandPanic, r)
				}
			}()
			return v.sample(f, parts[w], count, rand.New(rand.NewPCG(v.cfg.Seed, stream)))
		})
	}
	err := g.Wait()

	total := newAccumulator(dim, ninc)
	for _, p := range parts {
		total.merge(p)
	}
	return total, err
}

// sample draws count points through the grid map and accumulates w·f.
func (v *Integrator) sample(f mcbench.Integrand, acc *accumulator, count int, rng *rand.Rand) error {
	dim := v.vol.Dim()
	ninc := v.cfg.Increments
	measure := v.vol.Measure()

	x := make([]float64, dim)
	idx := make([]int, dim)

	for k := 0; k < count; k++ {
		jac := measure
		for d := 0; d < dim; d++ {
			pos := rng.Float64() * float64(ninc)
			i := int(pos)
			if i >= ninc {
				i = ninc - 1
			}
			lo, hi := v.grid[d][i], v.grid[d][i+1]
			u := lo + (pos-float64(i))*(hi-lo)

			b := v.vol.Bound(d)
			x[d] = b.Lower + u*b.Width()
			jac *= float64(ninc) * (hi - lo)
			idx[d] = i
		}

		fx := f.Eval(x)
		if math.IsNaN(fx) || math.IsInf(fx, 0) {
			acc.n++
			return fmt.Errorf("%w: f(%v) = %v", ErrNonFinite, x, fx)
		}

		wf := jac * fx
		wf2 := wf * wf
		acc.add(wf)
		for d := 0; d < dim; d++ {
			acc.d[d][idx[d]] += wf2
		}
	}
	return nil
}

// refine moves the edges of dimension d so each increment carries an equal
// share of the smoothed, damped importance.
func (v *Integrator) refine(d int, contrib []float64) {
	ninc := len(contrib)
	if ninc < 2 {
		return
	}

	smoothed := make([]float64, ninc)
	smoothed[0] = (contrib[0] + contrib[1]) / 2
	smoothed[ninc-1] = (contrib[ninc-2] + contrib[ninc-1]) / 2
	for i := 1; i < ninc-1; i++ {
		smoothed[i] = (contrib[i-1] + contrib[i] + contrib[i+1]) / 3
	}
	total := floats.Sum(smoothed)
	if total <= 0 || math.IsNaN(total) || math.IsInf(total, 0) {
		return
	}

	importance := make([]float64, ninc)
	for i, s := range smoothed {
		frac := s / total
		switch {
		case frac <= 0:
			importance[i] = 0
		case frac >= 1:
			importance[i] = 1
		default:
			importance[i] = math.Pow((1-frac)/math.Log(1/frac), v.cfg.Alpha)
		}
	}
	rsum := floats.Sum(importance)
	if rsum <= 0 {
		return
	}

	old := v.grid[d]
	edges := make([]float64, ninc+1)
	edges[ninc] = 1

	share := rsum / float64(ninc)
	acc := 0.0
	j := 0
	for i := 1; i < ninc; i++ {
		target := float64(i) * share
		for j < ninc-1 && acc+importance[j] < target {
			acc += importance[j]
			j++
		}
		frac := 1.0
		if importance[j] > 0 {
			frac = math.Min((target-acc)/importance[j], 1)
		}
		edges[i] = old[j] + frac*(old[j+1]-old[j])
		if edges[i] < edges[i-1] {
			edges[i] = edges[i-1]
		}
	}

	v.grid[d] = edges
}

// combine averages iteration results weighted by inverse variance and
// returns the χ²/dof of the spread. The result is exact only when every
// iteration had zero variance; otherwise zero-variance iterations carry no
// usable weight and are left out.
func combine(means, variances []float64) (mcbench.SampledEstimate, float64) {
	var kept, weights []float64
	for i, vr := range variances {
		if vr > 0 {
			kept = append(kept, means[i])
			weights = append(weights, 1/vr)
		}
	}
	if len(kept) == 0 {
		return mcbench.SampledEstimate{Mean: stat.Mean(means, nil)}, 0
	}
	means = kept
	mean := stat.Mean(means, weights)
	stddev := math.Sqrt(1 / floats.Sum(weights))

	chi2 := 0.0
	if len(means) > 1 {
		for i, m := range means {
			chi2 += (m - mean) * (m - mean) * weights[i]
		}
		chi2 /= float64(len(means) - 1)
	}

	return mcbench.SampledEstimate{Mean: mean, Stddev: stddev}, chi2
}
