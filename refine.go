package mcbench

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"
)

// RefineConfig controls the adaptive refinement loop.
//
// The loop starts at InitialBudget evaluations per iteration and multiplies
// the budget by GrowthFactor after every round whose standard deviation
// misses the target. With error shrinking as 1/sqrt(N), each round with
// a factor of 3 improves precision by about sqrt(3).
type RefineConfig struct {
	Iterations    int     // Stratification passes per round (default: 10)
	InitialBudget int     // Evaluations per iteration in round 1 (default: 10,000)
	GrowthFactor  float64 // Budget multiplier between rounds, must be > 1 (default: 3)

	// Ceilings. Exceeding either fails the run with a ConvergenceError.
	MaxRounds           int // default: 12
	MaxEvaluationBudget int // Largest per-iteration budget allowed (default: 50,000,000)

	// AbsoluteToleranceFloor keeps the stopping threshold positive when the
	// mean is zero or tiny. The caller's Tolerance.Absolute also applies.
	AbsoluteToleranceFloor float64
}

// DefaultRefineConfig returns the policy the harness uses.
func DefaultRefineConfig() RefineConfig {
	return RefineConfig{
		Iterations:             10,
		InitialBudget:          10_000,
		GrowthFactor:           3,
		MaxRounds:              12,
		MaxEvaluationBudget:    50_000_000,
		AbsoluteToleranceFloor: 0,
	}
}

// Validate rejects settings that cannot run or cannot terminate.
func (c RefineConfig) Validate() error {
	switch {
	case c.Iterations < 1:
		return fmt.Errorf("%w: iterations must be >= 1, got %d", ErrInvalidConfig, c.Iterations)
	case c.InitialBudget < 2:
		// A per-iteration variance needs at least two evaluations.
		return fmt.Errorf("%w: initial budget must be >= 2, got %d", ErrInvalidConfig, c.InitialBudget)
	case math.IsNaN(c.GrowthFactor) || c.GrowthFactor <= 1:
		return fmt.Errorf("%w: growth factor must be > 1, got %g", ErrInvalidConfig, c.GrowthFactor)
	case c.MaxRounds < 1:
		return fmt.Errorf("%w: max rounds must be >= 1, got %d", ErrInvalidConfig, c.MaxRounds)
	case c.MaxEvaluationBudget < c.InitialBudget:
		return fmt.Errorf("%w: max evaluation budget %d below initial budget %d",
			ErrInvalidConfig, c.MaxEvaluationBudget, c.InitialBudget)
	case math.IsNaN(c.AbsoluteToleranceFloor) || c.AbsoluteToleranceFloor < 0:
		return fmt.Errorf("%w: absolute tolerance floor must be >= 0, got %g",
			ErrInvalidConfig, c.AbsoluteToleranceFloor)
	}
	return nil
}

// RefinementState is the mutable bookkeeping of one run.
type RefinementState struct {
	Budget      int   // Evaluations per iteration for the next round
	Rounds      int   // Rounds completed
	Evaluations int64 // Cumulative evaluations requested
}

// RefineResult is the outcome of a successful run.
type RefineResult struct {
	Estimate    SampledEstimate
	Rounds      int
	Evaluations int64
	Budget      int // Budget of the final round
	Threshold   float64
}

// Controller drives a stochastic integrator through rounds of increasing
// sample count until its reported standard deviation meets the tolerance.
//
// Control loop:
//   - Integrate with the current budget
//   - Stop when stddev <= max(|rel*mean|, abs, floor)
//   - Otherwise grow the budget and repeat, up to the ceilings
//
// Each Refine call builds its own integrator from the factory, so a
// Controller may be shared by goroutines running separate problems.
type Controller struct {
	factory IntegratorFactory
	cfg     RefineConfig
	logger  *slog.Logger
	metrics *Metrics
}

// Option configures a Controller or Harness.
type Option func(*options)

type options struct {
	logger  *slog.Logger
	metrics *Metrics
}

// WithLogger sets the structured logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithMetrics records activity on m.
func WithMetrics(m *Metrics) Option {
	return func(o *options) { o.metrics = m }
}

func buildOptions(opts []Option) options {
	o := options{logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// NewController validates cfg and returns a controller.
func NewController(factory IntegratorFactory, cfg RefineConfig, opts ...Option) (*Controller, error) {
	if factory == nil {
		return nil, fmt.Errorf("%w: nil integrator factory", ErrInvalidConfig)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	o := buildOptions(opts)
	return &Controller{
		factory: factory,
		cfg:     cfg,
		logger:  o.logger,
		metrics: o.metrics,
	}, nil
}

// Config returns the controller's refinement policy.
func (c *Controller) Config() RefineConfig {
	return c.cfg
}

// Threshold returns the stopping threshold for an estimate's mean.
func (c *Controller) Threshold(mean float64, tol Tolerance) float64 {
	return math.Max(math.Abs(tol.Relative*mean), math.Max(tol.Absolute, c.cfg.AbsoluteToleranceFloor))
}

// Refine integrates f over vol until the reported standard deviation
// satisfies tol. Inputs are validated before any evaluation. The context is
// checked between rounds only; a round in progress is never interrupted.
func (c *Controller) Refine(ctx context.Context, f Integrand, vol Volume, tol Tolerance) (RefineResult, error) {
	if err := checkDims(f, vol); err != nil {
		c.metrics.observeRun(OutcomeInvalid)
		return RefineResult{}, err
	}
	if err := tol.Validate(); err != nil {
		c.metrics.observeRun(OutcomeInvalid)
		return RefineResult{}, err
	}

	integ, err := c.factory(vol)
	if err != nil {
		c.metrics.observeRun(OutcomeInvalid)
		return RefineResult{}, fmt.Errorf("create integrator: %w", err)
	}

	state := RefinementState{Budget: c.cfg.InitialBudget}
	logger := c.logger.With("dim", vol.Dim(), "rel_tol", tol.Relative)

	for {
		if err := ctx.Err(); err != nil {
			c.metrics.observeRun(OutcomeCanceled)
			return RefineResult{}, fmt.Errorf("refinement canceled after %d rounds: %w", state.Rounds, err)
		}

		roundStart := time.Now()
		est, err := integ.Integrate(f, c.cfg.Iterations, state.Budget)
		roundEvals := int64(c.cfg.Iterations) * int64(state.Budget)
		state.Rounds++
		state.Evaluations += roundEvals
		c.metrics.observeRound(roundEvals, time.Since(roundStart))

		if err != nil {
			c.metrics.observeRun(OutcomeFailed)
			return RefineResult{}, fmt.Errorf("round %d (budget %d): %w", state.Rounds, state.Budget, err)
		}

		threshold := c.Threshold(est.Mean, tol)
		logger.Debug("refinement round",
			"round", state.Rounds,
			"budget", state.Budget,
			"mean", est.Mean,
			"stddev", est.Stddev,
			"threshold", threshold,
		)

		if !est.finite() {
			c.metrics.observeRun(OutcomeFailed)
			return RefineResult{}, c.fail(logger, state, est, threshold, "non-finite estimate")
		}

		if est.Satisfies(threshold) {
			c.metrics.observeRun(OutcomeConverged)
			logger.Info("refinement converged",
				"rounds", state.Rounds,
				"evaluations", state.Evaluations,
				"mean", est.Mean,
				"stddev", est.Stddev,
			)
			return RefineResult{
				Estimate:    est,
				Rounds:      state.Rounds,
				Evaluations: state.Evaluations,
				Budget:      state.Budget,
				Threshold:   threshold,
			}, nil
		}

		if state.Rounds >= c.cfg.MaxRounds {
			c.metrics.observeRun(OutcomeFailed)
			return RefineResult{}, c.fail(logger, state, est, threshold,
				fmt.Sprintf("reached max rounds %d", c.cfg.MaxRounds))
		}

		next := math.Ceil(float64(state.Budget) * c.cfg.GrowthFactor)
		if next > float64(c.cfg.MaxEvaluationBudget) {
			c.metrics.observeRun(OutcomeFailed)
			return RefineResult{}, c.fail(logger, state, est, threshold,
				fmt.Sprintf("next budget %.0f exceeds max evaluation budget %d", next, c.cfg.MaxEvaluationBudget))
		}
		state.Budget = int(next)
	}
}

func (c *Controller) fail(logger *slog.Logger, state RefinementState, est SampledEstimate, threshold float64, reason string) error {
	logger.Warn("refinement did not converge",
		"rounds", state.Rounds,
		"budget", state.Budget,
		"stddev", est.Stddev,
		"threshold", threshold,
		"reason", reason,
	)
	return &ConvergenceError{
		Rounds:      state.Rounds,
		Budget:      state.Budget,
		Evaluations: state.Evaluations,
		Last:        est,
		Threshold:   threshold,
		Reason:      reason,
	}
}
