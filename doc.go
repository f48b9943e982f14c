// Package mcbench estimates definite multidimensional integrals to a target
// relative accuracy with adaptive importance-sampling Monte Carlo, and
// measures how well the integrator's reported uncertainty matches reality.
//
// # Overview
//
// The Controller drives a StochasticIntegrator through rounds of increasing
// evaluation budget until the reported standard deviation meets the
// caller's tolerance. The Harness runs a problem with a known analytic
// answer through the controller and through a DeterministicOracle, and
// reports result, estimated error, true error and their ratio.
//
// # Architecture
//
// The package components:
//
//   - mcbench     - Data model, Controller, Harness, CalibrationTracker
//   - vegas/      - VEGAS importance-sampling integrator (adaptive grid)
//   - quadrature/ - Gauss–Legendre product rule oracle
//   - genz/       - Genz test functions with closed-form integrals
//   - scenario/   - YAML scenario files
//   - cmd/mcbench - Command-line entry point
//
// # Quick Start
//
//	vol, _ := mcbench.UnitCube(3)
//	f := mcbench.Scalar3(func(x, y, z float64) float64 {
//	    return math.Cos(x + 2*y + 3*z)
//	})
//
//	ctrl, err := mcbench.NewController(vegas.Factory(vegas.DefaultConfig()), mcbench.DefaultRefineConfig())
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	res, err := ctrl.Refine(ctx, f, vol, mcbench.Tolerance{Relative: 1e-4})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Printf("%v after %d rounds\n", res.Estimate, res.Rounds)
//
// # Stopping Rule
//
// A round is accepted when
//
//	stddev <= max(|rel·mean|, abs, floor)
//
// where rel and abs come from the Tolerance and floor from
// RefineConfig.AbsoluteToleranceFloor. The absolute terms keep the
// threshold positive for integrals whose value is zero.
//
// Otherwise the budget is multiplied by GrowthFactor (> 1). Monte Carlo
// error scales as 1/√N, so with a factor of 3 each round gains about √3 in
// precision. MaxRounds and MaxEvaluationBudget bound the work; exceeding
// either returns a *ConvergenceError.
//
// # Errors
//
//   - ErrInvalidVolume, ErrInvalidTolerance: detected before any evaluation
//   - ErrConvergenceFailure: ceiling hit, see *ConvergenceError
//   - ErrQuadratureFailure: oracle could not reach the tolerance
//
// A zero known answer is not an error: the fractional error is reported
// as undefined.
//
// # Calibration
//
// The ratio (true error)/(estimated error) tells whether an integrator's
// error bars can be trusted. Values near 1 are healthy; values ≫ 1 mean
// the integrator is overconfident. CalibrationTracker aggregates the ratio
// over repeated runs:
//
//	tracker := mcbench.NewCalibrationTracker(100)
//	tracker.RecordReport(report)
//	mcbench.AssertWellCalibrated(t, tracker, mcbench.DefaultAssertionConfig())
//
// # Concurrency
//
// Rounds run strictly in sequence because each stopping decision depends on
// the previous round. Inside a round the vegas integrator evaluates the
// integrand from several goroutines, so integrands must be pure. The
// context passed to Refine is checked between rounds, never inside one.
package mcbench
