package mcbench

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidVolume indicates empty or inverted bounds, or an integrand
	// whose arity differs from the volume.
	ErrInvalidVolume = errors.New("mcbench: invalid integration volume")

	// ErrInvalidTolerance indicates a non-positive relative tolerance.
	ErrInvalidTolerance = errors.New("mcbench: invalid tolerance")

	// ErrInvalidConfig indicates refinement settings that cannot terminate.
	ErrInvalidConfig = errors.New("mcbench: invalid refinement config")

	// ErrConvergenceFailure indicates the stopping rule was not met before
	// the round or budget ceiling.
	ErrConvergenceFailure = errors.New("mcbench: adaptive refinement did not converge")

	// ErrQuadratureFailure indicates the deterministic oracle gave up.
	ErrQuadratureFailure = errors.New("mcbench: deterministic quadrature did not converge")

	// ErrIntegrandPanic indicates the integrand panicked during evaluation,
	// usually an integrand of unknown arity indexing past the volume.
	ErrIntegrandPanic = errors.New("mcbench: integrand panicked")
)

// ConvergenceError carries the state of a refinement run that hit a ceiling.
type ConvergenceError struct {
	Rounds      int
	Budget      int
	Evaluations int64
	Last        SampledEstimate
	Threshold   float64
	Reason      string
}

func (e *ConvergenceError) Error() string {
	return fmt.Sprintf("%v after %d rounds (budget %d, %d evaluations): %s; last %s, threshold %g",
		ErrConvergenceFailure, e.Rounds, e.Budget, e.Evaluations, e.Reason, e.Last, e.Threshold)
}

func (e *ConvergenceError) Unwrap() error {
	return ErrConvergenceFailure
}

// isValidationError reports whether err came from eager input checks.
func isValidationError(err error) bool {
	return errors.Is(err, ErrInvalidVolume) ||
		errors.Is(err, ErrInvalidTolerance) ||
		errors.Is(err, ErrInvalidConfig)
}
