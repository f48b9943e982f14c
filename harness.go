package mcbench

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/google/uuid"
)

// Evaluation methods reported by the harness.
const (
	MethodStochastic    = "vegas"
	MethodDeterministic = "quadrature"
)

// Problem is one integrand with a known analytic answer.
type Problem struct {
	Name      string
	Integrand Integrand
	Volume    Volume
	Answer    float64
	Tolerance Tolerance
}

// Validate runs the eager checks shared by both evaluation paths.
func (p Problem) Validate() error {
	if err := checkDims(p.Integrand, p.Volume); err != nil {
		return fmt.Errorf("problem %q: %w", p.Name, err)
	}
	if err := p.Tolerance.Validate(); err != nil {
		return fmt.Errorf("problem %q: %w", p.Name, err)
	}
	return nil
}

// Report is the accuracy and timing summary of one evaluation path.
type Report struct {
	RunID    string
	Scenario string
	Method   string

	Mean           float64
	ReportedError  float64
	ElapsedSeconds float64
	Answer         float64
	TrueError      float64

	// ErrorRatio is TrueError/ReportedError. Near 1 means the reported
	// uncertainty is well calibrated; much larger means overconfident.
	ErrorRatio float64

	// TrueFractionalError is TrueError/Answer, NaN when Answer is zero.
	TrueFractionalError float64
	FractionalDefined   bool

	Rounds      int
	Evaluations int64

	Err string
}

// Failed reports whether the evaluation path raised an error.
func (r Report) Failed() bool {
	return r.Err != ""
}

// ScenarioResult holds both paths of one problem.
type ScenarioResult struct {
	Scenario      string
	Stochastic    Report
	Deterministic *Report // nil when the oracle is disabled

	// Rejected is set when eager validation refused the problem; no
	// report is produced in that case.
	Rejected error
}

// Failed reports whether the scenario was rejected or any path failed.
func (s ScenarioResult) Failed() bool {
	if s.Rejected != nil || s.Stochastic.Failed() {
		return true
	}
	return s.Deterministic != nil && s.Deterministic.Failed()
}

// Harness runs problems through the adaptive controller and the
// deterministic oracle and reports accuracy against the known answer.
type Harness struct {
	controller *Controller
	oracle     DeterministicOracle
	logger     *slog.Logger
	metrics    *Metrics
	now        func() time.Time
}

// NewHarness returns a harness. oracle may be nil to skip the
// deterministic path.
func NewHarness(controller *Controller, oracle DeterministicOracle, opts ...Option) (*Harness, error) {
	if controller == nil {
		return nil, fmt.Errorf("%w: nil controller", ErrInvalidConfig)
	}
	o := buildOptions(opts)
	return &Harness{
		controller: controller,
		oracle:     oracle,
		logger:     o.logger,
		metrics:    o.metrics,
		now:        time.Now,
	}, nil
}

// EvaluateStochastic runs the adaptive controller on p. Validation errors
// are returned without a report. A convergence failure is returned together
// with a report whose Err field is set.
func (h *Harness) EvaluateStochastic(ctx context.Context, p Problem) (Report, error) {
	if err := p.Validate(); err != nil {
		return Report{}, err
	}

	start := h.now()
	res, err := h.controller.Refine(ctx, p.Integrand, p.Volume, p.Tolerance)
	elapsed := h.now().Sub(start)

	report := Report{
		RunID:          uuid.NewString(),
		Scenario:       p.Name,
		Method:         MethodStochastic,
		ElapsedSeconds: elapsed.Seconds(),
		Answer:         p.Answer,
	}
	if err != nil {
		var cerr *ConvergenceError
		if errors.As(err, &cerr) {
			report.Mean = cerr.Last.Mean
			report.ReportedError = cerr.Last.Stddev
			report.Rounds = cerr.Rounds
			report.Evaluations = cerr.Evaluations
			fillAccuracy(&report)
		}
		report.Err = err.Error()
		h.metrics.observeEvaluation(MethodStochastic, OutcomeFailed, elapsed)
		return report, err
	}

	report.Mean = res.Estimate.Mean
	report.ReportedError = res.Estimate.Stddev
	report.Rounds = res.Rounds
	report.Evaluations = res.Evaluations
	fillAccuracy(&report)
	h.metrics.observeEvaluation(MethodStochastic, OutcomeConverged, elapsed)
	return report, nil
}

// EvaluateDeterministic runs the oracle on p.
func (h *Harness) EvaluateDeterministic(ctx context.Context, p Problem) (Report, error) {
	if h.oracle == nil {
		return Report{}, fmt.Errorf("%w: no deterministic oracle configured", ErrInvalidConfig)
	}
	if err := p.Validate(); err != nil {
		return Report{}, err
	}
	if err := ctx.Err(); err != nil {
		return Report{}, err
	}

	start := h.now()
	value, errEst, err := h.oracle.Integrate(p.Integrand, p.Volume.Flatten(), p.Tolerance.Relative)
	elapsed := h.now().Sub(start)

	report := Report{
		RunID:          uuid.NewString(),
		Scenario:       p.Name,
		Method:         MethodDeterministic,
		ElapsedSeconds: elapsed.Seconds(),
		Answer:         p.Answer,
	}
	if err != nil {
		if !errors.Is(err, ErrQuadratureFailure) && !isValidationError(err) {
			err = fmt.Errorf("%w: %v", ErrQuadratureFailure, err)
		}
		report.Err = err.Error()
		h.metrics.observeEvaluation(MethodDeterministic, OutcomeFailed, elapsed)
		return report, err
	}

	report.Mean = value
	report.ReportedError = errEst
	fillAccuracy(&report)
	h.metrics.observeEvaluation(MethodDeterministic, OutcomeConverged, elapsed)
	return report, nil
}

// Run evaluates both paths. Validation errors abort with no partial result;
// a failure in one path is recorded in its report and the other path still
// runs. The returned error is non-nil only for validation and cancellation.
func (h *Harness) Run(ctx context.Context, p Problem) (ScenarioResult, error) {
	if err := p.Validate(); err != nil {
		return ScenarioResult{}, err
	}

	result := ScenarioResult{Scenario: p.Name}
	logger := h.logger.With("scenario", p.Name)

	stoch, err := h.EvaluateStochastic(ctx, p)
	if err != nil {
		if ctx.Err() != nil {
			return ScenarioResult{}, err
		}
		logger.Error("stochastic evaluation failed", "error", err)
	}
	result.Stochastic = stoch

	if h.oracle != nil {
		det, err := h.EvaluateDeterministic(ctx, p)
		if err != nil {
			if ctx.Err() != nil {
				return ScenarioResult{}, err
			}
			logger.Error("deterministic evaluation failed", "error", err)
		}
		result.Deterministic = &det
	}

	return result, nil
}

// RunAll evaluates each problem in order. A failing scenario never stops
// the batch; a rejected problem is recorded in ScenarioResult.Rejected.
// Only context cancellation ends the batch early.
func (h *Harness) RunAll(ctx context.Context, problems []Problem) ([]ScenarioResult, error) {
	results := make([]ScenarioResult, 0, len(problems))

	for _, p := range problems {
		res, err := h.Run(ctx, p)
		if err != nil {
			if ctx.Err() != nil {
				return results, fmt.Errorf("batch canceled at %q: %w", p.Name, err)
			}
			h.logger.Error("scenario rejected", "scenario", p.Name, "error", err)
			res = ScenarioResult{Scenario: p.Name, Rejected: err}
		}
		results = append(results, res)
	}

	return results, nil
}

// fillAccuracy derives true, relative and fractional errors from Mean,
// ReportedError and Answer.
func fillAccuracy(r *Report) {
	r.TrueError = math.Abs(r.Mean - r.Answer)

	switch {
	case r.ReportedError > 0:
		r.ErrorRatio = r.TrueError / r.ReportedError
	case r.TrueError == 0:
		r.ErrorRatio = 0
	default:
		r.ErrorRatio = math.Inf(1)
	}

	if r.Answer == 0 {
		r.TrueFractionalError = math.NaN()
		r.FractionalDefined = false
		return
	}
	r.TrueFractionalError = r.TrueError / r.Answer
	r.FractionalDefined = true
}
