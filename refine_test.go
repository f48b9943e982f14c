package mcbench

import (
	"context"
	"errors"
	"math"
	"testing"
)

func newTestController(t *testing.T, build func() StochasticIntegrator, cfg RefineConfig) (*Controller, *countingFactory) {
	t.Helper()
	cf := &countingFactory{build: build}
	c, err := NewController(cf.factory, cfg, WithLogger(quietLogger()))
	if err != nil {
		t.Fatalf("NewController: %v", err)
	}
	return c, cf
}

func TestRefine_ConvergesWithSqrtNScaling(t *testing.T) {
	stub := &sqrtNIntegrator{mean: 1, sigma: 1}
	c, _ := newTestController(t, func() StochasticIntegrator { return stub }, DefaultRefineConfig())

	res, err := c.Refine(context.Background(), constant3, cube3(t), Tolerance{Relative: 1e-3})
	if err != nil {
		t.Fatalf("Refine: %v", err)
	}

	// stddev = 1/sqrt(10*B) <= 1e-3 first holds at B = 270,000.
	if res.Rounds != 4 {
		t.Errorf("Expected 4 rounds, got %d", res.Rounds)
	}
	if res.Budget != 270_000 {
		t.Errorf("Expected final budget 270000, got %d", res.Budget)
	}
	if res.Evaluations != 4_000_000 {
		t.Errorf("Expected 4,000,000 evaluations, got %d", res.Evaluations)
	}

	AssertStoppingRule(t, res.Estimate, Tolerance{Relative: 1e-3}, 0)
}

func TestRefine_BudgetsGrowMonotonically(t *testing.T) {
	stub := &sqrtNIntegrator{mean: 1, sigma: 1}
	c, _ := newTestController(t, func() StochasticIntegrator { return stub }, DefaultRefineConfig())

	if _, err := c.Refine(context.Background(), constant3, cube3(t), Tolerance{Relative: 1e-3}); err != nil {
		t.Fatalf("Refine: %v", err)
	}

	want := []int{10_000, 30_000, 90_000, 270_000}
	got := stub.calls()
	if len(got) != len(want) {
		t.Fatalf("Expected budgets %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Round %d: expected budget %d, got %d", i+1, want[i], got[i])
		}
		if i > 0 && got[i] <= got[i-1] {
			t.Errorf("Budget did not grow: round %d %d <= %d", i+1, got[i], got[i-1])
		}
	}
}

func TestRefine_FirstRoundSufficient(t *testing.T) {
	stub := &sqrtNIntegrator{mean: 1, sigma: 1}
	c, _ := newTestController(t, func() StochasticIntegrator { return stub }, DefaultRefineConfig())

	res, err := c.Refine(context.Background(), constant3, cube3(t), Tolerance{Relative: 0.1})
	if err != nil {
		t.Fatalf("Refine: %v", err)
	}
	if res.Rounds != 1 || len(stub.calls()) != 1 {
		t.Errorf("Expected a single round, got %d rounds and %d calls", res.Rounds, len(stub.calls()))
	}
}

func TestRefine_TighterToleranceNeverFewerRounds(t *testing.T) {
	prev := 0
	for _, rel := range []float64{1e-1, 1e-2, 1e-3, 1e-4} {
		stub := &sqrtNIntegrator{mean: 1, sigma: 1}
		c, _ := newTestController(t, func() StochasticIntegrator { return stub }, DefaultRefineConfig())

		res, err := c.Refine(context.Background(), constant3, cube3(t), Tolerance{Relative: rel})
		if err != nil {
			t.Fatalf("Refine(rel=%g): %v", rel, err)
		}
		if res.Rounds < prev {
			t.Errorf("rel=%g took %d rounds, fewer than %d at a looser tolerance", rel, res.Rounds, prev)
		}
		prev = res.Rounds
	}

	// 1/sqrt(10*B) <= 1e-4 first holds at B = 10,000*3^7.
	if prev != 8 {
		t.Errorf("Expected 8 rounds at rel=1e-4, got %d", prev)
	}
}

func TestRefine_CustomGrowth(t *testing.T) {
	stub := &sqrtNIntegrator{mean: 1, sigma: 1}
	cfg := DefaultRefineConfig()
	cfg.Iterations = 1
	cfg.InitialBudget = 100
	cfg.GrowthFactor = 1.5

	c, _ := newTestController(t, func() StochasticIntegrator { return stub }, cfg)
	if _, err := c.Refine(context.Background(), constant3, cube3(t), Tolerance{Relative: 0.05}); err != nil {
		t.Fatalf("Refine: %v", err)
	}

	// 1/sqrt(B) <= 0.05 needs B >= 400: 100, 150, 225, 338, 507.
	want := []int{100, 150, 225, 338, 507}
	got := stub.calls()
	if len(got) != len(want) {
		t.Fatalf("Expected budgets %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Round %d: expected budget %d, got %d", i+1, want[i], got[i])
		}
	}
}

func TestRefine_ValidationBeforeEvaluation(t *testing.T) {
	tests := []struct {
		name    string
		f       Integrand
		tol     Tolerance
		wantErr error
	}{
		{"arity mismatch", Func(2, func([]float64) float64 { return 1 }), Tolerance{Relative: 1e-3}, ErrInvalidVolume},
		{"nil integrand", nil, Tolerance{Relative: 1e-3}, ErrInvalidVolume},
		{"zero tolerance", constant3, Tolerance{Relative: 0}, ErrInvalidTolerance},
		{"negative tolerance", constant3, Tolerance{Relative: -1e-3}, ErrInvalidTolerance},
		{"NaN tolerance", constant3, Tolerance{Relative: math.NaN()}, ErrInvalidTolerance},
		{"negative absolute", constant3, Tolerance{Relative: 1e-3, Absolute: -1}, ErrInvalidTolerance},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stub := &sqrtNIntegrator{mean: 1, sigma: 1}
			c, cf := newTestController(t, func() StochasticIntegrator { return stub }, DefaultRefineConfig())

			// Repeating the call gives the same error with no side effects.
			for i := 0; i < 2; i++ {
				_, err := c.Refine(context.Background(), tt.f, cube3(t), tt.tol)
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("Expected %v, got %v", tt.wantErr, err)
				}
			}
			if cf.count() != 0 || len(stub.calls()) != 0 {
				t.Errorf("Expected zero evaluations, got %d integrators and %d calls",
					cf.count(), len(stub.calls()))
			}
		})
	}
}

func TestRefine_EmptyVolume(t *testing.T) {
	stub := &sqrtNIntegrator{mean: 1, sigma: 1}
	c, cf := newTestController(t, func() StochasticIntegrator { return stub }, DefaultRefineConfig())

	_, err := c.Refine(context.Background(), constant3, Volume{}, Tolerance{Relative: 1e-3})
	if !errors.Is(err, ErrInvalidVolume) {
		t.Fatalf("Expected ErrInvalidVolume, got %v", err)
	}
	if cf.count() != 0 {
		t.Errorf("Integrator built for an empty volume")
	}
}

func TestRefine_ZeroMeanWithoutFloorFails(t *testing.T) {
	stub := &sqrtNIntegrator{mean: 0, sigma: 1}
	cfg := DefaultRefineConfig()
	cfg.MaxRounds = 5

	c, _ := newTestController(t, func() StochasticIntegrator { return stub }, cfg)
	_, err := c.Refine(context.Background(), constant3, cube3(t), Tolerance{Relative: 1e-3})

	var cerr *ConvergenceError
	if !errors.As(err, &cerr) {
		t.Fatalf("Expected *ConvergenceError, got %v", err)
	}
	if !errors.Is(err, ErrConvergenceFailure) {
		t.Errorf("ConvergenceError does not unwrap to ErrConvergenceFailure")
	}
	if cerr.Rounds != 5 {
		t.Errorf("Expected failure after 5 rounds, got %d", cerr.Rounds)
	}
	if cerr.Threshold != 0 {
		t.Errorf("Expected zero threshold for zero mean, got %g", cerr.Threshold)
	}
}

func TestRefine_ZeroMeanWithAbsoluteTolerance(t *testing.T) {
	stub := &sqrtNIntegrator{mean: 0, sigma: 1}
	c, _ := newTestController(t, func() StochasticIntegrator { return stub }, DefaultRefineConfig())

	tol := Tolerance{Relative: 1e-3, Absolute: 1e-3}
	res, err := c.Refine(context.Background(), constant3, cube3(t), tol)
	if err != nil {
		t.Fatalf("Refine: %v", err)
	}
	if res.Threshold != 1e-3 {
		t.Errorf("Expected threshold 1e-3, got %g", res.Threshold)
	}
	AssertStoppingRule(t, res.Estimate, tol, 0)
}

func TestRefine_ZeroMeanWithConfigFloor(t *testing.T) {
	stub := &sqrtNIntegrator{mean: 0, sigma: 1}
	cfg := DefaultRefineConfig()
	cfg.AbsoluteToleranceFloor = 1e-2

	c, _ := newTestController(t, func() StochasticIntegrator { return stub }, cfg)
	res, err := c.Refine(context.Background(), constant3, cube3(t), Tolerance{Relative: 1e-3})
	if err != nil {
		t.Fatalf("Refine: %v", err)
	}
	if res.Rounds != 1 {
		t.Errorf("Expected 1 round under a 1e-2 floor, got %d", res.Rounds)
	}
}

func TestRefine_BudgetCeiling(t *testing.T) {
	stub := &sqrtNIntegrator{mean: 1, sigma: 1}
	cfg := DefaultRefineConfig()
	cfg.MaxEvaluationBudget = 50_000

	c, _ := newTestController(t, func() StochasticIntegrator { return stub }, cfg)
	_, err := c.Refine(context.Background(), constant3, cube3(t), Tolerance{Relative: 1e-6})

	var cerr *ConvergenceError
	if !errors.As(err, &cerr) {
		t.Fatalf("Expected *ConvergenceError, got %v", err)
	}
	// 10,000 and 30,000 run; 90,000 would exceed the ceiling.
	if cerr.Rounds != 2 || cerr.Budget != 30_000 {
		t.Errorf("Expected stop after round 2 at budget 30000, got round %d budget %d", cerr.Rounds, cerr.Budget)
	}
	if cerr.Last.Mean != 1 {
		t.Errorf("Expected last estimate to be carried, got %v", cerr.Last)
	}
	if got := len(stub.calls()); got != 2 {
		t.Errorf("Expected 2 integrator calls, got %d", got)
	}
}

func TestRefine_IntegratorError(t *testing.T) {
	c, _ := newTestController(t, func() StochasticIntegrator {
		return fixedIntegrator{err: errStub}
	}, DefaultRefineConfig())

	_, err := c.Refine(context.Background(), constant3, cube3(t), Tolerance{Relative: 1e-3})
	if !errors.Is(err, errStub) {
		t.Fatalf("Expected wrapped stub error, got %v", err)
	}
}

func TestRefine_NonFiniteEstimate(t *testing.T) {
	c, _ := newTestController(t, func() StochasticIntegrator {
		return fixedIntegrator{est: SampledEstimate{Mean: math.NaN(), Stddev: 0}}
	}, DefaultRefineConfig())

	_, err := c.Refine(context.Background(), constant3, cube3(t), Tolerance{Relative: 1e-3})
	var cerr *ConvergenceError
	if !errors.As(err, &cerr) {
		t.Fatalf("Expected *ConvergenceError, got %v", err)
	}
	if cerr.Rounds != 1 {
		t.Errorf("Expected failure in round 1, got %d", cerr.Rounds)
	}
}

func TestRefine_Canceled(t *testing.T) {
	stub := &sqrtNIntegrator{mean: 1, sigma: 1}
	c, _ := newTestController(t, func() StochasticIntegrator { return stub }, DefaultRefineConfig())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.Refine(ctx, constant3, cube3(t), Tolerance{Relative: 1e-3})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Expected context.Canceled, got %v", err)
	}
	if len(stub.calls()) != 0 {
		t.Errorf("Expected no rounds after cancellation, got %d", len(stub.calls()))
	}
}

// cancelAfter cancels its context once the given number of rounds ran.
type cancelAfter struct {
	sqrtNIntegrator
	rounds int
	cancel context.CancelFunc
}

func (c *cancelAfter) Integrate(f Integrand, iterations, evaluations int) (SampledEstimate, error) {
	est, err := c.sqrtNIntegrator.Integrate(f, iterations, evaluations)
	if len(c.calls()) == c.rounds {
		c.cancel()
	}
	return est, err
}

func TestRefine_CanceledBetweenRounds(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stub := &cancelAfter{sqrtNIntegrator: sqrtNIntegrator{mean: 1, sigma: 1}, rounds: 2, cancel: cancel}
	c, _ := newTestController(t, func() StochasticIntegrator { return stub }, DefaultRefineConfig())

	_, err := c.Refine(ctx, constant3, cube3(t), Tolerance{Relative: 1e-6})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Expected context.Canceled, got %v", err)
	}
	if got := len(stub.calls()); got != 2 {
		t.Errorf("Expected the in-flight round to finish and no more, got %d rounds", got)
	}
}

func TestRefine_FreshIntegratorPerRun(t *testing.T) {
	c, cf := newTestController(t, func() StochasticIntegrator {
		return &sqrtNIntegrator{mean: 1, sigma: 1}
	}, DefaultRefineConfig())

	for i := 0; i < 3; i++ {
		if _, err := c.Refine(context.Background(), constant3, cube3(t), Tolerance{Relative: 1e-2}); err != nil {
			t.Fatalf("Refine %d: %v", i, err)
		}
	}
	if cf.count() != 3 {
		t.Errorf("Expected 3 integrators, got %d", cf.count())
	}
}

func TestController_Threshold(t *testing.T) {
	cfg := DefaultRefineConfig()
	cfg.AbsoluteToleranceFloor = 1e-9
	c, _ := newTestController(t, func() StochasticIntegrator { return fixedIntegrator{} }, cfg)

	tests := []struct {
		mean float64
		tol  Tolerance
		want float64
	}{
		{-0.5, Tolerance{Relative: 1e-4}, 5e-5},
		{2, Tolerance{Relative: 1e-3, Absolute: 1e-2}, 1e-2},
		{0, Tolerance{Relative: 1e-3}, 1e-9},
	}
	for _, tt := range tests {
		if got := c.Threshold(tt.mean, tt.tol); math.Abs(got-tt.want) > 1e-18 {
			t.Errorf("Threshold(%g, %+v) = %g, want %g", tt.mean, tt.tol, got, tt.want)
		}
	}
}

func TestRefineConfig_Validate(t *testing.T) {
	if err := DefaultRefineConfig().Validate(); err != nil {
		t.Fatalf("Default config invalid: %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*RefineConfig)
	}{
		{"zero iterations", func(c *RefineConfig) { c.Iterations = 0 }},
		{"zero budget", func(c *RefineConfig) { c.InitialBudget = 0 }},
		{"single evaluation budget", func(c *RefineConfig) { c.InitialBudget = 1 }},
		{"growth of one", func(c *RefineConfig) { c.GrowthFactor = 1 }},
		{"NaN growth", func(c *RefineConfig) { c.GrowthFactor = math.NaN() }},
		{"zero rounds", func(c *RefineConfig) { c.MaxRounds = 0 }},
		{"ceiling below start", func(c *RefineConfig) { c.MaxEvaluationBudget = c.InitialBudget - 1 }},
		{"negative floor", func(c *RefineConfig) { c.AbsoluteToleranceFloor = -1 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultRefineConfig()
			tt.mutate(&cfg)
			if err := cfg.Validate(); !errors.Is(err, ErrInvalidConfig) {
				t.Errorf("Expected ErrInvalidConfig, got %v", err)
			}
			if _, err := NewController(func(Volume) (StochasticIntegrator, error) { return nil, nil }, cfg); !errors.Is(err, ErrInvalidConfig) {
				t.Errorf("NewController accepted invalid config: %v", err)
			}
		})
	}

	if _, err := NewController(nil, DefaultRefineConfig()); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("Expected ErrInvalidConfig for nil factory, got %v", err)
	}
}
