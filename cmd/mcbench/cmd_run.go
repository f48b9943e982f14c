package main

import (
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"

	"github.com/alexshd/mcbench"
	"github.com/alexshd/mcbench/quadrature"
	"github.com/alexshd/mcbench/vegas"
)

func (o *flags) runScenarios(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	if err := mcbench.CheckFormat(o.format); err != nil {
		return err
	}
	file, err := o.loadScenarios()
	if err != nil {
		return err
	}
	specs, err := file.Select(args...)
	if err != nil {
		return err
	}

	reg, metrics := o.newRegistry()
	defer o.writeMetrics(reg)

	controller, err := mcbench.NewController(vegas.Factory(o.vegasConfig(o.seed)), o.refineConfig(),
		mcbench.WithLogger(slog.Default()), mcbench.WithMetrics(metrics))
	if err != nil {
		return err
	}

	var oracle mcbench.DeterministicOracle
	if !o.skipQuadrature {
		qcfg := quadrature.DefaultConfig()
		qcfg.MaxOrder = o.maxOrder
		oracle = quadrature.New(qcfg)
	}

	harness, err := mcbench.NewHarness(controller, oracle,
		mcbench.WithLogger(slog.Default()), mcbench.WithMetrics(metrics))
	if err != nil {
		return err
	}

	// Scenarios that fail to resolve are rejected up front; the rest run
	// in order and are merged back into their original positions.
	results := make([]mcbench.ScenarioResult, len(specs))
	problems := make([]mcbench.Problem, 0, len(specs))
	slots := make([]int, 0, len(specs))
	for i, s := range specs {
		p, err := s.Problem()
		if err != nil {
			slog.Error("Scenario rejected", "scenario", s.Name, "error", err)
			results[i] = mcbench.ScenarioResult{Scenario: s.Name, Rejected: err}
			continue
		}
		problems = append(problems, p)
		slots = append(slots, i)
	}

	start := time.Now()
	ran, runErr := harness.RunAll(ctx, problems)
	for j, r := range ran {
		results[slots[j]] = r
	}
	if runErr != nil {
		// Canceled: report only what finished or was rejected.
		results = dropUnrun(results, slots[len(ran):])
	}

	if err := mcbench.WriteResults(cmd.OutOrStdout(), o.format, results); err != nil {
		return err
	}
	slog.Info("Run finished", "scenarios", len(results), "elapsed", elapsedSince(start))

	if runErr != nil {
		return runErr
	}
	for _, r := range results {
		if r.Failed() {
			return errScenariosFailed
		}
	}
	return nil
}

func dropUnrun(results []mcbench.ScenarioResult, unrun []int) []mcbench.ScenarioResult {
	skip := make(map[int]bool, len(unrun))
	for _, i := range unrun {
		skip[i] = true
	}
	out := make([]mcbench.ScenarioResult, 0, len(results)-len(unrun))
	for i, r := range results {
		if !skip[i] {
			out = append(out, r)
		}
	}
	return out
}
