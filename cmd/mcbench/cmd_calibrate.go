package main

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"

	"github.com/alexshd/mcbench"
	"github.com/alexshd/mcbench/vegas"
)

// runCalibration repeats the stochastic path of one scenario with a new
// seed per trial and summarizes how often the true error falls inside the
// reported error bars.
func (o *flags) runCalibration(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	if o.trials < 1 {
		return fmt.Errorf("--trials must be >= 1, got %d", o.trials)
	}

	file, err := o.loadScenarios()
	if err != nil {
		return err
	}
	specs, err := file.Select(args[0])
	if err != nil {
		return err
	}
	problem, err := specs[0].Problem()
	if err != nil {
		return err
	}

	reg, metrics := o.newRegistry()
	defer o.writeMetrics(reg)

	tracker := mcbench.NewCalibrationTracker(o.trials)
	start := time.Now()

	for trial := 0; trial < o.trials; trial++ {
		seed := o.seed + uint64(trial)
		controller, err := mcbench.NewController(vegas.Factory(o.vegasConfig(seed)), o.refineConfig(),
			mcbench.WithLogger(slog.Default()), mcbench.WithMetrics(metrics))
		if err != nil {
			return err
		}
		harness, err := mcbench.NewHarness(controller, nil,
			mcbench.WithLogger(slog.Default()), mcbench.WithMetrics(metrics))
		if err != nil {
			return err
		}

		report, err := harness.EvaluateStochastic(ctx, problem)
		if err != nil && ctx.Err() != nil {
			return err
		}
		tracker.RecordReport(report)
		slog.Debug("Calibration trial",
			"trial", trial+1,
			"seed", seed,
			"mean", report.Mean,
			"stddev", report.ReportedError,
			"ratio", report.ErrorRatio,
			"error", report.Err,
		)
	}

	s := tracker.Stats()
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Calibration of %s over %d trials (%d skipped) in %s\n",
		problem.Name, s.Trials, s.Skipped, elapsedSince(start))
	fmt.Fprintf(out, "  mean pull          %+.4f (expect ~0)\n", s.MeanPull)
	fmt.Fprintf(out, "  pull stddev         %.4f (expect ~1)\n", s.StddevPull)
	fmt.Fprintf(out, "  median |z|          %.4f (expect ~0.674)\n", s.MedianRatio)
	fmt.Fprintf(out, "  95th pct |z|        %.4f (expect ~1.96)\n", s.P95Ratio)
	fmt.Fprintf(out, "  within 1σ/2σ/3σ     %.2f / %.2f / %.2f (expect 0.68 / 0.95 / 1.00)\n",
		s.WithinOneSigma, s.WithinTwoSigma, s.WithinThreeSigma)

	if tracker.IsOverconfident(3) {
		fmt.Fprintln(out, "  verdict             OVERCONFIDENT: reported errors understate the true error")
		return errScenariosFailed
	}
	fmt.Fprintln(out, "  verdict             ok")
	if s.Skipped > 0 {
		return errScenariosFailed
	}
	return nil
}
