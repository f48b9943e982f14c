package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/lmittmann/tint"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/alexshd/mcbench"
	"github.com/alexshd/mcbench/quadrature"
	"github.com/alexshd/mcbench/scenario"
	"github.com/alexshd/mcbench/vegas"
)

// errScenariosFailed makes the process exit non-zero after all reports
// have been printed.
var errScenariosFailed = errors.New("one or more scenarios failed")

// flags holds every command-line setting.
type flags struct {
	logLevel string
	config   string
	format   string

	workers int
	seed    uint64
	alpha   float64

	iterations    int
	initialBudget int
	growth        float64
	maxRounds     int
	maxBudget     int
	absFloor      float64

	skipQuadrature bool
	maxOrder       int
	metricsFile    string

	trials int
}

func defaultFlags() *flags {
	refine := mcbench.DefaultRefineConfig()
	engine := vegas.DefaultConfig()
	return &flags{
		logLevel:      "info",
		format:        mcbench.FormatText,
		workers:       engine.Workers,
		seed:          engine.Seed,
		alpha:         engine.Alpha,
		iterations:    refine.Iterations,
		initialBudget: refine.InitialBudget,
		growth:        refine.GrowthFactor,
		maxRounds:     refine.MaxRounds,
		maxBudget:     refine.MaxEvaluationBudget,
		absFloor:      refine.AbsoluteToleranceFloor,
		maxOrder:      quadrature.DefaultConfig().MaxOrder,
		trials:        20,
	}
}

// newRootCmd builds the command tree with its own flag set.
func newRootCmd() *cobra.Command {
	o := defaultFlags()

	rootCmd := &cobra.Command{
		Use:   "mcbench",
		Short: "Benchmark adaptive Monte Carlo integration against known answers",
		Long: `mcbench integrates Genz test functions with an adaptive VEGAS
controller and a deterministic Gauss–Legendre oracle, then reports the
result, the estimated and true errors, and their ratio.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return setupLogging(cmd.ErrOrStderr(), o.logLevel)
		},
	}

	runCmd := &cobra.Command{
		Use:   "run [scenario...]",
		Short: "Run scenarios (all when none are named)",
		RunE:  o.runScenarios,
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List available scenarios",
		Args:  cobra.NoArgs,
		RunE:  o.listScenarios,
	}

	calibrateCmd := &cobra.Command{
		Use:   "calibrate <scenario>",
		Short: "Repeat the stochastic path with distinct seeds and check its error bars",
		Args:  cobra.ExactArgs(1),
		RunE:  o.runCalibration,
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&o.logLevel, "log-level", o.logLevel, "log level: debug, info, warn, error")
	pf.StringVarP(&o.config, "config", "c", "", "scenario YAML file (default: built-in scenarios)")

	for _, cmd := range []*cobra.Command{runCmd, calibrateCmd} {
		f := cmd.Flags()
		f.IntVar(&o.workers, "workers", o.workers, "parallel workers per VEGAS iteration")
		f.Uint64Var(&o.seed, "seed", o.seed, "random seed")
		f.Float64Var(&o.alpha, "alpha", o.alpha, "VEGAS grid damping (0 freezes the grid)")
		f.IntVar(&o.iterations, "iterations", o.iterations, "VEGAS iterations per round")
		f.IntVar(&o.initialBudget, "initial-budget", o.initialBudget, "evaluations per iteration in the first round")
		f.Float64Var(&o.growth, "growth", o.growth, "budget growth factor between rounds (> 1)")
		f.IntVar(&o.maxRounds, "max-rounds", o.maxRounds, "refinement round ceiling")
		f.IntVar(&o.maxBudget, "max-budget", o.maxBudget, "per-iteration evaluation budget ceiling")
		f.Float64Var(&o.absFloor, "abs-floor", o.absFloor, "absolute stddev accepted regardless of the mean")
		f.StringVar(&o.metricsFile, "metrics-file", "", "write Prometheus metrics in text format to this file")
	}

	runCmd.Flags().StringVarP(&o.format, "format", "o", o.format, "output format: text, json, yaml")
	runCmd.Flags().BoolVar(&o.skipQuadrature, "skip-quadrature", false, "skip the deterministic path")
	runCmd.Flags().IntVar(&o.maxOrder, "max-order", o.maxOrder, "largest Gauss–Legendre order per dimension")
	calibrateCmd.Flags().IntVar(&o.trials, "trials", o.trials, "number of repeated runs")

	rootCmd.AddCommand(runCmd, listCmd, calibrateCmd)
	return rootCmd
}

func setupLogging(w io.Writer, level string) error {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.ToUpper(level))); err != nil {
		return fmt.Errorf("invalid --log-level %q: %w", level, err)
	}
	slog.SetDefault(slog.New(
		tint.NewHandler(w, &tint.Options{
			Level:      lvl,
			TimeFormat: "15:04:05",
		}),
	))
	return nil
}

func (o *flags) loadScenarios() (scenario.File, error) {
	if o.config == "" {
		return scenario.Default(), nil
	}
	return scenario.Load(o.config)
}

func (o *flags) refineConfig() mcbench.RefineConfig {
	return mcbench.RefineConfig{
		Iterations:             o.iterations,
		InitialBudget:          o.initialBudget,
		GrowthFactor:           o.growth,
		MaxRounds:              o.maxRounds,
		MaxEvaluationBudget:    o.maxBudget,
		AbsoluteToleranceFloor: o.absFloor,
	}
}

func (o *flags) vegasConfig(seed uint64) vegas.Config {
	return vegas.Config{
		Increments: vegas.DefaultConfig().Increments,
		Alpha:      o.alpha,
		Workers:    o.workers,
		Seed:       seed,
	}
}

// newRegistry returns a registry and metrics when --metrics-file is set.
func (o *flags) newRegistry() (*prometheus.Registry, *mcbench.Metrics) {
	if o.metricsFile == "" {
		return nil, nil
	}
	reg := prometheus.NewRegistry()
	return reg, mcbench.NewMetrics(reg)
}

func (o *flags) writeMetrics(reg *prometheus.Registry) {
	if reg == nil {
		return
	}
	if err := prometheus.WriteToTextfile(o.metricsFile, reg); err != nil {
		slog.Error("Failed to write metrics", "path", o.metricsFile, "error", err)
		return
	}
	slog.Info("Metrics written", "path", o.metricsFile)
}

func (o *flags) listScenarios(cmd *cobra.Command, _ []string) error {
	file, err := o.loadScenarios()
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%-16s %-14s %4s %10s %24s\n", "NAME", "FAMILY", "DIM", "REL_TOL", "ANSWER")
	for _, s := range file.Scenarios {
		p, err := s.Problem()
		if err != nil {
			fmt.Fprintf(out, "%-16s %-14s %4s %10g %24s\n", s.Name, s.Family, "?", s.RelTol, "invalid: "+err.Error())
			continue
		}
		fmt.Fprintf(out, "%-16s %-14s %4d %10g %24.17g\n", s.Name, s.Family, p.Volume.Dim(), s.RelTol, p.Answer)
	}
	return nil
}

func elapsedSince(start time.Time) string {
	return time.Since(start).Round(time.Millisecond).String()
}
