// Package scenario loads integration test scenarios from YAML and resolves
// them into mcbench problems.
//
// A scenario names a Genz family, its coefficients and the tolerance to
// reach. The analytic answer is computed from the family unless given
// explicitly; a volume other than the unit cube requires an explicit answer.
//
//	scenarios:
//	  - name: genz-f1
//	    family: oscillatory
//	    coefficients: [1, 2, 3]
//	    rel_tol: 1.0e-4
package scenario

import (
	_ "embed"
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/alexshd/mcbench"
	"github.com/alexshd/mcbench/genz"
)

//go:embed default.yaml
var defaultYAML []byte

// ErrInvalid is returned for scenarios that cannot be resolved.
var ErrInvalid = errors.New("scenario: invalid definition")

// File is the top-level YAML document.
type File struct {
	Scenarios []Spec `yaml:"scenarios"`
}

// Spec describes one scenario.
type Spec struct {
	Name         string       `yaml:"name"`
	Description  string       `yaml:"description,omitempty"`
	Family       string       `yaml:"family"`
	Coefficients []float64    `yaml:"coefficients"`
	Shift        []float64    `yaml:"shift,omitempty"`
	Power        int          `yaml:"power,omitempty"`
	Volume       [][2]float64 `yaml:"volume,omitempty"`
	Answer       *float64     `yaml:"answer,omitempty"`
	RelTol       float64      `yaml:"rel_tol"`
	AbsTol       float64      `yaml:"abs_tol,omitempty"`
}

// Parse decodes and checks a YAML document.
func Parse(data []byte) (File, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return File{}, fmt.Errorf("parse scenarios: %w", err)
	}
	if len(f.Scenarios) == 0 {
		return File{}, fmt.Errorf("%w: no scenarios defined", ErrInvalid)
	}

	seen := make(map[string]bool, len(f.Scenarios))
	for i, s := range f.Scenarios {
		if s.Name == "" {
			return File{}, fmt.Errorf("%w: scenario %d has no name", ErrInvalid, i)
		}
		if seen[s.Name] {
			return File{}, fmt.Errorf("%w: duplicate scenario %q", ErrInvalid, s.Name)
		}
		seen[s.Name] = true
	}
	return f, nil
}

// Load reads a scenario file from disk.
func Load(path string) (File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return File{}, fmt.Errorf("read scenarios %s: %w", path, err)
	}
	return Parse(data)
}

// Default returns the built-in scenarios.
func Default() File {
	f, err := Parse(defaultYAML)
	if err != nil {
		panic(fmt.Sprintf("scenario: embedded defaults are broken: %v", err))
	}
	return f
}

// Select returns the named scenarios in the requested order, or all of
// them when names is empty.
func (f File) Select(names ...string) ([]Spec, error) {
	if len(names) == 0 {
		return f.Scenarios, nil
	}

	byName := make(map[string]Spec, len(f.Scenarios))
	for _, s := range f.Scenarios {
		byName[s.Name] = s
	}

	out := make([]Spec, 0, len(names))
	for _, n := range names {
		s, ok := byName[n]
		if !ok {
			return nil, fmt.Errorf("%w: unknown scenario %q", ErrInvalid, n)
		}
		out = append(out, s)
	}
	return out, nil
}

// Function builds the scenario's Genz function.
func (s Spec) Function() (*genz.Function, error) {
	family, err := genz.ParseFamily(s.Family)
	if err != nil {
		return nil, fmt.Errorf("%w: scenario %q: %v", ErrInvalid, s.Name, err)
	}
	fn, err := genz.New(family, s.Coefficients, s.Shift, s.Power)
	if err != nil {
		return nil, fmt.Errorf("%w: scenario %q: %v", ErrInvalid, s.Name, err)
	}
	return fn, nil
}

// Problem resolves the scenario into an mcbench problem. Volume and
// tolerance errors are the mcbench sentinels so callers can classify them.
func (s Spec) Problem() (mcbench.Problem, error) {
	fn, err := s.Function()
	if err != nil {
		return mcbench.Problem{}, err
	}

	var vol mcbench.Volume
	if len(s.Volume) == 0 {
		vol, err = mcbench.UnitCube(fn.Dim())
	} else {
		bounds := make([]mcbench.Bound, len(s.Volume))
		for i, b := range s.Volume {
			bounds[i] = mcbench.Bound{Lower: b[0], Upper: b[1]}
		}
		vol, err = mcbench.NewVolume(bounds...)
	}
	if err != nil {
		return mcbench.Problem{}, fmt.Errorf("scenario %q: %w", s.Name, err)
	}

	var answer float64
	switch {
	case s.Answer != nil:
		answer = *s.Answer
	case vol.IsUnitCube():
		answer = fn.Integral()
	default:
		return mcbench.Problem{}, fmt.Errorf("%w: scenario %q uses a non-unit volume and needs an explicit answer",
			ErrInvalid, s.Name)
	}

	p := mcbench.Problem{
		Name:      s.Name,
		Integrand: fn,
		Volume:    vol,
		Answer:    answer,
		Tolerance: mcbench.Tolerance{Relative: s.RelTol, Absolute: s.AbsTol},
	}
	if err := p.Validate(); err != nil {
		return mcbench.Problem{}, err
	}
	return p, nil
}
