package mcbench

import (
	"encoding/json"
	"fmt"
	"io"
	"math"
	"strings"

	"gopkg.in/yaml.v3"
)

// Output formats accepted by WriteResults.
const (
	FormatText = "text"
	FormatJSON = "json"
	FormatYAML = "yaml"
)

// reportDoc is the serialized form of a Report. Non-finite numbers become
// strings so both JSON and YAML stay valid.
type reportDoc struct {
	RunID               string `json:"run_id" yaml:"run_id"`
	Scenario            string `json:"scenario" yaml:"scenario"`
	Method              string `json:"method" yaml:"method"`
	Mean                any    `json:"mean" yaml:"mean"`
	ReportedError       any    `json:"reported_error" yaml:"reported_error"`
	ElapsedSeconds      any    `json:"elapsed_seconds" yaml:"elapsed_seconds"`
	Answer              any    `json:"answer" yaml:"answer"`
	TrueError           any    `json:"true_error,omitempty" yaml:"true_error,omitempty"`
	ErrorRatio          any    `json:"error_ratio,omitempty" yaml:"error_ratio,omitempty"`
	TrueFractionalError any    `json:"true_fractional_error,omitempty" yaml:"true_fractional_error,omitempty"`
	Rounds              int    `json:"rounds,omitempty" yaml:"rounds,omitempty"`
	Evaluations         int64  `json:"evaluations,omitempty" yaml:"evaluations,omitempty"`
	Error               string `json:"error,omitempty" yaml:"error,omitempty"`
}

type scenarioDoc struct {
	Scenario      string     `json:"scenario" yaml:"scenario"`
	Rejected      string     `json:"rejected,omitempty" yaml:"rejected,omitempty"`
	Stochastic    *reportDoc `json:"stochastic,omitempty" yaml:"stochastic,omitempty"`
	Deterministic *reportDoc `json:"deterministic,omitempty" yaml:"deterministic,omitempty"`
}

func number(v float64) any {
	switch {
	case math.IsNaN(v):
		return "undefined"
	case math.IsInf(v, 1):
		return "+Inf"
	case math.IsInf(v, -1):
		return "-Inf"
	}
	return v
}

func (r Report) doc() *reportDoc {
	d := &reportDoc{
		RunID:          r.RunID,
		Scenario:       r.Scenario,
		Method:         r.Method,
		Mean:           number(r.Mean),
		ReportedError:  number(r.ReportedError),
		ElapsedSeconds: number(r.ElapsedSeconds),
		Answer:         number(r.Answer),
		Rounds:         r.Rounds,
		Evaluations:    r.Evaluations,
		Error:          r.Err,
	}
	if !r.Failed() {
		d.TrueError = number(r.TrueError)
		d.ErrorRatio = number(r.ErrorRatio)
		if r.FractionalDefined {
			d.TrueFractionalError = number(r.TrueFractionalError)
		} else {
			d.TrueFractionalError = "undefined"
		}
	}
	return d
}

func (s ScenarioResult) doc() scenarioDoc {
	d := scenarioDoc{Scenario: s.Scenario}
	if s.Rejected != nil {
		d.Rejected = s.Rejected.Error()
		return d
	}
	d.Stochastic = s.Stochastic.doc()
	if s.Deterministic != nil {
		d.Deterministic = s.Deterministic.doc()
	}
	return d
}

// MarshalJSON encodes the report with non-finite values as strings.
func (r Report) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.doc())
}

// MarshalYAML encodes the report with non-finite values as strings.
func (r Report) MarshalYAML() (any, error) {
	return r.doc(), nil
}

// WriteText writes a human-readable report in the order
// duration, result, true error, ratio, fractional error.
func (r Report) WriteText(w io.Writer) error {
	label := strings.ToUpper(r.Method)
	var b strings.Builder

	fmt.Fprintf(&b, "%s Starting %s [%s]\n", strings.Repeat("*", 10), label, r.Scenario)
	if r.Failed() {
		fmt.Fprintf(&b, "Integration with %s FAILED: %s\n", label, r.Err)
		if r.Rounds > 0 {
			fmt.Fprintf(&b, "Last estimate: %v +/- %v after %d rounds\n", r.Mean, r.ReportedError, r.Rounds)
		}
		_, err := io.WriteString(w, b.String())
		return err
	}

	fmt.Fprintf(&b, "Integration with %s took %v seconds\n", label, r.ElapsedSeconds)
	fmt.Fprintf(&b, "Result: %v +/- %v\n", r.Mean, r.ReportedError)
	if r.Rounds > 0 {
		fmt.Fprintf(&b, "Refinement rounds: %d (%d evaluations)\n", r.Rounds, r.Evaluations)
	}
	fmt.Fprintf(&b, "True error is: %v\n", r.TrueError)
	fmt.Fprintf(&b, "Ratio (true error)/(estimated error) = %v\n", r.ErrorRatio)
	if r.FractionalDefined {
		fmt.Fprintf(&b, "True fractional error = %v\n", r.TrueFractionalError)
	} else {
		b.WriteString("True fractional error = undefined (known answer is 0)\n")
	}

	_, err := io.WriteString(w, b.String())
	return err
}

// CheckFormat rejects unknown output formats.
func CheckFormat(format string) error {
	switch format {
	case FormatText, FormatJSON, FormatYAML, "":
		return nil
	}
	return fmt.Errorf("unknown output format %q (want text, json or yaml)", format)
}

// WriteResults writes all scenario results in the given format.
func WriteResults(w io.Writer, format string, results []ScenarioResult) error {
	switch format {
	case FormatText, "":
		for _, s := range results {
			if s.Rejected != nil {
				if _, err := fmt.Fprintf(w, "%s Scenario %s rejected: %v\n", strings.Repeat("*", 10), s.Scenario, s.Rejected); err != nil {
					return err
				}
				continue
			}
			if err := s.Stochastic.WriteText(w); err != nil {
				return err
			}
			if s.Deterministic != nil {
				if err := s.Deterministic.WriteText(w); err != nil {
					return err
				}
			}
		}
		return nil

	case FormatJSON:
		docs := make([]scenarioDoc, len(results))
		for i, s := range results {
			docs[i] = s.doc()
		}
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(docs)

	case FormatYAML:
		docs := make([]scenarioDoc, len(results))
		for i, s := range results {
			docs[i] = s.doc()
		}
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(docs); err != nil {
			return err
		}
		return enc.Close()
	}

	return CheckFormat(format)
}
