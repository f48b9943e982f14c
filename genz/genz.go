// Package genz provides Genz's test-function families on the unit cube
// [0,1]^d together with their closed-form integrals.
//
// Families (a = coefficients, w = shift):
//   - oscillatory:  cos(2π·w₁ + Σ aᵢxᵢ)
//   - product-peak: Π 1/(aᵢ⁻² + (xᵢ - wᵢ)²)
//   - corner-peak:  (1 + Σ aᵢxᵢ)^(-p), p defaults to d+1
//   - gaussian:     exp(-Σ aᵢ²(xᵢ - wᵢ)²)
//   - continuous:   exp(-Σ aᵢ|xᵢ - wᵢ|)
//   - odd:          Σ aᵢ(xᵢ - wᵢ), zero integral for the default shift
//
// Larger coefficients make a function harder to integrate. Missing shifts
// default to 0 for oscillatory (phase only) and 0.5 for the others.
package genz

import (
	"errors"
	"fmt"
	"math"
	"math/cmplx"
	"sort"
	"strings"
)

// Family names a Genz test-function family.
type Family string

const (
	Oscillatory Family = "oscillatory"
	ProductPeak Family = "product-peak"
	CornerPeak  Family = "corner-peak"
	Gaussian    Family = "gaussian"
	Continuous  Family = "continuous"
	Odd         Family = "odd"
)

// Families lists every supported family, sorted by name.
func Families() []Family {
	out := []Family{Oscillatory, ProductPeak, CornerPeak, Gaussian, Continuous, Odd}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// ErrParameters is returned for coefficient or shift vectors that do not fit
// the family.
var ErrParameters = errors.New("genz: invalid parameters")

// Function is one member of a family. It implements mcbench.Integrand and
// is safe for concurrent evaluation.
type Function struct {
	family Family
	a      []float64
	w      []float64
	power  int
}

// New builds a function of the named family. shift may be nil; power is
// used by corner-peak only (0 selects d+1).
func New(family Family, coefficients, shift []float64, power int) (*Function, error) {
	d := len(coefficients)
	if d == 0 {
		return nil, fmt.Errorf("%w: at least one coefficient required", ErrParameters)
	}
	for i, c := range coefficients {
		if math.IsNaN(c) || math.IsInf(c, 0) {
			return nil, fmt.Errorf("%w: coefficient %d is %v", ErrParameters, i, c)
		}
	}

	a := append([]float64(nil), coefficients...)
	var w []float64
	switch {
	case len(shift) == d:
		w = append([]float64(nil), shift...)
	case len(shift) == 0:
		w = make([]float64, d)
		if family != Oscillatory {
			for i := range w {
				w[i] = 0.5
			}
		}
	case family == Oscillatory && len(shift) == 1:
		w = make([]float64, d)
		w[0] = shift[0]
	default:
		return nil, fmt.Errorf("%w: %d shifts for %d coefficients", ErrParameters, len(shift), d)
	}

	f := &Function{family: family, a: a, w: w}

	switch family {
	case Oscillatory, Gaussian, Continuous, Odd:
	case ProductPeak:
		for i, c := range a {
			if c == 0 {
				return nil, fmt.Errorf("%w: product-peak coefficient %d must be non-zero", ErrParameters, i)
			}
		}
	case CornerPeak:
		for i, c := range a {
			if c <= 0 {
				return nil, fmt.Errorf("%w: corner-peak coefficient %d must be > 0, got %g", ErrParameters, i, c)
			}
		}
		if power < 0 {
			return nil, fmt.Errorf("%w: corner-peak power must be >= 1, got %d", ErrParameters, power)
		}
		if power == 0 {
			power = d + 1
		}
		f.power = power
	default:
		return nil, fmt.Errorf("%w: unknown family %q", ErrParameters, family)
	}

	return f, nil
}

// ParseFamily resolves a family name, case-insensitively.
func ParseFamily(name string) (Family, error) {
	n := Family(strings.ToLower(strings.TrimSpace(name)))
	for _, f := range Families() {
		if f == n {
			return f, nil
		}
	}
	return "", fmt.Errorf("%w: unknown family %q", ErrParameters, name)
}

// Family returns the function's family.
func (f *Function) Family() Family { return f.family }

// Dim returns the number of variables.
func (f *Function) Dim() int { return len(f.a) }

// Power returns the corner-peak exponent, 0 for other families.
func (f *Function) Power() int { return f.power }

// Eval evaluates the function at x.
func (f *Function) Eval(x []float64) float64 {
	switch f.family {
	case Oscillatory:
		s := 2 * math.Pi * f.w[0]
		for i, xi := range x {
			s += f.a[i] * xi
		}
		return math.Cos(s)

	case ProductPeak:
		p := 1.0
		for i, xi := range x {
			dx := xi - f.w[i]
			p /= 1/(f.a[i]*f.a[i]) + dx*dx
		}
		return p

	case CornerPeak:
		s := 1.0
		for i, xi := range x {
			s += f.a[i] * xi
		}
		return math.Pow(s, -float64(f.power))

	case Gaussian:
		s := 0.0
		for i, xi := range x {
			dx := f.a[i] * (xi - f.w[i])
			s += dx * dx
		}
		return math.Exp(-s)

	case Continuous:
		s := 0.0
		for i, xi := range x {
			s += f.a[i] * math.Abs(xi-f.w[i])
		}
		return math.Exp(-s)

	case Odd:
		s := 0.0
		for i, xi := range x {
			s += f.a[i] * (xi - f.w[i])
		}
		return s
	}
	return math.NaN()
}

// Integral returns the exact integral over [0,1]^d.
func (f *Function) Integral() float64 {
	switch f.family {
	case Oscillatory:
		z := cmplx.Exp(complex(0, 2*math.Pi*f.w[0]))
		for _, a := range f.a {
			if a == 0 {
				continue
			}
			z *= (cmplx.Exp(complex(0, a)) - 1) / complex(0, a)
		}
		return real(z)

	case ProductPeak:
		p := 1.0
		for i, a := range f.a {
			p *= a * (math.Atan(a*(1-f.w[i])) + math.Atan(a*f.w[i]))
		}
		return p

	case CornerPeak:
		return f.cornerPeakIntegral()

	case Gaussian:
		p := 1.0
		for i, a := range f.a {
			if a == 0 {
				continue
			}
			a = math.Abs(a)
			p *= math.Sqrt(math.Pi) / (2 * a) * (math.Erf(a*(1-f.w[i])) + math.Erf(a*f.w[i]))
		}
		return p

	case Continuous:
		p := 1.0
		for i, a := range f.a {
			if a == 0 {
				continue
			}
			p *= (2 - math.Exp(-a*f.w[i]) - math.Exp(-a*(1-f.w[i]))) / a
		}
		return p

	case Odd:
		s := 0.0
		for i, a := range f.a {
			s += a * (0.5 - f.w[i])
		}
		return s
	}
	return math.NaN()
}

// cornerPeakIntegral uses the d-fold finite difference of the d-th
// antiderivative G of s^(-p):
//
//	∫ g(1 + Σ aᵢxᵢ) dx = (1/Π aᵢ) Σ_{S ⊆ {1..d}} (-1)^(d-|S|) G(1 + Σ_{i∈S} aᵢ)
//
// Polynomial terms of degree < d in G cancel in the sum, so any
// antiderivative works. When p <= d the repeated antiderivative of s^(-1)
// introduces a logarithm.
func (f *Function) cornerPeakIntegral() float64 {
	d := len(f.a)
	p := f.power

	antiderivative := func(s float64) float64 {
		if p > d {
			den := 1.0
			for j := 1; j <= d; j++ {
				den *= float64(j - p)
			}
			return math.Pow(s, float64(d-p)) / den
		}
		// After p-1 integrations s^(-p) becomes c/s; m more give
		// c·s^(m-1)(ln s - H_(m-1))/(m-1)!.
		c := 1.0
		for j := 1; j < p; j++ {
			c /= float64(j - p)
		}
		m := d - p + 1
		harmonic, fact := 0.0, 1.0
		for j := 1; j < m; j++ {
			harmonic += 1 / float64(j)
			fact *= float64(j)
		}
		return c * math.Pow(s, float64(m-1)) * (math.Log(s) - harmonic) / fact
	}

	total := 0.0
	for mask := 0; mask < 1<<d; mask++ {
		s := 1.0
		size := 0
		for i := 0; i < d; i++ {
			if mask&(1<<i) != 0 {
				s += f.a[i]
				size++
			}
		}
		term := antiderivative(s)
		if (d-size)%2 == 1 {
			term = -term
		}
		total += term
	}

	prod := 1.0
	for _, a := range f.a {
		prod *= a
	}
	return total / prod
}

// String describes the function, e.g. "corner-peak[1 2 3]^-3".
func (f *Function) String() string {
	if f.family == CornerPeak {
		return fmt.Sprintf("%s%v^-%d", f.family, f.a, f.power)
	}
	return fmt.Sprintf("%s%v", f.family, f.a)
}
