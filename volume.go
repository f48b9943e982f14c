package mcbench

import (
	"fmt"
	"math"
)

// Bound is the closed interval of one integration variable.
type Bound struct {
	Lower float64
	Upper float64
}

// Width returns Upper - Lower.
func (b Bound) Width() float64 {
	return b.Upper - b.Lower
}

// Volume is an ordered, immutable list of bounds, one per integration
// variable, in the order the integrand expects its arguments.
type Volume struct {
	bounds []Bound
}

// NewVolume validates and copies the given bounds.
func NewVolume(bounds ...Bound) (Volume, error) {
	if len(bounds) == 0 {
		return Volume{}, fmt.Errorf("%w: at least one dimension required", ErrInvalidVolume)
	}

	owned := make([]Bound, len(bounds))
	for i, b := range bounds {
		if math.IsNaN(b.Lower) || math.IsNaN(b.Upper) || math.IsInf(b.Lower, 0) || math.IsInf(b.Upper, 0) {
			return Volume{}, fmt.Errorf("%w: dimension %d has non-finite bound [%g, %g]",
				ErrInvalidVolume, i, b.Lower, b.Upper)
		}
		if b.Lower >= b.Upper {
			return Volume{}, fmt.Errorf("%w: dimension %d has lower %g >= upper %g",
				ErrInvalidVolume, i, b.Lower, b.Upper)
		}
		owned[i] = b
	}

	return Volume{bounds: owned}, nil
}

// UnitCube returns [0,1]^n.
func UnitCube(n int) (Volume, error) {
	if n < 1 {
		return Volume{}, fmt.Errorf("%w: unit cube needs n >= 1, got %d", ErrInvalidVolume, n)
	}
	bounds := make([]Bound, n)
	for i := range bounds {
		bounds[i] = Bound{Lower: 0, Upper: 1}
	}
	return NewVolume(bounds...)
}

// ParseFlat builds a volume from the flattened form
// [lo0, hi0, lo1, hi1, ...] used by the deterministic oracle.
func ParseFlat(flat []float64) (Volume, error) {
	if len(flat) == 0 || len(flat)%2 != 0 {
		return Volume{}, fmt.Errorf("%w: flattened bounds need an even, non-zero length, got %d",
			ErrInvalidVolume, len(flat))
	}
	bounds := make([]Bound, len(flat)/2)
	for i := range bounds {
		bounds[i] = Bound{Lower: flat[2*i], Upper: flat[2*i+1]}
	}
	return NewVolume(bounds...)
}

// Dim returns the number of integration variables.
func (v Volume) Dim() int {
	return len(v.bounds)
}

// Bound returns the bound of dimension i.
func (v Volume) Bound(i int) Bound {
	return v.bounds[i]
}

// Bounds returns a copy of all bounds.
func (v Volume) Bounds() []Bound {
	out := make([]Bound, len(v.bounds))
	copy(out, v.bounds)
	return out
}

// Measure returns the hyper-volume Π(upper-lower).
func (v Volume) Measure() float64 {
	if len(v.bounds) == 0 {
		return 0
	}
	m := 1.0
	for _, b := range v.bounds {
		m *= b.Width()
	}
	return m
}

// Flatten returns [lo0, hi0, lo1, hi1, ...].
func (v Volume) Flatten() []float64 {
	flat := make([]float64, 0, 2*len(v.bounds))
	for _, b := range v.bounds {
		flat = append(flat, b.Lower, b.Upper)
	}
	return flat
}

// IsUnitCube reports whether every bound is exactly [0,1].
func (v Volume) IsUnitCube() bool {
	if len(v.bounds) == 0 {
		return false
	}
	for _, b := range v.bounds {
		if b.Lower != 0 || b.Upper != 1 {
			return false
		}
	}
	return true
}

// String renders the volume as [a,b]x[c,d]...
func (v Volume) String() string {
	s := ""
	for i, b := range v.bounds {
		if i > 0 {
			s += "x"
		}
		s += fmt.Sprintf("[%g,%g]", b.Lower, b.Upper)
	}
	return s
}

// checkDims rejects an integrand whose declared arity differs from the volume.
// An integrand with Dim() <= 0 has unknown arity and is accepted.
func checkDims(f Integrand, v Volume) error {
	if v.Dim() == 0 {
		return fmt.Errorf("%w: empty volume", ErrInvalidVolume)
	}
	if f == nil {
		return fmt.Errorf("%w: nil integrand", ErrInvalidVolume)
	}
	if d := f.Dim(); d > 0 && d != v.Dim() {
		return fmt.Errorf("%w: integrand takes %d arguments, volume has %d dimensions",
			ErrInvalidVolume, d, v.Dim())
	}
	return nil
}
