package grid

import (
	"fmt"
	"math"
	"strings"

	"gonum.org/v1/gonum/floats"
)

// Interval is a closed interval [Lo, Hi]. An interval with Hi < Lo is empty.
type Interval struct {
	Lo float64 `json:"lo" yaml:"lo"`
	Hi float64 `json:"hi" yaml:"hi"`
}

// Width returns Hi-Lo, or 0 for an empty interval.
func (iv Interval) Width() float64 {
	if iv.Hi < iv.Lo {
		return 0
	}
	return iv.Hi - iv.Lo
}

// Intersect returns the overlap of two intervals. The result may be empty.
func (iv Interval) Intersect(o Interval) Interval {
	return Interval{Lo: math.Max(iv.Lo, o.Lo), Hi: math.Min(iv.Hi, o.Hi)}
}

// Mid returns the centre of the interval.
func (iv Interval) Mid() float64 { return (iv.Lo + iv.Hi) / 2 }

// Radius returns half the width.
func (iv Interval) Radius() float64 { return iv.Width() / 2 }

func (iv Interval) String() string {
	return fmt.Sprintf("[%g, %g]", iv.Lo, iv.Hi)
}

// Box is an axis-aligned hyper-rectangle, one interval per dimension.
type Box []Interval

// Widths returns the per-dimension widths.
func (b Box) Widths() []float64 {
	w := make([]float64, len(b))
	for i, iv := range b {
		w[i] = iv.Width()
	}
	return w
}

// Volume returns the product of the widths. A zero-dimensional box has volume 0.
func (b Box) Volume() float64 {
	if len(b) == 0 {
		return 0
	}
	return floats.Prod(b.Widths())
}

// Intersect intersects two boxes of the same dimension.
func (b Box) Intersect(o Box) Box {
	out := make(Box, len(b))
	for i := range b {
		out[i] = b[i].Intersect(o[i])
	}
	return out
}

// Centre returns the per-dimension midpoints.
func (b Box) Centre() []float64 {
	c := make([]float64, len(b))
	for i, iv := range b {
		c[i] = iv.Mid()
	}
	return c
}

// Radii returns the per-dimension half-widths.
func (b Box) Radii() []float64 {
	r := make([]float64, len(b))
	for i, iv := range b {
		r[i] = iv.Radius()
	}
	return r
}

// Hull returns the smallest box containing both boxes.
func (b Box) Hull(o Box) Box {
	out := make(Box, len(b))
	for i := range b {
		out[i] = Interval{Lo: math.Min(b[i].Lo, o[i].Lo), Hi: math.Max(b[i].Hi, o[i].Hi)}
	}
	return out
}

// Finite reports whether every bound is a finite number.
func (b Box) Finite() bool {
	for _, iv := range b {
		if math.IsNaN(iv.Lo) || math.IsNaN(iv.Hi) || math.IsInf(iv.Lo, 0) || math.IsInf(iv.Hi, 0) {
			return false
		}
	}
	return true
}

func (b Box) String() string {
	parts := make([]string, len(b))
	for i, iv := range b {
		parts[i] = iv.String()
	}
	return strings.Join(parts, " x ")
}
