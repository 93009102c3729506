// Package render draws the outcome of a verification run: a PNG of the
// cell classes, an interactive HTML scatter, and a plain-text summary for
// state spaces that are not planar.
package render

import (
	"errors"
	"fmt"
	"image/color"
	"io"

	"github.com/bits-and-blooms/bitset"

	"github.com/banshee-data/mkverify/internal/grid"
)

// ErrNotPlanar is returned by the 2-D renderers for any other dimension.
var ErrNotPlanar = errors.New("render: state space is not two-dimensional")

// Scene is everything a renderer needs from a finished run.
type Scene struct {
	Title     string
	Labels    []string // one per dimension; defaults to x0, x1, ...
	Grid      *grid.Grid
	Start     *bitset.BitSet
	Invariant *bitset.BitSet
	Initial   grid.Box
}

// Class is the role a cell plays in the result.
type Class int

const (
	Outside Class = iota // not in the start region
	StartOnly
	Invariant
)

func (c Class) String() string {
	switch c {
	case Outside:
		return "unsafe"
	case StartOnly:
		return "start region"
	case Invariant:
		return "invariant"
	default:
		return fmt.Sprintf("class(%d)", int(c))
	}
}

var classColors = map[Class]color.RGBA{
	Outside:   {R: 0xd9, G: 0xd9, B: 0xd9, A: 0xff},
	StartOnly: {R: 0x9e, G: 0xca, B: 0xe1, A: 0xff},
	Invariant: {R: 0x31, G: 0xa3, B: 0x54, A: 0xff},
}

func hexColor(c color.RGBA) string {
	return fmt.Sprintf("#%02x%02x%02x", c.R, c.G, c.B)
}

// ClassOf classifies one cell id.
func (s Scene) ClassOf(id int) Class {
	switch {
	case s.Invariant != nil && s.Invariant.Test(uint(id)):
		return Invariant
	case s.Start != nil && s.Start.Test(uint(id)):
		return StartOnly
	default:
		return Outside
	}
}

func (s Scene) label(dim int) string {
	if dim < len(s.Labels) && s.Labels[dim] != "" {
		return s.Labels[dim]
	}
	return fmt.Sprintf("x%d", dim)
}

func (s Scene) planar() error {
	if s.Grid == nil || s.Grid.Dims != 2 {
		return ErrNotPlanar
	}
	return nil
}

// Summary writes the cell counts per class and the per-dimension bounds of
// the invariant. It works for any dimension.
func Summary(w io.Writer, s Scene) error {
	if s.Grid == nil {
		return errors.New("render: scene has no grid")
	}
	counts := map[Class]int{}
	var hull grid.Box
	for id := 0; id < s.Grid.NumCells(); id++ {
		c := s.ClassOf(id)
		counts[c]++
		if c != Invariant {
			continue
		}
		cell, err := s.Grid.CellBounds(id)
		if err != nil {
			return err
		}
		if hull == nil {
			hull = cell
		} else {
			hull = hull.Hull(cell)
		}
	}

	if s.Title != "" {
		if _, err := fmt.Fprintf(w, "%s\n", s.Title); err != nil {
			return err
		}
	}
	if _, err := fmt.Fprintf(w, "cells: %d  start region: %d  invariant: %d\n",
		s.Grid.NumCells(), counts[StartOnly]+counts[Invariant], counts[Invariant]); err != nil {
		return err
	}
	for dim := 0; dim < s.Grid.Dims; dim++ {
		bounds := "empty"
		if hull != nil {
			bounds = hull[dim].String()
		}
		initial := "-"
		if dim < len(s.Initial) {
			initial = s.Initial[dim].String()
		}
		if _, err := fmt.Fprintf(w, "  %-12s invariant %-28s initial %s\n", s.label(dim), bounds, initial); err != nil {
			return err
		}
	}
	return nil
}
