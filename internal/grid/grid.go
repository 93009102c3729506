package grid

import (
	"errors"
	"fmt"
	"math"
)

// DefaultEpsilon is the overlap tolerance used when none is configured.
const DefaultEpsilon = 1e-10

// maxCells bounds d^n so that ids always fit in an int and per-cell bitsets
// stay addressable.
const maxCells = 1 << 31

// ErrGridTooLarge is returned when d^n exceeds the supported cell count.
var ErrGridTooLarge = errors.New("grid: too many cells")

// Grid divides [-SafeDist, SafeDist]^Dims into Divisions^Dims equal cells.
type Grid struct {
	Dims      int
	Divisions int
	SafeDist  float64
	Eps       float64

	numCells  int
	blockSize float64
}

// New validates the parameters and returns a Grid. eps <= 0 selects
// DefaultEpsilon.
func New(dims, divisions int, safeDist, eps float64) (*Grid, error) {
	if dims <= 0 {
		return nil, fmt.Errorf("grid: dims must be positive, got %d", dims)
	}
	if divisions <= 0 {
		return nil, fmt.Errorf("grid: divisions must be positive, got %d", divisions)
	}
	if !(safeDist > 0) || math.IsInf(safeDist, 0) {
		return nil, fmt.Errorf("grid: safe distance must be positive and finite, got %g", safeDist)
	}
	if eps <= 0 {
		eps = DefaultEpsilon
	}
	n := 1
	for i := 0; i < dims; i++ {
		if n > maxCells/divisions {
			return nil, fmt.Errorf("%w: %d^%d", ErrGridTooLarge, divisions, dims)
		}
		n *= divisions
	}
	return &Grid{
		Dims:      dims,
		Divisions: divisions,
		SafeDist:  safeDist,
		Eps:       eps,
		numCells:  n,
		blockSize: safeDist * 2 / float64(divisions),
	}, nil
}

// NumCells returns d^n.
func (g *Grid) NumCells() int { return g.numCells }

// BlockSize returns the edge length of one cell.
func (g *Grid) BlockSize() float64 { return g.blockSize }

// Bounds returns the safety box [-SafeDist, SafeDist]^Dims.
func (g *Grid) Bounds() Box {
	b := make(Box, g.Dims)
	for i := range b {
		b[i] = Interval{Lo: -g.SafeDist, Hi: g.SafeDist}
	}
	return b
}

// segment returns the i-th sub-interval of a single dimension.
func (g *Grid) segment(i int) Interval {
	return Interval{
		Lo: -g.SafeDist + float64(i)*g.blockSize,
		Hi: -g.SafeDist + float64(i+1)*g.blockSize,
	}
}

// Encode maps per-dimension indices to a cell id, most significant first.
func (g *Grid) Encode(idx []int) (int, error) {
	if len(idx) != g.Dims {
		return 0, fmt.Errorf("grid: expected %d indices, got %d", g.Dims, len(idx))
	}
	id := 0
	for dim, i := range idx {
		if i < 0 || i >= g.Divisions {
			return 0, fmt.Errorf("grid: index %d out of range in dimension %d", i, dim)
		}
		id = id*g.Divisions + i
	}
	return id, nil
}

// Decode is the inverse of Encode.
func (g *Grid) Decode(id int) ([]int, error) {
	if id < 0 || id >= g.numCells {
		return nil, fmt.Errorf("grid: cell id %d out of range [0, %d)", id, g.numCells)
	}
	idx := make([]int, g.Dims)
	for dim := g.Dims - 1; dim >= 0; dim-- {
		idx[dim] = id % g.Divisions
		id /= g.Divisions
	}
	return idx, nil
}

// CellBounds returns the box covered by a cell.
func (g *Grid) CellBounds(id int) (Box, error) {
	idx, err := g.Decode(id)
	if err != nil {
		return nil, err
	}
	b := make(Box, g.Dims)
	for dim, i := range idx {
		b[dim] = g.segment(i)
	}
	return b, nil
}

// Cells returns the bounds of every cell, indexed by id.
func (g *Grid) Cells() []Box {
	cells := make([]Box, g.numCells)
	for id := range cells {
		cells[id], _ = g.CellBounds(id)
	}
	return cells
}

// IntersectingCells returns the ids of cells whose overlap with region has
// width of at least Eps in every dimension, in increasing id order. A region
// that misses the grid yields an empty slice.
func (g *Grid) IntersectingCells(region Box) []int {
	if len(region) != g.Dims {
		return nil
	}
	var ids []int
	g.collect(0, 0, region, &ids)
	return ids
}

// collect walks one dimension at a time, skipping sub-intervals with
// negligible overlap before descending.
func (g *Grid) collect(dim, prefix int, region Box, ids *[]int) {
	if dim == g.Dims {
		*ids = append(*ids, prefix)
		return
	}
	lo, hi := g.candidateRange(region[dim])
	for i := lo; i <= hi; i++ {
		if g.segment(i).Intersect(region[dim]).Width() < g.Eps {
			continue
		}
		g.collect(dim+1, prefix*g.Divisions+i, region, ids)
	}
}

// candidateRange narrows the per-dimension scan to the segments that can
// touch iv. The Eps test in collect still decides membership.
func (g *Grid) candidateRange(iv Interval) (int, int) {
	if math.IsNaN(iv.Lo) || math.IsNaN(iv.Hi) || iv.Hi < iv.Lo {
		return 0, -1
	}
	last := float64(g.Divisions - 1)
	lo := math.Max(math.Floor((iv.Lo+g.SafeDist)/g.blockSize)-1, 0)
	hi := math.Min(math.Floor((iv.Hi+g.SafeDist)/g.blockSize)+1, last)
	if hi < 0 || lo > last {
		return 0, -1
	}
	return int(lo), int(hi)
}
