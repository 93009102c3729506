// Package coverage decides whether an invariant covers the initial region.
package coverage

import (
	"errors"
	"fmt"
	"math"

	"github.com/bits-and-blooms/bitset"

	"github.com/banshee-data/mkverify/internal/grid"
	"github.com/banshee-data/mkverify/internal/monitoring"
)

// DefaultTolerance is the relative volume tolerance used when none is
// configured.
const DefaultTolerance = 1e-6

// ErrDegenerateInitial is returned when the initial region has no volume,
// which makes the relative comparison undefined.
var ErrDegenerateInitial = errors.New("coverage: initial region has zero volume")

// Verdict is the final answer of a verification run.
type Verdict string

const (
	Safe   Verdict = "SAFE"
	Unsafe Verdict = "UNSAFE"
)

// Result carries both volumes so callers can report them alongside the
// verdict.
type Result struct {
	InitialVolume float64 `json:"initial_volume"`
	CoveredVolume float64 `json:"covered_volume"`
	RelativeDiff  float64 `json:"relative_diff"`
	Safe          bool    `json:"safe"`
}

// Verdict maps Safe onto SAFE or UNSAFE.
func (r Result) Verdict() Verdict {
	if r.Safe {
		return Safe
	}
	return Unsafe
}

// Check sums the overlap of every invariant cell with the initial region
// and compares it against the initial volume. A cell whose overlap is
// narrower than eps in any dimension contributes nothing. tol <= 0 selects
// DefaultTolerance.
func Check(g *grid.Grid, inv *bitset.BitSet, initial grid.Box, eps, tol float64) (Result, error) {
	if len(initial) != g.Dims {
		return Result{}, fmt.Errorf("coverage: initial region has %d dimensions, grid has %d", len(initial), g.Dims)
	}
	if tol <= 0 {
		tol = DefaultTolerance
	}
	monitoring.Infof("Checking coverage of the initial region.")

	res := Result{InitialVolume: initial.Volume()}
	if !(res.InitialVolume > 0) {
		return Result{}, fmt.Errorf("%w: %s", ErrDegenerateInitial, initial)
	}

	for id, ok := inv.NextSet(0); ok && int(id) < g.NumCells(); id, ok = inv.NextSet(id + 1) {
		cell, err := g.CellBounds(int(id))
		if err != nil {
			return Result{}, err
		}
		res.CoveredVolume += overlap(cell, initial, eps)
	}

	res.RelativeDiff = math.Abs(res.InitialVolume-res.CoveredVolume) / res.InitialVolume
	res.Safe = res.RelativeDiff < tol
	monitoring.Logf("Initial volume: %g, covered volume: %g", res.InitialVolume, res.CoveredVolume)
	if res.Safe {
		monitoring.Successf("Verdict: %s", res.Verdict())
	} else {
		monitoring.Infof("Verdict: %s", res.Verdict())
	}
	return res, nil
}

func overlap(cell, initial grid.Box, eps float64) float64 {
	vol := 1.0
	for i := range cell {
		w := cell[i].Intersect(initial[i]).Width()
		if w < eps {
			return 0
		}
		vol *= w
	}
	return vol
}
