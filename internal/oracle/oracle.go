// Package oracle defines the one-step continuous reachability boundary used
// by the abstraction builder, plus adapters and a built-in linear oracle.
package oracle

import (
	"context"
	"errors"
	"fmt"

	"github.com/banshee-data/mkverify/internal/grid"
)

// Mode is the control outcome of one period.
type Mode int

const (
	// Missed means the controller missed its deadline; the input is zero for
	// the whole period.
	Missed Mode = iota
	// Met means the controller met its deadline; the input is the feedback
	// law evaluated at the start of the period.
	Met
)

// Modes lists both modes in slot order.
var Modes = [...]Mode{Missed, Met}

func (m Mode) String() string {
	switch m {
	case Missed:
		return "missed"
	case Met:
		return "met"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// Result is the outcome of one oracle query. Region is meaningful only when
// Safe is true.
type Result struct {
	Safe   bool
	Region grid.Box
}

// Oracle computes an over-approximation of the states reachable after one
// control period from cell under mode. Implementations must be
// deterministic and safe for concurrent use.
type Oracle interface {
	ReachOneStep(ctx context.Context, cell grid.Box, mode Mode) (Result, error)
}

// Func adapts a plain function to the Oracle interface.
type Func func(ctx context.Context, cell grid.Box, mode Mode) (Result, error)

// ReachOneStep calls f.
func (f Func) ReachOneStep(ctx context.Context, cell grid.Box, mode Mode) (Result, error) {
	return f(ctx, cell, mode)
}

// ErrOracleFailure marks any failure of the continuous reachability
// computation. A run cannot continue past one.
var ErrOracleFailure = errors.New("oracle failure")

// FailureError records which query failed.
type FailureError struct {
	Cell int
	Mode Mode
	Err  error
}

func (e *FailureError) Error() string {
	return fmt.Sprintf("oracle failure at cell %d (%s): %v", e.Cell, e.Mode, e.Err)
}

func (e *FailureError) Unwrap() error { return e.Err }

// Is makes errors.Is(err, ErrOracleFailure) hold for every FailureError.
func (e *FailureError) Is(target error) bool { return target == ErrOracleFailure }

// Contained reports whether region lies inside bounds in every dimension:
// the width of each interval must not shrink by more than eps when clipped
// to bounds.
func Contained(region, bounds grid.Box, eps float64) bool {
	if len(region) != len(bounds) || !region.Finite() {
		return false
	}
	for i := range region {
		segLen := region[i].Width()
		inLen := region[i].Intersect(bounds[i]).Width()
		if segLen-inLen > eps || inLen-segLen > eps {
			return false
		}
		// A degenerate interval has width 0 both ways; it must still sit
		// inside the bound.
		if region[i].Lo < bounds[i].Lo-eps || region[i].Hi > bounds[i].Hi+eps {
			return false
		}
	}
	return true
}

// Query runs one oracle call for cell id and applies the strict containment
// test against bounds. Oracle errors come back as *FailureError.
func Query(ctx context.Context, o Oracle, id int, cell, bounds grid.Box, mode Mode, eps float64) (Result, error) {
	res, err := o.ReachOneStep(ctx, cell, mode)
	if err != nil {
		return Result{}, &FailureError{Cell: id, Mode: mode, Err: err}
	}
	if !res.Safe {
		return Result{}, nil
	}
	if len(res.Region) != len(bounds) {
		return Result{}, &FailureError{Cell: id, Mode: mode,
			Err: fmt.Errorf("region has %d dimensions, want %d", len(res.Region), len(bounds))}
	}
	if !res.Region.Finite() {
		return Result{}, &FailureError{Cell: id, Mode: mode, Err: ErrNonFinite}
	}
	if !Contained(res.Region, bounds, eps) {
		return Result{}, nil
	}
	return res, nil
}
