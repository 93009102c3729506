package oracle

import (
	"context"
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/banshee-data/mkverify/internal/grid"
)

var (
	// ErrRemainderTooLarge is returned when the truncation remainder of a
	// single integration step exceeds the configured estimation bound.
	ErrRemainderTooLarge = errors.New("taylor remainder exceeds estimation bound")
	// ErrNonFinite is returned when a reachable bound is NaN or infinite.
	ErrNonFinite = errors.New("reachable set is not finite")
)

// LinearSystem describes x' = A x + B u with sampled feedback u = K x.
type LinearSystem struct {
	A [][]float64 // n x n
	B [][]float64 // n x p
	K [][]float64 // p x n

	Period   float64
	StepSize float64
}

// TaylorSettings controls the integration performed by the linear oracle.
type TaylorSettings struct {
	Order               int
	CutoffThreshold     float64
	RemainderEstimation float64
}

// Linear is an oracle for linear time-invariant plants. The input is held
// constant over the period: K x(0) when the deadline is met, zero when it is
// missed. The augmented state z = (x, u) is integrated in fixed steps with a
// truncated Taylor expansion of exp(M h), M = [[A, B], [0, 0]]; truncation,
// cutoff and floating-point rounding losses are carried as an interval
// remainder, and the final bounds are rounded outward.
type Linear struct {
	n, p int

	// reach[mode][j] maps x(0) to z after j steps.
	reach [2][]*mat.Dense
	// trans[j] and absTrans[j] are the step transition for step j and its
	// element-wise absolute value.
	trans    []*mat.Dense
	absTrans []*mat.Dense
	// relErr[j] bounds the step-j remainder relative to the infinity norm
	// of z at the start of the step.
	relErr []float64

	remainderBound float64
}

// NewLinear validates the system and precomputes all step transitions.
func NewLinear(sys LinearSystem, ts TaylorSettings) (*Linear, error) {
	n := len(sys.A)
	if n == 0 {
		return nil, errors.New("linear oracle: empty A matrix")
	}
	p := 0
	if len(sys.B) > 0 {
		p = len(sys.B[0])
	}
	if err := checkShape("A", sys.A, n, n); err != nil {
		return nil, err
	}
	if p > 0 {
		if err := checkShape("B", sys.B, n, p); err != nil {
			return nil, err
		}
		if err := checkShape("K", sys.K, p, n); err != nil {
			return nil, err
		}
	}
	if !(sys.Period > 0) || !(sys.StepSize > 0) {
		return nil, fmt.Errorf("linear oracle: period and step size must be positive, got %g and %g", sys.Period, sys.StepSize)
	}
	if ts.Order < 1 {
		return nil, fmt.Errorf("linear oracle: taylor order must be at least 1, got %d", ts.Order)
	}
	if !(ts.RemainderEstimation > 0) {
		return nil, fmt.Errorf("linear oracle: remainder estimation must be positive, got %g", ts.RemainderEstimation)
	}

	q := n + p
	m := mat.NewDense(q, q, nil)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			m.Set(i, j, sys.A[i][j])
		}
		for j := 0; j < p; j++ {
			m.Set(i, n+j, sys.B[i][j])
		}
	}

	steps := int(math.Ceil(sys.Period/sys.StepSize - 1e-9))
	if steps < 1 {
		steps = 1
	}
	o := &Linear{n: n, p: p, remainderBound: ts.RemainderEstimation}
	full, fullAbs, fullErr := taylorStep(m, sys.StepSize, ts.Order, ts.CutoffThreshold)
	for j := 0; j < steps; j++ {
		h := sys.StepSize
		if j == steps-1 {
			h = sys.Period - float64(steps-1)*sys.StepSize
		}
		if h == sys.StepSize {
			o.trans = append(o.trans, full)
			o.absTrans = append(o.absTrans, fullAbs)
			o.relErr = append(o.relErr, fullErr)
			continue
		}
		t, ta, e := taylorStep(m, h, ts.Order, ts.CutoffThreshold)
		o.trans = append(o.trans, t)
		o.absTrans = append(o.absTrans, ta)
		o.relErr = append(o.relErr, e)
	}

	for _, mode := range Modes {
		e := mat.NewDense(q, n, nil)
		for i := 0; i < n; i++ {
			e.Set(i, i, 1)
		}
		if mode == Met {
			for i := 0; i < p; i++ {
				for j := 0; j < n; j++ {
					e.Set(n+i, j, sys.K[i][j])
				}
			}
		}
		chain := []*mat.Dense{e}
		for j := 0; j < steps; j++ {
			var next mat.Dense
			next.Mul(o.trans[j], chain[j])
			chain = append(chain, &next)
		}
		o.reach[mode] = chain
	}
	return o, nil
}

func checkShape(name string, rows [][]float64, r, c int) error {
	if len(rows) != r {
		return fmt.Errorf("linear oracle: %s has %d rows, want %d", name, len(rows), r)
	}
	for i, row := range rows {
		if len(row) != c {
			return fmt.Errorf("linear oracle: %s row %d has %d columns, want %d", name, i, len(row), c)
		}
		for _, v := range row {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return fmt.Errorf("linear oracle: %s contains a non-finite entry", name)
			}
		}
	}
	return nil
}

// taylorStep returns the order-N Taylor approximation of exp(M h) with
// entries below cutoff removed, its absolute value, and the relative
// remainder bound in the infinity norm: Lagrange tail, removed mass, and the
// floating-point error of evaluating the series and applying the step.
func taylorStep(m *mat.Dense, h float64, order int, cutoff float64) (*mat.Dense, *mat.Dense, float64) {
	q, _ := m.Dims()
	var mh mat.Dense
	mh.Scale(h, m)

	sum := mat.NewDense(q, q, nil)
	term := mat.NewDense(q, q, nil)
	for i := 0; i < q; i++ {
		sum.Set(i, i, 1)
		term.Set(i, i, 1)
	}
	for k := 1; k <= order; k++ {
		var next mat.Dense
		next.Mul(term, &mh)
		next.Scale(1/float64(k), &next)
		term = &next
		sum.Add(sum, term)
	}

	norm := mat.Norm(&mh, math.Inf(1))
	tail := math.Pow(norm, float64(order+1)) / factorial(order+1) * math.Exp(norm)

	abs := mat.NewDense(q, q, nil)
	dropped, absNorm := 0.0, 0.0
	for i := 0; i < q; i++ {
		row, kept := 0.0, 0.0
		for j := 0; j < q; j++ {
			v := sum.At(i, j)
			if v != 0 && math.Abs(v) < cutoff {
				row += math.Abs(v)
				sum.Set(i, j, 0)
				v = 0
			}
			abs.Set(i, j, math.Abs(v))
			kept += math.Abs(v)
		}
		dropped = math.Max(dropped, row)
		absNorm = math.Max(absNorm, kept)
	}
	// Each series term and each matrix-vector product accumulates at most
	// one rounding per summand; the constant over-counts both.
	rounding := float64(2*q+order+2) * unitRoundoff * (absNorm + math.Exp(norm))
	return sum, abs, tail + dropped + rounding
}

// unitRoundoff is the float64 machine epsilon.
const unitRoundoff = 0x1p-52

func factorial(k int) float64 {
	f := 1.0
	for i := 2; i <= k; i++ {
		f *= float64(i)
	}
	return f
}

// Dims returns the state and input dimensions.
func (o *Linear) Dims() (state, inputs int) { return o.n, o.p }

// ReachOneStep implements Oracle. The linear oracle never declares a result
// unsafe itself; containment is checked by the caller.
func (o *Linear) ReachOneStep(ctx context.Context, cell grid.Box, mode Mode) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	if len(cell) != o.n {
		return Result{}, fmt.Errorf("cell has %d dimensions, want %d", len(cell), o.n)
	}
	if mode != Met && mode != Missed {
		return Result{}, fmt.Errorf("unknown mode %v", mode)
	}
	q := o.n + o.p
	c := mat.NewVecDense(o.n, cell.Centre())
	r := mat.NewVecDense(o.n, cell.Radii())
	// Centre and radius are rounded; grow the radius so c ± r covers the cell.
	for i := 0; i < o.n; i++ {
		r.SetVec(i, r.AtVec(i)+2*unitRoundoff*(math.Abs(c.AtVec(i))+r.AtVec(i)))
	}
	chain := o.reach[mode]

	errRad := mat.NewVecDense(q, nil)
	for j := range o.trans {
		mag := magnitude(chain[j], c, r)
		zmax := 0.0
		for i := 0; i < q; i++ {
			zmax = math.Max(zmax, mag.AtVec(i)+errRad.AtVec(i))
		}
		rho := o.relErr[j] * zmax
		if rho > o.remainderBound {
			return Result{}, fmt.Errorf("%w: step %d remainder %g > %g", ErrRemainderTooLarge, j, rho, o.remainderBound)
		}
		var next mat.VecDense
		next.MulVec(o.absTrans[j], errRad)
		for i := 0; i < q; i++ {
			next.SetVec(i, next.AtVec(i)+rho)
		}
		errRad = &next
	}

	mid, rad := imageOf(chain[len(chain)-1], c, r)
	region := make(grid.Box, o.n)
	for i := 0; i < o.n; i++ {
		region[i] = outward(mid.AtVec(i), rad.AtVec(i)+errRad.AtVec(i), q)
	}
	if !region.Finite() {
		return Result{}, ErrNonFinite
	}
	return Result{Safe: true, Region: region}, nil
}

// imageOf returns the centre and radius of the box hull of L applied to the
// box with centre c and radius r.
func imageOf(l *mat.Dense, c, r *mat.VecDense) (*mat.VecDense, *mat.VecDense) {
	rows, cols := l.Dims()
	var mid mat.VecDense
	mid.MulVec(l, c)
	rad := mat.NewVecDense(rows, nil)
	for i := 0; i < rows; i++ {
		s := 0.0
		for j := 0; j < cols; j++ {
			s += math.Abs(l.At(i, j)) * r.AtVec(j)
		}
		rad.SetVec(i, s)
	}
	return &mid, rad
}

// magnitude bounds |L x| component-wise over the box with centre c and
// radius r by |L| (|c| + r).
func magnitude(l *mat.Dense, c, r *mat.VecDense) *mat.VecDense {
	rows, cols := l.Dims()
	out := mat.NewVecDense(rows, nil)
	for i := 0; i < rows; i++ {
		s := 0.0
		for j := 0; j < cols; j++ {
			s += math.Abs(l.At(i, j)) * (math.Abs(c.AtVec(j)) + r.AtVec(j))
		}
		out.SetVec(i, s)
	}
	return out
}

// outward converts a centre and radius into an interval widened by the
// rounding of the final image and of the conversion itself.
func outward(mid, rad float64, q int) grid.Interval {
	slack := float64(q+2) * unitRoundoff * (math.Abs(mid) + rad)
	return grid.Interval{
		Lo: math.Nextafter(mid-rad-slack, math.Inf(-1)),
		Hi: math.Nextafter(mid+rad+slack, math.Inf(1)),
	}
}
