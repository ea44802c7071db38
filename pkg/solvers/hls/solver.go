// Package hls solves hierarchical QPs by prioritized least squares with null-space projection
package hls

import (
	"errors"
	"fmt"
	"math"

	"github.com/wholebody/wbc/pkg/core"
	"github.com/wholebody/wbc/pkg/logger"
	"gonum.org/v1/gonum/mat"
)

var (
	// ErrInvalidProblem indicates inconsistent dimensions in the hierarchical QP
	ErrInvalidProblem = errors.New("invalid hierarchical qp")
	// ErrInfeasible indicates hard constraints that cannot be met in the remaining null space
	ErrInfeasible = errors.New("hard constraints are infeasible")
	// ErrMaxIterations indicates the working set did not settle within MaxIterations additions
	ErrMaxIterations = errors.New("maximum number of working set iterations reached")
	// ErrNumerical indicates a failed factorization
	ErrNumerical = errors.New("numerical failure")
)

// Options tunes the solver
type Options struct {
	// MaxIterations bounds the working set changes of one solve
	MaxIterations int
	// Damping regularizes the task rows, not the hard constraints
	Damping float64
	// RankTolerance is the relative singular value threshold
	RankTolerance float64
	// FeasibilityTolerance bounds the residual of hard constraints
	FeasibilityTolerance float64
}

// DefaultOptions returns the defaults used when a field is zero
func DefaultOptions() Options {
	return Options{
		MaxIterations:        100,
		Damping:              0,
		RankTolerance:        1e-9,
		FeasibilityTolerance: 1e-6,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.MaxIterations <= 0 {
		o.MaxIterations = d.MaxIterations
	}
	if o.RankTolerance <= 0 {
		o.RankTolerance = d.RankTolerance
	}
	if o.FeasibilityTolerance <= 0 {
		o.FeasibilityTolerance = d.FeasibilityTolerance
	}
	return o
}

// Solver solves each level in the null space of all higher levels. Within a level the
// equality rows and the active inequality rows are met exactly, then the task rows in
// the least squares sense. Inequalities use a grow-only working set: a violated row is
// fixed at its bound and the level is solved again.
type Solver struct {
	opts       Options
	logger     logger.Logger
	iterations int
}

var _ core.QPSolver = (*Solver)(nil)

// New creates a solver
func New(opts Options, log logger.Logger) *Solver {
	if log == nil {
		log = logger.NewNopLogger()
	}
	return &Solver{opts: opts.withDefaults(), logger: log.WithComponent("hls")}
}

// Options returns the effective options
func (s *Solver) Options() Options {
	return s.opts
}

// Iterations returns the working set changes of the last solve
func (s *Solver) Iterations() int {
	return s.iterations
}

type inequality struct {
	level  int
	row    []float64
	lower  float64
	upper  float64
	active bool
}

type activeRow struct {
	row   []float64
	bound float64
}

// Solve implements core.QPSolver
func (s *Solver) Solve(hqp *core.HierarchicalQP) ([]float64, error) {
	if hqp == nil {
		return nil, fmt.Errorf("%w: nil problem", ErrInvalidProblem)
	}
	n := hqp.NumVariables
	if n <= 0 {
		return nil, fmt.Errorf("%w: %d variables", ErrInvalidProblem, n)
	}
	if len(hqp.Levels) == 0 {
		return nil, fmt.Errorf("%w: no levels", ErrInvalidProblem)
	}

	x := mat.NewVecDense(n, nil)
	z := identity(n)
	var carried []*inequality
	s.iterations = 0

	for li := range hqp.Levels {
		level := &hqp.Levels[li]
		if err := checkLevel(level, n); err != nil {
			return nil, fmt.Errorf("level %d: %w", li, err)
		}
		carried = append(carried, inequalities(level, li, n)...)

		var active []activeRow
		for {
			xl, zl, err := s.solveLevel(level, active, x, z)
			if err != nil {
				return nil, fmt.Errorf("level %d: %w", li, err)
			}

			worst, bound := s.mostViolated(carried, xl)
			if worst == nil {
				x, z = xl, zl
				break
			}

			s.iterations++
			if s.iterations > s.opts.MaxIterations {
				return nil, fmt.Errorf("level %d: %w (%d)", li, ErrMaxIterations, s.opts.MaxIterations)
			}
			worst.active = true
			active = append(active, activeRow{row: worst.row, bound: bound})
		}
	}

	s.logger.Debug("Hierarchical QP solved",
		logger.WithField("levels", len(hqp.Levels)),
		logger.WithField("variables", n),
		logger.WithField("iterations", s.iterations))
	return append([]float64(nil), x.RawVector().Data...), nil
}

func checkLevel(l *core.QP, n int) error {
	if l.A != nil {
		r, c := l.A.Dims()
		if c != n || r != len(l.Y) {
			return fmt.Errorf("%w: task block %dx%d with %d targets", ErrInvalidProblem, r, c, len(l.Y))
		}
	} else if len(l.Y) > 0 {
		return fmt.Errorf("%w: targets without task rows", ErrInvalidProblem)
	}
	if l.Aeq != nil {
		r, c := l.Aeq.Dims()
		if c != n || r != len(l.Beq) {
			return fmt.Errorf("%w: equality block %dx%d with %d targets", ErrInvalidProblem, r, c, len(l.Beq))
		}
	}
	if l.Ain != nil {
		r, c := l.Ain.Dims()
		if c != n || r != len(l.Lower) || r != len(l.Upper) {
			return fmt.Errorf("%w: inequality block %dx%d with %d/%d bounds", ErrInvalidProblem, r, c, len(l.Lower), len(l.Upper))
		}
	}
	if (l.LowerX != nil && len(l.LowerX) != n) || (l.UpperX != nil && len(l.UpperX) != n) {
		return fmt.Errorf("%w: variable bounds must have %d entries", ErrInvalidProblem, n)
	}
	return nil
}

func inequalities(l *core.QP, li, n int) []*inequality {
	var out []*inequality
	if l.Ain != nil {
		r, _ := l.Ain.Dims()
		for i := 0; i < r; i++ {
			out = append(out, &inequality{
				level: li,
				row:   mat.Row(nil, i, l.Ain),
				lower: l.Lower[i],
				upper: l.Upper[i],
			})
		}
	}
	if l.LowerX != nil || l.UpperX != nil {
		for i := 0; i < n; i++ {
			lo, up := math.Inf(-1), math.Inf(1)
			if l.LowerX != nil {
				lo = l.LowerX[i]
			}
			if l.UpperX != nil {
				up = l.UpperX[i]
			}
			if math.IsInf(lo, -1) && math.IsInf(up, 1) {
				continue
			}
			row := make([]float64, n)
			row[i] = 1
			out = append(out, &inequality{level: li, row: row, lower: lo, upper: up})
		}
	}
	return out
}

func (s *Solver) mostViolated(rows []*inequality, x *mat.VecDense) (*inequality, float64) {
	var worst *inequality
	var bound, amount float64
	for _, in := range rows {
		if in.active {
			continue
		}
		v := mat.Dot(mat.NewVecDense(len(in.row), in.row), x)
		tol := s.opts.FeasibilityTolerance
		switch {
		case v < in.lower-tol && in.lower-v > amount:
			worst, bound, amount = in, in.lower, in.lower-v
		case v > in.upper+tol && v-in.upper > amount:
			worst, bound, amount = in, in.upper, v-in.upper
		}
	}
	return worst, bound
}

func (s *Solver) solveLevel(l *core.QP, active []activeRow, x *mat.VecDense, z *mat.Dense) (*mat.VecDense, *mat.Dense, error) {
	var err error
	if l.Aeq != nil {
		if x, z, err = s.strict(l.Aeq, l.Beq, x, z); err != nil {
			return nil, nil, err
		}
	}
	if len(active) > 0 {
		n := x.Len()
		a := mat.NewDense(len(active), n, nil)
		b := make([]float64, len(active))
		for i, r := range active {
			a.SetRow(i, r.row)
			b[i] = r.bound
		}
		if x, z, err = s.strict(a, b, x, z); err != nil {
			return nil, nil, err
		}
	}
	if l.A != nil {
		if x, z, err = s.project(l.A, l.Y, x, z, s.opts.Damping); err != nil {
			return nil, nil, err
		}
	}
	return x, z, nil
}

// strict solves a x = b in the null space z and fails if the residual stays above tolerance
func (s *Solver) strict(a *mat.Dense, b []float64, x *mat.VecDense, z *mat.Dense) (*mat.VecDense, *mat.Dense, error) {
	xn, zn, err := s.project(a, b, x, z, 0)
	if err != nil {
		return nil, nil, err
	}

	var ax mat.VecDense
	ax.MulVec(a, xn)
	scale := 1.0
	for _, v := range b {
		scale = math.Max(scale, math.Abs(v))
	}
	for i, v := range b {
		if r := math.Abs(ax.AtVec(i) - v); r > s.opts.FeasibilityTolerance*scale {
			return nil, nil, fmt.Errorf("%w: row %d residual %g", ErrInfeasible, i, r)
		}
	}
	return xn, zn, nil
}

// project minimizes ‖a (x + z·w) − b‖ over w and returns the updated solution together with
// the basis of the null space that remains
func (s *Solver) project(a *mat.Dense, b []float64, x *mat.VecDense, z *mat.Dense, damping float64) (*mat.VecDense, *mat.Dense, error) {
	m, _ := a.Dims()
	if m == 0 || z == nil {
		return x, z, nil
	}
	_, r := z.Dims()

	var ax mat.VecDense
	ax.MulVec(a, x)
	res := make([]float64, m)
	for i := range res {
		res[i] = b[i] - ax.AtVec(i)
	}

	var az mat.Dense
	az.Mul(a, z)

	var svd mat.SVD
	if !svd.Factorize(&az, mat.SVDFull) {
		return nil, nil, ErrNumerical
	}
	values := svd.Values(nil)
	var u, v mat.Dense
	svd.UTo(&u)
	svd.VTo(&v)

	tol := 0.0
	if len(values) > 0 {
		tol = s.opts.RankTolerance * math.Max(1, values[0])
	}

	w := make([]float64, r)
	rank := 0
	for i, sigma := range values {
		if sigma <= tol {
			break
		}
		rank++
		var dot float64
		for k := 0; k < m; k++ {
			dot += u.At(k, i) * res[k]
		}
		coef := dot * sigma / (sigma*sigma + damping*damping)
		for k := 0; k < r; k++ {
			w[k] += coef * v.At(k, i)
		}
	}

	var dx mat.VecDense
	dx.MulVec(z, mat.NewVecDense(r, w))
	xn := mat.NewVecDense(x.Len(), nil)
	xn.AddVec(x, &dx)

	if rank == r {
		return xn, nil, nil
	}
	var zn mat.Dense
	zn.Mul(z, v.Slice(0, r, rank, r))
	return xn, &zn, nil
}

func identity(n int) *mat.Dense {
	d := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		d.Set(i, i, 1)
	}
	return d
}
