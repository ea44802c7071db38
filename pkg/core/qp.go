package core

import (
	"fmt"
	"time"

	"gonum.org/v1/gonum/mat"
)

// QP is one priority level of a hierarchical problem over x ∈ R^n:
//
//	minimize   ‖A x − Y‖²
//	subject to Aeq x = Beq, Lower ≤ Ain x ≤ Upper, LowerX ≤ x ≤ UpperX
//
// Any block may be empty. Nil bound slices mean unbounded.
type QP struct {
	Priority int
	// A holds the weighted task rows, Y their targets and Weights the per-row scaling
	A       *mat.Dense
	Y       []float64
	Weights []float64

	Aeq *mat.Dense
	Beq []float64

	Ain   *mat.Dense
	Lower []float64
	Upper []float64

	LowerX []float64
	UpperX []float64
}

// NewQP allocates a level with rows task rows over nVars variables
func NewQP(priority, rows, nVars int) QP {
	qp := QP{Priority: priority}
	if rows > 0 && nVars > 0 {
		qp.A = mat.NewDense(rows, nVars, nil)
		qp.Y = make([]float64, rows)
		qp.Weights = make([]float64, rows)
	}
	return qp
}

// NumTaskRows returns the number of task rows
func (q *QP) NumTaskRows() int {
	return len(q.Y)
}

// NumEqualities returns the number of equality rows
func (q *QP) NumEqualities() int {
	return len(q.Beq)
}

// NumInequalities returns the number of general inequality rows
func (q *QP) NumInequalities() int {
	return len(q.Lower)
}

// AddEquality appends the rows a x = b
func (q *QP) AddEquality(a *mat.Dense, b []float64) error {
	r, _ := a.Dims()
	if r != len(b) {
		return fmt.Errorf("%w: %d equality rows, %d targets", ErrDimensionMismatch, r, len(b))
	}
	stacked, err := stack(q.Aeq, a)
	if err != nil {
		return err
	}
	q.Aeq = stacked
	q.Beq = append(q.Beq, b...)
	return nil
}

// AddInequality appends the rows lower ≤ a x ≤ upper
func (q *QP) AddInequality(a *mat.Dense, lower, upper []float64) error {
	r, _ := a.Dims()
	if r != len(lower) || r != len(upper) {
		return fmt.Errorf("%w: %d inequality rows, bounds %d/%d", ErrDimensionMismatch, r, len(lower), len(upper))
	}
	stacked, err := stack(q.Ain, a)
	if err != nil {
		return err
	}
	q.Ain = stacked
	q.Lower = append(q.Lower, lower...)
	q.Upper = append(q.Upper, upper...)
	return nil
}

// SetBounds sets simple variable bounds
func (q *QP) SetBounds(lower, upper []float64) {
	q.LowerX = append([]float64(nil), lower...)
	q.UpperX = append([]float64(nil), upper...)
}

func stack(top, bottom *mat.Dense) (*mat.Dense, error) {
	if top == nil {
		return mat.DenseCopyOf(bottom), nil
	}
	_, ct := top.Dims()
	_, cb := bottom.Dims()
	if ct != cb {
		return nil, fmt.Errorf("%w: %d columns vs %d", ErrDimensionMismatch, ct, cb)
	}
	var out mat.Dense
	out.Stack(top, bottom)
	return &out, nil
}

// HierarchicalQP is the ordered set of levels handed to the solver, highest priority first
type HierarchicalQP struct {
	Levels       []QP
	NumVariables int
	Time         time.Time
}

// Clear drops all levels
func (h *HierarchicalQP) Clear() {
	h.Levels = nil
	h.NumVariables = 0
	h.Time = time.Time{}
}
