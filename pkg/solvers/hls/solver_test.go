package hls_test

import (
	"errors"
	"math"
	"testing"

	"github.com/wholebody/wbc/pkg/core"
	"github.com/wholebody/wbc/pkg/solvers/hls"
	"gonum.org/v1/gonum/mat"
)

func taskLevel(prio int, rows []float64, n int, y []float64) core.QP {
	qp := core.NewQP(prio, len(y), n)
	qp.A = mat.NewDense(len(y), n, rows)
	qp.Y = y
	return qp
}

func assertSolution(t *testing.T, got, want []float64, tol float64) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("expected %d entries, got %d", len(want), len(got))
	}
	for i := range want {
		if math.Abs(got[i]-want[i]) > tol {
			t.Errorf("x[%d]: expected %v, got %v", i, want[i], got[i])
		}
	}
}

func TestSolver_PriorityIsRespected(t *testing.T) {
	hqp := &core.HierarchicalQP{
		NumVariables: 2,
		Levels: []core.QP{
			taskLevel(0, []float64{1, 1}, 2, []float64{1}),
			taskLevel(1, []float64{1, 0, 0, 1}, 2, []float64{5, 5}),
		},
	}

	x, err := hls.New(hls.Options{}, nil).Solve(hqp)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	assertSolution(t, x, []float64{0.5, 0.5}, 1e-9)
}

func TestSolver_LowerLevelUsesRemainingFreedom(t *testing.T) {
	hqp := &core.HierarchicalQP{
		NumVariables: 3,
		Levels: []core.QP{
			taskLevel(0, []float64{1, 1, 0}, 3, []float64{1}),
			taskLevel(1, []float64{1, 0, 0, 0, 0, 1}, 3, []float64{5, -2}),
		},
	}

	x, err := hls.New(hls.Options{}, nil).Solve(hqp)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	assertSolution(t, x, []float64{5, -4, -2}, 1e-9)
}

func TestSolver_ZeroRowsKeepNullSpace(t *testing.T) {
	hqp := &core.HierarchicalQP{
		NumVariables: 2,
		Levels: []core.QP{
			taskLevel(0, []float64{0, 0}, 2, []float64{0}),
			taskLevel(1, []float64{1, 0, 0, 1}, 2, []float64{1, 2}),
		},
	}

	x, err := hls.New(hls.Options{}, nil).Solve(hqp)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	assertSolution(t, x, []float64{1, 2}, 1e-9)
}

func TestSolver_Equalities(t *testing.T) {
	level := core.NewQP(0, 0, 2)
	if err := level.AddEquality(mat.NewDense(1, 2, []float64{1, -1}), []float64{2}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	hqp := &core.HierarchicalQP{
		NumVariables: 2,
		Levels: []core.QP{
			level,
			taskLevel(1, []float64{1, 0}, 2, []float64{0}),
		},
	}

	x, err := hls.New(hls.Options{}, nil).Solve(hqp)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	assertSolution(t, x, []float64{0, -2}, 1e-9)
}

func TestSolver_InfeasibleEqualities(t *testing.T) {
	level := core.NewQP(0, 0, 2)
	if err := level.AddEquality(mat.NewDense(2, 2, []float64{1, 0, 1, 0}), []float64{1, 2}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	hqp := &core.HierarchicalQP{NumVariables: 2, Levels: []core.QP{level}}

	_, err := hls.New(hls.Options{}, nil).Solve(hqp)
	if !errors.Is(err, hls.ErrInfeasible) {
		t.Errorf("expected ErrInfeasible, got %v", err)
	}
}

func TestSolver_Inequalities(t *testing.T) {
	t.Run("variable bound", func(t *testing.T) {
		level := taskLevel(0, []float64{1}, 1, []float64{5})
		level.SetBounds([]float64{math.Inf(-1)}, []float64{2})
		solver := hls.New(hls.Options{}, nil)

		x, err := solver.Solve(&core.HierarchicalQP{NumVariables: 1, Levels: []core.QP{level}})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		assertSolution(t, x, []float64{2}, 1e-9)
		if solver.Iterations() != 1 {
			t.Errorf("expected 1 iteration, got %d", solver.Iterations())
		}
	})

	t.Run("general inequality", func(t *testing.T) {
		level := taskLevel(0, []float64{1, 0, 0, 1}, 2, []float64{2, 2})
		if err := level.AddInequality(mat.NewDense(1, 2, []float64{1, 1}), []float64{math.Inf(-1)}, []float64{1}); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		x, err := hls.New(hls.Options{}, nil).Solve(&core.HierarchicalQP{NumVariables: 2, Levels: []core.QP{level}})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		assertSolution(t, x, []float64{0.5, 0.5}, 1e-9)
	})

	t.Run("bound of a higher level holds for lower levels", func(t *testing.T) {
		top := core.NewQP(0, 0, 2)
		top.SetBounds([]float64{math.Inf(-1), math.Inf(-1)}, []float64{1, math.Inf(1)})
		hqp := &core.HierarchicalQP{
			NumVariables: 2,
			Levels: []core.QP{
				top,
				taskLevel(1, []float64{1, 0, 0, 1}, 2, []float64{3, 3}),
			},
		}

		x, err := hls.New(hls.Options{}, nil).Solve(hqp)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		assertSolution(t, x, []float64{1, 3}, 1e-9)
	})

	t.Run("inactive inequality", func(t *testing.T) {
		level := taskLevel(0, []float64{1}, 1, []float64{0.5})
		level.SetBounds([]float64{-1}, []float64{1})
		solver := hls.New(hls.Options{}, nil)

		x, err := solver.Solve(&core.HierarchicalQP{NumVariables: 1, Levels: []core.QP{level}})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		assertSolution(t, x, []float64{0.5}, 1e-12)
		if solver.Iterations() != 0 {
			t.Errorf("expected no working set changes, got %d", solver.Iterations())
		}
	})
}

func TestSolver_MaxIterations(t *testing.T) {
	level := taskLevel(0, []float64{1, 0, 0, 1}, 2, []float64{5, 5})
	level.SetBounds(nil, []float64{1, 1})

	_, err := hls.New(hls.Options{MaxIterations: 1}, nil).Solve(&core.HierarchicalQP{NumVariables: 2, Levels: []core.QP{level}})
	if !errors.Is(err, hls.ErrMaxIterations) {
		t.Errorf("expected ErrMaxIterations, got %v", err)
	}
}

func TestSolver_Damping(t *testing.T) {
	hqp := &core.HierarchicalQP{
		NumVariables: 1,
		Levels:       []core.QP{taskLevel(0, []float64{1}, 1, []float64{1})},
	}
	x, err := hls.New(hls.Options{Damping: 1}, nil).Solve(hqp)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	assertSolution(t, x, []float64{0.5}, 1e-12)
}

func TestSolver_InvalidProblem(t *testing.T) {
	tests := []struct {
		name string
		hqp  *core.HierarchicalQP
	}{
		{"nil", nil},
		{"no variables", &core.HierarchicalQP{Levels: []core.QP{{}}}},
		{"no levels", &core.HierarchicalQP{NumVariables: 2}},
		{"column mismatch", &core.HierarchicalQP{
			NumVariables: 3,
			Levels:       []core.QP{taskLevel(0, []float64{1, 1}, 2, []float64{1})},
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := hls.New(hls.Options{}, nil).Solve(tt.hqp)
			if !errors.Is(err, hls.ErrInvalidProblem) {
				t.Errorf("expected ErrInvalidProblem, got %v", err)
			}
		})
	}
}

func TestOptionsDefaults(t *testing.T) {
	opts := hls.New(hls.Options{Damping: 0.1}, nil).Options()
	d := hls.DefaultOptions()
	if opts.MaxIterations != d.MaxIterations || opts.RankTolerance != d.RankTolerance || opts.Damping != 0.1 {
		t.Errorf("unexpected options %+v", opts)
	}
}
