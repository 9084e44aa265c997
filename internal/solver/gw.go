package solver

import (
	"context"
	"fmt"

	"github.com/otflow-ml/otflow/internal/cost"
	"github.com/otflow-ml/otflow/internal/mat"
)

// gwState is the result of a quadratic (Gromov-Wasserstein) run.
type gwState struct {
	coupling    *Coupling
	outer       int
	inner       int
	converged   bool
	stabilized  bool
	marginalErr float64
	objective   float64
}

// gromov runs the entropic Gromov-Wasserstein fixed point with the
// square loss: each outer step linearizes the quadratic objective at
// the current plan and solves the resulting linear problem with the
// entropic inner solver, or with the low-rank block solver when a
// rank is set, in which case the returned plan keeps its factored
// form. For fused problems the linearized cost is blended with the
// linear term by alpha.
//
// Inner non-convergence follows cfg.OnDivergence: continue with the
// best inner iterate, or abort the outer loop.
func gromov(ctx context.Context, a, b []float64, cx, cy, lin cost.Matrix, fused bool, cfg Config) (*gwState, error) {
	n, m := len(a), len(b)
	if cx.Rows() != n || cx.Cols() != n {
		return nil, fmt.Errorf("%w: source intra cost [%d,%d] vs %d points",
			cost.ErrDimensionMismatch, cx.Rows(), cx.Cols(), n)
	}
	if cy.Rows() != m || cy.Cols() != m {
		return nil, fmt.Errorf("%w: target intra cost [%d,%d] vs %d points",
			cost.ErrDimensionMismatch, cy.Rows(), cy.Cols(), m)
	}
	var linD *mat.Dense
	if fused {
		if lin == nil {
			return nil, fmt.Errorf("%w: fused problem without linear cost", ErrInvalidConfig)
		}
		if lin.Rows() != n || lin.Cols() != m {
			return nil, fmt.Errorf("%w: linear cost [%d,%d] vs marginals %d/%d",
				cost.ErrDimensionMismatch, lin.Rows(), lin.Cols(), n, m)
		}
		linD = lin.Dense()
	}

	cxD := cx.Dense()
	cyD := cy.Dense()

	// Square loss decomposition L(x,y) = x² + y² - 2xy:
	// tens(P) = constC - Cx·P·(2Cy)ᵀ with
	// constC_ij = Σ_k Cx²_ik·a_k + Σ_l Cy²_jl·b_l.
	cc1 := make([]float64, n)
	for i := 0; i < n; i++ {
		s := 0.0
		for k, v := range cxD.Row(i) {
			s += v * v * a[k]
		}
		cc1[i] = s
	}
	cc2 := make([]float64, m)
	for j := 0; j < m; j++ {
		s := 0.0
		for l, v := range cyD.Row(j) {
			s += v * v * b[l]
		}
		cc2[j] = s
	}

	hc2t := cyD.T()
	hc2t.Scale(2)

	// Independent (product) plan as the starting point.
	massB := mat.Sum(b)
	p := mat.NewDense(n, m)
	for i := 0; i < n; i++ {
		row := p.Row(i)
		for j := range row {
			row[j] = a[i] * b[j] / massB
		}
	}

	linearized := func(cur *mat.Dense) *mat.Dense {
		t := mat.MatMul(mat.MatMul(cxD, cur), hc2t)
		for i := 0; i < n; i++ {
			row := t.Row(i)
			for j := range row {
				v := cc1[i] + cc2[j] - row[j]
				if fused {
					v = cfg.Alpha*v + (1-cfg.Alpha)*linD.At(i, j)
				}
				row[j] = v
			}
		}
		return t
	}

	innerSolve := func(t *mat.Dense) (*Coupling, int, bool, bool, error) {
		if cfg.Rank > 0 {
			sub, err := lowrank(ctx, a, b, cost.NewDense(t), cfg)
			if err != nil {
				return nil, 0, false, false, err
			}
			return sub.coupling, sub.inner, sub.stabilized, sub.converged, nil
		}
		sub, err := sinkhorn(ctx, a, b, cost.NewDense(t), cfg)
		if err != nil {
			return nil, 0, false, false, err
		}
		return sub.coupling, sub.iters, sub.stabilized, sub.converged, nil
	}

	st := &gwState{}
	var last *Coupling
	var tens *mat.Dense
	for outer := 1; outer <= cfg.OuterIterations; outer++ {
		st.outer = outer
		if err := ctx.Err(); err != nil {
			break
		}

		tens = linearized(p)
		cpl, iters, stabilized, converged, err := innerSolve(tens)
		if err != nil {
			return nil, fmt.Errorf("outer iteration %d: %w", outer, err)
		}
		st.inner += iters
		if stabilized {
			st.stabilized = true
		}
		if !converged && cfg.OnDivergence == AbortOnDivergence {
			last = cpl
			p = cpl.Materialize()
			st.converged = false
			break
		}

		next := cpl.Materialize()
		delta := mat.SumAbsDiff(next, p)
		p = next
		last = cpl
		if delta <= cfg.OuterThreshold {
			st.converged = true
			break
		}
	}

	tens = linearized(p)
	// For fused problems linearized() already blends alpha in; the
	// reported objective is <blended cost, P>.
	st.objective = mat.Dot(tens, p)
	if last != nil && last.IsLowRank() {
		st.coupling = last
	} else {
		st.coupling = NewDenseCoupling(p)
	}
	st.marginalErr = mat.L1Diff(p.RowSums(), a) + mat.L1Diff(p.ColSums(), b)
	return st, nil
}
