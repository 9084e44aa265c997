package solver

import (
	"context"
	"fmt"
	"math"

	"github.com/otflow-ml/otflow/internal/cost"
	"github.com/otflow-ml/otflow/internal/mat"
)

// gFloor keeps the inner weights strictly positive, as a fraction of
// the total mass.
const gFloor = 1e-10

// lowrank factorizes the plan as P = Q·diag(1/g)·Rᵀ with non-negative
// factors and alternately updates each factor:
//
//   - the Q block (constraints Q·1 = a, Qᵀ·1 = g) and the R block
//     (R·1 = b, Rᵀ·1 = g) are themselves small entropic OT problems
//     against the linearized costs C·R·diag(1/g) and Cᵀ·Q·diag(1/g),
//     solved by the entropic inner solver;
//   - the inner weights g take a multiplicative mirror step along
//     diag(QᵀCR)/g², then renormalize to the total mass.
//
// The cost is only ever applied to rank-width factors, so a factored
// cost keeps peak memory at O((n+m)·rank) instead of O(n·m).
// Ending each sweep with the Q and R blocks makes the final plan's
// marginals match a and b within the inner tolerance by construction.
func lowrank(ctx context.Context, a, b []float64, cm cost.Matrix, cfg Config) (*gwState, error) {
	n, m := len(a), len(b)
	if cm.Rows() != n || cm.Cols() != m {
		return nil, fmt.Errorf("%w: cost [%d,%d] vs marginals %d/%d",
			cost.ErrDimensionMismatch, cm.Rows(), cm.Cols(), n, m)
	}
	if cfg.TauA != 1 || cfg.TauB != 1 {
		return nil, fmt.Errorf("%w: low-rank solves require balanced marginals", ErrInvalidConfig)
	}

	r := cfg.Rank
	if minNM := min(n, m); r > minNM {
		r = minNM
	}
	mass := mat.Sum(a)

	g := make([]float64, r)
	for k := range g {
		g[k] = mass / float64(r)
	}
	// Product initialization: Q = a·gᵀ/mass satisfies both block
	// constraints exactly.
	q := mat.NewDense(n, r)
	for i := 0; i < n; i++ {
		row := q.Row(i)
		for k := range row {
			row[k] = a[i] * g[k] / mass
		}
	}
	rm := mat.NewDense(m, r)
	for j := 0; j < m; j++ {
		row := rm.Row(j)
		for k := range row {
			row[k] = b[j] * g[k] / mass
		}
	}

	st := &gwState{}
	objPrev := math.Inf(1)
	for it := 1; it <= cfg.OuterIterations; it++ {
		st.outer = it
		if err := ctx.Err(); err != nil {
			break
		}

		if it > 1 {
			cr := cm.MulMat(rm)
			xi := make([]float64, r)
			for k := 0; k < r; k++ {
				omega := 0.0
				for i := 0; i < n; i++ {
					omega += q.At(i, k) * cr.At(i, k)
				}
				xi[k] = omega / (g[k] * g[k])
			}
			step := cfg.Gamma / math.Max(1, mat.MaxAbs(xi))
			total := 0.0
			for k := range g {
				g[k] *= math.Exp(step * xi[k])
				if g[k] < gFloor*mass {
					g[k] = gFloor * mass
				}
				total += g[k]
			}
			for k := range g {
				g[k] *= mass / total
			}
		}

		// Q block: OT(a, g) under C·R·diag(1/g).
		cr := cm.MulMat(rm)
		scaleCols(cr, g)
		qState, err := sinkhorn(ctx, a, g, cost.NewDense(cr), cfg)
		if err != nil {
			return nil, fmt.Errorf("rank factor Q, sweep %d: %w", it, err)
		}
		st.inner += qState.iters
		if qState.stabilized {
			st.stabilized = true
		}
		q = qState.coupling.Materialize()

		// R block: OT(b, g) under Cᵀ·Q·diag(1/g).
		cq := cm.MulMatT(q)
		scaleCols(cq, g)
		rState, err := sinkhorn(ctx, b, g, cost.NewDense(cq), cfg)
		if err != nil {
			return nil, fmt.Errorf("rank factor R, sweep %d: %w", it, err)
		}
		st.inner += rState.iters
		if rState.stabilized {
			st.stabilized = true
		}
		rm = rState.coupling.Materialize()

		// Objective <C, Q·diag(1/g)·Rᵀ> = Σ_k (QᵀCR)_kk / g_k.
		cr2 := cm.MulMat(rm)
		obj := 0.0
		for k := 0; k < r; k++ {
			s := 0.0
			for i := 0; i < n; i++ {
				s += q.At(i, k) * cr2.At(i, k)
			}
			obj += s / g[k]
		}
		st.objective = obj

		if it > 1 && math.Abs(obj-objPrev) <= cfg.Threshold*math.Max(1, math.Abs(obj)) {
			st.converged = true
			break
		}
		objPrev = obj
	}

	gCopy := make([]float64, r)
	copy(gCopy, g)
	st.coupling = NewLowRankCoupling(q, rm, gCopy)
	st.marginalErr = mat.L1Diff(st.coupling.RowSums(), a) + mat.L1Diff(st.coupling.ColSums(), b)
	return st, nil
}

// scaleCols divides column k of m by g[k] in place.
func scaleCols(m *mat.Dense, g []float64) {
	for i := 0; i < m.Rows(); i++ {
		row := m.Row(i)
		for k := range row {
			row[k] /= g[k]
		}
	}
}
