package solver

import (
	"fmt"

	"github.com/otflow-ml/otflow/internal/mat"
)

// Coupling is a transport plan between two supports: a non-negative
// matrix whose row sums approximate the source weights and column sums
// the target weights. It is stored either densely or as the low-rank
// factorization P = Q·diag(1/g)·Rᵀ, and is immutable once solved.
type Coupling struct {
	rows, cols int

	dense *mat.Dense // nil for low-rank couplings

	q, r *mat.Dense // n×rank, m×rank non-negative factors
	g    []float64  // rank inner weights, strictly positive
}

// NewDenseCoupling wraps a dense plan.
func NewDenseCoupling(p *mat.Dense) *Coupling {
	return &Coupling{rows: p.Rows(), cols: p.Cols(), dense: p}
}

// NewLowRankCoupling wraps the three-factor plan Q·diag(1/g)·Rᵀ.
func NewLowRankCoupling(q, r *mat.Dense, g []float64) *Coupling {
	if q.Cols() != len(g) || r.Cols() != len(g) {
		panic(fmt.Sprintf("solver: factor rank mismatch q=%d r=%d g=%d", q.Cols(), r.Cols(), len(g)))
	}
	return &Coupling{rows: q.Rows(), cols: r.Rows(), q: q, r: r, g: g}
}

// Rows returns the source support size.
func (c *Coupling) Rows() int { return c.rows }

// Cols returns the target support size.
func (c *Coupling) Cols() int { return c.cols }

// IsLowRank reports whether the plan is stored factored.
func (c *Coupling) IsLowRank() bool { return c.dense == nil }

// Rank returns the factorization rank, or -1 for dense plans.
func (c *Coupling) Rank() int {
	if c.dense != nil {
		return -1
	}
	return len(c.g)
}

// Factors returns (Q, R, g) for a low-rank plan, or nils for dense.
func (c *Coupling) Factors() (*mat.Dense, *mat.Dense, []float64) {
	return c.q, c.r, c.g
}

// At returns P[i,j]. For low-rank plans this is O(rank).
func (c *Coupling) At(i, j int) float64 {
	if c.dense != nil {
		return c.dense.At(i, j)
	}
	s := 0.0
	qi, rj := c.q.Row(i), c.r.Row(j)
	for k, gk := range c.g {
		s += qi[k] * rj[k] / gk
	}
	return s
}

// Materialize returns the dense plan, converting a low-rank plan if
// needed. The dense representation is not retained.
func (c *Coupling) Materialize() *mat.Dense {
	if c.dense != nil {
		return c.dense
	}
	out := mat.NewDense(c.rows, c.cols)
	for i := 0; i < c.rows; i++ {
		row := out.Row(i)
		qi := c.q.Row(i)
		for j := 0; j < c.cols; j++ {
			rj := c.r.Row(j)
			s := 0.0
			for k, gk := range c.g {
				s += qi[k] * rj[k] / gk
			}
			row[j] = s
		}
	}
	return out
}

// RowSums returns P·1, the achieved source marginal.
func (c *Coupling) RowSums() []float64 {
	if c.dense != nil {
		return c.dense.RowSums()
	}
	// P·1 = Q·(Rᵀ1 ⊘ g)
	t := c.r.ColSums()
	for k := range t {
		t[k] /= c.g[k]
	}
	return c.q.MulVec(t)
}

// ColSums returns Pᵀ·1, the achieved target marginal.
func (c *Coupling) ColSums() []float64 {
	if c.dense != nil {
		return c.dense.ColSums()
	}
	t := c.q.ColSums()
	for k := range t {
		t[k] /= c.g[k]
	}
	return c.r.MulVec(t)
}

// ApplyT computes vᵀ·P, mapping a vector over the source support to
// the target support. O(rank·(n+m)) for low-rank plans.
func (c *Coupling) ApplyT(v []float64) []float64 {
	if len(v) != c.rows {
		panic(fmt.Sprintf("solver: applyT length %d vs %d rows", len(v), c.rows))
	}
	if c.dense != nil {
		return c.dense.MulVecT(v)
	}
	t := c.q.MulVecT(v)
	for k := range t {
		t[k] /= c.g[k]
	}
	return c.r.MulVec(t)
}

// Apply computes P·w, mapping a vector over the target support back to
// the source support.
func (c *Coupling) Apply(w []float64) []float64 {
	if len(w) != c.cols {
		panic(fmt.Sprintf("solver: apply length %d vs %d cols", len(w), c.cols))
	}
	if c.dense != nil {
		return c.dense.MulVec(w)
	}
	t := c.r.MulVecT(w)
	for k := range t {
		t[k] /= c.g[k]
	}
	return c.q.MulVec(t)
}
