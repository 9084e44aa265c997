package solver

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/otflow-ml/otflow/internal/mat"
)

func TestDenseCoupling(t *testing.T) {
	p := mat.NewDenseData(2, 3, []float64{0.1, 0.2, 0.2, 0.3, 0.1, 0.1})
	c := NewDenseCoupling(p)

	assert.False(t, c.IsLowRank())
	assert.Equal(t, -1, c.Rank())
	assert.Equal(t, 2, c.Rows())
	assert.Equal(t, 3, c.Cols())
	assert.InDelta(t, 0.2, c.At(0, 1), 1e-12)
	assert.InDelta(t, 0.5, c.RowSums()[0], 1e-12)
	assert.InDelta(t, 0.4, c.ColSums()[0], 1e-12)
}

func TestLowRankCouplingMatchesMaterialized(t *testing.T) {
	q := mat.NewDenseData(3, 2, []float64{
		0.2, 0.1,
		0.1, 0.2,
		0.2, 0.2,
	})
	r := mat.NewDenseData(2, 2, []float64{
		0.3, 0.2,
		0.2, 0.3,
	})
	g := []float64{0.5, 0.5}

	c := NewLowRankCoupling(q, r, g)
	require.True(t, c.IsLowRank())
	assert.Equal(t, 2, c.Rank())

	dense := c.Materialize()
	for i := 0; i < 3; i++ {
		for j := 0; j < 2; j++ {
			assert.InDelta(t, dense.At(i, j), c.At(i, j), 1e-12)
		}
	}

	// Marginal and application paths agree with the dense plan.
	wantRows := dense.RowSums()
	for i, v := range c.RowSums() {
		assert.InDelta(t, wantRows[i], v, 1e-12)
	}
	wantCols := dense.ColSums()
	for j, v := range c.ColSums() {
		assert.InDelta(t, wantCols[j], v, 1e-12)
	}

	v := []float64{1, 2, 3}
	want := dense.MulVecT(v)
	for j, got := range c.ApplyT(v) {
		assert.InDelta(t, want[j], got, 1e-12)
	}

	w := []float64{2, 1}
	wantBack := dense.MulVec(w)
	for i, got := range c.Apply(w) {
		assert.InDelta(t, wantBack[i], got, 1e-12)
	}
}

func TestLowRankCouplingFactorMismatchPanics(t *testing.T) {
	q := mat.NewDense(2, 2)
	r := mat.NewDense(2, 3)
	assert.Panics(t, func() { NewLowRankCoupling(q, r, []float64{1, 1}) })
}

func TestCouplingApplyLengthPanics(t *testing.T) {
	c := NewDenseCoupling(mat.NewDense(2, 3))
	assert.Panics(t, func() { c.Apply([]float64{1, 2}) })
	assert.Panics(t, func() { c.ApplyT([]float64{1, 2, 3}) })
}
