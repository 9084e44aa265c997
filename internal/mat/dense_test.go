package mat

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMatMul(t *testing.T) {
	a := NewDenseData(2, 3, []float64{1, 2, 3, 4, 5, 6})
	b := NewDenseData(3, 2, []float64{7, 8, 9, 10, 11, 12})

	c := MatMul(a, b)

	require.Equal(t, 2, c.Rows())
	require.Equal(t, 2, c.Cols())
	assert.InDelta(t, 58, c.At(0, 0), 1e-12)
	assert.InDelta(t, 64, c.At(0, 1), 1e-12)
	assert.InDelta(t, 139, c.At(1, 0), 1e-12)
	assert.InDelta(t, 154, c.At(1, 1), 1e-12)
}

func TestMatMulTMatchesExplicitTranspose(t *testing.T) {
	a := NewDenseData(3, 2, []float64{1, 4, 2, 5, 3, 6})
	b := NewDenseData(3, 2, []float64{7, 10, 8, 11, 9, 12})

	got := MatMulT(a, b)
	want := MatMul(a.T(), b)

	require.Equal(t, want.Rows(), got.Rows())
	require.Equal(t, want.Cols(), got.Cols())
	for i := range want.Data() {
		assert.InDelta(t, want.Data()[i], got.Data()[i], 1e-12)
	}
}

func TestMatMulShapeMismatchPanics(t *testing.T) {
	a := NewDense(2, 3)
	b := NewDense(2, 3)
	assert.Panics(t, func() { MatMul(a, b) })
}

func TestRowColSums(t *testing.T) {
	m := NewDenseData(2, 3, []float64{1, 2, 3, 4, 5, 6})

	assert.Equal(t, []float64{6, 15}, m.RowSums())
	assert.Equal(t, []float64{5, 7, 9}, m.ColSums())
}

func TestMulVec(t *testing.T) {
	m := NewDenseData(2, 3, []float64{1, 2, 3, 4, 5, 6})

	assert.Equal(t, []float64{14, 32}, m.MulVec([]float64{1, 2, 3}))
	assert.Equal(t, []float64{9, 12, 15}, m.MulVecT([]float64{1, 2}))
}

func TestDotAndSumAbsDiff(t *testing.T) {
	a := NewDenseData(2, 2, []float64{1, 2, 3, 4})
	b := NewDenseData(2, 2, []float64{2, 2, 2, 2})

	assert.InDelta(t, 20, Dot(a, b), 1e-12)
	assert.InDelta(t, 4, SumAbsDiff(a, b), 1e-12)
}

func TestLogSumExp(t *testing.T) {
	x := []float64{math.Log(1), math.Log(2), math.Log(3)}
	assert.InDelta(t, math.Log(6), LogSumExp(x), 1e-12)

	// Large magnitudes must not overflow.
	assert.InDelta(t, 1000+math.Log(2), LogSumExp([]float64{1000, 1000}), 1e-9)

	// All -Inf stays -Inf.
	assert.True(t, math.IsInf(LogSumExp([]float64{math.Inf(-1), math.Inf(-1)}), -1))

	// A single -Inf entry is ignored.
	assert.InDelta(t, 0, LogSumExp([]float64{0, math.Inf(-1)}), 1e-12)
}

func TestAllFinite(t *testing.T) {
	assert.True(t, AllFinite([]float64{1, -2, 0}))
	assert.False(t, AllFinite([]float64{1, math.NaN()}))
	assert.False(t, AllFinite([]float64{math.Inf(1)}))
}

func TestTranspose(t *testing.T) {
	m := NewDenseData(2, 3, []float64{1, 2, 3, 4, 5, 6})
	mt := m.T()

	require.Equal(t, 3, mt.Rows())
	require.Equal(t, 2, mt.Cols())
	assert.Equal(t, 4.0, mt.At(0, 1))
	assert.Equal(t, 6.0, mt.At(2, 1))
}
