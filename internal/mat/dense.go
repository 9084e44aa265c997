package mat

import (
	"fmt"

	"github.com/otflow-ml/otflow/internal/parallel"
)

// Dense is a row-major float64 matrix.
//
// It is the single in-memory representation used by the solver loops.
// Dimension checks panic: shape agreement is an internal invariant of
// the callers, not a recoverable condition.
type Dense struct {
	rows, cols int
	data       []float64
}

// NewDense allocates a zeroed rows×cols matrix.
func NewDense(rows, cols int) *Dense {
	if rows < 0 || cols < 0 {
		panic(fmt.Sprintf("mat: invalid shape [%d,%d]", rows, cols))
	}
	return &Dense{rows: rows, cols: cols, data: make([]float64, rows*cols)}
}

// NewDenseData wraps an existing row-major slice without copying.
func NewDenseData(rows, cols int, data []float64) *Dense {
	if len(data) != rows*cols {
		panic(fmt.Sprintf("mat: shape [%d,%d] requires %d elements, got %d", rows, cols, rows*cols, len(data)))
	}
	return &Dense{rows: rows, cols: cols, data: data}
}

// Rows returns the number of rows.
func (m *Dense) Rows() int { return m.rows }

// Cols returns the number of columns.
func (m *Dense) Cols() int { return m.cols }

// Data returns the underlying row-major slice.
func (m *Dense) Data() []float64 { return m.data }

// At returns the element at (i, j).
func (m *Dense) At(i, j int) float64 { return m.data[i*m.cols+j] }

// Set stores v at (i, j).
func (m *Dense) Set(i, j int, v float64) { m.data[i*m.cols+j] = v }

// Row returns the i-th row as a subslice (no copy).
func (m *Dense) Row(i int) []float64 { return m.data[i*m.cols : (i+1)*m.cols] }

// Clone returns a deep copy.
func (m *Dense) Clone() *Dense {
	out := NewDense(m.rows, m.cols)
	copy(out.data, m.data)
	return out
}

// T returns the transpose as a new matrix.
func (m *Dense) T() *Dense {
	out := NewDense(m.cols, m.rows)
	for i := 0; i < m.rows; i++ {
		row := m.Row(i)
		for j, v := range row {
			out.data[j*m.rows+i] = v
		}
	}
	return out
}

// Fill sets every element to v.
func (m *Dense) Fill(v float64) {
	for i := range m.data {
		m.data[i] = v
	}
}

// Scale multiplies every element by s in place.
func (m *Dense) Scale(s float64) {
	for i := range m.data {
		m.data[i] *= s
	}
}

// MatMul computes a @ b for 2D matrices: (M,K) @ (K,N) -> (M,N).
// Naive triple loop, accumulating in float64. Rows are independent and
// run chunked across CPUs on large inputs.
func MatMul(a, b *Dense) *Dense {
	if a.cols != b.rows {
		panic(fmt.Sprintf("mat: matmul shape mismatch [%d,%d] @ [%d,%d]", a.rows, a.cols, b.rows, b.cols))
	}
	m, k, n := a.rows, a.cols, b.cols
	out := NewDense(m, n)
	parallel.For(m, func(i int) {
		arow := a.data[i*k : (i+1)*k]
		orow := out.data[i*n : (i+1)*n]
		for kk, av := range arow {
			if av == 0 {
				continue
			}
			brow := b.data[kk*n : (kk+1)*n]
			for j, bv := range brow {
				orow[j] += av * bv
			}
		}
	}, parallel.DefaultConfig())
	return out
}

// MatMulT computes aᵀ @ b: (K,M)ᵀ @ (K,N) -> (M,N) without materializing aᵀ.
func MatMulT(a, b *Dense) *Dense {
	if a.rows != b.rows {
		panic(fmt.Sprintf("mat: matmulT shape mismatch [%d,%d]ᵀ @ [%d,%d]", a.rows, a.cols, b.rows, b.cols))
	}
	m, n := a.cols, b.cols
	out := NewDense(m, n)
	for kk := 0; kk < a.rows; kk++ {
		arow := a.data[kk*m : (kk+1)*m]
		brow := b.data[kk*n : (kk+1)*n]
		for i, av := range arow {
			if av == 0 {
				continue
			}
			orow := out.data[i*n : (i+1)*n]
			for j, bv := range brow {
				orow[j] += av * bv
			}
		}
	}
	return out
}

// RowSums returns the vector of row sums.
func (m *Dense) RowSums() []float64 {
	out := make([]float64, m.rows)
	for i := 0; i < m.rows; i++ {
		s := 0.0
		for _, v := range m.Row(i) {
			s += v
		}
		out[i] = s
	}
	return out
}

// ColSums returns the vector of column sums.
func (m *Dense) ColSums() []float64 {
	out := make([]float64, m.cols)
	for i := 0; i < m.rows; i++ {
		row := m.Row(i)
		for j, v := range row {
			out[j] += v
		}
	}
	return out
}

// MulVec computes m @ x -> vector of length Rows.
func (m *Dense) MulVec(x []float64) []float64 {
	if len(x) != m.cols {
		panic(fmt.Sprintf("mat: mulvec shape mismatch [%d,%d] @ [%d]", m.rows, m.cols, len(x)))
	}
	out := make([]float64, m.rows)
	for i := 0; i < m.rows; i++ {
		s := 0.0
		for j, v := range m.Row(i) {
			s += v * x[j]
		}
		out[i] = s
	}
	return out
}

// MulVecT computes mᵀ @ x -> vector of length Cols.
func (m *Dense) MulVecT(x []float64) []float64 {
	if len(x) != m.rows {
		panic(fmt.Sprintf("mat: mulvecT shape mismatch [%d,%d]ᵀ @ [%d]", m.rows, m.cols, len(x)))
	}
	out := make([]float64, m.cols)
	for i := 0; i < m.rows; i++ {
		xi := x[i]
		if xi == 0 {
			continue
		}
		for j, v := range m.Row(i) {
			out[j] += v * xi
		}
	}
	return out
}

// Dot computes the Frobenius inner product <a, b>.
func Dot(a, b *Dense) float64 {
	if a.rows != b.rows || a.cols != b.cols {
		panic(fmt.Sprintf("mat: dot shape mismatch [%d,%d] vs [%d,%d]", a.rows, a.cols, b.rows, b.cols))
	}
	s := 0.0
	for i, v := range a.data {
		s += v * b.data[i]
	}
	return s
}

// SumAbsDiff returns Σ|a - b|.
func SumAbsDiff(a, b *Dense) float64 {
	if a.rows != b.rows || a.cols != b.cols {
		panic(fmt.Sprintf("mat: diff shape mismatch [%d,%d] vs [%d,%d]", a.rows, a.cols, b.rows, b.cols))
	}
	s := 0.0
	for i, v := range a.data {
		d := v - b.data[i]
		if d < 0 {
			d = -d
		}
		s += d
	}
	return s
}
