package cost

import (
	"fmt"
	"math"

	"github.com/otflow-ml/otflow/internal/mat"
)

// factoredCost is the squared Euclidean cost in factored form:
//
//	C[i,j] = sx[i] + sy[j] - 2 <x_i, y_j>
//
// It never materializes the n×m matrix unless Dense is called, so
// applying it to a skinny factor costs O((n+m)·d·r) time and
// O((n+m)·r) memory. Used by the low-rank solver on large supports.
type factoredCost struct {
	x, y   *mat.Dense // n×d, m×d feature rows
	sx, sy []float64  // squared row norms
	inv    float64    // reciprocal of the scale divisor, 1 when unscaled
	maxAbs float64
}

// NewFactored builds a factored squared Euclidean cost from the two
// feature matrices. Only SqEuclidean admits this form.
func NewFactored(x, y *mat.Dense) (Matrix, error) {
	if x.Cols() != y.Cols() {
		return nil, fmt.Errorf("%w: %d-dim vs %d-dim features", ErrDimensionMismatch, x.Cols(), y.Cols())
	}
	f := &factoredCost{
		x:   x,
		y:   y,
		sx:  squaredNorms(x),
		sy:  squaredNorms(y),
		inv: 1,
	}
	// Upper bound: the exact max would need an O(n·m) scan; the bound
	// only feeds the log-domain escalation heuristic.
	mx, my := mat.Max(f.sx), mat.Max(f.sy)
	f.maxAbs = mx + my + 2*math.Sqrt(mx)*math.Sqrt(my)
	return f, nil
}

func squaredNorms(m *mat.Dense) []float64 {
	out := make([]float64, m.Rows())
	for i := 0; i < m.Rows(); i++ {
		s := 0.0
		for _, v := range m.Row(i) {
			s += v * v
		}
		out[i] = s
	}
	return out
}

func (f *factoredCost) Rows() int { return f.x.Rows() }
func (f *factoredCost) Cols() int { return f.y.Rows() }

// setScale divides the whole cost by s.
func (f *factoredCost) setScale(s float64) {
	if s > 0 {
		f.inv = 1 / s
		f.maxAbs *= f.inv
	}
}

// mean returns the exact mean entry, computable in O((n+m)·d).
func (f *factoredCost) mean() float64 {
	n, m := f.Rows(), f.Cols()
	dot := 0.0
	csx, csy := f.x.ColSums(), f.y.ColSums()
	for k, v := range csx {
		dot += v * csy[k]
	}
	return f.inv * (mat.Sum(f.sx)/float64(n) + mat.Sum(f.sy)/float64(m) - 2*dot/float64(n*m))
}

func (f *factoredCost) At(i, j int) float64 {
	dot := 0.0
	xi, yj := f.x.Row(i), f.y.Row(j)
	for k, v := range xi {
		dot += v * yj[k]
	}
	return f.inv * (f.sx[i] + f.sy[j] - 2*dot)
}

func (f *factoredCost) Dense() *mat.Dense {
	n, m := f.Rows(), f.Cols()
	out := mat.NewDense(n, m)
	for i := 0; i < n; i++ {
		row := out.Row(i)
		for j := 0; j < m; j++ {
			row[j] = f.At(i, j)
		}
	}
	return out
}

// MulMat computes C @ X = sx·(1ᵀX) + 1·(syᵀX) - 2·Fx·(Fyᵀ·X)
// without materializing C.
func (f *factoredCost) MulMat(x *mat.Dense) *mat.Dense {
	if x.Rows() != f.Cols() {
		panic(fmt.Sprintf("cost: factored mulmat shape mismatch [%d,%d] @ [%d,%d]",
			f.Rows(), f.Cols(), x.Rows(), x.Cols()))
	}
	r := x.Cols()
	colSumX := x.ColSums()        // 1ᵀX, length r
	syX := mat.MatMulT(toCol(f.sy), x) // 1×r: syᵀX
	inner := mat.MatMul(f.x, mat.MatMulT(f.y, x)) // Fx @ (Fyᵀ @ X): n×r

	out := mat.NewDense(f.Rows(), r)
	for i := 0; i < f.Rows(); i++ {
		row := out.Row(i)
		for j := 0; j < r; j++ {
			row[j] = f.inv * (f.sx[i]*colSumX[j] + syX.At(0, j) - 2*inner.At(i, j))
		}
	}
	return out
}

// MulMatT computes Cᵀ @ X symmetrically.
func (f *factoredCost) MulMatT(x *mat.Dense) *mat.Dense {
	if x.Rows() != f.Rows() {
		panic(fmt.Sprintf("cost: factored mulmatT shape mismatch [%d,%d]ᵀ @ [%d,%d]",
			f.Rows(), f.Cols(), x.Rows(), x.Cols()))
	}
	r := x.Cols()
	colSumX := x.ColSums()
	sxX := mat.MatMulT(toCol(f.sx), x) // 1×r
	inner := mat.MatMul(f.y, mat.MatMulT(f.x, x)) // Fy @ (Fxᵀ @ X): m×r

	out := mat.NewDense(f.Cols(), r)
	for j := 0; j < f.Cols(); j++ {
		row := out.Row(j)
		for k := 0; k < r; k++ {
			row[k] = f.inv * (f.sy[j]*colSumX[k] + sxX.At(0, k) - 2*inner.At(j, k))
		}
	}
	return out
}

func (f *factoredCost) MaxAbs() float64 { return f.maxAbs }

// toCol views a vector as an n×1 matrix.
func toCol(v []float64) *mat.Dense {
	return mat.NewDenseData(len(v), 1, v)
}
