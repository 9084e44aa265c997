// Package cost builds pairwise cost structures between marginals.
//
// Linear problems use a cross cost between the two supports; structural
// (Gromov-style) problems use one intra-support cost per marginal. A
// cost is either materialized densely or kept in factored form so the
// solver can apply it without ever holding n×m floats.
package cost

import (
	"errors"
	"fmt"
	"math"

	"github.com/otflow-ml/otflow/internal/mat"
	"github.com/otflow-ml/otflow/internal/parallel"
)

// Sentinel errors.
var (
	// ErrDimensionMismatch indicates incompatible feature dimensionality
	// between the two marginals of a linear cost.
	ErrDimensionMismatch = errors.New("cost: dimension mismatch")

	// ErrNoFeatures indicates a cost that needs point features was
	// requested for a marginal built from precomputed distances only.
	ErrNoFeatures = errors.New("cost: marginal has no feature matrix")

	// ErrUnsupportedMetric indicates a metric the builder cannot compute
	// in the requested representation.
	ErrUnsupportedMetric = errors.New("cost: unsupported metric")
)

// Metric identifies the ground cost between feature vectors.
type Metric int

// Supported metrics.
const (
	SqEuclidean Metric = iota // squared Euclidean distance (default)
	Euclidean
	Cosine // 1 - cosine similarity
)

// String returns the metric name.
func (m Metric) String() string {
	switch m {
	case SqEuclidean:
		return "sq_euclidean"
	case Euclidean:
		return "euclidean"
	case Cosine:
		return "cosine"
	default:
		return "unknown"
	}
}

// ParseMetric converts a config string into a Metric.
func ParseMetric(s string) (Metric, error) {
	switch s {
	case "", "sq_euclidean", "sqeuclidean":
		return SqEuclidean, nil
	case "euclidean":
		return Euclidean, nil
	case "cosine":
		return Cosine, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnsupportedMetric, s)
	}
}

// Scale identifies how a built cost is rescaled before solving.
// Rescaling keeps the entropic regularization parameter comparable
// across edges with different cost magnitudes.
type Scale int

// Supported scalings.
const (
	ScaleMean Scale = iota // divide by the mean entry (default)
	ScaleMax               // divide by the maximum entry
	ScaleNone
)

// String returns the scale name.
func (s Scale) String() string {
	switch s {
	case ScaleMean:
		return "mean"
	case ScaleMax:
		return "max"
	case ScaleNone:
		return "none"
	default:
		return "unknown"
	}
}

// ParseScale converts a config string into a Scale.
func ParseScale(s string) (Scale, error) {
	switch s {
	case "", "mean":
		return ScaleMean, nil
	case "max":
		return ScaleMax, nil
	case "none":
		return ScaleNone, nil
	default:
		return 0, fmt.Errorf("cost: unknown scale %q", s)
	}
}

// Matrix is a pairwise cost between two supports. Implementations are
// immutable after construction and safe for concurrent reads.
type Matrix interface {
	Rows() int
	Cols() int

	// At returns the cost between source point i and target point j.
	At(i, j int) float64

	// Dense materializes the full cost matrix.
	Dense() *mat.Dense

	// MulMat applies the cost to a Cols()×r matrix: C @ X.
	MulMat(x *mat.Dense) *mat.Dense

	// MulMatT applies the transpose to a Rows()×r matrix: Cᵀ @ X.
	MulMatT(x *mat.Dense) *mat.Dense

	// MaxAbs returns the largest absolute entry, used for the entropic
	// stability floor.
	MaxAbs() float64
}

// denseCost is a materialized cost matrix.
type denseCost struct {
	m      *mat.Dense
	maxAbs float64
}

// NewDense wraps a materialized cost matrix.
func NewDense(m *mat.Dense) Matrix {
	return &denseCost{m: m, maxAbs: mat.MaxAbs(m.Data())}
}

func (d *denseCost) Rows() int                      { return d.m.Rows() }
func (d *denseCost) Cols() int                      { return d.m.Cols() }
func (d *denseCost) At(i, j int) float64            { return d.m.At(i, j) }
func (d *denseCost) Dense() *mat.Dense              { return d.m }
func (d *denseCost) MulMat(x *mat.Dense) *mat.Dense { return mat.MatMul(d.m, x) }
func (d *denseCost) MulMatT(x *mat.Dense) *mat.Dense {
	return mat.MatMulT(d.m, x)
}
func (d *denseCost) MaxAbs() float64 { return d.maxAbs }

// Pairwise computes the dense metric cost between two feature matrices.
func Pairwise(x, y *mat.Dense, metric Metric) (*mat.Dense, error) {
	if x.Cols() != y.Cols() {
		return nil, fmt.Errorf("%w: %d-dim vs %d-dim features", ErrDimensionMismatch, x.Cols(), y.Cols())
	}
	n, m := x.Rows(), y.Rows()
	out := mat.NewDense(n, m)
	parallel.For(n, func(i int) {
		xi := x.Row(i)
		row := out.Row(i)
		for j := 0; j < m; j++ {
			row[j] = pointCost(xi, y.Row(j), metric)
		}
	}, parallel.DefaultConfig())
	return out, nil
}

func pointCost(a, b []float64, metric Metric) float64 {
	switch metric {
	case SqEuclidean, Euclidean:
		s := 0.0
		for k, av := range a {
			d := av - b[k]
			s += d * d
		}
		if metric == Euclidean {
			return math.Sqrt(s)
		}
		return s
	case Cosine:
		var dot, na, nb float64
		for k, av := range a {
			dot += av * b[k]
			na += av * av
			nb += b[k] * b[k]
		}
		if na == 0 || nb == 0 {
			return 1
		}
		return 1 - dot/math.Sqrt(na*nb)
	default:
		panic(fmt.Sprintf("cost: unknown metric %d", metric))
	}
}
