package cost

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/otflow-ml/otflow/internal/mat"
	"github.com/otflow-ml/otflow/internal/marginal"
)

func randMat(rng *rand.Rand, n, d int) *mat.Dense {
	m := mat.NewDense(n, d)
	for i := range m.Data() {
		m.Data()[i] = rng.NormFloat64()
	}
	return m
}

func TestPairwiseSqEuclidean(t *testing.T) {
	x := mat.NewDenseData(2, 2, []float64{0, 0, 1, 1})
	y := mat.NewDenseData(2, 2, []float64{0, 0, 3, 4})

	d, err := Pairwise(x, y, SqEuclidean)
	require.NoError(t, err)

	assert.InDelta(t, 0, d.At(0, 0), 1e-12)
	assert.InDelta(t, 25, d.At(0, 1), 1e-12)
	assert.InDelta(t, 2, d.At(1, 0), 1e-12)
	assert.InDelta(t, 13, d.At(1, 1), 1e-12)
}

func TestPairwiseEuclidean(t *testing.T) {
	x := mat.NewDenseData(1, 2, []float64{0, 0})
	y := mat.NewDenseData(1, 2, []float64{3, 4})

	d, err := Pairwise(x, y, Euclidean)
	require.NoError(t, err)
	assert.InDelta(t, 5, d.At(0, 0), 1e-12)
}

func TestPairwiseCosine(t *testing.T) {
	x := mat.NewDenseData(2, 2, []float64{1, 0, 0, 2})
	y := mat.NewDenseData(1, 2, []float64{1, 0})

	d, err := Pairwise(x, y, Cosine)
	require.NoError(t, err)

	// Parallel vectors have zero cost, orthogonal ones cost 1.
	assert.InDelta(t, 0, d.At(0, 0), 1e-12)
	assert.InDelta(t, 1, d.At(1, 0), 1e-12)
}

func TestPairwiseDimensionMismatch(t *testing.T) {
	_, err := Pairwise(mat.NewDense(2, 2), mat.NewDense(2, 3), SqEuclidean)
	assert.ErrorIs(t, err, ErrDimensionMismatch)
}

func TestParseMetric(t *testing.T) {
	m, err := ParseMetric("sq_euclidean")
	require.NoError(t, err)
	assert.Equal(t, SqEuclidean, m)

	m, err = ParseMetric("cosine")
	require.NoError(t, err)
	assert.Equal(t, Cosine, m)

	_, err = ParseMetric("mahalanobis")
	assert.ErrorIs(t, err, ErrUnsupportedMetric)
}

func TestParseScale(t *testing.T) {
	s, err := ParseScale("mean")
	require.NoError(t, err)
	assert.Equal(t, ScaleMean, s)

	_, err = ParseScale("median")
	assert.Error(t, err)
}

func TestBuilderCachesByKeyPair(t *testing.T) {
	src, err := marginal.New("a", mat.NewDenseData(2, 1, []float64{0, 1}))
	require.NoError(t, err)
	dst, err := marginal.New("b", mat.NewDenseData(2, 1, []float64{2, 3}))
	require.NoError(t, err)

	b := NewBuilder()
	c1, err := b.Linear(src, dst)
	require.NoError(t, err)
	c2, err := b.Linear(src, dst)
	require.NoError(t, err)

	assert.Same(t, c1, c2)

	b.Invalidate("a")
	c3, err := b.Linear(src, dst)
	require.NoError(t, err)
	assert.NotSame(t, c1, c3)
}

func TestBuilderMeanScaling(t *testing.T) {
	src, err := marginal.New("a", mat.NewDenseData(2, 1, []float64{0, 2}))
	require.NoError(t, err)
	dst, err := marginal.New("b", mat.NewDenseData(2, 1, []float64{0, 2}))
	require.NoError(t, err)

	b := NewBuilder(WithScale(ScaleMean))
	c, err := b.Linear(src, dst)
	require.NoError(t, err)

	// After mean scaling the entries average to one.
	total := 0.0
	for i := 0; i < c.Rows(); i++ {
		for j := 0; j < c.Cols(); j++ {
			total += c.At(i, j)
		}
	}
	assert.InDelta(t, 1.0, total/float64(c.Rows()*c.Cols()), 1e-12)
}

func TestBuilderIntraUsesPrecomputedDistances(t *testing.T) {
	pre := mat.NewDenseData(2, 2, []float64{0, 4, 4, 0})
	m, err := marginal.NewFromDistances("g", pre)
	require.NoError(t, err)

	b := NewBuilder(WithScale(ScaleNone))
	c, err := b.Intra(m)
	require.NoError(t, err)

	assert.InDelta(t, 4, c.At(0, 1), 1e-12)
	assert.InDelta(t, 0, c.At(0, 0), 1e-12)
}

func TestBuilderLinearRequiresFeatures(t *testing.T) {
	withFeat, err := marginal.New("a", mat.NewDenseData(1, 1, []float64{0}))
	require.NoError(t, err)
	distOnly, err := marginal.NewFromDistances("b", mat.NewDenseData(1, 1, []float64{0}))
	require.NoError(t, err)

	b := NewBuilder()
	_, err = b.Linear(withFeat, distOnly)
	assert.ErrorIs(t, err, ErrNoFeatures)
}

func TestFactoredMatchesDense(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	x := randMat(rng, 7, 3)
	y := randMat(rng, 5, 3)

	fc, err := NewFactored(x, y)
	require.NoError(t, err)
	dense, err := Pairwise(x, y, SqEuclidean)
	require.NoError(t, err)

	for i := 0; i < 7; i++ {
		for j := 0; j < 5; j++ {
			assert.InDelta(t, dense.At(i, j), fc.At(i, j), 1e-9)
		}
	}

	// Applications agree with the materialized matrix.
	v := randMat(rng, 5, 2)
	got := fc.MulMat(v)
	want := mat.MatMul(dense, v)
	for i := range want.Data() {
		assert.InDelta(t, want.Data()[i], got.Data()[i], 1e-9)
	}

	w := randMat(rng, 7, 2)
	gotT := fc.MulMatT(w)
	wantT := mat.MatMul(dense.T(), w)
	for i := range wantT.Data() {
		assert.InDelta(t, wantT.Data()[i], gotT.Data()[i], 1e-9)
	}
}

func TestFactoredBuilderScalesLikeDense(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	xf := randMat(rng, 6, 2)
	yf := randMat(rng, 4, 2)
	src, err := marginal.New("a", xf)
	require.NoError(t, err)
	dst, err := marginal.New("b", yf)
	require.NoError(t, err)

	fb := NewBuilder(WithFactored(), WithScale(ScaleMean))
	db := NewBuilder(WithScale(ScaleMean))

	fc, err := fb.Linear(src, dst)
	require.NoError(t, err)
	dc, err := db.Linear(src, dst)
	require.NoError(t, err)

	for i := 0; i < fc.Rows(); i++ {
		for j := 0; j < fc.Cols(); j++ {
			assert.InDelta(t, dc.At(i, j), fc.At(i, j), 1e-9)
		}
	}
}

func TestFactoredRejectsNonSqEuclidean(t *testing.T) {
	src, err := marginal.New("a", mat.NewDenseData(1, 1, []float64{0}))
	require.NoError(t, err)
	dst, err := marginal.New("b", mat.NewDenseData(1, 1, []float64{1}))
	require.NoError(t, err)

	b := NewBuilder(WithFactored(), WithMetric(Cosine))
	_, err = b.Linear(src, dst)
	assert.ErrorIs(t, err, ErrUnsupportedMetric)
}
