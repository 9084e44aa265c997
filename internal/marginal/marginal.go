// Package marginal defines the weighted point distributions coupled by
// the transport graph.
//
// A Marginal owns an ordered point support: either a feature matrix
// (one row per point) or a precomputed intra-support distance matrix
// (for structural matching), plus a non-negative weight vector summing
// to the declared total mass.
package marginal

import (
	"errors"
	"fmt"
	"math"

	"github.com/otflow-ml/otflow/internal/mat"
)

// Sentinel errors for marginal construction.
var (
	// ErrDegenerateMarginal indicates an empty support or all-zero weights.
	ErrDegenerateMarginal = errors.New("marginal: degenerate marginal")

	// ErrNegativeWeight indicates a negative entry in the weight vector.
	ErrNegativeWeight = errors.New("marginal: negative weight")

	// ErrWeightLength indicates weight length disagreeing with point count.
	ErrWeightLength = errors.New("marginal: weight length mismatch")
)

// Marginal is a keyed weighted distribution over a finite point support.
type Marginal struct {
	key      string
	features *mat.Dense // n×d feature rows, nil when distances given
	dists    *mat.Dense // n×n precomputed pairwise distances, nil when features given
	weights  []float64
	mass     float64
}

// Option configures marginal construction.
type Option func(*options)

type options struct {
	weights []float64
	mass    float64
}

// WithWeights sets an explicit weight vector. Defaults to uniform.
func WithWeights(w []float64) Option {
	return func(o *options) { o.weights = w }
}

// WithMass sets the declared total mass. Defaults to 1.0.
// Uniform weights are scaled to sum to it; explicit weights are
// normalized to it.
func WithMass(mass float64) Option {
	return func(o *options) { o.mass = mass }
}

// New creates a marginal from an n×d feature matrix.
func New(key string, features *mat.Dense, opts ...Option) (*Marginal, error) {
	m := &Marginal{key: key, features: features}
	return m.finish(features.Rows(), opts)
}

// NewFromDistances creates a marginal from a precomputed n×n pairwise
// distance matrix, for structural (Gromov-style) matching where no
// shared feature space exists.
func NewFromDistances(key string, dists *mat.Dense, opts ...Option) (*Marginal, error) {
	if dists.Rows() != dists.Cols() {
		return nil, fmt.Errorf("marginal %q: distance matrix must be square, got [%d,%d]",
			key, dists.Rows(), dists.Cols())
	}
	m := &Marginal{key: key, dists: dists}
	return m.finish(dists.Rows(), opts)
}

func (m *Marginal) finish(n int, opts []Option) (*Marginal, error) {
	if n == 0 {
		return nil, fmt.Errorf("%w: %q has empty support", ErrDegenerateMarginal, m.key)
	}

	o := options{mass: 1.0}
	for _, opt := range opts {
		opt(&o)
	}
	if o.mass <= 0 || math.IsNaN(o.mass) {
		return nil, fmt.Errorf("marginal %q: total mass must be positive, got %v", m.key, o.mass)
	}

	if o.weights == nil {
		w := make([]float64, n)
		for i := range w {
			w[i] = o.mass / float64(n)
		}
		m.weights = w
		m.mass = o.mass
		return m, nil
	}

	if len(o.weights) != n {
		return nil, fmt.Errorf("%w: %q has %d points but %d weights",
			ErrWeightLength, m.key, n, len(o.weights))
	}
	total := 0.0
	for i, w := range o.weights {
		if w < 0 || math.IsNaN(w) {
			return nil, fmt.Errorf("%w: %q weight[%d] = %v", ErrNegativeWeight, m.key, i, w)
		}
		total += w
	}
	if total == 0 {
		return nil, fmt.Errorf("%w: %q has all-zero weights", ErrDegenerateMarginal, m.key)
	}

	// Normalize to the declared mass.
	w := make([]float64, n)
	scale := o.mass / total
	for i, v := range o.weights {
		w[i] = v * scale
	}
	m.weights = w
	m.mass = o.mass
	return m, nil
}

// Key returns the marginal's identifier.
func (m *Marginal) Key() string { return m.key }

// Len returns the number of support points.
func (m *Marginal) Len() int { return len(m.weights) }

// Weights returns the weight vector. Callers must not mutate it.
func (m *Marginal) Weights() []float64 { return m.weights }

// Mass returns the declared total mass.
func (m *Marginal) Mass() float64 { return m.mass }

// Features returns the n×d feature matrix, or nil if the marginal was
// built from precomputed distances.
func (m *Marginal) Features() *mat.Dense { return m.features }

// Distances returns the precomputed n×n distance matrix, or nil.
func (m *Marginal) Distances() *mat.Dense { return m.dists }

// Dim returns the feature dimensionality, or 0 when only distances
// are available.
func (m *Marginal) Dim() int {
	if m.features == nil {
		return 0
	}
	return m.features.Cols()
}
