package cost

import (
	"fmt"
	"sync"

	"github.com/otflow-ml/otflow/internal/mat"
	"github.com/otflow-ml/otflow/internal/marginal"
)

// Builder computes and caches costs between marginals.
//
// Construction is pure, so results are cached by (source key, target
// key, metric). Intra-support costs are cached by (key, key, metric).
// The builder is safe for concurrent use; each edge is built at most
// once even when edges solve in parallel.
type Builder struct {
	metric   Metric
	scale    Scale
	factored bool

	mu    sync.Mutex
	cache map[cacheKey]Matrix
}

type cacheKey struct {
	src, dst string
	metric   Metric
}

// BuilderOption configures a Builder.
type BuilderOption func(*Builder)

// WithMetric sets the ground metric. Default is squared Euclidean.
func WithMetric(m Metric) BuilderOption {
	return func(b *Builder) { b.metric = m }
}

// WithScale sets the cost rescaling mode. Default is mean scaling.
func WithScale(s Scale) BuilderOption {
	return func(b *Builder) { b.scale = s }
}

// WithFactored keeps squared Euclidean cross costs in factored form,
// bounding peak memory to O(n+m) instead of O(n·m).
func WithFactored() BuilderOption {
	return func(b *Builder) { b.factored = true }
}

// NewBuilder creates a cost builder.
func NewBuilder(opts ...BuilderOption) *Builder {
	b := &Builder{
		metric: SqEuclidean,
		scale:  ScaleMean,
		cache:  make(map[cacheKey]Matrix),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Metric returns the builder's ground metric.
func (b *Builder) Metric() Metric { return b.metric }

// Linear builds (or returns the cached) cross cost between the two
// marginals' supports. Both marginals must carry feature matrices of
// equal dimensionality.
func (b *Builder) Linear(src, dst *marginal.Marginal) (Matrix, error) {
	key := cacheKey{src: src.Key(), dst: dst.Key(), metric: b.metric}
	b.mu.Lock()
	defer b.mu.Unlock()
	if c, ok := b.cache[key]; ok {
		return c, nil
	}

	if src.Features() == nil {
		return nil, fmt.Errorf("%w: source %q", ErrNoFeatures, src.Key())
	}
	if dst.Features() == nil {
		return nil, fmt.Errorf("%w: target %q", ErrNoFeatures, dst.Key())
	}

	var c Matrix
	if b.factored {
		if b.metric != SqEuclidean {
			return nil, fmt.Errorf("%w: factored costs require sq_euclidean, got %s",
				ErrUnsupportedMetric, b.metric)
		}
		fc, err := NewFactored(src.Features(), dst.Features())
		if err != nil {
			return nil, fmt.Errorf("edge %q→%q: %w", src.Key(), dst.Key(), err)
		}
		if f, ok := fc.(*factoredCost); ok {
			switch b.scale {
			case ScaleMean:
				f.setScale(f.mean())
			case ScaleMax:
				f.setScale(f.maxAbs)
			}
		}
		c = fc
	} else {
		d, err := Pairwise(src.Features(), dst.Features(), b.metric)
		if err != nil {
			return nil, fmt.Errorf("edge %q→%q: %w", src.Key(), dst.Key(), err)
		}
		b.rescale(d)
		c = NewDense(d)
	}

	b.cache[key] = c
	return c, nil
}

// Intra builds (or returns the cached) intra-support cost for one
// marginal, used by structural matching. Marginals constructed from
// precomputed distances use those directly.
func (b *Builder) Intra(m *marginal.Marginal) (Matrix, error) {
	key := cacheKey{src: m.Key(), dst: m.Key(), metric: b.metric}
	b.mu.Lock()
	defer b.mu.Unlock()
	if c, ok := b.cache[key]; ok {
		return c, nil
	}

	var d *mat.Dense
	if pre := m.Distances(); pre != nil {
		d = pre.Clone()
	} else {
		var err error
		d, err = Pairwise(m.Features(), m.Features(), b.metric)
		if err != nil {
			return nil, fmt.Errorf("intra cost for %q: %w", m.Key(), err)
		}
	}
	b.rescale(d)
	c := NewDense(d)
	b.cache[key] = c
	return c, nil
}

// Invalidate drops every cached cost touching the given marginal key.
// Called when a marginal is replaced.
func (b *Builder) Invalidate(key string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for k := range b.cache {
		if k.src == key || k.dst == key {
			delete(b.cache, k)
		}
	}
}

func (b *Builder) rescale(d *mat.Dense) {
	switch b.scale {
	case ScaleNone:
		return
	case ScaleMax:
		m := mat.MaxAbs(d.Data())
		if m > 0 {
			d.Scale(1 / m)
		}
	case ScaleMean:
		n := len(d.Data())
		if n == 0 {
			return
		}
		m := mat.Sum(d.Data()) / float64(n)
		if m > 0 {
			d.Scale(1 / m)
		}
	}
}
