// Package graph owns the marginals and transport problems of one
// analysis: an arena of keyed marginals with directed problem edges
// between them, chosen by a pairing policy.
//
// Topology is immutable after construction. Solving fills in edge
// payloads (couplings and diagnostics); invalidation is the only
// mutation permitted on a solved edge.
package graph

import (
	"errors"
	"fmt"
	"runtime"
	"sync"

	"go.uber.org/zap"

	"github.com/otflow-ml/otflow/internal/cost"
	"github.com/otflow-ml/otflow/internal/marginal"
	"github.com/otflow-ml/otflow/internal/solver"
)

// Sentinel errors for graph operations.
var (
	// ErrDuplicateKey indicates two marginals declared the same key.
	ErrDuplicateKey = errors.New("graph: duplicate marginal key")

	// ErrUnknownKey indicates an operation referenced a key the graph
	// does not hold.
	ErrUnknownKey = errors.New("graph: unknown marginal key")

	// ErrEdgeNotFound indicates no direct edge connects the ordered pair.
	ErrEdgeNotFound = errors.New("graph: edge not found")

	// ErrEdgeUnsolved indicates a query touched an edge that has not
	// been solved yet.
	ErrEdgeUnsolved = errors.New("graph: edge not solved")
)

// Status is the lifecycle state of a problem edge.
type Status int

// Edge lifecycle states.
const (
	StatusPrepared Status = iota
	StatusSolved
	StatusFailed
)

// String returns the status name.
func (s Status) String() string {
	switch s {
	case StatusPrepared:
		return "prepared"
	case StatusSolved:
		return "solved"
	case StatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// edge is one problem edge's mutable payload.
type edge struct {
	pair     Pair
	kind     solver.Kind
	config   solver.Config
	status   Status
	coupling *solver.Coupling
	output   *solver.Output
}

// Graph is the problem graph: nodes are marginals by key, edges are
// transport problems source→target.
type Graph struct {
	mu sync.RWMutex

	order []string
	nodes map[string]*marginal.Marginal
	edges map[Pair]*edge
	// edgeOrder preserves policy order for deterministic iteration.
	edgeOrder []Pair

	kind    solver.Kind
	config  solver.Config
	builder *cost.Builder
	solver  solver.Solver
	log     *zap.Logger
	workers int
}

// Option configures graph construction.
type Option func(*Graph) error

// WithLogger attaches a logger. Defaults to a no-op logger; the graph
// never touches process-global logging state.
func WithLogger(log *zap.Logger) Option {
	return func(g *Graph) error {
		if log != nil {
			g.log = log
		}
		return nil
	}
}

// WithWorkers bounds the number of edges solved concurrently.
// Defaults to GOMAXPROCS.
func WithWorkers(n int) Option {
	return func(g *Graph) error {
		if n <= 0 {
			return fmt.Errorf("graph: workers must be > 0, got %d", n)
		}
		g.workers = n
		return nil
	}
}

// WithSolverConfig sets the default per-edge solver configuration.
// Validated eagerly: an invalid configuration fails construction.
func WithSolverConfig(cfg solver.Config) Option {
	return func(g *Graph) error {
		if err := cfg.Validate(); err != nil {
			return err
		}
		g.config = cfg
		return nil
	}
}

// WithKind sets the problem variant for every edge. Default Linear.
func WithKind(k solver.Kind) Option {
	return func(g *Graph) error {
		g.kind = k
		return nil
	}
}

// WithCostBuilder replaces the default cost builder (squared
// Euclidean, mean-scaled).
func WithCostBuilder(b *cost.Builder) Option {
	return func(g *Graph) error {
		if b != nil {
			g.builder = b
		}
		return nil
	}
}

// WithSolver replaces the solver backend.
func WithSolver(s solver.Solver) Option {
	return func(g *Graph) error {
		if s != nil {
			g.solver = s
		}
		return nil
	}
}

// New builds a graph over the marginals, in declaration order, with
// edges chosen by the policy mode. Explicit mode takes its pair list
// via NewExplicit.
func New(marginals []*marginal.Marginal, mode PolicyMode, opts ...Option) (*Graph, error) {
	return build(marginals, mode, nil, opts)
}

// NewExplicit builds a graph with a caller-supplied edge list.
func NewExplicit(marginals []*marginal.Marginal, pairs []Pair, opts ...Option) (*Graph, error) {
	return build(marginals, Explicit, pairs, opts)
}

func build(marginals []*marginal.Marginal, mode PolicyMode, pairs []Pair, opts []Option) (*Graph, error) {
	g := &Graph{
		nodes:   make(map[string]*marginal.Marginal, len(marginals)),
		edges:   make(map[Pair]*edge),
		kind:    solver.Linear,
		config:  solver.DefaultConfig(),
		builder: cost.NewBuilder(),
		log:     zap.NewNop(),
		workers: runtime.GOMAXPROCS(0),
	}
	for _, m := range marginals {
		if _, dup := g.nodes[m.Key()]; dup {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateKey, m.Key())
		}
		g.nodes[m.Key()] = m
		g.order = append(g.order, m.Key())
	}
	for _, opt := range opts {
		if err := opt(g); err != nil {
			return nil, err
		}
	}
	if g.solver == nil {
		g.solver = solver.New(g.log)
	}

	edgePairs, err := buildEdges(g.order, mode, pairs)
	if err != nil {
		return nil, err
	}
	for _, p := range edgePairs {
		g.edges[p] = &edge{pair: p, kind: g.kind, config: g.config}
		g.edgeOrder = append(g.edgeOrder, p)
	}

	g.log.Info("problem graph constructed",
		zap.Int("marginals", len(g.order)),
		zap.Int("edges", len(g.edgeOrder)),
		zap.String("policy", mode.String()),
		zap.String("kind", g.kind.String()),
	)
	return g, nil
}

// Keys returns the marginal keys in declaration order.
func (g *Graph) Keys() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]string, len(g.order))
	copy(out, g.order)
	return out
}

// Marginal returns the marginal stored under key.
func (g *Graph) Marginal(key string) (*marginal.Marginal, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	m, ok := g.nodes[key]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownKey, key)
	}
	return m, nil
}

// Edges returns the edge pairs in policy order.
func (g *Graph) Edges() []Pair {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]Pair, len(g.edgeOrder))
	copy(out, g.edgeOrder)
	return out
}

// Status returns the lifecycle state of the edge.
func (g *Graph) Status(src, dst string) (Status, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	e, ok := g.edges[Pair{Source: src, Target: dst}]
	if !ok {
		return 0, fmt.Errorf("%w: %s→%s", ErrEdgeNotFound, src, dst)
	}
	return e.status, nil
}

// Coupling returns the solved coupling on the direct edge. Multi-hop
// requests belong to the query engine.
func (g *Graph) Coupling(src, dst string) (*solver.Coupling, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	e, ok := g.edges[Pair{Source: src, Target: dst}]
	if !ok {
		return nil, fmt.Errorf("%w: %s→%s", ErrEdgeNotFound, src, dst)
	}
	if e.status != StatusSolved {
		return nil, fmt.Errorf("%w: %s→%s", ErrEdgeUnsolved, src, dst)
	}
	return e.coupling, nil
}

// Output returns the solve diagnostics of the edge, or nil when it has
// never run.
func (g *Graph) Output(src, dst string) (*solver.Output, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	e, ok := g.edges[Pair{Source: src, Target: dst}]
	if !ok {
		return nil, fmt.Errorf("%w: %s→%s", ErrEdgeNotFound, src, dst)
	}
	return e.output, nil
}

// EdgeDetail returns the kind and solver configuration of the edge.
func (g *Graph) EdgeDetail(src, dst string) (solver.Kind, solver.Config, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	e, ok := g.edges[Pair{Source: src, Target: dst}]
	if !ok {
		return 0, solver.Config{}, fmt.Errorf("%w: %s→%s", ErrEdgeNotFound, src, dst)
	}
	return e.kind, e.config, nil
}

// SetCoupling installs an externally produced coupling (typically a
// reloaded one) on the edge, marking it solved.
func (g *Graph) SetCoupling(src, dst string, c *solver.Coupling, out *solver.Output) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	e, ok := g.edges[Pair{Source: src, Target: dst}]
	if !ok {
		return fmt.Errorf("%w: %s→%s", ErrEdgeNotFound, src, dst)
	}
	a, b := g.nodes[src], g.nodes[dst]
	if c.Rows() != a.Len() || c.Cols() != b.Len() {
		return fmt.Errorf("%w: coupling [%d,%d] vs supports %d/%d",
			cost.ErrDimensionMismatch, c.Rows(), c.Cols(), a.Len(), b.Len())
	}
	e.coupling = c
	e.output = out
	e.status = StatusSolved
	return nil
}

// Invalidate clears the coupling on the edge, returning it to the
// prepared state. This is the only mutation path on a solved edge.
func (g *Graph) Invalidate(src, dst string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	e, ok := g.edges[Pair{Source: src, Target: dst}]
	if !ok {
		return fmt.Errorf("%w: %s→%s", ErrEdgeNotFound, src, dst)
	}
	e.coupling = nil
	e.output = nil
	e.status = StatusPrepared
	return nil
}

// SetMarginal replaces the marginal stored under its key and
// invalidates every incident edge and cached cost. The key must
// already exist: topology never changes after construction.
func (g *Graph) SetMarginal(m *marginal.Marginal) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.nodes[m.Key()]; !ok {
		return fmt.Errorf("%w: %q", ErrUnknownKey, m.Key())
	}
	g.nodes[m.Key()] = m
	g.builder.Invalidate(m.Key())
	for _, e := range g.edges {
		if e.pair.Source == m.Key() || e.pair.Target == m.Key() {
			e.coupling = nil
			e.output = nil
			e.status = StatusPrepared
		}
	}
	return nil
}

// SetEdgeConfig overrides the solver configuration of one edge.
// Rejected once the edge is solved; invalidate first.
func (g *Graph) SetEdgeConfig(src, dst string, cfg solver.Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	e, ok := g.edges[Pair{Source: src, Target: dst}]
	if !ok {
		return fmt.Errorf("%w: %s→%s", ErrEdgeNotFound, src, dst)
	}
	if e.status == StatusSolved {
		return fmt.Errorf("graph: edge %s→%s already solved; invalidate before reconfiguring", src, dst)
	}
	e.config = cfg
	return nil
}
