// Package query answers pushforward, pullback and multi-hop transition
// queries over a solved problem graph by composing couplings along
// directed paths.
package query

import (
	"errors"
	"fmt"

	"github.com/otflow-ml/otflow/internal/graph"
	"github.com/otflow-ml/otflow/internal/mat"
	"github.com/otflow-ml/otflow/internal/solver"
)

// ErrNoPath indicates no directed path connects the two keys.
var ErrNoPath = errors.New("query: no path between keys")

// Engine composes couplings along graph paths. Queries are computed
// per call and never cached: a CompositeTransport is derived state,
// not graph state.
type Engine struct {
	g *graph.Graph
}

// New creates a query engine over the graph.
func New(g *graph.Graph) *Engine {
	return &Engine{g: g}
}

// PushForward maps a distribution over the source support to the
// target support. For multi-hop paths each edge's row-normalized
// transition operator is applied in sequence; composed couplings are
// never materialized here, so memory stays at the size of one
// distribution vector.
//
// Every edge on the path must be solved.
func (e *Engine) PushForward(src, dst string, v []float64) ([]float64, error) {
	path, err := e.route(src, dst)
	if err != nil {
		return nil, err
	}
	sm, err := e.g.Marginal(src)
	if err != nil {
		return nil, err
	}
	if len(v) != sm.Len() {
		return nil, fmt.Errorf("query: distribution length %d vs support %d", len(v), sm.Len())
	}

	cur := append([]float64(nil), v...)
	for _, hop := range path {
		c, err := e.g.Coupling(hop.Source, hop.Target)
		if err != nil {
			return nil, fmt.Errorf("edge %s on path %s→%s: %w", hop, src, dst, err)
		}
		cur = pushOne(c, cur)
	}
	return cur, nil
}

// PullBack is the transpose traversal: it maps a distribution over the
// target support back to the source support, applying each edge's
// column-normalized operator in reverse path order.
func (e *Engine) PullBack(src, dst string, w []float64) ([]float64, error) {
	path, err := e.route(src, dst)
	if err != nil {
		return nil, err
	}
	tm, err := e.g.Marginal(dst)
	if err != nil {
		return nil, err
	}
	if len(w) != tm.Len() {
		return nil, fmt.Errorf("query: distribution length %d vs support %d", len(w), tm.Len())
	}

	cur := append([]float64(nil), w...)
	for i := len(path) - 1; i >= 0; i-- {
		c, err := e.g.Coupling(path[i].Source, path[i].Target)
		if err != nil {
			return nil, fmt.Errorf("edge %s on path %s→%s: %w", path[i], src, dst, err)
		}
		cur = pullOne(c, cur)
	}
	return cur, nil
}

// TransitionMatrix materializes the composed source→target transition
// operator. Unlike PushForward it holds dense intermediates; the
// result is an approximation whose error compounds with path length
// and with each edge's convergence residual.
func (e *Engine) TransitionMatrix(src, dst string) (*mat.Dense, error) {
	path, err := e.route(src, dst)
	if err != nil {
		return nil, err
	}
	if len(path) == 0 {
		sm, err := e.g.Marginal(src)
		if err != nil {
			return nil, err
		}
		t := mat.NewDense(sm.Len(), sm.Len())
		for i := 0; i < sm.Len(); i++ {
			t.Set(i, i, 1)
		}
		return t, nil
	}

	var t *mat.Dense
	for _, hop := range path {
		c, err := e.g.Coupling(hop.Source, hop.Target)
		if err != nil {
			return nil, fmt.Errorf("edge %s on path %s→%s: %w", hop, src, dst, err)
		}
		step := rowNormalized(c)
		if t == nil {
			t = step
		} else {
			t = mat.MatMul(t, step)
		}
	}
	return t, nil
}

// route finds the fewest-hop directed path via breadth-first search
// over the graph topology. Identical keys yield an empty path.
func (e *Engine) route(src, dst string) ([]graph.Pair, error) {
	if _, err := e.g.Marginal(src); err != nil {
		return nil, err
	}
	if _, err := e.g.Marginal(dst); err != nil {
		return nil, err
	}
	if src == dst {
		return nil, nil
	}

	adj := make(map[string][]string)
	for _, p := range e.g.Edges() {
		adj[p.Source] = append(adj[p.Source], p.Target)
	}

	prev := map[string]string{src: src}
	queue := []string{src}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if cur == dst {
			var path []graph.Pair
			for node := dst; node != src; node = prev[node] {
				path = append([]graph.Pair{{Source: prev[node], Target: node}}, path...)
			}
			return path, nil
		}
		for _, next := range adj[cur] {
			if _, seen := prev[next]; !seen {
				prev[next] = cur
				queue = append(queue, next)
			}
		}
	}
	return nil, fmt.Errorf("%w: %s→%s", ErrNoPath, src, dst)
}

// pushOne applies one edge's row-normalized operator:
// out_j = Σ_i v_i · P_ij / (P·1)_i. Zero-mass rows contribute nothing.
func pushOne(c *solver.Coupling, v []float64) []float64 {
	rows := c.RowSums()
	scaled := make([]float64, len(v))
	for i, vi := range v {
		if rows[i] > 0 {
			scaled[i] = vi / rows[i]
		}
	}
	return c.ApplyT(scaled)
}

// pullOne applies the transpose operator:
// out_i = Σ_j w_j · P_ij / (Pᵀ·1)_j.
func pullOne(c *solver.Coupling, w []float64) []float64 {
	cols := c.ColSums()
	scaled := make([]float64, len(w))
	for j, wj := range w {
		if cols[j] > 0 {
			scaled[j] = wj / cols[j]
		}
	}
	return c.Apply(scaled)
}

// rowNormalized materializes diag(1/(P·1))·P.
func rowNormalized(c *solver.Coupling) *mat.Dense {
	p := c.Materialize().Clone()
	rows := p.RowSums()
	for i := 0; i < p.Rows(); i++ {
		if rows[i] <= 0 {
			continue
		}
		row := p.Row(i)
		for j := range row {
			row[j] /= rows[i]
		}
	}
	return p
}
