package graph

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/otflow-ml/otflow/internal/solver"
)

// SolveAll solves every unsolved edge, independent edges concurrently
// on a bounded worker pool. Costs are built lazily per edge at solve
// time, never eagerly for the whole graph.
//
// In strict mode the first non-converged edge fails the batch; in the
// default mode non-convergence is logged and reported through the
// returned outputs, and remaining edges keep solving.
func (g *Graph) SolveAll(ctx context.Context) (map[Pair]*solver.Output, error) {
	g.mu.RLock()
	pending := make([]Pair, 0, len(g.edgeOrder))
	for _, p := range g.edgeOrder {
		if g.edges[p].status != StatusSolved {
			pending = append(pending, p)
		}
	}
	g.mu.RUnlock()

	outputs := make(map[Pair]*solver.Output, len(pending))
	var outMu sync.Mutex

	eg, ctx := errgroup.WithContext(ctx)
	eg.SetLimit(g.workers)
	for _, p := range pending {
		p := p
		eg.Go(func() error {
			out, err := g.solveEdge(ctx, p)
			if out != nil {
				outMu.Lock()
				outputs[p] = out
				outMu.Unlock()
			}
			return err
		})
	}
	if err := eg.Wait(); err != nil {
		return outputs, err
	}
	return outputs, nil
}

// Solve solves a single edge by its ordered key pair.
func (g *Graph) Solve(ctx context.Context, src, dst string) (*solver.Output, error) {
	p := Pair{Source: src, Target: dst}
	g.mu.RLock()
	_, ok := g.edges[p]
	g.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s→%s", ErrEdgeNotFound, src, dst)
	}
	return g.solveEdge(ctx, p)
}

func (g *Graph) solveEdge(ctx context.Context, p Pair) (*solver.Output, error) {
	g.mu.RLock()
	e := g.edges[p]
	if e.status == StatusSolved {
		out := e.output
		g.mu.RUnlock()
		return out, nil
	}
	src := g.nodes[p.Source]
	dst := g.nodes[p.Target]
	kind := e.kind
	cfg := e.config
	g.mu.RUnlock()

	// Cost assembly happens outside the graph lock; the builder has
	// its own cache synchronization.
	prob := &solver.Problem{
		SourceKey: p.Source,
		TargetKey: p.Target,
		A:         src.Weights(),
		B:         dst.Weights(),
		Kind:      kind,
		Config:    cfg,
	}
	switch kind {
	case solver.Linear:
		c, err := g.builder.Linear(src, dst)
		if err != nil {
			g.markFailed(p, nil)
			return nil, err
		}
		prob.Cost = c
	case solver.Quadratic, solver.FusedQuadratic:
		cx, err := g.builder.Intra(src)
		if err != nil {
			g.markFailed(p, nil)
			return nil, err
		}
		cy, err := g.builder.Intra(dst)
		if err != nil {
			g.markFailed(p, nil)
			return nil, err
		}
		prob.CX, prob.CY = cx, cy
		if kind == solver.FusedQuadratic {
			lin, err := g.builder.Linear(src, dst)
			if err != nil {
				g.markFailed(p, nil)
				return nil, err
			}
			prob.Cost = lin
		}
	}

	coupling, out, err := g.solver.Solve(ctx, prob)
	if err != nil {
		g.markFailed(p, out)
		return out, fmt.Errorf("edge %s: %w", p, err)
	}

	if ctx.Err() != nil && !out.Converged {
		// Cancelled mid-run: the edge stays unsolved and can be
		// retried with adjusted parameters.
		g.log.Warn("solve cancelled", zap.String("edge", p.String()))
		return out, nil
	}
	if !out.Converged {
		g.log.Warn("edge did not converge",
			zap.String("edge", p.String()),
			zap.Int("iterations", out.Iterations),
			zap.Float64("marginal_error", out.MarginalError),
		)
	}

	g.mu.Lock()
	e.coupling = coupling
	e.output = out
	e.status = StatusSolved
	g.mu.Unlock()
	return out, nil
}

func (g *Graph) markFailed(p Pair, out *solver.Output) {
	g.mu.Lock()
	e := g.edges[p]
	e.status = StatusFailed
	e.coupling = nil
	e.output = out
	g.mu.Unlock()
}
