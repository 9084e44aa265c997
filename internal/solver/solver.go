// Package solver runs iterative regularized optimal-transport
// algorithms: entropic Sinkhorn with automatic log-domain
// stabilization, unbalanced relaxation, a low-rank factored variant,
// and the Gromov-Wasserstein fixed point (plain and fused).
//
// The problem variants form a closed set (Kind) dispatched through the
// single Solver interface; there is no per-variant type hierarchy.
package solver

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/otflow-ml/otflow/internal/cost"
)

// Problem is one transport problem between two weighted supports.
// It is assembled by the graph layer and consumed by a Solver.
type Problem struct {
	// SourceKey, TargetKey identify the coupled marginals.
	SourceKey, TargetKey string

	// A, B are the marginal weight vectors.
	A, B []float64

	// Kind selects the variant; the geometry fields it needs must be
	// populated.
	Kind Kind

	// Cost is the cross cost, required for Linear and FusedQuadratic.
	Cost cost.Matrix

	// CX, CY are the intra-support costs, required for Quadratic and
	// FusedQuadratic.
	CX, CY cost.Matrix

	// Config holds the solve hyperparameters.
	Config Config
}

// Solver runs a Problem to a Coupling plus diagnostics.
//
// Non-convergence within the iteration budget is not an error: it is
// reported through Output.Converged and the caller decides. Errors are
// reserved for invalid inputs and unrecoverable numerical failure.
type Solver interface {
	Solve(ctx context.Context, p *Problem) (*Coupling, *Output, error)
}

type entropicSolver struct {
	log *zap.Logger
}

// New returns the entropic solver. A nil logger disables logging.
func New(log *zap.Logger) Solver {
	if log == nil {
		log = zap.NewNop()
	}
	return &entropicSolver{log: log}
}

func (s *entropicSolver) Solve(ctx context.Context, p *Problem) (*Coupling, *Output, error) {
	if err := p.Config.Validate(); err != nil {
		return nil, nil, err
	}
	out := newOutput()
	start := time.Now()

	log := s.log.With(
		zap.String("run_id", out.RunID),
		zap.String("source", p.SourceKey),
		zap.String("target", p.TargetKey),
		zap.String("kind", p.Kind.String()),
	)
	log.Debug("solving transport problem",
		zap.Int("n", len(p.A)),
		zap.Int("m", len(p.B)),
		zap.Float64("epsilon", p.Config.Epsilon),
		zap.Int("rank", p.Config.Rank),
	)

	var (
		coupling *Coupling
		err      error
	)
	switch p.Kind {
	case Linear:
		coupling, err = s.solveLinear(ctx, p, out)
	case Quadratic, FusedQuadratic:
		coupling, err = s.solveQuadratic(ctx, p, out)
	default:
		return nil, nil, fmt.Errorf("%w: unknown problem kind %d", ErrInvalidConfig, p.Kind)
	}
	out.Elapsed = time.Since(start)
	if err != nil {
		log.Warn("solve failed", zap.Error(err))
		return nil, out, err
	}

	log.Debug("solve finished",
		zap.Bool("converged", out.Converged),
		zap.Int("iterations", out.Iterations),
		zap.Float64("cost", out.Cost),
		zap.Float64("marginal_error", out.MarginalError),
		zap.Bool("stabilized", out.Stabilized),
		zap.Duration("elapsed", out.Elapsed),
	)
	if !out.Converged && p.Config.Strict {
		return nil, out, fmt.Errorf("%w: edge %s→%s after %d iterations (marginal error %.3g)",
			ErrNonConvergence, p.SourceKey, p.TargetKey, out.Iterations, out.MarginalError)
	}
	return coupling, out, nil
}

func (s *entropicSolver) solveLinear(ctx context.Context, p *Problem, out *Output) (*Coupling, error) {
	if p.Cost == nil {
		return nil, fmt.Errorf("%w: linear problem without cross cost", ErrInvalidConfig)
	}
	if p.Config.Rank > 0 {
		st, err := lowrank(ctx, p.A, p.B, p.Cost, p.Config)
		if err != nil {
			return nil, err
		}
		out.Converged = st.converged
		out.Iterations = st.inner
		out.OuterIterations = st.outer
		out.Cost = st.objective
		out.MarginalError = st.marginalErr
		out.Stabilized = st.stabilized
		return st.coupling, nil
	}

	st, err := sinkhorn(ctx, p.A, p.B, p.Cost, p.Config)
	if err != nil {
		return nil, err
	}
	out.Converged = st.converged
	out.Iterations = st.iters
	out.Cost = st.objective
	out.MarginalError = st.marginalErr
	out.Stabilized = st.stabilized
	return st.coupling, nil
}

func (s *entropicSolver) solveQuadratic(ctx context.Context, p *Problem, out *Output) (*Coupling, error) {
	if p.CX == nil || p.CY == nil {
		return nil, fmt.Errorf("%w: quadratic problem without intra costs", ErrInvalidConfig)
	}
	st, err := gromov(ctx, p.A, p.B, p.CX, p.CY, p.Cost, p.Kind == FusedQuadratic, p.Config)
	if err != nil {
		return nil, err
	}
	out.Converged = st.converged
	out.Iterations = st.inner
	out.OuterIterations = st.outer
	out.Cost = st.objective
	out.MarginalError = st.marginalErr
	out.Stabilized = st.stabilized
	return st.coupling, nil
}
