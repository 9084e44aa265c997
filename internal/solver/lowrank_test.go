package solver

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/otflow-ml/otflow/internal/cost"
	"github.com/otflow-ml/otflow/internal/mat"
)

func solveLowRank(t *testing.T, cfg Config, n, m int) (*Coupling, *Output) {
	t.Helper()
	x := mat.NewDense(n, 1)
	for i := 0; i < n; i++ {
		x.Set(i, 0, float64(i))
	}
	y := mat.NewDense(m, 1)
	for j := 0; j < m; j++ {
		y.Set(j, 0, float64(j))
	}
	c, err := cost.Pairwise(x, y, cost.SqEuclidean)
	require.NoError(t, err)

	s := New(zaptest.NewLogger(t))
	coupling, out, solveErr := s.Solve(context.Background(), &Problem{
		SourceKey: "src", TargetKey: "dst",
		A: uniform(n), B: uniform(m),
		Kind:   Linear,
		Cost:   cost.NewDense(c),
		Config: cfg,
	})
	require.NoError(t, solveErr)
	return coupling, out
}

func TestLowRankMarginalsWithinTolerance(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Epsilon = 0.1
	cfg.Rank = 2

	coupling, out := solveLowRank(t, cfg, 6, 6)

	require.True(t, coupling.IsLowRank())
	assert.Equal(t, 2, coupling.Rank())

	// Each sweep ends with the factor blocks, so the plan's marginals
	// track the inputs within the inner tolerance.
	assert.Less(t, out.MarginalError, 0.05)
	assert.InDelta(t, 1.0, mat.Sum(coupling.RowSums()), 2e-2)

	dense := coupling.Materialize()
	for _, v := range dense.Data() {
		assert.GreaterOrEqual(t, v, 0.0)
	}
	for i := 0; i < 6; i++ {
		for j := 0; j < 6; j++ {
			assert.InDelta(t, dense.At(i, j), coupling.At(i, j), 1e-12)
		}
	}
}

func TestLowRankRankClampedToSupportSize(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Epsilon = 0.1
	cfg.Rank = 10

	coupling, _ := solveLowRank(t, cfg, 4, 5)
	assert.Equal(t, 4, coupling.Rank())
}

func TestLowRankRequiresBalancedMarginals(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Rank = 2
	cfg.TauA = 0.8

	s := New(nil)
	_, _, err := s.Solve(context.Background(), &Problem{
		A: uniform(3), B: uniform(3),
		Kind:   Linear,
		Cost:   identityCost(),
		Config: cfg,
	})
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestLowRankObjectiveMatchesPlan(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Epsilon = 0.1
	cfg.Rank = 3

	coupling, out := solveLowRank(t, cfg, 5, 5)

	// Recompute <C, P> from the materialized plan and compare with the
	// reported objective.
	dense := coupling.Materialize()
	obj := 0.0
	for i := 0; i < 5; i++ {
		for j := 0; j < 5; j++ {
			diff := float64(i - j)
			obj += diff * diff * dense.At(i, j)
		}
	}
	assert.InDelta(t, obj, out.Cost, 1e-6)
}
