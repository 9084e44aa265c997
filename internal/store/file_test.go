package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/otflow-ml/otflow/internal/graph"
	"github.com/otflow-ml/otflow/internal/mat"
	"github.com/otflow-ml/otflow/internal/marginal"
	"github.com/otflow-ml/otflow/internal/solver"
)

func cloud(t *testing.T, key string, offset float64) *marginal.Marginal {
	t.Helper()
	pts := mat.NewDense(4, 1)
	for i := 0; i < 4; i++ {
		pts.Set(i, 0, offset+0.25*float64(i))
	}
	m, err := marginal.New(key, pts)
	require.NoError(t, err)
	return m
}

func buildChain(t *testing.T, mutate func(*solver.Config)) *graph.Graph {
	t.Helper()
	cfg := solver.DefaultConfig()
	cfg.Epsilon = 0.1
	if mutate != nil {
		mutate(&cfg)
	}
	g, err := graph.New([]*marginal.Marginal{
		cloud(t, "0", 0),
		cloud(t, "1", 1),
		cloud(t, "2", 2),
	}, graph.Sequential,
		graph.WithLogger(zaptest.NewLogger(t)),
		graph.WithSolverConfig(cfg),
	)
	require.NoError(t, err)
	return g
}

func TestFileRoundTrip(t *testing.T) {
	g := buildChain(t, nil)
	_, err := g.SolveAll(context.Background())
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "chain.otf")
	require.NoError(t, SaveFile(path, g))

	fresh := buildChain(t, nil)
	require.NoError(t, LoadFile(path, fresh))

	for _, p := range g.Edges() {
		st, err := fresh.Status(p.Source, p.Target)
		require.NoError(t, err)
		assert.Equal(t, graph.StatusSolved, st)

		want, err := g.Coupling(p.Source, p.Target)
		require.NoError(t, err)
		got, err := fresh.Coupling(p.Source, p.Target)
		require.NoError(t, err)

		// Bit-identical restoration.
		assert.Equal(t, want.Materialize().Data(), got.Materialize().Data())

		wantOut, err := g.Output(p.Source, p.Target)
		require.NoError(t, err)
		gotOut, err := fresh.Output(p.Source, p.Target)
		require.NoError(t, err)
		require.NotNil(t, gotOut)
		assert.Equal(t, wantOut.RunID, gotOut.RunID)
		assert.Equal(t, wantOut.Iterations, gotOut.Iterations)
		assert.Equal(t, wantOut.Converged, gotOut.Converged)
	}
}

func TestFileRoundTripLowRank(t *testing.T) {
	g := buildChain(t, func(c *solver.Config) { c.Rank = 2 })
	_, err := g.SolveAll(context.Background())
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "lowrank.otf")
	require.NoError(t, SaveFile(path, g))

	fresh := buildChain(t, func(c *solver.Config) { c.Rank = 2 })
	require.NoError(t, LoadFile(path, fresh))

	want, err := g.Coupling("0", "1")
	require.NoError(t, err)
	got, err := fresh.Coupling("0", "1")
	require.NoError(t, err)

	require.True(t, got.IsLowRank())
	assert.Equal(t, want.Rank(), got.Rank())
	assert.Equal(t, want.Materialize().Data(), got.Materialize().Data())
}

func TestFileSkipsUnsolvedEdges(t *testing.T) {
	g := buildChain(t, nil)
	_, err := g.Solve(context.Background(), "0", "1")
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "partial.otf")
	require.NoError(t, SaveFile(path, g))

	fresh := buildChain(t, nil)
	require.NoError(t, LoadFile(path, fresh))

	st, err := fresh.Status("0", "1")
	require.NoError(t, err)
	assert.Equal(t, graph.StatusSolved, st)

	st, err = fresh.Status("1", "2")
	require.NoError(t, err)
	assert.Equal(t, graph.StatusPrepared, st)
}

func TestLoadFileDetectsCorruption(t *testing.T) {
	g := buildChain(t, nil)
	_, err := g.SolveAll(context.Background())
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "corrupt.otf")
	require.NoError(t, SaveFile(path, g))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	raw[len(raw)-1] ^= 0xff
	require.NoError(t, os.WriteFile(path, raw, 0o644))

	assert.ErrorIs(t, LoadFile(path, buildChain(t, nil)), ErrChecksum)
}

func TestLoadFileRejectsBadMagic(t *testing.T) {
	path := filepath.Join(t.TempDir(), "junk.otf")
	require.NoError(t, os.WriteFile(path, []byte("this is not an otf file at all"), 0o644))

	assert.ErrorIs(t, LoadFile(path, buildChain(t, nil)), ErrBadMagic)
}

func TestLoadFileRejectsWrongVersion(t *testing.T) {
	g := buildChain(t, nil)
	_, err := g.SolveAll(context.Background())
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "version.otf")
	require.NoError(t, SaveFile(path, g))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	raw[4] = 99 // bump the version field
	require.NoError(t, os.WriteFile(path, raw, 0o644))

	assert.ErrorIs(t, LoadFile(path, buildChain(t, nil)), ErrVersion)
}

func TestLoadFileRejectsMismatchedTopology(t *testing.T) {
	g := buildChain(t, nil)
	_, err := g.SolveAll(context.Background())
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "topo.otf")
	require.NoError(t, SaveFile(path, g))

	cfg := solver.DefaultConfig()
	other, err := graph.New([]*marginal.Marginal{
		cloud(t, "a", 0),
		cloud(t, "b", 1),
	}, graph.Sequential, graph.WithSolverConfig(cfg))
	require.NoError(t, err)

	assert.Error(t, LoadFile(path, other))
}
