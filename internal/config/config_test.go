package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/otflow-ml/otflow/internal/solver"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	def := solver.DefaultConfig()
	assert.Equal(t, def.Epsilon, cfg.Solver.Epsilon)
	assert.Equal(t, def.Rank, cfg.Solver.Rank)
	assert.Equal(t, "sequential", cfg.Graph.Policy)
	assert.Equal(t, "sq_euclidean", cfg.Graph.Metric)
	assert.Equal(t, "console", cfg.Logger.Format)

	sc, err := cfg.SolverConfig()
	require.NoError(t, err)
	assert.Equal(t, solver.ContinueOnDivergence, sc.OnDivergence)
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "otflow.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
solver:
  epsilon: 0.05
  tau_a: 0.9
  on_divergence: abort
graph:
  policy: pairwise
  workers: 4
logger:
  level: debug
  format: json
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 0.05, cfg.Solver.Epsilon)
	assert.Equal(t, 0.9, cfg.Solver.TauA)
	assert.Equal(t, "pairwise", cfg.Graph.Policy)
	assert.Equal(t, 4, cfg.Graph.Workers)
	assert.Equal(t, "json", cfg.Logger.Format)

	sc, err := cfg.SolverConfig()
	require.NoError(t, err)
	assert.Equal(t, solver.AbortOnDivergence, sc.OnDivergence)
	// Untouched fields keep their defaults.
	assert.Equal(t, solver.DefaultConfig().MaxIterations, sc.MaxIterations)
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("OTFLOW_SOLVER_EPSILON", "0.25")
	t.Setenv("OTFLOW_GRAPH_POLICY", "pairwise")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 0.25, cfg.Solver.Epsilon)
	assert.Equal(t, "pairwise", cfg.Graph.Policy)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("solver:\n  epsilon: -1\n"), 0o644))

	_, err := Load(path)
	assert.ErrorIs(t, err, solver.ErrInvalidConfig)
}

func TestLoadRejectsUnknownPolicy(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("graph:\n  policy: star\n"), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoadRejectsUnknownDivergencePolicy(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("solver:\n  on_divergence: explode\n"), 0o644))

	_, err := Load(path)
	assert.ErrorIs(t, err, solver.ErrInvalidConfig)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}
