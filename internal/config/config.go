// Package config loads otflow configuration from files and the
// environment. Validation is eager: an invalid configuration never
// reaches a solver.
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/otflow-ml/otflow/internal/cost"
	"github.com/otflow-ml/otflow/internal/graph"
	"github.com/otflow-ml/otflow/internal/solver"
)

// Config is the root configuration.
type Config struct {
	Solver SolverConfig `mapstructure:"solver"`
	Graph  GraphConfig  `mapstructure:"graph"`
	Logger LoggerConfig `mapstructure:"logger"`
}

// SolverConfig mirrors solver.Config in file-friendly form.
type SolverConfig struct {
	Epsilon         float64 `mapstructure:"epsilon"`
	TauA            float64 `mapstructure:"tau_a"`
	TauB            float64 `mapstructure:"tau_b"`
	Rank            int     `mapstructure:"rank"`
	Threshold       float64 `mapstructure:"threshold"`
	MaxIterations   int     `mapstructure:"max_iterations"`
	MinIterations   int     `mapstructure:"min_iterations"`
	InnerIterations int     `mapstructure:"inner_iterations"`
	OuterIterations int     `mapstructure:"outer_iterations"`
	OuterThreshold  float64 `mapstructure:"outer_threshold"`
	Alpha           float64 `mapstructure:"alpha"`
	Gamma           float64 `mapstructure:"gamma"`
	OnDivergence    string  `mapstructure:"on_divergence"`
	Strict          bool    `mapstructure:"strict"`
}

// GraphConfig holds orchestration settings.
type GraphConfig struct {
	Workers int    `mapstructure:"workers"`
	Policy  string `mapstructure:"policy"`
	Metric  string `mapstructure:"metric"`
	Scale   string `mapstructure:"scale"`
}

// LoggerConfig holds logging settings.
type LoggerConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load reads configuration from the optional file path, overlaid by
// OTFLOW_-prefixed environment variables, on top of defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("OTFLOW")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	def := solver.DefaultConfig()
	v.SetDefault("solver.epsilon", def.Epsilon)
	v.SetDefault("solver.tau_a", def.TauA)
	v.SetDefault("solver.tau_b", def.TauB)
	v.SetDefault("solver.rank", def.Rank)
	v.SetDefault("solver.threshold", def.Threshold)
	v.SetDefault("solver.max_iterations", def.MaxIterations)
	v.SetDefault("solver.min_iterations", def.MinIterations)
	v.SetDefault("solver.inner_iterations", def.InnerIterations)
	v.SetDefault("solver.outer_iterations", def.OuterIterations)
	v.SetDefault("solver.outer_threshold", def.OuterThreshold)
	v.SetDefault("solver.alpha", def.Alpha)
	v.SetDefault("solver.gamma", def.Gamma)
	v.SetDefault("solver.on_divergence", "continue")
	v.SetDefault("solver.strict", false)
	v.SetDefault("graph.workers", 0)
	v.SetDefault("graph.policy", "sequential")
	v.SetDefault("graph.metric", "sq_euclidean")
	v.SetDefault("graph.scale", "mean")
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
}

// Validate checks the whole tree eagerly.
func (c *Config) Validate() error {
	if _, err := c.SolverConfig(); err != nil {
		return err
	}
	if _, err := graph.ParsePolicy(c.Graph.Policy); err != nil {
		return err
	}
	if _, err := cost.ParseMetric(c.Graph.Metric); err != nil {
		return err
	}
	if _, err := cost.ParseScale(c.Graph.Scale); err != nil {
		return err
	}
	if c.Graph.Workers < 0 {
		return fmt.Errorf("config: graph.workers must be >= 0, got %d", c.Graph.Workers)
	}
	return nil
}

// SolverConfig converts the file form into a validated solver.Config.
func (c *Config) SolverConfig() (solver.Config, error) {
	out := solver.Config{
		Epsilon:         c.Solver.Epsilon,
		TauA:            c.Solver.TauA,
		TauB:            c.Solver.TauB,
		Rank:            c.Solver.Rank,
		Threshold:       c.Solver.Threshold,
		MaxIterations:   c.Solver.MaxIterations,
		MinIterations:   c.Solver.MinIterations,
		InnerIterations: c.Solver.InnerIterations,
		OuterIterations: c.Solver.OuterIterations,
		OuterThreshold:  c.Solver.OuterThreshold,
		Alpha:           c.Solver.Alpha,
		Gamma:           c.Solver.Gamma,
		Strict:          c.Solver.Strict,
	}
	switch c.Solver.OnDivergence {
	case "", "continue":
		out.OnDivergence = solver.ContinueOnDivergence
	case "abort":
		out.OnDivergence = solver.AbortOnDivergence
	default:
		return solver.Config{}, fmt.Errorf("%w: on_divergence %q", solver.ErrInvalidConfig, c.Solver.OnDivergence)
	}
	if err := out.Validate(); err != nil {
		return solver.Config{}, err
	}
	return out, nil
}
