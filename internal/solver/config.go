package solver

import (
	"fmt"
	"math"
)

// Kind selects the transport problem variant. The set is closed:
// every solve dispatches on it through the one Solver implementation.
type Kind int

// Problem variants.
const (
	Linear          Kind = iota // entropic (possibly unbalanced) linear OT
	Quadratic                   // Gromov-Wasserstein structural matching
	FusedQuadratic              // Gromov-Wasserstein blended with a linear term
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case Linear:
		return "linear"
	case Quadratic:
		return "quadratic"
	case FusedQuadratic:
		return "fused"
	default:
		return "unknown"
	}
}

// DivergencePolicy decides what a quadratic outer loop does when its
// inner entropic solve fails to converge.
type DivergencePolicy int

// Divergence policies.
const (
	// ContinueOnDivergence keeps the best inner iterate and proceeds
	// with the outer loop (default).
	ContinueOnDivergence DivergencePolicy = iota

	// AbortOnDivergence stops the outer loop and reports the run as
	// non-converged.
	AbortOnDivergence
)

// Config holds solver hyperparameters for one problem.
//
// The zero value is not usable; start from DefaultConfig. Validation
// is eager: invalid combinations fail before any solve starts.
type Config struct {
	// Epsilon is the entropic regularization strength. Must be > 0.
	Epsilon float64

	// TauA, TauB relax the source/target marginal constraints,
	// in (0, 1]; 1 means hard (balanced) constraints.
	TauA, TauB float64

	// Rank enables the low-rank factored solver when > 0; -1 selects
	// the full dense iteration.
	Rank int

	// Threshold is the convergence tolerance on the marginal violation
	// (balanced) or the potential change (unbalanced).
	Threshold float64

	// MaxIterations caps a single Sinkhorn run.
	MaxIterations int

	// MinIterations is the floor before convergence may be declared.
	MinIterations int

	// InnerIterations is the cadence, in iterations, of convergence
	// and stability checks.
	InnerIterations int

	// OuterIterations caps the quadratic fixed-point loop and the
	// low-rank block loop.
	OuterIterations int

	// OuterThreshold is the coupling-change tolerance of the quadratic
	// outer loop.
	OuterThreshold float64

	// Alpha blends quadratic against linear cost for fused problems,
	// in (0, 1].
	Alpha float64

	// Gamma is the low-rank mirror-descent step on the inner weights.
	Gamma float64

	// OnDivergence selects the inner-divergence policy for quadratic
	// problems.
	OnDivergence DivergencePolicy

	// Strict escalates non-convergence to a fatal error instead of a
	// reported diagnostic.
	Strict bool
}

// DefaultConfig returns the defaults used when a graph is built
// without per-edge overrides.
func DefaultConfig() Config {
	return Config{
		Epsilon:         1e-2,
		TauA:            1.0,
		TauB:            1.0,
		Rank:            -1,
		Threshold:       1e-3,
		MaxIterations:   2000,
		MinIterations:   10,
		InnerIterations: 10,
		OuterIterations: 50,
		OuterThreshold:  1e-3,
		Alpha:           0.5,
		Gamma:           10,
	}
}

// Validate rejects invalid configurations eagerly.
func (c Config) Validate() error {
	if c.Epsilon <= 0 || math.IsNaN(c.Epsilon) {
		return fmt.Errorf("%w: epsilon must be > 0, got %v", ErrInvalidConfig, c.Epsilon)
	}
	if c.TauA <= 0 || c.TauA > 1 {
		return fmt.Errorf("%w: tau_a must be in (0, 1], got %v", ErrInvalidConfig, c.TauA)
	}
	if c.TauB <= 0 || c.TauB > 1 {
		return fmt.Errorf("%w: tau_b must be in (0, 1], got %v", ErrInvalidConfig, c.TauB)
	}
	if c.Rank == 0 || c.Rank < -1 {
		return fmt.Errorf("%w: rank must be > 0 or -1, got %d", ErrInvalidConfig, c.Rank)
	}
	if c.Threshold <= 0 {
		return fmt.Errorf("%w: threshold must be > 0, got %v", ErrInvalidConfig, c.Threshold)
	}
	if c.MaxIterations <= 0 {
		return fmt.Errorf("%w: max_iterations must be > 0, got %d", ErrInvalidConfig, c.MaxIterations)
	}
	if c.InnerIterations <= 0 {
		return fmt.Errorf("%w: inner_iterations must be > 0, got %d", ErrInvalidConfig, c.InnerIterations)
	}
	if c.OuterIterations <= 0 {
		return fmt.Errorf("%w: outer_iterations must be > 0, got %d", ErrInvalidConfig, c.OuterIterations)
	}
	if c.OuterThreshold <= 0 {
		return fmt.Errorf("%w: outer_threshold must be > 0, got %v", ErrInvalidConfig, c.OuterThreshold)
	}
	if c.Alpha <= 0 || c.Alpha > 1 {
		return fmt.Errorf("%w: alpha must be in (0, 1], got %v", ErrInvalidConfig, c.Alpha)
	}
	if c.Gamma <= 0 {
		return fmt.Errorf("%w: gamma must be > 0, got %v", ErrInvalidConfig, c.Gamma)
	}
	return nil
}
