package solver

import "errors"

// Sentinel errors for solver runs.
var (
	// ErrInvalidConfig indicates a configuration rejected at validation,
	// before any solve is attempted.
	ErrInvalidConfig = errors.New("solver: invalid config")

	// ErrNonConvergence indicates the iteration budget ran out before
	// the tolerance was met. Recoverable: callers may retry with a
	// larger epsilon, higher rank, or more iterations.
	ErrNonConvergence = errors.New("solver: did not converge")

	// ErrNumericalInstability indicates non-finite values that survived
	// log-domain stabilization, typically epsilon far too small for the
	// cost scale.
	ErrNumericalInstability = errors.New("solver: numerical instability")
)
