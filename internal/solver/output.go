package solver

import (
	"time"

	"github.com/google/uuid"
)

// Output carries the diagnostics of one solver run. It is attached to
// the solved problem and reported back from batch solves.
type Output struct {
	// RunID uniquely identifies this run in logs.
	RunID string `json:"run_id"`

	// Converged reports whether the tolerance was met within the
	// iteration budget. Non-convergence is reported, never silently
	// accepted; callers decide whether it is fatal.
	Converged bool `json:"converged"`

	// Iterations is the number of Sinkhorn iterations used, summed
	// over inner loops for quadratic problems.
	Iterations int `json:"iterations"`

	// OuterIterations is the number of fixed-point (or block) steps
	// taken; zero for plain linear solves.
	OuterIterations int `json:"outer_iterations,omitempty"`

	// Cost is the final transport objective in the scaled cost units.
	Cost float64 `json:"cost"`

	// MarginalError is the achieved L1 violation of the marginal
	// constraints.
	MarginalError float64 `json:"marginal_error"`

	// Stabilized reports whether the run escalated to log-domain
	// iterations.
	Stabilized bool `json:"stabilized"`

	// Elapsed is the wall-clock duration of the run.
	Elapsed time.Duration `json:"elapsed"`
}

func newOutput() *Output {
	return &Output{RunID: uuid.NewString()}
}
