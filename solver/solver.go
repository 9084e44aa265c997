// Copyright 2025 The otflow Authors. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package solver provides the public API for solver configuration,
// problem variants and solve diagnostics.
//
// The actual iteration lives in internal/solver; this package
// re-exports the types a caller needs to configure a graph and read
// back results.
package solver

import (
	"github.com/otflow-ml/otflow/internal/solver"
)

// Kind selects the transport problem variant.
type Kind = solver.Kind

// Problem variants.
const (
	Linear         = solver.Linear
	Quadratic      = solver.Quadratic
	FusedQuadratic = solver.FusedQuadratic
)

// Config holds solver hyperparameters for one problem.
type Config = solver.Config

// DefaultConfig returns the defaults used when a graph is built
// without per-edge overrides.
func DefaultConfig() Config { return solver.DefaultConfig() }

// DivergencePolicy decides what a quadratic outer loop does when its
// inner entropic solve fails to converge.
type DivergencePolicy = solver.DivergencePolicy

// Divergence policies.
const (
	ContinueOnDivergence = solver.ContinueOnDivergence
	AbortOnDivergence    = solver.AbortOnDivergence
)

// Coupling is a solved transport plan.
type Coupling = solver.Coupling

// Output carries the diagnostics of one solver run.
type Output = solver.Output

// Solver runs a Problem to a Coupling plus diagnostics.
type Solver = solver.Solver

// Solver errors.
var (
	ErrInvalidConfig        = solver.ErrInvalidConfig
	ErrNonConvergence       = solver.ErrNonConvergence
	ErrNumericalInstability = solver.ErrNumericalInstability
)
