// Copyright 2025 The otflow Authors. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package ot

import (
	"github.com/otflow-ml/otflow/internal/cost"
	"github.com/otflow-ml/otflow/internal/graph"
	"github.com/otflow-ml/otflow/internal/marginal"
	"github.com/otflow-ml/otflow/internal/mat"
	"github.com/otflow-ml/otflow/internal/query"
)

// Matrix is a row-major float64 matrix, used for feature data,
// precomputed distances and materialized transition operators.
type Matrix = mat.Dense

// NewMatrix allocates a zeroed rows×cols matrix.
func NewMatrix(rows, cols int) *Matrix { return mat.NewDense(rows, cols) }

// NewMatrixData wraps an existing row-major slice without copying.
func NewMatrixData(rows, cols int, data []float64) *Matrix {
	return mat.NewDenseData(rows, cols, data)
}

// Marginal is a keyed weighted distribution over a finite point
// support.
type Marginal = marginal.Marginal

// MarginalOption configures marginal construction.
type MarginalOption = marginal.Option

// WithWeights sets an explicit weight vector. Defaults to uniform.
func WithWeights(w []float64) MarginalOption { return marginal.WithWeights(w) }

// WithMass sets the declared total mass. Defaults to 1.0.
func WithMass(mass float64) MarginalOption { return marginal.WithMass(mass) }

// NewMarginal creates a marginal from an n×d feature matrix.
func NewMarginal(key string, features *Matrix, opts ...MarginalOption) (*Marginal, error) {
	return marginal.New(key, features, opts...)
}

// NewMarginalFromDistances creates a marginal from a precomputed n×n
// pairwise distance matrix, for structural matching.
func NewMarginalFromDistances(key string, dists *Matrix, opts ...MarginalOption) (*Marginal, error) {
	return marginal.NewFromDistances(key, dists, opts...)
}

// Marginal construction errors.
var (
	ErrDegenerateMarginal = marginal.ErrDegenerateMarginal
	ErrNegativeWeight     = marginal.ErrNegativeWeight
)

// PolicyMode determines which ordered pairs of marginals become
// transport problems.
type PolicyMode = graph.PolicyMode

// Policy modes.
const (
	Sequential = graph.Sequential
	Explicit   = graph.Explicit
	Pairwise   = graph.Pairwise
)

// Pair is one directed source→target edge request.
type Pair = graph.Pair

// ErrInvalidPolicy indicates a pairing request the declared marginals
// cannot support.
var ErrInvalidPolicy = graph.ErrInvalidPolicy

// Graph is the problem graph: marginals as nodes, transport problems
// as directed edges.
type Graph = graph.Graph

// Graph construction options.
var (
	WithLogger       = graph.WithLogger
	WithWorkers      = graph.WithWorkers
	WithSolverConfig = graph.WithSolverConfig
	WithKind         = graph.WithKind
	WithCostBuilder  = graph.WithCostBuilder
	WithSolver       = graph.WithSolver
)

// New builds a graph over the marginals with edges chosen by the
// policy mode.
func New(marginals []*Marginal, mode PolicyMode, opts ...graph.Option) (*Graph, error) {
	return graph.New(marginals, mode, opts...)
}

// NewExplicit builds a graph with a caller-supplied edge list.
func NewExplicit(marginals []*Marginal, pairs []Pair, opts ...graph.Option) (*Graph, error) {
	return graph.NewExplicit(marginals, pairs, opts...)
}

// Graph errors.
var (
	ErrDuplicateKey = graph.ErrDuplicateKey
	ErrUnknownKey   = graph.ErrUnknownKey
	ErrEdgeNotFound = graph.ErrEdgeNotFound
	ErrEdgeUnsolved = graph.ErrEdgeUnsolved
)

// Metric identifies the ground cost between feature vectors.
type Metric = cost.Metric

// Supported metrics.
const (
	SqEuclidean = cost.SqEuclidean
	Euclidean   = cost.Euclidean
	Cosine      = cost.Cosine
)

// CostBuilder computes and caches pairwise costs between marginals.
type CostBuilder = cost.Builder

// NewCostBuilder creates a cost builder.
func NewCostBuilder(opts ...cost.BuilderOption) *CostBuilder {
	return cost.NewBuilder(opts...)
}

// Cost builder options.
var (
	WithMetric   = cost.WithMetric
	WithScale    = cost.WithScale
	WithFactored = cost.WithFactored
)

// ErrDimensionMismatch indicates incompatible feature dimensionality
// between paired marginals.
var ErrDimensionMismatch = cost.ErrDimensionMismatch

// Query composes couplings along graph paths.
type Query = query.Engine

// NewQuery creates a query engine over the graph.
func NewQuery(g *Graph) *Query { return query.New(g) }

// ErrNoPath indicates no directed path connects two queried keys.
var ErrNoPath = query.ErrNoPath
