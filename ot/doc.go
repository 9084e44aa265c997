// Copyright 2025 The otflow Authors. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package ot provides the public API for building and querying
// optimal-transport coupling graphs over single-cell measurements.
//
// The workflow is: declare keyed marginals (weighted point supports),
// choose a pairing policy, build a graph, solve its edges, then query
// pushforward, pullback and transition operators across the solved
// couplings:
//
//	t0, _ := ot.NewMarginal("0", features0)
//	t1, _ := ot.NewMarginal("1", features1)
//	t2, _ := ot.NewMarginal("2", features2)
//
//	g, _ := ot.New([]*ot.Marginal{t0, t1, t2}, ot.Sequential)
//	g.SolveAll(ctx)
//
//	q := ot.NewQuery(g)
//	pushed, _ := q.PushForward("0", "2", dist) // composes (0,1) and (1,2)
package ot
