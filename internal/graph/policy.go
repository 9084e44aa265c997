package graph

import (
	"errors"
	"fmt"
)

// ErrInvalidPolicy indicates a pairing request the declared marginals
// cannot support.
var ErrInvalidPolicy = errors.New("graph: invalid policy")

// PolicyMode determines which ordered pairs of marginals become
// problems.
type PolicyMode int

// Policy modes.
const (
	// Sequential chains consecutive keys in declaration order, e.g.
	// adjacent time points.
	Sequential PolicyMode = iota

	// Explicit uses a caller-supplied pair list.
	Explicit

	// Pairwise produces every ordered pair.
	Pairwise
)

// String returns the mode name.
func (p PolicyMode) String() string {
	switch p {
	case Sequential:
		return "sequential"
	case Explicit:
		return "explicit"
	case Pairwise:
		return "pairwise"
	default:
		return "unknown"
	}
}

// ParsePolicy converts a config string into a PolicyMode.
func ParsePolicy(s string) (PolicyMode, error) {
	switch s {
	case "", "sequential":
		return Sequential, nil
	case "explicit":
		return Explicit, nil
	case "pairwise", "complete":
		return Pairwise, nil
	default:
		return 0, fmt.Errorf("%w: unknown mode %q", ErrInvalidPolicy, s)
	}
}

// Pair is one directed source→target edge request.
type Pair struct {
	Source, Target string
}

// String renders the pair as "source→target".
func (p Pair) String() string { return p.Source + "→" + p.Target }

// buildEdges expands a policy over the declared keys into the edge
// set. Keys are assumed unique (the graph constructor enforces that).
// Duplicate ordered pairs are collapsed: the graph never carries two
// edges over the same pair.
func buildEdges(keys []string, mode PolicyMode, explicit []Pair) ([]Pair, error) {
	known := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		known[k] = struct{}{}
	}

	switch mode {
	case Sequential:
		if len(keys) < 2 {
			return nil, fmt.Errorf("%w: sequential needs at least 2 marginals, got %d",
				ErrInvalidPolicy, len(keys))
		}
		pairs := make([]Pair, 0, len(keys)-1)
		for i := 0; i+1 < len(keys); i++ {
			pairs = append(pairs, Pair{Source: keys[i], Target: keys[i+1]})
		}
		return pairs, nil

	case Pairwise:
		if len(keys) < 2 {
			return nil, fmt.Errorf("%w: pairwise needs at least 2 marginals, got %d",
				ErrInvalidPolicy, len(keys))
		}
		pairs := make([]Pair, 0, len(keys)*(len(keys)-1))
		for _, src := range keys {
			for _, dst := range keys {
				if src != dst {
					pairs = append(pairs, Pair{Source: src, Target: dst})
				}
			}
		}
		return pairs, nil

	case Explicit:
		if len(explicit) == 0 {
			return nil, fmt.Errorf("%w: explicit mode without pairs", ErrInvalidPolicy)
		}
		seen := make(map[Pair]struct{}, len(explicit))
		pairs := make([]Pair, 0, len(explicit))
		for _, p := range explicit {
			if _, ok := known[p.Source]; !ok {
				return nil, fmt.Errorf("%w: unknown source key %q", ErrInvalidPolicy, p.Source)
			}
			if _, ok := known[p.Target]; !ok {
				return nil, fmt.Errorf("%w: unknown target key %q", ErrInvalidPolicy, p.Target)
			}
			if p.Source == p.Target {
				return nil, fmt.Errorf("%w: self pair %q", ErrInvalidPolicy, p.Source)
			}
			if _, dup := seen[p]; dup {
				continue
			}
			seen[p] = struct{}{}
			pairs = append(pairs, p)
		}
		return pairs, nil

	default:
		return nil, fmt.Errorf("%w: unknown mode %d", ErrInvalidPolicy, mode)
	}
}
