// Package main provides the otflow CLI.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/otflow-ml/otflow/internal/config"
	"github.com/otflow-ml/otflow/internal/observability"
	"github.com/otflow-ml/otflow/ot"
)

const version = "v0.1.0-dev"

func main() {
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "version":
			fmt.Printf("otflow %s\n", version)
			return
		case "demo":
			path := ""
			if len(os.Args) > 2 {
				path = os.Args[2]
			}
			if err := demo(path); err != nil {
				fmt.Fprintf(os.Stderr, "demo: %v\n", err)
				os.Exit(1)
			}
			return
		}
	}

	fmt.Println("otflow - optimal-transport coupling graphs for single-cell data")
	fmt.Printf("Version: %s\n\n", version)
	fmt.Println("Commands:")
	fmt.Println("  version           Show version")
	fmt.Println("  demo [config]     Solve a small identity-structure problem and print the coupling")
}

// demo couples two 3-point marginals whose supports line up one to
// one; with small epsilon the plan approaches a permutation. An
// optional config file (plus OTFLOW_ environment variables) overrides
// the solver and logger settings.
func demo(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	log, err := observability.NewLogger(observability.LoggerConfig{
		Level:  cfg.Logger.Level,
		Format: cfg.Logger.Format,
	})
	if err != nil {
		return err
	}
	defer log.Sync()

	src, err := ot.NewMarginal("source", ot.NewMatrixData(3, 1, []float64{0, 1, 2}))
	if err != nil {
		return err
	}
	dst, err := ot.NewMarginal("target", ot.NewMatrixData(3, 1, []float64{0, 1, 2}))
	if err != nil {
		return err
	}

	solveCfg, err := cfg.SolverConfig()
	if err != nil {
		return err
	}
	g, err := ot.New([]*ot.Marginal{src, dst}, ot.Sequential,
		ot.WithLogger(log),
		ot.WithSolverConfig(solveCfg),
	)
	if err != nil {
		return err
	}
	outputs, err := g.SolveAll(context.Background())
	if err != nil {
		return err
	}
	for pair, out := range outputs {
		fmt.Printf("%s: converged=%v iterations=%d cost=%.4f\n",
			pair, out.Converged, out.Iterations, out.Cost)
	}

	c, err := g.Coupling("source", "target")
	if err != nil {
		return err
	}
	p := c.Materialize()
	for i := 0; i < p.Rows(); i++ {
		for j := 0; j < p.Cols(); j++ {
			fmt.Printf("%8.4f", p.At(i, j))
		}
		fmt.Println()
	}
	return nil
}
