// Package parallel spreads independent row computations across CPUs.
// Dense cost assembly and matrix products iterate rows with no shared
// state, so they chunk cleanly.
package parallel

import (
	"runtime"
	"sync"
)

// Config controls how work is split.
type Config struct {
	Enabled      bool // run chunks on goroutines instead of inline
	NumWorkers   int  // goroutine count
	MinChunkSize int  // minimum rows per goroutine to amortize overhead
}

// DefaultConfig sizes the pool from the CPU count. Single-CPU hosts
// run sequentially.
func DefaultConfig() Config {
	n := runtime.NumCPU()
	return Config{
		Enabled:      n > 1,
		NumWorkers:   n,
		MinChunkSize: 64,
	}
}

// For executes f(i) for i in [0, n). Small inputs run inline; larger
// ones are chunked over the configured workers. f must not touch state
// shared between indices.
func For(n int, f func(i int), cfg Config) {
	if !cfg.Enabled || n < cfg.MinChunkSize {
		for i := 0; i < n; i++ {
			f(i)
		}
		return
	}

	var wg sync.WaitGroup
	chunk := max((n+cfg.NumWorkers-1)/cfg.NumWorkers, cfg.MinChunkSize)

	for start := 0; start < n; start += chunk {
		end := min(start+chunk, n)
		wg.Add(1)
		go func(s, e int) {
			defer wg.Done()
			for i := s; i < e; i++ {
				f(i)
			}
		}(start, end)
	}
	wg.Wait()
}
