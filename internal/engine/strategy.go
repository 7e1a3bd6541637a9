// Package engine runs the per-symbol indicator computation at batch scale:
// it fans symbol units out over a bounded worker pool (or runs them inline
// for small batches), collects results through a single aggregation point,
// and tolerates per-unit failures without aborting the batch.
package engine

import "fmt"

const (
	// sequentialThreshold is the symbol count below which parallel dispatch
	// overhead exceeds its benefit and units run on the calling goroutine.
	sequentialThreshold = 50
	// maxWorkers caps the worker pool regardless of available parallelism.
	maxWorkers = 16
)

// Mode selects how a batch is dispatched.
type Mode int

const (
	ModeSequential Mode = iota
	ModeParallel
)

func (m Mode) String() string {
	if m == ModeParallel {
		return "parallel"
	}
	return "sequential"
}

// Strategy is the scheduling decision for one batch.
type Strategy struct {
	Mode    Mode
	Workers int
}

func (s Strategy) String() string {
	if s.Mode == ModeParallel {
		return fmt.Sprintf("parallel(%d)", s.Workers)
	}
	return "sequential"
}

// ChooseStrategy decides between sequential and parallel dispatch for a batch
// of symbolCount units given the host's available parallelism. The crossover
// point and worker cap live here so they stay independently testable.
func ChooseStrategy(symbolCount, availableParallelism int) Strategy {
	if symbolCount < sequentialThreshold {
		return Strategy{Mode: ModeSequential, Workers: 1}
	}
	workers := availableParallelism - 1 // leave one core free
	if workers > maxWorkers {
		workers = maxWorkers
	}
	if workers > symbolCount {
		workers = symbolCount
	}
	if workers <= 1 {
		return Strategy{Mode: ModeSequential, Workers: 1}
	}
	return Strategy{Mode: ModeParallel, Workers: workers}
}
