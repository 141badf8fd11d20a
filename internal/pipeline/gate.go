package pipeline

import (
	"context"
	"fmt"

	"golang.org/x/sync/semaphore"
)

// Gate bounds the number of heavy inference calls in flight across all
// chunks and all calls. Model sidecars degrade badly under unbounded
// concurrency; the gate sheds that load at admission instead. Semaphore
// waiters are served in rough FIFO order, so no call starves another
// indefinitely.
type Gate struct {
	sem   *semaphore.Weighted
	limit int64
}

// NewGate creates a gate admitting at most limit concurrent inference
// calls. A non-positive limit defaults to 8.
func NewGate(limit int) *Gate {
	if limit <= 0 {
		limit = 8
	}
	return &Gate{
		sem:   semaphore.NewWeighted(int64(limit)),
		limit: int64(limit),
	}
}

// Acquire blocks until an inference slot is free or ctx is done.
func (g *Gate) Acquire(ctx context.Context) error {
	if err := g.sem.Acquire(ctx, 1); err != nil {
		return fmt.Errorf("pipeline: acquire inference slot: %w", err)
	}
	return nil
}

// Release returns a slot. Must be called exactly once per successful
// Acquire.
func (g *Gate) Release() {
	g.sem.Release(1)
}

// Limit returns the configured concurrency bound.
func (g *Gate) Limit() int {
	return int(g.limit)
}
