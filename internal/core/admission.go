package core

import (
	"context"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
)

// GateStats is a snapshot of admission state.
type GateStats struct {
	InFlight      int `json:"in_flight"`
	Queued        int `json:"queued"`
	MaxConcurrent int `json:"max_concurrent"`
	MaxQueue      int `json:"max_queue"`
	Rejected      int `json:"rejected"`
}

// Gate bounds concurrent executions. Callers beyond the bound wait in line
// (backpressure); callers beyond the queue bound are turned away.
type Gate struct {
	sem           *semaphore.Weighted
	maxConcurrent int
	maxQueue      int
	inFlight      atomic.Int64
	queued        atomic.Int64
	rejected      atomic.Int64
}

// NewGate creates a gate. maxQueue <= 0 means an unbounded queue.
func NewGate(maxConcurrent, maxQueue int) *Gate {
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}
	return &Gate{
		sem:           semaphore.NewWeighted(int64(maxConcurrent)),
		maxConcurrent: maxConcurrent,
		maxQueue:      maxQueue,
	}
}

// Acquire admits the caller, waiting while the gate is full. The returned
// release func must be called exactly once.
func (g *Gate) Acquire(ctx context.Context) (func(), error) {
	if g.sem.TryAcquire(1) {
		g.inFlight.Add(1)
		return g.releaseFunc(), nil
	}

	if q := g.queued.Add(1); g.maxQueue > 0 && q > int64(g.maxQueue) {
		g.queued.Add(-1)
		g.rejected.Add(1)
		return nil, ErrQueueFull
	}
	err := g.sem.Acquire(ctx, 1)
	g.queued.Add(-1)
	if err != nil {
		return nil, err
	}
	g.inFlight.Add(1)
	return g.releaseFunc(), nil
}

func (g *Gate) releaseFunc() func() {
	var once atomic.Bool
	return func() {
		if once.CompareAndSwap(false, true) {
			g.inFlight.Add(-1)
			g.sem.Release(1)
		}
	}
}

// Stats returns the current admission counters.
func (g *Gate) Stats() GateStats {
	return GateStats{
		InFlight:      int(g.inFlight.Load()),
		Queued:        int(g.queued.Load()),
		MaxConcurrent: g.maxConcurrent,
		MaxQueue:      g.maxQueue,
		Rejected:      int(g.rejected.Load()),
	}
}
