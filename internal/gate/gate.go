// Package gate provides the fixed-size permit pool that bounds concurrent network calls.
package gate

import (
	"context"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
)

// Permit bounds
const (
	MinPermits = 1
	MaxPermits = 50
)

// Gate admits at most N holders at a time. Admission order is not guaranteed.
type Gate struct {
	sem      *semaphore.Weighted
	permits  int
	inFlight atomic.Int64
	peak     atomic.Int64
}

// New creates a gate with the given number of permits, clamped to [MinPermits, MaxPermits].
func New(permits int) *Gate {
	permits = max(MinPermits, min(permits, MaxPermits))
	return &Gate{
		sem:     semaphore.NewWeighted(int64(permits)),
		permits: permits,
	}
}

// Acquire blocks until a permit is free. It only returns an error when ctx ends first,
// in which case no permit is held.
func (g *Gate) Acquire(ctx context.Context) error {
	if err := g.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	n := g.inFlight.Add(1)
	for {
		p := g.peak.Load()
		if n <= p || g.peak.CompareAndSwap(p, n) {
			break
		}
	}
	return nil
}

// Release returns a permit to the pool.
func (g *Gate) Release() {
	g.inFlight.Add(-1)
	g.sem.Release(1)
}

// Do runs fn while holding a permit.
func (g *Gate) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := g.Acquire(ctx); err != nil {
		return err
	}
	defer g.Release()
	return fn(ctx)
}

// Permits returns the pool size
func (g *Gate) Permits() int { return g.permits }

// InFlight returns the number of permits currently held
func (g *Gate) InFlight() int { return int(g.inFlight.Load()) }

// Peak returns the highest number of permits ever held at once
func (g *Gate) Peak() int { return int(g.peak.Load()) }
