// Package gate implements the global bounded concurrency semaphore that the
// dispatcher owns and every download worker borrows for the duration of its
// fetch+inflate+install sequence.
package gate

import "context"

// Gate is a counting semaphore with a fixed capacity.
type Gate struct {
	permits chan struct{}
}

// New returns a Gate with n permits available. n < 1 is clamped to 1.
func New(n int) *Gate {
	if n < 1 {
		n = 1
	}
	return &Gate{permits: make(chan struct{}, n)}
}

// Acquire blocks until a permit is available or ctx is done.
func (g *Gate) Acquire(ctx context.Context) error {
	select {
	case g.permits <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Release returns a permit to the gate. Must be called exactly once per
// successful Acquire.
func (g *Gate) Release() {
	<-g.permits
}

// InUse is the number of permits currently held.
func (g *Gate) InUse() int { return len(g.permits) }

// Capacity is the configured download_limit.
func (g *Gate) Capacity() int { return cap(g.permits) }

// Available is Capacity - InUse.
func (g *Gate) Available() int { return g.Capacity() - g.InUse() }

// Saturated reports whether the gate has zero permits free right now.
func (g *Gate) Saturated() bool { return g.Available() == 0 }
