// Package rate divides a nominal bandwidth budget fairly across the
// clients connected to the server.
//
// The model is a simple fair-division heuristic, not a token bucket: each
// protocol turn asks for the current per-client allowance, which is the
// total budget divided by the number of active clients, truncating, with
// a floor of one byte. After moving a chunk, the connection sleeps long
// enough to approximate its allowance in bytes per second. Clients that
// join or leave change the divisor for future chunks only.
package rate

import (
	"sync/atomic"
	"time"
)

// Controller computes the fair chunk size and inter-chunk delay for one
// server. It reads the shared registry and never mutates it.
type Controller struct {
	budget   atomic.Uint64
	registry *Registry
	sleeper  Sleeper
}

// NewController creates a controller with the given total budget in bytes
// per second. A zero or negative budget falls back to the caller-supplied
// value unchanged; validation is the caller's concern.
func NewController(budget uint64, registry *Registry) *Controller {
	c := &Controller{
		registry: registry,
		sleeper:  RealSleeper{},
	}
	c.budget.Store(budget)
	return c
}

// SetSleeper replaces the blocking pause implementation. Tests inject a
// recording sleeper so delays are observable without real time passing.
func (c *Controller) SetSleeper(s Sleeper) {
	if s == nil {
		s = RealSleeper{}
	}
	c.sleeper = s
}

// Budget returns the nominal total rate in bytes per second.
func (c *Controller) Budget() uint64 {
	return c.budget.Load()
}

// SetBudget replaces the nominal total rate. Connections observe the new
// value on their next chunk.
func (c *Controller) SetBudget(budget uint64) {
	c.budget.Store(budget)
}

// perClientRate is the fair per-connection allowance in bytes per second:
// budget / active, truncating, floored at one. With no active clients the
// full budget applies.
func (c *Controller) perClientRate() uint64 {
	budget := c.budget.Load()
	active := c.registry.Count()
	if active <= 0 {
		return budget
	}
	rate := budget / uint64(active)
	if rate < 1 {
		return 1
	}
	return rate
}

// ChunkSize returns how many payload bytes the next protocol turn should
// move. It shrinks as more clients join and is recomputed on demand, so
// staleness is bounded by one chunk.
func (c *Controller) ChunkSize() uint64 {
	return c.perClientRate()
}

// Delay blocks the calling connection after it has moved n bytes, long
// enough to approximate the per-client allowance. With no active clients
// it returns immediately.
func (c *Controller) Delay(n uint64) {
	if c.registry.Count() <= 0 || n == 0 {
		return
	}
	rate := c.perClientRate()
	d := time.Duration(n*1000/rate) * time.Millisecond
	if d > 0 {
		c.sleeper.Sleep(d)
	}
}
