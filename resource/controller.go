// Package resource bounds the work a locality does on behalf of the
// distributed garbage collector.
//
// Credit decrements and overflow venting are fire-and-forget: nobody waits
// for them, so a burst of handle releases must not turn into an unbounded
// number of goroutines talking to the address service. The Controller
// admits that traffic through a weighted semaphore (concurrency) and a
// token bucket (rate), and budgets the memory of the address cache.
package resource

import (
	"context"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

// Config holds resource limits.
type Config struct {
	// MemoryLimitBytes bounds the address cache. 0 only tracks usage.
	MemoryLimitBytes int64

	// MaxInflight is the maximum number of concurrent background requests.
	// If 0, defaults to DefaultMaxInflight.
	MaxInflight int64

	// RequestsPerSec is the maximum rate of background requests.
	// If 0, unlimited.
	RequestsPerSec float64

	// Burst is the token bucket size for RequestsPerSec. If 0, it equals
	// MaxInflight.
	Burst int
}

// DefaultMaxInflight bounds background requests when no limit is configured.
const DefaultMaxInflight = 64

// Stats is a snapshot of a Controller.
type Stats struct {
	MemoryBytes int64 `json:"memory_bytes"`
	Inflight    int64 `json:"inflight"`
	Waiting     int64 `json:"waiting"`
	Admitted    int64 `json:"admitted"`
	Rejected    int64 `json:"rejected"`
}

// Controller admits background requests and budgets cache memory. A nil
// Controller admits everything.
type Controller struct {
	cfg Config

	memLimit int64
	memUsed  atomic.Int64

	bgSem    *semaphore.Weighted
	limiter  *rate.Limiter // nil if unlimited
	inflight atomic.Int64
	waiting  atomic.Int64
	admitted atomic.Int64
	rejected atomic.Int64
}

// NewController creates a controller enforcing cfg.
func NewController(cfg Config) *Controller {
	if cfg.MaxInflight <= 0 {
		cfg.MaxInflight = DefaultMaxInflight
	}
	if cfg.Burst <= 0 {
		cfg.Burst = int(cfg.MaxInflight)
	}

	c := &Controller{
		cfg:      cfg,
		memLimit: cfg.MemoryLimitBytes,
		bgSem:    semaphore.NewWeighted(cfg.MaxInflight),
	}
	if cfg.RequestsPerSec > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSec), cfg.Burst)
	}
	return c
}

// Config returns the effective configuration.
func (c *Controller) Config() Config { return c.cfg }

// TryAcquireMemory reserves bytes of cache memory. It reports false when
// the reservation would exceed the limit; cache entries are dropped rather
// than waited for.
func (c *Controller) TryAcquireMemory(bytes int64) bool {
	if c == nil || bytes <= 0 {
		return true
	}
	for {
		used := c.memUsed.Load()
		if c.memLimit > 0 && used+bytes > c.memLimit {
			return false
		}
		if c.memUsed.CompareAndSwap(used, used+bytes) {
			return true
		}
	}
}

// ReleaseMemory returns a reservation made by TryAcquireMemory.
func (c *Controller) ReleaseMemory(bytes int64) {
	if c == nil || bytes <= 0 {
		return
	}
	c.memUsed.Add(-bytes)
}

// MemoryUsage returns the reserved cache memory in bytes.
func (c *Controller) MemoryUsage() int64 {
	if c == nil {
		return 0
	}
	return c.memUsed.Load()
}

// AcquireBackground admits one background request, waiting for a rate
// token and then a concurrency slot until ctx is done.
func (c *Controller) AcquireBackground(ctx context.Context) error {
	if c == nil {
		return nil
	}

	c.waiting.Add(1)
	defer c.waiting.Add(-1)

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			c.rejected.Add(1)
			return err
		}
	}
	if err := c.bgSem.Acquire(ctx, 1); err != nil {
		c.rejected.Add(1)
		return err
	}
	c.inflight.Add(1)
	c.admitted.Add(1)
	return nil
}

// TryAcquireBackground admits one background request if that is possible
// without waiting.
func (c *Controller) TryAcquireBackground() bool {
	if c == nil {
		return true
	}
	if c.limiter != nil && !c.limiter.Allow() {
		c.rejected.Add(1)
		return false
	}
	if !c.bgSem.TryAcquire(1) {
		c.rejected.Add(1)
		return false
	}
	c.inflight.Add(1)
	c.admitted.Add(1)
	return true
}

// ReleaseBackground ends a request admitted by AcquireBackground or
// TryAcquireBackground.
func (c *Controller) ReleaseBackground() {
	if c == nil {
		return
	}
	c.inflight.Add(-1)
	c.bgSem.Release(1)
}

// Inflight returns the number of admitted requests not yet released.
func (c *Controller) Inflight() int64 {
	if c == nil {
		return 0
	}
	return c.inflight.Load()
}

// Stats returns a snapshot of the controller.
func (c *Controller) Stats() Stats {
	if c == nil {
		return Stats{}
	}
	return Stats{
		MemoryBytes: c.memUsed.Load(),
		Inflight:    c.inflight.Load(),
		Waiting:     c.waiting.Load(),
		Admitted:    c.admitted.Load(),
		Rejected:    c.rejected.Load(),
	}
}
