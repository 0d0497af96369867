package testutil

import (
	"context"
	"sync"

	"github.com/hupe1980/gidref/core"
	"github.com/hupe1980/gidref/gid"
)

// Call is one recorded credit call.
type Call struct {
	ID     gid.GID
	Credit int64
}

// RecordingClient is an agas.Client double. It keeps a global credit table
// with the authority's semantics (absent entries hold the initial credit),
// records every call, and can block or fail calls on demand.
type RecordingClient struct {
	initial int64

	mu         sync.Mutex
	cond       *sync.Cond
	credits    map[gid.GID]int64
	cached     map[gid.GID]core.Address
	increments []Call
	decrements []Call
	resolves   int

	incErr error
	decErr error
	gated  bool
}

// NewRecordingClient creates a client whose table assumes the given
// initial credit for unknown identifiers.
func NewRecordingClient(initial int64) *RecordingClient {
	c := &RecordingClient{
		initial: initial,
		credits: make(map[gid.GID]int64),
		cached:  make(map[gid.GID]core.Address),
	}
	c.cond = sync.NewCond(&c.mu)
	return c
}

// IncrementCredit implements agas.Client.
func (c *RecordingClient) IncrementCredit(ctx context.Context, id gid.GID, credit int64) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := id.Stripped()
	c.increments = append(c.increments, Call{ID: key, Credit: credit})
	c.cond.Broadcast()

	for c.gated && ctx.Err() == nil {
		c.cond.Wait()
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if c.incErr != nil {
		return 0, c.incErr
	}

	n := c.count(key) + credit
	c.credits[key] = n
	return n, nil
}

// DecrementCredit implements agas.Client.
func (c *RecordingClient) DecrementCredit(_ context.Context, id gid.GID, credit int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := id.Stripped()
	c.decrements = append(c.decrements, Call{ID: key, Credit: credit})
	c.cond.Broadcast()
	if c.decErr != nil {
		return c.decErr
	}

	c.credits[key] = c.count(key) - credit
	return nil
}

// ResolveCached implements agas.Client.
func (c *RecordingClient) ResolveCached(id gid.GID) (core.Address, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.resolves++
	addr, ok := c.cached[id.Stripped()]
	return addr, ok
}

// SetCached makes ResolveCached hit for id.
func (c *RecordingClient) SetCached(id gid.GID, addr core.Address) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cached[id.Stripped()] = addr
}

// GateIncrements blocks IncrementCredit calls (after recording them) until
// ReleaseIncrements is called.
func (c *RecordingClient) GateIncrements() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gated = true
}

// ReleaseIncrements unblocks gated increments.
func (c *RecordingClient) ReleaseIncrements() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gated = false
	c.cond.Broadcast()
}

// WaitIncrements blocks until at least n increments were recorded.
func (c *RecordingClient) WaitIncrements(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for len(c.increments) < n {
		c.cond.Wait()
	}
}

// WaitDecrements blocks until at least n decrements were recorded.
func (c *RecordingClient) WaitDecrements(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for len(c.decrements) < n {
		c.cond.Wait()
	}
}

// FailIncrements makes IncrementCredit return err (nil restores success).
func (c *RecordingClient) FailIncrements(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.incErr = err
}

// FailDecrements makes DecrementCredit return err (nil restores success).
func (c *RecordingClient) FailDecrements(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.decErr = err
}

// Increments returns the recorded increments.
func (c *RecordingClient) Increments() []Call {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Call(nil), c.increments...)
}

// Decrements returns the recorded decrements.
func (c *RecordingClient) Decrements() []Call {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Call(nil), c.decrements...)
}

// Resolves returns the number of ResolveCached calls.
func (c *RecordingClient) Resolves() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.resolves
}

// Credit returns the global count of id.
func (c *RecordingClient) Credit(id gid.GID) int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.count(id.Stripped())
}

// Calls returns the total number of credit calls recorded.
func (c *RecordingClient) Calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.increments) + len(c.decrements)
}

// count requires c.mu.
func (c *RecordingClient) count(key gid.GID) int64 {
	if n, ok := c.credits[key]; ok {
		return n
	}
	return c.initial
}
