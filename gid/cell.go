package gid

import (
	"runtime"
	"sync/atomic"
)

// spins before yielding the processor while waiting for a cell lock.
const lockSpins = 32

// Cell is the shared, lockable storage of one GID.
//
// The least significant word is immutable once the cell is initialised. The
// most significant word is always accessed atomically; bit 29 of it is a
// spinlock that must be held for every read-modify-write of the credit
// fields. A Cell must not be copied after first use.
type Cell struct {
	msb atomic.Uint64
	lsb uint64
}

// NewCell returns a cell holding g.
func NewCell(g GID) *Cell {
	c := &Cell{}
	c.Init(g)
	return c
}

// Init sets the cell's value. It must not race with any other access.
func (c *Cell) Init(g GID) {
	c.lsb = g.Lsb
	c.msb.Store(g.Msb &^ LockMask)
}

// Lock acquires the cell's spinlock.
func (c *Cell) Lock() {
	for i := 0; ; i++ {
		old := c.msb.Load()
		if old&LockMask == 0 && c.msb.CompareAndSwap(old, old|LockMask) {
			return
		}
		if i >= lockSpins {
			runtime.Gosched()
		}
	}
}

// TryLock acquires the spinlock if it is free.
func (c *Cell) TryLock() bool {
	old := c.msb.Load()
	return old&LockMask == 0 && c.msb.CompareAndSwap(old, old|LockMask)
}

// Unlock releases the spinlock.
func (c *Cell) Unlock() {
	if c.msb.And(^LockMask)&LockMask == 0 {
		panic("gid: unlock of unlocked cell")
	}
}

// Locked reports whether the spinlock is currently held by anyone.
func (c *Cell) Locked() bool { return c.msb.Load()&LockMask != 0 }

// Load returns a snapshot of the cell's value without the lock bit. Without
// the lock, the snapshot may be stale by the time it is used.
func (c *Cell) Load() GID {
	return GID{Msb: c.msb.Load() &^ LockMask, Lsb: c.lsb}
}

// Store replaces the most significant word. The caller must hold the lock,
// which stays held. The least significant word of g must match the cell.
func (c *Cell) Store(g GID) {
	if c.msb.Load()&LockMask == 0 {
		panic("gid: store without holding the cell lock")
	}
	if g.Lsb != c.lsb {
		panic("gid: store of a different identifier")
	}
	c.msb.Store(g.Msb | LockMask)
}

// String renders the current value.
func (c *Cell) String() string { return c.Load().String() }
