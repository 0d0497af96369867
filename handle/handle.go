package handle

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/hupe1980/gidref/core"
	"github.com/hupe1980/gidref/gid"
	"github.com/hupe1980/gidref/metrics"
)

// OutcomeRetained is reported by a Release that was not the last one.
const OutcomeRetained = "retained"

// ReleaseResult describes what a Release did.
type ReleaseResult struct {
	// Outcome is OutcomeRetained or one of the metrics.Outcome* names.
	Outcome string
	// Err is set when the deleter failed.
	Err error
}

// Final reports whether the release ran the deleter.
func (r ReleaseResult) Final() bool { return r.Outcome != OutcomeRetained }

// Impl is the shared state of all local copies of one handle.
type Impl struct {
	cell  gid.Cell
	mode  Management
	refs  atomic.Int64
	freed atomic.Bool
	rt    *Runtime
}

// ID is a counted reference to an Impl. The zero ID is invalid.
// Copying an ID does not count; use Clone.
type ID struct {
	impl *Impl
}

// New creates a handle for g in the given mode with a local count of one.
// Unmanaged handles never carry credit; any credit bits in g are stripped.
func New(rt *Runtime, g gid.GID, mode Management) ID {
	if !mode.Valid() {
		panic(fmt.Sprintf("handle: invalid management mode %d", mode))
	}
	if mode == Unmanaged {
		g = g.StripCredits()
	}

	impl := &Impl{mode: mode, rt: rt}
	impl.cell.Init(g)
	impl.refs.Store(1)
	return ID{impl: impl}
}

// IsValid reports whether id refers to a handle.
func (id ID) IsValid() bool { return id.impl != nil }

// Impl returns the shared state. Two IDs are copies of each other iff
// their Impls are equal.
func (id ID) Impl() *Impl { return id.impl }

// Cell returns the shared GID storage.
func (id ID) Cell() *gid.Cell { return &id.live().cell }

// GID returns a snapshot of the identifier including its credit.
func (id ID) GID() gid.GID {
	if id.impl == nil {
		return gid.Invalid
	}
	return id.impl.cell.Load()
}

// Management returns the handle's mode.
func (id ID) Management() Management {
	if id.impl == nil {
		return UnknownDeleter
	}
	return id.impl.mode
}

// Runtime returns the runtime the handle was created in.
func (id ID) Runtime() *Runtime { return id.live().rt }

// RefCount returns the current local count.
func (id ID) RefCount() int64 {
	if id.impl == nil {
		return 0
	}
	return id.impl.refs.Load()
}

// Clone returns a new counted reference to the same handle.
func (id ID) Clone() ID {
	impl := id.live()
	if impl.refs.Add(1) <= 1 {
		panic("handle: clone of released handle")
	}
	return id
}

// Release drops one local reference. The last release runs the mode's
// deleter.
func (id ID) Release() ReleaseResult {
	return id.ReleaseContext(context.Background())
}

// ReleaseContext is Release with a context for the local destruction path.
func (id ID) ReleaseContext(ctx context.Context) ReleaseResult {
	impl := id.live()

	n := impl.refs.Add(-1)
	switch {
	case n > 0:
		return ReleaseResult{Outcome: OutcomeRetained}
	case n < 0:
		panic("handle: release of released handle")
	}

	res := deleters[impl.mode](ctx, impl)
	impl.freed.Store(true)

	impl.rt.observer().OnRelease(res.Outcome)
	impl.rt.logger().DebugContext(ctx, "handle released",
		"gid", impl.cell.Load(), "management", impl.mode, "outcome", res.Outcome)
	return res
}

// SplitCredit returns the identifier to send in a message, splitting (and
// if necessary replenishing) the handle's credit.
func (id ID) SplitCredit(ctx context.Context) (gid.GID, error) {
	impl := id.live()
	if impl.rt == nil || impl.rt.Protocol == nil {
		return gid.Invalid, core.NewError(core.ErrInvalidStatus, "handle.SplitCredit", "no credit protocol")
	}
	return impl.rt.Protocol.SplitIfNeeded(ctx, &impl.cell)
}

// MoveCredit strips all credit from the handle and returns an identifier
// carrying it.
func (id ID) MoveCredit() (gid.GID, error) {
	impl := id.live()
	if impl.rt == nil || impl.rt.Protocol == nil {
		return gid.Invalid, core.NewError(core.ErrInvalidStatus, "handle.MoveCredit", "no credit protocol")
	}
	return impl.rt.Protocol.Move(&impl.cell), nil
}

// ReturnCredit gives back the credit of sent, an identifier obtained from
// SplitCredit or MoveCredit that was never transmitted.
func (id ID) ReturnCredit(sent gid.GID) {
	impl := id.live()
	if impl.rt == nil || impl.rt.Protocol == nil {
		return
	}
	impl.rt.Protocol.Return(&impl.cell, sent)
}

// Replenish refills a handle whose credit was moved away.
func (id ID) Replenish(ctx context.Context) (int64, error) {
	impl := id.live()
	if !impl.mode.IsManaged() {
		return 0, core.NewError(core.ErrInvalidStatus, "handle.Replenish", "handle is unmanaged")
	}
	if impl.rt == nil || impl.rt.Protocol == nil {
		return 0, core.NewError(core.ErrInvalidStatus, "handle.Replenish", "no credit protocol")
	}
	return impl.rt.Protocol.Replenish(ctx, &impl.cell)
}

// String renders the identifier and mode.
func (id ID) String() string {
	if id.impl == nil {
		return "{invalid}"
	}
	return fmt.Sprintf("%v (%v)", id.impl.cell.Load(), id.impl.mode)
}

func (id ID) live() *Impl {
	if id.impl == nil {
		panic("handle: use of invalid handle")
	}
	if id.impl.freed.Load() {
		panic("handle: use after free")
	}
	return id.impl
}

type deleter func(ctx context.Context, impl *Impl) ReleaseResult

var deleters = map[Management]deleter{
	Unmanaged:         freeOnly,
	Managed:           managedDeleter,
	ManagedMoveCredit: managedDeleter,
}

func freeOnly(context.Context, *Impl) ReleaseResult {
	return ReleaseResult{Outcome: metrics.OutcomeFreed}
}

func managedDeleter(ctx context.Context, impl *Impl) ReleaseResult {
	if !impl.cell.Load().HasCredits() {
		return ReleaseResult{Outcome: metrics.OutcomeFreed}
	}
	return distributedDecrement(ctx, impl)
}

// distributedDecrement gives the handle's credit back or destroys the
// component directly when no copy ever left this locality.
func distributedDecrement(ctx context.Context, impl *Impl) ReleaseResult {
	rt := impl.rt
	if rt.tearingDown() {
		return ReleaseResult{Outcome: metrics.OutcomeShutdownSkipped}
	}

	g := impl.cell.Load()
	id := g.Stripped()

	// a handle received with moved credit is not marked split, but its
	// component may live elsewhere
	if !g.WasSplit() && rt.Destroyer != nil {
		if addr, ok := rt.Client.ResolveCached(id); ok && addr.Locality == rt.Locality {
			return destroyLocally(ctx, rt, id, addr)
		}
	}

	rt.decrement(ctx, id, g.Credit())
	return ReleaseResult{Outcome: metrics.OutcomeDecrementSent}
}

func destroyLocally(ctx context.Context, rt *Runtime, id gid.GID, addr core.Address) ReleaseResult {
	err := rt.Destroyer.Destroy(ctx, id, addr)
	if err == nil {
		return ReleaseResult{Outcome: metrics.OutcomeDestroyedLocally}
	}

	if errors.Is(err, core.ErrInvalidStatus) && rt.tearingDown() {
		rt.logger().DebugContext(ctx, "ignoring destroy failure during shutdown", "gid", id, "error", err)
		return ReleaseResult{Outcome: metrics.OutcomeShutdownSkipped}
	}

	rt.logger().ErrorContext(ctx, "local destroy failed", "gid", id, "address", addr, "error", err)
	return ReleaseResult{
		Outcome: metrics.OutcomeFailed,
		Err:     core.WrapError(core.ErrUnexpectedFailure, "handle.Release", err),
	}
}
