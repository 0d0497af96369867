package gidref

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/bits"
	"sync"
	"sync/atomic"

	"github.com/hupe1980/gidref/agas"
	"github.com/hupe1980/gidref/core"
	"github.com/hupe1980/gidref/credit"
	"github.com/hupe1980/gidref/gid"
	"github.com/hupe1980/gidref/handle"
	"github.com/hupe1980/gidref/internal/cache"
	"github.com/hupe1980/gidref/resource"
	"github.com/hupe1980/gidref/wire"
)

// Locality is one process taking part in distributed reference counting.
// It owns the components created on it and the lifetime machinery of all
// handles it holds. It is safe for concurrent use.
type Locality struct {
	id        core.LocalityID
	opts      options
	logger    *Logger
	state     *core.StateTracker
	authority *agas.Service

	ctrl       *resource.Controller
	cache      *cache.ShardedLRU
	client     *agas.LocalClient
	dispatcher *agas.Dispatcher
	protocol   *credit.Protocol
	rt         *handle.Runtime

	mu         sync.RWMutex
	components map[gid.GID]any
	support    gid.GID

	destroyed atomic.Int64
}

// New creates a locality attached to authority. The locality must be
// started before components can be created.
func New(authority *agas.Service, optFns ...Option) (*Locality, error) {
	if authority == nil {
		return nil, core.NewError(core.ErrBadParameter, "gidref.New", "nil authority")
	}
	opts := applyOptions(optFns)
	if opts.localityID == core.InvalidLocality {
		return nil, core.NewError(core.ErrBadParameter, "gidref.New", "invalid locality id")
	}

	log2 := uint8(bits.TrailingZeros64(uint64(authority.InitialCredit())))
	if opts.initialLog2 != 0 && opts.initialLog2 != log2 {
		return nil, core.NewError(core.ErrBadParameter, "gidref.New",
			fmt.Sprintf("initial credit log2 %d does not match the authority's %d", opts.initialLog2, log2))
	}

	l := &Locality{
		id:         opts.localityID,
		opts:       opts,
		logger:     opts.logger.WithLocality(opts.localityID),
		state:      core.NewStateTracker(core.StateInitialized),
		authority:  authority,
		components: make(map[gid.GID]any),
	}

	l.ctrl = resource.NewController(resource.Config{
		MemoryLimitBytes: opts.cacheMemory,
		MaxInflight:      opts.maxInflight,
		RequestsPerSec:   opts.decrementRate,
	})

	var addressCache cache.AddressCache
	if opts.cacheCapacity > 0 {
		l.cache = cache.NewShardedLRU(opts.cacheCapacity, l.ctrl)
		addressCache = l.cache
	}

	var err error
	l.client, err = agas.NewLocalClient(authority, l.id, addressCache)
	if err != nil {
		return nil, err
	}

	l.dispatcher = agas.NewDispatcher(l.client, func(o *agas.DispatcherOptions) {
		o.Controller = l.ctrl
		o.Logger = l.logger.Logger
		o.Observer = opts.observer
	})

	l.protocol, err = credit.New(l.client, func(o *credit.Options) {
		o.InitialLog2 = log2
		o.Venter = l.dispatcher
		o.Logger = l.logger.Logger
		o.Observer = opts.observer
	})
	if err != nil {
		return nil, err
	}

	l.rt = &handle.Runtime{
		Locality:   l.id,
		Client:     l.client,
		Destroyer:  l,
		State:      l.state,
		Protocol:   l.protocol,
		Dispatcher: l.dispatcher,
		Logger:     l.logger.Logger,
		Observer:   opts.observer,
		OnError:    opts.onError,
	}
	return l, nil
}

// ID returns the locality id.
func (l *Locality) ID() core.LocalityID { return l.id }

// State returns the lifecycle state.
func (l *Locality) State() core.State { return l.state.State() }

// Runtime returns the handle runtime of this locality.
func (l *Locality) Runtime() *handle.Runtime { return l.rt }

// Client returns the locality's address service client.
func (l *Locality) Client() *agas.LocalClient { return l.client }

// Start registers the locality with the authority and binds its runtime
// support component.
func (l *Locality) Start(ctx context.Context) error {
	if cur := l.state.State(); cur != core.StateInitialized || !l.state.Advance(core.StateStarting) {
		return &ErrStateTransition{From: cur, To: core.StateStarting}
	}

	if err := l.authority.RegisterLocality(l.id, l); err != nil {
		l.state.Set(core.StateInitialized)
		return translateError(err)
	}

	support, err := l.client.NewGID(ctx, core.ComponentRuntimeSupport)
	if err == nil {
		err = l.client.Bind(ctx, support, core.Address{Locality: l.id, Type: core.ComponentRuntimeSupport})
	}
	if err != nil {
		l.authority.UnregisterLocality(l.id)
		l.state.Set(core.StateInitialized)
		return translateError(err)
	}

	l.mu.Lock()
	l.support = support
	l.components[support] = l
	l.mu.Unlock()

	l.state.Advance(core.StateRunning)
	l.logger.InfoContext(ctx, "locality started", "runtime_support", support)
	return nil
}

// Suspend stops the creation of components and the encoding of parcels.
// Lifetime management of existing handles continues.
func (l *Locality) Suspend() error {
	if cur := l.state.State(); cur != core.StateRunning || !l.state.Advance(core.StateSuspended) {
		return &ErrStateTransition{From: cur, To: core.StateSuspended}
	}
	return nil
}

// Resume returns a suspended locality to the running state.
func (l *Locality) Resume() error {
	if cur := l.state.State(); cur != core.StateSuspended || !l.state.Advance(core.StateRunning) {
		return &ErrStateTransition{From: cur, To: core.StateRunning}
	}
	return nil
}

func (l *Locality) checkRunning() error {
	if s := l.state.State(); s != core.StateRunning {
		return fmt.Errorf("%w: %v", ErrNotRunning, s)
	}
	return nil
}

// NewComponent registers v as a new component of type t and returns a
// managed handle holding the initial credit.
func (l *Locality) NewComponent(ctx context.Context, t core.ComponentType, v any) (handle.ID, error) {
	return l.NewComponentMode(ctx, t, v, handle.Managed)
}

// NewComponentMode is NewComponent with an explicit management mode.
func (l *Locality) NewComponentMode(ctx context.Context, t core.ComponentType, v any, mode handle.Management) (handle.ID, error) {
	if err := l.checkRunning(); err != nil {
		return handle.ID{}, err
	}
	if t == core.ComponentRuntimeSupport || !mode.Valid() {
		return handle.ID{}, core.NewError(core.ErrBadParameter, "gidref.NewComponent",
			fmt.Sprintf("cannot create component of type %d with mode %v", t, mode))
	}

	g, err := l.client.NewGID(ctx, t)
	if err != nil {
		l.logger.LogCreate(ctx, gid.Invalid, t, err)
		return handle.ID{}, translateError(err)
	}

	l.mu.Lock()
	l.components[g] = v
	l.mu.Unlock()

	if err := l.client.Bind(ctx, g, core.Address{Locality: l.id, Type: t, LVA: g.Lsb}); err != nil {
		l.mu.Lock()
		delete(l.components, g)
		l.mu.Unlock()
		l.logger.LogCreate(ctx, g, t, err)
		return handle.ID{}, translateError(err)
	}

	l.logger.LogCreate(ctx, g, t, nil)
	if mode == handle.Unmanaged {
		return handle.New(l.rt, g, mode), nil
	}
	return handle.New(l.rt, l.protocol.Assign(g), mode), nil
}

// Component returns the value of a component living on this locality.
func (l *Locality) Component(g gid.GID) (any, error) {
	if loc := g.LocalityID(); loc != l.id {
		return nil, &ErrWrongLocality{Expected: l.id, Actual: loc}
	}

	l.mu.RLock()
	defer l.mu.RUnlock()
	v, ok := l.components[g.Stripped()]
	if !ok {
		return nil, fmt.Errorf("%w: %v", ErrNotFound, g.Stripped())
	}
	return v, nil
}

// Resolve returns the address of any component known to the authority.
func (l *Locality) Resolve(ctx context.Context, g gid.GID) (core.Address, error) {
	addr, err := l.client.Resolve(ctx, g)
	return addr, translateError(err)
}

// RuntimeSupport returns an unmanaged handle to this locality's runtime
// support component.
func (l *Locality) RuntimeSupport() handle.ID {
	l.mu.RLock()
	support := l.support
	l.mu.RUnlock()
	return handle.New(l.rt, support, handle.Unmanaged)
}

// Destroy tears down a component of this locality. It implements
// agas.Destroyer and is called either by the authority once the global
// credit is exhausted or by a handle's last release on the local fast path.
func (l *Locality) Destroy(ctx context.Context, id gid.GID, addr core.Address) (err error) {
	key := id.Stripped()
	defer func() { l.logger.LogDestroy(ctx, key, err) }()

	if addr.Locality != l.id {
		return &ErrWrongLocality{Expected: l.id, Actual: addr.Locality}
	}
	if core.TearingDown(l.state) {
		return core.NewError(core.ErrInvalidStatus, "gidref.Destroy", fmt.Sprintf("locality %d is stopping", l.id))
	}

	l.mu.Lock()
	v, ok := l.components[key]
	if ok && key == l.support {
		ok = false
	}
	if ok {
		delete(l.components, key)
	}
	l.mu.Unlock()

	if !ok {
		return fmt.Errorf("%w: %v", ErrNotFound, key)
	}

	// the authority path has already removed the binding
	if _, err := l.client.Unbind(ctx, key); err != nil && !errors.Is(err, agas.ErrUnknownID) {
		l.logger.WarnContext(ctx, "unbind failed", "gid", key, "error", err)
	}
	l.destroyed.Add(1)

	if c, ok := v.(io.Closer); ok {
		if err := c.Close(); err != nil {
			return fmt.Errorf("close component %v: %w", key, err)
		}
	}
	return nil
}

// Release drops one reference to id and logs the final release.
func (l *Locality) Release(ctx context.Context, id handle.ID) handle.ReleaseResult {
	g := id.GID()
	res := id.ReleaseContext(ctx)
	if res.Final() {
		l.logger.LogRelease(ctx, g, res)
	}
	return res
}

// Encode serializes p for sending. Credit of the managed handles in p is
// split once per distinct handle.
func (l *Locality) Encode(ctx context.Context, p *wire.Parcel) ([]byte, error) {
	if err := l.checkRunning(); err != nil {
		return nil, err
	}
	p.Source = l.id

	data, err := wire.EncodeParcel(ctx, p, func(o *wire.EncodeOptions) {
		o.Compression = l.opts.compression
		o.Observer = l.opts.observer
	})
	l.logger.LogEncode(ctx, p.Action, len(p.IDs), len(data), err)
	return data, translateError(err)
}

// Decode parses a parcel. The caller owns one reference to each handle in
// the result.
func (l *Locality) Decode(data []byte) (*wire.Parcel, error) {
	p, err := wire.DecodeParcel(l.rt, data)
	return p, translateError(err)
}

// Checkpoint serializes handles for persistence. Only unmanaged handles
// can be checkpointed.
func (l *Locality) Checkpoint(ctx context.Context, ids ...handle.ID) ([]byte, error) {
	ar := wire.NewOutputArchive(func(o *wire.OutputOptions) {
		o.Checkpointing = true
		o.Observer = l.opts.observer
	})
	for _, id := range ids {
		if err := ar.SaveID(ctx, id); err != nil {
			ar.Finish(err)
			return nil, translateError(err)
		}
	}
	return ar.Finish(nil), nil
}

// Restore decodes handles written by Checkpoint.
func (l *Locality) Restore(data []byte) ([]handle.ID, error) {
	if len(data)%wire.IDSize != 0 {
		return nil, translateError(wire.ErrTruncated)
	}

	ar := wire.NewInputArchive(l.rt, data)
	ids := make([]handle.ID, 0, len(data)/wire.IDSize)
	for ar.Remaining() > 0 {
		id, err := ar.LoadID()
		if err != nil {
			for _, loaded := range ids {
				loaded.Release()
			}
			return nil, translateError(err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// Shutdown drains background credit traffic and stops lifetime
// management. Releases after Shutdown free local memory only.
func (l *Locality) Shutdown(ctx context.Context) error {
	if l.state.State() == core.StateStopped {
		return nil
	}
	started := l.state.State() >= core.StateRunning

	if started {
		l.state.Advance(core.StatePreShutdown)
		if err := l.dispatcher.Wait(ctx); err != nil {
			l.logger.WarnContext(ctx, "shutdown drain interrupted", "error", err)
		}
	}

	l.state.Advance(core.StateStopping)
	pending := l.dispatcher.Pending()
	err := l.dispatcher.Close(ctx)

	l.state.Advance(core.StateTerminating)
	if started {
		l.authority.UnregisterLocality(l.id)
		l.mu.RLock()
		support := l.support
		l.mu.RUnlock()
		if _, uerr := l.client.Unbind(ctx, support); uerr != nil {
			l.logger.DebugContext(ctx, "runtime support already unbound", "error", uerr)
		}
	}
	l.state.Advance(core.StateStopped)

	l.logger.LogShutdown(ctx, pending, err)
	return err
}

// InvalidateLocality drops every cached address that points at loc, e.g.
// after loc has shut down. It returns the number of dropped entries.
func (l *Locality) InvalidateLocality(loc core.LocalityID) int {
	if l.cache == nil {
		return 0
	}
	return l.cache.Invalidate(func(_ gid.GID, a core.Address) bool { return a.Locality == loc })
}

// LocalityStats is a snapshot of a locality.
type LocalityStats struct {
	ID          core.LocalityID `json:"id"`
	State       string          `json:"state"`
	Components  int             `json:"components"`
	Destroyed   int64           `json:"destroyed"`
	Pending     int64           `json:"pending_decrements"`
	CacheHits   int64           `json:"cache_hits"`
	CacheMisses int64           `json:"cache_misses"`
	Resources   resource.Stats  `json:"resources"`
}

// Stats returns a snapshot of the locality.
func (l *Locality) Stats() LocalityStats {
	l.mu.RLock()
	n := len(l.components)
	l.mu.RUnlock()

	st := LocalityStats{
		ID:         l.id,
		State:      l.state.State().String(),
		Components: n,
		Destroyed:  l.destroyed.Load(),
		Pending:    l.dispatcher.Pending(),
		Resources:  l.ctrl.Stats(),
	}
	if l.cache != nil {
		st.CacheHits, st.CacheMisses = l.cache.Stats()
	}
	return st
}
