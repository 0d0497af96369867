package agas

import (
	"context"
	"fmt"
	"sync"

	"github.com/hupe1980/gidref/core"
	"github.com/hupe1980/gidref/gid"
	"github.com/hupe1980/gidref/internal/cache"
)

// allocationBatch is the number of sequence numbers a LocalClient reserves
// per round trip to the authority.
const allocationBatch = 1024

// LocalClient is one locality's client of a Service. Resolutions are kept in
// an address cache; ResolveCached only ever consults that cache.
type LocalClient struct {
	svc   *Service
	loc   core.LocalityID
	cache cache.AddressCache

	allocMu sync.Mutex
	nextSeq uint64
	endSeq  uint64 // exclusive
}

// NewLocalClient creates the client of locality loc. A nil addressCache
// disables caching, which also disables the local destruction fast path.
func NewLocalClient(svc *Service, loc core.LocalityID, addressCache cache.AddressCache) (*LocalClient, error) {
	if svc == nil || loc == core.InvalidLocality {
		return nil, core.NewError(core.ErrBadParameter, "agas.NewLocalClient", "nil service or invalid locality")
	}
	return &LocalClient{svc: svc, loc: loc, cache: addressCache}, nil
}

// Locality returns the id of the locality this client serves.
func (c *LocalClient) Locality() core.LocalityID { return c.loc }

// Service returns the authority behind the client.
func (c *LocalClient) Service() *Service { return c.svc }

// IncrementCredit implements Client.
func (c *LocalClient) IncrementCredit(ctx context.Context, id gid.GID, credit int64) (int64, error) {
	return c.svc.IncrementCredit(ctx, id, credit)
}

// DecrementCredit implements Client.
func (c *LocalClient) DecrementCredit(ctx context.Context, id gid.GID, credit int64) error {
	return c.svc.DecrementCredit(ctx, id, credit)
}

// ResolveCached implements Client.
func (c *LocalClient) ResolveCached(id gid.GID) (core.Address, bool) {
	if c.cache == nil {
		return core.Address{}, false
	}
	return c.cache.Get(id)
}

// Resolve returns the address of id, asking the authority on a cache miss.
func (c *LocalClient) Resolve(ctx context.Context, id gid.GID) (core.Address, error) {
	if addr, ok := c.ResolveCached(id); ok {
		return addr, nil
	}
	addr, err := c.svc.Resolve(ctx, id)
	if err != nil {
		return core.Address{}, err
	}
	if c.cache != nil {
		c.cache.Set(id, addr)
	}
	return addr, nil
}

// Bind registers addr for id with the authority and caches it.
func (c *LocalClient) Bind(ctx context.Context, id gid.GID, addr core.Address) error {
	if err := c.svc.Bind(ctx, id, addr); err != nil {
		return err
	}
	if c.cache != nil {
		c.cache.Set(id, addr)
	}
	return nil
}

// Unbind removes the binding of id from the authority and the cache.
func (c *LocalClient) Unbind(ctx context.Context, id gid.GID) (core.Address, error) {
	if c.cache != nil {
		c.cache.Delete(id)
	}
	return c.svc.Unbind(ctx, id)
}

// Forget drops id from the cache without contacting the authority.
func (c *LocalClient) Forget(id gid.GID) {
	if c.cache != nil {
		c.cache.Delete(id)
	}
}

// NewGID allocates a fresh identifier for a component of type t living on
// this locality. The returned GID carries no credit.
func (c *LocalClient) NewGID(ctx context.Context, t core.ComponentType) (gid.GID, error) {
	if t == core.ComponentInvalid || t > core.MaxComponentType {
		return gid.Invalid, core.NewError(core.ErrBadParameter, "agas.NewGID", fmt.Sprintf("invalid component type %d", t))
	}

	c.allocMu.Lock()
	defer c.allocMu.Unlock()

	if c.nextSeq == c.endSeq {
		first, err := c.svc.Allocate(ctx, c.loc, allocationBatch)
		if err != nil {
			return gid.Invalid, err
		}
		c.nextSeq, c.endSeq = first, first+allocationBatch
	}

	base := gid.Make(c.loc, t, 0)
	id := gid.Offset(base, c.nextSeq)
	c.nextSeq++
	return id, nil
}

var _ Client = (*LocalClient)(nil)
