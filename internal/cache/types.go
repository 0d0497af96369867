package cache

import (
	"github.com/hupe1980/gidref/core"
	"github.com/hupe1980/gidref/gid"
)

// AddressCache resolves identities to addresses without a round trip.
// Implementations must be safe for concurrent use.
type AddressCache interface {
	// Get returns the cached address of id. ok=false if missing.
	Get(id gid.GID) (addr core.Address, ok bool)
	// Set caches the address of id.
	Set(id gid.GID, addr core.Address)
	// Delete removes id from the cache.
	Delete(id gid.GID)
	// Stats returns hit/miss statistics.
	Stats() (hits, misses int64)
}

// entrySize is the memory charged per cached entry: key, address and list
// bookkeeping.
const entrySize = 96

func key(id gid.GID) gid.GID { return id.Stripped() }
