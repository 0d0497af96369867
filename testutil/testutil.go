package testutil

import (
	"math/rand/v2"
	"sync"

	"github.com/hupe1980/gidref/core"
	"github.com/hupe1980/gidref/gid"
)

// RNG produces reproducible identifiers for tests. It is safe for
// concurrent use.
type RNG struct {
	mu   sync.Mutex
	seed uint64
	src  *rand.PCG
	rand *rand.Rand
}

// NewRNG returns a generator seeded with seed.
func NewRNG(seed uint64) *RNG {
	src := rand.NewPCG(seed, seed)
	return &RNG{seed: seed, src: src, rand: rand.New(src)}
}

// Reset rewinds the generator to its seed.
func (r *RNG) Reset() {
	r.mu.Lock()
	r.src.Seed(r.seed, r.seed)
	r.mu.Unlock()
}

// Seed returns the seed the generator started from.
func (r *RNG) Seed() uint64 { return r.seed }

// IntN returns a number in [0,n).
func (r *RNG) IntN(n int) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rand.IntN(n)
}

// GID returns a random identifier of type t on locality loc. The sequence
// part is never zero; no credit is attached.
func (r *RNG) GID(loc core.LocalityID, t core.ComponentType) gid.GID {
	r.mu.Lock()
	defer r.mu.Unlock()
	return gid.Make(loc, t, r.rand.Uint64()|1)
}

// AnyGID returns a random identifier on one of the first localities
// localities, with a random non-zero component type.
func (r *RNG) AnyGID(localities int) gid.GID {
	r.mu.Lock()
	loc := core.LocalityID(r.rand.IntN(localities))
	t := core.ComponentType(r.rand.Uint32N(uint32(core.MaxComponentType)) + 1)
	r.mu.Unlock()
	return r.GID(loc, t)
}

// WithRandomCredit returns g holding a random valid credit, split flag
// included at random.
func (r *RNG) WithRandomCredit(g gid.GID) gid.GID {
	r.mu.Lock()
	defer r.mu.Unlock()
	g = g.WithLog2Credit(uint8(r.rand.UintN(gid.MaxLog2Credit + 1)))
	if r.rand.IntN(2) == 1 {
		g = g.MarkSplit()
	}
	return g
}

// RawGID returns a GID with random words, internal bits included, but
// never the lock bit.
func (r *RNG) RawGID() gid.GID {
	r.mu.Lock()
	defer r.mu.Unlock()
	return gid.New(r.rand.Uint64(), r.rand.Uint64())
}
