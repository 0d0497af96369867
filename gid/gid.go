package gid

import (
	"fmt"
	"math/bits"

	"github.com/hupe1980/gidref/core"
)

// GID is a global identifier.
type GID struct {
	Msb uint64
	Lsb uint64
}

// Invalid is the zero GID.
var Invalid = GID{}

// New returns the GID with the given raw words. The lock bit is cleared.
func New(msb, lsb uint64) GID {
	return GID{Msb: msb &^ LockMask, Lsb: lsb}
}

// Make builds a GID for a component of type t living on locality loc.
func Make(loc core.LocalityID, t core.ComponentType, lsb uint64) GID {
	return GID{Lsb: lsb}.WithLocality(loc).WithComponentType(t)
}

// IsValid reports whether g is not the invalid GID. The lock bit is ignored.
func (g GID) IsValid() bool {
	return g.Msb&^LockMask != 0 || g.Lsb != 0
}

// LocalityID returns the locality the identifier was created on.
func (g GID) LocalityID() core.LocalityID {
	v := g.Msb >> LocalityIDShift
	if v == 0 {
		return core.InvalidLocality
	}
	return core.LocalityID(v - 1)
}

// WithLocality returns g with the locality id replaced.
func (g GID) WithLocality(loc core.LocalityID) GID {
	var v uint64
	if loc != core.InvalidLocality {
		v = (uint64(loc) + 1) << LocalityIDShift
	}
	g.Msb = (g.Msb &^ LocalityIDMask) | v
	return g
}

// ComponentType returns the component type tag.
func (g GID) ComponentType() core.ComponentType {
	return core.ComponentType((g.Msb & ComponentTypeMask) >> ComponentTypeShift)
}

// WithComponentType returns g with the component type replaced. Types above
// core.MaxComponentType are truncated.
func (g GID) WithComponentType(t core.ComponentType) GID {
	g.Msb = (g.Msb &^ ComponentTypeMask) | ((uint64(t) & ComponentTypeBaseMask) << ComponentTypeShift)
	return g
}

// DynamicallyAssigned reports whether the id does not encode a local
// virtual address.
func (g GID) DynamicallyAssigned() bool { return g.Msb&DynamicallyAssignedMask != 0 }

// WithDynamicallyAssigned sets or clears the dynamically-assigned flag.
func (g GID) WithDynamicallyAssigned(v bool) GID { return g.withFlag(DynamicallyAssignedMask, v) }

// DontCache reports whether resolved addresses of g must not be cached.
func (g GID) DontCache() bool { return g.Msb&DontCacheMask != 0 }

// WithDontCache sets or clears the dont-cache flag.
func (g GID) WithDontCache(v bool) GID { return g.withFlag(DontCacheMask, v) }

// Migratable reports whether the referenced component may move.
func (g GID) Migratable() bool { return g.Msb&MigratableMask != 0 }

// WithMigratable sets or clears the migratable flag.
func (g GID) WithMigratable(v bool) GID { return g.withFlag(MigratableMask, v) }

// IsLocked reports whether the lock bit is set. Values obtained from a Cell
// or decoded from the wire never carry it.
func (g GID) IsLocked() bool { return g.Msb&LockMask != 0 }

// WithoutLock returns g with the lock bit cleared.
func (g GID) WithoutLock() GID {
	g.Msb &^= LockMask
	return g
}

func (g GID) withFlag(mask uint64, v bool) GID {
	if v {
		g.Msb |= mask
	} else {
		g.Msb &^= mask
	}
	return g
}

// HasCredits reports whether the credit field is valid.
func (g GID) HasCredits() bool { return g.Msb&HasCreditsMask != 0 }

// WasSplit reports whether a copy of this identifier ever left its
// locality-local status.
func (g GID) WasSplit() bool { return g.Msb&WasSplitMask != 0 }

// MarkSplit returns g with the split flag set.
func (g GID) MarkSplit() GID {
	g.Msb |= WasSplitMask
	return g
}

// Log2Credit returns the credit exponent. It is meaningless unless
// HasCredits is true.
func (g GID) Log2Credit() uint8 {
	return uint8((g.Msb & CreditMask) >> CreditShift)
}

// WithLog2Credit returns g holding a credit of 2^l and marks the credit as
// valid.
func (g GID) WithLog2Credit(l uint8) GID {
	if l > MaxLog2Credit {
		panic(fmt.Sprintf("gid: log2 credit %d out of range", l))
	}
	g.Msb = (g.Msb &^ CreditMask) | (uint64(l) << CreditShift) | HasCreditsMask
	return g
}

// Credit returns the credit held by g, 0 if it holds none.
func (g GID) Credit() int64 {
	if !g.HasCredits() {
		return 0
	}
	return int64(1) << g.Log2Credit()
}

// WithCredit returns g holding exactly c credits. c must be a power of two
// not exceeding 2^MaxLog2Credit; anything else would silently corrupt the
// distributed accounting, so it panics.
func (g GID) WithCredit(c int64) GID {
	if !IsValidCredit(c) {
		panic(fmt.Sprintf("gid: credit %d is not a power of two in [1, 2^%d]", c, MaxLog2Credit))
	}
	return g.WithLog2Credit(uint8(bits.TrailingZeros64(uint64(c))))
}

// IsValidCredit reports whether c can be stored in the credit field.
func IsValidCredit(c int64) bool {
	return c > 0 && c <= int64(1)<<MaxLog2Credit && c&(c-1) == 0
}

// StripCredits returns g without credit, validity and split information.
func (g GID) StripCredits() GID {
	g.Msb &^= CreditBitsMask
	return g
}

// Stripped returns the identity of g: all internal bits cleared. Two GIDs
// referring to the same component have equal stripped values.
func (g GID) Stripped() GID {
	g.Msb &^= InternalBitsMask
	return g
}

// Compare orders GIDs by their raw value, ignoring the lock bit.
func (g GID) Compare(o GID) int {
	a, b := g.Msb&^LockMask, o.Msb&^LockMask
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	case g.Lsb < o.Lsb:
		return -1
	case g.Lsb > o.Lsb:
		return 1
	default:
		return 0
	}
}

// Less reports whether g orders before o.
func (g GID) Less(o GID) bool { return g.Compare(o) < 0 }

// Equal reports whether g and o are equal, ignoring the lock bit.
func (g GID) Equal(o GID) bool { return g.Compare(o) == 0 }

// SameIdentity reports whether g and o refer to the same component.
func (g GID) SameIdentity(o GID) bool { return g.Stripped() == o.Stripped() }
