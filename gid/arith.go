package gid

import (
	"fmt"
	"math/bits"
)

// Add returns lhs + rhs as a 128-bit sum of the raw values.
//
// It is meant for offsetting a base identifier by a range (rhs carries no
// locality and no internal bits). Under the gidref_debug build tag the
// operands are checked for that shape; production builds do not re-verify.
func Add(lhs, rhs GID) GID {
	lsb, carry := bits.Add64(lhs.Lsb, rhs.Lsb, 0)
	msb := lhs.Msb + rhs.Msb + carry

	if debugAsserts {
		if rhs.Msb&(InternalBitsMask|LocalityIDMask) != 0 || internalBits(msb) != internalBits(lhs.Msb) {
			panic(fmt.Sprintf("gid: Add used on incompatible operands %v + %v", lhs, rhs))
		}
	}

	return GID{Msb: msb, Lsb: lsb}
}

// Sub returns lhs - rhs as a 128-bit difference of the raw values.
func Sub(lhs, rhs GID) GID {
	lsb, borrow := bits.Sub64(lhs.Lsb, rhs.Lsb, 0)
	msb := lhs.Msb - rhs.Msb - borrow
	return GID{Msb: msb, Lsb: lsb}
}

// Offset returns base advanced by n in the least significant word,
// carrying into the most significant word.
func Offset(base GID, n uint64) GID {
	return Add(base, GID{Lsb: n})
}
