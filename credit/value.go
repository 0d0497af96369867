package credit

import (
	"github.com/hupe1980/gidref/core"
	"github.com/hupe1980/gidref/gid"
)

// SplitValue splits the credit of a detached GID value without touching
// any shared state. It returns the retained and the transmitted halves.
// A GID with a credit of one cannot be split without replenishment and
// yields ErrInvalidStatus; a GID without credit is returned unchanged.
func SplitValue(g gid.GID) (retained, sent gid.GID, err error) {
	if !g.HasCredits() {
		return g, g, nil
	}
	l := g.Log2Credit()
	if l == 0 {
		return g, gid.Invalid, core.NewError(core.ErrInvalidStatus, "credit.SplitValue", "credit exhausted")
	}
	half := g.WithLog2Credit(l - 1).MarkSplit()
	return half, half, nil
}

// Total returns the summed credit of the given identifiers. It is used to
// check conservation: splitting never changes the total.
func Total(ids ...gid.GID) int64 {
	var sum int64
	for _, g := range ids {
		sum += g.Credit()
	}
	return sum
}
