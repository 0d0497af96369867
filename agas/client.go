package agas

import (
	"context"
	"errors"
	"fmt"

	"github.com/hupe1980/gidref/core"
	"github.com/hupe1980/gidref/gid"
)

var (
	// ErrUnknownID is returned when an identifier has no binding.
	ErrUnknownID = errors.New("agas: unknown id")
	// ErrAlreadyBound is returned when binding an identifier twice.
	ErrAlreadyBound = errors.New("agas: id already bound")
)

// Client is the part of the address service the reference-counting core
// talks to.
type Client interface {
	// IncrementCredit adds credit to the global count of id and returns
	// the new global count.
	IncrementCredit(ctx context.Context, id gid.GID, credit int64) (int64, error)

	// DecrementCredit removes credit from the global count of id. Reaching
	// zero destroys the component.
	DecrementCredit(ctx context.Context, id gid.GID, credit int64) error

	// ResolveCached looks id up in the locality's resolution cache. It
	// never blocks and never talks to the service.
	ResolveCached(id gid.GID) (core.Address, bool)
}

// Destroyer tears down a component on its home locality.
type Destroyer interface {
	Destroy(ctx context.Context, id gid.GID, addr core.Address) error
}

// DestroyerFunc adapts a function to Destroyer.
type DestroyerFunc func(ctx context.Context, id gid.GID, addr core.Address) error

// Destroy implements Destroyer.
func (f DestroyerFunc) Destroy(ctx context.Context, id gid.GID, addr core.Address) error {
	return f(ctx, id, addr)
}

func validateCredit(op string, id gid.GID, credit int64) error {
	if !id.IsValid() {
		return core.NewError(core.ErrBadParameter, op, "invalid id")
	}
	if credit <= 0 {
		return core.NewError(core.ErrBadParameter, op, fmt.Sprintf("credit %d must be positive", credit))
	}
	return nil
}
