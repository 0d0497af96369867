package gidref

import (
	"errors"
	"fmt"

	"github.com/hupe1980/gidref/agas"
	"github.com/hupe1980/gidref/agas/ddb"
	"github.com/hupe1980/gidref/core"
	"github.com/hupe1980/gidref/gid"
	"github.com/hupe1980/gidref/wire"
)

var (
	// ErrInvalidStatus is returned when an operation is not allowed in the
	// current state.
	ErrInvalidStatus = core.ErrInvalidStatus
	// ErrBadParameter is returned for malformed arguments.
	ErrBadParameter = core.ErrBadParameter
	// ErrVersionMismatch is returned for data written by an incompatible
	// peer.
	ErrVersionMismatch = core.ErrVersionMismatch
	// ErrUnexpectedFailure reports a lifetime-management failure.
	ErrUnexpectedFailure = core.ErrUnexpectedFailure

	// ErrNotFound is returned when a component is not known.
	ErrNotFound = errors.New("component not found")
	// ErrNotRunning is returned when the locality is not running.
	ErrNotRunning = errors.New("locality not running")
)

// ErrWrongLocality indicates an operation on a component that lives
// elsewhere.
//
// The original underlying error (if any) can be accessed via errors.Unwrap.
type ErrWrongLocality struct {
	Expected core.LocalityID
	Actual   core.LocalityID
	cause    error
}

func (e *ErrWrongLocality) Error() string {
	return fmt.Sprintf("wrong locality: component lives on %d, not %d", e.Actual, e.Expected)
}

func (e *ErrWrongLocality) Unwrap() error { return e.cause }

// ErrStateTransition indicates a lifecycle call in the wrong state.
type ErrStateTransition struct {
	From core.State
	To   core.State
}

func (e *ErrStateTransition) Error() string {
	return fmt.Sprintf("invalid state transition: %v -> %v", e.From, e.To)
}

// Is matches ErrInvalidStatus.
func (e *ErrStateTransition) Is(target error) bool { return target == core.ErrInvalidStatus }

func translateError(err error) error {
	if err == nil {
		return nil
	}

	// Not found unification.
	if errors.Is(err, agas.ErrUnknownID) {
		return fmt.Errorf("%w: %w", ErrNotFound, err)
	}

	// Malformed input.
	if errors.Is(err, wire.ErrTruncated) || errors.Is(err, wire.ErrBadMagic) || errors.Is(err, wire.ErrTooLarge) || errors.Is(err, gid.ErrMalformed) {
		return fmt.Errorf("%w: %w", ErrBadParameter, err)
	}
	if errors.Is(err, agas.ErrAlreadyBound) {
		return fmt.Errorf("%w: %w", ErrBadParameter, err)
	}

	// Backend failures.
	if errors.Is(err, ddb.ErrConcurrentModification) || errors.Is(err, agas.ErrDispatcherClosed) {
		return fmt.Errorf("%w: %w", ErrUnexpectedFailure, err)
	}

	return err
}
