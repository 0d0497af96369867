package core

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidStatus is returned when an operation is not allowed in the
	// current state, e.g. checkpointing a managed handle.
	ErrInvalidStatus = errors.New("invalid status")

	// ErrBadParameter is returned for malformed arguments to address
	// service calls. It is surfaced and never retried.
	ErrBadParameter = errors.New("bad parameter")

	// ErrVersionMismatch is returned when decoding data written by an
	// incompatible peer, e.g. an unknown management mode.
	ErrVersionMismatch = errors.New("version mismatch")

	// ErrUnexpectedFailure reports a lifetime-management failure in a live
	// runtime. During shutdown the same failures are expected and dropped.
	ErrUnexpectedFailure = errors.New("unexpected failure")
)

// Error decorates one of the sentinel errors with the failing operation.
//
// The sentinel can be matched with errors.Is; the original underlying error
// (if any) can be accessed via errors.Unwrap.
type Error struct {
	Op    string
	Kind  error
	Msg   string
	cause error
}

// NewError builds an *Error of the given kind.
func NewError(kind error, op, msg string) *Error {
	return &Error{Op: op, Kind: kind, Msg: msg}
}

// WrapError builds an *Error of the given kind caused by err.
func WrapError(kind error, op string, err error) *Error {
	return &Error{Op: op, Kind: kind, cause: err}
}

func (e *Error) Error() string {
	switch {
	case e.cause != nil && e.Msg != "":
		return fmt.Sprintf("%s: %v: %s: %v", e.Op, e.Kind, e.Msg, e.cause)
	case e.cause != nil:
		return fmt.Sprintf("%s: %v: %v", e.Op, e.Kind, e.cause)
	case e.Msg != "":
		return fmt.Sprintf("%s: %v: %s", e.Op, e.Kind, e.Msg)
	default:
		return fmt.Sprintf("%s: %v", e.Op, e.Kind)
	}
}

// Is matches the sentinel kind.
func (e *Error) Is(target error) bool { return target == e.Kind }

func (e *Error) Unwrap() error { return e.cause }
