package core

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestError(t *testing.T) {
	cause := errors.New("connection reset")

	tests := []struct {
		name string
		err  *Error
		want string
	}{
		{"kind only", NewError(ErrBadParameter, "agas.Bind", ""), "agas.Bind: bad parameter"},
		{"message", NewError(ErrInvalidStatus, "wire.SaveID", "managed handle"), "wire.SaveID: invalid status: managed handle"},
		{"cause", WrapError(ErrUnexpectedFailure, "handle.Release", cause), "handle.Release: unexpected failure: connection reset"},
		{"message and cause", &Error{Op: "op", Kind: ErrVersionMismatch, Msg: "mode 7", cause: cause}, "op: version mismatch: mode 7: connection reset"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.err.Error())
		})
	}
}

func TestError_Is(t *testing.T) {
	cause := NewError(ErrInvalidStatus, "agas.DecrementCredit", "destroyed")
	err := fmt.Errorf("dispatch: %w", WrapError(ErrUnexpectedFailure, "handle.decrement", cause))

	assert.ErrorIs(t, err, ErrUnexpectedFailure)
	assert.ErrorIs(t, err, ErrInvalidStatus)
	assert.NotErrorIs(t, err, ErrBadParameter)

	var e *Error
	assert.ErrorAs(t, err, &e)
	assert.Equal(t, "handle.decrement", e.Op)
	assert.Same(t, cause, errors.Unwrap(e))
}
