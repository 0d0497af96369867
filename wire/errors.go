package wire

import "errors"

var (
	// ErrTruncated is returned when the input ends inside a record.
	ErrTruncated = errors.New("wire: truncated input")
	// ErrBadMagic is returned when a parcel does not start with the parcel
	// magic.
	ErrBadMagic = errors.New("wire: bad magic")
	// ErrTooLarge is returned for a parcel body above MaxBodySize.
	ErrTooLarge = errors.New("wire: body too large")
)
