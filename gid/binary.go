package gid

import (
	"encoding/binary"
	"fmt"
)

// Size is the encoded size of a GID in bytes.
const Size = 16

// AppendBinary appends the 16-byte little-endian encoding of g (most
// significant word first) to b. The raw value is written; decoding drops
// the lock bit.
func (g GID) AppendBinary(b []byte) ([]byte, error) {
	b = binary.LittleEndian.AppendUint64(b, g.Msb)
	b = binary.LittleEndian.AppendUint64(b, g.Lsb)
	return b, nil
}

// MarshalBinary implements encoding.BinaryMarshaler.
func (g GID) MarshalBinary() ([]byte, error) {
	return g.AppendBinary(make([]byte, 0, Size))
}

// UnmarshalBinary implements encoding.BinaryUnmarshaler.
func (g *GID) UnmarshalBinary(b []byte) error {
	v, err := Decode(b)
	if err != nil {
		return err
	}
	*g = v
	return nil
}

// Decode reads a GID from the first Size bytes of b. Receivers never see the
// sender's lock state: the lock bit is cleared unconditionally.
func Decode(b []byte) (GID, error) {
	if len(b) < Size {
		return Invalid, fmt.Errorf("%w: need %d bytes, got %d", ErrMalformed, Size, len(b))
	}
	return New(binary.LittleEndian.Uint64(b[0:]), binary.LittleEndian.Uint64(b[8:])), nil
}
