package wire

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"

	"github.com/google/uuid"

	"github.com/hupe1980/gidref/core"
	"github.com/hupe1980/gidref/handle"
	"github.com/hupe1980/gidref/metrics"
)

// Parcel format:
//
//	magic "GIDP" | version u8 | compression u8 | id [16] |
//	source u32 | destination u32 | action len uvarint | action |
//	body block (see compressBlock)
//
// body: handle count uvarint | handles (IDSize each) | payload
var parcelMagic = [4]byte{'G', 'I', 'D', 'P'}

// ParcelVersion is the envelope version written by this package.
const ParcelVersion = 1

// Parcel is a message carrying handles to a remote action.
type Parcel struct {
	ID          uuid.UUID
	Source      core.LocalityID
	Destination core.LocalityID
	Action      string
	IDs         []handle.ID
	Payload     []byte
}

// EncodeOptions configures EncodeParcel.
type EncodeOptions struct {
	Compression Compression
	Observer    metrics.Observer
}

// EncodeParcel serializes p. Credit of managed handles is split (or moved)
// exactly once per distinct handle. A zero p.ID is replaced by a random one.
func EncodeParcel(ctx context.Context, p *Parcel, optFns ...func(o *EncodeOptions)) ([]byte, error) {
	var opts EncodeOptions
	for _, fn := range optFns {
		fn(&opts)
	}

	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}

	ar := NewOutputArchive(func(o *OutputOptions) { o.Observer = opts.Observer })
	err := encodeHandles(ctx, ar, p.IDs)
	ar.Finish(err)
	if err != nil {
		ar.Abort()
		return nil, fmt.Errorf("encode parcel %s: %w", p.ID, err)
	}

	body := binary.AppendUvarint(nil, uint64(len(p.IDs)))
	body = append(body, ar.Bytes()...)
	body = append(body, p.Payload...)

	block, err := compressBlock(body, opts.Compression)
	if err != nil {
		ar.Abort()
		return nil, fmt.Errorf("encode parcel %s: %w", p.ID, err)
	}

	out := make([]byte, 0, 4+2+16+8+binary.MaxVarintLen64+len(p.Action)+len(block))
	out = append(out, parcelMagic[:]...)
	out = append(out, ParcelVersion, byte(opts.Compression))
	out = append(out, p.ID[:]...)
	out = binary.LittleEndian.AppendUint32(out, uint32(p.Source))
	out = binary.LittleEndian.AppendUint32(out, uint32(p.Destination))
	out = binary.AppendUvarint(out, uint64(len(p.Action)))
	out = append(out, p.Action...)
	out = append(out, block...)
	return out, nil
}

func encodeHandles(ctx context.Context, ar *OutputArchive, ids []handle.ID) error {
	for _, id := range ids {
		if err := ar.Preprocess(ctx, id); err != nil {
			return err
		}
	}
	if err := ar.Await(); err != nil {
		return err
	}
	for _, id := range ids {
		if err := ar.SaveID(ctx, id); err != nil {
			return err
		}
	}
	return nil
}

// DecodeParcel parses a parcel. Handles are created in rt; the caller owns
// one reference to each.
func DecodeParcel(rt *handle.Runtime, data []byte) (*Parcel, error) {
	if len(data) < len(parcelMagic) {
		return nil, ErrTruncated
	}
	if !bytes.Equal(data[:len(parcelMagic)], parcelMagic[:]) {
		return nil, ErrBadMagic
	}
	data = data[len(parcelMagic):]

	const fixed = 2 + 16 + 8
	if len(data) < fixed {
		return nil, ErrTruncated
	}
	if v := data[0]; v != ParcelVersion {
		return nil, core.NewError(core.ErrVersionMismatch, "wire.DecodeParcel", fmt.Sprintf("parcel version %d", v))
	}
	comp := Compression(data[1])

	p := &Parcel{}
	copy(p.ID[:], data[2:18])
	p.Source = core.LocalityID(binary.LittleEndian.Uint32(data[18:]))
	p.Destination = core.LocalityID(binary.LittleEndian.Uint32(data[22:]))
	data = data[fixed:]

	n, k := binary.Uvarint(data)
	if k <= 0 || uint64(len(data)-k) < n {
		return nil, ErrTruncated
	}
	p.Action = string(data[k : k+int(n)])
	data = data[k+int(n):]

	body, err := decompressBlock(data, comp)
	if err != nil {
		return nil, fmt.Errorf("decode parcel %s: %w", p.ID, err)
	}

	count, k := binary.Uvarint(body)
	if k <= 0 || count > uint64(len(body)-k)/IDSize {
		return nil, ErrTruncated
	}
	ar := NewInputArchive(rt, body[k:])
	p.IDs = make([]handle.ID, 0, count)
	for range count {
		id, err := ar.LoadID()
		if err != nil {
			for _, loaded := range p.IDs {
				loaded.Release()
			}
			return nil, fmt.Errorf("decode parcel %s: %w", p.ID, err)
		}
		p.IDs = append(p.IDs, id)
	}
	p.Payload = body[len(body)-ar.Remaining():]
	return p, nil
}
