package wire

import (
	"encoding/binary"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Compression selects the parcel body filter.
type Compression uint8

const (
	// CompressionNone sends the body as is.
	CompressionNone Compression = 0
	// CompressionLZ4 uses LZ4 block compression (fast).
	CompressionLZ4 Compression = 1
	// CompressionZSTD uses ZSTD (better ratio).
	CompressionZSTD Compression = 2
)

// String returns the name of c.
func (c Compression) String() string {
	switch c {
	case CompressionNone:
		return "none"
	case CompressionLZ4:
		return "lz4"
	case CompressionZSTD:
		return "zstd"
	default:
		return fmt.Sprintf("compression(%d)", uint8(c))
	}
}

// ParseCompression parses "none", "lz4" or "zstd".
func ParseCompression(s string) (Compression, error) {
	switch strings.ToLower(s) {
	case "", "none":
		return CompressionNone, nil
	case "lz4":
		return CompressionLZ4, nil
	case "zstd":
		return CompressionZSTD, nil
	default:
		return CompressionNone, fmt.Errorf("wire: unknown compression %q", s)
	}
}

var (
	lz4Pool         = sync.Pool{New: func() any { return new(lz4.Compressor) }}
	zstdEncoderPool sync.Pool
	zstdDecoderPool sync.Pool
)

func getZstdEncoder() *zstd.Encoder {
	if v := zstdEncoderPool.Get(); v != nil {
		return v.(*zstd.Encoder)
	}
	enc, _ := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault), zstd.WithEncoderConcurrency(1))
	return enc
}

func getZstdDecoder() *zstd.Decoder {
	if v := zstdDecoderPool.Get(); v != nil {
		return v.(*zstd.Decoder)
	}
	dec, _ := zstd.NewReader(nil, zstd.WithDecoderConcurrency(1), zstd.WithDecoderMaxMemory(MaxBodySize))
	return dec
}

// MaxBodySize bounds the decoded body of a parcel.
const MaxBodySize = 64 << 20

// Bodies shorter than this are never compressed: a parcel carrying a few
// handles does not shrink.
const minCompressSize = 64

// Block format: raw size uvarint | packed size uvarint | data.
// A packed size of 0 means data is stored uncompressed.

// compressBlock compresses data into one block. Data that does not shrink
// by at least a tenth is stored uncompressed.
func compressBlock(data []byte, c Compression) ([]byte, error) {
	var packed []byte

	switch c {
	case CompressionNone:
	case CompressionLZ4:
		if len(data) < minCompressSize {
			break
		}
		buf := make([]byte, lz4.CompressBlockBound(len(data)))
		comp := lz4Pool.Get().(*lz4.Compressor)
		n, err := comp.CompressBlock(data, buf)
		lz4Pool.Put(comp)
		if err != nil {
			return nil, err
		}
		packed = buf[:n] // n == 0: incompressible
	case CompressionZSTD:
		if len(data) < minCompressSize {
			break
		}
		enc := getZstdEncoder()
		packed = enc.EncodeAll(data, nil)
		zstdEncoderPool.Put(enc)
	default:
		return nil, fmt.Errorf("wire: unknown compression %d", uint8(c))
	}

	out := make([]byte, 0, 2*binary.MaxVarintLen64+len(data))
	out = binary.AppendUvarint(out, uint64(len(data)))
	if len(packed) == 0 || len(packed)*10 > len(data)*9 {
		out = binary.AppendUvarint(out, 0)
		return append(out, data...), nil
	}
	out = binary.AppendUvarint(out, uint64(len(packed)))
	return append(out, packed...), nil
}

// decompressBlock reverses compressBlock.
func decompressBlock(data []byte, c Compression) ([]byte, error) {
	rawSize, k := binary.Uvarint(data)
	if k <= 0 {
		return nil, ErrTruncated
	}
	data = data[k:]
	packedSize, k := binary.Uvarint(data)
	if k <= 0 {
		return nil, ErrTruncated
	}
	data = data[k:]

	if rawSize > MaxBodySize {
		return nil, fmt.Errorf("wire: body of %d bytes exceeds %d: %w", rawSize, MaxBodySize, ErrTooLarge)
	}
	if packedSize == 0 {
		if uint64(len(data)) < rawSize {
			return nil, ErrTruncated
		}
		return data[:rawSize], nil
	}
	if uint64(len(data)) < packedSize {
		return nil, ErrTruncated
	}
	packed := data[:packedSize]

	switch c {
	case CompressionLZ4:
		out := make([]byte, rawSize)
		n, err := lz4.UncompressBlock(packed, out)
		if err != nil {
			return nil, err
		}
		if uint64(n) != rawSize {
			return nil, errors.New("wire: decompressed size mismatch")
		}
		return out, nil

	case CompressionZSTD:
		dec := getZstdDecoder()
		defer zstdDecoderPool.Put(dec)

		out, err := dec.DecodeAll(packed, make([]byte, 0, rawSize))
		if err != nil {
			return nil, err
		}
		if uint64(len(out)) != rawSize {
			return nil, errors.New("wire: decompressed size mismatch")
		}
		return out, nil

	default:
		return nil, fmt.Errorf("wire: compressed block with compression %v", c)
	}
}
