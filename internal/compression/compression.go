// Package compression implements the pluggable block compressor the
// table builder calls through: a small enum of codecs, each exposing a
// symmetric Compress/Decompress pair.
package compression

import (
	"bytes"
	"compress/flate"
	"fmt"
	"io"

	"github.com/golang/snappy"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"

	"github.com/duskhaven/sstable/internal/encoding"
)

// Type identifies the codec used to compress a block. It is stored as
// the first byte of every block trailer.
type Type uint8

const (
	None   Type = 0x0
	Snappy Type = 0x1
	Zlib   Type = 0x2
	LZ4    Type = 0x3
	Zstd   Type = 0x4
)

// String returns the human-readable name of t.
func (t Type) String() string {
	switch t {
	case None:
		return "None"
	case Snappy:
		return "Snappy"
	case Zlib:
		return "Zlib"
	case LZ4:
		return "LZ4"
	case Zstd:
		return "Zstd"
	default:
		return fmt.Sprintf("Unknown(%d)", t)
	}
}

// Compress compresses data with the codec named by t. LZ4 produces raw
// blocks with no embedded length, so its output is prefixed with a
// varint32 of the uncompressed length; every other codec's container
// already carries enough information to decompress without one.
func Compress(t Type, data []byte) ([]byte, error) {
	switch t {
	case None:
		return data, nil

	case Snappy:
		return snappy.Encode(nil, data), nil

	case Zlib:
		var buf bytes.Buffer
		w, err := flate.NewWriter(&buf, flate.BestSpeed)
		if err != nil {
			return nil, fmt.Errorf("compression: raw deflate writer: %w", err)
		}
		if _, err := w.Write(data); err != nil {
			return nil, fmt.Errorf("compression: raw deflate write: %w", err)
		}
		if err := w.Close(); err != nil {
			return nil, fmt.Errorf("compression: raw deflate close: %w", err)
		}
		return buf.Bytes(), nil

	case LZ4:
		return compressLZ4(data)

	case Zstd:
		return compressZstd(data)

	default:
		return nil, fmt.Errorf("compression: unsupported type %s", t)
	}
}

// Decompress reverses Compress.
func Decompress(t Type, data []byte) ([]byte, error) {
	switch t {
	case None:
		return data, nil

	case Snappy:
		return snappy.Decode(nil, data)

	case Zlib:
		return decompressRawDeflate(data)

	case LZ4:
		return decompressLZ4(data)

	case Zstd:
		return decompressZstd(data)

	default:
		return nil, fmt.Errorf("compression: unsupported type %s", t)
	}
}

func compressLZ4(data []byte) ([]byte, error) {
	dst := make([]byte, lz4.CompressBlockBound(len(data)))
	var ht [1 << 16]int
	n, err := lz4.CompressBlock(data, dst, ht[:])
	if err != nil {
		return nil, fmt.Errorf("compression: lz4 compress block: %w", err)
	}
	if n == 0 {
		// Incompressible input: lz4 reports this by returning 0.
		return nil, fmt.Errorf("compression: lz4 gave up on incompressible input")
	}
	out := encoding.AppendVarint32(nil, uint32(len(data)))
	return append(out, dst[:n]...), nil
}

func decompressLZ4(data []byte) ([]byte, error) {
	size, n, err := encoding.DecodeVarint32(data)
	if err != nil {
		return nil, fmt.Errorf("compression: lz4 length prefix: %w", err)
	}
	dst := make([]byte, size)
	written, err := lz4.UncompressBlock(data[n:], dst)
	if err != nil {
		return nil, fmt.Errorf("compression: lz4 uncompress block: %w", err)
	}
	return dst[:written], nil
}

func compressZstd(data []byte) ([]byte, error) {
	encoder, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, fmt.Errorf("compression: zstd encoder: %w", err)
	}
	defer encoder.Close()
	return encoder.EncodeAll(data, nil), nil
}

func decompressZstd(data []byte) ([]byte, error) {
	decoder, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("compression: zstd decoder: %w", err)
	}
	defer decoder.Close()
	return decoder.DecodeAll(data, nil)
}

func decompressRawDeflate(data []byte) ([]byte, error) {
	r := flate.NewReader(bytes.NewReader(data))
	defer func() { _ = r.Close() }()
	return io.ReadAll(r)
}
