package block

import (
	"errors"

	"github.com/duskhaven/sstable/internal/encoding"
)

// MaxVarint64Length is the maximum length of a varint64 encoding.
const MaxVarint64Length = 10

// ErrBadHandle is returned when a block handle cannot be decoded.
var ErrBadHandle = errors.New("block: bad block handle")

// Handle identifies the byte range of a block's payload within a table
// file: an offset and a size, both varint64-encoded.
type Handle struct {
	Offset uint64
	Size   uint64
}

// NullHandle is the zero handle, used for an absent optional block.
var NullHandle = Handle{}

// MaxEncodedLength is the largest number of bytes a Handle can occupy:
// two varint64s.
const MaxEncodedLength = 2 * MaxVarint64Length

// IsNull reports whether h is the zero handle.
func (h Handle) IsNull() bool {
	return h.Offset == 0 && h.Size == 0
}

// EncodeTo appends the encoding of h to dst and returns the extended slice.
func (h Handle) EncodeTo(dst []byte) []byte {
	dst = encoding.AppendVarint64(dst, h.Offset)
	dst = encoding.AppendVarint64(dst, h.Size)
	return dst
}

// EncodeToSlice encodes h into a freshly allocated slice.
func (h Handle) EncodeToSlice() []byte {
	return h.EncodeTo(nil)
}

// EncodedLength returns the number of bytes EncodeTo would append.
func (h Handle) EncodedLength() int {
	return encoding.VarintLength(h.Offset) + encoding.VarintLength(h.Size)
}

// DecodeHandle decodes a Handle from the front of data, returning the
// decoded handle and the unconsumed remainder.
func DecodeHandle(data []byte) (Handle, []byte, error) {
	var h Handle

	offset, n1, err := encoding.DecodeVarint64(data)
	if err != nil {
		return Handle{}, nil, ErrBadHandle
	}
	h.Offset = offset
	data = data[n1:]

	size, n2, err := encoding.DecodeVarint64(data)
	if err != nil {
		return Handle{}, nil, ErrBadHandle
	}
	h.Size = size
	data = data[n2:]

	return h, data, nil
}
