package block

import (
	"errors"

	"github.com/duskhaven/sstable/internal/encoding"
)

// TableMagicNumber identifies a finished table file. It sits in the last
// 8 bytes of the footer.
const TableMagicNumber uint64 = 0xdb4775248b80fb57

// EncodedFooterLength is the fixed size of an encoded Footer: two
// varint-encoded handles packed and zero-padded into 40 bytes, followed
// by the 8-byte magic number.
const EncodedFooterLength = 48

const footerPaddedHandlesLength = EncodedFooterLength - MagicNumberLength

// MagicNumberLength is the width, in bytes, of the trailing magic number.
const MagicNumberLength = 8

// BlockTrailerSize is the size of the 5-byte trailer appended after every
// block's payload: one compression-type byte followed by a little-endian
// masked CRC32C.
const BlockTrailerSize = 5

// ErrBadFooter is returned when a footer fails to decode: wrong length or
// bad magic number.
var ErrBadFooter = errors.New("block: bad footer")

// Footer is the fixed trailer written at the end of every table file.
type Footer struct {
	MetaIndexHandle Handle
	IndexHandle     Handle
}

// EncodeTo appends the 48-byte encoding of f to dst and returns the
// extended slice. The two handles are encoded back-to-back and the
// combined region is zero-padded out to 40 bytes before the magic number,
// matching the on-disk layout readers of this table format expect —
// each handle does not occupy its own fixed-width slot.
func (f Footer) EncodeTo(dst []byte) []byte {
	start := len(dst)
	dst = f.MetaIndexHandle.EncodeTo(dst)
	dst = f.IndexHandle.EncodeTo(dst)
	if pad := footerPaddedHandlesLength - (len(dst) - start); pad > 0 {
		dst = append(dst, make([]byte, pad)...)
	}
	dst = encoding.AppendFixed64(dst, TableMagicNumber)
	return dst
}

// EncodeToSlice encodes f into a freshly allocated EncodedFooterLength-byte
// slice.
func (f Footer) EncodeToSlice() []byte {
	buf := make([]byte, 0, EncodedFooterLength)
	return f.EncodeTo(buf)
}

// DecodeFooter decodes a Footer from the trailing EncodedFooterLength
// bytes of a table file. data must be exactly EncodedFooterLength bytes.
func DecodeFooter(data []byte) (Footer, error) {
	if len(data) != EncodedFooterLength {
		return Footer{}, ErrBadFooter
	}
	magic := encoding.DecodeFixed64(data[EncodedFooterLength-MagicNumberLength:])
	if magic != TableMagicNumber {
		return Footer{}, ErrBadFooter
	}

	handles := data[:footerPaddedHandlesLength]
	metaIndexHandle, rest, err := DecodeHandle(handles)
	if err != nil {
		return Footer{}, ErrBadFooter
	}
	indexHandle, _, err := DecodeHandle(rest)
	if err != nil {
		return Footer{}, ErrBadFooter
	}

	return Footer{MetaIndexHandle: metaIndexHandle, IndexHandle: indexHandle}, nil
}
