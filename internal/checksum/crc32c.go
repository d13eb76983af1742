// Package checksum implements the masked CRC32C used to protect every
// block trailer written to a table file.
package checksum

import "hash/crc32"

var crc32cTable = crc32.MakeTable(crc32.Castagnoli)

// maskDelta is added after rotating the raw CRC during masking.
const maskDelta = 0xa282ead8

// Value computes the CRC32C (Castagnoli) checksum of data.
func Value(data []byte) uint32 {
	return crc32.Checksum(data, crc32cTable)
}

// Mask returns a masked representation of crc. CRCs that are themselves
// stored inside the data they protect should be masked before storage, so
// that re-computing the CRC over data containing an embedded CRC does not
// produce degenerate results.
func Mask(crc uint32) uint32 {
	return ((crc >> 15) | (crc << 17)) + maskDelta
}

// Unmask inverts Mask.
func Unmask(maskedCRC uint32) uint32 {
	rot := maskedCRC - maskDelta
	return (rot >> 17) | (rot << 15)
}

// MaskedValue computes the CRC32C of data and masks it in one call.
func MaskedValue(data []byte) uint32 {
	return Mask(Value(data))
}
