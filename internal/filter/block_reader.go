package filter

import (
	"errors"

	"github.com/duskhaven/sstable/internal/encoding"
)

// ErrCorrupt is returned when a filter block cannot be parsed.
var ErrCorrupt = errors.New("filter: corrupted filter block")

// BlockReader parses a filter block payload produced by BlockBuilder and
// answers MayContain queries keyed by data-block file offset, exactly as
// a real table reader would.
type BlockReader struct {
	policy     Policy
	data       []byte
	offsetsPos uint32
	numFilters uint32
	baseLg     uint8
}

// NewBlockReader parses data as a filter block built with policy.
func NewBlockReader(policy Policy, data []byte) (*BlockReader, error) {
	if len(data) < 5 {
		return nil, ErrCorrupt
	}
	n := len(data)
	baseLg := data[n-1]
	arrayStart := encoding.DecodeFixed32(data[n-5 : n-1])
	if int(arrayStart) > n-5 {
		return nil, ErrCorrupt
	}
	numFilters := (uint32(n-5) - arrayStart) / 4
	return &BlockReader{
		policy:     policy,
		data:       data,
		offsetsPos: arrayStart,
		numFilters: numFilters,
		baseLg:     baseLg,
	}, nil
}

// MayContain reports whether key might appear in the data block that
// starts at blockOffset.
func (r *BlockReader) MayContain(blockOffset uint64, key []byte) bool {
	index := blockOffset >> r.baseLg
	if uint32(index) >= r.numFilters {
		return true
	}
	start := encoding.DecodeFixed32(r.data[r.offsetsPos+uint32(index)*4:])
	var limit uint32
	if uint32(index)+1 < r.numFilters {
		limit = encoding.DecodeFixed32(r.data[r.offsetsPos+(uint32(index)+1)*4:])
	} else {
		limit = r.offsetsPos
	}
	if start > limit || limit > r.offsetsPos {
		return false
	}
	if start == limit {
		// Empty filter: no block in this window registered any key.
		return false
	}
	return r.policy.MayContain(key, r.data[start:limit])
}
