package block

import (
	"errors"

	"github.com/duskhaven/sstable/internal/encoding"
)

// ErrCorrupt is returned when a block's contents cannot be parsed.
var ErrCorrupt = errors.New("block: corrupted block contents")

// Reader is a parsed, read-only view over a block payload produced by
// Builder. It exists to support round-trip verification in tests and the
// ssttool inspect command; this package does not implement a caching,
// seek-optimized table reader.
type Reader struct {
	data        []byte
	restarts    int // offset into data where the restart array begins
	numRestarts int
}

// NewReader parses a block payload produced by Builder.Finish.
func NewReader(data []byte) (*Reader, error) {
	if len(data) < 4 {
		return nil, ErrCorrupt
	}
	numRestarts := encoding.DecodeFixed32(data[len(data)-4:])
	restartsSize := int(numRestarts+1) * 4
	if restartsSize > len(data) {
		return nil, ErrCorrupt
	}
	return &Reader{
		data:        data,
		restarts:    len(data) - restartsSize,
		numRestarts: int(numRestarts),
	}, nil
}

// NumRestarts returns the number of restart points in the block.
func (r *Reader) NumRestarts() int {
	return r.numRestarts
}

// Entries decodes and returns every key/value pair in the block, in
// order. The returned keys and values are copies, safe to retain.
func (r *Reader) Entries() ([]Entry, error) {
	var entries []Entry
	var key []byte
	data := r.data[:r.restarts]
	for len(data) > 0 {
		shared, n1, err := encoding.DecodeVarint32(data)
		if err != nil {
			return nil, ErrCorrupt
		}
		data = data[n1:]
		unshared, n2, err := encoding.DecodeVarint32(data)
		if err != nil {
			return nil, ErrCorrupt
		}
		data = data[n2:]
		valueLen, n3, err := encoding.DecodeVarint32(data)
		if err != nil {
			return nil, ErrCorrupt
		}
		data = data[n3:]

		if int(shared) > len(key) || len(data) < int(unshared)+int(valueLen) {
			return nil, ErrCorrupt
		}

		next := make([]byte, int(shared)+int(unshared))
		copy(next, key[:shared])
		copy(next[shared:], data[:unshared])
		key = next
		data = data[unshared:]

		value := make([]byte, valueLen)
		copy(value, data[:valueLen])
		data = data[valueLen:]

		entries = append(entries, Entry{Key: key, Value: value})
	}
	return entries, nil
}

// Entry is one decoded key/value pair.
type Entry struct {
	Key   []byte
	Value []byte
}
