// Package block implements the restart-prefix block encoder used for data,
// meta-index, and index blocks, plus the block handle and footer codec.
package block

import (
	"github.com/duskhaven/sstable/internal/encoding"
)

// Builder accumulates key/value entries into a single block, prefix
// compressing each key against the previous one. Every RestartInterval
// entries, compression is skipped and the full key is stored instead — a
// "restart point" — so random lookups inside the block never need to scan
// more than RestartInterval entries.
//
// Entry format:
//
//	shared_bytes:   varint32
//	unshared_bytes: varint32
//	value_length:   varint32
//	key_delta:      char[unshared_bytes]
//	value:          char[value_length]
//
// Block format:
//
//	[entry 1] [entry 2] ... [entry N]
//	[restart point 1: fixed32] ... [restart point M: fixed32]
//	[num_restarts: fixed32]
type Builder struct {
	buffer          []byte
	restarts        []uint32
	counter         int
	restartInterval int
	lastKey         []byte
	finished        bool
}

// NewBuilder returns a Builder that starts a new restart point every
// restartInterval entries. A value of 1 disables prefix compression
// entirely, which is what the index block wants.
func NewBuilder(restartInterval int) *Builder {
	if restartInterval < 1 {
		restartInterval = 1
	}
	return &Builder{
		buffer:          make([]byte, 0, 4096),
		restartInterval: restartInterval,
		restarts:        []uint32{0},
	}
}

// SetRestartInterval changes how many entries are buffered between
// restart points. It takes effect starting at the next restart; entries
// already buffered since the last restart point are not renumbered.
func (b *Builder) SetRestartInterval(restartInterval int) {
	if restartInterval < 1 {
		restartInterval = 1
	}
	b.restartInterval = restartInterval
}

// Reset prepares the builder for a new block, reusing its buffers.
func (b *Builder) Reset() {
	b.buffer = b.buffer[:0]
	b.restarts = b.restarts[:1]
	b.restarts[0] = 0
	b.counter = 0
	b.lastKey = b.lastKey[:0]
	b.finished = false
}

// Add appends a key/value entry. key must sort strictly after every key
// previously added since the last Reset.
func (b *Builder) Add(key, value []byte) {
	if b.finished {
		panic("block: Add called after Finish")
	}

	shared := 0
	if b.counter < b.restartInterval {
		shared = sharedPrefixLength(b.lastKey, key)
	} else {
		b.restarts = append(b.restarts, uint32(len(b.buffer)))
		b.counter = 0
	}

	unshared := len(key) - shared

	b.buffer = encoding.AppendVarint32(b.buffer, uint32(shared))
	b.buffer = encoding.AppendVarint32(b.buffer, uint32(unshared))
	b.buffer = encoding.AppendVarint32(b.buffer, uint32(len(value)))
	b.buffer = append(b.buffer, key[shared:]...)
	b.buffer = append(b.buffer, value...)

	b.lastKey = append(b.lastKey[:0], key...)
	b.counter++
}

// CurrentSizeEstimate returns an estimate, in bytes, of the block as it
// would be written if Finish were called right now.
func (b *Builder) CurrentSizeEstimate() int {
	return len(b.buffer) + len(b.restarts)*4 + 4
}

// Empty reports whether no entries have been added since the last Reset.
func (b *Builder) Empty() bool {
	return len(b.buffer) == 0
}

// Finish appends the restart array and restart count, and returns the
// completed block payload. The returned slice is valid until the next
// Reset.
func (b *Builder) Finish() []byte {
	for _, restart := range b.restarts {
		b.buffer = encoding.AppendFixed32(b.buffer, restart)
	}
	b.buffer = encoding.AppendFixed32(b.buffer, uint32(len(b.restarts)))
	b.finished = true
	return b.buffer
}

func sharedPrefixLength(a, b []byte) int {
	n := min(len(a), len(b))
	for i := range n {
		if a[i] != b[i] {
			return i
		}
	}
	return n
}
