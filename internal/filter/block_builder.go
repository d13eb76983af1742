package filter

import "github.com/duskhaven/sstable/internal/encoding"

// baseLg is log2 of the byte alignment a filter segment covers: every
// 2^baseLg = 2KiB window of the output file gets its own filter entry,
// keyed by the file offset of the data blocks that start inside it.
const baseLg = 11

// BlockBuilder accumulates keys and, on request, carves them into
// per-window filters so that a reader can locate the filter covering a
// data block using nothing but that block's file offset.
type BlockBuilder struct {
	policy Policy

	keys       [][]byte // keys pending for the filter currently being built
	result     []byte   // filters emitted so far, concatenated
	filterOffs []uint32 // result offset where filter i begins
}

// NewBlockBuilder returns a BlockBuilder that uses policy to turn pending
// keys into filter bytes. policy may be nil, in which case Finish returns
// an empty filter block and AddKey/StartBlock are no-ops — this is how a
// table without a filter configured is represented.
func NewBlockBuilder(policy Policy) *BlockBuilder {
	return &BlockBuilder{policy: policy}
}

// StartBlock is notified of the file offset a new data block begins at.
// It must be called once before the first key (with offset 0) and again
// immediately after every data block flush (with the offset of the next
// block). Windows that no data block starts within get an empty filter.
func (b *BlockBuilder) StartBlock(fileOffset uint64) {
	if b.policy == nil {
		return
	}
	want := fileOffset >> baseLg
	for uint64(len(b.filterOffs)) < want {
		b.generateFilter()
	}
}

// AddKey records a key as a member of the filter segment currently being
// accumulated.
func (b *BlockBuilder) AddKey(key []byte) {
	if b.policy == nil {
		return
	}
	dup := make([]byte, len(key))
	copy(dup, key)
	b.keys = append(b.keys, dup)
}

// Finish flushes any pending keys into a final filter segment and
// returns the complete filter block payload: concatenated filters,
// followed by each filter's starting offset, the offset of that offset
// array, and the base_lg byte.
func (b *BlockBuilder) Finish() []byte {
	if b.policy == nil {
		return nil
	}
	if len(b.keys) > 0 {
		b.generateFilter()
	}

	arrayStart := uint32(len(b.result))
	out := b.result
	for _, off := range b.filterOffs {
		out = encoding.AppendFixed32(out, off)
	}
	out = encoding.AppendFixed32(out, arrayStart)
	out = append(out, baseLg)
	return out
}

func (b *BlockBuilder) generateFilter() {
	b.filterOffs = append(b.filterOffs, uint32(len(b.result)))
	if len(b.keys) == 0 {
		return
	}
	b.result = append(b.result, b.policy.Create(b.keys)...)
	b.keys = b.keys[:0]
}
