// Package sstable builds immutable sorted tables: the on-disk format an
// LSM-tree store flushes its memtables and compaction output into. A
// Writer consumes keys in strictly ascending order and produces a single
// file containing prefix-compressed data blocks, an optional
// offset-indexed Bloom filter block, a meta-index block, an index block,
// and a fixed 48-byte footer.
package sstable

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/duskhaven/sstable/internal/block"
	"github.com/duskhaven/sstable/internal/checksum"
	"github.com/duskhaven/sstable/internal/compression"
	"github.com/duskhaven/sstable/internal/encoding"
	"github.com/duskhaven/sstable/internal/filter"
	"github.com/duskhaven/sstable/internal/metrics"
)

// appendMaskedCRC appends the little-endian masked CRC32C of data to dst.
func appendMaskedCRC(dst, data []byte) []byte {
	return encoding.AppendFixed32(dst, checksum.MaskedValue(data))
}

// ErrWriterClosed is returned by Add and ChangeOptions once the Writer
// has been finished or abandoned.
var ErrWriterClosed = errors.New("sstable: writer already closed")

// ErrKeyOrder is returned by Add when a key does not sort strictly after
// the previously added key.
var ErrKeyOrder = errors.New("sstable: keys must be added in strictly ascending order")

// flusher is implemented by sinks that can be asked to persist buffered
// bytes to stable storage. It is optional: a plain io.Writer (e.g. a
// bytes.Buffer in a test) works without one.
type flusher interface {
	Flush() error
}

// Writer assembles one table file. It is not safe for concurrent use;
// build one table file from a single goroutine.
type Writer struct {
	w    io.Writer
	opts Options

	dataBlock  *block.Builder
	indexBlock *block.Builder
	filterBlk  *filter.BlockBuilder

	pendingIndexEntry bool
	pendingHandle     block.Handle

	lastKey     []byte
	numEntries  uint64
	offset      uint64
	closed      bool
	err         error
}

// NewWriter returns a Writer that appends a table to w using opts. Pass
// DefaultOptions() to accept the defaults described in Options.
func NewWriter(w io.Writer, opts Options) *Writer {
	opts = opts.withDefaults()
	fb := filter.NewBlockBuilder(opts.FilterPolicy)
	// Announce the first data block's offset (0) before any key arrives.
	// No filter is emitted for offset 0; the first window's filter is
	// emitted by a later StartBlock or by Finish.
	fb.StartBlock(0)
	return &Writer{
		w:          w,
		opts:       opts,
		dataBlock:  block.NewBuilder(opts.BlockRestartInterval),
		indexBlock: block.NewBuilder(1),
		filterBlk:  fb,
	}
}

// NumEntries returns the number of key/value pairs added so far.
func (wr *Writer) NumEntries() uint64 {
	return wr.numEntries
}

// FileSize returns the number of bytes appended to the sink so far.
func (wr *Writer) FileSize() uint64 {
	return wr.offset
}

// Status returns the first error encountered, if any.
func (wr *Writer) Status() error {
	return wr.err
}

// Add appends a key/value pair. key must compare strictly greater than
// every previously added key under opts.Comparator.
func (wr *Writer) Add(key, value []byte) error {
	if wr.closed {
		return ErrWriterClosed
	}
	if wr.err != nil {
		return wr.err
	}
	if wr.numEntries > 0 && wr.opts.Comparator.Compare(key, wr.lastKey) <= 0 {
		return ErrKeyOrder
	}

	if wr.pendingIndexEntry {
		if !wr.dataBlock.Empty() {
			panic("sstable: pending index entry with non-empty data block")
		}
		sep := wr.opts.Comparator.FindShortestSeparator(wr.lastKey, key)
		handleEnc := wr.pendingHandle.EncodeToSlice()
		wr.indexBlock.Add(sep, handleEnc)
		wr.pendingIndexEntry = false
	}

	wr.filterBlk.AddKey(key)

	wr.lastKey = append(wr.lastKey[:0], key...)
	wr.numEntries++
	wr.dataBlock.Add(key, value)

	if wr.dataBlock.CurrentSizeEstimate() >= wr.opts.BlockSize {
		wr.Flush()
	}
	return wr.err
}

// ChangeOptions hot-swaps the Writer's options mid-build. It fails if o
// names a different comparator than the one the table was opened with,
// since every key and separator already written (or pending) was ordered
// under the original comparator. Every other field takes effect
// immediately; in particular the new restart interval is handed to the
// current data block builder, but it only changes where the *next*
// restart point falls rather than rewriting entries already buffered.
func (wr *Writer) ChangeOptions(o Options) error {
	if wr.closed {
		return ErrWriterClosed
	}
	o = o.withDefaults()
	if wr.opts.Comparator.Name() != o.Comparator.Name() {
		return fmt.Errorf("sstable: cannot change comparator from %q to %q mid-build", wr.opts.Comparator.Name(), o.Comparator.Name())
	}
	wr.opts = o
	wr.dataBlock.SetRestartInterval(o.BlockRestartInterval)
	return wr.err
}

// Flush forces the current data block to be written, even if it has not
// reached the configured block size. It is a no-op if no entries are
// pending.
func (wr *Writer) Flush() {
	if wr.err != nil || wr.dataBlock.Empty() {
		return
	}

	handle, ok := wr.writeBlock(wr.dataBlock, metrics.BlockKindData)
	if !ok {
		return
	}

	wr.pendingHandle = handle
	wr.pendingIndexEntry = true
	wr.syncSink()
	wr.filterBlk.StartBlock(wr.offset)
}

// Finish flushes any pending data block, writes the filter, meta-index,
// and index blocks, appends the footer, and marks the Writer closed.
// Finish returns the first error encountered during the entire build, if
// any, and is always safe to call even after a prior error.
func (wr *Writer) Finish() error {
	if wr.closed {
		return wr.err
	}
	wr.Flush()
	wr.closed = true
	if wr.err != nil {
		return wr.err
	}

	var filterHandle block.Handle
	hasFilter := wr.opts.FilterPolicy != nil
	if hasFilter {
		filterBytes := wr.filterBlk.Finish()
		filterHandle, _ = wr.writeRawBlock(filterBytes, compression.None, metrics.BlockKindFilter)
		if wr.err != nil {
			return wr.err
		}
	}

	metaIndexBlock := block.NewBuilder(wr.opts.BlockRestartInterval)
	if hasFilter {
		metaKey := "filter." + wr.opts.FilterPolicy.Name()
		metaIndexBlock.Add([]byte(metaKey), filterHandle.EncodeToSlice())
	}
	metaIndexHandle, ok := wr.writeBlock(metaIndexBlock, metrics.BlockKindMetaIndex)
	if !ok {
		return wr.err
	}

	if wr.pendingIndexEntry {
		successor := wr.opts.Comparator.FindShortSuccessor(wr.lastKey)
		wr.indexBlock.Add(successor, wr.pendingHandle.EncodeToSlice())
		wr.pendingIndexEntry = false
	}
	indexHandle, ok := wr.writeBlock(wr.indexBlock, metrics.BlockKindIndex)
	if !ok {
		return wr.err
	}

	footer := block.Footer{MetaIndexHandle: metaIndexHandle, IndexHandle: indexHandle}
	wr.appendRaw(footer.EncodeToSlice())
	return wr.err
}

// Abandon marks the Writer closed without writing the filter, index, or
// footer. Whatever data blocks were already flushed remain in the sink;
// the caller is responsible for discarding the partial file.
func (wr *Writer) Abandon() {
	wr.closed = true
}

// writeBlock finishes builder, optionally compresses its payload, writes
// it with a trailer, and resets builder for reuse.
func (wr *Writer) writeBlock(builder *block.Builder, kind metrics.BlockKind) (block.Handle, bool) {
	raw := builder.Finish()

	start := time.Now()
	ctype := compression.None
	payload := raw
	if wr.opts.Compression != compression.None {
		compressed, err := compression.Compress(wr.opts.Compression, raw)
		if err == nil && len(compressed) < len(raw)-len(raw)/8 {
			payload = compressed
			ctype = wr.opts.Compression
		} else {
			wr.opts.Metrics.CompressionRejected(kind)
		}
	}

	handle, ok := wr.writeRawBlockTimed(payload, ctype, kind, start)
	builder.Reset()
	return handle, ok
}

func (wr *Writer) writeRawBlock(data []byte, ctype compression.Type, kind metrics.BlockKind) (block.Handle, bool) {
	return wr.writeRawBlockTimed(data, ctype, kind, time.Now())
}

func (wr *Writer) writeRawBlockTimed(data []byte, ctype compression.Type, kind metrics.BlockKind, start time.Time) (block.Handle, bool) {
	if wr.err != nil {
		return block.Handle{}, false
	}

	handle := block.Handle{Offset: wr.offset, Size: uint64(len(data))}

	wr.appendRaw(data)
	if wr.err != nil {
		return block.Handle{}, false
	}

	trailer := make([]byte, 0, block.BlockTrailerSize)
	trailer = append(trailer, byte(ctype))
	crcInput := make([]byte, 0, len(data)+1)
	crcInput = append(crcInput, data...)
	crcInput = append(crcInput, byte(ctype))
	trailer = appendMaskedCRC(trailer, crcInput)
	wr.appendRaw(trailer)
	if wr.err != nil {
		return block.Handle{}, false
	}

	wr.opts.Metrics.BlockWritten(kind, len(data), len(data)+block.BlockTrailerSize, time.Since(start))
	return handle, true
}

// appendRaw writes data to the sink and advances offset, latching any
// error encountered.
func (wr *Writer) appendRaw(data []byte) {
	if wr.err != nil {
		return
	}
	n, err := wr.w.Write(data)
	wr.offset += uint64(n)
	if err != nil {
		wr.err = fmt.Errorf("sstable: write: %w", err)
	}
}

func (wr *Writer) syncSink() {
	if wr.err != nil {
		return
	}
	if f, ok := wr.w.(flusher); ok {
		if err := f.Flush(); err != nil {
			wr.err = fmt.Errorf("sstable: flush: %w", err)
		}
	}
}
