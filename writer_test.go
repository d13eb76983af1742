package sstable

import (
	"bytes"
	"testing"

	"github.com/duskhaven/sstable/internal/block"
	"github.com/duskhaven/sstable/internal/checksum"
	"github.com/duskhaven/sstable/internal/compression"
	"github.com/duskhaven/sstable/internal/filter"
)

func noCompressionOpts() Options {
	opts := DefaultOptions()
	opts.Compression = compression.None
	return opts
}

func TestWriterEmpty(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf, noCompressionOpts())

	if err := w.Finish(); err != nil {
		t.Fatalf("Finish() error = %v", err)
	}
	if w.NumEntries() != 0 {
		t.Errorf("NumEntries() = %d, want 0", w.NumEntries())
	}
	if buf.Len() < block.EncodedFooterLength {
		t.Fatalf("file too small for footer: %d bytes", buf.Len())
	}

	if _, err := block.DecodeFooter(buf.Bytes()[buf.Len()-block.EncodedFooterLength:]); err != nil {
		t.Fatalf("DecodeFooter() error = %v", err)
	}
}

// TestWriterSingleBlock covers scenario S1: a minimal single-block table
// with no filter and no compression.
func TestWriterSingleBlock(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf, noCompressionOpts())

	if err := w.Add([]byte("a"), []byte("1")); err != nil {
		t.Fatalf("Add(a) error = %v", err)
	}
	if err := w.Add([]byte("b"), []byte("2")); err != nil {
		t.Fatalf("Add(b) error = %v", err)
	}
	if err := w.Finish(); err != nil {
		t.Fatalf("Finish() error = %v", err)
	}

	if w.NumEntries() != 2 {
		t.Errorf("NumEntries() = %d, want 2", w.NumEntries())
	}
	if uint64(buf.Len()) != w.FileSize() {
		t.Errorf("buf.Len() = %d, FileSize() = %d", buf.Len(), w.FileSize())
	}

	data := buf.Bytes()
	footer, err := block.DecodeFooter(data[len(data)-block.EncodedFooterLength:])
	if err != nil {
		t.Fatalf("DecodeFooter() error = %v", err)
	}

	indexPayload := data[footer.IndexHandle.Offset : footer.IndexHandle.Offset+footer.IndexHandle.Size]
	idxReader, err := block.NewReader(indexPayload)
	if err != nil {
		t.Fatalf("NewReader(index) error = %v", err)
	}
	idxEntries, err := idxReader.Entries()
	if err != nil {
		t.Fatalf("index Entries() error = %v", err)
	}
	if len(idxEntries) != 1 {
		t.Fatalf("len(idxEntries) = %d, want 1", len(idxEntries))
	}

	dataHandle, _, err := block.DecodeHandle(idxEntries[0].Value)
	if err != nil {
		t.Fatalf("DecodeHandle(index value) error = %v", err)
	}
	dataPayload := data[dataHandle.Offset : dataHandle.Offset+dataHandle.Size]
	dataReader, err := block.NewReader(dataPayload)
	if err != nil {
		t.Fatalf("NewReader(data) error = %v", err)
	}
	dataEntries, err := dataReader.Entries()
	if err != nil {
		t.Fatalf("data Entries() error = %v", err)
	}
	if len(dataEntries) != 2 {
		t.Fatalf("len(dataEntries) = %d, want 2", len(dataEntries))
	}
	if string(dataEntries[0].Key) != "a" || string(dataEntries[0].Value) != "1" {
		t.Errorf("entry 0 = %q/%q, want a/1", dataEntries[0].Key, dataEntries[0].Value)
	}
	if string(dataEntries[1].Key) != "b" || string(dataEntries[1].Value) != "2" {
		t.Errorf("entry 1 = %q/%q, want b/2", dataEntries[1].Key, dataEntries[1].Value)
	}
}

// TestWriterShortestSeparator covers scenario S2.
func TestWriterShortestSeparator(t *testing.T) {
	opts := noCompressionOpts()
	opts.BlockSize = 1 // force a flush after every key
	var buf bytes.Buffer
	w := NewWriter(&buf, opts)

	if err := w.Add([]byte("the quick brown fox"), []byte("1")); err != nil {
		t.Fatal(err)
	}
	if err := w.Add([]byte("the who"), []byte("2")); err != nil {
		t.Fatal(err)
	}
	if err := w.Finish(); err != nil {
		t.Fatal(err)
	}

	data := buf.Bytes()
	footer, err := block.DecodeFooter(data[len(data)-block.EncodedFooterLength:])
	if err != nil {
		t.Fatal(err)
	}
	indexPayload := data[footer.IndexHandle.Offset : footer.IndexHandle.Offset+footer.IndexHandle.Size]
	idxReader, err := block.NewReader(indexPayload)
	if err != nil {
		t.Fatal(err)
	}
	entries, err := idxReader.Entries()
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 2 {
		t.Fatalf("len(entries) = %d, want 2", len(entries))
	}
	if string(entries[0].Key) != "the r" {
		t.Errorf("separator key = %q, want %q", entries[0].Key, "the r")
	}
}

// TestWriterRestartInterval covers scenario S3.
func TestWriterRestartInterval(t *testing.T) {
	opts := noCompressionOpts()
	opts.BlockRestartInterval = 3
	var buf bytes.Buffer
	w := NewWriter(&buf, opts)

	for _, k := range []string{"aa", "ab", "ac", "ad"} {
		if err := w.Add([]byte(k), []byte("v")); err != nil {
			t.Fatal(err)
		}
	}
	if err := w.Finish(); err != nil {
		t.Fatal(err)
	}

	data := buf.Bytes()
	footer, err := block.DecodeFooter(data[len(data)-block.EncodedFooterLength:])
	if err != nil {
		t.Fatal(err)
	}
	indexPayload := data[footer.IndexHandle.Offset : footer.IndexHandle.Offset+footer.IndexHandle.Size]
	idxReader, err := block.NewReader(indexPayload)
	if err != nil {
		t.Fatal(err)
	}
	idxEntries, err := idxReader.Entries()
	if err != nil {
		t.Fatal(err)
	}
	dataHandle, _, err := block.DecodeHandle(idxEntries[0].Value)
	if err != nil {
		t.Fatal(err)
	}
	dataReader, err := block.NewReader(data[dataHandle.Offset : dataHandle.Offset+dataHandle.Size])
	if err != nil {
		t.Fatal(err)
	}
	if dataReader.NumRestarts() != 2 {
		t.Errorf("NumRestarts() = %d, want 2", dataReader.NumRestarts())
	}
}

// TestWriterBloomNoFalseNegatives covers scenario S4.
func TestWriterBloomNoFalseNegatives(t *testing.T) {
	opts := noCompressionOpts()
	opts.FilterPolicy = filter.NewBloomPolicy(10)
	opts.BlockSize = 256
	var buf bytes.Buffer
	w := NewWriter(&buf, opts)

	keys := make([]string, 0, 500)
	for i := 0; i < 500; i++ {
		k := make([]byte, 4)
		k[0] = byte(i >> 24)
		k[1] = byte(i >> 16)
		k[2] = byte(i >> 8)
		k[3] = byte(i)
		keys = append(keys, string(k))
	}
	// Keys must arrive in ascending comparator order; big-endian u32
	// encoding already sorts that way.
	for _, k := range keys {
		if err := w.Add([]byte(k), []byte("v")); err != nil {
			t.Fatal(err)
		}
	}
	if err := w.Finish(); err != nil {
		t.Fatal(err)
	}

	data := buf.Bytes()
	footer, err := block.DecodeFooter(data[len(data)-block.EncodedFooterLength:])
	if err != nil {
		t.Fatal(err)
	}
	metaPayload := data[footer.MetaIndexHandle.Offset : footer.MetaIndexHandle.Offset+footer.MetaIndexHandle.Size]
	metaReader, err := block.NewReader(metaPayload)
	if err != nil {
		t.Fatal(err)
	}
	metaEntries, err := metaReader.Entries()
	if err != nil {
		t.Fatal(err)
	}
	if len(metaEntries) != 1 {
		t.Fatalf("len(metaEntries) = %d, want 1", len(metaEntries))
	}
	filterHandle, _, err := block.DecodeHandle(metaEntries[0].Value)
	if err != nil {
		t.Fatal(err)
	}
	filterPayload := data[filterHandle.Offset : filterHandle.Offset+filterHandle.Size]
	fbr, err := filter.NewBlockReader(opts.FilterPolicy, filterPayload)
	if err != nil {
		t.Fatal(err)
	}

	indexPayload := data[footer.IndexHandle.Offset : footer.IndexHandle.Offset+footer.IndexHandle.Size]
	idxReader, err := block.NewReader(indexPayload)
	if err != nil {
		t.Fatal(err)
	}
	idxEntries, err := idxReader.Entries()
	if err != nil {
		t.Fatal(err)
	}

	for _, ie := range idxEntries {
		h, _, err := block.DecodeHandle(ie.Value)
		if err != nil {
			t.Fatal(err)
		}
		dr, err := block.NewReader(data[h.Offset : h.Offset+h.Size])
		if err != nil {
			t.Fatal(err)
		}
		entries, err := dr.Entries()
		if err != nil {
			t.Fatal(err)
		}
		for _, e := range entries {
			if !fbr.MayContain(h.Offset, e.Key) {
				t.Errorf("filter false negative for key %q in block at offset %d", e.Key, h.Offset)
			}
		}
	}
}

// TestWriterAbandon covers scenario S5.
func TestWriterAbandon(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf, noCompressionOpts())

	if err := w.Add([]byte("a"), []byte("1")); err != nil {
		t.Fatal(err)
	}
	w.Abandon()

	if buf.Len() >= block.EncodedFooterLength {
		if _, err := block.DecodeFooter(buf.Bytes()[buf.Len()-block.EncodedFooterLength:]); err == nil {
			t.Error("DecodeFooter() succeeded on an abandoned table, want error")
		}
	}

	if err := w.Add([]byte("b"), []byte("2")); err != ErrWriterClosed {
		t.Errorf("Add() after Abandon() error = %v, want ErrWriterClosed", err)
	}
}

// TestWriterKeyOrderEnforced checks the strictly-ascending invariant.
func TestWriterKeyOrderEnforced(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf, noCompressionOpts())

	if err := w.Add([]byte("b"), []byte("1")); err != nil {
		t.Fatal(err)
	}
	if err := w.Add([]byte("a"), []byte("2")); err != ErrKeyOrder {
		t.Errorf("Add() out-of-order error = %v, want ErrKeyOrder", err)
	}
}

// TestWriterChecksumDetectsCorruption covers scenario S6.
func TestWriterChecksumDetectsCorruption(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf, noCompressionOpts())
	if err := w.Add([]byte("a"), []byte("1")); err != nil {
		t.Fatal(err)
	}
	if err := w.Finish(); err != nil {
		t.Fatal(err)
	}

	data := buf.Bytes()
	footer, err := block.DecodeFooter(data[len(data)-block.EncodedFooterLength:])
	if err != nil {
		t.Fatal(err)
	}
	indexPayload := data[footer.IndexHandle.Offset : footer.IndexHandle.Offset+footer.IndexHandle.Size]
	idxReader, err := block.NewReader(indexPayload)
	if err != nil {
		t.Fatal(err)
	}
	idxEntries, err := idxReader.Entries()
	if err != nil {
		t.Fatal(err)
	}
	dataHandle, _, err := block.DecodeHandle(idxEntries[0].Value)
	if err != nil {
		t.Fatal(err)
	}

	trailerOffset := dataHandle.Offset + dataHandle.Size
	storedCRC := uint32(data[trailerOffset+1]) | uint32(data[trailerOffset+2])<<8 |
		uint32(data[trailerOffset+3])<<16 | uint32(data[trailerOffset+4])<<24

	data[dataHandle.Offset] ^= 0xff // flip a payload byte

	payload := data[dataHandle.Offset : dataHandle.Offset+dataHandle.Size+1]
	recomputed := checksum.MaskedValue(payload)
	if storedCRC == recomputed {
		t.Error("masked CRC matched after corrupting payload, want mismatch")
	}
}

// TestWriterChangeOptionsRejectsComparatorChange checks that
// ChangeOptions refuses to swap the comparator mid-build.
func TestWriterChangeOptionsRejectsComparatorChange(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf, noCompressionOpts())

	opts := noCompressionOpts()
	opts.Comparator = namedComparator{BytewiseComparator{}, "other.Comparator"}
	if err := w.ChangeOptions(opts); err == nil {
		t.Error("ChangeOptions() with a different comparator succeeded, want error")
	}
}

// TestWriterChangeOptionsAppliesRestartInterval checks that a new
// restart interval set via ChangeOptions takes effect at the next
// restart point.
func TestWriterChangeOptionsAppliesRestartInterval(t *testing.T) {
	var buf bytes.Buffer
	opts := noCompressionOpts()
	opts.BlockRestartInterval = 100 // effectively "never restart" for this test
	w := NewWriter(&buf, opts)

	if err := w.Add([]byte("aa"), []byte("v")); err != nil {
		t.Fatal(err)
	}

	changed := noCompressionOpts()
	changed.BlockRestartInterval = 1
	if err := w.ChangeOptions(changed); err != nil {
		t.Fatalf("ChangeOptions() error = %v", err)
	}

	for _, k := range []string{"ab", "ac"} {
		if err := w.Add([]byte(k), []byte("v")); err != nil {
			t.Fatal(err)
		}
	}
	if err := w.Finish(); err != nil {
		t.Fatal(err)
	}

	data := buf.Bytes()
	footer, err := block.DecodeFooter(data[len(data)-block.EncodedFooterLength:])
	if err != nil {
		t.Fatal(err)
	}
	indexPayload := data[footer.IndexHandle.Offset : footer.IndexHandle.Offset+footer.IndexHandle.Size]
	idxReader, err := block.NewReader(indexPayload)
	if err != nil {
		t.Fatal(err)
	}
	idxEntries, err := idxReader.Entries()
	if err != nil {
		t.Fatal(err)
	}
	dataHandle, _, err := block.DecodeHandle(idxEntries[0].Value)
	if err != nil {
		t.Fatal(err)
	}
	dataReader, err := block.NewReader(data[dataHandle.Offset : dataHandle.Offset+dataHandle.Size])
	if err != nil {
		t.Fatal(err)
	}
	// Restart interval 1 from the second key onward: 3 entries total,
	// restart buffered for "aa" plus new restarts at "ab" and "ac".
	if dataReader.NumRestarts() != 3 {
		t.Errorf("NumRestarts() = %d, want 3", dataReader.NumRestarts())
	}
}

// TestWriterFinishIsIdempotent covers the Finish/Finish no-op posture:
// calling Finish again after the Writer is already closed must not
// append a second footer.
func TestWriterFinishIsIdempotent(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf, noCompressionOpts())
	if err := w.Add([]byte("a"), []byte("1")); err != nil {
		t.Fatal(err)
	}
	if err := w.Finish(); err != nil {
		t.Fatalf("first Finish() error = %v", err)
	}
	sizeAfterFirst := buf.Len()

	if err := w.Finish(); err != nil {
		t.Fatalf("second Finish() error = %v", err)
	}
	if buf.Len() != sizeAfterFirst {
		t.Errorf("buf.Len() after second Finish() = %d, want %d (no new bytes written)", buf.Len(), sizeAfterFirst)
	}
}

// namedComparator wraps a Comparator under a different Name, purely to
// exercise ChangeOptions' comparator-change rejection.
type namedComparator struct {
	Comparator
	name string
}

func (c namedComparator) Name() string { return c.name }
