package sstable

import (
	"github.com/duskhaven/sstable/internal/compression"
	"github.com/duskhaven/sstable/internal/filter"
	"github.com/duskhaven/sstable/internal/metrics"
)

// Options configures a Writer. The zero value is not valid; use
// DefaultOptions and override fields as needed.
type Options struct {
	// BlockSize is the soft byte threshold at which the current data
	// block is flushed and a new one is started.
	BlockSize int

	// BlockRestartInterval controls how often a data block gives up
	// prefix compression and stores a full key (a "restart point").
	BlockRestartInterval int

	// Compression selects the codec applied to data, meta-index, and
	// index block payloads before they are written. The filter block is
	// always stored uncompressed. A candidate compressed block is kept
	// only if it is more than 12.5% smaller than the uncompressed
	// payload; otherwise the block is stored raw regardless of this
	// setting.
	Compression compression.Type

	// FilterPolicy builds the probabilistic filter segments written
	// alongside the data blocks. Leave nil to omit the filter block.
	FilterPolicy filter.Policy

	// Comparator defines key order and the separator optimizations used
	// to shrink index entries. Defaults to BytewiseComparator.
	Comparator Comparator

	// Metrics receives build events. Defaults to a no-op recorder.
	Metrics metrics.Recorder
}

// DefaultOptions returns the Options a Writer uses when none are
// supplied explicitly.
func DefaultOptions() Options {
	return Options{
		BlockSize:            4096,
		BlockRestartInterval: 16,
		Compression:          compression.Snappy,
		Comparator:           DefaultComparator(),
		Metrics:              metrics.Noop,
	}
}

func (o Options) withDefaults() Options {
	if o.BlockSize <= 0 {
		o.BlockSize = 4096
	}
	if o.BlockRestartInterval <= 0 {
		o.BlockRestartInterval = 16
	}
	if o.Comparator == nil {
		o.Comparator = DefaultComparator()
	}
	if o.Metrics == nil {
		o.Metrics = metrics.Noop
	}
	return o
}
