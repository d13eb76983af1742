// Package metrics instruments a table builder's lifetime with Prometheus
// collectors: block counts by kind, bytes written, rejected compression
// attempts, and per-block write latency.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// BlockKind labels which section of the file a block belongs to.
type BlockKind string

const (
	BlockKindData      BlockKind = "data"
	BlockKindFilter    BlockKind = "filter"
	BlockKindMetaIndex BlockKind = "meta_index"
	BlockKindIndex     BlockKind = "index"
)

// Recorder receives events from a Writer as it builds a table. A nil
// Recorder is valid and records nothing; Writer falls back to a no-op
// recorder when none is supplied, so instrumentation is opt-in.
type Recorder interface {
	BlockWritten(kind BlockKind, rawSize, writtenSize int, elapsed time.Duration)
	CompressionRejected(kind BlockKind)
}

// Prometheus is a Recorder backed by the standard client_golang
// collectors. Register it with a prometheus.Registerer once per process;
// multiple Writers may share one Prometheus instance.
type Prometheus struct {
	blocksWritten       *prometheus.CounterVec
	bytesWritten        *prometheus.CounterVec
	compressionRejected *prometheus.CounterVec
	blockWriteLatency   *prometheus.HistogramVec
}

// NewPrometheus builds and registers a Prometheus recorder on reg. reg
// may be nil, in which case prometheus.DefaultRegisterer is used.
func NewPrometheus(reg prometheus.Registerer) *Prometheus {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	p := &Prometheus{
		blocksWritten: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sstable",
			Name:      "blocks_written_total",
			Help:      "Number of blocks written to table files, by kind.",
		}, []string{"kind"}),
		bytesWritten: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sstable",
			Name:      "bytes_written_total",
			Help:      "Bytes written to table files (post-compression), by block kind.",
		}, []string{"kind"}),
		compressionRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sstable",
			Name:      "compression_rejected_total",
			Help:      "Blocks whose compressed form did not meet the savings threshold and were stored raw.",
		}, []string{"kind"}),
		blockWriteLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "sstable",
			Name:      "block_write_latency_seconds",
			Help:      "Latency of writing one block (compress + checksum + append), by kind.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"kind"}),
	}
	reg.MustRegister(p.blocksWritten, p.bytesWritten, p.compressionRejected, p.blockWriteLatency)
	return p
}

// BlockWritten implements Recorder.
func (p *Prometheus) BlockWritten(kind BlockKind, _, writtenSize int, elapsed time.Duration) {
	p.blocksWritten.WithLabelValues(string(kind)).Inc()
	p.bytesWritten.WithLabelValues(string(kind)).Add(float64(writtenSize))
	p.blockWriteLatency.WithLabelValues(string(kind)).Observe(elapsed.Seconds())
}

// CompressionRejected implements Recorder.
func (p *Prometheus) CompressionRejected(kind BlockKind) {
	p.compressionRejected.WithLabelValues(string(kind)).Inc()
}

type noop struct{}

func (noop) BlockWritten(BlockKind, int, int, time.Duration) {}
func (noop) CompressionRejected(BlockKind)                   {}

// Noop is a Recorder that discards every event.
var Noop Recorder = noop{}
