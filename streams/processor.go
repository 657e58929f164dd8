package streams

import "github.com/prometheus/client_golang/prometheus"

// Processor is the common contract every node in a topology graph satisfies.
// It is intentionally non-generic: the processor graph is a DAG of
// heterogeneous Processor values wired together through typed upstream links
// held by each concrete implementation.
type Processor interface {
	// Name is a stable identifier for this processor within its topology,
	// used for directory naming and metric tags.
	Name() string

	// Start recursively starts this processor and its upstreams at
	// offset. Partition-local sources interpret offset via StartOffset;
	// non-source processors ignore it and simply propagate Start to their
	// upstreams.
	Start(offset StartOffset) error

	// Close recursively and idempotently releases this processor's
	// resources (state stores, background threads) and its upstreams'.
	Close() error

	// Process drains upstream events whose event-time is <= now,
	// returning how many records were handled. A leaf call is expected to
	// pull from its upstreams transitively until either an upstream
	// yields nothing or the next available event-time exceeds now.
	Process(now int64) int

	// EOF reports whether no upstream of this processor can currently
	// produce more records.
	EOF() bool

	// QueueSize reports how many envelopes are buffered in this
	// processor's own input queue; stateless operators, which keep no
	// queue of their own, report their upstream's QueueSize.
	QueueSize() int

	// NextEventTime reports the event-time of the next buffered record,
	// if any.
	NextEventTime() (int64, bool)

	// Commit persists this processor's progress (state store offset,
	// consumer position). flush=true blocks until durable; flush=false is
	// best-effort and rate-limited.
	Commit(flush bool) error

	// Flush repeats Process/Commit until EOF holds, then performs a final
	// flush=true Commit.
	Flush() error

	// Partition returns the partition index this processor instance is
	// bound to.
	Partition() int32

	// EachMetric invokes fn for every prometheus collector this processor
	// owns.
	EachMetric(fn func(prometheus.Collector))
}

// base is embedded by every concrete processor to provide the shared
// Name/Partition/metrics bookkeeping.
type base struct {
	name      string
	partition int32
	metrics   *Metrics
	closed    bool
}

func newBase(name string, partition int32, registry *prometheus.Registry, tags Tags) base {
	tags.Processor = name
	tags.Partition = partition
	return base{name: name, partition: partition, metrics: NewMetrics(registry, tags)}
}

func (b *base) Name() string     { return b.name }
func (b *base) Partition() int32 { return b.partition }
func (b *base) EachMetric(fn func(prometheus.Collector)) {
	b.metrics.Each(fn)
}
