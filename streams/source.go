package streams

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// PartitionSource converts external log messages on a single partition into
// Envelopes. It owns the partition's CommitChain.
type PartitionSource[K any, V any] struct {
	base

	consumer   LogConsumer
	keyCodec   Codec[K]
	valueCodec Codec[V]
	topic      string

	chain   *CommitChain
	out     *EventQueue[K, V]
	cursor  int64    // next offset we expect to read
	pending *Message // polled but ahead of now; retried next tick
	atEOF   bool
	closed  bool
}

// PartitionSourceConfig configures a new PartitionSource.
type PartitionSourceConfig[K any, V any] struct {
	Name       string
	Topic      string
	Partition  int32
	Consumer   LogConsumer
	KeyCodec   Codec[K]
	ValueCodec Codec[V]
	QueueSize  int // bounded output queue capacity; <=0 means 1000
	Registry   *prometheus.Registry
	Tags       Tags
}

// NewPartitionSource constructs a PartitionSource bound to one partition.
func NewPartitionSource[K any, V any](cfg PartitionSourceConfig[K, V]) *PartitionSource[K, V] {
	qsize := cfg.QueueSize
	if qsize <= 0 {
		qsize = 1000
	}
	cfg.Tags.Kind = "source"
	return &PartitionSource[K, V]{
		base:       newBase(cfg.Name, cfg.Partition, cfg.Registry, cfg.Tags),
		consumer:   cfg.Consumer,
		keyCodec:   cfg.KeyCodec,
		valueCodec: cfg.ValueCodec,
		topic:      cfg.Topic,
		chain:      NewCommitChain(),
		out:        NewEventQueue[K, V](qsize),
	}
}

// CommitChainRef exposes this source's commit chain, read by the topology
// driver and by tests that need to inspect LastGoodOffset directly.
func (s *PartitionSource[K, V]) CommitChainRef() *CommitChain { return s.chain }

// Output returns the source's output queue, consumed by the downstream
// operator chain.
func (s *PartitionSource[K, V]) Output() *EventQueue[K, V] { return s.out }

func (s *PartitionSource[K, V]) resolveStart(offset StartOffset) (int64, error) {
	ctx := context.Background()
	switch offset {
	case Beginning:
		low, _, err := s.consumer.QueryWatermarks(ctx, s.topic, s.partition)
		return low, err
	case End:
		_, high, err := s.consumer.QueryWatermarks(ctx, s.topic, s.partition)
		return high, err
	case Stored:
		// The stored consumer-group position lives with the adapter, not
		// the core, so the sentinel is passed through to consumer.Start;
		// the adapter resolves it to the stored position, falling back to
		// the earliest retained offset when none exists.
		return int64(Stored), nil
	default:
		if int64(offset) < 0 {
			return 0, fmt.Errorf("streams: invalid start offset %d", offset)
		}
		return int64(offset), nil
	}
}

func (s *PartitionSource[K, V]) Start(offset StartOffset) error {
	start, err := s.resolveStart(offset)
	if err != nil {
		return fmt.Errorf("streams: resolve start offset for %s: %w", s.name, err)
	}
	if start >= 0 {
		s.cursor = start
	}
	return s.consumer.Start(context.Background(), s.partition, start)
}

func (s *PartitionSource[K, V]) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	s.consumer.Stop(s.partition)
	return nil
}

const maxEventTime = int64(1) << 62

// Process pulls from the external consumer until either it has nothing more
// to offer, the output queue is full (backpressure), or the next message's
// event-time exceeds now.
func (s *PartitionSource[K, V]) Process(now int64) int {
	if s.closed {
		return 0
	}
	handled := 0
	ctx := context.Background()
	for {
		if s.out.Full() {
			return handled
		}
		msg := s.pending
		s.pending = nil
		if msg == nil {
			var err error
			msg, err = s.consumer.Poll(ctx, s.partition)
			if err != nil {
				s.metrics.IncCounter("source_poll_errors_total")
				return handled
			}
		}
		if msg == nil {
			s.atEOF = s.consumer.EOF(s.partition)
			return handled
		}
		if msg.EventTimeMs > now {
			// Ahead of the tick boundary: hold the message for the next
			// Process call rather than dropping it on the floor.
			s.pending = msg
			return handled
		}
		s.atEOF = false
		s.cursor = msg.Offset + 1
		env, ok := s.decode(msg)
		if !ok {
			continue
		}
		s.out.Push(env)
		handled++
	}
}

func (s *PartitionSource[K, V]) decode(msg *Message) (Envelope[K, V], bool) {
	key, err := s.keyCodec.Decode(msg.KeyBytes)
	if err != nil {
		// Key decode error: skip and count, but no marker was allocated
		// yet so there is nothing to release — the chain simply never
		// sees this offset, which is fine because the cursor still
		// advances past it.
		s.metrics.IncCounter("source_decode_errors_total")
		log.WithFields(logFields(s.name, s.partition)).WithError(err).Debug("key decode error, dropping message")
		return Envelope[K, V]{}, false
	}
	marker := s.chain.NewMarker(msg.Offset)
	if msg.ValueBytes == nil {
		rec := Tombstone[K, V](key, msg.EventTimeMs)
		return NewEnvelope(&rec, marker), true
	}
	val, err := s.valueCodec.Decode(msg.ValueBytes)
	if err != nil {
		s.metrics.IncCounter("source_decode_errors_total")
		// A marker was already allocated for this offset; release it
		// immediately with ec=0 so the chain still advances past it —
		// the offset counts as consumed even though the record was
		// dropped.
		marker.Release()
		return Envelope[K, V]{}, false
	}
	rec := NewRecord(key, val, msg.EventTimeMs)
	return NewEnvelope(&rec, marker), true
}

func (s *PartitionSource[K, V]) EOF() bool {
	return s.atEOF && s.pending == nil && s.out.Size() == 0
}

func (s *PartitionSource[K, V]) QueueSize() int { return s.out.Size() }

func (s *PartitionSource[K, V]) NextEventTime() (int64, bool) { return s.out.NextEventTime() }

// Commit writes commit_chain.LastGoodOffset()+1 as the new stored consumer
// position. flush=true blocks until acknowledged.
func (s *PartitionSource[K, V]) Commit(flush bool) error {
	next := s.chain.StoredOffset()
	return s.consumer.Commit(context.Background(), s.partition, next, flush)
}

func (s *PartitionSource[K, V]) Flush() error {
	for !s.EOF() {
		if s.Process(maxEventTime) == 0 {
			break
		}
	}
	return s.Commit(true)
}

func logFields(processor string, partition int32) map[string]any {
	return map[string]any{"processor": processor, "partition": partition}
}
