package streams

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
)

// PartitionSink consumes Envelopes, encodes them, and hands them to an
// external LogProducer. Production is bounded in flight and markers resolve
// on the producer's delivery callback: each envelope's marker is retained
// until the callback fires, completing cleanly on success and poisoning the
// chain on failure.
type PartitionSink[K any, V any] struct {
	base

	producer   LogProducer
	keyCodec   Codec[K]
	valueCodec Codec[V]
	topic      string

	targetPartition int32 // -1 means derive from key hash (topic-level sink)
	numPartitions   int32 // used when targetPartition < 0
	in              *EventQueue[K, V]
	maxInFlight     int
	closed          bool
}

// PartitionSinkConfig configures a new PartitionSink.
type PartitionSinkConfig[K any, V any] struct {
	Name            string
	Topic           string
	Partition       int32 // the partition this sink instance is bound to for metrics/queueing
	TargetPartition int32 // which partition to *produce* to; -1 to hash the key (topic-level sink)
	NumPartitions   int32 // required if TargetPartition < 0
	Producer        LogProducer
	KeyCodec        Codec[K]
	ValueCodec      Codec[V]
	QueueSize       int
	MaxInFlight     int
	Registry        *prometheus.Registry
	Tags            Tags
}

// NewPartitionSink constructs a PartitionSink. Pass TargetPartition < 0 to
// get topic-level (hash-partitioned) sink behavior.
func NewPartitionSink[K any, V any](cfg PartitionSinkConfig[K, V]) *PartitionSink[K, V] {
	qsize := cfg.QueueSize
	if qsize <= 0 {
		qsize = 1000
	}
	maxInFlight := cfg.MaxInFlight
	if maxInFlight <= 0 {
		maxInFlight = 100
	}
	cfg.Tags.Kind = "sink"
	return &PartitionSink[K, V]{
		base:            newBase(cfg.Name, cfg.Partition, cfg.Registry, cfg.Tags),
		producer:        cfg.Producer,
		keyCodec:        cfg.KeyCodec,
		valueCodec:      cfg.ValueCodec,
		topic:           cfg.Topic,
		targetPartition: cfg.TargetPartition,
		numPartitions:   cfg.NumPartitions,
		in:              NewEventQueue[K, V](qsize),
		maxInFlight:     maxInFlight,
	}
}

// Input returns the sink's input queue; upstream operators push into it.
func (s *PartitionSink[K, V]) Input() *EventQueue[K, V] { return s.in }

func (s *PartitionSink[K, V]) Start(offset StartOffset) error { return nil }

func (s *PartitionSink[K, V]) Close() error {
	s.closed = true
	return nil
}

// Process forwards buffered envelopes to the external producer. When the
// producer's in-flight count reaches maxInFlight, Process returns without
// consuming from its input queue, propagating backpressure upstream.
func (s *PartitionSink[K, V]) Process(now int64) int {
	if s.closed {
		return 0
	}
	handled := 0
	for s.producer.Outstanding() < s.maxInFlight {
		env, ok := s.in.Pop()
		if !ok {
			return handled
		}
		s.produce(env)
		handled++
	}
	return handled
}

func (s *PartitionSink[K, V]) produce(env Envelope[K, V]) {
	if !env.HasRecord() {
		// Pure heartbeat: nothing to encode, but the marker still needs
		// releasing so the chain can advance past it.
		env.Release()
		return
	}
	rec := env.Record
	keyBytes, err := s.keyCodec.Encode(rec.Key)
	if err != nil {
		s.metrics.IncCounter("sink_encode_errors_total")
		// Codec encode error: drop, but release the marker with success so
		// an unrepresentable record never stalls the chain.
		env.Release()
		return
	}
	var valueBytes []byte
	if !rec.IsTombstone() {
		valueBytes, err = s.valueCodec.Encode(*rec.Value)
		if err != nil {
			s.metrics.IncCounter("sink_encode_errors_total")
			env.Release()
			return
		}
	}
	partition := s.targetPartition
	if partition < 0 {
		partition = s.choosePartition(env, keyBytes)
	}
	marker := env.Marker
	err = s.producer.Produce(context.Background(), s.topic, partition, keyBytes, valueBytes, rec.EventTimeMs, func(ec int32) {
		if ec != 0 {
			s.metrics.IncCounter("sink_delivery_errors_total")
			marker.Fail(ec)
		}
		marker.Release()
	})
	if err != nil {
		s.metrics.IncCounter("sink_produce_errors_total")
		marker.Fail(1)
		marker.Release()
	}
}

// choosePartition picks the target partition for a topic-level sink: the
// envelope's explicit PartitionHash if present, else MurmurHash2(keyBytes)
// seeded 0x9747b28c modulo the partition count.
func (s *PartitionSink[K, V]) choosePartition(env Envelope[K, V], keyBytes []byte) int32 {
	var hash uint32
	if env.PartitionHash != nil {
		hash = *env.PartitionHash
	} else {
		hash = kafkaPartitionHash(keyBytes)
	}
	if s.numPartitions <= 0 {
		return 0
	}
	return int32(hash % uint32(s.numPartitions))
}

func (s *PartitionSink[K, V]) EOF() bool { return s.in.Size() == 0 }

func (s *PartitionSink[K, V]) QueueSize() int { return s.in.Size() }

func (s *PartitionSink[K, V]) NextEventTime() (int64, bool) { return s.in.NextEventTime() }

func (s *PartitionSink[K, V]) Commit(flush bool) error {
	if !flush {
		return nil
	}
	return s.producer.Flush(context.Background())
}

func (s *PartitionSink[K, V]) Flush() error {
	for !s.EOF() {
		if s.Process(maxEventTime) == 0 {
			break
		}
	}
	return s.Commit(true)
}

// StdoutSink is a trivial LogProducer-free sink for debugging topologies: it
// formats every envelope through Format and hands the result to Write,
// covering the local-file and stdout destination cases.
type StdoutSink[K any, V any] struct {
	base
	in     *EventQueue[K, V]
	Format func(rec Record[K, V]) string
	Write  func(string)
	closed bool
}

// NewStdoutSink constructs a sink that calls write for every record's
// formatted representation.
func NewStdoutSink[K any, V any](name string, partition int32, format func(Record[K, V]) string, write func(string)) *StdoutSink[K, V] {
	return &StdoutSink[K, V]{
		base:   newBase(name, partition, nil, Tags{Kind: "sink"}),
		in:     NewEventQueue[K, V](1000),
		Format: format,
		Write:  write,
	}
}

func (s *StdoutSink[K, V]) Input() *EventQueue[K, V]     { return s.in }
func (s *StdoutSink[K, V]) Start(StartOffset) error      { return nil }
func (s *StdoutSink[K, V]) Close() error                 { s.closed = true; return nil }
func (s *StdoutSink[K, V]) EOF() bool                    { return s.in.Size() == 0 }
func (s *StdoutSink[K, V]) QueueSize() int               { return s.in.Size() }
func (s *StdoutSink[K, V]) NextEventTime() (int64, bool) { return s.in.NextEventTime() }
func (s *StdoutSink[K, V]) Commit(bool) error            { return nil }

func (s *StdoutSink[K, V]) Process(now int64) int {
	handled := 0
	for {
		env, ok := s.in.Pop()
		if !ok {
			return handled
		}
		if env.HasRecord() {
			s.Write(s.Format(*env.Record))
		}
		env.Release()
		handled++
	}
}

func (s *StdoutSink[K, V]) Flush() error {
	s.Process(maxEventTime)
	return nil
}
