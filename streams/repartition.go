package streams

import "github.com/prometheus/client_golang/prometheus"

// routingTable is what Repartition needs from its routing-table operand: a
// keyed lookup from K to K2.
type routingTable[K comparable, K2 any] interface {
	Processor
	Get(key K) (Record[K, K2], bool)
}

// Repartition re-hashes a stream's records by looking up an alternate key
// K2 in a routing table R: (K, K2) and overwriting the envelope's cached
// partition hash, while leaving the original (K, V) payload and marker
// untouched. If R.Get(K) is absent or tombstoned, the record
// is dropped with a route-miss metric increment.
type Repartition[K comparable, V any, K2 any] struct {
	base
	stream  upstream[K, V]
	routing routingTable[K, K2]
	out     *EventQueue[K, V]
	hashOf  func(K2) uint32
}

// NewRepartition constructs a Repartition operator. hashOf computes the
// partition hash for a routed key (e.g. MurmurHash2 of its encoded bytes).
func NewRepartition[K comparable, V any, K2 any](name string, stream upstream[K, V], routing routingTable[K, K2], hashOf func(K2) uint32, registry *prometheus.Registry) *Repartition[K, V, K2] {
	return &Repartition[K, V, K2]{
		base:    newBase(name, stream.Partition(), registry, Tags{Kind: "repartition"}),
		stream:  stream,
		routing: routing,
		out:     NewEventQueue[K, V](0),
		hashOf:  hashOf,
	}
}

func (r *Repartition[K, V, K2]) Output() *EventQueue[K, V] { return r.out }

func (r *Repartition[K, V, K2]) Start(offset StartOffset) error {
	if err := r.routing.Start(offset); err != nil {
		return err
	}
	return r.stream.Start(offset)
}

func (r *Repartition[K, V, K2]) Close() error {
	if err := r.routing.Close(); err != nil {
		return err
	}
	return r.stream.Close()
}

func (r *Repartition[K, V, K2]) EOF() bool {
	return r.routing.EOF() && r.stream.EOF()
}

func (r *Repartition[K, V, K2]) QueueSize() int { return r.stream.QueueSize() }

func (r *Repartition[K, V, K2]) NextEventTime() (int64, bool) { return r.stream.NextEventTime() }

func (r *Repartition[K, V, K2]) Commit(flush bool) error {
	if err := r.routing.Commit(flush); err != nil {
		return err
	}
	return r.stream.Commit(flush)
}

func (r *Repartition[K, V, K2]) Process(now int64) int {
	r.routing.Process(now)

	handled := r.stream.Process(now)
	src := r.stream.Output()
	for {
		env, ok := src.Peek()
		if !ok || (env.Record != nil && env.Record.EventTimeMs > now) {
			break
		}
		src.Pop()
		if !env.HasRecord() {
			r.out.Push(env)
			continue
		}
		route, found := r.routing.Get(env.Record.Key)
		if !found {
			r.metrics.IncCounter("repartition_route_miss_total")
			env.Release()
			continue
		}
		hash := r.hashOf(*route.Value)
		r.out.Push(Envelope[K, V]{Record: env.Record, Marker: env.Marker, PartitionHash: &hash})
	}
	return handled
}

func (r *Repartition[K, V, K2]) Flush() error {
	for !r.EOF() {
		if r.Process(maxEventTime) == 0 {
			break
		}
	}
	return r.Commit(true)
}
