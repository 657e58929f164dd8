package streams

import "github.com/prometheus/client_golang/prometheus"

// tableSide is the minimal shape a stream-table join needs from its table
// operand: draining its own queue and a keyed point lookup.
type tableSide[K comparable, TV any] interface {
	Processor
	Get(key K) (Record[K, TV], bool)
}

// Joined is the (left, optional-right) pair a stream-table join emits.
type Joined[V any, TV any] struct {
	Left  V
	Right *TV
}

// StreamTableJoin joins a stream envelope against a MaterializedTable's
// current value on equal key. Before processing the stream
// queue on each tick, it drains the table up to now and commits its
// progress, so the join sees a consistent table snapshot for the stream's
// event-time.
type StreamTableJoin[K comparable, V any, TV any] struct {
	base
	stream upstream[K, V]
	table  tableSide[K, TV]
	out    *EventQueue[K, Joined[V, TV]]
	inner  bool
}

// NewStreamLeftJoin builds a left join: emits (left, Option<right>) for
// every non-tombstone stream record; a tombstone stream value emits nothing.
func NewStreamLeftJoin[K comparable, V any, TV any](name string, stream upstream[K, V], table tableSide[K, TV], registry *prometheus.Registry) *StreamTableJoin[K, V, TV] {
	return newStreamTableJoin(name, stream, table, false, registry)
}

// NewStreamInnerJoin builds an inner join: emits only when both the stream
// record and the table lookup are non-null.
func NewStreamInnerJoin[K comparable, V any, TV any](name string, stream upstream[K, V], table tableSide[K, TV], registry *prometheus.Registry) *StreamTableJoin[K, V, TV] {
	return newStreamTableJoin(name, stream, table, true, registry)
}

func newStreamTableJoin[K comparable, V any, TV any](name string, stream upstream[K, V], table tableSide[K, TV], inner bool, registry *prometheus.Registry) *StreamTableJoin[K, V, TV] {
	return &StreamTableJoin[K, V, TV]{
		base:   newBase(name, stream.Partition(), registry, Tags{Kind: "stream_table_join"}),
		stream: stream,
		table:  table,
		out:    NewEventQueue[K, Joined[V, TV]](0),
		inner:  inner,
	}
}

func (j *StreamTableJoin[K, V, TV]) Output() *EventQueue[K, Joined[V, TV]] { return j.out }

func (j *StreamTableJoin[K, V, TV]) Start(offset StartOffset) error {
	if err := j.table.Start(offset); err != nil {
		return err
	}
	return j.stream.Start(offset)
}

func (j *StreamTableJoin[K, V, TV]) Close() error {
	if err := j.table.Close(); err != nil {
		return err
	}
	return j.stream.Close()
}

func (j *StreamTableJoin[K, V, TV]) EOF() bool {
	return j.table.EOF() && j.stream.EOF()
}

func (j *StreamTableJoin[K, V, TV]) QueueSize() int { return j.stream.QueueSize() }

func (j *StreamTableJoin[K, V, TV]) NextEventTime() (int64, bool) { return j.stream.NextEventTime() }

func (j *StreamTableJoin[K, V, TV]) Commit(flush bool) error {
	if err := j.table.Commit(flush); err != nil {
		return err
	}
	return j.stream.Commit(flush)
}

func (j *StreamTableJoin[K, V, TV]) Process(now int64) int {
	// Table side drains first so the join sees a consistent snapshot for
	// the stream's event-time.
	j.table.Process(now)
	_ = j.table.Commit(false)

	handled := j.stream.Process(now)
	src := j.stream.Output()
	for {
		env, ok := src.Peek()
		if !ok || (env.Record != nil && env.Record.EventTimeMs > now) {
			break
		}
		src.Pop()
		if !env.HasRecord() {
			env.Release()
			continue
		}
		if env.Record.IsTombstone() {
			// "a null stream value emits nothing".
			env.Release()
			continue
		}
		right, found := j.table.Get(env.Record.Key)
		if j.inner && !found {
			env.Release()
			continue
		}
		var rightPtr *TV
		if found {
			rightPtr = right.Value
		}
		joined := NewRecord(env.Record.Key, Joined[V, TV]{Left: *env.Record.Value, Right: rightPtr}, env.Record.EventTimeMs)
		j.out.Push(Envelope[K, Joined[V, TV]]{Record: &joined, Marker: env.Marker})
	}
	return handled
}

func (j *StreamTableJoin[K, V, TV]) Flush() error {
	for !j.EOF() {
		if j.Process(maxEventTime) == 0 {
			break
		}
	}
	return j.Commit(true)
}
