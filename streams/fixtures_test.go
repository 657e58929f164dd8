package streams

import "github.com/prometheus/client_golang/prometheus"

// fakeUpstream is a minimal in-memory upstream[K,V] for exercising a single
// operator in isolation: tests push envelopes directly onto its queue
// instead of driving a real source.
type fakeUpstream[K any, V any] struct {
	out *EventQueue[K, V]
}

func newFakeUpstream[K any, V any]() *fakeUpstream[K, V] {
	return &fakeUpstream[K, V]{out: NewEventQueue[K, V](0)}
}

func (f *fakeUpstream[K, V]) push(rec Record[K, V]) {
	f.out.Push(NewEnvelope(&rec, nil))
}

func (f *fakeUpstream[K, V]) Name() string                 { return "fake_upstream" }
func (f *fakeUpstream[K, V]) Start(StartOffset) error      { return nil }
func (f *fakeUpstream[K, V]) Close() error                 { return nil }
func (f *fakeUpstream[K, V]) Process(now int64) int        { return 0 }
func (f *fakeUpstream[K, V]) EOF() bool                    { return f.out.Size() == 0 }
func (f *fakeUpstream[K, V]) QueueSize() int               { return f.out.Size() }
func (f *fakeUpstream[K, V]) NextEventTime() (int64, bool) { return f.out.NextEventTime() }
func (f *fakeUpstream[K, V]) Commit(flush bool) error      { return nil }
func (f *fakeUpstream[K, V]) Flush() error                 { return nil }
func (f *fakeUpstream[K, V]) Partition() int32             { return 0 }
func (f *fakeUpstream[K, V]) EachMetric(fn func(prometheus.Collector)) {}
func (f *fakeUpstream[K, V]) Output() *EventQueue[K, V] { return f.out }

// fakeTable is a minimal tableSide[K,V]/TableStore-shaped fixture: a plain
// map with Processor boilerplate, used to drive join tests without a real
// MaterializedTable or state store.
type fakeTable[K comparable, V any] struct {
	values map[K]Record[K, V]
}

func newFakeTable[K comparable, V any]() *fakeTable[K, V] {
	return &fakeTable[K, V]{values: map[K]Record[K, V]{}}
}

func (f *fakeTable[K, V]) put(key K, value V, eventTimeMs int64) {
	f.values[key] = NewRecord(key, value, eventTimeMs)
}

func (f *fakeTable[K, V]) remove(key K) {
	delete(f.values, key)
}

func (f *fakeTable[K, V]) Get(key K) (Record[K, V], bool) {
	rec, ok := f.values[key]
	return rec, ok
}

func (f *fakeTable[K, V]) Name() string                 { return "fake_table" }
func (f *fakeTable[K, V]) Start(StartOffset) error      { return nil }
func (f *fakeTable[K, V]) Close() error                 { return nil }
func (f *fakeTable[K, V]) Process(now int64) int        { return 0 }
func (f *fakeTable[K, V]) EOF() bool                    { return true }
func (f *fakeTable[K, V]) QueueSize() int               { return 0 }
func (f *fakeTable[K, V]) NextEventTime() (int64, bool) { return 0, false }
func (f *fakeTable[K, V]) Commit(flush bool) error      { return nil }
func (f *fakeTable[K, V]) Flush() error                 { return nil }
func (f *fakeTable[K, V]) Partition() int32             { return 0 }
func (f *fakeTable[K, V]) EachMetric(fn func(prometheus.Collector))    {}

// fakeTableOperand is a tableOperand[K,V] fixture for table-table join
// tests: it pairs a fakeUpstream's drainable Output queue (signaling which
// keys changed this tick) with an independently-settable values map (what
// Get returns), mirroring how MaterializedTable applies to its store before
// pushing the change onto its own output queue.
type fakeTableOperand[K comparable, V any] struct {
	*fakeUpstream[K, V]
	values map[K]Record[K, V]
}

func newFakeTableOperand[K comparable, V any]() *fakeTableOperand[K, V] {
	return &fakeTableOperand[K, V]{fakeUpstream: newFakeUpstream[K, V](), values: map[K]Record[K, V]{}}
}

// set applies a value to the operand's store and pushes a change envelope
// onto its output queue, as MaterializedTable.Process does in one step.
func (f *fakeTableOperand[K, V]) set(key K, value V, eventTimeMs int64) {
	f.values[key] = NewRecord(key, value, eventTimeMs)
	f.push(NewRecord(key, value, eventTimeMs))
}

// delete tombstones key: removed from the store, and a tombstone envelope
// pushed so the join observes the change.
func (f *fakeTableOperand[K, V]) delete(key K, eventTimeMs int64) {
	delete(f.values, key)
	tomb := Tombstone[K, V](key, eventTimeMs)
	f.out.Push(NewEnvelope(&tomb, nil))
}

func (f *fakeTableOperand[K, V]) Get(key K) (Record[K, V], bool) {
	rec, ok := f.values[key]
	return rec, ok
}
