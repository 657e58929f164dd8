package streams

import "github.com/prometheus/client_golang/prometheus"

// TableStore is the subset of store.Store[K,V]'s method set that
// MaterializedTable needs. It is declared here, rather than
// imported from package store, because package store itself depends on
// package streams for the Record/Codec types — store's concrete types
// (store.MemKV, store.OrderedKV, ...) satisfy this interface structurally
// without either package importing the other.
type TableStore[K any, V any] interface {
	Get(key K) (Record[K, V], bool)
	Insert(rec Record[K, V], offset int64)
	Offset() int64
	Each(fn func(rec Record[K, V]) bool)
	Commit(flush bool) error
	Close() error
}

// Clearable is implemented by stores that can be emptied in place
// (store.MemKV.Clear, store.MemCounter.Clear), used by
// MaterializedTable/CountByKey's Start(Beginning) handling.
type Clearable interface {
	Clear()
}

// MaterializedTable wraps an upstream (typically a PartitionSource) and a
// keyed TableStore: every incoming envelope is applied to the store, then
// forwarded downstream unchanged.
type MaterializedTable[K comparable, V any] struct {
	base
	up    upstream[K, V]
	out   *EventQueue[K, V]
	store TableStore[K, V]

	// resumeFloor is the store's persisted offset at Start time when
	// starting anywhere other than Beginning; only records with a strictly
	// greater offset are applied, so a restart never re-applies records
	// the store already has.
	resumeFloor int64
}

// NewMaterializedTable constructs a MaterializedTable backed by st.
func NewMaterializedTable[K comparable, V any](name string, up upstream[K, V], st TableStore[K, V], registry *prometheus.Registry) *MaterializedTable[K, V] {
	return &MaterializedTable[K, V]{
		base:        newBase(name, up.Partition(), registry, Tags{Kind: "table"}),
		up:          up,
		out:         NewEventQueue[K, V](0),
		store:       st,
		resumeFloor: -1,
	}
}

// Get returns the table's current value for key, or ok=false if absent or
// tombstoned.
func (t *MaterializedTable[K, V]) Get(key K) (Record[K, V], bool) {
	return t.store.Get(key)
}

// Each iterates every live record in the table. Iteration order is
// unspecified.
func (t *MaterializedTable[K, V]) Each(fn func(Record[K, V]) bool) {
	t.store.Each(fn)
}

func (t *MaterializedTable[K, V]) Output() *EventQueue[K, V] { return t.out }

// Start clears the store first if offset == Beginning and the store
// implements Clearable; a store without Clear (store.OrderedKV) keeps its
// existing records. For any other offset it leaves the store's persisted
// offset in place so only newer records get applied. For that persisted
// state to actually be present, the store must have been constructed
// through its restoring open path (store.OpenMemKV, store.OpenOrderedKV),
// not a bare ephemeral constructor.
func (t *MaterializedTable[K, V]) Start(offset StartOffset) error {
	if offset == Beginning {
		if c, ok := t.store.(Clearable); ok {
			c.Clear()
		}
		t.resumeFloor = -1
	} else {
		t.resumeFloor = t.store.Offset()
	}
	return t.up.Start(offset)
}

func (t *MaterializedTable[K, V]) Close() error {
	if err := t.up.Close(); err != nil {
		return err
	}
	return t.store.Close()
}

func (t *MaterializedTable[K, V]) EOF() bool                    { return t.up.EOF() }
func (t *MaterializedTable[K, V]) QueueSize() int               { return t.up.QueueSize() }
func (t *MaterializedTable[K, V]) NextEventTime() (int64, bool) { return t.up.NextEventTime() }

func (t *MaterializedTable[K, V]) Commit(flush bool) error {
	if err := t.store.Commit(flush); err != nil {
		return err
	}
	return t.up.Commit(flush)
}

func (t *MaterializedTable[K, V]) Process(now int64) int {
	handled := t.up.Process(now)
	src := t.up.Output()
	for {
		env, ok := src.Peek()
		if !ok || (env.Record != nil && env.Record.EventTimeMs > now) {
			break
		}
		src.Pop()
		if env.HasRecord() {
			offset := env.Marker.Offset()
			if offset > t.resumeFloor {
				t.store.Insert(*env.Record, offset)
			}
		}
		t.out.Push(env)
	}
	return handled
}

func (t *MaterializedTable[K, V]) Flush() error {
	for !t.EOF() {
		if t.Process(maxEventTime) == 0 {
			break
		}
	}
	return t.Commit(true)
}
