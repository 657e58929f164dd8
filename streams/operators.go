package streams

import "github.com/prometheus/client_golang/prometheus"

// upstream is the minimal shape every stateless operator pulls from: an
// Output queue plus the Processor contract for recursive start/close/EOF.
type upstream[K any, V any] interface {
	Processor
	Output() *EventQueue[K, V]
}

// Filter forwards an envelope only if pred(record) is true. A recordless
// envelope (pure heartbeat) is always forwarded unchanged.
type Filter[K any, V any] struct {
	base
	up   upstream[K, V]
	out  *EventQueue[K, V]
	pred func(Record[K, V]) bool
}

// NewFilter constructs a Filter operator reading from up.
func NewFilter[K any, V any](name string, up upstream[K, V], pred func(Record[K, V]) bool, registry *prometheus.Registry) *Filter[K, V] {
	tags := Tags{Kind: "filter"}
	return &Filter[K, V]{base: newBase(name, up.Partition(), registry, tags), up: up, out: NewEventQueue[K, V](0), pred: pred}
}

func (f *Filter[K, V]) Output() *EventQueue[K, V]      { return f.out }
func (f *Filter[K, V]) Start(offset StartOffset) error { return f.up.Start(offset) }
func (f *Filter[K, V]) Close() error                   { return f.up.Close() }
func (f *Filter[K, V]) EOF() bool                      { return f.up.EOF() }
func (f *Filter[K, V]) QueueSize() int                 { return f.up.QueueSize() }
func (f *Filter[K, V]) NextEventTime() (int64, bool)   { return f.up.NextEventTime() }
func (f *Filter[K, V]) Commit(flush bool) error        { return f.up.Commit(flush) }

func (f *Filter[K, V]) Process(now int64) int {
	handled := f.up.Process(now)
	src := f.up.Output()
	for {
		env, ok := src.Peek()
		if !ok || (env.Record != nil && env.Record.EventTimeMs > now) {
			break
		}
		src.Pop()
		if !env.HasRecord() || f.pred(*env.Record) {
			f.out.Push(env)
		} else {
			f.metrics.IncCounter("filter_dropped_total")
			env.Release()
		}
	}
	return handled
}

func (f *Filter[K, V]) Flush() error {
	for !f.EOF() {
		if f.Process(maxEventTime) == 0 {
			break
		}
	}
	return f.Commit(true)
}

// Map replaces a record's value with f(K, V), key preserved; the output
// value type MV may differ from V.
type Map[K any, V any, MV any] struct {
	base
	up  upstream[K, V]
	out *EventQueue[K, MV]
	f   func(K, V) MV
}

// NewMap constructs a Map operator.
func NewMap[K any, V any, MV any](name string, up upstream[K, V], f func(K, V) MV, registry *prometheus.Registry) *Map[K, V, MV] {
	return &Map[K, V, MV]{base: newBase(name, up.Partition(), registry, Tags{Kind: "map"}), up: up, out: NewEventQueue[K, MV](0), f: f}
}

func (m *Map[K, V, MV]) Output() *EventQueue[K, MV]     { return m.out }
func (m *Map[K, V, MV]) Start(offset StartOffset) error { return m.up.Start(offset) }
func (m *Map[K, V, MV]) Close() error                   { return m.up.Close() }
func (m *Map[K, V, MV]) EOF() bool                      { return m.up.EOF() }
func (m *Map[K, V, MV]) QueueSize() int                 { return m.up.QueueSize() }
func (m *Map[K, V, MV]) NextEventTime() (int64, bool)   { return m.up.NextEventTime() }
func (m *Map[K, V, MV]) Commit(flush bool) error        { return m.up.Commit(flush) }

func (m *Map[K, V, MV]) Process(now int64) int {
	handled := m.up.Process(now)
	src := m.up.Output()
	for {
		env, ok := src.Peek()
		if !ok || (env.Record != nil && env.Record.EventTimeMs > now) {
			break
		}
		src.Pop()
		if !env.HasRecord() {
			m.out.Push(Heartbeat[K, MV](env.Marker))
			continue
		}
		if env.Record.IsTombstone() {
			tomb := Tombstone[K, MV](env.Record.Key, env.Record.EventTimeMs)
			m.out.Push(Envelope[K, MV]{Record: &tomb, Marker: env.Marker, PartitionHash: env.PartitionHash})
			continue
		}
		mv := m.f(env.Record.Key, *env.Record.Value)
		rec := NewRecord(env.Record.Key, mv, env.Record.EventTimeMs)
		m.out.Push(Envelope[K, MV]{Record: &rec, Marker: env.Marker, PartitionHash: env.PartitionHash})
	}
	return handled
}

func (m *Map[K, V, MV]) Flush() error {
	for !m.EOF() {
		if m.Process(maxEventTime) == 0 {
			break
		}
	}
	return m.Commit(true)
}

// Pusher is handed to a FlatMap callback so it can emit zero or more output
// records for a single input record.
type Pusher[K any, MV any] struct {
	emit func(K, MV, int64)
}

// Push emits one output record sharing the input envelope's key/event-time
// override semantics: key and eventTimeMs are supplied explicitly so a
// flat-map can fan out to different keys if desired.
func (p Pusher[K, MV]) Push(key K, value MV, eventTimeMs int64) {
	p.emit(key, value, eventTimeMs)
}

// FlatMap hands each record to f along with a Pusher; every output record
// inherits the input envelope's marker (forked), so the marker completes
// only once every emitted record completes.
type FlatMap[K any, V any, MK any, MV any] struct {
	base
	up  upstream[K, V]
	out *EventQueue[MK, MV]
	f   func(rec Record[K, V], push Pusher[MK, MV])
}

// NewFlatMap constructs a FlatMap operator.
func NewFlatMap[K any, V any, MK any, MV any](name string, up upstream[K, V], f func(Record[K, V], Pusher[MK, MV]), registry *prometheus.Registry) *FlatMap[K, V, MK, MV] {
	return &FlatMap[K, V, MK, MV]{base: newBase(name, up.Partition(), registry, Tags{Kind: "flat_map"}), up: up, out: NewEventQueue[MK, MV](0), f: f}
}

func (fm *FlatMap[K, V, MK, MV]) Output() *EventQueue[MK, MV]    { return fm.out }
func (fm *FlatMap[K, V, MK, MV]) Start(offset StartOffset) error { return fm.up.Start(offset) }
func (fm *FlatMap[K, V, MK, MV]) Close() error                   { return fm.up.Close() }
func (fm *FlatMap[K, V, MK, MV]) EOF() bool                      { return fm.up.EOF() }
func (fm *FlatMap[K, V, MK, MV]) QueueSize() int                 { return fm.up.QueueSize() }
func (fm *FlatMap[K, V, MK, MV]) NextEventTime() (int64, bool)   { return fm.up.NextEventTime() }
func (fm *FlatMap[K, V, MK, MV]) Commit(flush bool) error        { return fm.up.Commit(flush) }

func (fm *FlatMap[K, V, MK, MV]) Process(now int64) int {
	handled := fm.up.Process(now)
	src := fm.up.Output()
	for {
		env, ok := src.Peek()
		if !ok || (env.Record != nil && env.Record.EventTimeMs > now) {
			break
		}
		src.Pop()
		if !env.HasRecord() {
			fm.out.Push(Heartbeat[MK, MV](env.Marker))
			continue
		}
		marker := env.Marker
		pusher := Pusher[MK, MV]{emit: func(key MK, value MV, eventTimeMs int64) {
			rec := NewRecord(key, value, eventTimeMs)
			fm.out.Push(Envelope[MK, MV]{Record: &rec, Marker: marker.Fork()})
		}}
		fm.f(*env.Record, pusher)
		// The original marker reference this envelope held is released
		// here; every Push above forked its own reference, so the marker
		// only completes once all forks and this release have happened.
		marker.Release()
	}
	return handled
}

func (fm *FlatMap[K, V, MK, MV]) Flush() error {
	for !fm.EOF() {
		if fm.Process(maxEventTime) == 0 {
			break
		}
	}
	return fm.Commit(true)
}

// Pipe is the identity operator, used for topology surgery:
// inserting a named seam in the graph without changing the data.
type Pipe[K any, V any] struct {
	base
	up upstream[K, V]
}

// NewPipe constructs a Pipe operator.
func NewPipe[K any, V any](name string, up upstream[K, V], registry *prometheus.Registry) *Pipe[K, V] {
	return &Pipe[K, V]{base: newBase(name, up.Partition(), registry, Tags{Kind: "pipe"}), up: up}
}

func (p *Pipe[K, V]) Output() *EventQueue[K, V]      { return p.up.Output() }
func (p *Pipe[K, V]) Start(offset StartOffset) error { return p.up.Start(offset) }
func (p *Pipe[K, V]) Close() error                   { return p.up.Close() }
func (p *Pipe[K, V]) Process(now int64) int          { return p.up.Process(now) }
func (p *Pipe[K, V]) EOF() bool                      { return p.up.EOF() }
func (p *Pipe[K, V]) QueueSize() int                 { return p.up.QueueSize() }
func (p *Pipe[K, V]) NextEventTime() (int64, bool)   { return p.up.NextEventTime() }
func (p *Pipe[K, V]) Commit(flush bool) error        { return p.up.Commit(flush) }
func (p *Pipe[K, V]) Flush() error                   { return p.up.Flush() }
