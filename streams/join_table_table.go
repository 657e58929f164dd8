package streams

import "github.com/prometheus/client_golang/prometheus"

// tableOperand is what a table-table join needs from each side: it must
// both be drainable as an upstream (Output queue of its own applied
// envelopes) and offer a keyed point lookup (Get), the shape
// MaterializedTable already provides.
type tableOperand[K comparable, V any] interface {
	upstream[K, V]
	Get(key K) (Record[K, V], bool)
}

// KTableJoinMode selects the table-table join's emission semantics.
type KTableJoinMode int

const (
	// KTableLeftJoin emits (left, Option<right>) when left exists, a
	// tombstone when left becomes absent.
	KTableLeftJoin KTableJoinMode = iota
	// KTableInnerJoin emits (left, right) when both are present, a
	// tombstone otherwise.
	KTableInnerJoin
	// KTableOuterJoin emits whenever either side exists.
	KTableOuterJoin
)

// KTableJoin joins two MaterializedTables keyed identically, emitting on
// any change to either side. Within one tick, the left table is always
// drained and applied before the right, so a single triggering
// record produces exactly one downstream emission even if both sides
// happen to change in the same tick.
type KTableJoin[K comparable, LV any, RV any] struct {
	base
	left  tableOperand[K, LV]
	right tableOperand[K, RV]
	out   *EventQueue[K, Joined[LV, RV]]
	mode  KTableJoinMode
}

// NewKTableJoin constructs a table-table join of the given mode.
func NewKTableJoin[K comparable, LV any, RV any](name string, left tableOperand[K, LV], right tableOperand[K, RV], mode KTableJoinMode, registry *prometheus.Registry) *KTableJoin[K, LV, RV] {
	return &KTableJoin[K, LV, RV]{
		base:  newBase(name, left.Partition(), registry, Tags{Kind: "ktable_join"}),
		left:  left,
		right: right,
		out:   NewEventQueue[K, Joined[LV, RV]](0),
		mode:  mode,
	}
}

func (j *KTableJoin[K, LV, RV]) Output() *EventQueue[K, Joined[LV, RV]] { return j.out }

func (j *KTableJoin[K, LV, RV]) Start(offset StartOffset) error {
	if err := j.left.Start(offset); err != nil {
		return err
	}
	return j.right.Start(offset)
}

func (j *KTableJoin[K, LV, RV]) Close() error {
	if err := j.left.Close(); err != nil {
		return err
	}
	return j.right.Close()
}

func (j *KTableJoin[K, LV, RV]) EOF() bool {
	return j.left.EOF() && j.right.EOF()
}

func (j *KTableJoin[K, LV, RV]) QueueSize() int {
	return j.left.QueueSize() + j.right.QueueSize()
}

func (j *KTableJoin[K, LV, RV]) NextEventTime() (int64, bool) {
	lt, lok := j.left.NextEventTime()
	rt, rok := j.right.NextEventTime()
	switch {
	case lok && rok:
		if lt < rt {
			return lt, true
		}
		return rt, true
	case lok:
		return lt, true
	case rok:
		return rt, true
	default:
		return 0, false
	}
}

func (j *KTableJoin[K, LV, RV]) Commit(flush bool) error {
	if err := j.left.Commit(flush); err != nil {
		return err
	}
	return j.right.Commit(flush)
}

func (j *KTableJoin[K, LV, RV]) emit(key K, eventTimeMs int64, marker *CommitMarker) {
	leftRec, leftOK := j.left.Get(key)
	rightRec, rightOK := j.right.Get(key)

	var emitLeft, emitRight, tombstone bool
	switch j.mode {
	case KTableLeftJoin:
		emitLeft = leftOK
		emitRight = rightOK
		tombstone = !leftOK
	case KTableInnerJoin:
		both := leftOK && rightOK
		emitLeft = both
		emitRight = both
		tombstone = !both
	case KTableOuterJoin:
		emitLeft = leftOK
		emitRight = rightOK
		tombstone = !leftOK && !rightOK
	}

	if tombstone {
		tomb := Tombstone[K, Joined[LV, RV]](key, eventTimeMs)
		j.out.Push(Envelope[K, Joined[LV, RV]]{Record: &tomb, Marker: marker})
		return
	}
	joined := Joined[LV, RV]{}
	if emitLeft {
		joined.Left = *leftRec.Value
	}
	if emitRight {
		rv := *rightRec.Value
		joined.Right = &rv
	}
	rec := NewRecord(key, joined, eventTimeMs)
	j.out.Push(Envelope[K, Joined[LV, RV]]{Record: &rec, Marker: marker})
}

func (j *KTableJoin[K, LV, RV]) Process(now int64) int {
	handled := j.left.Process(now)
	handled += j.right.Process(now)

	leftSrc := j.left.Output()
	for {
		env, ok := leftSrc.Peek()
		if !ok || (env.Record != nil && env.Record.EventTimeMs > now) {
			break
		}
		leftSrc.Pop()
		if env.HasRecord() {
			j.emit(env.Record.Key, env.Record.EventTimeMs, env.Marker)
		} else {
			env.Release()
		}
	}

	rightSrc := j.right.Output()
	for {
		env, ok := rightSrc.Peek()
		if !ok || (env.Record != nil && env.Record.EventTimeMs > now) {
			break
		}
		rightSrc.Pop()
		if env.HasRecord() {
			j.emit(env.Record.Key, env.Record.EventTimeMs, env.Marker)
		} else {
			env.Release()
		}
	}
	return handled
}

func (j *KTableJoin[K, LV, RV]) Flush() error {
	for !j.EOF() {
		if j.Process(maxEventTime) == 0 {
			break
		}
	}
	return j.Commit(true)
}
