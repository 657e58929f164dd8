package streams

import "github.com/prometheus/client_golang/prometheus"

// CounterStore is the subset of store.MemCounter's method set CountByKey
// needs, declared locally for the same import-cycle reason as TableStore.
type CounterStore[K any] interface {
	Add(key K, delta int64, eventTimeMs int64, offset int64)
	Tombstone(key K, eventTimeMs int64, offset int64)
	Each(fn func(rec Record[K, int64]) bool)
	Offset() int64
	Commit(flush bool) error
	Close() error
}

// CountByKey increments a per-key counter on every non-tombstone input
// record (value ignored) and periodically emits the full store contents,
// stamped with the punctuation time, every punctuateIntervalMs of
// event-time.
type CountByKey[K comparable] struct {
	base
	up                upstream[K, any]
	out               *EventQueue[K, int64]
	store             CounterStore[K]
	punctuateInterval int64
	lastPunctuate     int64
	havePunctuate     bool
}

// NewCountByKey constructs a CountByKey operator, punctuating every
// punctuateIntervalMs of event-time.
func NewCountByKey[K comparable](name string, up upstream[K, any], st CounterStore[K], punctuateIntervalMs int64, registry *prometheus.Registry) *CountByKey[K] {
	return &CountByKey[K]{
		base:              newBase(name, up.Partition(), registry, Tags{Kind: "count_by_key"}),
		up:                up,
		out:               NewEventQueue[K, int64](0),
		store:             st,
		punctuateInterval: punctuateIntervalMs,
	}
}

func (c *CountByKey[K]) Output() *EventQueue[K, int64] { return c.out }

// Start clears the store when starting from Beginning.
func (c *CountByKey[K]) Start(offset StartOffset) error {
	if offset == Beginning {
		if cl, ok := c.store.(Clearable); ok {
			cl.Clear()
		}
	}
	return c.up.Start(offset)
}

func (c *CountByKey[K]) Close() error {
	if err := c.up.Close(); err != nil {
		return err
	}
	return c.store.Close()
}

func (c *CountByKey[K]) EOF() bool                    { return c.up.EOF() }
func (c *CountByKey[K]) QueueSize() int               { return c.up.QueueSize() }
func (c *CountByKey[K]) NextEventTime() (int64, bool) { return c.up.NextEventTime() }

func (c *CountByKey[K]) Commit(flush bool) error {
	if err := c.store.Commit(flush); err != nil {
		return err
	}
	return c.up.Commit(flush)
}

func (c *CountByKey[K]) Process(now int64) int {
	handled := c.up.Process(now)
	src := c.up.Output()
	for {
		env, ok := src.Peek()
		if !ok || (env.Record != nil && env.Record.EventTimeMs > now) {
			break
		}
		src.Pop()
		if env.HasRecord() {
			offset := env.Marker.Offset()
			if env.Record.IsTombstone() {
				c.store.Tombstone(env.Record.Key, env.Record.EventTimeMs, offset)
			} else {
				c.store.Add(env.Record.Key, 1, env.Record.EventTimeMs, offset)
			}
			if !c.havePunctuate {
				c.lastPunctuate = env.Record.EventTimeMs
				c.havePunctuate = true
			}
		}
		env.Release()
	}
	c.maybePunctuate(now)
	return handled
}

// maybePunctuate emits the full store contents, stamped with the start of
// the window that just closed, once event-time has advanced by at least
// punctuateInterval since the last emission. Punctuation is driven by
// event-time, never wall-clock, so a pause in inputs never emits, and a
// single very late record never retroactively re-emits an earlier window.
func (c *CountByKey[K]) maybePunctuate(now int64) {
	if !c.havePunctuate || c.punctuateInterval <= 0 {
		return
	}
	for c.lastPunctuate+c.punctuateInterval <= now {
		windowStart := c.lastPunctuate
		c.store.Each(func(rec Record[K, int64]) bool {
			out := NewRecord(rec.Key, *rec.Value, windowStart)
			c.out.Push(NewEnvelope[K, int64](&out, nil))
			return true
		})
		c.lastPunctuate += c.punctuateInterval
	}
}

func (c *CountByKey[K]) Flush() error {
	for !c.EOF() {
		if c.Process(maxEventTime) == 0 {
			break
		}
	}
	return c.Commit(true)
}
