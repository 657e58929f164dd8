package streams

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// nowMs returns current wall-clock time in epoch milliseconds, the
// processing-time clock used by ThroughputLimit and RateLimit.
var nowMs = func() int64 { return time.Now().UnixMilli() }

// tokenBucket is the same per-key token-bucket algorithm as
// store.MemTokenBucket, kept as a private
// copy here rather than imported: package store depends on package streams
// for the Record/Codec types its Store contract is built on, so streams
// cannot import store back without a cycle. Both copies implement the same
// aging rule: tokens += (ts-last)*rate, capped at capacity.
type tokenBucket struct {
	mu       sync.Mutex
	buckets  map[string]*tokenBucketEntry
	capacity float64
	rate     float64
}

type tokenBucketEntry struct {
	tokens float64
	lastTs int64
}

func newTokenBucket(capacity, ratePerSecond float64) *tokenBucket {
	return &tokenBucket{buckets: make(map[string]*tokenBucketEntry), capacity: capacity, rate: ratePerSecond}
}

func (b *tokenBucket) consume(key string, tsMs int64) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	e, ok := b.buckets[key]
	if !ok {
		e = &tokenBucketEntry{tokens: b.capacity, lastTs: tsMs}
		b.buckets[key] = e
	} else if tsMs > e.lastTs {
		e.tokens += float64(tsMs-e.lastTs) / 1000.0 * b.rate
		if e.tokens > b.capacity {
			e.tokens = b.capacity
		}
		e.lastTs = tsMs
	}
	if e.tokens >= 1 {
		e.tokens--
		return true
	}
	return false
}

// ThroughputLimit gates forwarding with a capacity-1 token bucket refilling
// at ratePerSecond: if no token is available, the envelope stays in the
// queue and Process returns.
type ThroughputLimit[K any, V any] struct {
	base
	up     upstream[K, V]
	out    *EventQueue[K, V]
	bucket *tokenBucket
}

// NewThroughputLimit constructs a ThroughputLimit operator admitting at most
// ratePerSecond envelopes per second of processing time.
func NewThroughputLimit[K any, V any](name string, up upstream[K, V], ratePerSecond float64, registry *prometheus.Registry) *ThroughputLimit[K, V] {
	return &ThroughputLimit[K, V]{
		base:   newBase(name, up.Partition(), registry, Tags{Kind: "throughput_limit"}),
		up:     up,
		out:    NewEventQueue[K, V](0),
		bucket: newTokenBucket(1, ratePerSecond),
	}
}

func (t *ThroughputLimit[K, V]) Output() *EventQueue[K, V]      { return t.out }
func (t *ThroughputLimit[K, V]) Start(offset StartOffset) error { return t.up.Start(offset) }
func (t *ThroughputLimit[K, V]) Close() error                   { return t.up.Close() }
func (t *ThroughputLimit[K, V]) EOF() bool                      { return t.up.EOF() }
func (t *ThroughputLimit[K, V]) QueueSize() int                 { return t.up.QueueSize() }
func (t *ThroughputLimit[K, V]) NextEventTime() (int64, bool)   { return t.up.NextEventTime() }
func (t *ThroughputLimit[K, V]) Commit(flush bool) error        { return t.up.Commit(flush) }

const throughputLimitBucketKey = "_"

func (t *ThroughputLimit[K, V]) Process(now int64) int {
	handled := t.up.Process(now)
	src := t.up.Output()
	for {
		env, ok := src.Peek()
		if !ok || (env.Record != nil && env.Record.EventTimeMs > now) {
			break
		}
		if env.HasRecord() && !t.bucket.consume(throughputLimitBucketKey, nowMs()) {
			t.metrics.SetGauge("throughput_limit_blocked", 1)
			return handled
		}
		src.Pop()
		t.out.Push(env)
	}
	return handled
}

func (t *ThroughputLimit[K, V]) Flush() error {
	for !t.EOF() {
		if t.Process(maxEventTime) == 0 {
			break
		}
	}
	return t.Commit(true)
}

// keyFunc extracts a comparable string token for a record's key, used by
// RateLimit to key its per-key buckets without requiring K itself to be
// comparable in a way usable as a map key across arbitrary types.
type KeyFunc[K any] func(K) string

// RateLimit is the keyed token-bucket operator: it drops records that
// exceed a per-key rate: each key's bucket holds up to capacity tokens and
// refills at capacity tokens per windowMs, FIFO within a key.
type RateLimit[K any, V any] struct {
	base
	up      upstream[K, V]
	out     *EventQueue[K, V]
	bucket  *tokenBucket
	keyFunc KeyFunc[K]
}

// NewRateLimit constructs a RateLimit operator. capacity tokens refill over
// windowMs, i.e. the refill rate is capacity/(windowMs/1000) tokens/second.
func NewRateLimit[K any, V any](name string, up upstream[K, V], windowMs int64, capacity float64, keyFunc KeyFunc[K], registry *prometheus.Registry) *RateLimit[K, V] {
	ratePerSecond := capacity / (float64(windowMs) / 1000.0)
	return &RateLimit[K, V]{
		base:    newBase(name, up.Partition(), registry, Tags{Kind: "rate_limit"}),
		up:      up,
		out:     NewEventQueue[K, V](0),
		bucket:  newTokenBucket(capacity, ratePerSecond),
		keyFunc: keyFunc,
	}
}

func (r *RateLimit[K, V]) Output() *EventQueue[K, V]      { return r.out }
func (r *RateLimit[K, V]) Start(offset StartOffset) error { return r.up.Start(offset) }
func (r *RateLimit[K, V]) Close() error                   { return r.up.Close() }
func (r *RateLimit[K, V]) EOF() bool                      { return r.up.EOF() }
func (r *RateLimit[K, V]) QueueSize() int                 { return r.up.QueueSize() }
func (r *RateLimit[K, V]) NextEventTime() (int64, bool)   { return r.up.NextEventTime() }
func (r *RateLimit[K, V]) Commit(flush bool) error        { return r.up.Commit(flush) }

func (r *RateLimit[K, V]) Process(now int64) int {
	handled := r.up.Process(now)
	src := r.up.Output()
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
		key := r.keyFunc(env.Record.Key)
		if r.bucket.consume(key, nowMs()) {
			r.out.Push(env)
		} else {
			r.metrics.IncCounter("rate_limit_dropped_total")
			env.Release()
		}
	}
	return handled
}

func (r *RateLimit[K, V]) Flush() error {
	for !r.EOF() {
		if r.Process(maxEventTime) == 0 {
			break
		}
	}
	return r.Commit(true)
}
