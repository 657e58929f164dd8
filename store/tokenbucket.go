package store

import "sync"

// bucketEntry is the per-key state kept by MemTokenBucket: the current token
// level and the processing-time of the last Consume call.
type bucketEntry struct {
	tokens float64
	lastTs int64
}

// MemTokenBucket is the keyed rate-limiting store (mem_token_bucket). Each
// key owns an independent bucket of the given capacity, refilling at rate
// tokens per second of processing time. The ThroughputLimit and RateLimit
// operators in package streams do not use this type; they carry their own
// private copy of the same algorithm.
type MemTokenBucket struct {
	mu       sync.Mutex
	buckets  map[string]*bucketEntry
	capacity float64
	rate     float64 // tokens per second
}

// NewMemTokenBucket returns a token-bucket store with the given per-key
// capacity and refill rate (tokens/second).
func NewMemTokenBucket(capacity float64, ratePerSecond float64) *MemTokenBucket {
	return &MemTokenBucket{
		buckets:  make(map[string]*bucketEntry),
		capacity: capacity,
		rate:     ratePerSecond,
	}
}

// Consume attempts to take one token from key's bucket at processing-time
// tsMs (epoch milliseconds). It ages the bucket by (ts-last)*rate up to
// capacity, then decrements by one if at least one token is available.
// Returns true if a token was consumed.
func (b *MemTokenBucket) Consume(key string, tsMs int64) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	e, ok := b.buckets[key]
	if !ok {
		e = &bucketEntry{tokens: b.capacity, lastTs: tsMs}
		b.buckets[key] = e
	} else if tsMs > e.lastTs {
		elapsedSeconds := float64(tsMs-e.lastTs) / 1000.0
		e.tokens += elapsedSeconds * b.rate
		if e.tokens > b.capacity {
			e.tokens = b.capacity
		}
		e.lastTs = tsMs
	}
	if e.tokens >= 1 {
		e.tokens -= 1
		return true
	}
	return false
}

// Close is a no-op: the bucket store holds no durable state (it backs a
// purely processing-time-scoped operator, not a materialized view).
func (b *MemTokenBucket) Close() error { return nil }
