// Package store provides the pluggable keyed state-store contract
// and its five variants: mem_kv,
// mem_counter, mem_token_bucket, mem_windowed, and ordered_kv.
package store

import "github.com/5l1v3r1/kspp-go/streams"

// Store is the keyed state-store contract. A processor exclusively owns its
// store(s); stores are never touched from background I/O threads.
//
// Invariants:
//   - Offset() is monotone non-decreasing.
//   - after Commit(true) returns, Offset() is durable.
//   - a tombstone insert with EventTimeMs >= the stored record's time
//     erases the key.
//   - a non-tombstone insert into mem_kv, mem_windowed or ordered_kv
//     replaces the stored record, event-time included; mem_counter adds to
//     the stored count and keeps the greater of the two event-times.
type Store[K comparable, V any] interface {
	// Get returns the current record for key, or ok=false if absent or
	// tombstoned.
	Get(key K) (rec streams.Record[K, V], ok bool)

	// Insert applies rec at offset, per the variant's merge semantics.
	Insert(rec streams.Record[K, V], offset int64)

	// Commit persists the store. flush=true blocks until the offset file
	// is durable on disk; flush=false is best-effort.
	Commit(flush bool) error

	// Offset returns the highest offset applied to this store so far, or
	// -1 if none.
	Offset() int64

	// Each iterates every live (non-tombstoned) record. Iteration order is
	// unspecified except where a variant documents otherwise (ordered_kv
	// iterates in key order; mem_windowed iterates only currently live
	// slots).
	Each(fn func(rec streams.Record[K, V]) bool)

	// Close releases any resources (open files, directories) held by the
	// store. Idempotent.
	Close() error
}
