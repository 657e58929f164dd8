package store

import (
	"encoding/binary"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/5l1v3r1/kspp-go/streams"
)

var dataBucket = []byte("data")

// OrderedKV is the on-disk, key-ordered state store, backed by a single
// bbolt file per partition directory. Values are stored with an 8-byte
// little-endian event-time prefix followed by the codec-encoded value.
// Offsets are persisted to the shared offset.bin sidecar on Commit(true) or
// whenever uncommitted lag exceeds 10000 records.
type OrderedKV[K comparable, V any] struct {
	mu            sync.Mutex
	db            *bolt.DB
	dir           string
	keyCodec      streams.Codec[K]
	valueCodec    streams.Codec[V]
	offset        int64
	committed     int64
	uncommitted   int
	flushLagLimit int
}

const defaultFlushLagLimit = 10_000

// OpenOrderedKV opens (creating if necessary) the bbolt file under dir for
// this store, using keyCodec/valueCodec to (de)serialize keys and values.
func OpenOrderedKV[K comparable, V any](dir string, keyCodec streams.Codec[K], valueCodec streams.Codec[V]) (*OrderedKV[K, V], error) {
	db, err := bolt.Open(filepath.Join(dir, "data.bolt"), 0o644, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("store: open ordered_kv: %w", err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(dataBucket)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	offset, err := ReadOffset(dir)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return &OrderedKV[K, V]{
		db: db, dir: dir,
		keyCodec: keyCodec, valueCodec: valueCodec,
		offset: offset, committed: offset,
		flushLagLimit: defaultFlushLagLimit,
	}, nil
}

func encodeStoredValue(eventTimeMs int64, payload []byte) []byte {
	out := make([]byte, 8+len(payload))
	binary.LittleEndian.PutUint64(out[:8], uint64(eventTimeMs))
	copy(out[8:], payload)
	return out
}

func decodeStoredValue(b []byte) (eventTimeMs int64, payload []byte) {
	eventTimeMs = int64(binary.LittleEndian.Uint64(b[:8]))
	payload = b[8:]
	return
}

// Get performs a single point lookup by key.
func (s *OrderedKV[K, V]) Get(key K) (streams.Record[K, V], bool) {
	kb, err := s.keyCodec.Encode(key)
	if err != nil {
		return streams.Record[K, V]{}, false
	}
	var found bool
	var rec streams.Record[K, V]
	_ = s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(dataBucket)
		raw := b.Get(kb)
		if raw == nil {
			return nil
		}
		eventTimeMs, payload := decodeStoredValue(raw)
		v, err := s.valueCodec.Decode(payload)
		if err != nil {
			return nil
		}
		rec = streams.NewRecord(key, v, eventTimeMs)
		found = true
		return nil
	})
	return rec, found
}

// Insert writes rec at offset, or deletes the key if rec is a tombstone and
// its event-time is at least as new as the stored record's.
func (s *OrderedKV[K, V]) Insert(rec streams.Record[K, V], offset int64) {
	kb, err := s.keyCodec.Encode(rec.Key)
	if err != nil {
		return
	}
	_ = s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(dataBucket)
		if rec.IsTombstone() {
			existing := b.Get(kb)
			if existing == nil {
				return nil
			}
			existingTime, _ := decodeStoredValue(existing)
			if rec.EventTimeMs >= existingTime {
				return b.Delete(kb)
			}
			return nil
		}
		payload, err := s.valueCodec.Encode(*rec.Value)
		if err != nil {
			return nil
		}
		return b.Put(kb, encodeStoredValue(rec.EventTimeMs, payload))
	})
	s.mu.Lock()
	if offset > s.offset {
		s.offset = offset
	}
	s.uncommitted++
	lag := s.uncommitted
	s.mu.Unlock()
	if lag > s.flushLagLimit {
		_ = s.Commit(true)
	}
}

// Each iterates every live record in key order.
func (s *OrderedKV[K, V]) Each(fn func(rec streams.Record[K, V]) bool) {
	_ = s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(dataBucket).Cursor()
		for kb, raw := c.First(); kb != nil; kb, raw = c.Next() {
			key, err := s.keyCodec.Decode(kb)
			if err != nil {
				continue
			}
			eventTimeMs, payload := decodeStoredValue(raw)
			v, err := s.valueCodec.Decode(payload)
			if err != nil {
				continue
			}
			if !fn(streams.NewRecord(key, v, eventTimeMs)) {
				return nil
			}
		}
		return nil
	})
}

func (s *OrderedKV[K, V]) Offset() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.offset
}

// Commit(true) persists the current offset to offset.bin; Commit(false)
// writes nothing. Data mutations are
// already durable in bbolt's own file at the end of each Insert's
// transaction; Commit only needs to catch up the sidecar offset file, which
// is what makes the offset atomic with respect to a crash.
func (s *OrderedKV[K, V]) Commit(flush bool) error {
	s.mu.Lock()
	offset := s.offset
	s.mu.Unlock()
	if !flush {
		return nil
	}
	if err := WriteOffset(s.dir, offset); err != nil {
		return err
	}
	s.mu.Lock()
	s.committed = offset
	s.uncommitted = 0
	s.mu.Unlock()
	return nil
}

func (s *OrderedKV[K, V]) Close() error {
	return s.db.Close()
}
