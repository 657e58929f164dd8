package store

import (
	"sync"

	"github.com/5l1v3r1/kspp-go/streams"
)

// MemKV is the in-memory hash-map state store. Insert replaces by key; a
// tombstone removes the key if its event-time is at least as new as the
// stored record's. Commit(true) writes a zstd-compressed gob snapshot to a
// sidecar file in dir, alongside the shared offset.bin.
type MemKV[K comparable, V any] struct {
	mu     sync.RWMutex
	data   map[K]streams.Record[K, V]
	order  []K // insertion order, for Each determinism in tests
	offset int64
	dir    string
}

// NewMemKV returns an empty MemKV whose Commit(true) writes its snapshot
// under dir. Pass an empty dir for a purely ephemeral store.
func NewMemKV[K comparable, V any](dir string) *MemKV[K, V] {
	return &MemKV[K, V]{data: make(map[K]streams.Record[K, V]), offset: -1, dir: dir}
}

// OpenMemKV returns a MemKV bound to dir, restoring the snapshot and offset
// a previous run committed there, if any — the same restore-on-open
// contract OrderedKV has. Use this, not NewMemKV, when the store backs a
// table that should survive a restart.
func OpenMemKV[K comparable, V any](dir string) (*MemKV[K, V], error) {
	s := NewMemKV[K, V](dir)
	if err := s.Load(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *MemKV[K, V]) Get(key K) (streams.Record[K, V], bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.data[key]
	if !ok || rec.IsTombstone() {
		return streams.Record[K, V]{}, false
	}
	return rec, true
}

func (s *MemKV[K, V]) Insert(rec streams.Record[K, V], offset int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, had := s.data[rec.Key]
	if rec.IsTombstone() {
		if had && rec.EventTimeMs >= existing.EventTimeMs {
			delete(s.data, rec.Key)
			for i, k := range s.order {
				if k == rec.Key {
					s.order = append(s.order[:i], s.order[i+1:]...)
					break
				}
			}
		}
	} else {
		if !had {
			s.order = append(s.order, rec.Key)
		}
		s.data[rec.Key] = rec
	}
	if offset > s.offset {
		s.offset = offset
	}
}

func (s *MemKV[K, V]) Offset() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.offset
}

func (s *MemKV[K, V]) Each(fn func(rec streams.Record[K, V]) bool) {
	s.mu.RLock()
	snapshot := make([]streams.Record[K, V], 0, len(s.data))
	for _, k := range s.order {
		if rec, ok := s.data[k]; ok {
			snapshot = append(snapshot, rec)
		}
	}
	s.mu.RUnlock()
	for _, rec := range snapshot {
		if !fn(rec) {
			return
		}
	}
}

func (s *MemKV[K, V]) Commit(flush bool) error {
	if s.dir == "" {
		return nil
	}
	if err := WriteOffset(s.dir, s.offset); err != nil {
		return err
	}
	if !flush {
		return nil
	}
	return s.snapshot()
}

func (s *MemKV[K, V]) snapshot() error {
	s.mu.RLock()
	entries := make([]snapshotEntry[K, V], 0, len(s.data))
	for _, k := range s.order {
		if rec, ok := s.data[k]; ok {
			entries = append(entries, snapshotEntry[K, V]{Key: rec.Key, Value: *rec.Value, EventTimeMs: rec.EventTimeMs})
		}
	}
	s.mu.RUnlock()
	return writeSnapshot(s.dir, entries)
}

// Load restores a previously committed snapshot from dir, if one exists.
func (s *MemKV[K, V]) Load() error {
	entries, err := readSnapshot[K, V](s.dir)
	if err != nil {
		return err
	}
	offset, err := ReadOffset(s.dir)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range entries {
		v := e.Value
		rec := streams.Record[K, V]{Key: e.Key, Value: &v, EventTimeMs: e.EventTimeMs}
		if _, had := s.data[e.Key]; !had {
			s.order = append(s.order, e.Key)
		}
		s.data[e.Key] = rec
	}
	s.offset = offset
	return nil
}

// Clear empties the store in place, used by MaterializedTable on
// Start(Beginning).
func (s *MemKV[K, V]) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data = make(map[K]streams.Record[K, V])
	s.order = nil
	s.offset = -1
}

func (s *MemKV[K, V]) Close() error { return nil }
