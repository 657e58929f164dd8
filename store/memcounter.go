package store

import (
	"sync"

	"github.com/5l1v3r1/kspp-go/streams"
)

// counterEntry is the value kept for each key in MemCounter.
type counterEntry struct {
	value       int64
	eventTimeMs int64
}

// MemCounter is the in-memory aggregation store behind CountByKey. Unlike
// MemKV, a non-tombstone Insert *adds* its record's contribution to the
// stored value rather than replacing it; the stored event-time is always
// max(stored, incoming). A tombstone only takes effect if its event-time is
// >= the stored time, matching MemKV's tombstone rule. Commit(true) writes
// the same zstd-compressed gob snapshot MemKV does, alongside the shared
// offset.bin.
type MemCounter[K comparable] struct {
	mu     sync.RWMutex
	data   map[K]*counterEntry
	order  []K
	offset int64
	dir    string
}

// NewMemCounter returns an empty counter store. Pass an empty dir for a
// purely ephemeral store.
func NewMemCounter[K comparable](dir string) *MemCounter[K] {
	return &MemCounter[K]{data: make(map[K]*counterEntry), offset: -1, dir: dir}
}

// OpenMemCounter returns a MemCounter bound to dir, restoring the snapshot
// and offset a previous run committed there, if any. Use this, not
// NewMemCounter, when the counts should survive a restart.
func OpenMemCounter[K comparable](dir string) (*MemCounter[K], error) {
	s := NewMemCounter[K](dir)
	if err := s.Load(); err != nil {
		return nil, err
	}
	return s, nil
}

// Add increments key's counter by delta at eventTimeMs and offset. Ignoring
// the record's value is the caller's (CountByKey's) responsibility — Add
// always takes delta=1 for that use.
func (s *MemCounter[K]) Add(key K, delta int64, eventTimeMs int64, offset int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.data[key]
	if !ok {
		e = &counterEntry{}
		s.data[key] = e
		s.order = append(s.order, key)
	}
	e.value += delta
	if eventTimeMs > e.eventTimeMs {
		e.eventTimeMs = eventTimeMs
	}
	if offset > s.offset {
		s.offset = offset
	}
}

// Tombstone removes key's counter if eventTimeMs >= the stored event-time.
func (s *MemCounter[K]) Tombstone(key K, eventTimeMs int64, offset int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.data[key]; ok && eventTimeMs >= e.eventTimeMs {
		delete(s.data, key)
		for i, k := range s.order {
			if k == key {
				s.order = append(s.order[:i], s.order[i+1:]...)
				break
			}
		}
	}
	if offset > s.offset {
		s.offset = offset
	}
}

// Get returns the current count for key.
func (s *MemCounter[K]) Get(key K) (streams.Record[K, int64], bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.data[key]
	if !ok {
		return streams.Record[K, int64]{}, false
	}
	return streams.NewRecord(key, e.value, e.eventTimeMs), true
}

// Each iterates every live counter in insertion order.
func (s *MemCounter[K]) Each(fn func(rec streams.Record[K, int64]) bool) {
	s.mu.RLock()
	snapshot := make([]streams.Record[K, int64], 0, len(s.data))
	for _, k := range s.order {
		if e, ok := s.data[k]; ok {
			snapshot = append(snapshot, streams.NewRecord(k, e.value, e.eventTimeMs))
		}
	}
	s.mu.RUnlock()
	for _, rec := range snapshot {
		if !fn(rec) {
			return
		}
	}
}

func (s *MemCounter[K]) Offset() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.offset
}

func (s *MemCounter[K]) Commit(flush bool) error {
	if s.dir == "" {
		return nil
	}
	if err := WriteOffset(s.dir, s.Offset()); err != nil {
		return err
	}
	if !flush {
		return nil
	}
	return s.snapshot()
}

func (s *MemCounter[K]) snapshot() error {
	s.mu.RLock()
	entries := make([]snapshotEntry[K, int64], 0, len(s.data))
	for _, k := range s.order {
		if e, ok := s.data[k]; ok {
			entries = append(entries, snapshotEntry[K, int64]{Key: k, Value: e.value, EventTimeMs: e.eventTimeMs})
		}
	}
	s.mu.RUnlock()
	return writeSnapshot(s.dir, entries)
}

// Load restores a previously committed snapshot from dir, if one exists.
func (s *MemCounter[K]) Load() error {
	entries, err := readSnapshot[K, int64](s.dir)
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
		if _, had := s.data[e.Key]; !had {
			s.order = append(s.order, e.Key)
		}
		s.data[e.Key] = &counterEntry{value: e.Value, eventTimeMs: e.EventTimeMs}
	}
	s.offset = offset
	return nil
}

// Clear empties the store, used by CountByKey on Start(Beginning).
func (s *MemCounter[K]) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data = make(map[K]*counterEntry)
	s.order = nil
	s.offset = -1
}

func (s *MemCounter[K]) Close() error { return nil }
