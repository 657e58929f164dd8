package store

import (
	"sync"

	"github.com/5l1v3r1/kspp-go/streams"
)

// MemWindowed is the key -> time-bucketed ring of slot-maps store. Records
// are filed into slot event_time/slotMs; iteration only yields records
// whose slot is still within retention = slotMs * slotCount of the greatest
// slot seen so far.
type MemWindowed[K comparable, V any] struct {
	mu        sync.RWMutex
	slotMs    int64
	slotCount int
	slots     map[int64]map[K]streams.Record[K, V]
	maxSlot   int64
	hasSlot   bool
	offset    int64
}

// NewMemWindowed returns a windowed store with retention slotMs*slotCount.
func NewMemWindowed[K comparable, V any](slotMs int64, slotCount int) *MemWindowed[K, V] {
	return &MemWindowed[K, V]{
		slotMs:    slotMs,
		slotCount: slotCount,
		slots:     make(map[int64]map[K]streams.Record[K, V]),
		offset:    -1,
	}
}

func (s *MemWindowed[K, V]) slotFor(eventTimeMs int64) int64 {
	return eventTimeMs / s.slotMs
}

// Insert files rec into its time slot, applying the same tombstone/replace
// rule as MemKV within that slot.
func (s *MemWindowed[K, V]) Insert(rec streams.Record[K, V], offset int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	slot := s.slotFor(rec.EventTimeMs)
	m, ok := s.slots[slot]
	if !ok {
		m = make(map[K]streams.Record[K, V])
		s.slots[slot] = m
	}
	if rec.IsTombstone() {
		if existing, had := m[rec.Key]; !had || rec.EventTimeMs >= existing.EventTimeMs {
			delete(m, rec.Key)
		}
	} else {
		m[rec.Key] = rec
	}
	if !s.hasSlot || slot > s.maxSlot {
		s.maxSlot = slot
		s.hasSlot = true
	}
	s.evictExpiredLocked()
	if offset > s.offset {
		s.offset = offset
	}
}

func (s *MemWindowed[K, V]) evictExpiredLocked() {
	oldest := s.maxSlot - int64(s.slotCount) + 1
	for slot := range s.slots {
		if slot < oldest {
			delete(s.slots, slot)
		}
	}
}

// Get returns the most recent live record for key across all retained
// slots, newest slot wins.
func (s *MemWindowed[K, V]) Get(key K) (streams.Record[K, V], bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var best streams.Record[K, V]
	found := false
	for _, m := range s.slots {
		if rec, ok := m[key]; ok {
			if !found || rec.EventTimeMs > best.EventTimeMs {
				best = rec
				found = true
			}
		}
	}
	return best, found
}

// Each iterates every live record in every retained slot. Order is
// unspecified.
func (s *MemWindowed[K, V]) Each(fn func(rec streams.Record[K, V]) bool) {
	s.mu.RLock()
	var snapshot []streams.Record[K, V]
	for _, m := range s.slots {
		for _, rec := range m {
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

func (s *MemWindowed[K, V]) Offset() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.offset
}

func (s *MemWindowed[K, V]) Commit(flush bool) error { return nil }
func (s *MemWindowed[K, V]) Close() error            { return nil }
