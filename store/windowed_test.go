package store

import (
	"testing"

	"github.com/5l1v3r1/kspp-go/streams"
)

// TestMemWindowedRetentionEviction: retention = slotMs * slotCount, and
// records older than retention are not visible even though they may still
// occupy a slot.
func TestMemWindowedRetentionEviction(t *testing.T) {
	const slotMs = 1000
	const slotCount = 2
	s := NewMemWindowed[string, string](slotMs, slotCount)

	s.Insert(streams.NewRecord("a", "1", 0), 0)
	if _, ok := s.Get("a"); !ok {
		t.Fatal("a freshly inserted record should be visible")
	}

	// Advance the live slot window far enough that slot 0 falls outside
	// retention (slotCount=2 means slots maxSlot-1 and maxSlot are live).
	s.Insert(streams.NewRecord("b", "2", 5*slotMs), 1)

	if _, ok := s.Get("a"); ok {
		t.Fatal("key a's slot should have been evicted once retention passed")
	}
	if got, ok := s.Get("b"); !ok || *got.Value != "2" {
		t.Fatal("key b should remain visible in the current slot")
	}
}

func TestMemWindowedTombstoneWithinSlot(t *testing.T) {
	s := NewMemWindowed[string, string](1000, 3)
	s.Insert(streams.NewRecord("a", "1", 0), 0)
	s.Insert(streams.Tombstone[string, string]("a", 1), 1)

	if _, ok := s.Get("a"); ok {
		t.Fatal("expected tombstoned key to be absent from its slot")
	}
}

func TestMemWindowedEachYieldsOnlyLiveSlots(t *testing.T) {
	s := NewMemWindowed[string, int](1000, 1)
	s.Insert(streams.NewRecord("a", 1, 0), 0)
	s.Insert(streams.NewRecord("b", 2, 10*1000), 1)

	var seen []string
	s.Each(func(rec streams.Record[string, int]) bool {
		seen = append(seen, rec.Key)
		return true
	})
	if len(seen) != 1 || seen[0] != "b" {
		t.Fatalf("Each() = %v, want only [b] once slot 0 has been evicted", seen)
	}
}

func TestMemWindowedOffsetMonotone(t *testing.T) {
	s := NewMemWindowed[string, string](1000, 2)
	if s.Offset() != -1 {
		t.Fatalf("Offset() before any insert = %d, want -1", s.Offset())
	}
	s.Insert(streams.NewRecord("a", "1", 0), 5)
	if s.Offset() != 5 {
		t.Fatalf("Offset() = %d, want 5", s.Offset())
	}
	s.Insert(streams.NewRecord("a", "2", 1), 3)
	if s.Offset() != 5 {
		t.Fatalf("Offset() regressed to %d after a lower offset insert, want still 5", s.Offset())
	}
}
