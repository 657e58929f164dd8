package store

import "testing"

func TestMemCounterAddAccumulates(t *testing.T) {
	s := NewMemCounter[string]("")
	s.Add("a", 1, 0, 0)
	s.Add("a", 1, 1, 1)
	s.Add("a", 1, 2, 2)

	rec, ok := s.Get("a")
	if !ok {
		t.Fatal("expected key a to be present")
	}
	if *rec.Value != 3 {
		t.Fatalf("count = %d, want 3", *rec.Value)
	}
	if rec.EventTimeMs != 2 {
		t.Fatalf("event time = %d, want 2 (max of contributions)", rec.EventTimeMs)
	}
}

func TestMemCounterTombstoneRespectsEventTime(t *testing.T) {
	s := NewMemCounter[string]("")
	s.Add("a", 1, 10, 0)

	// A tombstone older than the stored event-time must not remove the key.
	s.Tombstone("a", 5, 1)
	if _, ok := s.Get("a"); !ok {
		t.Fatal("a stale tombstone must not remove the counter")
	}

	s.Tombstone("a", 10, 2)
	if _, ok := s.Get("a"); ok {
		t.Fatal("expected the counter to be removed once tombstoned at >= its event-time")
	}
}

// TestMemCounterSnapshotRestoresAcrossReopen: Commit(true) must persist the
// accumulated counts, not just the offset, so a restart resumes with the
// same aggregates it committed.
func TestMemCounterSnapshotRestoresAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	s := NewMemCounter[string](dir)
	s.Add("hello", 1, 0, 0)
	s.Add("hello", 1, 5, 1)
	s.Add("world", 1, 3, 2)

	if err := s.Commit(true); err != nil {
		t.Fatalf("Commit(true) error = %v", err)
	}

	reopened, err := OpenMemCounter[string](dir)
	if err != nil {
		t.Fatalf("OpenMemCounter() error = %v", err)
	}
	if got := reopened.Offset(); got != 2 {
		t.Fatalf("restored Offset() = %d, want 2", got)
	}
	rec, ok := reopened.Get("hello")
	if !ok || *rec.Value != 2 {
		t.Fatalf("restored Get(hello) = %+v, %v, want count 2", rec, ok)
	}
	if rec.EventTimeMs != 5 {
		t.Fatalf("restored event time = %d, want 5", rec.EventTimeMs)
	}
	if rec, ok := reopened.Get("world"); !ok || *rec.Value != 1 {
		t.Fatalf("restored Get(world) = %+v, %v, want count 1", rec, ok)
	}
}

func TestMemCounterClear(t *testing.T) {
	s := NewMemCounter[string]("")
	s.Add("a", 1, 0, 0)
	s.Clear()

	if _, ok := s.Get("a"); ok {
		t.Fatal("expected Clear() to empty the store")
	}
	if s.Offset() != -1 {
		t.Fatalf("Offset() after Clear() = %d, want -1", s.Offset())
	}
}
