package streams

import "testing"

func TestRecordTombstone(t *testing.T) {
	rec := NewRecord("k", 7, 100)
	if rec.IsTombstone() {
		t.Fatal("fresh record reported as tombstone")
	}
	tomb := Tombstone[string, int]("k", 200)
	if !tomb.IsTombstone() {
		t.Fatal("tombstone record not reported as tombstone")
	}
	if tomb.Key != "k" || tomb.EventTimeMs != 200 {
		t.Fatalf("tombstone fields = %+v, want key=k eventTime=200", tomb)
	}
}
