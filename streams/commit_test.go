package streams

import "testing"

// TestCommitChainOutOfOrderCompletion allocates offsets 10, 11, 12 in
// order and completes them out of order.
func TestCommitChainOutOfOrderCompletion(t *testing.T) {
	chain := NewCommitChain()
	m10 := chain.NewMarker(10)
	m11 := chain.NewMarker(11)
	m12 := chain.NewMarker(12)

	if got := chain.LastGoodOffset(); got != -1 {
		t.Fatalf("LastGoodOffset before any completion = %d, want -1", got)
	}

	m10.Release()
	if got := chain.LastGoodOffset(); got != 10 {
		t.Fatalf("after 10 completes: LastGoodOffset = %d, want 10", got)
	}

	m12.Release()
	if got := chain.LastGoodOffset(); got != 10 {
		t.Fatalf("after 12 completes (11 still outstanding): LastGoodOffset = %d, want 10", got)
	}

	m11.Release()
	if got := chain.LastGoodOffset(); got != 12 {
		t.Fatalf("after 11 completes: LastGoodOffset = %d, want 12", got)
	}

	if got := chain.StoredOffset(); got != 13 {
		t.Fatalf("StoredOffset = %d, want 13", got)
	}
}

// TestCommitChainFailedMarkerStalls verifies a poisoned marker blocks the
// chain from advancing past its offset.
func TestCommitChainFailedMarkerStalls(t *testing.T) {
	chain := NewCommitChain()
	m1 := chain.NewMarker(1)
	m2 := chain.NewMarker(2)

	m1.Fail(7)
	m1.Release()
	if got := chain.LastGoodOffset(); got != -1 {
		t.Fatalf("after failed offset 1 completes: LastGoodOffset = %d, want -1", got)
	}

	m2.Release()
	if got := chain.LastGoodOffset(); got != -1 {
		t.Fatalf("offset 2 completing cleanly must not skip past the stalled offset 1: LastGoodOffset = %d, want -1", got)
	}
}

// TestCommitMarkerForkReleaseCompletesOnce verifies a forked marker only
// reports completion once every fork (plus the original) is released,
// so fan-out forks all contribute to one completion.
func TestCommitMarkerForkReleaseCompletesOnce(t *testing.T) {
	chain := NewCommitChain()
	m := chain.NewMarker(5)
	fork1 := m.Fork()
	fork2 := m.Fork()

	fork1.Release()
	if got := chain.LastGoodOffset(); got != -1 {
		t.Fatalf("after one of three refs released: LastGoodOffset = %d, want -1", got)
	}
	fork2.Release()
	if got := chain.LastGoodOffset(); got != -1 {
		t.Fatalf("after two of three refs released: LastGoodOffset = %d, want -1", got)
	}
	m.Release()
	if got := chain.LastGoodOffset(); got != 5 {
		t.Fatalf("after all refs released: LastGoodOffset = %d, want 5", got)
	}
}

// TestCommitMarkerNilSafe verifies every CommitMarker method tolerates a nil
// receiver, since punctuation-only envelopes (e.g. CountByKey's emitted
// snapshots) carry a nil marker.
func TestCommitMarkerNilSafe(t *testing.T) {
	var m *CommitMarker
	if got := m.Offset(); got != -1 {
		t.Fatalf("nil marker Offset() = %d, want -1", got)
	}
	if got := m.Fork(); got != nil {
		t.Fatalf("nil marker Fork() = %v, want nil", got)
	}
	m.Fail(1)   // must not panic
	m.Release() // must not panic
}
