package streams

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

// countingLeaf is a minimal Processor fixture whose Process/EOF behavior is
// scripted per call, used to drive Topology without a real processor graph.
type countingLeaf struct {
	processResults []int
	call           int
	eof            bool
	commits        int
}

func (l *countingLeaf) Name() string                 { return "counting_leaf" }
func (l *countingLeaf) Start(StartOffset) error      { return nil }
func (l *countingLeaf) Close() error                 { return nil }
func (l *countingLeaf) EOF() bool                    { return l.eof }
func (l *countingLeaf) QueueSize() int               { return 0 }
func (l *countingLeaf) NextEventTime() (int64, bool) { return 0, false }
func (l *countingLeaf) Flush() error                 { return nil }
func (l *countingLeaf) Partition() int32             { return 0 }
func (l *countingLeaf) EachMetric(func(prometheus.Collector)) {}
func (l *countingLeaf) Commit(flush bool) error {
	l.commits++
	return nil
}

func (l *countingLeaf) Process(now int64) int {
	if l.call >= len(l.processResults) {
		return 0
	}
	r := l.processResults[l.call]
	l.call++
	return r
}

func TestTopologySumsHandledAcrossLeaves(t *testing.T) {
	topo := NewTopology(TopologyConfig{})
	a := &countingLeaf{processResults: []int{3}}
	b := &countingLeaf{processResults: []int{4}}
	topo.AddLeaf(a)
	topo.AddLeaf(b)

	if got := topo.Tick(0); got != 7 {
		t.Fatalf("Tick() = %d, want 7", got)
	}
}

func TestTopologyEOFRequiresAllLeaves(t *testing.T) {
	topo := NewTopology(TopologyConfig{})
	a := &countingLeaf{eof: true}
	b := &countingLeaf{eof: false}
	topo.AddLeaf(a)
	topo.AddLeaf(b)

	if topo.EOF() {
		t.Fatal("EOF() = true, want false while one leaf is not at EOF")
	}
	b.eof = true
	if !topo.EOF() {
		t.Fatal("EOF() = false, want true once every leaf is at EOF")
	}
}

// TestTopologyRunStopsAtEOF verifies Run returns once every leaf is at EOF
// and nothing more is handled, without requiring the tick-interval sleep.
func TestTopologyRunStopsAtEOF(t *testing.T) {
	topo := NewTopology(TopologyConfig{})
	leaf := &countingLeaf{processResults: []int{2, 1, 0}, eof: false}
	topo.AddLeaf(leaf)

	calls := 0
	nowFn := func() int64 {
		calls++
		if calls >= 3 {
			leaf.eof = true
		}
		return int64(calls)
	}

	if err := topo.Run(nowFn); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if leaf.commits == 0 {
		t.Fatal("expected at least one Commit call during the run")
	}
}

func TestTopologyCloseHaltsRunStatus(t *testing.T) {
	topo := NewTopology(TopologyConfig{})
	topo.AddLeaf(&countingLeaf{})

	if topo.RunStatus().Running() != true {
		t.Fatal("expected a freshly constructed topology's RunStatus to be running")
	}
	if err := topo.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if topo.RunStatus().Running() {
		t.Fatal("expected Close() to halt the topology's RunStatus")
	}
}
