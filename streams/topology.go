package streams

import (
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/5l1v3r1/kspp-go/internal/sak"
)

// TopologyConfig configures a Topology.
type TopologyConfig struct {
	// AppID identifies the owning application across restarts. The
	// topology only stores it; it is not added to processors' metric tags
	// or to state-store directory names.
	AppID string
	// TickInterval is how long the driver sleeps between ticks when every
	// leaf reports Process==0 and none is at EOF.
	TickInterval time.Duration
	// Registry is the prometheus registry the topology holds. A fresh
	// registry is created if nil. Processors register their metrics against
	// the registry passed to their own constructors, not this one.
	Registry *prometheus.Registry
}

// Topology owns a set of leaf processors and drives them with a single
// cooperative loop on one goroutine. A Topology is a value: multiple
// independent topologies may run in one process.
type Topology struct {
	id        string
	config    TopologyConfig
	leaves    []Processor
	runStatus sak.RunStatus
}

// NewTopology constructs an empty Topology, generating a random instance id
// returned by ID(). The id is not added to metric tags or state-store
// directory paths.
func NewTopology(cfg TopologyConfig) *Topology {
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = 10 * time.Millisecond
	}
	if cfg.Registry == nil {
		cfg.Registry = prometheus.NewRegistry()
	}
	return &Topology{
		id:        uuid.NewString(),
		config:    cfg,
		runStatus: sak.NewRunStatus(),
	}
}

// ID returns this topology instance's generated identifier.
func (t *Topology) ID() string { return t.id }

// AddLeaf registers p as a leaf the driver calls Process/EOF/Commit/Close on
// directly. Non-leaf processors are reached transitively through a leaf's
// upstream links and never registered directly.
func (t *Topology) AddLeaf(p Processor) {
	t.leaves = append(t.leaves, p)
}

// Start recursively starts every leaf (and transitively its upstreams) at
// offset.
func (t *Topology) Start(offset StartOffset) error {
	for _, leaf := range t.leaves {
		if err := leaf.Start(offset); err != nil {
			return err
		}
	}
	return nil
}

// Close recursively and idempotently closes every leaf, halting the
// topology's shared stop flag first so background adapter threads observing
// it exit cleanly.
func (t *Topology) Close() error {
	t.runStatus.Halt()
	var first error
	for _, leaf := range t.leaves {
		if err := leaf.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// RunStatus exposes the topology's cooperative stop signal, for adapters
// that poll it between I/O operations.
func (t *Topology) RunStatus() sak.RunStatus { return t.runStatus }

// Tick calls Process(now) on every leaf once and returns the total records
// handled across all leaves.
func (t *Topology) Tick(now int64) int {
	total := 0
	for _, leaf := range t.leaves {
		total += leaf.Process(now)
	}
	return total
}

// EOF reports whether every leaf is at EOF.
func (t *Topology) EOF() bool {
	for _, leaf := range t.leaves {
		if !leaf.EOF() {
			return false
		}
	}
	return true
}

// Commit calls Commit(flush) on every leaf.
func (t *Topology) Commit(flush bool) error {
	var first error
	for _, leaf := range t.leaves {
		if err := leaf.Commit(flush); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Run drives the topology until its RunStatus is halted (then it returns
// the result of a flush=true Commit) or until a tick handles nothing and
// every leaf is at EOF (then it returns nil). Each iteration calls
// Tick(now), committing best-effort after every productive tick; when a
// tick handles nothing and the topology is not at EOF, the driver sleeps
// for TickInterval before trying again.
func (t *Topology) Run(nowFn func() int64) error {
	for {
		select {
		case <-t.runStatus.Done():
			return t.Commit(true)
		default:
		}
		now := nowFn()
		handled := t.Tick(now)
		if handled > 0 {
			if err := t.Commit(false); err != nil {
				log.WithError(err).Warn("commit error during topology run")
			}
			continue
		}
		if t.EOF() {
			return nil
		}
		select {
		case <-t.runStatus.Done():
			return t.Commit(true)
		case <-time.After(t.config.TickInterval):
		}
	}
}

// Flush calls Flush on each leaf in turn; each leaf processes until it
// reports EOF or handles nothing, then makes its final flush=true Commit.
func (t *Topology) Flush() error {
	for _, leaf := range t.leaves {
		if err := leaf.Flush(); err != nil {
			return err
		}
	}
	return nil
}
