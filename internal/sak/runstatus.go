// Package sak ("swiss army knife") collects small helpers shared across the
// core engine that don't belong to any one package — currently just the
// cooperative cancellation signal used by the topology driver.
package sak

import "context"

// RunStatus is a cooperative, tree-shaped cancellation signal. Halting a
// RunStatus halts every RunStatus forked from it. It is the core's
// substitute for scattering raw context.Context/cancel pairs through the
// topology and partition-worker lifecycle.
type RunStatus struct {
	ctx    context.Context
	cancel context.CancelFunc
}

// NewRunStatus creates a root RunStatus.
func NewRunStatus() RunStatus {
	ctx, cancel := context.WithCancel(context.Background())
	return RunStatus{ctx: ctx, cancel: cancel}
}

// Fork creates a child RunStatus that is halted automatically when its
// parent is halted, but can also be halted independently.
func (r RunStatus) Fork() RunStatus {
	ctx, cancel := context.WithCancel(r.ctx)
	return RunStatus{ctx: ctx, cancel: cancel}
}

// Halt stops this RunStatus and every RunStatus forked from it.
func (r RunStatus) Halt() {
	r.cancel()
}

// Running reports whether Halt has not yet been called on this RunStatus or
// any of its ancestors.
func (r RunStatus) Running() bool {
	return r.ctx.Err() == nil
}

// Done returns a channel that closes when the RunStatus is halted.
func (r RunStatus) Done() <-chan struct{} {
	return r.ctx.Done()
}

// Ctx exposes the underlying context, for handing to I/O calls that accept
// one (franz-go fetches, bbolt transactions with a deadline, etc).
func (r RunStatus) Ctx() context.Context {
	return r.ctx
}
