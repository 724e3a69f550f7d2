// Package server provides the engine-side wrapper that enforces the
// cloak lifecycle state machine and routes capability-gated calls.
package server

import (
	"fmt"
	"sync"
	"sync/atomic"
)

// lifecycleState represents a state in the cloak lifecycle state machine.
type lifecycleState uint32

const (
	// stateInit: Waiting for Handshake. No other calls allowed.
	stateInit lifecycleState = iota
	// stateReady: Handshake complete. Concurrent calls allowed:
	// VerifyHeader, ProcessTxs. Sequential calls allowed:
	// ProcessProposal, RevertProposal.
	stateReady
	// stateVerifying: ProcessProposal has been called. Waiting for it
	// to return.
	stateVerifying
	// stateReverting: RevertProposal has been called. Waiting for it
	// to return.
	stateReverting
)

func (s lifecycleState) String() string {
	switch s {
	case stateInit:
		return "Init"
	case stateReady:
		return "Ready"
	case stateVerifying:
		return "Verifying"
	case stateReverting:
		return "Reverting"
	default:
		return fmt.Sprintf("unknown(%d)", s)
	}
}

// LifecycleGuard enforces the lifecycle state machine.
// The engine wraps the application with this guard to ensure
// correct call ordering.
type LifecycleGuard struct {
	state atomic.Uint32
	// Mutex for sequential calls (ProcessProposal, RevertProposal).
	seqMu sync.Mutex
	// Tracks whether Handshake has completed (for concurrent
	// call gating).
	handshakeDone atomic.Bool
}

// NewLifecycleGuard creates a guard in the Init state.
func NewLifecycleGuard() *LifecycleGuard {
	g := &LifecycleGuard{}
	g.state.Store(uint32(stateInit))
	return g
}

// State returns the current lifecycle state.
func (g *LifecycleGuard) State() string {
	return lifecycleState(g.state.Load()).String()
}

// AcquireHandshake transitions Init → Ready.
// Panics if not in Init state.
func (g *LifecycleGuard) AcquireHandshake() {
	if !g.state.CompareAndSwap(uint32(stateInit), uint32(stateReady)) {
		panic(fmt.Sprintf("cloak: Handshake called in state %s (expected Init)",
			lifecycleState(g.state.Load())))
	}
}

// CompleteHandshake marks handshake as done, enabling concurrent calls.
func (g *LifecycleGuard) CompleteHandshake() {
	g.handshakeDone.Store(true)
}

// FailHandshake rolls back state to Init if handshake fails.
func (g *LifecycleGuard) FailHandshake() {
	g.state.Store(uint32(stateInit))
}

func (g *LifecycleGuard) acquire(next lifecycleState, call string) {
	g.seqMu.Lock()
	if state := lifecycleState(g.state.Load()); state != stateReady {
		g.seqMu.Unlock()
		panic(fmt.Sprintf("cloak: %s called in state %s (expected Ready)", call, state))
	}
	g.state.Store(uint32(next))
}

func (g *LifecycleGuard) release() {
	g.state.Store(uint32(stateReady))
	g.seqMu.Unlock()
}

// AcquireVerify transitions Ready → Verifying.
// Blocks if another sequential operation is in progress.
// Panics if not in Ready state.
func (g *LifecycleGuard) AcquireVerify() {
	g.acquire(stateVerifying, "ProcessProposal")
}

// CompleteVerify transitions Verifying → Ready, whatever the outcome.
func (g *LifecycleGuard) CompleteVerify() {
	g.release()
}

// AcquireRevert transitions Ready → Reverting.
// Blocks if another sequential operation is in progress.
// Panics if not in Ready state.
func (g *LifecycleGuard) AcquireRevert() {
	g.acquire(stateReverting, "RevertProposal")
}

// CompleteRevert transitions Reverting → Ready.
func (g *LifecycleGuard) CompleteRevert() {
	g.release()
}

// CheckConcurrent verifies that concurrent calls are allowed
// (any state after Handshake). Panics if handshake has not completed.
func (g *LifecycleGuard) CheckConcurrent() {
	if !g.handshakeDone.Load() {
		panic("cloak: concurrent call before Handshake completed")
	}
}

// IsReady returns true if the guard is in the Ready state.
func (g *LifecycleGuard) IsReady() bool {
	return lifecycleState(g.state.Load()) == stateReady
}
