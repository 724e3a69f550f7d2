// Package cloaktest provides test utilities for cloak application
// and engine development: a configurable mock, a test harness, a
// lifecycle compliance suite and a deterministic chain fixture.
package cloaktest

import (
	"context"
	"sync/atomic"

	"github.com/blockberries/cloak"
	"github.com/blockberries/cloak/types"
)

// Compile-time check that MockApp satisfies all interfaces.
var _ cloak.Application = (*MockApp)(nil)

// MockApp is a configurable mock cloak application for engine testing.
// All methods are configurable via function fields. Unconfigured
// methods accept everything.
//
// MockApp implements TxScreener so it can be used to test capability
// discovery. Control whether it is declared via DeclaredCapabilities.
type MockApp struct {
	// DeclaredCapabilities controls the bitfield returned at handshake.
	DeclaredCapabilities types.Capabilities

	// Configurable handlers. If nil, defaults are used.
	HandshakeFn       func(context.Context, types.HandshakeRequest) (types.HandshakeResponse, error)
	VerifyHeaderFn    func(context.Context, types.HeaderRequest) (types.HeaderVerdict, error)
	ProcessProposalFn func(context.Context, types.ReceivedProposal) (types.ProposalVerdict, error)
	RevertProposalFn  func(context.Context, types.RevertRequest) (types.RevertResult, error)
	ProcessTxsFn      func(context.Context, []types.Tx) ([]types.TxResult, error)

	// Call counters (atomic for concurrent access).
	HandshakeCalls       atomic.Int64
	VerifyHeaderCalls    atomic.Int64
	ProcessProposalCalls atomic.Int64
	RevertProposalCalls  atomic.Int64
	ProcessTxsCalls      atomic.Int64
}

func (m *MockApp) Handshake(ctx context.Context, req types.HandshakeRequest) (types.HandshakeResponse, error) {
	m.HandshakeCalls.Add(1)
	if m.HandshakeFn != nil {
		return m.HandshakeFn(ctx, req)
	}
	return types.HandshakeResponse{
		Capabilities: m.DeclaredCapabilities,
	}, nil
}

func (m *MockApp) VerifyHeader(ctx context.Context, req types.HeaderRequest) (types.HeaderVerdict, error) {
	m.VerifyHeaderCalls.Add(1)
	if m.VerifyHeaderFn != nil {
		return m.VerifyHeaderFn(ctx, req)
	}
	return types.HeaderVerdict{}, nil
}

func (m *MockApp) ProcessProposal(ctx context.Context, prop types.ReceivedProposal) (types.ProposalVerdict, error) {
	m.ProcessProposalCalls.Add(1)
	if m.ProcessProposalFn != nil {
		return m.ProcessProposalFn(ctx, prop)
	}
	return types.ProposalVerdict{
		Status:    types.ProposalAccept,
		TxResults: acceptAll(len(prop.Txs)),
	}, nil
}

func (m *MockApp) RevertProposal(ctx context.Context, req types.RevertRequest) (types.RevertResult, error) {
	m.RevertProposalCalls.Add(1)
	if m.RevertProposalFn != nil {
		return m.RevertProposalFn(ctx, req)
	}
	return types.RevertResult{}, nil
}

func (m *MockApp) ProcessTxs(ctx context.Context, txs []types.Tx) ([]types.TxResult, error) {
	m.ProcessTxsCalls.Add(1)
	if m.ProcessTxsFn != nil {
		return m.ProcessTxsFn(ctx, txs)
	}
	return acceptAll(len(txs)), nil
}

func acceptAll(n int) []types.TxResult {
	results := make([]types.TxResult, n)
	for i := range results {
		results[i] = types.TxResult{Info: "Process proposal accepted this transaction"}
	}
	return results
}
