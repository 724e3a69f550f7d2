package cloaktest

import (
	"context"
	"testing"

	"github.com/blockberries/cloak"
	"github.com/blockberries/cloak/server"
	"github.com/blockberries/cloak/types"
)

// DefaultChainID is the chain id Harness.Handshake sends.
const DefaultChainID = "test-chain"

// Harness provides a convenient test harness for application
// developers to test their cloak implementation against the
// lifecycle state machine.
type Harness struct {
	t   testing.TB
	srv *server.Server
}

// NewHarness creates a test harness wrapping the given application.
func NewHarness(t testing.TB, app cloak.Lifecycle, opts ...server.Option) *Harness {
	t.Helper()
	return &Harness{t: t, srv: server.New(app, opts...)}
}

// Server returns the underlying server for direct access.
func (h *Harness) Server() *server.Server {
	return h.srv
}

// Handshake performs a fresh-start handshake on DefaultChainID.
func (h *Harness) Handshake() types.HandshakeResponse {
	h.t.Helper()
	resp, err := h.srv.Handshake(context.Background(), types.HandshakeRequest{
		ChainID: DefaultChainID,
	})
	if err != nil {
		h.t.Fatalf("Handshake failed: %v", err)
	}
	return resp
}

// Restart performs a restart handshake at the given block.
func (h *Harness) Restart(block types.BlockID) types.HandshakeResponse {
	h.t.Helper()
	resp, err := h.srv.Handshake(context.Background(), types.HandshakeRequest{
		ChainID:       DefaultChainID,
		LastCommitted: &block,
	})
	if err != nil {
		h.t.Fatalf("Handshake (restart) failed: %v", err)
	}
	return resp
}

// Process verifies a proposal.
func (h *Harness) Process(prop types.ReceivedProposal) types.ProposalVerdict {
	h.t.Helper()
	verdict, err := h.srv.ProcessProposal(context.Background(), prop)
	if err != nil {
		h.t.Fatalf("ProcessProposal (height=%d) failed: %v", prop.Height, err)
	}
	if len(verdict.TxResults) != len(prop.Txs) {
		h.t.Fatalf("ProcessProposal (height=%d): %d results for %d txs",
			prop.Height, len(verdict.TxResults), len(prop.Txs))
	}
	return verdict
}

// Revert tells the application the proposal was not decided.
func (h *Harness) Revert(prop types.ReceivedProposal) {
	h.t.Helper()
	_, err := h.srv.RevertProposal(context.Background(), types.RevertRequest{
		Height: prop.Height,
		Hash:   prop.Hash,
	})
	if err != nil {
		h.t.Fatalf("RevertProposal failed: %v", err)
	}
}

// Screen checks transactions outside of a proposal.
func (h *Harness) Screen(txs ...types.Tx) []types.TxResult {
	h.t.Helper()
	results, err := h.srv.ProcessTxs(context.Background(), txs)
	if err != nil {
		h.t.Fatalf("ProcessTxs failed: %v", err)
	}
	return results
}

// MustAccept asserts that a proposal is accepted.
func (h *Harness) MustAccept(prop types.ReceivedProposal) types.ProposalVerdict {
	h.t.Helper()
	v := h.Process(prop)
	if !v.Accepted() {
		h.t.Fatalf("expected proposal accepted, got %s: %+v", v.Status, v.TxResults)
	}
	return v
}

// MustReject asserts that a proposal is rejected.
func (h *Harness) MustReject(prop types.ReceivedProposal) types.ProposalVerdict {
	h.t.Helper()
	v := h.Process(prop)
	if v.Accepted() {
		h.t.Fatal("expected proposal rejected, got accepted")
	}
	return v
}
