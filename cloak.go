// Package cloak defines the boundary between a BFT consensus engine and
// the proposal-verification stage of an encrypted-mempool ledger.
//
// The core [Lifecycle] interface is required. [TxScreener] is an
// optional capability discovered via Go type assertion at handshake
// time.
package cloak

import (
	"context"

	"github.com/blockberries/cloak/types"
)

// Lifecycle is the core interface every cloak application must implement.
//
// The engine guarantees the following call order:
//  1. Handshake is called exactly once, before anything else.
//  2. ProcessProposal and RevertProposal are never called concurrently
//     with each other.
//  3. VerifyHeader may be called concurrently at any time after Handshake.
type Lifecycle interface {
	// Handshake is called once on every startup (cold start or restart).
	//
	// The application returns its own view of its state so the engine can
	// detect and recover from any divergence.
	Handshake(ctx context.Context, req types.HandshakeRequest) (types.HandshakeResponse, error)

	// VerifyHeader checks a block header before its body is available.
	// Header verification is stateless and always succeeds.
	VerifyHeader(ctx context.Context, req types.HeaderRequest) (types.HeaderVerdict, error)

	// ProcessProposal is called on every validator for a received proposal.
	//
	// It validates every transaction against the last committed state
	// and folds the per-transaction results into a verdict. It MUST NOT
	// execute transactions or write state. Returning a rejection causes
	// the validator to nil-prevote.
	//
	// This method MUST be deterministic: all honest validators must reach
	// the same verdict for the same proposal.
	//
	// A returned error means local state could not be read; it is not a
	// verdict on the proposal.
	ProcessProposal(ctx context.Context, proposal types.ReceivedProposal) (types.ProposalVerdict, error)

	// RevertProposal tells the application that a proposal it processed
	// was not decided. Verification keeps no per-proposal state, so
	// there is nothing to undo.
	RevertProposal(ctx context.Context, req types.RevertRequest) (types.RevertResult, error)
}

// TxScreener validates transactions outside of a proposal, applying the
// same per-transaction rules as ProcessProposal without the
// one-digest-per-block requirement.
//
// Declared via: types.CapTxScreening in HandshakeResponse.Capabilities
type TxScreener interface {
	// ProcessTxs returns one result per transaction, in input order.
	//
	// This method MUST be safe for concurrent use.
	ProcessTxs(ctx context.Context, txs []types.Tx) ([]types.TxResult, error)
}

// Application is a convenience interface that embeds every cloak
// interface.
type Application interface {
	Lifecycle
	TxScreener
}

// Connection represents a transport-agnostic connection to a cloak
// application. Both gRPC clients and in-process adapters implement this.
type Connection interface {
	Lifecycle

	// Capabilities returns the capabilities discovered at handshake.
	// Must only be called after Handshake completes.
	Capabilities() types.Capabilities

	// AsTxScreener returns the TxScreener interface if available,
	// or nil if the app does not support it.
	AsTxScreener() TxScreener

	// Close terminates the connection.
	Close() error
}
