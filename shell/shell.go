// Package shell is the cloak application: it answers the engine's
// lifecycle calls by verifying proposals against the last committed
// state held in a [state.Store].
package shell

import (
	"context"
	"errors"
	"fmt"

	"github.com/blockberries/cloak"
	"github.com/blockberries/cloak/proposal"
	"github.com/blockberries/cloak/state"
	"github.com/blockberries/cloak/types"
	"go.uber.org/zap"
)

// Compile-time interface check.
var _ cloak.Application = (*Shell)(nil)

// ErrChainIDMismatch is returned by Handshake when the engine runs a
// different chain than the one the shell was configured for.
var ErrChainIDMismatch = errors.New("shell: chain id mismatch")

// Config configures a Shell.
type Config struct {
	Store     state.Store
	Processor *proposal.Processor
	Logger    *zap.Logger
	// ChainID, when set, must match the engine's handshake.
	ChainID string
}

// Shell implements cloak.Application. Every call reads a fresh
// snapshot, so a Shell holds no per-proposal state and is safe for
// concurrent use.
type Shell struct {
	store   state.Store
	proc    *proposal.Processor
	log     *zap.Logger
	chainID string
}

// New creates a Shell.
func New(cfg Config) (*Shell, error) {
	if cfg.Store == nil {
		return nil, errors.New("shell: nil store")
	}
	if cfg.Processor == nil {
		return nil, errors.New("shell: nil processor")
	}
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Shell{
		store:   cfg.Store,
		proc:    cfg.Processor,
		log:     log,
		chainID: cfg.ChainID,
	}, nil
}

func (s *Shell) Handshake(_ context.Context, req types.HandshakeRequest) (types.HandshakeResponse, error) {
	if s.chainID != "" && req.ChainID != s.chainID {
		return types.HandshakeResponse{}, fmt.Errorf("%w: engine %q, shell %q", ErrChainIDMismatch, req.ChainID, s.chainID)
	}

	snap, err := s.store.Snapshot()
	if err != nil {
		return types.HandshakeResponse{}, fmt.Errorf("shell: handshake: %w", err)
	}
	defer snap.Discard()

	height, err := snap.LastHeight()
	if err != nil {
		return types.HandshakeResponse{}, fmt.Errorf("shell: handshake: %w", err)
	}

	resp := types.HandshakeResponse{Capabilities: types.CapTxScreening}
	if height > 0 {
		resp.LastBlock = &types.BlockID{Height: height}
	}
	if req.LastCommitted != nil && req.LastCommitted.Height != height {
		s.log.Warn("Engine and application disagree on the last committed height",
			zap.Uint64("engine_height", req.LastCommitted.Height),
			zap.Uint64("app_height", height))
	}
	s.log.Info("Handshake complete", zap.String("chain_id", req.ChainID), zap.Uint64("height", height))
	return resp, nil
}

// VerifyHeader accepts every header; checks run once the body arrives.
func (s *Shell) VerifyHeader(context.Context, types.HeaderRequest) (types.HeaderVerdict, error) {
	return types.HeaderVerdict{}, nil
}

func (s *Shell) ProcessProposal(ctx context.Context, req types.ReceivedProposal) (types.ProposalVerdict, error) {
	snap, err := s.store.Snapshot()
	if err != nil {
		return types.ProposalVerdict{}, fmt.Errorf("shell: process proposal: %w", err)
	}
	defer snap.Discard()
	return s.proc.ProcessProposal(ctx, snap, req)
}

// RevertProposal is a no-op: verification never writes state.
func (s *Shell) RevertProposal(context.Context, types.RevertRequest) (types.RevertResult, error) {
	return types.RevertResult{}, nil
}

func (s *Shell) ProcessTxs(ctx context.Context, txs []types.Tx) ([]types.TxResult, error) {
	snap, err := s.store.Snapshot()
	if err != nil {
		return nil, fmt.Errorf("shell: process txs: %w", err)
	}
	defer snap.Discard()
	return s.proc.ProcessTxs(ctx, snap, txs)
}
