package server

import (
	"context"
	"fmt"

	"github.com/blockberries/cloak"
	"github.com/blockberries/cloak/types"
	"go.uber.org/zap"
)

var _ cloak.Connection = (*Server)(nil)

// Server wraps a cloak application with lifecycle enforcement
// and capability routing. The consensus engine interacts with
// the application exclusively through this server.
type Server struct {
	app   cloak.Lifecycle
	guard *LifecycleGuard
	caps  types.Capabilities
	log   *zap.Logger

	// Optional interfaces (nil if not supported).
	screener cloak.TxScreener
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger used for capability warnings.
func WithLogger(l *zap.Logger) Option {
	return func(s *Server) { s.log = l }
}

// New creates a new Server wrapping the given application.
func New(app cloak.Lifecycle, opts ...Option) *Server {
	s := &Server{
		app:   app,
		guard: NewLifecycleGuard(),
		log:   zap.NewNop(),
	}
	for _, o := range opts {
		o(s)
	}
	// Pre-discover optional interfaces (validated after handshake).
	s.screener, _ = app.(cloak.TxScreener)
	return s
}

// Handshake performs the startup handshake, validates capability
// declarations, and transitions the state machine to Ready.
func (s *Server) Handshake(ctx context.Context, req types.HandshakeRequest) (types.HandshakeResponse, error) {
	s.guard.AcquireHandshake()

	resp, err := s.app.Handshake(ctx, req)
	if err != nil {
		s.guard.FailHandshake()
		return resp, err
	}

	if err := discoverCapabilities(s.app, resp.Capabilities, s.log); err != nil {
		s.guard.FailHandshake()
		return resp, err
	}

	s.caps = resp.Capabilities
	s.guard.CompleteHandshake()
	return resp, nil
}

// VerifyHeader checks a block header. Safe for concurrent use.
func (s *Server) VerifyHeader(ctx context.Context, req types.HeaderRequest) (types.HeaderVerdict, error) {
	s.guard.CheckConcurrent()
	return s.app.VerifyHeader(ctx, req)
}

// ProcessProposal verifies a received proposal. Calls are serialized
// with each other and with RevertProposal.
func (s *Server) ProcessProposal(ctx context.Context, prop types.ReceivedProposal) (types.ProposalVerdict, error) {
	s.guard.AcquireVerify()
	defer s.guard.CompleteVerify()
	return s.app.ProcessProposal(ctx, prop)
}

// RevertProposal tells the application a proposal was not decided.
func (s *Server) RevertProposal(ctx context.Context, req types.RevertRequest) (types.RevertResult, error) {
	s.guard.AcquireRevert()
	defer s.guard.CompleteRevert()
	return s.app.RevertProposal(ctx, req)
}

// Capabilities returns the application's declared capabilities.
// Only valid after Handshake completes.
func (s *Server) Capabilities() types.Capabilities {
	return s.caps
}

// --- Capability-gated optional methods ---

// ProcessTxs delegates to TxScreener if supported.
// Safe for concurrent use.
func (s *Server) ProcessTxs(ctx context.Context, txs []types.Tx) ([]types.TxResult, error) {
	if s.screener == nil {
		return nil, fmt.Errorf("cloak: TxScreener not supported")
	}
	s.guard.CheckConcurrent()
	return s.screener.ProcessTxs(ctx, txs)
}

// AsTxScreener returns the TxScreener interface or nil.
func (s *Server) AsTxScreener() cloak.TxScreener {
	if s.caps.Has(types.CapTxScreening) {
		return s.screener
	}
	return nil
}

// State returns the lifecycle state, for diagnostics.
func (s *Server) State() string {
	return s.guard.State()
}

// Close is a no-op for the server wrapper.
func (s *Server) Close() error { return nil }

// discoverCapabilities checks which optional interfaces the app
// implements and verifies consistency with declared capabilities.
func discoverCapabilities(app cloak.Lifecycle, declared types.Capabilities, log *zap.Logger) error {
	_, hasScreener := app.(cloak.TxScreener)

	if declared.Has(types.CapTxScreening) && !hasScreener {
		return fmt.Errorf("cloak: app declared CapTxScreening but does not implement TxScreener")
	}

	// Warn (but don't error) if the app implements an interface but didn't declare it.
	if !declared.Has(types.CapTxScreening) && hasScreener {
		log.Warn("app implements TxScreener but did not declare it; capability will not be used")
	}

	return nil
}
