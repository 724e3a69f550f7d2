package cloakgrpc

import (
	"context"
	"net"

	"github.com/blockberries/cloak"
	"github.com/blockberries/cloak/server"
	"github.com/blockberries/cloak/types"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Compile-time interface check.
var _ ShellServiceServer = (*GRPCServer)(nil)

// GRPCServer wraps a cloak application as a gRPC server.
// No type conversion is needed: domain types are serialized
// directly via cramberry.
type GRPCServer struct {
	srv *server.Server
	log *zap.Logger
}

// NewGRPCServer creates a gRPC server wrapping the given application.
func NewGRPCServer(app cloak.Lifecycle, log *zap.Logger) *GRPCServer {
	if log == nil {
		log = zap.NewNop()
	}
	return &GRPCServer{
		srv: server.New(app, server.WithLogger(log)),
		log: log,
	}
}

// Register adds the cloak service to a gRPC server.
func (s *GRPCServer) Register(gs *grpc.Server) {
	RegisterShellServiceServer(gs, s)
}

// Serve starts the gRPC server on the given listener.
func (s *GRPCServer) Serve(lis net.Listener, opts ...grpc.ServerOption) error {
	gs := grpc.NewServer(opts...)
	s.Register(gs)
	return gs.Serve(lis)
}

// Server returns the underlying server for advanced use.
func (s *GRPCServer) Server() *server.Server {
	return s.srv
}

// halted converts a HaltError, panicked or returned, into an Aborted
// status so the engine can stop consensus instead of the RPC crashing
// the application process.
func (s *GRPCServer) halted(err *error) {
	r := recover()
	if r == nil {
		if h, ok := cloak.IsHalt(*err); ok {
			*err = status.Error(codes.Aborted, h.Reason)
		}
		return
	}
	h, ok := r.(*cloak.HaltError)
	if !ok {
		panic(r)
	}
	s.log.Error("Halting chain", zap.Uint64("height", h.Height), zap.String("reason", h.Reason))
	*err = status.Error(codes.Aborted, h.Reason)
}

// --- Lifecycle RPCs ---

func (s *GRPCServer) Handshake(ctx context.Context, req *types.HandshakeRequest) (*types.HandshakeResponse, error) {
	resp, err := s.srv.Handshake(ctx, *req)
	if err != nil {
		return nil, status.Error(codes.FailedPrecondition, err.Error())
	}
	return &resp, nil
}

func (s *GRPCServer) VerifyHeader(ctx context.Context, req *types.HeaderRequest) (*types.HeaderVerdict, error) {
	verdict, err := s.srv.VerifyHeader(ctx, *req)
	if err != nil {
		return nil, err
	}
	return &verdict, nil
}

func (s *GRPCServer) ProcessProposal(ctx context.Context, prop *types.ReceivedProposal) (_ *types.ProposalVerdict, err error) {
	defer s.halted(&err)
	verdict, err := s.srv.ProcessProposal(ctx, *prop)
	if err != nil {
		return nil, err
	}
	return &verdict, nil
}

func (s *GRPCServer) RevertProposal(ctx context.Context, req *types.RevertRequest) (*types.RevertResult, error) {
	result, err := s.srv.RevertProposal(ctx, *req)
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// --- TxScreener RPC ---

func (s *GRPCServer) ProcessTxs(ctx context.Context, req *ProcessTxsRequest) (*ProcessTxsResponse, error) {
	screener := s.srv.AsTxScreener()
	if screener == nil {
		return nil, status.Error(codes.Unimplemented, "cloak: TxScreener not supported")
	}
	results, err := screener.ProcessTxs(ctx, req.Txs)
	if err != nil {
		return nil, err
	}
	return &ProcessTxsResponse{Results: results}, nil
}
