package cloakgrpc

import (
	"context"
	"fmt"

	"github.com/blockberries/cloak/types"
	"google.golang.org/grpc"
)

const serviceName = "cloak.v1.ShellService"

// ShellServiceServer is the server-side interface for the cloak gRPC service.
type ShellServiceServer interface {
	Handshake(context.Context, *types.HandshakeRequest) (*types.HandshakeResponse, error)
	VerifyHeader(context.Context, *types.HeaderRequest) (*types.HeaderVerdict, error)
	ProcessProposal(context.Context, *types.ReceivedProposal) (*types.ProposalVerdict, error)
	RevertProposal(context.Context, *types.RevertRequest) (*types.RevertResult, error)
	ProcessTxs(context.Context, *ProcessTxsRequest) (*ProcessTxsResponse, error)
}

// RegisterShellServiceServer registers the ShellServiceServer on a gRPC server.
func RegisterShellServiceServer(s *grpc.Server, srv ShellServiceServer) {
	s.RegisterService(&serviceDesc, srv)
}

// --- Handler functions ---

func handlerHandshake(srv any, ctx context.Context, dec func(any) error, _ grpc.UnaryServerInterceptor) (any, error) {
	req := new(types.HandshakeRequest)
	if err := dec(req); err != nil {
		return nil, err
	}
	return srv.(ShellServiceServer).Handshake(ctx, req)
}

func handlerVerifyHeader(srv any, ctx context.Context, dec func(any) error, _ grpc.UnaryServerInterceptor) (any, error) {
	req := new(types.HeaderRequest)
	if err := dec(req); err != nil {
		return nil, err
	}
	return srv.(ShellServiceServer).VerifyHeader(ctx, req)
}

func handlerProcessProposal(srv any, ctx context.Context, dec func(any) error, _ grpc.UnaryServerInterceptor) (any, error) {
	req := new(types.ReceivedProposal)
	if err := dec(req); err != nil {
		return nil, err
	}
	return srv.(ShellServiceServer).ProcessProposal(ctx, req)
}

func handlerRevertProposal(srv any, ctx context.Context, dec func(any) error, _ grpc.UnaryServerInterceptor) (any, error) {
	req := new(types.RevertRequest)
	if err := dec(req); err != nil {
		return nil, err
	}
	return srv.(ShellServiceServer).RevertProposal(ctx, req)
}

func handlerProcessTxs(srv any, ctx context.Context, dec func(any) error, _ grpc.UnaryServerInterceptor) (any, error) {
	req := new(ProcessTxsRequest)
	if err := dec(req); err != nil {
		return nil, err
	}
	return srv.(ShellServiceServer).ProcessTxs(ctx, req)
}

// fullMethod builds the full gRPC method path.
func fullMethod(method string) string {
	return fmt.Sprintf("/%s/%s", serviceName, method)
}

// serviceDesc is the manual gRPC service descriptor for cloak.
var serviceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*ShellServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Handshake", Handler: handlerHandshake},
		{MethodName: "VerifyHeader", Handler: handlerVerifyHeader},
		{MethodName: "ProcessProposal", Handler: handlerProcessProposal},
		{MethodName: "RevertProposal", Handler: handlerRevertProposal},
		{MethodName: "ProcessTxs", Handler: handlerProcessTxs},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "github.com/blockberries/cloak/v1/service.cram",
}
