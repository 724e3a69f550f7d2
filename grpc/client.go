package cloakgrpc

import (
	"context"
	"fmt"

	"github.com/blockberries/cloak"
	"github.com/blockberries/cloak/server"
	"github.com/blockberries/cloak/types"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Compile-time interface check.
var _ cloak.Connection = (*Client)(nil)

// Client implements cloak.Connection for remote applications
// over gRPC using cramberry serialization. No protobuf types
// or conversion layer required.
type Client struct {
	cc    *grpc.ClientConn
	caps  types.Capabilities
	guard *server.LifecycleGuard
}

// Dial connects to a remote cloak application.
func Dial(ctx context.Context, addr string, opts ...grpc.DialOption) (*Client, error) {
	opts = append(opts, grpc.WithDefaultCallOptions(
		grpc.ForceCodec(CramberryCodec{}),
	))
	cc, err := grpc.DialContext(ctx, addr, opts...)
	if err != nil {
		return nil, fmt.Errorf("cloak client: dial %s: %w", addr, err)
	}
	return &Client{
		cc:    cc,
		guard: server.NewLifecycleGuard(),
	}, nil
}

func (c *Client) Close() error {
	return c.cc.Close()
}

// --- Lifecycle ---

func (c *Client) Handshake(ctx context.Context, req types.HandshakeRequest) (types.HandshakeResponse, error) {
	c.guard.AcquireHandshake()

	resp := new(types.HandshakeResponse)
	err := c.cc.Invoke(ctx, fullMethod("Handshake"), &req, resp)
	if err != nil {
		c.guard.FailHandshake()
		return types.HandshakeResponse{}, err
	}

	c.caps = resp.Capabilities
	c.guard.CompleteHandshake()
	return *resp, nil
}

func (c *Client) VerifyHeader(ctx context.Context, req types.HeaderRequest) (types.HeaderVerdict, error) {
	c.guard.CheckConcurrent()

	resp := new(types.HeaderVerdict)
	if err := c.cc.Invoke(ctx, fullMethod("VerifyHeader"), &req, resp); err != nil {
		return types.HeaderVerdict{}, err
	}
	return *resp, nil
}

// ProcessProposal verifies a proposal remotely. An Aborted status is
// the application asking for a halt and is returned as a
// *cloak.HaltError.
func (c *Client) ProcessProposal(ctx context.Context, prop types.ReceivedProposal) (types.ProposalVerdict, error) {
	c.guard.AcquireVerify()
	defer c.guard.CompleteVerify()

	resp := new(types.ProposalVerdict)
	if err := c.cc.Invoke(ctx, fullMethod("ProcessProposal"), &prop, resp); err != nil {
		if st, ok := status.FromError(err); ok && st.Code() == codes.Aborted {
			return types.ProposalVerdict{}, cloak.NewHaltError(prop.Height, st.Message())
		}
		return types.ProposalVerdict{}, err
	}
	return *resp, nil
}

func (c *Client) RevertProposal(ctx context.Context, req types.RevertRequest) (types.RevertResult, error) {
	c.guard.AcquireRevert()
	defer c.guard.CompleteRevert()

	resp := new(types.RevertResult)
	if err := c.cc.Invoke(ctx, fullMethod("RevertProposal"), &req, resp); err != nil {
		return types.RevertResult{}, err
	}
	return *resp, nil
}

// --- Capability Accessors ---

func (c *Client) Capabilities() types.Capabilities { return c.caps }

func (c *Client) AsTxScreener() cloak.TxScreener {
	if c.caps.Has(types.CapTxScreening) {
		return &clientTxScreener{c}
	}
	return nil
}

// --- TxScreener wrapper ---

type clientTxScreener struct{ c *Client }

func (w *clientTxScreener) ProcessTxs(ctx context.Context, txs []types.Tx) ([]types.TxResult, error) {
	w.c.guard.CheckConcurrent()

	req := &ProcessTxsRequest{Txs: txs}
	resp := new(ProcessTxsResponse)
	if err := w.c.cc.Invoke(ctx, fullMethod("ProcessTxs"), req, resp); err != nil {
		return nil, err
	}
	return resp.Results, nil
}
