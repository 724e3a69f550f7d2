// Package local provides a zero-copy, in-process cloak connection.
//
// For applications compiled into the same binary as the consensus
// engine, this adapter wraps the application with lifecycle state
// machine enforcement and capability discovery, with no
// serialization overhead.
package local

import (
	"context"

	"github.com/blockberries/cloak"
	"github.com/blockberries/cloak/server"
	"github.com/blockberries/cloak/types"
)

// Compile-time interface check.
var _ cloak.Connection = (*Connection)(nil)

// Connection wraps a local Lifecycle implementation with lifecycle
// enforcement and capability discovery.
type Connection struct {
	srv *server.Server
}

// NewConnection creates an in-process cloak connection wrapping
// the given application.
func NewConnection(app cloak.Lifecycle, opts ...server.Option) *Connection {
	return &Connection{srv: server.New(app, opts...)}
}

func (c *Connection) Handshake(ctx context.Context, req types.HandshakeRequest) (types.HandshakeResponse, error) {
	return c.srv.Handshake(ctx, req)
}

func (c *Connection) VerifyHeader(ctx context.Context, req types.HeaderRequest) (types.HeaderVerdict, error) {
	return c.srv.VerifyHeader(ctx, req)
}

func (c *Connection) ProcessProposal(ctx context.Context, prop types.ReceivedProposal) (types.ProposalVerdict, error) {
	return c.srv.ProcessProposal(ctx, prop)
}

func (c *Connection) RevertProposal(ctx context.Context, req types.RevertRequest) (types.RevertResult, error) {
	return c.srv.RevertProposal(ctx, req)
}

func (c *Connection) Capabilities() types.Capabilities {
	return c.srv.Capabilities()
}

func (c *Connection) AsTxScreener() cloak.TxScreener {
	return c.srv.AsTxScreener()
}

func (c *Connection) Close() error { return nil }

// Server returns the underlying server for advanced use cases.
func (c *Connection) Server() *server.Server {
	return c.srv
}
