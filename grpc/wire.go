package cloakgrpc

import "github.com/blockberries/cloak/types"

// Transport-specific wrapper types for RPC methods whose interface
// signatures don't map to a single request/response struct.

// ProcessTxsRequest wraps the parameter for TxScreener.ProcessTxs.
type ProcessTxsRequest struct {
	Txs []types.Tx `cramberry:"1"`
}

// ProcessTxsResponse wraps the return value of TxScreener.ProcessTxs.
type ProcessTxsResponse struct {
	Results []types.TxResult `cramberry:"1"`
}
