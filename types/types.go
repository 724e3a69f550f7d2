// Package types defines the wire types exchanged between the consensus
// engine and a cloak application.
//
// These are plain Go structs with cramberry struct tags for
// deterministic binary serialization. Transport concerns
// (gRPC codec registration) are handled in the transport packages.
package types

import (
	"encoding/hex"
	"strings"
)

// Hash is a 32-byte cryptographic hash.
type Hash [32]byte

// String returns the upper-case hex encoding used in log and result messages.
func (h Hash) String() string {
	return strings.ToUpper(hex.EncodeToString(h[:]))
}

// Tx is an opaque transaction as carried by a block proposal.
// The consensus engine never inspects its contents.
type Tx []byte

// Address identifies an account or a token on the ledger.
type Address [20]byte

func (a Address) String() string {
	return hex.EncodeToString(a[:])
}

// BlockID uniquely identifies a point in the chain.
type BlockID struct {
	Height uint64 `cramberry:"1"`
	Hash   Hash   `cramberry:"2"`
}
