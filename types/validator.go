package types

import (
	"crypto/sha256"
	"encoding/hex"
)

// ValidatorAddress is the 20-byte address derived from
// a validator's public key.
type ValidatorAddress [20]byte

func (a ValidatorAddress) String() string {
	return hex.EncodeToString(a[:])
}

// KeyType identifies a cryptographic key algorithm.
type KeyType uint8

const (
	KeyTypeEd25519   KeyType = 1
	KeyTypeSecp256k1 KeyType = 2
)

// PublicKey represents a cryptographic identity: an account's
// fee-paying key or a validator's protocol key.
type PublicKey struct {
	Type KeyType `cramberry:"1"`
	Data []byte  `cramberry:"2"`
}

// Address derives the account address controlled by the key.
func (pk PublicKey) Address() Address {
	return Address(pk.digest())
}

// ValidatorAddress derives the validator address controlled by the key.
func (pk PublicKey) ValidatorAddress() ValidatorAddress {
	return ValidatorAddress(pk.digest())
}

func (pk PublicKey) digest() [20]byte {
	h := sha256.New()
	h.Write([]byte{byte(pk.Type)})
	h.Write(pk.Data)
	var out [20]byte
	copy(out[:], h.Sum(nil))
	return out
}

// Validator is an active member of the validator set for an epoch.
type Validator struct {
	Address     ValidatorAddress `cramberry:"1"`
	ProtocolKey PublicKey        `cramberry:"2"`
	// Voting power in the epoch. Fractions are taken against the
	// epoch's total voting power.
	Power uint64 `cramberry:"3"`
}
