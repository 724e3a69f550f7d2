package transaction

import (
	"crypto/ed25519"
	"crypto/sha256"

	"github.com/blockberries/cloak/types"
)

// Keypair is an Ed25519 signing key used by fee payers and validators.
type Keypair struct {
	priv ed25519.PrivateKey
}

// NewKeypair wraps an existing Ed25519 private key.
func NewKeypair(priv ed25519.PrivateKey) Keypair {
	return Keypair{priv: priv}
}

// DeriveKeypair deterministically derives a keypair from seed.
func DeriveKeypair(seed []byte) Keypair {
	s := sha256.Sum256(seed)
	return Keypair{priv: ed25519.NewKeyFromSeed(s[:])}
}

// PublicKey returns the public half of the keypair.
func (k Keypair) PublicKey() types.PublicKey {
	return types.PublicKey{
		Type: types.KeyTypeEd25519,
		Data: append([]byte(nil), k.priv.Public().(ed25519.PublicKey)...),
	}
}

// PrivateKey returns the underlying Ed25519 key.
func (k Keypair) PrivateKey() ed25519.PrivateKey { return k.priv }

// Sign signs msg.
func (k Keypair) Sign(msg []byte) []byte {
	return ed25519.Sign(k.priv, msg)
}

// VerifySignature reports whether sig is a valid signature of msg by
// pk. Only Ed25519 keys are supported; any other key type, or a key or
// signature of the wrong length, fails.
func VerifySignature(pk types.PublicKey, msg, sig []byte) bool {
	if pk.Type != types.KeyTypeEd25519 {
		return false
	}
	if len(pk.Data) != ed25519.PublicKeySize || len(sig) != ed25519.SignatureSize {
		return false
	}
	return ed25519.Verify(ed25519.PublicKey(pk.Data), msg, sig)
}
