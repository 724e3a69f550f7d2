package transaction

import (
	"crypto/sha256"

	"github.com/blockberries/cloak/types"
)

// InnerTx is the plaintext of a wrapper's payload.
type InnerTx struct {
	Plaintext []byte `cramberry:"1"`
}

// Hash is the commitment a wrapper records for this payload. A nil
// payload is the empty one.
func (t *InnerTx) Hash() types.Hash {
	if t == nil {
		return sha256.Sum256(nil)
	}
	return sha256.Sum256(t.Plaintext)
}

// DecryptedKind tags which claim a DecryptedTx makes. The tag keeps
// an empty payload distinguishable on the wire, where an empty
// InnerTx is indistinguishable from a missing one.
type DecryptedKind uint8

const (
	DecryptedPayload       DecryptedKind = 1
	DecryptedUndecryptable DecryptedKind = 2
)

// DecryptedTx is the proposer's claim about a wrapper queued in the
// previous block: either the decrypted payload, or the wrapper itself
// marked as undecryptable.
type DecryptedTx struct {
	Kind          DecryptedKind `cramberry:"1"`
	Decrypted     *InnerTx      `cramberry:"2"`
	Undecryptable *WrapperTx    `cramberry:"3"`
}

// HashCommitment is compared against the TxHash of the queued wrapper.
func (d *DecryptedTx) HashCommitment() types.Hash {
	if d.Kind == DecryptedUndecryptable {
		return d.Undecryptable.TxHash
	}
	return d.Decrypted.Hash()
}

// wellFormed reports whether the fields match the kind. A payload
// claim may have a nil payload, which is the empty plaintext.
func (d *DecryptedTx) wellFormed() bool {
	switch d.Kind {
	case DecryptedPayload:
		return d.Undecryptable == nil
	case DecryptedUndecryptable:
		return d.Decrypted == nil && d.Undecryptable != nil
	default:
		return false
	}
}

// Decrypted returns the envelope claiming plaintext as a decrypted payload.
func Decrypted(plaintext []byte) Envelope {
	return Envelope{Decrypted: &DecryptedTx{Kind: DecryptedPayload, Decrypted: &InnerTx{Plaintext: plaintext}}}
}

// Undecryptable returns the envelope claiming w could not be decrypted.
func Undecryptable(w WrapperTx) Envelope {
	return Envelope{Decrypted: &DecryptedTx{Kind: DecryptedUndecryptable, Undecryptable: &w}}
}
