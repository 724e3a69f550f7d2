package transaction

import (
	"crypto/sha256"
	"fmt"

	"github.com/blockberries/cloak/encryption"
	"github.com/blockberries/cloak/types"
)

const wrapperDomain = "cloak/wrapper/v1"

// Fee is the amount of a token a wrapper pays for inclusion.
type Fee struct {
	Amount uint64        `cramberry:"1"`
	Token  types.Address `cramberry:"2"`
}

// WrapperTx carries an encrypted inner transaction together with the
// fee paid for it. The inner transaction is decrypted and executed in
// the block after the one that includes the wrapper.
type WrapperTx struct {
	Fee         Fee                   `cramberry:"1"`
	FeePayerKey types.PublicKey       `cramberry:"2"`
	Epoch       uint64                `cramberry:"3"`
	GasLimit    uint64                `cramberry:"4"`
	TxHash      types.Hash            `cramberry:"5"`
	Ciphertext  encryption.Ciphertext `cramberry:"6"`
}

// FeePayer returns the address of the account paying the fee.
func (w *WrapperTx) FeePayer() types.Address {
	return w.FeePayerKey.Address()
}

// SignBytes returns the bytes the fee payer signs. They cover every
// field, including the fee.
func (w *WrapperTx) SignBytes() ([]byte, error) {
	return signBytes(wrapperDomain, *w)
}

// Decrypt opens the wrapped payload with d.
func (w *WrapperTx) Decrypt(d encryption.Decrypter) (*InnerTx, error) {
	pt, err := d.Decrypt(w.Ciphertext)
	if err != nil {
		return nil, err
	}
	return &InnerTx{Plaintext: pt}, nil
}

// SignedWrapper is a wrapper transaction with the fee payer's signature.
type SignedWrapper struct {
	Tx  WrapperTx `cramberry:"1"`
	Sig []byte    `cramberry:"2"`
}

// Verify checks the fee payer's signature.
func (s *SignedWrapper) Verify() error {
	msg, err := s.Tx.SignBytes()
	if err != nil {
		return err
	}
	if !VerifySignature(s.Tx.FeePayerKey, msg, s.Sig) {
		return fmt.Errorf("%w: wrapper not signed by fee payer %s", ErrInvalidSignature, s.Tx.FeePayer())
	}
	return nil
}

// WrapperParams are the cleartext fields of a new wrapper.
type WrapperParams struct {
	Fee      Fee
	Epoch    uint64
	GasLimit uint64
}

// NewWrapper encrypts plaintext to encryptionKey and returns the
// wrapper signed by payer.
func NewWrapper(p WrapperParams, plaintext []byte, encryptionKey []byte, payer Keypair) (*SignedWrapper, error) {
	ct, err := encryption.Encrypt(encryptionKey, plaintext)
	if err != nil {
		return nil, fmt.Errorf("transaction: encrypt payload: %w", err)
	}
	w := WrapperTx{
		Fee:         p.Fee,
		FeePayerKey: payer.PublicKey(),
		Epoch:       p.Epoch,
		GasLimit:    p.GasLimit,
		TxHash:      sha256.Sum256(plaintext),
		Ciphertext:  ct,
	}
	return SignWrapper(w, payer)
}

// SignWrapper signs w with payer's key.
func SignWrapper(w WrapperTx, payer Keypair) (*SignedWrapper, error) {
	msg, err := w.SignBytes()
	if err != nil {
		return nil, err
	}
	return &SignedWrapper{Tx: w, Sig: payer.Sign(msg)}, nil
}

// Envelope returns the wire envelope of the signed wrapper.
func (s *SignedWrapper) Envelope() Envelope {
	return Envelope{Wrapper: s}
}
