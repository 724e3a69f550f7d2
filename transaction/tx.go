// Package transaction defines the transaction formats that can appear
// in a block proposal and classifies raw proposal bytes into them.
//
// On the wire every transaction is an Envelope: a tagged union with
// exactly one arm set. Classify decodes an Envelope, checks its outer
// signature and returns one of the TxType variants.
package transaction

import (
	"crypto/sha256"
	"errors"
	"fmt"

	"github.com/blockberries/cloak/types"
	"github.com/blockberries/cramberry/pkg/cramberry"
)

var (
	// ErrMalformed is returned for bytes that do not decode to a
	// well-formed transaction.
	ErrMalformed = errors.New("transaction: malformed")

	// ErrInvalidSignature is returned when the outer signature of a
	// wrapper or protocol transaction does not verify.
	ErrInvalidSignature = errors.New("transaction: invalid signature")
)

// TxType is a classified transaction. The variants are *RawTx,
// *WrapperTx, *DecryptedTx and *ProtocolTx.
type TxType interface {
	isTxType()
}

func (*RawTx) isTxType()       {}
func (*WrapperTx) isTxType()   {}
func (*DecryptedTx) isTxType() {}
func (*ProtocolTx) isTxType()  {}

// Envelope is the wire form of every transaction.
type Envelope struct {
	Raw       *RawTx          `cramberry:"1"`
	Wrapper   *SignedWrapper  `cramberry:"2"`
	Protocol  *SignedProtocol `cramberry:"3"`
	Decrypted *DecryptedTx    `cramberry:"4"`
}

func (e Envelope) arms() int {
	n := 0
	if e.Raw != nil {
		n++
	}
	if e.Wrapper != nil {
		n++
	}
	if e.Protocol != nil {
		n++
	}
	if e.Decrypted != nil {
		n++
	}
	return n
}

// Encode returns the wire bytes of the envelope.
func (e Envelope) Encode() (types.Tx, error) {
	if e.arms() != 1 {
		return nil, fmt.Errorf("%w: envelope has %d arms set", ErrMalformed, e.arms())
	}
	b, err := cramberry.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("transaction: encode envelope: %w", err)
	}
	return b, nil
}

// RawTx is an unwrapped, unencrypted transaction.
type RawTx struct {
	Code []byte `cramberry:"1"`
	Data []byte `cramberry:"2"`
}

// Raw returns the envelope of an unencrypted transaction.
func Raw(code, data []byte) Envelope {
	return Envelope{Raw: &RawTx{Code: code, Data: data}}
}

// signBytes is the domain-separated canonical encoding that a
// signature covers.
func signBytes(domain string, v any) ([]byte, error) {
	body, err := cramberry.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("transaction: sign bytes: %w", err)
	}
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write(body)
	return h.Sum(nil), nil
}
