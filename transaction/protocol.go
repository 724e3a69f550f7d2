package transaction

import (
	"fmt"

	"github.com/blockberries/cloak/types"
)

const protocolDomain = "cloak/protocol/v1"

// ProtocolKind identifies the payload of a protocol transaction.
type ProtocolKind uint8

const (
	ProtocolEthereumEvents     ProtocolKind = 1
	ProtocolDKG                ProtocolKind = 2
	ProtocolNewDKGKeypair      ProtocolKind = 3
	ProtocolValidatorSetUpdate ProtocolKind = 4
)

func (k ProtocolKind) String() string {
	switch k {
	case ProtocolEthereumEvents:
		return "EthereumEvents"
	case ProtocolDKG:
		return "DKG"
	case ProtocolNewDKGKeypair:
		return "NewDKGKeypair"
	case ProtocolValidatorSetUpdate:
		return "ValidatorSetUpdate"
	default:
		return fmt.Sprintf("ProtocolKind(%d)", uint8(k))
	}
}

func (k ProtocolKind) valid() bool {
	return k >= ProtocolEthereumEvents && k <= ProtocolValidatorSetUpdate
}

// ProtocolTx is a transaction injected by a validator rather than
// submitted by a user.
type ProtocolTx struct {
	Signer types.PublicKey `cramberry:"1"`
	Kind   ProtocolKind    `cramberry:"2"`
	// Set only for ProtocolEthereumEvents.
	EthereumEvents *VoteExtensionDigest `cramberry:"3"`
	// Opaque payload of the other kinds.
	Data []byte `cramberry:"4"`
}

// SignBytes returns the bytes the signer signs.
func (p *ProtocolTx) SignBytes() ([]byte, error) {
	return signBytes(protocolDomain, *p)
}

// SignedProtocol is a protocol transaction with the validator's signature.
type SignedProtocol struct {
	Tx  ProtocolTx `cramberry:"1"`
	Sig []byte     `cramberry:"2"`
}

// Verify checks the signature of the protocol transaction's signer.
func (s *SignedProtocol) Verify() error {
	msg, err := s.Tx.SignBytes()
	if err != nil {
		return err
	}
	if !VerifySignature(s.Tx.Signer, msg, s.Sig) {
		return fmt.Errorf("%w: protocol tx not signed by %s", ErrInvalidSignature, s.Tx.Signer.ValidatorAddress())
	}
	return nil
}

// SignProtocol signs p with the validator's protocol key.
func SignProtocol(p ProtocolTx, signer Keypair) (*SignedProtocol, error) {
	msg, err := p.SignBytes()
	if err != nil {
		return nil, err
	}
	return &SignedProtocol{Tx: p, Sig: signer.Sign(msg)}, nil
}

// EthereumEventsTx returns the signed envelope carrying digest.
func EthereumEventsTx(digest VoteExtensionDigest, signer Keypair) (Envelope, error) {
	sp, err := SignProtocol(ProtocolTx{
		Signer:         signer.PublicKey(),
		Kind:           ProtocolEthereumEvents,
		EthereumEvents: &digest,
	}, signer)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{Protocol: sp}, nil
}
