package transaction

import (
	"fmt"

	"github.com/blockberries/cramberry/pkg/cramberry"
)

// Classify decodes proposal bytes into a transaction. Wrapper and
// protocol transactions have their outer signature checked here.
//
// Errors wrap ErrMalformed or ErrInvalidSignature. Classify is pure
// and does not panic, whatever the input.
func Classify(b []byte) (tt TxType, err error) {
	defer func() {
		if r := recover(); r != nil {
			tt, err = nil, fmt.Errorf("%w: decoder panic: %v", ErrMalformed, r)
		}
	}()

	if len(b) == 0 {
		return nil, fmt.Errorf("%w: empty", ErrMalformed)
	}
	var env Envelope
	if err := cramberry.Unmarshal(b, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if n := env.arms(); n != 1 {
		return nil, fmt.Errorf("%w: envelope has %d arms set", ErrMalformed, n)
	}

	switch {
	case env.Raw != nil:
		return env.Raw, nil

	case env.Wrapper != nil:
		if err := env.Wrapper.Verify(); err != nil {
			return nil, err
		}
		return &env.Wrapper.Tx, nil

	case env.Decrypted != nil:
		d := env.Decrypted
		if !d.wellFormed() {
			return nil, fmt.Errorf("%w: decrypted tx fields do not match kind %d", ErrMalformed, uint8(d.Kind))
		}
		// An empty payload encodes as an absent one.
		if d.Kind == DecryptedPayload && d.Decrypted == nil {
			d.Decrypted = &InnerTx{}
		}
		return d, nil

	default:
		p := &env.Protocol.Tx
		if !p.Kind.valid() {
			return nil, fmt.Errorf("%w: unknown protocol tx kind %d", ErrMalformed, uint8(p.Kind))
		}
		if p.Kind != ProtocolEthereumEvents && p.EthereumEvents != nil {
			return nil, fmt.Errorf("%w: %s protocol tx carries a vote-extension digest", ErrMalformed, p.Kind)
		}
		if err := env.Protocol.Verify(); err != nil {
			return nil, err
		}
		// An empty digest encodes as an absent one; it is still a digest.
		if p.Kind == ProtocolEthereumEvents && p.EthereumEvents == nil {
			p.EthereumEvents = &VoteExtensionDigest{}
		}
		return p, nil
	}
}
