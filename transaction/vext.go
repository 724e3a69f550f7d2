package transaction

import (
	"bytes"
	"errors"
	"fmt"
	"sort"

	"github.com/blockberries/cloak/types"
)

const voteExtensionDomain = "cloak/vote-extension/v1"

var (
	// ErrDuplicateSigner is returned when a digest carries two
	// signatures from the same validator.
	ErrDuplicateSigner = errors.New("transaction: duplicate signer in digest")

	// ErrUnknownSigner is returned when an event in a digest names a
	// signer that has no signature in the digest.
	ErrUnknownSigner = errors.New("transaction: event signer has no signature in digest")
)

// EventKind identifies an observed Ethereum bridge event.
type EventKind uint8

const (
	EventTransfersToLedger  EventKind = 1
	EventTransfersToEth     EventKind = 2
	EventValidatorSetUpdate EventKind = 3
	EventWhitelistUpdate    EventKind = 4
)

// EthereumEvent is an event observed on the Ethereum bridge.
type EthereumEvent struct {
	Nonce   uint64    `cramberry:"1"`
	Kind    EventKind `cramberry:"2"`
	Payload []byte    `cramberry:"3"`
}

func compareEvents(a, b EthereumEvent) int {
	switch {
	case a.Nonce != b.Nonce:
		if a.Nonce < b.Nonce {
			return -1
		}
		return 1
	case a.Kind != b.Kind:
		if a.Kind < b.Kind {
			return -1
		}
		return 1
	default:
		return bytes.Compare(a.Payload, b.Payload)
	}
}

// canonicalEvents returns events sorted with duplicates removed.
func canonicalEvents(events []EthereumEvent) []EthereumEvent {
	out := append([]EthereumEvent(nil), events...)
	sort.Slice(out, func(i, j int) bool { return compareEvents(out[i], out[j]) < 0 })
	n := 0
	for i := range out {
		if n > 0 && compareEvents(out[n-1], out[i]) == 0 {
			continue
		}
		out[n] = out[i]
		n++
	}
	return out[:n]
}

// VoteExtension is a validator's attestation of the Ethereum events
// it observed as of a block height.
type VoteExtension struct {
	Validator   types.ValidatorAddress `cramberry:"1"`
	BlockHeight uint64                 `cramberry:"2"`
	Events      []EthereumEvent        `cramberry:"3"`
}

// NewVoteExtension returns an extension with canonically ordered events.
func NewVoteExtension(validator types.ValidatorAddress, height uint64, events []EthereumEvent) VoteExtension {
	return VoteExtension{Validator: validator, BlockHeight: height, Events: canonicalEvents(events)}
}

// SignBytes returns the bytes the validator signs.
func (v *VoteExtension) SignBytes() ([]byte, error) {
	return signBytes(voteExtensionDomain, *v)
}

// Sign signs the extension with the validator's protocol key.
func (v VoteExtension) Sign(k Keypair) (SignedVoteExtension, error) {
	msg, err := v.SignBytes()
	if err != nil {
		return SignedVoteExtension{}, err
	}
	return SignedVoteExtension{Ext: v, Sig: k.Sign(msg)}, nil
}

// SignedVoteExtension is a vote extension with its signature.
type SignedVoteExtension struct {
	Ext VoteExtension `cramberry:"1"`
	Sig []byte        `cramberry:"2"`
}

// Verify checks the signature against the validator's protocol key.
func (s *SignedVoteExtension) Verify(pk types.PublicKey) error {
	msg, err := s.Ext.SignBytes()
	if err != nil {
		return err
	}
	if !VerifySignature(pk, msg, s.Sig) {
		return fmt.Errorf("%w: vote extension of %s", ErrInvalidSignature, s.Ext.Validator)
	}
	return nil
}

// ValidatorSignature is one validator's signature in a digest.
type ValidatorSignature struct {
	Validator types.ValidatorAddress `cramberry:"1"`
	Sig       []byte                 `cramberry:"2"`
}

// MultiSignedEvent is an event together with every validator that
// attested to it.
type MultiSignedEvent struct {
	Event   EthereumEvent            `cramberry:"1"`
	Signers []types.ValidatorAddress `cramberry:"2"`
}

// VoteExtensionDigest is the compressed form of a set of vote
// extensions for the same height. Each event is stored once with the
// set of validators that observed it.
type VoteExtensionDigest struct {
	Signatures []ValidatorSignature `cramberry:"1"`
	Events     []MultiSignedEvent   `cramberry:"2"`
}

func compareAddrs(a, b types.ValidatorAddress) int {
	return bytes.Compare(a[:], b[:])
}

// Compress builds the digest of exts. Signatures are ordered by
// validator address, events canonically, and each event's signers by
// address.
func Compress(exts []SignedVoteExtension) VoteExtensionDigest {
	var d VoteExtensionDigest
	signers := make(map[string][]types.ValidatorAddress)
	var events []EthereumEvent
	for _, e := range exts {
		d.Signatures = append(d.Signatures, ValidatorSignature{Validator: e.Ext.Validator, Sig: e.Sig})
		for _, ev := range canonicalEvents(e.Ext.Events) {
			k := eventKey(ev)
			if _, ok := signers[k]; !ok {
				events = append(events, ev)
			}
			signers[k] = append(signers[k], e.Ext.Validator)
		}
	}
	sort.Slice(d.Signatures, func(i, j int) bool {
		return compareAddrs(d.Signatures[i].Validator, d.Signatures[j].Validator) < 0
	})
	for _, ev := range canonicalEvents(events) {
		s := signers[eventKey(ev)]
		sort.Slice(s, func(i, j int) bool { return compareAddrs(s[i], s[j]) < 0 })
		d.Events = append(d.Events, MultiSignedEvent{Event: ev, Signers: s})
	}
	return d
}

func eventKey(ev EthereumEvent) string {
	return fmt.Sprintf("%d/%d/%x", ev.Nonce, ev.Kind, ev.Payload)
}

// Decompress rebuilds one signed extension per signature in the
// digest, each at lastHeight and carrying the events its validator
// attested to, in digest order.
//
// A digest with two signatures from one validator, or an event signed
// by a validator with no signature, is rejected.
func (d *VoteExtensionDigest) Decompress(lastHeight uint64) ([]SignedVoteExtension, error) {
	index := make(map[types.ValidatorAddress]int, len(d.Signatures))
	out := make([]SignedVoteExtension, 0, len(d.Signatures))
	for _, s := range d.Signatures {
		if _, dup := index[s.Validator]; dup {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateSigner, s.Validator)
		}
		index[s.Validator] = len(out)
		out = append(out, SignedVoteExtension{
			Ext: VoteExtension{Validator: s.Validator, BlockHeight: lastHeight},
			Sig: s.Sig,
		})
	}
	for _, ev := range d.Events {
		seen := make(map[types.ValidatorAddress]struct{}, len(ev.Signers))
		for _, signer := range ev.Signers {
			if _, dup := seen[signer]; dup {
				return nil, fmt.Errorf("%w: %s signs event %d twice", ErrDuplicateSigner, signer, ev.Event.Nonce)
			}
			seen[signer] = struct{}{}
			i, ok := index[signer]
			if !ok {
				return nil, fmt.Errorf("%w: %s", ErrUnknownSigner, signer)
			}
			out[i].Ext.Events = append(out[i].Ext.Events, ev.Event)
		}
	}
	return out, nil
}
