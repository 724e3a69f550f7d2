package cloaktest

import (
	"fmt"
	"testing"
	"time"

	"github.com/blockberries/cloak/encryption"
	"github.com/blockberries/cloak/state"
	"github.com/blockberries/cloak/transaction"
	"github.com/blockberries/cloak/types"
)

// DefaultLastHeight is the last committed height of a new Network.
const DefaultLastHeight = 10

// FeeToken is the token wrappers pay fees in.
var FeeToken = types.Address{0xFE, 0xE0}

// Network is a deterministic chain fixture: a validator set with
// derived keys, a seeded in-memory store and the block decryption key,
// with builders for the transactions a proposal can carry.
type Network struct {
	t          testing.TB
	Keys       []transaction.Keypair
	Validators []types.Validator
	Store      *state.MemStore
	// EncryptionKey is the key wrapper payloads are encrypted to.
	EncryptionKey *encryption.PrivateKey
	LastHeight    uint64
	Epoch         uint64
}

// NewNetwork creates a network with one validator per power, all in
// epoch 0, at DefaultLastHeight.
func NewNetwork(t testing.TB, powers ...uint64) *Network {
	t.Helper()
	n := &Network{
		t:             t,
		Store:         state.NewMemStore(),
		EncryptionKey: encryption.DeriveKey([]byte("block-decryption-key")),
		LastHeight:    DefaultLastHeight,
	}
	for i, p := range powers {
		k := transaction.DeriveKeypair([]byte(fmt.Sprintf("validator-%d", i)))
		n.Keys = append(n.Keys, k)
		n.Validators = append(n.Validators, types.Validator{
			Address:     k.PublicKey().ValidatorAddress(),
			ProtocolKey: k.PublicKey(),
			Power:       p,
		})
	}
	n.must(n.Store.SetLastHeight(n.LastHeight))
	n.must(n.Store.SetEpoch(0, n.Epoch))
	n.must(n.Store.SetValidators(n.Epoch, n.Validators))
	return n
}

func (n *Network) must(err error) {
	n.t.Helper()
	if err != nil {
		n.t.Fatalf("network fixture: %v", err)
	}
}

// Payer returns the i-th fee payer's keypair.
func Payer(i int) transaction.Keypair {
	return transaction.DeriveKeypair([]byte(fmt.Sprintf("payer-%d", i)))
}

// Fund sets the payer's fee-token balance.
func (n *Network) Fund(payer transaction.Keypair, amount uint64) {
	n.t.Helper()
	n.must(n.Store.SetBalance(FeeToken, payer.PublicKey().Address(), amount))
}

// Wrapper builds a wrapper paying fee whose payload is plaintext.
func (n *Network) Wrapper(payer transaction.Keypair, fee uint64, plaintext string) *transaction.SignedWrapper {
	n.t.Helper()
	sw, err := transaction.NewWrapper(transaction.WrapperParams{
		Fee:      transaction.Fee{Amount: fee, Token: FeeToken},
		Epoch:    n.Epoch,
		GasLimit: 1_000_000,
	}, []byte(plaintext), n.EncryptionKey.PublicKey(), payer)
	n.must(err)
	return sw
}

// Queue sets the wrappers that the verified block must decrypt.
func (n *Network) Queue(ws ...*transaction.SignedWrapper) {
	n.t.Helper()
	q := make([]transaction.WrapperTx, len(ws))
	for i, w := range ws {
		q[i] = w.Tx
	}
	n.must(n.Store.SetTxQueue(q))
}

// Encode returns the wire bytes of env.
func (n *Network) Encode(env transaction.Envelope) types.Tx {
	n.t.Helper()
	b, err := env.Encode()
	n.must(err)
	return b
}

// WrapperTx is Wrapper, encoded.
func (n *Network) WrapperTx(payer transaction.Keypair, fee uint64, plaintext string) types.Tx {
	n.t.Helper()
	return n.Encode(n.Wrapper(payer, fee, plaintext).Envelope())
}

// DecryptedTx claims plaintext as a decrypted payload.
func (n *Network) DecryptedTx(plaintext string) types.Tx {
	n.t.Helper()
	return n.Encode(transaction.Decrypted([]byte(plaintext)))
}

// UndecryptableTx claims w could not be decrypted.
func (n *Network) UndecryptableTx(w *transaction.SignedWrapper) types.Tx {
	n.t.Helper()
	return n.Encode(transaction.Undecryptable(w.Tx))
}

// Extension returns validator i's signed vote extension at height.
func (n *Network) Extension(i int, height uint64, events ...transaction.EthereumEvent) transaction.SignedVoteExtension {
	n.t.Helper()
	sv, err := transaction.NewVoteExtension(n.Validators[i].Address, height, events).Sign(n.Keys[i])
	n.must(err)
	return sv
}

// DigestTx builds a protocol transaction carrying the digest of the
// given validators' extensions at the last height, with no events.
func (n *Network) DigestTx(signers ...int) types.Tx {
	n.t.Helper()
	exts := make([]transaction.SignedVoteExtension, len(signers))
	for i, s := range signers {
		exts[i] = n.Extension(s, n.LastHeight)
	}
	return n.DigestOf(exts...)
}

// DigestOf builds a protocol transaction carrying the digest of exts,
// signed by validator 0.
func (n *Network) DigestOf(exts ...transaction.SignedVoteExtension) types.Tx {
	n.t.Helper()
	env, err := transaction.EthereumEventsTx(transaction.Compress(exts), n.Keys[0])
	n.must(err)
	return n.Encode(env)
}

// Proposal wraps txs in a proposal for the next height, from
// validator 0.
func (n *Network) Proposal(txs ...types.Tx) types.ReceivedProposal {
	height := n.LastHeight + 1
	return types.ReceivedProposal{
		Height:   height,
		Time:     types.TimeToTimestamp(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC).Add(time.Duration(height) * 5 * time.Second)),
		Proposer: n.Validators[0].Address,
		Hash:     types.Hash{byte(height)},
		Txs:      txs,
	}
}

// Snapshot opens a snapshot that is discarded when the test ends.
func (n *Network) Snapshot() state.Snapshot {
	n.t.Helper()
	snap, err := n.Store.Snapshot()
	n.must(err)
	n.t.Cleanup(snap.Discard)
	return snap
}
