package proposal_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/blockberries/cloak"
	"github.com/blockberries/cloak/encryption"
	"github.com/blockberries/cloak/proposal"
	cloaktest "github.com/blockberries/cloak/testing"
	"github.com/blockberries/cloak/transaction"
	"github.com/blockberries/cloak/types"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"
	"pgregory.net/rapid"
)

func newProcessor(t testing.TB, n *cloaktest.Network) *proposal.Processor {
	t.Helper()
	p, err := proposal.New(proposal.Config{
		Logger:    zaptest.NewLogger(t),
		Decrypter: n.EncryptionKey,
		Workers:   4,
	})
	require.NoError(t, err)
	return p
}

func process(t testing.TB, n *cloaktest.Network, txs ...types.Tx) types.ProposalVerdict {
	t.Helper()
	v, err := newProcessor(t, n).ProcessProposal(context.Background(), n.Snapshot(), n.Proposal(txs...))
	require.NoError(t, err)
	require.Len(t, v.TxResults, len(txs))
	return v
}

func codes(v types.ProposalVerdict) []proposal.ErrorCode {
	out := make([]proposal.ErrorCode, len(v.TxResults))
	for i, r := range v.TxResults {
		out[i] = proposal.ErrorCode(r.Code)
	}
	return out
}

func TestAcceptSupermajorityDigest(t *testing.T) {
	n := cloaktest.NewNetwork(t, 70, 30)
	v := process(t, n, n.DigestTx(0))
	require.Equal(t, types.ProposalAccept, v.Status)
	require.Equal(t, []proposal.ErrorCode{proposal.Ok}, codes(v))
}

func TestRejectWithoutDigest(t *testing.T) {
	n := cloaktest.NewNetwork(t, 70, 30)
	payer := cloaktest.Payer(0)
	n.Fund(payer, 100)

	v := process(t, n, n.WrapperTx(payer, 10, "inner"))
	require.Equal(t, types.ProposalReject, v.Status)
	require.Equal(t, []proposal.ErrorCode{proposal.Ok}, codes(v))

	v = process(t, n)
	require.Equal(t, types.ProposalReject, v.Status)
	require.Empty(t, v.TxResults)
}

func TestRejectDuplicateDigest(t *testing.T) {
	n := cloaktest.NewNetwork(t, 70, 30)
	digest := n.DigestTx(0, 1)
	v := process(t, n, digest, digest)
	require.Equal(t, types.ProposalReject, v.Status)
	require.Equal(t, []proposal.ErrorCode{proposal.Ok, proposal.Ok}, codes(v))
}

func TestInsufficientBackingStake(t *testing.T) {
	n := cloaktest.NewNetwork(t, 60, 40)
	v := process(t, n, n.DigestTx(0))
	require.Equal(t, types.ProposalReject, v.Status)
	require.Equal(t, []proposal.ErrorCode{proposal.InvalidVoteExtension}, codes(v))
	require.Contains(t, v.TxResults[0].Info, "insufficient")

	v = process(t, n, n.DigestTx(0, 1))
	require.Equal(t, types.ProposalAccept, v.Status)
}

func TestExactlyTwoThirdsIsInsufficient(t *testing.T) {
	n := cloaktest.NewNetwork(t, 2, 1)
	v := process(t, n, n.DigestTx(0))
	require.Equal(t, []proposal.ErrorCode{proposal.InvalidVoteExtension}, codes(v))
}

func TestDigestWithInvalidExtension(t *testing.T) {
	n := cloaktest.NewNetwork(t, 70, 20, 10)

	// Wrong height.
	v := process(t, n, n.DigestOf(n.Extension(0, n.LastHeight), n.Extension(2, n.LastHeight-1)))
	require.Equal(t, []proposal.ErrorCode{proposal.InvalidVoteExtension}, codes(v))
	require.Contains(t, v.TxResults[0].Info, "was invalid")

	// Signer outside the validator set.
	outsider := cloaktest.NewNetwork(t, 1, 1, 1, 1)
	v = process(t, n, n.DigestOf(n.Extension(0, n.LastHeight), outsider.Extension(3, n.LastHeight)))
	require.Equal(t, []proposal.ErrorCode{proposal.InvalidVoteExtension}, codes(v))
	require.Equal(t, types.ProposalReject, v.Status)
}

func TestDigestWithForgedSignature(t *testing.T) {
	n := cloaktest.NewNetwork(t, 70, 20, 10)

	// Corrupted signature at the right height.
	ext := n.Extension(0, n.LastHeight)
	ext.Sig = append([]byte(nil), ext.Sig...)
	ext.Sig[0] ^= 0xFF
	v := process(t, n, n.DigestOf(ext))
	require.Equal(t, []proposal.ErrorCode{proposal.InvalidVoteExtension}, codes(v))
	require.Equal(t, types.ProposalReject, v.Status)

	// Another validator's valid signature over its own extension.
	ext = n.Extension(0, n.LastHeight)
	ext.Sig = n.Extension(1, n.LastHeight).Sig
	v = process(t, n, n.DigestOf(ext))
	require.Equal(t, []proposal.ErrorCode{proposal.InvalidVoteExtension}, codes(v))
	require.Equal(t, types.ProposalReject, v.Status)
}

func TestEmptyDigestCountsAsDigest(t *testing.T) {
	n := cloaktest.NewNetwork(t, 70, 30)
	env, err := transaction.EthereumEventsTx(transaction.VoteExtensionDigest{}, n.Keys[1])
	require.NoError(t, err)
	empty := n.Encode(env)

	v := process(t, n, n.DigestTx(0), empty)
	require.Equal(t, []proposal.ErrorCode{proposal.Ok, proposal.InvalidVoteExtension}, codes(v))
	require.Contains(t, v.TxResults[1].Info, "insufficient")
	require.Equal(t, types.ProposalReject, v.Status)

	v = process(t, n, empty)
	require.Equal(t, []proposal.ErrorCode{proposal.InvalidVoteExtension}, codes(v))
	require.Equal(t, types.ProposalReject, v.Status)
}

func TestDigestWithEvents(t *testing.T) {
	n := cloaktest.NewNetwork(t, 40, 40, 20)
	ev := transaction.EthereumEvent{Nonce: 1, Kind: transaction.EventTransfersToLedger, Payload: []byte("transfer")}
	other := transaction.EthereumEvent{Nonce: 2, Kind: transaction.EventWhitelistUpdate, Payload: []byte("wl")}

	v := process(t, n, n.DigestOf(
		n.Extension(0, n.LastHeight, ev, other),
		n.Extension(1, n.LastHeight, ev),
	))
	require.Equal(t, types.ProposalAccept, v.Status)
}

func TestProposalLogCarriesTime(t *testing.T) {
	n := cloaktest.NewNetwork(t, 100)
	core, logs := observer.New(zap.InfoLevel)
	p, err := proposal.New(proposal.Config{Logger: zap.New(core), Decrypter: n.EncryptionKey})
	require.NoError(t, err)

	req := n.Proposal(n.DigestTx(0))
	_, err = p.ProcessProposal(context.Background(), n.Snapshot(), req)
	require.NoError(t, err)

	received := logs.FilterMessage("Received block proposal").All()
	require.Len(t, received, 1)
	fields := received[0].ContextMap()
	logged, ok := fields["time"].(time.Time)
	require.True(t, ok)
	require.True(t, req.Time.ToTime().Equal(logged))
	require.Equal(t, req.Height, fields["height"])
}

func TestWrapperFees(t *testing.T) {
	n := cloaktest.NewNetwork(t, 100)
	rich, poor := cloaktest.Payer(0), cloaktest.Payer(1)
	n.Fund(rich, 100)
	n.Fund(poor, 5)

	v := process(t, n,
		n.DigestTx(0),
		n.WrapperTx(rich, 100, "exact balance"),
		n.WrapperTx(poor, 6, "too expensive"),
		n.WrapperTx(cloaktest.Payer(2), 1, "no account"),
		n.WrapperTx(cloaktest.Payer(2), 0, "free"),
	)
	require.Equal(t, []proposal.ErrorCode{
		proposal.Ok, proposal.Ok, proposal.InvalidTx, proposal.InvalidTx, proposal.Ok,
	}, codes(v))
	require.Equal(t, "The address given does not have sufficient balance to pay fee", v.TxResults[2].Info)
	// Insufficient fees are recoverable.
	require.Equal(t, types.ProposalAccept, v.Status)
}

func TestWrapperInvalidCiphertext(t *testing.T) {
	n := cloaktest.NewNetwork(t, 100)
	payer := cloaktest.Payer(0)
	n.Fund(payer, 100)

	w := n.Wrapper(payer, 1, "inner").Tx
	w.Ciphertext.Enc = w.Ciphertext.Enc[:8]
	sw, err := transaction.SignWrapper(w, payer)
	require.NoError(t, err)
	tx := n.Encode(sw.Envelope())

	v := process(t, n, n.DigestTx(0), tx)
	require.Equal(t, proposal.InvalidTx, proposal.ErrorCode(v.TxResults[1].Code))
	require.Contains(t, v.TxResults[1].Info, "The ciphertext of the wrapped tx")
	require.Contains(t, v.TxResults[1].Info, "is invalid")
}

func TestTamperedFee(t *testing.T) {
	n := cloaktest.NewNetwork(t, 100)
	payer := cloaktest.Payer(0)
	n.Fund(payer, 100)

	sw := n.Wrapper(payer, 50, "inner")
	sw.Tx.Fee.Amount = 1
	v := process(t, n, n.DigestTx(0), n.Encode(sw.Envelope()))
	require.Equal(t, []proposal.ErrorCode{proposal.Ok, proposal.InvalidSig}, codes(v))
	require.Equal(t, types.ProposalAccept, v.Status)
}

func TestDecryptedOrder(t *testing.T) {
	n := cloaktest.NewNetwork(t, 100)
	payer := cloaktest.Payer(0)
	a, b, c := n.Wrapper(payer, 1, "a"), n.Wrapper(payer, 1, "b"), n.Wrapper(payer, 1, "c")
	n.Queue(a, b, c)

	v := process(t, n, n.DigestTx(0), n.DecryptedTx("a"), n.DecryptedTx("c"))
	require.Equal(t, []proposal.ErrorCode{proposal.Ok, proposal.Ok, proposal.InvalidOrder}, codes(v))
	require.Equal(t, types.ProposalReject, v.Status)

	v = process(t, n, n.DigestTx(0), n.DecryptedTx("a"), n.DecryptedTx("b"), n.DecryptedTx("c"))
	require.Equal(t, types.ProposalAccept, v.Status)
}

func TestDecryptedEmptyPlaintext(t *testing.T) {
	n := cloaktest.NewNetwork(t, 100)
	payer := cloaktest.Payer(0)
	n.Queue(n.Wrapper(payer, 1, ""), n.Wrapper(payer, 1, "b"))

	v := process(t, n, n.DigestTx(0), n.DecryptedTx(""), n.DecryptedTx("b"))
	require.Equal(t, []proposal.ErrorCode{proposal.Ok, proposal.Ok, proposal.Ok}, codes(v))
	require.Equal(t, types.ProposalAccept, v.Status)
}

func TestExtraDecryptedTxs(t *testing.T) {
	n := cloaktest.NewNetwork(t, 100)
	a := n.Wrapper(cloaktest.Payer(0), 1, "a")
	n.Queue(a)

	v := process(t, n, n.DigestTx(0), n.DecryptedTx("a"), n.DecryptedTx("a"), n.DecryptedTx("b"))
	require.Equal(t, []proposal.ErrorCode{
		proposal.Ok, proposal.Ok, proposal.ExtraTxs, proposal.ExtraTxs,
	}, codes(v))
	require.Equal(t, "Received more decrypted txs than expected", v.TxResults[2].Info)
	require.Equal(t, types.ProposalReject, v.Status)
}

func TestUndecryptableClaims(t *testing.T) {
	n := cloaktest.NewNetwork(t, 100)
	payer := cloaktest.Payer(0)
	good := n.Wrapper(payer, 1, "decryptable")

	// Payload encrypted to a key other than the block key.
	other := encryption.DeriveKey([]byte("some other key"))
	bad, err := transaction.NewWrapper(transaction.WrapperParams{
		Fee: transaction.Fee{Amount: 1, Token: cloaktest.FeeToken},
	}, []byte("garbled"), other.PublicKey(), payer)
	require.NoError(t, err)

	n.Queue(good, bad)
	v := process(t, n, n.DigestTx(0), n.UndecryptableTx(good), n.UndecryptableTx(bad))
	require.Equal(t, []proposal.ErrorCode{proposal.Ok, proposal.InvalidTx, proposal.Ok}, codes(v))
	require.Equal(t, "The encrypted payload of tx was incorrectly marked as un-decryptable", v.TxResults[1].Info)
	require.Equal(t, types.ProposalAccept, v.Status)
}

func TestUndecryptableWithoutKey(t *testing.T) {
	n := cloaktest.NewNetwork(t, 100)
	good := n.Wrapper(cloaktest.Payer(0), 1, "decryptable")
	n.Queue(good)

	p, err := proposal.New(proposal.Config{Logger: zaptest.NewLogger(t)})
	require.NoError(t, err)
	v, err := p.ProcessProposal(context.Background(), n.Snapshot(), n.Proposal(n.DigestTx(0), n.UndecryptableTx(good)))
	require.NoError(t, err)
	require.Equal(t, []proposal.ErrorCode{proposal.Ok, proposal.Ok}, codes(v))
}

func TestRawTxRejected(t *testing.T) {
	n := cloaktest.NewNetwork(t, 100)
	p := newProcessor(t, n)
	snap := n.Snapshot()
	rapid.Check(t, func(rt *rapid.T) {
		data := rapid.SliceOfN(rapid.Byte(), 1, 128).Draw(rt, "data").([]byte)
		raw := n.Encode(transaction.Raw([]byte("code"), data))
		v, err := p.ProcessProposal(context.Background(), snap, n.Proposal(n.DigestTx(0), raw))
		if err != nil {
			rt.Fatal(err)
		}
		if proposal.ErrorCode(v.TxResults[1].Code) != proposal.InvalidTx {
			rt.Fatalf("raw tx got %s", proposal.ErrorCode(v.TxResults[1].Code))
		}
		if v.TxResults[1].Info != "Transaction rejected: Non-encrypted transactions are not supported" {
			rt.Fatalf("unexpected info %q", v.TxResults[1].Info)
		}
	})
}

func TestArbitraryBytesNeverCrash(t *testing.T) {
	n := cloaktest.NewNetwork(t, 100)
	p := newProcessor(t, n)
	snap := n.Snapshot()
	rapid.Check(t, func(rt *rapid.T) {
		b := rapid.SliceOf(rapid.Byte()).Draw(rt, "tx").([]byte)
		res, err := p.ProcessTxs(context.Background(), snap, []types.Tx{b})
		if err != nil {
			rt.Fatal(err)
		}
		if len(res) != 1 {
			rt.Fatalf("expected 1 result, got %d", len(res))
		}
	})
}

func TestMalformedTx(t *testing.T) {
	n := cloaktest.NewNetwork(t, 100)
	v := process(t, n, n.DigestTx(0), types.Tx{})
	require.Equal(t, []proposal.ErrorCode{proposal.Ok, proposal.InvalidTx}, codes(v))
	require.Equal(t, "The submitted transaction was not deserializable", v.TxResults[1].Info)
	require.Equal(t, types.ProposalAccept, v.Status)
}

func TestUnsupportedProtocolTx(t *testing.T) {
	n := cloaktest.NewNetwork(t, 100)
	sp, err := transaction.SignProtocol(transaction.ProtocolTx{
		Signer: n.Keys[0].PublicKey(),
		Kind:   transaction.ProtocolValidatorSetUpdate,
		Data:   []byte("update"),
	}, n.Keys[0])
	require.NoError(t, err)

	v := process(t, n, n.DigestTx(0), n.Encode(transaction.Envelope{Protocol: sp}))
	require.Equal(t, []proposal.ErrorCode{proposal.Ok, proposal.InvalidTx}, codes(v))
	require.Equal(t, "Unsupported protocol transaction type", v.TxResults[1].Info)
}

func TestRejectedProposalReportsEveryResult(t *testing.T) {
	n := cloaktest.NewNetwork(t, 100)
	payer := cloaktest.Payer(0)
	n.Fund(payer, 10)
	a := n.Wrapper(payer, 1, "a")
	n.Queue(a)

	v := process(t, n,
		n.WrapperTx(payer, 5, "w"),
		n.DecryptedTx("not queued"),
		n.Encode(transaction.Raw([]byte("c"), []byte("d"))),
	)
	require.Equal(t, types.ProposalReject, v.Status)
	require.Equal(t, []proposal.ErrorCode{proposal.Ok, proposal.InvalidOrder, proposal.InvalidTx}, codes(v))
}

func TestIdempotent(t *testing.T) {
	n := cloaktest.NewNetwork(t, 50, 30, 20)
	payer := cloaktest.Payer(0)
	n.Fund(payer, 10)
	a := n.Wrapper(payer, 1, "a")
	n.Queue(a)
	req := n.Proposal(n.DigestTx(0, 1), n.DecryptedTx("a"), n.WrapperTx(payer, 20, "w"))

	p := newProcessor(t, n)
	first, err := p.ProcessProposal(context.Background(), n.Snapshot(), req)
	require.NoError(t, err)
	second, err := p.ProcessProposal(context.Background(), n.Snapshot(), req)
	require.NoError(t, err)
	fresh, err := newProcessor(t, n).ProcessProposal(context.Background(), n.Snapshot(), req)
	require.NoError(t, err)

	require.Equal(t, first, second)
	require.Equal(t, first, fresh)
	require.Equal(t, types.ProposalAccept, first.Status)
}

func TestProcessTxsIgnoresDigestCount(t *testing.T) {
	n := cloaktest.NewNetwork(t, 100)
	payer := cloaktest.Payer(0)
	n.Fund(payer, 10)

	res, err := newProcessor(t, n).ProcessTxs(context.Background(), n.Snapshot(), []types.Tx{
		n.WrapperTx(payer, 1, "w"),
	})
	require.NoError(t, err)
	require.Len(t, res, 1)
	require.True(t, res[0].OK())
}

func TestCancelledContext(t *testing.T) {
	n := cloaktest.NewNetwork(t, 100)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := newProcessor(t, n).ProcessProposal(ctx, n.Snapshot(), n.Proposal(n.DigestTx(0)))
	require.ErrorIs(t, err, context.Canceled)
}

type failingState struct {
	proposal.State
	err error
}

func (f failingState) Balance(types.Address, types.Address) (uint64, error) { return 0, f.err }

func TestStateErrorAborts(t *testing.T) {
	n := cloaktest.NewNetwork(t, 100)
	payer := cloaktest.Payer(0)
	boom := errors.New("disk on fire")

	st := failingState{State: n.Snapshot(), err: boom}
	_, err := newProcessor(t, n).ProcessProposal(context.Background(), st, n.Proposal(n.WrapperTx(payer, 1, "w")))
	require.ErrorIs(t, err, boom)
}

type inflatedPower struct {
	proposal.State
}

func (inflatedPower) TotalVotingPower(uint64) (uint64, error) { return 10, nil }

func TestInconsistentPowerHalts(t *testing.T) {
	n := cloaktest.NewNetwork(t, 100)
	_, err := newProcessor(t, n).ProcessProposal(context.Background(), inflatedPower{n.Snapshot()}, n.Proposal(n.DigestTx(0)))
	h, ok := cloak.IsHalt(err)
	require.True(t, ok, "expected halt error, got %v", err)
	require.Equal(t, uint64(n.LastHeight), h.Height)
}

func TestMetrics(t *testing.T) {
	n := cloaktest.NewNetwork(t, 100)
	reg := prometheus.NewRegistry()
	p, err := proposal.New(proposal.Config{Logger: zaptest.NewLogger(t), Registerer: reg})
	require.NoError(t, err)

	_, err = p.ProcessProposal(context.Background(), n.Snapshot(), n.Proposal(n.DigestTx(0)))
	require.NoError(t, err)
	_, err = p.ProcessProposal(context.Background(), n.Snapshot(), n.Proposal(n.DigestTx(0), n.DigestTx(0)))
	require.NoError(t, err)

	count, err := testutil.GatherAndCount(reg, "cloak_proposals_total")
	require.NoError(t, err)
	require.Equal(t, 2, count)
	count, err = testutil.GatherAndCount(reg, "cloak_vote_extension_digests_total")
	require.NoError(t, err)
	require.Equal(t, 1, count)

	_, err = proposal.New(proposal.Config{Registerer: reg})
	require.Error(t, err)
}

func TestDigestDuplicateSigner(t *testing.T) {
	n := cloaktest.NewNetwork(t, 40, 30, 30)
	ext := n.Extension(0, n.LastHeight)
	v := process(t, n, n.DigestOf(ext, ext, n.Extension(1, n.LastHeight)))
	require.Equal(t, []proposal.ErrorCode{proposal.InvalidVoteExtension}, codes(v))
	require.Equal(t, types.ProposalReject, v.Status)
}
