package local_test

import (
	"context"
	"testing"

	"github.com/blockberries/cloak/local"
	"github.com/blockberries/cloak/proposal"
	"github.com/blockberries/cloak/shell"
	cloaktest "github.com/blockberries/cloak/testing"
	"github.com/blockberries/cloak/types"
)

func newConnection(t *testing.T, n *cloaktest.Network) *local.Connection {
	t.Helper()
	proc, err := proposal.New(proposal.Config{Decrypter: n.EncryptionKey})
	if err != nil {
		t.Fatalf("processor: %v", err)
	}
	app, err := shell.New(shell.Config{Store: n.Store, Processor: proc})
	if err != nil {
		t.Fatalf("shell: %v", err)
	}
	return local.NewConnection(app)
}

func TestLocalConnection_FullCycle(t *testing.T) {
	n := cloaktest.NewNetwork(t, 70, 30)
	conn := newConnection(t, n)
	defer conn.Close()

	// Handshake.
	_, err := conn.Handshake(context.Background(), types.HandshakeRequest{ChainID: "test"})
	if err != nil {
		t.Fatalf("handshake failed: %v", err)
	}

	if !conn.Capabilities().Has(types.CapTxScreening) {
		t.Errorf("expected TxScreening, got %s", conn.Capabilities())
	}
	if conn.AsTxScreener() == nil {
		t.Error("expected non-nil TxScreener")
	}

	// Decrypt the queued wrapper in order.
	payer := cloaktest.Payer(0)
	w := n.Wrapper(payer, 5, "inner payload")
	n.Queue(w)

	prop := n.Proposal(n.DigestTx(0), n.DecryptedTx("inner payload"))
	verdict, err := conn.ProcessProposal(context.Background(), prop)
	if err != nil {
		t.Fatalf("process proposal failed: %v", err)
	}
	if !verdict.Accepted() {
		t.Fatalf("expected accept, got %s: %+v", verdict.Status, verdict.TxResults)
	}

	if _, err := conn.RevertProposal(context.Background(), types.RevertRequest{Height: prop.Height}); err != nil {
		t.Fatalf("revert failed: %v", err)
	}

	// A second decrypted tx has no queued wrapper left.
	verdict, err = conn.ProcessProposal(context.Background(),
		n.Proposal(n.DigestTx(0), n.DecryptedTx("inner payload"), n.DecryptedTx("extra")))
	if err != nil {
		t.Fatalf("process proposal failed: %v", err)
	}
	if verdict.Accepted() {
		t.Fatal("expected reject")
	}
	if got := verdict.TxResults[2].Code; got != uint32(proposal.ExtraTxs) {
		t.Errorf("expected ExtraTxs, got %d", got)
	}
}

func TestLocalConnection_MockWithoutScreening(t *testing.T) {
	conn := local.NewConnection(&cloaktest.MockApp{})
	if _, err := conn.Handshake(context.Background(), types.HandshakeRequest{}); err != nil {
		t.Fatalf("handshake failed: %v", err)
	}
	if conn.Capabilities() != 0 {
		t.Errorf("expected no capabilities, got %s", conn.Capabilities())
	}
	if conn.AsTxScreener() != nil {
		t.Error("expected nil TxScreener")
	}
}

func TestLocalConnection_ProcessTxsConcurrent(t *testing.T) {
	n := cloaktest.NewNetwork(t, 70, 30)
	conn := newConnection(t, n)

	if _, err := conn.Handshake(context.Background(), types.HandshakeRequest{}); err != nil {
		t.Fatalf("handshake failed: %v", err)
	}

	payer := cloaktest.Payer(0)
	n.Fund(payer, 1_000)
	tx := n.WrapperTx(payer, 1, "screened")

	screener := conn.AsTxScreener()
	done := make(chan struct{})
	for i := 0; i < 20; i++ {
		go func() {
			defer func() { done <- struct{}{} }()
			results, err := screener.ProcessTxs(context.Background(), []types.Tx{tx})
			if err != nil {
				t.Errorf("ProcessTxs error: %v", err)
				return
			}
			if !results[0].OK() {
				t.Errorf("expected accepted, got %+v", results[0])
			}
		}()
	}
	for i := 0; i < 20; i++ {
		<-done
	}
}
