package cloaktest

import (
	"context"
	"sync"
	"testing"

	"github.com/blockberries/cloak"
	"github.com/blockberries/cloak/types"
)

// RunComplianceSuite runs a standard compliance test suite against
// a cloak application to verify correct lifecycle and verification
// behavior.
//
// The factory receives a freshly seeded Network (validators holding
// 70 and 30 of the voting power) and returns an application reading
// that network's store.
func RunComplianceSuite(t *testing.T, factory func(*Network) cloak.Lifecycle) {
	t.Helper()

	setup := func(t *testing.T) (*Network, *Harness) {
		n := NewNetwork(t, 70, 30)
		return n, NewHarness(t, factory(n))
	}

	t.Run("handshake_reports_last_height", func(t *testing.T) {
		_, h := setup(t)
		resp := h.Handshake()
		if resp.LastBlock == nil || resp.LastBlock.Height != DefaultLastHeight {
			t.Errorf("expected last block at height %d, got %+v", DefaultLastHeight, resp.LastBlock)
		}
	})

	t.Run("accepts_backed_digest", func(t *testing.T) {
		n, h := setup(t)
		h.Handshake()
		h.MustAccept(n.Proposal(n.DigestTx(0)))
	})

	t.Run("rejects_missing_digest", func(t *testing.T) {
		n, h := setup(t)
		h.Handshake()
		h.MustReject(n.Proposal())
	})

	t.Run("rejects_duplicate_digest", func(t *testing.T) {
		n, h := setup(t)
		h.Handshake()
		d := n.DigestTx(0)
		h.MustReject(n.Proposal(d, d))
	})

	t.Run("rejects_insufficient_backing", func(t *testing.T) {
		n, h := setup(t)
		h.Handshake()
		v := h.MustReject(n.Proposal(n.DigestTx(1)))
		if v.TxResults[0].OK() {
			t.Error("digest backed by 30% of the stake should fail")
		}
	})

	t.Run("verify_revert_cycle", func(t *testing.T) {
		n, h := setup(t)
		h.Handshake()
		prop := n.Proposal(n.DigestTx(0, 1))
		for i := 0; i < 3; i++ {
			h.MustAccept(prop)
			h.Revert(prop)
		}
	})

	t.Run("deterministic_verdicts", func(t *testing.T) {
		n1, h1 := setup(t)
		h1.Handshake()
		n2, h2 := setup(t)
		h2.Handshake()

		payer := Payer(0)
		n1.Fund(payer, 100)
		n2.Fund(payer, 100)

		p1 := n1.Proposal(n1.DigestTx(0), n1.WrapperTx(payer, 10, "transfer"), types.Tx{0xde, 0xad})
		p2 := n2.Proposal(n2.DigestTx(0), n2.WrapperTx(payer, 10, "transfer"), types.Tx{0xde, 0xad})
		v1 := h1.Process(p1)
		v2 := h2.Process(p2)

		if v1.Status != v2.Status {
			t.Fatalf("non-deterministic status: %s != %s", v1.Status, v2.Status)
		}
		for i := range v1.TxResults {
			if v1.TxResults[i].Code != v2.TxResults[i].Code {
				t.Errorf("tx %d: non-deterministic code: %d != %d",
					i, v1.TxResults[i].Code, v2.TxResults[i].Code)
			}
		}
	})

	t.Run("concurrent_verify_header", func(t *testing.T) {
		n, h := setup(t)
		h.Handshake()

		var wg sync.WaitGroup
		for i := 0; i < 10; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				_, err := h.Server().VerifyHeader(context.Background(), types.HeaderRequest{
					Height:   n.LastHeight + uint64(i),
					Proposer: n.Validators[0].Address,
				})
				if err != nil {
					t.Errorf("concurrent VerifyHeader failed: %v", err)
				}
			}(i)
		}
		wg.Wait()
	})

	t.Run("concurrent_process_txs", func(t *testing.T) {
		n, h := setup(t)
		resp := h.Handshake()
		if !resp.Capabilities.Has(types.CapTxScreening) {
			t.Skip("application does not screen transactions")
		}
		payer := Payer(0)
		n.Fund(payer, 100)
		tx := n.WrapperTx(payer, 10, "transfer")

		var wg sync.WaitGroup
		for i := 0; i < 10; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				results, err := h.Server().ProcessTxs(context.Background(), []types.Tx{tx})
				if err != nil {
					t.Errorf("concurrent ProcessTxs failed: %v", err)
					return
				}
				if len(results) != 1 || !results[0].OK() {
					t.Errorf("expected funded wrapper accepted, got %+v", results)
				}
			}()
		}
		wg.Wait()
	})
}
