package server

import (
	"context"
	"errors"
	"testing"

	"github.com/blockberries/cloak"
	"github.com/blockberries/cloak/types"
	"go.uber.org/zap/zaptest"
)

// testApp is a minimal mock that implements all cloak interfaces
// to avoid an import cycle with cloak/testing.
type testApp struct {
	caps           types.Capabilities
	handshakeCalls int
	verifyCalls    int
	handshakeErr   error
}

var (
	_ cloak.Lifecycle  = (*testApp)(nil)
	_ cloak.TxScreener = (*testApp)(nil)
)

func (a *testApp) Handshake(_ context.Context, _ types.HandshakeRequest) (types.HandshakeResponse, error) {
	a.handshakeCalls++
	if a.handshakeErr != nil {
		return types.HandshakeResponse{}, a.handshakeErr
	}
	return types.HandshakeResponse{Capabilities: a.caps}, nil
}

func (a *testApp) VerifyHeader(_ context.Context, _ types.HeaderRequest) (types.HeaderVerdict, error) {
	return types.HeaderVerdict{}, nil
}

func (a *testApp) ProcessProposal(_ context.Context, prop types.ReceivedProposal) (types.ProposalVerdict, error) {
	a.verifyCalls++
	results := make([]types.TxResult, len(prop.Txs))
	return types.ProposalVerdict{Status: types.ProposalAccept, TxResults: results}, nil
}

func (a *testApp) RevertProposal(_ context.Context, _ types.RevertRequest) (types.RevertResult, error) {
	return types.RevertResult{}, nil
}

func (a *testApp) ProcessTxs(_ context.Context, txs []types.Tx) ([]types.TxResult, error) {
	return make([]types.TxResult, len(txs)), nil
}

// lifecycleOnly implements only the required interface.
type lifecycleOnly struct {
	caps types.Capabilities
}

func (a lifecycleOnly) Handshake(context.Context, types.HandshakeRequest) (types.HandshakeResponse, error) {
	return types.HandshakeResponse{Capabilities: a.caps}, nil
}

func (lifecycleOnly) VerifyHeader(context.Context, types.HeaderRequest) (types.HeaderVerdict, error) {
	return types.HeaderVerdict{}, nil
}

func (lifecycleOnly) ProcessProposal(context.Context, types.ReceivedProposal) (types.ProposalVerdict, error) {
	return types.ProposalVerdict{Status: types.ProposalAccept}, nil
}

func (lifecycleOnly) RevertProposal(context.Context, types.RevertRequest) (types.RevertResult, error) {
	return types.RevertResult{}, nil
}

// --- Tests ---

func handshake(t *testing.T, srv *Server) types.HandshakeResponse {
	t.Helper()
	resp, err := srv.Handshake(context.Background(), types.HandshakeRequest{ChainID: "test"})
	if err != nil {
		t.Fatalf("handshake failed: %v", err)
	}
	return resp
}

func TestServer_Handshake(t *testing.T) {
	app := &testApp{}
	srv := New(app, WithLogger(zaptest.NewLogger(t)))

	resp := handshake(t, srv)
	if resp.Capabilities != 0 {
		t.Errorf("expected no capabilities, got %s", resp.Capabilities)
	}
	if app.handshakeCalls != 1 {
		t.Errorf("expected 1 handshake call, got %d", app.handshakeCalls)
	}
	if srv.State() != "Ready" {
		t.Errorf("expected Ready, got %s", srv.State())
	}
}

func TestServer_HandshakeFailureAllowsRetry(t *testing.T) {
	app := &testApp{handshakeErr: errors.New("store unavailable")}
	srv := New(app)

	if _, err := srv.Handshake(context.Background(), types.HandshakeRequest{}); err == nil {
		t.Fatal("expected handshake error")
	}
	app.handshakeErr = nil
	handshake(t, srv)
	if app.handshakeCalls != 2 {
		t.Errorf("expected 2 handshake calls, got %d", app.handshakeCalls)
	}
}

func TestServer_UndeclarableCapability(t *testing.T) {
	srv := New(lifecycleOnly{caps: types.CapTxScreening})
	if _, err := srv.Handshake(context.Background(), types.HandshakeRequest{}); err == nil {
		t.Fatal("expected error for declared but unimplemented TxScreener")
	}
	if srv.State() != "Init" {
		t.Errorf("expected Init after failed handshake, got %s", srv.State())
	}
}

func TestServer_ProcessProposal(t *testing.T) {
	app := &testApp{}
	srv := New(app)
	handshake(t, srv)

	verdict, err := srv.ProcessProposal(context.Background(), types.ReceivedProposal{
		Height: 1,
		Txs:    []types.Tx{{0x01}, {0x02}},
	})
	if err != nil {
		t.Fatalf("process proposal failed: %v", err)
	}
	if len(verdict.TxResults) != 2 {
		t.Errorf("expected 2 tx results, got %d", len(verdict.TxResults))
	}
	if !srv.guard.IsReady() {
		t.Error("expected Ready after ProcessProposal")
	}

	if _, err := srv.RevertProposal(context.Background(), types.RevertRequest{Height: 1}); err != nil {
		t.Fatalf("revert failed: %v", err)
	}
	if _, err := srv.VerifyHeader(context.Background(), types.HeaderRequest{Height: 2}); err != nil {
		t.Fatalf("verify header failed: %v", err)
	}
}

func TestServer_ProcessProposalBeforeHandshake(t *testing.T) {
	srv := New(&testApp{})

	defer func() {
		if r := recover(); r == nil {
			t.Fatal("expected panic for ProcessProposal before handshake")
		}
	}()

	srv.ProcessProposal(context.Background(), types.ReceivedProposal{})
}

func TestServer_PanicReleasesGuard(t *testing.T) {
	srv := New(panicApp{})
	handshake(t, srv)

	func() {
		defer func() {
			r := recover()
			if _, ok := r.(*cloak.HaltError); !ok {
				t.Fatalf("expected HaltError panic, got %v", r)
			}
		}()
		srv.ProcessProposal(context.Background(), types.ReceivedProposal{Height: 3})
	}()

	if !srv.guard.IsReady() {
		t.Fatalf("expected Ready after panic, got %s", srv.State())
	}
}

type panicApp struct{ lifecycleOnly }

func (panicApp) ProcessProposal(_ context.Context, p types.ReceivedProposal) (types.ProposalVerdict, error) {
	panic(cloak.NewHaltError(p.Height, "unknown result code"))
}

func TestServer_ProcessTxsConcurrent(t *testing.T) {
	app := &testApp{caps: types.CapTxScreening}
	srv := New(app)
	handshake(t, srv)

	done := make(chan struct{})
	for i := 0; i < 10; i++ {
		go func() {
			defer func() { done <- struct{}{} }()
			res, err := srv.ProcessTxs(context.Background(), []types.Tx{{0x01}})
			if err != nil {
				t.Errorf("ProcessTxs error: %v", err)
			}
			if len(res) != 1 {
				t.Errorf("expected 1 result, got %d", len(res))
			}
		}()
	}
	for i := 0; i < 10; i++ {
		<-done
	}
}

func TestServer_CapabilityGating(t *testing.T) {
	srv := New(&testApp{})
	handshake(t, srv)

	if srv.AsTxScreener() != nil {
		t.Error("expected nil TxScreener when not declared")
	}

	srv = New(lifecycleOnly{})
	handshake(t, srv)
	if _, err := srv.ProcessTxs(context.Background(), nil); err == nil {
		t.Error("expected error from ProcessTxs when not implemented")
	}
}

func TestServer_CapabilityFullAccess(t *testing.T) {
	srv := New(&testApp{caps: types.CapTxScreening})
	handshake(t, srv)

	if srv.AsTxScreener() == nil {
		t.Error("expected non-nil TxScreener")
	}
	if !srv.Capabilities().Has(types.CapTxScreening) {
		t.Error("expected CapTxScreening")
	}
}
