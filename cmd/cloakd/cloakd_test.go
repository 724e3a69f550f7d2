package main

import (
	"bytes"
	"context"
	"encoding/hex"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/blockberries/cloak/config"
	"github.com/blockberries/cloak/encryption"
	"github.com/blockberries/cloak/state"
	"github.com/blockberries/cloak/transaction"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func run(t *testing.T, args ...string) string {
	t.Helper()
	var out bytes.Buffer
	root := rootCommand()
	root.SetOut(&out)
	root.SetArgs(args)
	require.NoError(t, root.Execute())
	return out.String()
}

func TestKeygen(t *testing.T) {
	dir := t.TempDir()
	out := run(t, "keygen", "--out-dir", dir)
	require.Contains(t, out, "protocol_key = ")
	require.Contains(t, out, "encryption_key = ")

	dec, err := loadDecrypter(filepath.Join(dir, decryptionKeyFile))
	require.NoError(t, err)
	key, ok := dec.(*encryption.PrivateKey)
	require.True(t, ok)
	require.Contains(t, out, hex.EncodeToString(key.PublicKey()))

	// Existing keys are never overwritten.
	root := rootCommand()
	root.SetOut(&bytes.Buffer{})
	root.SetArgs([]string{"keygen", "--out-dir", dir})
	require.Error(t, root.Execute())
}

func TestLoadDecrypterWithoutKey(t *testing.T) {
	dec, err := loadDecrypter("")
	require.NoError(t, err)
	require.IsType(t, encryption.NoKey{}, dec)

	bad := filepath.Join(t.TempDir(), "key.hex")
	require.NoError(t, os.WriteFile(bad, []byte("not hex"), 0o600))
	_, err = loadDecrypter(bad)
	require.Error(t, err)
}

func TestInit(t *testing.T) {
	val := transaction.DeriveKeypair([]byte("validator"))
	genesis := filepath.Join(t.TempDir(), "genesis.toml")
	require.NoError(t, os.WriteFile(genesis, []byte(strings.Join([]string{
		`chain_id = "cloak-test"`,
		`height = 3`,
		`[[validators]]`,
		`protocol_key = "` + hex.EncodeToString(val.PublicKey().Data) + `"`,
		`power = 10`,
	}, "\n")), 0o600))

	data := filepath.Join(t.TempDir(), "data")
	out := run(t, "init", "--genesis", genesis, "--data-dir", data)
	require.Contains(t, out, "cloak-test")

	store, err := state.OpenBadger(state.BadgerOptions{Path: data})
	require.NoError(t, err)
	defer store.Close()

	snap, err := store.Snapshot()
	require.NoError(t, err)
	defer snap.Discard()

	height, err := snap.LastHeight()
	require.NoError(t, err)
	require.Equal(t, uint64(3), height)

	total, err := snap.TotalVotingPower(0)
	require.NoError(t, err)
	require.Equal(t, uint64(10), total)
}

func TestInitRequiresGenesis(t *testing.T) {
	root := rootCommand()
	root.SetOut(&bytes.Buffer{})
	root.SetArgs([]string{"init", "--data-dir", t.TempDir()})
	require.Error(t, root.Execute())
}

func TestServeStopsOnCancel(t *testing.T) {
	cfg := config.Default()
	cfg.Storage.Backend = config.BackendMemory
	cfg.Server.ListenAddress = "127.0.0.1:0"
	cfg.Server.MetricsAddress = "127.0.0.1:0"
	require.NoError(t, cfg.Validate())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- serve(ctx, serveCommand(), cfg, zaptest.NewLogger(t)) }()

	time.Sleep(100 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("serve did not stop")
	}
}
