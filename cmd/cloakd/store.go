package main

import (
	"encoding/hex"
	"fmt"
	"os"
	"strings"

	"github.com/blockberries/cloak/config"
	"github.com/blockberries/cloak/encryption"
	"github.com/blockberries/cloak/state"
	"go.uber.org/zap"
)

func openStore(cfg *config.Config, log *zap.Logger) (state.ReadWriteStore, error) {
	switch cfg.Storage.Backend {
	case config.BackendMemory:
		return state.NewMemStore(), nil
	case config.BackendBadger:
		return state.OpenBadger(state.BadgerOptions{
			Path:      cfg.Storage.Path,
			CacheSize: cfg.Storage.CacheSize,
			Logger:    log.Named("badger"),
		})
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
	}
}

// loadDecrypter reads the hex-encoded block decryption key. Without
// a key file every decryption fails.
func loadDecrypter(path string) (encryption.Decrypter, error) {
	if path == "" {
		return encryption.NoKey{}, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read decryption key: %w", err)
	}
	b, err := hex.DecodeString(strings.TrimSpace(string(raw)))
	if err != nil {
		return nil, fmt.Errorf("decode decryption key %s: %w", path, err)
	}
	return encryption.ParsePrivateKey(b)
}
