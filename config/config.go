// Package config loads the cloakd configuration and genesis files.
// Both are TOML.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/BurntSushi/toml"
	"go.uber.org/zap"
)

// Storage backends.
const (
	BackendBadger = "badger"
	BackendMemory = "memory"
)

// Config is the cloakd configuration.
type Config struct {
	Server       ServerConfig       `toml:"server"`
	Storage      StorageConfig      `toml:"storage"`
	Log          LogConfig          `toml:"log"`
	Verification VerificationConfig `toml:"verification"`
}

// ServerConfig controls the listeners.
type ServerConfig struct {
	ListenAddress string `toml:"listen_address"`
	// Empty disables the metrics endpoint.
	MetricsAddress string `toml:"metrics_address"`
	// Empty accepts any chain id at handshake.
	ChainID string `toml:"chain_id"`
}

// StorageConfig selects the state backend.
type StorageConfig struct {
	Backend string `toml:"backend"`
	Path    string `toml:"path"`
	// Validator-set cache entries.
	CacheSize int `toml:"cache_size"`
}

// LogConfig controls the zap logger.
type LogConfig struct {
	Level       string `toml:"level"`
	Development bool   `toml:"development"`
}

// VerificationConfig tunes proposal verification.
type VerificationConfig struct {
	// Classification workers. Zero uses GOMAXPROCS.
	Workers   int `toml:"workers"`
	CacheSize int `toml:"cache_size"`
	// Hex-encoded block decryption key. Without one, wrappers that
	// claim to be undecryptable cannot be checked.
	DecryptionKeyFile string `toml:"decryption_key_file"`
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			ListenAddress:  "127.0.0.1:26658",
			MetricsAddress: "127.0.0.1:26660",
		},
		Storage: StorageConfig{
			Backend:   BackendBadger,
			Path:      "data",
			CacheSize: 64,
		},
		Log: LogConfig{
			Level: "info",
		},
		Verification: VerificationConfig{
			CacheSize: 4096,
		},
	}
}

// Load reads path over the defaults. Unknown keys are an error.
func Load(path string) (*Config, error) {
	cfg := Default()
	md, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, fmt.Errorf("config: decode %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return nil, fmt.Errorf("config: unknown keys in %s: %s", path, strings.Join(keys, ", "))
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration for consistency.
func (c *Config) Validate() error {
	if c.Server.ListenAddress == "" {
		return errors.New("config: server.listen_address is required")
	}
	switch c.Storage.Backend {
	case BackendBadger:
		if c.Storage.Path == "" {
			return errors.New("config: storage.path is required for the badger backend")
		}
	case BackendMemory:
	default:
		return fmt.Errorf("config: unknown storage.backend %q", c.Storage.Backend)
	}
	if c.Storage.CacheSize < 0 || c.Verification.CacheSize < 0 {
		return errors.New("config: cache sizes must not be negative")
	}
	if c.Verification.Workers < 0 {
		return errors.New("config: verification.workers must not be negative")
	}
	if _, err := zap.ParseAtomicLevel(c.Log.Level); err != nil {
		return fmt.Errorf("config: log.level: %w", err)
	}
	return nil
}

// Write encodes the configuration to path.
func (c *Config) Write(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if err := toml.NewEncoder(f).Encode(c); err != nil {
		f.Close()
		return fmt.Errorf("config: encode %s: %w", path, err)
	}
	return f.Close()
}

// Build creates the logger the configuration describes.
func (l LogConfig) Build() (*zap.Logger, error) {
	level, err := zap.ParseAtomicLevel(l.Level)
	if err != nil {
		return nil, fmt.Errorf("config: log.level: %w", err)
	}
	zc := zap.NewProductionConfig()
	if l.Development {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = level
	return zc.Build()
}
