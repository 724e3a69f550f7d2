package main

import (
	"errors"
	"os"

	"github.com/blockberries/cloak/config"
	"github.com/spf13/pflag"
)

const (
	ConfigKey   = "config"
	GenesisKey  = "genesis"
	ListenKey   = "listen"
	MetricsKey  = "metrics"
	LogLevelKey = "log-level"
	DataDirKey  = "data-dir"
	OutDirKey   = "out-dir"
)

func addConfigFlags(flags *pflag.FlagSet) {
	flags.String(ConfigKey, "", "Path to the TOML configuration file (defaults when empty)")
	flags.String(DataDirKey, "", "Overrides storage.path")
	flags.String(LogLevelKey, "", "Overrides log.level")
}

// loadConfig reads the configuration named by the flags and applies
// flag overrides on top of it.
func loadConfig(flags *pflag.FlagSet) (*config.Config, error) {
	path, err := flags.GetString(ConfigKey)
	if err != nil {
		return nil, err
	}
	cfg := config.Default()
	if path != "" {
		if cfg, err = config.Load(path); err != nil {
			return nil, err
		}
	}

	overrides := []struct {
		key string
		dst *string
	}{
		{DataDirKey, &cfg.Storage.Path},
		{LogLevelKey, &cfg.Log.Level},
		{ListenKey, &cfg.Server.ListenAddress},
		{MetricsKey, &cfg.Server.MetricsAddress},
	}
	for _, o := range overrides {
		if flags.Lookup(o.key) == nil || !flags.Changed(o.key) {
			continue
		}
		if *o.dst, err = flags.GetString(o.key); err != nil {
			return nil, err
		}
	}
	return cfg, cfg.Validate()
}

func requiredString(flags *pflag.FlagSet, key string) (string, error) {
	v, err := flags.GetString(key)
	if err != nil {
		return "", err
	}
	if v == "" {
		return "", errors.New("--" + key + " is required")
	}
	return v, nil
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
