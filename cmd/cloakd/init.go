package main

import (
	"fmt"

	"github.com/blockberries/cloak/config"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func initCommand() *cobra.Command {
	c := &cobra.Command{
		Use:   "init",
		Short: "Seeds the badger store from a genesis file",
		RunE:  initFunc,
	}
	flags := c.Flags()
	addConfigFlags(flags)
	flags.String(GenesisKey, "", "Genesis file to apply (required)")
	return c
}

func initFunc(c *cobra.Command, _ []string) error {
	flags := c.Flags()
	genesisPath, err := requiredString(flags, GenesisKey)
	if err != nil {
		return err
	}
	cfg, err := loadConfig(flags)
	if err != nil {
		return err
	}
	if cfg.Storage.Backend != config.BackendBadger {
		return fmt.Errorf("init needs the %s backend, configured %s", config.BackendBadger, cfg.Storage.Backend)
	}
	g, err := config.LoadGenesis(genesisPath)
	if err != nil {
		return err
	}
	if cfg.Server.ChainID != "" && cfg.Server.ChainID != g.ChainID {
		return fmt.Errorf("genesis chain %q does not match configured %q", g.ChainID, cfg.Server.ChainID)
	}

	store, err := openStore(cfg, zap.NewNop())
	if err != nil {
		return err
	}
	if err := g.Apply(store); err != nil {
		store.Close()
		return err
	}
	if err := store.Close(); err != nil {
		return err
	}

	fmt.Fprintf(c.OutOrStdout(), "initialized %s at height %d with %d validators\n",
		g.ChainID, g.Height, len(g.Validators))
	return nil
}
