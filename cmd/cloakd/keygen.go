package main

import (
	"crypto/ed25519"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"

	"github.com/blockberries/cloak/encryption"
	"github.com/blockberries/cloak/transaction"
	"github.com/spf13/cobra"
)

const (
	protocolKeyFile   = "protocol_key.hex"
	decryptionKeyFile = "decryption_key.hex"
)

func keygenCommand() *cobra.Command {
	c := &cobra.Command{
		Use:   "keygen",
		Short: "Generates a validator protocol key and a block decryption key",
		RunE:  keygenFunc,
	}
	c.Flags().String(OutDirKey, ".", "Directory the private keys are written to")
	return c
}

func keygenFunc(c *cobra.Command, _ []string) error {
	dir, err := requiredString(c.Flags(), OutDirKey)
	if err != nil {
		return err
	}
	_, priv, err := ed25519.GenerateKey(nil)
	if err != nil {
		return err
	}
	protocol := transaction.NewKeypair(priv)
	dec, err := encryption.GenerateKey()
	if err != nil {
		return err
	}

	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}
	files := map[string][]byte{
		protocolKeyFile:   priv.Seed(),
		decryptionKeyFile: dec.Bytes(),
	}
	for name, key := range files {
		path := filepath.Join(dir, name)
		if fileExists(path) {
			return fmt.Errorf("%s already exists", path)
		}
		if err := os.WriteFile(path, []byte(hex.EncodeToString(key)+"\n"), 0o600); err != nil {
			return err
		}
	}

	pub := protocol.PublicKey()
	out := c.OutOrStdout()
	fmt.Fprintf(out, "protocol_key = %q\n", hex.EncodeToString(pub.Data))
	fmt.Fprintf(out, "validator_address = %q\n", pub.ValidatorAddress())
	fmt.Fprintf(out, "encryption_key = %q\n", hex.EncodeToString(dec.PublicKey()))
	return nil
}
