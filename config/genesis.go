package config

import (
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/BurntSushi/toml"
	"github.com/blockberries/cloak/state"
	"github.com/blockberries/cloak/types"
)

// Genesis seeds a store with the initial validator set and balances.
type Genesis struct {
	ChainID string `toml:"chain_id"`
	// Height of the genesis state. The first proposal is Height+1.
	Height     uint64             `toml:"height"`
	Epoch      uint64             `toml:"epoch"`
	Validators []GenesisValidator `toml:"validators"`
	Balances   []GenesisBalance   `toml:"balances"`
}

// GenesisValidator is a validator by hex Ed25519 protocol key.
type GenesisValidator struct {
	ProtocolKey string `toml:"protocol_key"`
	Power       uint64 `toml:"power"`
}

// GenesisBalance funds a hex-encoded owner address in a hex-encoded
// token.
type GenesisBalance struct {
	Token  string `toml:"token"`
	Owner  string `toml:"owner"`
	Amount uint64 `toml:"amount"`
}

// LoadGenesis reads and validates a genesis file.
func LoadGenesis(path string) (*Genesis, error) {
	g := new(Genesis)
	if _, err := toml.DecodeFile(path, g); err != nil {
		return nil, fmt.Errorf("genesis: decode %s: %w", path, err)
	}
	if _, err := g.validators(); err != nil {
		return nil, err
	}
	return g, nil
}

func (g *Genesis) validators() ([]types.Validator, error) {
	if len(g.Validators) == 0 {
		return nil, errors.New("genesis: no validators")
	}
	seen := make(map[types.ValidatorAddress]bool, len(g.Validators))
	out := make([]types.Validator, 0, len(g.Validators))
	for i, v := range g.Validators {
		key, err := hex.DecodeString(v.ProtocolKey)
		if err != nil || len(key) != 32 {
			return nil, fmt.Errorf("genesis: validator %d: protocol_key must be 32 hex-encoded bytes", i)
		}
		if v.Power == 0 {
			return nil, fmt.Errorf("genesis: validator %d: zero power", i)
		}
		pk := types.PublicKey{Type: types.KeyTypeEd25519, Data: key}
		addr := pk.ValidatorAddress()
		if seen[addr] {
			return nil, fmt.Errorf("genesis: validator %d: duplicate key %s", i, v.ProtocolKey)
		}
		seen[addr] = true
		out = append(out, types.Validator{Address: addr, ProtocolKey: pk, Power: v.Power})
	}
	return out, nil
}

func parseAddress(s string) (types.Address, error) {
	var a types.Address
	b, err := hex.DecodeString(s)
	if err != nil || len(b) != len(a) {
		return a, fmt.Errorf("genesis: %q is not a %d-byte hex address", s, len(a))
	}
	copy(a[:], b)
	return a, nil
}

// Apply writes the genesis state.
func (g *Genesis) Apply(w state.Writer) error {
	vals, err := g.validators()
	if err != nil {
		return err
	}
	if err := w.SetEpoch(0, g.Epoch); err != nil {
		return fmt.Errorf("genesis: %w", err)
	}
	if err := w.SetValidators(g.Epoch, vals); err != nil {
		return fmt.Errorf("genesis: %w", err)
	}
	for _, b := range g.Balances {
		token, err := parseAddress(b.Token)
		if err != nil {
			return err
		}
		owner, err := parseAddress(b.Owner)
		if err != nil {
			return err
		}
		if err := w.SetBalance(token, owner, b.Amount); err != nil {
			return fmt.Errorf("genesis: %w", err)
		}
	}
	if err := w.SetLastHeight(g.Height); err != nil {
		return fmt.Errorf("genesis: %w", err)
	}
	return nil
}
