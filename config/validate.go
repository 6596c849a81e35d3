package config

import (
	"fmt"
	"strings"

	"github.com/gagliardetto/solana-go"
)

const (
	maxNameLength = 32
	maxFeeBps     = 10_000
)

// Validate checks the loaded configuration for values the daemon cannot
// start with.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.DataDir) == "" {
		return fmt.Errorf("DataDir required")
	}
	if _, err := c.Program(); err != nil {
		return err
	}
	if c.RPC.RateLimitPerSecond < 0 || c.RPC.RateLimitBurst < 0 {
		return fmt.Errorf("rpc: rate limits must not be negative")
	}
	if c.RPC.RateLimitPerSecond > 0 && c.RPC.RateLimitBurst == 0 {
		return fmt.Errorf("rpc: RateLimitBurst required when RateLimitPerSecond is set")
	}
	if c.Indexer.Enabled && strings.TrimSpace(c.Indexer.DSN) == "" {
		return fmt.Errorf("indexer: DSN required when enabled")
	}
	for i, acc := range c.Genesis.Accounts {
		if err := validKey(acc.Address); err != nil {
			return fmt.Errorf("genesis.accounts[%d]: %w", i, err)
		}
	}
	for i, asset := range c.Genesis.Assets {
		if err := validKey(asset.Owner); err != nil {
			return fmt.Errorf("genesis.assets[%d].Owner: %w", i, err)
		}
		if err := validKey(asset.Asset); err != nil {
			return fmt.Errorf("genesis.assets[%d].Asset: %w", i, err)
		}
	}
	for i, m := range c.Genesis.Marketplaces {
		if err := validKey(m.Admin); err != nil {
			return fmt.Errorf("genesis.marketplaces[%d].Admin: %w", i, err)
		}
		if name := strings.TrimSpace(m.Name); name == "" || len(name) > maxNameLength {
			return fmt.Errorf("genesis.marketplaces[%d]: name must be 1-%d bytes", i, maxNameLength)
		}
		if m.FeeBps > maxFeeBps {
			return fmt.Errorf("genesis.marketplaces[%d]: FeeBps %d exceeds %d", i, m.FeeBps, maxFeeBps)
		}
	}
	return nil
}

// Program returns the configured program identity, or the zero key when
// the ledger default should be used.
func (c *Config) Program() (solana.PublicKey, error) {
	raw := strings.TrimSpace(c.ProgramID)
	if raw == "" {
		return solana.PublicKey{}, nil
	}
	key, err := solana.PublicKeyFromBase58(raw)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("ProgramID: %w", err)
	}
	return key, nil
}

func validKey(raw string) error {
	if _, err := solana.PublicKeyFromBase58(strings.TrimSpace(raw)); err != nil {
		return fmt.Errorf("invalid key %q: %w", raw, err)
	}
	return nil
}
