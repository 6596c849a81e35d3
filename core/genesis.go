package core

import (
	"context"
	"fmt"

	"github.com/gagliardetto/solana-go"

	"nftmarket/core/state"
	"nftmarket/core/types"
	"nftmarket/native/marketplace"
)

// GenesisAccount funds an address with lamports.
type GenesisAccount struct {
	Address  solana.PublicKey
	Lamports uint64
}

// GenesisAsset mints a unique asset to its first owner.
type GenesisAsset struct {
	Owner solana.PublicKey
	Asset solana.PublicKey
}

// GenesisMarketplace creates a marketplace during bootstrap. The admin must
// be funded by an earlier GenesisAccount entry to pay the record reserve.
type GenesisMarketplace struct {
	Admin  solana.PublicKey
	Name   string
	FeeBps uint16
}

// Genesis is the initial ledger allocation.
type Genesis struct {
	Accounts     []GenesisAccount
	Assets       []GenesisAsset
	Marketplaces []GenesisMarketplace
}

// Empty reports whether the allocation has nothing to apply.
func (g *Genesis) Empty() bool {
	return g == nil || (len(g.Accounts) == 0 && len(g.Assets) == 0 && len(g.Marketplaces) == 0)
}

// ApplyGenesis writes the allocation as the first instruction. It is a no-op
// returning a nil receipt once the ledger has committed anything.
func (l *Ledger) ApplyGenesis(ctx context.Context, g *Genesis) (*types.Receipt, error) {
	if g.Empty() {
		return nil, nil
	}
	if height, _ := l.Head(); height > 0 {
		l.logger.Info("genesis skipped", "height", height)
		return nil, nil
	}
	return l.execute(ctx, InstructionGenesis, solana.PublicKey{}, func(engine *marketplace.Engine, st *state.Manager) error {
		for _, acc := range g.Accounts {
			if err := st.Credit(acc.Address, acc.Lamports); err != nil {
				return fmt.Errorf("genesis: fund %s: %w", acc.Address, err)
			}
		}
		for _, asset := range g.Assets {
			if err := st.MintAsset(asset.Owner, asset.Asset); err != nil {
				return fmt.Errorf("genesis: mint %s: %w", asset.Asset, err)
			}
		}
		for _, m := range g.Marketplaces {
			if _, _, err := engine.Initialize(m.Admin, m.Name, m.FeeBps); err != nil {
				return fmt.Errorf("genesis: marketplace %q: %w", m.Name, err)
			}
		}
		return nil
	})
}
