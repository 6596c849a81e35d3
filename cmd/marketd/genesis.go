package main

import (
	"fmt"
	"strings"

	"github.com/gagliardetto/solana-go"

	"nftmarket/config"
	"nftmarket/core"
)

// genesisFromConfig converts the base58 allocation in the config file.
func genesisFromConfig(cfg config.Genesis) (*core.Genesis, error) {
	g := &core.Genesis{}
	for i, acc := range cfg.Accounts {
		addr, err := parseKey(fmt.Sprintf("genesis.accounts[%d].Address", i), acc.Address)
		if err != nil {
			return nil, err
		}
		g.Accounts = append(g.Accounts, core.GenesisAccount{Address: addr, Lamports: acc.Lamports})
	}
	for i, asset := range cfg.Assets {
		owner, err := parseKey(fmt.Sprintf("genesis.assets[%d].Owner", i), asset.Owner)
		if err != nil {
			return nil, err
		}
		mint, err := parseKey(fmt.Sprintf("genesis.assets[%d].Asset", i), asset.Asset)
		if err != nil {
			return nil, err
		}
		g.Assets = append(g.Assets, core.GenesisAsset{Owner: owner, Asset: mint})
	}
	for i, m := range cfg.Marketplaces {
		admin, err := parseKey(fmt.Sprintf("genesis.marketplaces[%d].Admin", i), m.Admin)
		if err != nil {
			return nil, err
		}
		g.Marketplaces = append(g.Marketplaces, core.GenesisMarketplace{Admin: admin, Name: m.Name, FeeBps: m.FeeBps})
	}
	return g, nil
}

func parseKey(field, raw string) (solana.PublicKey, error) {
	key, err := solana.PublicKeyFromBase58(strings.TrimSpace(raw))
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("%s: %w", field, err)
	}
	return key, nil
}
