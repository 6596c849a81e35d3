package marketplace

import (
	"fmt"

	"github.com/gagliardetto/solana-go"

	"nftmarket/core/state"
)

// Vault is the custody record holding a listed asset. Its authority is the
// listing address, for which no private key exists.
type Vault struct {
	Address   solana.PublicKey
	Authority solana.PublicKey
	Asset     solana.PublicKey
	Amount    uint64
}

func (e *Engine) vaultAddress(listingAddr, asset solana.PublicKey) (solana.PublicKey, error) {
	addr, _, err := VaultAddress(e.state.Program(), listingAddr, asset)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("marketplace: derive vault: %w", err)
	}
	return addr, nil
}

// openVault creates the vault under the listing authority and moves the
// maker's single unit into it.
func (e *Engine) openVault(listingAddr, maker, asset solana.PublicKey) (solana.PublicKey, error) {
	vault, err := e.vaultAddress(listingAddr, asset)
	if err != nil {
		return solana.PublicKey{}, err
	}
	if err := e.state.OpenCustody(vault, maker, listingAddr, asset); err != nil {
		return solana.PublicKey{}, translateStateErr(err)
	}
	if err := e.state.DepositToCustody(vault, maker, asset, 1); err != nil {
		return solana.PublicKey{}, translateStateErr(err)
	}
	return vault, nil
}

// releaseVault moves the asset to recipient and closes the vault, returning
// its reserve to beneficiary. The asset leaves before the vault closes.
func (e *Engine) releaseVault(listingAddr solana.PublicKey, signer state.SignerSeeds, asset, recipient, beneficiary solana.PublicKey) error {
	vault, err := e.vaultAddress(listingAddr, asset)
	if err != nil {
		return err
	}
	if err := e.state.WithdrawFromCustody(vault, signer, recipient, asset, 1); err != nil {
		return translateStateErr(err)
	}
	if err := e.state.CloseCustody(vault, signer, beneficiary); err != nil {
		return translateStateErr(err)
	}
	return nil
}

// Vault returns the vault of the listing for asset on marketplace.
func (e *Engine) Vault(marketplace, asset solana.PublicKey) (*Vault, bool, error) {
	if e == nil || e.state == nil {
		return nil, false, errNilState
	}
	listingAddr, _, err := ListingAddress(e.state.Program(), marketplace, asset)
	if err != nil {
		return nil, false, err
	}
	addr, err := e.vaultAddress(listingAddr, asset)
	if err != nil {
		return nil, false, err
	}
	custody, ok, err := e.state.Custody(addr)
	if err != nil || !ok {
		return nil, ok, err
	}
	return &Vault{Address: addr, Authority: custody.Authority, Asset: custody.Asset, Amount: custody.Amount}, true, nil
}
