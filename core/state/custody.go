package state

import (
	"errors"
	"fmt"

	"github.com/gagliardetto/solana-go"
)

var (
	ErrCustodyExists   = errors.New("state: custody account already exists")
	ErrCustodyNotFound = errors.New("state: custody account not found")
	ErrCustodyNotEmpty = errors.New("state: custody account still holds assets")
	ErrCustodyAsset    = errors.New("state: custody account holds a different asset")
)

// Custody is an account holding units of a single asset on behalf of an
// authority. When the authority is program-derived only the matching signer
// seeds can move assets out or close it.
type Custody struct {
	Authority solana.PublicKey
	Asset     solana.PublicKey
	Amount    uint64
}

// Clone returns a copy of the custody account.
func (c *Custody) Clone() *Custody {
	if c == nil {
		return nil
	}
	clone := *c
	return &clone
}

// Custody loads the custody account at addr.
func (m *Manager) Custody(addr solana.PublicKey) (*Custody, bool, error) {
	custody := new(Custody)
	ok, err := m.getRLP(hashedKey(custodyPrefix, addr[:]), custody)
	if err != nil {
		return nil, false, fmt.Errorf("load custody %s: %w", addr, err)
	}
	if !ok {
		return nil, false, nil
	}
	return custody, true, nil
}

// OpenCustody creates an empty custody account for asset under authority;
// payer funds its reserve.
func (m *Manager) OpenCustody(addr, payer, authority, asset solana.PublicKey) error {
	if _, exists, err := m.Custody(addr); err != nil {
		return err
	} else if exists {
		return fmt.Errorf("%w: %s", ErrCustodyExists, addr)
	}
	if err := m.Transfer(payer, addr, RentExemptMinimum(CustodySize)); err != nil {
		return fmt.Errorf("fund custody %s: %w", addr, err)
	}
	return m.putRLP(hashedKey(custodyPrefix, addr[:]), &Custody{Authority: authority, Asset: asset})
}

func (m *Manager) loadCustody(addr, asset solana.PublicKey) (*Custody, error) {
	custody, ok, err := m.Custody(addr)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrCustodyNotFound, addr)
	}
	if !custody.Asset.Equals(asset) {
		return nil, fmt.Errorf("%w: %s holds %s", ErrCustodyAsset, addr, custody.Asset)
	}
	return custody, nil
}

// DepositToCustody moves units of asset from owner's direct holding into the
// custody account. The owner authorises the move.
func (m *Manager) DepositToCustody(addr, owner, asset solana.PublicKey, amount uint64) error {
	custody, err := m.loadCustody(addr, asset)
	if err != nil {
		return err
	}
	held, err := m.Holding(owner, asset)
	if err != nil {
		return err
	}
	if held < amount {
		return fmt.Errorf("%w: %s holds %d of %s", ErrInsufficientHolding, owner, held, asset)
	}
	if err := m.setHolding(owner, asset, held-amount); err != nil {
		return err
	}
	custody.Amount += amount
	return m.putRLP(hashedKey(custodyPrefix, addr[:]), custody)
}

// WithdrawFromCustody moves units of asset out of custody into to's direct
// holding, authorised by the custody authority's signer seeds.
func (m *Manager) WithdrawFromCustody(addr solana.PublicKey, signer SignerSeeds, to, asset solana.PublicKey, amount uint64) error {
	custody, err := m.loadCustody(addr, asset)
	if err != nil {
		return err
	}
	if err := m.authorize(custody.Authority, signer); err != nil {
		return err
	}
	if custody.Amount < amount {
		return fmt.Errorf("%w: custody %s holds %d of %s", ErrInsufficientHolding, addr, custody.Amount, asset)
	}
	custody.Amount -= amount
	if err := m.putRLP(hashedKey(custodyPrefix, addr[:]), custody); err != nil {
		return err
	}
	held, err := m.Holding(to, asset)
	if err != nil {
		return err
	}
	return m.setHolding(to, asset, held+amount)
}

// CloseCustody deletes an empty custody account and sends its reserve to
// beneficiary.
func (m *Manager) CloseCustody(addr solana.PublicKey, signer SignerSeeds, beneficiary solana.PublicKey) error {
	custody, ok, err := m.Custody(addr)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %s", ErrCustodyNotFound, addr)
	}
	if err := m.authorize(custody.Authority, signer); err != nil {
		return err
	}
	if custody.Amount != 0 {
		return fmt.Errorf("%w: %s holds %d", ErrCustodyNotEmpty, addr, custody.Amount)
	}
	if err := m.drain(addr, beneficiary); err != nil {
		return err
	}
	return m.trie.Delete(hashedKey(custodyPrefix, addr[:]))
}
