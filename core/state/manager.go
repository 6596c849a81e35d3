package state

import (
	"errors"
	"fmt"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"
	"github.com/gagliardetto/solana-go"
	"github.com/holiman/uint256"

	"nftmarket/core/types"
	"nftmarket/storage/trie"
)

var (
	ErrInsufficientBalance = errors.New("state: insufficient lamports")
	ErrBalanceOverflow     = errors.New("state: lamport balance overflow")
	ErrInsufficientHolding = errors.New("state: insufficient asset holding")
	ErrAssetExists         = errors.New("state: asset already minted")
	ErrRecordExists        = errors.New("state: record already exists")
	ErrRecordNotFound      = errors.New("state: record not found")
)

var (
	accountPrefix = []byte("account:")
	holdingPrefix = []byte("holding:")
	supplyPrefix  = []byte("supply:")
	recordPrefix  = []byte("record:")
	custodyPrefix = []byte("custody:")
)

// Manager reads and writes ledger state on a trie. All writes stay in memory
// until the owning ledger commits the trie, so a failed instruction can be
// discarded by resetting the trie to its last committed root.
type Manager struct {
	trie    *trie.Trie
	program solana.PublicKey
}

// NewManager creates a state manager operating on the provided trie. program
// is the identity under which derived authorities are validated.
func NewManager(tr *trie.Trie, program solana.PublicKey) *Manager {
	return &Manager{trie: tr, program: program}
}

// Program returns the program identity used for derived authorities.
func (m *Manager) Program() solana.PublicKey { return m.program }

func hashedKey(prefix []byte, parts ...[]byte) []byte {
	buf := append([]byte(nil), prefix...)
	for _, part := range parts {
		buf = append(buf, part...)
	}
	return ethcrypto.Keccak256(buf)
}

func (m *Manager) getRLP(key []byte, out interface{}) (bool, error) {
	data, err := m.trie.Get(key)
	if err != nil {
		return false, err
	}
	if len(data) == 0 {
		return false, nil
	}
	if err := rlp.DecodeBytes(data, out); err != nil {
		return false, err
	}
	return true, nil
}

func (m *Manager) putRLP(key []byte, value interface{}) error {
	encoded, err := rlp.EncodeToBytes(value)
	if err != nil {
		return err
	}
	return m.trie.Update(key, encoded)
}

// Account returns the lamport account at addr. Missing accounts are returned
// empty.
func (m *Manager) Account(addr solana.PublicKey) (*types.Account, error) {
	acc := new(types.Account)
	if _, err := m.getRLP(hashedKey(accountPrefix, addr[:]), acc); err != nil {
		return nil, fmt.Errorf("load account %s: %w", addr, err)
	}
	return acc, nil
}

// Balance returns the lamports held at addr.
func (m *Manager) Balance(addr solana.PublicKey) (uint64, error) {
	acc, err := m.Account(addr)
	if err != nil {
		return 0, err
	}
	return acc.Lamports, nil
}

// SetBalance overwrites the lamport balance at addr. Zero balances remove
// the account entry.
func (m *Manager) SetBalance(addr solana.PublicKey, lamports uint64) error {
	key := hashedKey(accountPrefix, addr[:])
	if lamports == 0 {
		return m.trie.Delete(key)
	}
	return m.putRLP(key, &types.Account{Lamports: lamports})
}

// Credit adds lamports to addr.
func (m *Manager) Credit(addr solana.PublicKey, amount uint64) error {
	if amount == 0 {
		return nil
	}
	current, err := m.Balance(addr)
	if err != nil {
		return err
	}
	sum, overflow := new(uint256.Int).AddOverflow(uint256.NewInt(current), uint256.NewInt(amount))
	if overflow || !sum.IsUint64() {
		return fmt.Errorf("%w: credit %d to %s", ErrBalanceOverflow, amount, addr)
	}
	return m.SetBalance(addr, sum.Uint64())
}

// Debit removes lamports from addr.
func (m *Manager) Debit(addr solana.PublicKey, amount uint64) error {
	if amount == 0 {
		return nil
	}
	current, err := m.Balance(addr)
	if err != nil {
		return err
	}
	if current < amount {
		return fmt.Errorf("%w: %s holds %d, needs %d", ErrInsufficientBalance, addr, current, amount)
	}
	return m.SetBalance(addr, current-amount)
}

// Transfer moves lamports between two addresses.
func (m *Manager) Transfer(from, to solana.PublicKey, amount uint64) error {
	if err := m.Debit(from, amount); err != nil {
		return err
	}
	return m.Credit(to, amount)
}

type holding struct {
	Amount uint64
}

// Holding returns how many units of asset owner holds directly.
func (m *Manager) Holding(owner, asset solana.PublicKey) (uint64, error) {
	var h holding
	if _, err := m.getRLP(hashedKey(holdingPrefix, owner[:], asset[:]), &h); err != nil {
		return 0, fmt.Errorf("load holding %s/%s: %w", owner, asset, err)
	}
	return h.Amount, nil
}

func (m *Manager) setHolding(owner, asset solana.PublicKey, amount uint64) error {
	key := hashedKey(holdingPrefix, owner[:], asset[:])
	if amount == 0 {
		return m.trie.Delete(key)
	}
	return m.putRLP(key, &holding{Amount: amount})
}

// MintAsset creates the single unit of a non-fungible asset in owner's
// holding. An asset can be minted once.
func (m *Manager) MintAsset(owner, asset solana.PublicKey) error {
	supplyKey := hashedKey(supplyPrefix, asset[:])
	var supply holding
	exists, err := m.getRLP(supplyKey, &supply)
	if err != nil {
		return err
	}
	if exists {
		return fmt.Errorf("%w: %s", ErrAssetExists, asset)
	}
	if err := m.putRLP(supplyKey, &holding{Amount: 1}); err != nil {
		return err
	}
	return m.setHolding(owner, asset, 1)
}

// TransferAsset moves units of asset between two direct holdings.
func (m *Manager) TransferAsset(from, to, asset solana.PublicKey, amount uint64) error {
	held, err := m.Holding(from, asset)
	if err != nil {
		return err
	}
	if held < amount {
		return fmt.Errorf("%w: %s holds %d of %s", ErrInsufficientHolding, from, held, asset)
	}
	if err := m.setHolding(from, asset, held-amount); err != nil {
		return err
	}
	dest, err := m.Holding(to, asset)
	if err != nil {
		return err
	}
	return m.setHolding(to, asset, dest+amount)
}

// CreateRecord stores data at addr and moves the rent-exempt reserve for its
// size from payer into the record's account.
func (m *Manager) CreateRecord(addr, payer solana.PublicKey, data []byte) error {
	key := hashedKey(recordPrefix, addr[:])
	existing, err := m.trie.Get(key)
	if err != nil {
		return err
	}
	if len(existing) > 0 {
		return fmt.Errorf("%w: %s", ErrRecordExists, addr)
	}
	if err := m.Transfer(payer, addr, RentExemptMinimum(len(data))); err != nil {
		return fmt.Errorf("fund record %s: %w", addr, err)
	}
	return m.trie.Update(key, append([]byte(nil), data...))
}

// Record returns the raw data stored at addr.
func (m *Manager) Record(addr solana.PublicKey) ([]byte, bool, error) {
	data, err := m.trie.Get(hashedKey(recordPrefix, addr[:]))
	if err != nil {
		return nil, false, err
	}
	if len(data) == 0 {
		return nil, false, nil
	}
	return data, true, nil
}

// CloseRecord deletes the record at addr and sends every lamport it held to
// beneficiary.
func (m *Manager) CloseRecord(addr, beneficiary solana.PublicKey) error {
	key := hashedKey(recordPrefix, addr[:])
	existing, err := m.trie.Get(key)
	if err != nil {
		return err
	}
	if len(existing) == 0 {
		return fmt.Errorf("%w: %s", ErrRecordNotFound, addr)
	}
	if err := m.drain(addr, beneficiary); err != nil {
		return err
	}
	return m.trie.Delete(key)
}

func (m *Manager) drain(addr, beneficiary solana.PublicKey) error {
	lamports, err := m.Balance(addr)
	if err != nil {
		return err
	}
	return m.Transfer(addr, beneficiary, lamports)
}
