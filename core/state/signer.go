package state

import (
	"errors"
	"fmt"

	"github.com/gagliardetto/solana-go"
)

// ErrAuthorityMismatch is returned when supplied signer seeds do not
// re-derive the authority recorded on a custody account.
var ErrAuthorityMismatch = errors.New("state: derived authority mismatch")

// SignerSeeds authorises an operation on behalf of a program-derived
// address. No private key exists for such an address; presenting the seeds
// and bump that derive it under the ledger's program is accepted in place of
// a signature.
type SignerSeeds struct {
	Seeds [][]byte
	Bump  uint8
}

// Address re-derives the authority the seeds stand for.
func (s SignerSeeds) Address(program solana.PublicKey) (solana.PublicKey, error) {
	seeds := make([][]byte, 0, len(s.Seeds)+1)
	seeds = append(seeds, s.Seeds...)
	seeds = append(seeds, []byte{s.Bump})
	addr, err := solana.CreateProgramAddress(seeds, program)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("%w: %v", ErrAuthorityMismatch, err)
	}
	return addr, nil
}

func (m *Manager) authorize(authority solana.PublicKey, signer SignerSeeds) error {
	derived, err := signer.Address(m.program)
	if err != nil {
		return err
	}
	if !derived.Equals(authority) {
		return fmt.Errorf("%w: seeds derive %s, custody authority is %s", ErrAuthorityMismatch, derived, authority)
	}
	return nil
}
