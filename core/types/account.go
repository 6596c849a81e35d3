package types

// Account is the lamport balance held at a ledger address. Records such as
// listings and custody vaults also carry an Account holding their reserve.
type Account struct {
	Lamports uint64 `json:"lamports"`
}

// Clone returns a copy of the account; nil yields an empty account.
func (a *Account) Clone() *Account {
	if a == nil {
		return &Account{}
	}
	clone := *a
	return &clone
}
