package types

// Receipt describes a committed ledger instruction.
type Receipt struct {
	ID          string   `json:"id"`
	Height      uint64   `json:"height"`
	Instruction string   `json:"instruction"`
	Signer      string   `json:"signer"`
	ParentRoot  string   `json:"parentRoot"`
	StateRoot   string   `json:"stateRoot"`
	Timestamp   int64    `json:"timestamp"`
	Events      []*Event `json:"events,omitempty"`
}
