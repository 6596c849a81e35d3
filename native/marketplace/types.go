package marketplace

import (
	"fmt"

	"github.com/gagliardetto/solana-go"
)

const (
	// MaxNameLength bounds the marketplace display name in bytes.
	MaxNameLength = 32
	// MaxFeeBps is the largest fee accepted when a marketplace is created.
	MaxFeeBps = 10_000
	// PurchaseFeeCapBps is re-checked on every purchase regardless of the
	// stored configuration.
	PurchaseFeeCapBps = 5_000

	bpsDenominator = 10_000

	// MarketplaceSpace is the largest encoded marketplace record.
	MarketplaceSpace = 32 + 2 + 1 + 1 + 1 + (4 + MaxNameLength)
	// ListingSpace is the encoded listing record size.
	ListingSpace = 32 + 32 + 8 + 1
)

// Marketplace is the configuration record written once by the admin. Field
// order is the persisted layout.
type Marketplace struct {
	Admin        solana.PublicKey
	FeeBps       uint16
	Bump         uint8
	TreasuryBump uint8
	RewardsBump  uint8
	Name         string
}

// Clone returns a copy of the marketplace configuration.
func (m *Marketplace) Clone() *Marketplace {
	if m == nil {
		return nil
	}
	clone := *m
	return &clone
}

// Validate checks the creation-time bounds of the configuration.
func (m *Marketplace) Validate() error {
	if m == nil {
		return fmt.Errorf("marketplace: nil configuration")
	}
	if len(m.Name) > MaxNameLength {
		return fmt.Errorf("%w: %d bytes (max %d)", ErrNameTooLong, len(m.Name), MaxNameLength)
	}
	if m.FeeBps > MaxFeeBps {
		return fmt.Errorf("%w: %d", ErrFeeOutOfRange, m.FeeBps)
	}
	return nil
}

// Listing records an asset offered for sale at a fixed price. It is never
// mutated after creation. Field order is the persisted layout.
type Listing struct {
	Maker solana.PublicKey
	Asset solana.PublicKey
	Price uint64
	Bump  uint8
}

// Clone returns a copy of the listing.
func (l *Listing) Clone() *Listing {
	if l == nil {
		return nil
	}
	clone := *l
	return &clone
}

// Sale summarises a settled purchase.
type Sale struct {
	Marketplace  solana.PublicKey
	Listing      *Listing
	Buyer        solana.PublicKey
	Treasury     solana.PublicKey
	Fee          uint64
	SellerAmount uint64
}
