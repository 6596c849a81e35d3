package indexer

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ListingStatus tracks a listing row across its lifecycle.
type ListingStatus string

const (
	StatusActive   ListingStatus = "ACTIVE"
	StatusDelisted ListingStatus = "DELISTED"
	StatusSold     ListingStatus = "SOLD"
)

// Marketplace mirrors a marketplace configuration.
type Marketplace struct {
	Address   string `gorm:"size:44;primaryKey"`
	Name      string `gorm:"size:32;uniqueIndex"`
	Admin     string `gorm:"size:44;index"`
	Treasury  string `gorm:"size:44"`
	FeeBps    uint16 `gorm:"not null"`
	CreatedAt time.Time
}

// Listing is one escrow period of an asset. The same listing address is
// reused when an asset is listed again, so rows are keyed by a UUID.
type Listing struct {
	ID          uuid.UUID     `gorm:"type:uuid;primaryKey"`
	Marketplace string        `gorm:"size:44;index"`
	Address     string        `gorm:"size:44;index"`
	Maker       string        `gorm:"size:44;index"`
	Asset       string        `gorm:"size:44;index"`
	Collection  string        `gorm:"size:44"`
	Vault       string        `gorm:"size:44"`
	Price       uint64        `gorm:"not null"`
	Status      ListingStatus `gorm:"size:16;index"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Sale records a settled purchase.
type Sale struct {
	ID           uuid.UUID `gorm:"type:uuid;primaryKey"`
	ListingID    uuid.UUID `gorm:"type:uuid;index"`
	Marketplace  string    `gorm:"size:44;index"`
	Asset        string    `gorm:"size:44;index"`
	Seller       string    `gorm:"size:44;index"`
	Buyer        string    `gorm:"size:44;index"`
	Treasury     string    `gorm:"size:44"`
	Price        uint64    `gorm:"not null"`
	Fee          uint64    `gorm:"not null"`
	SellerAmount uint64    `gorm:"not null"`
	CreatedAt    time.Time
}

// AutoMigrate creates or updates the indexer tables.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(&Marketplace{}, &Listing{}, &Sale{})
}
