package indexer

import (
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"nftmarket/core/events"
	"nftmarket/core/types"
	"nftmarket/native/marketplace"
)

// ErrNoActiveListing is returned when a delist or sale refers to a listing
// the indexer never saw.
var ErrNoActiveListing = errors.New("indexer: no active listing")

// Open connects to the DSN. postgres:// and postgresql:// URLs and key=value
// DSNs containing host= select PostgreSQL, anything else is treated as a
// SQLite path or URI.
func Open(dsn string) (*gorm.DB, error) {
	trimmed := strings.TrimSpace(dsn)
	if trimmed == "" {
		return nil, fmt.Errorf("indexer: dsn required")
	}
	cfg := &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)}
	var dialector gorm.Dialector
	if isPostgres(trimmed) {
		dialector = postgres.Open(trimmed)
	} else {
		dialector = sqlite.Open(trimmed)
	}
	db, err := gorm.Open(dialector, cfg)
	if err != nil {
		return nil, fmt.Errorf("indexer: open: %w", err)
	}
	return db, nil
}

func isPostgres(dsn string) bool {
	lower := strings.ToLower(dsn)
	return strings.HasPrefix(lower, "postgres://") ||
		strings.HasPrefix(lower, "postgresql://") ||
		strings.Contains(lower, "host=")
}

// Indexer projects committed marketplace events into relational tables for
// listing and sale queries. It implements events.Emitter.
type Indexer struct {
	db     *gorm.DB
	logger *slog.Logger
}

// New migrates the schema and returns an indexer over db.
func New(db *gorm.DB, log *slog.Logger) (*Indexer, error) {
	if db == nil {
		return nil, fmt.Errorf("indexer: database required")
	}
	if err := AutoMigrate(db); err != nil {
		return nil, fmt.Errorf("indexer: migrate: %w", err)
	}
	if log == nil {
		log = slog.Default()
	}
	return &Indexer{db: db, logger: log.With("component", "indexer")}, nil
}

// Emit implements events.Emitter. Projection failures are logged; the
// ledger remains the source of truth.
func (i *Indexer) Emit(evt events.Event) {
	body := events.BodyOf(evt)
	if body == nil {
		return
	}
	if err := i.Apply(body); err != nil {
		i.logger.Error("index event failed", slog.String("type", body.Type), slog.Any("error", err))
	}
}

// Apply projects a single event.
func (i *Indexer) Apply(evt *types.Event) error {
	if evt == nil {
		return nil
	}
	attrs := evt.Attributes
	switch evt.Type {
	case marketplace.EventTypeMarketplaceInitialized:
		fee, err := strconv.ParseUint(attrs["feeBps"], 10, 16)
		if err != nil {
			return fmt.Errorf("indexer: feeBps: %w", err)
		}
		return i.db.Create(&Marketplace{
			Address:  attrs["marketplace"],
			Name:     attrs["name"],
			Admin:    attrs["admin"],
			Treasury: attrs["treasury"],
			FeeBps:   uint16(fee),
		}).Error
	case marketplace.EventTypeListingCreated:
		price, err := strconv.ParseUint(attrs["price"], 10, 64)
		if err != nil {
			return fmt.Errorf("indexer: price: %w", err)
		}
		return i.db.Create(&Listing{
			ID:          uuid.New(),
			Marketplace: attrs["marketplace"],
			Address:     attrs["listing"],
			Maker:       attrs["maker"],
			Asset:       attrs["asset"],
			Collection:  attrs["collection"],
			Vault:       attrs["vault"],
			Price:       price,
			Status:      StatusActive,
		}).Error
	case marketplace.EventTypeListingDelisted:
		return i.db.Transaction(func(tx *gorm.DB) error {
			row, err := activeListing(tx, attrs["listing"])
			if err != nil {
				return err
			}
			return tx.Model(row).Update("status", StatusDelisted).Error
		})
	case marketplace.EventTypeListingPurchased:
		return i.db.Transaction(func(tx *gorm.DB) error {
			row, err := activeListing(tx, attrs["listing"])
			if err != nil {
				return err
			}
			sale, err := saleFromAttributes(row, attrs)
			if err != nil {
				return err
			}
			if err := tx.Model(row).Update("status", StatusSold).Error; err != nil {
				return err
			}
			return tx.Create(sale).Error
		})
	}
	return nil
}

func activeListing(tx *gorm.DB, address string) (*Listing, error) {
	var row Listing
	err := tx.Where("address = ? AND status = ?", address, StatusActive).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrNoActiveListing, address)
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

func saleFromAttributes(row *Listing, attrs map[string]string) (*Sale, error) {
	amounts := make(map[string]uint64, 3)
	for _, key := range []string{"price", "fee", "sellerAmount"} {
		v, err := strconv.ParseUint(attrs[key], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("indexer: %s: %w", key, err)
		}
		amounts[key] = v
	}
	return &Sale{
		ID:           uuid.New(),
		ListingID:    row.ID,
		Marketplace:  row.Marketplace,
		Asset:        row.Asset,
		Seller:       row.Maker,
		Buyer:        attrs["buyer"],
		Treasury:     attrs["treasury"],
		Price:        amounts["price"],
		Fee:          amounts["fee"],
		SellerAmount: amounts["sellerAmount"],
	}, nil
}

// Query filters listing and sale lookups. Empty fields match everything.
type Query struct {
	Marketplace string
	Owner       string
	Limit       int
	Offset      int
}

func (q Query) limit() int {
	switch {
	case q.Limit <= 0:
		return 50
	case q.Limit > 500:
		return 500
	default:
		return q.Limit
	}
}

// ActiveListings returns listings currently in escrow, newest first. Owner
// filters by maker.
func (i *Indexer) ActiveListings(q Query) ([]Listing, error) {
	tx := i.db.Where("status = ?", StatusActive)
	if q.Marketplace != "" {
		tx = tx.Where("marketplace = ?", q.Marketplace)
	}
	if q.Owner != "" {
		tx = tx.Where("maker = ?", q.Owner)
	}
	var rows []Listing
	err := tx.Order("created_at DESC").Limit(q.limit()).Offset(q.Offset).Find(&rows).Error
	return rows, err
}

// Sales returns settled purchases, newest first. Owner matches either side
// of the trade.
func (i *Indexer) Sales(q Query) ([]Sale, error) {
	tx := i.db.Model(&Sale{})
	if q.Marketplace != "" {
		tx = tx.Where("marketplace = ?", q.Marketplace)
	}
	if q.Owner != "" {
		tx = tx.Where("seller = ? OR buyer = ?", q.Owner, q.Owner)
	}
	var rows []Sale
	err := tx.Order("created_at DESC").Limit(q.limit()).Offset(q.Offset).Find(&rows).Error
	return rows, err
}

// Marketplaces returns every indexed marketplace ordered by name.
func (i *Indexer) Marketplaces() ([]Marketplace, error) {
	var rows []Marketplace
	err := i.db.Order("name ASC").Find(&rows).Error
	return rows, err
}
