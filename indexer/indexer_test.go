package indexer

import (
	"bytes"
	"fmt"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"nftmarket/core/types"
	"nftmarket/native/marketplace"
)

func setupIndexer(t *testing.T) *Indexer {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := Open(dsn)
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	idx, err := New(db, nil)
	if err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	return idx
}

func key(fill byte) solana.PublicKey {
	return solana.PublicKeyFromBytes(bytes.Repeat([]byte{fill}, 32))
}

type payload struct{ body *types.Event }

func (p payload) EventType() string   { return p.body.Type }
func (p payload) Event() *types.Event { return p.body }

var (
	market     = key(0x10)
	treasury   = key(0x11)
	admin      = key(0x12)
	maker      = key(0x13)
	buyer      = key(0x14)
	asset      = key(0x15)
	listingKey = key(0x16)
	vault      = key(0x17)
	collection = key(0x18)
)

func listed(price uint64) *types.Event {
	return marketplace.NewListingCreatedEvent(market, listingKey, vault, collection, &marketplace.Listing{Maker: maker, Asset: asset, Price: price})
}

func TestIndexerTracksListingLifecycle(t *testing.T) {
	idx := setupIndexer(t)

	idx.Emit(payload{marketplace.NewInitializedEvent(market, treasury, &marketplace.Marketplace{Admin: admin, FeeBps: 250, Name: "indexed"})})
	markets, err := idx.Marketplaces()
	require.NoError(t, err)
	require.Len(t, markets, 1)
	require.Equal(t, uint16(250), markets[0].FeeBps)
	require.Equal(t, treasury.String(), markets[0].Treasury)

	require.NoError(t, idx.Apply(listed(500)))
	active, err := idx.ActiveListings(Query{Marketplace: market.String()})
	require.NoError(t, err)
	require.Len(t, active, 1)
	require.Equal(t, uint64(500), active[0].Price)
	require.Equal(t, vault.String(), active[0].Vault)

	require.NoError(t, idx.Apply(marketplace.NewDelistedEvent(market, listingKey, &marketplace.Listing{Maker: maker, Asset: asset, Price: 500})))
	active, err = idx.ActiveListings(Query{})
	require.NoError(t, err)
	require.Empty(t, active)

	// Relisting reuses the listing address but yields a fresh row.
	require.NoError(t, idx.Apply(listed(1_000_000)))
	sale := &marketplace.Sale{
		Marketplace:  market,
		Listing:      &marketplace.Listing{Maker: maker, Asset: asset, Price: 1_000_000},
		Buyer:        buyer,
		Treasury:     treasury,
		Fee:          25_000,
		SellerAmount: 975_000,
	}
	require.NoError(t, idx.Apply(marketplace.NewPurchasedEvent(listingKey, sale)))

	sales, err := idx.Sales(Query{Owner: buyer.String()})
	require.NoError(t, err)
	require.Len(t, sales, 1)
	require.Equal(t, maker.String(), sales[0].Seller)
	require.Equal(t, uint64(25_000), sales[0].Fee)
	require.Equal(t, uint64(975_000), sales[0].SellerAmount)

	sales, err = idx.Sales(Query{Marketplace: market.String(), Owner: maker.String()})
	require.NoError(t, err)
	require.Len(t, sales, 1)

	var rows []Listing
	require.NoError(t, idx.db.Order("created_at ASC").Find(&rows).Error)
	require.Len(t, rows, 2)
	require.Equal(t, StatusDelisted, rows[0].Status)
	require.Equal(t, StatusSold, rows[1].Status)
	require.Equal(t, rows[1].ID, sales[0].ListingID)
}

func TestIndexerRejectsUnknownListing(t *testing.T) {
	idx := setupIndexer(t)
	err := idx.Apply(marketplace.NewDelistedEvent(market, listingKey, &marketplace.Listing{Maker: maker, Asset: asset, Price: 1}))
	require.ErrorIs(t, err, ErrNoActiveListing)
}

func TestOpenSelectsDialect(t *testing.T) {
	require.True(t, isPostgres("postgres://market:pw@localhost:5432/market"))
	require.True(t, isPostgres("host=localhost user=market dbname=market"))
	require.False(t, isPostgres("file:market.db"))
	_, err := Open("  ")
	require.Error(t, err)
}
