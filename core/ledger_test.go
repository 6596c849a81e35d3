package core

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/require"

	"nftmarket/core/events"
	"nftmarket/core/state"
	"nftmarket/native/marketplace"
	"nftmarket/storage"
	"nftmarket/storage/journal"
)

type verifiedOracle struct {
	collection solana.PublicKey
}

func (o verifiedOracle) AssetMetadata(_ context.Context, asset solana.PublicKey) (*marketplace.AssetMetadata, bool, error) {
	return &marketplace.AssetMetadata{Asset: asset, Collection: o.collection, Verified: true, MasterEdition: true}, true, nil
}

type recorder struct {
	mu     sync.Mutex
	events []string
}

func (r *recorder) Emit(evt events.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, evt.EventType())
}

func (r *recorder) snapshot() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.events...)
}

func key(fill byte) solana.PublicKey {
	return solana.PublicKeyFromBytes(bytes.Repeat([]byte{fill}, 32))
}

var (
	admin      = key(0x01)
	seller     = key(0x02)
	buyer      = key(0x03)
	asset      = key(0x04)
	collection = key(0x05)
)

const marketName = "ledger-market"

func listingCost() uint64 {
	return state.RentExemptMinimum(marketplace.ListingSpace) + state.RentExemptMinimum(state.CustodySize)
}

func testGenesis(sellerLamports, buyerLamports uint64) *Genesis {
	return &Genesis{
		Accounts: []GenesisAccount{
			{Address: admin, Lamports: 1_000_000_000},
			{Address: seller, Lamports: sellerLamports},
			{Address: buyer, Lamports: buyerLamports},
		},
		Assets:       []GenesisAsset{{Owner: seller, Asset: asset}},
		Marketplaces: []GenesisMarketplace{{Admin: admin, Name: marketName, FeeBps: 250}},
	}
}

func newTestLedger(t *testing.T, emitter events.Emitter) *Ledger {
	t.Helper()
	db := storage.NewMemDB()
	t.Cleanup(db.Close)
	store, err := journal.OpenMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	ledger, err := NewLedger(db, store, Options{Oracle: verifiedOracle{collection: collection}, Emitter: emitter})
	require.NoError(t, err)
	return ledger
}

func marketAddress(t *testing.T) solana.PublicKey {
	t.Helper()
	addr, _, err := marketplace.MarketplaceAddress(marketplace.DefaultProgramID, marketName)
	require.NoError(t, err)
	return addr
}

func TestGenesisAppliesOnce(t *testing.T) {
	ledger := newTestLedger(t, nil)
	ctx := context.Background()

	receipt, err := ledger.ApplyGenesis(ctx, testGenesis(5_000_000, 1_000_000))
	require.NoError(t, err)
	require.NotNil(t, receipt)
	require.Equal(t, uint64(1), receipt.Height)
	require.Equal(t, InstructionGenesis, receipt.Instruction)

	again, err := ledger.ApplyGenesis(ctx, testGenesis(5_000_000, 1_000_000))
	require.NoError(t, err)
	require.Nil(t, again)

	bal, err := ledger.Balance(buyer)
	require.NoError(t, err)
	require.Equal(t, uint64(1_000_000), bal)
	held, err := ledger.Holding(seller, asset)
	require.NoError(t, err)
	require.Equal(t, uint64(1), held)

	cfg, treasury, err := ledger.Marketplace(marketAddress(t))
	require.NoError(t, err)
	require.Equal(t, uint16(250), cfg.FeeBps)
	require.False(t, treasury.IsZero())
}

func TestPurchaseCommitsAndDeliversEvents(t *testing.T) {
	rec := &recorder{}
	ledger := newTestLedger(t, rec)
	ctx := context.Background()
	market := marketAddress(t)

	_, err := ledger.ApplyGenesis(ctx, testGenesis(listingCost(), 1_000_000))
	require.NoError(t, err)
	require.Equal(t, []string{marketplace.EventTypeMarketplaceInitialized}, rec.snapshot())

	listed, err := ledger.List(ctx, seller, market, asset, collection, 1_000_000)
	require.NoError(t, err)
	require.Equal(t, uint64(2), listed.Receipt.Height)
	require.Len(t, listed.Receipt.Events, 1)

	sold, err := ledger.Purchase(ctx, buyer, seller, market, asset)
	require.NoError(t, err)
	require.Equal(t, uint64(25_000), sold.Sale.Fee)
	require.Equal(t, uint64(975_000), sold.Sale.SellerAmount)
	require.Equal(t, listed.Receipt.StateRoot, sold.Receipt.ParentRoot)

	stored, err := ledger.Receipt(sold.Receipt.ID)
	require.NoError(t, err)
	require.Equal(t, InstructionPurchase, stored.Instruction)
	require.Equal(t, buyer.String(), stored.Signer)
	require.Equal(t, marketplace.EventTypeListingPurchased, stored.Events[0].Type)

	require.Equal(t, []string{
		marketplace.EventTypeMarketplaceInitialized,
		marketplace.EventTypeListingCreated,
		marketplace.EventTypeListingPurchased,
	}, rec.snapshot())

	sellerBal, err := ledger.Balance(seller)
	require.NoError(t, err)
	require.Equal(t, listingCost()+975_000, sellerBal)
	treasuryBal, err := ledger.Balance(sold.Sale.Treasury)
	require.NoError(t, err)
	require.Equal(t, uint64(25_000), treasuryBal)

	recent, err := ledger.RecentReceipts(10)
	require.NoError(t, err)
	require.Len(t, recent, 3)
	require.Equal(t, sold.Receipt.ID, recent[0].ID)
}

func TestRejectedInstructionLeavesStateUntouched(t *testing.T) {
	rec := &recorder{}
	ledger := newTestLedger(t, rec)
	ctx := context.Background()
	market := marketAddress(t)

	_, err := ledger.ApplyGenesis(ctx, testGenesis(listingCost(), 999_999))
	require.NoError(t, err)
	_, err = ledger.List(ctx, seller, market, asset, collection, 1_000_000)
	require.NoError(t, err)
	height, root := ledger.Head()

	_, err = ledger.Purchase(ctx, buyer, seller, market, asset)
	require.ErrorIs(t, err, marketplace.ErrInsufficientFunds)

	afterHeight, afterRoot := ledger.Head()
	require.Equal(t, height, afterHeight)
	require.Equal(t, root, afterRoot)
	require.Len(t, rec.snapshot(), 2)

	bal, err := ledger.Balance(buyer)
	require.NoError(t, err)
	require.Equal(t, uint64(999_999), bal)
	_, _, vault, err := ledger.Listing(market, asset)
	require.NoError(t, err)
	require.Equal(t, uint64(1), vault.Amount)
}

func TestPartialListIsRolledBack(t *testing.T) {
	ledger := newTestLedger(t, nil)
	ctx := context.Background()
	market := marketAddress(t)

	// Enough for the listing record but not the vault reserve, so the
	// instruction fails after its first write.
	short := state.RentExemptMinimum(marketplace.ListingSpace) + 1
	_, err := ledger.ApplyGenesis(ctx, testGenesis(short, 0))
	require.NoError(t, err)

	_, err = ledger.List(ctx, seller, market, asset, collection, 10)
	require.ErrorIs(t, err, marketplace.ErrInsufficientFunds)

	_, _, _, err = ledger.Listing(market, asset)
	require.ErrorIs(t, err, marketplace.ErrListingNotFound)
	bal, err := ledger.Balance(seller)
	require.NoError(t, err)
	require.Equal(t, short, bal)
	held, err := ledger.Holding(seller, asset)
	require.NoError(t, err)
	require.Equal(t, uint64(1), held)
}

func TestConcurrentPurchasesSettleOnce(t *testing.T) {
	ledger := newTestLedger(t, nil)
	ctx := context.Background()
	market := marketAddress(t)
	rival := key(0x06)

	g := testGenesis(listingCost(), 1_000)
	g.Accounts = append(g.Accounts, GenesisAccount{Address: rival, Lamports: 1_000})
	_, err := ledger.ApplyGenesis(ctx, g)
	require.NoError(t, err)
	_, err = ledger.List(ctx, seller, market, asset, collection, 1_000)
	require.NoError(t, err)

	var wg sync.WaitGroup
	results := make([]error, 2)
	for i, who := range []solana.PublicKey{buyer, rival} {
		wg.Add(1)
		go func(i int, who solana.PublicKey) {
			defer wg.Done()
			_, results[i] = ledger.Purchase(ctx, who, seller, market, asset)
		}(i, who)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range results {
		if err == nil {
			succeeded++
			continue
		}
		require.True(t, errors.Is(err, marketplace.ErrListingNotFound), "unexpected error %v", err)
	}
	require.Equal(t, 1, succeeded)

	buyerHeld, _ := ledger.Holding(buyer, asset)
	rivalHeld, _ := ledger.Holding(rival, asset)
	require.Equal(t, uint64(1), buyerHeld+rivalHeld)
}

func TestCancelledContextIsRejected(t *testing.T) {
	ledger := newTestLedger(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := ledger.Initialize(ctx, admin, "cancelled", 100)
	require.ErrorIs(t, err, context.Canceled)
	height, _ := ledger.Head()
	require.Zero(t, height)
}

func TestLedgerRestoresHeadAfterReopen(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	open := func() (*Ledger, func()) {
		db, err := storage.NewLevelDB(filepath.Join(dir, "state"))
		require.NoError(t, err)
		store, err := journal.Open(filepath.Join(dir, "journal"))
		require.NoError(t, err)
		ledger, err := NewLedger(db, store, Options{Oracle: verifiedOracle{collection: collection}})
		require.NoError(t, err)
		return ledger, func() {
			_ = store.Close()
			db.Close()
		}
	}

	ledger, closeFn := open()
	_, err := ledger.ApplyGenesis(ctx, testGenesis(listingCost(), 0))
	require.NoError(t, err)
	listed, err := ledger.List(ctx, seller, marketAddress(t), asset, collection, 42)
	require.NoError(t, err)
	closeFn()

	reopened, closeAgain := open()
	defer closeAgain()
	height, root := reopened.Head()
	require.Equal(t, uint64(2), height)
	require.Equal(t, listed.Receipt.StateRoot, root.Hex())

	listing, _, _, err := reopened.Listing(marketAddress(t), asset)
	require.NoError(t, err)
	require.Equal(t, uint64(42), listing.Price)

	again, err := reopened.ApplyGenesis(ctx, testGenesis(listingCost(), 0))
	require.NoError(t, err)
	require.Nil(t, again)
}
