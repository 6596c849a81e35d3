package marketplace

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/gagliardetto/solana-go"

	"nftmarket/core/events"
	"nftmarket/core/state"
	"nftmarket/core/types"
)

type engineState interface {
	Program() solana.PublicKey
	Balance(addr solana.PublicKey) (uint64, error)
	Transfer(from, to solana.PublicKey, amount uint64) error
	Holding(owner, asset solana.PublicKey) (uint64, error)
	CreateRecord(addr, payer solana.PublicKey, data []byte) error
	Record(addr solana.PublicKey) ([]byte, bool, error)
	CloseRecord(addr, beneficiary solana.PublicKey) error
	OpenCustody(addr, payer, authority, asset solana.PublicKey) error
	Custody(addr solana.PublicKey) (*state.Custody, bool, error)
	DepositToCustody(addr, owner, asset solana.PublicKey, amount uint64) error
	WithdrawFromCustody(addr solana.PublicKey, signer state.SignerSeeds, to, asset solana.PublicKey, amount uint64) error
	CloseCustody(addr solana.PublicKey, signer state.SignerSeeds, beneficiary solana.PublicKey) error
}

// Engine executes the marketplace instructions against ledger state. It does
// not provide atomicity itself: callers run each instruction inside a
// boundary that discards every write when an error is returned.
type Engine struct {
	state   engineState
	oracle  AuthenticityOracle
	emitter events.Emitter
}

// NewEngine creates a marketplace engine with a no-op emitter.
func NewEngine() *Engine {
	return &Engine{emitter: events.NoopEmitter{}}
}

// SetState configures the state backend used by the engine.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetOracle configures the authenticity oracle consulted by List.
func (e *Engine) SetOracle(oracle AuthenticityOracle) { e.oracle = oracle }

// SetEmitter configures the event emitter used by the engine. Passing nil resets
// the emitter to a no-op implementation.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

func (e *Engine) emit(evt *types.Event) {
	if e == nil || e.emitter == nil || evt == nil {
		return
	}
	e.emitter.Emit(marketEvent{evt: evt})
}

// Marketplace loads the configuration stored at addr.
func (e *Engine) Marketplace(addr solana.PublicKey) (*Marketplace, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	data, ok, err := e.state.Record(addr)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrMarketplaceNotFound, addr)
	}
	return DecodeMarketplace(data)
}

// Listing loads the active listing of asset on marketplace together with its
// address.
func (e *Engine) Listing(marketplace, asset solana.PublicKey) (*Listing, solana.PublicKey, error) {
	if e == nil || e.state == nil {
		return nil, solana.PublicKey{}, errNilState
	}
	addr, _, err := ListingAddress(e.state.Program(), marketplace, asset)
	if err != nil {
		return nil, solana.PublicKey{}, fmt.Errorf("marketplace: derive listing: %w", err)
	}
	data, ok, err := e.state.Record(addr)
	if err != nil {
		return nil, addr, err
	}
	if !ok {
		return nil, addr, fmt.Errorf("%w: asset %s", ErrListingNotFound, asset)
	}
	listing, err := DecodeListing(data)
	if err != nil {
		return nil, addr, err
	}
	return listing, addr, nil
}

// Treasury returns the fee treasury address of the marketplace at addr.
func (e *Engine) Treasury(addr solana.PublicKey) (solana.PublicKey, error) {
	m, err := e.Marketplace(addr)
	if err != nil {
		return solana.PublicKey{}, err
	}
	return treasuryFromBump(e.state.Program(), addr, m.TreasuryBump)
}

// Initialize creates the marketplace configuration for name. The admin pays
// the record's reserve. The treasury is a derived address that starts empty.
func (e *Engine) Initialize(admin solana.PublicKey, name string, feeBps uint16) (*Marketplace, solana.PublicKey, error) {
	if e == nil || e.state == nil {
		return nil, solana.PublicKey{}, errNilState
	}
	if strings.TrimSpace(name) == "" {
		return nil, solana.PublicKey{}, fmt.Errorf("marketplace: name required")
	}
	cfg := &Marketplace{Admin: admin, FeeBps: feeBps, Name: name}
	if err := cfg.Validate(); err != nil {
		return nil, solana.PublicKey{}, err
	}
	program := e.state.Program()
	addr, bump, err := MarketplaceAddress(program, name)
	if err != nil {
		return nil, solana.PublicKey{}, fmt.Errorf("marketplace: derive address: %w", err)
	}
	treasury, treasuryBump, err := TreasuryAddress(program, addr)
	if err != nil {
		return nil, solana.PublicKey{}, fmt.Errorf("marketplace: derive treasury: %w", err)
	}
	_, rewardsBump, err := RewardsAddress(program, addr)
	if err != nil {
		return nil, solana.PublicKey{}, fmt.Errorf("marketplace: derive rewards: %w", err)
	}
	cfg.Bump = bump
	cfg.TreasuryBump = treasuryBump
	cfg.RewardsBump = rewardsBump

	if _, exists, err := e.state.Record(addr); err != nil {
		return nil, solana.PublicKey{}, err
	} else if exists {
		return nil, solana.PublicKey{}, fmt.Errorf("%w: %s", ErrMarketplaceExists, name)
	}
	data, err := EncodeMarketplace(cfg)
	if err != nil {
		return nil, solana.PublicKey{}, err
	}
	if err := e.state.CreateRecord(addr, admin, data); err != nil {
		if errors.Is(err, state.ErrRecordExists) {
			return nil, solana.PublicKey{}, fmt.Errorf("%w: %s", ErrMarketplaceExists, name)
		}
		return nil, solana.PublicKey{}, translateStateErr(err)
	}
	e.emit(NewInitializedEvent(addr, treasury, cfg))
	return cfg.Clone(), addr, nil
}

// List escrows the maker's asset at a fixed price. The listing record is
// written first, then the vault is opened and the asset deposited.
func (e *Engine) List(ctx context.Context, maker, marketplace, asset, collection solana.PublicKey, price uint64) (*Listing, solana.PublicKey, error) {
	if e == nil || e.state == nil {
		return nil, solana.PublicKey{}, errNilState
	}
	if _, err := e.Marketplace(marketplace); err != nil {
		return nil, solana.PublicKey{}, err
	}
	if price == 0 {
		return nil, solana.PublicKey{}, ErrInvalidPrice
	}
	program := e.state.Program()
	listingAddr, bump, err := ListingAddress(program, marketplace, asset)
	if err != nil {
		return nil, solana.PublicKey{}, fmt.Errorf("marketplace: derive listing: %w", err)
	}
	if _, exists, err := e.state.Record(listingAddr); err != nil {
		return nil, solana.PublicKey{}, err
	} else if exists {
		return nil, solana.PublicKey{}, fmt.Errorf("%w: asset %s", ErrListingExists, asset)
	}
	held, err := e.state.Holding(maker, asset)
	if err != nil {
		return nil, solana.PublicKey{}, err
	}
	if held != 1 {
		return nil, solana.PublicKey{}, fmt.Errorf("%w: %s holds %d of %s", ErrAssetNotHeld, maker, held, asset)
	}
	if err := VerifyCollection(ctx, e.oracle, asset, collection); err != nil {
		return nil, solana.PublicKey{}, err
	}

	listing := &Listing{Maker: maker, Asset: asset, Price: price, Bump: bump}
	data, err := EncodeListing(listing)
	if err != nil {
		return nil, solana.PublicKey{}, err
	}
	if err := e.state.CreateRecord(listingAddr, maker, data); err != nil {
		if errors.Is(err, state.ErrRecordExists) {
			return nil, solana.PublicKey{}, fmt.Errorf("%w: asset %s", ErrListingExists, asset)
		}
		return nil, solana.PublicKey{}, translateStateErr(err)
	}
	vault, err := e.openVault(listingAddr, maker, asset)
	if err != nil {
		return nil, solana.PublicKey{}, err
	}
	e.emit(NewListingCreatedEvent(marketplace, listingAddr, vault, collection, listing))
	return listing.Clone(), listingAddr, nil
}

// Delist returns the escrowed asset to its maker and closes the listing and
// vault, refunding both reserves to the maker.
func (e *Engine) Delist(seller, marketplace, asset solana.PublicKey) (*Listing, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	if _, err := e.Marketplace(marketplace); err != nil {
		return nil, err
	}
	listing, listingAddr, err := e.Listing(marketplace, asset)
	if err != nil {
		return nil, err
	}
	if !listing.Maker.Equals(seller) {
		return nil, fmt.Errorf("%w: %s is not the maker of %s", ErrUnauthorized, seller, asset)
	}
	signer := ListingSigner(marketplace, asset, listing.Bump)
	if err := e.releaseVault(listingAddr, signer, asset, seller, seller); err != nil {
		return nil, err
	}
	if err := e.state.CloseRecord(listingAddr, seller); err != nil {
		return nil, translateStateErr(err)
	}
	e.emit(NewDelistedEvent(marketplace, listingAddr, listing))
	return listing, nil
}

// Purchase settles a listing: the seller's share and the treasury fee are
// paid by the buyer before the asset leaves the vault, then the listing and
// vault are closed with their reserves returned to the seller.
func (e *Engine) Purchase(buyer, seller, marketplace, asset solana.PublicKey) (*Sale, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	cfg, err := e.Marketplace(marketplace)
	if err != nil {
		return nil, err
	}
	listing, listingAddr, err := e.Listing(marketplace, asset)
	if err != nil {
		return nil, err
	}
	if !listing.Maker.Equals(seller) {
		return nil, fmt.Errorf("%w: %s is not the maker of %s", ErrUnauthorized, seller, asset)
	}
	fee, sellerAmount, err := SplitPrice(listing.Price, cfg.FeeBps)
	if err != nil {
		return nil, err
	}
	treasury, err := treasuryFromBump(e.state.Program(), marketplace, cfg.TreasuryBump)
	if err != nil {
		return nil, fmt.Errorf("marketplace: derive treasury: %w", err)
	}
	balance, err := e.state.Balance(buyer)
	if err != nil {
		return nil, err
	}
	if balance < listing.Price {
		return nil, fmt.Errorf("%w: buyer %s holds %d, price %d", ErrInsufficientFunds, buyer, balance, listing.Price)
	}

	if err := e.state.Transfer(buyer, seller, sellerAmount); err != nil {
		return nil, translateStateErr(err)
	}
	if err := e.state.Transfer(buyer, treasury, fee); err != nil {
		return nil, translateStateErr(err)
	}
	signer := ListingSigner(marketplace, asset, listing.Bump)
	if err := e.releaseVault(listingAddr, signer, asset, buyer, seller); err != nil {
		return nil, err
	}
	if err := e.state.CloseRecord(listingAddr, seller); err != nil {
		return nil, translateStateErr(err)
	}
	sale := &Sale{
		Marketplace:  marketplace,
		Listing:      listing,
		Buyer:        buyer,
		Treasury:     treasury,
		Fee:          fee,
		SellerAmount: sellerAmount,
	}
	e.emit(NewPurchasedEvent(listingAddr, sale))
	return sale, nil
}
