package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gagliardetto/solana-go"
	"github.com/google/uuid"

	"nftmarket/core/events"
	"nftmarket/core/state"
	"nftmarket/core/types"
	"nftmarket/native/marketplace"
	"nftmarket/observability/metrics"
	"nftmarket/storage"
	"nftmarket/storage/journal"
	"nftmarket/storage/trie"
)

const (
	InstructionGenesis    = "genesis"
	InstructionInitialize = "initialize"
	InstructionList       = "list"
	InstructionDelist     = "delist"
	InstructionPurchase   = "purchase"
)

// ErrReceiptNotFound is returned when no committed receipt matches an id.
var ErrReceiptNotFound = journal.ErrNotFound

// Options configures a Ledger.
type Options struct {
	Program solana.PublicKey
	Oracle  marketplace.AuthenticityOracle
	Emitter events.Emitter
	Logger  *slog.Logger
	Now     func() time.Time
}

// Ledger serialises marketplace instructions over the state trie. Every
// instruction either commits all of its writes together with a receipt or
// leaves the trie at its previous root. Events are delivered to the
// configured emitter only after the instruction has been committed.
type Ledger struct {
	mu      sync.Mutex
	db      storage.Database
	trie    *trie.Trie
	state   *state.Manager
	journal *journal.Store
	oracle  marketplace.AuthenticityOracle
	emitter events.Emitter
	logger  *slog.Logger
	now     func() time.Time
	height  uint64
}

// NewLedger opens the ledger at the head recorded in the journal, or at the
// empty state when the journal has no head yet.
func NewLedger(db storage.Database, store *journal.Store, opts Options) (*Ledger, error) {
	if db == nil {
		return nil, fmt.Errorf("ledger: storage required")
	}
	if store == nil {
		return nil, fmt.Errorf("ledger: journal required")
	}
	program := opts.Program
	if program.IsZero() {
		program = marketplace.DefaultProgramID
	}
	head, ok, err := store.Head()
	if err != nil {
		return nil, fmt.Errorf("ledger: load head: %w", err)
	}
	var root []byte
	if ok {
		root = common.HexToHash(head.Root).Bytes()
	}
	stateTrie, err := trie.NewTrie(db, root)
	if err != nil {
		return nil, fmt.Errorf("ledger: open state at %s: %w", head.Root, err)
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	emitter := opts.Emitter
	if emitter == nil {
		emitter = events.NoopEmitter{}
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	l := &Ledger{
		db:      db,
		trie:    stateTrie,
		state:   state.NewManager(stateTrie, program),
		journal: store,
		oracle:  opts.Oracle,
		emitter: emitter,
		logger:  logger.With("component", "ledger"),
		now:     now,
		height:  head.Height,
	}
	metrics.Market().SetHeight(l.height)
	return l, nil
}

// Program returns the identity under which derived addresses are computed.
func (l *Ledger) Program() solana.PublicKey { return l.state.Program() }

// Head returns the height and root of the last committed instruction.
func (l *Ledger) Head() (uint64, common.Hash) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.height, l.trie.Root()
}

func (l *Ledger) newEngine(emitter events.Emitter) *marketplace.Engine {
	engine := marketplace.NewEngine()
	engine.SetState(l.state)
	engine.SetOracle(l.oracle)
	engine.SetEmitter(emitter)
	return engine
}

// execute runs fn as one atomic instruction. On any failure the trie is reset
// to the last committed root and buffered events are dropped.
func (l *Ledger) execute(ctx context.Context, kind string, signer solana.PublicKey, fn func(*marketplace.Engine, *state.Manager) error) (*types.Receipt, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	start := time.Now()
	l.mu.Lock()
	defer l.mu.Unlock()

	receipt, committed, err := l.apply(ctx, kind, signer, fn)
	metrics.Market().ObserveInstruction(kind, err, time.Since(start))
	if err != nil {
		l.logger.Warn("instruction rejected",
			slog.String("instruction", kind),
			slog.String("signer", signer.String()),
			slog.Any("error", err))
		return nil, err
	}
	metrics.Market().SetHeight(l.height)
	l.logger.Info("instruction committed",
		slog.String("instruction", kind),
		slog.String("signer", signer.String()),
		slog.Uint64("height", receipt.Height),
		slog.String("root", receipt.StateRoot),
		slog.String("receipt", receipt.ID))
	for _, evt := range committed {
		l.emitter.Emit(evt)
	}
	return receipt, nil
}

func (l *Ledger) apply(ctx context.Context, kind string, signer solana.PublicKey, fn func(*marketplace.Engine, *state.Manager) error) (*types.Receipt, []events.Event, error) {
	parent := l.trie.Root()
	rollback := func(cause error) error {
		if err := l.trie.Reset(parent); err != nil {
			return fmt.Errorf("%w (rollback failed: %v)", cause, err)
		}
		return cause
	}

	buffer := &events.Buffer{}
	if err := fn(l.newEngine(buffer), l.state); err != nil {
		return nil, nil, rollback(err)
	}
	if err := ctx.Err(); err != nil {
		return nil, nil, rollback(err)
	}
	height := l.height + 1
	root, err := l.trie.Commit(parent, height)
	if err != nil {
		return nil, nil, rollback(fmt.Errorf("ledger: commit state: %w", err))
	}
	pending := buffer.Drain()
	receipt := &types.Receipt{
		ID:          uuid.NewString(),
		Height:      height,
		Instruction: kind,
		Signer:      signer.String(),
		ParentRoot:  parent.Hex(),
		StateRoot:   root.Hex(),
		Timestamp:   l.now().UTC().Unix(),
		Events:      make([]*types.Event, 0, len(pending)),
	}
	for _, evt := range pending {
		if body := events.BodyOf(evt); body != nil {
			receipt.Events = append(receipt.Events, body)
		}
	}
	if err := l.journal.Append(receipt); err != nil {
		return nil, nil, rollback(fmt.Errorf("ledger: append receipt: %w", err))
	}
	l.height = height
	return receipt, pending, nil
}

// InitializeResult reports a created marketplace.
type InitializeResult struct {
	Address     solana.PublicKey
	Treasury    solana.PublicKey
	Marketplace *marketplace.Marketplace
	Receipt     *types.Receipt
}

// Initialize creates a marketplace owned by admin.
func (l *Ledger) Initialize(ctx context.Context, admin solana.PublicKey, name string, feeBps uint16) (*InitializeResult, error) {
	result := new(InitializeResult)
	receipt, err := l.execute(ctx, InstructionInitialize, admin, func(engine *marketplace.Engine, _ *state.Manager) error {
		cfg, addr, err := engine.Initialize(admin, name, feeBps)
		if err != nil {
			return err
		}
		treasury, err := engine.Treasury(addr)
		if err != nil {
			return err
		}
		result.Address, result.Treasury, result.Marketplace = addr, treasury, cfg
		return nil
	})
	if err != nil {
		return nil, err
	}
	result.Receipt = receipt
	return result, nil
}

// ListResult reports an escrowed listing.
type ListResult struct {
	Address solana.PublicKey
	Vault   solana.PublicKey
	Listing *marketplace.Listing
	Receipt *types.Receipt
}

// List escrows maker's asset on the marketplace at price.
func (l *Ledger) List(ctx context.Context, maker, market, asset, collection solana.PublicKey, price uint64) (*ListResult, error) {
	result := new(ListResult)
	receipt, err := l.execute(ctx, InstructionList, maker, func(engine *marketplace.Engine, _ *state.Manager) error {
		listing, addr, err := engine.List(ctx, maker, market, asset, collection, price)
		if err != nil {
			return err
		}
		vault, _, err := marketplace.VaultAddress(l.state.Program(), addr, asset)
		if err != nil {
			return err
		}
		result.Address, result.Vault, result.Listing = addr, vault, listing
		return nil
	})
	if err != nil {
		return nil, err
	}
	result.Receipt = receipt
	return result, nil
}

// DelistResult reports a withdrawn listing.
type DelistResult struct {
	Listing *marketplace.Listing
	Receipt *types.Receipt
}

// Delist returns the escrowed asset to seller and closes the listing.
func (l *Ledger) Delist(ctx context.Context, seller, market, asset solana.PublicKey) (*DelistResult, error) {
	result := new(DelistResult)
	receipt, err := l.execute(ctx, InstructionDelist, seller, func(engine *marketplace.Engine, _ *state.Manager) error {
		listing, err := engine.Delist(seller, market, asset)
		result.Listing = listing
		return err
	})
	if err != nil {
		return nil, err
	}
	result.Receipt = receipt
	return result, nil
}

// PurchaseResult reports a settled sale.
type PurchaseResult struct {
	Sale    *marketplace.Sale
	Receipt *types.Receipt
}

// Purchase settles the listing of asset: payment, fee and asset transfer
// commit together or not at all.
func (l *Ledger) Purchase(ctx context.Context, buyer, seller, market, asset solana.PublicKey) (*PurchaseResult, error) {
	result := new(PurchaseResult)
	receipt, err := l.execute(ctx, InstructionPurchase, buyer, func(engine *marketplace.Engine, _ *state.Manager) error {
		sale, err := engine.Purchase(buyer, seller, market, asset)
		result.Sale = sale
		return err
	})
	if err != nil {
		return nil, err
	}
	result.Receipt = receipt
	return result, nil
}

// query runs fn against committed state under the ledger lock.
func (l *Ledger) query(fn func(*marketplace.Engine, *state.Manager) error) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return fn(l.newEngine(nil), l.state)
}

// Marketplace returns the configuration stored at addr.
func (l *Ledger) Marketplace(addr solana.PublicKey) (*marketplace.Marketplace, solana.PublicKey, error) {
	var (
		cfg      *marketplace.Marketplace
		treasury solana.PublicKey
	)
	err := l.query(func(engine *marketplace.Engine, _ *state.Manager) error {
		var err error
		if cfg, err = engine.Marketplace(addr); err != nil {
			return err
		}
		treasury, err = engine.Treasury(addr)
		return err
	})
	return cfg, treasury, err
}

// Listing returns the active listing of asset together with its address and
// vault.
func (l *Ledger) Listing(market, asset solana.PublicKey) (*marketplace.Listing, solana.PublicKey, *marketplace.Vault, error) {
	var (
		listing *marketplace.Listing
		addr    solana.PublicKey
		vault   *marketplace.Vault
	)
	err := l.query(func(engine *marketplace.Engine, _ *state.Manager) error {
		var err error
		if listing, addr, err = engine.Listing(market, asset); err != nil {
			return err
		}
		vault, _, err = engine.Vault(market, asset)
		return err
	})
	return listing, addr, vault, err
}

// Balance returns the lamports held at addr.
func (l *Ledger) Balance(addr solana.PublicKey) (uint64, error) {
	var bal uint64
	err := l.query(func(_ *marketplace.Engine, st *state.Manager) error {
		var err error
		bal, err = st.Balance(addr)
		return err
	})
	return bal, err
}

// Holding returns the units of asset held by owner.
func (l *Ledger) Holding(owner, asset solana.PublicKey) (uint64, error) {
	var held uint64
	err := l.query(func(_ *marketplace.Engine, st *state.Manager) error {
		var err error
		held, err = st.Holding(owner, asset)
		return err
	})
	return held, err
}

// Receipt returns the committed receipt with id.
func (l *Ledger) Receipt(id string) (*types.Receipt, error) {
	receipt, err := l.journal.Receipt(id)
	if errors.Is(err, journal.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrReceiptNotFound, id)
	}
	return receipt, err
}

// RecentReceipts returns up to limit receipts, newest first.
func (l *Ledger) RecentReceipts(limit int) ([]*types.Receipt, error) {
	return l.journal.Recent(limit)
}
