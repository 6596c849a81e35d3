package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/require"

	"nftmarket/core"
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

const testMarket = "rpc-market"

type fixture struct {
	t          *testing.T
	server     *Server
	handler    http.Handler
	ledger     *core.Ledger
	now        time.Time
	admin      solana.PrivateKey
	seller     solana.PrivateKey
	buyer      solana.PrivateKey
	poor       solana.PrivateKey
	asset      solana.PublicKey
	collection solana.PublicKey
	market     solana.PublicKey
}

func newKey(t *testing.T) solana.PrivateKey {
	t.Helper()
	key, err := solana.NewRandomPrivateKey()
	require.NoError(t, err)
	return key
}

func newFixture(t *testing.T, cfg ServerConfig) *fixture {
	t.Helper()
	f := &fixture{
		t:          t,
		now:        time.Unix(1_700_000_000, 0),
		admin:      newKey(t),
		seller:     newKey(t),
		buyer:      newKey(t),
		poor:       newKey(t),
		asset:      newKey(t).PublicKey(),
		collection: newKey(t).PublicKey(),
	}
	db := storage.NewMemDB()
	t.Cleanup(db.Close)
	store, err := journal.OpenMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	ledger, err := core.NewLedger(db, store, core.Options{Oracle: verifiedOracle{collection: f.collection}})
	require.NoError(t, err)
	listingCost := state.RentExemptMinimum(marketplace.ListingSpace) + state.RentExemptMinimum(state.CustodySize)
	_, err = ledger.ApplyGenesis(context.Background(), &core.Genesis{
		Accounts: []core.GenesisAccount{
			{Address: f.admin.PublicKey(), Lamports: 1_000_000_000},
			{Address: f.seller.PublicKey(), Lamports: listingCost},
			{Address: f.buyer.PublicKey(), Lamports: 1_000_000},
			{Address: f.poor.PublicKey(), Lamports: 999_999},
		},
		Assets: []core.GenesisAsset{{Owner: f.seller.PublicKey(), Asset: f.asset}},
	})
	require.NoError(t, err)
	f.ledger = ledger
	f.market, _, err = marketplace.MarketplaceAddress(ledger.Program(), testMarket)
	require.NoError(t, err)

	cfg.Now = func() time.Time { return f.now }
	if cfg.SignatureTTL == 0 {
		cfg.SignatureTTL = time.Minute
	}
	f.server, err = NewServer(ledger, nil, cfg)
	require.NoError(t, err)
	f.handler = f.server.Handler()
	return f
}

func (f *fixture) envelope(key solana.PrivateKey, method string, payload interface{}) *Envelope {
	f.t.Helper()
	env, err := SignEnvelope(key, method, payload, 30*time.Second, f.now)
	require.NoError(f.t, err)
	return env
}

func (f *fixture) call(method string, param interface{}, header http.Header) (int, RPCResponse) {
	f.t.Helper()
	raw, err := json.Marshal(param)
	require.NoError(f.t, err)
	body, err := json.Marshal(RPCRequest{JSONRPC: jsonRPCVersion, Method: method, Params: []json.RawMessage{raw}, ID: 1})
	require.NoError(f.t, err)
	req := httptest.NewRequest(http.MethodPost, "/rpc", bytes.NewReader(body))
	req.RemoteAddr = "10.0.0.1:4000"
	for k, v := range header {
		req.Header[k] = v
	}
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	var resp RPCResponse
	require.NoError(f.t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return rec.Code, resp
}

func decodeResult(t *testing.T, resp RPCResponse, out interface{}) {
	t.Helper()
	require.Nil(t, resp.Error)
	raw, err := json.Marshal(resp.Result)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(raw, out))
}

func (f *fixture) initialize() {
	f.t.Helper()
	env := f.envelope(f.admin, "market_initialize", initializeParams{Name: testMarket, FeeBps: 250})
	status, resp := f.call("market_initialize", env, nil)
	require.Equal(f.t, http.StatusOK, status, "%+v", resp.Error)
}

func (f *fixture) list(price string) {
	f.t.Helper()
	env := f.envelope(f.seller, "market_list", listParams{
		Marketplace: f.market.String(),
		Asset:       f.asset.String(),
		Collection:  f.collection.String(),
		Price:       price,
	})
	status, resp := f.call("market_list", env, nil)
	require.Equal(f.t, http.StatusOK, status, "%+v", resp.Error)
}

func TestSignedMarketplaceFlow(t *testing.T) {
	f := newFixture(t, ServerConfig{})
	f.initialize()

	status, resp := f.call("market_getMarketplace", marketplaceQueryParams{Name: testMarket}, nil)
	require.Equal(t, http.StatusOK, status)
	var market MarketplaceResult
	decodeResult(t, resp, &market)
	require.Equal(t, f.market.String(), market.Address)
	require.Equal(t, uint16(250), market.FeeBps)
	require.Equal(t, f.admin.PublicKey().String(), market.Admin)

	f.list("1000000")

	status, resp = f.call("market_getListing", listingQueryParams{Marketplace: f.market.String(), Asset: f.asset.String()}, nil)
	require.Equal(t, http.StatusOK, status)
	var listing ListingResult
	decodeResult(t, resp, &listing)
	require.Equal(t, "1000000", listing.Price)
	require.Equal(t, uint64(1), listing.VaultAmount)

	env := f.envelope(f.buyer, "market_purchase", purchaseParams{
		Marketplace: f.market.String(),
		Asset:       f.asset.String(),
		Seller:      f.seller.PublicKey().String(),
	})
	status, resp = f.call("market_purchase", env, nil)
	require.Equal(t, http.StatusOK, status, "%+v", resp.Error)
	var sold InstructionResult
	decodeResult(t, resp, &sold)
	require.Equal(t, "25000", sold.Sale.Fee)
	require.Equal(t, "975000", sold.Sale.SellerAmount)
	require.NotEmpty(t, sold.Receipt.ID)

	status, resp = f.call("market_getHolding", holdingParams{Owner: f.buyer.PublicKey().String(), Asset: f.asset.String()}, nil)
	require.Equal(t, http.StatusOK, status)
	var held HoldingResult
	decodeResult(t, resp, &held)
	require.Equal(t, uint64(1), held.Amount)

	status, resp = f.call("market_getBalance", addressParams{Address: sold.Sale.Treasury}, nil)
	require.Equal(t, http.StatusOK, status)
	var bal BalanceResult
	decodeResult(t, resp, &bal)
	require.Equal(t, "25000", bal.Lamports)

	status, resp = f.call("market_getReceipt", receiptParams{ID: sold.Receipt.ID}, nil)
	require.Equal(t, http.StatusOK, status)
	var receipt map[string]interface{}
	decodeResult(t, resp, &receipt)
	require.Equal(t, core.InstructionPurchase, receipt["instruction"])

	status, resp = f.call("market_head", struct{}{}, nil)
	require.Equal(t, http.StatusOK, status)
	var head HeadResult
	decodeResult(t, resp, &head)
	require.Equal(t, uint64(4), head.Height)

	status, resp = f.call("market_getListing", listingQueryParams{Marketplace: f.market.String(), Asset: f.asset.String()}, nil)
	require.Equal(t, http.StatusNotFound, status)
	require.Equal(t, codeMarketBase-(6010-6000), resp.Error.Code)
}

func TestEnvelopeRejections(t *testing.T) {
	f := newFixture(t, ServerConfig{})

	env := f.envelope(f.admin, "market_initialize", initializeParams{Name: testMarket, FeeBps: 250})
	status, _ := f.call("market_initialize", env, nil)
	require.Equal(t, http.StatusOK, status)

	status, resp := f.call("market_initialize", env, nil)
	require.Equal(t, http.StatusConflict, status)
	require.Equal(t, codeReplayed, resp.Error.Code)

	// Signed for another method.
	env = f.envelope(f.seller, "market_delist", delistParams{Marketplace: f.market.String(), Asset: f.asset.String()})
	status, resp = f.call("market_list", env, nil)
	require.Equal(t, http.StatusUnauthorized, status)
	require.Equal(t, codeUnauthorized, resp.Error.Code)

	env = f.envelope(f.seller, "market_delist", delistParams{Marketplace: f.market.String(), Asset: f.asset.String()})
	f.now = f.now.Add(time.Minute)
	status, resp = f.call("market_delist", env, nil)
	require.Equal(t, http.StatusUnauthorized, status)
	require.Equal(t, codeExpired, resp.Error.Code)

	far, err := SignEnvelope(f.seller, "market_delist", delistParams{}, time.Hour, f.now)
	require.NoError(t, err)
	status, resp = f.call("market_delist", far, nil)
	require.Equal(t, http.StatusUnauthorized, status)
	require.Equal(t, codeExpired, resp.Error.Code)
}

func TestMarketErrorsCarryCodeAndName(t *testing.T) {
	f := newFixture(t, ServerConfig{})
	f.initialize()
	f.list("1000000")

	env := f.envelope(f.poor, "market_purchase", purchaseParams{
		Marketplace: f.market.String(),
		Asset:       f.asset.String(),
		Seller:      f.seller.PublicKey().String(),
	})
	status, resp := f.call("market_purchase", env, nil)
	require.Equal(t, http.StatusBadRequest, status)
	require.Equal(t, -32112, resp.Error.Code)
	data, ok := resp.Error.Data.(map[string]interface{})
	require.True(t, ok)
	require.Equal(t, "InsufficientFunds", data["name"])
	require.Equal(t, float64(6012), data["code"])

	env = f.envelope(f.buyer, "market_delist", delistParams{Marketplace: f.market.String(), Asset: f.asset.String()})
	status, resp = f.call("market_delist", env, nil)
	require.Equal(t, http.StatusForbidden, status)
	require.Equal(t, "Unauthorized", resp.Error.Data.(map[string]interface{})["name"])

	env = f.envelope(f.seller, "market_list", listParams{
		Marketplace: f.market.String(),
		Asset:       f.asset.String(),
		Collection:  f.collection.String(),
		Price:       "-1",
	})
	status, resp = f.call("market_list", env, nil)
	require.Equal(t, http.StatusBadRequest, status)
	require.Equal(t, codeInvalidParams, resp.Error.Code)
}

func TestInitializeRequiresOperatorToken(t *testing.T) {
	const secret = "operator-secret"
	f := newFixture(t, ServerConfig{OperatorAuth: NewOperatorAuth(secret, "nftmarket")})

	env := f.envelope(f.admin, "market_initialize", initializeParams{Name: testMarket, FeeBps: 250})
	status, resp := f.call("market_initialize", env, nil)
	require.Equal(t, http.StatusUnauthorized, status)
	require.Equal(t, codeUnauthorized, resp.Error.Code)

	wrongScope, err := IssueOperatorToken(secret, "nftmarket", "ops", "market:read", time.Hour, time.Now())
	require.NoError(t, err)
	status, _ = f.call("market_initialize", env, http.Header{"Authorization": {"Bearer " + wrongScope}})
	require.Equal(t, http.StatusUnauthorized, status)

	token, err := IssueOperatorToken(secret, "nftmarket", "ops", ScopeAdmin, time.Hour, time.Now())
	require.NoError(t, err)
	status, resp = f.call("market_initialize", env, http.Header{"Authorization": {"Bearer " + token}})
	require.Equal(t, http.StatusOK, status, "%+v", resp.Error)
}

func TestRateLimitedRequests(t *testing.T) {
	f := newFixture(t, ServerConfig{RateLimitPerSecond: 0.001, RateLimitBurst: 1})

	status, _ := f.call("market_head", struct{}{}, nil)
	require.Equal(t, http.StatusOK, status)
	status, resp := f.call("market_head", struct{}{}, nil)
	require.Equal(t, http.StatusTooManyRequests, status)
	require.Equal(t, codeRateLimited, resp.Error.Code)
}

func TestUnknownMethodAndDisabledCatalog(t *testing.T) {
	f := newFixture(t, ServerConfig{})

	status, resp := f.call("market_nope", struct{}{}, nil)
	require.Equal(t, http.StatusNotFound, status)
	require.Equal(t, codeMethodNotFound, resp.Error.Code)

	status, resp = f.call("market_listListings", catalogParams{}, nil)
	require.Equal(t, http.StatusServiceUnavailable, status)
	require.Equal(t, codeNotIndexed, resp.Error.Code)

	status, resp = f.call("market_getReceipt", receiptParams{ID: "missing"}, nil)
	require.Equal(t, http.StatusNotFound, status)
	require.Equal(t, codeServerError, resp.Error.Code)
}

func TestHealthz(t *testing.T) {
	f := newFixture(t, ServerConfig{})
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "ok", rec.Body.String())
}
