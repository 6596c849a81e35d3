package rpc

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gagliardetto/solana-go"

	"nftmarket/indexer"
	"nftmarket/observability"
	"nftmarket/native/marketplace"
)

type initializeParams struct {
	Name   string `json:"name"`
	FeeBps uint16 `json:"feeBps"`
}

type listParams struct {
	Marketplace string `json:"marketplace"`
	Asset       string `json:"asset"`
	Collection  string `json:"collection"`
	Price       string `json:"price"`
}

type delistParams struct {
	Marketplace string `json:"marketplace"`
	Asset       string `json:"asset"`
}

type purchaseParams struct {
	Marketplace string `json:"marketplace"`
	Asset       string `json:"asset"`
	Seller      string `json:"seller"`
}

type marketplaceQueryParams struct {
	Address string `json:"address,omitempty"`
	Name    string `json:"name,omitempty"`
}

type listingQueryParams struct {
	Marketplace string `json:"marketplace"`
	Asset       string `json:"asset"`
}

type addressParams struct {
	Address string `json:"address"`
}

type holdingParams struct {
	Owner string `json:"owner"`
	Asset string `json:"asset"`
}

type receiptParams struct {
	ID string `json:"id"`
}

type limitParams struct {
	Limit int `json:"limit"`
}

type catalogParams struct {
	Marketplace string `json:"marketplace,omitempty"`
	Owner       string `json:"owner,omitempty"`
	Limit       int    `json:"limit,omitempty"`
	Offset      int    `json:"offset,omitempty"`
}

// openEnvelope decodes the signed envelope of a mutating call, verifies it
// and decodes its payload into out.
func (s *Server) openEnvelope(w http.ResponseWriter, req *RPCRequest, out interface{}) (solana.PublicKey, *RPCError) {
	var env Envelope
	if rpcErr := decodeParams(w, req, &env); rpcErr != nil {
		return solana.PublicKey{}, rpcErr
	}
	signer, err := s.guard.open(req.Method, &env)
	if err != nil {
		s.logRejected(req.Method, &env, err)
		switch err {
		case errEnvelopeExpired, errEnvelopeTooFar:
			return solana.PublicKey{}, fail(w, http.StatusUnauthorized, req.ID, codeExpired, err.Error(), nil)
		case errEnvelopeReplayed:
			observability.RPC().RecordThrottle("replay")
			return solana.PublicKey{}, fail(w, http.StatusConflict, req.ID, codeReplayed, err.Error(), nil)
		default:
			return solana.PublicKey{}, fail(w, http.StatusUnauthorized, req.ID, codeUnauthorized, err.Error(), nil)
		}
	}
	if err := json.Unmarshal(env.Payload, out); err != nil {
		return solana.PublicKey{}, fail(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid payload", err.Error())
	}
	return signer, nil
}

func parseKey(field, raw string) (solana.PublicKey, error) {
	key, err := solana.PublicKeyFromBase58(strings.TrimSpace(raw))
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("%s: %w", field, err)
	}
	return key, nil
}

func parseKeys(fields map[string]string, order ...string) (map[string]solana.PublicKey, error) {
	out := make(map[string]solana.PublicKey, len(order))
	for _, field := range order {
		key, err := parseKey(field, fields[field])
		if err != nil {
			return nil, err
		}
		out[field] = key
	}
	return out, nil
}

func (s *Server) handleInitialize(w http.ResponseWriter, r *http.Request, req *RPCRequest) *RPCError {
	if err := s.auth.require(r, ScopeAdmin); err != nil {
		return fail(w, http.StatusUnauthorized, req.ID, codeUnauthorized, "operator token required", err.Error())
	}
	var params initializeParams
	admin, rpcErr := s.openEnvelope(w, req, &params)
	if rpcErr != nil {
		return rpcErr
	}
	result, err := s.ledger.Initialize(r.Context(), admin, params.Name, params.FeeBps)
	if err != nil {
		return writeMarketError(w, req.ID, err)
	}
	writeResult(w, req.ID, InstructionResult{
		Receipt:     result.Receipt,
		Marketplace: formatMarketplace(result.Address, result.Treasury, result.Marketplace),
	})
	return nil
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request, req *RPCRequest) *RPCError {
	var params listParams
	maker, rpcErr := s.openEnvelope(w, req, &params)
	if rpcErr != nil {
		return rpcErr
	}
	keys, err := parseKeys(map[string]string{
		"marketplace": params.Marketplace,
		"asset":       params.Asset,
		"collection":  params.Collection,
	}, "marketplace", "asset", "collection")
	if err != nil {
		return fail(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
	}
	price, err := strconv.ParseUint(strings.TrimSpace(params.Price), 10, 64)
	if err != nil {
		return fail(w, http.StatusBadRequest, req.ID, codeInvalidParams, "price must be a decimal lamport amount", err.Error())
	}
	result, err := s.ledger.List(r.Context(), maker, keys["marketplace"], keys["asset"], keys["collection"], price)
	if err != nil {
		return writeMarketError(w, req.ID, err)
	}
	listing := formatListing(result.Address, keys["marketplace"], result.Listing)
	listing.Vault = result.Vault.String()
	listing.VaultAmount = 1
	writeResult(w, req.ID, InstructionResult{Receipt: result.Receipt, Listing: listing})
	return nil
}

func (s *Server) handleDelist(w http.ResponseWriter, r *http.Request, req *RPCRequest) *RPCError {
	var params delistParams
	seller, rpcErr := s.openEnvelope(w, req, &params)
	if rpcErr != nil {
		return rpcErr
	}
	keys, err := parseKeys(map[string]string{"marketplace": params.Marketplace, "asset": params.Asset}, "marketplace", "asset")
	if err != nil {
		return fail(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
	}
	result, err := s.ledger.Delist(r.Context(), seller, keys["marketplace"], keys["asset"])
	if err != nil {
		return writeMarketError(w, req.ID, err)
	}
	addr, _, _ := marketplace.ListingAddress(s.ledger.Program(), keys["marketplace"], keys["asset"])
	writeResult(w, req.ID, InstructionResult{Receipt: result.Receipt, Listing: formatListing(addr, keys["marketplace"], result.Listing)})
	return nil
}

func (s *Server) handlePurchase(w http.ResponseWriter, r *http.Request, req *RPCRequest) *RPCError {
	var params purchaseParams
	buyer, rpcErr := s.openEnvelope(w, req, &params)
	if rpcErr != nil {
		return rpcErr
	}
	keys, err := parseKeys(map[string]string{
		"marketplace": params.Marketplace,
		"asset":       params.Asset,
		"seller":      params.Seller,
	}, "marketplace", "asset", "seller")
	if err != nil {
		return fail(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
	}
	result, err := s.ledger.Purchase(r.Context(), buyer, keys["seller"], keys["marketplace"], keys["asset"])
	if err != nil {
		return writeMarketError(w, req.ID, err)
	}
	writeResult(w, req.ID, InstructionResult{Receipt: result.Receipt, Sale: formatSale(result.Sale)})
	return nil
}

func (s *Server) handleGetMarketplace(w http.ResponseWriter, _ *http.Request, req *RPCRequest) *RPCError {
	var params marketplaceQueryParams
	if rpcErr := decodeParams(w, req, &params); rpcErr != nil {
		return rpcErr
	}
	var (
		addr solana.PublicKey
		err  error
	)
	switch {
	case strings.TrimSpace(params.Address) != "":
		addr, err = parseKey("address", params.Address)
	case strings.TrimSpace(params.Name) != "":
		addr, _, err = marketplace.MarketplaceAddress(s.ledger.Program(), params.Name)
	default:
		err = fmt.Errorf("address or name required")
	}
	if err != nil {
		return fail(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
	}
	cfg, treasury, err := s.ledger.Marketplace(addr)
	if err != nil {
		return writeMarketError(w, req.ID, err)
	}
	writeResult(w, req.ID, formatMarketplace(addr, treasury, cfg))
	return nil
}

func (s *Server) handleGetListing(w http.ResponseWriter, _ *http.Request, req *RPCRequest) *RPCError {
	var params listingQueryParams
	if rpcErr := decodeParams(w, req, &params); rpcErr != nil {
		return rpcErr
	}
	keys, err := parseKeys(map[string]string{"marketplace": params.Marketplace, "asset": params.Asset}, "marketplace", "asset")
	if err != nil {
		return fail(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
	}
	listing, addr, vault, err := s.ledger.Listing(keys["marketplace"], keys["asset"])
	if err != nil {
		return writeMarketError(w, req.ID, err)
	}
	result := formatListing(addr, keys["marketplace"], listing)
	if vault != nil {
		result.Vault = vault.Address.String()
		result.VaultAmount = vault.Amount
	}
	writeResult(w, req.ID, result)
	return nil
}

func (s *Server) handleGetBalance(w http.ResponseWriter, _ *http.Request, req *RPCRequest) *RPCError {
	var params addressParams
	if rpcErr := decodeParams(w, req, &params); rpcErr != nil {
		return rpcErr
	}
	addr, err := parseKey("address", params.Address)
	if err != nil {
		return fail(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
	}
	bal, err := s.ledger.Balance(addr)
	if err != nil {
		return writeMarketError(w, req.ID, err)
	}
	writeResult(w, req.ID, BalanceResult{Address: addr.String(), Lamports: strconv.FormatUint(bal, 10)})
	return nil
}

func (s *Server) handleGetHolding(w http.ResponseWriter, _ *http.Request, req *RPCRequest) *RPCError {
	var params holdingParams
	if rpcErr := decodeParams(w, req, &params); rpcErr != nil {
		return rpcErr
	}
	keys, err := parseKeys(map[string]string{"owner": params.Owner, "asset": params.Asset}, "owner", "asset")
	if err != nil {
		return fail(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
	}
	held, err := s.ledger.Holding(keys["owner"], keys["asset"])
	if err != nil {
		return writeMarketError(w, req.ID, err)
	}
	writeResult(w, req.ID, HoldingResult{Owner: keys["owner"].String(), Asset: keys["asset"].String(), Amount: held})
	return nil
}

func (s *Server) handleGetReceipt(w http.ResponseWriter, _ *http.Request, req *RPCRequest) *RPCError {
	var params receiptParams
	if rpcErr := decodeParams(w, req, &params); rpcErr != nil {
		return rpcErr
	}
	if strings.TrimSpace(params.ID) == "" {
		return fail(w, http.StatusBadRequest, req.ID, codeInvalidParams, "id required", nil)
	}
	receipt, err := s.ledger.Receipt(params.ID)
	if err != nil {
		return writeMarketError(w, req.ID, err)
	}
	writeResult(w, req.ID, receipt)
	return nil
}

func (s *Server) handleRecentReceipts(w http.ResponseWriter, _ *http.Request, req *RPCRequest) *RPCError {
	params := limitParams{Limit: 20}
	if len(req.Params) > 0 {
		if rpcErr := decodeParams(w, req, &params); rpcErr != nil {
			return rpcErr
		}
	}
	if params.Limit <= 0 || params.Limit > 200 {
		return fail(w, http.StatusBadRequest, req.ID, codeInvalidParams, "limit must be between 1 and 200", nil)
	}
	receipts, err := s.ledger.RecentReceipts(params.Limit)
	if err != nil {
		return writeMarketError(w, req.ID, err)
	}
	writeResult(w, req.ID, receipts)
	return nil
}

func (s *Server) handleHead(w http.ResponseWriter, _ *http.Request, req *RPCRequest) *RPCError {
	height, root := s.ledger.Head()
	writeResult(w, req.ID, HeadResult{Height: height, Root: root.Hex()})
	return nil
}

func (s *Server) catalogQuery(w http.ResponseWriter, req *RPCRequest) (indexer.Query, *RPCError) {
	if s.catalog == nil {
		return indexer.Query{}, fail(w, http.StatusServiceUnavailable, req.ID, codeNotIndexed, "indexer disabled", nil)
	}
	var params catalogParams
	if len(req.Params) > 0 {
		if rpcErr := decodeParams(w, req, &params); rpcErr != nil {
			return indexer.Query{}, rpcErr
		}
	}
	for field, raw := range map[string]string{"marketplace": params.Marketplace, "owner": params.Owner} {
		if strings.TrimSpace(raw) == "" {
			continue
		}
		if _, err := parseKey(field, raw); err != nil {
			return indexer.Query{}, fail(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		}
	}
	return indexer.Query{
		Marketplace: strings.TrimSpace(params.Marketplace),
		Owner:       strings.TrimSpace(params.Owner),
		Limit:       params.Limit,
		Offset:      params.Offset,
	}, nil
}

func (s *Server) handleListListings(w http.ResponseWriter, _ *http.Request, req *RPCRequest) *RPCError {
	q, rpcErr := s.catalogQuery(w, req)
	if rpcErr != nil {
		return rpcErr
	}
	rows, err := s.catalog.ActiveListings(q)
	if err != nil {
		return writeMarketError(w, req.ID, err)
	}
	out := make([]ListingResult, 0, len(rows))
	for _, row := range rows {
		out = append(out, ListingResult{
			Address:     row.Address,
			Marketplace: row.Marketplace,
			Maker:       row.Maker,
			Asset:       row.Asset,
			Price:       strconv.FormatUint(row.Price, 10),
			Vault:       row.Vault,
			VaultAmount: 1,
		})
	}
	writeResult(w, req.ID, out)
	return nil
}

func (s *Server) handleListSales(w http.ResponseWriter, _ *http.Request, req *RPCRequest) *RPCError {
	q, rpcErr := s.catalogQuery(w, req)
	if rpcErr != nil {
		return rpcErr
	}
	rows, err := s.catalog.Sales(q)
	if err != nil {
		return writeMarketError(w, req.ID, err)
	}
	out := make([]SaleResult, 0, len(rows))
	for _, row := range rows {
		out = append(out, SaleResult{
			Marketplace:  row.Marketplace,
			Asset:        row.Asset,
			Seller:       row.Seller,
			Buyer:        row.Buyer,
			Treasury:     row.Treasury,
			Price:        strconv.FormatUint(row.Price, 10),
			Fee:          strconv.FormatUint(row.Fee, 10),
			SellerAmount: strconv.FormatUint(row.SellerAmount, 10),
		})
	}
	writeResult(w, req.ID, out)
	return nil
}

func formatMarketplace(addr, treasury solana.PublicKey, cfg *marketplace.Marketplace) *MarketplaceResult {
	if cfg == nil {
		return nil
	}
	return &MarketplaceResult{
		Address:      addr.String(),
		Treasury:     treasury.String(),
		Admin:        cfg.Admin.String(),
		Name:         cfg.Name,
		FeeBps:       cfg.FeeBps,
		Bump:         cfg.Bump,
		TreasuryBump: cfg.TreasuryBump,
		RewardsBump:  cfg.RewardsBump,
	}
}

func formatListing(addr, market solana.PublicKey, l *marketplace.Listing) *ListingResult {
	if l == nil {
		return nil
	}
	return &ListingResult{
		Address:     addr.String(),
		Marketplace: market.String(),
		Maker:       l.Maker.String(),
		Asset:       l.Asset.String(),
		Price:       strconv.FormatUint(l.Price, 10),
		Bump:        l.Bump,
	}
}

func formatSale(sale *marketplace.Sale) *SaleResult {
	if sale == nil || sale.Listing == nil {
		return nil
	}
	return &SaleResult{
		Marketplace:  sale.Marketplace.String(),
		Asset:        sale.Listing.Asset.String(),
		Seller:       sale.Listing.Maker.String(),
		Buyer:        sale.Buyer.String(),
		Treasury:     sale.Treasury.String(),
		Price:        strconv.FormatUint(sale.Listing.Price, 10),
		Fee:          strconv.FormatUint(sale.Fee, 10),
		SellerAmount: strconv.FormatUint(sale.SellerAmount, 10),
	}
}
