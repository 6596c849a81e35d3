package rpc

import (
	"encoding/json"
	"net/http"

	"nftmarket/core/types"
)

const jsonRPCVersion = "2.0"

const (
	codeParseError     = -32700
	codeInvalidRequest = -32600
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
	codeServerError    = -32000
	codeUnauthorized   = -32001
	codeExpired        = -32002
	codeReplayed       = -32010
	codeRateLimited    = -32020
	codeNotIndexed     = -32030
	// Marketplace failures are reported as codeMarketBase minus the
	// marketplace error code offset, e.g. 6012 becomes -32112.
	codeMarketBase = -32100
)

type RPCRequest struct {
	JSONRPC string            `json:"jsonrpc"`
	Method  string            `json:"method"`
	Params  []json.RawMessage `json:"params"`
	ID      interface{}       `json:"id"`
}

type RPCResponse struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      interface{} `json:"id"`
	Result  interface{} `json:"result,omitempty"`
	Error   *RPCError   `json:"error,omitempty"`
}

type RPCError struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func (e *RPCError) Error() string { return e.Message }

func writeError(w http.ResponseWriter, status int, id interface{}, code int, message string, data interface{}) {
	if status <= 0 {
		status = http.StatusBadRequest
	}
	w.Header().Set("Content-Type", "application/json")
	if status != http.StatusOK {
		w.WriteHeader(status)
	}
	errObj := &RPCError{Code: code, Message: message}
	if data != nil {
		errObj.Data = data
	}
	resp := RPCResponse{JSONRPC: jsonRPCVersion, ID: id, Error: errObj}
	_ = json.NewEncoder(w).Encode(resp)
}

func writeResult(w http.ResponseWriter, id interface{}, result interface{}) {
	w.Header().Set("Content-Type", "application/json")
	resp := RPCResponse{JSONRPC: jsonRPCVersion, ID: id, Result: result}
	_ = json.NewEncoder(w).Encode(resp)
}

type MarketplaceResult struct {
	Address      string `json:"address"`
	Treasury     string `json:"treasury"`
	Admin        string `json:"admin"`
	Name         string `json:"name"`
	FeeBps       uint16 `json:"feeBps"`
	Bump         uint8  `json:"bump"`
	TreasuryBump uint8  `json:"treasuryBump"`
	RewardsBump  uint8  `json:"rewardsBump"`
}

type ListingResult struct {
	Address     string `json:"address"`
	Marketplace string `json:"marketplace"`
	Maker       string `json:"maker"`
	Asset       string `json:"asset"`
	Price       string `json:"price"`
	Bump        uint8  `json:"bump"`
	Vault       string `json:"vault,omitempty"`
	VaultAmount uint64 `json:"vaultAmount"`
}

type SaleResult struct {
	Marketplace  string `json:"marketplace"`
	Asset        string `json:"asset"`
	Seller       string `json:"seller"`
	Buyer        string `json:"buyer"`
	Treasury     string `json:"treasury"`
	Price        string `json:"price"`
	Fee          string `json:"fee"`
	SellerAmount string `json:"sellerAmount"`
}

// InstructionResult wraps the outcome of a mutating call with its receipt.
type InstructionResult struct {
	Receipt     *types.Receipt     `json:"receipt"`
	Marketplace *MarketplaceResult `json:"marketplace,omitempty"`
	Listing     *ListingResult     `json:"listing,omitempty"`
	Sale        *SaleResult        `json:"sale,omitempty"`
}

type BalanceResult struct {
	Address  string `json:"address"`
	Lamports string `json:"lamports"`
}

type HoldingResult struct {
	Owner  string `json:"owner"`
	Asset  string `json:"asset"`
	Amount uint64 `json:"amount"`
}

type HeadResult struct {
	Height uint64 `json:"height"`
	Root   string `json:"root"`
}
