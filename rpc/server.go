package rpc

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"nftmarket/core"
	"nftmarket/indexer"
	"nftmarket/observability"
	"nftmarket/observability/logging"
)

// Catalog answers the indexed listing and sale queries.
type Catalog interface {
	ActiveListings(q indexer.Query) ([]indexer.Listing, error)
	Sales(q indexer.Query) ([]indexer.Sale, error)
}

// ServerConfig configures the JSON-RPC server.
type ServerConfig struct {
	MaxBodyBytes       int64
	SignatureTTL       time.Duration
	RateLimitPerSecond float64
	RateLimitBurst     int
	OperatorAuth       *OperatorAuth
	Logger             *slog.Logger
	Now                func() time.Time
}

type handlerFunc func(w http.ResponseWriter, r *http.Request, req *RPCRequest) *RPCError

type Server struct {
	ledger   *core.Ledger
	catalog  Catalog
	guard    *replayGuard
	limiter  *RateLimiter
	auth     *OperatorAuth
	logger   *slog.Logger
	maxBody  int64
	handlers map[string]handlerFunc
}

// NewServer wires the JSON-RPC methods over ledger. catalog may be nil when
// the indexer is disabled.
func NewServer(ledger *core.Ledger, catalog Catalog, cfg ServerConfig) (*Server, error) {
	if ledger == nil {
		return nil, fmt.Errorf("rpc: ledger required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	maxBody := cfg.MaxBodyBytes
	if maxBody <= 0 {
		maxBody = 1 << 20
	}
	s := &Server{
		ledger:  ledger,
		catalog: catalog,
		guard:   newReplayGuard(cfg.SignatureTTL, cfg.Now),
		limiter: NewRateLimiter(cfg.RateLimitPerSecond, cfg.RateLimitBurst),
		auth:    cfg.OperatorAuth,
		logger:  logger.With("component", "rpc"),
		maxBody: maxBody,
	}
	s.handlers = map[string]handlerFunc{
		"market_initialize":     s.handleInitialize,
		"market_list":           s.handleList,
		"market_delist":         s.handleDelist,
		"market_purchase":       s.handlePurchase,
		"market_getMarketplace": s.handleGetMarketplace,
		"market_getListing":     s.handleGetListing,
		"market_getBalance":     s.handleGetBalance,
		"market_getHolding":     s.handleGetHolding,
		"market_getReceipt":     s.handleGetReceipt,
		"market_recentReceipts": s.handleRecentReceipts,
		"market_head":           s.handleHead,
		"market_listListings":   s.handleListListings,
		"market_listSales":      s.handleListSales,
	}
	return s, nil
}

// Handler returns the HTTP routes: /healthz, /metrics and POST /rpc.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())
	r.With(s.limiter.Middleware).Post("/rpc", s.handle)
	return otelhttp.NewHandler(r, "nftmarket.rpc")
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	reader := http.MaxBytesReader(w, r.Body, s.maxBody)
	defer func() {
		_ = reader.Close()
	}()

	body, err := io.ReadAll(reader)
	if err != nil {
		status := http.StatusBadRequest
		message := "failed to read request body"
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			status = http.StatusRequestEntityTooLarge
			message = fmt.Sprintf("request body exceeds %d bytes", s.maxBody)
		}
		writeError(w, status, nil, codeInvalidRequest, message, err.Error())
		return
	}
	if len(bytes.TrimSpace(body)) == 0 {
		writeError(w, http.StatusBadRequest, nil, codeInvalidRequest, "request body required", nil)
		return
	}

	req := &RPCRequest{}
	if err := json.Unmarshal(body, req); err != nil {
		writeError(w, http.StatusBadRequest, nil, codeParseError, "invalid JSON payload", err.Error())
		return
	}
	if req.JSONRPC != "" && req.JSONRPC != jsonRPCVersion {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidRequest, "unsupported jsonrpc version", req.JSONRPC)
		return
	}
	if req.Method == "" {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidRequest, "method required", nil)
		return
	}

	start := time.Now()
	handler, ok := s.handlers[req.Method]
	if !ok {
		observability.RPC().Observe(req.Method, codeMethodNotFound, time.Since(start))
		writeError(w, http.StatusNotFound, req.ID, codeMethodNotFound, fmt.Sprintf("unknown method %s", req.Method), nil)
		return
	}
	code := 0
	if rpcErr := handler(w, r, req); rpcErr != nil {
		code = rpcErr.Code
	}
	observability.RPC().Observe(req.Method, code, time.Since(start))
}

// decodeParams unmarshals the single parameter object of req into out.
func decodeParams(w http.ResponseWriter, req *RPCRequest, out interface{}) *RPCError {
	if len(req.Params) != 1 {
		return fail(w, http.StatusBadRequest, req.ID, codeInvalidParams, "exactly one parameter object expected", nil)
	}
	if err := json.Unmarshal(req.Params[0], out); err != nil {
		return fail(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid parameter object", err.Error())
	}
	return nil
}

// fail writes the error response and returns it for metrics.
func fail(w http.ResponseWriter, status int, id interface{}, code int, message string, data interface{}) *RPCError {
	writeError(w, status, id, code, message, data)
	return &RPCError{Code: code, Message: message, Data: data}
}

func (s *Server) logRejected(method string, env *Envelope, err error) {
	s.logger.Warn("envelope rejected",
		slog.String("method", method),
		slog.String("signer", env.Signer),
		logging.MaskField("signature", env.Signature),
		slog.Any("error", err))
}
