package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gagliardetto/solana-go"

	"nftmarket/rpc"
)

type rpcError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

var (
	rpcEndpoint   = defaultRPCEndpoint
	marketNow     = time.Now
	marketRPCCall = callMarketRPC
)

func runMarketCommand(args []string, stdout, stderr io.Writer) int {
	switch args[0] {
	case "keygen":
		return runKeygen(args[1:], stdout, stderr)
	case "operator-token":
		return runOperatorToken(args[1:], stdout, stderr)
	case "initialize":
		return runInitialize(args[1:], stdout, stderr)
	case "list":
		return runList(args[1:], stdout, stderr)
	case "delist":
		return runDelist(args[1:], stdout, stderr)
	case "purchase":
		return runPurchase(args[1:], stdout, stderr)
	case "get-marketplace":
		return runGetMarketplace(args[1:], stdout, stderr)
	case "get-listing":
		return runGetListing(args[1:], stdout, stderr)
	case "balance":
		return runBalance(args[1:], stdout, stderr)
	case "receipt":
		return runReceipt(args[1:], stdout, stderr)
	case "head":
		return runQuery("market_head", map[string]interface{}{}, stdout, stderr)
	default:
		fmt.Fprintf(stderr, "Unknown command: %s\n", args[0])
		fmt.Fprintln(stderr, usage())
		return 1
	}
}

func runKeygen(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("keygen", stderr)
	var out string
	fs.StringVar(&out, "out", "", "path of the keypair file to write")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if strings.TrimSpace(out) == "" {
		return printError(stderr, "--out is required")
	}
	if _, err := os.Stat(out); err == nil {
		return printError(stderr, fmt.Sprintf("%s already exists", out))
	}
	key, err := solana.NewRandomPrivateKey()
	if err != nil {
		return printError(stderr, err.Error())
	}
	// Same layout as solana-keygen: a JSON array of the 64 key bytes.
	raw := make([]int, len(key))
	for i, b := range key {
		raw[i] = int(b)
	}
	encoded, err := json.Marshal(raw)
	if err != nil {
		return printError(stderr, err.Error())
	}
	if err := os.MkdirAll(filepath.Dir(out), 0o700); err != nil {
		return printError(stderr, err.Error())
	}
	if err := os.WriteFile(out, encoded, 0o600); err != nil {
		return printError(stderr, err.Error())
	}
	fmt.Fprintln(stdout, key.PublicKey().String())
	return 0
}

func runOperatorToken(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("operator-token", stderr)
	var (
		secretEnv string
		issuer    string
		subject   string
		ttl       time.Duration
	)
	fs.StringVar(&secretEnv, "secret-env", "MARKET_JWT_SECRET", "environment variable holding the HS256 secret")
	fs.StringVar(&issuer, "issuer", "", "token issuer")
	fs.StringVar(&subject, "subject", "operator", "token subject")
	fs.DurationVar(&ttl, "ttl", time.Hour, "token lifetime")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	secret := strings.TrimSpace(os.Getenv(secretEnv))
	if secret == "" {
		return printError(stderr, fmt.Sprintf("%s is not set", secretEnv))
	}
	if ttl <= 0 {
		return printError(stderr, "--ttl must be positive")
	}
	token, err := rpc.IssueOperatorToken(secret, issuer, subject, rpc.ScopeAdmin, ttl, marketNow())
	if err != nil {
		return printError(stderr, err.Error())
	}
	fmt.Fprintln(stdout, token)
	return 0
}

type signedFlags struct {
	keyFile string
	ttl     time.Duration
	token   string
}

func (s *signedFlags) register(fs *flag.FlagSet) {
	fs.StringVar(&s.keyFile, "key", "", "keypair file of the signer")
	fs.DurationVar(&s.ttl, "ttl", time.Minute, "envelope lifetime")
	fs.StringVar(&s.token, "operator-token", os.Getenv("MARKET_OPERATOR_TOKEN"), "operator bearer token")
}

func runInitialize(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("initialize", stderr)
	var (
		signed signedFlags
		name   string
		feeBps uint
	)
	signed.register(fs)
	fs.StringVar(&name, "name", "", "marketplace name (at most 32 bytes)")
	fs.UintVar(&feeBps, "fee-bps", 0, "fee in basis points")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if strings.TrimSpace(name) == "" {
		return printError(stderr, "--name is required")
	}
	if feeBps > 10_000 {
		return printError(stderr, "--fee-bps must be <= 10000")
	}
	return runSigned("market_initialize", signed, map[string]interface{}{
		"name":   name,
		"feeBps": feeBps,
	}, stdout, stderr)
}

func runList(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("list", stderr)
	var (
		signed                          signedFlags
		market, asset, collection, price string
	)
	signed.register(fs)
	fs.StringVar(&market, "marketplace", "", "marketplace address")
	fs.StringVar(&asset, "asset", "", "asset address")
	fs.StringVar(&collection, "collection", "", "collection the asset belongs to")
	fs.StringVar(&price, "price", "", "price in lamports")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if err := requireKeys(map[string]string{"marketplace": market, "asset": asset, "collection": collection}); err != nil {
		return printError(stderr, err.Error())
	}
	if _, err := strconv.ParseUint(strings.TrimSpace(price), 10, 64); err != nil {
		return printError(stderr, "--price must be a lamport amount")
	}
	return runSigned("market_list", signed, map[string]interface{}{
		"marketplace": market,
		"asset":       asset,
		"collection":  collection,
		"price":       strings.TrimSpace(price),
	}, stdout, stderr)
}

func runDelist(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("delist", stderr)
	var (
		signed       signedFlags
		market, asset string
	)
	signed.register(fs)
	fs.StringVar(&market, "marketplace", "", "marketplace address")
	fs.StringVar(&asset, "asset", "", "asset address")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if err := requireKeys(map[string]string{"marketplace": market, "asset": asset}); err != nil {
		return printError(stderr, err.Error())
	}
	return runSigned("market_delist", signed, map[string]interface{}{
		"marketplace": market,
		"asset":       asset,
	}, stdout, stderr)
}

func runPurchase(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("purchase", stderr)
	var (
		signed               signedFlags
		market, asset, seller string
	)
	signed.register(fs)
	fs.StringVar(&market, "marketplace", "", "marketplace address")
	fs.StringVar(&asset, "asset", "", "asset address")
	fs.StringVar(&seller, "seller", "", "seller recorded on the listing")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if err := requireKeys(map[string]string{"marketplace": market, "asset": asset, "seller": seller}); err != nil {
		return printError(stderr, err.Error())
	}
	return runSigned("market_purchase", signed, map[string]interface{}{
		"marketplace": market,
		"asset":       asset,
		"seller":      seller,
	}, stdout, stderr)
}

func runGetMarketplace(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("get-marketplace", stderr)
	var name, address string
	fs.StringVar(&name, "name", "", "marketplace name")
	fs.StringVar(&address, "address", "", "marketplace address")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if strings.TrimSpace(name) == "" && strings.TrimSpace(address) == "" {
		return printError(stderr, "--name or --address is required")
	}
	return runQuery("market_getMarketplace", map[string]interface{}{"name": name, "address": address}, stdout, stderr)
}

func runGetListing(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("get-listing", stderr)
	var market, asset string
	fs.StringVar(&market, "marketplace", "", "marketplace address")
	fs.StringVar(&asset, "asset", "", "asset address")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if err := requireKeys(map[string]string{"marketplace": market, "asset": asset}); err != nil {
		return printError(stderr, err.Error())
	}
	return runQuery("market_getListing", map[string]interface{}{"marketplace": market, "asset": asset}, stdout, stderr)
}

func runBalance(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("balance", stderr)
	var address string
	fs.StringVar(&address, "address", "", "account address")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if err := requireKeys(map[string]string{"address": address}); err != nil {
		return printError(stderr, err.Error())
	}
	return runQuery("market_getBalance", map[string]interface{}{"address": address}, stdout, stderr)
}

func runReceipt(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("receipt", stderr)
	var id string
	fs.StringVar(&id, "id", "", "receipt id")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if strings.TrimSpace(id) == "" {
		return printError(stderr, "--id is required")
	}
	return runQuery("market_getReceipt", map[string]interface{}{"id": id}, stdout, stderr)
}

func runSigned(method string, signed signedFlags, payload map[string]interface{}, stdout, stderr io.Writer) int {
	if strings.TrimSpace(signed.keyFile) == "" {
		return printError(stderr, "--key is required")
	}
	key, err := solana.PrivateKeyFromSolanaKeygenFile(signed.keyFile)
	if err != nil {
		return printError(stderr, fmt.Sprintf("load key: %v", err))
	}
	env, err := rpc.SignEnvelope(key, method, payload, signed.ttl, marketNow())
	if err != nil {
		return printError(stderr, err.Error())
	}
	result, rpcErr, err := marketRPCCall(method, env, strings.TrimSpace(signed.token))
	if err != nil {
		return handleRPCCallError(stderr, err)
	}
	if rpcErr != nil {
		return handleRPCError(stderr, rpcErr)
	}
	writeRPCResult(stdout, result)
	return 0
}

func runQuery(method string, params interface{}, stdout, stderr io.Writer) int {
	result, rpcErr, err := marketRPCCall(method, params, "")
	if err != nil {
		return handleRPCCallError(stderr, err)
	}
	if rpcErr != nil {
		return handleRPCError(stderr, rpcErr)
	}
	writeRPCResult(stdout, result)
	return 0
}

func requireKeys(fields map[string]string) error {
	for _, name := range []string{"marketplace", "asset", "collection", "seller", "address"} {
		raw, ok := fields[name]
		if !ok {
			continue
		}
		if strings.TrimSpace(raw) == "" {
			return fmt.Errorf("--%s is required", name)
		}
		if _, err := solana.PublicKeyFromBase58(strings.TrimSpace(raw)); err != nil {
			return fmt.Errorf("--%s must be a base58 address", name)
		}
	}
	return nil
}

func newFlagSet(name string, stderr io.Writer) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(stderr)
	return fs
}

func printError(w io.Writer, msg string) int {
	fmt.Fprintf(w, "Error: %s\n", msg)
	return 1
}

func handleRPCError(w io.Writer, err *rpcError) int {
	fmt.Fprintf(w, "RPC error %d: %s\n", err.Code, err.Message)
	if len(err.Data) > 0 {
		fmt.Fprintf(w, "%s\n", err.Data)
	}
	return 1
}

func handleRPCCallError(w io.Writer, err error) int {
	fmt.Fprintf(w, "RPC call failed: %v\n", err)
	return 1
}

func writeRPCResult(w io.Writer, result json.RawMessage) {
	if len(result) == 0 {
		fmt.Fprintln(w, "null")
		return
	}
	var pretty bytes.Buffer
	if err := json.Indent(&pretty, result, "", "  "); err != nil {
		_, _ = w.Write(result)
		fmt.Fprintln(w)
		return
	}
	fmt.Fprintln(w, pretty.String())
}

func callMarketRPC(method string, params interface{}, token string) (json.RawMessage, *rpcError, error) {
	body, err := json.Marshal(map[string]interface{}{
		"jsonrpc": "2.0",
		"id":      1,
		"method":  method,
		"params":  []interface{}{params},
	})
	if err != nil {
		return nil, nil, err
	}
	req, err := http.NewRequest(http.MethodPost, rpcEndpoint, bytes.NewReader(body))
	if err != nil {
		return nil, nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	client := &http.Client{Timeout: 15 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return nil, nil, err
	}
	defer resp.Body.Close()

	var rpcResp struct {
		Result json.RawMessage `json:"result"`
		Error  *rpcError       `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&rpcResp); err != nil {
		return nil, nil, fmt.Errorf("failed to decode RPC response (HTTP %d): %w", resp.StatusCode, err)
	}
	return rpcResp.Result, rpcResp.Error, nil
}
