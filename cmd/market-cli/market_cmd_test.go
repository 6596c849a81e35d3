package main

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"

	"nftmarket/rpc"
)

func stubRPC(t *testing.T, fn func(method string, params interface{}, token string) (json.RawMessage, *rpcError, error)) {
	t.Helper()
	original := marketRPCCall
	marketRPCCall = fn
	t.Cleanup(func() { marketRPCCall = original })
}

func fixedNow(t *testing.T) time.Time {
	t.Helper()
	now := time.Unix(1_700_000_000, 0)
	original := marketNow
	marketNow = func() time.Time { return now }
	t.Cleanup(func() { marketNow = original })
	return now
}

func TestArgValidation(t *testing.T) {
	stubRPC(t, func(method string, _ interface{}, _ string) (json.RawMessage, *rpcError, error) {
		t.Fatalf("unexpected RPC call for method %s", method)
		return nil, nil, nil
	})
	addr := solana.PublicKeyFromBytes(bytes.Repeat([]byte{7}, 32)).String()

	cases := []struct {
		name    string
		args    []string
		wantErr string
	}{
		{name: "usage", args: nil, wantErr: "Usage:"},
		{name: "unknown", args: []string{"mint"}, wantErr: "Unknown command: mint"},
		{name: "initialize without name", args: []string{"initialize", "--key", "k.json"}, wantErr: "--name is required"},
		{name: "initialize fee", args: []string{"initialize", "--name", "m", "--fee-bps", "10001"}, wantErr: "--fee-bps must be <= 10000"},
		{name: "list bad asset", args: []string{"list", "--marketplace", addr, "--asset", "nope", "--collection", addr, "--price", "1"}, wantErr: "--asset must be a base58 address"},
		{name: "list bad price", args: []string{"list", "--marketplace", addr, "--asset", addr, "--collection", addr, "--price", "-5"}, wantErr: "--price must be a lamport amount"},
		{name: "purchase missing seller", args: []string{"purchase", "--marketplace", addr, "--asset", addr}, wantErr: "--seller is required"},
		{name: "signed without key", args: []string{"delist", "--marketplace", addr, "--asset", addr}, wantErr: "--key is required"},
		{name: "receipt", args: []string{"receipt"}, wantErr: "--id is required"},
		{name: "rpc flag", args: []string{"--rpc"}, wantErr: "--rpc requires a value"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var stdout, stderr bytes.Buffer
			if code := run(tc.args, &stdout, &stderr); code != 1 {
				t.Fatalf("exit code = %d, want 1", code)
			}
			if !strings.Contains(stderr.String(), tc.wantErr) {
				t.Fatalf("stderr %q does not contain %q", stderr.String(), tc.wantErr)
			}
		})
	}
}

func TestKeygenAndSignedPurchase(t *testing.T) {
	now := fixedNow(t)
	keyFile := filepath.Join(t.TempDir(), "buyer.json")

	var stdout, stderr bytes.Buffer
	if code := run([]string{"keygen", "--out", keyFile}, &stdout, &stderr); code != 0 {
		t.Fatalf("keygen failed: %s", stderr.String())
	}
	signer := solana.MustPublicKeyFromBase58(strings.TrimSpace(stdout.String()))
	if code := run([]string{"keygen", "--out", keyFile}, io.Discard, &stderr); code != 1 {
		t.Fatalf("keygen overwrote an existing key file")
	}

	addr := solana.PublicKeyFromBytes(bytes.Repeat([]byte{9}, 32)).String()
	var captured *rpc.Envelope
	stubRPC(t, func(method string, params interface{}, token string) (json.RawMessage, *rpcError, error) {
		if method != "market_purchase" {
			t.Fatalf("unexpected method %s", method)
		}
		if token != "tok" {
			t.Fatalf("unexpected token %q", token)
		}
		captured = params.(*rpc.Envelope)
		return json.RawMessage(`{"receipt":{"id":"r-1"}}`), nil, nil
	})

	stdout.Reset()
	stderr.Reset()
	code := run([]string{"purchase", "--key", keyFile, "--operator-token", "tok",
		"--marketplace", addr, "--asset", addr, "--seller", addr}, &stdout, &stderr)
	if code != 0 {
		t.Fatalf("purchase failed: %s", stderr.String())
	}
	if !strings.Contains(stdout.String(), `"r-1"`) {
		t.Fatalf("unexpected output %q", stdout.String())
	}
	if captured.Signer != signer.String() {
		t.Fatalf("signer = %s, want %s", captured.Signer, signer)
	}
	if captured.ExpiresAt != now.Add(time.Minute).Unix() {
		t.Fatalf("unexpected expiry %d", captured.ExpiresAt)
	}
	sig := solana.MustSignatureFromBase58(captured.Signature)
	if !sig.Verify(signer, captured.SigningMessage("market_purchase")) {
		t.Fatalf("envelope signature does not verify")
	}
	var payload map[string]string
	if err := json.Unmarshal(captured.Payload, &payload); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if payload["seller"] != addr {
		t.Fatalf("unexpected payload %v", payload)
	}
}

func TestRPCErrorsAreReported(t *testing.T) {
	stubRPC(t, func(string, interface{}, string) (json.RawMessage, *rpcError, error) {
		return nil, &rpcError{Code: -32110, Message: "marketplace: listing not found", Data: json.RawMessage(`{"name":"ListingNotFound","code":6010}`)}, nil
	})
	addr := solana.PublicKeyFromBytes(bytes.Repeat([]byte{3}, 32)).String()
	var stderr bytes.Buffer
	if code := run([]string{"get-listing", "--marketplace", addr, "--asset", addr}, io.Discard, &stderr); code != 1 {
		t.Fatalf("expected failure exit code")
	}
	if !strings.Contains(stderr.String(), "RPC error -32110") || !strings.Contains(stderr.String(), "ListingNotFound") {
		t.Fatalf("unexpected stderr %q", stderr.String())
	}
}

func TestOperatorToken(t *testing.T) {
	fixedNow(t)
	t.Setenv("TEST_MARKET_SECRET", "s3cret")
	var stdout, stderr bytes.Buffer
	code := run([]string{"operator-token", "--secret-env", "TEST_MARKET_SECRET", "--issuer", "ops"}, &stdout, &stderr)
	if code != 0 {
		t.Fatalf("operator-token failed: %s", stderr.String())
	}
	if parts := strings.Split(strings.TrimSpace(stdout.String()), "."); len(parts) != 3 {
		t.Fatalf("expected a JWT, got %q", stdout.String())
	}
}

func TestCallMarketRPC(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer abc" {
			t.Errorf("unexpected authorization header %q", got)
		}
		var req struct {
			Method string            `json:"method"`
			Params []json.RawMessage `json:"params"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if req.Method != "market_head" || len(req.Params) != 1 {
			t.Errorf("unexpected request %+v", req)
		}
		_, _ = w.Write([]byte(`{"jsonrpc":"2.0","id":1,"result":{"height":3}}`))
	}))
	defer srv.Close()

	original := rpcEndpoint
	rpcEndpoint = srv.URL
	defer func() { rpcEndpoint = original }()

	result, rpcErr, err := callMarketRPC("market_head", map[string]interface{}{}, "abc")
	if err != nil || rpcErr != nil {
		t.Fatalf("callMarketRPC failed: %v %v", err, rpcErr)
	}
	if string(result) != `{"height":3}` {
		t.Fatalf("unexpected result %s", result)
	}
}
