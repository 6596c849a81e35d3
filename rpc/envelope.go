package rpc

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
)

var (
	errEnvelopeSignature = errors.New("signature does not match signer")
	errEnvelopeExpired   = errors.New("envelope expired")
	errEnvelopeTooFar    = errors.New("envelope expiry exceeds allowed window")
	errEnvelopeReplayed  = errors.New("envelope already processed")
)

// Envelope carries a mutating call's payload signed by the acting key. The
// signature covers the method, nonce, expiry and raw payload bytes so a
// signed envelope cannot be replayed against another method.
type Envelope struct {
	Signer    string          `json:"signer"`
	Nonce     string          `json:"nonce"`
	ExpiresAt int64           `json:"expiresAt"`
	Payload   json.RawMessage `json:"payload"`
	Signature string          `json:"signature"`
}

// SigningMessage returns the bytes signed for method.
func (e *Envelope) SigningMessage(method string) []byte {
	var b strings.Builder
	b.WriteString(method)
	b.WriteByte('\n')
	b.WriteString(e.Nonce)
	b.WriteByte('\n')
	b.WriteString(strconv.FormatInt(e.ExpiresAt, 10))
	b.WriteByte('\n')
	b.Write(e.Payload)
	return []byte(b.String())
}

// SignEnvelope encodes payload and signs it for method with key. The
// envelope expires ttl after now.
func SignEnvelope(key solana.PrivateKey, method string, payload interface{}, ttl time.Duration, now time.Time) (*Envelope, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode payload: %w", err)
	}
	env := &Envelope{
		Signer:    key.PublicKey().String(),
		Nonce:     uuid.NewString(),
		ExpiresAt: now.Add(ttl).Unix(),
		Payload:   raw,
	}
	sig, err := key.Sign(env.SigningMessage(method))
	if err != nil {
		return nil, fmt.Errorf("sign envelope: %w", err)
	}
	env.Signature = sig.String()
	return env, nil
}

// replayGuard remembers accepted signatures until their envelopes expire.
type replayGuard struct {
	seen   *cache.Cache
	maxTTL time.Duration
	now    func() time.Time
}

func newReplayGuard(maxTTL time.Duration, now func() time.Time) *replayGuard {
	if maxTTL <= 0 {
		maxTTL = 2 * time.Minute
	}
	if now == nil {
		now = time.Now
	}
	return &replayGuard{seen: cache.New(maxTTL, maxTTL), maxTTL: maxTTL, now: now}
}

// open verifies env for method and returns the signer. Each signature is
// accepted once.
func (g *replayGuard) open(method string, env *Envelope) (solana.PublicKey, error) {
	signer, err := solana.PublicKeyFromBase58(strings.TrimSpace(env.Signer))
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("invalid signer: %w", err)
	}
	sig, err := solana.SignatureFromBase58(strings.TrimSpace(env.Signature))
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("invalid signature: %w", err)
	}
	if !sig.Verify(signer, env.SigningMessage(method)) {
		return solana.PublicKey{}, errEnvelopeSignature
	}
	now := g.now()
	expires := time.Unix(env.ExpiresAt, 0)
	if !now.Before(expires) {
		return solana.PublicKey{}, errEnvelopeExpired
	}
	remaining := expires.Sub(now)
	if remaining > g.maxTTL {
		return solana.PublicKey{}, errEnvelopeTooFar
	}
	if err := g.seen.Add(sig.String(), struct{}{}, remaining); err != nil {
		return solana.PublicKey{}, errEnvelopeReplayed
	}
	return signer, nil
}
