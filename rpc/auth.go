package rpc

import (
	"errors"
	"net/http"
	"strings"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
)

// ScopeAdmin is required on operator tokens for marketplace creation.
const ScopeAdmin = "market:admin"

// OperatorAuth validates HS256 bearer tokens issued to marketplace
// operators. A nil *OperatorAuth accepts every request.
type OperatorAuth struct {
	secret    []byte
	issuer    string
	clockSkew time.Duration
}

// NewOperatorAuth returns nil when secret is empty.
func NewOperatorAuth(secret, issuer string) *OperatorAuth {
	trimmed := strings.TrimSpace(secret)
	if trimmed == "" {
		return nil
	}
	return &OperatorAuth{secret: []byte(trimmed), issuer: strings.TrimSpace(issuer), clockSkew: 2 * time.Minute}
}

func (a *OperatorAuth) require(r *http.Request, scope string) error {
	if a == nil {
		return nil
	}
	tokenString := extractBearer(r.Header.Get("Authorization"))
	if tokenString == "" {
		return errors.New("missing bearer token")
	}
	opts := []jwt.ParserOption{jwt.WithLeeway(a.clockSkew), jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if a.issuer != "" {
		opts = append(opts, jwt.WithIssuer(a.issuer))
	}
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		return a.secret, nil
	}, opts...)
	if err != nil {
		return err
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return errors.New("token invalid")
	}
	if !hasScope(claims, scope) {
		return errors.New("insufficient scope")
	}
	return nil
}

// IssueOperatorToken signs a token carrying scope for ttl.
func IssueOperatorToken(secret, issuer, subject, scope string, ttl time.Duration, now time.Time) (string, error) {
	claims := jwt.MapClaims{
		"sub":   subject,
		"scope": scope,
		"iat":   now.Unix(),
		"exp":   now.Add(ttl).Unix(),
	}
	if issuer != "" {
		claims["iss"] = issuer
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(strings.TrimSpace(secret)))
}

func hasScope(claims jwt.MapClaims, scope string) bool {
	raw, _ := claims["scope"].(string)
	for _, field := range strings.Fields(raw) {
		if field == scope {
			return true
		}
	}
	return false
}

func extractBearer(header string) string {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}
