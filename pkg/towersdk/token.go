package towersdk

import (
	"crypto/sha256"
	"encoding/base64"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// DefaultTokenLifetime is used when the controller reports no expiry for a new
// token and the token carries no exp claim either.
const DefaultTokenLifetime = 30 * time.Minute

// Token is an opaque credential issued by the controller. A Token never changes
// once issued; authenticating again produces a new Token.
type Token struct {
	value    string
	url      string
	issuedAt time.Time
	lifetime time.Duration
}

// NewToken creates a token issued at issuedAt that is valid for lifetime.
func NewToken(value string, issuedAt time.Time, lifetime time.Duration) *Token {
	return &Token{
		value:    value,
		issuedAt: issuedAt,
		lifetime: lifetime,
	}
}

// Value returns the bearer value sent in the Authorization header.
func (t *Token) Value() string { return t.value }

// IssuedAt returns the session clock reading when the token was issued.
func (t *Token) IssuedAt() time.Time { return t.issuedAt }

// Lifetime returns how long the token is valid after IssuedAt.
func (t *Token) Lifetime() time.Duration { return t.lifetime }

// ExpiresAt returns the first instant at which the token is no longer valid.
func (t *Token) ExpiresAt() time.Time { return t.issuedAt.Add(t.lifetime) }

// URL returns the controller resource URL of the token, empty if unknown.
func (t *Token) URL() string { return t.url }

// Fingerprint returns a short SHA-256 fingerprint of the token value. Equal
// tokens share a fingerprint, so log lines can be matched without the secret.
func (t *Token) Fingerprint() string {
	sum := sha256.Sum256([]byte(t.value))
	return base64.RawURLEncoding.EncodeToString(sum[:])[:12]
}

// String hides the token value so a Token can be logged safely.
func (t *Token) String() string {
	if t == nil {
		return "<nil>"
	}
	return "Token(expires=" + t.ExpiresAt().Format(time.RFC3339) + ", fp=" + t.Fingerprint() + ")"
}

// Credentials are the login credentials exchanged for a Token.
type Credentials struct {
	Username string
	Password string
}

// tokenResponse is the body returned when a token is created.
type tokenResponse struct {
	ID      int        `json:"id"`
	URL     string     `json:"url"`
	Token   string     `json:"token"`
	Expires *time.Time `json:"expires"`
}

// tokenLifetime works out how long a freshly issued token lives. The
// controller's "expires" wins; otherwise the exp claim of a JWT-shaped token is
// used; otherwise fallback.
func tokenLifetime(resp tokenResponse, issuedAt time.Time, fallback time.Duration) time.Duration {
	if resp.Expires != nil && !resp.Expires.IsZero() {
		return resp.Expires.Sub(issuedAt)
	}

	if exp, ok := jwtExpiry(resp.Token); ok {
		return exp.Sub(issuedAt)
	}

	return fallback
}

// jwtExpiry reads the exp claim of value without verifying its signature. The
// controller is the only party that can verify it, we only need the instant.
func jwtExpiry(value string) (time.Time, bool) {
	if strings.Count(value, ".") != 2 {
		return time.Time{}, false
	}

	var claims jwt.RegisteredClaims
	if _, _, err := jwt.NewParser().ParseUnverified(value, &claims); err != nil {
		return time.Time{}, false
	}
	if claims.ExpiresAt == nil {
		return time.Time{}, false
	}

	return claims.ExpiresAt.Time, true
}
