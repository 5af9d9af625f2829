// Package token mints and verifies the signed, self-contained session
// tokens returned by the authentication flow. Tokens carry identity, role,
// and MFA status; there is no revocation list, so compromise mitigation is
// the short TTL alone.
package token

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// DefaultTTL is the session token lifetime.
const DefaultTTL = time.Hour

// ErrUnauthorized is returned for any token failure: bad signature,
// tampering, expiry, or malformed input. Callers map it to a single
// "unauthenticated" response without detail.
var ErrUnauthorized = errors.New("invalid or expired token")

// Claims are the statements a session token carries. They are trusted only
// after signature verification.
type Claims struct {
	UserID     int    `json:"user_id"`
	Role       string `json:"role"`
	Username   string `json:"username"`
	MFAEnabled bool   `json:"mfa_enabled"`
	jwt.RegisteredClaims
}

// Issuer signs and verifies session tokens with a server-held secret.
type Issuer struct {
	secret []byte
	ttl    time.Duration
}

// NewIssuer constructs an Issuer. A zero ttl means DefaultTTL.
func NewIssuer(secret string, ttl time.Duration) *Issuer {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Issuer{secret: []byte(secret), ttl: ttl}
}

// Issue signs the given identity into a bearer token expiring after the
// issuer's TTL.
func (i *Issuer) Issue(userID int, role, username string, mfaEnabled bool) (string, error) {
	now := time.Now()
	claims := Claims{
		UserID:     userID,
		Role:       role,
		Username:   username,
		MFAEnabled: mfaEnabled,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.ttl)),
		},
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return tok.SignedString(i.secret)
}

// Verify checks signature and expiry and returns the embedded claims.
// Any failure yields ErrUnauthorized.
func (i *Issuer) Verify(tokenString string) (Claims, error) {
	claims := Claims{}
	tok, err := jwt.ParseWithClaims(tokenString, &claims, func(tok *jwt.Token) (any, error) {
		if _, ok := tok.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("invalid signing method")
		}
		return i.secret, nil
	})
	if err != nil || !tok.Valid {
		return Claims{}, ErrUnauthorized
	}
	if claims.UserID < 1 {
		return Claims{}, ErrUnauthorized
	}
	return claims, nil
}
