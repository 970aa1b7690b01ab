// Package identity renders issued authority tokens as signed JWTs for host
// transport. The JWT is presentation only: validity decisions always go
// through the authority manager, which knows about revocation. Signing is
// symmetric HMAC; there is no PKI here.
package identity

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/selfsession/selfsession/pkg/authority"
)

const issuer = "selfsession/authority"

// ErrEmptySecret is returned when an Exporter is built without key material.
var ErrEmptySecret = errors.New("identity: signing secret must not be empty")

// TokenClaims extends the registered JWT claims with session scoping.
type TokenClaims struct {
	jwt.RegisteredClaims
	SessionID string `json:"session_id"`
	Scope     string `json:"scope"`
}

// Exporter signs and verifies JWT representations of authority tokens.
type Exporter struct {
	secret []byte
}

// NewExporter creates an Exporter with the given HMAC secret.
func NewExporter(secret []byte) (*Exporter, error) {
	if len(secret) == 0 {
		return nil, ErrEmptySecret
	}
	return &Exporter{secret: secret}, nil
}

// Export renders an authority token as an HS256 JWT. The JWT expiry mirrors
// the token TTL; revocation is not representable in the JWT and must be
// checked against the authority manager.
func (e *Exporter) Export(token *authority.Token) (string, error) {
	claims := TokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        token.ID,
			Subject:   token.SessionID,
			Issuer:    issuer,
			IssuedAt:  jwt.NewNumericDate(token.IssuedAt),
			ExpiresAt: jwt.NewNumericDate(token.ExpiresAt()),
		},
		SessionID: token.SessionID,
		Scope:     token.Scope,
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(e.secret)
	if err != nil {
		return "", fmt.Errorf("identity: signing token: %w", err)
	}
	return signed, nil
}

// Verify parses and verifies a JWT string, returning its claims.
func (e *Exporter) Verify(tokenString string, now time.Time) (*TokenClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &TokenClaims{},
		func(t *jwt.Token) (interface{}, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("identity: unexpected signing method %v", t.Header["alg"])
			}
			return e.secret, nil
		},
		jwt.WithIssuer(issuer),
		jwt.WithTimeFunc(func() time.Time { return now }),
	)
	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(*TokenClaims)
	if !ok || !token.Valid {
		return nil, jwt.ErrTokenSignatureInvalid
	}
	return claims, nil
}
