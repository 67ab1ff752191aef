// Package auth issues and verifies the bearer tokens that gate the
// websocket and REST surfaces. Verification fails closed: any doubt about a
// token means no identity.
package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/jonboulle/clockwork"

	"github.com/pscheid92/chatwire/internal/domain"
)

// Verifier issues and checks HS256-signed tokens carrying a username claim.
type Verifier struct {
	signingKey []byte
	ttl        time.Duration
	clock      clockwork.Clock
}

func NewVerifier(signingKey []byte, ttl time.Duration, clock clockwork.Clock) *Verifier {
	return &Verifier{
		signingKey: signingKey,
		ttl:        ttl,
		clock:      clock,
	}
}

// Issue creates a signed token for the given username.
func (v *Verifier) Issue(username string) (string, error) {
	if username == "" {
		return "", fmt.Errorf("username must not be empty")
	}

	now := v.clock.Now()
	claims := jwt.MapClaims{
		"sub": username,
		"iat": now.Unix(),
		"exp": now.Add(v.ttl).Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(v.signingKey)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// Verify checks signature and expiry and returns the token's principal.
// Every failure mode collapses into an error; callers treat any error as
// access denied.
func (v *Verifier) Verify(tokenString string) (domain.Principal, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return v.signingKey, nil
	}, jwt.WithTimeFunc(v.clock.Now))
	if err != nil {
		return domain.Principal{}, fmt.Errorf("invalid token: %w", err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return domain.Principal{}, fmt.Errorf("invalid token claims")
	}

	username, _ := claims["sub"].(string)
	if username == "" {
		return domain.Principal{}, fmt.Errorf("token carries no subject")
	}

	return domain.Principal{Username: username}, nil
}
