// Package token mints and verifies the wait tokens handed to suspended runs.
package token

import (
	"time"

	xerrors "xpertly/internal/errors"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Claims binds a wait token to one run and the bearer credential that
// triggered it. Anything external resuming or cancelling the run presents
// this token back.
type Claims struct {
	ID   string `json:"id"`
	Auth string `json:"auth"`
	jwt.RegisteredClaims
}

// RunID returns the bound run identifier.
func (c *Claims) RunID() (uuid.UUID, error) {
	return uuid.Parse(c.ID)
}

// Signer issues and verifies HS256 wait tokens.
type Signer struct {
	secret []byte
	ttl    time.Duration
}

// NewSigner builds a Signer. ttl bounds how long a suspended run stays
// resumable.
func NewSigner(secret string, ttl time.Duration) *Signer {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Signer{secret: []byte(secret), ttl: ttl}
}

// Mint signs a wait token for runID carrying the caller's auth credential.
func (s *Signer) Mint(runID uuid.UUID, authToken string) (string, error) {
	claims := &Claims{
		ID:   runID.String(),
		Auth: authToken,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(s.ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", err
	}
	return signed, nil
}

// Verify checks signature and expiry, returning the bound claims.
func (s *Signer) Verify(tokenString string) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		return s.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, &xerrors.AuthError{Err: err, Message: "invalid wait token: " + err.Error()}
	}
	if claims.ID == "" {
		return nil, xerrors.NewAuthError("wait token missing run binding")
	}
	return claims, nil
}
