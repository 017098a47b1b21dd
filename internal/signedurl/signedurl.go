// Package signedurl issues and verifies short-lived tokens that grant read access
// to a single blob key served by the API.
package signedurl

import (
	"crypto/rand"
	"errors"
	"fmt"
	"time"

	"github.com/go-jose/go-jose/v4"
	"github.com/go-jose/go-jose/v4/jwt"
)

const issuer = "gifpipe"

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrTokenExpired = errors.New("token has expired")
	ErrWrongObject  = errors.New("token does not grant this object")
)

// Signer signs tokens with HS256.
type Signer struct {
	key    []byte
	signer jose.Signer
	now    func() time.Time
}

// New returns a signer for key. An empty key gets a random one, which only
// suits a single process (tokens die with it).
func New(key []byte) (*Signer, error) {
	if len(key) == 0 {
		key = make([]byte, 32)
		if _, err := rand.Read(key); err != nil {
			return nil, fmt.Errorf("generate signing key: %w", err)
		}
	}
	if len(key) < 32 {
		return nil, fmt.Errorf("signing key must be at least 32 bytes, got %d", len(key))
	}

	sig, err := jose.NewSigner(jose.SigningKey{Algorithm: jose.HS256, Key: key}, (&jose.SignerOptions{}).WithType("JWT"))
	if err != nil {
		return nil, fmt.Errorf("create signer: %w", err)
	}
	return &Signer{key: key, signer: sig, now: time.Now}, nil
}

// Sign returns a token for objectKey valid for ttl, and its expiry.
func (s *Signer) Sign(objectKey string, ttl time.Duration) (string, time.Time, error) {
	now := s.now().UTC()
	exp := now.Add(ttl)

	claims := jwt.Claims{
		Issuer:   issuer,
		Subject:  objectKey,
		IssuedAt: jwt.NewNumericDate(now),
		Expiry:   jwt.NewNumericDate(exp),
	}
	token, err := jwt.Signed(s.signer).Claims(claims).Serialize()
	if err != nil {
		return "", time.Time{}, fmt.Errorf("serialize token: %w", err)
	}
	return token, exp, nil
}

// Verify checks token and that it was issued for objectKey.
func (s *Signer) Verify(token, objectKey string) error {
	if token == "" {
		return ErrInvalidToken
	}
	tok, err := jwt.ParseSigned(token, []jose.SignatureAlgorithm{jose.HS256})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	var claims jwt.Claims
	if err := tok.Claims(s.key, &claims); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	err = claims.ValidateWithLeeway(jwt.Expected{Issuer: issuer, Time: s.now()}, 0)
	switch {
	case errors.Is(err, jwt.ErrExpired):
		return ErrTokenExpired
	case err != nil:
		return fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	if claims.Subject != objectKey {
		return ErrWrongObject
	}
	return nil
}
