// Package token issues and verifies the signed identity tokens that carry a
// subject and a snapshot of granted authorities.
package token

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// ErrInvalidToken is returned for every verification failure: bad signature,
// malformed payload, unexpected algorithm, expiry in the past, or a revoked
// token. Callers get no more detail than this; verification fails closed.
var ErrInvalidToken = errors.New("token: invalid token")

// Claims carried by an issued token. The authority list is a snapshot taken
// at issuance; it is advisory only and never drives live authorization
// decisions.
type Claims struct {
	Authorities string `json:"auth,omitempty"`
	jwt.RegisteredClaims
}

// AuthorityNames splits the comma-joined authority snapshot.
func (c *Claims) AuthorityNames() []string {
	if c.Authorities == "" {
		return nil
	}
	return strings.Split(c.Authorities, ",")
}

// Denylist records revoked token IDs until their natural expiry.
type Denylist interface {
	Revoke(ctx context.Context, jti string, ttl time.Duration) error
	IsRevoked(ctx context.Context, jti string) (bool, error)
}

// Service signs and verifies tokens with a symmetric key derived from a
// base64-encoded configured secret. Verification is stateless apart from the
// optional denylist and safe for concurrent use.
type Service struct {
	key      []byte
	expiry   time.Duration
	denylist Denylist
	now      func() time.Time
}

// NewService builds a Service. The secret must be standard base64; expiry is
// the issued token lifetime. The denylist may be nil, in which case Revoke is
// a no-op and revocation checks are skipped.
func NewService(secret string, expiry time.Duration, denylist Denylist) (*Service, error) {
	key, err := base64.StdEncoding.DecodeString(secret)
	if err != nil {
		return nil, fmt.Errorf("token: decode secret: %w", err)
	}
	if len(key) == 0 {
		return nil, errors.New("token: empty signing key")
	}
	return &Service{
		key:      key,
		expiry:   expiry,
		denylist: denylist,
		now:      time.Now,
	}, nil
}

// Issue signs a token for the given subject embedding the authority snapshot.
func (s *Service) Issue(subject string, authorities []string) (string, error) {
	now := s.now()
	claims := Claims{
		Authorities: strings.Join(authorities, ","),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.expiry)),
			ID:        uuid.NewString(),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.key)
	if err != nil {
		return "", fmt.Errorf("token: sign: %w", err)
	}
	return signed, nil
}

// Verify parses and validates a token string. Any failure yields
// ErrInvalidToken; the cause is deliberately not surfaced.
func (s *Service) Verify(ctx context.Context, tokenString string) (*Claims, error) {
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return s.key, nil
	}, jwt.WithTimeFunc(s.now))
	if err != nil || !parsed.Valid {
		return nil, ErrInvalidToken
	}
	if s.denylist != nil && claims.ID != "" {
		revoked, err := s.denylist.IsRevoked(ctx, claims.ID)
		if err != nil || revoked {
			return nil, ErrInvalidToken
		}
	}
	return claims, nil
}

// IsValid reports whether the token belongs to the given subject and has not
// expired.
func (s *Service) IsValid(ctx context.Context, tokenString, subject string) bool {
	claims, err := s.Verify(ctx, tokenString)
	if err != nil {
		return false
	}
	return claims.Subject == subject
}

// Revoke denylists the token's ID for its remaining lifetime. Already-expired
// or unverifiable tokens are rejected.
func (s *Service) Revoke(ctx context.Context, tokenString string) error {
	claims, err := s.Verify(ctx, tokenString)
	if err != nil {
		return err
	}
	if s.denylist == nil || claims.ID == "" {
		return nil
	}
	ttl := time.Until(claims.ExpiresAt.Time)
	if ttl <= 0 {
		return nil
	}
	return s.denylist.Revoke(ctx, claims.ID, ttl)
}
