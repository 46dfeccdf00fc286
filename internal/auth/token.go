package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

type TokenKind string

const (
	TokenKindAccess  TokenKind = "access"
	TokenKindRefresh TokenKind = "refresh"
)

// AuthToken is an issued session token. It is never mutated after issuance.
type AuthToken struct {
	Value       string
	Subject     string
	Authorities []string
	ExpiresAt   time.Time
	Kind        TokenKind
}

// Claims is the decoded view of a token whose signature has been verified.
type Claims struct {
	Subject     string
	Authorities []string
	Kind        TokenKind
	ExpiresAt   time.Time
	Expired     bool
}

type sessionClaims struct {
	Roles []string  `json:"roles,omitempty"`
	Type  TokenKind `json:"typ"`
	jwt.RegisteredClaims
}

// Codec signs and verifies session tokens with a server-held HMAC secret.
// It holds no mutable state and is safe for concurrent use.
type Codec struct {
	secret     []byte
	issuer     string
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

type CodecOption func(*Codec)

func WithClock(now func() time.Time) CodecOption {
	return func(c *Codec) {
		c.now = now
	}
}

func WithIssuer(issuer string) CodecOption {
	return func(c *Codec) {
		c.issuer = issuer
	}
}

func NewCodec(secret string, accessTTL, refreshTTL time.Duration, opts ...CodecOption) (*Codec, error) {
	if secret == "" {
		return nil, errors.New("token secret is required")
	}
	if accessTTL <= 0 || refreshTTL <= 0 {
		return nil, errors.New("token ttl must be positive")
	}

	c := &Codec{
		secret:     []byte(secret),
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}

	return c, nil
}

func (c *Codec) AccessTTL() time.Duration {
	return c.accessTTL
}

func (c *Codec) RefreshTTL() time.Duration {
	return c.refreshTTL
}

func (c *Codec) IssueAccessToken(subject string, authorities []string) (AuthToken, error) {
	return c.issue(subject, authorities, TokenKindAccess, c.accessTTL)
}

func (c *Codec) IssueRefreshToken(subject string, authorities []string) (AuthToken, error) {
	return c.issue(subject, authorities, TokenKindRefresh, c.refreshTTL)
}

func (c *Codec) issue(subject string, authorities []string, kind TokenKind, ttl time.Duration) (AuthToken, error) {
	if subject == "" {
		return AuthToken{}, errors.New("token subject is required")
	}

	now := c.now().UTC()
	roles := normalizeAuthorities(authorities)
	claims := sessionClaims{
		Roles: roles,
		Type:  kind,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    c.issuer,
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}

	encoded, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.secret)
	if err != nil {
		return AuthToken{}, fmt.Errorf("sign %s token: %w", kind, err)
	}

	return AuthToken{
		Value:       encoded,
		Subject:     subject,
		Authorities: roles,
		ExpiresAt:   claims.ExpiresAt.Time,
		Kind:        kind,
	}, nil
}

// Validate verifies the signature and structure of value. Expiry is reported
// through Claims.Expired rather than as an error so callers can tell an
// expired token from a forged one.
func (c *Codec) Validate(value string) (Claims, error) {
	if value == "" {
		return Claims{}, ErrInvalidToken
	}

	claims := &sessionClaims{}
	token, err := jwt.ParseWithClaims(value, claims, func(token *jwt.Token) (any, error) {
		return c.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithoutClaimsValidation(),
	)
	if err != nil || !token.Valid {
		return Claims{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	if claims.Subject == "" {
		return Claims{}, fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}
	if claims.Type != TokenKindAccess && claims.Type != TokenKindRefresh {
		return Claims{}, fmt.Errorf("%w: unknown token type %q", ErrInvalidToken, claims.Type)
	}
	if claims.ExpiresAt == nil {
		return Claims{}, fmt.Errorf("%w: missing expiry", ErrInvalidToken)
	}
	if c.issuer != "" && claims.Issuer != c.issuer {
		return Claims{}, fmt.Errorf("%w: unexpected issuer", ErrInvalidToken)
	}

	expiresAt := claims.ExpiresAt.Time
	return Claims{
		Subject:     claims.Subject,
		Authorities: claims.Roles,
		Kind:        claims.Type,
		ExpiresAt:   expiresAt,
		Expired:     !c.now().Before(expiresAt),
	}, nil
}

func (c *Codec) IsExpired(value string) (bool, error) {
	claims, err := c.Validate(value)
	if err != nil {
		return false, err
	}
	return claims.Expired, nil
}

func normalizeAuthorities(authorities []string) []string {
	if len(authorities) == 0 {
		return nil
	}

	seen := make(map[string]struct{}, len(authorities))
	out := make([]string, 0, len(authorities))
	for _, a := range authorities {
		if a == "" {
			continue
		}
		if _, ok := seen[a]; ok {
			continue
		}
		seen[a] = struct{}{}
		out = append(out, a)
	}
	return out
}
