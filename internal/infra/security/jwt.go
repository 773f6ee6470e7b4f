package security

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	uuid "github.com/google/uuid"

	"github.com/proyectoio2/back/internal/core/domain"
	"github.com/proyectoio2/back/internal/core/port"
)

var (
	// ErrTokenExpired is returned by Decode when the exp claim has passed.
	ErrTokenExpired = errors.New("token expired")
	// ErrTokenMalformed covers bad signatures, bad encoding and missing claims.
	ErrTokenMalformed = errors.New("token malformed")
)

const algorithmHS256 = "HS256"

// IssuedAtPrecision is the resolution of token issue times. The standard iat
// claim only holds whole seconds, so the exact issue time travels in iat_ms.
const IssuedAtPrecision = time.Millisecond

type tokenClaims struct {
	Type           string `json:"type"`
	IssuedAtMillis int64  `json:"iat_ms,omitempty"`
	jwt.RegisteredClaims
}

// JWTCodec issues and verifies HMAC signed JWTs carrying sub, exp, iat and type.
// A random jti keeps two tokens minted in the same millisecond distinct.
type JWTCodec struct {
	secret []byte
	method jwt.SigningMethod
	now    func() time.Time
}

// NewJWTCodec builds a codec for the configured shared secret. Only HS256 is supported.
func NewJWTCodec(secret, algorithm string) (*JWTCodec, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, errors.New("jwt: secret is required")
	}
	if algorithm == "" {
		algorithm = algorithmHS256
	}
	if !strings.EqualFold(algorithm, algorithmHS256) {
		return nil, fmt.Errorf("jwt: unsupported algorithm %q", algorithm)
	}
	return &JWTCodec{
		secret: []byte(secret),
		method: jwt.SigningMethodHS256,
		now:    time.Now,
	}, nil
}

// WithClock overrides the time source used for iat, exp and validation.
func (c *JWTCodec) WithClock(now func() time.Time) *JWTCodec {
	if now != nil {
		c.now = now
	}
	return c
}

// Issue signs a token for subject. The returned claims match what Decode will
// later report: the issue time is kept to the millisecond and exp to the second.
func (c *JWTCodec) Issue(subject string, tokenType domain.TokenType, ttl time.Duration) (string, domain.TokenClaims, error) {
	if strings.TrimSpace(subject) == "" {
		return "", domain.TokenClaims{}, errors.New("jwt: subject is required")
	}
	if !tokenType.Valid() {
		return "", domain.TokenClaims{}, fmt.Errorf("jwt: unknown token type %q", tokenType)
	}
	if ttl <= 0 {
		return "", domain.TokenClaims{}, errors.New("jwt: ttl must be positive")
	}

	issuedAt := c.now().UTC().Truncate(IssuedAtPrecision)
	expiresAt := issuedAt.Add(ttl).Truncate(time.Second)

	claims := tokenClaims{
		Type:           string(tokenType),
		IssuedAtMillis: issuedAt.UnixMilli(),
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	signed, err := jwt.NewWithClaims(c.method, claims).SignedString(c.secret)
	if err != nil {
		return "", domain.TokenClaims{}, fmt.Errorf("jwt: sign token: %w", err)
	}

	iat := issuedAt
	return signed, domain.TokenClaims{
		Subject:   subject,
		Type:      tokenType,
		ExpiresAt: expiresAt,
		IssuedAt:  &iat,
	}, nil
}

// Decode verifies the signature and expiry of token and returns its claims.
// A missing iat is tolerated; a missing sub or type is not.
func (c *JWTCodec) Decode(token string) (domain.TokenClaims, error) {
	if strings.TrimSpace(token) == "" {
		return domain.TokenClaims{}, ErrTokenMalformed
	}

	claims := &tokenClaims{}
	_, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		return c.secret, nil
	},
		jwt.WithValidMethods([]string{c.method.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(c.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return domain.TokenClaims{}, ErrTokenExpired
		}
		return domain.TokenClaims{}, fmt.Errorf("%w: %v", ErrTokenMalformed, err)
	}

	tokenType := domain.TokenType(claims.Type)
	if !tokenType.Valid() {
		return domain.TokenClaims{}, fmt.Errorf("%w: unknown token type %q", ErrTokenMalformed, claims.Type)
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return domain.TokenClaims{}, fmt.Errorf("%w: missing subject", ErrTokenMalformed)
	}

	out := domain.TokenClaims{
		Subject:   claims.Subject,
		Type:      tokenType,
		ExpiresAt: claims.ExpiresAt.Time.UTC(),
	}
	switch {
	case claims.IssuedAtMillis > 0:
		iat := time.UnixMilli(claims.IssuedAtMillis).UTC()
		out.IssuedAt = &iat
	case claims.IssuedAt != nil:
		iat := claims.IssuedAt.Time.UTC()
		out.IssuedAt = &iat
	}
	return out, nil
}

var _ port.TokenCodec = (*JWTCodec)(nil)
