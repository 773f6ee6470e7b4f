package port

import (
	"time"

	"github.com/proyectoio2/back/internal/core/domain"
)

// PasswordHasher hashes and verifies secrets using the configured algorithm.
type PasswordHasher interface {
	Hash(password string) (string, error)
	Verify(password string, encoded string) (bool, error)
	// NeedsRehash reports whether encoded was produced by a legacy algorithm or parameters.
	NeedsRehash(encoded string) bool
}

// TokenCodec signs and verifies self-contained expiring tokens.
type TokenCodec interface {
	Issue(subject string, tokenType domain.TokenType, ttl time.Duration) (string, domain.TokenClaims, error)
	Decode(token string) (domain.TokenClaims, error)
}

// TokenDigester derives the keyed digest stored in the token ledger.
type TokenDigester interface {
	Digest(token string) string
}

// PasswordPolicy enforces complexity requirements on new passwords.
// inputs carries user data (email, name) that must not make a password weak.
type PasswordPolicy interface {
	Validate(password string, inputs ...string) error
}
