package domain

import (
	"strings"
	"time"
)

// TokenType tags the purpose a signed token was issued for.
type TokenType string

const (
	TokenTypeAccess        TokenType = "access"
	TokenTypeRefresh       TokenType = "refresh"
	TokenTypePasswordReset TokenType = "password_reset"
)

const invalidationPrefix = "invalidation_"

// Valid reports whether t is one of the known token types.
func (t TokenType) Valid() bool {
	switch t {
	case TokenTypeAccess, TokenTypeRefresh, TokenTypePasswordReset:
		return true
	}
	return false
}

// InvalidationMarker returns the ledger tag that voids earlier tokens of type t.
func (t TokenType) InvalidationMarker() string {
	return invalidationPrefix + string(t)
}

// IsInvalidationMarker reports whether a ledger tag denotes an invalidation marker.
func IsInvalidationMarker(tag string) bool {
	return strings.HasPrefix(tag, invalidationPrefix)
}

// TokenClaims is the decoded content of a signed token.
type TokenClaims struct {
	Subject   string
	Type      TokenType
	ExpiresAt time.Time
	// IssuedAt is nil when the token carried no iat claim.
	IssuedAt *time.Time
}

// TokenPair bundles an access and a refresh token issued together.
type TokenPair struct {
	AccessToken      string
	RefreshToken     string
	TokenType        string
	AccessExpiresAt  time.Time
	RefreshExpiresAt time.Time
}

// LedgerEntry is a row of the used token ledger. Consumed tokens carry their own
// type as tag; invalidation markers carry TokenType.InvalidationMarker().
type LedgerEntry struct {
	ID        string
	TokenHash string
	TokenType string
	UserID    string
	UsedAt    time.Time
}
