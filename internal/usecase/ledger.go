package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	uuid "github.com/google/uuid"

	"github.com/proyectoio2/back/internal/core/domain"
	"github.com/proyectoio2/back/internal/core/port"
	"github.com/proyectoio2/back/internal/infra/security"
	"github.com/proyectoio2/back/internal/repository"
)

// TokenLedger tracks consumed tokens and invalidation markers. Timestamps use
// the codec's issue time precision so they compare cleanly against token claims.
type TokenLedger struct {
	repo      port.TokenLedgerRepository
	digester  port.TokenDigester
	ttls      map[domain.TokenType]time.Duration
	retention time.Duration
	now       func() time.Time
}

// NewTokenLedger builds a ledger over repo. ttls is used to date tokens without an iat claim.
func NewTokenLedger(repo port.TokenLedgerRepository, digester port.TokenDigester, ttls map[domain.TokenType]time.Duration) *TokenLedger {
	copied := make(map[domain.TokenType]time.Duration, len(ttls))
	var longest time.Duration
	for t, ttl := range ttls {
		copied[t] = ttl
		if ttl > longest {
			longest = ttl
		}
	}
	return &TokenLedger{
		repo:      repo,
		digester:  digester,
		ttls:      copied,
		retention: longest,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the ledger clock for deterministic tests.
func (l *TokenLedger) WithClock(clock func() time.Time) *TokenLedger {
	if clock != nil {
		l.now = clock
	}
	return l
}

// On returns a ledger that writes through repo, typically a transaction scoped repository.
func (l *TokenLedger) On(repo port.TokenLedgerRepository) *TokenLedger {
	bound := *l
	bound.repo = repo
	return &bound
}

func (l *TokenLedger) stamp() time.Time {
	return l.now().UTC().Truncate(security.IssuedAtPrecision)
}

// RecordUsed stores the digest of token. ErrConflict means it was already recorded.
func (l *TokenLedger) RecordUsed(ctx context.Context, token string, tokenType domain.TokenType, userID string) error {
	entry := domain.LedgerEntry{
		ID:        uuid.NewString(),
		TokenHash: l.digester.Digest(token),
		TokenType: string(tokenType),
		UserID:    userID,
		UsedAt:    l.stamp(),
	}
	if err := l.repo.Insert(ctx, entry); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return ErrConflict
		}
		return fmt.Errorf("record used token: %w", err)
	}
	return nil
}

// RecordInvalidation voids every token of tokenType issued to userID before now.
func (l *TokenLedger) RecordInvalidation(ctx context.Context, userID string, tokenType domain.TokenType) error {
	nonce, err := security.GenerateSecureToken(32)
	if err != nil {
		return fmt.Errorf("generate invalidation nonce: %w", err)
	}
	entry := domain.LedgerEntry{
		ID:        uuid.NewString(),
		TokenHash: l.digester.Digest(nonce),
		TokenType: tokenType.InvalidationMarker(),
		UserID:    userID,
		UsedAt:    l.stamp(),
	}
	if err := l.repo.Insert(ctx, entry); err != nil {
		return fmt.Errorf("record invalidation marker: %w", err)
	}
	return nil
}

// IsConsumed reports whether token was already recorded as used.
func (l *TokenLedger) IsConsumed(ctx context.Context, token string) (bool, error) {
	_, err := l.repo.GetByHash(ctx, l.digester.Digest(token))
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, repository.ErrNotFound):
		return false, nil
	default:
		return false, fmt.Errorf("lookup used token: %w", err)
	}
}

// IsSuperseded reports whether an invalidation marker for the token's type was
// written strictly after the token was issued.
func (l *TokenLedger) IsSuperseded(ctx context.Context, userID string, claims domain.TokenClaims) (bool, error) {
	issuedAt, err := l.issuedAt(claims)
	if err != nil {
		return false, err
	}
	superseded, err := l.repo.InvalidatedAfter(ctx, userID, claims.Type.InvalidationMarker(), issuedAt)
	if err != nil {
		return false, fmt.Errorf("lookup invalidation markers: %w", err)
	}
	return superseded, nil
}

func (l *TokenLedger) issuedAt(claims domain.TokenClaims) (time.Time, error) {
	if claims.IssuedAt != nil {
		return claims.IssuedAt.UTC(), nil
	}
	ttl, ok := l.ttls[claims.Type]
	if !ok || ttl <= 0 || claims.ExpiresAt.IsZero() {
		return time.Time{}, ErrIssueTimeUnknown
	}
	return claims.ExpiresAt.Add(-ttl).UTC(), nil
}

// Purge removes ledger rows older than the longest token lifetime. Such rows
// can no longer match a token that would pass the exp check.
func (l *TokenLedger) Purge(ctx context.Context) (int64, error) {
	if l.retention <= 0 {
		return 0, nil
	}
	removed, err := l.repo.PurgeBefore(ctx, l.now().UTC().Add(-l.retention))
	if err != nil {
		return 0, fmt.Errorf("purge token ledger: %w", err)
	}
	return removed, nil
}
