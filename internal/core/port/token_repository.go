package port

import (
	"context"
	"time"

	"github.com/proyectoio2/back/internal/core/domain"
)

// TokenLedgerRepository persists consumed token digests and invalidation markers.
type TokenLedgerRepository interface {
	// Insert fails with repository.ErrConflict when the digest is already recorded.
	Insert(ctx context.Context, entry domain.LedgerEntry) error
	GetByHash(ctx context.Context, tokenHash string) (*domain.LedgerEntry, error)
	InvalidatedAfter(ctx context.Context, userID, marker string, after time.Time) (bool, error)
	PurgeBefore(ctx context.Context, cutoff time.Time) (int64, error)
}
