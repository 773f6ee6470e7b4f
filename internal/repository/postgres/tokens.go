package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	squirrel "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"

	"github.com/proyectoio2/back/internal/core/domain"
	"github.com/proyectoio2/back/internal/core/port"
	"github.com/proyectoio2/back/internal/repository"
)

const usedTokensTable = "used_tokens"

// TokenLedgerRepository implements port.TokenLedgerRepository over the used_tokens table.
type TokenLedgerRepository struct {
	exec    pgExecutor
	builder squirrel.StatementBuilderType
}

// NewTokenLedgerRepository constructs a ledger repository. exec may be a pool or a transaction.
func NewTokenLedgerRepository(exec pgExecutor) *TokenLedgerRepository {
	return &TokenLedgerRepository{
		exec:    exec,
		builder: newBuilder(),
	}
}

// Insert records a consumed token digest or an invalidation marker.
func (r *TokenLedgerRepository) Insert(ctx context.Context, entry domain.LedgerEntry) error {
	stmt, args, err := r.builder.Insert(usedTokensTable).
		Columns("id", "token_hash", "token_type", "user_id", "used_at").
		Values(entry.ID, entry.TokenHash, entry.TokenType, entry.UserID, entry.UsedAt).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert used token sql: %w", err)
	}

	if _, err := r.exec.Exec(ctx, stmt, args...); err != nil {
		return wrapWriteError("insert used token", err)
	}
	return nil
}

// GetByHash looks up a ledger entry by exact digest.
func (r *TokenLedgerRepository) GetByHash(ctx context.Context, tokenHash string) (*domain.LedgerEntry, error) {
	stmt, args, err := r.builder.Select("id", "token_hash", "token_type", "user_id", "used_at").
		From(usedTokensTable).
		Where(squirrel.Eq{"token_hash": tokenHash}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select used token sql: %w", err)
	}

	var entry domain.LedgerEntry
	if err := r.exec.QueryRow(ctx, stmt, args...).Scan(
		&entry.ID,
		&entry.TokenHash,
		&entry.TokenType,
		&entry.UserID,
		&entry.UsedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("scan used token: %w", err)
	}
	return &entry, nil
}

// InvalidatedAfter reports whether a marker for (userID, marker) was written strictly after the given instant.
func (r *TokenLedgerRepository) InvalidatedAfter(ctx context.Context, userID, marker string, after time.Time) (bool, error) {
	stmt, args, err := r.builder.Select("1").
		From(usedTokensTable).
		Where(squirrel.Eq{"user_id": userID, "token_type": marker}).
		Where(squirrel.Gt{"used_at": after}).
		Prefix("SELECT EXISTS (").
		Suffix(")").
		ToSql()
	if err != nil {
		return false, fmt.Errorf("build select invalidation sql: %w", err)
	}

	var exists bool
	if err := r.exec.QueryRow(ctx, stmt, args...).Scan(&exists); err != nil {
		return false, fmt.Errorf("query invalidation markers: %w", err)
	}
	return exists, nil
}

// PurgeBefore deletes ledger rows written before cutoff and returns how many were removed.
func (r *TokenLedgerRepository) PurgeBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	stmt, args, err := r.builder.Delete(usedTokensTable).
		Where(squirrel.Lt{"used_at": cutoff}).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build purge used tokens sql: %w", err)
	}

	ct, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return 0, fmt.Errorf("purge used tokens: %w", err)
	}
	return ct.RowsAffected(), nil
}

var _ port.TokenLedgerRepository = (*TokenLedgerRepository)(nil)
