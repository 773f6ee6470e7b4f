package postgres

import (
	"context"
	"errors"
	"fmt"

	squirrel "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/proyectoio2/back/internal/core/port"
	"github.com/proyectoio2/back/internal/repository"
)

const uniqueViolationCode = "23505"

type pgExecutor interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type txStarter interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

func newBuilder() squirrel.StatementBuilderType {
	return squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)
}

// isUniqueViolation reports whether err carries SQLSTATE 23505.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolationCode
}

// wrapWriteError maps unique violations to repository.ErrConflict and wraps everything else.
func wrapWriteError(op string, err error) error {
	if isUniqueViolation(err) {
		return fmt.Errorf("%s: %w", op, repository.ErrConflict)
	}
	return fmt.Errorf("%s: %w", op, err)
}

// Repositories groups concrete PostgreSQL repository implementations.
type Repositories struct {
	Users  *UserRepository
	Ledger *TokenLedgerRepository
	Store  *StoreRepository
	Tx     *TxManager
}

// NewRepositories wires all repositories backed by the provided pool.
func NewRepositories(db interface {
	pgExecutor
	txStarter
}) *Repositories {
	return &Repositories{
		Users:  NewUserRepository(db),
		Ledger: NewTokenLedgerRepository(db),
		Store:  NewStoreRepository(db),
		Tx:     NewTxManager(db),
	}
}

// TxManager implements port.TxManager on top of pgx transactions.
type TxManager struct {
	db txStarter
}

// NewTxManager constructs a TxManager that begins transactions on db.
func NewTxManager(db txStarter) *TxManager {
	return &TxManager{db: db}
}

// WithinTx runs fn with repositories bound to a fresh transaction.
func (m *TxManager) WithinTx(ctx context.Context, fn func(ctx context.Context, stores port.Stores) error) (err error) {
	tx, err := m.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback(ctx)
			panic(p)
		}
	}()

	stores := port.Stores{
		Users:  NewUserRepository(tx),
		Ledger: NewTokenLedgerRepository(tx),
		Store:  NewStoreRepository(tx),
	}

	if err := fn(ctx, stores); err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			return errors.Join(err, fmt.Errorf("rollback transaction: %w", rbErr))
		}
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

var _ port.TxManager = (*TxManager)(nil)
