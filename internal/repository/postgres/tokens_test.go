package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	pgxmock "github.com/pashagolub/pgxmock/v2"

	"github.com/proyectoio2/back/internal/core/domain"
	"github.com/proyectoio2/back/internal/repository"
)

func TestTokenLedgerRepository_InsertConflict(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	defer mock.Close()

	repo := NewTokenLedgerRepository(mock)
	entry := domain.LedgerEntry{
		ID:        "entry-1",
		TokenHash: "abc123",
		TokenType: string(domain.TokenTypePasswordReset),
		UserID:    "user-1",
		UsedAt:    time.Now().UTC(),
	}

	mock.ExpectExec(`INSERT INTO used_tokens`).
		WithArgs(entry.ID, entry.TokenHash, entry.TokenType, entry.UserID, entry.UsedAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec(`INSERT INTO used_tokens`).
		WithArgs(entry.ID, entry.TokenHash, entry.TokenType, entry.UserID, entry.UsedAt).
		WillReturnError(&pgconn.PgError{Code: "23505"})

	if err := repo.Insert(context.Background(), entry); err != nil {
		t.Fatalf("first Insert returned error: %v", err)
	}
	if err := repo.Insert(context.Background(), entry); !errors.Is(err, repository.ErrConflict) {
		t.Fatalf("expected ErrConflict on duplicate digest, got %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestTokenLedgerRepository_GetByHash(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	defer mock.Close()

	repo := NewTokenLedgerRepository(mock)
	usedAt := time.Now().UTC()

	mock.ExpectQuery(`SELECT id, token_hash, token_type, user_id, used_at FROM used_tokens WHERE token_hash = \$1`).
		WithArgs("abc123").
		WillReturnRows(pgxmock.NewRows([]string{"id", "token_hash", "token_type", "user_id", "used_at"}).
			AddRow("entry-1", "abc123", "password_reset", "user-1", usedAt))
	mock.ExpectQuery(`SELECT id, token_hash, token_type, user_id, used_at FROM used_tokens WHERE token_hash = \$1`).
		WithArgs("unknown").
		WillReturnRows(pgxmock.NewRows([]string{"id", "token_hash", "token_type", "user_id", "used_at"}))

	entry, err := repo.GetByHash(context.Background(), "abc123")
	if err != nil {
		t.Fatalf("GetByHash returned error: %v", err)
	}
	if entry.UserID != "user-1" || !entry.UsedAt.Equal(usedAt) {
		t.Fatalf("unexpected entry: %+v", entry)
	}

	if _, err := repo.GetByHash(context.Background(), "unknown"); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestTokenLedgerRepository_InvalidatedAfter(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	defer mock.Close()

	repo := NewTokenLedgerRepository(mock)
	issuedAt := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`SELECT EXISTS \( SELECT 1 FROM used_tokens WHERE .*token_type = \$1 AND user_id = \$2.* AND used_at > \$3 \)`).
		WithArgs("invalidation_password_reset", "user-1", issuedAt).
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(true))

	superseded, err := repo.InvalidatedAfter(context.Background(), "user-1", domain.TokenTypePasswordReset.InvalidationMarker(), issuedAt)
	if err != nil {
		t.Fatalf("InvalidatedAfter returned error: %v", err)
	}
	if !superseded {
		t.Fatalf("expected marker to be reported")
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestTokenLedgerRepository_PurgeBefore(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	defer mock.Close()

	repo := NewTokenLedgerRepository(mock)
	cutoff := time.Now().UTC().Add(-7 * 24 * time.Hour)

	mock.ExpectExec(`DELETE FROM used_tokens WHERE used_at < \$1`).
		WithArgs(cutoff).
		WillReturnResult(pgxmock.NewResult("DELETE", 12))

	removed, err := repo.PurgeBefore(context.Background(), cutoff)
	if err != nil {
		t.Fatalf("PurgeBefore returned error: %v", err)
	}
	if removed != 12 {
		t.Fatalf("expected 12 rows removed, got %d", removed)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
