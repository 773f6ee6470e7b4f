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

func userRows(user domain.User) *pgxmock.Rows {
	return pgxmock.NewRows(userColumns).AddRow(
		user.ID,
		user.Email,
		user.FullName,
		user.PhoneNumber,
		user.Address,
		user.PasswordHash,
		user.IsActive,
		user.IsSuperuser,
		user.CreatedAt,
		user.UpdatedAt,
		user.FailedLoginAttempts,
		user.IsLocked,
		user.LockedUntil,
		user.ResetAttempts,
		user.LastResetAttempt,
		user.ResetLockoutUntil,
	)
}

func sampleUser(now time.Time) domain.User {
	lockedUntil := now.Add(15 * time.Minute)
	lastReset := now.Add(-time.Minute)
	lockout := now.Add(10 * time.Minute)
	return domain.User{
		ID:                  "0b8c3f0e-4d2a-4c51-9a55-6d1a0b7f1c11",
		Email:               "ana@example.com",
		FullName:            "Ana Gomez",
		PhoneNumber:         "3001234567",
		Address:             "Calle 10 #4-20",
		PasswordHash:        "argon2id$v=19$m=65536,t=3,p=2$c2FsdA$aGFzaA",
		IsActive:            true,
		CreatedAt:           now,
		UpdatedAt:           now,
		FailedLoginAttempts: 5,
		IsLocked:            true,
		LockedUntil:         &lockedUntil,
		ResetAttempts:       1,
		LastResetAttempt:    &lastReset,
		ResetLockoutUntil:   &lockout,
	}
}

func TestUserRepository_Create(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	defer mock.Close()

	repo := NewUserRepository(mock)
	user := sampleUser(time.Now().UTC())

	mock.ExpectExec(`INSERT INTO users`).
		WithArgs(
			user.ID,
			user.Email,
			user.FullName,
			user.PhoneNumber,
			user.Address,
			user.PasswordHash,
			user.IsActive,
			user.IsSuperuser,
			user.CreatedAt,
			user.UpdatedAt,
			user.FailedLoginAttempts,
			user.IsLocked,
			user.LockedUntil,
			user.ResetAttempts,
			user.LastResetAttempt,
			user.ResetLockoutUntil,
		).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	if err := repo.Create(context.Background(), user); err != nil {
		t.Fatalf("Create returned error: %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestUserRepository_CreateDuplicateMapsToConflict(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	defer mock.Close()

	repo := NewUserRepository(mock)
	user := sampleUser(time.Now().UTC())

	mock.ExpectExec(`INSERT INTO users`).
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "users_email_key"})

	err = repo.Create(context.Background(), user)
	if !errors.Is(err, repository.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
}

func TestUserRepository_GetByEmail(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	defer mock.Close()

	repo := NewUserRepository(mock)
	user := sampleUser(time.Now().UTC())

	mock.ExpectQuery(`SELECT .*FROM users WHERE email = \$1 LIMIT 1$`).
		WithArgs(user.Email).
		WillReturnRows(userRows(user))

	got, err := repo.GetByEmail(context.Background(), "  ana@example.com ")
	if err != nil {
		t.Fatalf("GetByEmail returned error: %v", err)
	}
	if got.ID != user.ID || got.PhoneNumber != user.PhoneNumber {
		t.Fatalf("unexpected user: %+v", got)
	}
	if got.LockedUntil == nil || !got.LockedUntil.Equal(*user.LockedUntil) {
		t.Fatalf("expected locked_until to be populated")
	}
	if got.FailedLoginAttempts != 5 || !got.IsLocked {
		t.Fatalf("expected lockout counters to be scanned, got %+v", got)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestUserRepository_GetByEmailForUpdateLocksRow(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	defer mock.Close()

	repo := NewUserRepository(mock)
	user := sampleUser(time.Now().UTC())

	mock.ExpectQuery(`SELECT .*FROM users WHERE email = \$1 LIMIT 1 FOR UPDATE`).
		WithArgs(user.Email).
		WillReturnRows(userRows(user))

	if _, err := repo.GetByEmailForUpdate(context.Background(), user.Email); err != nil {
		t.Fatalf("GetByEmailForUpdate returned error: %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestUserRepository_GetByIDNotFound(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	defer mock.Close()

	repo := NewUserRepository(mock)

	mock.ExpectQuery(`SELECT .*FROM users WHERE id = \$1`).
		WithArgs("missing").
		WillReturnRows(pgxmock.NewRows(userColumns))

	_, err = repo.GetByID(context.Background(), "missing")
	if !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestUserRepository_UpdateNoRows(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	defer mock.Close()

	repo := NewUserRepository(mock)
	user := sampleUser(time.Now().UTC())

	mock.ExpectExec(`UPDATE users SET email = \$1`).
		WithArgs(
			user.Email,
			user.FullName,
			user.PhoneNumber,
			user.Address,
			user.PasswordHash,
			user.IsActive,
			user.IsSuperuser,
			user.UpdatedAt,
			user.FailedLoginAttempts,
			user.IsLocked,
			user.LockedUntil,
			user.ResetAttempts,
			user.LastResetAttempt,
			user.ResetLockoutUntil,
			user.ID,
		).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	if err := repo.Update(context.Background(), user); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestUserRepository_ListPasswordHistory(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	defer mock.Close()

	repo := NewUserRepository(mock)
	now := time.Now().UTC()

	rows := pgxmock.NewRows([]string{"id", "user_id", "hashed_password", "created_at"}).
		AddRow("h2", "user-1", "hash-b", now).
		AddRow("h1", "user-1", "hash-a", now.Add(-time.Hour))

	mock.ExpectQuery(`SELECT id, user_id, hashed_password, created_at FROM password_history WHERE user_id = \$1 ORDER BY created_at DESC LIMIT 5`).
		WithArgs("user-1").
		WillReturnRows(rows)

	history, err := repo.ListPasswordHistory(context.Background(), "user-1", 5)
	if err != nil {
		t.Fatalf("ListPasswordHistory returned error: %v", err)
	}
	if len(history) != 2 || history[0].PasswordHash != "hash-b" {
		t.Fatalf("unexpected history: %+v", history)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestUserRepository_ListPasswordHistoryRequiresUser(t *testing.T) {
	repo := NewUserRepository(nil)
	if _, err := repo.ListPasswordHistory(context.Background(), " ", 3); err == nil {
		t.Fatalf("expected error for blank user id")
	}
}
