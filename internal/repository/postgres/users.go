package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	squirrel "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"

	"github.com/proyectoio2/back/internal/core/domain"
	"github.com/proyectoio2/back/internal/core/port"
	"github.com/proyectoio2/back/internal/repository"
)

const (
	usersTable           = "users"
	passwordHistoryTable = "password_history"
)

var userColumns = []string{
	"id",
	"email",
	"full_name",
	"phone_number",
	"address",
	"hashed_password",
	"is_active",
	"is_superuser",
	"created_at",
	"updated_at",
	"failed_login_attempts",
	"is_locked",
	"locked_until",
	"reset_attempts",
	"last_reset_attempt",
	"reset_lockout_until",
}

// UserRepository implements port.UserRepository using PostgreSQL.
type UserRepository struct {
	exec    pgExecutor
	builder squirrel.StatementBuilderType
}

// NewUserRepository wires a PostgreSQL-backed user repository. exec may be a
// pool or a transaction.
func NewUserRepository(exec pgExecutor) *UserRepository {
	return &UserRepository{
		exec:    exec,
		builder: newBuilder(),
	}
}

// Create inserts a new user row.
func (r *UserRepository) Create(ctx context.Context, user domain.User) error {
	stmt, args, err := r.builder.Insert(usersTable).
		Columns(userColumns...).
		Values(
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
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert user sql: %w", err)
	}

	if _, err := r.exec.Exec(ctx, stmt, args...); err != nil {
		return wrapWriteError("insert user", err)
	}

	return nil
}

// GetByID retrieves a user by identifier.
func (r *UserRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	return r.getOne(ctx, squirrel.Eq{"id": id}, false)
}

// GetByEmail retrieves a user by email address.
func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	return r.getOne(ctx, squirrel.Eq{"email": strings.TrimSpace(email)}, false)
}

// GetByPhone retrieves a user by phone number.
func (r *UserRepository) GetByPhone(ctx context.Context, phone string) (*domain.User, error) {
	return r.getOne(ctx, squirrel.Eq{"phone_number": strings.TrimSpace(phone)}, false)
}

// GetByIDForUpdate retrieves a user by identifier and locks the row.
func (r *UserRepository) GetByIDForUpdate(ctx context.Context, id string) (*domain.User, error) {
	return r.getOne(ctx, squirrel.Eq{"id": id}, true)
}

// GetByEmailForUpdate retrieves a user by email and locks the row.
func (r *UserRepository) GetByEmailForUpdate(ctx context.Context, email string) (*domain.User, error) {
	return r.getOne(ctx, squirrel.Eq{"email": strings.TrimSpace(email)}, true)
}

func (r *UserRepository) getOne(ctx context.Context, where squirrel.Sqlizer, forUpdate bool) (*domain.User, error) {
	query := r.builder.Select(userColumns...).
		From(usersTable).
		Where(where).
		Limit(1)
	if forUpdate {
		query = query.Suffix("FOR UPDATE")
	}

	stmt, args, err := query.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select user sql: %w", err)
	}

	user, err := scanUser(r.exec.QueryRow(ctx, stmt, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("scan user: %w", err)
	}
	return user, nil
}

func scanUser(row pgx.Row) (*domain.User, error) {
	var user domain.User
	if err := row.Scan(
		&user.ID,
		&user.Email,
		&user.FullName,
		&user.PhoneNumber,
		&user.Address,
		&user.PasswordHash,
		&user.IsActive,
		&user.IsSuperuser,
		&user.CreatedAt,
		&user.UpdatedAt,
		&user.FailedLoginAttempts,
		&user.IsLocked,
		&user.LockedUntil,
		&user.ResetAttempts,
		&user.LastResetAttempt,
		&user.ResetLockoutUntil,
	); err != nil {
		return nil, err
	}
	return &user, nil
}

// Update persists every mutable column of user.
func (r *UserRepository) Update(ctx context.Context, user domain.User) error {
	stmt, args, err := r.builder.Update(usersTable).
		Set("email", user.Email).
		Set("full_name", user.FullName).
		Set("phone_number", user.PhoneNumber).
		Set("address", user.Address).
		Set("hashed_password", user.PasswordHash).
		Set("is_active", user.IsActive).
		Set("is_superuser", user.IsSuperuser).
		Set("updated_at", user.UpdatedAt).
		Set("failed_login_attempts", user.FailedLoginAttempts).
		Set("is_locked", user.IsLocked).
		Set("locked_until", user.LockedUntil).
		Set("reset_attempts", user.ResetAttempts).
		Set("last_reset_attempt", user.LastResetAttempt).
		Set("reset_lockout_until", user.ResetLockoutUntil).
		Where(squirrel.Eq{"id": user.ID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build update user sql: %w", err)
	}

	ct, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return wrapWriteError("update user", err)
	}
	if ct.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// AddPasswordHistory appends a password hash to the user's history.
func (r *UserRepository) AddPasswordHistory(ctx context.Context, entry domain.PasswordHistoryEntry) error {
	stmt, args, err := r.builder.Insert(passwordHistoryTable).
		Columns("id", "user_id", "hashed_password", "created_at").
		Values(entry.ID, entry.UserID, entry.PasswordHash, entry.CreatedAt).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert password history sql: %w", err)
	}

	if _, err := r.exec.Exec(ctx, stmt, args...); err != nil {
		return fmt.Errorf("insert password history: %w", err)
	}
	return nil
}

// ListPasswordHistory retrieves the most recent password hashes for a user, newest first.
func (r *UserRepository) ListPasswordHistory(ctx context.Context, userID string, limit int) ([]domain.PasswordHistoryEntry, error) {
	trimmedID := strings.TrimSpace(userID)
	if trimmedID == "" {
		return nil, fmt.Errorf("user id is required")
	}

	builder := r.builder.Select("id", "user_id", "hashed_password", "created_at").
		From(passwordHistoryTable).
		Where(squirrel.Eq{"user_id": trimmedID}).
		OrderBy("created_at DESC")
	if limit > 0 {
		builder = builder.Limit(uint64(limit))
	}

	stmt, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select password history sql: %w", err)
	}

	rows, err := r.exec.Query(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("query password history: %w", err)
	}
	defer rows.Close()

	history := make([]domain.PasswordHistoryEntry, 0)
	for rows.Next() {
		var record domain.PasswordHistoryEntry
		if err := rows.Scan(&record.ID, &record.UserID, &record.PasswordHash, &record.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan password history: %w", err)
		}
		history = append(history, record)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate password history: %w", err)
	}

	return history, nil
}

var _ port.UserRepository = (*UserRepository)(nil)
