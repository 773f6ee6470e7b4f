package port

import (
	"context"

	"github.com/proyectoio2/back/internal/core/domain"
)

// UserRepository exposes persistence behavior for users and their password history.
type UserRepository interface {
	Create(ctx context.Context, user domain.User) error
	GetByID(ctx context.Context, id string) (*domain.User, error)
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	GetByPhone(ctx context.Context, phone string) (*domain.User, error)
	// GetByIDForUpdate and GetByEmailForUpdate lock the row until the surrounding transaction ends.
	GetByIDForUpdate(ctx context.Context, id string) (*domain.User, error)
	GetByEmailForUpdate(ctx context.Context, email string) (*domain.User, error)
	Update(ctx context.Context, user domain.User) error
	AddPasswordHistory(ctx context.Context, entry domain.PasswordHistoryEntry) error
	ListPasswordHistory(ctx context.Context, userID string, limit int) ([]domain.PasswordHistoryEntry, error)
}
