package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	uuid "github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/proyectoio2/back/internal/core/domain"
	"github.com/proyectoio2/back/internal/core/port"
	"github.com/proyectoio2/back/internal/infra/config"
	"github.com/proyectoio2/back/internal/repository"
)

// ProfileService lets a signed-in user read and edit their own account.
type ProfileService struct {
	cfg    *config.AppConfig
	users  port.UserRepository
	tx     port.TxManager
	hasher port.PasswordHasher
	policy port.PasswordPolicy
	logger *zap.Logger
	now    func() time.Time
}

// NewProfileService constructs a ProfileService.
func NewProfileService(cfg *config.AppConfig, users port.UserRepository, tx port.TxManager, hasher port.PasswordHasher, policy port.PasswordPolicy, logger *zap.Logger) *ProfileService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ProfileService{
		cfg:    cfg,
		users:  users,
		tx:     tx,
		hasher: hasher,
		policy: policy,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the service clock for deterministic tests.
func (s *ProfileService) WithClock(clock func() time.Time) {
	if clock != nil {
		s.now = clock
	}
}

// GetProfile returns the current state of the user.
func (s *ProfileService) GetProfile(ctx context.Context, userID string) (domain.User, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return domain.User{}, ErrUserNotFound
		}
		return domain.User{}, fmt.Errorf("lookup user: %w", err)
	}
	return user.Sanitized(), nil
}

// UpdateProfile applies patch in a single transaction. Field and credential
// problems come back as their own errors; anything else that aborts the
// transaction is reported as *UpdateFailedError.
func (s *ProfileService) UpdateProfile(ctx context.Context, userID string, patch domain.ProfilePatch) (domain.User, error) {
	patch = normalizePatch(patch)
	if patch.Empty() {
		return s.GetProfile(ctx, userID)
	}
	if err := validatePatch(patch); err != nil {
		return domain.User{}, err
	}

	var (
		updated domain.User
		changed []string
	)
	err := s.tx.WithinTx(ctx, func(ctx context.Context, stores port.Stores) error {
		user, err := stores.Users.GetByIDForUpdate(ctx, userID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return ErrUserNotFound
			}
			return fmt.Errorf("lock user: %w", err)
		}

		var newHash string
		if patch.ChangesPassword() {
			newHash, err = s.preparePasswordChange(ctx, stores.Users, user, patch)
			if err != nil {
				return err
			}
		}

		if patch.Email != nil && *patch.Email != user.Email {
			if err := ensureUnique(ctx, stores.Users, "email", *patch.Email, user.ID); err != nil {
				return err
			}
		}
		if patch.PhoneNumber != nil && *patch.PhoneNumber != user.PhoneNumber {
			if err := ensureUnique(ctx, stores.Users, "phone_number", *patch.PhoneNumber, user.ID); err != nil {
				return err
			}
		}

		now := s.now()
		changed = domain.ApplyProfilePatch(user, patch)
		if newHash != "" {
			user.PasswordHash = newHash
			changed = append(changed, "password")
			if err := stores.Users.AddPasswordHistory(ctx, domain.PasswordHistoryEntry{
				ID:           uuid.NewString(),
				UserID:       user.ID,
				PasswordHash: newHash,
				CreatedAt:    now,
			}); err != nil {
				return fmt.Errorf("append password history: %w", err)
			}
		}
		if len(changed) > 0 {
			user.UpdatedAt = now
			if err := stores.Users.Update(ctx, *user); err != nil {
				if errors.Is(err, repository.ErrConflict) {
					return &ConflictError{}
				}
				return fmt.Errorf("update user: %w", err)
			}
		}
		updated = user.Sanitized()
		return nil
	})
	if err != nil {
		if isDomainError(err) {
			return domain.User{}, err
		}
		requestLogger(ctx, s.logger).Error("profile update rolled back", zap.String("user_id", userID), zap.Error(err))
		return domain.User{}, &UpdateFailedError{Cause: err}
	}

	if len(changed) > 0 {
		requestLogger(ctx, s.logger).Info("profile updated", zap.String("user_id", userID), zap.Strings("fields", changed))
	}
	return updated, nil
}

func (s *ProfileService) preparePasswordChange(ctx context.Context, users port.UserRepository, user *domain.User, patch domain.ProfilePatch) (string, error) {
	if patch.CurrentPassword == nil || *patch.CurrentPassword == "" {
		return "", newValidationError("current_password", "current password is required to set a new one")
	}
	ok, err := s.hasher.Verify(*patch.CurrentPassword, user.PasswordHash)
	if err != nil {
		return "", fmt.Errorf("verify current password: %w", err)
	}
	if !ok {
		return "", ErrInvalidCredentials
	}

	email, fullName := user.Email, user.FullName
	if patch.Email != nil {
		email = *patch.Email
	}
	if patch.FullName != nil {
		fullName = *patch.FullName
	}
	if err := checkPasswordPolicy(s.policy, *patch.NewPassword, email, fullName); err != nil {
		return "", err
	}
	if err := checkPasswordHistory(ctx, users, s.hasher, user.ID, *patch.NewPassword, s.cfg.Security.ProfileHistorySize); err != nil {
		return "", err
	}

	hash, err := s.hasher.Hash(*patch.NewPassword)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return hash, nil
}

func normalizePatch(patch domain.ProfilePatch) domain.ProfilePatch {
	trim := func(v *string, lower bool) *string {
		if v == nil {
			return nil
		}
		out := strings.TrimSpace(*v)
		if lower {
			out = strings.ToLower(out)
		}
		return &out
	}
	patch.Email = trim(patch.Email, true)
	patch.FullName = trim(patch.FullName, false)
	patch.PhoneNumber = trim(patch.PhoneNumber, false)
	patch.Address = trim(patch.Address, false)
	return patch
}

func validatePatch(patch domain.ProfilePatch) error {
	if patch.Email != nil {
		if err := validateEmail(*patch.Email); err != nil {
			return err
		}
	}
	if patch.FullName != nil {
		if err := validateFullName(*patch.FullName); err != nil {
			return err
		}
	}
	if patch.PhoneNumber != nil {
		if err := validatePhone(*patch.PhoneNumber); err != nil {
			return err
		}
	}
	if patch.Address != nil {
		if err := validateAddress(*patch.Address); err != nil {
			return err
		}
	}
	return nil
}
