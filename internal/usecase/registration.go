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
	"github.com/proyectoio2/back/internal/infra/logger"
	"github.com/proyectoio2/back/internal/repository"
)

// RegisterInput carries the fields accepted at sign up.
type RegisterInput struct {
	Email       string
	FullName    string
	PhoneNumber string
	Address     string
	Password    string
}

func (in RegisterInput) normalized() RegisterInput {
	in.Email = normalizeEmail(in.Email)
	in.FullName = strings.TrimSpace(in.FullName)
	in.PhoneNumber = strings.TrimSpace(in.PhoneNumber)
	in.Address = strings.TrimSpace(in.Address)
	return in
}

// RegistrationService handles new account onboarding.
type RegistrationService struct {
	users    port.UserRepository
	tx       port.TxManager
	hasher   port.PasswordHasher
	policy   port.PasswordPolicy
	notifier port.Notifier
	events   port.EventPublisher
	logger   *zap.Logger
	now      func() time.Time
}

// NewRegistrationService constructs a registration service.
func NewRegistrationService(
	users port.UserRepository,
	tx port.TxManager,
	hasher port.PasswordHasher,
	policy port.PasswordPolicy,
	notifier port.Notifier,
	events port.EventPublisher,
	logger *zap.Logger,
) *RegistrationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RegistrationService{
		users:    users,
		tx:       tx,
		hasher:   hasher,
		policy:   policy,
		notifier: notifier,
		events:   events,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the service clock for deterministic tests.
func (s *RegistrationService) WithClock(clock func() time.Time) {
	if clock != nil {
		s.now = clock
	}
}

// Validate checks every registration field. The first failure is returned.
func (s *RegistrationService) Validate(in RegisterInput) error {
	in = in.normalized()
	if err := validateEmail(in.Email); err != nil {
		return err
	}
	if err := validateFullName(in.FullName); err != nil {
		return err
	}
	if err := validatePhone(in.PhoneNumber); err != nil {
		return err
	}
	if err := validateAddress(in.Address); err != nil {
		return err
	}
	return checkPasswordPolicy(s.policy, in.Password, in.Email, in.FullName)
}

// Register creates the user and its first password history row in one
// transaction. The welcome email and the registration event are best effort.
func (s *RegistrationService) Register(ctx context.Context, in RegisterInput) (domain.User, error) {
	in = in.normalized()
	if err := s.Validate(in); err != nil {
		return domain.User{}, err
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return domain.User{}, fmt.Errorf("hash password: %w", err)
	}

	now := s.now()
	user := domain.User{
		ID:           uuid.NewString(),
		Email:        in.Email,
		FullName:     in.FullName,
		PhoneNumber:  in.PhoneNumber,
		Address:      in.Address,
		PasswordHash: hash,
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	err = s.tx.WithinTx(ctx, func(ctx context.Context, stores port.Stores) error {
		if err := ensureUnique(ctx, stores.Users, "email", user.Email, ""); err != nil {
			return err
		}
		if err := ensureUnique(ctx, stores.Users, "phone_number", user.PhoneNumber, ""); err != nil {
			return err
		}
		if err := stores.Users.Create(ctx, user); err != nil {
			if errors.Is(err, repository.ErrConflict) {
				return &ConflictError{}
			}
			return fmt.Errorf("create user: %w", err)
		}
		return stores.Users.AddPasswordHistory(ctx, domain.PasswordHistoryEntry{
			ID:           uuid.NewString(),
			UserID:       user.ID,
			PasswordHash: hash,
			CreatedAt:    now,
		})
	})
	if err != nil {
		if isDomainError(err) {
			return domain.User{}, err
		}
		return domain.User{}, fmt.Errorf("register: %w", err)
	}

	log := requestLogger(ctx, s.logger)
	log.Info("user registered", zap.String("user_id", user.ID), zap.String("email", logger.MaskEmail(user.Email)))

	if s.notifier != nil {
		welcome := domain.Notification{
			Channel: domain.ChannelEmail,
			To:      user.Email,
			Kind:    domain.NotificationWelcome,
			Params:  map[string]any{"full_name": user.FullName},
		}
		if err := s.notifier.Send(ctx, welcome); err != nil {
			log.Warn("welcome email failed", zap.String("user_id", user.ID), zap.Error(err))
		}
	}
	if s.events != nil {
		event := domain.UserRegisteredEvent{
			EventID:      uuid.NewString(),
			UserID:       user.ID,
			Email:        user.Email,
			RegisteredAt: now,
		}
		if err := s.events.PublishUserRegistered(ctx, event); err != nil {
			log.Warn("publish user registered event failed", zap.String("user_id", user.ID), zap.Error(err))
		}
	}

	return user.Sanitized(), nil
}

// ensureUnique fails with a *ConflictError when value is held by a user other than selfID.
func ensureUnique(ctx context.Context, users port.UserRepository, field, value, selfID string) error {
	var (
		existing *domain.User
		err      error
	)
	switch field {
	case "email":
		existing, err = users.GetByEmail(ctx, value)
	case "phone_number":
		existing, err = users.GetByPhone(ctx, value)
	default:
		return fmt.Errorf("unsupported unique field %q", field)
	}
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return nil
	case err != nil:
		return fmt.Errorf("lookup %s: %w", field, err)
	case existing.ID == selfID:
		return nil
	default:
		return &ConflictError{Field: field}
	}
}
