package usecase

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	uuid "github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/proyectoio2/back/internal/core/domain"
	"github.com/proyectoio2/back/internal/core/port"
	"github.com/proyectoio2/back/internal/infra/config"
	"github.com/proyectoio2/back/internal/infra/logger"
	"github.com/proyectoio2/back/internal/repository"
)

const (
	resetLinkPath         = "/auth/password-reset"
	defaultNotifyTimeout  = 10 * time.Second
	resetOutcomeSent      = "sent"
	resetOutcomeUnknown   = "unknown_email"
	resetOutcomeLimited   = "rate_limited"
	resetOutcomeNotifyErr = "notification_failed"
)

// ResetRequestResult describes what RequestReset did. Callers must answer
// with the same response whether or not a link was sent.
type ResetRequestResult struct {
	Sent      bool
	Attempts  int
	ExpiresAt time.Time
}

// PasswordResetService issues single-use reset links and applies new passwords.
type PasswordResetService struct {
	cfg      *config.AppConfig
	users    port.UserRepository
	tx       port.TxManager
	hasher   port.PasswordHasher
	policy   port.PasswordPolicy
	codec    port.TokenCodec
	ledger   *TokenLedger
	notifier port.Notifier
	events   port.EventPublisher
	metrics  port.Metrics
	logger   *zap.Logger
	now      func() time.Time
}

// NewPasswordResetService wires the reset flow dependencies.
func NewPasswordResetService(
	cfg *config.AppConfig,
	users port.UserRepository,
	tx port.TxManager,
	hasher port.PasswordHasher,
	policy port.PasswordPolicy,
	codec port.TokenCodec,
	ledger *TokenLedger,
	notifier port.Notifier,
	events port.EventPublisher,
	logger *zap.Logger,
) *PasswordResetService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PasswordResetService{
		cfg:      cfg,
		users:    users,
		tx:       tx,
		hasher:   hasher,
		policy:   policy,
		codec:    codec,
		ledger:   ledger,
		notifier: notifier,
		events:   events,
		metrics:  nopMetrics{},
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the service clock for deterministic tests.
func (s *PasswordResetService) WithClock(clock func() time.Time) {
	if clock != nil {
		s.now = clock
	}
}

// WithMetrics attaches business counters.
func (s *PasswordResetService) WithMetrics(metrics port.Metrics) {
	if metrics != nil {
		s.metrics = metrics
	}
}

// RequestReset emails a fresh reset link and voids every earlier one. The
// email is sent inside the transaction: a delivery failure rolls back the
// attempt counter.
func (s *PasswordResetService) RequestReset(ctx context.Context, email string) (ResetRequestResult, error) {
	email = normalizeEmail(email)
	log := requestLogger(ctx, s.logger)

	var result ResetRequestResult
	err := s.tx.WithinTx(ctx, func(ctx context.Context, stores port.Stores) error {
		user, err := stores.Users.GetByEmailForUpdate(ctx, email)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return nil
			}
			return fmt.Errorf("lookup user: %w", err)
		}

		now := s.now()
		maxAttempts := s.cfg.Security.MaxResetAttempts
		if user.ResetLimited(now, maxAttempts) {
			until := *user.ResetLockoutUntil
			return &RateLimitExceededError{Until: until, RetryAfterMinutes: domain.RemainingMinutes(now, until)}
		}
		if user.ResetAttempts >= maxAttempts {
			user.ClearResetCounters()
		}

		if err := s.ledger.On(stores.Ledger).RecordInvalidation(ctx, user.ID, domain.TokenTypePasswordReset); err != nil {
			return err
		}

		ttl := s.cfg.JWT.PasswordResetTokenTTL()
		token, claims, err := s.codec.Issue(user.ID, domain.TokenTypePasswordReset, ttl)
		if err != nil {
			return fmt.Errorf("issue reset token: %w", err)
		}

		if err := s.sendResetLink(ctx, user.Email, token, ttl); err != nil {
			return fmt.Errorf("%w: %v", ErrNotificationFailed, err)
		}

		user.ResetAttempts++
		stamp := now
		user.LastResetAttempt = &stamp
		if user.ResetAttempts >= maxAttempts {
			until := now.Add(time.Duration(s.cfg.Security.ResetLockoutMinutes) * time.Minute)
			user.ResetLockoutUntil = &until
		}
		user.UpdatedAt = now
		if err := stores.Users.Update(ctx, *user); err != nil {
			return fmt.Errorf("record reset attempt: %w", err)
		}

		result = ResetRequestResult{Sent: true, Attempts: user.ResetAttempts, ExpiresAt: claims.ExpiresAt}
		return nil
	})

	switch {
	case err == nil && !result.Sent:
		s.metrics.ResetRequested(resetOutcomeUnknown)
		log.Info("password reset requested for unknown email", zap.String("email", logger.MaskEmail(email)))
		return result, nil
	case err == nil:
		s.metrics.ResetRequested(resetOutcomeSent)
		log.Info("password reset link sent", zap.String("email", logger.MaskEmail(email)), zap.Int("attempts", result.Attempts))
		return result, nil
	case errors.Is(err, ErrRateLimited):
		s.metrics.ResetRequested(resetOutcomeLimited)
		log.Warn("password reset rate limited", zap.String("email", logger.MaskEmail(email)))
		return ResetRequestResult{}, err
	case errors.Is(err, ErrNotificationFailed):
		s.metrics.ResetRequested(resetOutcomeNotifyErr)
		log.Error("password reset email failed", zap.String("email", logger.MaskEmail(email)), zap.Error(err))
		return ResetRequestResult{}, err
	default:
		return ResetRequestResult{}, fmt.Errorf("request password reset: %w", err)
	}
}

// ResetLink builds the URL mailed to the user.
func (s *PasswordResetService) ResetLink(token string) string {
	base := strings.TrimRight(strings.TrimSpace(s.cfg.App.URL), "/")
	if !strings.HasPrefix(base, "http") {
		base = "https://" + base
	}
	return base + resetLinkPath + "?token=" + url.QueryEscape(token)
}

func (s *PasswordResetService) sendResetLink(ctx context.Context, to, token string, ttl time.Duration) error {
	if s.notifier == nil {
		return errors.New("no notifier configured")
	}
	timeout := s.cfg.SMTP.Timeout
	if timeout <= 0 {
		timeout = defaultNotifyTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	return s.notifier.Send(ctx, domain.Notification{
		Channel: domain.ChannelEmail,
		To:      to,
		Kind:    domain.NotificationPasswordResetLink,
		Params: map[string]any{
			"reset_url":          s.ResetLink(token),
			"expiration_minutes": int(ttl / time.Minute),
		},
	})
}

// ValidateResetToken reports whether token can still be used to reset a password.
func (s *PasswordResetService) ValidateResetToken(ctx context.Context, token string) (domain.User, error) {
	user, _, err := s.checkResetToken(ctx, s.users, s.ledger, token)
	if err != nil {
		return domain.User{}, err
	}
	return user.Sanitized(), nil
}

// checkResetToken runs the decode, user and ledger checks shared by validation
// and the reset itself.
func (s *PasswordResetService) checkResetToken(ctx context.Context, users port.UserRepository, ledger *TokenLedger, token string) (*domain.User, domain.TokenClaims, error) {
	claims, err := decodeToken(s.codec, token, domain.TokenTypePasswordReset)
	if err != nil {
		if errors.Is(err, ErrTokenExpired) {
			return nil, domain.TokenClaims{}, &ResetTokenError{Reason: ResetTokenExpired}
		}
		return nil, domain.TokenClaims{}, &ResetTokenError{Reason: ResetTokenMalformed}
	}

	user, err := users.GetByID(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, domain.TokenClaims{}, &ResetTokenError{Reason: ResetTokenNotFound}
		}
		return nil, domain.TokenClaims{}, fmt.Errorf("lookup user: %w", err)
	}

	consumed, err := ledger.IsConsumed(ctx, token)
	if err != nil {
		return nil, domain.TokenClaims{}, err
	}
	if consumed {
		return nil, domain.TokenClaims{}, &ResetTokenError{Reason: ResetTokenAlreadyUsed}
	}
	superseded, err := ledger.IsSuperseded(ctx, user.ID, claims)
	if err != nil {
		if errors.Is(err, ErrIssueTimeUnknown) {
			return nil, domain.TokenClaims{}, &ResetTokenError{Reason: ResetTokenMalformed}
		}
		return nil, domain.TokenClaims{}, err
	}
	if superseded {
		return nil, domain.TokenClaims{}, &ResetTokenError{Reason: ResetTokenSuperseded}
	}
	return user, claims, nil
}

// ResetPassword consumes token and sets newPassword. Refresh tokens issued
// before the reset stop working.
func (s *PasswordResetService) ResetPassword(ctx context.Context, token, newPassword string) error {
	user, _, err := s.checkResetToken(ctx, s.users, s.ledger, token)
	if err != nil {
		return err
	}
	if err := checkPasswordPolicy(s.policy, newPassword, user.Email, user.FullName); err != nil {
		return err
	}
	if err := checkPasswordHistory(ctx, s.users, s.hasher, user.ID, newPassword, s.cfg.Security.PasswordHistorySize); err != nil {
		return err
	}

	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	var resetAt time.Time
	err = s.tx.WithinTx(ctx, func(ctx context.Context, stores port.Stores) error {
		ledger := s.ledger.On(stores.Ledger)
		locked, err := stores.Users.GetByIDForUpdate(ctx, user.ID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return &ResetTokenError{Reason: ResetTokenNotFound}
			}
			return fmt.Errorf("lock user: %w", err)
		}

		if err := ledger.RecordUsed(ctx, token, domain.TokenTypePasswordReset, locked.ID); err != nil {
			if errors.Is(err, ErrConflict) {
				return &ResetTokenError{Reason: ResetTokenAlreadyUsed}
			}
			return err
		}

		now := s.now()
		locked.PasswordHash = hash
		locked.ClearResetCounters()
		locked.UpdatedAt = now
		if err := stores.Users.Update(ctx, *locked); err != nil {
			return fmt.Errorf("update password: %w", err)
		}
		if err := stores.Users.AddPasswordHistory(ctx, domain.PasswordHistoryEntry{
			ID:           uuid.NewString(),
			UserID:       locked.ID,
			PasswordHash: hash,
			CreatedAt:    now,
		}); err != nil {
			return fmt.Errorf("append password history: %w", err)
		}
		if err := ledger.RecordInvalidation(ctx, locked.ID, domain.TokenTypeRefresh); err != nil {
			return err
		}
		resetAt = now
		return nil
	})
	if err != nil {
		if isDomainError(err) {
			return err
		}
		return fmt.Errorf("reset password: %w", err)
	}

	log := requestLogger(ctx, s.logger)
	log.Info("password reset completed", zap.String("user_id", user.ID))
	if s.events != nil {
		event := domain.PasswordResetEvent{EventID: uuid.NewString(), UserID: user.ID, ResetAt: resetAt}
		if err := s.events.PublishPasswordReset(ctx, event); err != nil {
			log.Warn("publish password reset event failed", zap.String("user_id", user.ID), zap.Error(err))
		}
	}
	return nil
}

// checkPasswordHistory rejects password when it matches one of the last limit hashes.
func checkPasswordHistory(ctx context.Context, users port.UserRepository, hasher port.PasswordHasher, userID, password string, limit int) error {
	if limit <= 0 {
		return nil
	}
	history, err := users.ListPasswordHistory(ctx, userID, limit)
	if err != nil {
		return fmt.Errorf("load password history: %w", err)
	}
	for _, entry := range history {
		match, err := hasher.Verify(password, entry.PasswordHash)
		if err != nil {
			return fmt.Errorf("compare password history: %w", err)
		}
		if match {
			return ErrPasswordHistoryViolation
		}
	}
	return nil
}
