package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	uuid "github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/proyectoio2/back/internal/core/domain"
	"github.com/proyectoio2/back/internal/core/port"
	"github.com/proyectoio2/back/internal/infra/config"
	"github.com/proyectoio2/back/internal/infra/logger"
	"github.com/proyectoio2/back/internal/infra/security"
	"github.com/proyectoio2/back/internal/repository"
)

const (
	bearerTokenType = "bearer"
	maxLockoutShift = 16
)

// Login outcomes reported to port.Metrics.
const (
	outcomeSuccess            = "success"
	outcomeInvalidCredentials = "invalid_credentials"
	outcomeLocked             = "locked"
)

// LockoutDuration returns base doubled once for every failure past threshold.
// Reaching the threshold yields base.
func LockoutDuration(base time.Duration, threshold, failed int) time.Duration {
	shift := failed - threshold
	if shift < 0 {
		shift = 0
	}
	if shift > maxLockoutShift {
		shift = maxLockoutShift
	}
	return base * time.Duration(1<<uint(shift))
}

// AuthService coordinates login, lockout, token issuance and refresh.
type AuthService struct {
	cfg     *config.AppConfig
	users   port.UserRepository
	tx      port.TxManager
	hasher  port.PasswordHasher
	codec   port.TokenCodec
	ledger  *TokenLedger
	events  port.EventPublisher
	metrics port.Metrics
	logger  *zap.Logger
	now     func() time.Time

	decoyOnce sync.Once
	decoyHash string
}

// NewAuthService constructs an AuthService instance.
func NewAuthService(
	cfg *config.AppConfig,
	users port.UserRepository,
	tx port.TxManager,
	hasher port.PasswordHasher,
	codec port.TokenCodec,
	ledger *TokenLedger,
	events port.EventPublisher,
	logger *zap.Logger,
) *AuthService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuthService{
		cfg:     cfg,
		users:   users,
		tx:      tx,
		hasher:  hasher,
		codec:   codec,
		ledger:  ledger,
		events:  events,
		metrics: nopMetrics{},
		logger:  logger,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the service clock for deterministic tests.
func (s *AuthService) WithClock(clock func() time.Time) {
	if clock != nil {
		s.now = clock
	}
}

// WithMetrics attaches business counters.
func (s *AuthService) WithMetrics(metrics port.Metrics) {
	if metrics != nil {
		s.metrics = metrics
	}
}

// Authenticate checks credentials under a row lock so concurrent failures
// never lose counter increments. Failed attempts are committed even though
// the call returns an error.
func (s *AuthService) Authenticate(ctx context.Context, email, password string) (domain.User, error) {
	email = normalizeEmail(email)
	if email == "" || password == "" {
		return domain.User{}, ErrInvalidCredentials
	}

	var (
		authed  domain.User
		authErr error
		locked  *domain.AccountLockedEvent
	)

	err := s.tx.WithinTx(ctx, func(ctx context.Context, stores port.Stores) error {
		user, err := stores.Users.GetByEmailForUpdate(ctx, email)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				s.verifyDecoy(password)
				authErr = ErrInvalidCredentials
				return nil
			}
			return fmt.Errorf("lookup user: %w", err)
		}

		now := s.now()
		if user.LockActive(now) {
			authErr = &AccountLockedError{Until: *user.LockedUntil, RemainingMinutes: domain.RemainingMinutes(now, *user.LockedUntil)}
			return nil
		}
		expired := user.LockExpired(now)
		if expired {
			user.ClearLock()
		}

		ok, err := s.hasher.Verify(password, user.PasswordHash)
		if err != nil {
			return fmt.Errorf("verify password: %w", err)
		}

		if !ok {
			user.FailedLoginAttempts++
			threshold := s.cfg.Security.MaxLoginAttempts
			if user.FailedLoginAttempts >= threshold {
				base := time.Duration(s.cfg.Security.AccountLockoutMinutes) * time.Minute
				until := now.Add(LockoutDuration(base, threshold, user.FailedLoginAttempts))
				user.Lock(until)
				authErr = &AccountLockedError{Until: until, RemainingMinutes: domain.RemainingMinutes(now, until)}
				locked = &domain.AccountLockedEvent{
					EventID:        uuid.NewString(),
					UserID:         user.ID,
					FailedAttempts: user.FailedLoginAttempts,
					LockedUntil:    until,
				}
			} else {
				authErr = ErrInvalidCredentials
			}
			user.UpdatedAt = now
			if err := stores.Users.Update(ctx, *user); err != nil {
				return fmt.Errorf("record failed login: %w", err)
			}
			return nil
		}

		if !user.IsActive {
			authErr = ErrInvalidCredentials
			return nil
		}

		changed := user.ClearLock() || expired
		if s.hasher.NeedsRehash(user.PasswordHash) {
			rehashed, err := s.hasher.Hash(password)
			if err != nil {
				s.logger.Warn("password rehash failed", zap.String("user_id", user.ID), zap.Error(err))
			} else {
				user.PasswordHash = rehashed
				changed = true
			}
		}
		if changed {
			user.UpdatedAt = now
			if err := stores.Users.Update(ctx, *user); err != nil {
				return fmt.Errorf("reset login counters: %w", err)
			}
		}

		authed = user.Sanitized()
		return nil
	})
	if err != nil {
		return domain.User{}, fmt.Errorf("authenticate: %w", err)
	}

	log := requestLogger(ctx, s.logger)
	switch {
	case locked != nil:
		s.metrics.LoginAttempt(outcomeLocked)
		s.metrics.AccountLocked()
		log.Warn("account locked after failed logins",
			zap.String("user_id", locked.UserID),
			zap.Int("failed_attempts", locked.FailedAttempts),
			zap.Time("locked_until", locked.LockedUntil),
		)
		s.publishAccountLocked(ctx, *locked)
	case errors.Is(authErr, ErrAccountLocked):
		s.metrics.LoginAttempt(outcomeLocked)
	case authErr != nil:
		s.metrics.LoginAttempt(outcomeInvalidCredentials)
		log.Info("login rejected", zap.String("email", logger.MaskEmail(email)))
	default:
		s.metrics.LoginAttempt(outcomeSuccess)
	}

	if authErr != nil {
		return domain.User{}, authErr
	}
	return authed, nil
}

// Login authenticates and issues a token pair.
func (s *AuthService) Login(ctx context.Context, email, password string) (domain.TokenPair, domain.User, error) {
	user, err := s.Authenticate(ctx, email, password)
	if err != nil {
		return domain.TokenPair{}, domain.User{}, err
	}
	pair, err := s.IssueTokenPair(user)
	if err != nil {
		return domain.TokenPair{}, domain.User{}, err
	}
	return pair, user, nil
}

// CreateAccessToken signs an access token for userID.
func (s *AuthService) CreateAccessToken(userID string) (string, domain.TokenClaims, error) {
	token, claims, err := s.codec.Issue(userID, domain.TokenTypeAccess, s.cfg.JWT.AccessTokenTTL())
	if err != nil {
		return "", domain.TokenClaims{}, fmt.Errorf("issue access token: %w", err)
	}
	return token, claims, nil
}

// CreateRefreshToken signs a refresh token for userID.
func (s *AuthService) CreateRefreshToken(userID string) (string, domain.TokenClaims, error) {
	token, claims, err := s.codec.Issue(userID, domain.TokenTypeRefresh, s.cfg.JWT.RefreshTokenTTL())
	if err != nil {
		return "", domain.TokenClaims{}, fmt.Errorf("issue refresh token: %w", err)
	}
	return token, claims, nil
}

// IssueTokenPair signs a fresh access and refresh token for user.
func (s *AuthService) IssueTokenPair(user domain.User) (domain.TokenPair, error) {
	if user.ID == "" {
		return domain.TokenPair{}, fmt.Errorf("user id is required")
	}
	access, accessClaims, err := s.CreateAccessToken(user.ID)
	if err != nil {
		return domain.TokenPair{}, err
	}
	refresh, refreshClaims, err := s.CreateRefreshToken(user.ID)
	if err != nil {
		return domain.TokenPair{}, err
	}
	return domain.TokenPair{
		AccessToken:      access,
		RefreshToken:     refresh,
		TokenType:        bearerTokenType,
		AccessExpiresAt:  accessClaims.ExpiresAt,
		RefreshExpiresAt: refreshClaims.ExpiresAt,
	}, nil
}

// ResolveIdentity maps a bearer access token to its user. Access tokens are
// not checked against the ledger.
func (s *AuthService) ResolveIdentity(ctx context.Context, bearer string) (domain.User, error) {
	claims, err := s.decode(bearer, domain.TokenTypeAccess)
	if err != nil {
		return domain.User{}, err
	}

	user, err := s.users.GetByID(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return domain.User{}, ErrUserNotFound
		}
		return domain.User{}, fmt.Errorf("lookup user: %w", err)
	}
	if !user.IsActive {
		return domain.User{}, ErrInvalidCredentials
	}
	return user.Sanitized(), nil
}

// Refresh rotates a refresh token. The presented token is recorded as used in
// the same transaction that issues its replacement, so a replay loses on the
// ledger's unique digest.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (domain.TokenPair, domain.User, error) {
	claims, err := s.decode(refreshToken, domain.TokenTypeRefresh)
	if err != nil {
		return domain.TokenPair{}, domain.User{}, err
	}

	var (
		pair domain.TokenPair
		out  domain.User
	)
	err = s.tx.WithinTx(ctx, func(ctx context.Context, stores port.Stores) error {
		user, err := stores.Users.GetByIDForUpdate(ctx, claims.Subject)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return ErrUserNotFound
			}
			return fmt.Errorf("lookup user: %w", err)
		}
		if !user.IsActive {
			return ErrInvalidCredentials
		}

		ledger := s.ledger.On(stores.Ledger)
		consumed, err := ledger.IsConsumed(ctx, refreshToken)
		if err != nil {
			return err
		}
		if consumed {
			return ErrInvalidToken
		}
		superseded, err := ledger.IsSuperseded(ctx, user.ID, claims)
		if err != nil {
			if errors.Is(err, ErrIssueTimeUnknown) {
				return ErrInvalidToken
			}
			return err
		}
		if superseded {
			return ErrInvalidToken
		}
		if err := ledger.RecordUsed(ctx, refreshToken, domain.TokenTypeRefresh, user.ID); err != nil {
			if errors.Is(err, ErrConflict) {
				return ErrInvalidToken
			}
			return err
		}

		pair, err = s.IssueTokenPair(*user)
		if err != nil {
			return err
		}
		out = user.Sanitized()
		return nil
	})
	if err != nil {
		if isDomainError(err) {
			return domain.TokenPair{}, domain.User{}, err
		}
		return domain.TokenPair{}, domain.User{}, fmt.Errorf("refresh: %w", err)
	}
	return pair, out, nil
}

// decode verifies token and requires the expected type and a UUID subject.
func (s *AuthService) decode(token string, want domain.TokenType) (domain.TokenClaims, error) {
	return decodeToken(s.codec, token, want)
}

func decodeToken(codec port.TokenCodec, token string, want domain.TokenType) (domain.TokenClaims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return domain.TokenClaims{}, ErrInvalidToken
	}
	claims, err := codec.Decode(token)
	if err != nil {
		if errors.Is(err, security.ErrTokenExpired) {
			return domain.TokenClaims{}, ErrTokenExpired
		}
		return domain.TokenClaims{}, ErrInvalidToken
	}
	if claims.Type != want {
		return domain.TokenClaims{}, ErrInvalidToken
	}
	if _, err := uuid.Parse(claims.Subject); err != nil {
		return domain.TokenClaims{}, ErrInvalidToken
	}
	return claims, nil
}

func (s *AuthService) publishAccountLocked(ctx context.Context, event domain.AccountLockedEvent) {
	if s.events == nil {
		return
	}
	if err := s.events.PublishAccountLocked(ctx, event); err != nil {
		s.logger.Warn("publish account locked event failed", zap.String("user_id", event.UserID), zap.Error(err))
	}
}

// requestLogger tags base with the request id carried by ctx.
func requestLogger(ctx context.Context, base *zap.Logger) *zap.Logger {
	if id := logger.RequestIDFromContext(ctx); id != "" {
		return base.With(zap.String("request_id", id))
	}
	return base
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// isDomainError reports whether err is one of the sentinels the transport maps to a status code.
func isDomainError(err error) bool {
	for _, target := range []error{
		ErrInvalidCredentials,
		ErrAccountLocked,
		ErrConflict,
		ErrValidation,
		ErrTokenExpired,
		ErrInvalidToken,
		ErrRateLimited,
		ErrPasswordHistoryViolation,
		ErrUserNotFound,
		ErrNotificationFailed,
		ErrUpdateFailed,
		ErrProductNotFound,
		ErrCartNotFound,
		ErrCartEmpty,
		ErrInsufficientStock,
		ErrProductUnavailable,
		ErrInvalidImage,
		ErrStorageUnavailable,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

type nopMetrics struct{}

func (nopMetrics) LoginAttempt(string)   {}
func (nopMetrics) AccountLocked()        {}
func (nopMetrics) ResetRequested(string) {}
func (nopMetrics) OrderPlaced(float64)   {}

// verifyDecoy spends one hash verification so unknown emails answer in about
// the same time as a wrong password.
func (s *AuthService) verifyDecoy(password string) {
	s.decoyOnce.Do(func() {
		hash, err := s.hasher.Hash(uuid.NewString())
		if err != nil {
			s.logger.Warn("failed to prepare decoy password hash", zap.Error(err))
			return
		}
		s.decoyHash = hash
	})
	if s.decoyHash != "" {
		_, _ = s.hasher.Verify(password, s.decoyHash)
	}
}
