package usecase

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/proyectoio2/back/internal/core/domain"
)

func resetTokenFrom(t *testing.T, n domain.Notification) string {
	t.Helper()
	link, ok := n.Params["reset_url"].(string)
	if !ok {
		t.Fatalf("notification has no reset_url: %+v", n.Params)
	}
	parsed, err := url.Parse(link)
	if err != nil {
		t.Fatalf("parse reset link: %v", err)
	}
	token := parsed.Query().Get("token")
	if token == "" {
		t.Fatalf("reset link without token: %s", link)
	}
	return token
}

func requestResetToken(t *testing.T, f *fixture, email string) string {
	t.Helper()
	res, err := f.reset.RequestReset(context.Background(), email)
	if err != nil {
		t.Fatalf("request reset: %v", err)
	}
	if !res.Sent {
		t.Fatalf("expected a reset link to be sent")
	}
	return resetTokenFrom(t, f.notifier.last(t))
}

func TestRequestResetUnknownEmail(t *testing.T) {
	f := newFixture(t)

	res, err := f.reset.RequestReset(context.Background(), "ghost@example.com")
	if err != nil {
		t.Fatalf("expected generic success, got %v", err)
	}
	if res.Sent || f.notifier.count() != 0 {
		t.Fatalf("expected nothing to be sent for an unknown email")
	}
	if f.metrics.resets[resetOutcomeUnknown] != 1 {
		t.Fatalf("expected unknown email metric, got %v", f.metrics.resets)
	}
}

func TestRequestResetSendsLink(t *testing.T) {
	f := newFixture(t)
	user := f.seedUser(t, "ana@example.com")

	token := requestResetToken(t, f, "ANA@example.com")
	n := f.notifier.last(t)
	if n.Channel != domain.ChannelEmail || n.Kind != domain.NotificationPasswordResetLink || n.To != user.Email {
		t.Fatalf("unexpected notification %+v", n)
	}
	if link := n.Params["reset_url"].(string); !strings.HasPrefix(link, "https://shop.example.com/auth/password-reset?token=") {
		t.Fatalf("unexpected link %s", link)
	}
	if n.Params["expiration_minutes"] != 30 {
		t.Fatalf("expected 30 minute expiry, got %v", n.Params["expiration_minutes"])
	}

	stored := f.db.user(user.ID)
	if stored.ResetAttempts != 1 || stored.LastResetAttempt == nil {
		t.Fatalf("expected attempt to be recorded, got %+v", stored)
	}
	if _, err := f.reset.ValidateResetToken(context.Background(), token); err != nil {
		t.Fatalf("expected fresh token to validate, got %v", err)
	}
}

func TestRequestResetSupersedesPreviousLink(t *testing.T) {
	f := newFixture(t)
	f.seedUser(t, "ana@example.com")
	ctx := context.Background()

	first := requestResetToken(t, f, "ana@example.com")
	f.clock.Advance(time.Second)
	second := requestResetToken(t, f, "ana@example.com")

	_, err := f.reset.ValidateResetToken(ctx, first)
	var rerr *ResetTokenError
	if !errors.As(err, &rerr) || rerr.Reason != ResetTokenSuperseded {
		t.Fatalf("expected first link superseded, got %v", err)
	}
	if !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected superseded link to match ErrInvalidToken")
	}
	if _, err := f.reset.ValidateResetToken(ctx, second); err != nil {
		t.Fatalf("expected newest link valid, got %v", err)
	}
}

func TestRequestResetSupersedesLinkFromSameSecond(t *testing.T) {
	f := newFixture(t)
	f.seedUser(t, "ana@example.com")
	ctx := context.Background()

	first := requestResetToken(t, f, "ana@example.com")
	f.clock.Advance(200 * time.Millisecond)
	second := requestResetToken(t, f, "ana@example.com")

	var rerr *ResetTokenError
	if _, err := f.reset.ValidateResetToken(ctx, first); !errors.As(err, &rerr) || rerr.Reason != ResetTokenSuperseded {
		t.Fatalf("expected a double-click to void the first link, got %v", err)
	}
	if _, err := f.reset.ValidateResetToken(ctx, second); err != nil {
		t.Fatalf("expected newest link valid, got %v", err)
	}
}

func TestRequestResetRateLimit(t *testing.T) {
	f := newFixture(t)
	user := f.seedUser(t, "ana@example.com")
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		requestResetToken(t, f, user.Email)
		f.clock.Advance(time.Second)
	}
	stored := f.db.user(user.ID)
	if stored.ResetAttempts != 3 || stored.ResetLockoutUntil == nil {
		t.Fatalf("expected lockout after three requests, got %+v", stored)
	}

	sent := f.notifier.count()
	_, err := f.reset.RequestReset(ctx, user.Email)
	var limited *RateLimitExceededError
	if !errors.As(err, &limited) || !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected rate limit, got %v", err)
	}
	if limited.RetryAfterMinutes != 15 {
		t.Fatalf("expected 15 minutes retry, got %d", limited.RetryAfterMinutes)
	}
	if f.notifier.count() != sent {
		t.Fatalf("expected no email while rate limited")
	}

	f.clock.Advance(15 * time.Minute)
	requestResetToken(t, f, user.Email)
	stored = f.db.user(user.ID)
	if stored.ResetAttempts != 1 || stored.ResetLockoutUntil != nil {
		t.Fatalf("expected counters reset after lockout, got %+v", stored)
	}
}

func TestRequestResetNotificationFailureRollsBack(t *testing.T) {
	f := newFixture(t)
	user := f.seedUser(t, "ana@example.com")
	f.notifier.err = errors.New("smtp: connection refused")

	_, err := f.reset.RequestReset(context.Background(), user.Email)
	if !errors.Is(err, ErrNotificationFailed) {
		t.Fatalf("expected ErrNotificationFailed, got %v", err)
	}
	if got := f.db.user(user.ID).ResetAttempts; got != 0 {
		t.Fatalf("expected attempt counter rolled back, got %d", got)
	}
	if rows := f.db.ledgerRows(); len(rows) != 0 {
		t.Fatalf("expected invalidation marker rolled back, got %d rows", len(rows))
	}
}

func TestResetPasswordFlow(t *testing.T) {
	f := newFixture(t)
	user := f.seedUser(t, "ana@example.com")
	ctx := context.Background()

	pair, _, err := f.auth.Login(ctx, user.Email, testPassword)
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	token := requestResetToken(t, f, user.Email)
	f.clock.Advance(time.Second)

	const newPassword = "N3w!Secreto"
	if err := f.reset.ResetPassword(ctx, token, newPassword); err != nil {
		t.Fatalf("reset password: %v", err)
	}

	if _, err := f.auth.Authenticate(ctx, user.Email, testPassword); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected old password refused, got %v", err)
	}
	if _, err := f.auth.Authenticate(ctx, user.Email, newPassword); err != nil {
		t.Fatalf("expected new password accepted, got %v", err)
	}

	stored := f.db.user(user.ID)
	if stored.ResetAttempts != 0 || stored.ResetLockoutUntil != nil {
		t.Fatalf("expected reset counters cleared, got %+v", stored)
	}
	if len(f.events.resets) != 1 {
		t.Fatalf("expected a password reset event")
	}

	err = f.reset.ResetPassword(ctx, token, "An0ther!Secret")
	var rerr *ResetTokenError
	if !errors.As(err, &rerr) || rerr.Reason != ResetTokenAlreadyUsed || !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected reused link refused, got %v", err)
	}

	if _, _, err := f.auth.Refresh(ctx, pair.RefreshToken); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected refresh token issued before the reset to die, got %v", err)
	}
}

func TestResetPasswordRejectsRecentPassword(t *testing.T) {
	f := newFixture(t)
	user := f.seedUser(t, "ana@example.com")

	token := requestResetToken(t, f, user.Email)
	if err := f.reset.ResetPassword(context.Background(), token, testPassword); !errors.Is(err, ErrPasswordHistoryViolation) {
		t.Fatalf("expected history violation, got %v", err)
	}
	if _, err := f.reset.ValidateResetToken(context.Background(), token); err != nil {
		t.Fatalf("expected link still usable after a rejected password, got %v", err)
	}
}

func TestResetPasswordAllowsReuseOutsideHistoryWindow(t *testing.T) {
	f := newFixture(t)
	user := f.seedUser(t, "ana@example.com")
	ctx := context.Background()

	rotations := []string{"Rotacion1!Uno", "Rotacion2!Dos", "Rotacion3!Tres", "Rotacion4!Cuatro", "Rotacion5!Cinco"}
	if len(rotations) != f.cfg.Security.PasswordHistorySize {
		t.Fatalf("rotations must fill the history window")
	}

	for i, password := range rotations {
		if err := f.reset.ResetPassword(ctx, requestResetToken(t, f, user.Email), password); err != nil {
			t.Fatalf("reset %d: %v", i+1, err)
		}
		f.clock.Advance(time.Minute)

		if i < len(rotations)-1 {
			err := f.reset.ResetPassword(ctx, requestResetToken(t, f, user.Email), testPassword)
			if !errors.Is(err, ErrPasswordHistoryViolation) {
				t.Fatalf("after %d resets expected the original password refused, got %v", i+1, err)
			}
			f.clock.Advance(time.Minute)
		}
	}

	if err := f.reset.ResetPassword(ctx, requestResetToken(t, f, user.Email), testPassword); err != nil {
		t.Fatalf("expected the original password accepted once it left the window, got %v", err)
	}
	if _, err := f.auth.Authenticate(ctx, user.Email, testPassword); err != nil {
		t.Fatalf("expected login with the original password, got %v", err)
	}
}

func TestResetPasswordRejectsWeakPassword(t *testing.T) {
	f := newFixture(t)
	user := f.seedUser(t, "ana@example.com")

	token := requestResetToken(t, f, user.Email)
	err := f.reset.ResetPassword(context.Background(), token, "alllowercase1!")
	var verr *ValidationError
	if !errors.As(err, &verr) || verr.Field != "password" {
		t.Fatalf("expected password validation error, got %v", err)
	}
}

func TestValidateResetTokenReasons(t *testing.T) {
	f := newFixture(t)
	user := f.seedUser(t, "ana@example.com")
	ctx := context.Background()

	var rerr *ResetTokenError
	if _, err := f.reset.ValidateResetToken(ctx, "definitely-not-a-jwt"); !errors.As(err, &rerr) || rerr.Reason != ResetTokenMalformed {
		t.Fatalf("expected malformed, got %v", err)
	}

	access, _, err := f.auth.CreateAccessToken(user.ID)
	if err != nil {
		t.Fatalf("access token: %v", err)
	}
	if _, err := f.reset.ValidateResetToken(ctx, access); !errors.As(err, &rerr) || rerr.Reason != ResetTokenMalformed {
		t.Fatalf("expected access token refused as malformed, got %v", err)
	}

	orphan, _, err := f.codec.Issue("0b0c3c56-8d43-4c5e-8f0e-5a3c0e1c9a77", domain.TokenTypePasswordReset, 30*time.Minute)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	_, err = f.reset.ValidateResetToken(ctx, orphan)
	if !errors.As(err, &rerr) || rerr.Reason != ResetTokenNotFound || !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}

	token := requestResetToken(t, f, user.Email)
	f.clock.Advance(31 * time.Minute)
	_, err = f.reset.ValidateResetToken(ctx, token)
	if !errors.As(err, &rerr) || rerr.Reason != ResetTokenExpired || !errors.Is(err, ErrTokenExpired) {
		t.Fatalf("expected expired, got %v", err)
	}
}
