package usecase

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrInvalidCredentials indicates the provided email or password are incorrect.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrAccountLocked indicates the account is locked after repeated failed logins.
	ErrAccountLocked = errors.New("account locked")
	// ErrConflict indicates a unique field (email, phone, ledger digest) is already taken.
	ErrConflict = errors.New("already exists")
	// ErrValidation indicates a field failed its constraints.
	ErrValidation = errors.New("validation failed")
	// ErrTokenExpired indicates a signed token is past its exp claim.
	ErrTokenExpired = errors.New("token expired")
	// ErrInvalidToken indicates a token is malformed, of the wrong type, already used or superseded.
	ErrInvalidToken = errors.New("invalid token")
	// ErrRateLimited indicates too many password reset requests.
	ErrRateLimited = errors.New("too many requests")
	// ErrPasswordHistoryViolation indicates the new password matches a recent one.
	ErrPasswordHistoryViolation = errors.New("password was used recently")
	// ErrUserNotFound indicates the referenced user does not exist.
	ErrUserNotFound = errors.New("user not found")
	// ErrNotificationFailed indicates a required notification could not be delivered.
	ErrNotificationFailed = errors.New("notification delivery failed")
	// ErrUpdateFailed indicates a profile update was rolled back.
	ErrUpdateFailed = errors.New("update failed")
	// ErrIssueTimeUnknown indicates neither iat nor exp could date a token.
	ErrIssueTimeUnknown = errors.New("token issue time unknown")
)

// AccountLockedError carries the remaining lock window.
type AccountLockedError struct {
	Until            time.Time
	RemainingMinutes int
}

func (e *AccountLockedError) Error() string {
	return fmt.Sprintf("too many failed attempts, try again in %d minutes", e.RemainingMinutes)
}

func (e *AccountLockedError) Unwrap() error { return ErrAccountLocked }

// RetryAfter is the lock window left, used for the Retry-After header.
func (e *AccountLockedError) RetryAfter() time.Duration {
	return time.Duration(e.RemainingMinutes) * time.Minute
}

// RateLimitExceededError reports when another reset request will be accepted.
type RateLimitExceededError struct {
	Until             time.Time
	RetryAfterMinutes int
}

func (e *RateLimitExceededError) Error() string {
	return fmt.Sprintf("too many attempts, wait %d minutes before trying again", e.RetryAfterMinutes)
}

func (e *RateLimitExceededError) Unwrap() error { return ErrRateLimited }

func (e *RateLimitExceededError) RetryAfter() time.Duration {
	return time.Duration(e.RetryAfterMinutes) * time.Minute
}

// ResetTokenReason classifies why a reset link was refused.
type ResetTokenReason string

const (
	ResetTokenExpired     ResetTokenReason = "expired"
	ResetTokenMalformed   ResetTokenReason = "malformed"
	ResetTokenAlreadyUsed ResetTokenReason = "already_used"
	ResetTokenSuperseded  ResetTokenReason = "superseded"
	ResetTokenNotFound    ResetTokenReason = "not_found"
)

// ResetTokenError is returned by the password reset link checks.
type ResetTokenError struct {
	Reason ResetTokenReason
}

func (e *ResetTokenError) Error() string {
	switch e.Reason {
	case ResetTokenExpired:
		return "this password reset link has expired, request a new one"
	case ResetTokenAlreadyUsed:
		return "this password reset link was already used, request a new one if needed"
	case ResetTokenSuperseded:
		return "this password reset link is no longer valid because a newer one was requested"
	case ResetTokenNotFound:
		return "no user is associated with this password reset link"
	default:
		return "this password reset link is not valid"
	}
}

func (e *ResetTokenError) Unwrap() error {
	switch e.Reason {
	case ResetTokenExpired:
		return ErrTokenExpired
	case ResetTokenNotFound:
		return ErrUserNotFound
	default:
		return ErrInvalidToken
	}
}

// ValidationError is a field level constraint violation.
type ValidationError struct {
	Field   string
	Message string
	Cause   error
}

func (e *ValidationError) Error() string {
	return e.Message
}

func (e *ValidationError) Unwrap() []error {
	if e.Cause != nil {
		return []error{ErrValidation, e.Cause}
	}
	return []error{ErrValidation}
}

func newValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

// UpdateFailedError wraps the cause of a rolled back profile update.
type UpdateFailedError struct {
	Cause error
}

func (e *UpdateFailedError) Error() string {
	if e.Cause == nil {
		return ErrUpdateFailed.Error()
	}
	return fmt.Sprintf("%s: %v", ErrUpdateFailed, e.Cause)
}

func (e *UpdateFailedError) Unwrap() []error {
	if e.Cause == nil {
		return []error{ErrUpdateFailed}
	}
	return []error{ErrUpdateFailed, e.Cause}
}

// ConflictError names the unique field that is already taken.
type ConflictError struct {
	Field string
}

func (e *ConflictError) Error() string {
	switch e.Field {
	case "email":
		return "email is already registered by another user"
	case "phone_number":
		return "phone number is already registered by another user"
	default:
		return "a user with that email or phone number already exists"
	}
}

func (e *ConflictError) Unwrap() error { return ErrConflict }
