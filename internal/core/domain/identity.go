package domain

import (
	"math"
	"time"
)

// User mirrors the persisted representation in the users table.
type User struct {
	ID                  string
	Email               string
	FullName            string
	PhoneNumber         string
	Address             string
	PasswordHash        string
	IsActive            bool
	IsSuperuser         bool
	CreatedAt           time.Time
	UpdatedAt           time.Time
	FailedLoginAttempts int
	IsLocked            bool
	LockedUntil         *time.Time
	ResetAttempts       int
	LastResetAttempt    *time.Time
	ResetLockoutUntil   *time.Time
}

// Sanitized returns a copy of the user without credential material.
func (u User) Sanitized() User {
	u.PasswordHash = ""
	return u
}

// LockActive reports whether the account is locked at the supplied instant.
func (u User) LockActive(at time.Time) bool {
	return u.IsLocked && u.LockedUntil != nil && u.LockedUntil.After(at)
}

// LockExpired reports whether a lock is recorded but its window has elapsed.
func (u User) LockExpired(at time.Time) bool {
	return u.IsLocked && !u.LockActive(at)
}

// ClearLock resets the failed login counter and lock state.
// Returns true if anything changed.
func (u *User) ClearLock() bool {
	if u.FailedLoginAttempts == 0 && !u.IsLocked && u.LockedUntil == nil {
		return false
	}
	u.FailedLoginAttempts = 0
	u.IsLocked = false
	u.LockedUntil = nil
	return true
}

// Lock marks the account as locked until the supplied instant.
func (u *User) Lock(until time.Time) {
	untilCopy := until
	u.IsLocked = true
	u.LockedUntil = &untilCopy
}

// ResetLimited reports whether reset requests are blocked at the supplied instant.
func (u User) ResetLimited(at time.Time, maxAttempts int) bool {
	return u.ResetAttempts >= maxAttempts && u.ResetLockoutUntil != nil && u.ResetLockoutUntil.After(at)
}

// ClearResetCounters zeroes the reset request counters.
func (u *User) ClearResetCounters() {
	u.ResetAttempts = 0
	u.ResetLockoutUntil = nil
}

// RemainingMinutes rounds the time between at and until up to whole minutes.
func RemainingMinutes(at, until time.Time) int {
	remaining := until.Sub(at)
	if remaining <= 0 {
		return 0
	}
	return int(math.Ceil(remaining.Minutes()))
}

// PasswordHistoryEntry tracks a previous password hash for reuse prevention.
type PasswordHistoryEntry struct {
	ID           string
	UserID       string
	PasswordHash string
	CreatedAt    time.Time
}

// ProfilePatch lists the fields a user may change on their own profile.
// Nil pointers leave the stored value untouched.
type ProfilePatch struct {
	Email           *string
	FullName        *string
	PhoneNumber     *string
	Address         *string
	CurrentPassword *string
	NewPassword     *string
}

// ChangesPassword reports whether the patch requests a new password.
func (p ProfilePatch) ChangesPassword() bool {
	return p.NewPassword != nil && *p.NewPassword != ""
}

// Empty reports whether the patch carries no updatable field.
func (p ProfilePatch) Empty() bool {
	return p.Email == nil && p.FullName == nil && p.PhoneNumber == nil && p.Address == nil && !p.ChangesPassword()
}

// ApplyProfilePatch merges the contact fields of patch into user.
// Password fields are not merged here because they need hashing first.
// Returns the names of the fields that changed.
func ApplyProfilePatch(user *User, patch ProfilePatch) []string {
	var changed []string
	if patch.Email != nil && *patch.Email != user.Email {
		user.Email = *patch.Email
		changed = append(changed, "email")
	}
	if patch.FullName != nil && *patch.FullName != user.FullName {
		user.FullName = *patch.FullName
		changed = append(changed, "full_name")
	}
	if patch.PhoneNumber != nil && *patch.PhoneNumber != user.PhoneNumber {
		user.PhoneNumber = *patch.PhoneNumber
		changed = append(changed, "phone_number")
	}
	if patch.Address != nil && *patch.Address != user.Address {
		user.Address = *patch.Address
		changed = append(changed, "address")
	}
	return changed
}
