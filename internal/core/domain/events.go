package domain

import "time"

// UserRegisteredEvent represents the payload for user.registered messages.
type UserRegisteredEvent struct {
	EventID      string
	UserID       string
	Email        string
	RegisteredAt time.Time
}

// PasswordResetEvent represents the payload for user.password_reset messages.
type PasswordResetEvent struct {
	EventID string
	UserID  string
	ResetAt time.Time
}

// AccountLockedEvent represents the payload for user.locked messages.
type AccountLockedEvent struct {
	EventID        string
	UserID         string
	FailedAttempts int
	LockedUntil    time.Time
}

// OrderPlacedEvent represents the payload for order.placed messages.
type OrderPlacedEvent struct {
	EventID     string
	OrderID     string
	OrderNumber string
	UserID      string
	Total       float64
	PlacedAt    time.Time
}
