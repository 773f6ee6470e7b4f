package port

import (
	"context"
	"time"
)

// RateLimitDecision is the outcome of one attempt against a sliding window.
type RateLimitDecision struct {
	Allowed bool
	// Count is the number of attempts inside the window, including this one when allowed.
	Count int
	// RetryAfter is how long until the oldest attempt leaves the window. Zero when allowed.
	RetryAfter time.Duration
}

// RateLimitStore keeps per-client request timestamps for sliding-window limits.
type RateLimitStore interface {
	Allow(ctx context.Context, identifier string, limit int, window time.Duration, now time.Time) (RateLimitDecision, error)
}
