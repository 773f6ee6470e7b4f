package port

// Metrics records business level counters. Implementations must be safe for concurrent use.
type Metrics interface {
	LoginAttempt(outcome string)
	AccountLocked()
	ResetRequested(outcome string)
	OrderPlaced(total float64)
}
