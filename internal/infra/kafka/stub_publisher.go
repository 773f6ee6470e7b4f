package kafka

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/proyectoio2/back/internal/core/domain"
	"github.com/proyectoio2/back/internal/core/port"
	"github.com/proyectoio2/back/internal/infra/logger"
)

// StubPublisher logs events instead of sending them. Used when Kafka is disabled.
type StubPublisher struct {
	logger *zap.Logger
}

func NewStubPublisher(log *zap.Logger) *StubPublisher {
	if log == nil {
		log = zap.NewNop()
	}
	return &StubPublisher{logger: log}
}

func (p *StubPublisher) logEvent(eventType, userID string, at time.Time, fields ...zap.Field) {
	if at.IsZero() {
		at = time.Now().UTC()
	}
	base := []zap.Field{
		zap.String("event_type", eventType),
		zap.String("user_id", userID),
		zap.Time("timestamp", at.UTC()),
	}
	p.logger.Info("event published", append(base, fields...)...)
}

func (p *StubPublisher) PublishUserRegistered(_ context.Context, event domain.UserRegisteredEvent) error {
	p.logEvent(EventUserRegistered, event.UserID, event.RegisteredAt, zap.String("email", logger.MaskEmail(event.Email)))
	return nil
}

func (p *StubPublisher) PublishPasswordReset(_ context.Context, event domain.PasswordResetEvent) error {
	p.logEvent(EventPasswordReset, event.UserID, event.ResetAt)
	return nil
}

func (p *StubPublisher) PublishAccountLocked(_ context.Context, event domain.AccountLockedEvent) error {
	p.logEvent(EventAccountLocked, event.UserID, time.Time{},
		zap.Int("failed_attempts", event.FailedAttempts),
		zap.Time("locked_until", event.LockedUntil),
	)
	return nil
}

func (p *StubPublisher) PublishOrderPlaced(_ context.Context, event domain.OrderPlacedEvent) error {
	p.logEvent(EventOrderPlaced, event.UserID, event.PlacedAt,
		zap.String("order_number", event.OrderNumber),
		zap.Float64("total", event.Total),
	)
	return nil
}

var _ port.EventPublisher = (*StubPublisher)(nil)
