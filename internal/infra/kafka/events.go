package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/IBM/sarama"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/proyectoio2/back/internal/core/domain"
	"github.com/proyectoio2/back/internal/core/port"
	"github.com/proyectoio2/back/internal/infra/config"
)

const schemaVersion = "1.0"

const (
	EventUserRegistered = "user.registered"
	EventPasswordReset  = "user.password_reset"
	EventAccountLocked  = "user.locked"
	EventOrderPlaced    = "order.placed"
)

// EventPublisher implements port.EventPublisher on top of Producer.
type EventPublisher struct {
	producer *Producer
	logger   *zap.Logger
	appCfg   config.AppSettings
}

// NewEventPublisher constructs a Kafka-backed event publisher.
func NewEventPublisher(producer *Producer, appCfg config.AppSettings, logger *zap.Logger) *EventPublisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EventPublisher{producer: producer, appCfg: appCfg, logger: logger}
}

type eventEnvelope struct {
	EventID   string            `json:"event_id"`
	EventType string            `json:"event_type"`
	UserID    string            `json:"user_id,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
	Version   string            `json:"version"`
	Payload   any               `json:"payload"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

func (p *EventPublisher) publish(ctx context.Context, eventID, eventType, userID string, ts time.Time, payload any) error {
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	if eventID == "" {
		eventID = uuid.NewString()
	}

	metadata := map[string]string{
		"service":     p.appCfg.Name,
		"environment": p.appCfg.Env,
	}
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		metadata["trace_id"] = sc.TraceID().String()
	}

	body, err := json.Marshal(eventEnvelope{
		EventID:   eventID,
		EventType: eventType,
		UserID:    userID,
		Timestamp: ts.UTC(),
		Version:   schemaVersion,
		Payload:   payload,
		Metadata:  metadata,
	})
	if err != nil {
		return fmt.Errorf("marshal event envelope: %w", err)
	}

	message := &sarama.ProducerMessage{
		Topic: p.producer.TopicName(eventType),
		Key:   sarama.StringEncoder(userID),
		Value: sarama.ByteEncoder(body),
	}
	select {
	case p.producer.Input() <- message:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// PublishUserRegistered publishes user.registered events.
func (p *EventPublisher) PublishUserRegistered(ctx context.Context, event domain.UserRegisteredEvent) error {
	payload := struct {
		UserID       string    `json:"user_id"`
		Email        string    `json:"email"`
		RegisteredAt time.Time `json:"registered_at"`
	}{event.UserID, event.Email, event.RegisteredAt.UTC()}
	return p.publish(ctx, event.EventID, EventUserRegistered, event.UserID, event.RegisteredAt, payload)
}

// PublishPasswordReset publishes user.password_reset events.
func (p *EventPublisher) PublishPasswordReset(ctx context.Context, event domain.PasswordResetEvent) error {
	payload := struct {
		UserID  string    `json:"user_id"`
		ResetAt time.Time `json:"reset_at"`
	}{event.UserID, event.ResetAt.UTC()}
	return p.publish(ctx, event.EventID, EventPasswordReset, event.UserID, event.ResetAt, payload)
}

// PublishAccountLocked publishes user.locked events.
func (p *EventPublisher) PublishAccountLocked(ctx context.Context, event domain.AccountLockedEvent) error {
	payload := struct {
		UserID         string    `json:"user_id"`
		FailedAttempts int       `json:"failed_attempts"`
		LockedUntil    time.Time `json:"locked_until"`
	}{event.UserID, event.FailedAttempts, event.LockedUntil.UTC()}
	return p.publish(ctx, event.EventID, EventAccountLocked, event.UserID, time.Time{}, payload)
}

// PublishOrderPlaced publishes order.placed events.
func (p *EventPublisher) PublishOrderPlaced(ctx context.Context, event domain.OrderPlacedEvent) error {
	payload := struct {
		OrderID     string    `json:"order_id"`
		OrderNumber string    `json:"order_number"`
		UserID      string    `json:"user_id"`
		Total       float64   `json:"total"`
		PlacedAt    time.Time `json:"placed_at"`
	}{event.OrderID, event.OrderNumber, event.UserID, event.Total, event.PlacedAt.UTC()}
	return p.publish(ctx, event.EventID, EventOrderPlaced, event.UserID, event.PlacedAt, payload)
}

var _ port.EventPublisher = (*EventPublisher)(nil)
