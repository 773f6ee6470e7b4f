package port

import (
	"context"

	"github.com/proyectoio2/back/internal/core/domain"
)

// Notifier delivers outbound email and WhatsApp messages.
type Notifier interface {
	Send(ctx context.Context, notification domain.Notification) error
}
