package notify

import (
	"context"

	"go.uber.org/zap"

	"github.com/proyectoio2/back/internal/core/domain"
	"github.com/proyectoio2/back/internal/infra/logger"
)

// LogNotifier records notifications instead of delivering them. It stands in
// for channels that are not configured.
type LogNotifier struct {
	logger *zap.Logger
}

func NewLogNotifier(log *zap.Logger) *LogNotifier {
	if log == nil {
		log = zap.NewNop()
	}
	return &LogNotifier{logger: log}
}

func (l *LogNotifier) Send(_ context.Context, n domain.Notification) error {
	to := logger.MaskEmail(n.To)
	if n.Channel == domain.ChannelWhatsApp {
		to = logger.MaskPhone(n.To)
	}
	l.logger.Warn("notification channel not configured, message dropped",
		zap.String("channel", string(n.Channel)),
		zap.String("kind", string(n.Kind)),
		zap.String("to", to),
	)
	return nil
}
