package notify

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/proyectoio2/back/internal/core/domain"
	"github.com/proyectoio2/back/internal/core/port"
	"github.com/proyectoio2/back/internal/infra/config"
)

// Router dispatches notifications to the notifier registered for their channel.
type Router struct {
	channels map[domain.NotificationChannel]port.Notifier
	fallback port.Notifier
}

// NewRouter builds a Router. Channels without a notifier go to fallback.
func NewRouter(channels map[domain.NotificationChannel]port.Notifier, fallback port.Notifier) *Router {
	copied := make(map[domain.NotificationChannel]port.Notifier, len(channels))
	for ch, n := range channels {
		if n != nil {
			copied[ch] = n
		}
	}
	return &Router{channels: copied, fallback: fallback}
}

func (r *Router) Send(ctx context.Context, n domain.Notification) error {
	if target, ok := r.channels[n.Channel]; ok {
		return target.Send(ctx, n)
	}
	if r.fallback != nil {
		return r.fallback.Send(ctx, n)
	}
	return fmt.Errorf("notify: no notifier for channel %q", n.Channel)
}

// New wires SMTP and Twilio from configuration. Unconfigured channels are logged only.
func New(cfg *config.AppConfig, log *zap.Logger) (*Router, error) {
	if log == nil {
		log = zap.NewNop()
	}
	renderer, err := NewRenderer()
	if err != nil {
		return nil, err
	}

	channels := map[domain.NotificationChannel]port.Notifier{}
	if cfg.SMTP.Configured() {
		channels[domain.ChannelEmail] = NewSMTPNotifier(cfg.SMTP, renderer, log.Named("smtp"))
	} else {
		log.Warn("smtp not configured, emails will only be logged")
	}
	if cfg.Twilio.Configured() {
		channels[domain.ChannelWhatsApp] = NewTwilioNotifier(cfg.Twilio, renderer, nil, log.Named("twilio"))
	} else {
		log.Warn("twilio not configured, whatsapp messages will only be logged")
	}
	return NewRouter(channels, NewLogNotifier(log)), nil
}

var (
	_ port.Notifier = (*Router)(nil)
	_ port.Notifier = (*SMTPNotifier)(nil)
	_ port.Notifier = (*TwilioNotifier)(nil)
	_ port.Notifier = (*LogNotifier)(nil)
)
