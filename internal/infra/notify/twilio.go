package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"

	"github.com/proyectoio2/back/internal/core/domain"
	"github.com/proyectoio2/back/internal/infra/config"
	"github.com/proyectoio2/back/internal/infra/logger"
)

const whatsappPrefix = "whatsapp:"

// TwilioNotifier sends WhatsApp messages through the Twilio Messages API.
type TwilioNotifier struct {
	cfg      config.TwilioSettings
	renderer *Renderer
	client   *http.Client
	logger   *zap.Logger
}

// NewTwilioNotifier constructs a WhatsApp notifier. A nil client gets an instrumented default.
func NewTwilioNotifier(cfg config.TwilioSettings, renderer *Renderer, client *http.Client, log *zap.Logger) *TwilioNotifier {
	if client == nil {
		client = &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &TwilioNotifier{cfg: cfg, renderer: renderer, client: client, logger: log}
}

type twilioMessage struct {
	SID string `json:"sid"`
}

type twilioError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Send renders the message template for n.Kind and posts it to n.To.
func (t *TwilioNotifier) Send(ctx context.Context, n domain.Notification) error {
	if n.Channel != domain.ChannelWhatsApp {
		return fmt.Errorf("twilio: unsupported channel %q", n.Channel)
	}
	body, err := t.renderer.RenderMessage(n.Kind, n.Params)
	if err != nil {
		return err
	}

	if _, ok := ctx.Deadline(); !ok && t.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.cfg.Timeout)
		defer cancel()
	}

	form := url.Values{}
	form.Set("From", whatsappAddress(t.cfg.WhatsAppNumber))
	form.Set("To", whatsappAddress(n.To))
	form.Set("Body", body)

	endpoint := fmt.Sprintf("%s/2010-04-01/Accounts/%s/Messages.json",
		strings.TrimRight(t.cfg.BaseURL, "/"), url.PathEscape(t.cfg.AccountSID))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("twilio request: %w", err)
	}
	req.SetBasicAuth(t.cfg.AccountSID, t.cfg.AuthToken)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("twilio send: %w", err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return fmt.Errorf("twilio read response: %w", err)
	}

	if resp.StatusCode >= http.StatusBadRequest {
		var apiErr twilioError
		if json.Unmarshal(raw, &apiErr) == nil && apiErr.Message != "" {
			return fmt.Errorf("twilio: status %d code %d: %s", resp.StatusCode, apiErr.Code, apiErr.Message)
		}
		return fmt.Errorf("twilio: status %d", resp.StatusCode)
	}

	var msg twilioMessage
	_ = json.Unmarshal(raw, &msg)
	t.logger.Info("whatsapp message sent",
		zap.String("kind", string(n.Kind)),
		zap.String("to", logger.MaskPhone(n.To)),
		zap.String("sid", msg.SID),
	)
	return nil
}

func whatsappAddress(number string) string {
	number = strings.TrimSpace(number)
	if strings.HasPrefix(number, whatsappPrefix) {
		return number
	}
	return whatsappPrefix + number
}
