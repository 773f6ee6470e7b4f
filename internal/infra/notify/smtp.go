package notify

import (
	"context"
	"crypto/tls"
	"fmt"
	"mime"
	"net"
	"net/smtp"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/proyectoio2/back/internal/core/domain"
	"github.com/proyectoio2/back/internal/infra/config"
	"github.com/proyectoio2/back/internal/infra/logger"
)

// SMTPNotifier delivers email over implicit TLS (SMTPS, usually port 465).
type SMTPNotifier struct {
	cfg      config.SMTPSettings
	renderer *Renderer
	logger   *zap.Logger
	dial     func(ctx context.Context, addr string, tlsCfg *tls.Config) (net.Conn, error)
	now      func() time.Time
}

// NewSMTPNotifier constructs an email notifier.
func NewSMTPNotifier(cfg config.SMTPSettings, renderer *Renderer, log *zap.Logger) *SMTPNotifier {
	if log == nil {
		log = zap.NewNop()
	}
	return &SMTPNotifier{
		cfg:      cfg,
		renderer: renderer,
		logger:   log,
		dial:     dialTLS,
		now:      time.Now,
	}
}

func dialTLS(ctx context.Context, addr string, tlsCfg *tls.Config) (net.Conn, error) {
	d := &tls.Dialer{Config: tlsCfg}
	return d.DialContext(ctx, "tcp", addr)
}

// Send renders the email template for n.Kind and delivers it to n.To.
func (s *SMTPNotifier) Send(ctx context.Context, n domain.Notification) error {
	if n.Channel != domain.ChannelEmail {
		return fmt.Errorf("smtp: unsupported channel %q", n.Channel)
	}
	subject, body, err := s.renderer.RenderEmail(n.Kind, n.Params)
	if err != nil {
		return err
	}

	if _, ok := ctx.Deadline(); !ok && s.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.Timeout)
		defer cancel()
	}

	port := s.cfg.Port
	if port == 0 {
		port = 465
	}
	addr := net.JoinHostPort(s.cfg.Server, strconv.Itoa(port))
	conn, err := s.dial(ctx, addr, &tls.Config{ServerName: s.cfg.Server, MinVersion: tls.VersionTLS12})
	if err != nil {
		return fmt.Errorf("smtp dial %s: %w", addr, err)
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	client, err := smtp.NewClient(conn, s.cfg.Server)
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("smtp handshake: %w", err)
	}
	defer client.Close()

	if s.cfg.Password != "" {
		username := s.cfg.Username
		if username == "" {
			username = s.cfg.SenderEmail
		}
		if err := client.Auth(smtp.PlainAuth("", username, s.cfg.Password, s.cfg.Server)); err != nil {
			return fmt.Errorf("smtp auth: %w", err)
		}
	}
	if err := client.Mail(s.cfg.SenderEmail); err != nil {
		return fmt.Errorf("smtp mail from: %w", err)
	}
	if err := client.Rcpt(n.To); err != nil {
		return fmt.Errorf("smtp rcpt to: %w", err)
	}
	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("smtp data: %w", err)
	}
	if _, err := w.Write(buildMessage(s.cfg.SenderEmail, n.To, subject, body, s.now())); err != nil {
		_ = w.Close()
		return fmt.Errorf("smtp write: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("smtp data close: %w", err)
	}
	if err := client.Quit(); err != nil {
		s.logger.Debug("smtp quit failed", zap.Error(err))
	}

	s.logger.Info("email sent",
		zap.String("kind", string(n.Kind)),
		zap.String("to", logger.MaskEmail(n.To)),
	)
	return nil
}

// buildMessage assembles a single part HTML message with CRLF line endings.
func buildMessage(from, to, subject, html string, at time.Time) []byte {
	var b strings.Builder
	header := func(k, v string) {
		b.WriteString(k)
		b.WriteString(": ")
		b.WriteString(v)
		b.WriteString("\r\n")
	}
	header("From", from)
	header("To", to)
	header("Subject", mime.QEncoding.Encode("utf-8", subject))
	header("Date", at.Format(time.RFC1123Z))
	header("Message-ID", "<"+uuid.NewString()+"@"+domainOf(from)+">")
	header("MIME-Version", "1.0")
	header("Content-Type", `text/html; charset="utf-8"`)
	header("Content-Transfer-Encoding", "8bit")
	b.WriteString("\r\n")
	b.WriteString(strings.ReplaceAll(strings.ReplaceAll(html, "\r\n", "\n"), "\n", "\r\n"))
	return []byte(b.String())
}

func domainOf(address string) string {
	if at := strings.LastIndex(address, "@"); at >= 0 && at < len(address)-1 {
		return address[at+1:]
	}
	return "localhost"
}
