package notify

import (
	"bytes"
	"embed"
	"fmt"
	htmltemplate "html/template"
	"math"
	"strconv"
	texttemplate "text/template"

	"github.com/proyectoio2/back/internal/core/domain"
)

//go:embed templates/*
var templateFS embed.FS

var subjects = map[domain.NotificationKind]string{
	domain.NotificationWelcome:           "Welcome to our platform!",
	domain.NotificationPasswordResetLink: "Password reset",
	domain.NotificationOrderPlaced:       "New order",
}

// Renderer turns a notification into a subject and body.
type Renderer struct {
	html *htmltemplate.Template
	text *texttemplate.Template
}

// NewRenderer parses the embedded templates.
func NewRenderer() (*Renderer, error) {
	funcs := map[string]any{"money": formatMoney}

	html, err := htmltemplate.New("email").Funcs(funcs).ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("parse email templates: %w", err)
	}
	text, err := texttemplate.New("message").Funcs(funcs).ParseFS(templateFS, "templates/*.txt")
	if err != nil {
		return nil, fmt.Errorf("parse message templates: %w", err)
	}
	return &Renderer{html: html, text: text}, nil
}

// RenderEmail renders the HTML template named after kind.
func (r *Renderer) RenderEmail(kind domain.NotificationKind, params map[string]any) (string, string, error) {
	var buf bytes.Buffer
	if err := r.html.ExecuteTemplate(&buf, string(kind)+".html", params); err != nil {
		return "", "", fmt.Errorf("render %s email: %w", kind, err)
	}
	return subjects[kind], buf.String(), nil
}

// RenderMessage renders the plain text template named after kind.
func (r *Renderer) RenderMessage(kind domain.NotificationKind, params map[string]any) (string, error) {
	var buf bytes.Buffer
	if err := r.text.ExecuteTemplate(&buf, string(kind)+".txt", params); err != nil {
		return "", fmt.Errorf("render %s message: %w", kind, err)
	}
	return buf.String(), nil
}

// formatMoney prints v rounded to units with comma thousands separators.
func formatMoney(v float64) string {
	n := int64(math.Round(v))
	neg := n < 0
	if neg {
		n = -n
	}
	digits := strconv.FormatInt(n, 10)
	out := make([]byte, 0, len(digits)+len(digits)/3+1)
	if neg {
		out = append(out, '-')
	}
	for i, d := range []byte(digits) {
		if i > 0 && (len(digits)-i)%3 == 0 {
			out = append(out, ',')
		}
		out = append(out, d)
	}
	return string(out)
}
