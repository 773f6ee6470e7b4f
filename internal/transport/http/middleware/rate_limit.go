package middleware

import (
	"fmt"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/proyectoio2/back/internal/core/port"
	"github.com/proyectoio2/back/internal/infra/logger"
)

const rateLimitProblemTitle = "Rate Limit Exceeded"

// IdentifierFunc extracts the identifier used to scope rate limits (e.g., client IP).
type IdentifierFunc func(*gin.Context) (string, bool)

// RateLimitRule configures a sliding-window limit for a particular identifier.
type RateLimitRule struct {
	Name       string
	Limit      int
	Window     time.Duration
	Identifier IdentifierFunc
}

// RateLimiter enforces sliding-window rules against a shared store.
// Store failures fail open.
type RateLimiter struct {
	store  port.RateLimitStore
	logger *zap.Logger
	now    func() time.Time
}

// ProblemDetails represents an RFC 9457 compatible error payload for rate limits.
type ProblemDetails struct {
	Type       string `json:"type"`
	Title      string `json:"title"`
	Status     int    `json:"status"`
	Detail     string `json:"detail"`
	Instance   string `json:"instance"`
	RetryAfter int    `json:"retry_after"`
	TraceID    string `json:"trace_id,omitempty"`
}

// NewRateLimiter builds a reusable rate limiter middleware helper.
func NewRateLimiter(store port.RateLimitStore, log *zap.Logger) *RateLimiter {
	if log == nil {
		log = zap.NewNop()
	}

	return &RateLimiter{
		store:  store,
		logger: log,
		now:    time.Now,
	}
}

// WithClock allows injection of a custom clock (primarily for testing).
func (rl *RateLimiter) WithClock(now func() time.Time) *RateLimiter {
	if now != nil {
		rl.now = now
	}
	return rl
}

// ClientIPIdentifier builds an IdentifierFunc using the request's client IP.
func ClientIPIdentifier() IdentifierFunc {
	return func(c *gin.Context) (string, bool) {
		ip := c.ClientIP()
		return ip, ip != ""
	}
}

// RateLimit returns a Gin middleware enforcing the provided rules. Rules with
// no identifier, limit or window are ignored.
func (rl *RateLimiter) RateLimit(rules ...RateLimitRule) gin.HandlerFunc {
	filtered := make([]RateLimitRule, 0, len(rules))
	for _, rule := range rules {
		if rule.Identifier == nil || rule.Limit <= 0 || rule.Window <= 0 {
			continue
		}
		if rule.Name == "" {
			rule.Name = "default"
		}
		filtered = append(filtered, rule)
	}

	return func(c *gin.Context) {
		if rl == nil || rl.store == nil || len(filtered) == 0 {
			c.Next()
			return
		}

		now := rl.now()
		for _, rule := range filtered {
			identifier, ok := rule.Identifier(c)
			if !ok {
				continue
			}

			key := rule.Name + ":" + identifier
			decision, err := rl.store.Allow(c.Request.Context(), key, rule.Limit, rule.Window, now)
			if err != nil {
				rl.logger.Warn("rate limit check failed",
					zap.String("rule", rule.Name),
					zap.String("client_ip", logger.MaskIP(identifier)),
					zap.Error(err),
				)
				continue
			}

			headers := c.Writer.Header()
			headers.Set("X-RateLimit-Limit", strconv.Itoa(rule.Limit))
			headers.Set("X-RateLimit-Remaining", strconv.Itoa(max(rule.Limit-decision.Count, 0)))

			if !decision.Allowed {
				rl.logger.Info("rate limit exceeded",
					zap.String("rule", rule.Name),
					zap.String("client_ip", logger.MaskIP(identifier)),
				)
				rl.respondRateLimited(c, decision.RetryAfter)
				return
			}
		}

		c.Next()
	}
}

func (rl *RateLimiter) respondRateLimited(c *gin.Context, retryAfter time.Duration) {
	seconds := max(int(math.Ceil(retryAfter.Seconds())), 1)
	c.Header("Retry-After", strconv.Itoa(seconds))

	instance := c.FullPath()
	if instance == "" {
		instance = c.Request.URL.Path
	}

	c.AbortWithStatusJSON(http.StatusTooManyRequests, ProblemDetails{
		Type:       "about:blank",
		Title:      rateLimitProblemTitle,
		Status:     http.StatusTooManyRequests,
		Detail:     fmt.Sprintf("Too many requests. Try again in %d seconds.", seconds),
		Instance:   instance,
		RetryAfter: seconds,
		TraceID:    GetTraceID(c),
	})
}
