package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/proyectoio2/back/internal/core/domain"
	"github.com/proyectoio2/back/internal/usecase"
)

// ErrorResponse matches the handlers.ErrorResponse structure
type ErrorResponse struct {
	StatusCode int    `json:"status_code"`
	Error      string `json:"error"`
	TraceID    string `json:"trace_id,omitempty"`
}

func newErrorResponse(c *gin.Context, status int, errorMsg string) ErrorResponse {
	return ErrorResponse{
		StatusCode: status,
		Error:      errorMsg,
		TraceID:    GetTraceID(c),
	}
}

// IdentityResolver maps a bearer access token to its account.
type IdentityResolver interface {
	ResolveIdentity(ctx context.Context, bearer string) (domain.User, error)
}

func abortUnauthorized(c *gin.Context, message string) {
	c.Header("WWW-Authenticate", "Bearer")
	c.AbortWithStatusJSON(http.StatusUnauthorized, newErrorResponse(c, http.StatusUnauthorized, message))
}

// RequireAuth validates the Authorization header and loads the account it names.
func RequireAuth(resolver IdentityResolver) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			abortUnauthorized(c, "missing authorization header")
			return
		}

		scheme, token, ok := strings.Cut(authHeader, " ")
		if !ok || !strings.EqualFold(scheme, "Bearer") {
			abortUnauthorized(c, "invalid authorization format: expected 'Bearer <token>'")
			return
		}

		token = strings.TrimSpace(token)
		if token == "" {
			abortUnauthorized(c, "missing access token")
			return
		}

		user, err := resolver.ResolveIdentity(c.Request.Context(), token)
		if err != nil {
			switch {
			case errors.Is(err, usecase.ErrTokenExpired):
				abortUnauthorized(c, "access token expired")
			case errors.Is(err, usecase.ErrInvalidToken), errors.Is(err, usecase.ErrUserNotFound):
				abortUnauthorized(c, "could not validate credentials")
			case errors.Is(err, usecase.ErrInvalidCredentials):
				abortUnauthorized(c, "inactive user")
			default:
				_ = c.Error(err)
				c.AbortWithStatusJSON(http.StatusInternalServerError,
					newErrorResponse(c, http.StatusInternalServerError, "authentication failed"))
			}
			return
		}

		c.Set(UserIDKey, user.ID)
		c.Set(UserKey, user)
		GetRequestContext(c).UserID = user.ID

		c.Next()
	}
}

// RequireAdmin only lets superusers through. It must run after RequireAuth.
func RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		user, ok := GetAuthenticatedUser(c)
		if !ok {
			abortUnauthorized(c, "authentication required")
			return
		}
		if !user.IsSuperuser {
			c.AbortWithStatusJSON(http.StatusForbidden,
				newErrorResponse(c, http.StatusForbidden, "not authorized"))
			return
		}
		c.Next()
	}
}
