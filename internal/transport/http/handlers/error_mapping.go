package handlers

import (
	"errors"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/proyectoio2/back/internal/usecase"
)

// ErrorCase maps a sentinel error to an HTTP status code and response message.
// An empty Message exposes the error text, which is only safe for domain errors.
type ErrorCase struct {
	Err     error
	Status  int
	Message string
}

const internalErrorMessage = "internal server error"

// defaultErrorCases is the boundary mapping shared by every handler. Order matters:
// typed errors that wrap several sentinels resolve to the first match.
var defaultErrorCases = []ErrorCase{
	{Err: usecase.ErrAccountLocked, Status: http.StatusUnauthorized},
	{Err: usecase.ErrInvalidCredentials, Status: http.StatusUnauthorized, Message: "incorrect email or password"},
	{Err: usecase.ErrRateLimited, Status: http.StatusTooManyRequests},
	{Err: usecase.ErrConflict, Status: http.StatusConflict},
	{Err: usecase.ErrValidation, Status: http.StatusBadRequest},
	{Err: usecase.ErrPasswordHistoryViolation, Status: http.StatusBadRequest},
	{Err: usecase.ErrUpdateFailed, Status: http.StatusBadRequest, Message: "profile update failed, no changes were saved"},
	{Err: usecase.ErrTokenExpired, Status: http.StatusUnauthorized},
	{Err: usecase.ErrInvalidToken, Status: http.StatusUnauthorized},
	{Err: usecase.ErrUserNotFound, Status: http.StatusNotFound},
	{Err: usecase.ErrNotificationFailed, Status: http.StatusInternalServerError, Message: "could not send the email, try again later"},
	{Err: usecase.ErrProductNotFound, Status: http.StatusNotFound},
	{Err: usecase.ErrCartNotFound, Status: http.StatusNotFound},
	{Err: usecase.ErrProductUnavailable, Status: http.StatusBadRequest},
	{Err: usecase.ErrInsufficientStock, Status: http.StatusBadRequest},
	{Err: usecase.ErrCartEmpty, Status: http.StatusBadRequest},
	{Err: usecase.ErrInvalidImage, Status: http.StatusBadRequest},
	{Err: usecase.ErrStorageUnavailable, Status: http.StatusServiceUnavailable},
}

type retryAfterError interface {
	RetryAfter() time.Duration
}

// RespondWithMappedError resolves the provided error against known cases or falls back to a generic response.
func RespondWithMappedError(c *gin.Context, err error, cases []ErrorCase, fallbackStatus int, fallbackMessage string) {
	if err == nil {
		c.Status(http.StatusOK)
		return
	}
	_ = c.Error(err)

	for _, cs := range cases {
		if cs.Err == nil {
			continue
		}
		if errors.Is(err, cs.Err) {
			message := cs.Message
			if message == "" {
				message = err.Error()
			}
			resp := NewErrorResponse(c, cs.Status, message)
			annotate(c, err, &resp)
			c.JSON(cs.Status, resp)
			return
		}
	}

	c.JSON(fallbackStatus, NewErrorResponse(c, fallbackStatus, fallbackMessage))
}

func respondError(c *gin.Context, err error) {
	RespondWithMappedError(c, err, defaultErrorCases, http.StatusInternalServerError, internalErrorMessage)
}

func respondBadRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, NewErrorResponse(c, http.StatusBadRequest, message))
}

// annotate copies typed error details onto the payload and headers.
func annotate(c *gin.Context, err error, resp *ErrorResponse) {
	var retry retryAfterError
	if errors.As(err, &retry) {
		seconds := int(math.Ceil(retry.RetryAfter().Seconds()))
		if seconds > 0 {
			c.Header("Retry-After", strconv.Itoa(seconds))
		}
	}

	var verr *usecase.ValidationError
	if errors.As(err, &verr) {
		resp.Field = verr.Field
	}
	var conflict *usecase.ConflictError
	if errors.As(err, &conflict) {
		resp.Field = conflict.Field
	}
	var rerr *usecase.ResetTokenError
	if errors.As(err, &rerr) {
		resp.Reason = string(rerr.Reason)
	}
}
