package handlers

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/proyectoio2/back/internal/core/domain"
	"github.com/proyectoio2/back/internal/usecase"
)

// resetRequestedMessage is returned whether or not the email is registered.
const resetRequestedMessage = "if the email is registered you will receive a link to reset your password"

// PasswordResetter runs the reset link flow.
type PasswordResetter interface {
	RequestReset(ctx context.Context, email string) (usecase.ResetRequestResult, error)
	ValidateResetToken(ctx context.Context, token string) (domain.User, error)
	ResetPassword(ctx context.Context, token, newPassword string) error
}

// PasswordHandler exposes endpoints for password management.
type PasswordHandler struct {
	reset PasswordResetter
}

func NewPasswordHandler(reset PasswordResetter) *PasswordHandler {
	return &PasswordHandler{reset: reset}
}

// RegisterRoutes binds the reset routes. requestMiddlewares guard the link request only.
func (h *PasswordHandler) RegisterRoutes(r *gin.RouterGroup, requestMiddlewares ...gin.HandlerFunc) {
	chain := append([]gin.HandlerFunc{}, requestMiddlewares...)
	r.POST("/password-reset-request", append(chain, h.RequestReset)...)
	r.GET("/password-reset", h.ValidateToken)
	r.POST("/password-reset", h.ResetPassword)
}

// RequestReset godoc
// @Summary Request a password reset link
// @Description The response does not reveal whether the email is registered.
// @Tags Password
// @Accept json
// @Produce json
// @Param request body PasswordResetRequest true "Account email"
// @Success 200 {object} Envelope
// @Failure 429 {object} ErrorResponse
// @Router /api/v1/auth/password-reset-request [post]
func (h *PasswordHandler) RequestReset(c *gin.Context) {
	var req PasswordResetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, "email is required")
		return
	}

	if _, err := h.reset.RequestReset(c.Request.Context(), req.Email); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, Envelope{
		StatusCode: http.StatusOK,
		Message:    resetRequestedMessage,
	})
}

// ValidateToken checks a reset link before the frontend shows the new password form.
func (h *PasswordHandler) ValidateToken(c *gin.Context) {
	token := strings.TrimSpace(c.Query("token"))
	if token == "" {
		respondBadRequest(c, "token is required")
		return
	}

	user, err := h.reset.ValidateResetToken(c.Request.Context(), token)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, Envelope{
		StatusCode: http.StatusOK,
		Message:    "reset link is valid",
		Data:       ResetTokenStatusResponse{Valid: true, Email: user.Email},
	})
}

// ResetPassword sets the new password. Accepts JSON or a form post from the reset page.
func (h *PasswordHandler) ResetPassword(c *gin.Context) {
	var req PasswordResetConfirmRequest
	_ = c.ShouldBind(&req)

	req.Token = strings.TrimSpace(req.Token)
	if req.Token == "" || req.NewPassword == "" {
		respondBadRequest(c, "token and new_password are required")
		return
	}

	if err := h.reset.ResetPassword(c.Request.Context(), req.Token, req.NewPassword); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, Envelope{
		StatusCode: http.StatusOK,
		Message:    "password updated successfully",
	})
}
