package handlers

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/proyectoio2/back/internal/core/domain"
	"github.com/proyectoio2/back/internal/transport/http/middleware"
	"github.com/proyectoio2/back/internal/usecase"
)

// Authenticator issues and rotates token pairs.
type Authenticator interface {
	Login(ctx context.Context, email, password string) (domain.TokenPair, domain.User, error)
	Refresh(ctx context.Context, refreshToken string) (domain.TokenPair, domain.User, error)
}

// Registrar creates accounts.
type Registrar interface {
	Register(ctx context.Context, in usecase.RegisterInput) (domain.User, error)
}

// ProfileEditor reads and updates the caller's own account.
type ProfileEditor interface {
	GetProfile(ctx context.Context, userID string) (domain.User, error)
	UpdateProfile(ctx context.Context, userID string, patch domain.ProfilePatch) (domain.User, error)
}

// AuthHandler exposes authentication and profile endpoints.
type AuthHandler struct {
	auth         Authenticator
	registration Registrar
	profile      ProfileEditor
	now          func() time.Time
}

// NewAuthHandler constructs AuthHandler.
func NewAuthHandler(auth Authenticator, registration Registrar, profile ProfileEditor) *AuthHandler {
	return &AuthHandler{
		auth:         auth,
		registration: registration,
		profile:      profile,
		now:          time.Now,
	}
}

// RegisterRoutes binds the account routes. loginMiddlewares run ahead of the login handler only.
func (h *AuthHandler) RegisterRoutes(r *gin.RouterGroup, requireAuth gin.HandlerFunc, loginMiddlewares ...gin.HandlerFunc) {
	r.POST("/register", h.Register)

	chain := append([]gin.HandlerFunc{}, loginMiddlewares...)
	r.POST("/token", append(chain, h.Login)...)
	r.POST("/refresh", h.Refresh)

	r.GET("/me", requireAuth, h.Me)
	r.PUT("/me", requireAuth, h.UpdateMe)
}

// Register godoc
// @Summary Register a new user account
// @Tags Authentication
// @Accept json
// @Produce json
// @Param request body RegistrationRequest true "Registration request payload"
// @Success 201 {object} Envelope
// @Failure 400 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Router /api/v1/auth/register [post]
func (h *AuthHandler) Register(c *gin.Context) {
	var req RegistrationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, "email, full_name, phone_number, address and password are required")
		return
	}

	user, err := h.registration.Register(c.Request.Context(), usecase.RegisterInput{
		Email:       req.Email,
		FullName:    req.FullName,
		PhoneNumber: req.PhoneNumber,
		Address:     req.Address,
		Password:    req.Password,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, Envelope{
		StatusCode: http.StatusCreated,
		Message:    "user registered successfully",
		Data:       newUserResponse(user),
	})
}

// Login godoc
// @Summary Exchange credentials for an access and refresh token
// @Tags Authentication
// @Accept json,x-www-form-urlencoded
// @Produce json
// @Param request body LoginRequest true "Credentials"
// @Success 200 {object} Envelope
// @Failure 400 {object} ErrorResponse
// @Failure 401 {object} ErrorResponse
// @Failure 429 {object} ErrorResponse
// @Router /api/v1/auth/token [post]
func (h *AuthHandler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBind(&req); err != nil {
		respondBadRequest(c, "invalid login payload")
		return
	}

	email := strings.TrimSpace(req.identifier())
	if email == "" || req.Password == "" {
		respondBadRequest(c, "email and password are required")
		return
	}

	pair, user, err := h.auth.Login(c.Request.Context(), email, req.Password)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, Envelope{
		StatusCode: http.StatusOK,
		Message:    "login successful",
		Data:       newTokenResponse(pair, &user, h.now()),
	})
}

// Refresh rotates a refresh token. The token may arrive as JSON or as a form field.
func (h *AuthHandler) Refresh(c *gin.Context) {
	var req TokenRefreshRequest
	_ = c.ShouldBind(&req)

	token := strings.TrimSpace(req.RefreshToken)
	if token == "" {
		respondBadRequest(c, "refresh token not provided")
		return
	}

	pair, _, err := h.auth.Refresh(c.Request.Context(), token)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, Envelope{
		StatusCode: http.StatusOK,
		Message:    "token refreshed successfully",
		Data:       newTokenResponse(pair, nil, h.now()),
	})
}

// Me returns the authenticated account.
func (h *AuthHandler) Me(c *gin.Context) {
	userID, ok := middleware.GetAuthenticatedUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, http.StatusUnauthorized, "invalid authentication"))
		return
	}

	user, err := h.profile.GetProfile(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, Envelope{
		StatusCode: http.StatusOK,
		Message:    "user retrieved successfully",
		Data:       newUserResponse(user),
	})
}

// UpdateMe godoc
// @Summary Update the authenticated account
// @Description Changing the password requires current_password.
// @Tags Authentication
// @Accept json
// @Produce json
// @Param request body ProfileUpdateRequest true "Fields to change"
// @Success 200 {object} Envelope
// @Failure 400 {object} ErrorResponse
// @Failure 401 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Router /api/v1/auth/me [put]
func (h *AuthHandler) UpdateMe(c *gin.Context) {
	userID, ok := middleware.GetAuthenticatedUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, http.StatusUnauthorized, "invalid authentication"))
		return
	}

	var req ProfileUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, "invalid profile payload")
		return
	}

	user, err := h.profile.UpdateProfile(c.Request.Context(), userID, req.patch())
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, Envelope{
		StatusCode: http.StatusOK,
		Message:    "profile updated successfully",
		Data:       newUserResponse(user),
	})
}
