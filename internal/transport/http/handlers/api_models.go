package handlers

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/proyectoio2/back/internal/core/domain"
	"github.com/proyectoio2/back/internal/core/port"
	"github.com/proyectoio2/back/internal/usecase"
)

// ErrorResponse represents a generic error payload with trace ID for debugging.
type ErrorResponse struct {
	StatusCode int    `json:"status_code"`
	Error      string `json:"error"`
	Field      string `json:"field,omitempty"`
	Reason     string `json:"reason,omitempty"`
	TraceID    string `json:"trace_id,omitempty"`
}

// NewErrorResponse creates an error response with trace ID from context
func NewErrorResponse(c *gin.Context, status int, errorMsg string) ErrorResponse {
	traceID, _ := c.Get("trace_id")
	traceIDStr, _ := traceID.(string)

	return ErrorResponse{
		StatusCode: status,
		Error:      errorMsg,
		TraceID:    traceIDStr,
	}
}

// Envelope wraps the payloads of the auth endpoints.
type Envelope struct {
	StatusCode int    `json:"status_code"`
	Message    string `json:"message"`
	Data       any    `json:"data,omitempty"`
}

// MessageResponse represents a simple message payload.
type MessageResponse struct {
	Message string `json:"message"`
}

// UserResponse is the public view of an account.
type UserResponse struct {
	ID          string     `json:"id"`
	Email       string     `json:"email"`
	FullName    string     `json:"full_name"`
	PhoneNumber string     `json:"phone_number"`
	Address     string     `json:"address"`
	IsActive    bool       `json:"is_active"`
	IsSuperuser bool       `json:"is_superuser"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   *time.Time `json:"updated_at,omitempty"`
}

func newUserResponse(u domain.User) UserResponse {
	resp := UserResponse{
		ID:          u.ID,
		Email:       u.Email,
		FullName:    u.FullName,
		PhoneNumber: u.PhoneNumber,
		Address:     u.Address,
		IsActive:    u.IsActive,
		IsSuperuser: u.IsSuperuser,
		CreatedAt:   u.CreatedAt,
	}
	if !u.UpdatedAt.IsZero() {
		updated := u.UpdatedAt
		resp.UpdatedAt = &updated
	}
	return resp
}

// RegistrationRequest defines the account registration payload.
type RegistrationRequest struct {
	Email       string `json:"email" binding:"required"`
	FullName    string `json:"full_name" binding:"required"`
	PhoneNumber string `json:"phone_number" binding:"required"`
	Address     string `json:"address" binding:"required"`
	Password    string `json:"password" binding:"required"`
}

// LoginRequest accepts JSON credentials or an OAuth2 password form,
// where the email travels in the username field.
type LoginRequest struct {
	Email    string `json:"email" form:"email"`
	Username string `json:"username" form:"username"`
	Password string `json:"password" form:"password"`
}

func (r LoginRequest) identifier() string {
	if r.Email != "" {
		return r.Email
	}
	return r.Username
}

// TokenResponse contains tokens issued by the login and refresh endpoints.
type TokenResponse struct {
	AccessToken  string        `json:"access_token"`
	RefreshToken string        `json:"refresh_token"`
	TokenType    string        `json:"token_type"`
	ExpiresIn    int           `json:"expires_in"`
	User         *UserResponse `json:"user,omitempty"`
}

func newTokenResponse(pair domain.TokenPair, user *domain.User, now time.Time) TokenResponse {
	resp := TokenResponse{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		TokenType:    pair.TokenType,
		ExpiresIn:    int(pair.AccessExpiresAt.Sub(now).Seconds()),
	}
	if resp.ExpiresIn < 0 {
		resp.ExpiresIn = 0
	}
	if user != nil {
		u := newUserResponse(*user)
		resp.User = &u
	}
	return resp
}

// TokenRefreshRequest represents the payload to refresh an access token.
type TokenRefreshRequest struct {
	RefreshToken string `json:"refresh_token" form:"refresh_token"`
}

// PasswordResetRequest asks for a reset link.
type PasswordResetRequest struct {
	Email string `json:"email" binding:"required"`
}

// PasswordResetConfirmRequest sets a new password with a reset link token.
type PasswordResetConfirmRequest struct {
	Token       string `json:"token" form:"token"`
	NewPassword string `json:"new_password" form:"new_password"`
}

// ResetTokenStatusResponse reports a usable reset link.
type ResetTokenStatusResponse struct {
	Valid bool   `json:"valid"`
	Email string `json:"email,omitempty"`
}

// ProfileUpdateRequest carries the optional profile fields. Absent fields stay unchanged.
type ProfileUpdateRequest struct {
	Email           *string `json:"email"`
	FullName        *string `json:"full_name"`
	PhoneNumber     *string `json:"phone_number"`
	Address         *string `json:"address"`
	CurrentPassword *string `json:"current_password"`
	NewPassword     *string `json:"new_password"`
}

func (r ProfileUpdateRequest) patch() domain.ProfilePatch {
	return domain.ProfilePatch{
		Email:           r.Email,
		FullName:        r.FullName,
		PhoneNumber:     r.PhoneNumber,
		Address:         r.Address,
		CurrentPassword: r.CurrentPassword,
		NewPassword:     r.NewPassword,
	}
}

// ProductRequest defines a new catalogue item.
type ProductRequest struct {
	ImageURL    string  `json:"image_url"`
	Title       string  `json:"title"`
	Description string  `json:"description"`
	Price       float64 `json:"price"`
	Stock       int     `json:"stock"`
}

func (r ProductRequest) input() usecase.ProductInput {
	return usecase.ProductInput{
		ImageURL:    r.ImageURL,
		Title:       r.Title,
		Description: r.Description,
		Price:       r.Price,
		Stock:       r.Stock,
	}
}

// CartItemRequest selects a product and a quantity.
type CartItemRequest struct {
	ProductID string `json:"product_id" binding:"required"`
	Quantity  int    `json:"quantity"`
}

// CartRemoveRequest selects the cart line to drop.
type CartRemoveRequest struct {
	ProductID string `json:"product_id" binding:"required"`
}

// CheckoutResponse is the placed order plus the seller notification outcome.
type CheckoutResponse struct {
	domain.Order
	Success      bool   `json:"success"`
	Message      string `json:"message"`
	WhatsAppSent bool   `json:"whatsapp_sent"`
}

// ImageResponse describes an uploaded image.
type ImageResponse struct {
	Key         string `json:"key"`
	URL         string `json:"url"`
	ContentType string `json:"content_type"`
	Size        int64  `json:"size"`
}

func newImageResponse(obj port.StoredObject) ImageResponse {
	return ImageResponse{
		Key:         obj.Key,
		URL:         obj.URL,
		ContentType: obj.ContentType,
		Size:        obj.Size,
	}
}

// HealthResponse reports liveness.
type HealthResponse struct {
	Status    string    `json:"status"`
	StartedAt time.Time `json:"started_at"`
}

// ReadinessResponse reports the state of every dependency check.
type ReadinessResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}
