package dto

import (
	"time"

	"github.com/ahmetcoskunkizilkaya/telemetry-backend/internal/models"
	"github.com/google/uuid"
)

type RegisterRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type ChangePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

// APIKeyAuthRequest exchanges a raw project key for a bearer token.
type APIKeyAuthRequest struct {
	ProjectID string `json:"project_id"`
	APIKey    string `json:"api_key"`
}

type AuthResponse struct {
	Token     string       `json:"token"`
	ExpiresAt string       `json:"expires_at"`
	User      UserResponse `json:"user"`
}

type TokenResponse struct {
	Token     string `json:"token"`
	ExpiresAt string `json:"expires_at"`
	Scope     string `json:"scope"`
}

type UserResponse struct {
	ID        uuid.UUID `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	Role      string    `json:"role"`
	CreatedAt string    `json:"created_at"`
}

type SessionResponse struct {
	ID         uuid.UUID `json:"id"`
	ExpiresAt  string    `json:"expires_at"`
	LastUsedAt *string   `json:"last_used_at"`
	RevokedAt  *string   `json:"revoked_at"`
	CreatedAt  string    `json:"created_at"`
}

type CreateUserRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
	Role     string `json:"role"`
}

type UpdateUserRequest struct {
	Email *string `json:"email"`
	Name  *string `json:"name"`
	Role  *string `json:"role"`
}

type UserListResponse struct {
	Users []UserResponse `json:"users"`
	Total int64          `json:"total"`
	Page  int            `json:"page"`
	Limit int            `json:"limit"`
}

func NewUserResponse(u *models.User) UserResponse {
	return UserResponse{
		ID:        u.ID,
		Email:     u.Email,
		Name:      u.Name,
		Role:      u.Role,
		CreatedAt: FormatTime(u.CreatedAt),
	}
}

func NewSessionResponse(t *models.AuthToken) SessionResponse {
	return SessionResponse{
		ID:         t.ID,
		ExpiresAt:  FormatTime(t.ExpiresAt),
		LastUsedAt: formatTimePtr(t.LastUsedAt),
		RevokedAt:  formatTimePtr(t.RevokedAt),
		CreatedAt:  FormatTime(t.CreatedAt),
	}
}

func formatTimePtr(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := FormatTime(*t)
	return &s
}
