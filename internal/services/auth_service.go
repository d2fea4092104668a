package services

import (
	"context"
	"errors"
	"log/slog"
	"net/mail"
	"strings"

	"github.com/ahmetcoskunkizilkaya/telemetry-backend/internal/apperr"
	"github.com/ahmetcoskunkizilkaya/telemetry-backend/internal/clock"
	"github.com/ahmetcoskunkizilkaya/telemetry-backend/internal/credential"
	"github.com/ahmetcoskunkizilkaya/telemetry-backend/internal/dto"
	"github.com/ahmetcoskunkizilkaya/telemetry-backend/internal/identity"
	"github.com/ahmetcoskunkizilkaya/telemetry-backend/internal/models"
	"github.com/ahmetcoskunkizilkaya/telemetry-backend/internal/policy"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	minPasswordLen = 8
	maxPasswordLen = 72
)

var (
	ErrEmailTaken         = apperr.Conflict("Email already registered")
	ErrInvalidCredentials = apperr.New(apperr.KindAuthentication, "invalid_credentials", "Invalid email or password")
	ErrUserNotFound       = apperr.NotFound("User not found")
)

type AuthService struct {
	db     *gorm.DB
	codec  *credential.Codec
	clock  clock.Clock
	admins map[string]bool
}

// NewAuthService builds the service. adminEmails is the comma separated
// ADMIN_EMAILS list; matching accounts register with global role admin.
func NewAuthService(db *gorm.DB, codec *credential.Codec, clk clock.Clock, adminEmails string) *AuthService {
	if clk == nil {
		clk = clock.Real()
	}
	admins := make(map[string]bool)
	for _, e := range strings.Split(adminEmails, ",") {
		if e = normalizeEmail(e); e != "" {
			admins[e] = true
		}
	}
	return &AuthService{db: db, codec: codec, clock: clk, admins: admins}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func validateEmail(raw string) (string, error) {
	email := normalizeEmail(raw)
	if email == "" {
		return "", apperr.Validation("email is required")
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return "", apperr.Validation("email is invalid")
	}
	return email, nil
}

func validatePassword(password string) error {
	if len(password) < minPasswordLen || len(password) > maxPasswordLen {
		return apperr.Validation("password must be between %d and %d bytes", minPasswordLen, maxPasswordLen)
	}
	return nil
}

func (s *AuthService) Register(ctx context.Context, req *dto.RegisterRequest) (*dto.AuthResponse, error) {
	email, err := validateEmail(req.Email)
	if err != nil {
		return nil, err
	}
	if err := validatePassword(req.Password); err != nil {
		return nil, err
	}

	role := "user"
	if s.admins[email] {
		role = policy.GlobalRoleAdmin
	}
	user, err := createUser(ctx, s.db, email, req.Password, strings.TrimSpace(req.Name), role)
	if err != nil {
		return nil, err
	}
	slog.Info("user registered", "user_id", user.ID.String(), "role", user.Role)
	return s.issueSession(ctx, user)
}

func createUser(ctx context.Context, db *gorm.DB, email, password, name, role string) (*models.User, error) {
	hash, err := credential.HashPassword(password)
	if err != nil {
		return nil, apperr.Internal(err, "Failed to hash password")
	}
	if name == "" {
		name = strings.Split(email, "@")[0]
	}
	user := models.User{Email: email, Password: hash, Name: name, Role: role}
	if err := db.WithContext(ctx).Create(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, ErrEmailTaken
		}
		return nil, apperr.Internal(err, "Failed to create user")
	}
	return &user, nil
}

func (s *AuthService) Login(ctx context.Context, req *dto.LoginRequest) (*dto.AuthResponse, error) {
	var user models.User
	err := s.db.WithContext(ctx).Where("email = ?", normalizeEmail(req.Email)).Take(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, apperr.Internal(err, "Failed to load user")
	}

	ok, err := credential.VerifyPassword(req.Password, user.Password)
	if err != nil {
		return nil, apperr.Internal(err, "Failed to verify password")
	}
	if !ok {
		return nil, ErrInvalidCredentials
	}
	return s.issueSession(ctx, &user)
}

func (s *AuthService) issueSession(ctx context.Context, user *models.User) (*dto.AuthResponse, error) {
	token, exp, err := s.codec.IssueUserToken(user.ID, user.Role)
	if err != nil {
		return nil, apperr.Internal(err, "Failed to issue token")
	}
	record := models.AuthToken{
		UserID:    user.ID,
		TokenHash: credential.HashToken(token),
		ExpiresAt: exp,
	}
	if err := s.db.WithContext(ctx).Omit("User").Create(&record).Error; err != nil {
		return nil, apperr.Internal(err, "Failed to store session")
	}
	return &dto.AuthResponse{
		Token:     token,
		ExpiresAt: dto.FormatTime(exp),
		User:      dto.NewUserResponse(user),
	}, nil
}

// Logout marks the session row of token revoked. Unknown tokens are ignored.
func (s *AuthService) Logout(ctx context.Context, token string) error {
	now := s.clock.Now()
	err := s.db.WithContext(ctx).Model(&models.AuthToken{}).
		Where("token_hash = ? AND revoked_at IS NULL", credential.HashToken(token)).
		Update("revoked_at", now).Error
	if err != nil {
		return apperr.Internal(err, "Failed to revoke session")
	}
	return nil
}

// Me returns the caller's account and touches the session's last use.
func (s *AuthService) Me(ctx context.Context, id identity.Identity, token string) (*dto.UserResponse, error) {
	if err := policy.Authorize(id, policy.ActionSelf, nil).Err(); err != nil {
		return nil, err
	}
	user, err := findUser(ctx, s.db, id.UserID)
	if err != nil {
		return nil, err
	}
	if token != "" {
		now := s.clock.Now()
		if err := s.db.WithContext(ctx).Model(&models.AuthToken{}).
			Where("token_hash = ?", credential.HashToken(token)).
			Update("last_used_at", now).Error; err != nil {
			slog.Warn("failed to touch session", "user_id", id.UserID.String(), "error", err)
		}
	}
	resp := dto.NewUserResponse(user)
	return &resp, nil
}

func (s *AuthService) ChangePassword(ctx context.Context, id identity.Identity, req *dto.ChangePasswordRequest) error {
	if err := policy.Authorize(id, policy.ActionSelf, nil).Err(); err != nil {
		return err
	}
	if err := validatePassword(req.NewPassword); err != nil {
		return err
	}
	user, err := findUser(ctx, s.db, id.UserID)
	if err != nil {
		return err
	}
	ok, err := credential.VerifyPassword(req.CurrentPassword, user.Password)
	if err != nil {
		return apperr.Internal(err, "Failed to verify password")
	}
	if !ok {
		return ErrInvalidCredentials
	}
	hash, err := credential.HashPassword(req.NewPassword)
	if err != nil {
		return apperr.Internal(err, "Failed to hash password")
	}
	if err := s.db.WithContext(ctx).Model(user).Update("password_hash", hash).Error; err != nil {
		return apperr.Internal(err, "Failed to update password")
	}
	slog.Info("password changed", "user_id", user.ID.String())
	return nil
}

// Sessions lists the caller's issued session tokens, newest first.
func (s *AuthService) Sessions(ctx context.Context, id identity.Identity) ([]dto.SessionResponse, error) {
	if err := policy.Authorize(id, policy.ActionSelf, nil).Err(); err != nil {
		return nil, err
	}
	var tokens []models.AuthToken
	if err := s.db.WithContext(ctx).Where("user_id = ?", id.UserID).
		Order("created_at DESC").Limit(maxPageSize).
		Find(&tokens).Error; err != nil {
		return nil, apperr.Internal(err, "Failed to list sessions")
	}
	out := make([]dto.SessionResponse, 0, len(tokens))
	for i := range tokens {
		out = append(out, dto.NewSessionResponse(&tokens[i]))
	}
	return out, nil
}

func findUser(ctx context.Context, db *gorm.DB, userID uuid.UUID) (*models.User, error) {
	var user models.User
	err := db.WithContext(ctx).First(&user, "id = ?", userID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, apperr.Internal(err, "Failed to load user")
	}
	return &user, nil
}
