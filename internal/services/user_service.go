package services

import (
	"context"
	"errors"
	"strings"

	"github.com/ahmetcoskunkizilkaya/telemetry-backend/internal/apperr"
	"github.com/ahmetcoskunkizilkaya/telemetry-backend/internal/dto"
	"github.com/ahmetcoskunkizilkaya/telemetry-backend/internal/identity"
	"github.com/ahmetcoskunkizilkaya/telemetry-backend/internal/models"
	"github.com/ahmetcoskunkizilkaya/telemetry-backend/internal/policy"
	"github.com/ahmetcoskunkizilkaya/telemetry-backend/internal/tenant"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// UserService is the global-admin view of operator accounts.
type UserService struct {
	db *gorm.DB
}

func NewUserService(db *gorm.DB) *UserService {
	return &UserService{db: db}
}

func validGlobalRole(role string) bool {
	return role == "user" || role == policy.GlobalRoleAdmin
}

func (s *UserService) List(ctx context.Context, id identity.Identity, page, limit int) (*dto.UserListResponse, error) {
	if err := policy.Authorize(id, policy.ActionManageUsers, nil).Err(); err != nil {
		return nil, err
	}
	page, limit = normalizePage(page, limit)

	q := s.db.WithContext(ctx).Model(&models.User{})
	var total int64
	if err := q.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return nil, apperr.Internal(err, "Failed to count users")
	}
	var users []models.User
	if err := q.Order("created_at ASC").Scopes(tenant.Paginate(page, limit)).Find(&users).Error; err != nil {
		return nil, apperr.Internal(err, "Failed to list users")
	}

	resp := &dto.UserListResponse{Users: make([]dto.UserResponse, 0, len(users)), Total: total, Page: page, Limit: limit}
	for i := range users {
		resp.Users = append(resp.Users, dto.NewUserResponse(&users[i]))
	}
	return resp, nil
}

func (s *UserService) Create(ctx context.Context, id identity.Identity, req *dto.CreateUserRequest) (*dto.UserResponse, error) {
	if err := policy.Authorize(id, policy.ActionManageUsers, nil).Err(); err != nil {
		return nil, err
	}
	email, err := validateEmail(req.Email)
	if err != nil {
		return nil, err
	}
	if err := validatePassword(req.Password); err != nil {
		return nil, err
	}
	role := req.Role
	if role == "" {
		role = "user"
	}
	if !validGlobalRole(role) {
		return nil, apperr.Validation("role must be user or admin")
	}

	user, err := createUser(ctx, s.db, email, req.Password, strings.TrimSpace(req.Name), role)
	if err != nil {
		return nil, err
	}
	resp := dto.NewUserResponse(user)
	return &resp, nil
}

func (s *UserService) Get(ctx context.Context, id identity.Identity, userID uuid.UUID) (*dto.UserResponse, error) {
	if err := policy.Authorize(id, policy.ActionManageUsers, nil).Err(); err != nil {
		return nil, err
	}
	user, err := findUser(ctx, s.db, userID)
	if err != nil {
		return nil, err
	}
	resp := dto.NewUserResponse(user)
	return &resp, nil
}

func (s *UserService) Update(ctx context.Context, id identity.Identity, userID uuid.UUID, req *dto.UpdateUserRequest) (*dto.UserResponse, error) {
	if err := policy.Authorize(id, policy.ActionManageUsers, nil).Err(); err != nil {
		return nil, err
	}
	user, err := findUser(ctx, s.db, userID)
	if err != nil {
		return nil, err
	}

	if req.Email != nil {
		email, err := validateEmail(*req.Email)
		if err != nil {
			return nil, err
		}
		user.Email = email
	}
	if req.Name != nil {
		user.Name = strings.TrimSpace(*req.Name)
	}
	if req.Role != nil {
		if !validGlobalRole(*req.Role) {
			return nil, apperr.Validation("role must be user or admin")
		}
		user.Role = *req.Role
	}

	err = s.db.WithContext(ctx).Model(user).Select("email", "name", "role").Updates(user).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return nil, ErrEmailTaken
	}
	if err != nil {
		return nil, apperr.Internal(err, "Failed to update user")
	}
	resp := dto.NewUserResponse(user)
	return &resp, nil
}
