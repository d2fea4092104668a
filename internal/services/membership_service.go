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

// authorizeMemberChange checks manage-members against a specific member,
// so the owner can never be the subject of a change.
func (s *ProjectService) authorizeMemberChange(ctx context.Context, id identity.Identity, projectID, memberID uuid.UUID) (*models.Project, error) {
	if id.IsProjectKey() {
		return nil, policy.Authorize(id, policy.ActionManageMembers, nil).Err()
	}
	project, target, err := loadTarget(ctx, s.db, id, projectID)
	if err != nil {
		return nil, err
	}
	target.MemberTargetUserID = memberID
	if err := policy.Authorize(id, policy.ActionManageMembers, target).Err(); err != nil {
		return nil, err
	}
	return project, nil
}

func (s *ProjectService) resolveMemberUser(ctx context.Context, req *dto.AddMemberRequest) (*models.User, error) {
	var user models.User
	q := s.db.WithContext(ctx)
	switch {
	case req.UserID != "":
		uid, err := uuid.Parse(req.UserID)
		if err != nil {
			return nil, apperr.Validation("user_id must be a UUID")
		}
		q = q.Where("id = ?", uid)
	case strings.TrimSpace(req.Email) != "":
		q = q.Where("email = ?", strings.ToLower(strings.TrimSpace(req.Email)))
	default:
		return nil, apperr.Validation("user_id or email is required")
	}
	err := q.Take(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.NotFound("User not found")
	}
	if err != nil {
		return nil, apperr.Internal(err, "Failed to load user")
	}
	return &user, nil
}

func (s *ProjectService) AddMember(ctx context.Context, id identity.Identity, projectID uuid.UUID, req *dto.AddMemberRequest) (*dto.MemberResponse, error) {
	if !policy.AssignableRole(req.Role) {
		return nil, apperr.Validation("role must be one of admin, member, viewer")
	}
	project, target, err := authorizeProject(ctx, s.db, id, policy.ActionManageMembers, projectID)
	if err != nil {
		return nil, err
	}
	user, err := s.resolveMemberUser(ctx, req)
	if err != nil {
		return nil, err
	}
	target.MemberTargetUserID = user.ID
	if err := policy.Authorize(id, policy.ActionManageMembers, target).Err(); err != nil {
		return nil, err
	}

	membership := models.ProjectMembership{ProjectID: project.ID, UserID: user.ID, Role: req.Role}
	if err := s.db.WithContext(ctx).Omit("User").Create(&membership).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, apperr.Conflict("User is already a member of this project")
		}
		return nil, apperr.Internal(err, "Failed to add member")
	}
	return &dto.MemberResponse{
		UserID:    user.ID,
		Email:     user.Email,
		Name:      user.Name,
		Role:      membership.Role,
		CreatedAt: dto.FormatTime(membership.CreatedAt),
	}, nil
}

// ListMembers lists the owner first, then explicit memberships.
func (s *ProjectService) ListMembers(ctx context.Context, id identity.Identity, projectID uuid.UUID) ([]dto.MemberResponse, error) {
	project, _, err := authorizeProject(ctx, s.db, id, policy.ActionRead, projectID)
	if err != nil {
		return nil, err
	}

	out := make([]dto.MemberResponse, 0)
	var owner models.User
	if err := s.db.WithContext(ctx).First(&owner, "id = ?", project.OwnerID).Error; err == nil {
		out = append(out, dto.MemberResponse{
			UserID:    owner.ID,
			Email:     owner.Email,
			Name:      owner.Name,
			Role:      policy.RoleOwner.String(),
			CreatedAt: dto.FormatTime(project.CreatedAt),
		})
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.Internal(err, "Failed to load owner")
	}

	var memberships []models.ProjectMembership
	if err := s.db.WithContext(ctx).Preload("User").
		Scopes(tenant.ForProject(project.ID)).
		Order("created_at ASC").
		Find(&memberships).Error; err != nil {
		return nil, apperr.Internal(err, "Failed to list members")
	}
	for _, m := range memberships {
		if m.UserID == project.OwnerID {
			continue
		}
		out = append(out, dto.MemberResponse{
			UserID:    m.UserID,
			Email:     m.User.Email,
			Name:      m.User.Name,
			Role:      m.Role,
			CreatedAt: dto.FormatTime(m.CreatedAt),
		})
	}
	return out, nil
}

func (s *ProjectService) UpdateMember(ctx context.Context, id identity.Identity, projectID, memberID uuid.UUID, req *dto.UpdateMemberRequest) (*dto.MemberResponse, error) {
	project, err := s.authorizeMemberChange(ctx, id, projectID, memberID)
	if err != nil {
		return nil, err
	}
	if !policy.AssignableRole(req.Role) {
		return nil, apperr.Validation("role must be one of admin, member, viewer")
	}

	result := s.db.WithContext(ctx).Model(&models.ProjectMembership{}).
		Where("project_id = ? AND user_id = ?", project.ID, memberID).
		Update("role", req.Role)
	if result.Error != nil {
		return nil, apperr.Internal(result.Error, "Failed to update member")
	}
	if result.RowsAffected == 0 {
		return nil, apperr.NotFound("Member not found")
	}

	var m models.ProjectMembership
	if err := s.db.WithContext(ctx).Preload("User").
		Where("project_id = ? AND user_id = ?", project.ID, memberID).
		Take(&m).Error; err != nil {
		return nil, apperr.Internal(err, "Failed to load member")
	}
	return &dto.MemberResponse{
		UserID:    m.UserID,
		Email:     m.User.Email,
		Name:      m.User.Name,
		Role:      m.Role,
		CreatedAt: dto.FormatTime(m.CreatedAt),
	}, nil
}

func (s *ProjectService) RemoveMember(ctx context.Context, id identity.Identity, projectID, memberID uuid.UUID) error {
	project, err := s.authorizeMemberChange(ctx, id, projectID, memberID)
	if err != nil {
		return err
	}
	result := s.db.WithContext(ctx).
		Where("project_id = ? AND user_id = ?", project.ID, memberID).
		Delete(&models.ProjectMembership{})
	if result.Error != nil {
		return apperr.Internal(result.Error, "Failed to remove member")
	}
	if result.RowsAffected == 0 {
		return apperr.NotFound("Member not found")
	}
	return nil
}
