package services

import (
	"context"
	"errors"

	"github.com/ahmetcoskunkizilkaya/telemetry-backend/internal/apperr"
	"github.com/ahmetcoskunkizilkaya/telemetry-backend/internal/identity"
	"github.com/ahmetcoskunkizilkaya/telemetry-backend/internal/models"
	"github.com/ahmetcoskunkizilkaya/telemetry-backend/internal/policy"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	defaultPageSize = 50
	maxPageSize     = 500
	// maxPage keeps (page-1)*limit well inside int range.
	maxPage = 1_000_000
)

// loadTarget reads the facts the policy needs. A missing project yields a
// target with Found=false rather than an error.
func loadTarget(ctx context.Context, db *gorm.DB, id identity.Identity, projectID uuid.UUID) (*models.Project, *policy.Target, error) {
	var project models.Project
	err := db.WithContext(ctx).First(&project, "id = ?", projectID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, &policy.Target{}, nil
	}
	if err != nil {
		return nil, nil, apperr.Internal(err, "Failed to load project")
	}

	target := &policy.Target{Found: true, ProjectID: project.ID, OwnerID: project.OwnerID}
	if id.IsUser() && id.UserID != project.OwnerID {
		var membership models.ProjectMembership
		err := db.WithContext(ctx).
			Where("project_id = ? AND user_id = ?", project.ID, id.UserID).
			Take(&membership).Error
		switch {
		case err == nil:
			target.MemberRole = policy.ParseRole(membership.Role)
		case !errors.Is(err, gorm.ErrRecordNotFound):
			return nil, nil, apperr.Internal(err, "Failed to load membership")
		}
	}
	return &project, target, nil
}

// authorizeProject loads projectID and checks action against it.
func authorizeProject(ctx context.Context, db *gorm.DB, id identity.Identity, action policy.Action, projectID uuid.UUID) (*models.Project, *policy.Target, error) {
	if id.IsProjectKey() && action != policy.ActionIngest {
		return nil, nil, policy.Authorize(id, action, nil).Err()
	}
	project, target, err := loadTarget(ctx, db, id, projectID)
	if err != nil {
		return nil, nil, err
	}
	if err := policy.Authorize(id, action, target).Err(); err != nil {
		return nil, nil, err
	}
	return project, target, nil
}

func parseProjectID(raw string) (uuid.UUID, error) {
	if raw == "" {
		return uuid.Nil, apperr.Validation("project_id is required")
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, apperr.Validation("project_id must be a UUID")
	}
	return id, nil
}

func normalizePage(page, limit int) (int, int) {
	if page < 1 {
		page = 1
	}
	if page > maxPage {
		page = maxPage
	}
	if limit < 1 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	return page, limit
}

func pageCount(total int64, limit int) int {
	if total == 0 {
		return 0
	}
	return int((total + int64(limit) - 1) / int64(limit))
}
