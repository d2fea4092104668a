package services

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/ahmetcoskunkizilkaya/telemetry-backend/internal/apperr"
	"github.com/ahmetcoskunkizilkaya/telemetry-backend/internal/credential"
	"github.com/ahmetcoskunkizilkaya/telemetry-backend/internal/dto"
	"github.com/ahmetcoskunkizilkaya/telemetry-backend/internal/identity"
	"github.com/ahmetcoskunkizilkaya/telemetry-backend/internal/models"
	"github.com/ahmetcoskunkizilkaya/telemetry-backend/internal/policy"
	"github.com/ahmetcoskunkizilkaya/telemetry-backend/internal/tenant"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type ProjectService struct {
	db    *gorm.DB
	codec *credential.Codec
}

func NewProjectService(db *gorm.DB, codec *credential.Codec) *ProjectService {
	return &ProjectService{db: db, codec: codec}
}

// FindProjectIDByAPIKey implements identity.ProjectLookup.
func (s *ProjectService) FindProjectIDByAPIKey(ctx context.Context, apiKey string) (uuid.UUID, error) {
	var project models.Project
	err := s.db.WithContext(ctx).Select("id").Where("api_key = ?", apiKey).Take(&project).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return uuid.Nil, identity.ErrProjectNotFound
	}
	if err != nil {
		return uuid.Nil, err
	}
	return project.ID, nil
}

func validateProjectName(raw string) (string, error) {
	name := strings.TrimSpace(raw)
	if name == "" {
		return "", apperr.Validation("name is required")
	}
	if len(name) > 255 {
		return "", apperr.Validation("name must be at most 255 characters")
	}
	return name, nil
}

func (s *ProjectService) Create(ctx context.Context, id identity.Identity, req *dto.CreateProjectRequest) (*dto.ProjectResponse, error) {
	if err := policy.Authorize(id, policy.ActionCreateProject, nil).Err(); err != nil {
		return nil, err
	}
	name, err := validateProjectName(req.Name)
	if err != nil {
		return nil, err
	}
	key, err := credential.GenerateAPIKey()
	if err != nil {
		return nil, apperr.Internal(err, "Failed to generate API key")
	}

	project := models.Project{Name: name, APIKey: key, OwnerID: id.UserID}
	if err := s.db.WithContext(ctx).Create(&project).Error; err != nil {
		return nil, apperr.Internal(err, "Failed to create project")
	}
	slog.Info("project created", "project_id", project.ID.String(), "user_id", id.UserID.String())

	resp := dto.NewProjectResponse(&project, policy.RoleOwner.String(), true)
	return &resp, nil
}

// List returns the projects the caller owns or is a member of.
func (s *ProjectService) List(ctx context.Context, id identity.Identity) ([]dto.ProjectResponse, error) {
	if err := policy.Authorize(id, policy.ActionSelf, nil).Err(); err != nil {
		return nil, err
	}

	var memberships []models.ProjectMembership
	if err := s.db.WithContext(ctx).Where("user_id = ?", id.UserID).Find(&memberships).Error; err != nil {
		return nil, apperr.Internal(err, "Failed to list memberships")
	}
	roles := make(map[uuid.UUID]policy.Role, len(memberships))
	ids := make([]uuid.UUID, 0, len(memberships))
	for _, m := range memberships {
		roles[m.ProjectID] = policy.ParseRole(m.Role)
		ids = append(ids, m.ProjectID)
	}

	q := s.db.WithContext(ctx).Where("owner_id = ?", id.UserID)
	if len(ids) > 0 {
		q = q.Or("id IN ?", ids)
	}
	var projects []models.Project
	if err := q.Order("created_at ASC").Find(&projects).Error; err != nil {
		return nil, apperr.Internal(err, "Failed to list projects")
	}

	out := make([]dto.ProjectResponse, 0, len(projects))
	for i := range projects {
		role := roles[projects[i].ID]
		if projects[i].OwnerID == id.UserID {
			role = policy.RoleOwner
		}
		out = append(out, dto.NewProjectResponse(&projects[i], role.String(), role >= policy.RoleAdmin))
	}
	return out, nil
}

func (s *ProjectService) Get(ctx context.Context, id identity.Identity, projectID uuid.UUID) (*dto.ProjectResponse, error) {
	project, target, err := authorizeProject(ctx, s.db, id, policy.ActionRead, projectID)
	if err != nil {
		return nil, err
	}
	role := policy.EffectiveRole(id.UserID, target)
	resp := dto.NewProjectResponse(project, role.String(), role >= policy.RoleAdmin)
	return &resp, nil
}

func (s *ProjectService) Update(ctx context.Context, id identity.Identity, projectID uuid.UUID, req *dto.UpdateProjectRequest) (*dto.ProjectResponse, error) {
	project, target, err := authorizeProject(ctx, s.db, id, policy.ActionUpdate, projectID)
	if err != nil {
		return nil, err
	}
	name, err := validateProjectName(req.Name)
	if err != nil {
		return nil, err
	}
	if err := s.db.WithContext(ctx).Model(project).Update("name", name).Error; err != nil {
		return nil, apperr.Internal(err, "Failed to update project")
	}
	project.Name = name
	resp := dto.NewProjectResponse(project, policy.EffectiveRole(id.UserID, target).String(), true)
	return &resp, nil
}

// Delete removes a project and everything recorded under it.
func (s *ProjectService) Delete(ctx context.Context, id identity.Identity, projectID uuid.UUID) error {
	project, _, err := authorizeProject(ctx, s.db, id, policy.ActionDeleteProject, projectID)
	if err != nil {
		return err
	}
	err = s.db.WithContext(context.WithoutCancel(ctx)).Transaction(func(tx *gorm.DB) error {
		for _, m := range []interface{}{
			&models.Event{}, &models.Device{}, &models.Metric{},
			&models.MetricDefinition{}, &models.ProjectMembership{},
		} {
			if err := tx.Scopes(tenant.ForProject(project.ID)).Delete(m).Error; err != nil {
				return err
			}
		}
		return tx.Delete(project).Error
	})
	if err != nil {
		return apperr.Internal(err, "Failed to delete project")
	}
	slog.Info("project deleted", "project_id", project.ID.String(), "user_id", id.UserID.String())
	return nil
}

// RegenerateAPIKey replaces the project's key. The old key stops resolving
// immediately; api_key tokens already issued stay valid until expiry.
func (s *ProjectService) RegenerateAPIKey(ctx context.Context, id identity.Identity, projectID uuid.UUID) (*dto.APIKeyResponse, error) {
	project, _, err := authorizeProject(ctx, s.db, id, policy.ActionManageMembers, projectID)
	if err != nil {
		return nil, err
	}
	key, err := credential.GenerateAPIKey()
	if err != nil {
		return nil, apperr.Internal(err, "Failed to generate API key")
	}
	if err := s.db.WithContext(ctx).Model(project).Update("api_key", key).Error; err != nil {
		return nil, apperr.Internal(err, "Failed to rotate API key")
	}
	slog.Info("api key rotated", "project_id", project.ID.String(), "user_id", id.UserID.String())
	return &dto.APIKeyResponse{APIKey: key}, nil
}

// IssueKeyToken issues an api_key-scope bearer token for the project.
func (s *ProjectService) IssueKeyToken(ctx context.Context, id identity.Identity, projectID uuid.UUID) (*dto.TokenResponse, error) {
	project, _, err := authorizeProject(ctx, s.db, id, policy.ActionManageMembers, projectID)
	if err != nil {
		return nil, err
	}
	return s.keyToken(project.ID)
}

func (s *ProjectService) keyToken(projectID uuid.UUID) (*dto.TokenResponse, error) {
	token, exp, err := s.codec.IssueProjectKeyToken(projectID)
	if err != nil {
		return nil, apperr.Internal(err, "Failed to issue token")
	}
	return &dto.TokenResponse{Token: token, ExpiresAt: dto.FormatTime(exp), Scope: string(credential.ScopeAPIKey)}, nil
}

// ExchangeAPIKey trades a raw key for a bearer token. The key must belong
// to the named project.
func (s *ProjectService) ExchangeAPIKey(ctx context.Context, req *dto.APIKeyAuthRequest) (*dto.TokenResponse, error) {
	projectID, err := parseProjectID(req.ProjectID)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(req.APIKey) == "" {
		return nil, identity.ErrMissingCredential
	}
	found, err := s.FindProjectIDByAPIKey(ctx, strings.TrimSpace(req.APIKey))
	if errors.Is(err, identity.ErrProjectNotFound) || (err == nil && found != projectID) {
		return nil, identity.ErrUnknownKey
	}
	if err != nil {
		return nil, apperr.Internal(err, "Failed to resolve API key")
	}
	return s.keyToken(found)
}
