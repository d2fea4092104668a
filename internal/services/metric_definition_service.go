package services

import (
	"context"
	"errors"
	"strings"

	"github.com/ahmetcoskunkizilkaya/telemetry-backend/internal/apperr"
	"github.com/ahmetcoskunkizilkaya/telemetry-backend/internal/dto"
	"github.com/ahmetcoskunkizilkaya/telemetry-backend/internal/identity"
	"github.com/ahmetcoskunkizilkaya/telemetry-backend/internal/metrics"
	"github.com/ahmetcoskunkizilkaya/telemetry-backend/internal/models"
	"github.com/ahmetcoskunkizilkaya/telemetry-backend/internal/policy"
	"github.com/ahmetcoskunkizilkaya/telemetry-backend/internal/tenant"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

func (s *MetricService) loadDefinition(ctx context.Context, id identity.Identity, definitionID uuid.UUID, action policy.Action) (*models.MetricDefinition, error) {
	var def models.MetricDefinition
	err := s.db.WithContext(ctx).First(&def, "id = ?", definitionID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.NotFound("Metric definition not found")
	}
	if err != nil {
		return nil, apperr.Internal(err, "Failed to load metric definition")
	}
	if _, _, err := authorizeProject(ctx, s.db, id, action, def.ProjectID); err != nil {
		if apperr.Is(err, apperr.KindNotFound) {
			return nil, apperr.NotFound("Metric definition not found")
		}
		return nil, err
	}
	return &def, nil
}

func validateDefinitionPeriod(raw string) (metrics.Period, error) {
	if raw == "" {
		return metrics.Hourly, nil
	}
	p, err := metrics.ParsePeriod(raw)
	if err != nil {
		return "", apperr.Validation("period must be one of hourly, daily, weekly, monthly")
	}
	return p, nil
}

func (s *MetricService) CreateDefinition(ctx context.Context, id identity.Identity, req *dto.MetricDefinitionRequest) (*dto.MetricDefinitionResponse, error) {
	projectID, err := parseProjectID(req.ProjectID)
	if err != nil {
		return nil, err
	}
	if _, _, err := authorizeProject(ctx, s.db, id, policy.ActionCreate, projectID); err != nil {
		return nil, err
	}

	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, apperr.Validation("name is required")
	}
	if len(name) > 255 {
		return nil, apperr.Validation("name must be at most 255 characters")
	}
	metricType := strings.TrimSpace(req.MetricType)
	if metricType == "" {
		return nil, apperr.Validation("metric_type is required")
	}
	if len(metricType) > 100 {
		return nil, apperr.Validation("metric_type must be at most 100 characters")
	}
	period, err := validateDefinitionPeriod(req.Period)
	if err != nil {
		return nil, err
	}

	dims, err := encodeDimensions(req.Dimensions)
	if err != nil {
		return nil, err
	}
	def := models.MetricDefinition{
		ProjectID:    projectID,
		Name:         name,
		Description:  req.Description,
		MetricType:   metricType,
		Period:       string(period),
		DimensionKey: dims.key,
		Dimensions:   dims.json,
		CreatedBy:    id.UserID,
	}
	if err := s.db.WithContext(ctx).Create(&def).Error; err != nil {
		return nil, apperr.Internal(err, "Failed to create metric definition")
	}
	resp := dto.NewMetricDefinitionResponse(&def)
	return &resp, nil
}

func (s *MetricService) ListDefinitions(ctx context.Context, id identity.Identity, projectID uuid.UUID) ([]dto.MetricDefinitionResponse, error) {
	if _, _, err := authorizeProject(ctx, s.db, id, policy.ActionRead, projectID); err != nil {
		return nil, err
	}
	var defs []models.MetricDefinition
	if err := s.db.WithContext(ctx).Scopes(tenant.ForProject(projectID)).Order("created_at ASC").Find(&defs).Error; err != nil {
		return nil, apperr.Internal(err, "Failed to list metric definitions")
	}
	out := make([]dto.MetricDefinitionResponse, 0, len(defs))
	for i := range defs {
		out = append(out, dto.NewMetricDefinitionResponse(&defs[i]))
	}
	return out, nil
}

func (s *MetricService) GetDefinition(ctx context.Context, id identity.Identity, definitionID uuid.UUID) (*dto.MetricDefinitionResponse, error) {
	def, err := s.loadDefinition(ctx, id, definitionID, policy.ActionRead)
	if err != nil {
		return nil, err
	}
	resp := dto.NewMetricDefinitionResponse(def)
	return &resp, nil
}

func (s *MetricService) UpdateDefinition(ctx context.Context, id identity.Identity, definitionID uuid.UUID, req *dto.UpdateMetricDefinitionRequest) (*dto.MetricDefinitionResponse, error) {
	def, err := s.loadDefinition(ctx, id, definitionID, policy.ActionUpdate)
	if err != nil {
		return nil, err
	}

	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return nil, apperr.Validation("name must not be empty")
		}
		def.Name = name
	}
	if req.Description != nil {
		def.Description = req.Description
	}
	if req.Period != nil {
		period, err := validateDefinitionPeriod(*req.Period)
		if err != nil {
			return nil, err
		}
		def.Period = string(period)
	}
	if req.Dimensions != nil {
		dims, err := encodeDimensions(*req.Dimensions)
		if err != nil {
			return nil, err
		}
		def.DimensionKey, def.Dimensions = dims.key, dims.json
	}

	if err := s.db.WithContext(ctx).Model(def).
		Select("name", "description", "period", "dimension_key", "dimensions").
		Updates(def).Error; err != nil {
		return nil, apperr.Internal(err, "Failed to update metric definition")
	}
	resp := dto.NewMetricDefinitionResponse(def)
	return &resp, nil
}

func (s *MetricService) DeleteDefinition(ctx context.Context, id identity.Identity, definitionID uuid.UUID) error {
	def, err := s.loadDefinition(ctx, id, definitionID, policy.ActionUpdate)
	if err != nil {
		return err
	}
	if err := s.db.WithContext(ctx).Delete(def).Error; err != nil {
		return apperr.Internal(err, "Failed to delete metric definition")
	}
	return nil
}
