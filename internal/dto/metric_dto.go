package dto

import (
	"encoding/json"

	"github.com/ahmetcoskunkizilkaya/telemetry-backend/internal/models"
)

type RecordMetricRequest struct {
	MetricType  string            `json:"metric_type"`
	Period      string            `json:"period"`
	PeriodStart string            `json:"period_start"`
	Dimensions  map[string]string `json:"dimensions"`
	Value       float64           `json:"value"`
}

type MetricResponse struct {
	ID          string          `json:"id"`
	ProjectID   string          `json:"project_id"`
	MetricType  string          `json:"metric_type"`
	Period      string          `json:"period"`
	PeriodStart string          `json:"period_start"`
	Dimensions  json.RawMessage `json:"dimensions"`
	Value       float64         `json:"value"`
}

type MetricListResponse struct {
	Metrics []MetricResponse `json:"metrics"`
}

type MetricDefinitionRequest struct {
	ProjectID   string            `json:"project_id"`
	Name        string            `json:"name"`
	Description *string           `json:"description"`
	MetricType  string            `json:"metric_type"`
	Period      string            `json:"period"`
	Dimensions  map[string]string `json:"dimensions"`
}

type UpdateMetricDefinitionRequest struct {
	Name        *string            `json:"name"`
	Description *string            `json:"description"`
	Period      *string            `json:"period"`
	Dimensions  *map[string]string `json:"dimensions"`
}

type MetricDefinitionResponse struct {
	ID          string          `json:"id"`
	ProjectID   string          `json:"project_id"`
	Name        string          `json:"name"`
	Description *string         `json:"description"`
	MetricType  string          `json:"metric_type"`
	Period      string          `json:"period"`
	Dimensions  json.RawMessage `json:"dimensions"`
	CreatedAt   string          `json:"created_at"`
	UpdatedAt   string          `json:"updated_at"`
}

type TimeseriesPoint struct {
	Timestamp string  `json:"timestamp"`
	Value     float64 `json:"value"`
}

type TimeseriesResponse struct {
	DefinitionID string            `json:"definition_id"`
	MetricType   string            `json:"metric_type"`
	Interval     string            `json:"interval"`
	Start        string            `json:"start"`
	End          string            `json:"end"`
	Points       []TimeseriesPoint `json:"points"`
}

type RollupRequest struct {
	ProjectID string `json:"project_id"`
	Period    string `json:"period"`
	At        string `json:"at"`
}

type RollupResponse struct {
	Period      string             `json:"period"`
	PeriodStart string             `json:"period_start"`
	Values      map[string]float64 `json:"values"`
}

func rawOrEmpty(b []byte) json.RawMessage {
	if len(b) == 0 {
		return json.RawMessage("{}")
	}
	return json.RawMessage(b)
}

func NewMetricResponse(m *models.Metric) MetricResponse {
	return MetricResponse{
		ID:          m.ID.String(),
		ProjectID:   m.ProjectID.String(),
		MetricType:  m.MetricType,
		Period:      m.Period,
		PeriodStart: FormatTime(m.PeriodStart),
		Dimensions:  rawOrEmpty(m.Dimensions),
		Value:       m.Value,
	}
}

func NewMetricDefinitionResponse(d *models.MetricDefinition) MetricDefinitionResponse {
	return MetricDefinitionResponse{
		ID:          d.ID.String(),
		ProjectID:   d.ProjectID.String(),
		Name:        d.Name,
		Description: d.Description,
		MetricType:  d.MetricType,
		Period:      d.Period,
		Dimensions:  rawOrEmpty(d.Dimensions),
		CreatedAt:   FormatTime(d.CreatedAt),
		UpdatedAt:   FormatTime(d.UpdatedAt),
	}
}
