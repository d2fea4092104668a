package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Metric is one aggregated bucket. The aggregation key is (ProjectID,
// MetricType, Period, PeriodStart, DimensionKey).
type Metric struct {
	ID           uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	ProjectID    uuid.UUID      `gorm:"type:uuid;not null;uniqueIndex:idx_metrics_key" json:"project_id"`
	MetricType   string         `gorm:"size:100;not null;uniqueIndex:idx_metrics_key" json:"metric_type"`
	Period       string         `gorm:"size:20;not null;uniqueIndex:idx_metrics_key" json:"period"`
	PeriodStart  time.Time      `gorm:"not null;uniqueIndex:idx_metrics_key" json:"period_start"`
	DimensionKey string         `gorm:"size:1024;not null;default:'{}';uniqueIndex:idx_metrics_key" json:"-"`
	Dimensions   datatypes.JSON `gorm:"type:jsonb" json:"dimensions"`
	Value        float64        `gorm:"not null;default:0" json:"value"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

func (m *Metric) BeforeCreate(tx *gorm.DB) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	return nil
}

// MetricDefinition names a (metric type, period, dimensions) slice of a
// project's records that can be charted.
type MetricDefinition struct {
	ID           uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	ProjectID    uuid.UUID      `gorm:"type:uuid;not null;index" json:"project_id"`
	Name         string         `gorm:"size:255;not null" json:"name"`
	Description  *string        `gorm:"type:text" json:"description"`
	MetricType   string         `gorm:"size:100;not null" json:"metric_type"`
	Period       string         `gorm:"size:20;not null" json:"period"`
	DimensionKey string         `gorm:"size:1024;not null;default:'{}'" json:"-"`
	Dimensions   datatypes.JSON `gorm:"type:jsonb" json:"dimensions"`
	CreatedBy    uuid.UUID      `gorm:"type:uuid;not null" json:"created_by"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

func (d *MetricDefinition) BeforeCreate(tx *gorm.DB) error {
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	return nil
}
