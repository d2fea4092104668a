package services

import (
	"context"
	"encoding/json"
	"time"

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

// Rollup recomputes the derived usage metrics of the bucket containing at
// from stored events and devices. It only runs on request.
func (s *MetricService) Rollup(ctx context.Context, id identity.Identity, req *dto.RollupRequest) (*dto.RollupResponse, error) {
	projectID, err := parseProjectID(req.ProjectID)
	if err != nil {
		return nil, err
	}
	if _, _, err := authorizeProject(ctx, s.db, id, policy.ActionUpdate, projectID); err != nil {
		return nil, err
	}

	period := metrics.Daily
	if req.Period != "" {
		if period, err = metrics.ParsePeriod(req.Period); err != nil {
			return nil, apperr.Validation("period must be one of hourly, daily, weekly, monthly")
		}
	}
	at := s.clock.Now()
	if req.At != "" {
		if at, err = ParseInstant(req.At); err != nil {
			return nil, apperr.Validation("at must be an RFC 3339 instant or YYYY-MM-DD date")
		}
	}
	start := metrics.Truncate(at, period)
	end := metrics.Next(start, period)

	values := make(map[string]float64)
	err = inTransaction(context.WithoutCancel(ctx), s.db, func(tx *gorm.DB) error {
		computed, err := computeUsage(tx, projectID, start, end)
		if err != nil {
			return err
		}
		for metricType, v := range computed {
			key := AggregationKey{ProjectID: projectID, MetricType: metricType, Period: period, PeriodStart: start}
			if _, err := s.Record(tx, key, v); err != nil {
				return err
			}
		}
		values = computed
		return nil
	})
	if err != nil {
		return nil, internalOr(err, "Failed to compute rollup")
	}

	return &dto.RollupResponse{
		Period:      string(period),
		PeriodStart: dto.FormatTime(start),
		Values:      values,
	}, nil
}

func computeUsage(tx *gorm.DB, projectID uuid.UUID, start, end time.Time) (map[string]float64, error) {
	inRange := func(db *gorm.DB) *gorm.DB {
		return db.Scopes(tenant.ForProject(projectID)).Where("timestamp >= ? AND timestamp < ?", start, end)
	}

	var active int64
	if err := tx.Model(&models.Event{}).Scopes(inRange).Distinct("device_id").Count(&active).Error; err != nil {
		return nil, err
	}

	var fresh int64
	if err := tx.Model(&models.Device{}).Scopes(tenant.ForProject(projectID)).
		Where("first_seen >= ? AND first_seen < ?", start, end).
		Count(&fresh).Error; err != nil {
		return nil, err
	}

	var sessions int64
	if err := tx.Model(&models.Event{}).Scopes(inRange).
		Where("event_type = ?", EventSessionStart).
		Count(&sessions).Error; err != nil {
		return nil, err
	}

	var ends []models.Event
	if err := tx.Scopes(inRange).Where("event_type = ?", EventSessionEnd).
		Select("parameters").Find(&ends).Error; err != nil {
		return nil, err
	}

	return map[string]float64{
		metrics.ActiveDevices:      float64(active),
		metrics.NewDevices:         float64(fresh),
		metrics.SessionCount:       float64(sessions),
		metrics.AvgSessionDuration: averageDuration(ends),
	}, nil
}

// averageDuration averages duration_seconds (or duration) of session_end
// parameters, ignoring events without a numeric value.
func averageDuration(events []models.Event) float64 {
	var sum float64
	var n int
	for _, e := range events {
		if len(e.Parameters) == 0 {
			continue
		}
		var params map[string]any
		if err := json.Unmarshal(e.Parameters, &params); err != nil {
			continue
		}
		for _, field := range []string{"duration_seconds", "duration"} {
			if v, ok := params[field].(float64); ok && v >= 0 {
				sum += v
				n++
				break
			}
		}
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}
