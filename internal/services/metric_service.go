package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/ahmetcoskunkizilkaya/telemetry-backend/internal/apperr"
	"github.com/ahmetcoskunkizilkaya/telemetry-backend/internal/clock"
	"github.com/ahmetcoskunkizilkaya/telemetry-backend/internal/dto"
	"github.com/ahmetcoskunkizilkaya/telemetry-backend/internal/identity"
	"github.com/ahmetcoskunkizilkaya/telemetry-backend/internal/metrics"
	"github.com/ahmetcoskunkizilkaya/telemetry-backend/internal/models"
	"github.com/ahmetcoskunkizilkaya/telemetry-backend/internal/policy"
	"github.com/ahmetcoskunkizilkaya/telemetry-backend/internal/tenant"
	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// maxBuckets bounds a single timeseries query.
const maxBuckets = 2000

// AggregationKey identifies one metric bucket.
type AggregationKey struct {
	ProjectID   uuid.UUID
	MetricType  string
	Period      metrics.Period
	PeriodStart time.Time
	Dimensions  map[string]string
}

func (k AggregationKey) sortKey() string {
	return k.MetricType + "|" + string(k.Period) + "|" + k.PeriodStart.UTC().Format(time.RFC3339) + "|" + metrics.DimensionKey(k.Dimensions)
}

type MetricService struct {
	db       *gorm.DB
	registry *metrics.Registry
	clock    clock.Clock
}

func NewMetricService(db *gorm.DB, registry *metrics.Registry, clk clock.Clock) *MetricService {
	if registry == nil {
		registry = metrics.NewRegistry()
	}
	if clk == nil {
		clk = clock.Real()
	}
	return &MetricService{db: db, registry: registry, clock: clk}
}

func (s *MetricService) Registry() *metrics.Registry { return s.registry }

// Record merges value into the bucket named by key inside tx, using the
// metric type's combine policy. The bucket start is truncated to the
// period.
func (s *MetricService) Record(tx *gorm.DB, key AggregationKey, value float64) (*models.Metric, error) {
	start := metrics.Truncate(key.PeriodStart, key.Period)
	dimKey := metrics.DimensionKey(key.Dimensions)
	combine := s.registry.Policy(key.MetricType)

	var metric models.Metric
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Scopes(tenant.ForProject(key.ProjectID)).
		Where("metric_type = ? AND period = ? AND period_start = ? AND dimension_key = ?",
			key.MetricType, string(key.Period), start, dimKey).
		Take(&metric).Error

	if errors.Is(err, gorm.ErrRecordNotFound) {
		metric = models.Metric{
			ProjectID:    key.ProjectID,
			MetricType:   key.MetricType,
			Period:       string(key.Period),
			PeriodStart:  start,
			DimensionKey: dimKey,
			Dimensions:   datatypes.JSON(dimKey),
			Value:        value,
		}
		if err := tx.Create(&metric).Error; err != nil {
			return nil, err
		}
		return &metric, nil
	}
	if err != nil {
		return nil, err
	}

	if combine == metrics.Sum {
		if err := tx.Model(&metric).UpdateColumn("value", gorm.Expr("value + ?", value)).Error; err != nil {
			return nil, err
		}
		metric.Value += value
		return &metric, nil
	}

	next := combine.Apply(metric.Value, value)
	if next != metric.Value {
		if err := tx.Model(&metric).UpdateColumn("value", next).Error; err != nil {
			return nil, err
		}
		metric.Value = next
	}
	return &metric, nil
}

// recordEventCounts adds each event to its hourly event_count buckets,
// overall and per event type.
func (s *MetricService) recordEventCounts(tx *gorm.DB, projectID uuid.UUID, events []models.Event) error {
	type pending struct {
		key   AggregationKey
		count float64
	}
	byKey := make(map[string]*pending)
	for i := range events {
		for _, key := range eventCountKeys(projectID, &events[i]) {
			sk := key.sortKey()
			if p, ok := byKey[sk]; ok {
				p.count++
				continue
			}
			byKey[sk] = &pending{key: key, count: 1}
		}
	}

	keys := make([]string, 0, len(byKey))
	for k := range byKey {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		p := byKey[k]
		if _, err := s.Record(tx, p.key, p.count); err != nil {
			return err
		}
	}
	return nil
}

func parseRecordRequest(projectID uuid.UUID, req *dto.RecordMetricRequest) (AggregationKey, error) {
	metricType := strings.TrimSpace(req.MetricType)
	if metricType == "" {
		return AggregationKey{}, apperr.Validation("metric_type is required")
	}
	if len(metricType) > 100 {
		return AggregationKey{}, apperr.Validation("metric_type must be at most 100 characters")
	}
	period := metrics.Hourly
	if req.Period != "" {
		p, err := metrics.ParsePeriod(req.Period)
		if err != nil {
			return AggregationKey{}, apperr.Validation("period must be one of hourly, daily, weekly, monthly")
		}
		period = p
	}
	if req.PeriodStart == "" {
		return AggregationKey{}, apperr.Validation("period_start is required")
	}
	start, err := ParseInstant(req.PeriodStart)
	if err != nil {
		return AggregationKey{}, apperr.Validation("period_start must be an RFC 3339 instant or YYYY-MM-DD date")
	}
	if _, err := encodeDimensions(req.Dimensions); err != nil {
		return AggregationKey{}, err
	}
	return AggregationKey{
		ProjectID:   projectID,
		MetricType:  metricType,
		Period:      period,
		PeriodStart: start,
		Dimensions:  req.Dimensions,
	}, nil
}

// RecordForIdentity lets an SDK push a custom counter or gauge.
func (s *MetricService) RecordForIdentity(ctx context.Context, id identity.Identity, req *dto.RecordMetricRequest) (*dto.MetricResponse, error) {
	if !id.IsProjectKey() {
		return nil, policy.Authorize(id, policy.ActionIngest, nil).Err()
	}
	project, _, err := authorizeProject(ctx, s.db, id, policy.ActionIngest, id.ProjectID)
	if err != nil {
		return nil, err
	}
	key, err := parseRecordRequest(project.ID, req)
	if err != nil {
		return nil, err
	}

	var metric *models.Metric
	err = inTransaction(context.WithoutCancel(ctx), s.db, func(tx *gorm.DB) error {
		m, err := s.Record(tx, key, req.Value)
		metric = m
		return err
	})
	if err != nil {
		return nil, internalOr(err, "Failed to record metric")
	}
	resp := dto.NewMetricResponse(metric)
	return &resp, nil
}

type RecordFilter struct {
	MetricType string
	Period     string
	Start      *time.Time
	End        *time.Time
}

// ListRecords returns raw buckets of a project ordered by period start.
func (s *MetricService) ListRecords(ctx context.Context, id identity.Identity, projectID uuid.UUID, filter RecordFilter) (*dto.MetricListResponse, error) {
	if _, _, err := authorizeProject(ctx, s.db, id, policy.ActionRead, projectID); err != nil {
		return nil, err
	}
	q := s.db.WithContext(ctx).Scopes(tenant.ForProject(projectID))
	if filter.MetricType != "" {
		q = q.Where("metric_type = ?", filter.MetricType)
	}
	if filter.Period != "" {
		q = q.Where("period = ?", filter.Period)
	}
	if filter.Start != nil {
		q = q.Where("period_start >= ?", filter.Start.UTC())
	}
	if filter.End != nil {
		q = q.Where("period_start <= ?", filter.End.UTC())
	}

	var records []models.Metric
	if err := q.Order("period_start ASC").Limit(1000).Find(&records).Error; err != nil {
		return nil, apperr.Internal(err, "Failed to list metrics")
	}
	resp := &dto.MetricListResponse{Metrics: make([]dto.MetricResponse, 0, len(records))}
	for i := range records {
		resp.Metrics = append(resp.Metrics, dto.NewMetricResponse(&records[i]))
	}
	return resp, nil
}

type TimeseriesQuery struct {
	Start    string
	End      string
	Interval string
}

// QueryTimeseries renders a definition as one point per interval bucket
// from start to end inclusive. Buckets without records are zero.
func (s *MetricService) QueryTimeseries(ctx context.Context, id identity.Identity, definitionID uuid.UUID, q TimeseriesQuery) (*dto.TimeseriesResponse, error) {
	def, err := s.loadDefinition(ctx, id, definitionID, policy.ActionRead)
	if err != nil {
		return nil, err
	}

	interval, err := metrics.ParseInterval(q.Interval)
	if err != nil {
		return nil, apperr.Validation("%s", err.Error())
	}
	source := metrics.Period(def.Period)
	if !source.CanRollInto(interval) {
		return nil, apperr.Validation("interval %s is finer than or incompatible with the %s records of this metric", q.Interval, def.Period)
	}

	end := s.clock.Now()
	if q.End != "" {
		if end, err = ParseInstant(q.End); err != nil {
			return nil, apperr.Validation("end_date must be an RFC 3339 instant or YYYY-MM-DD date")
		}
	}
	start := end.AddDate(0, 0, -30)
	if q.Start != "" {
		if start, err = ParseInstant(q.Start); err != nil {
			return nil, apperr.Validation("start_date must be an RFC 3339 instant or YYYY-MM-DD date")
		}
	}

	buckets, err := metrics.Buckets(start, end, interval, maxBuckets)
	if err != nil {
		return nil, apperr.Validation("%s", err.Error())
	}
	from := buckets[0]
	until := metrics.Next(buckets[len(buckets)-1], interval)

	var records []models.Metric
	err = s.db.WithContext(ctx).
		Scopes(tenant.ForProject(def.ProjectID)).
		Where("metric_type = ? AND period = ? AND dimension_key = ?", def.MetricType, def.Period, def.DimensionKey).
		Where("period_start >= ? AND period_start < ?", from, until).
		Find(&records).Error
	if err != nil {
		return nil, apperr.Internal(err, "Failed to load metric records")
	}

	samples := make([]metrics.Sample, len(records))
	for i, r := range records {
		samples[i] = metrics.Sample{PeriodStart: r.PeriodStart, Value: r.Value}
	}
	points := metrics.Fold(buckets, interval, samples, s.registry.Policy(def.MetricType))

	resp := &dto.TimeseriesResponse{
		DefinitionID: def.ID.String(),
		MetricType:   def.MetricType,
		Interval:     string(interval),
		Start:        dto.FormatTime(from),
		End:          dto.FormatTime(buckets[len(buckets)-1]),
		Points:       make([]dto.TimeseriesPoint, len(points)),
	}
	for i, p := range points {
		resp.Points[i] = dto.TimeseriesPoint{Timestamp: dto.FormatTime(p.Start), Value: p.Value}
	}
	return resp, nil
}

// ParseInstant accepts an RFC 3339 instant or a bare date at UTC midnight.
func ParseInstant(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid instant %q", s)
	}
	return t.UTC(), nil
}

// maxDimensionKey is the size of the dimension_key columns.
const maxDimensionKey = 1024

type encodedDimensions struct {
	key  string
	json datatypes.JSON
}

func encodeDimensions(dims map[string]string) (encodedDimensions, error) {
	key := metrics.DimensionKey(dims)
	if len(key) > maxDimensionKey {
		return encodedDimensions{}, apperr.Validation("dimensions must encode to at most %d characters", maxDimensionKey)
	}
	return encodedDimensions{key: key, json: datatypes.JSON(key)}, nil
}
