package services

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
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
)

// SDK convenience event types.
const (
	EventSessionStart = "session_start"
	EventSessionEnd   = "session_end"
	EventInstall      = "install"
)

type EventService struct {
	db       *gorm.DB
	devices  *DeviceService
	metrics  *MetricService
	clock    clock.Clock
	maxBatch int
}

func NewEventService(db *gorm.DB, devices *DeviceService, metricService *MetricService, clk clock.Clock, maxBatch int) *EventService {
	if clk == nil {
		clk = clock.Real()
	}
	if maxBatch <= 0 {
		maxBatch = 500
	}
	return &EventService{db: db, devices: devices, metrics: metricService, clock: clk, maxBatch: maxBatch}
}

// validEvent is a submission that passed validation.
type validEvent struct {
	eventType  string
	eventName  *string
	parameters datatypes.JSON
	timestamp  time.Time
	device     DeviceAttributes
}

func validateEvent(req *dto.EventRequest) (*validEvent, error) {
	eventType := strings.TrimSpace(req.EventType)
	if eventType == "" {
		return nil, apperr.Validation("event_type is required")
	}
	if len(eventType) > 100 {
		return nil, apperr.Validation("event_type must be at most 100 characters")
	}
	if req.EventName != nil && len(*req.EventName) > 255 {
		return nil, apperr.Validation("event_name must be at most 255 characters")
	}

	deviceID := strings.TrimSpace(req.DeviceID)
	if deviceID == "" {
		return nil, apperr.Validation("device_id is required")
	}
	if len(deviceID) > 255 {
		return nil, apperr.Validation("device_id must be at most 255 characters")
	}
	platform := strings.TrimSpace(req.Platform)
	if platform == "" {
		return nil, apperr.Validation("platform is required")
	}
	if len(platform) > 50 {
		return nil, apperr.Validation("platform must be at most 50 characters")
	}

	if err := maxLen("os_version", req.OSVersion, 100); err != nil {
		return nil, err
	}
	if err := maxLen("app_version", req.AppVersion, 100); err != nil {
		return nil, err
	}
	if err := maxLen("ip_address", req.IPAddress, 64); err != nil {
		return nil, err
	}

	if req.Timestamp == "" {
		return nil, apperr.Validation("timestamp is required")
	}
	ts, err := time.Parse(time.RFC3339Nano, req.Timestamp)
	if err != nil {
		return nil, apperr.Validation("timestamp must be an RFC 3339 instant")
	}

	var params datatypes.JSON
	trimmed := strings.TrimSpace(string(req.Parameters))
	if trimmed != "" && trimmed != "null" {
		if !json.Valid([]byte(trimmed)) {
			return nil, apperr.Validation("parameters must be valid JSON")
		}
		params = datatypes.JSON(trimmed)
	}

	return &validEvent{
		eventType:  eventType,
		eventName:  req.EventName,
		parameters: params,
		timestamp:  ts.UTC(),
		device: DeviceAttributes{
			DeviceID:   deviceID,
			Platform:   platform,
			OSVersion:  req.OSVersion,
			AppVersion: req.AppVersion,
			IPAddress:  req.IPAddress,
		},
	}, nil
}

func maxLen(field string, value *string, n int) error {
	if value != nil && len(*value) > n {
		return apperr.Validation("%s must be at most %d characters", field, n)
	}
	return nil
}

func (s *EventService) authorizeIngest(ctx context.Context, id identity.Identity) (*models.Project, error) {
	if !id.IsProjectKey() {
		return nil, policy.Authorize(id, policy.ActionIngest, nil).Err()
	}
	project, _, err := authorizeProject(ctx, s.db, id, policy.ActionIngest, id.ProjectID)
	return project, err
}

// Create validates and stores one event with its device and counters.
func (s *EventService) Create(ctx context.Context, id identity.Identity, req *dto.EventRequest) (*dto.EventResponse, error) {
	project, err := s.authorizeIngest(ctx, id)
	if err != nil {
		return nil, err
	}
	item, err := validateEvent(req)
	if err != nil {
		return nil, err
	}

	stored, err := s.store(ctx, project.ID, []*validEvent{item})
	if err != nil {
		return nil, err
	}
	resp := dto.NewEventResponse(&stored[0])
	return &resp, nil
}

// CreatePreset is Create for the SDK convenience routes: the event type
// is fixed by the route and a missing timestamp means now.
func (s *EventService) CreatePreset(ctx context.Context, id identity.Identity, eventType string, req *dto.EventRequest) (*dto.EventResponse, error) {
	req.EventType = eventType
	if req.Timestamp == "" {
		req.Timestamp = s.clock.Now().UTC().Format(time.RFC3339Nano)
	}
	return s.Create(ctx, id, req)
}

// CreateBatch is all-or-nothing: every item is validated before any write,
// and all writes share one transaction.
func (s *EventService) CreateBatch(ctx context.Context, id identity.Identity, reqs []dto.EventRequest) (*dto.BatchEventResponse, error) {
	project, err := s.authorizeIngest(ctx, id)
	if err != nil {
		return nil, err
	}
	if len(reqs) == 0 {
		return nil, apperr.Validation("events must not be empty")
	}
	if len(reqs) > s.maxBatch {
		return nil, apperr.Validation("batch exceeds %d events", s.maxBatch)
	}

	items := make([]*validEvent, 0, len(reqs))
	for i := range reqs {
		item, err := validateEvent(&reqs[i])
		if err != nil {
			var verr *apperr.Error
			if errors.As(err, &verr) {
				return nil, apperr.Validation("events[%d]: %s", i, verr.Message)
			}
			return nil, err
		}
		items = append(items, item)
	}

	stored, err := s.store(ctx, project.ID, items)
	if err != nil {
		return nil, err
	}
	resp := &dto.BatchEventResponse{Accepted: len(stored), Events: make([]dto.EventResponse, 0, len(stored))}
	for i := range stored {
		resp.Events = append(resp.Events, dto.NewEventResponse(&stored[i]))
	}
	slog.Info("event batch stored", "project_id", project.ID.String(), "count", len(stored))
	return resp, nil
}

// store persists items in one transaction. Devices and counters are
// touched in sorted key order so concurrent batches lock rows in the same
// order.
func (s *EventService) store(ctx context.Context, projectID uuid.UUID, items []*validEvent) ([]models.Event, error) {
	ctx = context.WithoutCancel(ctx)
	receivedAt := s.clock.Now().UTC()

	latest := make(map[string]DeviceAttributes)
	for _, item := range items {
		latest[item.device.DeviceID] = item.device
	}
	deviceIDs := make([]string, 0, len(latest))
	for k := range latest {
		deviceIDs = append(deviceIDs, k)
	}
	sort.Strings(deviceIDs)

	var events []models.Event
	err := inTransaction(ctx, s.db, func(tx *gorm.DB) error {
		surrogate := make(map[string]uuid.UUID, len(deviceIDs))
		for _, natural := range deviceIDs {
			device, err := s.devices.Upsert(tx, projectID, latest[natural], receivedAt)
			if err != nil {
				return err
			}
			surrogate[natural] = device.ID
		}

		events = make([]models.Event, 0, len(items))
		for _, item := range items {
			events = append(events, models.Event{
				ID:         uuid.New(),
				ProjectID:  projectID,
				DeviceID:   surrogate[item.device.DeviceID],
				EventType:  item.eventType,
				EventName:  item.eventName,
				Parameters: item.parameters,
				Timestamp:  item.timestamp,
				ReceivedAt: receivedAt,
			})
		}
		if err := tx.CreateInBatches(&events, 100).Error; err != nil {
			return err
		}

		return s.metrics.recordEventCounts(tx, projectID, events)
	})
	if err != nil {
		slog.Error("failed to store events", "project_id", projectID.String(), "count", len(items), "error", err)
		return nil, internalOr(err, "Failed to store events")
	}
	return events, nil
}

type EventFilter struct {
	EventType string
	EventName string
	DeviceID  string
	Start     *time.Time
	End       *time.Time
}

// List returns a project's events ordered by client timestamp.
func (s *EventService) List(ctx context.Context, id identity.Identity, projectID uuid.UUID, filter EventFilter, page, limit int) (*dto.EventListResponse, error) {
	if _, _, err := authorizeProject(ctx, s.db, id, policy.ActionRead, projectID); err != nil {
		return nil, err
	}
	page, limit = normalizePage(page, limit)

	q := s.db.WithContext(ctx).Model(&models.Event{}).Scopes(tenant.ForProject(projectID))
	if filter.EventType != "" {
		q = q.Where("event_type = ?", filter.EventType)
	}
	if filter.EventName != "" {
		q = q.Where("event_name = ?", filter.EventName)
	}
	if filter.DeviceID != "" {
		sub := s.db.Model(&models.Device{}).Select("id").
			Where("project_id = ? AND device_id = ?", projectID, filter.DeviceID)
		q = q.Where("device_id IN (?)", sub)
	}
	if filter.Start != nil {
		q = q.Where("timestamp >= ?", filter.Start.UTC())
	}
	if filter.End != nil {
		q = q.Where("timestamp <= ?", filter.End.UTC())
	}

	q = q.Session(&gorm.Session{})

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, apperr.Internal(err, "Failed to count events")
	}
	var events []models.Event
	if err := q.Order("timestamp ASC").Order("id ASC").Scopes(tenant.Paginate(page, limit)).Find(&events).Error; err != nil {
		return nil, apperr.Internal(err, "Failed to list events")
	}

	resp := &dto.EventListResponse{
		Events: make([]dto.EventResponse, 0, len(events)),
		Total:  total,
		Page:   page,
		Limit:  limit,
		Pages:  pageCount(total, limit),
	}
	for i := range events {
		resp.Events = append(resp.Events, dto.NewEventResponse(&events[i]))
	}
	return resp, nil
}

// Get returns a single event. An event in a project the caller cannot see
// is indistinguishable from a missing one.
func (s *EventService) Get(ctx context.Context, id identity.Identity, eventID uuid.UUID) (*dto.EventResponse, error) {
	var event models.Event
	err := s.db.WithContext(ctx).First(&event, "id = ?", eventID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.NotFound("Event not found")
	}
	if err != nil {
		return nil, apperr.Internal(err, "Failed to load event")
	}
	if _, _, err := authorizeProject(ctx, s.db, id, policy.ActionRead, event.ProjectID); err != nil {
		if apperr.Is(err, apperr.KindNotFound) {
			return nil, apperr.NotFound("Event not found")
		}
		return nil, err
	}
	resp := dto.NewEventResponse(&event)
	return &resp, nil
}

// eventCountKeys are the hourly counters every stored event increments.
func eventCountKeys(projectID uuid.UUID, e *models.Event) []AggregationKey {
	hour := metrics.Truncate(e.Timestamp, metrics.Hourly)
	return []AggregationKey{
		{ProjectID: projectID, MetricType: metrics.EventCount, Period: metrics.Hourly, PeriodStart: hour},
		{ProjectID: projectID, MetricType: metrics.EventCount, Period: metrics.Hourly, PeriodStart: hour,
			Dimensions: map[string]string{"event_type": e.EventType}},
	}
}
