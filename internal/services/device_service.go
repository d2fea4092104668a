package services

import (
	"context"
	"errors"
	"time"

	"github.com/ahmetcoskunkizilkaya/telemetry-backend/internal/apperr"
	"github.com/ahmetcoskunkizilkaya/telemetry-backend/internal/dto"
	"github.com/ahmetcoskunkizilkaya/telemetry-backend/internal/geo"
	"github.com/ahmetcoskunkizilkaya/telemetry-backend/internal/identity"
	"github.com/ahmetcoskunkizilkaya/telemetry-backend/internal/models"
	"github.com/ahmetcoskunkizilkaya/telemetry-backend/internal/policy"
	"github.com/ahmetcoskunkizilkaya/telemetry-backend/internal/tenant"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// DeviceAttributes are the client-reported device fields of an event.
type DeviceAttributes struct {
	DeviceID   string
	Platform   string
	OSVersion  *string
	AppVersion *string
	IPAddress  *string
}

type DeviceService struct {
	db  *gorm.DB
	geo geo.Lookup
}

func NewDeviceService(db *gorm.DB, lookup geo.Lookup) *DeviceService {
	if lookup == nil {
		lookup = geo.Default()
	}
	return &DeviceService{db: db, geo: lookup}
}

// Upsert finds or creates the device inside tx. The row is locked while
// its seen range is widened to include seenAt. When two writers race on a
// new device, the loser's insert fails with gorm.ErrDuplicatedKey and the
// enclosing transaction is retried by inTransaction.
func (s *DeviceService) Upsert(tx *gorm.DB, projectID uuid.UUID, attrs DeviceAttributes, seenAt time.Time) (*models.Device, error) {
	seenAt = seenAt.UTC()

	var device models.Device
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Scopes(tenant.ForProject(projectID)).
		Where("device_id = ?", attrs.DeviceID).
		Take(&device).Error

	if errors.Is(err, gorm.ErrRecordNotFound) {
		device = models.Device{
			ProjectID: projectID,
			DeviceID:  attrs.DeviceID,
			FirstSeen: seenAt,
			LastSeen:  seenAt,
		}
		s.apply(&device, attrs)
		if err := tx.Create(&device).Error; err != nil {
			return nil, err
		}
		return &device, nil
	}
	if err != nil {
		return nil, err
	}

	s.apply(&device, attrs)
	if seenAt.After(device.LastSeen) {
		device.LastSeen = seenAt
	}
	if seenAt.Before(device.FirstSeen) {
		device.FirstSeen = seenAt
	}
	if err := tx.Model(&device).Select("platform", "os_version", "app_version", "ip_address", "country", "first_seen", "last_seen").
		Updates(&device).Error; err != nil {
		return nil, err
	}
	return &device, nil
}

func (s *DeviceService) apply(device *models.Device, attrs DeviceAttributes) {
	if attrs.Platform != "" {
		device.Platform = attrs.Platform
	}
	if attrs.OSVersion != nil {
		device.OSVersion = attrs.OSVersion
	}
	if attrs.AppVersion != nil {
		device.AppVersion = attrs.AppVersion
	}
	if attrs.IPAddress != nil && *attrs.IPAddress != "" {
		device.IPAddress = attrs.IPAddress
		if country, ok := s.geo.Country(*attrs.IPAddress); ok {
			device.Country = &country
		} else {
			device.Country = nil
		}
	}
}

func (s *DeviceService) List(ctx context.Context, id identity.Identity, projectID uuid.UUID, platform string, page, limit int) (*dto.DeviceListResponse, error) {
	if _, _, err := authorizeProject(ctx, s.db, id, policy.ActionRead, projectID); err != nil {
		return nil, err
	}
	page, limit = normalizePage(page, limit)

	q := s.db.WithContext(ctx).Model(&models.Device{}).Scopes(tenant.ForProject(projectID))
	if platform != "" {
		q = q.Where("platform = ?", platform)
	}

	q = q.Session(&gorm.Session{})

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, apperr.Internal(err, "Failed to count devices")
	}
	var devices []models.Device
	if err := q.Order("last_seen DESC").Scopes(tenant.Paginate(page, limit)).Find(&devices).Error; err != nil {
		return nil, apperr.Internal(err, "Failed to list devices")
	}

	resp := &dto.DeviceListResponse{Devices: make([]dto.DeviceResponse, 0, len(devices)), Total: total, Page: page, Limit: limit}
	for i := range devices {
		resp.Devices = append(resp.Devices, dto.NewDeviceResponse(&devices[i]))
	}
	return resp, nil
}

// Get returns a device by surrogate id. Devices of projects the caller
// cannot see are reported as not found.
func (s *DeviceService) Get(ctx context.Context, id identity.Identity, deviceID uuid.UUID) (*dto.DeviceResponse, error) {
	var device models.Device
	err := s.db.WithContext(ctx).First(&device, "id = ?", deviceID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.NotFound("Device not found")
	}
	if err != nil {
		return nil, apperr.Internal(err, "Failed to load device")
	}
	if _, _, err := authorizeProject(ctx, s.db, id, policy.ActionRead, device.ProjectID); err != nil {
		if apperr.Is(err, apperr.KindNotFound) {
			return nil, apperr.NotFound("Device not found")
		}
		return nil, err
	}
	resp := dto.NewDeviceResponse(&device)
	return &resp, nil
}
