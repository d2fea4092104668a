package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Device is an instrumented client install, keyed by (ProjectID, DeviceID).
type Device struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	ProjectID  uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_devices_project_device" json:"project_id"`
	DeviceID   string    `gorm:"size:255;not null;uniqueIndex:idx_devices_project_device" json:"device_id"`
	Platform   string    `gorm:"size:50;not null" json:"platform"`
	OSVersion  *string   `gorm:"size:100" json:"os_version"`
	AppVersion *string   `gorm:"size:100" json:"app_version"`
	IPAddress  *string   `gorm:"size:64" json:"ip_address"`
	Country    *string   `gorm:"size:8" json:"country"`
	FirstSeen  time.Time `gorm:"not null;index" json:"first_seen"`
	LastSeen   time.Time `gorm:"not null" json:"last_seen"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

func (d *Device) BeforeCreate(tx *gorm.DB) error {
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	return nil
}
