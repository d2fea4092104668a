package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Event is immutable once stored.
type Event struct {
	ID         uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	ProjectID  uuid.UUID      `gorm:"type:uuid;not null;index:idx_events_project_time" json:"project_id"`
	DeviceID   uuid.UUID      `gorm:"type:uuid;not null;index" json:"device_id"`
	EventType  string         `gorm:"size:100;not null;index" json:"event_type"`
	EventName  *string        `gorm:"size:255" json:"event_name"`
	Parameters datatypes.JSON `gorm:"type:jsonb" json:"parameters"`
	Timestamp  time.Time      `gorm:"column:timestamp;not null;index:idx_events_project_time" json:"timestamp"`
	ReceivedAt time.Time      `gorm:"not null" json:"received_at"`
}

func (e *Event) BeforeCreate(tx *gorm.DB) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	return nil
}
