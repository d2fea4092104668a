package dto

import (
	"encoding/json"

	"github.com/ahmetcoskunkizilkaya/telemetry-backend/internal/models"
)

// EventRequest is one submitted event. Device fields are flat on the
// event.
type EventRequest struct {
	EventType  string          `json:"event_type"`
	EventName  *string         `json:"event_name"`
	Parameters json.RawMessage `json:"parameters"`
	Timestamp  string          `json:"timestamp"`
	DeviceID   string          `json:"device_id"`
	Platform   string          `json:"platform"`
	OSVersion  *string         `json:"os_version"`
	AppVersion *string         `json:"app_version"`
	IPAddress  *string         `json:"ip_address"`
}

type BatchEventRequest struct {
	Events []EventRequest `json:"events"`
}

type EventResponse struct {
	ID         string          `json:"id"`
	ProjectID  string          `json:"project_id"`
	DeviceID   string          `json:"device_id"`
	EventType  string          `json:"event_type"`
	EventName  *string         `json:"event_name"`
	Parameters json.RawMessage `json:"parameters"`
	Timestamp  string          `json:"timestamp"`
	ReceivedAt string          `json:"received_at"`
}

type BatchEventResponse struct {
	Accepted int             `json:"accepted"`
	Events   []EventResponse `json:"events"`
}

type EventListResponse struct {
	Events []EventResponse `json:"events"`
	Total  int64           `json:"total"`
	Page   int             `json:"page"`
	Limit  int             `json:"limit"`
	Pages  int             `json:"pages"`
}

type DeviceResponse struct {
	ID         string  `json:"id"`
	ProjectID  string  `json:"project_id"`
	DeviceID   string  `json:"device_id"`
	Platform   string  `json:"platform"`
	OSVersion  *string `json:"os_version"`
	AppVersion *string `json:"app_version"`
	Country    *string `json:"country"`
	FirstSeen  string  `json:"first_seen"`
	LastSeen   string  `json:"last_seen"`
}

type DeviceListResponse struct {
	Devices []DeviceResponse `json:"devices"`
	Total   int64            `json:"total"`
	Page    int              `json:"page"`
	Limit   int              `json:"limit"`
}

func NewEventResponse(e *models.Event) EventResponse {
	var params json.RawMessage
	if len(e.Parameters) > 0 {
		params = json.RawMessage(e.Parameters)
	}
	return EventResponse{
		ID:         e.ID.String(),
		ProjectID:  e.ProjectID.String(),
		DeviceID:   e.DeviceID.String(),
		EventType:  e.EventType,
		EventName:  e.EventName,
		Parameters: params,
		Timestamp:  FormatTime(e.Timestamp),
		ReceivedAt: FormatTime(e.ReceivedAt),
	}
}

func NewDeviceResponse(d *models.Device) DeviceResponse {
	return DeviceResponse{
		ID:         d.ID.String(),
		ProjectID:  d.ProjectID.String(),
		DeviceID:   d.DeviceID,
		Platform:   d.Platform,
		OSVersion:  d.OSVersion,
		AppVersion: d.AppVersion,
		Country:    d.Country,
		FirstSeen:  FormatTime(d.FirstSeen),
		LastSeen:   FormatTime(d.LastSeen),
	}
}
