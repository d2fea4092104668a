package handlers

import (
	"time"

	"github.com/ahmetcoskunkizilkaya/telemetry-backend/internal/apperr"
	"github.com/ahmetcoskunkizilkaya/telemetry-backend/internal/dto"
	"github.com/ahmetcoskunkizilkaya/telemetry-backend/internal/services"
	"github.com/gofiber/fiber/v2"
)

type EventHandler struct {
	eventService *services.EventService
}

func NewEventHandler(eventService *services.EventService) *EventHandler {
	return &EventHandler{eventService: eventService}
}

// fillIP uses the connection address when the client sent no ip_address.
func fillIP(c *fiber.Ctx, req *dto.EventRequest) {
	if req.IPAddress == nil || *req.IPAddress == "" {
		ip := c.IP()
		req.IPAddress = &ip
	}
}

func (h *EventHandler) Create(c *fiber.Ctx) error {
	id, err := caller(c)
	if err != nil {
		return fail(c, err)
	}
	var req dto.EventRequest
	if err := parseBody(c, &req); err != nil {
		return fail(c, err)
	}
	fillIP(c, &req)
	resp, err := h.eventService.Create(c.UserContext(), id, &req)
	if err != nil {
		return fail(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(resp)
}

func (h *EventHandler) CreateBatch(c *fiber.Ctx) error {
	id, err := caller(c)
	if err != nil {
		return fail(c, err)
	}
	var req dto.BatchEventRequest
	if err := parseBody(c, &req); err != nil {
		return fail(c, err)
	}
	for i := range req.Events {
		fillIP(c, &req.Events[i])
	}
	resp, err := h.eventService.CreateBatch(c.UserContext(), id, req.Events)
	if err != nil {
		return fail(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(resp)
}

func (h *EventHandler) preset(eventType string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := caller(c)
		if err != nil {
			return fail(c, err)
		}
		var req dto.EventRequest
		if err := parseBody(c, &req); err != nil {
			return fail(c, err)
		}
		fillIP(c, &req)
		resp, err := h.eventService.CreatePreset(c.UserContext(), id, eventType, &req)
		if err != nil {
			return fail(c, err)
		}
		return c.Status(fiber.StatusCreated).JSON(resp)
	}
}

func (h *EventHandler) SessionStart() fiber.Handler { return h.preset(services.EventSessionStart) }

func (h *EventHandler) SessionEnd() fiber.Handler { return h.preset(services.EventSessionEnd) }

func (h *EventHandler) Install() fiber.Handler { return h.preset(services.EventInstall) }

func (h *EventHandler) List(c *fiber.Ctx) error {
	id, err := caller(c)
	if err != nil {
		return fail(c, err)
	}
	projectID, err := projectQuery(c)
	if err != nil {
		return fail(c, err)
	}
	filter := services.EventFilter{
		EventType: c.Query("event_type"),
		EventName: c.Query("event_name"),
		DeviceID:  c.Query("device_id"),
	}
	if filter.Start, err = timeQuery(c, "start_date"); err != nil {
		return fail(c, err)
	}
	if filter.End, err = timeQuery(c, "end_date"); err != nil {
		return fail(c, err)
	}
	page, limit := pageQuery(c)
	resp, err := h.eventService.List(c.UserContext(), id, projectID, filter, page, limit)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(resp)
}

func (h *EventHandler) Get(c *fiber.Ctx) error {
	id, err := caller(c)
	if err != nil {
		return fail(c, err)
	}
	eventID, err := uuidParam(c, "id")
	if err != nil {
		return fail(c, err)
	}
	resp, err := h.eventService.Get(c.UserContext(), id, eventID)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(resp)
}

func timeQuery(c *fiber.Ctx, name string) (*time.Time, error) {
	raw := c.Query(name)
	if raw == "" {
		return nil, nil
	}
	t, err := services.ParseInstant(raw)
	if err != nil {
		return nil, apperr.Validation("%s must be an RFC 3339 instant or YYYY-MM-DD date", name)
	}
	return &t, nil
}
