package handlers

import (
	"github.com/ahmetcoskunkizilkaya/telemetry-backend/internal/services"
	"github.com/gofiber/fiber/v2"
)

type DeviceHandler struct {
	deviceService *services.DeviceService
}

func NewDeviceHandler(deviceService *services.DeviceService) *DeviceHandler {
	return &DeviceHandler{deviceService: deviceService}
}

func (h *DeviceHandler) List(c *fiber.Ctx) error {
	id, err := caller(c)
	if err != nil {
		return fail(c, err)
	}
	projectID, err := projectQuery(c)
	if err != nil {
		return fail(c, err)
	}
	page, limit := pageQuery(c)
	resp, err := h.deviceService.List(c.UserContext(), id, projectID, c.Query("platform"), page, limit)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(resp)
}

func (h *DeviceHandler) Get(c *fiber.Ctx) error {
	id, err := caller(c)
	if err != nil {
		return fail(c, err)
	}
	deviceID, err := uuidParam(c, "id")
	if err != nil {
		return fail(c, err)
	}
	resp, err := h.deviceService.Get(c.UserContext(), id, deviceID)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(resp)
}
