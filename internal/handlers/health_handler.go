package handlers

import (
	"github.com/ahmetcoskunkizilkaya/telemetry-backend/internal/clock"
	"github.com/ahmetcoskunkizilkaya/telemetry-backend/internal/database"
	"github.com/ahmetcoskunkizilkaya/telemetry-backend/internal/dto"
	"github.com/ahmetcoskunkizilkaya/telemetry-backend/internal/metrics"
	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

type HealthHandler struct {
	db       *gorm.DB
	registry *metrics.Registry
	clock    clock.Clock
}

func NewHealthHandler(db *gorm.DB, registry *metrics.Registry, clk clock.Clock) *HealthHandler {
	return &HealthHandler{db: db, registry: registry, clock: clk}
}

func (h *HealthHandler) Check(c *fiber.Ctx) error {
	overall, dbStatus := "ok", "ok"
	status := fiber.StatusOK
	if err := database.Ping(h.db); err != nil {
		overall = "degraded"
		dbStatus = "unhealthy: " + err.Error()
		status = fiber.StatusServiceUnavailable
	}

	return c.Status(status).JSON(dto.HealthResponse{
		Status:    overall,
		Timestamp: dto.FormatTime(h.clock.Now()),
		DB:        dbStatus,
		Metrics:   h.registry.Len(),
	})
}
