package handlers

import (
	"github.com/ahmetcoskunkizilkaya/telemetry-backend/internal/dto"
	"github.com/ahmetcoskunkizilkaya/telemetry-backend/internal/services"
	"github.com/gofiber/fiber/v2"
)

type MetricHandler struct {
	metricService *services.MetricService
}

func NewMetricHandler(metricService *services.MetricService) *MetricHandler {
	return &MetricHandler{metricService: metricService}
}

// Record is the SDK route for custom counters and gauges.
func (h *MetricHandler) Record(c *fiber.Ctx) error {
	id, err := caller(c)
	if err != nil {
		return fail(c, err)
	}
	var req dto.RecordMetricRequest
	if err := parseBody(c, &req); err != nil {
		return fail(c, err)
	}
	resp, err := h.metricService.RecordForIdentity(c.UserContext(), id, &req)
	if err != nil {
		return fail(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(resp)
}

func (h *MetricHandler) ListRecords(c *fiber.Ctx) error {
	id, err := caller(c)
	if err != nil {
		return fail(c, err)
	}
	projectID, err := projectQuery(c)
	if err != nil {
		return fail(c, err)
	}
	filter := services.RecordFilter{
		MetricType: c.Query("metric_type"),
		Period:     c.Query("period"),
	}
	if filter.Start, err = timeQuery(c, "start_date"); err != nil {
		return fail(c, err)
	}
	if filter.End, err = timeQuery(c, "end_date"); err != nil {
		return fail(c, err)
	}
	resp, err := h.metricService.ListRecords(c.UserContext(), id, projectID, filter)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(resp)
}

func (h *MetricHandler) CreateDefinition(c *fiber.Ctx) error {
	id, err := caller(c)
	if err != nil {
		return fail(c, err)
	}
	var req dto.MetricDefinitionRequest
	if err := parseBody(c, &req); err != nil {
		return fail(c, err)
	}
	resp, err := h.metricService.CreateDefinition(c.UserContext(), id, &req)
	if err != nil {
		return fail(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(resp)
}

func (h *MetricHandler) ListDefinitions(c *fiber.Ctx) error {
	id, err := caller(c)
	if err != nil {
		return fail(c, err)
	}
	projectID, err := projectQuery(c)
	if err != nil {
		return fail(c, err)
	}
	resp, err := h.metricService.ListDefinitions(c.UserContext(), id, projectID)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(fiber.Map{"definitions": resp})
}

func (h *MetricHandler) GetDefinition(c *fiber.Ctx) error {
	id, err := caller(c)
	if err != nil {
		return fail(c, err)
	}
	defID, err := uuidParam(c, "id")
	if err != nil {
		return fail(c, err)
	}
	resp, err := h.metricService.GetDefinition(c.UserContext(), id, defID)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(resp)
}

func (h *MetricHandler) UpdateDefinition(c *fiber.Ctx) error {
	id, err := caller(c)
	if err != nil {
		return fail(c, err)
	}
	defID, err := uuidParam(c, "id")
	if err != nil {
		return fail(c, err)
	}
	var req dto.UpdateMetricDefinitionRequest
	if err := parseBody(c, &req); err != nil {
		return fail(c, err)
	}
	resp, err := h.metricService.UpdateDefinition(c.UserContext(), id, defID, &req)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(resp)
}

func (h *MetricHandler) DeleteDefinition(c *fiber.Ctx) error {
	id, err := caller(c)
	if err != nil {
		return fail(c, err)
	}
	defID, err := uuidParam(c, "id")
	if err != nil {
		return fail(c, err)
	}
	if err := h.metricService.DeleteDefinition(c.UserContext(), id, defID); err != nil {
		return fail(c, err)
	}
	return c.JSON(dto.MessageResponse{Message: "Metric definition deleted"})
}

// Data serves the definition as a gap-filled timeseries.
func (h *MetricHandler) Data(c *fiber.Ctx) error {
	id, err := caller(c)
	if err != nil {
		return fail(c, err)
	}
	defID, err := uuidParam(c, "id")
	if err != nil {
		return fail(c, err)
	}
	resp, err := h.metricService.QueryTimeseries(c.UserContext(), id, defID, services.TimeseriesQuery{
		Start:    c.Query("start_date"),
		End:      c.Query("end_date"),
		Interval: c.Query("interval"),
	})
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(resp)
}

func (h *MetricHandler) Rollup(c *fiber.Ctx) error {
	id, err := caller(c)
	if err != nil {
		return fail(c, err)
	}
	var req dto.RollupRequest
	if err := parseBody(c, &req); err != nil {
		return fail(c, err)
	}
	resp, err := h.metricService.Rollup(c.UserContext(), id, &req)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(resp)
}
