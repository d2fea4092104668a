package handlers

import (
	"errors"
	"log/slog"
	"strconv"

	"github.com/ahmetcoskunkizilkaya/telemetry-backend/internal/apperr"
	"github.com/ahmetcoskunkizilkaya/telemetry-backend/internal/dto"
	"github.com/ahmetcoskunkizilkaya/telemetry-backend/internal/identity"
	"github.com/ahmetcoskunkizilkaya/telemetry-backend/internal/tenant"
	sentryfiber "github.com/getsentry/sentry-go/fiber"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

// fail writes err as the JSON error envelope. Internal errors are logged
// and reported, and the caller only sees their generic message.
func fail(c *fiber.Ctx, err error) error {
	var e *apperr.Error
	if !errors.As(err, &e) {
		e = apperr.Internal(err, "Internal server error")
	}
	if e.Kind == apperr.KindInternal {
		slog.Error("request failed",
			"method", c.Method(),
			"path", c.Path(),
			"trace_id", c.GetRespHeader(fiber.HeaderXRequestID),
			"error", err.Error(),
		)
		if hub := sentryfiber.GetHubFromContext(c); hub != nil {
			hub.CaptureException(err)
		}
	}
	return c.Status(e.Kind.Status()).JSON(dto.ErrorResponse{
		Error:   true,
		Message: e.Message,
		Code:    e.Code,
	})
}

// ErrorHandler is the fiber error handler for errors no handler answered.
func ErrorHandler(c *fiber.Ctx, err error) error {
	var fe *fiber.Error
	if errors.As(err, &fe) {
		message := fe.Message
		if fe.Code >= fiber.StatusInternalServerError {
			slog.Error("unhandled server error", "method", c.Method(), "path", c.Path(), "error", err.Error())
			message = "Internal server error"
		}
		return c.Status(fe.Code).JSON(dto.ErrorResponse{Error: true, Message: message})
	}
	return fail(c, err)
}

func caller(c *fiber.Ctx) (identity.Identity, error) {
	id, ok := tenant.GetIdentity(c)
	if !ok {
		return identity.Identity{}, identity.ErrMissingCredential
	}
	return id, nil
}

func parseBody(c *fiber.Ctx, out interface{}) error {
	if err := c.BodyParser(out); err != nil {
		return apperr.Validation("Invalid request body")
	}
	return nil
}

func uuidParam(c *fiber.Ctx, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Params(name))
	if err != nil {
		return uuid.Nil, apperr.Validation("%s must be a UUID", name)
	}
	return id, nil
}

func projectQuery(c *fiber.Ctx) (uuid.UUID, error) {
	raw := c.Query("project_id")
	if raw == "" {
		return uuid.Nil, apperr.Validation("project_id is required")
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, apperr.Validation("project_id must be a UUID")
	}
	return id, nil
}

// pageQuery reads page and limit; absent or bad values fall back to the
// service defaults.
func pageQuery(c *fiber.Ctx) (int, int) {
	page, _ := strconv.Atoi(c.Query("page"))
	limit, _ := strconv.Atoi(c.Query("limit"))
	return page, limit
}
