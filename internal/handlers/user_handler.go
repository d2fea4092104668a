package handlers

import (
	"github.com/ahmetcoskunkizilkaya/telemetry-backend/internal/dto"
	"github.com/ahmetcoskunkizilkaya/telemetry-backend/internal/services"
	"github.com/gofiber/fiber/v2"
)

type UserHandler struct {
	userService *services.UserService
}

func NewUserHandler(userService *services.UserService) *UserHandler {
	return &UserHandler{userService: userService}
}

func (h *UserHandler) List(c *fiber.Ctx) error {
	id, err := caller(c)
	if err != nil {
		return fail(c, err)
	}
	page, limit := pageQuery(c)
	resp, err := h.userService.List(c.UserContext(), id, page, limit)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(resp)
}

func (h *UserHandler) Create(c *fiber.Ctx) error {
	id, err := caller(c)
	if err != nil {
		return fail(c, err)
	}
	var req dto.CreateUserRequest
	if err := parseBody(c, &req); err != nil {
		return fail(c, err)
	}
	resp, err := h.userService.Create(c.UserContext(), id, &req)
	if err != nil {
		return fail(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(resp)
}

func (h *UserHandler) Get(c *fiber.Ctx) error {
	id, err := caller(c)
	if err != nil {
		return fail(c, err)
	}
	userID, err := uuidParam(c, "id")
	if err != nil {
		return fail(c, err)
	}
	resp, err := h.userService.Get(c.UserContext(), id, userID)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(resp)
}

func (h *UserHandler) Update(c *fiber.Ctx) error {
	id, err := caller(c)
	if err != nil {
		return fail(c, err)
	}
	userID, err := uuidParam(c, "id")
	if err != nil {
		return fail(c, err)
	}
	var req dto.UpdateUserRequest
	if err := parseBody(c, &req); err != nil {
		return fail(c, err)
	}
	resp, err := h.userService.Update(c.UserContext(), id, userID, &req)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(resp)
}
