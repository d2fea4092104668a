package handlers

import (
	"github.com/ahmetcoskunkizilkaya/telemetry-backend/internal/dto"
	"github.com/ahmetcoskunkizilkaya/telemetry-backend/internal/identity"
	"github.com/ahmetcoskunkizilkaya/telemetry-backend/internal/services"
	"github.com/gofiber/fiber/v2"
)

type AuthHandler struct {
	authService    *services.AuthService
	projectService *services.ProjectService
}

func NewAuthHandler(authService *services.AuthService, projectService *services.ProjectService) *AuthHandler {
	return &AuthHandler{authService: authService, projectService: projectService}
}

func (h *AuthHandler) Register(c *fiber.Ctx) error {
	var req dto.RegisterRequest
	if err := parseBody(c, &req); err != nil {
		return fail(c, err)
	}
	resp, err := h.authService.Register(c.UserContext(), &req)
	if err != nil {
		return fail(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(resp)
}

func (h *AuthHandler) Login(c *fiber.Ctx) error {
	var req dto.LoginRequest
	if err := parseBody(c, &req); err != nil {
		return fail(c, err)
	}
	resp, err := h.authService.Login(c.UserContext(), &req)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(resp)
}

// Token exchanges a project's raw API key for an api_key-scope token.
func (h *AuthHandler) Token(c *fiber.Ctx) error {
	var req dto.APIKeyAuthRequest
	if err := parseBody(c, &req); err != nil {
		return fail(c, err)
	}
	resp, err := h.projectService.ExchangeAPIKey(c.UserContext(), &req)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(resp)
}

func (h *AuthHandler) Logout(c *fiber.Ctx) error {
	token, err := identity.ParseBearer(c.Get(fiber.HeaderAuthorization))
	if err != nil {
		return fail(c, err)
	}
	if err := h.authService.Logout(c.UserContext(), token); err != nil {
		return fail(c, err)
	}
	return c.JSON(dto.MessageResponse{Message: "Logged out successfully"})
}

func (h *AuthHandler) Me(c *fiber.Ctx) error {
	id, err := caller(c)
	if err != nil {
		return fail(c, err)
	}
	token, _ := identity.ParseBearer(c.Get(fiber.HeaderAuthorization))
	resp, err := h.authService.Me(c.UserContext(), id, token)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(resp)
}

func (h *AuthHandler) ChangePassword(c *fiber.Ctx) error {
	id, err := caller(c)
	if err != nil {
		return fail(c, err)
	}
	var req dto.ChangePasswordRequest
	if err := parseBody(c, &req); err != nil {
		return fail(c, err)
	}
	if err := h.authService.ChangePassword(c.UserContext(), id, &req); err != nil {
		return fail(c, err)
	}
	return c.JSON(dto.MessageResponse{Message: "Password updated"})
}

func (h *AuthHandler) Sessions(c *fiber.Ctx) error {
	id, err := caller(c)
	if err != nil {
		return fail(c, err)
	}
	resp, err := h.authService.Sessions(c.UserContext(), id)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(fiber.Map{"sessions": resp})
}
