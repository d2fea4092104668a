package handlers

import (
	"github.com/ahmetcoskunkizilkaya/telemetry-backend/internal/dto"
	"github.com/ahmetcoskunkizilkaya/telemetry-backend/internal/services"
	"github.com/gofiber/fiber/v2"
)

type ProjectHandler struct {
	projectService *services.ProjectService
}

func NewProjectHandler(projectService *services.ProjectService) *ProjectHandler {
	return &ProjectHandler{projectService: projectService}
}

func (h *ProjectHandler) Create(c *fiber.Ctx) error {
	id, err := caller(c)
	if err != nil {
		return fail(c, err)
	}
	var req dto.CreateProjectRequest
	if err := parseBody(c, &req); err != nil {
		return fail(c, err)
	}
	resp, err := h.projectService.Create(c.UserContext(), id, &req)
	if err != nil {
		return fail(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(resp)
}

func (h *ProjectHandler) List(c *fiber.Ctx) error {
	id, err := caller(c)
	if err != nil {
		return fail(c, err)
	}
	resp, err := h.projectService.List(c.UserContext(), id)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(fiber.Map{"projects": resp})
}

func (h *ProjectHandler) Get(c *fiber.Ctx) error {
	id, err := caller(c)
	if err != nil {
		return fail(c, err)
	}
	projectID, err := uuidParam(c, "id")
	if err != nil {
		return fail(c, err)
	}
	resp, err := h.projectService.Get(c.UserContext(), id, projectID)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(resp)
}

func (h *ProjectHandler) Update(c *fiber.Ctx) error {
	id, err := caller(c)
	if err != nil {
		return fail(c, err)
	}
	projectID, err := uuidParam(c, "id")
	if err != nil {
		return fail(c, err)
	}
	var req dto.UpdateProjectRequest
	if err := parseBody(c, &req); err != nil {
		return fail(c, err)
	}
	resp, err := h.projectService.Update(c.UserContext(), id, projectID, &req)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(resp)
}

func (h *ProjectHandler) Delete(c *fiber.Ctx) error {
	id, err := caller(c)
	if err != nil {
		return fail(c, err)
	}
	projectID, err := uuidParam(c, "id")
	if err != nil {
		return fail(c, err)
	}
	if err := h.projectService.Delete(c.UserContext(), id, projectID); err != nil {
		return fail(c, err)
	}
	return c.JSON(dto.MessageResponse{Message: "Project deleted"})
}

func (h *ProjectHandler) RegenerateAPIKey(c *fiber.Ctx) error {
	id, err := caller(c)
	if err != nil {
		return fail(c, err)
	}
	projectID, err := uuidParam(c, "id")
	if err != nil {
		return fail(c, err)
	}
	resp, err := h.projectService.RegenerateAPIKey(c.UserContext(), id, projectID)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(resp)
}

func (h *ProjectHandler) IssueKeyToken(c *fiber.Ctx) error {
	id, err := caller(c)
	if err != nil {
		return fail(c, err)
	}
	projectID, err := uuidParam(c, "id")
	if err != nil {
		return fail(c, err)
	}
	resp, err := h.projectService.IssueKeyToken(c.UserContext(), id, projectID)
	if err != nil {
		return fail(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(resp)
}

func (h *ProjectHandler) ListMembers(c *fiber.Ctx) error {
	id, err := caller(c)
	if err != nil {
		return fail(c, err)
	}
	projectID, err := uuidParam(c, "id")
	if err != nil {
		return fail(c, err)
	}
	resp, err := h.projectService.ListMembers(c.UserContext(), id, projectID)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(fiber.Map{"members": resp})
}

func (h *ProjectHandler) AddMember(c *fiber.Ctx) error {
	id, err := caller(c)
	if err != nil {
		return fail(c, err)
	}
	projectID, err := uuidParam(c, "id")
	if err != nil {
		return fail(c, err)
	}
	var req dto.AddMemberRequest
	if err := parseBody(c, &req); err != nil {
		return fail(c, err)
	}
	resp, err := h.projectService.AddMember(c.UserContext(), id, projectID, &req)
	if err != nil {
		return fail(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(resp)
}

func (h *ProjectHandler) UpdateMember(c *fiber.Ctx) error {
	id, err := caller(c)
	if err != nil {
		return fail(c, err)
	}
	projectID, err := uuidParam(c, "id")
	if err != nil {
		return fail(c, err)
	}
	userID, err := uuidParam(c, "user_id")
	if err != nil {
		return fail(c, err)
	}
	var req dto.UpdateMemberRequest
	if err := parseBody(c, &req); err != nil {
		return fail(c, err)
	}
	resp, err := h.projectService.UpdateMember(c.UserContext(), id, projectID, userID, &req)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(resp)
}

func (h *ProjectHandler) RemoveMember(c *fiber.Ctx) error {
	id, err := caller(c)
	if err != nil {
		return fail(c, err)
	}
	projectID, err := uuidParam(c, "id")
	if err != nil {
		return fail(c, err)
	}
	userID, err := uuidParam(c, "user_id")
	if err != nil {
		return fail(c, err)
	}
	if err := h.projectService.RemoveMember(c.UserContext(), id, projectID, userID); err != nil {
		return fail(c, err)
	}
	return c.JSON(dto.MessageResponse{Message: "Member removed"})
}
