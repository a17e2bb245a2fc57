package handler

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/oralex-api/internal/dto"
	"github.com/noah-isme/oralex-api/internal/service"
	"github.com/noah-isme/oralex-api/internal/utils"
)

// AdminHandler exposes the instructor dashboard endpoints.
type AdminHandler struct {
	admin  service.AdminService
	logger zerolog.Logger
}

// NewAdminHandler constructs the admin handler.
func NewAdminHandler(admin service.AdminService, logger zerolog.Logger) *AdminHandler {
	return &AdminHandler{
		admin:  admin,
		logger: logger.With().Str("component", "admin_handler").Logger(),
	}
}

// Register wires admin routes. The caller mounts these behind the admin JWT
// middleware.
func (h *AdminHandler) Register(router fiber.Router) {
	router.Post("/links", h.generateLink)
	router.Get("/sessions", h.listSessions)
	router.Get("/sessions/:id", h.getSession)
	router.Patch("/sessions/:id", h.patchSession)
	router.Post("/sessions/:id/finalize", h.finalizeSession)
}

func (h *AdminHandler) generateLink(c *fiber.Ctx) error {
	var payload dto.GenerateLinkRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request payload")
	}

	result, err := h.admin.GenerateLink(c.UserContext(), payload)
	if err != nil {
		if isValidationError(err) {
			return utils.SendError(c, fiber.StatusBadRequest, err.Error())
		}
		return respondServiceError(c, requestLogger(h.logger, c), err)
	}

	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "magic link generated", result)
}

func (h *AdminHandler) listSessions(c *fiber.Ctx) error {
	result, err := h.admin.ListSessions(c.UserContext())
	if err != nil {
		return respondServiceError(c, requestLogger(h.logger, c), err)
	}

	return utils.SendSuccess(c, "sessions listed", result)
}

func (h *AdminHandler) getSession(c *fiber.Ctx) error {
	sessionID := sessionIDFromParams(c)
	if sessionID == "" {
		return utils.SendError(c, fiber.StatusBadRequest, "session id is required")
	}

	result, err := h.admin.GetSession(c.UserContext(), sessionID)
	if err != nil {
		return respondServiceError(c, requestLogger(h.logger, c), err)
	}

	return utils.SendSuccess(c, "session detail", result)
}

func (h *AdminHandler) patchSession(c *fiber.Ctx) error {
	sessionID := sessionIDFromParams(c)
	if sessionID == "" {
		return utils.SendError(c, fiber.StatusBadRequest, "session id is required")
	}

	var payload dto.SessionPatchRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request payload")
	}

	result, err := h.admin.PatchSession(c.UserContext(), sessionID, payload)
	if err != nil {
		return respondServiceError(c, requestLogger(h.logger, c), err)
	}

	return utils.SendSuccess(c, "session updated", result)
}

func (h *AdminHandler) finalizeSession(c *fiber.Ctx) error {
	sessionID := sessionIDFromParams(c)
	if sessionID == "" {
		return utils.SendError(c, fiber.StatusBadRequest, "session id is required")
	}

	var payload dto.FinalizeSessionRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request payload")
	}

	result, err := h.admin.FinalizeSession(c.UserContext(), sessionID, payload)
	if err != nil {
		return respondServiceError(c, requestLogger(h.logger, c), err)
	}

	return utils.SendSuccess(c, "session finalized", result)
}

func sessionIDFromParams(c *fiber.Ctx) string {
	return strings.TrimSpace(c.Params("id"))
}
