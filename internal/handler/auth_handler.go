package handler

import (
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/oralex-api/internal/dto"
	"github.com/noah-isme/oralex-api/internal/service"
	"github.com/noah-isme/oralex-api/internal/token"
	"github.com/noah-isme/oralex-api/internal/utils"
)

// AuthHandler exposes the roster gate, the single entry point for students
// arriving from a magic link.
type AuthHandler struct {
	gate      service.GateService
	validator *validator.Validate
	logger    zerolog.Logger
}

// NewAuthHandler constructs the auth handler.
func NewAuthHandler(gate service.GateService, validate *validator.Validate, logger zerolog.Logger) *AuthHandler {
	return &AuthHandler{
		gate:      gate,
		validator: validate,
		logger:    logger.With().Str("component", "auth_handler").Logger(),
	}
}

// Register wires auth routes.
func (h *AuthHandler) Register(router fiber.Router) {
	router.Post("/verify", h.verify)
}

func (h *AuthHandler) verify(c *fiber.Ctx) error {
	var payload dto.VerifyTokenRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request payload")
	}
	if err := h.validator.Struct(payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	logger := requestLogger(h.logger, c)

	result, err := h.gate.Verify(c.UserContext(), payload.Token)
	if err != nil {
		return h.rejection(c, logger, err)
	}

	return utils.SendSuccess(c, "token verified", result)
}

// rejection translates gate failures into the machine-readable kinds
// clients branch on. Every rejection shares the VerifyTokenResponse shape so
// the exam UI has a single decode path.
func (h *AuthHandler) rejection(c *fiber.Ctx, logger *zerolog.Logger, err error) error {
	var (
		status  int
		kind    string
		message string
	)

	switch {
	case errors.Is(err, token.ErrTokenExpired):
		status, kind, message = fiber.StatusUnauthorized, dto.ErrorKindTokenExpired, "הקישור פג תוקף"
	case errors.Is(err, token.ErrTokenInvalid):
		status, kind, message = fiber.StatusUnauthorized, dto.ErrorKindTokenInvalid, "קישור לא תקין"
	case errors.Is(err, service.ErrNotInRoster):
		status, kind, message = fiber.StatusForbidden, dto.ErrorKindNotInRoster, "אינך רשום לבחינה"
	case errors.Is(err, service.ErrAlreadyCompleted):
		status, kind, message = fiber.StatusForbidden, dto.ErrorKindAlreadyCompleted, "כבר השלמת את הבחינה"
	case errors.Is(err, service.ErrOutsideWindow):
		status, kind, message = fiber.StatusForbidden, dto.ErrorKindTokenExpired, "הבחינה אינה זמינה בשעה זו"
	default:
		logger.Error().Err(err).Msg("token verification failed")
		return utils.SendError(c, fiber.StatusInternalServerError, "internal server error")
	}

	return c.Status(status).JSON(utils.APIResponse{
		Success: false,
		Data: dto.VerifyTokenResponse{
			Valid:   false,
			Error:   kind,
			Message: message,
		},
		Message: message,
		Code:    kind,
	})
}
