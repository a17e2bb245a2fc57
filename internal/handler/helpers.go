package handler

import (
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/oralex-api/internal/middleware"
	"github.com/noah-isme/oralex-api/internal/service"
	"github.com/noah-isme/oralex-api/internal/utils"
)

func requestLogger(base zerolog.Logger, c *fiber.Ctx) *zerolog.Logger {
	logger := base
	if c != nil {
		if correlation := middleware.GetCorrelationID(c); correlation != "" {
			logger = base.With().Str("correlation_id", correlation).Logger()
		}
	}
	return &logger
}

func isValidationError(err error) bool {
	var validationErrors validator.ValidationErrors
	return errors.As(err, &validationErrors)
}

// respondServiceError maps the shared service sentinels onto HTTP statuses.
// Handler-specific sentinels are mapped by the handler before calling this.
func respondServiceError(c *fiber.Ctx, logger *zerolog.Logger, err error) error {
	var conflict *service.StatusConflictError
	switch {
	case isValidationError(err):
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	case errors.As(err, &conflict):
		return utils.SendErrorWithCode(c, fiber.StatusConflict, "STATUS_CONFLICT", conflict.Error(), fiber.Map{
			"current_status":  conflict.Current,
			"required_status": conflict.Required,
		})
	case errors.Is(err, service.ErrSessionNotFound):
		return utils.SendError(c, fiber.StatusNotFound, "session not found")
	case errors.Is(err, service.ErrSessionBusy):
		return utils.SendErrorWithCode(c, fiber.StatusConflict, "SESSION_BUSY", err.Error(), nil)
	case errors.Is(err, service.ErrUnsupportedMedia),
		errors.Is(err, service.ErrNoMediaFound),
		errors.Is(err, service.ErrMissingTranscripts),
		errors.Is(err, service.ErrEmailAlreadySent),
		errors.Is(err, service.ErrSessionFinalized),
		errors.Is(err, service.ErrVerdictMismatch):
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	default:
		logger.Error().Err(err).Msg("request failed")
		return utils.SendError(c, fiber.StatusInternalServerError, "internal server error")
	}
}
