package handler

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/oralex-api/internal/dto"
	"github.com/noah-isme/oralex-api/internal/service"
	"github.com/noah-isme/oralex-api/internal/token"
	"github.com/noah-isme/oralex-api/internal/utils"
)

// SessionHandler exposes the exam lifecycle endpoints: setup, start and the
// processing stages that follow the recording phase.
type SessionHandler struct {
	sessions      service.SessionService
	transcription service.TranscriptionService
	scoring       service.ScoringService
	notification  service.NotificationService
	logger        zerolog.Logger
}

// NewSessionHandler constructs the session handler.
func NewSessionHandler(sessions service.SessionService, transcription service.TranscriptionService, scoring service.ScoringService, notification service.NotificationService, logger zerolog.Logger) *SessionHandler {
	return &SessionHandler{
		sessions:      sessions,
		transcription: transcription,
		scoring:       scoring,
		notification:  notification,
		logger:        logger.With().Str("component", "session_handler").Logger(),
	}
}

// Register wires session routes.
func (h *SessionHandler) Register(router fiber.Router) {
	router.Post("/create", h.create)
	router.Post("/start", h.start)
	router.Post("/transcribe", h.transcribe)
	router.Post("/score", h.score)
	router.Post("/notify", h.notify)
}

func (h *SessionHandler) create(c *fiber.Ctx) error {
	var payload dto.CreateSessionRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request payload")
	}

	logger := requestLogger(h.logger, c)

	result, err := h.sessions.Create(c.UserContext(), payload)
	if err != nil {
		switch {
		case errors.Is(err, token.ErrTokenInvalid), errors.Is(err, token.ErrTokenExpired):
			return utils.SendErrorWithCode(c, fiber.StatusUnauthorized, dto.ErrorKindTokenInvalid, "invalid or expired token", nil)
		case errors.Is(err, service.ErrNotEnoughQuestions):
			logger.Error().Err(err).Msg("question draw failed")
			return utils.SendError(c, fiber.StatusInternalServerError, err.Error())
		default:
			return respondServiceError(c, logger, err)
		}
	}

	return utils.SendSuccess(c, "session created", result)
}

func (h *SessionHandler) start(c *fiber.Ctx) error {
	sessionID, err := sessionIDFromBody(c)
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	result, err := h.sessions.Start(c.UserContext(), sessionID)
	if err != nil {
		return respondServiceError(c, requestLogger(h.logger, c), err)
	}

	return utils.SendSuccess(c, "exam started", result)
}

func (h *SessionHandler) transcribe(c *fiber.Ctx) error {
	sessionID, err := sessionIDFromBody(c)
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	result, err := h.transcription.Run(c.UserContext(), sessionID)
	if err != nil {
		return respondServiceError(c, requestLogger(h.logger, c), err)
	}

	return utils.SendSuccess(c, "transcription completed", result)
}

func (h *SessionHandler) score(c *fiber.Ctx) error {
	sessionID, err := sessionIDFromBody(c)
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	result, err := h.scoring.Run(c.UserContext(), sessionID)
	if err != nil {
		return respondServiceError(c, requestLogger(h.logger, c), err)
	}

	return utils.SendSuccess(c, "scoring completed", result)
}

func (h *SessionHandler) notify(c *fiber.Ctx) error {
	sessionID, err := sessionIDFromBody(c)
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	result, err := h.notification.Notify(c.UserContext(), sessionID)
	if err != nil {
		return respondServiceError(c, requestLogger(h.logger, c), err)
	}

	return utils.SendSuccess(c, "notification sent", result)
}

func sessionIDFromBody(c *fiber.Ctx) (string, error) {
	var payload dto.SessionIDRequest
	if err := c.BodyParser(&payload); err != nil {
		return "", errors.New("invalid request payload")
	}
	if payload.SessionID == "" {
		return "", errors.New("session_id is required")
	}
	return payload.SessionID, nil
}
