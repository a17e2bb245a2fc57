package handler

import (
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/oralex-api/internal/models"
	"github.com/noah-isme/oralex-api/internal/service"
	"github.com/noah-isme/oralex-api/internal/utils"
)

// UploadHandler receives the recorded answer blobs and closes the recording
// phase.
type UploadHandler struct {
	uploads service.UploadService
	logger  zerolog.Logger
}

// NewUploadHandler constructs the upload handler.
func NewUploadHandler(uploads service.UploadService, logger zerolog.Logger) *UploadHandler {
	return &UploadHandler{
		uploads: uploads,
		logger:  logger.With().Str("component", "upload_handler").Logger(),
	}
}

// Register wires upload routes.
func (h *UploadHandler) Register(router fiber.Router) {
	router.Post("/chunk", h.chunk)
	router.Post("/finalize", h.finalize)
}

func (h *UploadHandler) chunk(c *fiber.Ctx) error {
	file, err := c.FormFile("file")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "recording file is required")
	}

	sessionID := strings.TrimSpace(c.FormValue("session_id"))
	if sessionID == "" {
		return utils.SendError(c, fiber.StatusBadRequest, "session_id is required")
	}

	seq, err := strconv.Atoi(strings.TrimSpace(c.FormValue("seq")))
	if err != nil || seq < 1 || seq > models.QuestionsPerSession {
		return utils.SendError(c, fiber.StatusBadRequest, "seq must be a question seat between 1 and 3")
	}

	payload := service.ChunkUpload{
		SessionID: sessionID,
		Seq:       seq,
		ChunkType: strings.TrimSpace(c.FormValue("chunk_type")),
		HintUsed:  c.FormValue("hint_used") == "true",
	}

	result, err := h.uploads.Chunk(c.UserContext(), payload, file)
	if err != nil {
		return respondServiceError(c, requestLogger(h.logger, c), err)
	}

	return utils.SendSuccess(c, "chunk stored", result)
}

func (h *UploadHandler) finalize(c *fiber.Ctx) error {
	sessionID, err := sessionIDFromBody(c)
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	result, err := h.uploads.Finalize(c.UserContext(), sessionID)
	if err != nil {
		return respondServiceError(c, requestLogger(h.logger, c), err)
	}

	return utils.SendSuccess(c, "recording phase closed", result)
}
