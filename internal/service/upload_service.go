package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"mime/multipart"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/noah-isme/oralex-api/internal/dto"
	"github.com/noah-isme/oralex-api/internal/models"
	"github.com/noah-isme/oralex-api/internal/repository"
	"github.com/noah-isme/oralex-api/pkg/cloudinary"
)

// ChunkUpload describes one recorded blob arriving from the client.
type ChunkUpload struct {
	SessionID string
	Seq       int
	ChunkType string
	HintUsed  bool
}

// UploadService stores recorded answers and performs the finalize transition
// that closes the recording phase.
type UploadService interface {
	Chunk(ctx context.Context, payload ChunkUpload, file *multipart.FileHeader) (dto.UploadChunkResponse, error)
	Finalize(ctx context.Context, sessionID string) (dto.FinalizeUploadResponse, error)
}

type uploadService struct {
	sessions repository.SessionRepository
	media    cloudinary.Store
	locker   SessionLocker
	logger   zerolog.Logger
	now      func() time.Time
}

// NewUploadService constructs an UploadService instance.
func NewUploadService(sessions repository.SessionRepository, media cloudinary.Store, locker SessionLocker, logger zerolog.Logger) UploadService {
	return &uploadService{
		sessions: sessions,
		media:    media,
		locker:   locker,
		logger:   logger.With().Str("component", "upload_service").Logger(),
		now:      time.Now,
	}
}

// Chunk hands the media blob to storage and records the hint flag for the
// question seat. It deliberately changes nothing else on the session; the
// video link is attached at finalize.
func (s *uploadService) Chunk(ctx context.Context, payload ChunkUpload, file *multipart.FileHeader) (dto.UploadChunkResponse, error) {
	if payload.Seq < 1 || payload.Seq > models.QuestionsPerSession {
		return dto.UploadChunkResponse{}, fmt.Errorf("question seat must be between 1 and %d", models.QuestionsPerSession)
	}
	if file == nil {
		return dto.UploadChunkResponse{}, fmt.Errorf("recording file is required")
	}

	session, err := s.sessions.GetByID(ctx, payload.SessionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.UploadChunkResponse{}, ErrSessionNotFound
		}
		return dto.UploadChunkResponse{}, err
	}

	if models.IsTerminalStatus(session.Status) {
		return dto.UploadChunkResponse{}, statusConflict(session.Status, models.StatusInProgress)
	}

	if err := validateMediaType(file); err != nil {
		return dto.UploadChunkResponse{}, err
	}

	chunkType := payload.ChunkType
	if chunkType == "" {
		chunkType = "answer"
	}

	reader, err := file.Open()
	if err != nil {
		return dto.UploadChunkResponse{}, fmt.Errorf("failed to open recording: %w", err)
	}
	defer reader.Close()

	fileName := fmt.Sprintf("q%d_%s_%d", payload.Seq, chunkType, s.now().Unix())
	link, err := s.media.Upload(ctx, payload.SessionID, fileName, reader)
	if err != nil {
		return dto.UploadChunkResponse{}, fmt.Errorf("failed to store recording: %w", err)
	}

	if answer := session.AnswerBySeq(payload.Seq); answer != nil {
		answer.HintUsed = payload.HintUsed
		if err := s.sessions.SaveAnswer(ctx, answer); err != nil {
			return dto.UploadChunkResponse{}, err
		}
	}

	sizeMB := math.Round(float64(file.Size)/(1024*1024)*100) / 100

	s.logger.Info().
		Str("session_id", payload.SessionID).
		Int("seq", payload.Seq).
		Float64("size_mb", sizeMB).
		Msg("recording chunk stored")

	return dto.UploadChunkResponse{
		ChunkID: fmt.Sprintf("chunk-%d-%s", payload.Seq, chunkType),
		SizeMB:  sizeMB,
		Link:    link,
	}, nil
}

// Finalize closes the recording phase: it computes the attempt duration from
// started_at to now and attaches the folder-level video link.
func (s *uploadService) Finalize(ctx context.Context, sessionID string) (dto.FinalizeUploadResponse, error) {
	release, err := s.locker.Acquire(ctx, sessionID)
	if err != nil {
		return dto.FinalizeUploadResponse{}, err
	}
	defer release()

	session, err := s.sessions.GetByID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.FinalizeUploadResponse{}, ErrSessionNotFound
		}
		return dto.FinalizeUploadResponse{}, err
	}

	if session.Status != models.StatusInProgress {
		return dto.FinalizeUploadResponse{}, statusConflict(session.Status, models.StatusInProgress)
	}

	endedAt := s.now()
	startedAt := endedAt
	if session.StartedAt != nil {
		startedAt = *session.StartedAt
	}

	duration := math.Round(endedAt.Sub(startedAt).Minutes()*100) / 100
	videoLink := s.media.FolderLink(sessionID)

	err = s.sessions.TransitionStatus(ctx, sessionID, models.StatusInProgress, models.StatusUploading, map[string]interface{}{
		"ended_at":         endedAt,
		"duration_minutes": duration,
		"video_link":       videoLink,
	})
	if err != nil {
		return dto.FinalizeUploadResponse{}, mapTransitionErr(ctx, s.sessions, sessionID, models.StatusInProgress, err)
	}

	s.logger.Info().Str("session_id", sessionID).Float64("duration_minutes", duration).Msg("recording phase closed")

	return dto.FinalizeUploadResponse{
		VideoLink:       videoLink,
		DurationMinutes: duration,
		Status:          models.StatusUploading,
	}, nil
}

func validateMediaType(file *multipart.FileHeader) error {
	reader, err := file.Open()
	if err != nil {
		return fmt.Errorf("failed to open recording: %w", err)
	}
	defer reader.Close()

	mime, err := mimetype.DetectReader(reader)
	if err != nil {
		return fmt.Errorf("failed to detect recording type: %w", err)
	}

	allowed := []string{"video/webm", "audio/webm", "video/mp4", "audio/mpeg", "audio/wav", "audio/ogg"}
	for _, a := range allowed {
		if mime.Is(a) {
			return nil
		}
	}

	return fmt.Errorf("%w: %s", ErrUnsupportedMedia, mime.String())
}
