package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/noah-isme/oralex-api/internal/dto"
	"github.com/noah-isme/oralex-api/internal/models"
	"github.com/noah-isme/oralex-api/internal/observability"
	"github.com/noah-isme/oralex-api/internal/repository"
	"github.com/noah-isme/oralex-api/pkg/cloudinary"
	"github.com/noah-isme/oralex-api/pkg/transcribe"
)

// TranscriptionService runs the transcription stage: it pulls the stored
// recordings for a session, converts each question's answer to text and
// writes the transcripts back. One question failing does not abort the
// others; a total stage failure rolls the session back to uploading.
type TranscriptionService interface {
	Run(ctx context.Context, sessionID string) (dto.TranscribeResponse, error)
}

type transcriptionService struct {
	sessions    repository.SessionRepository
	media       cloudinary.Store
	transcriber transcribe.Transcriber
	locker      SessionLocker
	logger      zerolog.Logger
}

// NewTranscriptionService constructs a TranscriptionService instance.
func NewTranscriptionService(sessions repository.SessionRepository, media cloudinary.Store, transcriber transcribe.Transcriber, locker SessionLocker, logger zerolog.Logger) TranscriptionService {
	return &transcriptionService{
		sessions:    sessions,
		media:       media,
		transcriber: transcriber,
		locker:      locker,
		logger:      logger.With().Str("component", "transcription_service").Logger(),
	}
}

func (s *transcriptionService) Run(ctx context.Context, sessionID string) (dto.TranscribeResponse, error) {
	release, err := s.locker.Acquire(ctx, sessionID)
	if err != nil {
		return dto.TranscribeResponse{}, err
	}
	defer release()

	session, err := s.sessions.GetByID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.TranscribeResponse{}, ErrSessionNotFound
		}
		return dto.TranscribeResponse{}, err
	}

	if session.Status != models.StatusUploading {
		return dto.TranscribeResponse{}, statusConflict(session.Status, models.StatusUploading)
	}

	// Both guards run before the status moves so a rejected call leaves the
	// session untouched.
	assets, err := s.media.ListBySession(ctx, sessionID)
	if err != nil {
		return dto.TranscribeResponse{}, fmt.Errorf("failed to list session recordings: %w", err)
	}
	if len(assets) == 0 {
		return dto.TranscribeResponse{}, ErrNoMediaFound
	}

	err = s.sessions.TransitionStatus(ctx, sessionID, models.StatusUploading, models.StatusTranscribing, nil)
	if err != nil {
		return dto.TranscribeResponse{}, mapTransitionErr(ctx, s.sessions, sessionID, models.StatusUploading, err)
	}

	response, err := s.transcribeAll(ctx, &session, assets)
	if err != nil {
		// Roll back so a retry re-enters a consistent, retryable state.
		if rbErr := s.sessions.TransitionStatus(ctx, sessionID, models.StatusTranscribing, models.StatusUploading, nil); rbErr != nil {
			s.logger.Error().Err(rbErr).Str("session_id", sessionID).Msg("failed to roll back transcription stage")
		}
		observability.StageFailures().WithLabelValues("transcription").Inc()
		return dto.TranscribeResponse{}, err
	}

	observability.StageRuns().WithLabelValues("transcription").Inc()

	return response, nil
}

// transcribeAll converts every seat concurrently and joins the results by
// seat number, never by completion order. Per-seat failures become the
// sentinel transcript; only persistence failures escape and trigger the
// stage rollback.
func (s *transcriptionService) transcribeAll(ctx context.Context, session *models.ExamSession, assets []cloudinary.Asset) (dto.TranscribeResponse, error) {
	bySeat := groupAssetsBySeat(assets)
	transcripts := make([]string, models.QuestionsPerSession)

	var wg sync.WaitGroup
	for seq := 1; seq <= models.QuestionsPerSession; seq++ {
		wg.Add(1)
		go func(seq int) {
			defer wg.Done()
			transcripts[seq-1] = s.transcribeSeat(ctx, session.SessionID, seq, bySeat[seq])
		}(seq)
	}
	wg.Wait()

	views := make([]dto.TranscriptView, 0, models.QuestionsPerSession)
	for seq := 1; seq <= models.QuestionsPerSession; seq++ {
		answer := session.AnswerBySeq(seq)
		if answer == nil {
			return dto.TranscribeResponse{}, fmt.Errorf("session has no question seat %d", seq)
		}

		answer.Transcript = transcripts[seq-1]
		if err := s.sessions.SaveAnswer(ctx, answer); err != nil {
			return dto.TranscribeResponse{}, fmt.Errorf("failed to store transcript for seat %d: %w", seq, err)
		}

		views = append(views, dto.TranscriptView{
			Seq:        seq,
			QuestionID: answer.QuestionID,
			Transcript: answer.Transcript,
		})
	}

	return dto.TranscribeResponse{
		Transcripts: views,
		Status:      models.StatusTranscribing,
	}, nil
}

// transcribeSeat produces the transcript for one seat, substituting the
// sentinel on any failure so the other seats proceed.
func (s *transcriptionService) transcribeSeat(ctx context.Context, sessionID string, seq int, asset *cloudinary.Asset) string {
	if asset == nil {
		s.logger.Warn().Str("session_id", sessionID).Int("seq", seq).Msg("no recording found for question seat")
		return models.TranscriptErrorSentinel
	}

	media, err := s.media.Download(ctx, asset.SecureURL)
	if err != nil {
		s.logger.Error().Err(err).Str("session_id", sessionID).Int("seq", seq).Msg("failed to download recording")
		return models.TranscriptErrorSentinel
	}
	defer media.Close()

	result, err := s.transcriber.Transcribe(ctx, asset.FileName+".webm", media)
	if err != nil {
		s.logger.Error().Err(err).Str("session_id", sessionID).Int("seq", seq).Msg("failed to transcribe recording")
		return models.TranscriptErrorSentinel
	}

	s.logger.Info().
		Str("session_id", sessionID).
		Int("seq", seq).
		Float64("media_seconds", result.Duration).
		Msg("question transcribed")

	return result.Text
}

// groupAssetsBySeat keeps the first recording seen for each seat; re-uploads
// of the same question do not multiply work.
func groupAssetsBySeat(assets []cloudinary.Asset) map[int]*cloudinary.Asset {
	grouped := make(map[int]*cloudinary.Asset, models.QuestionsPerSession)
	for i := range assets {
		seq, ok := seatFromFileName(assets[i].FileName)
		if !ok {
			continue
		}
		if _, exists := grouped[seq]; !exists {
			grouped[seq] = &assets[i]
		}
	}
	return grouped
}

// seatFromFileName parses the q<seat>_ prefix stamped by the upload stage.
func seatFromFileName(name string) (int, bool) {
	if !strings.HasPrefix(name, "q") {
		return 0, false
	}
	rest := name[1:]
	end := strings.IndexByte(rest, '_')
	if end <= 0 {
		return 0, false
	}

	seq := 0
	for _, r := range rest[:end] {
		if r < '0' || r > '9' {
			return 0, false
		}
		seq = seq*10 + int(r-'0')
	}

	if seq < 1 || seq > models.QuestionsPerSession {
		return 0, false
	}

	return seq, true
}

