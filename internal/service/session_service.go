package service

import (
	"context"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/noah-isme/oralex-api/internal/dto"
	"github.com/noah-isme/oralex-api/internal/models"
	"github.com/noah-isme/oralex-api/internal/repository"
	"github.com/noah-isme/oralex-api/internal/token"
)

// SessionService performs the setup and start transitions of the exam
// lifecycle. It is the only writer of those status changes.
type SessionService interface {
	Create(ctx context.Context, payload dto.CreateSessionRequest) (dto.CreateSessionResponse, error)
	Start(ctx context.Context, sessionID string) (dto.StartSessionResponse, error)
}

type sessionService struct {
	tokens    *token.Service
	sessions  repository.SessionRepository
	questions repository.QuestionRepository
	locker    SessionLocker
	validator *validator.Validate
	logger    zerolog.Logger
	now       func() time.Time
}

// NewSessionService constructs a SessionService instance.
func NewSessionService(tokens *token.Service, sessions repository.SessionRepository, questions repository.QuestionRepository, locker SessionLocker, validate *validator.Validate, logger zerolog.Logger) SessionService {
	return &sessionService{
		tokens:    tokens,
		sessions:  sessions,
		questions: questions,
		locker:    locker,
		validator: validate,
		logger:    logger.With().Str("component", "session_service").Logger(),
		now:       time.Now,
	}
}

// Create moves the student's session into setup: it records consent and
// precheck, draws the question seats and hands the question texts back. The
// draw is a hard failure when the bank cannot supply a full set.
func (s *sessionService) Create(ctx context.Context, payload dto.CreateSessionRequest) (dto.CreateSessionResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.CreateSessionResponse{}, err
	}

	claims, err := s.tokens.Verify(payload.Token)
	if err != nil {
		return dto.CreateSessionResponse{}, err
	}

	session, err := s.sessions.GetActiveByStudentHash(ctx, claims.StudentIDHash)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.CreateSessionResponse{}, ErrSessionNotFound
		}
		return dto.CreateSessionResponse{}, err
	}

	release, err := s.locker.Acquire(ctx, session.SessionID)
	if err != nil {
		return dto.CreateSessionResponse{}, err
	}
	defer release()

	if session.Status != models.StatusNotStarted {
		return dto.CreateSessionResponse{}, statusConflict(session.Status, models.StatusNotStarted)
	}

	drawn, err := s.questions.Random(ctx, models.QuestionsPerSession)
	if err != nil {
		return dto.CreateSessionResponse{}, err
	}
	if len(drawn) < models.QuestionsPerSession {
		return dto.CreateSessionResponse{}, ErrNotEnoughQuestions
	}

	answers := make([]models.Answer, 0, models.QuestionsPerSession)
	views := make([]dto.QuestionView, 0, models.QuestionsPerSession)
	for i, question := range drawn {
		answers = append(answers, models.Answer{
			Seq:          i + 1,
			QuestionID:   question.ID,
			QuestionText: question.Text,
		})
		views = append(views, dto.QuestionView{ID: question.ID, Text: question.Text})
	}

	// The seats are written while the session is still not_started, so a
	// failure here leaves the session retryable. The transition commits
	// last; a re-run simply redraws and overwrites the seats.
	if err := s.sessions.ReplaceAnswers(ctx, session.SessionID, answers); err != nil {
		return dto.CreateSessionResponse{}, err
	}

	now := s.now()
	err = s.sessions.TransitionStatus(ctx, session.SessionID, models.StatusNotStarted, models.StatusSetup, map[string]interface{}{
		"consent":         true,
		"consent_at":      now,
		"precheck_passed": true,
		"precheck_at":     now,
	})
	if err != nil {
		return dto.CreateSessionResponse{}, mapTransitionErr(ctx, s.sessions, session.SessionID, models.StatusNotStarted, err)
	}

	s.logger.Info().Str("session_id", session.SessionID).Msg("session moved to setup")

	return dto.CreateSessionResponse{
		SessionID: session.SessionID,
		Questions: views,
		Status:    models.StatusSetup,
	}, nil
}

// Start records the moment the recording phase begins.
func (s *sessionService) Start(ctx context.Context, sessionID string) (dto.StartSessionResponse, error) {
	release, err := s.locker.Acquire(ctx, sessionID)
	if err != nil {
		return dto.StartSessionResponse{}, err
	}
	defer release()

	session, err := s.sessions.GetByID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.StartSessionResponse{}, ErrSessionNotFound
		}
		return dto.StartSessionResponse{}, err
	}

	if session.Status != models.StatusSetup {
		return dto.StartSessionResponse{}, statusConflict(session.Status, models.StatusSetup)
	}

	startedAt := s.now()
	err = s.sessions.TransitionStatus(ctx, sessionID, models.StatusSetup, models.StatusInProgress, map[string]interface{}{
		"started_at": startedAt,
	})
	if err != nil {
		return dto.StartSessionResponse{}, mapTransitionErr(ctx, s.sessions, sessionID, models.StatusSetup, err)
	}

	s.logger.Info().Str("session_id", sessionID).Msg("session started")

	return dto.StartSessionResponse{
		StartedAt: startedAt,
		Status:    models.StatusInProgress,
	}, nil
}
