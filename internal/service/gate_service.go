package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/noah-isme/oralex-api/internal/dto"
	"github.com/noah-isme/oralex-api/internal/models"
	"github.com/noah-isme/oralex-api/internal/repository"
	"github.com/noah-isme/oralex-api/internal/token"
)

// GateService is the roster gate: it verifies a magic-link token, checks the
// student against the allow-list and the exam window, and finds or creates
// the session for the attempt. Verification fails closed.
type GateService interface {
	Verify(ctx context.Context, tokenString string) (dto.VerifyTokenResponse, error)
}

type gateService struct {
	tokens     *token.Service
	sessions   repository.SessionRepository
	roster     repository.RosterRepository
	locker     SessionLocker
	prepWindow time.Duration
	logger     zerolog.Logger
	now        func() time.Time
}

// NewGateService constructs the roster gate.
func NewGateService(tokens *token.Service, sessions repository.SessionRepository, roster repository.RosterRepository, locker SessionLocker, prepWindow time.Duration, logger zerolog.Logger) GateService {
	if prepWindow <= 0 {
		prepWindow = 15 * time.Minute
	}

	return &gateService{
		tokens:     tokens,
		sessions:   sessions,
		roster:     roster,
		locker:     locker,
		prepWindow: prepWindow,
		logger:     logger.With().Str("component", "gate_service").Logger(),
		now:        time.Now,
	}
}

func (s *gateService) Verify(ctx context.Context, tokenString string) (dto.VerifyTokenResponse, error) {
	claims, err := s.tokens.Verify(tokenString)
	if err != nil {
		return dto.VerifyTokenResponse{}, err
	}

	entry, err := s.roster.GetByHash(ctx, claims.StudentIDHash)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.VerifyTokenResponse{}, ErrNotInRoster
		}
		return dto.VerifyTokenResponse{}, err
	}

	if entry.HasCompleted() {
		return dto.VerifyTokenResponse{}, ErrAlreadyCompleted
	}

	now := s.now()
	prepStart := claims.SlotStart.Add(-s.prepWindow)
	if now.Before(prepStart) || now.After(claims.SlotEnd) {
		return dto.VerifyTokenResponse{}, ErrOutsideWindow
	}

	session, err := s.findOrCreateSession(ctx, claims)
	if err != nil {
		return dto.VerifyTokenResponse{}, err
	}

	return dto.VerifyTokenResponse{
		Valid: true,
		Student: &dto.StudentInfo{
			StudentIDHash: claims.StudentIDHash,
			IDLast4:       claims.IDLast4,
			FirstName:     claims.FirstName,
			LastName:      claims.LastName,
			Email:         claims.Email,
			SlotStart:     claims.SlotStart,
			SlotEnd:       claims.SlotEnd,
		},
		SessionID: session.SessionID,
		Status:    session.Status,
		CanStart:  !now.Before(prepStart),
	}, nil
}

// findOrCreateSession reuses the student's in-flight session when one
// exists, so verifying the same token twice hands back the same session id.
// Completed sessions are never resurrected. Concurrent verifies for the same
// student are serialised through the locker, and a create that still loses a
// cross-instance race falls back to the row the winner inserted.
func (s *gateService) findOrCreateSession(ctx context.Context, claims token.Claims) (models.ExamSession, error) {
	release, err := s.locker.Acquire(ctx, "student:"+claims.StudentIDHash)
	if err != nil {
		return models.ExamSession{}, err
	}
	defer release()

	existing, err := s.sessions.GetActiveByStudentHash(ctx, claims.StudentIDHash)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return models.ExamSession{}, err
	}

	session := models.ExamSession{
		SessionID:     uuid.NewString(),
		StudentIDHash: claims.StudentIDHash,
		IDLast4:       claims.IDLast4,
		FirstName:     claims.FirstName,
		LastName:      claims.LastName,
		Email:         claims.Email,
		SlotStart:     claims.SlotStart,
		SlotEnd:       claims.SlotEnd,
		Status:        models.StatusNotStarted,
	}

	if err := s.sessions.Create(ctx, &session); err != nil {
		// Another instance may have inserted between the lookup and the
		// insert; the unique active-session index rejects ours. Hand back
		// the winner's row instead of failing the verify.
		winner, readErr := s.sessions.GetActiveByStudentHash(ctx, claims.StudentIDHash)
		if readErr == nil {
			return winner, nil
		}
		return models.ExamSession{}, err
	}

	if err := s.roster.UpdateAttemptStatus(ctx, claims.StudentIDHash, models.AttemptInProgress); err != nil {
		s.logger.Warn().Err(err).Str("student_id_hash", claims.StudentIDHash).Msg("failed to mark roster attempt in progress")
	}

	s.logger.Info().Str("session_id", session.SessionID).Msg("session created")

	return session, nil
}
