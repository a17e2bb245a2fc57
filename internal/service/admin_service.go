package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/noah-isme/oralex-api/internal/dto"
	"github.com/noah-isme/oralex-api/internal/models"
	"github.com/noah-isme/oralex-api/internal/repository"
	"github.com/noah-isme/oralex-api/internal/token"
)

// AdminConfig carries the defaults used when an admin request leaves a field
// out.
type AdminConfig struct {
	AppBaseURL string
}

// AdminService covers the instructor side: minting magic links, browsing
// sessions, overriding grades and finalizing reviews.
type AdminService interface {
	GenerateLink(ctx context.Context, payload dto.GenerateLinkRequest) (dto.GenerateLinkResponse, error)
	ListSessions(ctx context.Context) ([]dto.SessionSummary, error)
	GetSession(ctx context.Context, sessionID string) (dto.SessionDetail, error)
	PatchSession(ctx context.Context, sessionID string, payload dto.SessionPatchRequest) (dto.SessionDetail, error)
	FinalizeSession(ctx context.Context, sessionID string, payload dto.FinalizeSessionRequest) (dto.SessionDetail, error)
}

type adminService struct {
	tokens    *token.Service
	sessions  repository.SessionRepository
	roster    repository.RosterRepository
	locker    SessionLocker
	cfg       AdminConfig
	validator *validator.Validate
	logger    zerolog.Logger
	now       func() time.Time
}

// NewAdminService constructs an AdminService instance.
func NewAdminService(tokens *token.Service, sessions repository.SessionRepository, roster repository.RosterRepository, locker SessionLocker, cfg AdminConfig, validate *validator.Validate, logger zerolog.Logger) AdminService {
	return &adminService{
		tokens:    tokens,
		sessions:  sessions,
		roster:    roster,
		locker:    locker,
		cfg:       cfg,
		validator: validate,
		logger:    logger.With().Str("component", "admin_service").Logger(),
		now:       time.Now,
	}
}

// GenerateLink enrolls the student in the roster and mints a signed magic
// link bound to the slot window. Re-generating for the same student reuses
// the roster row and refreshes the identity and slot fields.
func (s *adminService) GenerateLink(ctx context.Context, payload dto.GenerateLinkRequest) (dto.GenerateLinkResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.GenerateLinkResponse{}, err
	}

	slotStart := s.now().UTC()
	if payload.SlotStart != nil {
		slotStart = payload.SlotStart.UTC()
	}
	slotEnd := slotStart.Add(time.Hour)
	if payload.SlotEnd != nil {
		slotEnd = payload.SlotEnd.UTC()
	}
	if !slotEnd.After(slotStart) {
		return dto.GenerateLinkResponse{}, fmt.Errorf("slot end must be after slot start")
	}

	hash := token.HashStudentID(payload.Email)

	entry := models.RosterEntry{
		StudentIDHash: hash,
		FirstName:     payload.FirstName,
		LastName:      payload.LastName,
		Email:         strings.ToLower(strings.TrimSpace(payload.Email)),
		IDLast4:       payload.IDLast4,
		SlotStart:     slotStart,
		SlotEnd:       slotEnd,
		AttemptStatus: models.AttemptPending,
	}
	if err := s.roster.Upsert(ctx, &entry); err != nil {
		return dto.GenerateLinkResponse{}, fmt.Errorf("failed to enroll student: %w", err)
	}

	baseURL := strings.TrimRight(payload.BaseURL, "/")
	if baseURL == "" {
		baseURL = s.cfg.AppBaseURL
	}

	link, err := s.tokens.MagicLink(baseURL, token.Claims{
		StudentIDHash: hash,
		IDLast4:       payload.IDLast4,
		FirstName:     payload.FirstName,
		LastName:      payload.LastName,
		Email:         entry.Email,
		SlotStart:     slotStart,
		SlotEnd:       slotEnd,
	})
	if err != nil {
		return dto.GenerateLinkResponse{}, fmt.Errorf("failed to sign magic link: %w", err)
	}

	s.logger.Info().
		Str("student_id_hash", hash).
		Time("slot_start", slotStart).
		Time("slot_end", slotEnd).
		Msg("magic link generated")

	return dto.GenerateLinkResponse{
		Link:          link,
		StudentIDHash: hash,
		SlotStart:     slotStart,
		SlotEnd:       slotEnd,
	}, nil
}

func (s *adminService) ListSessions(ctx context.Context) ([]dto.SessionSummary, error) {
	sessions, err := s.sessions.List(ctx)
	if err != nil {
		return nil, err
	}

	return dto.NewSessionSummarySlice(sessions), nil
}

func (s *adminService) GetSession(ctx context.Context, sessionID string) (dto.SessionDetail, error) {
	session, err := s.getSession(ctx, sessionID)
	if err != nil {
		return dto.SessionDetail{}, err
	}

	return dto.NewSessionDetail(session), nil
}

// PatchSession applies grade overrides and notes. A patched score without a
// verdict re-derives the verdict; sending both with a disagreeing pair is
// rejected so the stored verdict never contradicts the stored score. The
// session lock is held for the whole read-patch-write, so an override can
// never land against a review that finalizes underneath it.
func (s *adminService) PatchSession(ctx context.Context, sessionID string, payload dto.SessionPatchRequest) (dto.SessionDetail, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.SessionDetail{}, err
	}

	release, err := s.locker.Acquire(ctx, sessionID)
	if err != nil {
		return dto.SessionDetail{}, err
	}
	defer release()

	session, err := s.getSession(ctx, sessionID)
	if err != nil {
		return dto.SessionDetail{}, err
	}
	if session.Finalized {
		return dto.SessionDetail{}, ErrSessionFinalized
	}

	for _, patch := range payload.Answers {
		answer := session.AnswerBySeq(patch.Seq)
		if answer == nil {
			return dto.SessionDetail{}, fmt.Errorf("session has no question seat %d", patch.Seq)
		}

		score := answer.Score
		if patch.Score != nil {
			score = *patch.Score
		}
		verdict := models.VerdictForScore(score)
		if patch.Verdict != nil && *patch.Verdict != verdict {
			return dto.SessionDetail{}, ErrVerdictMismatch
		}

		rubric := answer.RubricResult()
		rubric.Score = score
		rubric.Verdict = verdict
		if err := answer.SetRubric(rubric); err != nil {
			return dto.SessionDetail{}, fmt.Errorf("failed to encode rubric for seat %d: %w", patch.Seq, err)
		}
		if err := s.sessions.SaveAnswer(ctx, answer); err != nil {
			return dto.SessionDetail{}, fmt.Errorf("failed to store override for seat %d: %w", patch.Seq, err)
		}
	}

	fields := map[string]interface{}{}
	if payload.Notes != nil {
		fields["notes"] = *payload.Notes
		session.Notes = *payload.Notes
	}

	if len(payload.Answers) > 0 {
		scores := make([]int, 0, models.QuestionsPerSession)
		correct := 0
		for seq := 1; seq <= models.QuestionsPerSession; seq++ {
			answer := session.AnswerBySeq(seq)
			if answer == nil {
				continue
			}
			scores = append(scores, answer.Score)
			if answer.Verdict == models.VerdictCorrect {
				correct++
			}
		}

		session.TotalScore = models.MeanScore(scores)
		session.TotalCorrect = correct
		fields["total_score_0_100"] = session.TotalScore
		fields["total_correct"] = session.TotalCorrect
	}

	if len(fields) > 0 {
		if err := s.sessions.UpdateFields(ctx, sessionID, fields); err != nil {
			return dto.SessionDetail{}, fmt.Errorf("failed to update session: %w", err)
		}
	}

	s.logger.Info().
		Str("session_id", sessionID).
		Int("patched_answers", len(payload.Answers)).
		Msg("session review updated")

	return dto.NewSessionDetail(session), nil
}

// FinalizeSession locks the review. Finalization is one way; a second call
// is rejected rather than silently ignored. The write is a compare-and-swap
// on the finalized flag, so even two callers that both read an open review
// cannot both succeed.
func (s *adminService) FinalizeSession(ctx context.Context, sessionID string, payload dto.FinalizeSessionRequest) (dto.SessionDetail, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.SessionDetail{}, err
	}

	release, err := s.locker.Acquire(ctx, sessionID)
	if err != nil {
		return dto.SessionDetail{}, err
	}
	defer release()

	session, err := s.getSession(ctx, sessionID)
	if err != nil {
		return dto.SessionDetail{}, err
	}
	if session.Finalized {
		return dto.SessionDetail{}, ErrSessionFinalized
	}

	if err := s.sessions.Finalize(ctx, sessionID, payload.ReviewedBy); err != nil {
		if errors.Is(err, repository.ErrAlreadyFinalized) {
			return dto.SessionDetail{}, ErrSessionFinalized
		}
		return dto.SessionDetail{}, fmt.Errorf("failed to finalize session: %w", err)
	}

	session.Finalized = true
	session.ReviewedBy = payload.ReviewedBy

	s.logger.Info().
		Str("session_id", sessionID).
		Str("reviewed_by", payload.ReviewedBy).
		Msg("session finalized")

	return dto.NewSessionDetail(session), nil
}

func (s *adminService) getSession(ctx context.Context, sessionID string) (models.ExamSession, error) {
	session, err := s.sessions.GetByID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.ExamSession{}, ErrSessionNotFound
		}
		return models.ExamSession{}, err
	}

	return session, nil
}
