package service

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/noah-isme/oralex-api/internal/dto"
	"github.com/noah-isme/oralex-api/internal/models"
	"github.com/noah-isme/oralex-api/internal/observability"
	"github.com/noah-isme/oralex-api/internal/repository"
	"github.com/noah-isme/oralex-api/pkg/ai"
)

// ScoringService runs the grading stage: each transcript is graded against
// its question and reference answer, the per-question rubrics are stored and
// the session totals are computed. One question failing yields a zeroed
// rubric flagged for manual review; a total stage failure rolls the session
// back to transcribing.
type ScoringService interface {
	Run(ctx context.Context, sessionID string) (dto.ScoreResponse, error)
}

type scoringService struct {
	sessions  repository.SessionRepository
	questions repository.QuestionRepository
	roster    repository.RosterRepository
	scorer    ai.Scorer
	locker    SessionLocker
	logger    zerolog.Logger
}

// NewScoringService constructs a ScoringService instance.
func NewScoringService(sessions repository.SessionRepository, questions repository.QuestionRepository, roster repository.RosterRepository, scorer ai.Scorer, locker SessionLocker, logger zerolog.Logger) ScoringService {
	return &scoringService{
		sessions:  sessions,
		questions: questions,
		roster:    roster,
		scorer:    scorer,
		locker:    locker,
		logger:    logger.With().Str("component", "scoring_service").Logger(),
	}
}

func (s *scoringService) Run(ctx context.Context, sessionID string) (dto.ScoreResponse, error) {
	release, err := s.locker.Acquire(ctx, sessionID)
	if err != nil {
		return dto.ScoreResponse{}, err
	}
	defer release()

	session, err := s.sessions.GetByID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.ScoreResponse{}, ErrSessionNotFound
		}
		return dto.ScoreResponse{}, err
	}

	if session.Status != models.StatusTranscribing {
		return dto.ScoreResponse{}, statusConflict(session.Status, models.StatusTranscribing)
	}
	if !session.HasAllTranscripts() {
		return dto.ScoreResponse{}, ErrMissingTranscripts
	}

	err = s.sessions.TransitionStatus(ctx, sessionID, models.StatusTranscribing, models.StatusScoring, nil)
	if err != nil {
		return dto.ScoreResponse{}, mapTransitionErr(ctx, s.sessions, sessionID, models.StatusTranscribing, err)
	}

	response, err := s.scoreAll(ctx, &session)
	if err != nil {
		if rbErr := s.sessions.TransitionStatus(ctx, sessionID, models.StatusScoring, models.StatusTranscribing, nil); rbErr != nil {
			s.logger.Error().Err(rbErr).Str("session_id", sessionID).Msg("failed to roll back scoring stage")
		}
		observability.StageFailures().WithLabelValues("scoring").Inc()
		return dto.ScoreResponse{}, err
	}

	observability.StageRuns().WithLabelValues("scoring").Inc()

	// Best effort: the session already completed, a stale roster row only
	// affects re-entry checks and is repairable by hand.
	if err := s.roster.UpdateAttemptStatus(ctx, session.StudentIDHash, models.AttemptCompleted); err != nil {
		s.logger.Warn().Err(err).Str("session_id", sessionID).Msg("failed to mark roster attempt completed")
	}

	return response, nil
}

// scoreAll grades every seat concurrently and joins the results by seat
// number. Per-seat grading failures become the zero rubric; persistence and
// transition failures escape and trigger the stage rollback.
func (s *scoringService) scoreAll(ctx context.Context, session *models.ExamSession) (dto.ScoreResponse, error) {
	rubrics := make([]models.RubricResult, models.QuestionsPerSession)

	var wg sync.WaitGroup
	for seq := 1; seq <= models.QuestionsPerSession; seq++ {
		answer := session.AnswerBySeq(seq)
		if answer == nil {
			return dto.ScoreResponse{}, fmt.Errorf("session has no question seat %d", seq)
		}

		wg.Add(1)
		go func(seq int, answer models.Answer) {
			defer wg.Done()
			rubrics[seq-1] = s.scoreSeat(ctx, session.SessionID, seq, answer)
		}(seq, *answer)
	}
	wg.Wait()

	views := make([]dto.AnswerScoreView, 0, models.QuestionsPerSession)
	scores := make([]int, 0, models.QuestionsPerSession)
	correct := 0

	for seq := 1; seq <= models.QuestionsPerSession; seq++ {
		answer := session.AnswerBySeq(seq)
		rubric := rubrics[seq-1]

		if err := answer.SetRubric(rubric); err != nil {
			return dto.ScoreResponse{}, fmt.Errorf("failed to encode rubric for seat %d: %w", seq, err)
		}
		if err := s.sessions.SaveAnswer(ctx, answer); err != nil {
			return dto.ScoreResponse{}, fmt.Errorf("failed to store rubric for seat %d: %w", seq, err)
		}

		scores = append(scores, rubric.Score)
		if rubric.Verdict == models.VerdictCorrect {
			correct++
		}

		views = append(views, dto.AnswerScoreView{
			Seq:        seq,
			QuestionID: answer.QuestionID,
			Rubric:     rubric,
		})
	}

	totalScore := models.MeanScore(scores)

	err := s.sessions.TransitionStatus(ctx, session.SessionID, models.StatusScoring, models.StatusCompleted, map[string]interface{}{
		"total_correct":     correct,
		"total_score_0_100": totalScore,
	})
	if err != nil {
		return dto.ScoreResponse{}, mapTransitionErr(ctx, s.sessions, session.SessionID, models.StatusScoring, err)
	}

	s.logger.Info().
		Str("session_id", session.SessionID).
		Int("total_correct", correct).
		Int("total_score", totalScore).
		Msg("session scored")

	return dto.ScoreResponse{
		Scores:       views,
		TotalCorrect: correct,
		TotalScore:   totalScore,
		Status:       models.StatusCompleted,
	}, nil
}

// scoreSeat grades one answer, substituting the zeroed manual-review rubric
// on any failure so the other seats proceed.
func (s *scoringService) scoreSeat(ctx context.Context, sessionID string, seq int, answer models.Answer) models.RubricResult {
	question, err := s.questions.GetByID(ctx, answer.QuestionID)
	if err != nil {
		s.logger.Error().Err(err).Str("session_id", sessionID).Int("seq", seq).Msg("failed to load question for grading")
		return models.ZeroRubricResult()
	}

	result, err := s.scorer.Score(ctx, ai.ScoreInput{
		Question:     question.Text,
		SampleAnswer: question.SampleAnswer,
		Transcript:   answer.Transcript,
	})
	if err != nil {
		s.logger.Error().Err(err).Str("session_id", sessionID).Int("seq", seq).Msg("failed to grade answer")
		return models.ZeroRubricResult()
	}

	rubric := models.RubricResult{
		Accuracy:    result.Accuracy,
		Structure:   result.Structure,
		Terminology: result.Terminology,
		Logic:       result.Logic,
		Alignment:   result.Alignment,
		Score:       result.Score,
		Verdict:     result.Verdict,
		Explanation: result.Explanation,
	}.Normalize()

	s.logger.Info().
		Str("session_id", sessionID).
		Int("seq", seq).
		Int("score", rubric.Score).
		Str("verdict", rubric.Verdict).
		Msg("answer graded")

	return rubric
}
