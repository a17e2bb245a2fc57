package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/oralex-api/internal/dto"
	"github.com/noah-isme/oralex-api/internal/models"
	"github.com/noah-isme/oralex-api/internal/token"
)

func newAdminFixture(t *testing.T, sessions *fakeSessionRepo, roster *fakeRosterRepo) AdminService {
	t.Helper()

	tokens, err := token.NewService("test-secret", time.Hour)
	require.NoError(t, err)

	return NewAdminService(tokens, sessions, roster, NewNoopSessionLocker(), AdminConfig{AppBaseURL: "https://exam.example.com"}, validator.New(), zerolog.Nop())
}

func TestAdminGenerateLink(t *testing.T) {
	roster := newFakeRosterRepo()
	svc := newAdminFixture(t, newFakeSessionRepo(), roster)

	resp, err := svc.GenerateLink(context.Background(), dto.GenerateLinkRequest{
		FirstName: "דנה",
		LastName:  "כהן",
		Email:     "dana@example.com",
		IDLast4:   "1234",
	})
	require.NoError(t, err)
	require.Contains(t, resp.Link, "https://exam.example.com/exam?token=")
	require.Equal(t, token.HashStudentID("dana@example.com"), resp.StudentIDHash)
	require.Equal(t, time.Hour, resp.SlotEnd.Sub(resp.SlotStart))

	entry, err := roster.GetByHash(context.Background(), resp.StudentIDHash)
	require.NoError(t, err)
	require.Equal(t, models.AttemptPending, entry.AttemptStatus)
	require.Equal(t, "dana@example.com", entry.Email)
}

func TestAdminGenerateLinkPreservesAttemptStatus(t *testing.T) {
	hash := token.HashStudentID("dana@example.com")
	roster := newFakeRosterRepo(models.RosterEntry{
		StudentIDHash: hash,
		AttemptStatus: models.AttemptInProgress,
	})
	svc := newAdminFixture(t, newFakeSessionRepo(), roster)

	// Re-issuing a link must not reset an in-flight attempt.
	slotStart := time.Now().Add(2 * time.Hour)
	slotEnd := slotStart.Add(30 * time.Minute)
	resp, err := svc.GenerateLink(context.Background(), dto.GenerateLinkRequest{
		FirstName: "דנה",
		LastName:  "כהן",
		Email:     "dana@example.com",
		IDLast4:   "1234",
		SlotStart: &slotStart,
		SlotEnd:   &slotEnd,
	})
	require.NoError(t, err)
	require.Equal(t, slotEnd.UTC(), resp.SlotEnd)

	entry, err := roster.GetByHash(context.Background(), hash)
	require.NoError(t, err)
	require.Equal(t, models.AttemptInProgress, entry.AttemptStatus)
}

func TestAdminGenerateLinkRejectsBadWindow(t *testing.T) {
	svc := newAdminFixture(t, newFakeSessionRepo(), newFakeRosterRepo())

	slotStart := time.Now()
	slotEnd := slotStart.Add(-time.Minute)
	_, err := svc.GenerateLink(context.Background(), dto.GenerateLinkRequest{
		FirstName: "דנה",
		LastName:  "כהן",
		Email:     "dana@example.com",
		IDLast4:   "1234",
		SlotStart: &slotStart,
		SlotEnd:   &slotEnd,
	})
	require.Error(t, err)
}

func TestAdminPatchSessionOverridesScore(t *testing.T) {
	sessions := newFakeSessionRepo(completedSession(t))
	svc := newAdminFixture(t, sessions, newFakeRosterRepo())

	newScore := 85
	detail, err := svc.PatchSession(context.Background(), "sess-1", dto.SessionPatchRequest{
		Answers: []dto.AnswerPatch{{Seq: 3, Score: &newScore}},
	})
	require.NoError(t, err)

	// Seat scores were 95, 70 and now 85.
	require.Equal(t, 85, detail.Answers[2].Score)
	require.Equal(t, models.VerdictCorrect, detail.Answers[2].Verdict)
	require.Equal(t, 2, detail.TotalCorrect)
	require.Equal(t, 83, detail.TotalScore)

	stored, err := sessions.GetByID(context.Background(), "sess-1")
	require.NoError(t, err)
	require.Equal(t, 83, stored.TotalScore)
	require.Equal(t, models.VerdictCorrect, stored.Answers[2].RubricResult().Verdict)
}

func TestAdminPatchSessionRejectsVerdictMismatch(t *testing.T) {
	sessions := newFakeSessionRepo(completedSession(t))
	svc := newAdminFixture(t, sessions, newFakeRosterRepo())

	newScore := 85
	wrongVerdict := models.VerdictWrong
	_, err := svc.PatchSession(context.Background(), "sess-1", dto.SessionPatchRequest{
		Answers: []dto.AnswerPatch{{Seq: 3, Score: &newScore, Verdict: &wrongVerdict}},
	})
	require.ErrorIs(t, err, ErrVerdictMismatch)
}

func TestAdminPatchSessionNotes(t *testing.T) {
	sessions := newFakeSessionRepo(completedSession(t))
	svc := newAdminFixture(t, sessions, newFakeRosterRepo())

	notes := "נדרשת בדיקה נוספת של שאלה 2"
	detail, err := svc.PatchSession(context.Background(), "sess-1", dto.SessionPatchRequest{Notes: &notes})
	require.NoError(t, err)
	require.Equal(t, notes, detail.Notes)

	// Totals stay untouched when no answers were patched.
	require.Equal(t, 78, detail.TotalScore)
}

func TestAdminFinalizeIsOneWay(t *testing.T) {
	sessions := newFakeSessionRepo(completedSession(t))
	svc := newAdminFixture(t, sessions, newFakeRosterRepo())

	detail, err := svc.FinalizeSession(context.Background(), "sess-1", dto.FinalizeSessionRequest{ReviewedBy: "prof"})
	require.NoError(t, err)
	require.True(t, detail.Finalized)
	require.Equal(t, "prof", detail.ReviewedBy)

	_, err = svc.FinalizeSession(context.Background(), "sess-1", dto.FinalizeSessionRequest{ReviewedBy: "prof"})
	require.ErrorIs(t, err, ErrSessionFinalized)

	// A finalized session is locked against further grade edits.
	newScore := 10
	_, err = svc.PatchSession(context.Background(), "sess-1", dto.SessionPatchRequest{
		Answers: []dto.AnswerPatch{{Seq: 1, Score: &newScore}},
	})
	require.ErrorIs(t, err, ErrSessionFinalized)
}

func TestAdminListAndGet(t *testing.T) {
	sessions := newFakeSessionRepo(completedSession(t))
	svc := newAdminFixture(t, sessions, newFakeRosterRepo())

	summaries, err := svc.ListSessions(context.Background())
	require.NoError(t, err)
	require.Len(t, summaries, 1)
	require.Equal(t, "דנה כהן", summaries[0].StudentName)

	detail, err := svc.GetSession(context.Background(), "sess-1")
	require.NoError(t, err)
	require.Len(t, detail.Answers, models.QuestionsPerSession)

	_, err = svc.GetSession(context.Background(), "missing")
	require.ErrorIs(t, err, ErrSessionNotFound)
}

func TestAdminFinalizeConcurrentCallersOneWins(t *testing.T) {
	sessions := newFakeSessionRepo(completedSession(t))
	tokens, err := token.NewService("test-secret", time.Hour)
	require.NoError(t, err)
	svc := NewAdminService(tokens, sessions, newFakeRosterRepo(), newBlockingLocker(), AdminConfig{AppBaseURL: "https://exam.example.com"}, validator.New(), zerolog.Nop())

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = svc.FinalizeSession(context.Background(), "sess-1", dto.FinalizeSessionRequest{ReviewedBy: "reviewer"})
		}(i)
	}
	wg.Wait()

	finalized := 0
	for _, err := range errs {
		if err == nil {
			finalized++
		} else {
			require.ErrorIs(t, err, ErrSessionFinalized)
		}
	}
	require.Equal(t, 1, finalized)
}

func TestAdminPatchBlockedAfterFinalizeWins(t *testing.T) {
	sessions := newFakeSessionRepo(completedSession(t))
	svc := newAdminFixture(t, sessions, newFakeRosterRepo())

	_, err := svc.FinalizeSession(context.Background(), "sess-1", dto.FinalizeSessionRequest{ReviewedBy: "reviewer"})
	require.NoError(t, err)

	newScore := 10
	_, err = svc.PatchSession(context.Background(), "sess-1", dto.SessionPatchRequest{
		Answers: []dto.AnswerPatch{{Seq: 1, Score: &newScore}},
	})
	require.ErrorIs(t, err, ErrSessionFinalized)
}
