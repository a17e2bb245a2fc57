package service

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/oralex-api/internal/models"
)

func completedSession(t *testing.T) models.ExamSession {
	t.Helper()

	session := models.ExamSession{
		SessionID:       "sess-1",
		StudentIDHash:   "hash-1",
		IDLast4:         "1234",
		FirstName:       "דנה",
		LastName:        "כהן",
		Email:           "dana@example.com",
		Status:          models.StatusCompleted,
		DurationMinutes: 12.5,
		TotalCorrect:    2,
		TotalScore:      78,
		VideoLink:       "https://media.example/folders/sess-1",
		Answers: []models.Answer{
			{SessionID: "sess-1", Seq: 1, QuestionID: 1, QuestionText: "שאלה ראשונה", Transcript: "answer one"},
			{SessionID: "sess-1", Seq: 2, QuestionID: 2, QuestionText: "שאלה שנייה", Transcript: "answer two"},
			{SessionID: "sess-1", Seq: 3, QuestionID: 3, QuestionText: "שאלה שלישית", Transcript: "answer three"},
		},
	}

	scores := []int{95, 70, 40}
	for i := range session.Answers {
		rubric := models.RubricResult{
			Accuracy: 0.9, Structure: 0.8, Terminology: 0.7, Logic: 0.9, Alignment: 0.8,
			Score:       scores[i],
			Explanation: "הסבר",
		}.Normalize()
		require.NoError(t, session.Answers[i].SetRubric(rubric))
	}

	return session
}

func notifyConfig() NotificationConfig {
	return NotificationConfig{
		InstructorEmail: "prof@example.com",
		AppBaseURL:      "https://exam.example.com",
	}
}

func TestNotifySendsInstructorReport(t *testing.T) {
	sessions := newFakeSessionRepo(completedSession(t))
	mail := &fakeMailer{}
	svc := NewNotificationService(sessions, mail, NewNoopSessionLocker(), notifyConfig(), zerolog.Nop())

	resp, err := svc.Notify(context.Background(), "sess-1")
	require.NoError(t, err)
	require.Equal(t, "prof@example.com", resp.EmailSentTo)
	require.False(t, resp.EmailSentAt.IsZero())

	require.Len(t, mail.sent, 2)
	report := mail.sent[0]
	require.Equal(t, "prof@example.com", report.ToEmail)
	require.Contains(t, report.Body, "דנה כהן")
	require.Contains(t, report.Body, "78/100")
	require.Contains(t, report.Body, "נכון")
	require.Contains(t, report.Body, "חלקי")
	require.Contains(t, report.Body, "שגוי")
	require.Contains(t, report.Body, "https://exam.example.com/admin/sessions/sess-1")

	require.Equal(t, "dana@example.com", mail.sent[1].ToEmail)

	stored, err := sessions.GetByID(context.Background(), "sess-1")
	require.NoError(t, err)
	require.NotNil(t, stored.EmailSentAt)
}

func TestNotifyIsOneShot(t *testing.T) {
	sessions := newFakeSessionRepo(completedSession(t))
	mail := &fakeMailer{}
	svc := NewNotificationService(sessions, mail, NewNoopSessionLocker(), notifyConfig(), zerolog.Nop())

	_, err := svc.Notify(context.Background(), "sess-1")
	require.NoError(t, err)

	_, err = svc.Notify(context.Background(), "sess-1")
	require.ErrorIs(t, err, ErrEmailAlreadySent)
	require.Len(t, mail.sent, 2)
}

func TestNotifyFailsWhenInstructorDeliveryFails(t *testing.T) {
	sessions := newFakeSessionRepo(completedSession(t))
	mail := &fakeMailer{failFor: map[string]error{"prof@example.com": errors.New("smtp down")}}
	svc := NewNotificationService(sessions, mail, NewNoopSessionLocker(), notifyConfig(), zerolog.Nop())

	_, err := svc.Notify(context.Background(), "sess-1")
	require.Error(t, err)

	// Nothing recorded, so a retry can send again.
	stored, err := sessions.GetByID(context.Background(), "sess-1")
	require.NoError(t, err)
	require.Nil(t, stored.EmailSentAt)
}

func TestNotifySwallowsStudentDeliveryFailure(t *testing.T) {
	sessions := newFakeSessionRepo(completedSession(t))
	mail := &fakeMailer{failFor: map[string]error{"dana@example.com": errors.New("mailbox full")}}
	svc := NewNotificationService(sessions, mail, NewNoopSessionLocker(), notifyConfig(), zerolog.Nop())

	resp, err := svc.Notify(context.Background(), "sess-1")
	require.NoError(t, err)
	require.Equal(t, "prof@example.com", resp.EmailSentTo)
	require.Len(t, mail.sent, 1)
}

func TestNotifyRequiresCompletedStatus(t *testing.T) {
	session := completedSession(t)
	session.Status = models.StatusScoring
	sessions := newFakeSessionRepo(session)
	svc := NewNotificationService(sessions, &fakeMailer{}, NewNoopSessionLocker(), notifyConfig(), zerolog.Nop())

	var conflict *StatusConflictError
	_, err := svc.Notify(context.Background(), "sess-1")
	require.ErrorAs(t, err, &conflict)
	require.Equal(t, models.StatusCompleted, conflict.Required)
}

func TestNotifyConcurrentCallsSendOnce(t *testing.T) {
	sessions := newFakeSessionRepo(completedSession(t))
	mail := &fakeMailer{}
	svc := NewNotificationService(sessions, mail, newBlockingLocker(), notifyConfig(), zerolog.Nop())

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = svc.Notify(context.Background(), "sess-1")
		}(i)
	}
	wg.Wait()

	delivered := 0
	for _, err := range errs {
		if err == nil {
			delivered++
		} else {
			require.ErrorIs(t, err, ErrEmailAlreadySent)
		}
	}
	require.Equal(t, 1, delivered)

	// One instructor report and one student confirmation, nothing doubled.
	require.Len(t, mail.sent, 2)
}
