package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html/template"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/noah-isme/oralex-api/internal/dto"
	"github.com/noah-isme/oralex-api/internal/models"
	"github.com/noah-isme/oralex-api/internal/repository"
	"github.com/noah-isme/oralex-api/pkg/mailer"
)

// NotificationConfig carries the addressing used for the post-exam emails.
type NotificationConfig struct {
	InstructorEmail string
	AppBaseURL      string
}

// NotificationService sends the one-shot post-exam emails: the full report
// to the instructor and a plain confirmation to the student. The instructor
// email is the operation; the student email is best effort.
type NotificationService interface {
	Notify(ctx context.Context, sessionID string) (dto.NotifyResponse, error)
}

type notificationService struct {
	sessions repository.SessionRepository
	mail     mailer.Mailer
	locker   SessionLocker
	cfg      NotificationConfig
	logger   zerolog.Logger
	now      func() time.Time
}

// NewNotificationService constructs a NotificationService instance.
func NewNotificationService(sessions repository.SessionRepository, mail mailer.Mailer, locker SessionLocker, cfg NotificationConfig, logger zerolog.Logger) NotificationService {
	return &notificationService{
		sessions: sessions,
		mail:     mail,
		locker:   locker,
		cfg:      cfg,
		logger:   logger.With().Str("component", "notification_service").Logger(),
		now:      time.Now,
	}
}

// Notify holds the session lock across the already-sent check and the send
// itself, so two concurrent calls cannot both pass the check and double the
// instructor's inbox.
func (s *notificationService) Notify(ctx context.Context, sessionID string) (dto.NotifyResponse, error) {
	release, err := s.locker.Acquire(ctx, sessionID)
	if err != nil {
		return dto.NotifyResponse{}, err
	}
	defer release()

	session, err := s.sessions.GetByID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.NotifyResponse{}, ErrSessionNotFound
		}
		return dto.NotifyResponse{}, err
	}

	if session.Status != models.StatusCompleted {
		return dto.NotifyResponse{}, statusConflict(session.Status, models.StatusCompleted)
	}
	if session.EmailSentAt != nil {
		return dto.NotifyResponse{}, ErrEmailAlreadySent
	}

	report, err := s.renderInstructorReport(&session)
	if err != nil {
		return dto.NotifyResponse{}, fmt.Errorf("failed to render instructor report: %w", err)
	}

	subject := fmt.Sprintf("דוח בחינה בעל פה - %s %s (%s)", session.FirstName, session.LastName, session.IDLast4)
	if err := s.mail.Send(ctx, "Instructor", s.cfg.InstructorEmail, subject, report); err != nil {
		return dto.NotifyResponse{}, fmt.Errorf("failed to send instructor report: %w", err)
	}

	// The student confirmation is a courtesy; its failure never undoes the
	// instructor delivery.
	if session.Email != "" {
		confirmation := s.renderStudentConfirmation(&session)
		if err := s.mail.Send(ctx, session.FirstName, session.Email, "הבחינה שלך התקבלה", confirmation); err != nil {
			s.logger.Warn().Err(err).Str("session_id", sessionID).Msg("failed to send student confirmation")
		}
	}

	sentAt := s.now().UTC()
	err = s.sessions.UpdateFields(ctx, sessionID, map[string]interface{}{
		"email_sent_at": sentAt,
	})
	if err != nil {
		// The email already went out; surfacing the error would invite a
		// duplicate send on retry.
		s.logger.Error().Err(err).Str("session_id", sessionID).Msg("failed to record email sent timestamp")
	}

	s.logger.Info().
		Str("session_id", sessionID).
		Str("instructor", s.cfg.InstructorEmail).
		Msg("exam report sent")

	return dto.NotifyResponse{
		EmailSentTo: s.cfg.InstructorEmail,
		EmailSentAt: sentAt,
	}, nil
}

var instructorReportTmpl = template.Must(template.New("instructor_report").Parse(`<!DOCTYPE html>
<html dir="rtl" lang="he">
<body style="font-family: Arial, sans-serif; direction: rtl;">
  <h2>דוח בחינה בעל פה</h2>
  <p>
    <strong>נבחן:</strong> {{.FirstName}} {{.LastName}} (ת"ז ****{{.IDLast4}})<br>
    <strong>מזהה מפגש:</strong> {{.SessionID}}<br>
    <strong>משך:</strong> {{printf "%.1f" .DurationMinutes}} דקות<br>
    <strong>ציון כולל:</strong> {{.TotalScore}}/100 ({{.TotalCorrect}}/{{.QuestionCount}} תשובות נכונות)
  </p>
  {{range .Answers}}
  <h3>שאלה {{.Seq}} {{.VerdictEmoji}}</h3>
  <p><em>{{.QuestionText}}</em></p>
  <p><strong>תמליל:</strong> {{.Transcript}}</p>
  <p>
    <strong>ציון:</strong> {{.Score}}/100 ({{.VerdictLabel}}){{if .HintUsed}} - נעשה שימוש ברמז{{end}}<br>
    דיוק {{.Accuracy}}% | מבנה {{.Structure}}% | מינוח {{.Terminology}}% | היגיון {{.Logic}}% | התאמה {{.Alignment}}%
  </p>
  <p>{{.Explanation}}</p>
  {{end}}
  {{if .Notes}}<p><strong>הערות:</strong> {{.Notes}}</p>{{end}}
  <p>
    <a href="{{.DashboardURL}}">לצפייה וסקירה בלוח הבקרה</a>
    {{if .VideoLink}}| <a href="{{.VideoLink}}">הקלטות</a>{{end}}
  </p>
</body>
</html>`))

type reportAnswer struct {
	Seq          int
	QuestionText string
	Transcript   string
	HintUsed     bool
	Score        int
	VerdictLabel string
	VerdictEmoji string
	Accuracy     int
	Structure    int
	Terminology  int
	Logic        int
	Alignment    int
	Explanation  string
}

type reportData struct {
	SessionID       string
	FirstName       string
	LastName        string
	IDLast4         string
	DurationMinutes float64
	TotalScore      int
	TotalCorrect    int
	QuestionCount   int
	Answers         []reportAnswer
	Notes           string
	DashboardURL    string
	VideoLink       string
}

func (s *notificationService) renderInstructorReport(session *models.ExamSession) (string, error) {
	data := reportData{
		SessionID:       session.SessionID,
		FirstName:       session.FirstName,
		LastName:        session.LastName,
		IDLast4:         session.IDLast4,
		DurationMinutes: session.DurationMinutes,
		TotalScore:      session.TotalScore,
		TotalCorrect:    session.TotalCorrect,
		QuestionCount:   models.QuestionsPerSession,
		Notes:           session.Notes,
		DashboardURL:    fmt.Sprintf("%s/admin/sessions/%s", s.cfg.AppBaseURL, session.SessionID),
		VideoLink:       session.VideoLink,
	}

	for seq := 1; seq <= models.QuestionsPerSession; seq++ {
		answer := session.AnswerBySeq(seq)
		if answer == nil {
			continue
		}

		rubric := answer.RubricResult()
		label, emoji := verdictPresentation(answer.Verdict)
		data.Answers = append(data.Answers, reportAnswer{
			Seq:          seq,
			QuestionText: answer.QuestionText,
			Transcript:   answer.Transcript,
			HintUsed:     answer.HintUsed,
			Score:        answer.Score,
			VerdictLabel: label,
			VerdictEmoji: emoji,
			Accuracy:     percent(rubric.Accuracy),
			Structure:    percent(rubric.Structure),
			Terminology:  percent(rubric.Terminology),
			Logic:        percent(rubric.Logic),
			Alignment:    percent(rubric.Alignment),
			Explanation:  rubric.Explanation,
		})
	}

	var buf bytes.Buffer
	if err := instructorReportTmpl.Execute(&buf, data); err != nil {
		return "", err
	}

	return buf.String(), nil
}

func (s *notificationService) renderStudentConfirmation(session *models.ExamSession) string {
	return fmt.Sprintf(`<!DOCTYPE html>
<html dir="rtl" lang="he">
<body style="font-family: Arial, sans-serif; direction: rtl;">
  <p>שלום %s,</p>
  <p>הבחינה בעל פה שלך התקבלה ונשלחה לבדיקה. הציון הסופי יפורסם לאחר סקירת המרצה.</p>
  <p>בהצלחה!</p>
</body>
</html>`, session.FirstName)
}

func verdictPresentation(verdict string) (label, emoji string) {
	switch verdict {
	case models.VerdictCorrect:
		return "נכון", "✅"
	case models.VerdictPartial:
		return "חלקי", "⚠️"
	default:
		return "שגוי", "❌"
	}
}

func percent(v float64) int {
	return int(v*100 + 0.5)
}
