package dto

import (
	"fmt"
	"time"

	"github.com/noah-isme/oralex-api/internal/models"
)

// GenerateLinkRequest asks for a magic link for one student. The slot window
// defaults to one hour starting now when omitted.
type GenerateLinkRequest struct {
	FirstName string     `json:"first_name" validate:"required"`
	LastName  string     `json:"last_name" validate:"required"`
	Email     string     `json:"email" validate:"required,email"`
	IDLast4   string     `json:"id_last4" validate:"required,len=4"`
	SlotStart *time.Time `json:"slot_start,omitempty"`
	SlotEnd   *time.Time `json:"slot_end,omitempty"`
	BaseURL   string     `json:"base_url,omitempty"`
}

// GenerateLinkResponse returns the signed link and the resolved window.
type GenerateLinkResponse struct {
	Link          string    `json:"link"`
	StudentIDHash string    `json:"student_id_hash"`
	SlotStart     time.Time `json:"slot_start"`
	SlotEnd       time.Time `json:"slot_end"`
}

// SessionSummary is one row of the admin dashboard list.
type SessionSummary struct {
	SessionID   string     `json:"session_id"`
	StudentName string     `json:"student_name"`
	IDLast4     string     `json:"id_last4"`
	Date        *time.Time `json:"date,omitempty"`
	TotalScore  int        `json:"total_score_0_100"`
	Status      string     `json:"status"`
	Finalized   bool       `json:"finalized"`
}

// AnswerDetail is the admin projection of one question seat including the
// full rubric breakdown.
type AnswerDetail struct {
	Seq          int                 `json:"seq"`
	QuestionID   uint                `json:"question_id"`
	QuestionText string              `json:"question_text"`
	Transcript   string              `json:"transcript"`
	HintUsed     bool                `json:"hint_used"`
	Score        int                 `json:"score"`
	Verdict      string              `json:"verdict"`
	Rubric       models.RubricResult `json:"rubric"`
}

// SessionDetail is the full admin view of one session.
type SessionDetail struct {
	SessionID       string         `json:"session_id"`
	StudentName     string         `json:"student_name"`
	IDLast4         string         `json:"id_last4"`
	Email           string         `json:"email"`
	Status          string         `json:"status"`
	StartedAt       *time.Time     `json:"started_at,omitempty"`
	EndedAt         *time.Time     `json:"ended_at,omitempty"`
	DurationMinutes float64        `json:"duration_minutes"`
	VideoLink       string         `json:"video_link"`
	Answers         []AnswerDetail `json:"answers"`
	TotalCorrect    int            `json:"total_correct"`
	TotalScore      int            `json:"total_score_0_100"`
	Finalized       bool           `json:"finalized"`
	ReviewedBy      string         `json:"reviewed_by"`
	Notes           string         `json:"notes"`
	EmailSentAt     *time.Time     `json:"email_sent_at,omitempty"`
}

// AnswerPatch overrides the grading of one question seat. A patched score
// without a verdict re-derives the verdict from the score.
type AnswerPatch struct {
	Seq     int     `json:"seq" validate:"required,min=1,max=3"`
	Score   *int    `json:"score,omitempty" validate:"omitempty,min=0,max=100"`
	Verdict *string `json:"verdict,omitempty" validate:"omitempty,oneof=correct partial wrong"`
}

// SessionPatchRequest overwrites a subset of the reviewable fields.
type SessionPatchRequest struct {
	Answers []AnswerPatch `json:"answers,omitempty" validate:"dive"`
	Notes   *string       `json:"notes,omitempty"`
}

// FinalizeSessionRequest locks a session against further review edits.
type FinalizeSessionRequest struct {
	ReviewedBy string `json:"reviewed_by" validate:"required"`
}

// NewSessionSummary projects a session into its dashboard row.
func NewSessionSummary(session models.ExamSession) SessionSummary {
	date := session.StartedAt
	if date == nil && !session.SlotStart.IsZero() {
		slot := session.SlotStart
		date = &slot
	}

	return SessionSummary{
		SessionID:   session.SessionID,
		StudentName: fmt.Sprintf("%s %s", session.FirstName, session.LastName),
		IDLast4:     session.IDLast4,
		Date:        date,
		TotalScore:  session.TotalScore,
		Status:      session.Status,
		Finalized:   session.Finalized,
	}
}

// NewSessionSummarySlice projects a list of sessions.
func NewSessionSummarySlice(sessions []models.ExamSession) []SessionSummary {
	summaries := make([]SessionSummary, 0, len(sessions))
	for _, session := range sessions {
		summaries = append(summaries, NewSessionSummary(session))
	}
	return summaries
}

// NewSessionDetail projects a session into the full admin view.
func NewSessionDetail(session models.ExamSession) SessionDetail {
	answers := make([]AnswerDetail, 0, len(session.Answers))
	for _, answer := range session.Answers {
		answers = append(answers, AnswerDetail{
			Seq:          answer.Seq,
			QuestionID:   answer.QuestionID,
			QuestionText: answer.QuestionText,
			Transcript:   answer.Transcript,
			HintUsed:     answer.HintUsed,
			Score:        answer.Score,
			Verdict:      answer.Verdict,
			Rubric:       answer.RubricResult(),
		})
	}

	return SessionDetail{
		SessionID:       session.SessionID,
		StudentName:     fmt.Sprintf("%s %s", session.FirstName, session.LastName),
		IDLast4:         session.IDLast4,
		Email:           session.Email,
		Status:          session.Status,
		StartedAt:       session.StartedAt,
		EndedAt:         session.EndedAt,
		DurationMinutes: session.DurationMinutes,
		VideoLink:       session.VideoLink,
		Answers:         answers,
		TotalCorrect:    session.TotalCorrect,
		TotalScore:      session.TotalScore,
		Finalized:       session.Finalized,
		ReviewedBy:      session.ReviewedBy,
		Notes:           session.Notes,
		EmailSentAt:     session.EmailSentAt,
	}
}
