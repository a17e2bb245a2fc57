package dto

import (
	"time"

	"github.com/noah-isme/oralex-api/internal/models"
)

// CreateSessionRequest moves a verified session into setup once the student
// has consented and passed the device precheck.
type CreateSessionRequest struct {
	Token          string `json:"token" validate:"required"`
	Consent        bool   `json:"consent" validate:"required"`
	PrecheckPassed bool   `json:"precheck_passed" validate:"required"`
}

// QuestionView is the student-facing projection of an assigned question. The
// sample answer never leaves the server.
type QuestionView struct {
	ID   uint   `json:"id"`
	Text string `json:"text"`
}

// CreateSessionResponse returns the assigned questions.
type CreateSessionResponse struct {
	SessionID string         `json:"session_id"`
	Questions []QuestionView `json:"questions"`
	Status    string         `json:"status"`
}

// SessionIDRequest addresses one session by id; shared by the stage
// endpoints.
type SessionIDRequest struct {
	SessionID string `json:"session_id" validate:"required"`
}

// StartSessionResponse acknowledges the recording phase has begun.
type StartSessionResponse struct {
	StartedAt time.Time `json:"started_at"`
	Status    string    `json:"status"`
}

// UploadChunkResponse acknowledges one stored recording.
type UploadChunkResponse struct {
	ChunkID string  `json:"chunk_id"`
	SizeMB  float64 `json:"size_mb"`
	Link    string  `json:"link"`
}

// FinalizeUploadResponse closes the recording phase.
type FinalizeUploadResponse struct {
	VideoLink       string  `json:"video_link"`
	DurationMinutes float64 `json:"duration_minutes"`
	Status          string  `json:"status"`
}

// TranscriptView carries the transcript for one question seat.
type TranscriptView struct {
	Seq        int    `json:"seq"`
	QuestionID uint   `json:"question_id"`
	Transcript string `json:"transcript"`
}

// TranscribeResponse returns per-question transcripts after the
// transcription stage.
type TranscribeResponse struct {
	Transcripts []TranscriptView `json:"transcripts"`
	Status      string           `json:"status"`
}

// AnswerScoreView carries the grading outcome of one question seat.
type AnswerScoreView struct {
	Seq        int                 `json:"seq"`
	QuestionID uint                `json:"question_id"`
	Rubric     models.RubricResult `json:"rubric"`
}

// ScoreResponse returns the per-question rubrics and the aggregate totals.
type ScoreResponse struct {
	Scores       []AnswerScoreView `json:"scores"`
	TotalCorrect int               `json:"total_correct"`
	TotalScore   int               `json:"total_score_0_100"`
	Status       string            `json:"status"`
}

// NotifyResponse reports the one-shot instructor notification.
type NotifyResponse struct {
	EmailSentTo string    `json:"email_sent_to"`
	EmailSentAt time.Time `json:"email_sent_at"`
}
