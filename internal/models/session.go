package models

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"
)

// QuestionsPerSession is the fixed number of questions drawn for every exam
// attempt.
const QuestionsPerSession = 3

// ExamSession is one student's single attempt at the oral exam, tracked
// end-to-end by a unique id. Identity fields are copied from the magic-link
// token at creation time and never change afterwards.
type ExamSession struct {
	SessionID     string `gorm:"primaryKey;size:64" json:"session_id"`
	StudentIDHash string `gorm:"size:64;index;not null" json:"student_id_hash"`
	IDLast4       string `gorm:"size:4" json:"id_last4"`
	FirstName     string `gorm:"size:128" json:"first_name"`
	LastName      string `gorm:"size:128" json:"last_name"`
	Email         string `gorm:"size:255" json:"email"`
	SlotStart     time.Time
	SlotEnd       time.Time

	Status string `gorm:"size:32;not null;index" json:"status"`

	Consent         bool       `json:"consent"`
	ConsentAt       *time.Time `json:"consent_at,omitempty"`
	PrecheckPassed  bool       `json:"precheck_passed"`
	PrecheckAt      *time.Time `json:"precheck_at,omitempty"`
	StartedAt       *time.Time `json:"started_at,omitempty"`
	EndedAt         *time.Time `json:"ended_at,omitempty"`
	DurationMinutes float64    `json:"duration_minutes"`
	VideoLink       string     `gorm:"size:512" json:"video_link"`

	TotalCorrect  int `json:"total_correct"`
	TotalScore    int `gorm:"column:total_score_0_100" json:"total_score_0_100"`

	Finalized  bool       `json:"finalized"`
	ReviewedBy string     `gorm:"size:128" json:"reviewed_by"`
	Notes      string     `gorm:"type:text" json:"notes"`
	EmailSentAt *time.Time `json:"email_sent_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Answers []Answer `gorm:"foreignKey:SessionID;references:SessionID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE" json:"answers"`
}

// Answer holds one question seat of a session: the assigned question, the
// transcript of the recorded answer and the grading outcome. Seats are
// numbered 1..3 and unique per session.
type Answer struct {
	ID         uint   `gorm:"primaryKey" json:"id"`
	SessionID  string `gorm:"size:64;not null;uniqueIndex:idx_session_seat,priority:1" json:"session_id"`
	Seq        int    `gorm:"not null;uniqueIndex:idx_session_seat,priority:2" json:"seq"`
	QuestionID uint   `gorm:"not null" json:"question_id"`
	QuestionText string `gorm:"type:text" json:"question_text"`

	Transcript string `gorm:"type:text" json:"transcript"`
	HintUsed   bool   `json:"hint_used"`

	Score   int            `json:"score"`
	Verdict string         `gorm:"size:16" json:"verdict"`
	Rubric  datatypes.JSON `json:"rubric,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// AnswerBySeq returns the answer occupying the given seat, or nil.
func (s *ExamSession) AnswerBySeq(seq int) *Answer {
	for i := range s.Answers {
		if s.Answers[i].Seq == seq {
			return &s.Answers[i]
		}
	}
	return nil
}

// HasAllTranscripts reports whether every seat carries a non-empty
// transcript, the precondition for entering the scoring stage.
func (s *ExamSession) HasAllTranscripts() bool {
	if len(s.Answers) < QuestionsPerSession {
		return false
	}
	for seq := 1; seq <= QuestionsPerSession; seq++ {
		answer := s.AnswerBySeq(seq)
		if answer == nil || answer.Transcript == "" {
			return false
		}
	}
	return true
}

// RubricResult decodes the stored rubric JSON. An empty column yields the
// zero value.
func (a Answer) RubricResult() RubricResult {
	var result RubricResult
	if len(a.Rubric) > 0 {
		_ = json.Unmarshal(a.Rubric, &result)
	}
	return result
}

// SetRubric stores the rubric result and keeps score and verdict columns in
// sync with it.
func (a *Answer) SetRubric(result RubricResult) error {
	raw, err := json.Marshal(result)
	if err != nil {
		return err
	}

	a.Rubric = datatypes.JSON(raw)
	a.Score = result.Score
	a.Verdict = result.Verdict

	return nil
}

// TableName keeps the storage table aligned with the original schema name.
func (ExamSession) TableName() string {
	return "exam_sessions"
}
