package models

import "time"

// Question is one row of the immutable question bank. Sessions draw
// QuestionsPerSession distinct questions at random from the active rows.
type Question struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	Text         string    `gorm:"type:text;not null" json:"text"`
	SampleAnswer string    `gorm:"type:text" json:"sample_answer"`
	Difficulty   string    `gorm:"size:16" json:"difficulty"`
	Active       bool      `gorm:"default:true" json:"active"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// TableName keeps the storage table aligned with the original schema name.
func (Question) TableName() string {
	return "questions_bank"
}
