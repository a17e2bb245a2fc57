package models

import "time"

// Roster attempt statuses, a coarser mirror of the session lifecycle.
const (
	AttemptPending    = "pending"
	AttemptInProgress = "in_progress"
	AttemptCompleted  = "completed"
)

// RosterEntry is one row of the allow-list of students permitted to attempt
// the exam, keyed by the privacy-preserving hash of their identifier. At most
// one entry exists per hash. The entry is owned by the administrative
// process; the gate reads it and session-completion events write it.
type RosterEntry struct {
	ID            uint      `gorm:"primaryKey" json:"id"`
	StudentIDHash string    `gorm:"size:64;uniqueIndex;not null" json:"student_id_hash"`
	IDLast4       string    `gorm:"size:4" json:"id_last4"`
	FirstName     string    `gorm:"size:128" json:"first_name"`
	LastName      string    `gorm:"size:128" json:"last_name"`
	Email         string    `gorm:"size:255" json:"email"`
	AttemptStatus string    `gorm:"size:32;not null;default:pending" json:"attempt_status"`
	SlotStart     time.Time `json:"slot_start"`
	SlotEnd       time.Time `json:"slot_end"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// HasCompleted reports whether the student already finished an attempt and
// must not be granted entry again.
func (r RosterEntry) HasCompleted() bool {
	return r.AttemptStatus == AttemptCompleted
}
