package dto

import "time"

// Machine-readable error kinds returned by the verify endpoint. Clients
// branch on these, never on message text.
const (
	ErrorKindTokenInvalid     = "TOKEN_INVALID"
	ErrorKindTokenExpired     = "TOKEN_EXPIRED"
	ErrorKindNotInRoster      = "NOT_IN_ROSTER"
	ErrorKindAlreadyCompleted = "ALREADY_COMPLETED"
)

// VerifyTokenRequest carries the magic-link token presented at the exam
// entry.
type VerifyTokenRequest struct {
	Token string `json:"token" validate:"required"`
}

// StudentInfo echoes the identity claims of a verified token.
type StudentInfo struct {
	StudentIDHash string    `json:"student_id_hash"`
	IDLast4       string    `json:"id_last4"`
	FirstName     string    `json:"first_name"`
	LastName      string    `json:"last_name"`
	Email         string    `json:"email"`
	SlotStart     time.Time `json:"slot_start"`
	SlotEnd       time.Time `json:"slot_end"`
}

// VerifyTokenResponse is the gate's answer: either a usable session handle or
// a machine-readable rejection kind.
type VerifyTokenResponse struct {
	Valid     bool         `json:"valid"`
	Student   *StudentInfo `json:"student,omitempty"`
	SessionID string       `json:"session_id,omitempty"`
	Status    string       `json:"status,omitempty"`
	CanStart  bool         `json:"can_start"`
	Error     string       `json:"error,omitempty"`
	Message   string       `json:"message,omitempty"`
}
