package service

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/noah-isme/oralex-api/internal/repository"
)

// Sentinel errors shared across the exam services. Handlers map these onto
// HTTP statuses and machine-readable codes.
var (
	// ErrSessionNotFound indicates no session exists for the given id.
	ErrSessionNotFound = errors.New("session not found")
	// ErrNotInRoster indicates the verified student is not on the allow-list.
	ErrNotInRoster = errors.New("student not in roster")
	// ErrAlreadyCompleted indicates the student already finished an attempt.
	ErrAlreadyCompleted = errors.New("attempt already completed")
	// ErrOutsideWindow indicates the wall clock is outside the allowed exam
	// window. Reported to clients under the TOKEN_EXPIRED kind with a
	// distinguishing message.
	ErrOutsideWindow = errors.New("outside allowed time window")
	// ErrNotEnoughQuestions indicates the bank cannot supply a full draw.
	ErrNotEnoughQuestions = errors.New("not enough questions in bank")
	// ErrNoMediaFound indicates no recordings exist for the session.
	ErrNoMediaFound = errors.New("no recordings found for session")
	// ErrUnsupportedMedia indicates an uploaded recording is not one of the
	// accepted audio or video formats.
	ErrUnsupportedMedia = errors.New("unsupported recording type")
	// ErrMissingTranscripts indicates not every question seat has a
	// transcript yet.
	ErrMissingTranscripts = errors.New("missing transcripts for scoring")
	// ErrEmailAlreadySent indicates the one-shot notification already went
	// out.
	ErrEmailAlreadySent = errors.New("notification email already sent")
	// ErrSessionFinalized indicates the session is locked against review
	// edits; repeated finalize calls also land here.
	ErrSessionFinalized = errors.New("session is finalized")
	// ErrVerdictMismatch indicates a patched verdict disagrees with the
	// score it accompanies.
	ErrVerdictMismatch = errors.New("verdict does not match score")
)

// StatusConflictError reports that a transition found the session in a
// different status than it requires. The caller must re-fetch the current
// status before retrying.
type StatusConflictError struct {
	Current  string
	Required string
}

func (e *StatusConflictError) Error() string {
	return fmt.Sprintf("session status is %q, requires %q", e.Current, e.Required)
}

func statusConflict(current, required string) *StatusConflictError {
	return &StatusConflictError{Current: current, Required: required}
}

// mapTransitionErr translates repository CAS failures into the caller-facing
// conflict error carrying the freshly read current status.
func mapTransitionErr(ctx context.Context, sessions repository.SessionRepository, sessionID, required string, err error) error {
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return ErrSessionNotFound
	case errors.Is(err, repository.ErrStatusConflict):
		current := "unknown"
		if session, readErr := sessions.GetByID(ctx, sessionID); readErr == nil {
			current = session.Status
		}
		return statusConflict(current, required)
	default:
		return err
	}
}
