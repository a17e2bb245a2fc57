package models

// Session lifecycle statuses. A session walks the chain in order; the two
// side statuses are terminal and reachable from any non-completed state.
const (
	StatusNotStarted   = "not_started"
	StatusSetup        = "setup"
	StatusInProgress   = "in_progress"
	StatusUploading    = "uploading"
	StatusTranscribing = "transcribing"
	StatusScoring      = "scoring"
	StatusCompleted    = "completed"
	StatusAborted      = "aborted"
	StatusExpired      = "expired"
)

var forwardTransitions = map[string]string{
	StatusNotStarted:   StatusSetup,
	StatusSetup:        StatusInProgress,
	StatusInProgress:   StatusUploading,
	StatusUploading:    StatusTranscribing,
	StatusTranscribing: StatusScoring,
	StatusScoring:      StatusCompleted,
}

// CanTransition reports whether moving a session from one status to another
// is legal. Forward moves follow the chain one step at a time; aborted and
// expired are reachable from any non-terminal status. The scoring stage may
// also step back to transcribing, which is how a failed scoring run is
// rolled back, and transcribing back to uploading for the same reason.
func CanTransition(from, to string) bool {
	if IsTerminalStatus(from) {
		return false
	}

	switch to {
	case StatusAborted, StatusExpired:
		return true
	case StatusTranscribing:
		return from == StatusUploading || from == StatusScoring
	case StatusUploading:
		return from == StatusInProgress || from == StatusTranscribing
	}

	return forwardTransitions[from] == to
}

// IsTerminalStatus reports whether a session in this status can never move
// again.
func IsTerminalStatus(status string) bool {
	switch status {
	case StatusCompleted, StatusAborted, StatusExpired:
		return true
	default:
		return false
	}
}
