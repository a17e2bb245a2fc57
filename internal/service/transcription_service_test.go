package service

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/oralex-api/internal/models"
	"github.com/noah-isme/oralex-api/pkg/cloudinary"
)

func uploadingSession() models.ExamSession {
	return models.ExamSession{
		SessionID: "sess-1",
		Status:    models.StatusUploading,
		Answers: []models.Answer{
			{SessionID: "sess-1", Seq: 1, QuestionID: 1},
			{SessionID: "sess-1", Seq: 2, QuestionID: 2},
			{SessionID: "sess-1", Seq: 3, QuestionID: 3},
		},
	}
}

func sessionAssets() []cloudinary.Asset {
	return []cloudinary.Asset{
		{PublicID: "p1", FileName: "q1_answer_1", SecureURL: "https://media.example/q1"},
		{PublicID: "p2", FileName: "q2_answer_2", SecureURL: "https://media.example/q2"},
		{PublicID: "p3", FileName: "q3_answer_3", SecureURL: "https://media.example/q3"},
	}
}

func TestTranscriptionRun(t *testing.T) {
	sessions := newFakeSessionRepo(uploadingSession())
	media := &fakeMediaStore{assets: sessionAssets()}
	svc := NewTranscriptionService(sessions, media, &fakeTranscriber{}, NewNoopSessionLocker(), zerolog.Nop())

	resp, err := svc.Run(context.Background(), "sess-1")
	require.NoError(t, err)
	require.Equal(t, models.StatusTranscribing, resp.Status)
	require.Len(t, resp.Transcripts, models.QuestionsPerSession)

	stored, err := sessions.GetByID(context.Background(), "sess-1")
	require.NoError(t, err)
	require.Equal(t, models.StatusTranscribing, stored.Status)
	require.True(t, stored.HasAllTranscripts())

	// Out of uploading, a repeat call is a conflict.
	var conflict *StatusConflictError
	_, err = svc.Run(context.Background(), "sess-1")
	require.ErrorAs(t, err, &conflict)
	require.Equal(t, models.StatusTranscribing, conflict.Current)
}

func TestTranscriptionSubstitutesSentinelOnSeatFailure(t *testing.T) {
	sessions := newFakeSessionRepo(uploadingSession())
	media := &fakeMediaStore{assets: sessionAssets()}
	transcriber := &fakeTranscriber{failFor: map[string]bool{"q2_": true}}
	svc := NewTranscriptionService(sessions, media, transcriber, NewNoopSessionLocker(), zerolog.Nop())

	resp, err := svc.Run(context.Background(), "sess-1")
	require.NoError(t, err)

	require.Equal(t, models.TranscriptErrorSentinel, resp.Transcripts[1].Transcript)
	require.NotEqual(t, models.TranscriptErrorSentinel, resp.Transcripts[0].Transcript)
	require.NotEqual(t, models.TranscriptErrorSentinel, resp.Transcripts[2].Transcript)

	// The sentinel counts as a present transcript so scoring can proceed.
	stored, err := sessions.GetByID(context.Background(), "sess-1")
	require.NoError(t, err)
	require.True(t, stored.HasAllTranscripts())
}

func TestTranscriptionSubstitutesSentinelOnMissingRecording(t *testing.T) {
	sessions := newFakeSessionRepo(uploadingSession())
	media := &fakeMediaStore{assets: sessionAssets()[:2]}
	svc := NewTranscriptionService(sessions, media, &fakeTranscriber{}, NewNoopSessionLocker(), zerolog.Nop())

	resp, err := svc.Run(context.Background(), "sess-1")
	require.NoError(t, err)
	require.Equal(t, models.TranscriptErrorSentinel, resp.Transcripts[2].Transcript)
}

func TestTranscriptionRejectsEmptyMedia(t *testing.T) {
	sessions := newFakeSessionRepo(uploadingSession())
	media := &fakeMediaStore{}
	svc := NewTranscriptionService(sessions, media, &fakeTranscriber{}, NewNoopSessionLocker(), zerolog.Nop())

	_, err := svc.Run(context.Background(), "sess-1")
	require.ErrorIs(t, err, ErrNoMediaFound)

	// The guard fires before the transition; the session never moved.
	require.Equal(t, models.StatusUploading, sessions.status("sess-1"))
}

func TestTranscriptionRollsBackOnPersistFailure(t *testing.T) {
	sessions := newFakeSessionRepo(uploadingSession())
	sessions.saveErr = errTranscribeForTest
	media := &fakeMediaStore{assets: sessionAssets()}
	svc := NewTranscriptionService(sessions, media, &fakeTranscriber{}, NewNoopSessionLocker(), zerolog.Nop())

	_, err := svc.Run(context.Background(), "sess-1")
	require.Error(t, err)

	// A total stage failure returns the session to uploading for a retry.
	require.Equal(t, models.StatusUploading, sessions.status("sess-1"))
}
