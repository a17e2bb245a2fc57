package service

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"time"

	"gorm.io/gorm"

	"github.com/noah-isme/oralex-api/internal/models"
	"github.com/noah-isme/oralex-api/internal/repository"
	"github.com/noah-isme/oralex-api/pkg/ai"
	"github.com/noah-isme/oralex-api/pkg/cloudinary"
	"github.com/noah-isme/oralex-api/pkg/transcribe"
)

var (
	errTranscribeForTest = errors.New("transcriber unavailable")
	errScoreForTest      = errors.New("scorer unavailable")
)

// fakeSessionRepo is an in-memory SessionRepository with the same CAS
// semantics as the real one, so services can be exercised without a
// database.
type fakeSessionRepo struct {
	mu       sync.Mutex
	sessions map[string]*models.ExamSession

	createErr  error
	saveErr    error
	replaceErr error
}

func newFakeSessionRepo(sessions ...models.ExamSession) *fakeSessionRepo {
	repo := &fakeSessionRepo{sessions: make(map[string]*models.ExamSession)}
	for i := range sessions {
		s := sessions[i]
		repo.sessions[s.SessionID] = &s
	}
	return repo
}

func (r *fakeSessionRepo) Create(ctx context.Context, session *models.ExamSession) error {
	if r.createErr != nil {
		return r.createErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	stored := *session
	r.sessions[session.SessionID] = &stored
	return nil
}

func (r *fakeSessionRepo) GetByID(ctx context.Context, sessionID string) (models.ExamSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.sessions[sessionID]
	if !ok {
		return models.ExamSession{}, gorm.ErrRecordNotFound
	}
	return cloneSession(stored), nil
}

func (r *fakeSessionRepo) GetActiveByStudentHash(ctx context.Context, studentIDHash string) (models.ExamSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, stored := range r.sessions {
		if stored.StudentIDHash != studentIDHash {
			continue
		}
		if stored.Status == models.StatusCompleted || models.IsTerminalStatus(stored.Status) {
			continue
		}
		return cloneSession(stored), nil
	}
	return models.ExamSession{}, gorm.ErrRecordNotFound
}

func (r *fakeSessionRepo) List(ctx context.Context) ([]models.ExamSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]models.ExamSession, 0, len(r.sessions))
	for _, stored := range r.sessions {
		out = append(out, cloneSession(stored))
	}
	return out, nil
}

func (r *fakeSessionRepo) UpdateFields(ctx context.Context, sessionID string, fields map[string]interface{}) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.sessions[sessionID]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	applySessionFields(stored, fields)
	return nil
}

func (r *fakeSessionRepo) TransitionStatus(ctx context.Context, sessionID, from, to string, fields map[string]interface{}) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.sessions[sessionID]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	if !models.CanTransition(from, to) || stored.Status != from {
		return repository.ErrStatusConflict
	}
	stored.Status = to
	applySessionFields(stored, fields)
	return nil
}

func (r *fakeSessionRepo) Finalize(ctx context.Context, sessionID, reviewedBy string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.sessions[sessionID]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	if stored.Finalized {
		return repository.ErrAlreadyFinalized
	}
	stored.Finalized = true
	stored.ReviewedBy = reviewedBy
	return nil
}

func (r *fakeSessionRepo) ReplaceAnswers(ctx context.Context, sessionID string, answers []models.Answer) error {
	if r.replaceErr != nil {
		return r.replaceErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.sessions[sessionID]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	stored.Answers = make([]models.Answer, len(answers))
	for i, answer := range answers {
		answer.SessionID = sessionID
		stored.Answers[i] = answer
	}
	return nil
}

func (r *fakeSessionRepo) SaveAnswer(ctx context.Context, answer *models.Answer) error {
	if r.saveErr != nil {
		return r.saveErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.sessions[answer.SessionID]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	for i := range stored.Answers {
		if stored.Answers[i].Seq == answer.Seq {
			stored.Answers[i] = *answer
			return nil
		}
	}
	stored.Answers = append(stored.Answers, *answer)
	return nil
}

func (r *fakeSessionRepo) status(sessionID string) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if stored, ok := r.sessions[sessionID]; ok {
		return stored.Status
	}
	return ""
}

func cloneSession(stored *models.ExamSession) models.ExamSession {
	clone := *stored
	clone.Answers = make([]models.Answer, len(stored.Answers))
	copy(clone.Answers, stored.Answers)
	return clone
}

func applySessionFields(session *models.ExamSession, fields map[string]interface{}) {
	for key, value := range fields {
		switch key {
		case "consent":
			session.Consent = value.(bool)
		case "consent_at":
			t := toTime(value)
			session.ConsentAt = &t
		case "precheck_passed":
			session.PrecheckPassed = value.(bool)
		case "precheck_at":
			t := toTime(value)
			session.PrecheckAt = &t
		case "started_at":
			t := toTime(value)
			session.StartedAt = &t
		case "ended_at":
			t := toTime(value)
			session.EndedAt = &t
		case "duration_minutes":
			session.DurationMinutes = value.(float64)
		case "video_link":
			session.VideoLink = value.(string)
		case "total_correct":
			session.TotalCorrect = value.(int)
		case "total_score_0_100":
			session.TotalScore = value.(int)
		case "finalized":
			session.Finalized = value.(bool)
		case "reviewed_by":
			session.ReviewedBy = value.(string)
		case "notes":
			session.Notes = value.(string)
		case "email_sent_at":
			t := toTime(value)
			session.EmailSentAt = &t
		}
	}
}

func toTime(value interface{}) time.Time {
	switch v := value.(type) {
	case time.Time:
		return v
	case *time.Time:
		return *v
	default:
		return time.Time{}
	}
}

type fakeRosterRepo struct {
	mu      sync.Mutex
	entries map[string]*models.RosterEntry

	updateErr error
}

func newFakeRosterRepo(entries ...models.RosterEntry) *fakeRosterRepo {
	repo := &fakeRosterRepo{entries: make(map[string]*models.RosterEntry)}
	for i := range entries {
		e := entries[i]
		repo.entries[e.StudentIDHash] = &e
	}
	return repo
}

func (r *fakeRosterRepo) GetByHash(ctx context.Context, studentIDHash string) (models.RosterEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.entries[studentIDHash]
	if !ok {
		return models.RosterEntry{}, gorm.ErrRecordNotFound
	}
	return *entry, nil
}

func (r *fakeRosterRepo) Upsert(ctx context.Context, entry *models.RosterEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.entries[entry.StudentIDHash]; ok {
		entry.AttemptStatus = existing.AttemptStatus
	}
	stored := *entry
	r.entries[entry.StudentIDHash] = &stored
	return nil
}

func (r *fakeRosterRepo) UpdateAttemptStatus(ctx context.Context, studentIDHash, attemptStatus string) error {
	if r.updateErr != nil {
		return r.updateErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.entries[studentIDHash]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	entry.AttemptStatus = attemptStatus
	return nil
}

type fakeQuestionRepo struct {
	questions []models.Question
	randomErr error
}

func (r *fakeQuestionRepo) GetByID(ctx context.Context, id uint) (models.Question, error) {
	for _, q := range r.questions {
		if q.ID == id {
			return q, nil
		}
	}
	return models.Question{}, gorm.ErrRecordNotFound
}

func (r *fakeQuestionRepo) Random(ctx context.Context, count int) ([]models.Question, error) {
	if r.randomErr != nil {
		return nil, r.randomErr
	}
	if count > len(r.questions) {
		count = len(r.questions)
	}
	out := make([]models.Question, count)
	copy(out, r.questions[:count])
	return out, nil
}

func (r *fakeQuestionRepo) CountActive(ctx context.Context) (int64, error) {
	return int64(len(r.questions)), nil
}

// fakeMediaStore serves canned assets and payloads.
type fakeMediaStore struct {
	assets      []cloudinary.Asset
	listErr     error
	downloadErr map[string]error
	uploads     []string
}

func (s *fakeMediaStore) Upload(ctx context.Context, sessionID, fileName string, reader io.Reader) (string, error) {
	s.uploads = append(s.uploads, fileName)
	return "https://media.example/" + sessionID + "/" + fileName, nil
}

func (s *fakeMediaStore) ListBySession(ctx context.Context, sessionID string) ([]cloudinary.Asset, error) {
	if s.listErr != nil {
		return nil, s.listErr
	}
	return s.assets, nil
}

func (s *fakeMediaStore) Download(ctx context.Context, secureURL string) (io.ReadCloser, error) {
	if err, ok := s.downloadErr[secureURL]; ok {
		return nil, err
	}
	return io.NopCloser(bytes.NewReader([]byte("media"))), nil
}

func (s *fakeMediaStore) FolderLink(sessionID string) string {
	return "https://media.example/folders/" + sessionID
}

// fakeTranscriber echoes a transcript derived from the file name, or fails
// for the configured seats.
type fakeTranscriber struct {
	failFor map[string]bool
}

func (t *fakeTranscriber) Transcribe(ctx context.Context, fileName string, reader io.Reader) (transcribe.Result, error) {
	for prefix := range t.failFor {
		if strings.HasPrefix(fileName, prefix) {
			return transcribe.Result{}, errTranscribeForTest
		}
	}
	return transcribe.Result{Text: "transcript of " + fileName, Language: "he", Duration: 30}, nil
}

// fakeScorer returns a fixed rubric per transcript, or fails when the
// transcript matches failOn.
type fakeScorer struct {
	mu      sync.Mutex
	results map[string]ai.Result
	failOn  string
	calls   int
}

func (s *fakeScorer) Score(ctx context.Context, input ai.ScoreInput) (ai.Result, error) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	if s.failOn != "" && input.Transcript == s.failOn {
		return ai.Result{}, errScoreForTest
	}
	if result, ok := s.results[input.Transcript]; ok {
		return result, nil
	}
	return ai.Result{
		Accuracy: 0.9, Structure: 0.8, Terminology: 0.85, Logic: 0.9, Alignment: 0.9,
		Score: 85, Verdict: models.VerdictCorrect, Explanation: "תשובה טובה",
	}, nil
}

// fakeMailer records sends and can fail per recipient.
type fakeMailer struct {
	mu      sync.Mutex
	sent    []sentMail
	failFor map[string]error
}

type sentMail struct {
	ToEmail string
	Subject string
	Body    string
}

func (m *fakeMailer) Send(ctx context.Context, toName, toEmail, subject, htmlBody string) error {
	if err, ok := m.failFor[toEmail]; ok {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, sentMail{ToEmail: toEmail, Subject: subject, Body: htmlBody})
	return nil
}

// blockingLocker waits for the lock instead of fast-failing, which lets
// tests run truly concurrent callers and assert that exactly one of them
// wins the guarded section.
type blockingLocker struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newBlockingLocker() *blockingLocker {
	return &blockingLocker{locks: make(map[string]*sync.Mutex)}
}

func (l *blockingLocker) Acquire(ctx context.Context, sessionID string) (func(), error) {
	l.mu.Lock()
	lock, ok := l.locks[sessionID]
	if !ok {
		lock = &sync.Mutex{}
		l.locks[sessionID] = lock
	}
	l.mu.Unlock()

	lock.Lock()
	return lock.Unlock, nil
}
