package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/noah-isme/oralex-api/internal/models"
)

// ErrStatusConflict indicates a compare-and-swap status transition found a
// different persisted status than the caller expected. The caller must
// re-read the session before retrying.
var ErrStatusConflict = errors.New("session status conflict")

// ErrAlreadyFinalized indicates the finalize write found the review already
// locked by another writer.
var ErrAlreadyFinalized = errors.New("session review already finalized")

// SessionRepository defines data operations for exam sessions.
type SessionRepository interface {
	Create(ctx context.Context, session *models.ExamSession) error
	GetByID(ctx context.Context, sessionID string) (models.ExamSession, error)
	GetActiveByStudentHash(ctx context.Context, studentIDHash string) (models.ExamSession, error)
	List(ctx context.Context) ([]models.ExamSession, error)
	UpdateFields(ctx context.Context, sessionID string, fields map[string]interface{}) error
	TransitionStatus(ctx context.Context, sessionID, from, to string, fields map[string]interface{}) error
	Finalize(ctx context.Context, sessionID, reviewedBy string) error
	ReplaceAnswers(ctx context.Context, sessionID string, answers []models.Answer) error
	SaveAnswer(ctx context.Context, answer *models.Answer) error
}

type sessionRepository struct {
	db *gorm.DB
}

// NewSessionRepository instantiates the repository.
func NewSessionRepository(db *gorm.DB) SessionRepository {
	return &sessionRepository{db: db}
}

func (r *sessionRepository) baseQuery(ctx context.Context) *gorm.DB {
	return r.db.WithContext(ctx).Model(&models.ExamSession{}).
		Preload("Answers", func(db *gorm.DB) *gorm.DB {
			return db.Order("seq ASC")
		})
}

func (r *sessionRepository) Create(ctx context.Context, session *models.ExamSession) error {
	return r.db.WithContext(ctx).Create(session).Error
}

func (r *sessionRepository) GetByID(ctx context.Context, sessionID string) (models.ExamSession, error) {
	var session models.ExamSession
	if err := r.baseQuery(ctx).Where("session_id = ?", sessionID).First(&session).Error; err != nil {
		return models.ExamSession{}, err
	}

	return session, nil
}

// GetActiveByStudentHash returns the student's most recent session that has
// not reached a terminal status. Completed or abandoned attempts never block
// the lookup.
func (r *sessionRepository) GetActiveByStudentHash(ctx context.Context, studentIDHash string) (models.ExamSession, error) {
	var session models.ExamSession
	if err := r.baseQuery(ctx).
		Where("student_id_hash = ?", studentIDHash).
		Where("status NOT IN ?", []string{models.StatusCompleted, models.StatusAborted, models.StatusExpired}).
		Order("created_at DESC").
		First(&session).Error; err != nil {
		return models.ExamSession{}, err
	}

	return session, nil
}

func (r *sessionRepository) List(ctx context.Context) ([]models.ExamSession, error) {
	var sessions []models.ExamSession
	if err := r.baseQuery(ctx).Order("created_at DESC").Find(&sessions).Error; err != nil {
		return nil, err
	}

	return sessions, nil
}

// UpdateFields writes a partial set of columns, leaving every other column
// untouched. It never changes status; transitions go through
// TransitionStatus.
func (r *sessionRepository) UpdateFields(ctx context.Context, sessionID string, fields map[string]interface{}) error {
	if len(fields) == 0 {
		return nil
	}

	delete(fields, "status")

	result := r.db.WithContext(ctx).Model(&models.ExamSession{}).
		Where("session_id = ?", sessionID).
		Updates(fields)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}

	return nil
}

// TransitionStatus performs the guarded status change: the update only lands
// when the persisted status still equals the expected one, which closes the
// read-modify-write race between concurrent writers. Pairs the lifecycle
// does not allow are rejected before touching the database. Extra fields
// ride along in the same statement.
func (r *sessionRepository) TransitionStatus(ctx context.Context, sessionID, from, to string, fields map[string]interface{}) error {
	if !models.CanTransition(from, to) {
		return ErrStatusConflict
	}
	if fields == nil {
		fields = map[string]interface{}{}
	}
	fields["status"] = to

	result := r.db.WithContext(ctx).Model(&models.ExamSession{}).
		Where("session_id = ?", sessionID).
		Where("status = ?", from).
		Updates(fields)
	if result.Error != nil {
		return result.Error
	}

	if result.RowsAffected == 0 {
		var count int64
		if err := r.db.WithContext(ctx).Model(&models.ExamSession{}).
			Where("session_id = ?", sessionID).Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			return gorm.ErrRecordNotFound
		}
		return ErrStatusConflict
	}

	return nil
}

// Finalize locks the review with a compare-and-swap on the finalized flag.
// When two reviewers race, only the first write lands; the loser gets
// ErrAlreadyFinalized even though its earlier read saw an open review.
func (r *sessionRepository) Finalize(ctx context.Context, sessionID, reviewedBy string) error {
	result := r.db.WithContext(ctx).Model(&models.ExamSession{}).
		Where("session_id = ?", sessionID).
		Where("finalized = ?", false).
		Updates(map[string]interface{}{
			"finalized":   true,
			"reviewed_by": reviewedBy,
		})
	if result.Error != nil {
		return result.Error
	}

	if result.RowsAffected == 0 {
		var count int64
		if err := r.db.WithContext(ctx).Model(&models.ExamSession{}).
			Where("session_id = ?", sessionID).Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			return gorm.ErrRecordNotFound
		}
		return ErrAlreadyFinalized
	}

	return nil
}

// ReplaceAnswers installs the full set of answer seats for a session,
// dropping whatever was there before. Used once, when setup assigns the
// questions.
func (r *sessionRepository) ReplaceAnswers(ctx context.Context, sessionID string, answers []models.Answer) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("session_id = ?", sessionID).Delete(&models.Answer{}).Error; err != nil {
			return err
		}
		for i := range answers {
			answers[i].SessionID = sessionID
		}
		return tx.Create(&answers).Error
	})
}

func (r *sessionRepository) SaveAnswer(ctx context.Context, answer *models.Answer) error {
	return r.db.WithContext(ctx).Save(answer).Error
}
