package repository

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/noah-isme/oralex-api/internal/models"
)

// RosterRepository defines data operations for the exam allow-list.
type RosterRepository interface {
	GetByHash(ctx context.Context, studentIDHash string) (models.RosterEntry, error)
	Upsert(ctx context.Context, entry *models.RosterEntry) error
	UpdateAttemptStatus(ctx context.Context, studentIDHash, attemptStatus string) error
}

type rosterRepository struct {
	db *gorm.DB
}

// NewRosterRepository instantiates the repository.
func NewRosterRepository(db *gorm.DB) RosterRepository {
	return &rosterRepository{db: db}
}

func (r *rosterRepository) GetByHash(ctx context.Context, studentIDHash string) (models.RosterEntry, error) {
	var entry models.RosterEntry
	if err := r.db.WithContext(ctx).
		Where("student_id_hash = ?", studentIDHash).
		First(&entry).Error; err != nil {
		return models.RosterEntry{}, err
	}

	return entry, nil
}

// Upsert inserts the entry or refreshes the identity and slot columns of an
// existing one. The attempt status of an existing entry is left alone so a
// re-issued link cannot reset a completed attempt.
func (r *rosterRepository) Upsert(ctx context.Context, entry *models.RosterEntry) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "student_id_hash"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"id_last4", "first_name", "last_name", "email", "slot_start", "slot_end", "updated_at",
		}),
	}).Create(entry).Error
}

func (r *rosterRepository) UpdateAttemptStatus(ctx context.Context, studentIDHash, attemptStatus string) error {
	result := r.db.WithContext(ctx).Model(&models.RosterEntry{}).
		Where("student_id_hash = ?", studentIDHash).
		Update("attempt_status", attemptStatus)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}

	return nil
}
