package database

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/noah-isme/oralex-api/internal/models"
)

// Migrate creates the exam schema. Beyond the model-derived tables it
// installs a partial unique index so one student can never hold two
// non-terminal sessions, even when two API instances race on creation.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&models.ExamSession{}, &models.Answer{}, &models.RosterEntry{}, &models.Question{}); err != nil {
		return fmt.Errorf("failed to migrate schema: %w", err)
	}

	err := db.Exec(
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_exam_sessions_active_student
		 ON exam_sessions (student_id_hash)
		 WHERE status NOT IN ('completed', 'aborted', 'expired')`,
	).Error
	if err != nil {
		return fmt.Errorf("failed to create active session index: %w", err)
	}

	return nil
}
