package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/noah-isme/oralex-api/internal/models"
)

// QuestionRepository defines read operations against the question bank.
type QuestionRepository interface {
	GetByID(ctx context.Context, id uint) (models.Question, error)
	Random(ctx context.Context, count int) ([]models.Question, error)
	CountActive(ctx context.Context) (int64, error)
}

type questionRepository struct {
	db *gorm.DB
}

// NewQuestionRepository instantiates the repository.
func NewQuestionRepository(db *gorm.DB) QuestionRepository {
	return &questionRepository{db: db}
}

func (r *questionRepository) GetByID(ctx context.Context, id uint) (models.Question, error) {
	var question models.Question
	if err := r.db.WithContext(ctx).First(&question, id).Error; err != nil {
		return models.Question{}, err
	}

	return question, nil
}

// Random draws up to count distinct active questions without replacement.
// RANDOM() is understood by both postgres and the sqlite test driver.
func (r *questionRepository) Random(ctx context.Context, count int) ([]models.Question, error) {
	var questions []models.Question
	if err := r.db.WithContext(ctx).
		Where("active = ?", true).
		Order("RANDOM()").
		Limit(count).
		Find(&questions).Error; err != nil {
		return nil, err
	}

	return questions, nil
}

func (r *questionRepository) CountActive(ctx context.Context) (int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&models.Question{}).
		Where("active = ?", true).
		Count(&count).Error; err != nil {
		return 0, err
	}

	return count, nil
}
