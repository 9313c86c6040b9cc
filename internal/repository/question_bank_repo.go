package repository

import (
	"context"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/intervo-dev/intervo-go-api/internal/models"
)

// QuestionBankFilter narrows which curated questions are drawn at setup.
type QuestionBankFilter struct {
	InterviewType string
	Role          string
	Area          string
	Level         string
	Limit         int
}

// QuestionBankRepository exposes persistence operations for the question bank.
type QuestionBankRepository interface {
	Load(ctx context.Context, items []models.QuestionBankItem) error
	List(ctx context.Context, filter QuestionBankFilter) ([]models.QuestionBankItem, error)
}

// NewQuestionBankRepository constructs a question bank repository.
func NewQuestionBankRepository(db *gorm.DB) QuestionBankRepository {
	return &questionBankRepository{db: db}
}

type questionBankRepository struct {
	db *gorm.DB
}

func (r *questionBankRepository) Load(ctx context.Context, items []models.QuestionBankItem) error {
	if len(items) == 0 {
		return nil
	}

	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(&items).Error
}

func (r *questionBankRepository) List(ctx context.Context, filter QuestionBankFilter) ([]models.QuestionBankItem, error) {
	db := r.db.WithContext(ctx).Model(&models.QuestionBankItem{})

	if filter.InterviewType != "" {
		db = db.Where("LOWER(interview_type) = ?", strings.ToLower(filter.InterviewType))
	}
	if filter.Role != "" {
		db = db.Where("LOWER(role) = ?", strings.ToLower(filter.Role))
	}
	if filter.Area != "" {
		db = db.Where("LOWER(area) = ?", strings.ToLower(filter.Area))
	}
	if filter.Level != "" {
		db = db.Where("LOWER(level) = ?", strings.ToLower(filter.Level))
	}
	if filter.Limit > 0 {
		db = db.Limit(filter.Limit)
	}

	var items []models.QuestionBankItem
	if err := db.Order("difficulty ASC, id ASC").Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}
