package repositories

import (
	"context"

	"gorm.io/gorm"

	"github.com/techprep/session-service/internal/models"
)

// QuestionRepository interface for question-specific operations
type QuestionRepository interface {
	// Basic CRUD operations
	Create(ctx context.Context, tx *gorm.DB, question *models.Question) error
	GetByID(ctx context.Context, tx *gorm.DB, id uint) (*models.Question, error) // Includes options and topic
	Update(ctx context.Context, tx *gorm.DB, question *models.Question) error
	Delete(ctx context.Context, tx *gorm.DB, id uint) error

	// Bulk operations
	GetByIDs(ctx context.Context, tx *gorm.DB, ids []uint) ([]*models.Question, error)

	// Query operations
	List(ctx context.Context, tx *gorm.DB, filters QuestionFilters) ([]*models.Question, int64, error)
	// FindByCriteria returns matches in storage order (id ascending)
	FindByCriteria(ctx context.Context, tx *gorm.DB, criteria QuestionCriteria) ([]*models.Question, error)

	SetUsableInPractice(ctx context.Context, tx *gorm.DB, id uint, usable bool) error
}

type TopicRepository interface {
	Create(ctx context.Context, tx *gorm.DB, topic *models.Topic) error
	GetByID(ctx context.Context, tx *gorm.DB, id uint) (*models.Topic, error)
	List(ctx context.Context, tx *gorm.DB) ([]*models.Topic, error)
	ExistsByName(ctx context.Context, tx *gorm.DB, name string) (bool, error)
}

type TemplateRepository interface {
	Create(ctx context.Context, tx *gorm.DB, template *models.Template) error
	GetByID(ctx context.Context, tx *gorm.DB, id uint) (*models.Template, error)
	Update(ctx context.Context, tx *gorm.DB, template *models.Template) error
	List(ctx context.Context, tx *gorm.DB, filters TemplateFilters) ([]*models.Template, int64, error)
}

type AssignmentRepository interface {
	Create(ctx context.Context, tx *gorm.DB, assignment *models.Assignment) error
	GetByID(ctx context.Context, tx *gorm.DB, id uint) (*models.Assignment, error) // Includes template
	List(ctx context.Context, tx *gorm.DB, filters AssignmentFilters) ([]*models.Assignment, int64, error)
}
