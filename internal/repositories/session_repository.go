package repositories

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/techprep/session-service/internal/models"
)

// SessionRepository interface for runner sessions
type SessionRepository interface {
	// Basic CRUD operations
	Create(ctx context.Context, tx *gorm.DB, session *models.Session) error
	GetByID(ctx context.Context, tx *gorm.DB, id uint) (*models.Session, error)
	// GetForUpdate row-locks the session for the rest of the transaction
	GetForUpdate(ctx context.Context, tx *gorm.DB, id uint) (*models.Session, error)
	Update(ctx context.Context, tx *gorm.DB, session *models.Session) error

	// Attempt bookkeeping
	GetActive(ctx context.Context, tx *gorm.DB, userID string, assignmentID uint) (*models.Session, error)
	MaxAttemptNumber(ctx context.Context, tx *gorm.DB, userID string, assignmentID uint) (int, error)

	// Query operations
	List(ctx context.Context, tx *gorm.DB, filters SessionFilters) ([]*models.Session, int64, error)

	// Housekeeping
	ListExpired(ctx context.Context, tx *gorm.DB, now time.Time, limit int) ([]*models.Session, error)
	ListStartedBefore(ctx context.Context, tx *gorm.DB, before time.Time, limit int) ([]*models.Session, error)
}

// AnswerRepository interface for session answers
type AnswerRepository interface {
	// Create fails with a duplicate key error when the question was already answered
	Create(ctx context.Context, tx *gorm.DB, answer *models.Answer) error
	ListBySession(ctx context.Context, tx *gorm.DB, sessionID uint) ([]*models.Answer, error)
	CountForQuestion(ctx context.Context, tx *gorm.DB, sessionID, questionID uint) (int64, error)
}
