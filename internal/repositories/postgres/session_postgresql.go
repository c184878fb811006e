package postgres

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/techprep/session-service/internal/models"
	"github.com/techprep/session-service/internal/repositories"
)

// Sessions are never cached: every read feeds a state transition.
type SessionPostgreSQL struct {
	helpers *SharedHelpers
}

func NewSessionPostgreSQL(db *gorm.DB) repositories.SessionRepository {
	return &SessionPostgreSQL{helpers: NewSharedHelpers(db)}
}

// Create inserts a session. A second active session for the same user and
// assignment violates idx_sessions_one_active and surfaces as a duplicate key.
func (s *SessionPostgreSQL) Create(ctx context.Context, tx *gorm.DB, session *models.Session) error {
	if err := s.helpers.getDB(tx).WithContext(ctx).Omit("Answers").Create(session).Error; err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	return nil
}

func (s *SessionPostgreSQL) GetByID(ctx context.Context, tx *gorm.DB, id uint) (*models.Session, error) {
	var session models.Session
	if err := s.helpers.getDB(tx).WithContext(ctx).First(&session, id).Error; err != nil {
		return nil, notFound(err, "session", id)
	}
	return &session, nil
}

func (s *SessionPostgreSQL) GetForUpdate(ctx context.Context, tx *gorm.DB, id uint) (*models.Session, error) {
	var session models.Session
	if err := s.helpers.getDB(tx).WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&session, id).Error; err != nil {
		return nil, notFound(err, "session", id)
	}
	return &session, nil
}

func (s *SessionPostgreSQL) Update(ctx context.Context, tx *gorm.DB, session *models.Session) error {
	if err := s.helpers.getDB(tx).WithContext(ctx).Omit("Answers").Save(session).Error; err != nil {
		return fmt.Errorf("failed to update session: %w", err)
	}
	return nil
}

// ===== ATTEMPT BOOKKEEPING =====

func (s *SessionPostgreSQL) GetActive(ctx context.Context, tx *gorm.DB, userID string, assignmentID uint) (*models.Session, error) {
	var session models.Session
	if err := s.helpers.getDB(tx).WithContext(ctx).
		Where("user_id = ? AND assignment_id = ? AND status = ?", userID, assignmentID, models.SessionActive).
		Order("id DESC").
		First(&session).Error; err != nil {
		return nil, notFound(err, "active session for assignment", assignmentID)
	}
	return &session, nil
}

// MaxAttemptNumber returns 0 when the user has no session on the assignment yet
func (s *SessionPostgreSQL) MaxAttemptNumber(ctx context.Context, tx *gorm.DB, userID string, assignmentID uint) (int, error) {
	var highest int
	if err := s.helpers.getDB(tx).WithContext(ctx).
		Model(&models.Session{}).
		Where("user_id = ? AND assignment_id = ?", userID, assignmentID).
		Select("COALESCE(MAX(number_attempts), 0)").
		Scan(&highest).Error; err != nil {
		return 0, fmt.Errorf("failed to get attempt count: %w", err)
	}
	return highest, nil
}

// ===== QUERY OPERATIONS =====

func (s *SessionPostgreSQL) List(ctx context.Context, tx *gorm.DB, filters repositories.SessionFilters) ([]*models.Session, int64, error) {
	query := s.helpers.ApplySessionFilters(s.helpers.getDB(tx).WithContext(ctx).Model(&models.Session{}), filters)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count sessions: %w", err)
	}

	var sessions []*models.Session
	query = s.helpers.ApplyPaginationAndSort(query, filters.SortBy, filters.SortOrder, filters.Limit, filters.Offset)
	if err := query.Find(&sessions).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to list sessions: %w", err)
	}
	return sessions, total, nil
}

// ===== HOUSEKEEPING =====

func (s *SessionPostgreSQL) ListExpired(ctx context.Context, tx *gorm.DB, now time.Time, limit int) ([]*models.Session, error) {
	var sessions []*models.Session
	query := s.helpers.getDB(tx).WithContext(ctx).
		Where("status = ? AND expires_at IS NOT NULL AND expires_at <= ?", models.SessionActive, now).
		Order("expires_at ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&sessions).Error; err != nil {
		return nil, fmt.Errorf("failed to list expired sessions: %w", err)
	}
	return sessions, nil
}

func (s *SessionPostgreSQL) ListStartedBefore(ctx context.Context, tx *gorm.DB, before time.Time, limit int) ([]*models.Session, error) {
	var sessions []*models.Session
	query := s.helpers.getDB(tx).WithContext(ctx).
		Where("status = ? AND expires_at IS NULL AND started_at < ?", models.SessionActive, before).
		Order("started_at ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&sessions).Error; err != nil {
		return nil, fmt.Errorf("failed to list stale sessions: %w", err)
	}
	return sessions, nil
}

// ===== ANSWERS =====

type AnswerPostgreSQL struct {
	helpers *SharedHelpers
}

func NewAnswerPostgreSQL(db *gorm.DB) repositories.AnswerRepository {
	return &AnswerPostgreSQL{helpers: NewSharedHelpers(db)}
}

func (a *AnswerPostgreSQL) Create(ctx context.Context, tx *gorm.DB, answer *models.Answer) error {
	if err := a.helpers.getDB(tx).WithContext(ctx).Create(answer).Error; err != nil {
		return fmt.Errorf("failed to create answer: %w", err)
	}
	return nil
}

func (a *AnswerPostgreSQL) ListBySession(ctx context.Context, tx *gorm.DB, sessionID uint) ([]*models.Answer, error) {
	var answers []*models.Answer
	if err := a.helpers.getDB(tx).WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("id ASC").
		Find(&answers).Error; err != nil {
		return nil, fmt.Errorf("failed to list answers: %w", err)
	}
	return answers, nil
}

func (a *AnswerPostgreSQL) CountForQuestion(ctx context.Context, tx *gorm.DB, sessionID, questionID uint) (int64, error) {
	var count int64
	if err := a.helpers.getDB(tx).WithContext(ctx).
		Model(&models.Answer{}).
		Where("session_id = ? AND question_id = ?", sessionID, questionID).
		Count(&count).Error; err != nil {
		return 0, fmt.Errorf("failed to count answers: %w", err)
	}
	return count, nil
}
