package postgres

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/techprep/session-service/internal/cache"
	"github.com/techprep/session-service/internal/models"
	"github.com/techprep/session-service/internal/repositories"
)

type QuestionPostgreSQL struct {
	helpers      *SharedHelpers
	cacheManager *cache.CacheManager
}

func NewQuestionPostgreSQL(db *gorm.DB, cacheManager *cache.CacheManager) repositories.QuestionRepository {
	return &QuestionPostgreSQL{
		helpers:      NewSharedHelpers(db),
		cacheManager: cacheManager,
	}
}

// ===== BASIC CRUD OPERATIONS =====

// Create inserts the question together with its options
func (q *QuestionPostgreSQL) Create(ctx context.Context, tx *gorm.DB, question *models.Question) error {
	db := q.helpers.getDB(tx)
	if err := db.WithContext(ctx).Create(question).Error; err != nil {
		return fmt.Errorf("failed to create question: %w", err)
	}
	return nil
}

// GetByID retrieves a question with topic and options, with caching
func (q *QuestionPostgreSQL) GetByID(ctx context.Context, tx *gorm.DB, id uint) (*models.Question, error) {
	db := q.helpers.getDB(tx)
	var question models.Question

	err := q.cacheManager.Question.CacheOrExecute(ctx, fmt.Sprintf("id:%d", id), &question, cache.QuestionCacheConfig.TTL, func() (interface{}, error) {
		var dbQuestion models.Question
		if err := preloadQuestion(db.WithContext(ctx)).First(&dbQuestion, id).Error; err != nil {
			return nil, notFound(err, "question", id)
		}
		return &dbQuestion, nil
	})
	if err != nil {
		return nil, err
	}
	return &question, nil
}

// Update saves the question and replaces its options
func (q *QuestionPostgreSQL) Update(ctx context.Context, tx *gorm.DB, question *models.Question) error {
	db := q.helpers.getDB(tx)

	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit("Options", "Topic").Save(question).Error; err != nil {
			return fmt.Errorf("failed to update question: %w", err)
		}
		if err := tx.Where("question_id = ?", question.ID).Delete(&models.Option{}).Error; err != nil {
			return fmt.Errorf("failed to clear question options: %w", err)
		}
		if len(question.Options) == 0 {
			return nil
		}
		for i := range question.Options {
			question.Options[i].ID = 0
			question.Options[i].QuestionID = question.ID
		}
		if err := tx.Create(&question.Options).Error; err != nil {
			return fmt.Errorf("failed to create question options: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	cache.InvalidateQuestionCache(ctx, q.cacheManager, question.ID)
	return nil
}

// Delete removes a question and its options
func (q *QuestionPostgreSQL) Delete(ctx context.Context, tx *gorm.DB, id uint) error {
	db := q.helpers.getDB(tx)

	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("question_id = ?", id).Delete(&models.Option{}).Error; err != nil {
			return fmt.Errorf("failed to delete question options: %w", err)
		}
		result := tx.Delete(&models.Question{}, id)
		if result.Error != nil {
			return fmt.Errorf("failed to delete question: %w", result.Error)
		}
		if result.RowsAffected == 0 {
			return fmt.Errorf("question %d: %w", id, repositories.ErrNotFound)
		}
		return nil
	})
	if err != nil {
		return err
	}

	cache.InvalidateQuestionCache(ctx, q.cacheManager, id)
	return nil
}

// ===== BULK OPERATIONS =====

// GetByIDs retrieves questions with topic and options. Missing ids are skipped.
func (q *QuestionPostgreSQL) GetByIDs(ctx context.Context, tx *gorm.DB, ids []uint) ([]*models.Question, error) {
	if len(ids) == 0 {
		return []*models.Question{}, nil
	}

	db := q.helpers.getDB(tx)
	var questions []*models.Question
	if err := preloadQuestion(db.WithContext(ctx)).
		Where("id IN ?", ids).
		Order("id ASC").
		Find(&questions).Error; err != nil {
		return nil, fmt.Errorf("failed to get questions by IDs: %w", err)
	}
	return questions, nil
}

// ===== QUERY OPERATIONS =====

// List retrieves questions with filtering and pagination
func (q *QuestionPostgreSQL) List(ctx context.Context, tx *gorm.DB, filters repositories.QuestionFilters) ([]*models.Question, int64, error) {
	db := q.helpers.getDB(tx)
	query := q.helpers.ApplyQuestionFilters(db.WithContext(ctx).Model(&models.Question{}), filters)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count questions: %w", err)
	}

	query = q.helpers.ApplyPaginationAndSort(query, filters.SortBy, filters.SortOrder, filters.Limit, filters.Offset)

	var questions []*models.Question
	if err := preloadQuestion(query).Find(&questions).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to list questions: %w", err)
	}
	return questions, total, nil
}

func (q *QuestionPostgreSQL) FindByCriteria(ctx context.Context, tx *gorm.DB, criteria repositories.QuestionCriteria) ([]*models.Question, error) {
	db := q.helpers.getDB(tx)
	query := db.WithContext(ctx).Model(&models.Question{})

	if len(criteria.TopicIDs) > 0 {
		query = query.Where("topic_id IN ?", criteria.TopicIDs)
	}
	if len(criteria.Levels) > 0 {
		query = query.Where("level IN ?", criteria.Levels)
	}
	if len(criteria.Types) > 0 {
		query = query.Where("type IN ?", criteria.Types)
	}
	if criteria.PracticeOnly {
		query = query.Where("usable_in_practice = ?", true)
	}

	var questions []*models.Question
	if err := preloadQuestion(query).Order("id ASC").Find(&questions).Error; err != nil {
		return nil, fmt.Errorf("failed to find questions by criteria: %w", err)
	}
	return questions, nil
}

func (q *QuestionPostgreSQL) SetUsableInPractice(ctx context.Context, tx *gorm.DB, id uint, usable bool) error {
	db := q.helpers.getDB(tx)
	// UpdateColumn skips the save hooks, which would validate the empty model
	result := db.WithContext(ctx).Model(&models.Question{}).Where("id = ?", id).UpdateColumn("usable_in_practice", usable)
	if result.Error != nil {
		return fmt.Errorf("failed to update question practice flag: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("question %d: %w", id, repositories.ErrNotFound)
	}

	cache.InvalidateQuestionCache(ctx, q.cacheManager, id)
	return nil
}

// ===== TOPICS =====

type TopicPostgreSQL struct {
	helpers *SharedHelpers
}

func NewTopicPostgreSQL(db *gorm.DB) repositories.TopicRepository {
	return &TopicPostgreSQL{helpers: NewSharedHelpers(db)}
}

func (t *TopicPostgreSQL) Create(ctx context.Context, tx *gorm.DB, topic *models.Topic) error {
	if err := t.helpers.getDB(tx).WithContext(ctx).Create(topic).Error; err != nil {
		return fmt.Errorf("failed to create topic: %w", err)
	}
	return nil
}

func (t *TopicPostgreSQL) GetByID(ctx context.Context, tx *gorm.DB, id uint) (*models.Topic, error) {
	var topic models.Topic
	if err := t.helpers.getDB(tx).WithContext(ctx).First(&topic, id).Error; err != nil {
		return nil, notFound(err, "topic", id)
	}
	return &topic, nil
}

func (t *TopicPostgreSQL) List(ctx context.Context, tx *gorm.DB) ([]*models.Topic, error) {
	var topics []*models.Topic
	if err := t.helpers.getDB(tx).WithContext(ctx).Order("name ASC").Find(&topics).Error; err != nil {
		return nil, fmt.Errorf("failed to list topics: %w", err)
	}
	return topics, nil
}

func (t *TopicPostgreSQL) ExistsByName(ctx context.Context, tx *gorm.DB, name string) (bool, error) {
	var count int64
	if err := t.helpers.getDB(tx).WithContext(ctx).
		Model(&models.Topic{}).
		Where("LOWER(name) = LOWER(?)", name).
		Count(&count).Error; err != nil {
		return false, fmt.Errorf("failed to check topic name: %w", err)
	}
	return count > 0, nil
}
