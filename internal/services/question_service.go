package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"gorm.io/gorm"

	"github.com/techprep/session-service/internal/models"
	"github.com/techprep/session-service/internal/repositories"
	"github.com/techprep/session-service/internal/validator"
)

type questionService struct {
	repo      repositories.Repository
	db        *gorm.DB
	logger    *slog.Logger
	validator *validator.Validator
}

func NewQuestionService(repo repositories.Repository, db *gorm.DB, logger *slog.Logger, validator *validator.Validator) QuestionService {
	return &questionService{
		repo:      repo,
		db:        db,
		logger:    logger,
		validator: validator,
	}
}

// ===== TOPICS =====

func (s *questionService) CreateTopic(ctx context.Context, req *CreateTopicRequest, userID string) (*models.Topic, error) {
	if _, err := requireAuthor(ctx, s.repo, userID, 0, "topic", "create"); err != nil {
		return nil, err
	}
	if err := s.validator.Validate(req); err != nil {
		return nil, validationFailed(err)
	}

	name := strings.TrimSpace(req.Name)
	exists, err := s.repo.Topic().ExistsByName(ctx, s.db, name)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, ErrTopicExists
	}

	topic := &models.Topic{Name: name, Description: req.Description}
	if err := s.repo.Topic().Create(ctx, s.db, topic); err != nil {
		if repositories.IsDuplicateKeyError(err) {
			return nil, ErrTopicExists
		}
		return nil, err
	}

	s.logger.Info("Topic created", "topic_id", topic.ID, "name", topic.Name)
	return topic, nil
}

func (s *questionService) ListTopics(ctx context.Context) ([]*models.Topic, error) {
	return s.repo.Topic().List(ctx, s.db)
}

// ===== CORE CRUD OPERATIONS =====

func (s *questionService) Create(ctx context.Context, req *CreateQuestionRequest, userID string) (*models.Question, error) {
	s.logger.Info("Creating question", "creator_id", userID, "type", req.Type)

	if _, err := requireAuthor(ctx, s.repo, userID, 0, "question", "create"); err != nil {
		return nil, err
	}
	if err := s.validator.ValidateQuestionCreate(req); err != nil {
		return nil, validationFailed(err)
	}
	if err := s.ensureTopic(ctx, req.TopicID); err != nil {
		return nil, err
	}

	question := &models.Question{
		Body:             strings.TrimSpace(req.Body),
		Type:             req.Type,
		Level:            req.Level,
		TopicID:          req.TopicID,
		OfficialAnswer:   strings.TrimSpace(req.OfficialAnswer),
		UsableInPractice: req.UsableInPractice == nil || *req.UsableInPractice,
		CreatedBy:        userID,
		Options:          buildOptions(req.Options),
	}

	if err := s.repo.Question().Create(ctx, s.db, question); err != nil {
		return nil, err
	}

	s.logger.Info("Question created successfully", "question_id", question.ID)
	return question, nil
}

func (s *questionService) GetByID(ctx context.Context, id uint, userID string) (*models.Question, error) {
	if _, err := requireAuthor(ctx, s.repo, userID, id, "question", "view"); err != nil {
		return nil, err
	}
	return s.load(ctx, id)
}

func (s *questionService) Update(ctx context.Context, id uint, req *UpdateQuestionRequest, userID string) (*models.Question, error) {
	s.logger.Info("Updating question", "question_id", id, "user_id", userID)

	question, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.checkEdit(ctx, question, userID, "update"); err != nil {
		return nil, err
	}

	applyQuestionUpdates(question, req)
	if err := s.validator.ValidateQuestionUpdate(req, question); err != nil {
		return nil, validationFailed(err)
	}
	if req.TopicID != nil {
		if err := s.ensureTopic(ctx, question.TopicID); err != nil {
			return nil, err
		}
		question.Topic = nil
	}

	if err := s.repo.Question().Update(ctx, s.db, question); err != nil {
		return nil, err
	}

	s.logger.Info("Question updated successfully", "question_id", id)
	return s.load(ctx, id)
}

// Delete leaves recorded answers in place; summaries group them as unknown
func (s *questionService) Delete(ctx context.Context, id uint, userID string) error {
	question, err := s.load(ctx, id)
	if err != nil {
		return err
	}
	if err := s.checkEdit(ctx, question, userID, "delete"); err != nil {
		return err
	}

	if err := s.repo.Question().Delete(ctx, s.db, id); err != nil {
		if repositories.IsNotFoundError(err) {
			return ErrQuestionNotFound
		}
		return err
	}

	s.logger.Info("Question deleted", "question_id", id, "user_id", userID)
	return nil
}

func (s *questionService) List(ctx context.Context, filters repositories.QuestionFilters, userID string) (*QuestionListResponse, error) {
	if _, err := requireAuthor(ctx, s.repo, userID, 0, "question", "list"); err != nil {
		return nil, err
	}

	filters.Limit, filters.Offset = clampPage(filters.Limit, filters.Offset)
	questions, total, err := s.repo.Question().List(ctx, s.db, filters)
	if err != nil {
		return nil, err
	}

	return &QuestionListResponse{
		Questions: questions,
		Total:     total,
		Page:      filters.Offset/filters.Limit + 1,
		Size:      filters.Limit,
	}, nil
}

func (s *questionService) SetUsableInPractice(ctx context.Context, id uint, usable bool, userID string) error {
	question, err := s.load(ctx, id)
	if err != nil {
		return err
	}
	if err := s.checkEdit(ctx, question, userID, "update"); err != nil {
		return err
	}

	if err := s.repo.Question().SetUsableInPractice(ctx, s.db, id, usable); err != nil {
		if repositories.IsNotFoundError(err) {
			return ErrQuestionNotFound
		}
		return err
	}

	s.logger.Info("Question practice flag updated", "question_id", id, "usable_in_practice", usable)
	return nil
}

func (s *questionService) load(ctx context.Context, id uint) (*models.Question, error) {
	question, err := s.repo.Question().GetByID(ctx, s.db, id)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrQuestionNotFound
		}
		return nil, fmt.Errorf("failed to get question: %w", err)
	}
	return question, nil
}

func (s *questionService) ensureTopic(ctx context.Context, topicID uint) error {
	if _, err := s.repo.Topic().GetByID(ctx, s.db, topicID); err != nil {
		if repositories.IsNotFoundError(err) {
			return ErrTopicNotFound
		}
		return fmt.Errorf("failed to get topic: %w", err)
	}
	return nil
}
