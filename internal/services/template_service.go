package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/techprep/session-service/internal/models"
	"github.com/techprep/session-service/internal/repositories"
	"github.com/techprep/session-service/internal/validator"
)

type templateService struct {
	repo      repositories.Repository
	db        *gorm.DB
	logger    *slog.Logger
	validator *validator.Validator
}

func NewTemplateService(repo repositories.Repository, db *gorm.DB, logger *slog.Logger, validator *validator.Validator) TemplateService {
	return &templateService{
		repo:      repo,
		db:        db,
		logger:    logger,
		validator: validator,
	}
}

// ===== TEMPLATES =====

func (s *templateService) Create(ctx context.Context, req *CreateTemplateRequest, userID string) (*models.Template, error) {
	s.logger.Info("Creating template", "creator_id", userID, "kind", req.Kind)

	if _, err := requireAuthor(ctx, s.repo, userID, 0, "template", "create"); err != nil {
		return nil, err
	}
	if err := s.validator.ValidateTemplateCreate(req); err != nil {
		return nil, validationFailed(err)
	}
	for _, topicID := range req.Criteria.TopicIDs {
		if _, err := s.repo.Topic().GetByID(ctx, s.db, topicID); err != nil {
			if repositories.IsNotFoundError(err) {
				return nil, ErrTopicNotFound
			}
			return nil, fmt.Errorf("failed to get topic: %w", err)
		}
	}

	template := &models.Template{
		Name:        strings.TrimSpace(req.Name),
		Description: req.Description,
		Kind:        req.Kind,
		Criteria:    datatypes.NewJSONType(criteriaFromRequest(req.Criteria)),
		Policy:      datatypes.NewJSONType(policyFromRequest(req.Policy)),
		CreatedBy:   userID,
	}

	if err := s.repo.Template().Create(ctx, s.db, template); err != nil {
		return nil, err
	}

	s.logger.Info("Template created successfully", "template_id", template.ID)
	return template, nil
}

func (s *templateService) GetByID(ctx context.Context, id uint, userID string) (*models.Template, error) {
	if _, err := requireAuthor(ctx, s.repo, userID, id, "template", "view"); err != nil {
		return nil, err
	}

	template, err := s.repo.Template().GetByID(ctx, s.db, id)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrTemplateNotFound
		}
		return nil, fmt.Errorf("failed to get template: %w", err)
	}
	return template, nil
}

func (s *templateService) List(ctx context.Context, filters repositories.TemplateFilters, userID string) (*TemplateListResponse, error) {
	if _, err := requireAuthor(ctx, s.repo, userID, 0, "template", "list"); err != nil {
		return nil, err
	}

	filters.Limit, filters.Offset = clampPage(filters.Limit, filters.Offset)
	templates, total, err := s.repo.Template().List(ctx, s.db, filters)
	if err != nil {
		return nil, err
	}

	return &TemplateListResponse{
		Templates: templates,
		Total:     total,
		Page:      filters.Offset/filters.Limit + 1,
		Size:      filters.Limit,
	}, nil
}

// ===== ASSIGNMENTS =====

func (s *templateService) CreateAssignment(ctx context.Context, req *CreateAssignmentRequest, userID string) (*models.Assignment, error) {
	s.logger.Info("Creating assignment",
		"creator_id", userID,
		"template_id", req.TemplateID,
		"visibility", req.Visibility)

	if _, err := requireAuthor(ctx, s.repo, userID, 0, "assignment", "create"); err != nil {
		return nil, err
	}
	if err := s.validator.ValidateAssignmentCreate(req); err != nil {
		return nil, validationFailed(err)
	}

	template, err := s.repo.Template().GetByID(ctx, s.db, req.TemplateID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrTemplateNotFound
		}
		return nil, fmt.Errorf("failed to get template: %w", err)
	}

	assignment := &models.Assignment{
		TemplateID:  template.ID,
		Title:       strings.TrimSpace(req.Title),
		Visibility:  req.Visibility,
		ScopeID:     req.ScopeID,
		OpensAt:     utcPtr(req.OpensAt),
		ClosesAt:    utcPtr(req.ClosesAt),
		MaxAttempts: req.MaxAttempts,
		CreatedBy:   userID,
	}
	if assignment.Visibility == models.VisibilityPublic {
		assignment.ScopeID = nil
	}

	if err := s.repo.Assignment().Create(ctx, s.db, assignment); err != nil {
		return nil, err
	}
	assignment.Template = template

	s.logger.Info("Assignment created successfully", "assignment_id", assignment.ID)
	return assignment, nil
}

// GetAssignment hides assignments outside the user's scope as not found
func (s *templateService) GetAssignment(ctx context.Context, id uint, userID string) (*models.Assignment, error) {
	assignment, err := s.repo.Assignment().GetByID(ctx, s.db, id)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrAssignmentNotFound
		}
		return nil, fmt.Errorf("failed to get assignment: %w", err)
	}

	visible, err := assignmentVisible(ctx, s.repo, assignment, userID)
	if err != nil {
		return nil, err
	}
	if !visible {
		return nil, ErrAssignmentNotFound
	}
	return assignment, nil
}

func (s *templateService) ListAssignments(ctx context.Context, filters repositories.AssignmentFilters, userID string) (*AssignmentListResponse, error) {
	user, err := s.repo.User().GetByID(ctx, userID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, NewPermissionError(userID, 0, "assignment", "list", "unknown user")
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	filters.Viewer = user

	filters.Limit, filters.Offset = clampPage(filters.Limit, filters.Offset)
	assignments, total, err := s.repo.Assignment().List(ctx, s.db, filters)
	if err != nil {
		return nil, err
	}

	return &AssignmentListResponse{
		Assignments: assignments,
		Total:       total,
		Page:        filters.Offset/filters.Limit + 1,
		Size:        filters.Limit,
	}, nil
}

// ===== HELPERS =====

func criteriaFromRequest(req validator.SelectionCriteriaRequest) models.SelectionCriteria {
	criteria := models.SelectionCriteria{
		TopicIDs:     req.TopicIDs,
		Levels:       req.Levels,
		MaxQuestions: req.MaxQuestions,
	}
	if len(req.TypeCounts) > 0 {
		criteria.TypeCounts = make(map[models.QuestionType]int, len(req.TypeCounts))
		for qType, n := range req.TypeCounts {
			criteria.TypeCounts[qType] = n
		}
	}
	return criteria
}

func policyFromRequest(req validator.SessionPolicyRequest) models.SessionPolicy {
	policy := models.SessionPolicy{
		TimeLimitMinutes:      req.TimeLimitMinutes,
		NavigationMode:        req.NavigationMode,
		FeedbackMode:          req.FeedbackMode,
		IntegrityFlags:        req.IntegrityFlags,
		WrittenMatchThreshold: req.WrittenMatchThreshold,
	}
	if policy.NavigationMode == "" {
		policy.NavigationMode = models.NavigationLinear
	}
	if policy.FeedbackMode == "" {
		policy.FeedbackMode = models.FeedbackImmediate
	}
	return policy
}

func clampPage(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
