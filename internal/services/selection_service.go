package services

import (
	"context"
	"fmt"
	"log/slog"
	"slices"

	"gorm.io/gorm"

	"github.com/techprep/session-service/internal/models"
	"github.com/techprep/session-service/internal/repositories"
)

type selectionService struct {
	repo   repositories.Repository
	db     *gorm.DB
	logger *slog.Logger
}

func NewSelectionService(repo repositories.Repository, db *gorm.DB, logger *slog.Logger) SelectionService {
	return &selectionService{
		repo:   repo,
		db:     db,
		logger: logger,
	}
}

func (s *selectionService) ResolveQuestions(ctx context.Context, template *models.Template) ([]*models.Question, error) {
	if template == nil {
		return nil, ErrTemplateNotFound
	}
	return s.resolve(ctx, s.db, template)
}

func (s *selectionService) resolve(ctx context.Context, tx *gorm.DB, template *models.Template) ([]*models.Question, error) {
	ctx, span := tracer.Start(ctx, "selection.resolve")
	defer span.End()

	criteria := template.Criteria.Data()
	if err := criteria.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCriteria, err)
	}

	candidates, err := s.repo.Question().FindByCriteria(ctx, tx, storeCriteria(template.Kind, criteria))
	if err != nil {
		return nil, fmt.Errorf("failed to fetch candidate questions: %w", err)
	}

	selected, err := SelectQuestions(candidates, template.Kind, criteria)
	if err != nil {
		return nil, err
	}

	s.logger.Debug("Resolved template selection",
		"template_id", template.ID,
		"candidates", len(candidates),
		"selected", len(selected))
	return selected, nil
}

func (s *selectionService) PreviewSelection(ctx context.Context, templateID uint, userID string) (*SelectionPreview, error) {
	if _, err := requireAuthor(ctx, s.repo, userID, templateID, "template", "preview"); err != nil {
		return nil, err
	}

	template, err := s.repo.Template().GetByID(ctx, s.db, templateID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrTemplateNotFound
		}
		return nil, fmt.Errorf("failed to get template: %w", err)
	}

	questions, err := s.resolve(ctx, s.db, template)
	if err != nil {
		return nil, err
	}

	preview := &SelectionPreview{
		TemplateID: templateID,
		Total:      len(questions),
		ByType:     make(map[models.QuestionType]int),
		ByLevel:    make(map[models.DifficultyLevel]int),
		Questions:  questions,
	}
	for _, q := range questions {
		preview.ByType[q.Type]++
		preview.ByLevel[q.Level]++
	}
	return preview, nil
}

// ===== PURE SELECTION =====

// storeCriteria narrows the store query; SelectQuestions re-applies every rule
func storeCriteria(kind models.TemplateKind, criteria models.SelectionCriteria) repositories.QuestionCriteria {
	out := repositories.QuestionCriteria{
		TopicIDs:     criteria.TopicIDs,
		Levels:       criteria.Levels,
		PracticeOnly: kind == models.KindPractice,
	}
	for _, qType := range models.QuestionTypes {
		if criteria.TypeCounts[qType] > 0 {
			out.Types = append(out.Types, qType)
		}
	}
	return out
}

// SelectQuestions applies template criteria to candidates in storage order.
// Empty filters do not restrict. A non-empty type count map keeps only the
// listed types and takes at most n of each. A positive max truncates the result.
func SelectQuestions(candidates []*models.Question, kind models.TemplateKind, criteria models.SelectionCriteria) ([]*models.Question, error) {
	if err := criteria.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCriteria, err)
	}

	taken := make(map[models.QuestionType]int)
	selected := make([]*models.Question, 0, len(candidates))

	for _, q := range candidates {
		if !q.Type.IsValid() {
			return nil, fmt.Errorf("%w: question %d has unknown type %q", ErrInvalidQuestionData, q.ID, q.Type)
		}
		if !q.Level.IsValid() {
			return nil, fmt.Errorf("%w: question %d has unknown level %q", ErrInvalidQuestionData, q.ID, q.Level)
		}

		if len(criteria.TopicIDs) > 0 && !slices.Contains(criteria.TopicIDs, q.TopicID) {
			continue
		}
		if len(criteria.Levels) > 0 && !slices.Contains(criteria.Levels, q.Level) {
			continue
		}
		if kind == models.KindPractice && !q.UsableInPractice {
			continue
		}
		if len(criteria.TypeCounts) > 0 {
			if taken[q.Type] >= criteria.TypeCounts[q.Type] {
				continue
			}
			taken[q.Type]++
		}

		selected = append(selected, q)
	}

	if criteria.MaxQuestions != nil && *criteria.MaxQuestions > 0 && len(selected) > *criteria.MaxQuestions {
		selected = selected[:*criteria.MaxQuestions]
	}
	return selected, nil
}
