package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/techprep/session-service/internal/models"
	"github.com/techprep/session-service/internal/repositories"
	"github.com/techprep/session-service/internal/validator"
)

// ===== PERMISSIONS =====

// requireAuthor loads the user and checks that they may author content
func requireAuthor(ctx context.Context, repo repositories.Repository, userID string, resourceID uint, resource, action string) (*models.User, error) {
	user, err := repo.User().GetByID(ctx, userID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, NewPermissionError(userID, resourceID, resource, action, "unknown user")
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	if !user.CanAuthor() {
		return nil, NewPermissionError(userID, resourceID, resource, action, "insufficient role permissions")
	}
	return user, nil
}

// checkEdit lets admins edit anything and interviewers edit their own questions
func (s *questionService) checkEdit(ctx context.Context, question *models.Question, userID, action string) error {
	user, err := requireAuthor(ctx, s.repo, userID, question.ID, "question", action)
	if err != nil {
		return err
	}
	if user.Role != models.RoleAdmin && question.CreatedBy != userID {
		return NewPermissionError(userID, question.ID, "question", action, "not owner")
	}
	return nil
}

// ===== BUILDERS =====

func buildOptions(reqs []validator.OptionRequest) []models.Option {
	options := make([]models.Option, 0, len(reqs))
	for i, opt := range reqs {
		options = append(options, models.Option{
			Text:       strings.TrimSpace(opt.Text),
			IsCorrect:  opt.IsCorrect,
			OrderIndex: i,
		})
	}
	return options
}

// applyQuestionUpdates copies every set field; options replace the existing list
func applyQuestionUpdates(question *models.Question, req *UpdateQuestionRequest) {
	if req.Body != nil {
		question.Body = strings.TrimSpace(*req.Body)
	}
	if req.Type != nil {
		question.Type = *req.Type
	}
	if req.Level != nil {
		question.Level = *req.Level
	}
	if req.TopicID != nil {
		question.TopicID = *req.TopicID
	}
	if req.OfficialAnswer != nil {
		question.OfficialAnswer = strings.TrimSpace(*req.OfficialAnswer)
	}
	if req.UsableInPractice != nil {
		question.UsableInPractice = *req.UsableInPractice
	}
	if req.Options != nil {
		question.Options = buildOptions(req.Options)
	}
	if question.Type == models.Written {
		question.Options = nil
	}
}
