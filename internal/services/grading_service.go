package services

import (
	"fmt"
	"log/slog"

	"github.com/techprep/session-service/internal/models"
)

// DefaultWrittenThreshold is the match percent a written answer needs when nothing else is configured
const DefaultWrittenThreshold = 80.0

type gradingService struct {
	logger           *slog.Logger
	defaultThreshold float64
}

func NewGradingService(logger *slog.Logger, defaultThreshold float64) GradingService {
	if defaultThreshold <= 0 || defaultThreshold > 100 {
		defaultThreshold = DefaultWrittenThreshold
	}
	return &gradingService{
		logger:           logger,
		defaultThreshold: defaultThreshold,
	}
}

// Threshold prefers the template override when it is in range
func (s *gradingService) Threshold(policy models.SessionPolicy) float64 {
	if t := policy.WrittenMatchThreshold; t != nil && *t > 0 && *t <= 100 {
		return *t
	}
	return s.defaultThreshold
}

// Grade dispatches to the evaluator for the question type. A submission of the
// wrong shape is graded as incorrect rather than rejected.
func (s *gradingService) Grade(question *models.Question, submission Submission, policy models.SessionPolicy) (*Verdict, error) {
	if question == nil {
		return nil, ErrQuestionNotFound
	}

	switch question.Type {
	case models.SingleChoice:
		return &Verdict{IsCorrect: EvaluateSingleChoice(question, submission.SelectedOptionIDs)}, nil

	case models.MultiChoice:
		return &Verdict{IsCorrect: EvaluateMultiChoice(question, submission.SelectedOptionIDs)}, nil

	case models.Written:
		text := ""
		if submission.Text != nil {
			text = *submission.Text
		}
		matchPercent, isCorrect := EvaluateWritten(question, text, s.Threshold(policy))
		return &Verdict{IsCorrect: isCorrect, MatchPercent: &matchPercent}, nil
	}

	s.logger.Warn("Cannot grade question with unknown type",
		"question_id", question.ID,
		"type", question.Type)
	return nil, fmt.Errorf("%w: unsupported question type %q", ErrInvalidQuestionData, question.Type)
}
