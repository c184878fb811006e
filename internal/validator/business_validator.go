package validator

import (
	"fmt"
	"strings"

	"github.com/techprep/session-service/internal/models"
)

// ValidateQuestionCreate runs struct validation and the per-type shape rules
func (v *Validator) ValidateQuestionCreate(req *QuestionCreateRequest) error {
	if err := v.Validate(req); err != nil {
		return err
	}
	return nilIfEmpty(questionShapeRules(req.Type, req.Options, req.OfficialAnswer))
}

// ValidateQuestionUpdate checks the merged result of an update against the shape rules
func (v *Validator) ValidateQuestionUpdate(req *QuestionUpdateRequest, merged *models.Question) error {
	if err := v.Validate(req); err != nil {
		return err
	}

	options := make([]OptionRequest, 0, len(merged.Options))
	for _, opt := range merged.Options {
		options = append(options, OptionRequest{Text: opt.Text, IsCorrect: opt.IsCorrect})
	}
	return nilIfEmpty(questionShapeRules(merged.Type, options, merged.OfficialAnswer))
}

func (v *Validator) ValidateTemplateCreate(req *TemplateCreateRequest) error {
	if err := v.Validate(req); err != nil {
		return err
	}

	var errs ValidationErrors
	seen := make(map[uint]bool, len(req.Criteria.TopicIDs))
	for i, id := range req.Criteria.TopicIDs {
		if id == 0 {
			errs = append(errs, ValidationError{
				Field:   fmt.Sprintf("criteria.topic_ids[%d]", i),
				Message: "must be a topic id",
				Value:   id,
				Rule:    "business_logic",
			})
		}
		if seen[id] {
			errs = append(errs, ValidationError{
				Field:   fmt.Sprintf("criteria.topic_ids[%d]", i),
				Message: "is listed twice",
				Value:   id,
				Rule:    "business_logic",
			})
		}
		seen[id] = true
	}

	if req.Kind == models.KindInterview && req.Policy.TimeLimitMinutes == 0 {
		errs = append(errs, ValidationError{
			Field:   "policy.time_limit_minutes",
			Message: "interview templates need a time limit",
			Value:   req.Policy.TimeLimitMinutes,
			Rule:    "business_logic",
		})
	}
	return nilIfEmpty(errs)
}

func (v *Validator) ValidateAssignmentCreate(req *AssignmentCreateRequest) error {
	if err := v.Validate(req); err != nil {
		return err
	}

	var errs ValidationErrors
	if req.OpensAt != nil && req.ClosesAt != nil && !req.ClosesAt.After(*req.OpensAt) {
		errs = append(errs, ValidationError{
			Field:   "closes_at",
			Message: "must be after opens_at",
			Value:   req.ClosesAt,
			Rule:    "business_logic",
		})
	}
	if req.Visibility == models.VisibilityPublic && req.ScopeID != nil && *req.ScopeID != "" {
		errs = append(errs, ValidationError{
			Field:   "scope_id",
			Message: "must be empty for public assignments",
			Value:   *req.ScopeID,
			Rule:    "business_logic",
		})
	}
	return nilIfEmpty(errs)
}

func questionShapeRules(qType models.QuestionType, options []OptionRequest, officialAnswer string) ValidationErrors {
	var errs ValidationErrors

	switch qType {
	case models.SingleChoice, models.MultiChoice:
		if len(options) < 2 {
			errs = append(errs, ValidationError{
				Field:   "options",
				Message: "choice questions need at least 2 options",
				Value:   len(options),
				Rule:    "business_logic",
			})
		}

		correct := 0
		for i, opt := range options {
			if strings.TrimSpace(opt.Text) == "" {
				errs = append(errs, ValidationError{
					Field:   fmt.Sprintf("options[%d].text", i),
					Message: "option text cannot be empty",
					Rule:    "business_logic",
				})
			}
			if opt.IsCorrect {
				correct++
			}
		}

		switch {
		case correct == 0:
			errs = append(errs, ValidationError{
				Field:   "options",
				Message: "at least one option must be correct",
				Rule:    "business_logic",
			})
		case qType == models.SingleChoice && correct > 1:
			errs = append(errs, ValidationError{
				Field:   "options",
				Message: "single choice questions need exactly one correct option",
				Value:   correct,
				Rule:    "business_logic",
			})
		}

	case models.Written:
		if strings.TrimSpace(officialAnswer) == "" {
			errs = append(errs, ValidationError{
				Field:   "official_answer",
				Message: "written questions need an official answer",
				Rule:    "business_logic",
			})
		}
		if len(options) > 0 {
			errs = append(errs, ValidationError{
				Field:   "options",
				Message: "written questions cannot have options",
				Value:   len(options),
				Rule:    "business_logic",
			})
		}
	}

	return errs
}

// nilIfEmpty keeps a typed nil slice from turning into a non-nil error
func nilIfEmpty(errs ValidationErrors) error {
	if len(errs) == 0 {
		return nil
	}
	return errs
}
