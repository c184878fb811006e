package validator

import (
	"time"

	"github.com/techprep/session-service/internal/models"
)

type TopicCreateRequest struct {
	Name        string  `json:"name" validate:"required,min=1,max=100"`
	Description *string `json:"description" validate:"omitempty,max=1000"`
}

type OptionRequest struct {
	Text      string `json:"text" validate:"required,min=1,max=1000"`
	IsCorrect bool   `json:"is_correct"`
}

// QuestionCreateRequest represents the request structure for creating questions
type QuestionCreateRequest struct {
	Body             string                 `json:"body" validate:"required,min=1,max=4000"`
	Type             models.QuestionType    `json:"type" validate:"required,question_type"`
	Level            models.DifficultyLevel `json:"level" validate:"required,difficulty_level"`
	TopicID          uint                   `json:"topic_id" validate:"required"`
	OfficialAnswer   string                 `json:"official_answer" validate:"max=4000"`
	UsableInPractice *bool                  `json:"usable_in_practice"`
	Options          []OptionRequest        `json:"options" validate:"omitempty,max=20,dive"`
}

// QuestionUpdateRequest replaces every field that is set; options are replaced as a whole
type QuestionUpdateRequest struct {
	Body             *string                 `json:"body" validate:"omitempty,min=1,max=4000"`
	Type             *models.QuestionType    `json:"type" validate:"omitempty,question_type"`
	Level            *models.DifficultyLevel `json:"level" validate:"omitempty,difficulty_level"`
	TopicID          *uint                   `json:"topic_id"`
	OfficialAnswer   *string                 `json:"official_answer" validate:"omitempty,max=4000"`
	UsableInPractice *bool                   `json:"usable_in_practice"`
	Options          []OptionRequest         `json:"options" validate:"omitempty,max=20,dive"`
}

type SelectionCriteriaRequest struct {
	TopicIDs     []uint                      `json:"topic_ids" validate:"omitempty,max=100"`
	Levels       []models.DifficultyLevel    `json:"levels" validate:"omitempty,max=3,dive,difficulty_level"`
	TypeCounts   map[models.QuestionType]int `json:"type_counts" validate:"omitempty,max=3,dive,keys,question_type,endkeys,min=0,max=500"`
	MaxQuestions *int                        `json:"max_questions" validate:"omitempty,min=0,max=500"`
}

type SessionPolicyRequest struct {
	TimeLimitMinutes      int                   `json:"time_limit_minutes" validate:"min=0,max=600"`
	NavigationMode        models.NavigationMode `json:"navigation_mode" validate:"navigation_mode"`
	FeedbackMode          models.FeedbackMode   `json:"feedback_mode" validate:"feedback_mode"`
	IntegrityFlags        []string              `json:"integrity_flags" validate:"omitempty,max=10,dive,min=1,max=50"`
	WrittenMatchThreshold *float64              `json:"written_match_threshold" validate:"omitempty,match_threshold"`
}

type TemplateCreateRequest struct {
	Name        string                   `json:"name" validate:"required,min=1,max=200"`
	Description *string                  `json:"description" validate:"omitempty,max=2000"`
	Kind        models.TemplateKind      `json:"kind" validate:"required,template_kind"`
	Criteria    SelectionCriteriaRequest `json:"criteria"`
	Policy      SessionPolicyRequest     `json:"policy"`
}

type AssignmentCreateRequest struct {
	TemplateID  uint                        `json:"template_id" validate:"required"`
	Title       string                      `json:"title" validate:"required,min=1,max=200"`
	Visibility  models.AssignmentVisibility `json:"visibility" validate:"required,visibility"`
	ScopeID     *string                     `json:"scope_id" validate:"required_unless=Visibility public,omitempty,min=1,max=255"`
	OpensAt     *time.Time                  `json:"opens_at"`
	ClosesAt    *time.Time                  `json:"closes_at"`
	MaxAttempts int                         `json:"max_attempts" validate:"min=0,max=100"`
}
