package models

import (
	"fmt"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type TemplateKind string

const (
	KindPractice  TemplateKind = "practice"
	KindInterview TemplateKind = "interview"
)

func (k TemplateKind) IsValid() bool {
	return k == KindPractice || k == KindInterview
}

type NavigationMode string

const (
	NavigationLinear NavigationMode = "linear"
	NavigationFree   NavigationMode = "free"
)

type FeedbackMode string

const (
	FeedbackImmediate FeedbackMode = "immediate"
	FeedbackOnSubmit  FeedbackMode = "on_submit"
)

// SelectionCriteria filters the question store. Empty dimensions do not restrict.
type SelectionCriteria struct {
	TopicIDs     []uint               `json:"topic_ids,omitempty"`
	Levels       []DifficultyLevel    `json:"levels,omitempty"`
	TypeCounts   map[QuestionType]int `json:"type_counts,omitempty"`
	MaxQuestions *int                 `json:"max_questions,omitempty"`
}

func (c SelectionCriteria) Validate() error {
	for _, level := range c.Levels {
		if !level.IsValid() {
			return fmt.Errorf("unknown difficulty level %q", level)
		}
	}
	for qType, n := range c.TypeCounts {
		if !qType.IsValid() {
			return fmt.Errorf("unknown question type %q", qType)
		}
		if n < 0 {
			return fmt.Errorf("type count for %s must not be negative", qType)
		}
	}
	if c.MaxQuestions != nil && *c.MaxQuestions < 0 {
		return fmt.Errorf("max questions must not be negative")
	}
	return nil
}

// SessionPolicy is mostly stored for the runner UI. The service enforces the
// time limit and the written answer threshold override.
type SessionPolicy struct {
	TimeLimitMinutes      int            `json:"time_limit_minutes"`
	NavigationMode        NavigationMode `json:"navigation_mode"`
	FeedbackMode          FeedbackMode   `json:"feedback_mode"`
	IntegrityFlags        []string       `json:"integrity_flags,omitempty"`
	WrittenMatchThreshold *float64       `json:"written_match_threshold,omitempty"`
}

func (p SessionPolicy) TimeLimit() time.Duration {
	if p.TimeLimitMinutes <= 0 {
		return 0
	}
	return time.Duration(p.TimeLimitMinutes) * time.Minute
}

type Template struct {
	ID          uint                                  `json:"id" gorm:"primaryKey"`
	Name        string                                `json:"name" gorm:"not null;size:200"`
	Description *string                               `json:"description" gorm:"type:text"`
	Kind        TemplateKind                          `json:"kind" gorm:"not null;size:20;index"`
	Criteria    datatypes.JSONType[SelectionCriteria] `json:"criteria"`
	Policy      datatypes.JSONType[SessionPolicy]     `json:"policy"`

	CreatedBy string    `json:"created_by" gorm:"not null;size:255;index"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (t *Template) BeforeSave(tx *gorm.DB) error {
	if !t.Kind.IsValid() {
		return fmt.Errorf("unknown template kind %q", t.Kind)
	}
	if err := t.Criteria.Data().Validate(); err != nil {
		return fmt.Errorf("invalid selection criteria: %w", err)
	}
	return nil
}

func (Template) TableName() string {
	return "templates"
}
