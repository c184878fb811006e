package models

import (
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"
)

type QuestionType string

const (
	SingleChoice QuestionType = "single"
	MultiChoice  QuestionType = "multi"
	Written      QuestionType = "written"
)

var QuestionTypes = []QuestionType{SingleChoice, MultiChoice, Written}

func (t QuestionType) IsValid() bool {
	switch t {
	case SingleChoice, MultiChoice, Written:
		return true
	}
	return false
}

func (t QuestionType) IsChoice() bool {
	return t == SingleChoice || t == MultiChoice
}

// ParseQuestionType accepts the stored value and a few spellings used by older clients.
func ParseQuestionType(raw string) (QuestionType, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "single", "singlechoice", "single_choice":
		return SingleChoice, nil
	case "multi", "multichoice", "multi_choice", "multiple_choice":
		return MultiChoice, nil
	case "written", "text", "free_text":
		return Written, nil
	}
	return "", fmt.Errorf("unknown question type %q", raw)
}

type DifficultyLevel string

const (
	LevelBasic        DifficultyLevel = "basic"
	LevelIntermediate DifficultyLevel = "intermediate"
	LevelAdvanced     DifficultyLevel = "advanced"
)

var DifficultyLevels = []DifficultyLevel{LevelBasic, LevelIntermediate, LevelAdvanced}

func (l DifficultyLevel) IsValid() bool {
	switch l {
	case LevelBasic, LevelIntermediate, LevelAdvanced:
		return true
	}
	return false
}

// ParseDifficultyLevel rejects unknown levels instead of falling back to basic.
func ParseDifficultyLevel(raw string) (DifficultyLevel, error) {
	level := DifficultyLevel(strings.ToLower(strings.TrimSpace(raw)))
	if !level.IsValid() {
		return "", fmt.Errorf("unknown difficulty level %q", raw)
	}
	return level, nil
}

type Topic struct {
	ID          uint      `json:"id" gorm:"primaryKey"`
	Name        string    `json:"name" gorm:"not null;size:100;uniqueIndex"`
	Description *string   `json:"description" gorm:"type:text"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type Question struct {
	ID               uint            `json:"id" gorm:"primaryKey"`
	Body             string          `json:"body" gorm:"type:text;not null"`
	Type             QuestionType    `json:"type" gorm:"not null;size:20;index"`
	Level            DifficultyLevel `json:"level" gorm:"not null;size:20;index"`
	TopicID          uint            `json:"topic_id" gorm:"not null;index"`
	OfficialAnswer   string          `json:"official_answer" gorm:"type:text"`
	UsableInPractice bool            `json:"usable_in_practice" gorm:"not null;index"`

	CreatedBy string    `json:"created_by" gorm:"not null;size:255;index"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Relations
	Topic   *Topic   `json:"topic,omitempty" gorm:"foreignKey:TopicID"`
	Options []Option `json:"options" gorm:"foreignKey:QuestionID;constraint:OnDelete:CASCADE"`
}

type Option struct {
	ID         uint   `json:"id" gorm:"primaryKey"`
	QuestionID uint   `json:"question_id" gorm:"not null;index"`
	Text       string `json:"text" gorm:"type:text;not null"`
	IsCorrect  bool   `json:"is_correct" gorm:"not null"`
	OrderIndex int    `json:"order_index" gorm:"not null"`
}

// TopicName returns the topic label used for grouping.
func (q *Question) TopicName() string {
	if q.Topic == nil || q.Topic.Name == "" {
		return "unassigned"
	}
	return q.Topic.Name
}

// CorrectOptionIDs returns ids of options flagged correct, in option order.
func (q *Question) CorrectOptionIDs() []uint {
	ids := make([]uint, 0, len(q.Options))
	for _, opt := range q.Options {
		if opt.IsCorrect {
			ids = append(ids, opt.ID)
		}
	}
	return ids
}

func (q *Question) OptionByID(id uint) (*Option, bool) {
	for i := range q.Options {
		if q.Options[i].ID == id {
			return &q.Options[i], true
		}
	}
	return nil, false
}

// Check validates the question shape for its type.
func (q *Question) Check() error {
	if strings.TrimSpace(q.Body) == "" {
		return fmt.Errorf("question body is required")
	}
	if !q.Type.IsValid() {
		return fmt.Errorf("unknown question type %q", q.Type)
	}
	if !q.Level.IsValid() {
		return fmt.Errorf("unknown difficulty level %q", q.Level)
	}
	if q.TopicID == 0 {
		return fmt.Errorf("topic is required")
	}

	switch q.Type {
	case SingleChoice, MultiChoice:
		if len(q.Options) < 2 {
			return fmt.Errorf("%s question needs at least 2 options", q.Type)
		}
		correct := len(q.CorrectOptionIDs())
		if correct == 0 {
			return fmt.Errorf("%s question needs a correct option", q.Type)
		}
		if q.Type == SingleChoice && correct != 1 {
			return fmt.Errorf("single choice question needs exactly one correct option, got %d", correct)
		}
	case Written:
		if strings.TrimSpace(q.OfficialAnswer) == "" {
			return fmt.Errorf("written question needs an official answer")
		}
	}
	return nil
}

// BeforeSave keeps enum columns closed at the store boundary.
func (q *Question) BeforeSave(tx *gorm.DB) error {
	if !q.Type.IsValid() {
		return fmt.Errorf("unknown question type %q", q.Type)
	}
	if !q.Level.IsValid() {
		return fmt.Errorf("unknown difficulty level %q", q.Level)
	}
	return nil
}

func (Question) TableName() string {
	return "questions"
}

func (Option) TableName() string {
	return "question_options"
}

func (Topic) TableName() string {
	return "topics"
}
