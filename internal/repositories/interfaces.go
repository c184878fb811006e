package repositories

import (
	"time"

	"github.com/techprep/session-service/internal/models"
)

// ===== SHARED FILTER STRUCTS =====

type QuestionFilters struct {
	Type      *models.QuestionType    `json:"type"`
	Level     *models.DifficultyLevel `json:"level"`
	TopicID   *uint                   `json:"topic_id"`
	CreatedBy *string                 `json:"created_by"`
	Practice  *bool                   `json:"usable_in_practice"`
	Query     string                  `json:"query"`
	Limit     int                     `json:"limit"`
	Offset    int                     `json:"offset"`
	SortBy    string                  `json:"sort_by"`
	SortOrder string                  `json:"sort_order"`
}

// QuestionCriteria is the store-side part of a selection. Empty slices do not restrict.
type QuestionCriteria struct {
	TopicIDs     []uint
	Levels       []models.DifficultyLevel
	Types        []models.QuestionType
	PracticeOnly bool
}

type TemplateFilters struct {
	Kind      *models.TemplateKind `json:"kind"`
	CreatedBy *string              `json:"created_by"`
	Limit     int                  `json:"limit"`
	Offset    int                  `json:"offset"`
	SortBy    string               `json:"sort_by"`
	SortOrder string               `json:"sort_order"`
}

type AssignmentFilters struct {
	TemplateID *uint `json:"template_id"`
	// Viewer restricts results to assignments the user may see. Nil means no restriction.
	Viewer    *models.User `json:"-"`
	OpenAt    *time.Time   `json:"open_at"`
	Limit     int          `json:"limit"`
	Offset    int          `json:"offset"`
	SortBy    string       `json:"sort_by"`
	SortOrder string       `json:"sort_order"`
}

type SessionFilters struct {
	UserID       *string               `json:"user_id"`
	AssignmentID *uint                 `json:"assignment_id"`
	Status       *models.SessionStatus `json:"status"`
	DateFrom     *time.Time            `json:"date_from"`
	DateTo       *time.Time            `json:"date_to"`
	Limit        int                   `json:"limit"`
	Offset       int                   `json:"offset"`
	SortBy       string                `json:"sort_by"`    // "created_at", "started_at", "total_score"
	SortOrder    string                `json:"sort_order"` // "asc", "desc"
}
