package models

import (
	"slices"
	"time"
)

type AssignmentVisibility string

const (
	VisibilityPublic AssignmentVisibility = "public"
	VisibilityGroup  AssignmentVisibility = "group"
	VisibilityUser   AssignmentVisibility = "user"
)

type Assignment struct {
	ID          uint                 `json:"id" gorm:"primaryKey"`
	TemplateID  uint                 `json:"template_id" gorm:"not null;index"`
	Title       string               `json:"title" gorm:"not null;size:200"`
	Visibility  AssignmentVisibility `json:"visibility" gorm:"not null;size:20;index"`
	ScopeID     *string              `json:"scope_id" gorm:"size:255;index"` // group name or user id
	OpensAt     *time.Time           `json:"opens_at"`
	ClosesAt    *time.Time           `json:"closes_at"`
	MaxAttempts int                  `json:"max_attempts"` // 0 means unlimited

	CreatedBy string    `json:"created_by" gorm:"not null;size:255;index"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Relations
	Template *Template `json:"template,omitempty" gorm:"foreignKey:TemplateID"`
}

// IsOpen reports whether the assignment window contains now.
func (a *Assignment) IsOpen(now time.Time) bool {
	if a.OpensAt != nil && now.Before(*a.OpensAt) {
		return false
	}
	if a.ClosesAt != nil && !now.Before(*a.ClosesAt) {
		return false
	}
	return true
}

// VisibleTo reports whether the user falls inside the assignment scope.
func (a *Assignment) VisibleTo(user *User) bool {
	if user == nil {
		return false
	}
	if user.Role == RoleAdmin || user.ID == a.CreatedBy {
		return true
	}
	switch a.Visibility {
	case VisibilityPublic:
		return true
	case VisibilityUser:
		return a.ScopeID != nil && *a.ScopeID == user.ID
	case VisibilityGroup:
		return a.ScopeID != nil && slices.Contains(user.Groups, *a.ScopeID)
	}
	return false
}

func (Assignment) TableName() string {
	return "assignments"
}
