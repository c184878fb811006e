package services

import (
	"errors"
	"fmt"
)

// Error kinds. Handlers map these to status codes with errors.Is.
var (
	ErrNotFound   = errors.New("not found")
	ErrConflict   = errors.New("conflict")
	ErrValidation = errors.New("validation failed")
)

// Not found
var (
	ErrSessionNotFound      = fmt.Errorf("session %w", ErrNotFound)
	ErrAssignmentNotFound   = fmt.Errorf("assignment %w", ErrNotFound)
	ErrTemplateNotFound     = fmt.Errorf("template %w", ErrNotFound)
	ErrQuestionNotFound     = fmt.Errorf("question %w", ErrNotFound)
	ErrTopicNotFound        = fmt.Errorf("topic %w", ErrNotFound)
	ErrQuestionNotInSession = fmt.Errorf("question is not part of the session: %w", ErrNotFound)
)

// Conflicts
var (
	ErrSessionNotActive    = fmt.Errorf("session is not active: %w", ErrConflict)
	ErrSessionNotSubmitted = fmt.Errorf("session is not submitted: %w", ErrConflict)
	ErrSessionNotClosed    = fmt.Errorf("session is still running: %w", ErrConflict)
	ErrAlreadyAnswered     = fmt.Errorf("question already answered: %w", ErrConflict)
	ErrSessionExpired      = fmt.Errorf("session has expired: %w", ErrConflict)
	ErrMaxAttemptsReached  = fmt.Errorf("maximum attempts reached: %w", ErrConflict)
	ErrAssignmentClosed    = fmt.Errorf("assignment is not open: %w", ErrConflict)
	ErrSessionBusy         = fmt.Errorf("session is being modified by another request: %w", ErrConflict)
	ErrTopicExists         = fmt.Errorf("topic already exists: %w", ErrConflict)
)

// Validation
var (
	ErrInvalidCriteria     = fmt.Errorf("invalid selection criteria: %w", ErrValidation)
	ErrInvalidQuestionData = fmt.Errorf("invalid question data: %w", ErrValidation)
)

// ErrNoEligibleQuestions is returned when a template selects nothing
var ErrNoEligibleQuestions = errors.New("no eligible questions for template")

// PermissionError reports a role or ownership check that failed
type PermissionError struct {
	UserID     string
	ResourceID uint
	Resource   string
	Action     string
	Reason     string
}

func (e *PermissionError) Error() string {
	return fmt.Sprintf("user %s cannot %s %s %d: %s", e.UserID, e.Action, e.Resource, e.ResourceID, e.Reason)
}

func NewPermissionError(userID string, resourceID uint, resource, action, reason string) *PermissionError {
	return &PermissionError{
		UserID:     userID,
		ResourceID: resourceID,
		Resource:   resource,
		Action:     action,
		Reason:     reason,
	}
}

// validationFailed keeps the field errors reachable through errors.As
func validationFailed(err error) error {
	return fmt.Errorf("%w: %w", ErrValidation, err)
}
