package models

import (
	"time"

	"gorm.io/datatypes"
)

type SessionStatus string

const (
	SessionNotStarted SessionStatus = "not_started"
	SessionActive     SessionStatus = "active"
	SessionSubmitted  SessionStatus = "submitted"
	SessionCompleted  SessionStatus = "completed"
)

const (
	EndReasonSubmitted = "submitted"
	EndReasonFinished  = "finished"
	EndReasonExpired   = "expired"
	EndReasonAbandoned = "abandoned"
)

func (s SessionStatus) rank() int {
	switch s {
	case SessionNotStarted:
		return 0
	case SessionActive:
		return 1
	case SessionSubmitted:
		return 2
	case SessionCompleted:
		return 3
	}
	return -1
}

func (s SessionStatus) IsValid() bool {
	return s.rank() >= 0
}

// CanTransitionTo allows strictly forward moves only.
func (s SessionStatus) CanTransitionTo(next SessionStatus) bool {
	return s.IsValid() && next.IsValid() && next.rank() > s.rank()
}

// IsClosed reports whether the session no longer accepts answers.
func (s SessionStatus) IsClosed() bool {
	return s == SessionSubmitted || s == SessionCompleted
}

type Session struct {
	ID           uint          `json:"id" gorm:"primaryKey"`
	UserID       string        `json:"user_id" gorm:"not null;size:255;index;uniqueIndex:idx_sessions_one_active,where:status = 'active'"`
	AssignmentID uint          `json:"assignment_id" gorm:"not null;index;uniqueIndex:idx_sessions_one_active"`
	Kind         TemplateKind  `json:"kind" gorm:"not null;size:20"`
	Status       SessionStatus `json:"status" gorm:"not null;size:20;index"`

	// Attempt ordinal, 1 for the first session of a user on an assignment
	NumberAttempts int   `json:"number_attempts" gorm:"not null"`
	RetakeOfID     *uint `json:"retake_of_id" gorm:"index"`

	// Frozen selection
	TotalItems  int                       `json:"total_items" gorm:"not null"`
	QuestionIDs datatypes.JSONSlice[uint] `json:"question_ids"`

	// Progress
	CurrentQuestionIndex int     `json:"current_question_index" gorm:"not null"`
	CorrectCount         int     `json:"correct_count" gorm:"not null"`
	IncorrectCount       int     `json:"incorrect_count" gorm:"not null"`
	TotalScore           float64 `json:"total_score" gorm:"not null"`
	TotalTimeMs          int64   `json:"total_time_ms" gorm:"not null"`

	// Timing
	StartedAt   time.Time  `json:"started_at" gorm:"not null"`
	SubmittedAt *time.Time `json:"submitted_at"`
	FinishedAt  *time.Time `json:"finished_at"`
	ExpiresAt   *time.Time `json:"expires_at" gorm:"index"`
	EndReason   *string    `json:"end_reason" gorm:"size:50"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Relations
	Answers []Answer `json:"answers,omitempty" gorm:"foreignKey:SessionID;constraint:OnDelete:CASCADE"`
}

// PositionOf returns the index of the question in the frozen selection, or -1.
func (s *Session) PositionOf(questionID uint) int {
	for i, id := range s.QuestionIDs {
		if id == questionID {
			return i
		}
	}
	return -1
}

func (s *Session) IsExpired(now time.Time) bool {
	return s.ExpiresAt != nil && !now.Before(*s.ExpiresAt)
}

type Answer struct {
	ID         uint         `json:"id" gorm:"primaryKey"`
	SessionID  uint         `json:"session_id" gorm:"not null;uniqueIndex:idx_answers_session_question"`
	QuestionID uint         `json:"question_id" gorm:"not null;index;uniqueIndex:idx_answers_session_question"`
	Type       QuestionType `json:"type" gorm:"not null;size:20"`

	// Submission
	SelectedOptionIDs datatypes.JSONSlice[uint] `json:"selected_option_ids,omitempty"`
	Text              *string                   `json:"text,omitempty" gorm:"type:text"`

	// Verdict
	IsCorrect    bool     `json:"is_correct" gorm:"not null"`
	MatchPercent *float64 `json:"match_percent,omitempty"`

	TimeMs     int64     `json:"time_ms" gorm:"not null"`
	AnsweredAt time.Time `json:"answered_at" gorm:"not null"`
	CreatedAt  time.Time `json:"created_at"`
}

func (Session) TableName() string {
	return "sessions"
}

func (Answer) TableName() string {
	return "session_answers"
}
