package events

import (
	"context"
	"time"

	"github.com/google/uuid"
)

const (
	EventSource  = "session-service"
	EventVersion = "1.0"
)

type EventType string

const (
	SessionStarted   EventType = "session.started"
	AnswerRecorded   EventType = "answer.recorded"
	SessionSubmitted EventType = "session.submitted"
	SessionFinished  EventType = "session.finished"
	SessionRetaken   EventType = "session.retaken"
	SessionExpired   EventType = "session.expired"
)

// Event is the envelope published for every session state change
type Event struct {
	ID        string      `json:"id"`
	Type      EventType   `json:"type"`
	Source    string      `json:"source"`
	Version   string      `json:"version"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data"`
}

func NewEvent(eventType EventType, data interface{}) *Event {
	return &Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		Source:    EventSource,
		Version:   EventVersion,
		Timestamp: time.Now().UTC(),
		Data:      data,
	}
}

type SessionEventData struct {
	SessionID     uint    `json:"session_id"`
	UserID        string  `json:"user_id"`
	AssignmentID  uint    `json:"assignment_id"`
	Status        string  `json:"status"`
	AttemptNumber int     `json:"attempt_number"`
	TotalItems    int     `json:"total_items"`
	TotalScore    float64 `json:"total_score"`
	Reason        string  `json:"reason,omitempty"`
	RetakeOfID    *uint   `json:"retake_of_id,omitempty"`
}

type AnswerEventData struct {
	SessionID    uint     `json:"session_id"`
	UserID       string   `json:"user_id"`
	QuestionID   uint     `json:"question_id"`
	IsCorrect    bool     `json:"is_correct"`
	MatchPercent *float64 `json:"match_percent,omitempty"`
	TimeMs       int64    `json:"time_ms"`
}

// EventPublisher delivers events to the configured transport
type EventPublisher interface {
	Publish(ctx context.Context, event *Event) error
	Close() error
}
