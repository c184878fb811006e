package models

import "time"

// GroupStat is one row of a summary breakdown.
type GroupStat struct {
	Key             string  `json:"key"`
	Correct         int     `json:"correct"`
	Total           int     `json:"total"`
	AccuracyPercent float64 `json:"accuracy_percent"`
}

type Summary struct {
	SessionID     uint          `json:"session_id"`
	UserID        string        `json:"user_id"`
	AssignmentID  uint          `json:"assignment_id"`
	Status        SessionStatus `json:"status"`
	AttemptNumber int           `json:"attempt_number"`

	TotalItems     int     `json:"total_items"`
	AnsweredCount  int     `json:"answered_count"`
	CorrectCount   int     `json:"correct_count"`
	IncorrectCount int     `json:"incorrect_count"`
	TotalScore     float64 `json:"total_score"`
	TotalTimeSec   float64 `json:"total_time_sec"`

	StartedAt   time.Time  `json:"started_at"`
	SubmittedAt *time.Time `json:"submitted_at,omitempty"`
	FinishedAt  *time.Time `json:"finished_at,omitempty"`

	ByTopic []GroupStat `json:"by_topic"`
	ByType  []GroupStat `json:"by_type"`
	ByLevel []GroupStat `json:"by_level"`
}
