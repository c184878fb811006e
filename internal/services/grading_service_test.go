package services

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/techprep/session-service/internal/models"
)

func choiceQuestion(qType models.QuestionType, correct ...bool) *models.Question {
	q := &models.Question{ID: 1, Type: qType}
	for i, ok := range correct {
		q.Options = append(q.Options, models.Option{ID: uint(10 + i), Text: "opt", IsCorrect: ok, OrderIndex: i})
	}
	return q
}

func TestEvaluateSingleChoice(t *testing.T) {
	q := choiceQuestion(models.SingleChoice, false, true, false)

	tests := []struct {
		name     string
		selected []uint
		want     bool
	}{
		{"correct option", []uint{11}, true},
		{"wrong option", []uint{10}, false},
		{"nothing selected", nil, false},
		{"two selected", []uint{11, 10}, false},
		{"unknown option", []uint{99}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, EvaluateSingleChoice(q, tt.selected))
		})
	}
}

func TestEvaluateMultiChoice(t *testing.T) {
	q := choiceQuestion(models.MultiChoice, true, false, true)

	tests := []struct {
		name     string
		selected []uint
		want     bool
	}{
		{"exact set", []uint{10, 12}, true},
		{"order does not matter", []uint{12, 10}, true},
		{"duplicates collapse", []uint{12, 10, 12}, true},
		{"partial overlap", []uint{10}, false},
		{"superset", []uint{10, 11, 12}, false},
		{"empty", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, EvaluateMultiChoice(q, tt.selected))
		})
	}
}

func TestEvaluateWritten(t *testing.T) {
	q := &models.Question{Type: models.Written, OfficialAnswer: "Paris is the capital of France"}

	tests := []struct {
		name        string
		submitted   string
		wantPercent float64
		wantCorrect bool
	}{
		{"exact after normalisation", "  PARIS is the   capital of France ", 100, true},
		{"reordered tokens", "the capital of france is paris", 100, true},
		{"single token", "Paris", 16.67, false},
		{"empty submission", "   ", 0, false},
		{"unrelated", "zzz", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, correct := EvaluateWritten(q, tt.submitted, DefaultWrittenThreshold)
			assert.InDelta(t, tt.wantPercent, got, 0.001)
			assert.Equal(t, tt.wantCorrect, correct)
		})
	}
}

func TestEvaluateWritten_MoreOfTheAnswerNeverScoresLower(t *testing.T) {
	q := &models.Question{Type: models.Written, OfficialAnswer: "Paris is the capital of France"}

	submissions := []string{
		"",
		"paris",
		"paris is",
		"paris is the capital",
		"paris is the capital of",
		"Paris is the capital of France",
	}

	previous := -1.0
	for _, text := range submissions {
		got, _ := EvaluateWritten(q, text, DefaultWrittenThreshold)
		assert.GreaterOrEqual(t, got, previous, "submission %q", text)
		previous = got
	}
	assert.Equal(t, 100.0, previous)

	// a lower threshold never turns a correct answer incorrect
	for _, text := range submissions {
		wasCorrect := false
		for _, threshold := range []float64{100, 90, 80, 60, 40, 20, 1} {
			_, correct := EvaluateWritten(q, text, threshold)
			if wasCorrect {
				assert.True(t, correct, "submission %q at threshold %v", text, threshold)
			}
			wasCorrect = correct
		}
	}
}

func TestEvaluateWritten_Typo(t *testing.T) {
	q := &models.Question{Type: models.Written, OfficialAnswer: "Paris"}

	got, correct := EvaluateWritten(q, "Pariss", 80)
	assert.InDelta(t, 83.33, got, 0.001)
	assert.True(t, correct)

	_, correct = EvaluateWritten(q, "Pariss", 90)
	assert.False(t, correct)
}

func TestLevenshteinDistance(t *testing.T) {
	assert.Equal(t, 0, levenshteinDistance("", ""))
	assert.Equal(t, 3, levenshteinDistance("", "abc"))
	assert.Equal(t, 3, levenshteinDistance("kitten", "sitting"))
	assert.Equal(t, 1, levenshteinDistance("café", "cafe"))
}

func TestGradingService_Grade(t *testing.T) {
	svc := NewGradingService(slog.Default(), 80)
	text := "Paris"
	written := &models.Question{ID: 3, Type: models.Written, OfficialAnswer: "Paris"}

	verdict, err := svc.Grade(written, Submission{Text: &text}, models.SessionPolicy{})
	require.NoError(t, err)
	assert.True(t, verdict.IsCorrect)
	require.NotNil(t, verdict.MatchPercent)
	assert.Equal(t, 100.0, *verdict.MatchPercent)

	verdict, err = svc.Grade(written, Submission{}, models.SessionPolicy{})
	require.NoError(t, err)
	assert.False(t, verdict.IsCorrect)

	single := choiceQuestion(models.SingleChoice, true, false)
	verdict, err = svc.Grade(single, Submission{SelectedOptionIDs: []uint{10}}, models.SessionPolicy{})
	require.NoError(t, err)
	assert.True(t, verdict.IsCorrect)
	assert.Nil(t, verdict.MatchPercent)

	_, err = svc.Grade(&models.Question{Type: "essay"}, Submission{}, models.SessionPolicy{})
	assert.ErrorIs(t, err, ErrValidation)
}

func TestGradingService_Threshold(t *testing.T) {
	svc := NewGradingService(slog.Default(), 70)
	assert.Equal(t, 70.0, svc.Threshold(models.SessionPolicy{}))

	override := 95.0
	assert.Equal(t, 95.0, svc.Threshold(models.SessionPolicy{WrittenMatchThreshold: &override}))

	outOfRange := 150.0
	assert.Equal(t, 70.0, svc.Threshold(models.SessionPolicy{WrittenMatchThreshold: &outOfRange}))

	assert.Equal(t, DefaultWrittenThreshold, NewGradingService(slog.Default(), 0).Threshold(models.SessionPolicy{}))
}
