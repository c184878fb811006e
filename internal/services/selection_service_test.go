package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/techprep/session-service/internal/models"
	"github.com/techprep/session-service/internal/testutil"
)

func candidate(id uint, qType models.QuestionType, level models.DifficultyLevel, topicID uint, practice bool) *models.Question {
	return &models.Question{ID: id, Type: qType, Level: level, TopicID: topicID, UsableInPractice: practice}
}

func idsOf(questions []*models.Question) []uint {
	out := make([]uint, 0, len(questions))
	for _, q := range questions {
		out = append(out, q.ID)
	}
	return out
}

func intPtr(n int) *int { return &n }

func TestSelectQuestions(t *testing.T) {
	pool := []*models.Question{
		candidate(1, models.SingleChoice, models.LevelBasic, 1, true),
		candidate(2, models.MultiChoice, models.LevelIntermediate, 1, true),
		candidate(3, models.Written, models.LevelAdvanced, 2, false),
		candidate(4, models.SingleChoice, models.LevelAdvanced, 2, true),
		candidate(5, models.Written, models.LevelBasic, 1, true),
		candidate(6, models.SingleChoice, models.LevelBasic, 3, true),
	}

	tests := []struct {
		name     string
		kind     models.TemplateKind
		criteria models.SelectionCriteria
		want     []uint
	}{
		{"empty criteria in interview", models.KindInterview, models.SelectionCriteria{}, []uint{1, 2, 3, 4, 5, 6}},
		{"practice drops non-practice questions", models.KindPractice, models.SelectionCriteria{}, []uint{1, 2, 4, 5, 6}},
		{"topics", models.KindInterview, models.SelectionCriteria{TopicIDs: []uint{2, 3}}, []uint{3, 4, 6}},
		{"levels", models.KindInterview, models.SelectionCriteria{Levels: []models.DifficultyLevel{models.LevelBasic}}, []uint{1, 5, 6}},
		{
			"type counts cap each listed type",
			models.KindInterview,
			models.SelectionCriteria{TypeCounts: map[models.QuestionType]int{models.SingleChoice: 2, models.Written: 1}},
			[]uint{1, 3, 4},
		},
		{
			"zero count excludes the type",
			models.KindInterview,
			models.SelectionCriteria{TypeCounts: map[models.QuestionType]int{models.SingleChoice: 0, models.MultiChoice: 5}},
			[]uint{2},
		},
		{"max truncates", models.KindInterview, models.SelectionCriteria{MaxQuestions: intPtr(2)}, []uint{1, 2}},
		{"zero max does not restrict", models.KindInterview, models.SelectionCriteria{MaxQuestions: intPtr(0)}, []uint{1, 2, 3, 4, 5, 6}},
		{
			"filters combine",
			models.KindPractice,
			models.SelectionCriteria{TopicIDs: []uint{1, 2}, Levels: []models.DifficultyLevel{models.LevelAdvanced, models.LevelBasic}},
			[]uint{1, 4, 5},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := SelectQuestions(pool, tt.kind, tt.criteria)
			require.NoError(t, err)
			assert.Equal(t, tt.want, idsOf(got))
		})
	}
}

func TestSelectQuestions_Deterministic(t *testing.T) {
	pool := []*models.Question{
		candidate(1, models.SingleChoice, models.LevelBasic, 1, true),
		candidate(2, models.SingleChoice, models.LevelBasic, 1, true),
		candidate(3, models.SingleChoice, models.LevelBasic, 1, true),
	}
	criteria := models.SelectionCriteria{MaxQuestions: intPtr(2)}

	first, err := SelectQuestions(pool, models.KindPractice, criteria)
	require.NoError(t, err)
	second, err := SelectQuestions(pool, models.KindPractice, criteria)
	require.NoError(t, err)
	assert.Equal(t, idsOf(first), idsOf(second))
}

func TestSelectQuestions_RejectsBadData(t *testing.T) {
	_, err := SelectQuestions([]*models.Question{candidate(1, "essay", models.LevelBasic, 1, true)}, models.KindInterview, models.SelectionCriteria{})
	assert.ErrorIs(t, err, ErrInvalidQuestionData)

	_, err = SelectQuestions(nil, models.KindInterview, models.SelectionCriteria{Levels: []models.DifficultyLevel{"expert"}})
	assert.ErrorIs(t, err, ErrInvalidCriteria)
}

func TestSelectionService_PreviewSelection(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.seedSingles(t, 3)
	assignment := testutil.SeedAssignment(t, h.db, models.KindPractice, models.SelectionCriteria{MaxQuestions: intPtr(2)}, models.SessionPolicy{})

	preview, err := h.selection.PreviewSelection(ctx, assignment.TemplateID, interviewerID)
	require.NoError(t, err)
	assert.Equal(t, 2, preview.Total)
	assert.Equal(t, 2, preview.ByType[models.SingleChoice])
	assert.Equal(t, 2, preview.ByLevel[models.LevelBasic])

	_, err = h.selection.PreviewSelection(ctx, assignment.TemplateID, learnerID)
	var permErr *PermissionError
	assert.ErrorAs(t, err, &permErr)

	_, err = h.selection.PreviewSelection(ctx, 9999, interviewerID)
	assert.ErrorIs(t, err, ErrTemplateNotFound)
}
