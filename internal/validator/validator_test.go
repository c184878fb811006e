package validator

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/techprep/session-service/internal/models"
)

func fieldsOf(t *testing.T, err error) []string {
	t.Helper()

	var errs ValidationErrors
	require.True(t, errors.As(err, &errs), "expected ValidationErrors, got %v", err)
	fields := make([]string, 0, len(errs))
	for _, e := range errs {
		fields = append(fields, e.Field)
	}
	return fields
}

func TestValidateQuestionCreate(t *testing.T) {
	v := New()

	tests := []struct {
		name       string
		req        QuestionCreateRequest
		wantFields []string
	}{
		{
			name: "valid single choice",
			req: QuestionCreateRequest{
				Body: "2+2?", Type: models.SingleChoice, Level: models.LevelBasic, TopicID: 1,
				Options: []OptionRequest{{Text: "4", IsCorrect: true}, {Text: "5"}},
			},
		},
		{
			name: "valid written",
			req: QuestionCreateRequest{
				Body: "Capital of France?", Type: models.Written, Level: models.LevelIntermediate, TopicID: 1,
				OfficialAnswer: "Paris",
			},
		},
		{
			name: "unknown level is rejected",
			req: QuestionCreateRequest{
				Body: "x", Type: models.Written, Level: "expert", TopicID: 1, OfficialAnswer: "y",
			},
			wantFields: []string{"level"},
		},
		{
			name: "unknown type is rejected",
			req: QuestionCreateRequest{
				Body: "x", Type: "essay", Level: models.LevelBasic, TopicID: 1,
			},
			wantFields: []string{"type"},
		},
		{
			name: "single choice with two correct options",
			req: QuestionCreateRequest{
				Body: "x", Type: models.SingleChoice, Level: models.LevelBasic, TopicID: 1,
				Options: []OptionRequest{{Text: "a", IsCorrect: true}, {Text: "b", IsCorrect: true}},
			},
			wantFields: []string{"options"},
		},
		{
			name: "multi choice without correct option",
			req: QuestionCreateRequest{
				Body: "x", Type: models.MultiChoice, Level: models.LevelBasic, TopicID: 1,
				Options: []OptionRequest{{Text: "a"}, {Text: "b"}},
			},
			wantFields: []string{"options"},
		},
		{
			name: "written without official answer",
			req: QuestionCreateRequest{
				Body: "x", Type: models.Written, Level: models.LevelBasic, TopicID: 1,
			},
			wantFields: []string{"official_answer"},
		},
		{
			name:       "missing body and topic",
			req:        QuestionCreateRequest{Type: models.Written, Level: models.LevelBasic, OfficialAnswer: "y"},
			wantFields: []string{"body", "topic_id"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.ValidateQuestionCreate(&tt.req)
			if len(tt.wantFields) == 0 {
				assert.NoError(t, err)
				return
			}
			assert.ElementsMatch(t, tt.wantFields, fieldsOf(t, err))
		})
	}
}

func TestValidateTemplateCreate(t *testing.T) {
	v := New()
	threshold := 0.0

	valid := TemplateCreateRequest{
		Name: "Go basics",
		Kind: models.KindPractice,
		Criteria: SelectionCriteriaRequest{
			TopicIDs:   []uint{1, 2},
			Levels:     []models.DifficultyLevel{models.LevelBasic},
			TypeCounts: map[models.QuestionType]int{models.SingleChoice: 3},
		},
	}
	assert.NoError(t, v.ValidateTemplateCreate(&valid))

	badLevel := valid
	badLevel.Criteria.Levels = []models.DifficultyLevel{"expert"}
	assert.Contains(t, fieldsOf(t, v.ValidateTemplateCreate(&badLevel)), "criteria.levels[0]")

	badType := valid
	badType.Criteria.TypeCounts = map[models.QuestionType]int{"essay": 1}
	assert.NotEmpty(t, fieldsOf(t, v.ValidateTemplateCreate(&badType)))

	badThreshold := valid
	badThreshold.Policy.WrittenMatchThreshold = &threshold
	assert.Contains(t, fieldsOf(t, v.ValidateTemplateCreate(&badThreshold)), "policy.written_match_threshold")

	interview := valid
	interview.Kind = models.KindInterview
	assert.Contains(t, fieldsOf(t, v.ValidateTemplateCreate(&interview)), "policy.time_limit_minutes")

	duplicated := valid
	duplicated.Criteria.TopicIDs = []uint{3, 3}
	assert.Contains(t, fieldsOf(t, v.ValidateTemplateCreate(&duplicated)), "criteria.topic_ids[1]")
}

func TestValidateAssignmentCreate(t *testing.T) {
	v := New()
	now := time.Now()
	later := now.Add(time.Hour)
	group := "backend"

	assert.NoError(t, v.ValidateAssignmentCreate(&AssignmentCreateRequest{
		TemplateID: 1, Title: "Week 1", Visibility: models.VisibilityPublic,
	}))
	assert.NoError(t, v.ValidateAssignmentCreate(&AssignmentCreateRequest{
		TemplateID: 1, Title: "Week 1", Visibility: models.VisibilityGroup, ScopeID: &group,
		OpensAt: &now, ClosesAt: &later,
	}))

	assert.Contains(t, fieldsOf(t, v.ValidateAssignmentCreate(&AssignmentCreateRequest{
		TemplateID: 1, Title: "Week 1", Visibility: models.VisibilityGroup,
	})), "scope_id")

	assert.Contains(t, fieldsOf(t, v.ValidateAssignmentCreate(&AssignmentCreateRequest{
		TemplateID: 1, Title: "Week 1", Visibility: models.VisibilityPublic, OpensAt: &later, ClosesAt: &now,
	})), "closes_at")

	assert.Contains(t, fieldsOf(t, v.ValidateAssignmentCreate(&AssignmentCreateRequest{
		TemplateID: 1, Title: "Week 1", Visibility: "everyone",
	})), "visibility")
}

func TestValidationErrors_Error(t *testing.T) {
	errs := ValidationErrors{
		{Field: "a", Message: "is required"},
		{Field: "b", Message: "must be at most 3"},
	}
	assert.Equal(t, "a: is required; b: must be at most 3", errs.Error())
}
