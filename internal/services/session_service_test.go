package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/techprep/session-service/internal/cache"
	"github.com/techprep/session-service/internal/events"
	"github.com/techprep/session-service/internal/models"
	"github.com/techprep/session-service/internal/repositories"
	"github.com/techprep/session-service/internal/testutil"
)

func TestSessionService_PracticeRoundTrip(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	questions := h.seedSingles(t, 3)
	assignment := h.practiceAssignment(t)

	session := h.start(t, assignment.ID, learnerID)
	assert.Equal(t, models.SessionActive, session.Status)
	assert.Equal(t, 3, session.TotalItems)
	assert.Equal(t, 1, session.NumberAttempts)
	assert.Nil(t, session.ExpiresAt)
	assert.Equal(t, []uint{questions[0].ID, questions[1].ID, questions[2].ID}, []uint(session.QuestionIDs))

	result, err := h.sessions.SubmitAnswer(ctx, session.ID, learnerID, correctAnswer(questions[0]))
	require.NoError(t, err)
	assert.True(t, result.IsCorrect)

	_, err = h.sessions.SubmitAnswer(ctx, session.ID, learnerID, correctAnswer(questions[1]))
	require.NoError(t, err)

	result, err = h.sessions.SubmitAnswer(ctx, session.ID, learnerID, wrongAnswer(questions[2]))
	require.NoError(t, err)
	assert.False(t, result.IsCorrect)

	summary, err := h.sessions.Submit(ctx, session.ID, learnerID)
	require.NoError(t, err)

	assert.Equal(t, models.SessionSubmitted, summary.Status)
	assert.Equal(t, 3, summary.TotalItems)
	assert.Equal(t, 3, summary.AnsweredCount)
	assert.Equal(t, 2, summary.CorrectCount)
	assert.Equal(t, 1, summary.IncorrectCount)
	assert.Equal(t, 66.67, summary.TotalScore)
	assert.Equal(t, 3.5, summary.TotalTimeSec)
	require.Len(t, summary.ByType, 1)
	assert.Equal(t, models.GroupStat{Key: "single", Correct: 2, Total: 3, AccuracyPercent: 66.67}, summary.ByType[0])
	require.Len(t, summary.ByLevel, 1)
	assert.Equal(t, "basic", summary.ByLevel[0].Key)
	require.NotNil(t, summary.SubmittedAt)

	stored, err := h.sessions.GetSession(ctx, session.ID, learnerID)
	require.NoError(t, err)
	assert.Equal(t, 2, stored.CorrectCount)
	assert.Equal(t, 1, stored.IncorrectCount)
	assert.Equal(t, 3, stored.CurrentQuestionIndex)
	assert.Equal(t, int64(3500), stored.TotalTimeMs)

	assert.Len(t, h.publisher.EventsOfType(events.SessionStarted), 1)
	assert.Len(t, h.publisher.EventsOfType(events.AnswerRecorded), 3)
	assert.Len(t, h.publisher.EventsOfType(events.SessionSubmitted), 1)
}

func TestSessionService_SubmitIsIdempotent(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	questions := h.seedSingles(t, 2)
	session := h.start(t, h.practiceAssignment(t).ID, learnerID)

	_, err := h.sessions.SubmitAnswer(ctx, session.ID, learnerID, correctAnswer(questions[0]))
	require.NoError(t, err)

	first, err := h.sessions.Submit(ctx, session.ID, learnerID)
	require.NoError(t, err)
	second, err := h.sessions.Submit(ctx, session.ID, learnerID)
	require.NoError(t, err)

	assert.Equal(t, first.CorrectCount, second.CorrectCount)
	assert.Equal(t, first.TotalScore, second.TotalScore)
	require.NotNil(t, second.SubmittedAt)
	assert.True(t, first.SubmittedAt.Equal(*second.SubmittedAt))
	assert.Len(t, h.publisher.EventsOfType(events.SessionSubmitted), 1)
}

func TestSessionService_StartResumesActiveSession(t *testing.T) {
	h := newHarness(t)
	h.seedSingles(t, 2)
	assignment := h.practiceAssignment(t)

	first := h.start(t, assignment.ID, learnerID)

	resp, err := h.sessions.Start(context.Background(), &StartSessionRequest{AssignmentID: assignment.ID}, learnerID)
	require.NoError(t, err)
	assert.True(t, resp.Resumed)
	assert.Equal(t, first.ID, resp.Session.ID)
	assert.Len(t, h.publisher.EventsOfType(events.SessionStarted), 1)

	// another learner gets their own session
	other := h.start(t, assignment.ID, otherLearner)
	assert.NotEqual(t, first.ID, other.ID)
}

func TestSessionService_AnswerErrors(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	questions := h.seedSingles(t, 2)
	session := h.start(t, h.practiceAssignment(t).ID, learnerID)

	_, err := h.sessions.SubmitAnswer(ctx, session.ID, learnerID, correctAnswer(questions[0]))
	require.NoError(t, err)

	t.Run("second answer to the same question", func(t *testing.T) {
		_, err := h.sessions.SubmitAnswer(ctx, session.ID, learnerID, wrongAnswer(questions[0]))
		assert.ErrorIs(t, err, ErrAlreadyAnswered)
	})

	t.Run("question outside the selection", func(t *testing.T) {
		_, err := h.sessions.SubmitAnswer(ctx, session.ID, learnerID, &SubmitAnswerRequest{QuestionID: 9999})
		assert.ErrorIs(t, err, ErrQuestionNotInSession)
	})

	t.Run("someone else's session", func(t *testing.T) {
		_, err := h.sessions.SubmitAnswer(ctx, session.ID, otherLearner, correctAnswer(questions[1]))
		assert.ErrorIs(t, err, ErrSessionNotFound)
	})

	t.Run("unknown session", func(t *testing.T) {
		_, err := h.sessions.SubmitAnswer(ctx, 424242, learnerID, correctAnswer(questions[1]))
		assert.ErrorIs(t, err, ErrSessionNotFound)
	})

	t.Run("missing question id", func(t *testing.T) {
		_, err := h.sessions.SubmitAnswer(ctx, session.ID, learnerID, &SubmitAnswerRequest{})
		assert.ErrorIs(t, err, ErrValidation)
	})

	t.Run("after submit", func(t *testing.T) {
		_, err := h.sessions.Submit(ctx, session.ID, learnerID)
		require.NoError(t, err)

		_, err = h.sessions.SubmitAnswer(ctx, session.ID, learnerID, correctAnswer(questions[1]))
		assert.ErrorIs(t, err, ErrSessionNotActive)
	})

	answers, err := h.repo.Answer().ListBySession(ctx, h.db, session.ID)
	require.NoError(t, err)
	assert.Len(t, answers, 1)
}

func TestSessionService_SubmitAnswers(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	questions := h.seedSingles(t, 3)
	session := h.start(t, h.practiceAssignment(t).ID, learnerID)

	result, err := h.sessions.SubmitAnswers(ctx, session.ID, learnerID, &SubmitAnswersRequest{
		Answers: []SubmitAnswerRequest{
			*correctAnswer(questions[0]),
			*wrongAnswer(questions[0]),
			{QuestionID: 9999},
			*wrongAnswer(questions[2]),
		},
	})
	require.NoError(t, err)

	assert.Equal(t, 2, result.Accepted)
	assert.Equal(t, 2, result.Rejected)
	require.Len(t, result.Items, 4)
	assert.True(t, result.Items[0].Result.IsCorrect)
	assert.Contains(t, result.Items[1].Error, "already answered")
	assert.NotEmpty(t, result.Items[2].Error)
	assert.False(t, result.Items[3].Result.IsCorrect)

	stored, err := h.sessions.GetSession(ctx, session.ID, learnerID)
	require.NoError(t, err)
	assert.Equal(t, 1, stored.CorrectCount)
	assert.Equal(t, 1, stored.IncorrectCount)
	assert.Equal(t, 3, stored.CurrentQuestionIndex)
}

func TestSessionService_RunnerState(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	questions := h.seedSingles(t, 3)
	session := h.start(t, h.practiceAssignment(t).ID, learnerID)

	_, err := h.sessions.SubmitAnswer(ctx, session.ID, learnerID, correctAnswer(questions[0]))
	require.NoError(t, err)

	state, err := h.sessions.GetRunnerState(ctx, session.ID, learnerID)
	require.NoError(t, err)

	assert.Equal(t, 1, state.CurrentIndex)
	assert.Equal(t, 3, state.TotalItems)
	assert.Equal(t, []uint{questions[0].ID}, state.AnsweredQuestionIDs)
	require.Len(t, state.Questions, 3)
	assert.True(t, state.Questions[0].Answered)
	assert.False(t, state.Questions[1].Answered)
	assert.Equal(t, 2, state.Questions[2].Position)
	assert.Len(t, state.Questions[1].Options, 3)

	_, err = h.sessions.GetRunnerState(ctx, session.ID, otherLearner)
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestSessionService_TimeLimit(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	questions := h.seedSingles(t, 2)
	assignment := testutil.SeedAssignment(t, h.db, models.KindInterview, models.SelectionCriteria{}, models.SessionPolicy{TimeLimitMinutes: 30})

	session := h.start(t, assignment.ID, learnerID)
	require.NotNil(t, session.ExpiresAt)
	assert.Equal(t, h.clock.Now().Add(30*time.Minute), session.ExpiresAt.UTC())

	_, err := h.sessions.SubmitAnswer(ctx, session.ID, learnerID, correctAnswer(questions[0]))
	require.NoError(t, err)

	h.clock.Advance(31 * time.Minute)

	_, err = h.sessions.SubmitAnswer(ctx, session.ID, learnerID, correctAnswer(questions[1]))
	assert.ErrorIs(t, err, ErrSessionExpired)

	stored, err := h.sessions.GetSession(ctx, session.ID, learnerID)
	require.NoError(t, err)
	assert.Equal(t, models.SessionCompleted, stored.Status)
	require.NotNil(t, stored.EndReason)
	assert.Equal(t, models.EndReasonExpired, *stored.EndReason)
	assert.Equal(t, 1, stored.CorrectCount)
	assert.Len(t, h.publisher.EventsOfType(events.SessionExpired), 1)
}

func TestSessionService_SubmitAfterDeadlineExpires(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.seedSingles(t, 1)
	assignment := testutil.SeedAssignment(t, h.db, models.KindInterview, models.SelectionCriteria{}, models.SessionPolicy{TimeLimitMinutes: 5})
	session := h.start(t, assignment.ID, learnerID)

	h.clock.Advance(10 * time.Minute)

	summary, err := h.sessions.Submit(ctx, session.ID, learnerID)
	require.NoError(t, err)
	assert.Equal(t, models.SessionCompleted, summary.Status)
	assert.Equal(t, 0, summary.AnsweredCount)
	assert.Empty(t, h.publisher.EventsOfType(events.SessionSubmitted))
}

func TestSessionService_Finish(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	questions := h.seedSingles(t, 2)
	session := h.start(t, h.practiceAssignment(t).ID, learnerID)

	_, err := h.sessions.Finish(ctx, session.ID, learnerID, "bored")
	assert.ErrorIs(t, err, ErrValidation)

	_, err = h.sessions.SubmitAnswer(ctx, session.ID, learnerID, wrongAnswer(questions[0]))
	require.NoError(t, err)

	summary, err := h.sessions.Finish(ctx, session.ID, learnerID, "")
	require.NoError(t, err)
	assert.Equal(t, models.SessionCompleted, summary.Status)
	assert.NotNil(t, summary.FinishedAt)
	assert.NotNil(t, summary.SubmittedAt)
	assert.Equal(t, 1, summary.IncorrectCount)

	// finishing again keeps the first result
	again, err := h.sessions.Finish(ctx, session.ID, learnerID, models.EndReasonAbandoned)
	require.NoError(t, err)
	require.NotNil(t, again.FinishedAt)
	assert.True(t, summary.FinishedAt.Equal(*again.FinishedAt))

	stored, err := h.sessions.GetSession(ctx, session.ID, learnerID)
	require.NoError(t, err)
	assert.Equal(t, models.EndReasonFinished, *stored.EndReason)
	assert.Len(t, h.publisher.EventsOfType(events.SessionFinished), 1)
}

func TestSessionService_StartRules(t *testing.T) {
	ctx := context.Background()

	t.Run("unknown assignment", func(t *testing.T) {
		h := newHarness(t)
		_, err := h.sessions.Start(ctx, &StartSessionRequest{AssignmentID: 77}, learnerID)
		assert.ErrorIs(t, err, ErrAssignmentNotFound)
	})

	t.Run("closed window", func(t *testing.T) {
		h := newHarness(t)
		h.seedSingles(t, 1)
		assignment := h.practiceAssignment(t)
		closed := h.clock.Now().Add(-time.Hour)
		require.NoError(t, h.db.Model(assignment).Update("closes_at", closed).Error)

		_, err := h.sessions.Start(ctx, &StartSessionRequest{AssignmentID: assignment.ID}, learnerID)
		assert.ErrorIs(t, err, ErrAssignmentClosed)
	})

	t.Run("no eligible questions", func(t *testing.T) {
		h := newHarness(t)
		h.seedSingles(t, 2)
		assignment := testutil.SeedAssignment(t, h.db, models.KindPractice, models.SelectionCriteria{
			Levels: []models.DifficultyLevel{models.LevelAdvanced},
		}, models.SessionPolicy{})

		_, err := h.sessions.Start(ctx, &StartSessionRequest{AssignmentID: assignment.ID}, learnerID)
		assert.ErrorIs(t, err, ErrNoEligibleQuestions)
	})

	t.Run("group assignment after membership refresh", func(t *testing.T) {
		h := newHarness(t)
		h.seedSingles(t, 1)
		assignment := h.practiceAssignment(t)
		require.NoError(t, h.db.Model(assignment).Updates(map[string]interface{}{
			"visibility": models.VisibilityGroup,
			"scope_id":   "team-a",
		}).Error)

		_, err := h.sessions.Start(ctx, &StartSessionRequest{AssignmentID: assignment.ID}, learnerID)
		assert.ErrorIs(t, err, ErrAssignmentNotFound)

		h.users.pending[learnerID] = []string{"team-a"}
		resp, err := h.sessions.Start(ctx, &StartSessionRequest{AssignmentID: assignment.ID}, learnerID)
		require.NoError(t, err)
		assert.False(t, resp.Resumed)
		assert.Equal(t, 2, h.users.refreshes)
	})
}

func TestSessionService_List(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.seedSingles(t, 1)
	assignment := h.practiceAssignment(t)

	h.start(t, assignment.ID, learnerID)
	h.start(t, assignment.ID, otherLearner)

	list, err := h.sessions.List(ctx, learnerID, repositories.SessionFilters{})
	require.NoError(t, err)
	assert.Equal(t, int64(1), list.Total)
	require.Len(t, list.Sessions, 1)
	assert.Equal(t, learnerID, list.Sessions[0].UserID)
	assert.Equal(t, 20, list.Size)
}

func TestSessionService_BusySession(t *testing.T) {
	client, _ := testutil.NewRedis(t)
	h := newHarness(t, withLockRedis(client))
	ctx := context.Background()
	questions := h.seedSingles(t, 1)
	session := h.start(t, h.practiceAssignment(t).ID, learnerID)

	locker := cache.NewSessionLocker(cache.NewCacheHelper(client, "test"), 5*time.Second)
	release, err := locker.Acquire(ctx, session.ID)
	require.NoError(t, err)

	_, err = h.sessions.SubmitAnswer(ctx, session.ID, learnerID, correctAnswer(questions[0]))
	assert.ErrorIs(t, err, ErrSessionBusy)

	release()

	_, err = h.sessions.SubmitAnswer(ctx, session.ID, learnerID, correctAnswer(questions[0]))
	assert.NoError(t, err)
}

func TestIsItemError(t *testing.T) {
	assert.True(t, isItemError(ErrAlreadyAnswered))
	assert.True(t, isItemError(validationFailed(errors.New("bad"))))
	assert.False(t, isItemError(ErrSessionNotActive))
	assert.False(t, isItemError(ErrSessionExpired))
}

func TestSessionService_ConcurrentAnswersStoreOne(t *testing.T) {
	tests := []struct {
		name    string
		writers int
	}{
		{"two writers", 2},
		{"eight writers", 8},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			ctx := context.Background()
			questions := h.seedSingles(t, 1)
			session := h.start(t, h.practiceAssignment(t).ID, learnerID)

			errs := make([]error, tt.writers)
			var g errgroup.Group
			for i := 0; i < tt.writers; i++ {
				g.Go(func() error {
					_, errs[i] = h.sessions.SubmitAnswer(ctx, session.ID, learnerID, correctAnswer(questions[0]))
					return nil
				})
			}
			require.NoError(t, g.Wait())

			accepted := 0
			for _, err := range errs {
				if err == nil {
					accepted++
					continue
				}
				assert.ErrorIs(t, err, ErrAlreadyAnswered)
			}
			assert.Equal(t, 1, accepted)

			answers, err := h.repo.Answer().ListBySession(ctx, h.db, session.ID)
			require.NoError(t, err)
			assert.Len(t, answers, 1)

			stored, err := h.sessions.GetSession(ctx, session.ID, learnerID)
			require.NoError(t, err)
			assert.Equal(t, 1, stored.CorrectCount)
			assert.Equal(t, 0, stored.IncorrectCount)
			assert.Len(t, h.publisher.EventsOfType(events.AnswerRecorded), 1)

			// the unique index holds even without the count check
			dup := &models.Answer{
				SessionID:  session.ID,
				QuestionID: questions[0].ID,
				Type:       models.SingleChoice,
				AnsweredAt: h.clock.Now(),
			}
			err = h.repo.Answer().Create(ctx, h.db, dup)
			assert.True(t, repositories.IsDuplicateKeyError(err), "got %v", err)
		})
	}
}

func TestSessionService_ConcurrentStartsShareOneSession(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	questions := h.seedSingles(t, 2)
	assignment := h.practiceAssignment(t)

	const starters = 6
	responses := make([]*StartSessionResponse, starters)
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < starters; i++ {
		g.Go(func() error {
			resp, err := h.sessions.Start(gctx, &StartSessionRequest{AssignmentID: assignment.ID}, learnerID)
			responses[i] = resp
			return err
		})
	}
	require.NoError(t, g.Wait())

	created := 0
	for _, resp := range responses {
		require.NotNil(t, resp)
		assert.Equal(t, responses[0].Session.ID, resp.Session.ID)
		if !resp.Resumed {
			created++
		}
	}
	assert.Equal(t, 1, created)

	list, err := h.sessions.List(ctx, learnerID, repositories.SessionFilters{})
	require.NoError(t, err)
	assert.Equal(t, int64(1), list.Total)
	assert.Len(t, h.publisher.EventsOfType(events.SessionStarted), 1)

	// a second active row for the pair is refused by the partial unique index
	second := newSession(learnerID, assignment, assignment.Template, questions, 2, h.clock.Now())
	err = h.repo.Session().Create(ctx, h.db, second)
	assert.True(t, repositories.IsDuplicateKeyError(err), "got %v", err)
}

func TestSessionService_SubmitAnswersStoppedBySessionError(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	questions := h.seedSingles(t, 3)
	assignment := testutil.SeedAssignment(t, h.db, models.KindInterview, models.SelectionCriteria{}, models.SessionPolicy{TimeLimitMinutes: 1})
	session := h.start(t, assignment.ID, learnerID)

	// every answer reads the clock once, so the third lands past the deadline
	h.clock.Tick(45 * time.Second)

	result, err := h.sessions.SubmitAnswers(ctx, session.ID, learnerID, &SubmitAnswersRequest{
		Answers: []SubmitAnswerRequest{
			*correctAnswer(questions[0]),
			*wrongAnswer(questions[1]),
			*correctAnswer(questions[2]),
		},
	})
	assert.ErrorIs(t, err, ErrSessionExpired)
	require.NotNil(t, result)
	assert.Equal(t, 2, result.Accepted)
	require.Len(t, result.Items, 2)
	assert.Equal(t, questions[1].ID, result.Items[1].QuestionID)
	assert.Contains(t, result.Error, "expired")

	h.clock.Tick(0)
	stored, err := h.sessions.GetSession(ctx, session.ID, learnerID)
	require.NoError(t, err)
	assert.Equal(t, models.SessionCompleted, stored.Status)
	assert.Equal(t, 1, stored.CorrectCount)
	assert.Equal(t, 1, stored.IncorrectCount)
}

func TestSessionService_SummaryTimesMatchStoredPrecision(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	questions := h.seedSingles(t, 1)
	session := h.start(t, h.practiceAssignment(t).ID, learnerID)

	_, err := h.sessions.SubmitAnswer(ctx, session.ID, learnerID, correctAnswer(questions[0]))
	require.NoError(t, err)

	h.clock.Advance(123456789 * time.Nanosecond)
	first, err := h.sessions.Submit(ctx, session.ID, learnerID)
	require.NoError(t, err)
	require.NotNil(t, first.SubmittedAt)
	assert.Equal(t, 123456000, first.SubmittedAt.Nanosecond())

	again, err := h.sessions.GetSummary(ctx, session.ID, learnerID)
	require.NoError(t, err)
	require.NotNil(t, again.SubmittedAt)
	assert.Equal(t, first.SubmittedAt.UnixNano(), again.SubmittedAt.UnixNano())

	h.clock.Advance(time.Second)
	finished, err := h.sessions.Finish(ctx, session.ID, learnerID, "")
	require.NoError(t, err)
	require.NotNil(t, finished.FinishedAt)
	assert.Equal(t, 123456000, finished.FinishedAt.Nanosecond())
	assert.Equal(t, first.SubmittedAt.UnixNano(), finished.SubmittedAt.UnixNano())
}

func TestSessionService_RejectsBackwardTransitions(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.seedSingles(t, 1)
	session := h.start(t, h.practiceAssignment(t).ID, learnerID)

	err := h.db.Model(&models.Session{}).Where("id = ?", session.ID).UpdateColumn("status", "paused").Error
	require.NoError(t, err)

	_, err = h.sessions.Submit(ctx, session.ID, learnerID)
	assert.ErrorIs(t, err, ErrSessionNotActive)

	_, err = h.sessions.Finish(ctx, session.ID, learnerID, "")
	assert.ErrorIs(t, err, ErrConflict)
	assert.Empty(t, h.publisher.EventsOfType(events.SessionFinished))
}
