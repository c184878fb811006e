package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/techprep/session-service/internal/events"
	"github.com/techprep/session-service/internal/models"
)

func TestRetakeService_Retake(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	questions := h.seedSingles(t, 2)
	source := h.start(t, h.practiceAssignment(t).ID, learnerID)

	_, err := h.retakes.Retake(ctx, source.ID, learnerID)
	assert.ErrorIs(t, err, ErrSessionNotSubmitted)

	_, err = h.sessions.SubmitAnswer(ctx, source.ID, learnerID, correctAnswer(questions[0]))
	require.NoError(t, err)
	_, err = h.sessions.Submit(ctx, source.ID, learnerID)
	require.NoError(t, err)

	resp, err := h.retakes.Retake(ctx, source.ID, learnerID)
	require.NoError(t, err)
	assert.False(t, resp.Resumed)

	retake := resp.Session
	assert.NotEqual(t, source.ID, retake.ID)
	assert.Equal(t, 2, retake.NumberAttempts)
	require.NotNil(t, retake.RetakeOfID)
	assert.Equal(t, source.ID, *retake.RetakeOfID)
	assert.Equal(t, models.SessionActive, retake.Status)
	assert.Equal(t, 0, retake.CorrectCount)

	// the retake answers the same question independently
	_, err = h.sessions.SubmitAnswer(ctx, retake.ID, learnerID, wrongAnswer(questions[0]))
	require.NoError(t, err)

	original, err := h.sessions.GetSummary(ctx, source.ID, learnerID)
	require.NoError(t, err)
	assert.Equal(t, 1, original.CorrectCount)
	assert.Equal(t, models.SessionSubmitted, original.Status)

	assert.Len(t, h.publisher.EventsOfType(events.SessionRetaken), 1)

	// a retake while the new attempt is active resumes it
	again, err := h.retakes.Retake(ctx, source.ID, learnerID)
	require.NoError(t, err)
	assert.True(t, again.Resumed)
	assert.Equal(t, retake.ID, again.Session.ID)
}

func TestRetakeService_Rules(t *testing.T) {
	ctx := context.Background()

	t.Run("not the owner", func(t *testing.T) {
		h := newHarness(t)
		h.seedSingles(t, 1)
		source := h.start(t, h.practiceAssignment(t).ID, learnerID)
		_, err := h.sessions.Submit(ctx, source.ID, learnerID)
		require.NoError(t, err)

		_, err = h.retakes.Retake(ctx, source.ID, otherLearner)
		assert.ErrorIs(t, err, ErrSessionNotFound)
	})

	t.Run("attempt limit", func(t *testing.T) {
		h := newHarness(t)
		h.seedSingles(t, 1)
		assignment := h.practiceAssignment(t)
		require.NoError(t, h.db.Model(assignment).Update("max_attempts", 1).Error)

		source := h.start(t, assignment.ID, learnerID)
		_, err := h.sessions.Submit(ctx, source.ID, learnerID)
		require.NoError(t, err)

		_, err = h.retakes.Retake(ctx, source.ID, learnerID)
		assert.ErrorIs(t, err, ErrMaxAttemptsReached)
	})

	t.Run("retaking an older attempt continues numbering", func(t *testing.T) {
		h := newHarness(t)
		h.seedSingles(t, 1)
		assignment := h.practiceAssignment(t)

		first := h.start(t, assignment.ID, learnerID)
		_, err := h.sessions.Submit(ctx, first.ID, learnerID)
		require.NoError(t, err)

		second, err := h.retakes.Retake(ctx, first.ID, learnerID)
		require.NoError(t, err)
		_, err = h.sessions.Submit(ctx, second.Session.ID, learnerID)
		require.NoError(t, err)

		third, err := h.retakes.Retake(ctx, first.ID, learnerID)
		require.NoError(t, err)
		assert.Equal(t, 3, third.Session.NumberAttempts)
	})
}

func TestNextAttemptNumber(t *testing.T) {
	assert.Equal(t, 1, nextAttemptNumber(0, nil))
	assert.Equal(t, 4, nextAttemptNumber(3, nil))
	assert.Equal(t, 4, nextAttemptNumber(3, &models.Session{NumberAttempts: 1}))
	assert.Equal(t, 6, nextAttemptNumber(2, &models.Session{NumberAttempts: 5}))
}
