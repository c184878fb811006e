package events

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWatermillPublisher_PublishesJSONEnvelope(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	channel := gochannel.NewGoChannel(gochannel.Config{OutputChannelBuffer: 1}, watermill.NewSlogLogger(logger))
	defer channel.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	messages, err := channel.Subscribe(ctx, "sessions")
	require.NoError(t, err)

	publisher := NewWatermillPublisher(channel, "sessions", logger)
	event := NewEvent(SessionStarted, SessionEventData{SessionID: 7, UserID: "u1", AssignmentID: 3, AttemptNumber: 1})
	require.NoError(t, publisher.Publish(ctx, event))

	select {
	case msg := <-messages:
		msg.Ack()
		assert.Equal(t, event.ID, msg.UUID)
		assert.Equal(t, string(SessionStarted), msg.Metadata.Get("event_type"))
		assert.Equal(t, EventSource, msg.Metadata.Get("source"))

		var decoded struct {
			Type    EventType        `json:"type"`
			Version string           `json:"version"`
			Data    SessionEventData `json:"data"`
		}
		require.NoError(t, json.Unmarshal(msg.Payload, &decoded))
		assert.Equal(t, SessionStarted, decoded.Type)
		assert.Equal(t, EventVersion, decoded.Version)
		assert.Equal(t, uint(7), decoded.Data.SessionID)
		assert.Equal(t, "u1", decoded.Data.UserID)
	case <-ctx.Done():
		t.Fatal("timed out waiting for event")
	}
}

func TestNewEventPublisher_FallsBackToChannel(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	publisher, err := NewEventPublisher(PublisherConfig{Topic: "sessions"}, logger)
	require.NoError(t, err)
	defer publisher.Close()

	// No subscriber: the channel drops the message without error
	assert.NoError(t, publisher.Publish(context.Background(), NewEvent(SessionFinished, nil)))
}

func TestMockEventPublisher(t *testing.T) {
	mock := NewMockEventPublisher(nil)
	ctx := context.Background()

	_ = mock.Publish(ctx, NewEvent(SessionStarted, nil))
	_ = mock.Publish(ctx, NewEvent(AnswerRecorded, nil))
	_ = mock.Publish(ctx, NewEvent(AnswerRecorded, nil))

	assert.Len(t, mock.GetPublishedEvents(), 3)
	assert.Len(t, mock.EventsOfType(AnswerRecorded), 2)

	mock.ClearEvents()
	assert.Empty(t, mock.GetPublishedEvents())
}
