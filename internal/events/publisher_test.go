package events

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/SAP-F-2025/quiro-companion/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

func TestChannelEventPublisher_DeliversToSubscriber(t *testing.T) {
	publisher := NewChannelEventPublisher(DefaultSessionsTopic, testLogger)
	defer publisher.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	messages, err := publisher.Subscribe(ctx)
	require.NoError(t, err)

	view := models.SessionView{SessionID: "s-1", State: models.StateScanning, Version: 3}
	event := NewSessionEvent(EventStateChanged, view).WithMetadata("from", string(models.StateIdle))
	require.NoError(t, publisher.PublishSessionEvent(ctx, event))

	select {
	case msg := <-messages:
		msg.Ack()
		assert.Equal(t, event.ID, msg.UUID)
		assert.Equal(t, "s-1", msg.Metadata.Get("session_id"))
		assert.Equal(t, string(EventStateChanged), msg.Metadata.Get("event_type"))

		decoded, err := DecodeSessionEvent(msg)
		require.NoError(t, err)
		assert.Equal(t, EventStateChanged, decoded.Type)
		assert.Equal(t, models.StateScanning, decoded.Data.State)
		assert.Equal(t, uint64(3), decoded.Data.Version)
		assert.Equal(t, "IDLE", decoded.Metadata["from"])
	case <-time.After(time.Second):
		t.Fatal("event was not delivered")
	}
}

func TestNewSessionEvent_Envelope(t *testing.T) {
	event := NewSessionEvent(EventSessionCreated, models.SessionView{SessionID: "abc"})

	assert.NotEmpty(t, event.ID)
	assert.Equal(t, "abc", event.SessionID)
	assert.Equal(t, EventSource, event.Source)
	assert.Equal(t, EventVersion, event.Version)
	assert.False(t, event.Timestamp.IsZero())
}

type failingPublisher struct{ err error }

func (f failingPublisher) PublishSessionEvent(context.Context, *SessionEvent) error { return f.err }
func (f failingPublisher) Close() error                                              { return f.err }

func TestMultiPublisher_PublishesToAllAndJoinsErrors(t *testing.T) {
	mock := NewMockEventPublisher(testLogger)
	boom := errors.New("broker down")
	multi := NewMultiPublisher(failingPublisher{err: boom}, mock)

	err := multi.PublishSessionEvent(context.Background(), NewSessionEvent(EventTimerTick, models.SessionView{SessionID: "x"}))
	assert.ErrorIs(t, err, boom)
	assert.Len(t, mock.GetPublishedEvents(), 1)

	assert.ErrorIs(t, multi.Close(), boom)
}

func TestMockEventPublisher_ClearEvents(t *testing.T) {
	mock := NewMockEventPublisher(testLogger)
	require.NoError(t, mock.PublishSessionEvent(context.Background(), NewSessionEvent(EventSessionClosed, models.SessionView{})))
	require.Len(t, mock.GetPublishedEvents(), 1)

	mock.ClearEvents()
	assert.Empty(t, mock.GetPublishedEvents())
}
