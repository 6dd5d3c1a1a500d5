package events

import (
	"time"

	"github.com/SAP-F-2025/quiro-companion/internal/models"
	"github.com/google/uuid"
)

// EventType represents the kinds of session events
type EventType string

const (
	EventSessionCreated EventType = "session.created"
	EventStateChanged   EventType = "session.state_changed"
	EventTimerTick      EventType = "session.timer_tick"
	EventAdvanceFailed  EventType = "session.advance_failed"
	EventSessionClosed  EventType = "session.closed"
)

const (
	EventSource          = "quiro-companion"
	EventVersion         = "1.0"
	DefaultSessionsTopic = "quiro.session-events"
)

// SessionEvent is the envelope for everything a session reports
type SessionEvent struct {
	ID        string                 `json:"id"`
	Type      EventType              `json:"type"`
	SessionID string                 `json:"session_id"`
	Timestamp time.Time              `json:"timestamp"`
	Source    string                 `json:"source"`
	Version   string                 `json:"version"`
	Data      *models.SessionView    `json:"data,omitempty"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
}

// NewSessionEvent stamps a new event for the given session snapshot
func NewSessionEvent(eventType EventType, view models.SessionView) *SessionEvent {
	return &SessionEvent{
		ID:        uuid.NewString(),
		Type:      eventType,
		SessionID: view.SessionID,
		Timestamp: time.Now().UTC(),
		Source:    EventSource,
		Version:   EventVersion,
		Data:      &view,
	}
}

// WithMetadata attaches a metadata entry and returns the event
func (e *SessionEvent) WithMetadata(key string, value interface{}) *SessionEvent {
	if e.Metadata == nil {
		e.Metadata = make(map[string]interface{})
	}
	e.Metadata[key] = value
	return e
}
