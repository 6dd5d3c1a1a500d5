package models

import "time"

type SessionState string

const (
	StateIdle            SessionState = "IDLE"
	StateScanning        SessionState = "SCANNING"
	StateFetching        SessionState = "FETCHING"
	StateShowingQuestion SessionState = "DISPLAY_QUESTION"
	StateUpdating        SessionState = "UPDATING"
	StateFinished        SessionState = "FINISHED"
)

// HoldsQuestion reports whether a question must be present in this state.
func (s SessionState) HoldsQuestion() bool {
	switch s {
	case StateShowingQuestion, StateUpdating, StateFinished:
		return true
	}
	return false
}

// RequestPending reports whether the state owns an outbound backend call.
func (s SessionState) RequestPending() bool {
	return s == StateFetching || s == StateUpdating
}

type TimerPhase string

const (
	TimerCalm     TimerPhase = "calm"
	TimerWarning  TimerPhase = "warning"
	TimerCritical TimerPhase = "critical"
)

// SessionView is a point-in-time snapshot of a session, safe to serialize.
type SessionView struct {
	SessionID     string       `json:"session_id"`
	State         SessionState `json:"state"`
	Question      *Question    `json:"question,omitempty"`
	Error         string       `json:"error,omitempty"`
	TypedID       string       `json:"typed_id,omitempty"`
	ScannedID     string       `json:"scanned_id,omitempty"`
	Remaining     int          `json:"remaining_seconds,omitempty"`
	Duration      int          `json:"duration_seconds,omitempty"`
	TimerPhase    TimerPhase   `json:"timer_phase,omitempty"`
	ScannerActive bool         `json:"scanner_active"`
	Version       uint64       `json:"version"`
	UpdatedAt     time.Time    `json:"updated_at"`
}
