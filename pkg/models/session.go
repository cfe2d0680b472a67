package models

import "time"

// SessionState is one step of the automated participant lifecycle.
type SessionState string

const (
	StateIdle          SessionState = "IDLE"
	StateLaunched      SessionState = "LAUNCHED"
	StateAuthenticated SessionState = "AUTHENTICATED"
	StateInMeeting     SessionState = "IN_MEETING"
	StateStreaming     SessionState = "STREAMING"
	StateLeft          SessionState = "LEFT"
	StateClosed        SessionState = "CLOSED"
)

// Session is the API view of one automated participant.
type Session struct {
	ID        string       `json:"id"`
	State     SessionState `json:"state"`
	ProfileID string       `json:"profileId,omitempty"`
	StartedAt time.Time    `json:"startedAt"`
	ExpiresAt time.Time    `json:"expiresAt"`
	Asset     *MediaAsset  `json:"asset,omitempty"`
}

// MeetingHandle identifies the meeting to join. The passcode is consumed
// once while building the join flow and not retained afterwards.
type MeetingHandle struct {
	ID       string `json:"meetingId"`
	Password string `json:"password,omitempty"`
}

// StateEvent is pushed to event-stream subscribers on every transition.
type StateEvent struct {
	SessionID string       `json:"sessionId"`
	From      SessionState `json:"from"`
	To        SessionState `json:"to"`
	At        time.Time    `json:"at"`
}

// CreateSessionRequest is the payload for creating a session.
type CreateSessionRequest struct {
	ProfileID string `json:"profileId,omitempty"`
	Headless  *bool  `json:"headless,omitempty"`
	Timeout   int    `json:"timeout,omitempty"` // seconds until the session is reaped
}

// PrepareMediaRequest names the remote asset to stage.
type PrepareMediaRequest struct {
	VideoFileName string `json:"videoFileName"`
}

// ActivateStreamRequest tunes the injection step.
type ActivateStreamRequest struct {
	CaptureAudio *bool `json:"captureAudio,omitempty"`
}

// Response is the envelope every control-surface endpoint returns.
type Response struct {
	Success bool        `json:"success"`
	Message string      `json:"message,omitempty"`
	Error   string      `json:"error,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}
