package bot

import (
	"errors"
	"fmt"

	"github.com/allanbts17/zoom-meeting-bot/pkg/models"
)

var (
	// ErrDriverUnavailable means the browser process could not start.
	ErrDriverUnavailable = errors.New("browser driver unavailable")

	// ErrAuthenticationTimeout means no post-login marker appeared in time.
	ErrAuthenticationTimeout = errors.New("authentication timed out")

	// ErrAuthenticationRejected means the client surfaced a login error.
	ErrAuthenticationRejected = errors.New("authentication rejected")

	// ErrJoinTimeout means the in-meeting marker never appeared.
	ErrJoinTimeout = errors.New("join timed out")

	// ErrNotInMeeting is returned by ActivateStream when the session is not
	// in a meeting or no verified asset is staged.
	ErrNotInMeeting = errors.New("not in a meeting with a verified asset")

	// ErrVerificationFailed means the converted file probed with
	// non-positive dimensions.
	ErrVerificationFailed = errors.New("converted video failed verification")
)

// PreconditionError reports an operation invoked in the wrong session state.
type PreconditionError struct {
	Op       string
	Required []models.SessionState
	Current  models.SessionState
}

func (e *PreconditionError) Error() string {
	return fmt.Sprintf("%s requires state %v, session is %s", e.Op, e.Required, e.Current)
}

// InjectionError wraps the reason the in-page protocol reported.
type InjectionError struct {
	Reason string
}

func (e *InjectionError) Error() string {
	return fmt.Sprintf("stream injection failed: %s", e.Reason)
}
