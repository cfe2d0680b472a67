package bot

// Zoom web client entry points and controls. These are the client's DOM
// surface as of the UI this was written against; they are the most likely
// thing to break on a client redesign.
const (
	signinURL     = "https://zoom.us/signin"
	joinURLFormat = "https://zoom.us/wc/join/%s"

	// Login form.
	selEmailInput    = `input[type="text"]`
	selNextButton    = `#signin_btn_next`
	selPasswordInput = `input[type="password"]`
	selLoginButton   = `#js_btn_login`
	// Appearing anywhere in the URL means the dashboard loaded.
	loginURLMarker = "/myhome"
	// Present when the client rejects the credentials.
	selLoginError = `#error_message, .error-message`

	// Meeting page.
	selPasscodeInput = `input[type="password"]`
	selPasscodeJoin  = `button[type="submit"]`
	selMeetingMarker = `button[aria-label*="mute"]`
	selMuteMic       = `button[aria-label="mute my microphone"]`
	selUnmuteMic     = `button[aria-label="unmute my microphone"]`
	selStartVideo    = `button[aria-label="start my video"]`
	selStopVideo     = `button[aria-label="stop my video"]`
	selLeave         = `button[aria-label="Leave"]`
	selLeaveConfirm  = `button.leave-meeting-options__btn--danger`
)
