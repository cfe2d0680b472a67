// Package bot drives one automated participant through the meeting client:
// launch, authenticate, join, substitute the camera feed, leave.
package bot

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/rs/zerolog"

	"github.com/allanbts17/zoom-meeting-bot/internal/inject"
	"github.com/allanbts17/zoom-meeting-bot/pkg/models"
)

const (
	loginTimeout = 30 * time.Second
	joinTimeout  = 60 * time.Second
	// settleDelay lets the synthetic stream stabilize before the client's
	// own "start video" control is pressed.
	settleDelay = 1500 * time.Millisecond
)

// Store acquires remote media to local staging.
type Store interface {
	Fetch(ctx context.Context, remoteKey string) (string, error)
}

// Transcoder normalizes and validates staged media.
type Transcoder interface {
	Normalize(ctx context.Context, inputPath string) (string, error)
	Verify(ctx context.Context, path string) bool
}

// Credentials authenticate against the meeting client.
type Credentials struct {
	Email    string
	Password string
}

// Config wires a Bot's collaborators and tuning.
type Config struct {
	Credentials  Credentials
	MediaBaseURL string
	// CaptureAudio routes the source's audio into the synthetic stream.
	CaptureAudio bool
}

// Bot is one automated participant. Operations are not safe for concurrent
// use on one Bot; the session registry serializes callers.
type Bot struct {
	cfg        Config
	store      Store
	transcoder Transcoder
	runner     Runner
	log        zerolog.Logger

	mu     sync.Mutex
	state  models.SessionState
	asset  *models.MediaAsset
	notify func(from, to models.SessionState)
}

// New creates an idle bot.
func New(cfg Config, store Store, transcoder Transcoder, runner Runner, log zerolog.Logger) *Bot {
	return &Bot{
		cfg:        cfg,
		store:      store,
		transcoder: transcoder,
		runner:     runner,
		log:        log,
		state:      models.StateIdle,
	}
}

// OnStateChange registers a transition observer. Must be set before the
// bot is driven.
func (b *Bot) OnStateChange(fn func(from, to models.SessionState)) {
	b.notify = fn
}

// State is the current lifecycle state.
func (b *Bot) State() models.SessionState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Asset is the currently staged media asset, if any.
func (b *Bot) Asset() *models.MediaAsset {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.asset
}

// InMeeting reports whether the participant is inside a meeting.
func (b *Bot) InMeeting() bool {
	s := b.State()
	return s == models.StateInMeeting || s == models.StateStreaming
}

func (b *Bot) setState(to models.SessionState) {
	b.mu.Lock()
	from := b.state
	b.state = to
	notify := b.notify
	b.mu.Unlock()

	b.log.Info().Str("from", string(from)).Str("to", string(to)).Msg("session state changed")
	if notify != nil {
		notify(from, to)
	}
}

func (b *Bot) require(op string, states ...models.SessionState) error {
	current := b.State()
	for _, s := range states {
		if current == s {
			return nil
		}
	}
	return &PreconditionError{Op: op, Required: states, Current: current}
}

// Launch starts the browser with fake-device flags and synthetic-media
// permissions. Must run before any other operation.
func (b *Bot) Launch(ctx context.Context) error {
	if err := b.require("launch", models.StateIdle); err != nil {
		return err
	}
	if err := b.runner.Launch(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrDriverUnavailable, err)
	}
	b.setState(models.StateLaunched)
	return nil
}

// Authenticate drives the client's login form and waits for the post-login
// navigation marker.
func (b *Bot) Authenticate(ctx context.Context) error {
	if err := b.require("authenticate", models.StateLaunched); err != nil {
		return err
	}

	lctx, cancel := context.WithTimeout(ctx, loginTimeout)
	defer cancel()

	b.log.Info().Str("email", b.cfg.Credentials.Email).Msg("logging in")

	err := b.runner.Run(lctx,
		chromedp.Navigate(signinURL),
		chromedp.WaitVisible(selEmailInput, chromedp.ByQuery),
		chromedp.SendKeys(selEmailInput, b.cfg.Credentials.Email, chromedp.ByQuery),
		chromedp.Click(selNextButton, chromedp.ByQuery),
		chromedp.WaitVisible(selPasswordInput, chromedp.ByQuery),
		chromedp.SendKeys(selPasswordInput, b.cfg.Credentials.Password, chromedp.ByQuery),
		chromedp.Click(selLoginButton, chromedp.ByQuery),
		waitURLContains(loginURLMarker),
	)
	if err != nil {
		if rejected := b.loginRejected(ctx); rejected {
			return ErrAuthenticationRejected
		}
		if errors.Is(err, context.DeadlineExceeded) {
			return ErrAuthenticationTimeout
		}
		return fmt.Errorf("authenticate: %w", err)
	}

	b.setState(models.StateAuthenticated)
	return nil
}

// loginRejected probes for the client's login error banner.
func (b *Bot) loginRejected(ctx context.Context) bool {
	pctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	var rejected bool
	expr := fmt.Sprintf("!!document.querySelector(%q)", selLoginError)
	if err := b.runner.Evaluate(pctx, expr, &rejected); err != nil {
		return false
	}
	return rejected
}

// Join navigates to the meeting built from handle, submits the passcode if
// the client asks for one, and waits for the in-meeting UI. On success the
// microphone is muted and the camera disabled; the client's defaults vary,
// and both controls are idempotent.
func (b *Bot) Join(ctx context.Context, handle models.MeetingHandle) error {
	if err := b.require("join", models.StateAuthenticated); err != nil {
		return err
	}
	if handle.ID == "" {
		return fmt.Errorf("join: empty meeting id")
	}

	jctx, cancel := context.WithTimeout(ctx, joinTimeout)
	defer cancel()

	url := fmt.Sprintf(joinURLFormat, handle.ID)
	b.log.Info().Str("meeting", handle.ID).Msg("joining meeting")

	if err := b.runner.Run(jctx, chromedp.Navigate(url)); err != nil {
		return fmt.Errorf("join: navigate: %w", err)
	}

	if handle.Password != "" {
		b.submitPasscode(jctx, handle.Password)
	}

	err := b.runner.Run(jctx, chromedp.WaitVisible(selMeetingMarker, chromedp.ByQuery))
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return ErrJoinTimeout
		}
		return fmt.Errorf("join: %w", err)
	}

	b.clickQuiet(ctx, "mute microphone", selMuteMic)
	b.clickQuiet(ctx, "stop video", selStopVideo)

	b.setState(models.StateInMeeting)
	return nil
}

// submitPasscode fills the passcode field if the meeting page shows one.
// Best effort: meetings without a passcode prompt skip straight through.
func (b *Bot) submitPasscode(ctx context.Context, passcode string) {
	pctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	var hasField bool
	expr := fmt.Sprintf("!!document.querySelector(%q)", selPasscodeInput)
	if err := b.runner.Evaluate(pctx, expr, &hasField); err != nil || !hasField {
		return
	}

	err := b.runner.Run(pctx,
		chromedp.SendKeys(selPasscodeInput, passcode, chromedp.ByQuery),
		chromedp.Click(selPasscodeJoin, chromedp.ByQuery),
	)
	if err != nil {
		b.log.Warn().Err(err).Msg("failed to submit meeting passcode")
	}
}

// PrepareMedia acquires, transcodes, and verifies the named remote asset.
// Does not require being in a meeting and does not change session state;
// on success the verified asset becomes the active one.
func (b *Bot) PrepareMedia(ctx context.Context, remoteKey string) (*models.MediaAsset, error) {
	if b.State() == models.StateClosed {
		return nil, &PreconditionError{
			Op:       "prepareMedia",
			Required: []models.SessionState{models.StateLaunched},
			Current:  models.StateClosed,
		}
	}

	asset := &models.MediaAsset{RemoteKey: remoteKey, State: models.AssetPending}

	asset.State = models.AssetDownloading
	localPath, err := b.store.Fetch(ctx, remoteKey)
	if err != nil {
		return asset, fmt.Errorf("acquire media: %w", err)
	}
	asset.LocalPath = localPath
	asset.State = models.AssetDownloaded

	asset.State = models.AssetConverting
	convertedPath, err := b.transcoder.Normalize(ctx, localPath)
	if err != nil {
		return asset, fmt.Errorf("convert media: %w", err)
	}
	asset.ConvertedPath = convertedPath
	asset.State = models.AssetConverted

	asset.State = models.AssetVerifying
	if !b.transcoder.Verify(ctx, convertedPath) {
		asset.State = models.AssetInvalid
		return asset, fmt.Errorf("%w: %s", ErrVerificationFailed, convertedPath)
	}
	asset.State = models.AssetVerified

	b.mu.Lock()
	b.asset = asset
	b.mu.Unlock()

	b.log.Info().Str("key", remoteKey).Str("converted", convertedPath).Msg("media asset verified")
	return asset, nil
}

// ActivateStream installs the virtual camera from the active asset's served
// URL, lets it settle, and presses the client's "start video" control. When
// audio is captured the microphone is unmuted as well. captureAudio may be
// nil to use the configured default.
func (b *Bot) ActivateStream(ctx context.Context, captureAudio *bool) error {
	b.mu.Lock()
	state := b.state
	asset := b.asset
	b.mu.Unlock()

	if state != models.StateInMeeting || asset == nil || asset.State != models.AssetVerified {
		return ErrNotInMeeting
	}

	audio := b.cfg.CaptureAudio
	if captureAudio != nil {
		audio = *captureAudio
	}

	url := b.cfg.MediaBaseURL + "/" + filepath.Base(asset.ConvertedPath)
	b.log.Info().Str("url", url).Bool("audio", audio).Msg("installing virtual camera")

	// The page script resolves within its own 20s budget; the extra margin
	// covers evaluation round trips.
	ictx, cancel := context.WithTimeout(ctx, (inject.LoadTimeoutSeconds+5)*time.Second)
	defer cancel()

	var result inject.Result
	if err := b.runner.Evaluate(ictx, inject.Expression(url, audio), &result); err != nil {
		return &InjectionError{Reason: err.Error()}
	}
	if !result.Success {
		return &InjectionError{Reason: result.Error}
	}
	if result.Version != inject.Version {
		return &InjectionError{Reason: fmt.Sprintf("protocol version mismatch: page acknowledged %d, want %d", result.Version, inject.Version)}
	}

	select {
	case <-time.After(settleDelay):
	case <-ctx.Done():
		return ctx.Err()
	}

	if err := b.runner.Run(ctx, chromedp.DoubleClick(selStartVideo, chromedp.ByQuery)); err != nil {
		return &InjectionError{Reason: fmt.Sprintf("start video control: %v", err)}
	}

	// The mic was muted on join; with audio routed into the synthetic
	// stream it has to go live again for participants to hear the clip.
	if audio {
		b.clickQuiet(ctx, "unmute microphone", selUnmuteMic)
	}

	b.setState(models.StateStreaming)
	return nil
}

// Leave tears the injector down and drives the leave controls. Best
// effort past the precondition check: missing UI markers are logged, not
// returned.
func (b *Bot) Leave(ctx context.Context) error {
	if err := b.require("leave", models.StateInMeeting, models.StateStreaming); err != nil {
		return err
	}

	b.teardownInjection(ctx)
	b.clickQuiet(ctx, "leave", selLeave)
	b.clickQuiet(ctx, "confirm leave", selLeaveConfirm)

	b.setState(models.StateLeft)
	return nil
}

// Terminate closes the browser. Idempotent: terminating a closed session
// is a no-op.
func (b *Bot) Terminate(ctx context.Context) error {
	if b.State() == models.StateClosed {
		return nil
	}
	if b.State() == models.StateStreaming {
		b.teardownInjection(ctx)
	}
	if err := b.runner.Close(ctx); err != nil {
		b.log.Warn().Err(err).Msg("error closing browser")
	}
	b.setState(models.StateClosed)
	return nil
}

func (b *Bot) teardownInjection(ctx context.Context) {
	tctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var tore bool
	if err := b.runner.Evaluate(tctx, inject.TeardownExpression(), &tore); err != nil {
		b.log.Warn().Err(err).Msg("failed to tear down injected stream")
		return
	}
	if tore {
		b.log.Info().Msg("injected stream torn down")
	}
}

// clickQuiet clicks a control and only logs on failure.
func (b *Bot) clickQuiet(ctx context.Context, what, sel string) {
	cctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := b.runner.Run(cctx, chromedp.Click(sel, chromedp.ByQuery)); err != nil {
		b.log.Warn().Err(err).Str("control", what).Msg("control not found, continuing")
	}
}
