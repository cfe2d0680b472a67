// Package session keeps the registry of live automated participants. Each
// entry owns one browser-driving bot; the registry bounds how many exist
// and serializes operations against each one.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"

	"github.com/allanbts17/zoom-meeting-bot/internal/bot"
	"github.com/allanbts17/zoom-meeting-bot/pkg/models"
)

var (
	// ErrNotFound means no session with the given ID exists.
	ErrNotFound = errors.New("session not found")

	// ErrBusy means another operation is running against the session.
	// Overlapping calls on one session are a caller error, not a race this
	// package arbitrates.
	ErrBusy = errors.New("an operation is already in progress for this session")

	// ErrTooManySessions means the live-session limit is reached.
	ErrTooManySessions = errors.New("session limit reached")
)

// Factory builds the bot for a new session. The returned cleanup func, if
// non-nil, runs after the session terminates (e.g. archiving the browser
// profile).
type Factory func(sessionID string, req models.CreateSessionRequest) (*bot.Bot, func(), error)

// Entry is one registered session.
type Entry struct {
	ID        string
	ProfileID string
	StartedAt time.Time
	ExpiresAt time.Time
	Bot       *bot.Bot

	busy        *semaphore.Weighted
	releaseSlot sync.Once
	slots       *semaphore.Weighted
	cleanup     func()
	cleanupOnce sync.Once

	mu   sync.Mutex
	subs map[chan models.StateEvent]struct{}
}

// Snapshot is the API view of the entry.
func (e *Entry) Snapshot() *models.Session {
	return &models.Session{
		ID:        e.ID,
		State:     e.Bot.State(),
		ProfileID: e.ProfileID,
		StartedAt: e.StartedAt,
		ExpiresAt: e.ExpiresAt,
		Asset:     e.Bot.Asset(),
	}
}

// Subscribe registers an event channel for state transitions. The returned
// func unsubscribes and closes the channel.
func (e *Entry) Subscribe() (<-chan models.StateEvent, func()) {
	ch := make(chan models.StateEvent, 8)
	e.mu.Lock()
	e.subs[ch] = struct{}{}
	e.mu.Unlock()

	return ch, func() {
		e.mu.Lock()
		if _, ok := e.subs[ch]; ok {
			delete(e.subs, ch)
			close(ch)
		}
		e.mu.Unlock()
	}
}

func (e *Entry) publish(from, to models.SessionState) {
	ev := models.StateEvent{SessionID: e.ID, From: from, To: to, At: time.Now()}
	e.mu.Lock()
	for ch := range e.subs {
		select {
		case ch <- ev:
		default: // slow subscriber, drop rather than block a transition
		}
	}
	e.mu.Unlock()

	if to == models.StateClosed {
		e.releaseSlot.Do(func() { e.slots.Release(1) })
	}
}

func (e *Entry) runCleanup() {
	if e.cleanup == nil {
		return
	}
	e.cleanupOnce.Do(e.cleanup)
}

// Registry owns all live sessions.
type Registry struct {
	factory        Factory
	sessions       sync.Map // id -> *Entry
	slots          *semaphore.Weighted
	defaultTimeout time.Duration
	log            zerolog.Logger
}

// NewRegistry creates a registry with at most maxSessions live sessions.
func NewRegistry(factory Factory, maxSessions int, defaultTimeout time.Duration, log zerolog.Logger) *Registry {
	if maxSessions < 1 {
		maxSessions = 1
	}
	return &Registry{
		factory:        factory,
		slots:          semaphore.NewWeighted(int64(maxSessions)),
		defaultTimeout: defaultTimeout,
		log:            log,
	}
}

// Create builds, registers, and launches a new session.
func (r *Registry) Create(ctx context.Context, req models.CreateSessionRequest) (*Entry, error) {
	timeout := r.defaultTimeout
	if req.Timeout != 0 {
		if req.Timeout < 60 || req.Timeout > 21600 {
			return nil, fmt.Errorf("timeout must be between 60 and 21600 seconds")
		}
		timeout = time.Duration(req.Timeout) * time.Second
	}

	if !r.slots.TryAcquire(1) {
		return nil, ErrTooManySessions
	}

	id := uuid.New().String()
	b, cleanup, err := r.factory(id, req)
	if err != nil {
		r.slots.Release(1)
		return nil, fmt.Errorf("create session: %w", err)
	}

	now := time.Now()
	entry := &Entry{
		ID:        id,
		ProfileID: req.ProfileID,
		StartedAt: now,
		ExpiresAt: now.Add(timeout),
		Bot:       b,
		busy:      semaphore.NewWeighted(1),
		slots:     r.slots,
		cleanup:   cleanup,
		subs:      make(map[chan models.StateEvent]struct{}),
	}
	b.OnStateChange(entry.publish)

	if err := b.Launch(ctx); err != nil {
		// The factory may have materialized resources (e.g. a profile
		// directory) that its cleanup reclaims.
		entry.runCleanup()
		r.slots.Release(1)
		return nil, err
	}

	r.sessions.Store(id, entry)
	go r.expireAfter(entry, timeout)

	r.log.Info().Str("session", id).Dur("timeout", timeout).Msg("session created")
	return entry, nil
}

// Get returns a session by ID.
func (r *Registry) Get(id string) (*Entry, error) {
	v, ok := r.sessions.Load(id)
	if !ok {
		return nil, ErrNotFound
	}
	return v.(*Entry), nil
}

// List returns snapshots of all sessions.
func (r *Registry) List() []*models.Session {
	var out []*models.Session
	r.sessions.Range(func(_, v interface{}) bool {
		out = append(out, v.(*Entry).Snapshot())
		return true
	})
	return out
}

// With runs fn against the session's bot, holding its serialization slot.
// Concurrent operations on one session fail fast with ErrBusy.
func (r *Registry) With(id string, fn func(b *bot.Bot) error) error {
	entry, err := r.Get(id)
	if err != nil {
		return err
	}
	if !entry.busy.TryAcquire(1) {
		return ErrBusy
	}
	defer entry.busy.Release(1)
	return fn(entry.Bot)
}

// Terminate closes the session's browser and removes the entry. Terminating
// an unknown ID (e.g. already terminated and reaped) is not an error.
func (r *Registry) Terminate(ctx context.Context, id string) error {
	entry, err := r.Get(id)
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	if !entry.busy.TryAcquire(1) {
		return ErrBusy
	}
	defer entry.busy.Release(1)

	if err := entry.Bot.Terminate(ctx); err != nil {
		return err
	}
	entry.runCleanup()
	r.sessions.Delete(id)
	return nil
}

// Shutdown terminates every live session.
func (r *Registry) Shutdown(ctx context.Context) {
	r.sessions.Range(func(k, v interface{}) bool {
		entry := v.(*Entry)
		if err := entry.Bot.Terminate(ctx); err != nil {
			r.log.Warn().Err(err).Str("session", entry.ID).Msg("error terminating session on shutdown")
		}
		entry.runCleanup()
		r.sessions.Delete(k)
		return true
	})
}

// expireAfter reaps the session once its lifetime elapses.
func (r *Registry) expireAfter(entry *Entry, timeout time.Duration) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	<-timer.C

	if entry.Bot.State() == models.StateClosed {
		r.sessions.Delete(entry.ID)
		return
	}

	r.log.Info().Str("session", entry.ID).Msg("session timed out, terminating")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := r.Terminate(ctx, entry.ID); err != nil {
		r.log.Warn().Err(err).Str("session", entry.ID).Msg("failed to terminate expired session")
	}
}
