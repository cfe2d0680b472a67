package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/allanbts17/zoom-meeting-bot/internal/bot"
	"github.com/allanbts17/zoom-meeting-bot/internal/mediaserver"
	"github.com/allanbts17/zoom-meeting-bot/internal/profile"
	"github.com/allanbts17/zoom-meeting-bot/internal/ratelimit"
	"github.com/allanbts17/zoom-meeting-bot/internal/session"
	"github.com/allanbts17/zoom-meeting-bot/internal/storage"
	"github.com/allanbts17/zoom-meeting-bot/pkg/models"
)

type stubRunner struct{}

func (stubRunner) Launch(ctx context.Context) error                    { return nil }
func (stubRunner) Run(ctx context.Context, a ...chromedp.Action) error { return nil }
func (stubRunner) Close(ctx context.Context) error                     { return nil }

func (stubRunner) Evaluate(ctx context.Context, expr string, res interface{}) error {
	if b, ok := res.(*bool); ok {
		*b = false
	}
	return nil
}

type stubBotStore struct {
	path string
	err  error
}

func (s stubBotStore) Fetch(ctx context.Context, remoteKey string) (string, error) {
	return s.path, s.err
}

type stubTranscoder struct{}

func (stubTranscoder) Normalize(ctx context.Context, in string) (string, error) {
	return strings.TrimSuffix(in, filepath.Ext(in)) + "_converted.webm", nil
}
func (stubTranscoder) Verify(ctx context.Context, path string) bool { return true }

type stubMediaStore struct {
	names []string
	meta  map[string]*models.VideoMetadata
}

func (s stubMediaStore) List(ctx context.Context) ([]string, error) {
	return s.names, nil
}

func (s stubMediaStore) Metadata(ctx context.Context, remoteKey string) (*models.VideoMetadata, error) {
	m, ok := s.meta[remoteKey]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return m, nil
}

type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Error   string          `json:"error"`
	Data    json.RawMessage `json:"data"`
}

type testAPI struct {
	router   http.Handler
	registry *session.Registry
	mediaDir string
}

func newTestAPI(t *testing.T, fetchErr error) *testAPI {
	t.Helper()
	log := zerolog.Nop()

	factory := session.Factory(func(sessionID string, req models.CreateSessionRequest) (*bot.Bot, func(), error) {
		b := bot.New(bot.Config{
			Credentials:  bot.Credentials{Email: "bot@example.com", Password: "secret"},
			MediaBaseURL: "http://localhost:3000/media",
		}, stubBotStore{path: "/tmp/clip.mp4", err: fetchErr}, stubTranscoder{}, stubRunner{}, log)
		return b, nil, nil
	})
	registry := session.NewRegistry(factory, 4, time.Hour, log)
	t.Cleanup(func() { registry.Shutdown(context.Background()) })

	store := stubMediaStore{
		names: []string{"clip.mp4", "promo.webm"},
		meta: map[string]*models.VideoMetadata{
			"clip.mp4": {Name: "clip.mp4", Size: 1024, ContentType: "video/mp4"},
		},
	}

	profiles, err := profile.NewStore(t.TempDir())
	require.NoError(t, err)

	mediaDir := t.TempDir()
	media := mediaserver.NewHandler(mediaDir, log)
	limiter := ratelimit.NewLimiter(600, 100)

	h := NewHandler(registry, store, log)
	return &testAPI{
		router:   h.Routes(NewProfileHandler(profiles), media, limiter, log),
		registry: registry,
		mediaDir: mediaDir,
	}
}

func (a *testAPI) do(t *testing.T, method, path string, body interface{}) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	a.router.ServeHTTP(rec, req)

	var env envelope
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	}
	return rec, env
}

func (a *testAPI) createSession(t *testing.T) string {
	t.Helper()
	rec, env := a.do(t, "POST", "/v1/sessions", nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	var s models.Session
	require.NoError(t, json.Unmarshal(env.Data, &s))
	require.NotEmpty(t, s.ID)
	return s.ID
}

func TestHealth(t *testing.T) {
	a := newTestAPI(t, nil)
	rec, env := a.do(t, "GET", "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, env.Success)
	assert.Equal(t, "ok", env.Message)
}

func TestCreateSession(t *testing.T) {
	a := newTestAPI(t, nil)

	rec, env := a.do(t, "POST", "/v1/sessions", nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	require.True(t, env.Success)

	var s models.Session
	require.NoError(t, json.Unmarshal(env.Data, &s))
	assert.Equal(t, models.StateLaunched, s.State)
	assert.False(t, s.ExpiresAt.Before(s.StartedAt))
}

func TestCreateSessionBadBody(t *testing.T) {
	a := newTestAPI(t, nil)

	req := httptest.NewRequest("POST", "/v1/sessions", strings.NewReader("{not json"))
	rec := httptest.NewRecorder()
	a.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreateSessionInvalidTimeout(t *testing.T) {
	a := newTestAPI(t, nil)
	rec, env := a.do(t, "POST", "/v1/sessions", models.CreateSessionRequest{Timeout: 10})
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.False(t, env.Success)
	assert.Contains(t, env.Error, "timeout")
}

func TestListSessions(t *testing.T) {
	a := newTestAPI(t, nil)
	a.createSession(t)
	a.createSession(t)

	rec, env := a.do(t, "GET", "/v1/sessions", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var sessions []models.Session
	require.NoError(t, json.Unmarshal(env.Data, &sessions))
	assert.Len(t, sessions, 2)
}

func TestGetSessionNotFound(t *testing.T) {
	a := newTestAPI(t, nil)
	rec, env := a.do(t, "GET", "/v1/sessions/unknown", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.False(t, env.Success)
}

func TestSessionLimitConflict(t *testing.T) {
	a := newTestAPI(t, nil)
	for i := 0; i < 4; i++ {
		a.createSession(t)
	}
	rec, _ := a.do(t, "POST", "/v1/sessions", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestLoginThenJoin(t *testing.T) {
	a := newTestAPI(t, nil)
	id := a.createSession(t)

	rec, env := a.do(t, "POST", "/v1/sessions/"+id+"/login", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "authenticated", env.Message)

	rec, env = a.do(t, "POST", "/v1/sessions/"+id+"/join", models.MeetingHandle{ID: "123456789"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "joined meeting", env.Message)

	_, env = a.do(t, "GET", "/v1/sessions/"+id, nil)
	var s models.Session
	require.NoError(t, json.Unmarshal(env.Data, &s))
	assert.Equal(t, models.StateInMeeting, s.State)
}

func TestJoinBeforeLoginConflict(t *testing.T) {
	a := newTestAPI(t, nil)
	id := a.createSession(t)

	rec, env := a.do(t, "POST", "/v1/sessions/"+id+"/join", models.MeetingHandle{ID: "123456789"})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.False(t, env.Success)

	// State must be untouched by the rejected call.
	_, env = a.do(t, "GET", "/v1/sessions/"+id, nil)
	var s models.Session
	require.NoError(t, json.Unmarshal(env.Data, &s))
	assert.Equal(t, models.StateLaunched, s.State)
}

func TestJoinRequiresMeetingID(t *testing.T) {
	a := newTestAPI(t, nil)
	id := a.createSession(t)

	rec, _ := a.do(t, "POST", "/v1/sessions/"+id+"/join", models.MeetingHandle{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPrepareMedia(t *testing.T) {
	a := newTestAPI(t, nil)
	id := a.createSession(t)

	rec, env := a.do(t, "POST", "/v1/sessions/"+id+"/media", models.PrepareMediaRequest{VideoFileName: "clip.mp4"})
	require.Equal(t, http.StatusOK, rec.Code)

	var asset models.MediaAsset
	require.NoError(t, json.Unmarshal(env.Data, &asset))
	assert.Equal(t, models.AssetVerified, asset.State)
	assert.Equal(t, "clip.mp4", asset.RemoteKey)
}

func TestPrepareMediaMissingName(t *testing.T) {
	a := newTestAPI(t, nil)
	id := a.createSession(t)

	rec, _ := a.do(t, "POST", "/v1/sessions/"+id+"/media", models.PrepareMediaRequest{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPrepareMediaUnknownObject(t *testing.T) {
	a := newTestAPI(t, storage.ErrNotFound)
	id := a.createSession(t)

	rec, _ := a.do(t, "POST", "/v1/sessions/"+id+"/media", models.PrepareMediaRequest{VideoFileName: "missing.mp4"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestActivateStreamBeforeMeetingConflict(t *testing.T) {
	a := newTestAPI(t, nil)
	id := a.createSession(t)

	rec, env := a.do(t, "POST", "/v1/sessions/"+id+"/stream", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, env.Error, "not in a meeting")
}

func TestTerminateSession(t *testing.T) {
	a := newTestAPI(t, nil)
	id := a.createSession(t)

	rec, _ := a.do(t, "DELETE", "/v1/sessions/"+id, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec, _ = a.do(t, "GET", "/v1/sessions/"+id, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	// Deleting again is a no-op, not an error.
	rec, _ = a.do(t, "DELETE", "/v1/sessions/"+id, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestListMedia(t *testing.T) {
	a := newTestAPI(t, nil)

	rec, env := a.do(t, "GET", "/v1/media", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var names []string
	require.NoError(t, json.Unmarshal(env.Data, &names))
	assert.Equal(t, []string{"clip.mp4", "promo.webm"}, names)
}

func TestMediaMetadata(t *testing.T) {
	a := newTestAPI(t, nil)

	rec, env := a.do(t, "GET", "/v1/media/clip.mp4", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var meta models.VideoMetadata
	require.NoError(t, json.Unmarshal(env.Data, &meta))
	assert.Equal(t, int64(1024), meta.Size)

	rec, _ = a.do(t, "GET", "/v1/media/other.mp4", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestProfileLifecycle(t *testing.T) {
	a := newTestAPI(t, nil)

	rec, env := a.do(t, "POST", "/v1/profiles", models.CreateProfileRequest{Name: "work account"})
	require.Equal(t, http.StatusCreated, rec.Code)

	var p models.Profile
	require.NoError(t, json.Unmarshal(env.Data, &p))
	require.NotEmpty(t, p.ID)
	assert.Equal(t, "work account", p.Name)

	rec, _ = a.do(t, "GET", "/v1/profiles/"+p.ID, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, _ = a.do(t, "DELETE", "/v1/profiles/"+p.ID, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, _ = a.do(t, "GET", "/v1/profiles/"+p.ID, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestMediaOriginMounted(t *testing.T) {
	a := newTestAPI(t, nil)
	require.NoError(t, os.WriteFile(filepath.Join(a.mediaDir, "clip_converted.webm"), []byte("webmdata"), 0644))

	req := httptest.NewRequest("GET", "/media/clip_converted.webm", nil)
	rec := httptest.NewRecorder()
	a.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "video/webm", rec.Header().Get("Content-Type"))
	assert.Equal(t, "webmdata", rec.Body.String())
}

func TestEventsStream(t *testing.T) {
	a := newTestAPI(t, nil)
	id := a.createSession(t)

	srv := httptest.NewServer(a.router)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/v1/sessions/" + id + "/events"
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	if resp != nil {
		resp.Body.Close()
	}
	defer conn.Close()

	// First frame is the current snapshot.
	var snap models.Session
	require.NoError(t, conn.ReadJSON(&snap))
	assert.Equal(t, id, snap.ID)
	assert.Equal(t, models.StateLaunched, snap.State)

	require.NoError(t, a.registry.Terminate(context.Background(), id))

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var ev models.StateEvent
	require.NoError(t, conn.ReadJSON(&ev))
	assert.Equal(t, models.StateLaunched, ev.From)
	assert.Equal(t, models.StateClosed, ev.To)
}

func TestEventsUnknownSession(t *testing.T) {
	a := newTestAPI(t, nil)
	rec, _ := a.do(t, "GET", "/v1/sessions/unknown/events", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
